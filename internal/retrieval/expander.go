// Package retrieval widens vector search hits into document-ordered context.
// Each match pulls in its neighboring chunks by deterministic reference, so
// the generator sees passages the way the document reads, not the way the
// index ranked them.
package retrieval

import (
	"context"
	"fmt"
	"sort"

	"doc-rag-platform/internal/logger"
	"doc-rag-platform/internal/vectorindex"
	"doc-rag-platform/models"
)

// VectorSearcher abstracts the namespace-scoped index operations the
// expander needs.
type VectorSearcher interface {
	Query(ctx context.Context, namespace string, vector []float32, topK int) ([]vectorindex.Match, error)
	FetchByRef(ctx context.Context, namespace, ref string) (*vectorindex.Match, error)
}

// Options configures retrieval behaviour.
type Options struct {
	TopK             int
	Window           int     // neighbors fetched on each side of a match
	NeighborDiscount float64 // neighbors rank below the hit that pulled them in
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		TopK:             8,
		Window:           2,
		NeighborDiscount: 0.8,
	}
}

// Result is the assembled context for one query.
type Result struct {
	Items []models.ContextItem
	// Expanded is false when the plain top-K fallback served the request.
	Expanded bool
}

// Expander turns a query vector into window-expanded, document-ordered
// context items.
type Expander struct {
	index VectorSearcher
	opts  Options
}

func New(index VectorSearcher, opts Options) *Expander {
	if opts.TopK < 1 {
		opts.TopK = DefaultOptions().TopK
	}
	if opts.Window < 0 {
		opts.Window = DefaultOptions().Window
	}
	if opts.NeighborDiscount <= 0 || opts.NeighborDiscount > 1 {
		opts.NeighborDiscount = DefaultOptions().NeighborDiscount
	}
	return &Expander{index: index, opts: opts}
}

// Expand searches the document's namespace and widens each hit with its
// surrounding chunks. A failed initial search is retried once as a plain
// top-K query with no expansion; only a second failure surfaces to the
// caller. Missing neighbors are skipped, never fatal.
func (e *Expander) Expand(ctx context.Context, namespace string, queryVector []float32) (*Result, error) {
	matches, err := e.index.Query(ctx, namespace, queryVector, e.opts.TopK)
	if err != nil {
		logger.Warn("Vector search failed, retrying without expansion", "namespace", namespace, "error", err)
		matches, err = e.index.Query(ctx, namespace, queryVector, e.opts.TopK)
		if err != nil {
			return nil, fmt.Errorf("retrieval: search %s: %w", namespace, err)
		}
		return &Result{Items: e.toContextItems(sortByDocumentOrder(matches)), Expanded: false}, nil
	}

	combined := make([]vectorindex.Match, len(matches))
	copy(combined, matches)

	// attempted covers hits and every neighbor reference already tried, so
	// overlapping windows never fetch the same point twice.
	attempted := make(map[string]bool, len(matches)*(2*e.opts.Window+1))
	for _, m := range matches {
		attempted[m.Ref] = true
	}

	for _, m := range matches {
		position := m.Meta.ReadingOrder
		for offset := -e.opts.Window; offset <= e.opts.Window; offset++ {
			if offset == 0 {
				continue
			}
			neighborPos := position + offset
			if neighborPos < 0 {
				continue
			}

			ref := models.ChunkVectorRef(namespace, neighborPos)
			if attempted[ref] {
				continue
			}
			attempted[ref] = true

			neighbor, err := e.index.FetchByRef(ctx, namespace, ref)
			if err != nil {
				logger.Debug("Neighbor fetch skipped", "ref", ref, "error", err)
				continue
			}
			neighbor.Score = m.Score * e.opts.NeighborDiscount
			combined = append(combined, *neighbor)
		}
	}

	return &Result{Items: e.toContextItems(sortByDocumentOrder(combined)), Expanded: true}, nil
}

// sortByDocumentOrder restores natural reading order regardless of how the
// index ranked the points.
func sortByDocumentOrder(matches []vectorindex.Match) []vectorindex.Match {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Meta.PageNumber != matches[j].Meta.PageNumber {
			return matches[i].Meta.PageNumber < matches[j].Meta.PageNumber
		}
		return matches[i].Meta.ReadingOrder < matches[j].Meta.ReadingOrder
	})
	return matches
}

func (e *Expander) toContextItems(matches []vectorindex.Match) []models.ContextItem {
	items := make([]models.ContextItem, 0, len(matches))
	for _, m := range matches {
		item, err := m.Meta.ContextItem(m.Score)
		if err != nil {
			logger.Warn("Dropping context item with corrupt payload", "ref", m.Ref, "error", err)
			continue
		}
		items = append(items, item)
	}
	return items
}
