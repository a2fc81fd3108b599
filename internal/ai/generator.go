package ai

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"doc-rag-platform/internal/citation"
	"doc-rag-platform/internal/logger"
	"doc-rag-platform/internal/segment"
	"doc-rag-platform/models"
)

const (
	// historyTurns bounds how many past question/answer turns travel with
	// each request. Older turns are dropped, newest kept.
	historyTurns = 5

	referencePreviewLen = 200
)

// GenerationResult is an answer plus its reference list. References always
// have exactly one entry per supplied context item, aligned by position.
type GenerationResult struct {
	Answer     string
	References []models.Reference
	TokenCost  int
}

// Generator turns a question, retrieved context and conversation history
// into a cited answer.
type Generator struct {
	llm Completer
}

func NewGenerator(llm Completer) *Generator {
	return &Generator{llm: llm}
}

// Generate asks the LLM once and, when the reply cites nothing despite
// non-empty context, issues exactly one corrective follow-up. Whatever the
// follow-up returns is accepted as final.
func (g *Generator) Generate(ctx context.Context, question string, contextItems []models.ContextItem, history []models.Message) (*GenerationResult, error) {
	tracer := otel.Tracer("answer-generator")
	ctx, span := tracer.Start(ctx, "generator.generate")
	defer span.End()

	span.SetAttributes(
		attribute.Int("generator.context_items", len(contextItems)),
		attribute.Int("generator.history_turns", len(history)),
	)

	messages := buildMessages(question, contextItems, history)

	answer, tokens, err := g.llm.Complete(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("answer generation: %w", err)
	}

	if len(contextItems) > 0 && !citation.HasCitations(answer) {
		span.SetAttributes(attribute.Bool("generator.citation_retry", true))
		logger.Warn("Answer carried no citations, issuing corrective turn", "context_items", len(contextItems))

		retryMessages := make([]ChatMessage, 0, len(messages)+2)
		retryMessages = append(retryMessages, messages...)
		retryMessages = append(retryMessages,
			ChatMessage{Role: "model", Text: answer},
			ChatMessage{Role: "user", Text: correctiveInstruction},
		)
		retryAnswer, retryTokens, retryErr := g.llm.Complete(ctx, retryMessages)
		if retryErr != nil {
			// Keep the uncited first answer rather than losing it.
			logger.Warn("Citation retry failed, keeping original answer", "error", retryErr)
		} else {
			answer = retryAnswer
			tokens += retryTokens
		}
	}

	references := buildReferences(answer, contextItems)
	span.SetAttributes(attribute.Int("generator.tokens", tokens))

	return &GenerationResult{
		Answer:     answer,
		References: references,
		TokenCost:  tokens,
	}, nil
}

const correctiveInstruction = "Your previous answer did not cite any source passages. " +
	"Rewrite it so every factual statement carries a bracket-numbered citation " +
	"like [1] or [2] referring to the numbered context items."

// buildMessages produces the exchange sent upstream: the instruction block
// first, then the trimmed history as alternating turns, then the question.
func buildMessages(question string, contextItems []models.ContextItem, history []models.Message) []ChatMessage {
	if len(history) > historyTurns {
		history = history[len(history)-historyTurns:]
	}

	messages := make([]ChatMessage, 0, 2+2*len(history))
	messages = append(messages, ChatMessage{Role: "user", Text: buildInstructions(contextItems)})
	for _, turn := range history {
		messages = append(messages,
			ChatMessage{Role: "user", Text: turn.Question},
			ChatMessage{Role: "model", Text: turn.Answer},
		)
	}
	messages = append(messages, ChatMessage{Role: "user", Text: question})
	return messages
}

func buildInstructions(contextItems []models.ContextItem) string {
	var prompt strings.Builder

	prompt.WriteString("You are a document question-answering assistant. ")
	prompt.WriteString("Answer using ONLY the numbered context passages below.\n\n")

	prompt.WriteString("CITATION RULES:\n")
	prompt.WriteString("- EVERY factual statement must cite its source as a bracketed number, e.g. [1] or [3]\n")
	prompt.WriteString("- The number refers to the context passage it came from\n")
	prompt.WriteString("- Cite multiple passages as separate markers: [1] [2], never [1,2]\n")
	prompt.WriteString("- If the context does not contain the answer, say so explicitly instead of guessing\n")
	prompt.WriteString("- NEVER invent facts that are not in the context\n\n")

	prompt.WriteString("TABLE HANDLING:\n")
	prompt.WriteString(fmt.Sprintf("- Passages wrapped in %s ... %s are tables rendered as markdown grids\n",
		segment.TableStartMarker, segment.TableEndMarker))
	prompt.WriteString("- Read values cell by cell; keep numbers and units exactly as written\n")
	prompt.WriteString("- When answering from a table, preserve the tabular structure if it helps clarity\n\n")

	if len(contextItems) == 0 {
		prompt.WriteString("No context passages are available for this question. ")
		prompt.WriteString("Tell the user the document does not contain relevant information.\n")
		return prompt.String()
	}

	prompt.WriteString("CONTEXT PASSAGES:\n\n")
	for i, item := range contextItems {
		prompt.WriteString(fmt.Sprintf("Context %d (page %d):\n%s\n\n", i+1, item.PageNumber, item.Text))
	}

	return prompt.String()
}

// buildReferences emits one reference per context item, in context order.
// RelevanceScore flags whether the answer actually cited the item; the
// retrieval similarity rides along untouched.
func buildReferences(answer string, contextItems []models.ContextItem) []models.Reference {
	cited := citation.CitedIndices(answer)

	references := make([]models.Reference, 0, len(contextItems))
	for i, item := range contextItems {
		relevance := 0.0
		if cited[i+1] {
			relevance = 1.0
		}
		references = append(references, models.Reference{
			CitationIndex:   i + 1,
			ChunkID:         item.ChunkID,
			PageNumber:      item.PageNumber,
			Text:            previewText(item.Text),
			RelevanceScore:  relevance,
			SimilarityScore: item.Score,
			BoundingPolygon: item.BoundingPolygon,
			ChunkType:       item.ChunkType,
		})
	}
	return references
}

func previewText(text string) string {
	runes := []rune(text)
	if len(runes) <= referencePreviewLen {
		return text
	}
	return string(runes[:referencePreviewLen]) + "…"
}
