package services

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"doc-rag-platform/internal/config"
	"doc-rag-platform/internal/logger"
	"doc-rag-platform/models"
)

// ExportRequest carries the format selector for a transcript export.
type ExportRequest struct {
	Format string `form:"format" json:"format" binding:"omitempty,oneof=json excel both"`
}

// TranscriptExport is the structured transcript of one conversation.
type TranscriptExport struct {
	ExportInfo ExportInfo    `json:"export_info"`
	Turns      []TurnExport  `json:"turns"`
	Summary    ExportSummary `json:"summary"`
}

type ExportInfo struct {
	ExportDate        time.Time `json:"export_date"`
	ConversationID    string    `json:"conversation_id"`
	ConversationTitle string    `json:"conversation_title,omitempty"`
	DocumentID        string    `json:"document_id"`
	DocumentName      string    `json:"document_name,omitempty"`
	TotalTurns        int       `json:"total_turns"`
	Format            string    `json:"format"`
}

type TurnExport struct {
	ID         string            `json:"id"`
	Question   string            `json:"question"`
	Answer     string            `json:"answer"`
	Timestamp  time.Time         `json:"timestamp"`
	TokenCost  int               `json:"token_cost"`
	References []ReferenceExport `json:"references,omitempty"`
}

type ReferenceExport struct {
	CitationIndex   int     `json:"citation_index"`
	PageNumber      int     `json:"page_number"`
	ChunkType       string  `json:"chunk_type"`
	Cited           bool    `json:"cited"`
	SimilarityScore float64 `json:"similarity_score"`
	Preview         string  `json:"preview"`
}

type ExportSummary struct {
	TotalTurns       int     `json:"total_turns"`
	TotalTokens      int     `json:"total_tokens"`
	TotalReferences  int     `json:"total_references"`
	CitedReferences  int     `json:"cited_references"`
	CitationCoverage float64 `json:"citation_coverage"`
	PagesCited       []int   `json:"pages_cited,omitempty"`
}

// ExportService builds downloadable transcripts of conversations.
type ExportService struct {
	conversations *mongo.Collection
	messages      *mongo.Collection
	documents     *mongo.Collection
}

func NewExportService(db *mongo.Database) *ExportService {
	return &ExportService{
		conversations: db.Collection(config.CollectionConversations),
		messages:      db.Collection(config.CollectionMessages),
		documents:     db.Collection(config.CollectionDocuments),
	}
}

// BuildTranscript assembles the full transcript for one conversation,
// oldest turn first.
func (es *ExportService) BuildTranscript(ctx context.Context, conversationID, format string) (*TranscriptExport, error) {
	convID, err := primitive.ObjectIDFromHex(conversationID)
	if err != nil {
		return nil, fmt.Errorf("invalid conversation id %q: %w", conversationID, models.ErrMalformedInput)
	}

	var conv models.Conversation
	if err := es.conversations.FindOne(ctx, bson.M{"_id": convID}).Decode(&conv); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("conversation %s: %w", conversationID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("load conversation %s: %w", conversationID, err)
	}

	var doc models.Document
	documentName := ""
	if err := es.documents.FindOne(ctx, bson.M{"_id": conv.DocumentID}).Decode(&doc); err == nil {
		documentName = doc.OriginalName
	} else if err != mongo.ErrNoDocuments {
		logger.Warn("Export: document lookup failed", "document_id", conv.DocumentID.Hex(), "error", err)
	}

	opts := options.Find().SetSort(bson.D{primitive.E{Key: "created_at", Value: 1}})
	cursor, err := es.messages.Find(ctx, bson.M{"conversation_id": convID}, opts)
	if err != nil {
		return nil, fmt.Errorf("fetch messages for %s: %w", conversationID, err)
	}
	defer cursor.Close(ctx)

	var messages []models.Message
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, fmt.Errorf("decode messages for %s: %w", conversationID, err)
	}

	turns := make([]TurnExport, len(messages))
	for i, msg := range messages {
		refs := make([]ReferenceExport, len(msg.References))
		for j, ref := range msg.References {
			refs[j] = ReferenceExport{
				CitationIndex:   ref.CitationIndex,
				PageNumber:      ref.PageNumber,
				ChunkType:       ref.ChunkType,
				Cited:           ref.RelevanceScore > 0,
				SimilarityScore: ref.SimilarityScore,
				Preview:         ref.Text,
			}
		}
		turns[i] = TurnExport{
			ID:         msg.ID.Hex(),
			Question:   msg.Question,
			Answer:     msg.Answer,
			Timestamp:  msg.CreatedAt,
			TokenCost:  msg.TokenCost,
			References: refs,
		}
	}

	return &TranscriptExport{
		ExportInfo: ExportInfo{
			ExportDate:        time.Now(),
			ConversationID:    conversationID,
			ConversationTitle: conv.Title,
			DocumentID:        conv.DocumentID.Hex(),
			DocumentName:      documentName,
			TotalTurns:        len(turns),
			Format:            format,
		},
		Turns:   turns,
		Summary: buildExportSummary(turns),
	}, nil
}

func buildExportSummary(turns []TurnExport) ExportSummary {
	summary := ExportSummary{TotalTurns: len(turns)}
	pages := make(map[int]bool)

	for _, turn := range turns {
		summary.TotalTokens += turn.TokenCost
		for _, ref := range turn.References {
			summary.TotalReferences++
			if ref.Cited {
				summary.CitedReferences++
				pages[ref.PageNumber] = true
			}
		}
	}

	if summary.TotalReferences > 0 {
		summary.CitationCoverage = float64(summary.CitedReferences) / float64(summary.TotalReferences)
	}
	for page := range pages {
		summary.PagesCited = append(summary.PagesCited, page)
	}
	sort.Ints(summary.PagesCited)
	return summary
}

// StreamTranscript writes the transcript to the HTTP response in the
// requested format.
func (es *ExportService) StreamTranscript(c *gin.Context, data *TranscriptExport, format string) error {
	filename := "conversation_" + data.ExportInfo.ConversationID

	switch format {
	case "json":
		jsonData, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal transcript: %w", err)
		}
		c.Header("Content-Disposition", "attachment; filename="+filename+".json")
		c.Header("Content-Length", strconv.Itoa(len(jsonData)))
		c.Data(http.StatusOK, "application/json", jsonData)

	case "excel":
		buf, err := es.transcriptWorkbook(data)
		if err != nil {
			return err
		}
		c.Header("Content-Disposition", "attachment; filename="+filename+".xlsx")
		c.Header("Content-Length", strconv.Itoa(buf.Len()))
		c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())

	case "both":
		var buf bytes.Buffer
		zipWriter := zip.NewWriter(&buf)

		jsonData, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal transcript: %w", err)
		}
		jsonFile, err := zipWriter.Create(filename + ".json")
		if err != nil {
			return fmt.Errorf("create JSON entry: %w", err)
		}
		if _, err := jsonFile.Write(jsonData); err != nil {
			return fmt.Errorf("write JSON entry: %w", err)
		}

		excelBuf, err := es.transcriptWorkbook(data)
		if err != nil {
			return err
		}
		excelFile, err := zipWriter.Create(filename + ".xlsx")
		if err != nil {
			return fmt.Errorf("create Excel entry: %w", err)
		}
		if _, err := excelFile.Write(excelBuf.Bytes()); err != nil {
			return fmt.Errorf("write Excel entry: %w", err)
		}
		if err := zipWriter.Close(); err != nil {
			return fmt.Errorf("close archive: %w", err)
		}

		c.Header("Content-Disposition", "attachment; filename="+filename+".zip")
		c.Header("Content-Length", strconv.Itoa(buf.Len()))
		c.Data(http.StatusOK, "application/zip", buf.Bytes())

	default:
		return fmt.Errorf("unsupported format %q: %w", format, models.ErrMalformedInput)
	}

	return nil
}

// transcriptWorkbook renders the transcript as a three-sheet workbook:
// the turns, the per-turn references, and the summary.
func (es *ExportService) transcriptWorkbook(data *TranscriptExport) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			logger.Warn("Export: closing workbook failed", "error", err)
		}
	}()

	transcriptSheet := "Transcript"
	index, err := f.NewSheet(transcriptSheet)
	if err != nil {
		return nil, fmt.Errorf("create transcript sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headers := []string{"ID", "Question", "Answer", "Asked At", "Token Cost", "Citations Used"}
	for i, header := range headers {
		cell := fmt.Sprintf("%c1", 'A'+i)
		f.SetCellValue(transcriptSheet, cell, header)
	}

	for rowIdx, turn := range data.Turns {
		row := rowIdx + 2
		f.SetCellValue(transcriptSheet, fmt.Sprintf("A%d", row), turn.ID)
		f.SetCellValue(transcriptSheet, fmt.Sprintf("B%d", row), turn.Question)
		f.SetCellValue(transcriptSheet, fmt.Sprintf("C%d", row), turn.Answer)
		f.SetCellValue(transcriptSheet, fmt.Sprintf("D%d", row), turn.Timestamp.Format("2006-01-02 15:04:05"))
		f.SetCellValue(transcriptSheet, fmt.Sprintf("E%d", row), turn.TokenCost)
		f.SetCellValue(transcriptSheet, fmt.Sprintf("F%d", row), citedMarkers(turn.References))
	}

	for i := range headers {
		col := fmt.Sprintf("%c:%c", 'A'+i, 'A'+i)
		f.SetColWidth(transcriptSheet, col, col, 20)
	}

	referenceSheet := "References"
	if _, err := f.NewSheet(referenceSheet); err != nil {
		return nil, fmt.Errorf("create reference sheet: %w", err)
	}

	refHeaders := []string{"Turn", "Citation", "Page", "Type", "Cited", "Similarity", "Preview"}
	for i, header := range refHeaders {
		cell := fmt.Sprintf("%c1", 'A'+i)
		f.SetCellValue(referenceSheet, cell, header)
	}

	refRow := 2
	for turnIdx, turn := range data.Turns {
		for _, ref := range turn.References {
			f.SetCellValue(referenceSheet, fmt.Sprintf("A%d", refRow), turnIdx+1)
			f.SetCellValue(referenceSheet, fmt.Sprintf("B%d", refRow), fmt.Sprintf("[%d]", ref.CitationIndex))
			f.SetCellValue(referenceSheet, fmt.Sprintf("C%d", refRow), ref.PageNumber)
			f.SetCellValue(referenceSheet, fmt.Sprintf("D%d", refRow), ref.ChunkType)
			f.SetCellValue(referenceSheet, fmt.Sprintf("E%d", refRow), ref.Cited)
			f.SetCellValue(referenceSheet, fmt.Sprintf("F%d", refRow), ref.SimilarityScore)
			f.SetCellValue(referenceSheet, fmt.Sprintf("G%d", refRow), ref.Preview)
			refRow++
		}
	}

	summarySheet := "Summary"
	if _, err := f.NewSheet(summarySheet); err != nil {
		return nil, fmt.Errorf("create summary sheet: %w", err)
	}

	summaryRows := [][]interface{}{
		{"Export Information", ""},
		{"Export Date", data.ExportInfo.ExportDate.Format("2006-01-02 15:04:05")},
		{"Conversation", data.ExportInfo.ConversationTitle},
		{"Document", data.ExportInfo.DocumentName},
		{"Total Turns", data.ExportInfo.TotalTurns},
		{"", ""},
		{"Summary Statistics", ""},
		{"Total Tokens", data.Summary.TotalTokens},
		{"Total References", data.Summary.TotalReferences},
		{"Cited References", data.Summary.CitedReferences},
		{"Citation Coverage", fmt.Sprintf("%.2f", data.Summary.CitationCoverage)},
	}
	for i, row := range summaryRows {
		for j, cell := range row {
			cellRef := fmt.Sprintf("%c%d", 'A'+j, i+1)
			f.SetCellValue(summarySheet, cellRef, cell)
		}
	}

	if len(data.Summary.PagesCited) > 0 {
		row := len(summaryRows) + 2
		f.SetCellValue(summarySheet, fmt.Sprintf("A%d", row), "Pages Cited")
		row++
		for _, page := range data.Summary.PagesCited {
			f.SetCellValue(summarySheet, fmt.Sprintf("A%d", row), page)
			row++
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return &buf, nil
}

// citedMarkers renders the citation markers that actually appeared in the
// answer, e.g. "[1] [3]".
func citedMarkers(refs []ReferenceExport) string {
	var b bytes.Buffer
	for _, ref := range refs {
		if !ref.Cited {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "[%d]", ref.CitationIndex)
	}
	return b.String()
}
