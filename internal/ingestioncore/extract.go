// Package ingestioncore implements the Ingestion Core (spec §4.13):
// a single-record-per-file pipeline producing one searchable docrecord.Record
// per source file. Grounded on original_source/backend/ingestion.py
// (IngestionPipeline.process_file and its extraction/summary/classification
// helpers), restructured into the teacher's staged-pipeline idiom from
// internal/rag/service/service.go's Ingest (preprocess → idempotency →
// index → embed → graph, each stage timed and the timings logged).
package ingestioncore

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/xuri/excelize/v2"

	"vantage/internal/docrecord"
)

// ExtractedContent is the output of Extract: raw text (or a caption for
// images), its content-type classification, and a page count when known.
type ExtractedContent struct {
	Text        string
	ContentType docrecord.ContentType
	PageCount   int
	ImagePath   string // set only for images, handed to the vision stage
}

var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".bmp": true,
}

// Extract dispatches on file extension per spec §4.13 step 2: plain text,
// per-page PDF text (capped at maxPDFPages), DOCX paragraphs, spreadsheet
// header + first maxRows rows, or a deferred image path for vision
// captioning.
func Extract(path string, maxPDFPages, maxSpreadsheetRows int) (ExtractedContent, error) {
	suffix := strings.ToLower(extOf(path))
	switch {
	case suffix == ".txt" || suffix == ".md":
		return extractPlainText(path)
	case suffix == ".pdf":
		return extractPDF(path, maxPDFPages)
	case suffix == ".docx":
		return extractDOCX(path)
	case suffix == ".xlsx":
		return extractXLSX(path, maxSpreadsheetRows)
	case suffix == ".csv":
		return extractCSV(path, maxSpreadsheetRows)
	case imageExtensions[suffix]:
		return ExtractedContent{ContentType: docrecord.ContentImage, ImagePath: path}, nil
	default:
		return ExtractedContent{}, fmt.Errorf("ingestioncore: unsupported file type %q", suffix)
	}
}

func extOf(path string) string {
	i := strings.LastIndexByte(path, '.')
	if i < 0 {
		return ""
	}
	return path[i:]
}

func extractPlainText(path string) (ExtractedContent, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return ExtractedContent{}, err
	}
	return ExtractedContent{Text: string(b), ContentType: docrecord.ContentText}, nil
}

// extractPDF mirrors _extract_content's PDF branch: page-by-page text with
// a truncation note once maxPDFPages is exceeded, falling back to a stub
// on any reader failure rather than aborting the whole file.
func extractPDF(path string, maxPDFPages int) (ExtractedContent, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return ExtractedContent{Text: fmt.Sprintf("PDF file: %s", baseName(path)), ContentType: docrecord.ContentText}, nil
	}
	defer f.Close()

	total := r.NumPage()
	capped := total
	if maxPDFPages > 0 && capped > maxPDFPages {
		capped = maxPDFPages
	}

	var b strings.Builder
	for i := 1; i <= capped; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		fmt.Fprintf(&b, "\n\n--- Page %d ---\n\n%s", i, text)
	}
	if total > capped {
		fmt.Fprintf(&b, "\n\n[... %d more pages truncated ...]\n\n", total-capped)
	}
	return ExtractedContent{Text: strings.TrimSpace(b.String()), ContentType: docrecord.ContentText, PageCount: capped}, nil
}

func extractDOCX(path string) (ExtractedContent, error) {
	r, err := docx.ReadDocxFile(path)
	if err != nil {
		return ExtractedContent{Text: fmt.Sprintf("DOCX file: %s", baseName(path)), ContentType: docrecord.ContentText}, nil
	}
	defer r.Close()
	text := r.Editable().GetContent()
	return ExtractedContent{Text: text, ContentType: docrecord.ContentText}, nil
}

func extractXLSX(path string, maxRows int) (ExtractedContent, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return ExtractedContent{Text: fmt.Sprintf("Spreadsheet file: %s", baseName(path)), ContentType: docrecord.ContentText}, nil
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return ExtractedContent{Text: fmt.Sprintf("Spreadsheet file: %s", baseName(path)), ContentType: docrecord.ContentText}, nil
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil || len(rows) == 0 {
		return ExtractedContent{Text: fmt.Sprintf("Spreadsheet file: %s", baseName(path)), ContentType: docrecord.ContentText}, nil
	}
	return ExtractedContent{Text: describeRows(baseName(path), rows, maxRows), ContentType: docrecord.ContentSpreadsheet}, nil
}

func extractCSV(path string, maxRows int) (ExtractedContent, error) {
	f, err := os.Open(path)
	if err != nil {
		return ExtractedContent{}, err
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil || len(rows) == 0 {
		return ExtractedContent{Text: fmt.Sprintf("Spreadsheet file: %s", baseName(path)), ContentType: docrecord.ContentText}, nil
	}
	return ExtractedContent{Text: describeRows(baseName(path), rows, maxRows), ContentType: docrecord.ContentSpreadsheet}, nil
}

// describeRows builds the header + sample-rows description spec §4.13
// calls out ("header+first-20-rows"), mirroring ingestion.py's DataFrame
// description text.
func describeRows(filename string, rows [][]string, maxRows int) string {
	header := rows[0]
	body := rows[1:]
	if maxRows > 0 && len(body) > maxRows {
		body = body[:maxRows]
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Spreadsheet: %s\n", filename)
	fmt.Fprintf(&b, "Shape: %d rows x %d columns\n", len(rows)-1, len(header))
	fmt.Fprintf(&b, "Columns: %s\n\n", strings.Join(header, ", "))
	b.WriteString("Sample data:\n")
	for _, row := range body {
		b.WriteString(strings.Join(row, "\t"))
		b.WriteByte('\n')
	}
	return b.String()
}

func baseName(path string) string {
	i := strings.LastIndexByte(path, '/')
	if i < 0 {
		return path
	}
	return path[i+1:]
}
