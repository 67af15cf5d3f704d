package ingestioncore

import (
	"strings"

	"vantage/internal/docrecord"
)

// ClassifyDocument ports ingestion.py's _classify_document: filename
// keyword patterns take priority over plain extension mapping.
func ClassifyDocument(filename string, contentType docrecord.ContentType) docrecord.DocumentType {
	lower := strings.ToLower(filename)
	suffix := strings.ToLower(extOf(filename))

	if imageExtensions[suffix] {
		switch {
		case strings.Contains(lower, "screenshot"):
			return docrecord.DocScreenshot
		default:
			return docrecord.DocImage
		}
	}

	switch {
	case strings.Contains(lower, "invoice"):
		return docrecord.DocInvoice
	case strings.Contains(lower, "report"):
		return docrecord.DocReport
	case strings.Contains(lower, "contract"), strings.Contains(lower, "agreement"):
		return docrecord.DocContract
	case strings.Contains(lower, "resume"), strings.Contains(lower, "cv"):
		return docrecord.DocResume
	}

	if suffix == ".xlsx" || suffix == ".csv" {
		return docrecord.DocSpreadsheet
	}

	switch suffix {
	case ".pdf":
		return docrecord.DocPDF
	case ".docx":
		return docrecord.DocWord
	case ".txt", ".md":
		return docrecord.DocText
	}
	return docrecord.DocDefault
}
