// Package daedalus implements the Document Pipeline (spec §4.12): the
// attached-document path Zeus activates unconditionally when documents
// are attached. Hypatia (semantic analysis), Mnemosyne (insight
// extraction), and the Daedalus orchestrator itself are grounded on
// original_source/backend/agents/document_agents/{hypatia_analyzer,
// mnemosyne_extractor,daedalus_orchestrator}.py, reimplemented in the
// teacher's internal/specialists LLM-JSON-call-with-fallback idiom.
package daedalus

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"vantage/internal/llmclient"
	"vantage/internal/logging"
)

// Analysis is Hypatia's semantic-analysis result shape.
type Analysis struct {
	DocumentType    string              `json:"document_type"`
	PrimaryLanguage string              `json:"primary_language"`
	Topics          []string            `json:"topics"`
	Entities        map[string][]string `json:"entities"`
	KeyThemes       []string            `json:"key_themes"`
	TechnicalDomain string              `json:"technical_domain"`
	ComplexityScore float64             `json:"complexity_score"`
	SummaryContext  string              `json:"summary_context"`
}

// documentTypes mirrors Hypatia's DOCUMENT_TYPES classification list.
var documentTypes = []string{
	"contract", "legal_document", "report", "article", "research_paper",
	"invoice", "resume", "letter", "email", "manual", "specification",
	"presentation", "spreadsheet_data", "form", "policy", "other",
}

// Hypatia is the semantic-analysis specialist: document type, language,
// topics, entities, themes, technical domain, and complexity.
type Hypatia struct {
	LLM   *llmclient.Client
	Model string
}

// Analyze performs LLM-based semantic analysis, falling back to filename
// and text-statistics heuristics on any LLM or parse failure.
func (h *Hypatia) Analyze(ctx context.Context, rawText, filename string) Analysis {
	prompt := buildAnalysisPrompt(rawText, filename)
	res, err := h.LLM.Call(ctx, llmclient.CallOptions{Model: h.Model, Prompt: prompt, JSON: true, Temperature: 0.3})
	if err != nil {
		logging.Log.WithError(err).Warn("hypatia: analysis failed, using fallback")
		return fallbackAnalysis(rawText, filename)
	}
	var a Analysis
	if err := json.Unmarshal([]byte(res.Text), &a); err != nil {
		logging.Log.WithError(err).Warn("hypatia: analysis response was not valid JSON, using fallback")
		return fallbackAnalysis(rawText, filename)
	}
	if a.DocumentType == "" {
		a.DocumentType = "other"
	}
	if a.PrimaryLanguage == "" {
		a.PrimaryLanguage = "English"
	}
	if a.Entities == nil {
		a.Entities = map[string][]string{"persons": {}, "organizations": {}, "dates": {}, "locations": {}}
	}
	if a.SummaryContext == "" {
		a.SummaryContext = fmt.Sprintf("Document about %s", filename)
	}
	return a
}

func buildAnalysisPrompt(text, filename string) string {
	const maxChars = 8000
	truncated := text
	if len(truncated) > maxChars {
		truncated = truncated[:maxChars] + "..."
	}
	return fmt.Sprintf(`Analyze this document and provide structured insights.

Document: %s
Content:
%s

Provide analysis in JSON format:
{
    "document_type": "one of: %s",
    "primary_language": "language name",
    "topics": ["topic1", "topic2", "topic3"],
    "entities": {"persons": [], "organizations": [], "dates": [], "locations": []},
    "key_themes": ["theme1", "theme2", "theme3"],
    "technical_domain": "domain or empty string",
    "complexity_score": 0.0,
    "summary_context": "2-3 sentence context summary"
}

Respond ONLY with valid JSON, no other text.`, filename, truncated, strings.Join(documentTypes, ", "))
}

var datePattern = regexp.MustCompile(`\b\d{1,2}[/-]\d{1,2}[/-]\d{2,4}\b|\b\d{4}[/-]\d{1,2}[/-]\d{1,2}\b`)

// fallbackAnalysis is Hypatia's rule-based fallback: filename keyword
// matching for document type, first-lines heuristic for topics, regex
// date extraction, and a unique-word-ratio complexity estimate.
func fallbackAnalysis(text, filename string) Analysis {
	lower := strings.ToLower(filename)
	docType := "other"
	switch {
	case strings.Contains(lower, "invoice"), strings.Contains(lower, "bill"):
		docType = "invoice"
	case strings.Contains(lower, "contract"), strings.Contains(lower, "agreement"):
		docType = "contract"
	case strings.Contains(lower, "report"):
		docType = "report"
	case strings.Contains(lower, "resume"), strings.Contains(lower, "cv"):
		docType = "resume"
	}

	lines := strings.Split(text, "\n")
	if len(lines) > 10 {
		lines = lines[:10]
	}
	var topics []string
	for _, line := range lines {
		words := strings.Fields(strings.TrimSpace(line))
		if len(words) > 3 {
			if len(words) > 5 {
				words = words[:5]
			}
			topics = append(topics, strings.Join(words, " "))
		}
		if len(topics) >= 3 {
			break
		}
	}

	sample := text
	if len(sample) > 1000 {
		sample = sample[:1000]
	}
	dates := uniqueStrings(datePattern.FindAllString(sample, -1))
	if len(dates) > 5 {
		dates = dates[:5]
	}

	words := strings.Fields(text)
	seen := make(map[string]struct{})
	for _, w := range words {
		seen[strings.ToLower(w)] = struct{}{}
	}
	complexity := 0.0
	if len(words) > 0 {
		complexity = float64(len(seen)) / float64(len(words))
		if complexity > 1 {
			complexity = 1
		}
	}

	return Analysis{
		DocumentType:    docType,
		PrimaryLanguage: "English",
		Topics:          topics,
		Entities:        map[string][]string{"persons": {}, "organizations": {}, "dates": dates, "locations": {}},
		KeyThemes:       nil,
		ComplexityScore: complexity,
		SummaryContext:  fmt.Sprintf("Document: %s (%d characters)", filename, len(text)),
	}
}

func uniqueStrings(ss []string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, s := range ss {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}
