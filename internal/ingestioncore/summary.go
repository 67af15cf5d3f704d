package ingestioncore

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/gif"
	_ "image/png"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/nfnt/resize"

	"vantage/internal/llm"
	"vantage/internal/llmclient"
	"vantage/internal/logging"
	"vantage/internal/textsplitters"
	"vantage/internal/util"
)

// SummaryResult is the parsed comprehensive-summary (spec §4.13 step 3):
// the canonical detailed_summary plus the extracted structured metadata
// used to populate a docrecord.Record.
type SummaryResult struct {
	Summary            string
	Keywords           string
	EntitiesStructured map[string][]string
	EntitiesFlat       []string
	Relationships      []Relationship
	Topics             []string
}

// Relationship is one RELATIONSHIPS-section triple (Entity1 | type | Entity2).
type Relationship struct {
	Source string
	Type   string
	Target string
}

// Summarizer generates the comprehensive summary per content type, using
// the same response-template prompting as ingestion.py's
// _process_{text,spreadsheet,image}_detailed, and falls back to a raw
// truncated excerpt on any LLM failure.
type Summarizer struct {
	LLM                *llmclient.Client
	Model              string
	MaxSummaryLength   int
	MaxContentLength   int
	ImageMaxDimension  int
}

// Summarize dispatches on content type; imagePath is non-empty only for
// ContentImage content.
func (s *Summarizer) Summarize(ctx context.Context, content ExtractedContent, filename string) SummaryResult {
	switch content.ContentType {
	case "image":
		return s.summarizeImage(ctx, content.ImagePath, filename)
	case "spreadsheet":
		return s.summarizeWithPrompt(ctx, buildSpreadsheetPrompt(content.Text), content.Text, filename, false)
	default:
		return s.summarizeText(ctx, content.Text, filename)
	}
}

func (s *Summarizer) summarizeText(ctx context.Context, text, filename string) SummaryResult {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < 50 {
		return SummaryResult{Summary: fmt.Sprintf("Document: %s", filename), Keywords: stemKeywords(filename)}
	}
	return s.summarizeWithPrompt(ctx, buildTextPrompt(text), text, filename, true)
}

func (s *Summarizer) summarizeWithPrompt(ctx context.Context, prompt, rawText, filename string, think bool) SummaryResult {
	res, err := s.LLM.Call(ctx, llmclient.CallOptions{
		Model:       s.Model,
		Prompt:      prompt,
		Temperature: 0.3,
		Think:       think,
		Timeout:     180 * time.Second,
	})
	if err != nil {
		logging.Log.WithError(err).WithField("file", filename).Warn("ingestioncore: summary generation failed, using raw excerpt")
		return SummaryResult{Summary: excerpt(rawText, 2000), Keywords: stemKeywords(filename)}
	}
	parsed := ParseDetailedResponse(res.Text)
	if parsed.Summary == "" {
		parsed.Summary = excerpt(rawText, 2000)
	}
	return parsed
}

func (s *Summarizer) summarizeImage(ctx context.Context, path, filename string) SummaryResult {
	const maxRetries = 5
	maxDim := s.ImageMaxDimension
	if maxDim <= 0 {
		maxDim = 1024
	}

	data, err := os.ReadFile(path)
	if err != nil || len(data) == 0 {
		return SummaryResult{Summary: fmt.Sprintf("Image file: %s. Unable to read file.", filename), Keywords: stemKeywords(filename), Topics: []string{"image"}}
	}
	data = resizeIfLarge(data, maxDim)

	prompt := imageAnalysisPrompt
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		res, err := s.LLM.Call(ctx, llmclient.CallOptions{
			Model:       s.Model,
			Messages:    []llm.Message{{Role: "user", Content: prompt, Images: []llm.GeneratedImage{{Data: data, MIMEType: "image/jpeg"}}}},
			Temperature: 0.3,
			Timeout:     90 * time.Second,
			MaxRetries:  1,
		})
		if err != nil {
			lastErr = err
			backoffSleep(attempt)
			continue
		}
		summary := strings.TrimSpace(res.Text)
		if len(summary) < 20 {
			lastErr = fmt.Errorf("ingestioncore: image caption too short")
			backoffSleep(attempt)
			continue
		}
		if strings.Contains(summary, "SUMMARY:") {
			parsed := ParseDetailedResponse(summary)
			if parsed.Summary != "" {
				return parsed
			}
		}
		return SummaryResult{Summary: summary, Keywords: extractKeywordsHeuristic(summary), Topics: []string{"image"}}
	}
	logging.Log.WithError(lastErr).WithField("file", filename).Warn("ingestioncore: image captioning exhausted retries")
	return SummaryResult{
		Summary:  fmt.Sprintf("Image file: %s. Unable to generate detailed description.", filename),
		Keywords: stemKeywords(filename),
		Topics:   []string{"image"},
	}
}

func backoffSleep(attempt int) {
	time.Sleep(time.Duration(1<<attempt) * time.Second)
}

// resizeIfLarge mirrors ingestion.py's PIL resize: shrink so the longer
// side is at most maxDim, re-encoded as JPEG quality 85. Falls back to the
// original bytes if decoding fails (unsupported/corrupt image).
func resizeIfLarge(data []byte, maxDim int) []byte {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return data
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	longest := w
	if h > longest {
		longest = h
	}
	if longest <= maxDim {
		return data
	}
	ratio := float64(maxDim) / float64(longest)
	newW := uint(float64(w) * ratio)
	newH := uint(float64(h) * ratio)
	resized := resize.Resize(newW, newH, img, resize.Lanczos3)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: 85}); err != nil {
		return data
	}
	return buf.Bytes()
}

const imageAnalysisPrompt = `Analyze this image COMPREHENSIVELY and provide a VERY DETAILED description.

Your description should cover ALL of the following in detail:

1. Main Subject: What is the primary focus? Describe it thoroughly.
2. All Visible Elements: List and describe every object, person, element visible
3. Text Content: Transcribe all visible text exactly as it appears
4. Visual Details: Colors, composition, style, quality, lighting
5. Context & Purpose: What is this image about? What is it used for?
6. Identifiable Information: Logos, brands, dates, names, locations

Provide a comprehensive description (minimum 3-5 detailed paragraphs) that captures everything someone might want to search for in this image.

Respond in this format:
SUMMARY:
[Your very detailed multi-paragraph description]

KEYWORDS: [keyword1, keyword2, keyword3, ...]

TOPICS: [topic1, topic2, topic3, ...]`

func buildTextPrompt(text string) string {
	const maxLength = 10000
	truncated := truncateAtSentence(text, maxLength)
	return fmt.Sprintf(`You are an expert document analyst. Create a COMPREHENSIVE summary of this document.

Your summary should be detailed and thorough (5-10 paragraphs), covering:

## Executive Summary
What is this document? What is its main purpose?

## Key Content
Describe the main sections, topics, and content in detail.

## Important Information
- Key facts, figures, statistics, and data points
- Important dates, deadlines, or timeframes
- Specific amounts, quantities, or measurements

---
DOCUMENT CONTENT:
%s
---

Respond in this EXACT format:

SUMMARY:
[Your comprehensive multi-paragraph summary - be detailed and thorough, 5-10 paragraphs]

KEYWORDS: [keyword1, keyword2, keyword3, keyword4, keyword5, ...]

ENTITIES_STRUCTURED:
PERSON: [name1, name2]
SKILLS: [skill1, skill2, skill3, ...]
COMPANIES: [company1, company2, ...]
EDUCATION: [university1, degree1, ...]
LOCATIONS: [location1, location2, ...]
DATES: [date1, date2, ...]
PROJECTS: [project1, project2, ...]
TECHNOLOGIES: [tech1, tech2, ...]

RELATIONSHIPS:
[Entity1 | relationship_type | Entity2]

TOPICS: [topic1, topic2, topic3, ...]`, truncated)
}

func buildSpreadsheetPrompt(description string) string {
	return fmt.Sprintf(`Analyze this spreadsheet and provide a detailed summary:

%s

Respond in this EXACT format:

SUMMARY:
[Describe what this spreadsheet contains, its purpose, the data structure, key columns, and any patterns or insights you can identify. Be comprehensive - 3-5 paragraphs.]

KEYWORDS: [keyword1, keyword2, keyword3, ...]

ENTITIES: [any specific names, dates, or identifiers found in the data]

TOPICS: [data themes and subject areas]`, description)
}

var (
	reSummary  = regexp.MustCompile(`(?is)SUMMARY:\s*(.+?)(?:KEYWORDS:|$)`)
	reKeywords = regexp.MustCompile(`(?is)KEYWORDS:\s*(.+?)(?:ENTITIES|RELATIONSHIPS:|TOPICS:|$)`)
	reEntitiesStructured = regexp.MustCompile(`(?is)ENTITIES_STRUCTURED:\s*(.+?)(?:RELATIONSHIPS:|TOPICS:|$)`)
	reEntitiesFlat       = regexp.MustCompile(`(?is)ENTITIES:\s*(.+?)(?:RELATIONSHIPS:|TOPICS:|$)`)
	reRelationships      = regexp.MustCompile(`(?is)RELATIONSHIPS:\s*(.+?)(?:TOPICS:|$)`)
	reTopics             = regexp.MustCompile(`(?is)TOPICS:\s*(.+?)$`)
	reBrackets           = regexp.MustCompile(`[\[\]]`)

	entityCategories = []string{"PERSON", "SKILLS", "COMPANIES", "EDUCATION", "LOCATIONS", "DATES", "PROJECTS", "TECHNOLOGIES"}
)

// ParseDetailedResponse ports ingestion.py's _parse_detailed_response:
// section-by-section regex extraction of the comprehensive-summary
// response template (spec §4.13 step 3).
func ParseDetailedResponse(response string) SummaryResult {
	var out SummaryResult

	if m := reSummary.FindStringSubmatch(response); m != nil {
		out.Summary = strings.TrimSpace(m[1])
	}
	if m := reKeywords.FindStringSubmatch(response); m != nil {
		out.Keywords = strings.TrimSpace(reBrackets.ReplaceAllString(m[1], ""))
	}

	structured := make(map[string][]string)
	if m := reEntitiesStructured.FindStringSubmatch(response); m != nil {
		section := m[1]
		for _, category := range entityCategories {
			items := matchCategoryItems(section, category)
			if len(items) > 0 {
				structured[strings.ToLower(category)] = items
				out.EntitiesFlat = append(out.EntitiesFlat, items...)
			}
		}
	}
	if len(structured) == 0 {
		if m := reEntitiesFlat.FindStringSubmatch(response); m != nil {
			text := strings.TrimSpace(reBrackets.ReplaceAllString(m[1], ""))
			flat := splitCleanList(text, 30)
			out.EntitiesFlat = flat
			structured = AutoCategorizeEntities(flat)
		}
	}
	out.EntitiesStructured = structured

	if m := reRelationships.FindStringSubmatch(response); m != nil {
		for _, line := range strings.Split(strings.TrimSpace(m[1]), "\n") {
			line = strings.TrimSpace(line)
			if !strings.Contains(line, "|") {
				continue
			}
			parts := strings.Split(line, "|")
			if len(parts) < 3 {
				continue
			}
			out.Relationships = append(out.Relationships, Relationship{
				Source: strings.Trim(strings.TrimSpace(parts[0]), "[]"),
				Type:   strings.ReplaceAll(strings.ToLower(strings.TrimSpace(parts[1])), " ", "_"),
				Target: strings.Trim(strings.TrimSpace(parts[2]), "[]"),
			})
			if len(out.Relationships) >= 15 {
				break
			}
		}
	}

	if m := reTopics.FindStringSubmatch(response); m != nil {
		text := strings.TrimSpace(reBrackets.ReplaceAllString(m[1], ""))
		var topics []string
		for _, t := range strings.Split(text, ",") {
			t = strings.ToLower(strings.TrimSpace(t))
			if t != "" {
				topics = append(topics, t)
			}
		}
		if len(topics) > 10 {
			topics = topics[:10]
		}
		out.Topics = topics
	}

	return out
}

func matchCategoryItems(section, category string) []string {
	bracketed := regexp.MustCompile(`(?i)` + category + `:\s*\[([^\]]*)\]`)
	if m := bracketed.FindStringSubmatch(section); m != nil {
		return splitCleanList(m[1], 15)
	}
	plain := regexp.MustCompile(`(?i)` + category + `:\s*([^\n]+)`)
	if m := plain.FindStringSubmatch(section); m != nil {
		return splitCleanList(m[1], 15)
	}
	return nil
}

func splitCleanList(text string, limit int) []string {
	text = strings.TrimSpace(reBrackets.ReplaceAllString(text, ""))
	var out []string
	for _, item := range strings.Split(text, ",") {
		item = strings.Trim(strings.TrimSpace(item), `"'`)
		if item == "" || item == "..." || item == ".." || strings.EqualFold(item, "etc") {
			continue
		}
		out = append(out, item)
		if len(out) >= limit {
			break
		}
	}
	return out
}

var (
	skillKeywords = []string{"python", "java", "javascript", "react", "sql", "aws", "docker", "kubernetes",
		"machine learning", "ai", "ml", "api", "html", "css", "node", "fastapi", "django"}
	eduKeywords      = []string{"university", "college", "institute", "school", "degree", "bachelor", "master", "phd"}
	companySuffixes  = []string{"inc", "llc", "ltd", "corp", "company", "technologies", "solutions", "services"}
)

// AutoCategorizeEntities ports ingestion.py's _auto_categorize_entities:
// simple keyword-based categorization used when the model's response
// omits the structured ENTITIES_STRUCTURED section.
func AutoCategorizeEntities(entities []string) map[string][]string {
	categorized := map[string][]string{}
	for _, entity := range entities {
		lower := strings.ToLower(entity)
		switch {
		case containsAny(lower, skillKeywords):
			categorized["skills"] = append(categorized["skills"], entity)
		case containsAny(lower, eduKeywords):
			categorized["education"] = append(categorized["education"], entity)
		case containsAny(lower, companySuffixes):
			categorized["companies"] = append(categorized["companies"], entity)
		case len(strings.Fields(entity)) <= 3 && entity != "" && isUpper(rune(entity[0])):
			categorized["persons"] = append(categorized["persons"], entity)
		default:
			categorized["other"] = append(categorized["other"], entity)
		}
	}
	for k, v := range categorized {
		if len(v) == 0 {
			delete(categorized, k)
		}
	}
	return categorized
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

func isUpper(r rune) bool { return r >= 'A' && r <= 'Z' }

func stemKeywords(filename string) string {
	stem := filename
	if i := strings.LastIndexByte(stem, '.'); i >= 0 {
		stem = stem[:i]
	}
	stem = strings.ReplaceAll(stem, "_", " ")
	stem = strings.ReplaceAll(stem, "-", " ")
	return stem
}

func extractKeywordsHeuristic(text string) string {
	words := strings.Fields(text)
	seen := make(map[string]bool)
	var out []string
	for _, w := range words {
		w = strings.ToLower(strings.Trim(w, ".,;:!?\"'"))
		if len(w) < 4 || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
		if len(out) >= 8 {
			break
		}
	}
	return strings.Join(out, ", ")
}

func excerpt(text string, n int) string {
	if len(text) <= n {
		return text
	}
	return text[:n]
}

// truncateAtSentence caps text at maxChars without cutting mid-sentence,
// falling back to a hard excerpt if the text has no sentence boundaries
// (e.g. a single long run-on line). Logs the pre-truncation token estimate
// for the ingestion stage timing/size summary.
func truncateAtSentence(text string, maxChars int) string {
	tokens := util.CountTokens(text)
	if len(text) <= maxChars {
		return text
	}
	logging.Log.WithField("tokens", tokens).WithField("chars", len(text)).Debug("ingestioncore: truncating oversized document for summarization prompt")

	splitter, err := textsplitters.NewFromConfig(textsplitters.Config{
		Kind:     textsplitters.KindSentences,
		Boundary: textsplitters.BoundaryConfig{Unit: textsplitters.UnitChars, Size: maxChars},
	})
	if err != nil {
		return excerpt(text, maxChars) + "..."
	}
	chunks := splitter.Split(text)
	if len(chunks) == 0 {
		return excerpt(text, maxChars) + "..."
	}
	return chunks[0] + "..."
}
