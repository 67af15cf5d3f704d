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

// Insights is Mnemosyne's insight-extraction result shape.
type Insights struct {
	ExecutiveSummary string   `json:"executive_summary"`
	DetailedSummary  string   `json:"detailed_summary"`
	KeyPoints        []string `json:"key_points"`
	KeyFacts         []string `json:"key_facts"`
	ImportantQuotes  []string `json:"important_quotes"`
	ActionItems      []string `json:"action_items"`
	DatesDeadlines   []string `json:"dates_deadlines"`
	QuestionsAnswers []string `json:"questions_answers"`
	NumericalData    []string `json:"numerical_data"`
}

// Mnemosyne is the insight-extraction specialist: summaries, key points,
// facts, quotes, action items, dates, and numerical data.
type Mnemosyne struct {
	LLM   *llmclient.Client
	Model string
}

// ExtractInsights performs LLM-based insight extraction, falling back to
// sentence-split and regex heuristics on any LLM or parse failure.
func (m *Mnemosyne) ExtractInsights(ctx context.Context, rawText, docType string) Insights {
	prompt := buildInsightsPrompt(rawText, docType)
	res, err := m.LLM.Call(ctx, llmclient.CallOptions{Model: m.Model, Prompt: prompt, JSON: true, Temperature: 0.2, Think: true})
	if err != nil {
		logging.Log.WithError(err).Warn("mnemosyne: extraction failed, using fallback")
		return fallbackInsights(rawText)
	}
	var ins Insights
	if err := json.Unmarshal([]byte(res.Text), &ins); err != nil {
		logging.Log.WithError(err).Warn("mnemosyne: extraction response was not valid JSON, using fallback")
		return fallbackInsights(rawText)
	}
	if ins.ExecutiveSummary == "" {
		ins.ExecutiveSummary = ins.DetailedSummary
	}
	return ins
}

func buildInsightsPrompt(text, docType string) string {
	const maxChars = 8000
	truncated := text
	if len(truncated) > maxChars {
		truncated = truncated[:maxChars] + "..."
	}
	return fmt.Sprintf(`Extract detailed insights from this %s document.

Content:
%s

Provide extraction in JSON format:
{
    "executive_summary": "1-2 sentence high level summary",
    "detailed_summary": "thorough paragraph summary",
    "key_points": ["point1", "point2"],
    "key_facts": ["fact1", "fact2"],
    "important_quotes": ["quote1"],
    "action_items": ["action1"],
    "dates_deadlines": ["date/deadline 1"],
    "questions_answers": ["Q: ... A: ..."],
    "numerical_data": ["figure 1"]
}

Respond ONLY with valid JSON, no other text.`, docType, truncated)
}

var sentenceSplit = regexp.MustCompile(`(?:[.!?])\s+`)
var bulletLine = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s+(.+)`)
var numberPattern = regexp.MustCompile(`\$?\b\d[\d,]*\.?\d*%?\b`)

// fallbackInsights is Mnemosyne's rule-based fallback: a sentence-split
// summary from the first few sentences, numbered/bulleted-line key points,
// and regex-based date/number extraction from the first 1000 characters.
func fallbackInsights(text string) Insights {
	sentences := sentenceSplit.Split(strings.TrimSpace(text), -1)
	summary := ""
	if len(sentences) > 0 {
		n := 2
		if len(sentences) < n {
			n = len(sentences)
		}
		summary = strings.Join(sentences[:n], ". ")
	}
	detailed := summary
	if len(sentences) > 2 {
		n := 5
		if len(sentences) < n {
			n = len(sentences)
		}
		detailed = strings.Join(sentences[:n], ". ")
	}

	lines := strings.Split(text, "\n")
	if len(lines) > 50 {
		lines = lines[:50]
	}
	var keyPoints []string
	for _, line := range lines {
		if m := bulletLine.FindStringSubmatch(line); m != nil {
			keyPoints = append(keyPoints, strings.TrimSpace(m[1]))
		}
	}

	sample := text
	if len(sample) > 1000 {
		sample = sample[:1000]
	}
	dates := uniqueStrings(datePattern.FindAllString(sample, -1))
	numbers := uniqueStrings(numberPattern.FindAllString(sample, -1))
	if len(numbers) > 10 {
		numbers = numbers[:10]
	}

	return Insights{
		ExecutiveSummary: summary,
		DetailedSummary:  detailed,
		KeyPoints:        keyPoints,
		DatesDeadlines:   dates,
		NumericalData:    numbers,
	}
}
