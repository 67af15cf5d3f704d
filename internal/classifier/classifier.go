// Package classifier implements Athena, the query intent classifier
// (spec §4.7): a two-stage pipeline of follow-up resolution, fixed
// priority rule-based classification, and an LLM fallback below
// confidence 0.8.
//
// Grounded on original_source/backend/agents/query_classifier.py: the
// keyword lists, priority order, follow-up patterns, entity-extraction
// regexes, and filter-extraction tables are ported verbatim in meaning
// and reimplemented in Go idiom (regexp instead of re, structs instead
// of dataclasses) using vantage/internal/llmclient for the LLM stage,
// following the teacher's internal/specialists Agent.Inference pattern
// for calling out to a model.
package classifier

import (
	"context"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"vantage/internal/llmclient"
	"vantage/internal/logging"
)

// Intent enumerates the query intents from spec §4.7.
type Intent string

const (
	IntentDocumentSearch      Intent = "document_search"
	IntentGeneralKnowledge    Intent = "general_knowledge"
	IntentSystemMeta          Intent = "system_meta"
	IntentComparison          Intent = "comparison"
	IntentSummarization       Intent = "summarization"
	IntentAnalysis            Intent = "analysis"
	IntentClarificationNeeded Intent = "clarification_needed"
)

// Context carries session history used for follow-up resolution.
type Context struct {
	RecentQueries []string
}

// Result is the classifier's output contract from spec §4.7.
type Result struct {
	Intent                  Intent
	Confidence              float64
	Filters                 map[string]any
	Entities                []string
	ClarificationQuestions  []string
	IsFollowup              bool
	ResolvedQuery           string
	Reasoning               string
}

// Classifier is Athena.
type Classifier struct {
	LLM   *llmclient.Client
	Model string

	docKeywords       []string
	imageKeywords     []string
	generalKeywords   []string
	comparisonKeywords []string
	summaryKeywords   []string
}

// New constructs a Classifier; llm may be nil, in which case the LLM
// fallback stage is skipped and the rule-based result is always returned.
func New(llm *llmclient.Client, model string) *Classifier {
	return &Classifier{
		LLM:   llm,
		Model: model,
		docKeywords: []string{
			"find", "search", "show", "show me", "get", "give me", "list",
			"document", "file", "invoice", "contract", "report",
			"spreadsheet", "image", "images", "photo", "photos", "picture", "pictures",
			"pdf", "where is", "locate", "my", "our", "the",
		},
		imageKeywords: []string{
			"image", "images", "photo", "photos", "picture", "pictures",
			"screenshot", "screenshots", "pic", "pics",
		},
		generalKeywords: []string{
			"what is", "who is", "how to", "explain", "define", "tell me about",
			"why does", "how does", "when did",
		},
		comparisonKeywords: []string{
			"compare", "difference", "versus", "vs", "better", "contrast",
			"similarities", "which one",
		},
		summaryKeywords: []string{
			"summarize", "summary", "overview", "recap", "all documents about",
			"everything about", "compile", "aggregate",
		},
	}
}

// Classify runs the two-stage pipeline: follow-up resolution, then
// rule-based classification, falling back to the LLM only when rule
// confidence is below 0.8.
func (c *Classifier) Classify(ctx context.Context, query string, sess *Context) Result {
	resolved, isFollowup := resolveFollowup(query, sess)
	entities := ExtractEntities(resolved)

	rule := c.ruleBasedClassify(resolved)
	if len(rule.Entities) == 0 {
		rule.Entities = entities
	}
	rule.IsFollowup = isFollowup
	if isFollowup {
		rule.ResolvedQuery = resolved
	}

	if rule.Confidence >= 0.8 || c.LLM == nil {
		return rule
	}

	llmResult, err := c.llmClassify(ctx, resolved)
	if err != nil {
		logging.Log.WithError(err).Warn("classifier: llm classification failed, using rule-based result")
		return rule
	}
	llmResult.Entities = unionStrings(llmResult.Entities, entities)
	llmResult.IsFollowup = isFollowup
	if isFollowup {
		llmResult.ResolvedQuery = resolved
	}
	return llmResult
}

// resolveFollowup implements spec §4.7 stage 1, ported from
// query_classifier.py's _resolve_followup: four fixed patterns, checked
// in order, each requiring at least one recent query in session.
func resolveFollowup(query string, sess *Context) (string, bool) {
	if sess == nil || len(sess.RecentQueries) == 0 {
		return query, false
	}
	qLower := strings.ToLower(query)
	last := sess.RecentQueries[len(sess.RecentQueries)-1]

	for _, phrase := range []string{"show more", "more like", "similar", "like that", "like those"} {
		if strings.Contains(qLower, phrase) {
			return last + " (more results)", true
		}
	}

	for _, phrase := range []string{"but only", "only the", "just the", "filter by", "filter to"} {
		if idx := strings.Index(qLower, phrase); idx >= 0 {
			filterPart := strings.TrimSpace(qLower[idx+len(phrase):])
			return last + " " + filterPart, true
		}
	}

	if len(strings.Fields(query)) <= 3 {
		for _, pron := range []string{"that", "it", "those", "this"} {
			if strings.Contains(qLower, pron) {
				return last, true
			}
		}
	}

	if strings.HasPrefix(qLower, "what about") {
		newTerm := strings.TrimSpace(query[len("what about"):])
		return last + " " + newTerm, true
	}

	return query, false
}

// ruleBasedClassify implements spec §4.7 stage 2's fixed priority order,
// ported from query_classifier.py's _rule_based_classify.
func (c *Classifier) ruleBasedClassify(query string) Result {
	qLower := strings.ToLower(query)

	if containsAny(qLower, "how does this work", "how do i", "what can you", "can you help") {
		return Result{Intent: IntentSystemMeta, Confidence: 0.9, Reasoning: "System help query"}
	}

	// Priority 1: image/photo keywords + a search verb.
	if containsAny(qLower, c.imageKeywords...) && containsAny(qLower, "show", "find", "search", "get", "give", "list", "locate") {
		return Result{
			Intent:     IntentDocumentSearch,
			Confidence: 0.95,
			Filters:    ExtractFilters(query),
			Reasoning:  "Image/photo search in local files detected",
		}
	}

	// Priority 2: comparison.
	if containsAny(qLower, c.comparisonKeywords...) {
		return Result{Intent: IntentComparison, Confidence: 0.85, Reasoning: "Comparison keywords detected"}
	}

	// Priority 3: summarization.
	if containsAny(qLower, c.summaryKeywords...) {
		return Result{Intent: IntentSummarization, Confidence: 0.85, Reasoning: "Summarization keywords detected"}
	}

	// Priority 4: possessive/action + document keyword.
	hasPossessive := containsAny(qLower, "my", "our", "the")
	hasDocKeyword := containsAny(qLower, c.docKeywords...)
	if hasDocKeyword && (hasPossessive || containsAny(qLower, "show", "find", "search", "locate")) {
		return Result{
			Intent:     IntentDocumentSearch,
			Confidence: 0.85,
			Filters:    ExtractFilters(query),
			Reasoning:  "Document search keywords with possessive/action detected",
		}
	}

	// Priority 5: general knowledge, unless doc keywords are also present.
	if containsAny(qLower, c.generalKeywords...) {
		if hasDocKeyword {
			return Result{Intent: IntentDocumentSearch, Confidence: 0.7, Reasoning: "Has both general and doc keywords - defaulting to doc search"}
		}
		return Result{Intent: IntentGeneralKnowledge, Confidence: 0.75, Reasoning: "General knowledge question pattern"}
	}

	return Result{Intent: IntentDocumentSearch, Confidence: 0.6, Reasoning: "Default to local file search"}
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// llmClassify is the structured-output fallback for low-confidence rule
// results, ported from _llm_classify's prompt/schema.
func (c *Classifier) llmClassify(ctx context.Context, query string) (Result, error) {
	prompt := buildClassifyPrompt(query)
	res, err := c.LLM.Call(ctx, llmclient.CallOptions{
		Model:       c.Model,
		Prompt:      prompt,
		JSON:        true,
		Temperature: 0.1,
	})
	if err != nil {
		return Result{}, err
	}

	var parsed struct {
		Intent                 string         `json:"intent"`
		Confidence             float64        `json:"confidence"`
		Reasoning              string         `json:"reasoning"`
		Entities               []string       `json:"entities"`
		Filters                map[string]any `json:"filters"`
		ClarificationQuestions []string       `json:"clarification_questions"`
	}
	block := llmclient.ExtractJSONBlock(res.Text)
	if block == "" {
		block = res.Text
	}
	if err := json.Unmarshal([]byte(block), &parsed); err != nil {
		return Result{}, err
	}

	intent := Intent(strings.ToLower(parsed.Intent))
	if !validIntent(intent) {
		logging.Log.WithField("intent", parsed.Intent).Warn("classifier: unknown LLM intent, defaulting to document_search")
		intent = IntentDocumentSearch
	}
	confidence := parsed.Confidence
	if confidence == 0 {
		confidence = 0.7
	}
	// spec §8: "the LLM path never returns confidence < 0 or > 1."
	if confidence < 0 {
		confidence = 0
	} else if confidence > 1 {
		confidence = 1
	}

	return Result{
		Intent:                 intent,
		Confidence:             confidence,
		Entities:               parsed.Entities,
		Filters:                parsed.Filters,
		ClarificationQuestions: parsed.ClarificationQuestions,
		Reasoning:              parsed.Reasoning,
	}, nil
}

func validIntent(i Intent) bool {
	switch i {
	case IntentDocumentSearch, IntentGeneralKnowledge, IntentSystemMeta, IntentComparison,
		IntentSummarization, IntentAnalysis, IntentClarificationNeeded:
		return true
	}
	return false
}

func buildClassifyPrompt(query string) string {
	var b strings.Builder
	b.WriteString("You are a query classifier for a personal document search system. Classify the user's query.\n\n")
	b.WriteString("IMPORTANT: This is a LOCAL document search system, NOT a web search engine.\n\n")
	b.WriteString("Query: \"" + query + "\"\n\n")
	b.WriteString(`Return valid JSON: {"intent": "...", "confidence": 0.0-1.0, "reasoning": "...", "entities": [], "filters": {}, "clarification_questions": []}`)
	return b.String()
}

// NeedsClarification ports query_classifier.py's needs_clarification.
func NeedsClarification(r Result) bool {
	return r.Intent == IntentClarificationNeeded || r.Confidence < 0.4 || len(r.ClarificationQuestions) > 0
}

// AgentInfo describes the downstream specialist recommended for an intent.
type AgentInfo struct {
	Name      string
	Title     string
	NextAgent string
}

// GetAgentForIntent ports query_classifier.py's get_agent_for_intent, used
// by spec §3's supplemented "explain which specialist will handle this"
// operation.
func GetAgentForIntent(intent Intent) AgentInfo {
	switch intent {
	case IntentDocumentSearch:
		return AgentInfo{Name: "Search Agent", Title: "Document Search", NextAgent: "Hermes"}
	case IntentGeneralKnowledge:
		return AgentInfo{Name: "LLM", Title: "General Knowledge", NextAgent: "Diogenes"}
	case IntentComparison, IntentAnalysis:
		return AgentInfo{Name: "Aristotle", Title: "The Analyst", NextAgent: "Diogenes"}
	case IntentSummarization:
		return AgentInfo{Name: "Thoth", Title: "The Scribe", NextAgent: "Diogenes"}
	case IntentClarificationNeeded:
		return AgentInfo{Name: "Socrates", Title: "The Inquirer"}
	case IntentSystemMeta:
		return AgentInfo{Name: "LLM", Title: "System Help"}
	default:
		return AgentInfo{Name: "Search Agent", Title: "Default", NextAgent: "Hermes"}
	}
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(append([]string{}, a...), b...) {
		key := strings.ToLower(s)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	return out
}

var (
	quotedRe        = regexp.MustCompile(`"([^"]+)"|'([^']+)'`)
	possessiveRe    = regexp.MustCompile(`\b([A-Z][a-zA-Z]+)'s\b`)
	multiWordRe     = regexp.MustCompile(`\b([A-Z][a-z]+(?:\s+[A-Z][a-z]+){1,2})\b`)
	cleanWordRe     = regexp.MustCompile(`[^\w]`)
	isoDateRe       = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)
	yearOnlyRe      = regexp.MustCompile(`\b\d{4}\b`)
	monthYearRe     = regexp.MustCompile(`(?i)\b(?:January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{4}\b`)
	monthYearAbbrRe = regexp.MustCompile(`(?i)\b(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)\s+\d{4}\b`)
	aboutRe         = regexp.MustCompile(`(?i)about\s+([a-zA-Z\s]+?)(?:\s+(?:in|from|for|by|with)|$)`)
	relatedToRe     = regexp.MustCompile(`(?i)related to\s+([a-zA-Z\s]+?)(?:\s+(?:in|from|for|by|with)|$)`)
	containingRe    = regexp.MustCompile(`(?i)containing\s+([a-zA-Z\s]+?)(?:\s+(?:in|from|for|by)|$)`)
)

var skipWords = map[string]struct{}{
	"I": {}, "A": {}, "The": {}, "This": {}, "That": {}, "What": {}, "Where": {}, "When": {},
	"Which": {}, "How": {}, "Find": {}, "Show": {}, "Search": {}, "Get": {}, "Give": {},
	"List": {}, "All": {}, "My": {}, "Our": {},
}

var titleSkipWords = map[string]struct{}{
	"The": {}, "This": {}, "That": {}, "What": {}, "Where": {}, "When": {}, "Which": {}, "How": {},
}

// ExtractEntities ports query_classifier.py's extract_entities: quoted
// phrases, possessives, multi-word capitalized names, standalone
// capitalized words, date patterns, and "about X"/"related to X" topics,
// deduplicated case-insensitively while preserving first-seen order.
func ExtractEntities(query string) []string {
	var entities []string

	for _, m := range quotedRe.FindAllStringSubmatch(query, -1) {
		phrase := m[1]
		if phrase == "" {
			phrase = m[2]
		}
		if phrase != "" {
			entities = append(entities, phrase)
		}
	}

	for _, m := range possessiveRe.FindAllStringSubmatch(query, -1) {
		entities = append(entities, m[1])
	}

	for _, m := range multiWordRe.FindAllStringSubmatch(query, -1) {
		if _, skip := titleSkipWords[m[1]]; !skip {
			entities = append(entities, m[1])
		}
	}

	words := strings.Fields(query)
	for i, w := range words {
		clean := cleanWordRe.ReplaceAllString(w, "")
		if clean == "" || !isUpperFirst(clean) {
			continue
		}
		if _, skip := skipWords[clean]; skip {
			continue
		}
		if i == 0 {
			continue
		}
		entities = appendIfAbsent(entities, clean)
	}

	for _, re := range []*regexp.Regexp{isoDateRe, monthYearRe, monthYearAbbrRe, yearOnlyRe} {
		entities = append(entities, re.FindAllString(query, -1)...)
	}

	for _, re := range []*regexp.Regexp{aboutRe, relatedToRe, containingRe} {
		for _, m := range re.FindAllStringSubmatch(query, -1) {
			topic := strings.TrimSpace(m[1])
			if len(topic) > 2 {
				entities = appendIfAbsent(entities, topic)
			}
		}
	}

	seen := make(map[string]struct{}, len(entities))
	out := make([]string, 0, len(entities))
	for _, e := range entities {
		key := strings.ToLower(e)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, e)
	}
	return out
}

func appendIfAbsent(list []string, v string) []string {
	for _, x := range list {
		if strings.EqualFold(x, v) {
			return list
		}
	}
	return append(list, v)
}

func isUpperFirst(s string) bool {
	r := []rune(s)
	return len(r) > 0 && r[0] >= 'A' && r[0] <= 'Z'
}

var fileTypeMap = []struct {
	keyword string
	exts    []string
}{
	{"pdf", []string{".pdf"}},
	{"word", []string{".docx", ".doc"}},
	{"excel", []string{".xlsx", ".xls"}},
	{"spreadsheet", []string{".xlsx", ".xls", ".csv"}},
	{"image", []string{".png", ".jpg", ".jpeg", ".gif", ".bmp", ".webp"}},
	{"photo", []string{".png", ".jpg", ".jpeg"}},
	{"picture", []string{".png", ".jpg", ".jpeg"}},
	{"video", []string{".mp4", ".avi", ".mov", ".mkv"}},
	{"audio", []string{".mp3", ".wav", ".flac"}},
	{"presentation", []string{".pptx", ".ppt"}},
	{"text", []string{".txt", ".md"}},
	{"code", []string{".py", ".js", ".ts", ".java", ".cpp", ".c"}},
}

var docTypeMap = []struct {
	keyword string
	docType string
}{
	{"invoice", "invoice"}, {"contract", "contract"}, {"report", "report"},
	{"receipt", "invoice"}, {"agreement", "contract"}, {"resume", "resume"},
	{"cv", "resume"}, {"proposal", "proposal"}, {"memo", "memo"}, {"letter", "letter"},
}

// ExtractFilters ports query_classifier.py's _extract_filters: first
// matching file-type keyword wins, then first matching doc-type keyword,
// then time filters.
func ExtractFilters(query string) map[string]any {
	qLower := strings.ToLower(query)
	filters := map[string]any{}

	for _, e := range fileTypeMap {
		if strings.Contains(qLower, e.keyword) {
			filters["file_type"] = e.exts
			break
		}
	}
	for _, e := range docTypeMap {
		if strings.Contains(qLower, e.keyword) {
			filters["document_type"] = e.docType
			break
		}
	}
	if tf := ExtractTimeFilters(query); tf != nil {
		for k, v := range tf {
			filters[k] = v
		}
	}
	if len(filters) == 0 {
		return nil
	}
	return filters
}

var relativeDaysRe = regexp.MustCompile(`(?i)(?:last|past)\s+(\d+)\s+days?`)
var relativeWeeksRe = regexp.MustCompile(`(?i)(?:last|past)\s+(\d+)\s+weeks?`)
var relativeMonthsRe = regexp.MustCompile(`(?i)(?:last|past)\s+(\d+)\s+months?`)
var quarterRe = regexp.MustCompile(`(?i)q([1-4])(?:\s+(\d{4}))?`)
var rangeRe = regexp.MustCompile(`(?i)from\s+(\w+)\s+to\s+(\w+)`)

var monthNames = []string{
	"january", "february", "march", "april", "may", "june",
	"july", "august", "september", "october", "november", "december",
}

// ExtractTimeFilters ports query_classifier.py's _extract_time_filters.
func ExtractTimeFilters(query string) map[string]any {
	qLower := strings.ToLower(query)

	if m := relativeDaysRe.FindStringSubmatch(qLower); m != nil {
		return map[string]any{"relative": "last_" + m[1] + "_days"}
	}
	if m := relativeWeeksRe.FindStringSubmatch(qLower); m != nil {
		return map[string]any{"relative": "last_" + m[1] + "_weeks"}
	}
	if m := relativeMonthsRe.FindStringSubmatch(qLower); m != nil {
		return map[string]any{"relative": "last_" + m[1] + "_months"}
	}
	for phrase, tr := range map[string]string{
		"last month": "last_month", "this month": "this_month",
		"last week": "last_week", "this week": "this_week",
		"today": "today", "yesterday": "yesterday",
		"last year": "last_year", "this year": "this_year",
	} {
		if strings.Contains(qLower, phrase) {
			return map[string]any{"time_range": tr}
		}
	}
	if strings.Contains(qLower, "recent") {
		return map[string]any{"time_range": "last_week"}
	}

	if m := quarterRe.FindStringSubmatch(qLower); m != nil {
		year := m[2]
		if year == "" {
			year = "2024"
		}
		return map[string]any{"quarter": "Q" + m[1], "year": year}
	}

	for i, month := range monthNames {
		re := regexp.MustCompile(month + `\s+(\d{4})`)
		if m := re.FindStringSubmatch(qLower); m != nil {
			return map[string]any{"month": i + 1, "year": m[1]}
		}
		if strings.Contains(qLower, month) {
			return map[string]any{"month": i + 1}
		}
	}

	if m := yearOnlyRe.FindString(qLower); m != "" {
		if _, err := strconv.Atoi(m); err == nil && strings.HasPrefix(m, "20") {
			return map[string]any{"year": m}
		}
	}

	if m := rangeRe.FindStringSubmatch(qLower); m != nil {
		return map[string]any{"range_start": m[1], "range_end": m[2]}
	}

	return nil
}
