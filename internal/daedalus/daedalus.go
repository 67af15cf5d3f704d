package daedalus

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"vantage/internal/llmclient"
	"vantage/internal/logging"
	"vantage/internal/retrieve"
	"vantage/internal/stepbus"
	"vantage/internal/zeus"
)

const agentName = "🏛️ Daedalus (The Architect)"

// ProcessedDocument caches one attached document's analysis and insights
// for the lifetime of the Orchestrator, keyed by document ID — mirroring
// daedalus_orchestrator.py's _processed_cache, which skips re-running
// Hypatia/Mnemosyne on a document already seen this conversation.
type ProcessedDocument struct {
	ID          string
	Filename    string
	RawText     string
	Analysis    Analysis
	Insights    Insights
	ProcessedAt time.Time
}

// Orchestrator is Daedalus: the document-attached query path. Grounded on
// original_source/backend/agents/document_agents/daedalus_orchestrator.py.
type Orchestrator struct {
	Hypatia   *Hypatia
	Mnemosyne *Mnemosyne
	LLM       *llmclient.Client
	Model     string
	Bus       *stepbus.Bus

	mu    sync.Mutex
	cache map[string]ProcessedDocument
}

// New constructs a Daedalus orchestrator around its two sub-specialists.
func New(hypatia *Hypatia, mnemosyne *Mnemosyne, llm *llmclient.Client, model string, bus *stepbus.Bus) *Orchestrator {
	return &Orchestrator{Hypatia: hypatia, Mnemosyne: mnemosyne, LLM: llm, Model: model, Bus: bus, cache: make(map[string]ProcessedDocument)}
}

func (o *Orchestrator) addStep(steps *[]stepbus.Event, sessionID, action, details string) {
	ev := stepbus.Event{Type: stepbus.EventStep, Agent: agentName, Action: action, Details: details, Timestamp: time.Now()}
	*steps = append(*steps, ev)
	if o.Bus != nil && sessionID != "" {
		o.Bus.Emit(sessionID, ev)
	}
	logging.Log.WithField("agent", agentName).WithField("action", action).Info(details)
}

// ProcessQuery implements zeus.DocumentPipeline: process every attached
// document (from cache where possible), build a combined context, and
// answer the query against it.
func (o *Orchestrator) ProcessQuery(ctx context.Context, query string, attached []zeus.AttachedDocument, history []zeus.HistoryTurn) (zeus.DocumentResponse, error) {
	var steps []stepbus.Event
	if len(attached) == 0 {
		o.addStep(&steps, "", "No Documents", "No attached documents to process")
		return zeus.DocumentResponse{
			Answer:        "No documents were attached to analyze.",
			Confidence:    0.3,
			AgentsUsed:    []string{agentName},
			ThinkingSteps: steps,
		}, nil
	}

	processed := make([]ProcessedDocument, 0, len(attached))
	for _, doc := range attached {
		pd := o.processDocument(ctx, doc, &steps)
		processed = append(processed, pd)
	}

	o.addStep(&steps, "", "Synthesizing Answer", fmt.Sprintf("Combining context from %d document(s)", len(processed)))
	answer, confidence := o.answerQuery(ctx, query, processed, history)

	sources := make([]retrieve.Result, 0, len(processed))
	for _, pd := range processed {
		sources = append(sources, retrieve.Result{
			ID:      pd.ID,
			Snippet: pd.Insights.ExecutiveSummary,
			Metadata: map[string]string{
				"filename":      pd.Filename,
				"document_type": pd.Analysis.DocumentType,
			},
		})
	}

	return zeus.DocumentResponse{
		Answer:        answer,
		Sources:       sources,
		Confidence:    confidence,
		AgentsUsed:    []string{agentName, "🔬 Hypatia (The Analyzer)", "🗃️ Mnemosyne (The Archivist)"},
		ThinkingSteps: steps,
	}, nil
}

func (o *Orchestrator) processDocument(ctx context.Context, doc zeus.AttachedDocument, steps *[]stepbus.Event) ProcessedDocument {
	o.mu.Lock()
	if cached, ok := o.cache[doc.ID]; ok {
		o.mu.Unlock()
		o.addStep(steps, "", "Using Cache", fmt.Sprintf("%s already processed this session", doc.Filename))
		return cached
	}
	o.mu.Unlock()

	o.addStep(steps, "", "Analyzing Document", fmt.Sprintf("Running semantic analysis on %s", doc.Filename))
	analysis := o.Hypatia.Analyze(ctx, doc.RawText, doc.Filename)

	o.addStep(steps, "", "Extracting Insights", fmt.Sprintf("Extracting key insights from %s", doc.Filename))
	insights := o.Mnemosyne.ExtractInsights(ctx, doc.RawText, analysis.DocumentType)

	pd := ProcessedDocument{ID: doc.ID, Filename: doc.Filename, RawText: doc.RawText, Analysis: analysis, Insights: insights, ProcessedAt: time.Now()}

	o.mu.Lock()
	o.cache[doc.ID] = pd
	o.mu.Unlock()
	return pd
}

// ClearCache drops every cached ProcessedDocument, matching
// daedalus_orchestrator.py's clear_cache.
func (o *Orchestrator) ClearCache() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cache = make(map[string]ProcessedDocument)
}

func buildCombinedContext(processed []ProcessedDocument) string {
	var b strings.Builder
	for i, pd := range processed {
		fmt.Fprintf(&b, "--- Document %d: %s ---\n", i+1, pd.Filename)
		fmt.Fprintf(&b, "Type: %s\n", pd.Analysis.DocumentType)
		if pd.Insights.ExecutiveSummary != "" {
			fmt.Fprintf(&b, "Summary: %s\n", pd.Insights.ExecutiveSummary)
		}
		keyPoints := pd.Insights.KeyPoints
		if len(keyPoints) > 5 {
			keyPoints = keyPoints[:5]
		}
		for _, kp := range keyPoints {
			fmt.Fprintf(&b, "- %s\n", kp)
		}
		preview := pd.RawText
		if len(preview) > 2000 {
			preview = preview[:2000] + "..."
		}
		fmt.Fprintf(&b, "Content preview:\n%s\n\n", preview)
	}
	return b.String()
}

func formatDaedalusHistory(history []zeus.HistoryTurn, maxTurns int) string {
	if len(history) > maxTurns {
		history = history[len(history)-maxTurns:]
	}
	var b strings.Builder
	for _, h := range history {
		content := h.Content
		if len(content) > 300 {
			content = content[:300] + "..."
		}
		fmt.Fprintf(&b, "%s: %s\n", h.Role, content)
	}
	return b.String()
}

func (o *Orchestrator) answerQuery(ctx context.Context, query string, processed []ProcessedDocument, history []zeus.HistoryTurn) (string, float64) {
	if len(processed) == 0 {
		return "I don't have any document content to answer your question.", 0.2
	}
	docContext := buildCombinedContext(processed)
	historyText := formatDaedalusHistory(history, 6)

	prompt := fmt.Sprintf(`You are answering a question about the attached document(s).

%s

Recent conversation:
%s

Question: %s

Instructions:
1. Answer directly from the document content above.
2. If the documents don't contain the answer, say so plainly.
3. Cite which document your answer comes from when there is more than one.
4. Be concise but complete.
5. Use the conversation history only for context, not as a source of facts.
6. Do not invent information not present in the documents.`, docContext, historyText, query)

	res, err := o.LLM.Call(ctx, llmclient.CallOptions{
		Model:       o.Model,
		Prompt:      prompt,
		Temperature: 0.3,
		Fallback:    "I encountered an issue analyzing the documents. Please try rephrasing your question.",
	})
	if err != nil {
		logging.Log.WithError(err).Error("daedalus: answer generation failed")
		return "I encountered an issue analyzing the documents. Please try rephrasing your question.", 0.2
	}
	answer := strings.TrimSpace(res.Text)
	confidence := 0.5
	if len(answer) > 50 {
		confidence = 0.8
	}
	return answer, confidence
}
