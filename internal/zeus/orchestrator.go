package zeus

import (
	"context"
	"fmt"
	"strings"
	"time"

	"vantage/internal/adaptive"
	"vantage/internal/apollo"
	"vantage/internal/classifier"
	"vantage/internal/docrecord"
	"vantage/internal/llmclient"
	"vantage/internal/logging"
	"vantage/internal/odysseus"
	"vantage/internal/retrieve"
	"vantage/internal/sisyphus"
	"vantage/internal/specialists"
	"vantage/internal/stepbus"
	"vantage/internal/themis"
)

// Orchestrator is Zeus, The Conductor: the single entry point that routes
// a query either to the Document Pipeline (attached documents present and
// resolvable) or through the Search Pipeline's fixed node sequence.
type Orchestrator struct {
	Classifier   *classifier.Classifier
	Clarifier    *specialists.Clarifier
	Analyst      *specialists.Analyst
	Summarizer   *specialists.Summarizer
	Explainer    *specialists.Explainer
	Critic       *specialists.Critic
	Retrieval    *retrieve.Adapter
	Corrective   *sisyphus.Controller
	Documents    DocumentPipeline
	Memory       InteractionRecorder
	Sessions     SessionBacker
	Preferences  *PreferenceStore
	LLM          *llmclient.Client
	Model        string
	Bus          *stepbus.Bus
	StepTimeout  time.Duration

	// GraphRAG is Apollo, the graph-enhanced retrieval collaborator (spec
	// §4.10). Nil is valid: query expansion is simply skipped.
	GraphRAG *apollo.Agent
	// Planner is Odysseus, the reasoning/decomposition collaborator (spec
	// §4.10), used on the analysis route for queries complex enough to
	// need multi-step retrieval. Nil is valid: routing falls back to the
	// single-pass Analyst.
	Planner *odysseus.Planner
}

// New builds an Orchestrator over already-constructed collaborators. Any
// of Documents, Memory, Bus may be nil.
func New(
	cl *classifier.Classifier,
	clar *specialists.Clarifier,
	an *specialists.Analyst,
	sm *specialists.Summarizer,
	ex *specialists.Explainer,
	cr *specialists.Critic,
	retr *retrieve.Adapter,
	corrective *sisyphus.Controller,
	docs DocumentPipeline,
	memory InteractionRecorder,
	bus *stepbus.Bus,
	llm *llmclient.Client,
	model string,
) *Orchestrator {
	return &Orchestrator{
		Classifier:  cl,
		Clarifier:   clar,
		Analyst:     an,
		Summarizer:  sm,
		Explainer:   ex,
		Critic:      cr,
		Retrieval:   retr,
		Corrective:  corrective,
		Documents:   docs,
		Memory:      memory,
		Sessions:    NewSessionStore(10, time.Hour),
		Preferences: NewPreferenceStore(0.2),
		LLM:         llm,
		Model:       model,
		Bus:         bus,
	}
}

const (
	agentZeus      = "⚡ Zeus (The Conductor)"
	agentMemory    = "🧠 Memory"
	agentAthena    = "🦉 Athena (The Strategist)"
	agentSearch    = "🔍 Search Agent"
	agentSocrates  = "🤔 Socrates (The Inquirer)"
	agentAristotle = "📊 Aristotle (The Analyst)"
	agentThoth     = "📜 Thoth (The Scribe)"
	agentHermes    = "📨 Hermes (The Messenger)"
	agentDiogenes  = "🔎 Diogenes (The Critic)"
	agentLLM       = "💬 LLM"
	agentDaedalus  = "🏛️ Daedalus (The Architect)"
	agentProteus   = "🌊 Proteus (The Shape-Shifter)"
	agentApollo    = "📚 Apollo (The Illuminated One)"
	agentOdysseus  = "🧭 Odysseus (The Strategic Planner)"
)

func (o *Orchestrator) addStep(state *WorkflowState, agent, action, details string) {
	ev := stepbus.Event{Type: stepbus.EventStep, Agent: agent, Action: action, Message: details, Details: details, Timestamp: time.Now()}
	state.Steps = append(state.Steps, ev)
	if o.Bus != nil {
		o.Bus.Emit(state.SessionID, ev)
	}
	logging.Log.WithField("agent", agent).WithField("action", action).Info(details)
}

// ProcessQuery is Zeus's entry point (spec §4.11).
func (o *Orchestrator) ProcessQuery(ctx context.Context, userID, sessionID, query, conversationID string, attachedDocuments []string, history []HistoryTurn) Response {
	start := time.Now()
	state := &WorkflowState{
		UserID:              userID,
		SessionID:           sessionID,
		ConversationID:      conversationID,
		Query:               query,
		ConversationHistory: history,
	}
	o.addStep(state, agentZeus, "Receiving Query", fmt.Sprintf("Processing: %q", truncate50(query)))

	var resp Response
	if len(attachedDocuments) > 0 {
		resp = o.routeToDaedalus(ctx, state, attachedDocuments)
	} else {
		resp = o.routeToAthena(ctx, state)
	}
	resp.TotalTime = time.Since(start).Seconds()
	resp.Steps = state.Steps
	return resp
}

func truncate50(s string) string {
	if len(s) > 50 {
		return s[:50] + "..."
	}
	return s
}

// routeToDaedalus resolves attached document IDs through the Retrieval
// Adapter and, if any resolve, hands off to the Document Pipeline;
// otherwise it falls back to the Search Pipeline (spec §4.11).
func (o *Orchestrator) routeToDaedalus(ctx context.Context, state *WorkflowState, attached []string) Response {
	o.addStep(state, agentZeus, "Routing to Daedalus", fmt.Sprintf("Documents attached (%d) - activating document pipeline", len(attached)))

	var resolved []AttachedDocument
	for _, id := range attached {
		if o.Retrieval == nil {
			continue
		}
		rec := o.Retrieval.GetDocument(id)
		if rec == nil {
			logging.Log.WithField("document_id", id).Warn("zeus: could not resolve attached document")
			continue
		}
		raw := rec.FullContent
		if raw == "" {
			raw = rec.DetailedSummary
		}
		resolved = append(resolved, AttachedDocument{ID: id, Path: rec.FilePath, Filename: rec.Filename, RawText: raw})
	}

	if len(resolved) == 0 || o.Documents == nil {
		o.addStep(state, agentZeus, "Fallback", "No valid documents found - routing to Athena")
		return o.routeToAthena(ctx, state)
	}

	o.addStep(state, agentDaedalus, "Activating", fmt.Sprintf("Processing %d document(s)", len(resolved)))
	dr, err := o.Documents.ProcessQuery(ctx, state.Query, resolved, state.ConversationHistory)
	if err != nil {
		logging.Log.WithError(err).Error("zeus: daedalus processing failed")
		o.addStep(state, agentZeus, "Error Recovery", "Daedalus failed - routing to Athena")
		return o.routeToAthena(ctx, state)
	}

	state.Steps = append(state.Steps, dr.ThinkingSteps...)
	return Response{
		Status:          "success",
		ResponseMessage: dr.Answer,
		Results:         dr.Sources,
		Count:           len(dr.Sources),
		Intent:          "document_query",
		Confidence:      dr.Confidence,
		AgentsUsed:      dr.AgentsUsed,
		DocumentMode:    true,
		RoutingPath:     "Zeus → Daedalus → Prometheus → Hypatia → Mnemosyne",
	}
}

// routeToAthena runs the Search Pipeline's fixed node sequence.
func (o *Orchestrator) routeToAthena(ctx context.Context, state *WorkflowState) Response {
	o.addStep(state, agentZeus, "Routing to Athena", "No documents attached - activating intent classification")

	o.loadContextNode(ctx, state)
	o.classifyNode(ctx, state)

	switch routeByIntent(state.Intent, state.Confidence) {
	case "clarification":
		o.clarifyNode(ctx, state)
	case "general_knowledge":
		o.generalAnswerNode(ctx, state)
	case "analysis":
		o.documentSearchNode(ctx, state)
		o.analyzeNode(ctx, state)
	case "summarization":
		o.documentSearchNode(ctx, state)
		o.summarizeNode(ctx, state)
	default: // document_search
		o.documentSearchNode(ctx, state)
		o.explainNode(ctx, state)
	}

	if len(state.Results) > 0 {
		o.qualityCheckNode(ctx, state)
	}
	o.generateResponseNode(ctx, state)

	o.Sessions.AddTurn(state.SessionID, state.Query, string(state.Intent), docTypesOf(state.Results))

	if o.Memory != nil {
		var quality, confidence any
		if state.QualityEvaluation != nil {
			quality = state.QualityEvaluation.QualityScore
		}
		confidence = computeConfidence(state)
		if err := o.Memory.RecordInteraction(ctx, state.UserID, state.SessionID, state.Query, state.ResponseMessage,
			state.Results, string(state.Intent), state.SearchTime, map[string]any{"quality_score": quality, "confidence": confidence}); err != nil {
			logging.Log.WithError(err).Warn("zeus: recording interaction failed")
		}
	}

	return Response{
		Status:                 "success",
		ResponseMessage:        state.ResponseMessage,
		Results:                state.Results,
		Count:                  len(state.Results),
		Intent:                 string(state.Intent),
		Confidence:             computeConfidence(state),
		Steps:                  state.Steps,
		SearchTime:             state.SearchTime,
		RoutingPath:            routingPath(string(state.Intent)),
		Suggestions:            state.Suggestions,
		ClarificationQuestions: state.ClarificationQuestions,
	}
}

func docTypesOf(results []retrieve.Result) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, r := range results {
		if r.Record == nil {
			continue
		}
		dt := string(r.Record.DocType)
		if dt == "" {
			continue
		}
		if _, ok := seen[dt]; !ok {
			seen[dt] = struct{}{}
			out = append(out, dt)
		}
	}
	return out
}

// computeConfidence delegates to Themis, the dedicated confidence-scoring
// collaborator (spec §4.10), rather than the Critic's own pure helper
// (internal/specialists.CalculateConfidenceScore, kept for critic_agent.py
// parity but not part of the production confidence path).
func computeConfidence(state *WorkflowState) float64 {
	if len(state.Results) == 0 {
		return 0
	}
	var quality *themis.QualitySource
	if state.QualityEvaluation != nil {
		quality = &themis.QualitySource{QualityScore: state.QualityEvaluation.QualityScore}
	}
	return themis.ScoreAnswerConfidence(state.ResponseMessage, state.Results[0].Score, len(state.Results), quality)
}

// routeByIntent mirrors _route_by_intent: confidence below 0.3 forces
// clarification regardless of the classified intent.
func routeByIntent(intent classifier.Intent, confidence float64) string {
	if confidence < 0.3 {
		return "clarification"
	}
	switch intent {
	case classifier.IntentGeneralKnowledge, classifier.IntentSystemMeta:
		return "general_knowledge"
	case classifier.IntentClarificationNeeded:
		return "clarification"
	case classifier.IntentComparison, classifier.IntentAnalysis:
		return "analysis"
	case classifier.IntentSummarization:
		return "summarization"
	default:
		return "document_search"
	}
}

// routingPath mirrors _get_routing_path's string table.
func routingPath(intent string) string {
	paths := map[string]string{
		string(classifier.IntentDocumentSearch):      "Zeus → Athena → Search → Hermes → Diogenes",
		string(classifier.IntentGeneralKnowledge):     "Zeus → Athena → LLM → Diogenes",
		string(classifier.IntentComparison):            "Zeus → Athena → Search → Aristotle → Diogenes",
		string(classifier.IntentAnalysis):              "Zeus → Athena → Search → Aristotle → Diogenes",
		string(classifier.IntentSummarization):         "Zeus → Athena → Search → Thoth → Diogenes",
		"clarification_needed":                         "Zeus → Athena → Socrates",
	}
	if p, ok := paths[intent]; ok {
		return p
	}
	return "Zeus → Athena → Default"
}

func (o *Orchestrator) loadContextNode(ctx context.Context, state *WorkflowState) {
	o.addStep(state, agentMemory, "Loading Context", "Retrieving session history")
	if o.Sessions != nil {
		state.SessionContext = o.Sessions.Derive(state.SessionID)
	}
	if o.Preferences != nil {
		state.UserPreferences = o.Preferences.Get(state.UserID)
	}
}

func (o *Orchestrator) classifyNode(ctx context.Context, state *WorkflowState) {
	o.addStep(state, agentAthena, "Analyzing Intent", "Query: "+state.Query)
	if o.Classifier == nil {
		state.Intent = classifier.IntentDocumentSearch
		return
	}
	sessCtx := &classifier.Context{RecentQueries: state.SessionContext.RecentQueries}
	result := o.Classifier.Classify(ctx, state.Query, sessCtx)
	state.Intent = result.Intent
	state.Confidence = result.Confidence
	state.Filters = result.Filters
	state.Entities = result.Entities
	o.addStep(state, agentAthena, "Intent Detected", fmt.Sprintf("%s (confidence: %.2f)", result.Intent, result.Confidence))
}

func (o *Orchestrator) documentSearchNode(ctx context.Context, state *WorkflowState) {
	o.addStep(state, agentSearch, "Searching", "Performing hybrid vector + keyword search")
	start := time.Now()

	state.RetrievalStrategy = adaptive.Classify(state.Query)
	o.addStep(state, agentProteus, "Strategy Selected",
		fmt.Sprintf("%s (confidence: %.2f) — %s", state.RetrievalStrategy.Primary, state.RetrievalStrategy.Confidence, state.RetrievalStrategy.Reasoning))

	filters := retrieve.Filters{}
	for k, v := range state.Filters {
		filters[k] = v
	}

	if o.Corrective == nil {
		state.Results = nil
		state.SearchTime = time.Since(start).Seconds()
		return
	}

	step := func(agent, status, detail string) { o.addStep(state, agent, status, detail) }
	corrected := o.Corrective.RetrieveWithCorrection(ctx, state.Query, filters, state.UserID, step)
	state.Results = corrected.FinalResults
	state.SearchTime = time.Since(start).Seconds()

	if o.Preferences != nil {
		o.Preferences.Observe(state.UserID, state.UserPreferences.VectorWeight, corrected.FinalQuality)
	}

	o.addStep(state, agentSearch, "Results Found", fmt.Sprintf("%d documents retrieved", len(state.Results)))

	strategyParams := adaptive.GetStrategyParams(state.RetrievalStrategy.Primary)
	if strategyParams.UseGraph && o.GraphRAG != nil && len(state.Entities) > 0 {
		expansion := o.GraphRAG.EnhanceRetrieval(ctx, state.Query, state.Entities, state.Results)
		state.GraphExpansion = &expansion
		o.addStep(state, agentApollo, "Graph Expansion",
			fmt.Sprintf("expanded %d entities (confidence %.2f)", len(expansion.Expansion.ExpandedEntities), expansion.Confidence))
	}
}

func (o *Orchestrator) formatHistory(history []HistoryTurn, maxTurns int) string {
	if len(history) == 0 {
		return ""
	}
	recent := history
	if len(recent) > maxTurns {
		recent = recent[len(recent)-maxTurns:]
	}
	var b strings.Builder
	b.WriteString("Previous conversation:\n")
	for _, h := range recent {
		role := "User"
		if h.Role != "user" {
			role = "Assistant"
		}
		content := h.Content
		if len(content) > 500 {
			content = content[:500]
		}
		fmt.Fprintf(&b, "%s: %s\n", role, content)
	}
	b.WriteString("\n")
	return b.String()
}

func (o *Orchestrator) generalAnswerNode(ctx context.Context, state *WorkflowState) {
	if len(state.ConversationHistory) > 0 {
		o.addStep(state, agentMemory, "Loading Context", fmt.Sprintf("Using %d previous messages", len(state.ConversationHistory)))
	}
	o.addStep(state, agentLLM, "Generating Answer", "Using general knowledge")

	if o.LLM == nil {
		state.ResponseMessage = "Hello! I'm here to help you search your documents."
		return
	}
	prompt := fmt.Sprintf("You are a helpful AI assistant.\n%sUser: %s\n\nAssistant:", o.formatHistory(state.ConversationHistory, 6), state.Query)
	res, err := o.LLM.Call(ctx, llmclient.CallOptions{
		Model: o.Model, Prompt: prompt, Temperature: 0.7, MaxRetries: 3,
		Fallback: "I'm having trouble right now. Please try again.",
	})
	if err != nil {
		logging.Log.WithError(err).Warn("zeus: general_answer failed")
		state.ResponseMessage = "Hello! I'm here to help you search your documents."
		return
	}
	state.ResponseMessage = res.Text
}

func (o *Orchestrator) clarifyNode(ctx context.Context, state *WorkflowState) {
	o.addStep(state, agentSocrates, "Generating Questions", "Query was ambiguous")
	if o.Clarifier == nil {
		return
	}
	info := specialists.AmbiguityInfo{Issues: []string{"ambiguous intent"}}
	questions := o.Clarifier.GenerateClarifyingQuestions(ctx, state.Query, info, 3)
	state.ClarificationQuestions = questions
	o.addStep(state, agentSocrates, "Questions Generated", fmt.Sprintf("%d questions", len(questions)))
	state.ResponseMessage = "I need some clarification to help you better:"
}

func toRecords(results []retrieve.Result) []docrecord.Record {
	out := make([]docrecord.Record, 0, len(results))
	for _, r := range results {
		if r.Record != nil {
			out = append(out, *r.Record)
		}
	}
	return out
}

func (o *Orchestrator) analyzeNode(ctx context.Context, state *WorkflowState) {
	o.addStep(state, agentAristotle, "Analyzing Documents", "Comparing and extracting insights")

	if o.Planner != nil && odysseus.DetectComplexity(state.Query) != "simple" {
		o.reasoningNode(ctx, state)
	}

	if o.Analyst == nil || len(state.Results) < 2 {
		return
	}
	docs := toRecords(state.Results)
	top := docs
	if len(top) > 3 {
		top = top[:3]
	}
	comparison := o.Analyst.CompareDocuments(ctx, top, "")
	state.ComparisonResult = &comparison
	o.addStep(state, agentAristotle, "Comparison Complete", "Compared top documents")

	insights := o.Analyst.GenerateInsights(ctx, docs, state.Query)
	state.Insights = insights
	o.addStep(state, agentAristotle, "Insights Generated", fmt.Sprintf("%d insights", len(insights)))
}

// reasoningNode runs Odysseus's decompose/retrieve/synthesize loop for
// queries complex enough to warrant multi-step retrieval (spec §4.10).
// Each sub-query is answered by re-running the same corrective search the
// document_search route already uses, so Odysseus adds planning and
// synthesis on top rather than a second retrieval mechanism.
func (o *Orchestrator) reasoningNode(ctx context.Context, state *WorkflowState) {
	o.addStep(state, agentOdysseus, "Planning", "Decomposing complex query into sub-queries")

	retriever := func(ctx context.Context, sq odysseus.SubQuery) (odysseus.SubAnswer, error) {
		if o.Corrective == nil {
			return odysseus.SubAnswer{}, fmt.Errorf("no retrieval controller configured")
		}
		corrected := o.Corrective.RetrieveWithCorrection(ctx, sq.Query, retrieve.Filters{}, state.UserID, nil)
		if len(corrected.FinalResults) == 0 {
			return odysseus.SubAnswer{SubQuery: sq, Answer: "no matching documents found"}, nil
		}
		var sources []string
		var b strings.Builder
		top := corrected.FinalResults
		if len(top) > 3 {
			top = top[:3]
		}
		for _, r := range top {
			sources = append(sources, r.ID)
			if r.Record != nil {
				fmt.Fprintf(&b, "%s: %s\n", r.Record.Filename, truncate50(r.Record.DetailedSummary))
			}
		}
		return odysseus.SubAnswer{SubQuery: sq, Answer: b.String(), Sources: sources}, nil
	}

	synthesized, ok := o.Planner.ExecuteReasoningLoop(ctx, state.Query, retriever)
	if !ok {
		return
	}
	state.ReasoningPlan = &synthesized
	o.addStep(state, agentOdysseus, "Synthesized", fmt.Sprintf("%d sub-queries answered", len(synthesized.SubAnswers)))
}

func (o *Orchestrator) summarizeNode(ctx context.Context, state *WorkflowState) {
	o.addStep(state, agentThoth, "Summarizing", "Generating comprehensive summary")
	if o.Summarizer == nil || len(state.Results) == 0 {
		return
	}
	summary := o.Summarizer.SummarizeDocuments(ctx, toRecords(state.Results), specialists.SummaryComprehensive)
	state.Summary = summary.Text
	o.addStep(state, agentThoth, "Summary Generated", "Created comprehensive summary")
}

func (o *Orchestrator) explainNode(ctx context.Context, state *WorkflowState) {
	o.addStep(state, agentHermes, "Explaining Results", "Generating relevance explanations")
	if o.Explainer == nil {
		return
	}
	var explanations []string
	top := state.Results
	if len(top) > 3 {
		top = top[:3]
	}
	for i, r := range top {
		if r.Record == nil {
			continue
		}
		explanations = append(explanations, o.Explainer.ExplainRanking(ctx, state.Query, *r.Record, i+1, r.Score))
	}
	state.Explanations = explanations
	o.addStep(state, agentHermes, "Explanations Ready", fmt.Sprintf("Explained top %d results", len(explanations)))
}

func (o *Orchestrator) qualityCheckNode(ctx context.Context, state *WorkflowState) {
	o.addStep(state, agentDiogenes, "Reviewing Quality", "Checking for relevance")
	if o.Critic == nil {
		return
	}
	docs := toRecords(state.Results)
	eval := o.Critic.EvaluateResults(ctx, state.Query, docs)
	state.QualityEvaluation = &eval
	state.ShouldReformulate = eval.ShouldReformulate
	state.Suggestions = specialists.SuggestImprovements(state.Query, docs, eval)
	o.addStep(state, agentDiogenes, "Quality Check Complete", fmt.Sprintf("Score: %.2f", eval.QualityScore))
}

func (o *Orchestrator) generateResponseNode(ctx context.Context, state *WorkflowState) {
	o.addStep(state, agentZeus, "Finalizing", "Constructing final response")

	if len(state.ClarificationQuestions) > 0 {
		var b strings.Builder
		b.WriteString("I need some clarification:\n")
		for _, q := range state.ClarificationQuestions {
			fmt.Fprintf(&b, "• %s\n", q)
		}
		state.ResponseMessage = strings.TrimRight(b.String(), "\n")
		return
	}
	if state.ResponseMessage != "" && state.Intent == classifier.IntentGeneralKnowledge {
		return
	}
	if state.Summary != "" {
		state.ResponseMessage = fmt.Sprintf("**Summary of %d documents:**\n\n%s", len(state.Results), state.Summary)
		return
	}
	if state.ReasoningPlan != nil && state.ReasoningPlan.Answer != "" {
		state.ResponseMessage = state.ReasoningPlan.Answer
		return
	}
	if state.ComparisonResult != nil && state.ComparisonResult.Error == "" {
		state.ResponseMessage = fmt.Sprintf("**Comparison of documents:**\n\n**Similarities:** %s\n**Differences:** %s",
			strings.Join(state.ComparisonResult.Similarities, ", "), strings.Join(state.ComparisonResult.Differences, ", "))
		return
	}
	if len(state.Results) > 0 {
		count := len(state.Results)
		plural := "s"
		if count == 1 {
			plural = ""
		}
		state.ResponseMessage = fmt.Sprintf("I found %d relevant document%s for your query.", count, plural)
		return
	}
	state.ResponseMessage = fmt.Sprintf("I couldn't find any documents matching %q. Try different keywords.", state.Query)
}
