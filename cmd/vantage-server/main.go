// Command vantage-server is the HTTP service entrypoint for the
// search-and-answer control plane (spec §6). It loads configuration,
// wires every collaborator described in SPEC_FULL.md §0's module layout,
// and serves the four external endpoints until signaled to shut down.
//
// Grounded on the teacher's service-wiring idiom (config.Load, then
// construct each subsystem and hand it to an http.Server), generalized
// from manifold's playground service to Zeus/Daedalus/Sisyphus et al.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"vantage/internal/apollo"
	"vantage/internal/classifier"
	"vantage/internal/config"
	"vantage/internal/convo"
	"vantage/internal/daedalus"
	"vantage/internal/embedding"
	"vantage/internal/feedback"
	"vantage/internal/graph"
	"vantage/internal/httpapi"
	"vantage/internal/llmclient"
	"vantage/internal/logging"
	"vantage/internal/modelmanager"
	"vantage/internal/observability"
	"vantage/internal/odysseus"
	"vantage/internal/persistence/databases"
	"vantage/internal/reranker"
	"vantage/internal/retrieve"
	"vantage/internal/sisyphus"
	"vantage/internal/specialists"
	"vantage/internal/stepbus"
	"vantage/internal/zeus"

	llmprovider "vantage/internal/llm/providers"
)

func main() {
	if err := run(); err != nil {
		logging.Log.WithError(err).Fatal("vantage-server: fatal startup error")
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loaded, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg := &loaded

	if cfg.Obs.OTLP != "" {
		shutdown, err := observability.InitOTel(ctx, cfg.Obs)
		if err != nil {
			logging.Log.WithError(err).Warn("vantage-server: OTel init failed, continuing without tracing/metrics")
		} else {
			defer func() { _ = shutdown(context.Background()) }()
		}
	}

	// Retrieval engine and the LLM are the only non-optional collaborators
	// (spec §7). Everything else degrades to a no-op when unconfigured.
	dbManager, err := databases.NewManager(ctx, cfg.Databases)
	if err != nil {
		return fmt.Errorf("init storage backends: %w", err)
	}
	defer dbManager.Close()

	provider, err := llmprovider.Build(*cfg, http.DefaultClient)
	if err != nil {
		return fmt.Errorf("build llm provider: %w", err)
	}

	modelPolicy := modelmanager.Policy{
		AutoUnload:     cfg.Vantage.ModelManagement.AutoUnload,
		KeepBothLoaded: cfg.Vantage.ModelManagement.KeepBothLoaded,
		UnloadAfter:    time.Duration(cfg.Vantage.ModelManagement.UnloadAfterSeconds) * time.Second,
	}
	models := modelmanager.New(modelPolicy, nil)
	llm := llmclient.New(provider, models)
	textModel := firstNonEmpty(cfg.Vantage.Ollama.TextModel, cfg.OpenAI.Model)

	retrieval := retrieve.New(dbManager.Search, dbManager.Vector)

	bus := stepbus.New(256)
	if cfg.Vantage.Kafka.Enabled {
		mirror, err := stepbus.NewKafkaMirror(cfg.Vantage.Kafka)
		if err != nil {
			logging.Log.WithError(err).Warn("vantage-server: kafka step mirror unavailable, continuing without it")
		} else {
			bus.SetMirror(mirror)
			defer mirror.Close()
		}
	}

	pgPool, err := optionalPgPool(ctx, cfg.Vantage.Postgres.DSN)
	if err != nil {
		logging.Log.WithError(err).Warn("vantage-server: postgres unavailable, feedback/conversations/graph degrade to no-ops")
	}
	var feedbackStore *feedback.Store
	var conversations *convo.Store
	var kgStore *graph.Graph
	if pgPool != nil {
		feedbackStore = feedback.New(pgPool)
		conversations = convo.New(pgPool)
		if err := conversations.Init(ctx); err != nil {
			logging.Log.WithError(err).Warn("vantage-server: conversation store schema init failed")
		}
		kgStore = graph.New(databases.NewPostgresGraph(pgPool))
	} else {
		kgStore = graph.New(databases.NewMemoryGraph())
	}

	crossEncoder := reranker.NewHTTPCrossEncoder(cfg.Vantage.Models, http.DefaultClient)
	rerank := reranker.New(crossEncoder, nil)

	cl := classifier.New(llm, textModel)
	clarifier := &specialists.Clarifier{LLM: llm, Model: textModel}
	analyst := &specialists.Analyst{LLM: llm, Model: textModel}
	summarizer := &specialists.Summarizer{LLM: llm, Model: textModel}
	explainer := &specialists.Explainer{LLM: llm, Model: textModel}
	critic := &specialists.Critic{LLM: llm, Model: textModel}

	search := buildSearchFunc(retrieval, rerank, feedbackStore, cfg.Vantage.Search, cfg.Embedding)
	corrective := sisyphus.New(search, critic, llm, textModel)

	hypatia := &daedalus.Hypatia{LLM: llm, Model: textModel}
	mnemosyne := &daedalus.Mnemosyne{LLM: llm, Model: textModel}
	documents := daedalus.New(hypatia, mnemosyne, llm, textModel, bus)

	orchestrator := zeus.New(cl, clarifier, analyst, summarizer, explainer, critic, retrieval, corrective, documents, nil, bus, llm, textModel)
	orchestrator.GraphRAG = apollo.New(kgStore)
	orchestrator.Planner = &odysseus.Planner{LLM: llm, Model: textModel}

	if cfg.Vantage.Redis.Enabled {
		redisSessions, err := zeus.NewRedisSessionStore(cfg.Vantage.Redis, cfg.Vantage.Memory.MaxRecentTurns, time.Duration(cfg.Vantage.Memory.SessionTTLSeconds)*time.Second)
		if err != nil {
			logging.Log.WithError(err).Warn("vantage-server: redis session store unavailable, using in-memory sessions")
		} else {
			orchestrator.Sessions = redisSessions
		}
	}

	server := httpapi.NewServer(orchestrator, bus, feedbackStore, conversations, cfg)

	addr := fmt.Sprintf(":%d", portOrDefault(cfg))
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 310 * time.Second, // accommodate SSE consumer timeout (spec §5, default 300s)
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Log.WithField("addr", addr).Info("vantage-server: listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logging.Log.Info("vantage-server: shutting down")
		shutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutCtx)
	case err := <-errCh:
		return err
	}
}

// buildSearchFunc composes the Retrieval Adapter's hybrid_search with the
// Reranker into a single sisyphus.SearchFunc, embedding the query text via
// the sentence-embedding collaborator first (spec §4.4/§4.5 pipeline).
// Feedback boosts (spec §4.6) are fetched once per call for the whole
// candidate set via feedback.BoostMap rather than per-candidate, per that
// type's documented intent.
func buildSearchFunc(retrieval *retrieve.Adapter, rerank *reranker.Reranker, feedbackStore *feedback.Store, search config.SearchConfig, embedCfg config.EmbeddingConfig) sisyphus.SearchFunc {
	return func(ctx context.Context, query string, filters retrieve.Filters, userID string) ([]retrieve.Result, error) {
		vectors, err := embedding.EmbedText(ctx, embedCfg, []string{query})
		var vec []float32
		if err == nil && len(vectors) == 1 {
			vec = vectors[0]
		}

		recallTopK := search.RecallTopK
		if recallTopK <= 0 {
			recallTopK = 50
		}
		var candidates []retrieve.Result
		var searchErr error
		if search.HybridEnabled {
			candidates, searchErr = retrieval.HybridSearch(ctx, query, vec, recallTopK, filters)
		} else {
			candidates, searchErr = retrieval.VectorSearch(ctx, vec, recallTopK, filters)
		}
		if searchErr != nil {
			return nil, searchErr
		}
		if len(candidates) == 0 {
			return candidates, nil
		}

		rerankTopK := search.RerankTopK
		if rerankTopK <= 0 {
			rerankTopK = 10
		}

		queryRerank := rerank
		if feedbackStore != nil && userID != "" {
			ids := make([]string, len(candidates))
			for i, c := range candidates {
				ids[i] = c.ID
			}
			boosts, err := feedbackStore.GetBoosts(ctx, userID, query, ids, 30)
			if err != nil {
				logging.Log.WithError(err).Warn("search: feedback boosts unavailable, reranking without them")
			} else {
				r := *rerank
				r.Feedback = feedback.BoostMap(boosts)
				queryRerank = &r
			}
		}

		scored, err := queryRerank.Rerank(ctx, userID, query, candidates, rerankTopK, 0)
		if err != nil {
			// Reranking is a quality enhancement, not a correctness
			// requirement (spec §7: degrade gracefully); fall back to the
			// fused retrieval order on any reranker failure.
			if rerankTopK < len(candidates) {
				return candidates[:rerankTopK], nil
			}
			return candidates, nil
		}
		out := make([]retrieve.Result, len(scored))
		for i, s := range scored {
			out[i] = s.Result
			out[i].Score = s.Boosted
		}
		return out, nil
	}
}

func optionalPgPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	if dsn == "" {
		return nil, nil
	}
	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	pool, err := pgxpool.New(cctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(cctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func portOrDefault(cfg *config.Config) int {
	if cfg.Port != 0 {
		return cfg.Port
	}
	return 8085
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
