// Command vantage-ingest is the batch-ingestion entrypoint for the
// Ingestion Core (spec §4.13): it turns a directory of source files into
// indexed, summarized, embedded docrecord.Records and pushes their
// entities into the knowledge graph, without going through the HTTP
// service or a filesystem watcher.
//
// Grounded on cmd/embedctl/main.go's flag-based CLI idiom (config.Load,
// flag.Parse, fail loud via log.Fatal) and internal/ingestioncore's
// Pipeline, which this command is the first genuine caller of.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"vantage/internal/config"
	"vantage/internal/graph"
	"vantage/internal/ingestioncore"
	"vantage/internal/llm/providers"
	"vantage/internal/llmclient"
	"vantage/internal/logging"
	"vantage/internal/modelmanager"
	"vantage/internal/persistence/databases"
	"vantage/internal/retrieve"
)

func main() {
	log.SetFlags(0)
	var (
		dir         = flag.String("dir", "", "directory to ingest (required)")
		file        = flag.String("file", "", "single file to ingest, instead of -dir")
		concurrency = flag.Int("concurrency", 4, "concurrent files in flight for -dir")
		failedLog   = flag.String("failed-log", "ingestion_failures.log", "path to append failed-ingestion entries to")
	)
	flag.Parse()

	if *dir == "" && *file == "" {
		log.Fatal("one of -dir or -file is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	dbManager, err := databases.NewManager(ctx, cfg.Databases)
	if err != nil {
		log.Fatalf("init storage backends: %v", err)
	}
	defer dbManager.Close()
	adapter := retrieve.New(dbManager.Search, dbManager.Vector)

	provider, err := providers.Build(cfg, http.DefaultClient)
	if err != nil {
		log.Fatalf("build llm provider: %v", err)
	}
	models := modelmanager.New(modelmanager.Policy{}, nil)
	llm := llmclient.New(provider, models)
	textModel := cfg.Vantage.Ollama.TextModel
	if textModel == "" {
		textModel = cfg.OpenAI.Model
	}

	var kgStore *graph.Graph
	pgPool, err := optionalPgPool(ctx, cfg.Vantage.Postgres.DSN)
	if err != nil {
		logging.Log.WithError(err).Warn("vantage-ingest: postgres unavailable, knowledge graph push degrades to in-memory")
	}
	if pgPool != nil {
		kgStore = graph.New(databases.NewPostgresGraph(pgPool))
	} else {
		kgStore = graph.New(databases.NewMemoryGraph())
	}

	pipeline := ingestioncore.New(adapter, kgStore, llm, textModel, cfg.Embedding, cfg.Vantage.IngestionTuning, cfg.Vantage.Models.EmbeddingDimension, *failedLog)

	if *file != "" {
		rec, err := pipeline.ProcessFile(ctx, *file)
		if err != nil {
			log.Fatalf("ingest %s: %v", *file, err)
		}
		log.Printf("ingested %s as %s", *file, rec.ID)
		return
	}

	status := func(path string, ok bool, err error) {
		if ok {
			log.Printf("ok    %s", path)
		} else {
			log.Printf("fail  %s: %v", path, err)
		}
	}
	processed, failed := pipeline.ProcessDirectory(ctx, *dir, cfg.Vantage.Watcher.SupportedExtensions, *concurrency, status)
	log.Printf("done: %d processed, %d failed", processed, failed)
	if failed > 0 {
		os.Exit(1)
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
