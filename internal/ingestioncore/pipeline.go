package ingestioncore

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"vantage/internal/config"
	"vantage/internal/docrecord"
	"vantage/internal/embedding"
	"vantage/internal/graph"
	"vantage/internal/logging"
	"vantage/internal/llmclient"
	"vantage/internal/retrieve"
)

// StatusCallback reports per-file progress during a directory batch, per
// spec §4.13's batching semantics.
type StatusCallback func(path string, ok bool, err error)

// Pipeline is the Ingestion Core: it turns one source file into one
// docrecord.Record, idempotently, and indexes it. Grounded on
// original_source/backend/ingestion.py's IngestionPipeline.process_file,
// restructured into the teacher's staged-pipeline idiom
// (internal/rag/service/service.go's Ingest) with per-stage timing.
type Pipeline struct {
	Adapter   *retrieve.Adapter
	Graph     *graph.Graph // optional; nil disables the knowledge-graph push
	Summarizer *Summarizer
	EmbedCfg  config.EmbeddingConfig
	Tuning    config.IngestionTuningConfig
	// EmbeddingDimension is the configured vector width (config.ModelsConfig
	// .EmbeddingDimension); used to validate a successfully-computed
	// embedding before indexing.
	EmbeddingDimension int

	FailedLogPath string

	// embedMu serializes embedding calls the way modelmanager serializes
	// model load/unload: one in-flight embedding request at a time, since
	// the embedding backend is typically a single local model runtime.
	embedMu sync.Mutex
}

// New constructs a Pipeline. graphStore may be nil to disable the
// optional knowledge-graph push step.
func New(adapter *retrieve.Adapter, graphStore *graph.Graph, llm *llmclient.Client, model string, embedCfg config.EmbeddingConfig, tuning config.IngestionTuningConfig, embeddingDimension int, failedLogPath string) *Pipeline {
	return &Pipeline{
		Adapter: adapter,
		Graph:   graphStore,
		Summarizer: &Summarizer{
			LLM:               llm,
			Model:             model,
			MaxSummaryLength:  tuning.SummaryMaxLength,
			MaxContentLength:  tuning.SummaryMaxContentLen,
			ImageMaxDimension: tuning.ImageMaxDimension,
		},
		EmbedCfg:           embedCfg,
		Tuning:             tuning,
		EmbeddingDimension: embeddingDimension,
		FailedLogPath:      failedLogPath,
	}
}

// DocumentID hashes the absolute file path, per spec §4.13 step 1.
func DocumentID(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	sum := md5.Sum([]byte(abs))
	return hex.EncodeToString(sum[:]), nil
}

// ProcessFile runs the full single-file pipeline (spec §4.13): idempotency
// check, extraction, comprehensive-summary generation, classification,
// embedding, record assembly + indexing, and an optional knowledge-graph
// push. Any failure other than an already-indexed file is recorded in the
// failed-ingestion log and also returned to the caller.
func (p *Pipeline) ProcessFile(ctx context.Context, path string) (docrecord.Record, error) {
	stages := map[string]time.Duration{}
	start := time.Now()
	rec, err := p.processFile(ctx, path, stages)
	stages["total"] = time.Since(start)
	if err != nil {
		if isAlreadyIndexed(err) {
			return docrecord.Record{}, err
		}
		p.recordFailure(path, err)
		logging.Log.WithError(err).WithField("file", path).Warn("ingestioncore: file ingestion failed")
		return docrecord.Record{}, err
	}
	logging.Log.WithField("file", path).WithField("stages_ms", stageMillis(stages)).Info("ingestioncore: file ingested")
	return rec, nil
}

func stageMillis(stages map[string]time.Duration) map[string]int64 {
	out := make(map[string]int64, len(stages))
	for k, v := range stages {
		out[k] = v.Milliseconds()
	}
	return out
}

func (p *Pipeline) processFile(ctx context.Context, path string, stages map[string]time.Duration) (docrecord.Record, error) {
	t0 := time.Now()
	id, err := DocumentID(path)
	if err != nil {
		return docrecord.Record{}, fmt.Errorf("ingestioncore: resolving document id: %w", err)
	}
	stages["idempotency"] = time.Since(t0)
	if p.Adapter.DocumentExists(id) {
		return docrecord.Record{}, errAlreadyIndexed{path}
	}

	info, err := os.Stat(path)
	if err != nil {
		return docrecord.Record{}, fmt.Errorf("ingestioncore: stat %s: %w", path, err)
	}

	t1 := time.Now()
	content, err := Extract(path, p.Tuning.MaxPDFPages, p.Tuning.MaxSpreadsheetRows)
	if err != nil {
		return docrecord.Record{}, fmt.Errorf("ingestioncore: extracting %s: %w", path, err)
	}
	stages["extract"] = time.Since(t1)

	filename := filepath.Base(path)

	t2 := time.Now()
	summary := p.Summarizer.Summarize(ctx, content, filename)
	stages["summary"] = time.Since(t2)

	t3 := time.Now()
	docType := ClassifyDocument(filename, content.ContentType)
	stages["classify"] = time.Since(t3)

	t4 := time.Now()
	vector, embeddingOK := p.embed(ctx, summary.Summary)
	stages["embed"] = time.Since(t4)

	fullContent := content.Text
	if p.Tuning.SummaryMaxContentLen > 0 && len(fullContent) > p.Tuning.SummaryMaxContentLen {
		fullContent = fullContent[:p.Tuning.SummaryMaxContentLen]
	}

	structured := convertStructured(summary.EntitiesStructured)
	entitiesFlat := summary.EntitiesFlat
	if union := docrecord.EntitiesUnion(structured); len(union) > 0 {
		entitiesFlat = mergeUnique(entitiesFlat, union)
	}

	rec := docrecord.Record{
		ID:                 id,
		Filename:           filename,
		FilePath:           path,
		FileType:           extOf(path),
		ContentType:        content.ContentType,
		DocType:            docType,
		IsImage:            content.ContentType == docrecord.ContentImage,
		DetailedSummary:    summary.Summary,
		FullContent:        fullContent,
		Keywords:           summary.Keywords,
		EntitiesFlat:       entitiesFlat,
		EntitiesStructured: structured,
		Topics:             summary.Topics,
		VectorEmbedding:    vector,
		EmbeddingOK:        embeddingOK,
		WordCount:          len(strings.Fields(content.Text)),
		PageCount:          content.PageCount,
		FileSizeBytes:      info.Size(),
		CreatedAt:          info.ModTime(),
		LastModified:       info.ModTime(),
	}

	if err := rec.Valid(p.EmbeddingDimension); err != nil {
		return docrecord.Record{}, fmt.Errorf("ingestioncore: assembled record invalid for %s: %w", path, err)
	}

	t5 := time.Now()
	if err := p.Adapter.IndexDocument(ctx, rec); err != nil {
		return docrecord.Record{}, fmt.Errorf("ingestioncore: indexing %s: %w", path, err)
	}
	stages["index"] = time.Since(t5)

	if p.Graph != nil {
		t6 := time.Now()
		p.pushGraph(ctx, rec, summary.Relationships)
		stages["graph"] = time.Since(t6)
	}

	return rec, nil
}

// embed computes the embedding for detailed_summary under embedMu, per
// spec §9's Open Question #1 resolution: EmbeddingOK is false (rather than
// a silently-inserted zero vector) on any embedding failure or on an empty
// summary.
func (p *Pipeline) embed(ctx context.Context, summary string) ([]float32, bool) {
	if strings.TrimSpace(summary) == "" {
		return nil, false
	}
	p.embedMu.Lock()
	defer p.embedMu.Unlock()

	vectors, err := embedding.EmbedText(ctx, p.EmbedCfg, []string{summary})
	if err != nil || len(vectors) == 0 {
		logging.Log.WithError(err).Warn("ingestioncore: embedding failed")
		return nil, false
	}
	return vectors[0], true
}

// pushGraph adds the document's flat entities as graph nodes and wires
// any extracted RELATIONSHIPS triples between them, swallowing individual
// failures (the knowledge graph push is best-effort per spec §4.13).
func (p *Pipeline) pushGraph(ctx context.Context, rec docrecord.Record, relationships []Relationship) {
	ids := make(map[string]string, len(rec.EntitiesFlat))
	for category, names := range rec.EntitiesStructured {
		for _, name := range names {
			entity, err := p.Graph.AddEntity(ctx, graph.NewEntityID(string(category), name, rec.ID), name, string(category), rec.ID)
			if err != nil {
				logging.Log.WithError(err).WithField("entity", name).Warn("ingestioncore: graph AddEntity failed")
				continue
			}
			ids[strings.ToLower(name)] = entity.ID
		}
	}
	for _, rel := range relationships {
		srcID, ok1 := ids[strings.ToLower(rel.Source)]
		dstID, ok2 := ids[strings.ToLower(rel.Target)]
		if !ok1 || !ok2 {
			continue
		}
		if err := p.Graph.AddRelationship(ctx, srcID, dstID, rel.Type, 1.0, rec.ID); err != nil {
			logging.Log.WithError(err).WithField("relationship", rel.Type).Warn("ingestioncore: graph AddRelationship failed")
		}
	}
}

func convertStructured(in map[string][]string) map[docrecord.EntityCategory][]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[docrecord.EntityCategory][]string, len(in))
	for k, v := range in {
		out[docrecord.EntityCategory(k)] = v
	}
	return out
}

func mergeUnique(a, b []string) []string {
	seen := make(map[string]struct{}, len(a))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(append([]string{}, a...), b...) {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// ProcessDirectory walks dir for supported extensions and ingests each
// file with bounded concurrency, per spec §4.13's batching semantics.
// status, if non-nil, is called once per file with its outcome.
func (p *Pipeline) ProcessDirectory(ctx context.Context, dir string, extensions []string, concurrency int, status StatusCallback) (processed, failed int) {
	if concurrency <= 0 {
		concurrency = 4
	}
	allowed := make(map[string]bool, len(extensions))
	for _, e := range extensions {
		allowed[strings.ToLower(e)] = true
	}

	var files []string
	_ = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if len(allowed) == 0 || allowed[strings.ToLower(extOf(path))] {
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, f := range files {
		f := f
		g.Go(func() error {
			_, err := p.ProcessFile(gctx, f)
			mu.Lock()
			if err == nil {
				processed++
			} else if !isAlreadyIndexed(err) {
				failed++
			}
			mu.Unlock()
			if status != nil {
				status(f, err == nil, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return processed, failed
}

type errAlreadyIndexed struct{ path string }

func (e errAlreadyIndexed) Error() string {
	return fmt.Sprintf("ingestioncore: %s already indexed", e.path)
}

func isAlreadyIndexed(err error) bool {
	_, ok := err.(errAlreadyIndexed)
	return ok
}
