// Package convert runs the single-writer conversion pipeline: parse the
// specification document, normalize it, categorize the endpoints, persist
// everything to the relational store, and build a fresh search index
// generation. A failure in any phase leaves the previously committed state
// untouched.
package convert

import (
	"context"
	"errors"
	"time"

	"openapi-mcp-server/internal/apierr"
	"openapi-mcp-server/internal/category"
	"openapi-mcp-server/internal/config"
	"openapi-mcp-server/internal/index"
	"openapi-mcp-server/internal/logging"
	"openapi-mcp-server/internal/spec"
	"openapi-mcp-server/internal/storage"
)

// Phase names reported on the progress channel.
const (
	PhaseParse      = "parse"
	PhaseNormalize  = "normalize"
	PhaseCategorize = "categorize"
	PhasePersist    = "persist"
	PhaseIndex      = "index"
	PhaseDone       = "done"
)

// Progress is one pipeline progress event.
type Progress struct {
	Phase   string `json:"phase"`
	Percent int    `json:"percent"`
	Message string `json:"message,omitempty"`
}

// Result summarizes one completed conversion.
type Result struct {
	APIID      int64         `json:"api_id"`
	Title      string        `json:"title"`
	Version    string        `json:"version"`
	Dialect    string        `json:"dialect"`
	Endpoints  int           `json:"endpoints"`
	Schemas    int           `json:"schemas"`
	Categories int           `json:"categories"`
	Generation string        `json:"generation,omitempty"`
	Skipped    bool          `json:"skipped,omitempty"`
	Replaced   bool          `json:"replaced,omitempty"`
	Warnings   []string      `json:"warnings,omitempty"`
	Duration   time.Duration `json:"-"`
}

// Pipeline coordinates one conversion at a time. It is not safe for
// concurrent Run calls; the server serializes conversions.
type Pipeline struct {
	store       *storage.Store
	backups     *storage.BackupManager
	generations *index.Generations
	classifier  *category.Engine
	opts        config.ConvertConfig
	batchSize   int
	logger      logging.Logger

	progress chan<- Progress
}

// NewPipeline wires a conversion pipeline over the given store and index
// generation root.
func NewPipeline(store *storage.Store, generations *index.Generations, cfg *config.Config, logger logging.Logger) *Pipeline {
	if logger == nil {
		logger = logging.WithComponent("convert")
	}
	return &Pipeline{
		store:       store,
		backups:     storage.NewBackupManager(store.Path(), cfg.Database.BackupDir, cfg.Database.MaxBackups),
		generations: generations,
		classifier:  category.NewEngine(logger),
		opts:        cfg.Convert,
		batchSize:   cfg.Convert.IndexBatchSize,
		logger:      logger,
	}
}

// SetProgress registers an optional progress channel. Events are dropped
// rather than blocking the pipeline when the consumer falls behind.
func (p *Pipeline) SetProgress(ch chan<- Progress) { p.progress = ch }

func (p *Pipeline) report(phase string, percent int, message string) {
	if p.progress == nil {
		return
	}
	select {
	case p.progress <- Progress{Phase: phase, Percent: percent, Message: message}:
	default:
	}
}

// Run converts one specification file end to end. The whole run is bounded
// by the configured ingest timeout; on timeout or failure the persist
// transaction rolls back and any uncommitted index generation is removed.
func (p *Pipeline) Run(ctx context.Context, specPath string) (*Result, error) {
	started := time.Now()

	timeout := time.Duration(p.opts.IngestTimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 600 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	p.report(PhaseParse, 0, specPath)
	parsed, err := spec.LoadDocument(specPath, p.opts.MaxInputBytes)
	if err != nil {
		return nil, p.mapTimeout(ctx, err, timeout)
	}

	// A document whose content hash is already stored is a no-op, provided
	// an index generation is live to serve it.
	if existing, err := p.store.FindAPIByHash(ctx, parsed.Hash); err == nil && existing != nil {
		if current, err := p.generations.Current(); err == nil && current != "" {
			p.logger.InfoContext(ctx, "specification unchanged, skipping conversion",
				"hash", parsed.Hash, "api_id", existing.ID)
			p.report(PhaseDone, 100, "unchanged")
			return &Result{
				APIID:      existing.ID,
				Title:      existing.Title,
				Version:    existing.Version,
				Generation: current,
				Skipped:    true,
				Duration:   time.Since(started),
			}, nil
		}
	}

	p.report(PhaseNormalize, 20, "")
	api, normReport, err := spec.Normalize(parsed, spec.Options{Strict: p.opts.StrictMode})
	if err != nil {
		return nil, p.mapTimeout(ctx, err, timeout)
	}

	p.report(PhaseCategorize, 40, "")
	catalog := p.classifier.Classify(api)

	// Re-ingest of an existing database is destructive for matching rows;
	// snapshot the file first. A missing database file is a silent no-op.
	if _, err := p.backups.CreateBackup(); err != nil {
		p.logger.WarnContext(ctx, "pre-ingest backup failed", "error", err)
	}

	p.report(PhasePersist, 60, "")
	ingested, err := p.store.Ingest(ctx, api, catalog)
	if err != nil {
		return nil, p.mapTimeout(ctx, err, timeout)
	}

	p.report(PhaseIndex, 80, "")
	generation, err := p.buildIndex(ctx, api, ingested.APIID)
	if err != nil {
		return nil, p.mapTimeout(ctx, err, timeout)
	}

	if err := p.generations.CleanupStale(); err != nil {
		p.logger.WarnContext(ctx, "stale generation cleanup failed", "error", err)
	}

	result := &Result{
		APIID:      ingested.APIID,
		Title:      api.Title,
		Version:    api.Version,
		Dialect:    api.Dialect,
		Endpoints:  ingested.Endpoints,
		Schemas:    ingested.Schemas,
		Categories: len(catalog.Categories),
		Generation: generation,
		Replaced:   ingested.Replaced,
		Warnings:   normReport.Warnings,
		Duration:   time.Since(started),
	}
	p.logger.InfoContext(ctx, "conversion complete",
		"title", api.Title, "version", api.Version,
		"endpoints", result.Endpoints, "schemas", result.Schemas,
		"generation", generation, "replaced", result.Replaced,
		"elapsed_ms", result.Duration.Milliseconds())
	p.report(PhaseDone, 100, "")
	return result, nil
}

// buildIndex writes a new generation from the normalized endpoints,
// validates its document count against the relational store, and commits it
// with an atomic swap. The generation directory is removed on any failure
// past the build.
func (p *Pipeline) buildIndex(ctx context.Context, api *spec.NormalizedAPI, apiID int64) (string, error) {
	docs := make([]*index.SearchDocument, 0, len(api.Endpoints))
	for _, endpoint := range api.Endpoints {
		docs = append(docs, index.BuildDocument(endpoint))
	}

	builder := index.NewBuilder(p.generations, p.batchSize, p.logger)
	stats, err := builder.Build(ctx, docs)
	if err != nil {
		return "", err
	}

	stored, err := p.store.EndpointCount(ctx, apiID)
	if err != nil {
		p.discard(stats.Generation)
		return "", err
	}
	if stats.DocumentCount != uint64(stored) {
		p.discard(stats.Generation)
		return "", apierr.NewIndex("index document count does not match stored endpoint count", nil)
	}

	if err := p.generations.Activate(stats.Generation); err != nil {
		p.discard(stats.Generation)
		return "", err
	}
	return stats.Generation, nil
}

func (p *Pipeline) discard(generation string) {
	if err := p.generations.Remove(generation); err != nil {
		p.logger.Warn("failed to remove orphaned index generation",
			"generation", generation, "error", err)
	}
}

// mapTimeout converts a context-deadline failure into the typed timeout
// error; every other error passes through.
func (p *Pipeline) mapTimeout(ctx context.Context, err error, limit time.Duration) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return apierr.NewTimeout("conversion", limit)
	}
	return err
}
