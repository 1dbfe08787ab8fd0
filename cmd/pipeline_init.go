package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/mre-cli/internal/config"
	"github.com/sells-group/mre-cli/internal/docstore"
	"github.com/sells-group/mre-cli/internal/enrich"
	"github.com/sells-group/mre-cli/internal/extract"
	"github.com/sells-group/mre-cli/internal/model"
	"github.com/sells-group/mre-cli/internal/normalize"
	"github.com/sells-group/mre-cli/internal/pdftext"
	"github.com/sells-group/mre-cli/internal/pipeline"
	"github.com/sells-group/mre-cli/internal/store"
	"github.com/sells-group/mre-cli/internal/vocab"
)

// pipelineEnv holds the pipeline and the resources it owns.
type pipelineEnv struct {
	Store    store.Store // may be nil
	Pipeline *pipeline.Pipeline
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// loadVocabulary returns the configured vocabulary, or the built-in one.
func loadVocabulary(c *config.Config) (*vocab.Vocabulary, error) {
	if c.Normalize.VocabularyFile == "" {
		return vocab.Default(), nil
	}
	return vocab.Load(c.Normalize.VocabularyFile)
}

func normalizeOptions(c *config.Config) normalize.Options {
	opts := normalize.DefaultOptions()
	if c.Normalize.DefaultCommodity != "" {
		opts.DefaultCommodity = model.Commodity(c.Normalize.DefaultCommodity)
	}
	if c.Normalize.FallbackDeposit != "" {
		opts.FallbackDeposit = c.Normalize.FallbackDeposit
	}
	opts.MetalTolerance = c.Normalize.MetalTolerance
	return opts
}

// initAdapter builds the enrichment adapter. A disabled stage or a missing
// key yields an adapter that resolves nothing.
func initAdapter(ctx context.Context, c *config.Config, v *vocab.Vocabulary, opts normalize.Options) (*enrich.Adapter, error) {
	gen, err := enrich.NewGenerator(ctx, c.Enrich)
	if err != nil {
		return nil, err
	}
	if gen == nil && c.Enrich.Enabled {
		zap.L().Warn("llm enrichment disabled: no api key configured",
			zap.String("provider", c.Enrich.Provider),
		)
	}

	tmpl, err := enrich.LoadTemplate(c.Enrich.PromptFile)
	if err != nil {
		return nil, err
	}
	return enrich.NewAdapter(gen, tmpl, enrich.NewParser(v, opts.DefaultCommodity), enrich.Options{
		Timeout:           time.Duration(c.Enrich.TimeoutSecs) * time.Second,
		MaxAttempts:       c.Enrich.MaxAttempts,
		Backoff:           time.Duration(c.Enrich.BackoffMillis) * time.Millisecond,
		RequestsPerSecond: c.Enrich.RequestsPerSecond,
	}), nil
}

// initPipeline validates config, opens the ledger and builds the Pipeline.
// Callers should defer env.Close().
func initPipeline(ctx context.Context, companies []string) (*pipelineEnv, error) {
	if err := cfg.Validate("run"); err != nil {
		return nil, err
	}

	v, err := loadVocabulary(cfg)
	if err != nil {
		return nil, err
	}
	text, err := pdftext.NewExtractor(cfg.Text)
	if err != nil {
		return nil, err
	}
	opts := normalizeOptions(cfg)
	adapter, err := initAdapter(ctx, cfg, v, opts)
	if err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	p := pipeline.New(
		cfg,
		docstore.Options{
			Dir:         cfg.Docs.Dir,
			Manifest:    cfg.Docs.Manifest,
			Preflight:   cfg.Docs.Preflight,
			Concurrency: cfg.Docs.Concurrency,
			Companies:   companies,
		},
		extract.New(text, v),
		normalize.New(v, opts),
		adapter,
		st,
	)
	return &pipelineEnv{Store: st, Pipeline: p}, nil
}

// initStore opens and migrates the run ledger. It returns nil when no DSN
// is configured.
func initStore(ctx context.Context) (store.Store, error) {
	if cfg.Store.DSN == "" {
		return nil, nil
	}
	st, err := store.NewSQLite(cfg.Store.DSN)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}
