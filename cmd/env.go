package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/policy-audit/internal/llm"
	"github.com/sells-group/policy-audit/internal/ocr"
	"github.com/sells-group/policy-audit/internal/pipeline"
	"github.com/sells-group/policy-audit/internal/store"
)

// auditEnv holds everything the audit and serve commands need.
type auditEnv struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
}

// Close releases the store.
func (e *auditEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// openStore connects and migrates.
func openStore(ctx context.Context) (store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initAudit validates configuration for mode, then wires the store, the
// model client, the PDF extractor and the pipeline. Callers should defer
// env.Close().
func initAudit(ctx context.Context, mode string, persist bool) (*auditEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	gen, err := llm.New(cfg)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	extractor, err := ocr.NewExtractor(cfg.OCR)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	var runs pipeline.RunRecorder
	if persist && cfg.Audit.PersistRuns {
		runs = st
	}

	p := buildPipeline(st, gen, extractor, runs)
	zap.L().Debug("audit environment ready",
		zap.String("store", cfg.Store.Driver),
		zap.String("llm", cfg.LLM.Provider),
		zap.String("ocr", cfg.OCR.Provider),
		zap.Bool("persist_runs", runs != nil),
	)
	return &auditEnv{Store: st, Pipeline: p}, nil
}

func buildPipeline(search pipeline.Searcher, gen pipeline.Generator, extractor pipeline.PageExtractor, runs pipeline.RunRecorder) *pipeline.Pipeline {
	asmCfg, audCfg := pipeline.ConfigsFrom(cfg)
	auditor := pipeline.NewAuditor(
		pipeline.NewAssembler(search, asmCfg),
		gen,
		pipeline.NewVerifier(pipeline.PositionScore),
		audCfg,
	)
	return pipeline.New(extractor, auditor, runs)
}
