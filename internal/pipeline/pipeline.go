// Package pipeline turns an audit document into per-question verdicts:
// question segmentation, policy context retrieval, the model call and
// evidence verification.
package pipeline

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/policy-audit/internal/model"
)

// PageExtractor returns the text of each page of a PDF.
type PageExtractor interface {
	ExtractPages(ctx context.Context, path string) ([]string, error)
}

// RunRecorder persists audit runs.
type RunRecorder interface {
	SaveRun(ctx context.Context, run *model.AuditRun) error
}

// Pipeline runs a full audit of one document.
type Pipeline struct {
	extractor PageExtractor
	auditor   *Auditor
	runs      RunRecorder
}

// New creates a Pipeline. runs may be nil to skip persistence.
func New(extractor PageExtractor, auditor *Auditor, runs RunRecorder) *Pipeline {
	return &Pipeline{extractor: extractor, auditor: auditor, runs: runs}
}

// Questions extracts the questions from the PDF at path. Unreadable or
// question-free documents return ErrNoQuestions.
func (p *Pipeline) Questions(ctx context.Context, path string) ([]string, error) {
	pages, err := p.extractor.ExtractPages(ctx, path)
	if err != nil {
		zap.L().Warn("pipeline: could not read audit document", zap.String("path", path), zap.Error(err))
		return nil, eris.Wrapf(ErrNoQuestions, "pipeline: extract %s: %v", path, err)
	}

	questions := SegmentQuestions(strings.Join(pages, "\n"))
	if len(questions) == 0 {
		return nil, eris.Wrapf(ErrNoQuestions, "pipeline: segment %s", path)
	}
	zap.L().Info("pipeline: extracted questions", zap.String("path", path), zap.Int("count", len(questions)))
	return questions, nil
}

// Run audits the document at path, recording the run under source.
// The returned run is non-nil whenever questions were found.
func (p *Pipeline) Run(ctx context.Context, source, path string) (*model.AuditRun, error) {
	log := zap.L().With(zap.String("source", source))

	questions, err := p.Questions(ctx, path)
	if err != nil {
		return nil, err
	}

	run := &model.AuditRun{
		ID:            uuid.New().String(),
		Source:        source,
		Status:        model.RunStatusRunning,
		QuestionCount: len(questions),
	}
	p.save(ctx, run)
	log = log.With(zap.String("run_id", run.ID))
	log.Info("pipeline: starting audit", zap.Int("questions", len(questions)))

	verdicts, err := p.auditor.Audit(ctx, questions)
	run.Verdicts = verdicts
	if err != nil {
		run.Status = model.RunStatusFailed
		run.Error = err.Error()
		p.save(context.WithoutCancel(ctx), run)
		return run, err
	}

	run.Status = model.RunStatusComplete
	p.save(ctx, run)
	log.Info("pipeline: audit finished", zap.Int("verdicts", len(verdicts)))
	return run, nil
}

func (p *Pipeline) save(ctx context.Context, run *model.AuditRun) {
	if p.runs == nil {
		return
	}
	if err := p.runs.SaveRun(ctx, run); err != nil {
		zap.L().Warn("pipeline: failed to save run", zap.String("run_id", run.ID), zap.Error(err))
	}
}
