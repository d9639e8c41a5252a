package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/policy-audit/internal/config"
	"github.com/sells-group/policy-audit/internal/model"
)

// ErrNoQuestions is returned when an audit document yields no questions.
var ErrNoQuestions = eris.New("pipeline: no questions found")

// Generator is a single-prompt language model call.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// AuditorConfig bounds concurrency and time for a batch of questions.
type AuditorConfig struct {
	Workers            int
	QuestionTimeout    time.Duration
	BatchTimeout       time.Duration
	PromptContextChars int
}

// DefaultAuditorConfig returns 8 workers, 45s per question and a 10m batch.
func DefaultAuditorConfig() AuditorConfig {
	return AuditorConfig{
		Workers:            8,
		QuestionTimeout:    45 * time.Second,
		BatchTimeout:       10 * time.Minute,
		PromptContextChars: DefaultPromptContextChars,
	}
}

// ConfigsFrom derives assembler and auditor settings from cfg.
func ConfigsFrom(cfg *config.Config) (AssemblerConfig, AuditorConfig) {
	r := cfg.Retrieval
	return AssemblerConfig{
			SnippetMode: r.SnippetMode,
			TopK:        r.TopK,
			Snippets:    SnippetOptions{PerDoc: r.PerDoc, MaxChars: r.MaxSnippetChars},
			MaxChars:    r.MaxContextChars,
		}, AuditorConfig{
			Workers:            cfg.Audit.Workers,
			QuestionTimeout:    cfg.Audit.QuestionTimeout(),
			BatchTimeout:       cfg.Audit.BatchTimeout(),
			PromptContextChars: r.PromptContextChars,
		}
}

// Auditor answers questions independently: assemble context, ask the
// model, verify the answer.
type Auditor struct {
	assembler *Assembler
	gen       Generator
	verifier  *Verifier
	cfg       AuditorConfig
}

// NewAuditor creates an Auditor. Non-positive settings fall back to
// DefaultAuditorConfig values.
func NewAuditor(assembler *Assembler, gen Generator, verifier *Verifier, cfg AuditorConfig) *Auditor {
	def := DefaultAuditorConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QuestionTimeout <= 0 {
		cfg.QuestionTimeout = def.QuestionTimeout
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = def.BatchTimeout
	}
	if cfg.PromptContextChars <= 0 {
		cfg.PromptContextChars = def.PromptContextChars
	}
	if verifier == nil {
		verifier = NewVerifier(nil)
	}
	return &Auditor{assembler: assembler, gen: gen, verifier: verifier, cfg: cfg}
}

// Analyze produces the verdict for one question. Failures become Error
// verdicts; it never returns an error.
func (a *Auditor) Analyze(ctx context.Context, question string) (v model.Verdict) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("pipeline: question panicked", zap.String("question", truncate(question, 50)), zap.Any("panic", r))
			v = model.ErrorVerdict(question, fmt.Sprintf("Analysis failed: %v", r))
		}
	}()

	if err := ctx.Err(); err != nil {
		return model.ErrorVerdict(question, "Analysis failed: "+err.Error())
	}

	qctx, cancel := context.WithTimeout(ctx, a.cfg.QuestionTimeout)
	defer cancel()

	policyContext := a.assembler.Context(qctx, question)
	prompt, sent := BuildPrompt(question, policyContext, a.cfg.PromptContextChars)

	answer, err := a.gen.Generate(qctx, prompt)
	if err != nil {
		zap.L().Warn("pipeline: model call failed", zap.String("question", truncate(question, 50)), zap.Error(err))
		return model.ErrorVerdict(question, "Analysis failed: "+err.Error())
	}
	if strings.TrimSpace(answer) == "" {
		return model.ErrorVerdict(question, "Analysis failed: AI generated an empty response.")
	}
	zap.L().Debug("pipeline: raw model answer", zap.String("question", truncate(question, 50)), zap.String("answer", answer))

	status, evidence := a.verifier.Verify(answer, sent)
	return model.Verdict{Question: question, Status: status, Evidence: evidence}
}

// Audit analyzes questions on a bounded worker pool under the batch
// timeout. Verdicts are returned in question order. The error is non-nil
// only when questions is empty or ctx itself is cancelled.
func (a *Auditor) Audit(ctx context.Context, questions []string) ([]model.Verdict, error) {
	if len(questions) == 0 {
		return nil, ErrNoQuestions
	}

	start := time.Now()
	bctx, cancel := context.WithTimeout(ctx, a.cfg.BatchTimeout)
	defer cancel()

	verdicts := make([]model.Verdict, len(questions))
	g, gctx := errgroup.WithContext(bctx)
	g.SetLimit(a.cfg.Workers)
	for i, q := range questions {
		g.Go(func() error {
			verdicts[i] = a.Analyze(gctx, q)
			return nil
		})
	}
	_ = g.Wait()

	sum := model.Summarize(verdicts)
	zap.L().Info("pipeline: audit complete",
		zap.Int("questions", sum.Total),
		zap.Int("met", sum.Met),
		zap.Int("not_met", sum.NotMet),
		zap.Int("errors", sum.Errors),
		zap.Duration("elapsed", time.Since(start)),
	)

	if err := ctx.Err(); err != nil {
		return verdicts, eris.Wrap(err, "pipeline: audit cancelled")
	}
	return verdicts, nil
}
