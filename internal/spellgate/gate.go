// Package spellgate intercepts prompts before dispatch and proposes spelling
// corrections. It is best-effort: any provider failure degrades to a pass.
package spellgate

import (
	"context"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/text/cases"

	"vaultx/internal/capability"
	"vaultx/internal/domain"
	"vaultx/internal/infra"
)

// Outcome is the result of a gate check. Suggestion is nil for NoIssue.
type Outcome struct {
	Prompt     string
	Suggestion *domain.SpellingSuggestion
}

// NoIssue reports whether the prompt can be dispatched unchanged.
func (o Outcome) NoIssue() bool { return o.Suggestion == nil }

// Checker is the contract pipelines and sessions depend on.
type Checker interface {
	Check(ctx context.Context, prompt string) Outcome
}

// Options configures a Gate.
type Options struct {
	// Timeout bounds a single provider call. Zero disables the bound.
	Timeout time.Duration
	// CacheSize enables an LRU memo of successful outcomes when positive.
	CacheSize int
	Logger    *infra.Logger
}

// Gate wraps a Spellchecker with the no-change and degrade rules.
type Gate struct {
	checker capability.Spellchecker
	timeout time.Duration
	cache   *lru.Cache[string, Outcome]
	logger  *infra.Logger
}

func New(checker capability.Spellchecker, opts Options) *Gate {
	g := &Gate{
		checker: checker,
		timeout: opts.Timeout,
		logger:  infra.LoggerOrDiscard(opts.Logger),
	}
	if opts.CacheSize > 0 {
		if cache, err := lru.New[string, Outcome](opts.CacheSize); err == nil {
			g.cache = cache
		}
	}
	return g
}

// Check never fails. Provider errors and timeouts yield NoIssue(prompt).
func (g *Gate) Check(ctx context.Context, prompt string) Outcome {
	if g.cache != nil {
		if out, ok := g.cache.Get(prompt); ok {
			if out.Suggestion != nil {
				s := *out.Suggestion
				out.Suggestion = &s
			}
			return out
		}
	}

	callCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	res, err := g.checker.Spellcheck(callCtx, prompt)
	if err != nil {
		g.logger.Warn().Err(err).Msg("spellgate: spellcheck failed; passing prompt through")
		return Outcome{Prompt: prompt}
	}

	out := classify(prompt, res)
	if g.cache != nil {
		g.cache.Add(prompt, out)
	}
	if !out.NoIssue() {
		g.logger.Debug().Str("corrected", out.Suggestion.Corrected).Msg("spellgate: suggestion produced")
	}
	return out
}

func classify(prompt string, res capability.SpellcheckResult) Outcome {
	corrected := strings.TrimSpace(res.CorrectedText)
	if res.NoChange || corrected == "" {
		return Outcome{Prompt: prompt}
	}
	fold := cases.Fold()
	if fold.String(corrected) == fold.String(prompt) {
		return Outcome{Prompt: prompt}
	}
	return Outcome{
		Prompt:     prompt,
		Suggestion: &domain.SpellingSuggestion{Original: prompt, Corrected: corrected},
	}
}

var _ Checker = (*Gate)(nil)
