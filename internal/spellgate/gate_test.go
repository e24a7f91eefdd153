package spellgate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vaultx/internal/capability"
)

type stubChecker struct {
	result capability.SpellcheckResult
	err    error
	block  bool
	calls  int
}

func (s *stubChecker) Spellcheck(ctx context.Context, text string) (capability.SpellcheckResult, error) {
	s.calls++
	if s.block {
		<-ctx.Done()
		return capability.SpellcheckResult{}, ctx.Err()
	}
	return s.result, s.err
}

func TestCheckNoChangeSentinel(t *testing.T) {
	g := New(&stubChecker{result: capability.SpellcheckResult{NoChange: true}}, Options{})
	out := g.Check(context.Background(), "a red fox")
	assert.True(t, out.NoIssue())
	assert.Equal(t, "a red fox", out.Prompt)
}

func TestCheckCaseInsensitiveMatchIsNoIssue(t *testing.T) {
	g := New(&stubChecker{result: capability.SpellcheckResult{CorrectedText: "A Red Fox"}}, Options{})
	out := g.Check(context.Background(), "a red fox")
	assert.True(t, out.NoIssue())
}

func TestCheckSuggestsCorrection(t *testing.T) {
	g := New(&stubChecker{result: capability.SpellcheckResult{CorrectedText: " a red fox \n"}}, Options{})
	out := g.Check(context.Background(), "a rde fxo")
	require.False(t, out.NoIssue())
	assert.Equal(t, "a rde fxo", out.Suggestion.Original)
	assert.Equal(t, "a red fox", out.Suggestion.Corrected)
}

func TestCheckDegradesOnFailure(t *testing.T) {
	g := New(&stubChecker{err: errors.New("boom")}, Options{})
	out := g.Check(context.Background(), "a rde fxo")
	assert.True(t, out.NoIssue())
	assert.Equal(t, "a rde fxo", out.Prompt)
}

func TestCheckDegradesOnTimeout(t *testing.T) {
	g := New(&stubChecker{block: true}, Options{Timeout: 10 * time.Millisecond})
	out := g.Check(context.Background(), "slow prompt")
	assert.True(t, out.NoIssue())
}

func TestCheckCachesSuccessfulOutcomesOnly(t *testing.T) {
	failing := &stubChecker{err: errors.New("boom")}
	g := New(failing, Options{CacheSize: 8})
	g.Check(context.Background(), "x")
	g.Check(context.Background(), "x")
	assert.Equal(t, 2, failing.calls)

	ok := &stubChecker{result: capability.SpellcheckResult{CorrectedText: "a dog"}}
	g = New(ok, Options{CacheSize: 8})
	first := g.Check(context.Background(), "a dgo")
	second := g.Check(context.Background(), "a dgo")
	assert.Equal(t, 1, ok.calls)
	assert.Equal(t, first, second)
}
