package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerationRequestValidate(t *testing.T) {
	src := &Media{MIMEType: "image/png", Data: []byte{1, 2, 3}}
	cases := []struct {
		name    string
		req     GenerationRequest
		wantErr bool
	}{
		{name: "image ok", req: GenerationRequest{Kind: KindImageCreate, Prompt: "a cat"}},
		{name: "blank prompt", req: GenerationRequest{Kind: KindImageCreate, Prompt: "   "}, wantErr: true},
		{name: "edit without source", req: GenerationRequest{Kind: KindImageEdit, Prompt: "add a hat"}, wantErr: true},
		{name: "edit with source", req: GenerationRequest{Kind: KindImageEdit, Prompt: "add a hat", SourceMedia: src}},
		{name: "video bad ratio", req: GenerationRequest{Kind: KindVideoCreate, Prompt: "waves", AspectRatio: Aspect1x1}, wantErr: true},
		{name: "video ok", req: GenerationRequest{Kind: KindVideoCreate, Prompt: "waves", AspectRatio: Aspect9x16}},
		{name: "unknown kind", req: GenerationRequest{Kind: "audio", Prompt: "x"}, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.req.Validate()
			if !tc.wantErr {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			kind, ok := KindOf(err)
			require.True(t, ok)
			assert.Equal(t, ErrorKindValidation, kind)
		})
	}
}

func TestNormalizeAspectRatioDefaults(t *testing.T) {
	got, err := NormalizeAspectRatio(KindImageCreate, "")
	require.NoError(t, err)
	assert.Equal(t, Aspect1x1, got)

	got, err = NormalizeAspectRatio(KindVideoCreate, " ")
	require.NoError(t, err)
	assert.Equal(t, Aspect16x9, got)
}

func TestComposedPrompt(t *testing.T) {
	req := GenerationRequest{Kind: KindImageCreate, Prompt: "a cat", StyleModifier: "anime style"}
	assert.Equal(t, "a cat. anime style", req.ComposedPrompt())

	req.Kind = KindImageEdit
	assert.Equal(t, "a cat", req.ComposedPrompt())
}

func TestDecisionApply(t *testing.T) {
	s := SpellingSuggestion{Original: "a dgo", Corrected: "a dog"}
	assert.Equal(t, "a dog", DecisionAccept.Apply(s))
	assert.Equal(t, "a dgo", DecisionReject.Apply(s))

	d, err := ParseDecision("Keep")
	require.NoError(t, err)
	assert.Equal(t, DecisionReject, d)
}

func TestParseDataURLRoundTrip(t *testing.T) {
	m := Media{MIMEType: "image/png", Data: []byte("pixels")}
	parsed, err := ParseDataURL(m.DataURL())
	require.NoError(t, err)
	assert.Equal(t, m, parsed)

	_, err = ParseDataURL("https://example.com/cat.png")
	require.Error(t, err)
}

func TestErrorIsMatchesKind(t *testing.T) {
	err := NewError(ErrorKindProvider, "quota", errors.New("429"))
	assert.True(t, errors.Is(err, ErrProvider))
	assert.False(t, errors.Is(err, ErrCancelled))
	assert.Contains(t, err.Error(), "429")
}
