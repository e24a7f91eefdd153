package orchestrator

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vaultx/internal/capability"
	"vaultx/internal/chat"
	"vaultx/internal/domain"
	"vaultx/internal/kvstore"
	"vaultx/internal/providers/synthetic"
)

type recordingClient struct {
	*synthetic.Client

	mu      sync.Mutex
	prompts []string
	key     string
}

func (c *recordingClient) CreateImage(ctx context.Context, prompt string, aspect domain.AspectRatio) ([]capability.Artifact, error) {
	c.mu.Lock()
	c.prompts = append(c.prompts, prompt)
	c.mu.Unlock()
	return c.Client.CreateImage(ctx, prompt, aspect)
}

func (c *recordingClient) SetAPIKey(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.key = key
}

func newOrchestrator(t *testing.T, kv KV) (*Orchestrator, *recordingClient) {
	t.Helper()
	client := &recordingClient{Client: synthetic.NewClient(synthetic.Options{PollsUntilDone: 2})}
	o := New(Deps{Client: client, KV: kv}, Options{PollInterval: time.Millisecond})
	t.Cleanup(o.Close)
	return o, client
}

func TestSubmitImageAppliesStyleAndPersists(t *testing.T) {
	kv := kvstore.NewMemory()
	o, client := newOrchestrator(t, kv)
	ctx := context.Background()

	require.NoError(t, o.Submit(ctx, domain.SurfaceImage, GenerationInput{Prompt: "a cat", StyleID: "cyberpunk"}))

	require.Len(t, client.prompts, 1)
	assert.Contains(t, client.prompts[0], "a cat. ")
	assert.Greater(t, len(client.prompts[0]), len("a cat. "))

	st, err := o.State(domain.SurfaceImage)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseSucceeded, st.Phase)

	hist := o.History()
	require.Len(t, hist, 1)
	assert.Equal(t, "cyberpunk", hist[0].StyleID)
	assert.Equal(t, "a cat", hist[0].DisplayPrompt)

	blob, ok, err := kv.Get(ctx, HistoryKey)
	require.NoError(t, err)
	require.True(t, ok)
	var stored []map[string]any
	require.NoError(t, json.Unmarshal([]byte(blob), &stored))
	require.Len(t, stored, 1)
	assert.Equal(t, hist[0].ID, stored[0]["id"])
}

func TestBuildRequestInfersKind(t *testing.T) {
	o, _ := newOrchestrator(t, nil)
	src := &domain.Media{MIMEType: "image/png", Data: []byte{1}}

	req, err := o.BuildRequest(domain.SurfaceImage, GenerationInput{Prompt: "hat", SourceMedia: src})
	require.NoError(t, err)
	assert.Equal(t, domain.KindImageEdit, req.Kind)
	assert.Equal(t, domain.StyleIDCustomEdit, req.StyleID)

	req, err = o.BuildRequest(domain.SurfaceImage, GenerationInput{Prompt: "hat"})
	require.NoError(t, err)
	assert.Equal(t, domain.KindImageCreate, req.Kind)
	assert.Equal(t, "anime", req.StyleID)
	assert.NotEmpty(t, req.StyleModifier)

	req, err = o.BuildRequest(domain.SurfaceVideo, GenerationInput{Prompt: "waves"})
	require.NoError(t, err)
	assert.Equal(t, domain.KindVideoCreate, req.Kind)
	assert.Equal(t, domain.StyleIDVideo, req.StyleID)

	_, err = o.BuildRequest(domain.SurfaceChat, GenerationInput{Prompt: "x"})
	require.ErrorIs(t, err, domain.ErrUnknownSurface)
}

func TestVideoThroughOrchestrator(t *testing.T) {
	o, _ := newOrchestrator(t, kvstore.NewMemory())

	var mu sync.Mutex
	var phases []domain.Phase
	cancel := o.Subscribe(func(e Event) {
		if e.Type == EventState && e.Surface == domain.SurfaceVideo {
			mu.Lock()
			phases = append(phases, e.State.Phase)
			mu.Unlock()
		}
	})
	defer cancel()

	require.NoError(t, o.Submit(context.Background(), domain.SurfaceVideo, GenerationInput{Prompt: "ocean waves"}))

	hist := o.History()
	require.Len(t, hist, 1)
	assert.Equal(t, domain.MediaKindVideo, hist[0].MediaKind)
	assert.Equal(t, domain.Aspect16x9, hist[0].AspectRatio)
	assert.Contains(t, phases, domain.PhasePolling)
	assert.Equal(t, domain.PhaseSucceeded, phases[len(phases)-1])
}

func TestSuggestionRoundTrip(t *testing.T) {
	o, client := newOrchestrator(t, nil)
	ctx := context.Background()

	require.NoError(t, o.Submit(ctx, domain.SurfaceImage, GenerationInput{Prompt: "teh moutain", StyleID: "none"}))
	st, _ := o.State(domain.SurfaceImage)
	require.Equal(t, domain.PhaseAwaitingUserCorrectionDecision, st.Phase)
	require.NotNil(t, st.Suggestion)
	assert.Equal(t, "the mountain", st.Suggestion.Corrected)

	require.NoError(t, o.ResolveSuggestion(ctx, domain.SurfaceImage, domain.DecisionAccept))
	require.Len(t, client.prompts, 1)
	assert.Contains(t, client.prompts[0], "the mountain")
	assert.Equal(t, "the mountain", o.History()[0].DisplayPrompt)
}

func TestLoadRecoversFromCorruptHistory(t *testing.T) {
	kv := kvstore.NewMemory()
	ctx := context.Background()
	require.NoError(t, kv.Set(ctx, HistoryKey, "{not json"))
	require.NoError(t, kv.Set(ctx, ThemeKey, "dark"))

	o, _ := newOrchestrator(t, kv)
	require.NoError(t, o.Load(ctx))
	assert.Empty(t, o.History())
	assert.Equal(t, ThemeDark, o.Theme())

	require.NoError(t, o.Submit(ctx, domain.SurfaceImage, GenerationInput{Prompt: "a dog"}))
	blob, _, err := kv.Get(ctx, HistoryKey)
	require.NoError(t, err)
	assert.True(t, json.Valid([]byte(blob)))
}

func TestLoadRestoresHistory(t *testing.T) {
	kv := kvstore.NewMemory()
	ctx := context.Background()

	first, _ := newOrchestrator(t, kv)
	require.NoError(t, first.Submit(ctx, domain.SurfaceImage, GenerationInput{Prompt: "one"}))
	require.NoError(t, first.Submit(ctx, domain.SurfaceImage, GenerationInput{Prompt: "two"}))

	second, _ := newOrchestrator(t, kv)
	require.NoError(t, second.Load(ctx))
	hist := second.History()
	require.Len(t, hist, 2)
	assert.Equal(t, "two", hist[0].DisplayPrompt)
	assert.Equal(t, ThemeLight, second.Theme())
}

func TestThemeToggle(t *testing.T) {
	kv := kvstore.NewMemory()
	o, _ := newOrchestrator(t, kv)
	ctx := context.Background()

	theme, err := o.ToggleTheme(ctx)
	require.NoError(t, err)
	assert.Equal(t, ThemeDark, theme)
	stored, _, _ := kv.Get(ctx, ThemeKey)
	assert.Equal(t, "dark", stored)

	theme, err = o.ToggleTheme(ctx)
	require.NoError(t, err)
	assert.Equal(t, ThemeLight, theme)

	require.ErrorIs(t, o.SetTheme(ctx, Theme("sepia")), domain.ErrValidation)

	require.NoError(t, o.SetTheme(ctx, Theme(" DARK ")))
	assert.Equal(t, ThemeDark, o.Theme())
	stored, _, _ = kv.Get(ctx, ThemeKey)
	assert.Equal(t, "dark", stored)
	theme, err = o.ToggleTheme(ctx)
	require.NoError(t, err)
	assert.Equal(t, ThemeLight, theme)
}

func TestDetail(t *testing.T) {
	o, _ := newOrchestrator(t, nil)
	ctx := context.Background()

	_, err := o.OpenDetail("missing")
	require.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, o.Submit(ctx, domain.SurfaceImage, GenerationInput{Prompt: "a fox"}))
	id := o.History()[0].ID
	r, err := o.OpenDetail(id)
	require.NoError(t, err)
	assert.Equal(t, id, r.ID)

	got, ok := o.Detail()
	require.True(t, ok)
	assert.Equal(t, id, got.ID)

	o.CloseDetail()
	_, ok = o.Detail()
	assert.False(t, ok)
}

func TestReauthenticateStoresAndAppliesKey(t *testing.T) {
	kv := kvstore.NewMemory()
	o, client := newOrchestrator(t, kv)
	ctx := context.Background()

	require.ErrorIs(t, o.Reauthenticate(ctx, " "), domain.ErrValidation)
	require.NoError(t, o.Reauthenticate(ctx, "new-key"))

	assert.Equal(t, "new-key", client.key)
	stored, ok, err := kv.Get(ctx, "credentials/gemini")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "new-key", stored)
}

func TestChatThroughOrchestrator(t *testing.T) {
	o, _ := newOrchestrator(t, nil)

	var mu sync.Mutex
	fragments := 0
	cancel := o.Subscribe(func(e Event) {
		if e.Type == EventChat && e.Chat.Kind == chat.EventFragment {
			mu.Lock()
			fragments++
			mu.Unlock()
		}
	})
	defer cancel()

	require.NoError(t, o.Chat().Send(context.Background(), "hi", nil))
	msgs := o.Chat().State().Messages
	require.Len(t, msgs, 2)
	assert.Equal(t, "You said: hi", msgs[1].Text)
	assert.Equal(t, 3, fragments)
}

func TestCancelGenerationUnknownSurface(t *testing.T) {
	o, _ := newOrchestrator(t, nil)
	cancelled, err := o.CancelGeneration(domain.SurfaceImage)
	require.NoError(t, err)
	assert.False(t, cancelled)

	_, err = o.State(domain.Surface("audio"))
	require.ErrorIs(t, err, domain.ErrUnknownSurface)
}

func TestExportHistory(t *testing.T) {
	o, _ := newOrchestrator(t, nil)
	ctx := context.Background()
	require.NoError(t, o.Submit(ctx, domain.SurfaceImage, GenerationInput{Prompt: "a fox"}))
	require.NoError(t, o.Submit(ctx, domain.SurfaceVideo, GenerationInput{Prompt: "a river"}))

	var buf bytes.Buffer
	n, err := o.ExportHistory(ctx, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	names := map[string]*zip.File{}
	for _, f := range zr.File {
		names[f.Name] = f
	}
	require.Contains(t, names, ManifestName)
	hist := o.History()
	assert.Contains(t, names, hist[0].ID+".mp4")
	assert.Contains(t, names, hist[1].ID+".png")

	rc, err := names[ManifestName].Open()
	require.NoError(t, err)
	defer rc.Close()
	var manifest []map[string]any
	require.NoError(t, json.NewDecoder(rc).Decode(&manifest))
	require.Len(t, manifest, 2)
	assert.Equal(t, hist[0].ID+".mp4", manifest[0]["url"])

	m, err := o.LoadMedia(ctx, hist[1].ID)
	require.NoError(t, err)
	assert.Equal(t, "image/png", m.MIMEType)
	_, err = o.LoadMedia(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}
