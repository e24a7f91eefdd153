package pipeline

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"vaultx/internal/capability"
	"vaultx/internal/domain"
	"vaultx/internal/history"
	"vaultx/internal/spellgate"
)

type fakeClient struct {
	mu sync.Mutex

	spell    capability.SpellcheckResult
	spellErr error

	imageArtifacts []capability.Artifact
	imageErr       error
	imagePrompts   []string
	editCalls      int

	pollDoneAfter int
	pollErr       error
	pollCalls     int
	locator       string
	fetchErr      error
}

func newFake() *fakeClient {
	return &fakeClient{
		spell:          capability.SpellcheckResult{NoChange: true},
		imageArtifacts: []capability.Artifact{{Data: []byte("jpeg"), MIMEType: "image/jpeg"}},
		pollDoneAfter:  1,
		locator:        "https://media.example/v.mp4",
	}
}

func (f *fakeClient) Spellcheck(ctx context.Context, text string) (capability.SpellcheckResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.spell, f.spellErr
}

func (f *fakeClient) CreateImage(ctx context.Context, prompt string, aspect domain.AspectRatio) ([]capability.Artifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.imagePrompts = append(f.imagePrompts, prompt)
	return f.imageArtifacts, f.imageErr
}

func (f *fakeClient) EditImage(ctx context.Context, source domain.Media, prompt string) ([]capability.Artifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.editCalls++
	return []capability.Artifact{{Data: []byte("png"), MIMEType: "image/png"}}, nil
}

func (f *fakeClient) CreateVideoJob(ctx context.Context, prompt string, aspect domain.AspectRatio, source *domain.Media) (capability.JobHandle, error) {
	return capability.JobHandle{ID: "operations/1"}, nil
}

func (f *fakeClient) PollVideoJob(ctx context.Context, job capability.JobHandle) (capability.JobStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pollCalls++
	if f.pollErr != nil {
		return capability.JobStatus{}, f.pollErr
	}
	if f.pollDoneAfter > 0 && f.pollCalls >= f.pollDoneAfter {
		return capability.JobStatus{Done: true, Locator: f.locator}, nil
	}
	return capability.JobStatus{}, nil
}

func (f *fakeClient) FetchMedia(ctx context.Context, locator string) (capability.Artifact, error) {
	if f.fetchErr != nil {
		return capability.Artifact{}, f.fetchErr
	}
	return capability.Artifact{Data: []byte("mp4"), MIMEType: "video/mp4"}, nil
}

func (f *fakeClient) StreamChat(ctx context.Context, transcript []capability.Turn, input capability.TurnInput, tier capability.TierConfig) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {}
}

func (f *fakeClient) polls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pollCalls
}

type harness struct {
	client  *fakeClient
	history *history.Store
	p       *Pipeline

	mu     sync.Mutex
	phases []domain.Phase
}

func newHarness(t *testing.T, surface domain.Surface, client *fakeClient, opts Options) *harness {
	t.Helper()
	if opts.PollInterval == 0 {
		opts.PollInterval = time.Millisecond
	}
	seq := 0
	opts.NewID = func() string {
		seq++
		return fmt.Sprintf("r%d", seq)
	}
	h := &harness{client: client, history: history.NewStore(nil)}
	h.p = New(surface, Deps{
		Gate:   spellgate.New(client, spellgate.Options{}),
		Images: client,
		Videos: client,
		Sink:   h.history,
	}, opts)
	cancel := h.p.Subscribe(func(s domain.PipelineState) {
		h.mu.Lock()
		h.phases = append(h.phases, s.Phase)
		h.mu.Unlock()
	})
	t.Cleanup(cancel)
	return h
}

func (h *harness) seen() []domain.Phase {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]domain.Phase(nil), h.phases...)
}

func imageRequest(prompt string) domain.GenerationRequest {
	return domain.GenerationRequest{Kind: domain.KindImageCreate, Prompt: prompt, StyleID: "anime", StyleModifier: "anime style"}
}

func TestNoChangeDispatchesWithoutDecision(t *testing.T) {
	h := newHarness(t, domain.SurfaceImage, newFake(), Options{})

	require.NoError(t, h.p.Submit(context.Background(), imageRequest("a cat")))

	assert.Equal(t, []domain.Phase{domain.PhaseCheckingSpelling, domain.PhaseDispatching, domain.PhaseSucceeded}, h.seen())
	st := h.p.State()
	require.NotNil(t, st.LastResult)
	assert.Nil(t, st.LastError)
	assert.Equal(t, "a cat", st.LastResult.DisplayPrompt)
	assert.Equal(t, domain.Aspect1x1, st.LastResult.AspectRatio)
	assert.Equal(t, []string{"a cat. anime style"}, h.client.imagePrompts)
}

func TestSuggestionSuspendsAndResumes(t *testing.T) {
	for _, tc := range []struct {
		decision domain.Decision
		want     string
	}{
		{domain.DecisionAccept, "a cat"},
		{domain.DecisionReject, "a cta"},
	} {
		t.Run(string(tc.decision), func(t *testing.T) {
			client := newFake()
			client.spell = capability.SpellcheckResult{CorrectedText: "a cat"}
			h := newHarness(t, domain.SurfaceImage, client, Options{})

			require.NoError(t, h.p.Submit(context.Background(), imageRequest("a cta")))
			st := h.p.State()
			assert.Equal(t, domain.PhaseAwaitingUserCorrectionDecision, st.Phase)
			require.NotNil(t, st.Suggestion)
			assert.Empty(t, client.imagePrompts)

			require.ErrorIs(t, h.p.Submit(context.Background(), imageRequest("other")), domain.ErrBusy)

			require.NoError(t, h.p.ResolveSuggestion(context.Background(), tc.decision))
			st = h.p.State()
			assert.Equal(t, domain.PhaseSucceeded, st.Phase)
			assert.Nil(t, st.Suggestion)
			assert.Equal(t, []string{tc.want + ". anime style"}, client.imagePrompts)
			assert.Equal(t, tc.want, st.LastResult.DisplayPrompt)
		})
	}
}

func TestResolveWithoutPendingDecision(t *testing.T) {
	h := newHarness(t, domain.SurfaceImage, newFake(), Options{})
	require.ErrorIs(t, h.p.ResolveSuggestion(context.Background(), domain.DecisionAccept), domain.ErrNoPendingDecision)
	assert.Empty(t, h.seen())
}

func TestSequentialSubmissionsFillHistoryNewestFirst(t *testing.T) {
	h := newHarness(t, domain.SurfaceImage, newFake(), Options{})
	for i := 0; i < 4; i++ {
		require.NoError(t, h.p.Submit(context.Background(), imageRequest(fmt.Sprintf("prompt %d", i))))
	}
	all := h.history.All()
	require.Len(t, all, 4)
	assert.Equal(t, "prompt 3", all[0].DisplayPrompt)
	assert.Equal(t, "prompt 0", all[3].DisplayPrompt)
}

func TestEditWithoutSourceIsRejected(t *testing.T) {
	client := newFake()
	h := newHarness(t, domain.SurfaceImage, client, Options{})

	err := h.p.Submit(context.Background(), domain.GenerationRequest{Kind: domain.KindImageEdit, Prompt: "add a hat"})
	require.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, domain.PhaseIdle, h.p.State().Phase)
	assert.Zero(t, client.editCalls)
	assert.Empty(t, h.seen())
}

func TestEditLabelsResult(t *testing.T) {
	h := newHarness(t, domain.SurfaceImage, newFake(), Options{})
	req := domain.GenerationRequest{
		Kind:        domain.KindImageEdit,
		Prompt:      "add a hat",
		SourceMedia: &domain.Media{MIMEType: "image/png", Data: []byte{1}},
	}
	require.NoError(t, h.p.Submit(context.Background(), req))
	r := h.p.State().LastResult
	require.NotNil(t, r)
	assert.Equal(t, "Edited: add a hat", r.DisplayPrompt)
	assert.Equal(t, domain.StyleIDCustomEdit, r.StyleID)
	assert.Contains(t, r.MediaURL, "data:image/png;base64,")
}

func TestWrongSurfaceIsRejected(t *testing.T) {
	h := newHarness(t, domain.SurfaceVideo, newFake(), Options{})
	err := h.p.Submit(context.Background(), imageRequest("a cat"))
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestNoArtifactProduced(t *testing.T) {
	for name, artifacts := range map[string][]capability.Artifact{
		"none": nil,
		"two":  {{Data: []byte("a")}, {Data: []byte("b")}},
	} {
		t.Run(name, func(t *testing.T) {
			client := newFake()
			client.imageArtifacts = artifacts
			h := newHarness(t, domain.SurfaceImage, client, Options{})
			require.NoError(t, h.p.Submit(context.Background(), imageRequest("a cat")))
			st := h.p.State()
			assert.Equal(t, domain.PhaseFailed, st.Phase)
			require.NotNil(t, st.LastError)
			assert.Equal(t, domain.ErrorKindNoArtifact, st.LastError.Kind)
			assert.Nil(t, st.LastResult)
			assert.Zero(t, h.history.Len())
		})
	}
}

func TestProviderErrorMessageSurfaces(t *testing.T) {
	for _, tc := range []struct {
		name string
		err  error
		want string
	}{
		{"plain", errors.New("quota exhausted"), "quota exhausted"},
		{"wrapped", fmt.Errorf("genai: generate image: %w", errors.New("quota exhausted")), "quota exhausted"},
		{"empty", fmt.Errorf("genai: generate image: %w", errors.New("")), defaultImageFailure},
	} {
		t.Run(tc.name, func(t *testing.T) {
			client := newFake()
			client.imageErr = tc.err
			h := newHarness(t, domain.SurfaceImage, client, Options{})
			require.NoError(t, h.p.Submit(context.Background(), imageRequest("a cat")))
			st := h.p.State()
			require.NotNil(t, st.LastError)
			assert.Equal(t, domain.ErrorKindProvider, st.LastError.Kind)
			assert.Equal(t, tc.want, st.LastError.Message)
		})
	}
}

func TestVideoPollsUntilDone(t *testing.T) {
	client := newFake()
	client.pollDoneAfter = 3
	h := newHarness(t, domain.SurfaceVideo, client, Options{})

	require.NoError(t, h.p.Submit(context.Background(), domain.GenerationRequest{Kind: domain.KindVideoCreate, Prompt: "waves"}))
	st := h.p.State()
	require.Equal(t, domain.PhaseSucceeded, st.Phase)
	assert.Equal(t, 3, client.polls())
	assert.Equal(t, domain.StyleIDVideo, st.LastResult.StyleID)
	assert.Equal(t, domain.MediaKindVideo, st.LastResult.MediaKind)
	assert.Equal(t, domain.Aspect16x9, st.LastResult.AspectRatio)
	assert.Contains(t, h.seen(), domain.PhasePolling)
}

func TestVideoCredentialRequiredFromPoll(t *testing.T) {
	client := newFake()
	client.pollErr = fmt.Errorf("genai: poll: %w", capability.ErrCredentialRequired)
	h := newHarness(t, domain.SurfaceVideo, client, Options{})

	require.NoError(t, h.p.Submit(context.Background(), domain.GenerationRequest{Kind: domain.KindVideoCreate, Prompt: "waves"}))
	st := h.p.State()
	assert.Equal(t, domain.PhaseFailed, st.Phase)
	require.NotNil(t, st.LastError)
	assert.Equal(t, domain.ErrorKindCredentialRequired, st.LastError.Kind)
	assert.Equal(t, videoCredential, st.LastError.Message)
}

func TestVideoFetchFailure(t *testing.T) {
	client := newFake()
	client.fetchErr = errors.New("download file status 404")
	h := newHarness(t, domain.SurfaceVideo, client, Options{})
	require.NoError(t, h.p.Submit(context.Background(), domain.GenerationRequest{Kind: domain.KindVideoCreate, Prompt: "waves"}))
	st := h.p.State()
	assert.Equal(t, domain.PhaseFailed, st.Phase)
	assert.Equal(t, domain.ErrorKindProvider, st.LastError.Kind)
}

func TestVideoPollTimeout(t *testing.T) {
	client := newFake()
	client.pollDoneAfter = 0
	h := newHarness(t, domain.SurfaceVideo, client, Options{PollTimeout: 20 * time.Millisecond})
	require.NoError(t, h.p.Submit(context.Background(), domain.GenerationRequest{Kind: domain.KindVideoCreate, Prompt: "waves"}))
	st := h.p.State()
	require.NotNil(t, st.LastError)
	assert.Equal(t, domain.ErrorKindProvider, st.LastError.Kind)
	assert.Equal(t, pollTimeoutMessage, st.LastError.Message)
}

func TestCancelMidPollingStopsPolls(t *testing.T) {
	defer goleak.VerifyNone(t)

	client := newFake()
	client.pollDoneAfter = 0
	h := newHarness(t, domain.SurfaceVideo, client, Options{})

	require.NoError(t, h.p.SubmitAsync(context.Background(), domain.GenerationRequest{Kind: domain.KindVideoCreate, Prompt: "waves"}))
	require.Eventually(t, func() bool { return client.polls() >= 2 }, time.Second, time.Millisecond)

	require.True(t, h.p.Cancel())
	require.Eventually(t, func() bool { return h.p.State().Phase == domain.PhaseFailed }, time.Second, time.Millisecond)

	frozen := client.polls()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, frozen, client.polls())

	st := h.p.State()
	require.NotNil(t, st.LastError)
	assert.Equal(t, domain.ErrorKindCancelled, st.LastError.Kind)
	assert.False(t, h.p.Cancel())
}

func TestCancelWhileAwaitingDecision(t *testing.T) {
	client := newFake()
	client.spell = capability.SpellcheckResult{CorrectedText: "a cat"}
	h := newHarness(t, domain.SurfaceImage, client, Options{})

	require.NoError(t, h.p.Submit(context.Background(), imageRequest("a cta")))
	require.True(t, h.p.Cancel())
	st := h.p.State()
	assert.Equal(t, domain.PhaseFailed, st.Phase)
	assert.Equal(t, domain.ErrorKindCancelled, st.LastError.Kind)
	assert.Nil(t, st.Suggestion)
	require.ErrorIs(t, h.p.ResolveSuggestion(context.Background(), domain.DecisionAccept), domain.ErrNoPendingDecision)
	assert.Empty(t, client.imagePrompts)
}

func TestRetryResubmitsLastRequest(t *testing.T) {
	client := newFake()
	client.imageErr = fmt.Errorf("wrapped: %w", capability.ErrCredentialRequired)
	h := newHarness(t, domain.SurfaceImage, client, Options{})

	require.ErrorIs(t, h.p.Retry(context.Background()), domain.ErrNotFound)
	require.NoError(t, h.p.Submit(context.Background(), imageRequest("a cat")))
	assert.Equal(t, domain.ErrorKindCredentialRequired, h.p.State().LastError.Kind)

	client.mu.Lock()
	client.imageErr = nil
	client.mu.Unlock()
	require.NoError(t, h.p.Retry(context.Background()))
	assert.Equal(t, domain.PhaseSucceeded, h.p.State().Phase)
	assert.Equal(t, 1, h.history.Len())
}

func TestRetryAsyncRunsInBackground(t *testing.T) {
	client := newFake()
	h := newHarness(t, domain.SurfaceImage, client, Options{})

	require.ErrorIs(t, h.p.RetryAsync(context.Background()), domain.ErrNotFound)
	require.NoError(t, h.p.Submit(context.Background(), imageRequest("a cat")))
	require.NoError(t, h.p.RetryAsync(context.Background()))
	require.Eventually(t, func() bool { return h.history.Len() == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, domain.PhaseSucceeded, h.p.State().Phase)
}

func TestSpellcheckFailureNeverBlocks(t *testing.T) {
	client := newFake()
	client.spellErr = errors.New("spellcheck offline")
	h := newHarness(t, domain.SurfaceImage, client, Options{})
	require.NoError(t, h.p.Submit(context.Background(), imageRequest("a cta")))
	assert.Equal(t, domain.PhaseSucceeded, h.p.State().Phase)
	assert.NotContains(t, h.seen(), domain.PhaseAwaitingUserCorrectionDecision)
}

func TestResolveRejectsUnknownDecision(t *testing.T) {
	client := newFake()
	client.spell = capability.SpellcheckResult{CorrectedText: "a cat"}
	h := newHarness(t, domain.SurfaceImage, client, Options{})

	require.NoError(t, h.p.Submit(context.Background(), imageRequest("a cta")))
	require.ErrorIs(t, h.p.ResolveSuggestion(context.Background(), domain.Decision("maybe")), domain.ErrValidation)

	st := h.p.State()
	assert.Equal(t, domain.PhaseAwaitingUserCorrectionDecision, st.Phase)
	require.NotNil(t, st.Suggestion)
	assert.Empty(t, client.imagePrompts)
}

type gatedSink struct {
	entered chan struct{}
	release chan struct{}
	history *history.Store
}

func (s *gatedSink) Append(r domain.GenerationResult) {
	s.entered <- struct{}{}
	<-s.release
	s.history.Append(r)
}

func TestSnapshotsStayOrderedWhileSinkIsSlow(t *testing.T) {
	client := newFake()
	sink := &gatedSink{entered: make(chan struct{}, 2), release: make(chan struct{}), history: history.NewStore(nil)}
	p := New(domain.SurfaceImage, Deps{
		Gate:   spellgate.New(client, spellgate.Options{}),
		Images: client,
		Videos: client,
		Sink:   sink,
	}, Options{PollInterval: time.Millisecond})

	var mu sync.Mutex
	var phases []domain.Phase
	cancel := p.Subscribe(func(s domain.PipelineState) {
		mu.Lock()
		phases = append(phases, s.Phase)
		mu.Unlock()
	})
	defer cancel()
	seen := func() []domain.Phase {
		mu.Lock()
		defer mu.Unlock()
		return append([]domain.Phase(nil), phases...)
	}

	ctx := context.Background()
	require.NoError(t, p.SubmitAsync(ctx, imageRequest("a cat")))
	<-sink.entered

	second := make(chan error, 1)
	go func() { second <- p.SubmitAsync(ctx, imageRequest("a dog")) }()
	time.Sleep(20 * time.Millisecond)
	close(sink.release)
	require.NoError(t, <-second)

	require.Eventually(t, func() bool { return len(seen()) == 6 }, time.Second, time.Millisecond)
	assert.Equal(t, []domain.Phase{
		domain.PhaseCheckingSpelling, domain.PhaseDispatching, domain.PhaseSucceeded,
		domain.PhaseCheckingSpelling, domain.PhaseDispatching, domain.PhaseSucceeded,
	}, seen())
	assert.Equal(t, domain.PhaseSucceeded, p.State().Phase)
	assert.Equal(t, 2, sink.history.Len())
}
