// Package pipeline drives a single generation surface through spelling
// correction, dispatch, polling and materialisation.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"vaultx/internal/capability"
	"vaultx/internal/domain"
	"vaultx/internal/infra"
	"vaultx/internal/media"
	"vaultx/internal/notify"
	"vaultx/internal/spellgate"
)

const (
	DefaultPollInterval = 5 * time.Second

	defaultImageFailure = "Failed to generate image. Please try again."
	defaultVideoFailure = "Video generation failed"
	videoCredential     = "Please select a valid API Key for Veo."
	imageCredential     = "Please select a valid API key."
	cancelledMessage    = "Generation cancelled."
	noArtifactMessage   = "No image was generated."
	noVideoMessage      = "Video generation failed."
	pollTimeoutMessage  = "Video generation timed out."
)

var errPollTimeout = errors.New("pipeline: poll timeout exceeded")

// ResultSink receives every successful result.
type ResultSink interface {
	Append(domain.GenerationResult)
}

// Options configures a Pipeline. Zero values fall back to defaults.
type Options struct {
	PollInterval time.Duration
	// PollTimeout bounds the whole polling phase. Zero polls until the
	// provider finishes or the caller cancels.
	PollTimeout time.Duration
	Now         func() time.Time
	NewID       func() string
	Logger      *infra.Logger
}

// Pipeline owns the state machine of one generation surface. At most one
// request is in flight at a time; concurrent submissions fail with ErrBusy.
type Pipeline struct {
	surface      domain.Surface
	gate         spellgate.Checker
	images       capability.ImageGenerator
	videos       capability.VideoGenerator
	media        media.Store
	sink         ResultSink
	pollInterval time.Duration
	pollTimeout  time.Duration
	now          func() time.Time
	newID        func() string
	logger       *infra.Logger

	// publishMu is held from a state change until its snapshot has been
	// delivered, so observers see transitions in the order they happened.
	// It is always taken before mu.
	publishMu sync.Mutex

	mu      sync.Mutex
	state   domain.PipelineState
	pending *domain.GenerationRequest
	last    *domain.GenerationRequest
	leg     uint64
	cancel  context.CancelFunc

	hub notify.Hub[domain.PipelineState]
}

// Deps groups the collaborators of a Pipeline.
type Deps struct {
	Gate   spellgate.Checker
	Images capability.ImageGenerator
	Videos capability.VideoGenerator
	Media  media.Store
	Sink   ResultSink
}

func New(surface domain.Surface, deps Deps, opts Options) *Pipeline {
	p := &Pipeline{
		surface:      surface,
		gate:         deps.Gate,
		images:       deps.Images,
		videos:       deps.Videos,
		media:        deps.Media,
		sink:         deps.Sink,
		pollInterval: opts.PollInterval,
		pollTimeout:  opts.PollTimeout,
		now:          opts.Now,
		newID:        opts.NewID,
		logger:       infra.LoggerOrDiscard(opts.Logger),
		state:        domain.PipelineState{Surface: surface, Phase: domain.PhaseIdle},
	}
	if p.pollInterval <= 0 {
		p.pollInterval = DefaultPollInterval
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.newID == nil {
		p.newID = uuid.NewString
	}
	if p.media == nil {
		p.media = media.Inline{}
	}
	return p
}

// Surface reports which surface this pipeline serves.
func (p *Pipeline) Surface() domain.Surface { return p.surface }

// State returns a snapshot of the current state.
func (p *Pipeline) State() domain.PipelineState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.Clone()
}

// Subscribe registers fn for every state transition.
func (p *Pipeline) Subscribe(fn func(domain.PipelineState)) func() {
	return p.hub.Subscribe(fn)
}

// Submit runs req until it reaches a terminal phase or suspends awaiting a
// correction decision. Invalid requests return a validation error without
// any state transition or provider call.
func (p *Pipeline) Submit(ctx context.Context, req domain.GenerationRequest) error {
	legCtx, leg, err := p.begin(ctx, req)
	if err != nil {
		return err
	}
	p.gateAndDispatch(legCtx, leg, req)
	return nil
}

// SubmitAsync validates and claims the surface synchronously, then continues
// in the background. ctx must outlive the request.
func (p *Pipeline) SubmitAsync(ctx context.Context, req domain.GenerationRequest) error {
	legCtx, leg, err := p.begin(ctx, req)
	if err != nil {
		return err
	}
	go p.gateAndDispatch(legCtx, leg, req)
	return nil
}

// ResolveSuggestion resumes a suspended request with the corrected or the
// original prompt. It returns ErrNoPendingDecision in any other phase.
func (p *Pipeline) ResolveSuggestion(ctx context.Context, d domain.Decision) error {
	legCtx, leg, req, err := p.resume(ctx, d)
	if err != nil {
		return err
	}
	p.dispatch(legCtx, leg, req)
	return nil
}

// ResolveSuggestionAsync is ResolveSuggestion with the dispatch in the background.
func (p *Pipeline) ResolveSuggestionAsync(ctx context.Context, d domain.Decision) error {
	legCtx, leg, req, err := p.resume(ctx, d)
	if err != nil {
		return err
	}
	go p.dispatch(legCtx, leg, req)
	return nil
}

// Retry resubmits the last request that reached dispatch or was submitted.
func (p *Pipeline) Retry(ctx context.Context) error {
	p.mu.Lock()
	last := p.last
	p.mu.Unlock()
	if last == nil {
		return fmt.Errorf("%w: nothing to retry", domain.ErrNotFound)
	}
	return p.Submit(ctx, *last)
}

// RetryAsync is Retry with the work in the background.
func (p *Pipeline) RetryAsync(ctx context.Context) error {
	p.mu.Lock()
	last := p.last
	p.mu.Unlock()
	if last == nil {
		return fmt.Errorf("%w: nothing to retry", domain.ErrNotFound)
	}
	return p.SubmitAsync(ctx, *last)
}

// Cancel aborts the in-flight request. It reports whether anything was
// cancelled.
func (p *Pipeline) Cancel() bool {
	p.publishMu.Lock()
	defer p.publishMu.Unlock()
	p.mu.Lock()
	switch {
	case p.cancel != nil:
		cancel := p.cancel
		p.mu.Unlock()
		cancel()
		return true
	case p.state.Phase == domain.PhaseAwaitingUserCorrectionDecision:
		p.leg++
		p.pending = nil
		p.state.Suggestion = nil
		p.state.Phase = domain.PhaseFailed
		p.state.LastError = &domain.Failure{Kind: domain.ErrorKindCancelled, Message: cancelledMessage}
		snapshot := p.state.Clone()
		p.mu.Unlock()
		p.hub.Publish(snapshot)
		return true
	default:
		p.mu.Unlock()
		return false
	}
}

func (p *Pipeline) begin(ctx context.Context, req domain.GenerationRequest) (context.Context, uint64, error) {
	if req.Kind.Surface() != p.surface {
		return nil, 0, domain.NewError(domain.ErrorKindValidation,
			fmt.Sprintf("%s requests are not accepted on the %s surface", req.Kind, p.surface), nil)
	}
	if err := req.Validate(); err != nil {
		return nil, 0, err
	}
	aspect, _ := domain.NormalizeAspectRatio(req.Kind, string(req.AspectRatio))
	req.AspectRatio = aspect

	p.publishMu.Lock()
	defer p.publishMu.Unlock()
	p.mu.Lock()
	if p.state.Phase.InFlight() {
		p.mu.Unlock()
		return nil, 0, domain.ErrBusy
	}
	legCtx, leg := p.startLegLocked(ctx)
	stored := req
	p.last = &stored
	p.state = domain.PipelineState{Surface: p.surface, Phase: domain.PhaseCheckingSpelling}
	snapshot := p.state.Clone()
	p.mu.Unlock()

	p.logger.Debug().Str("surface", string(p.surface)).Str("kind", string(req.Kind)).Msg("pipeline: request accepted")
	p.hub.Publish(snapshot)
	return legCtx, leg, nil
}

func (p *Pipeline) resume(ctx context.Context, d domain.Decision) (context.Context, uint64, domain.GenerationRequest, error) {
	if err := d.Validate(); err != nil {
		return nil, 0, domain.GenerationRequest{}, err
	}
	p.publishMu.Lock()
	defer p.publishMu.Unlock()
	p.mu.Lock()
	if p.state.Phase != domain.PhaseAwaitingUserCorrectionDecision || p.pending == nil || p.state.Suggestion == nil {
		p.mu.Unlock()
		return nil, 0, domain.GenerationRequest{}, domain.ErrNoPendingDecision
	}
	req := p.pending.WithPrompt(d.Apply(*p.state.Suggestion))
	p.pending = nil
	p.state.Suggestion = nil
	p.state.Phase = domain.PhaseDispatching
	legCtx, leg := p.startLegLocked(ctx)
	stored := req
	p.last = &stored
	snapshot := p.state.Clone()
	p.mu.Unlock()

	p.logger.Debug().Str("surface", string(p.surface)).Str("decision", string(d)).Msg("pipeline: suggestion resolved")
	p.hub.Publish(snapshot)
	return legCtx, leg, req, nil
}

func (p *Pipeline) startLegLocked(ctx context.Context) (context.Context, uint64) {
	legCtx, cancel := context.WithCancel(ctx)
	p.leg++
	p.cancel = cancel
	return legCtx, p.leg
}

func (p *Pipeline) gateAndDispatch(ctx context.Context, leg uint64, req domain.GenerationRequest) {
	outcome := p.gate.Check(ctx, req.Prompt)
	if err := ctx.Err(); err != nil {
		p.fail(ctx, leg, req, err)
		return
	}

	if !outcome.NoIssue() {
		p.publishMu.Lock()
		defer p.publishMu.Unlock()
		p.mu.Lock()
		if p.leg != leg {
			p.mu.Unlock()
			return
		}
		p.endLegLocked()
		pending := req
		p.pending = &pending
		s := *outcome.Suggestion
		p.state.Suggestion = &s
		p.state.Phase = domain.PhaseAwaitingUserCorrectionDecision
		snapshot := p.state.Clone()
		p.mu.Unlock()
		p.hub.Publish(snapshot)
		return
	}

	if !p.transition(leg, domain.PhaseDispatching) {
		return
	}
	p.dispatch(ctx, leg, req)
}

func (p *Pipeline) dispatch(ctx context.Context, leg uint64, req domain.GenerationRequest) {
	artifact, err := p.produce(ctx, leg, req)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		p.fail(ctx, leg, req, err)
		return
	}

	id := p.newID()
	url, err := p.media.Save(ctx, media.ObjectKey(id, artifact.MIMEType), domain.Media{MIMEType: artifact.MIMEType, Data: artifact.Data})
	if err != nil {
		p.fail(ctx, leg, req, fmt.Errorf("materialise artifact: %w", err))
		return
	}

	result := domain.GenerationResult{
		ID:            id,
		MediaURL:      url,
		DisplayPrompt: req.Prompt,
		StyleID:       req.StyleID,
		CreatedAt:     p.now().UTC().Truncate(time.Millisecond),
		AspectRatio:   req.AspectRatio,
		MediaKind:     domain.MediaKindImage,
	}
	switch req.Kind {
	case domain.KindImageEdit:
		result.DisplayPrompt = "Edited: " + req.Prompt
		result.StyleID = domain.StyleIDCustomEdit
	case domain.KindVideoCreate:
		result.StyleID = domain.StyleIDVideo
		result.MediaKind = domain.MediaKindVideo
	}
	p.succeed(leg, result)
}

func (p *Pipeline) produce(ctx context.Context, leg uint64, req domain.GenerationRequest) (capability.Artifact, error) {
	switch req.Kind {
	case domain.KindImageCreate:
		artifacts, err := p.images.CreateImage(ctx, req.ComposedPrompt(), req.AspectRatio)
		return single(artifacts, err)
	case domain.KindImageEdit:
		artifacts, err := p.images.EditImage(ctx, *req.SourceMedia, req.Prompt)
		return single(artifacts, err)
	case domain.KindVideoCreate:
		job, err := p.videos.CreateVideoJob(ctx, req.Prompt, req.AspectRatio, req.SourceMedia)
		if err != nil {
			return capability.Artifact{}, err
		}
		if !p.transition(leg, domain.PhasePolling) {
			return capability.Artifact{}, context.Canceled
		}
		status, err := p.poll(ctx, job)
		if err != nil {
			return capability.Artifact{}, err
		}
		if status.Locator == "" {
			return capability.Artifact{}, domain.NewError(domain.ErrorKindNoArtifact, noVideoMessage, nil)
		}
		artifact, err := p.videos.FetchMedia(ctx, status.Locator)
		if err != nil {
			return capability.Artifact{}, fmt.Errorf("fetch video: %w", err)
		}
		if len(artifact.Data) == 0 {
			return capability.Artifact{}, domain.NewError(domain.ErrorKindNoArtifact, noVideoMessage, nil)
		}
		if artifact.MIMEType == "" {
			artifact.MIMEType = "video/mp4"
		}
		return artifact, nil
	default:
		return capability.Artifact{}, domain.NewError(domain.ErrorKindValidation, fmt.Sprintf("unsupported request kind %q", req.Kind), nil)
	}
}

// poll waits one interval before every status query and stops as soon as
// ctx is done.
func (p *Pipeline) poll(ctx context.Context, job capability.JobHandle) (capability.JobStatus, error) {
	if p.pollTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, p.pollTimeout, errPollTimeout)
		defer cancel()
	}

	timer := time.NewTimer(p.pollInterval)
	defer timer.Stop()
	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return capability.JobStatus{}, context.Cause(ctx)
		case <-timer.C:
		}
		if ctx.Err() != nil {
			return capability.JobStatus{}, context.Cause(ctx)
		}
		status, err := p.videos.PollVideoJob(ctx, job)
		if err != nil {
			if ctx.Err() != nil {
				return capability.JobStatus{}, context.Cause(ctx)
			}
			return capability.JobStatus{}, err
		}
		p.logger.Debug().Str("job", job.ID).Int("attempt", attempt).Bool("done", status.Done).Msg("pipeline: polled video job")
		if status.Done {
			return status, nil
		}
		timer.Reset(p.pollInterval)
	}
}

func single(artifacts []capability.Artifact, err error) (capability.Artifact, error) {
	if err != nil {
		return capability.Artifact{}, err
	}
	if len(artifacts) != 1 || len(artifacts[0].Data) == 0 {
		return capability.Artifact{}, domain.NewError(domain.ErrorKindNoArtifact, noArtifactMessage,
			fmt.Errorf("%w: got %d artifacts", domain.ErrNoArtifact, len(artifacts)))
	}
	return artifacts[0], nil
}

func (p *Pipeline) transition(leg uint64, phase domain.Phase) bool {
	p.publishMu.Lock()
	defer p.publishMu.Unlock()
	p.mu.Lock()
	if p.leg != leg {
		p.mu.Unlock()
		return false
	}
	p.state.Phase = phase
	snapshot := p.state.Clone()
	p.mu.Unlock()
	p.hub.Publish(snapshot)
	return true
}

// succeed records the result with the sink before the new phase is
// published. A submission arriving meanwhile waits for both.
func (p *Pipeline) succeed(leg uint64, result domain.GenerationResult) {
	p.publishMu.Lock()
	defer p.publishMu.Unlock()
	p.mu.Lock()
	if p.leg != leg {
		p.mu.Unlock()
		return
	}
	p.endLegLocked()
	r := result
	p.state.Phase = domain.PhaseSucceeded
	p.state.LastResult = &r
	p.state.LastError = nil
	snapshot := p.state.Clone()
	p.mu.Unlock()

	if p.sink != nil {
		p.sink.Append(result)
	}
	p.logger.Info().Str("surface", string(p.surface)).Str("id", result.ID).Msg("pipeline: generation succeeded")
	p.hub.Publish(snapshot)
}

func (p *Pipeline) fail(ctx context.Context, leg uint64, req domain.GenerationRequest, err error) {
	de := p.classify(ctx, req, err)

	p.publishMu.Lock()
	defer p.publishMu.Unlock()
	p.mu.Lock()
	if p.leg != leg {
		p.mu.Unlock()
		return
	}
	p.endLegLocked()
	p.state.Phase = domain.PhaseFailed
	p.state.LastResult = nil
	p.state.Suggestion = nil
	p.state.LastError = de.Failure()
	snapshot := p.state.Clone()
	p.mu.Unlock()

	p.logger.Warn().Err(err).Str("surface", string(p.surface)).Str("kind", string(de.Kind)).Msg("pipeline: generation failed")
	p.hub.Publish(snapshot)
}

func (p *Pipeline) endLegLocked() {
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

func (p *Pipeline) classify(ctx context.Context, req domain.GenerationRequest, err error) *domain.Error {
	var de *domain.Error
	switch {
	case errors.As(err, &de):
		return de
	case errors.Is(err, errPollTimeout):
		return domain.NewError(domain.ErrorKindProvider, pollTimeoutMessage, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded), ctx.Err() != nil:
		return domain.NewError(domain.ErrorKindCancelled, cancelledMessage, err)
	case errors.Is(err, capability.ErrCredentialRequired):
		msg := imageCredential
		if req.Kind == domain.KindVideoCreate {
			msg = videoCredential
		}
		return domain.NewError(domain.ErrorKindCredentialRequired, msg, err)
	}
	msg := rootMessage(err)
	if msg == "" {
		msg = defaultImageFailure
		if req.Kind == domain.KindVideoCreate {
			msg = defaultVideoFailure
		}
	}
	return domain.NewError(domain.ErrorKindProvider, msg, err)
}

// rootMessage is the text of the innermost wrapped error, without the
// context prefixes added on the way up.
func rootMessage(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return strings.TrimSpace(err.Error())
		}
		err = next
	}
}
