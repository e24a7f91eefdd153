// Package orchestrator wires the generation surfaces, the chat session and
// history into one application object.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"vaultx/internal/capability"
	"vaultx/internal/chat"
	"vaultx/internal/domain"
	"vaultx/internal/history"
	"vaultx/internal/infra"
	"vaultx/internal/infra/credentials"
	"vaultx/internal/media"
	"vaultx/internal/notify"
	"vaultx/internal/pipeline"
	"vaultx/internal/spellgate"
	"vaultx/internal/styles"
)

const (
	HistoryKey = "vaultx_history"
	ThemeKey   = "vaultx_theme"

	persistTimeout = 5 * time.Second
)

// KV is the persistence the orchestrator needs for history and preferences.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// KeySetter is implemented by providers whose credential can be replaced at
// runtime.
type KeySetter interface {
	SetAPIKey(key string)
}

type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

func ParseTheme(raw string) (Theme, error) {
	switch Theme(strings.ToLower(strings.TrimSpace(raw))) {
	case ThemeLight:
		return ThemeLight, nil
	case ThemeDark:
		return ThemeDark, nil
	}
	return "", domain.NewError(domain.ErrorKindValidation, fmt.Sprintf("unknown theme %q", raw), nil)
}

// GenerationInput is a submission as it arrives from a client. Kind may be
// left empty and is then inferred from the surface and source media.
type GenerationInput struct {
	Kind        domain.RequestKind
	Prompt      string
	StyleID     string
	AspectRatio string
	SourceMedia *domain.Media
}

type EventType string

const (
	EventState   EventType = "state"
	EventChat    EventType = "chat"
	EventHistory EventType = "history"
	EventTheme   EventType = "theme"
	EventDetail  EventType = "detail"
)

// Event fans every component notification into one stream.
type Event struct {
	Type    EventType
	Surface domain.Surface
	State   *domain.PipelineState
	Chat    *chat.Event
	History []domain.GenerationResult
	Theme   Theme
	Detail  *domain.GenerationResult
}

type Deps struct {
	Client      capability.Client
	KV          KV
	Media       media.Store
	Styles      *styles.Catalog
	Credentials *credentials.Store
}

type Options struct {
	PollInterval            time.Duration
	PollTimeout             time.Duration
	SpellcheckTimeout       time.Duration
	SpellcheckCacheSize     int
	ChatSpellcheckMinLength int
	Logger                  *infra.Logger
}

type Orchestrator struct {
	client      capability.Client
	kv          KV
	styles      *styles.Catalog
	credentials *credentials.Store
	media       media.Store
	history     *history.Store
	pipelines   map[domain.Surface]*pipeline.Pipeline
	chat        *chat.Session
	logger      *infra.Logger

	mu     sync.Mutex
	theme  Theme
	detail *domain.GenerationResult

	persistMu sync.Mutex
	lastSaved string

	hub         notify.Hub[Event]
	unsubscribe []func()
}

func New(deps Deps, opts Options) *Orchestrator {
	logger := infra.LoggerOrDiscard(opts.Logger)
	catalog := deps.Styles
	if catalog == nil {
		catalog = styles.Builtin()
	}
	if deps.Media == nil {
		deps.Media = media.Inline{}
	}
	creds := deps.Credentials
	if creds == nil && deps.KV != nil {
		creds = credentials.NewStore(deps.KV)
	}

	o := &Orchestrator{
		client:      deps.Client,
		kv:          deps.KV,
		styles:      catalog,
		credentials: creds,
		media:       deps.Media,
		history:     history.NewStore(logger),
		pipelines:   make(map[domain.Surface]*pipeline.Pipeline, 2),
		logger:      logger,
		theme:       ThemeLight,
	}

	gate := spellgate.New(deps.Client, spellgate.Options{
		Timeout:   opts.SpellcheckTimeout,
		CacheSize: opts.SpellcheckCacheSize,
		Logger:    logger,
	})
	for _, surface := range []domain.Surface{domain.SurfaceImage, domain.SurfaceVideo} {
		p := pipeline.New(surface, pipeline.Deps{
			Gate:   gate,
			Images: deps.Client,
			Videos: deps.Client,
			Media:  deps.Media,
			Sink:   o.history,
		}, pipeline.Options{
			PollInterval: opts.PollInterval,
			PollTimeout:  opts.PollTimeout,
			Logger:       logger,
		})
		o.pipelines[surface] = p
		o.unsubscribe = append(o.unsubscribe, p.Subscribe(func(st domain.PipelineState) {
			o.hub.Publish(Event{Type: EventState, Surface: st.Surface, State: &st})
		}))
	}

	o.chat = chat.New(deps.Client, gate, deps.Media, chat.Options{
		SpellcheckMinLength: opts.ChatSpellcheckMinLength,
		Logger:              logger,
	})
	o.unsubscribe = append(o.unsubscribe,
		o.chat.Subscribe(func(e chat.Event) {
			o.hub.Publish(Event{Type: EventChat, Surface: domain.SurfaceChat, Chat: &e})
		}),
		o.history.Subscribe(func(items []domain.GenerationResult) {
			o.persistHistory()
			o.hub.Publish(Event{Type: EventHistory, History: items})
		}),
	)
	return o
}

// Load restores history and theme from the key-value store. A corrupt history
// blob is logged and replaced by an empty history.
func (o *Orchestrator) Load(ctx context.Context) error {
	if o.kv == nil {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		blob, ok, err := o.kv.Get(gctx, HistoryKey)
		if err != nil {
			return fmt.Errorf("orchestrator: read history: %w", err)
		}
		if !ok {
			return nil
		}
		o.persistMu.Lock()
		o.lastSaved = blob
		o.persistMu.Unlock()
		if err := o.history.Load(blob); err != nil && !errors.Is(err, domain.ErrPersistenceCorrupt) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		raw, ok, err := o.kv.Get(gctx, ThemeKey)
		if err != nil {
			return fmt.Errorf("orchestrator: read theme: %w", err)
		}
		if !ok {
			return nil
		}
		theme, err := ParseTheme(raw)
		if err != nil {
			o.logger.Warn().Str("theme", raw).Msg("orchestrator: ignoring stored theme")
			return nil
		}
		o.mu.Lock()
		o.theme = theme
		o.mu.Unlock()
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}
	o.logger.Info().Int("history", o.history.Len()).Str("theme", string(o.Theme())).Msg("orchestrator: state restored")
	return nil
}

func (o *Orchestrator) persistHistory() {
	if o.kv == nil {
		return
	}
	o.persistMu.Lock()
	defer o.persistMu.Unlock()

	blob, err := o.history.Serialize()
	if err != nil {
		o.logger.Error().Err(err).Msg("orchestrator: serialize history")
		return
	}
	if blob == o.lastSaved {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := o.kv.Set(ctx, HistoryKey, blob); err != nil {
		o.logger.Error().Err(err).Msg("orchestrator: persist history")
		return
	}
	o.lastSaved = blob
}

// Close detaches internal subscriptions.
func (o *Orchestrator) Close() {
	for _, cancel := range o.unsubscribe {
		cancel()
	}
	o.unsubscribe = nil
}

func (o *Orchestrator) Subscribe(fn func(Event)) func() {
	return o.hub.Subscribe(fn)
}

func (o *Orchestrator) Styles() []styles.Style {
	return o.styles.All()
}

func (o *Orchestrator) Pipeline(surface domain.Surface) (*pipeline.Pipeline, error) {
	p, ok := o.pipelines[surface]
	if !ok {
		return nil, fmt.Errorf("%w: %q has no generation pipeline", domain.ErrUnknownSurface, surface)
	}
	return p, nil
}

func (o *Orchestrator) State(surface domain.Surface) (domain.PipelineState, error) {
	p, err := o.Pipeline(surface)
	if err != nil {
		return domain.PipelineState{}, err
	}
	return p.State(), nil
}

// BuildRequest resolves style and kind for a submission on surface.
func (o *Orchestrator) BuildRequest(surface domain.Surface, in GenerationInput) (domain.GenerationRequest, error) {
	kind := in.Kind
	if kind == "" {
		switch surface {
		case domain.SurfaceImage:
			kind = domain.KindImageCreate
			if !in.SourceMedia.IsZero() {
				kind = domain.KindImageEdit
			}
		case domain.SurfaceVideo:
			kind = domain.KindVideoCreate
		default:
			return domain.GenerationRequest{}, fmt.Errorf("%w: %q", domain.ErrUnknownSurface, surface)
		}
	}

	req := domain.GenerationRequest{
		Kind:        kind,
		Prompt:      in.Prompt,
		AspectRatio: domain.AspectRatio(in.AspectRatio),
		SourceMedia: in.SourceMedia,
	}
	switch kind {
	case domain.KindImageCreate:
		style := o.styles.Lookup(in.StyleID)
		req.StyleID = style.ID
		req.StyleModifier = style.PromptModifier
	case domain.KindImageEdit:
		req.StyleID = domain.StyleIDCustomEdit
	case domain.KindVideoCreate:
		req.StyleID = domain.StyleIDVideo
	}
	return req, nil
}

// Submit runs a request to completion or until it waits for a spelling decision.
func (o *Orchestrator) Submit(ctx context.Context, surface domain.Surface, in GenerationInput) error {
	p, req, err := o.prepare(surface, in)
	if err != nil {
		return err
	}
	return p.Submit(ctx, req)
}

func (o *Orchestrator) SubmitAsync(ctx context.Context, surface domain.Surface, in GenerationInput) error {
	p, req, err := o.prepare(surface, in)
	if err != nil {
		return err
	}
	return p.SubmitAsync(ctx, req)
}

func (o *Orchestrator) prepare(surface domain.Surface, in GenerationInput) (*pipeline.Pipeline, domain.GenerationRequest, error) {
	p, err := o.Pipeline(surface)
	if err != nil {
		return nil, domain.GenerationRequest{}, err
	}
	req, err := o.BuildRequest(surface, in)
	if err != nil {
		return nil, domain.GenerationRequest{}, err
	}
	return p, req, nil
}

func (o *Orchestrator) ResolveSuggestion(ctx context.Context, surface domain.Surface, d domain.Decision) error {
	p, err := o.Pipeline(surface)
	if err != nil {
		return err
	}
	return p.ResolveSuggestion(ctx, d)
}

func (o *Orchestrator) ResolveSuggestionAsync(ctx context.Context, surface domain.Surface, d domain.Decision) error {
	p, err := o.Pipeline(surface)
	if err != nil {
		return err
	}
	return p.ResolveSuggestionAsync(ctx, d)
}

// Retry resubmits the last request of surface, typically after Reauthenticate.
func (o *Orchestrator) Retry(ctx context.Context, surface domain.Surface) error {
	p, err := o.Pipeline(surface)
	if err != nil {
		return err
	}
	return p.Retry(ctx)
}

func (o *Orchestrator) RetryAsync(ctx context.Context, surface domain.Surface) error {
	p, err := o.Pipeline(surface)
	if err != nil {
		return err
	}
	return p.RetryAsync(ctx)
}

// CancelGeneration aborts the in-flight request of surface. It reports
// whether anything was cancelled.
func (o *Orchestrator) CancelGeneration(surface domain.Surface) (bool, error) {
	if surface == domain.SurfaceChat {
		return o.chat.Cancel(), nil
	}
	p, err := o.Pipeline(surface)
	if err != nil {
		return false, err
	}
	return p.Cancel(), nil
}

func (o *Orchestrator) Chat() *chat.Session {
	return o.chat
}

func (o *Orchestrator) History() []domain.GenerationResult {
	return o.history.All()
}

// OpenDetail marks a history entry as the one being viewed.
func (o *Orchestrator) OpenDetail(id string) (domain.GenerationResult, error) {
	r, ok := o.history.Get(id)
	if !ok {
		return domain.GenerationResult{}, fmt.Errorf("%w: result %q", domain.ErrNotFound, id)
	}
	o.mu.Lock()
	o.detail = &r
	o.mu.Unlock()
	o.hub.Publish(Event{Type: EventDetail, Detail: &r})
	return r, nil
}

func (o *Orchestrator) CloseDetail() {
	o.mu.Lock()
	o.detail = nil
	o.mu.Unlock()
	o.hub.Publish(Event{Type: EventDetail})
}

func (o *Orchestrator) Detail() (domain.GenerationResult, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.detail == nil {
		return domain.GenerationResult{}, false
	}
	return *o.detail, true
}

func (o *Orchestrator) Theme() Theme {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.theme
}

func (o *Orchestrator) SetTheme(ctx context.Context, theme Theme) error {
	theme, err := ParseTheme(string(theme))
	if err != nil {
		return err
	}
	if o.kv != nil {
		if err := o.kv.Set(ctx, ThemeKey, string(theme)); err != nil {
			return fmt.Errorf("orchestrator: persist theme: %w", err)
		}
	}
	o.mu.Lock()
	o.theme = theme
	o.mu.Unlock()
	o.hub.Publish(Event{Type: EventTheme, Theme: theme})
	return nil
}

func (o *Orchestrator) ToggleTheme(ctx context.Context) (Theme, error) {
	next := ThemeDark
	if o.Theme() == ThemeDark {
		next = ThemeLight
	}
	if err := o.SetTheme(ctx, next); err != nil {
		return "", err
	}
	return next, nil
}

// Reauthenticate stores a new provider key and applies it to the live
// client when it supports replacement.
func (o *Orchestrator) Reauthenticate(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.NewError(domain.ErrorKindValidation, "api key is required", nil)
	}
	if o.credentials != nil {
		if err := o.credentials.SetGeminiAPIKey(ctx, key); err != nil {
			return fmt.Errorf("orchestrator: store api key: %w", err)
		}
	}
	if setter, ok := o.client.(KeySetter); ok {
		setter.SetAPIKey(key)
	} else {
		o.logger.Warn().Msg("orchestrator: provider does not accept runtime keys; key stored for next start")
	}
	return nil
}
