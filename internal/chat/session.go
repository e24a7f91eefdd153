// Package chat implements a streaming conversation with the assistant.
package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"vaultx/internal/capability"
	"vaultx/internal/domain"
	"vaultx/internal/infra"
	"vaultx/internal/media"
	"vaultx/internal/notify"
	"vaultx/internal/spellgate"
)

const (
	// DefaultSpellcheckMinLength is the input length at or below which the
	// spelling gate is skipped.
	DefaultSpellcheckMinLength = 5

	networkNotice    = "I encountered a network issue. Please try again."
	cancelledNotice  = "Response cancelled."
	attachmentNotice = "I couldn't store your attachment. Please try again."
)

// EventKind names what changed in a session.
type EventKind string

const (
	EventMessageAppended  EventKind = "message_appended"
	EventFragment         EventKind = "fragment"
	EventMessageFinalized EventKind = "message_finalized"
	EventSuggestion       EventKind = "suggestion"
	EventSuggestionClosed EventKind = "suggestion_closed"
	EventConfigChanged    EventKind = "config_changed"
)

// Config is the model selection applied to the next turn.
type Config struct {
	Tier     domain.ModelTier
	Thinking bool
}

// Event is delivered to observers after every observable change.
type Event struct {
	Kind       EventKind
	Message    domain.ChatMessage
	Fragment   string
	Suggestion *domain.SpellingSuggestion
	Config     Config
}

// State is a point-in-time copy of the session.
type State struct {
	Messages   []domain.ChatMessage
	Config     Config
	Busy       bool
	Suggestion *domain.SpellingSuggestion
}

type Options struct {
	SpellcheckMinLength int
	Now                 func() time.Time
	NewID               func() string
	Logger              *infra.Logger
}

type pendingTurn struct {
	text       string
	attachment *domain.Media
}

// Session owns the transcript. Only one turn may be in flight.
type Session struct {
	streamer capability.ChatStreamer
	gate     spellgate.Checker
	media    media.Store
	minGate  int
	now      func() time.Time
	newID    func() string
	logger   *infra.Logger

	mu         sync.Mutex
	messages   []domain.ChatMessage
	config     Config
	busy       bool
	pending    *pendingTurn
	suggestion *domain.SpellingSuggestion
	leg        uint64
	cancel     context.CancelFunc

	hub notify.Hub[Event]
}

func New(streamer capability.ChatStreamer, gate spellgate.Checker, store media.Store, opts Options) *Session {
	s := &Session{
		streamer: streamer,
		gate:     gate,
		media:    store,
		minGate:  opts.SpellcheckMinLength,
		now:      opts.Now,
		newID:    opts.NewID,
		logger:   infra.LoggerOrDiscard(opts.Logger),
		config:   Config{Tier: domain.TierFast},
	}
	if s.minGate <= 0 {
		s.minGate = DefaultSpellcheckMinLength
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	if s.media == nil {
		s.media = media.Inline{}
	}
	return s
}

func (s *Session) Subscribe(fn func(Event)) func() {
	return s.hub.Subscribe(fn)
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := make([]domain.ChatMessage, len(s.messages))
	for i, m := range s.messages {
		msgs[i] = m.Clone()
	}
	st := State{Messages: msgs, Config: s.config, Busy: s.busy}
	if s.suggestion != nil {
		sg := *s.suggestion
		st.Suggestion = &sg
	}
	return st
}

// SelectModelTier switches the model class. Choosing fast also leaves
// thinking mode.
func (s *Session) SelectModelTier(tier domain.ModelTier) {
	s.mu.Lock()
	s.config.Tier = tier
	if tier == domain.TierFast {
		s.config.Thinking = false
	}
	cfg := s.config
	s.mu.Unlock()
	s.hub.Publish(Event{Kind: EventConfigChanged, Config: cfg})
}

// SetThinkingMode toggles extended reasoning. Enabling it forces the smart tier.
func (s *Session) SetThinkingMode(enabled bool) {
	s.mu.Lock()
	s.config.Thinking = enabled
	if enabled {
		s.config.Tier = domain.TierSmart
	}
	cfg := s.config
	s.mu.Unlock()
	s.hub.Publish(Event{Kind: EventConfigChanged, Config: cfg})
}

// Send runs one turn to completion, or until it suspends on a spelling
// suggestion.
func (s *Session) Send(ctx context.Context, text string, attachment *domain.Media) error {
	legCtx, leg, err := s.begin(ctx, text, attachment)
	if err != nil {
		return err
	}
	s.gateAndStream(legCtx, leg, text, attachment)
	return nil
}

// SendAsync claims the session synchronously and streams in the background.
func (s *Session) SendAsync(ctx context.Context, text string, attachment *domain.Media) error {
	legCtx, leg, err := s.begin(ctx, text, attachment)
	if err != nil {
		return err
	}
	go s.gateAndStream(legCtx, leg, text, attachment)
	return nil
}

// ResolveSuggestion continues a suspended turn with the chosen text.
func (s *Session) ResolveSuggestion(ctx context.Context, d domain.Decision) error {
	legCtx, leg, turn, err := s.resume(ctx, d)
	if err != nil {
		return err
	}
	s.stream(legCtx, leg, turn.text, turn.attachment)
	return nil
}

func (s *Session) ResolveSuggestionAsync(ctx context.Context, d domain.Decision) error {
	legCtx, leg, turn, err := s.resume(ctx, d)
	if err != nil {
		return err
	}
	go s.stream(legCtx, leg, turn.text, turn.attachment)
	return nil
}

// Cancel aborts the turn in flight. A pending suggestion is dropped without
// sending anything.
func (s *Session) Cancel() bool {
	s.mu.Lock()
	if s.cancel != nil {
		cancel := s.cancel
		s.mu.Unlock()
		cancel()
		return true
	}
	if s.pending == nil {
		s.mu.Unlock()
		return false
	}
	s.leg++
	s.pending = nil
	s.suggestion = nil
	s.busy = false
	s.mu.Unlock()
	s.hub.Publish(Event{Kind: EventSuggestionClosed})
	return true
}

func (s *Session) begin(ctx context.Context, text string, attachment *domain.Media) (context.Context, uint64, error) {
	if strings.TrimSpace(text) == "" && attachment.IsZero() {
		return nil, 0, domain.NewError(domain.ErrorKindValidation, "message text or attachment is required", nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return nil, 0, domain.ErrBusy
	}
	s.busy = true
	legCtx, leg := s.startLegLocked(ctx)
	return legCtx, leg, nil
}

func (s *Session) resume(ctx context.Context, d domain.Decision) (context.Context, uint64, pendingTurn, error) {
	if err := d.Validate(); err != nil {
		return nil, 0, pendingTurn{}, err
	}
	s.mu.Lock()
	if s.pending == nil || s.suggestion == nil {
		s.mu.Unlock()
		return nil, 0, pendingTurn{}, domain.ErrNoPendingDecision
	}
	turn := *s.pending
	turn.text = d.Apply(*s.suggestion)
	s.pending = nil
	s.suggestion = nil
	legCtx, leg := s.startLegLocked(ctx)
	s.mu.Unlock()
	s.hub.Publish(Event{Kind: EventSuggestionClosed})
	return legCtx, leg, turn, nil
}

func (s *Session) startLegLocked(ctx context.Context) (context.Context, uint64) {
	legCtx, cancel := context.WithCancel(ctx)
	s.leg++
	s.cancel = cancel
	return legCtx, s.leg
}

func (s *Session) endLegLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *Session) gateAndStream(ctx context.Context, leg uint64, text string, attachment *domain.Media) {
	if utf8.RuneCountInString(text) > s.minGate {
		outcome := s.gate.Check(ctx, text)
		if ctx.Err() != nil {
			s.release(leg)
			return
		}
		if !outcome.NoIssue() {
			s.mu.Lock()
			if s.leg != leg {
				s.mu.Unlock()
				return
			}
			s.endLegLocked()
			s.pending = &pendingTurn{text: text, attachment: attachment}
			sg := *outcome.Suggestion
			s.suggestion = &sg
			s.mu.Unlock()
			s.hub.Publish(Event{Kind: EventSuggestion, Suggestion: &sg})
			return
		}
	}
	s.stream(ctx, leg, text, attachment)
}

func (s *Session) release(leg uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.leg == leg {
		s.endLegLocked()
		s.busy = false
	}
}

// abandon records the user's turn without its attachment, followed by an
// assistant notice, and frees the session.
func (s *Session) abandon(leg uint64, text, notice string) {
	s.mu.Lock()
	if s.leg != leg {
		s.mu.Unlock()
		return
	}
	user := domain.ChatMessage{ID: s.newID(), Role: domain.RoleUser, Text: text, CreatedAt: s.now(), Finalized: true}
	n := domain.ChatMessage{ID: s.newID(), Role: domain.RoleAssistant, Text: notice, CreatedAt: s.now(), Finalized: true}
	s.messages = append(s.messages, user, n)
	s.endLegLocked()
	s.busy = false
	s.mu.Unlock()

	s.hub.Publish(Event{Kind: EventMessageAppended, Message: user})
	s.hub.Publish(Event{Kind: EventMessageAppended, Message: n})
}

func (s *Session) stream(ctx context.Context, leg uint64, text string, attachment *domain.Media) {
	var attachments []domain.Attachment
	if !attachment.IsZero() {
		url, err := s.media.Save(ctx, media.ObjectKey(s.newID(), attachment.MIMEType), *attachment)
		if err != nil {
			s.logger.Warn().Err(err).Msg("chat: attachment could not be stored")
			notice := attachmentNotice
			if errors.Is(err, context.Canceled) {
				notice = cancelledNotice
			}
			s.abandon(leg, text, notice)
			return
		}
		attachments = []domain.Attachment{{Kind: attachment.Kind(), MediaURL: url}}
	}

	s.mu.Lock()
	if s.leg != leg {
		s.mu.Unlock()
		return
	}
	transcript := make([]capability.Turn, 0, len(s.messages))
	for _, m := range s.messages {
		if m.Finalized {
			transcript = append(transcript, capability.Turn{Role: m.Role, Text: m.Text})
		}
	}
	tier := capability.TierConfig{Tier: s.config.Tier, Thinking: s.config.Thinking}
	if tier.Thinking || attachments != nil {
		tier.Tier = domain.TierSmart
	}
	user := domain.ChatMessage{
		ID:          s.newID(),
		Role:        domain.RoleUser,
		Text:        text,
		CreatedAt:   s.now(),
		Attachments: attachments,
		Finalized:   true,
	}
	reply := domain.ChatMessage{
		ID:             s.newID(),
		Role:           domain.RoleAssistant,
		CreatedAt:      s.now(),
		IsThinkingMode: s.config.Thinking,
	}
	s.messages = append(s.messages, user, reply)
	idx := len(s.messages) - 1
	s.mu.Unlock()

	s.hub.Publish(Event{Kind: EventMessageAppended, Message: user.Clone()})
	s.hub.Publish(Event{Kind: EventMessageAppended, Message: reply})

	var streamErr error
	for fragment, err := range s.streamer.StreamChat(ctx, transcript, capability.TurnInput{Text: text, Attachment: attachment}, tier) {
		if err != nil {
			streamErr = err
			break
		}
		if fragment == "" {
			continue
		}
		s.mu.Lock()
		s.messages[idx].Text += fragment
		snapshot := s.messages[idx].Clone()
		s.mu.Unlock()
		s.hub.Publish(Event{Kind: EventFragment, Message: snapshot, Fragment: fragment})
	}
	if streamErr == nil && ctx.Err() != nil {
		streamErr = ctx.Err()
	}

	s.mu.Lock()
	s.messages[idx].Finalized = true
	finalized := s.messages[idx].Clone()
	var notice *domain.ChatMessage
	if streamErr != nil {
		text := networkNotice
		if errors.Is(streamErr, context.Canceled) {
			text = cancelledNotice
		}
		n := domain.ChatMessage{ID: s.newID(), Role: domain.RoleAssistant, Text: text, CreatedAt: s.now(), Finalized: true}
		s.messages = append(s.messages, n)
		notice = &n
	}
	if s.leg == leg {
		s.endLegLocked()
		s.busy = false
	}
	s.mu.Unlock()

	s.hub.Publish(Event{Kind: EventMessageFinalized, Message: finalized})
	if notice != nil {
		s.logger.Warn().Err(streamErr).Str("tier", string(tier.Tier)).Msg("chat: stream interrupted")
		s.hub.Publish(Event{Kind: EventMessageAppended, Message: *notice})
	}
}
