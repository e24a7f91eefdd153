package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"vaultx/internal/chat"
	"vaultx/internal/domain"
	"vaultx/internal/orchestrator"
)

const (
	eventsWriteWait = 10 * time.Second
	eventsPongWait  = 60 * time.Second
	eventsPingEvery = (eventsPongWait * 9) / 10
	eventsBuffer    = 256
)

type eventDTO struct {
	Type       string         `json:"type"`
	Surface    string         `json:"surface,omitempty"`
	State      *stateDTO      `json:"state,omitempty"`
	Event      string         `json:"event,omitempty"`
	Message    *messageDTO    `json:"message,omitempty"`
	Fragment   string         `json:"fragment,omitempty"`
	Suggestion *suggestionDTO `json:"suggestion,omitempty"`
	Config     *chatConfigDTO `json:"config,omitempty"`
	Chat       *chatStateDTO  `json:"chat,omitempty"`
	History    []resultDTO    `json:"history,omitempty"`
	Theme      string         `json:"theme,omitempty"`
	Detail     *resultDTO     `json:"detail,omitempty"`
}

func toEventDTO(e orchestrator.Event) eventDTO {
	out := eventDTO{Type: string(e.Type), Surface: string(e.Surface)}
	switch e.Type {
	case orchestrator.EventState:
		if e.State != nil {
			st := toStateDTO(*e.State)
			out.State = &st
		}
	case orchestrator.EventChat:
		if e.Chat != nil {
			out.Event = string(e.Chat.Kind)
			out.Fragment = e.Chat.Fragment
			out.Suggestion = toSuggestionDTO(e.Chat.Suggestion)
			switch e.Chat.Kind {
			case chat.EventMessageAppended, chat.EventFragment, chat.EventMessageFinalized:
				m := toMessageDTO(e.Chat.Message)
				out.Message = &m
			case chat.EventConfigChanged:
				c := toChatConfigDTO(e.Chat.Config)
				out.Config = &c
			}
		}
	case orchestrator.EventHistory:
		out.History = toResultDTOs(e.History)
	case orchestrator.EventTheme:
		out.Theme = string(e.Theme)
	case orchestrator.EventDetail:
		if e.Detail != nil {
			d := toResultDTO(*e.Detail)
			out.Detail = &d
		}
	}
	return out
}

// Events streams every engine notification over a websocket. The first
// frames are a snapshot of the current state.
func (a *App) Events(w http.ResponseWriter, r *http.Request) {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := conn.SetReadDeadline(time.Now().Add(eventsPongWait)); err != nil {
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(eventsPongWait))
	})

	writeCh := make(chan eventDTO, eventsBuffer)
	push := func(e eventDTO) {
		select {
		case writeCh <- e:
		default:
			a.Logger.Warn().Str("type", e.Type).Msg("http: events client too slow, dropping frame")
		}
	}

	for _, surface := range []domain.Surface{domain.SurfaceImage, domain.SurfaceVideo} {
		if st, err := a.Orch.State(surface); err == nil {
			dto := toStateDTO(st)
			push(eventDTO{Type: string(orchestrator.EventState), Surface: string(surface), State: &dto})
		}
	}
	chatState := toChatStateDTO(a.Orch.Chat().State())
	push(eventDTO{Type: string(orchestrator.EventChat), Surface: string(domain.SurfaceChat), Event: "snapshot", Chat: &chatState})
	push(eventDTO{Type: string(orchestrator.EventTheme), Theme: string(a.Orch.Theme())})

	unsubscribe := a.Orch.Subscribe(func(e orchestrator.Event) { push(toEventDTO(e)) })
	defer unsubscribe()

	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(eventsPingEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case out := <-writeCh:
			if err := conn.SetWriteDeadline(time.Now().Add(eventsWriteWait)); err != nil {
				return
			}
			if err := conn.WriteJSON(out); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.SetWriteDeadline(time.Now().Add(eventsWriteWait)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
