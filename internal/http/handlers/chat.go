package handlers

import (
	"net/http"

	"vaultx/internal/domain"
)

type chatMessageRequest struct {
	Text       string `json:"text"`
	Attachment string `json:"attachment"`
}

type tierRequest struct {
	Tier string `json:"tier"`
}

type thinkingRequest struct {
	Enabled bool `json:"enabled"`
}

func (a *App) ChatState(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, toChatStateDTO(a.Orch.Chat().State()))
}

func (a *App) ChatSend(w http.ResponseWriter, r *http.Request) {
	var req chatMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	var attachment *domain.Media
	if req.Attachment != "" {
		m, err := domain.ParseDataURL(req.Attachment)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		attachment = &m
	}
	if err := a.Orch.Chat().SendAsync(background(r), req.Text, attachment); err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusAccepted, toChatStateDTO(a.Orch.Chat().State()))
}

func (a *App) ChatSuggestion(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	d, err := domain.ParseDecision(req.Decision)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.Orch.Chat().ResolveSuggestionAsync(background(r), d); err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusAccepted, toChatStateDTO(a.Orch.Chat().State()))
}

func (a *App) ChatTier(w http.ResponseWriter, r *http.Request) {
	var req tierRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	tier, err := domain.ParseModelTier(req.Tier)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.Orch.Chat().SelectModelTier(tier)
	a.json(w, http.StatusOK, toChatConfigDTO(a.Orch.Chat().State().Config))
}

func (a *App) ChatThinking(w http.ResponseWriter, r *http.Request) {
	var req thinkingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	a.Orch.Chat().SetThinkingMode(req.Enabled)
	a.json(w, http.StatusOK, toChatConfigDTO(a.Orch.Chat().State().Config))
}
