package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"vaultx/internal/orchestrator"
)

type themeRequest struct {
	Theme string `json:"theme"`
}

type credentialRequest struct {
	APIKey string `json:"apiKey"`
}

func (a *App) HistoryList(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]any{"items": toResultDTOs(a.Orch.History())})
}

// HistoryDetail returns one result and marks it as the open detail view.
func (a *App) HistoryDetail(w http.ResponseWriter, r *http.Request) {
	result, err := a.Orch.OpenDetail(chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, toResultDTO(result))
}

// HistoryMedia streams the raw bytes of one result.
func (a *App) HistoryMedia(w http.ResponseWriter, r *http.Request) {
	m, err := a.Orch.LoadMedia(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", m.MIMEType)
	w.Header().Set("Content-Length", strconv.Itoa(len(m.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(m.Data)
}

// HistoryExport downloads the whole history as a zip archive.
func (a *App) HistoryExport(w http.ResponseWriter, r *http.Request) {
	name := fmt.Sprintf("vaultx-history-%s.zip", time.Now().UTC().Format("20060102-150405"))
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	if _, err := a.Orch.ExportHistory(r.Context(), w); err != nil {
		// Headers are gone; the truncated archive is all the client gets.
		a.Logger.Error().Err(err).Msg("http: history export failed")
	}
}

func (a *App) DetailGet(w http.ResponseWriter, r *http.Request) {
	result, ok := a.Orch.Detail()
	if !ok {
		a.json(w, http.StatusOK, map[string]any{"detail": nil})
		return
	}
	a.json(w, http.StatusOK, map[string]any{"detail": toResultDTO(result)})
}

func (a *App) DetailClose(w http.ResponseWriter, r *http.Request) {
	a.Orch.CloseDetail()
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) ThemeGet(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]string{"theme": string(a.Orch.Theme())})
}

func (a *App) ThemePut(w http.ResponseWriter, r *http.Request) {
	var req themeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	theme, err := orchestrator.ParseTheme(req.Theme)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.Orch.SetTheme(r.Context(), theme); err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]string{"theme": string(theme)})
}

// CredentialPut replaces the provider API key after a credential failure.
func (a *App) CredentialPut(w http.ResponseWriter, r *http.Request) {
	var req credentialRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.Orch.Reauthenticate(r.Context(), req.APIKey); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
