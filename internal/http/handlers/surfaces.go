package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"vaultx/internal/domain"
	"vaultx/internal/orchestrator"
)

type generationRequest struct {
	Kind        string `json:"kind"`
	Prompt      string `json:"prompt"`
	StyleID     string `json:"styleId"`
	AspectRatio string `json:"aspectRatio"`
	SourceMedia string `json:"sourceMedia"`
}

type decisionRequest struct {
	Decision string `json:"decision"`
}

func surfaceParam(r *http.Request) (domain.Surface, error) {
	return domain.ParseSurface(chi.URLParam(r, "surface"))
}

// background detaches work started by a request from the request lifetime.
func background(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

func (a *App) SurfaceState(w http.ResponseWriter, r *http.Request) {
	surface, err := surfaceParam(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	st, err := a.Orch.State(surface)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, toStateDTO(st))
}

func (a *App) SurfaceGenerate(w http.ResponseWriter, r *http.Request) {
	surface, err := surfaceParam(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var req generationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	in := orchestrator.GenerationInput{
		Kind:        domain.RequestKind(req.Kind),
		Prompt:      req.Prompt,
		StyleID:     req.StyleID,
		AspectRatio: req.AspectRatio,
	}
	if req.SourceMedia != "" {
		m, err := domain.ParseDataURL(req.SourceMedia)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		in.SourceMedia = &m
	}
	if err := a.Orch.SubmitAsync(background(r), surface, in); err != nil {
		a.fail(w, r, err)
		return
	}
	st, _ := a.Orch.State(surface)
	a.json(w, http.StatusAccepted, toStateDTO(st))
}

func (a *App) SurfaceSuggestion(w http.ResponseWriter, r *http.Request) {
	surface, err := surfaceParam(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
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
	if err := a.Orch.ResolveSuggestionAsync(background(r), surface, d); err != nil {
		a.fail(w, r, err)
		return
	}
	st, _ := a.Orch.State(surface)
	a.json(w, http.StatusAccepted, toStateDTO(st))
}

func (a *App) SurfaceRetry(w http.ResponseWriter, r *http.Request) {
	surface, err := surfaceParam(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.Orch.RetryAsync(background(r), surface); err != nil {
		a.fail(w, r, err)
		return
	}
	st, _ := a.Orch.State(surface)
	a.json(w, http.StatusAccepted, toStateDTO(st))
}

func (a *App) SurfaceCancel(w http.ResponseWriter, r *http.Request) {
	surface, err := surfaceParam(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	cancelled, err := a.Orch.CancelGeneration(surface)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]bool{"cancelled": cancelled})
}
