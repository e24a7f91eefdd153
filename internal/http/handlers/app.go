package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/websocket"

	"vaultx/internal/domain"
	"vaultx/internal/infra"
	"vaultx/internal/orchestrator"
)

// Source media arrive base64 encoded inside JSON bodies.
const maxBodyBytes = 32 << 20

type App struct {
	Orch     *orchestrator.Orchestrator
	Logger   *infra.Logger
	upgrader websocket.Upgrader
}

func NewApp(orch *orchestrator.Orchestrator, logger *infra.Logger, allowedOrigins []string) *App {
	return &App{
		Orch:   orch,
		Logger: infra.LoggerOrDiscard(logger),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, map[string]any{"error": map[string]string{"code": code, "message": message}})
}

// fail maps engine errors onto HTTP statuses.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	message := err.Error()
	var de *domain.Error
	if errors.As(err, &de) {
		message = de.Message
	}
	switch {
	case errors.Is(err, domain.ErrValidation):
		a.error(w, http.StatusBadRequest, "bad_request", message)
	case errors.Is(err, domain.ErrUnknownSurface), errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", message)
	case errors.Is(err, domain.ErrBusy):
		a.error(w, http.StatusConflict, "busy", "a request is already in progress")
	case errors.Is(err, domain.ErrNoPendingDecision):
		a.error(w, http.StatusConflict, "no_pending_decision", "there is no spelling suggestion to resolve")
	default:
		a.Logger.Error().Err(err).Str("path", r.URL.Path).Msg("http: request failed")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.NewError(domain.ErrorKindValidation, "request body is required", err)
		}
		return domain.NewError(domain.ErrorKindValidation, "invalid payload", err)
	}
	return nil
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
