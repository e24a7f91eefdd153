package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"vaultx/internal/http/handlers"
	"vaultx/internal/infra"
	"vaultx/internal/infra/geoip"
	"vaultx/internal/middleware"
)

type Options struct {
	Logger         *infra.Logger
	AllowedOrigins []string
	RateLimit      int
	// MediaDir is served under /v1/media/ when the filesystem media store is used.
	MediaDir string
	// Countries tags access log lines with the client country when set.
	Countries geoip.CountryResolver
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		middleware.Country(opts.Countries),
		chimw.Recoverer,
		middleware.Logger(*infra.LoggerOrDiscard(opts.Logger)),
		middleware.CORS(opts.AllowedOrigins),
	)

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/openapi.json", app.OpenAPIJSON)
	r.Get("/v1/docs", app.OpenAPIDocs)
	r.Get("/v1/events", app.Events)

	if opts.MediaDir != "" {
		r.Handle("/v1/media/*", http.StripPrefix("/v1/media/", http.FileServer(http.Dir(opts.MediaDir))))
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(opts.RateLimit, time.Minute))

		r.Get("/v1/styles", app.Styles)

		r.Route("/v1/surfaces/{surface}", func(r chi.Router) {
			r.Get("/", app.SurfaceState)
			r.Post("/generations", app.SurfaceGenerate)
			r.Post("/suggestion", app.SurfaceSuggestion)
			r.Post("/retry", app.SurfaceRetry)
			r.Delete("/job", app.SurfaceCancel)
		})

		r.Route("/v1/chat", func(r chi.Router) {
			r.Get("/", app.ChatState)
			r.Post("/messages", app.ChatSend)
			r.Post("/suggestion", app.ChatSuggestion)
			r.Put("/tier", app.ChatTier)
			r.Put("/thinking", app.ChatThinking)
		})

		r.Get("/v1/history", app.HistoryList)
		r.Get("/v1/history/export", app.HistoryExport)
		r.Get("/v1/history/{id}", app.HistoryDetail)
		r.Get("/v1/history/{id}/media", app.HistoryMedia)
		r.Get("/v1/detail", app.DetailGet)
		r.Delete("/v1/detail", app.DetailClose)

		r.Get("/v1/theme", app.ThemeGet)
		r.Put("/v1/theme", app.ThemePut)

		r.Put("/v1/credentials/gemini", app.CredentialPut)
	})

	return r
}
