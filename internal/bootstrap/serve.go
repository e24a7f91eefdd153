package bootstrap

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"vaultx/internal/http/handlers"
	"vaultx/internal/http/httpapi"
	"vaultx/internal/infra"
)

const shutdownGrace = 15 * time.Second

// RouterOptions derives the HTTP surface settings from the container.
func (c *Container) RouterOptions() httpapi.Options {
	opts := httpapi.Options{
		Logger:         c.Logger,
		AllowedOrigins: c.Config.CORSAllowedOrigins,
		RateLimit:      c.Config.RateLimitPerMin,
		MediaDir:       c.MediaDir,
	}
	if c.Countries != nil {
		opts.Countries = c.Countries
	}
	return opts
}

// Serve runs the HTTP API until ctx is cancelled, then drains connections.
func (c *Container) Serve(ctx context.Context) error {
	app := handlers.NewApp(c.Orchestrator, c.Logger, c.Config.CORSAllowedOrigins)
	server := infra.NewHTTPServer(c.Config, httpapi.NewRouter(app, c.RouterOptions()))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c.Logger.Info().Str("addr", server.Addr()).Msg("api: listening")
		return server.Start()
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			c.Logger.Error().Err(err).Msg("api: shutdown failed")
			return err
		}
		c.Logger.Info().Msg("api: server stopped")
		return nil
	})
	return g.Wait()
}
