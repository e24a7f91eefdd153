// Package bootstrap builds the application graph from configuration.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"vaultx/internal/capability"
	"vaultx/internal/infra"
	"vaultx/internal/infra/credentials"
	"vaultx/internal/infra/geoip"
	"vaultx/internal/kvstore"
	"vaultx/internal/media"
	"vaultx/internal/orchestrator"
	"vaultx/internal/providers/genai"
	"vaultx/internal/providers/synthetic"
)

// MediaURLPrefix is where the filesystem media store is served.
const MediaURLPrefix = "/v1/media"

type Container struct {
	Config       *infra.Config
	Logger       *infra.Logger
	KV           kvstore.Store
	Credentials  *credentials.Store
	Media        media.Store
	MediaDir     string
	Client       capability.Client
	Orchestrator *orchestrator.Orchestrator
	// Countries is nil unless GEOIP_DB_PATH is configured.
	Countries *geoip.Resolver
}

// New opens the stores, selects the provider and restores persisted state.
// Without an API key in the environment or the key-value store the
// deterministic synthetic provider is used.
func New(ctx context.Context, cfg *infra.Config, logger *infra.Logger) (*Container, error) {
	logger = infra.LoggerOrDiscard(logger)
	c := &Container{Config: cfg, Logger: logger}

	kv, err := kvstore.Open(ctx, cfg.KVStoreURL, logger)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: open kv store: %w", err)
	}
	c.KV = kv
	c.Credentials = credentials.NewStore(kv)

	if err := c.initMedia(); err != nil {
		_ = kv.Close()
		return nil, err
	}
	if err := c.initClient(ctx); err != nil {
		_ = kv.Close()
		return nil, err
	}

	countries, err := geoip.Open(cfg.GeoIPDBPath)
	if err != nil {
		_ = kv.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	c.Countries = countries

	c.Orchestrator = orchestrator.New(orchestrator.Deps{
		Client:      c.Client,
		KV:          kv,
		Media:       c.Media,
		Credentials: c.Credentials,
	}, orchestrator.Options{
		PollInterval:            cfg.VideoPollEvery,
		PollTimeout:             cfg.VideoPollTimeout,
		SpellcheckCacheSize:     cfg.SpellcheckCacheSize,
		ChatSpellcheckMinLength: cfg.ChatSpellcheckMinLength,
		Logger:                  logger,
	})
	if err := c.Orchestrator.Load(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Container) initMedia() error {
	switch c.Config.MediaStore {
	case "", "inline":
		c.Media = media.Inline{}
	case "fs":
		store, err := media.NewFileStore(c.Config.MediaPath, MediaURLPrefix)
		if err != nil {
			return fmt.Errorf("bootstrap: media store: %w", err)
		}
		c.Media = store
		c.MediaDir = store.BasePath()
	case "s3":
		store, err := media.NewS3Store(media.S3Config{
			Endpoint:  c.Config.S3.Endpoint,
			Region:    c.Config.S3.Region,
			AccessKey: c.Config.S3.AccessKey,
			SecretKey: c.Config.S3.SecretKey,
			Bucket:    c.Config.S3.Bucket,
			UseSSL:    c.Config.S3.UseSSL,
		})
		if err != nil {
			return fmt.Errorf("bootstrap: media store: %w", err)
		}
		c.Media = store
	default:
		return fmt.Errorf("bootstrap: unsupported media store %q", c.Config.MediaStore)
	}
	c.Logger.Info().Str("media_store", c.Config.MediaStore).Msg("bootstrap: media store ready")
	return nil
}

func (c *Container) initClient(ctx context.Context) error {
	key := c.Config.GeminiAPIKey
	if key == "" {
		stored, err := c.Credentials.GeminiAPIKey(ctx)
		if err != nil {
			return fmt.Errorf("bootstrap: read stored api key: %w", err)
		}
		key = stored
	}
	if key == "" {
		c.Logger.Warn().Msg("bootstrap: no Gemini API key configured, using the synthetic provider")
		c.Client = synthetic.NewClient(synthetic.Options{Logger: c.Logger})
		return nil
	}

	client, err := genai.NewClient(genai.Options{
		APIKey:  key,
		BaseURL: c.Config.GeminiBaseURL,
		Models: genai.Models{
			Spellcheck: c.Config.SpellcheckModel,
			Image:      c.Config.ImageModel,
			Edit:       c.Config.EditModel,
			Video:      c.Config.VideoModel,
			ChatFast:   c.Config.ChatFastModel,
			ChatSmart:  c.Config.ChatSmartModel,
		},
		ThinkingBudget:  c.Config.ThinkingBudget,
		VideoResolution: c.Config.VideoResolution,
		Logger:          c.Logger,
	})
	if err != nil {
		return fmt.Errorf("bootstrap: genai client: %w", err)
	}
	c.Client = client
	return nil
}

func (c *Container) Close() error {
	if c.Orchestrator != nil {
		c.Orchestrator.Close()
	}
	var errs []error
	if c.KV != nil {
		errs = append(errs, c.KV.Close())
	}
	errs = append(errs, c.Countries.Close())
	return errors.Join(errs...)
}
