package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv             string
	Port               string
	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration
	RateLimitPerMin    int
	CORSAllowedOrigins []string
	GeoIPDBPath        string

	GeminiAPIKey     string
	GeminiBaseURL    string
	SpellcheckModel  string
	ImageModel       string
	EditModel        string
	VideoModel       string
	ChatFastModel    string
	ChatSmartModel   string
	ThinkingBudget   int
	VideoResolution  string
	VideoPollEvery   time.Duration
	VideoPollTimeout time.Duration

	SpellcheckCacheSize     int
	ChatSpellcheckMinLength int

	KVStoreURL string

	MediaStore string
	MediaPath  string
	S3         S3Config
}

// S3Config holds the object storage settings used when MEDIA_STORE=s3.
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
// Values from .env and .env.local are applied first when those files exist.
func LoadConfig() (*Config, error) {
	for _, f := range []string{".env", ".env.local"} {
		_ = godotenv.Load(f)
	}

	cfg := &Config{
		AppEnv:             getEnv("APP_ENV", "development"),
		Port:               getEnv("PORT", "8080"),
		HTTPReadTimeout:    time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:   time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:    time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:    getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		GeoIPDBPath:        os.Getenv("GEOIP_DB_PATH"),

		GeminiAPIKey:     strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		GeminiBaseURL:    os.Getenv("GEMINI_BASE_URL"),
		SpellcheckModel:  getEnv("SPELLCHECK_MODEL", "gemini-2.5-flash-lite"),
		ImageModel:       getEnv("IMAGE_MODEL", "imagen-4.0-generate-001"),
		EditModel:        getEnv("EDIT_MODEL", "gemini-2.5-flash-image"),
		VideoModel:       getEnv("VIDEO_MODEL", "veo-3.1-fast-generate-preview"),
		ChatFastModel:    getEnv("CHAT_FAST_MODEL", "gemini-2.5-flash-lite"),
		ChatSmartModel:   getEnv("CHAT_SMART_MODEL", "gemini-3-pro-preview"),
		ThinkingBudget:   getEnvInt("THINKING_BUDGET", 32768),
		VideoResolution:  getEnv("VIDEO_RESOLUTION", "720p"),
		VideoPollEvery:   getEnvDuration("VIDEO_POLL_INTERVAL", 5*time.Second),
		VideoPollTimeout: getEnvDuration("VIDEO_POLL_TIMEOUT", 0),

		SpellcheckCacheSize:     getEnvInt("SPELLCHECK_CACHE_SIZE", 256),
		ChatSpellcheckMinLength: getEnvInt("CHAT_SPELLCHECK_MIN_LENGTH", 5),

		KVStoreURL: getEnv("KV_STORE", "file://./data/kv"),

		MediaStore: strings.ToLower(getEnv("MEDIA_STORE", "inline")),
		MediaPath:  getEnv("MEDIA_PATH", "./data/media"),
		S3: S3Config{
			Endpoint:  os.Getenv("S3_ENDPOINT"),
			AccessKey: os.Getenv("S3_ACCESS_KEY"),
			SecretKey: os.Getenv("S3_SECRET_KEY"),
			Bucket:    getEnv("S3_BUCKET", "vaultx-media"),
			Region:    os.Getenv("S3_REGION"),
			UseSSL:    getEnvBool("S3_USE_SSL", true),
		},
	}

	if cfg.VideoPollEvery <= 0 {
		return nil, fmt.Errorf("VIDEO_POLL_INTERVAL must be positive")
	}
	if cfg.VideoPollTimeout < 0 {
		return nil, fmt.Errorf("VIDEO_POLL_TIMEOUT must not be negative")
	}

	switch cfg.MediaStore {
	case "inline", "fs":
	case "s3":
		if cfg.S3.Endpoint == "" {
			return nil, fmt.Errorf("S3_ENDPOINT is required when MEDIA_STORE=s3")
		}
	default:
		return nil, fmt.Errorf("MEDIA_STORE %q is not one of inline, fs, s3", cfg.MediaStore)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration accepts Go duration strings and bare integers as seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if i, err := strconv.Atoi(v); err == nil {
		return time.Duration(i) * time.Second
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
