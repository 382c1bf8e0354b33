package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all persona configuration.
type Config struct {
	Model  ModelConfig
	Store  StoreConfig
	Server ServerConfig
	Output OutputConfig
	Log    LogConfig
}

// ModelConfig locates the model artifacts.
type ModelConfig struct {
	ManifestPath     string
	ORTLibPath       string // required only for onnx branches
	ParallelBranches bool
}

// StoreConfig holds post store settings.
type StoreConfig struct {
	Provider     string // "supabase" or "memory"
	URL          string
	APIKey       string
	Extra        map[string]string
	Workers      int
	FetchTimeout time.Duration
	Policy       string // "soft" or "hard"
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// OutputConfig holds result sink settings for the classify command and the
// optional server-side webhook.
type OutputConfig struct {
	Format       string // "stdout" or "file"
	Path         string
	MaxBytes     int // file rollover threshold, 0 disables
	Keep         int // rolled-over files kept
	Pretty       bool
	Verbosity    string // "minimal", "standard", "full"
	WebhookURL   string
	WebhookBatch int
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string
	Format string // "json" or "text"
}

// LoadDotEnv loads variables from .env files without overriding ones
// already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("config: load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	return Config{
		Model: ModelConfig{
			ManifestPath:     getenv("PERSONA_MANIFEST", "models/manifest.yaml"),
			ORTLibPath:       os.Getenv("PERSONA_ORT_LIB"),
			ParallelBranches: getenvBool("PERSONA_PARALLEL_BRANCHES", true),
		},
		Store: StoreConfig{
			Provider:     getenv("PERSONA_STORE", "supabase"),
			URL:          os.Getenv("PERSONA_SUPABASE_URL"),
			APIKey:       os.Getenv("PERSONA_SUPABASE_KEY"),
			Extra:        loadStoreExtra(),
			Workers:      getenvInt("PERSONA_FETCH_WORKERS", 8),
			FetchTimeout: getenvDuration("PERSONA_FETCH_TIMEOUT", 10*time.Second),
			Policy:       getenv("PERSONA_RETRIEVAL_POLICY", "soft"),
		},
		Server: ServerConfig{
			Addr:            getenv("PERSONA_ADDR", ":8000"),
			ShutdownTimeout: getenvDuration("PERSONA_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Output: OutputConfig{
			Format:       getenv("PERSONA_OUTPUT", "stdout"),
			Path:         os.Getenv("PERSONA_OUTPUT_FILE"),
			MaxBytes:     getenvInt("PERSONA_OUTPUT_MAX_BYTES", 0),
			Keep:         getenvInt("PERSONA_OUTPUT_KEEP", 5),
			Pretty:       getenvBool("PERSONA_OUTPUT_PRETTY", false),
			Verbosity:    getenv("PERSONA_VERBOSITY", "standard"),
			WebhookURL:   os.Getenv("PERSONA_WEBHOOK_URL"),
			WebhookBatch: getenvInt("PERSONA_WEBHOOK_BATCH", 50),
		},
		Log: LogConfig{
			Level:  getenv("PERSONA_LOG_LEVEL", "info"),
			Format: getenv("PERSONA_LOG_FORMAT", "json"),
		},
	}
}

// Validate checks the configuration and reports every problem at once.
func (c Config) Validate() error {
	var errs []error

	if c.Model.ManifestPath == "" {
		errs = append(errs, errors.New("PERSONA_MANIFEST must be set"))
	} else if _, err := os.Stat(c.Model.ManifestPath); err != nil {
		errs = append(errs, fmt.Errorf("model manifest %s: %w", c.Model.ManifestPath, err))
	}

	switch c.Store.Provider {
	case "supabase":
		if c.Store.URL == "" {
			errs = append(errs, errors.New("PERSONA_SUPABASE_URL is required for the supabase store"))
		}
		if c.Store.APIKey == "" {
			errs = append(errs, errors.New("PERSONA_SUPABASE_KEY is required for the supabase store"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown store %q (want supabase or memory)", c.Store.Provider))
	}
	if c.Store.Workers <= 0 {
		errs = append(errs, fmt.Errorf("fetch workers must be positive, got %d", c.Store.Workers))
	}
	if c.Store.FetchTimeout < 0 {
		errs = append(errs, fmt.Errorf("fetch timeout must not be negative, got %v", c.Store.FetchTimeout))
	}
	if c.Store.Policy != "soft" && c.Store.Policy != "hard" {
		errs = append(errs, fmt.Errorf("retrieval policy must be soft or hard, got %q", c.Store.Policy))
	}

	switch c.Output.Format {
	case "stdout":
	case "file":
		if c.Output.Path == "" {
			errs = append(errs, errors.New("PERSONA_OUTPUT_FILE is required for file output"))
		}
		if c.Output.MaxBytes < 0 {
			errs = append(errs, fmt.Errorf("output max bytes must not be negative, got %d", c.Output.MaxBytes))
		}
		if c.Output.Keep <= 0 {
			errs = append(errs, fmt.Errorf("output keep must be positive, got %d", c.Output.Keep))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown output %q (want stdout or file)", c.Output.Format))
	}
	if c.Output.WebhookURL != "" && c.Output.WebhookBatch <= 0 {
		errs = append(errs, fmt.Errorf("webhook batch must be positive, got %d", c.Output.WebhookBatch))
	}
	switch c.Output.Verbosity {
	case "minimal", "standard", "full":
	default:
		errs = append(errs, fmt.Errorf("verbosity must be minimal, standard or full, got %q", c.Output.Verbosity))
	}

	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log format must be json or text, got %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// loadStoreExtra reads provider-specific env vars into an Extra map.
func loadStoreExtra() map[string]string {
	vars := []struct {
		envVar   string
		extraKey string
	}{
		{"PERSONA_SUPABASE_TABLE", "table"},
		{"PERSONA_SUPABASE_USER_COLUMN", "user_column"},
		{"PERSONA_SUPABASE_CONTENT_COLUMN", "content_column"},
		{"PERSONA_SUPABASE_PAGE_SIZE", "page_size"},
		{"PERSONA_POSTS_FILE", "path"},
	}

	var m map[string]string
	for _, v := range vars {
		if val := os.Getenv(v.envVar); val != "" {
			if m == nil {
				m = make(map[string]string)
			}
			m[v.extraKey] = val
		}
	}
	return m
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
