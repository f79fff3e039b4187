// Package config resolves settings for the api, worker and rater binaries
// from the environment, and for the rater also from a YAML profile.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"

	"audio-eval/internal/storage"
)

type API struct {
	Port        int    `env:"PORT,default=8000"`
	DatabaseURL string `env:"DATABASE_URL,required"`
	// APIToken guards write routes with a bearer check when set.
	APIToken  string `env:"API_TOKEN"`
	RedisAddr string `env:"REDIS_ADDR"`
	// SkipMigrations leaves schema management to an external tool.
	SkipMigrations bool `env:"SKIP_MIGRATIONS,default=false"`
	// S3 is read when serving stored archives.
	S3 storage.Config
}

type Worker struct {
	DatabaseURL string         `env:"DATABASE_URL,required"`
	RedisAddr   string         `env:"REDIS_ADDR,required"`
	Concurrency int            `env:"WORKER_CONCURRENCY,default=5"`
	S3          storage.Config
}

// Rater configures the rating client. Built-in defaults are replaced by the
// YAML profile, and any environment variable that is set overrides both.
type Rater struct {
	APIURL     string `yaml:"api_url" env:"AUDIO_EVAL_API_URL,overwrite"`
	UseBackend bool   `yaml:"use_backend" env:"AUDIO_EVAL_USE_BACKEND,overwrite"`
	// APIToken is sent as a bearer token when the API guards writes.
	APIToken string `yaml:"api_token" env:"AUDIO_EVAL_API_TOKEN,overwrite"`
	// Home holds the local cache database and the profile.
	Home string `yaml:"-" env:"AUDIO_EVAL_HOME,overwrite"`
	// DataRoot is a directory or http(s) base URL holding the data/ tree.
	DataRoot string `yaml:"data_root" env:"AUDIO_EVAL_DATA_ROOT,overwrite"`
	// CachePath overrides the local cache location (default <home>/local.db).
	CachePath string `yaml:"cache_path" env:"AUDIO_EVAL_CACHE,overwrite"`
}

func DefaultRater() Rater {
	return Rater{APIURL: "http://localhost:5000", UseBackend: true, DataRoot: "public"}
}

func LoadAPI(ctx context.Context) (API, error) {
	return load[API](ctx, nil)
}

func LoadWorker(ctx context.Context) (Worker, error) {
	return load[Worker](ctx, nil)
}

// LoadRater reads <home>/config.yaml when present, then applies environment
// overrides. lookuper may be nil to read the process environment.
func LoadRater(ctx context.Context, lookuper envconfig.Lookuper) (Rater, error) {
	if lookuper == nil {
		lookuper = envconfig.OsLookuper()
	}
	home, ok := lookuper.Lookup("AUDIO_EVAL_HOME")
	if !ok || home == "" {
		dir, err := os.UserHomeDir()
		if err != nil {
			return Rater{}, fmt.Errorf("resolve home: %w", err)
		}
		home = filepath.Join(dir, ".audio-eval")
	}

	cfg := DefaultRater()
	b, err := os.ReadFile(filepath.Join(home, "config.yaml"))
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Rater{}, fmt.Errorf("parse %s: %w", filepath.Join(home, "config.yaml"), err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return Rater{}, err
	}

	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: lookuper}); err != nil {
		return Rater{}, err
	}
	if cfg.Home == "" {
		cfg.Home = home
	}
	if cfg.CachePath == "" {
		cfg.CachePath = filepath.Join(cfg.Home, "local.db")
	}
	return cfg, nil
}

func load[T any](ctx context.Context, lookuper envconfig.Lookuper) (T, error) {
	var cfg T
	if lookuper == nil {
		lookuper = envconfig.OsLookuper()
	}
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: lookuper}); err != nil {
		return cfg, err
	}
	return cfg, nil
}
