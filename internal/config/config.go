// Package config loads and validates setgraph's configuration: a JSON
// file on disk, with individual fields overridable by environment
// variables for deployment and tests.
//
// Grounded on server/config.Parse's json.Decoder+DisallowUnknownFields
// validation pattern and client/config.go's LoadConfig, combined: this
// is a single Config (no separate client/server split, since setgraph
// has no App Engine web frontend) loaded from disk like the client
// config but validated like the server config.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/corvyn/setgraph/internal/model"
)

// SourceConfig is one source's per-source tuning knobs, enumerated in
// spec.md §6.
type SourceConfig struct {
	MinInterval        Duration `json:"minInterval"`
	MaxInterval        Duration `json:"maxInterval"`
	Priority           int      `json:"priority"`
	Enabled            bool     `json:"enabled"`
	RespectRobots      bool     `json:"respectRobots"`
	AdaptiveScheduling bool     `json:"adaptiveScheduling"`
	MaxConcurrentPages int      `json:"maxConcurrentPages"`
	RetryOnFailure     bool     `json:"retryOnFailure"`
}

// Duration marshals as a JSON string ("30s", "2h") instead of a
// nanosecond integer, since hand-edited config files are easier to
// read and write that way.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// SeedMatchMode controls how scheduler target tracks are matched
// against existing silver rows.
type SeedMatchMode string

const (
	SeedMatchExact SeedMatchMode = "exact"
	SeedMatchILike SeedMatchMode = "ilike"
)

// Postgres holds the database connection parameters.
type Postgres struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Database string `json:"database"`
	User     string `json:"user"`
	Password string `json:"password"`
}

// Redis holds the optional shared cache/bus connection parameters.
type Redis struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Password string `json:"password"`
}

// APITokens holds bearer tokens or (id, secret) pairs for external
// providers, per spec.md §6.
type APITokens struct {
	SpotifyClientID     string `json:"spotifyClientId"`
	SpotifyClientSecret string `json:"spotifyClientSecret"`
	TidalToken          string `json:"tidalToken"`
	DiscogsToken        string `json:"discogsToken"`
	LastFMAPIKey        string `json:"lastfmApiKey"`
	GetSongBPMAPIKey    string `json:"getsongbpmApiKey"`
	MusicBrainzUserAgent string `json:"musicbrainzUserAgent"`
}

// Config is setgraph's full runtime configuration.
type Config struct {
	Postgres Postgres `json:"postgres"`
	Redis    *Redis   `json:"redis,omitempty"`

	Sources map[model.Source]SourceConfig `json:"sources"`

	APITokens APITokens `json:"apiTokens"`

	SeedMatchMode SeedMatchMode `json:"seedMatchMode"`

	LogLevel string `json:"logLevel"`
}

// Parse unmarshals and validates jsonData, rejecting unknown fields so
// typos in a hand-edited config file fail loudly rather than being
// silently ignored.
func Parse(jsonData []byte) (*Config, error) {
	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(jsonData))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) validate() error {
	if cfg.Postgres.Database == "" {
		return errors.New("postgres.database not set")
	}
	if cfg.Postgres.Host == "" {
		return errors.New("postgres.host not set")
	}
	switch cfg.SeedMatchMode {
	case "":
		cfg.SeedMatchMode = SeedMatchExact
	case SeedMatchExact, SeedMatchILike:
	default:
		return fmt.Errorf("invalid seedMatchMode %q", cfg.SeedMatchMode)
	}
	for src, sc := range cfg.Sources {
		if sc.Enabled && sc.MinInterval == 0 {
			return fmt.Errorf("source %q enabled with zero minInterval", src)
		}
		if sc.MaxInterval != 0 && sc.MaxInterval < sc.MinInterval {
			return fmt.Errorf("source %q maxInterval < minInterval", src)
		}
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	return nil
}

// Load reads and parses the config file at path, then applies any
// environment-variable overrides. Tests can bypass the file entirely
// by setting SETGRAPH_CONFIG to an inline JSON document, mirroring the
// teacher's NUP_CONFIG override in server/config.Load.
func Load(path string) (*Config, error) {
	data := []byte(os.Getenv("SETGRAPH_CONFIG"))
	if len(data) == 0 {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
		data = b
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides lets deployment environments override secrets and
// connection details without editing the on-disk config file, per
// spec.md §6's "Environment variables mirror config names".
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		if cfg.Redis == nil {
			cfg.Redis = &Redis{}
		}
		cfg.Redis.Host = v
	}
	if v := os.Getenv("SPOTIFY_API_TOKEN"); v != "" {
		cfg.APITokens.SpotifyClientSecret = v
	}
	if v := os.Getenv("DISCOGS_API_TOKEN"); v != "" {
		cfg.APITokens.DiscogsToken = v
	}
	if v := os.Getenv("LASTFM_API_TOKEN"); v != "" {
		cfg.APITokens.LastFMAPIKey = v
	}
	if v := os.Getenv("TIDAL_API_TOKEN"); v != "" {
		cfg.APITokens.TidalToken = v
	}
	if v := os.Getenv("GETSONGBPM_API_TOKEN"); v != "" {
		cfg.APITokens.GetSongBPMAPIKey = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}
