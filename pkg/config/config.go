// Package config loads strata's TOML configuration.
//
// Configuration is layered: built-in defaults, then the TOML file, then
// STRATA_* environment variables. Command-line flags are applied last by
// the CLI.
//
//	[server]
//	addr = ":8080"
//
//	[redis]
//	url = "redis://localhost:6379/0"
//
//	[assets]
//	base_url = "https://ipfs.io/ipfs/"
//
//	[levers]
//	mongo_uri = "mongodb://localhost:27017"
package config

import (
	"bytes"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/strata/pkg/errors"
)

// DefaultFile is the configuration file looked up in the working directory.
const DefaultFile = "strata.toml"

// Config is the complete configuration.
type Config struct {
	Server ServerConfig `toml:"server"`
	Redis  RedisConfig  `toml:"redis"`
	Levers LeversConfig `toml:"levers"`
	Assets AssetsConfig `toml:"assets"`
	Price  PriceConfig  `toml:"price"`
	Render RenderConfig `toml:"render"`
	Cache  CacheConfig  `toml:"cache"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr         string   `toml:"addr"`
	ReadTimeout  Duration `toml:"read_timeout"`
	WriteTimeout Duration `toml:"write_timeout"`

	// MaxBodyBytes caps request bodies (layout documents).
	MaxBodyBytes int64 `toml:"max_body_bytes"`
}

// RedisConfig configures the shared cache and the job queue.
type RedisConfig struct {
	URL       string `toml:"url"`
	Namespace string `toml:"namespace"`
	Queue     string `toml:"queue"`
}

// LeversConfig selects the lever store.
type LeversConfig struct {
	// File is a JSON file of lever records. It wins over MongoURI.
	File string `toml:"file"`

	MongoURI      string `toml:"mongo_uri"`
	MongoDatabase string `toml:"mongo_database"`

	// LegacyFile holds records for the legacy contract, consulted for
	// token ids up to LegacyCutoff.
	LegacyFile   string `toml:"legacy_file"`
	LegacyCutoff int64  `toml:"legacy_cutoff"`
}

// AssetsConfig selects the asset store.
type AssetsConfig struct {
	Dir     string `toml:"dir"`
	BaseURL string `toml:"base_url"`

	// PrefetchLimit bounds concurrent downloads.
	PrefetchLimit int `toml:"prefetch_limit"`
}

// PriceConfig selects the price feed.
type PriceConfig struct {
	URL    string  `toml:"url"`
	Static float64 `toml:"static"`
}

// RenderConfig holds render defaults.
type RenderConfig struct {
	Format  string `toml:"format"`
	Quality int    `toml:"quality"`

	// Timeout bounds a single render.
	Timeout Duration `toml:"timeout"`
}

// CacheConfig configures the local artifact cache.
type CacheConfig struct {
	Dir      string   `toml:"dir"`
	Disabled bool     `toml:"disabled"`
	TTL      Duration `toml:"ttl"`
}

// Duration is a time.Duration written as a string ("30s") in TOML.
type Duration struct{ time.Duration }

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  Duration{30 * time.Second},
			WriteTimeout: Duration{2 * time.Minute},
			MaxBodyBytes: 4 << 20,
		},
		Redis: RedisConfig{
			Namespace: "strata:",
			Queue:     "strata:jobs",
		},
		Levers: LeversConfig{
			MongoDatabase: "strata",
			LegacyCutoff:  347,
		},
		Assets: AssetsConfig{PrefetchLimit: 8},
		Render: RenderConfig{
			Format:  "png",
			Quality: 90,
			Timeout: Duration{2 * time.Minute},
		},
		Cache: CacheConfig{TTL: Duration{30 * 24 * time.Hour}},
	}
}

// Load reads path over the defaults and applies environment overrides. A
// missing file is not an error when path is the default file name.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err) && path == DefaultFile:
	case err != nil:
		return cfg, errors.Wrap(errors.ErrCodeInvalidPath, err, "read config")
	default:
		if err := Parse(data, &cfg); err != nil {
			return cfg, err
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Parse decodes TOML into cfg. Unknown keys are rejected.
func Parse(data []byte, cfg *Config) error {
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidInput, err, "parse config")
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return errors.New(errors.ErrCodeInvalidInput, "unknown config key %q", undecoded[0].String())
	}
	return nil
}

// applyEnv overrides settings from STRATA_* variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"STRATA_ADDR":            &c.Server.Addr,
		"STRATA_REDIS_URL":       &c.Redis.URL,
		"STRATA_REDIS_NAMESPACE": &c.Redis.Namespace,
		"STRATA_LEVERS_FILE":     &c.Levers.File,
		"STRATA_MONGO_URI":       &c.Levers.MongoURI,
		"STRATA_ASSETS_DIR":      &c.Assets.Dir,
		"STRATA_ASSETS_URL":      &c.Assets.BaseURL,
		"STRATA_PRICE_URL":       &c.Price.URL,
		"STRATA_CACHE_DIR":       &c.Cache.Dir,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	if v, ok := lookup("STRATA_PRICE"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return errors.Wrap(errors.ErrCodeInvalidInput, err, "STRATA_PRICE")
		}
		c.Price.Static = f
	}
	if v, ok := lookup("STRATA_NO_CACHE"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrap(errors.ErrCodeInvalidInput, err, "STRATA_NO_CACHE")
		}
		c.Cache.Disabled = b
	}
	return nil
}

// Encode writes cfg as TOML.
func Encode(cfg Config) ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
