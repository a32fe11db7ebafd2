package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/matzehuels/strata/pkg/errors"
)

const sample = `
[server]
addr = ":9000"
read_timeout = "5s"

[redis]
url = "redis://cache:6379/1"

[levers]
file = "levers.json"
legacy_cutoff = 100

[assets]
base_url = "https://gateway.example/ipfs/"
prefetch_limit = 4

[render]
format = "jpeg"
timeout = "45s"
`

func TestParse(t *testing.T) {
	cfg := Default()
	if err := Parse([]byte(sample), &cfg); err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Addr != ":9000" {
		t.Errorf("Addr = %q", cfg.Server.Addr)
	}
	if cfg.Server.ReadTimeout.Duration != 5*time.Second {
		t.Errorf("ReadTimeout = %v", cfg.Server.ReadTimeout)
	}
	if cfg.Server.WriteTimeout.Duration != 2*time.Minute {
		t.Errorf("WriteTimeout default lost: %v", cfg.Server.WriteTimeout)
	}
	if cfg.Levers.LegacyCutoff != 100 || cfg.Levers.File != "levers.json" {
		t.Errorf("Levers = %+v", cfg.Levers)
	}
	if cfg.Assets.PrefetchLimit != 4 {
		t.Errorf("PrefetchLimit = %d", cfg.Assets.PrefetchLimit)
	}
	if cfg.Render.Format != "jpeg" || cfg.Render.Quality != 90 {
		t.Errorf("Render = %+v", cfg.Render)
	}
	if cfg.Redis.Namespace != "strata:" {
		t.Errorf("Namespace default lost: %q", cfg.Redis.Namespace)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"syntax", "[server\naddr = 1"},
		{"unknown key", "[server]\nport = 80"},
		{"bad duration", "[render]\ntimeout = \"soon\""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			err := Parse([]byte(tt.data), &cfg)
			if !errors.Is(err, errors.ErrCodeInvalidInput) {
				t.Errorf("err = %v, want INVALID_INPUT", err)
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"STRATA_ADDR":      ":7000",
		"STRATA_MONGO_URI": "mongodb://db",
		"STRATA_PRICE":     "1234.5",
		"STRATA_NO_CACHE":  "true",
	}
	lookup := func(k string) (string, bool) { v, ok := env[k]; return v, ok }

	cfg := Default()
	if err := cfg.applyEnv(lookup); err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr != ":7000" || cfg.Levers.MongoURI != "mongodb://db" {
		t.Errorf("string overrides not applied: %+v", cfg)
	}
	if cfg.Price.Static != 1234.5 || !cfg.Cache.Disabled {
		t.Errorf("typed overrides not applied: %+v %+v", cfg.Price, cfg.Cache)
	}

	env["STRATA_PRICE"] = "lots"
	if err := cfg.applyEnv(lookup); err == nil {
		t.Error("expected error for bad STRATA_PRICE")
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.toml")
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr != ":9000" && os.Getenv("STRATA_ADDR") == "" {
		t.Errorf("Addr = %q", cfg.Server.Addr)
	}

	if _, err := Load(filepath.Join(dir, "missing.toml")); !errors.Is(err, errors.ErrCodeInvalidPath) {
		t.Errorf("explicit missing file: err = %v", err)
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	data, err := Encode(Default())
	if err != nil {
		t.Fatal(err)
	}
	cfg := Config{}
	if err := Parse(data, &cfg); err != nil {
		t.Fatalf("parse encoded default: %v\n%s", err, data)
	}
	if cfg.Render.Timeout.Duration != 2*time.Minute {
		t.Errorf("Timeout = %v", cfg.Render.Timeout)
	}
}
