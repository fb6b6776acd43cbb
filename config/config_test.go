package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"questvault/crypto"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "questd.toml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "questd.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected default config to be written: %v", err)
	}
	if cfg.ListenAddress != ":8645" || cfg.Storage.Backend != "leveldb" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Storage.Path != filepath.Join("./questvault-data", "state.ldb") {
		t.Fatalf("unexpected storage path %q", cfg.Storage.Path)
	}

	again, err := Load(path)
	if err != nil {
		t.Fatalf("reload default: %v", err)
	}
	if again.RateLimit != cfg.RateLimit || again.Endless != cfg.Endless {
		t.Fatalf("written defaults must round trip")
	}
}

func TestLoadParsesSections(t *testing.T) {
	engine := crypto.Format([20]byte{0xE1})
	path := writeConfig(t, `ListenAddress = "127.0.0.1:9000"
DataDir = "/var/lib/questd"
GenesisFile = "genesis.yaml"
Engine = "`+engine+`"

[storage]
Backend = "bolt"

[auth]
JWTSecret = "inline"
JWTSecretEnv = ""
Issuer = "ops"
Audience = "questd"

[rate_limit]
RequestsPerSecond = 5.5
Burst = 11

[audit]
Driver = "postgres"
DSN = "host=db user=quest"

[telemetry]
Endpoint = "collector:4318"
Traces = true
SampleRatio = 0.25

[endless]
ChainID = 31337
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress != "127.0.0.1:9000" || cfg.GenesisFile != "genesis.yaml" || cfg.Engine != engine {
		t.Fatalf("unexpected top-level values %+v", cfg)
	}
	if cfg.Storage.Path != filepath.Join("/var/lib/questd", "state.db") {
		t.Fatalf("unexpected bolt path %q", cfg.Storage.Path)
	}
	if string(cfg.JWTSecret()) != "inline" || cfg.Auth.Audience != "questd" {
		t.Fatalf("unexpected auth %+v", cfg.Auth)
	}
	if cfg.RateLimit.RequestsPerSecond != 5.5 || cfg.RateLimit.Burst != 11 {
		t.Fatalf("unexpected rate limit %+v", cfg.RateLimit)
	}
	if cfg.Audit.Driver != "postgres" || cfg.Audit.DSN != "host=db user=quest" {
		t.Fatalf("unexpected audit %+v", cfg.Audit)
	}
	if !cfg.Telemetry.Traces || cfg.Telemetry.SampleRatio != 0.25 {
		t.Fatalf("unexpected telemetry %+v", cfg.Telemetry)
	}
	if cfg.Endless.ChainID != 31337 || cfg.Endless.Name != "QuestVault Endless Mint" {
		t.Fatalf("partial sections must keep defaults, got %+v", cfg.Endless)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, `ListenAddress = ":1"
ValidatorKey = "legacy"

[storage]
Engine = "rocks"
`)
	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected unknown keys to fail")
	}
	if !strings.Contains(err.Error(), "ValidatorKey") || !strings.Contains(err.Error(), "storage.Engine") {
		t.Fatalf("error should name every unknown key: %v", err)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty listen", func(c *Config) { c.ListenAddress = " " }},
		{"backend", func(c *Config) { c.Storage.Backend = "rocksdb" }},
		{"audit driver", func(c *Config) { c.Audit.Driver = "mysql" }},
		{"postgres dsn", func(c *Config) { c.Audit = Audit{Driver: "postgres"} }},
		{"burst", func(c *Config) { c.RateLimit.Burst = 0 }},
		{"sample ratio", func(c *Config) { c.Telemetry.SampleRatio = 2 }},
		{"engine address", func(c *Config) { c.Engine = "cosmos1notours" }},
	}
	for _, tc := range cases {
		cfg := Default()
		tc.mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
	if err := Default().Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestJWTSecretPrefersEnvironment(t *testing.T) {
	t.Setenv("QUESTD_TEST_SECRET", "from-env")
	cfg := Default()
	cfg.Auth = Auth{JWTSecret: "inline", JWTSecretEnv: "QUESTD_TEST_SECRET"}
	if string(cfg.JWTSecret()) != "from-env" {
		t.Fatalf("expected environment secret")
	}
	cfg.Auth.JWTSecretEnv = "QUESTD_UNSET_SECRET"
	if string(cfg.JWTSecret()) != "inline" {
		t.Fatalf("expected inline fallback")
	}
}
