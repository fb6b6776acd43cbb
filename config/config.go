package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	ListenAddress   string    `toml:"ListenAddress"`
	DataDir         string    `toml:"DataDir"`
	GenesisFile     string    `toml:"GenesisFile"`
	Engine          string    `toml:"Engine"`
	ShutdownSeconds int       `toml:"ShutdownSeconds"`
	Storage         Storage   `toml:"storage"`
	Auth            Auth      `toml:"auth"`
	RateLimit       RateLimit `toml:"rate_limit"`
	Audit           Audit     `toml:"audit"`
	Telemetry       Telemetry `toml:"telemetry"`
	Logging         Logging   `toml:"logging"`
	Endless         Endless   `toml:"endless"`
}

// Load loads the configuration from the given path, writing the defaults
// there first when the file does not exist. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, key := range undecoded {
			keys[i] = key.String()
		}
		return nil, fmt.Errorf("config file %s has unknown keys: %s", path, strings.Join(keys, ", "))
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns the configuration written for a fresh node.
func Default() *Config {
	return &Config{
		ListenAddress:   ":8645",
		DataDir:         "./questvault-data",
		ShutdownSeconds: 5,
		Storage:         Storage{Backend: "leveldb"},
		Auth:            Auth{JWTSecretEnv: "QUESTD_JWT_SECRET", Issuer: "questvault"},
		RateLimit:       RateLimit{RequestsPerSecond: 20, Burst: 40},
		Audit:           Audit{Driver: "sqlite"},
		Telemetry:       Telemetry{Insecure: true},
		Logging:         Logging{Level: "info", MaxSizeMB: 100, MaxBackups: 5, MaxAgeDays: 28},
		Endless:         Endless{Name: "QuestVault Endless Mint", Version: "1", ChainID: 1},
	}
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.Storage.Backend) == "" {
		c.Storage.Backend = "memory"
	}
	if c.Storage.Path == "" && c.Storage.Backend != "memory" {
		name := "state.ldb"
		if c.Storage.Backend == "bolt" {
			name = "state.db"
		}
		c.Storage.Path = filepath.Join(c.DataDir, name)
	}
	if c.Audit.Driver == "sqlite" && c.Audit.DSN == "" {
		c.Audit.DSN = filepath.Join(c.DataDir, "audit.sqlite")
	}
	if c.ShutdownSeconds <= 0 {
		c.ShutdownSeconds = 5
	}
}

// JWTSecret resolves the HMAC secret used to verify bearer tokens.
func (c *Config) JWTSecret() []byte {
	if env := strings.TrimSpace(c.Auth.JWTSecretEnv); env != "" {
		if value := os.Getenv(env); value != "" {
			return []byte(value)
		}
	}
	return []byte(c.Auth.JWTSecret)
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
