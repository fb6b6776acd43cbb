package config

import (
	"fmt"
	"strings"

	"questvault/crypto"
)

var (
	storageBackends = map[string]bool{"memory": true, "leveldb": true, "bolt": true}
	auditDrivers    = map[string]bool{"": true, "sqlite": true, "postgres": true}
)

// Validate reports the first setting questd cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ListenAddress) == "" {
		return fmt.Errorf("ListenAddress must be set")
	}
	if !storageBackends[c.Storage.Backend] {
		return fmt.Errorf("storage: unsupported backend %q", c.Storage.Backend)
	}
	if !auditDrivers[c.Audit.Driver] {
		return fmt.Errorf("audit: unsupported driver %q", c.Audit.Driver)
	}
	if c.Audit.Driver == "postgres" && strings.TrimSpace(c.Audit.DSN) == "" {
		return fmt.Errorf("audit: postgres requires a DSN")
	}
	if c.RateLimit.RequestsPerSecond < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit: negative values not allowed")
	}
	if c.RateLimit.RequestsPerSecond > 0 && c.RateLimit.Burst == 0 {
		return fmt.Errorf("rate_limit: Burst must be positive when RequestsPerSecond is set")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry: SampleRatio must be within [0, 1]")
	}
	for name, value := range map[string]string{
		"Engine":                    c.Engine,
		"endless.VerifyingContract": c.Endless.VerifyingContract,
		"endless.Collection":        c.Endless.Collection,
	} {
		if value == "" {
			continue
		}
		if _, err := crypto.ParseAddress(value); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}
