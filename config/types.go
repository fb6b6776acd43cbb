package config

// Storage selects the key-value backend of the ledger.
type Storage struct {
	Backend string `toml:"Backend"`
	Path    string `toml:"Path"`
}

// Auth configures bearer token verification. The secret may be given inline
// or through an environment variable; the variable wins when both are set.
type Auth struct {
	JWTSecret    string `toml:"JWTSecret"`
	JWTSecretEnv string `toml:"JWTSecretEnv"`
	Issuer       string `toml:"Issuer"`
	Audience     string `toml:"Audience"`
}

// RateLimit bounds the requests accepted per caller.
type RateLimit struct {
	RequestsPerSecond float64 `toml:"RequestsPerSecond"`
	Burst             int     `toml:"Burst"`
}

// Audit selects where emitted events are persisted. An empty driver disables
// the audit log.
type Audit struct {
	Driver string `toml:"Driver"`
	DSN    string `toml:"DSN"`
}

type Telemetry struct {
	Environment string  `toml:"Environment"`
	Endpoint    string  `toml:"Endpoint"`
	Headers     string  `toml:"Headers"`
	Insecure    bool    `toml:"Insecure"`
	Metrics     bool    `toml:"Metrics"`
	Traces      bool    `toml:"Traces"`
	SampleRatio float64 `toml:"SampleRatio"`
}

type Logging struct {
	Level      string `toml:"Level"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

// Endless is the signing domain admin-signed mint requests are bound to.
type Endless struct {
	Name              string `toml:"Name"`
	Version           string `toml:"Version"`
	ChainID           uint64 `toml:"ChainID"`
	VerifyingContract string `toml:"VerifyingContract"`
	Collection        string `toml:"Collection"`
}
