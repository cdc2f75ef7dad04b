// Package config handles configuration for the relay, including defaults,
// a JSON overlay and command-line flags.
package config

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds runtime settings for the relay.
//
// Fields:
//   - ListenAddr: bind address for the relay endpoint.
//   - Transport: "tls" (length-prefixed frames over TLS) or "grpc".
//   - CertFile / KeyFile: PEM certificate and key; both empty means a
//     self-signed certificate is generated at startup.
//   - DatabaseDSN: PostgreSQL DSN for the credential store; empty keeps
//     credentials in memory.
//   - Users: identity → verifier (hex SHA-256 of the password) provisioned at
//     startup. Only settable from JSON.
//   - LogLevel: debug, info, warn or error.
//   - ShutdownTimeout: how long Run waits for connections to finish.
//   - MetricsAddr: address of the Prometheus /metrics endpoint; empty
//     disables it.
type Config struct {
	ListenAddr      string `validate:"required,hostname_port"`
	Transport       string `validate:"oneof=tls grpc"`
	CertFile        string `validate:"required_with=KeyFile"`
	KeyFile         string `validate:"required_with=CertFile"`
	DatabaseDSN     string
	Users           map[string]string `validate:"dive,keys,required,endkeys,len=64,hexadecimal"`
	LogLevel        string            `validate:"oneof=debug info warn error"`
	ShutdownTimeout time.Duration     `validate:"gt=0"`
	MetricsAddr     string            `validate:"omitempty,hostname_port"`
}

var validate = validator.New()

// Validate checks field formats after all sources have been applied.
func (c *Config) Validate() error {
	return validate.Struct(c)
}

// LoadDefaults populates Config with development defaults.
func (c *Config) LoadDefaults() {
	c.ListenAddr = "localhost:8443"
	c.Transport = "tls"
	c.CertFile = ""
	c.KeyFile = ""
	c.DatabaseDSN = ""
	c.Users = nil
	c.LogLevel = "info"
	c.ShutdownTimeout = 5 * time.Second
	c.MetricsAddr = ""
}

// LoadConfig applies defaults, then the JSON file named by -c/-config, then
// command-line flags. Later sources take precedence.
func LoadConfig(args []string) *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg, args)
	parseFlags(cfg, args)
	return cfg
}
