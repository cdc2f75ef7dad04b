package config

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds runtime settings for the chat client.
//
// Fields:
//   - ServerAddr: host:port of the relay.
//   - Transport: "tls" or "grpc"; must match the relay.
//   - ServerName: name checked against the relay certificate.
//   - CAFile: PEM bundle trusted for the relay certificate; empty uses the
//     system pool.
//   - Insecure: skip certificate verification. On by default because the
//     relay generates a self-signed certificate when none is configured.
//   - Scheme: content cipher for the session key ("rsa-oaep" or "nacl-box").
//   - RSABits: RSA modulus size when Scheme is rsa-oaep.
//   - LogLevel: level for diagnostics written to stderr.
//   - DialTimeout: bound on connection establishment.
type Config struct {
	ServerAddr  string `validate:"required,hostname_port"`
	Transport   string `validate:"oneof=tls grpc"`
	ServerName  string
	CAFile      string
	Insecure    bool
	Scheme      string        `validate:"oneof=rsa-oaep nacl-box"`
	RSABits     int           `validate:"min=1024,max=8192"`
	LogLevel    string        `validate:"oneof=debug info warn error"`
	DialTimeout time.Duration `validate:"gt=0"`
}

var validate = validator.New()

// Validate checks field formats after all sources have been applied.
func (c *Config) Validate() error {
	return validate.Struct(c)
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerAddr = "127.0.0.1:8443"
	c.Transport = "tls"
	c.ServerName = "localhost"
	c.CAFile = ""
	c.Insecure = true
	c.Scheme = "rsa-oaep"
	c.RSABits = 2048
	c.LogLevel = "warn"
	c.DialTimeout = 5 * time.Second
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig(args []string) *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg, args)
	parseFlags(cfg, args)
	return cfg
}
