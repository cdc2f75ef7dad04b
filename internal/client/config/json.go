package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/securechat/internal/flagx"
	"github.com/dmitrijs2005/securechat/internal/timex"
)

// JsonConfig mirrors Config for unmarshalling; absent fields keep their
// current value.
type JsonConfig struct {
	ServerAddr  *string         `json:"server_addr"`
	Transport   *string         `json:"transport"`
	ServerName  *string         `json:"server_name"`
	CAFile      *string         `json:"ca_file"`
	Insecure    *bool           `json:"insecure"`
	Scheme      *string         `json:"scheme"`
	RSABits     *int            `json:"rsa_bits"`
	LogLevel    *string         `json:"log_level"`
	DialTimeout *timex.Duration `json:"dial_timeout"`
}

// parseJson overlays values from the file named by -c or -config.
// An unreadable or invalid file panics.
func parseJson(config *Config, args []string) {
	path := flagx.ConfigPath(args)
	if path == "" {
		return
	}

	file, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	if c.ServerAddr != nil {
		config.ServerAddr = *c.ServerAddr
	}
	if c.Transport != nil {
		config.Transport = *c.Transport
	}
	if c.ServerName != nil {
		config.ServerName = *c.ServerName
	}
	if c.CAFile != nil {
		config.CAFile = *c.CAFile
	}
	if c.Insecure != nil {
		config.Insecure = *c.Insecure
	}
	if c.Scheme != nil {
		config.Scheme = *c.Scheme
	}
	if c.RSABits != nil {
		config.RSABits = *c.RSABits
	}
	if c.LogLevel != nil {
		config.LogLevel = *c.LogLevel
	}
	if c.DialTimeout != nil {
		config.DialTimeout = c.DialTimeout.Duration
	}
}
