package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/securechat/internal/flagx"
	"github.com/dmitrijs2005/securechat/internal/timex"
)

// JsonConfig mirrors Config for unmarshalling. Durations accept "5s" or
// integer nanoseconds; absent fields leave the current value untouched.
type JsonConfig struct {
	ListenAddr      *string           `json:"listen_addr"`
	Transport       *string           `json:"transport"`
	CertFile        *string           `json:"cert_file"`
	KeyFile         *string           `json:"key_file"`
	DatabaseDSN     *string           `json:"database_dsn"`
	Users           map[string]string `json:"users"`
	LogLevel        *string           `json:"log_level"`
	ShutdownTimeout *timex.Duration   `json:"shutdown_timeout"`
	MetricsAddr     *string           `json:"metrics_addr"`
}

// parseJson overlays values from the file named by -c or -config. Without
// either flag nothing is loaded. An unreadable or invalid file panics.
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

	setString(&config.ListenAddr, c.ListenAddr)
	setString(&config.Transport, c.Transport)
	setString(&config.CertFile, c.CertFile)
	setString(&config.KeyFile, c.KeyFile)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.MetricsAddr, c.MetricsAddr)
	if c.Users != nil {
		config.Users = c.Users
	}
	if c.ShutdownTimeout != nil {
		config.ShutdownTimeout = c.ShutdownTimeout.Duration
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func secondsToDuration(s int) time.Duration {
	return time.Duration(s) * time.Second
}
