package config

import (
	"flag"
	"io"

	"github.com/dmitrijs2005/securechat/internal/flagx"
)

// parseFlags overlays selected Config fields from command-line flags.
//
// Supported flags:
//
//	-a string   listen address (e.g. "0.0.0.0:8443")
//	-n string   transport: tls or grpc
//	-e string   TLS certificate file
//	-k string   TLS key file
//	-d string   PostgreSQL DSN for the credential store
//	-l string   log level
//	-w int      shutdown timeout, seconds
//	-m string   metrics endpoint address
func parseFlags(config *Config, args []string) {
	args = flagx.FilterArgs(args, []string{"-a", "-n", "-e", "-k", "-d", "-l", "-w", "-m"})

	fs := flag.NewFlagSet("relay", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.ListenAddr, "a", config.ListenAddr, "address and port to listen on")
	fs.StringVar(&config.Transport, "n", config.Transport, "transport (tls|grpc)")
	fs.StringVar(&config.CertFile, "e", config.CertFile, "TLS certificate file")
	fs.StringVar(&config.KeyFile, "k", config.KeyFile, "TLS key file")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "credential store DSN")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")
	fs.StringVar(&config.MetricsAddr, "m", config.MetricsAddr, "metrics endpoint address")
	shutdownTimeout := fs.Int("w", int(config.ShutdownTimeout.Seconds()), "shutdown timeout (in seconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	if isSet(fs, "w") {
		config.ShutdownTimeout = secondsToDuration(*shutdownTimeout)
	}
}

func isSet(fs *flag.FlagSet, name string) bool {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}
