package config

import (
	"flag"
	"io"
	"time"

	"github.com/dmitrijs2005/securechat/internal/flagx"
)

// parseFlags overlays selected Config fields from command-line flags.
//
// Supported flags:
//
//	-a string   relay address
//	-n string   transport: tls or grpc
//	-s string   expected server name
//	-r string   CA bundle file
//	-i bool     skip certificate verification
//	-x string   cipher scheme: rsa-oaep or nacl-box
//	-b int      RSA key size
//	-l string   log level
//	-t int      dial timeout, seconds
//
// Invalid values cause a panic.
func parseFlags(config *Config, args []string) {
	args = flagx.FilterArgs(args, []string{"-a", "-n", "-s", "-r", "-i", "-x", "-b", "-l", "-t"})

	fs := flag.NewFlagSet("client", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.ServerAddr, "a", config.ServerAddr, "relay address")
	fs.StringVar(&config.Transport, "n", config.Transport, "transport (tls|grpc)")
	fs.StringVar(&config.ServerName, "s", config.ServerName, "expected server name")
	fs.StringVar(&config.CAFile, "r", config.CAFile, "CA bundle file")
	fs.BoolVar(&config.Insecure, "i", config.Insecure, "skip certificate verification")
	fs.StringVar(&config.Scheme, "x", config.Scheme, "cipher scheme (rsa-oaep|nacl-box)")
	fs.IntVar(&config.RSABits, "b", config.RSABits, "RSA key size")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")
	dialTimeout := fs.Int("t", int(config.DialTimeout.Seconds()), "dial timeout (in seconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	if isSet(fs, "t") {
		config.DialTimeout = time.Duration(*dialTimeout) * time.Second
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
