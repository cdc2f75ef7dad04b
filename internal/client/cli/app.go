package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/dmitrijs2005/securechat/internal/client/chat"
	"github.com/dmitrijs2005/securechat/internal/client/config"
	"github.com/dmitrijs2005/securechat/internal/cryptox"
	"github.com/dmitrijs2005/securechat/internal/logging"
	"github.com/dmitrijs2005/securechat/internal/protocol"
	"github.com/dmitrijs2005/securechat/internal/transport"
)

type App struct {
	config *config.Config
	logger logging.Logger
	reader *bufio.Reader
	out    io.Writer

	// dial and generateKey are replaced in tests.
	dial        func(ctx context.Context) (transport.Channel, error)
	generateKey func() (cryptox.PrivateKey, error)
}

func NewApp(c *config.Config) (*App, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	tlsCfg, err := transport.ClientTLSConfig(c.ServerName, c.CAFile, c.Insecure)
	if err != nil {
		return nil, fmt.Errorf("tls config: %w", err)
	}

	app := newApp(c, logging.NewText(os.Stderr, c.LogLevel), os.Stdin, os.Stdout)
	app.dial = func(ctx context.Context) (transport.Channel, error) {
		return transport.Dial(ctx, transport.Kind(c.Transport), c.ServerAddr, tlsCfg)
	}
	return app, nil
}

func newApp(c *config.Config, logger logging.Logger, in io.Reader, out io.Writer) *App {
	return &App{
		config: c,
		logger: logger,
		reader: bufio.NewReader(in),
		out:    out,
		generateKey: func() (cryptox.PrivateKey, error) {
			return cryptox.GenerateKey(cryptox.Scheme(c.Scheme), c.RSABits)
		},
	}
}

// Run connects, logs in and chats until /quit, end of input, ctx
// cancellation, or the relay going away.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	dialCtx, dialCancel := context.WithTimeout(ctx, a.config.DialTimeout)
	ch, err := a.dial(dialCtx)
	dialCancel()
	if err != nil {
		return fmt.Errorf("connect to %s: %w", a.config.ServerAddr, err)
	}
	printlnFn("Connected to server")

	cl := chat.New(ch, a.logger.With("remote", ch.RemoteAddr()))
	defer cl.Close()

	if err := a.login(cl); err != nil {
		return err
	}

	key, err := a.generateKey()
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}
	if err := cl.PublishKey(key); err != nil {
		return err
	}
	printlnFn("Type a message and press Enter. Commands: /whisper <user> <message>, /list, /quit")

	// A failed inbound flow closes the channel but leaves compose running;
	// the next typed line fails on send and ends the session.
	inbound := make(chan error, 1)
	go func() { inbound <- cl.Receive(ctx, display) }()

	outErr := a.compose(ctx, cl)
	cancel()
	inErr := <-inbound

	switch {
	case inErr != nil:
		printlnFn("Connection lost:", inErr)
		return inErr
	case outErr != nil:
		printlnFn("Connection lost:", outErr)
		return outErr
	}
	printlnFn("Bye!")
	return nil
}

// login repeats the credential prompt until the relay accepts it.
func (a *App) login(cl *chat.Client) error {
	for {
		identity, err := GetSimpleText(a.reader, "Enter username", a.out)
		if err != nil {
			return err
		}
		if identity == "" {
			continue
		}

		password, err := GetPassword(a.out)
		if err != nil {
			return err
		}
		resp, err := cl.Authenticate(identity, password)
		clear(password)
		if err != nil {
			return err
		}

		printlnFn(resp.Message)
		if resp.OK() {
			return nil
		}
	}
}

func display(m chat.Message) {
	switch m.Kind {
	case protocol.KindError:
		printlnFn("Error:", m.Text)
	default:
		printlnFn(m.Text)
	}
}
