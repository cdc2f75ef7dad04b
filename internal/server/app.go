// Package server wires the relay together: configuration, logging, the
// credential store, the session registry, the router and the transport
// listener. It runs the accept loop and handles graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/securechat/internal/cryptox"
	"github.com/dmitrijs2005/securechat/internal/logging"
	"github.com/dmitrijs2005/securechat/internal/server/config"
	"github.com/dmitrijs2005/securechat/internal/server/credentials"
	"github.com/dmitrijs2005/securechat/internal/server/handler"
	"github.com/dmitrijs2005/securechat/internal/server/metrics"
	"github.com/dmitrijs2005/securechat/internal/server/router"
	"github.com/dmitrijs2005/securechat/internal/server/session"
	"github.com/dmitrijs2005/securechat/internal/transport"
	"google.golang.org/grpc"
)

// demoUsers is used when neither a database nor users are configured.
var demoUsers = map[string]string{
	"alice": cryptox.SecretDerivative([]byte("password")),
	"bob":   cryptox.SecretDerivative([]byte("password")),
}

var _ handler.Observer = (*metrics.Metrics)(nil)

type App struct {
	config   *config.Config
	logger   logging.Logger
	store    credentials.Store
	closers  []func() error
	registry *session.Registry
	handler  *handler.Handler
	metrics  *metrics.Metrics

	// listen opens the relay endpoint; replaced in tests.
	listen func() (transport.Listener, error)

	mu    sync.Mutex
	conns map[transport.Channel]struct{}
}

// NewApp builds the relay from c. With a DatabaseDSN the credential store
// is PostgreSQL (migrated and seeded with c.Users); otherwise verifiers are
// held in memory.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	logger := logging.NewJSON(os.Stdout, c.LogLevel)

	var (
		store   credentials.Store
		closers []func() error
	)
	if c.DatabaseDSN != "" {
		pg, err := credentials.OpenPostgres(ctx, c.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("db init error: %w", err)
		}
		if err := pg.Seed(ctx, c.Users); err != nil {
			_ = pg.Close()
			return nil, fmt.Errorf("seed users: %w", err)
		}
		store = pg
		closers = append(closers, pg.Close)
	} else {
		users := c.Users
		if len(users) == 0 {
			logger.Warn(ctx, "no users configured, using demo accounts")
			users = demoUsers
		}
		store = credentials.NewMemoryStore(users)
	}

	app := newApp(c, logger, store)
	app.closers = closers
	app.listen = func() (transport.Listener, error) {
		tlsCfg, err := transport.ServerTLSConfig(c.CertFile, c.KeyFile)
		if err != nil {
			return nil, err
		}
		return transport.Listen(transport.Kind(c.Transport), c.ListenAddr, tlsCfg,
			grpc.ChainStreamInterceptor(transport.StreamLoggingInterceptor(logger.With("module", "grpc"))))
	}
	return app, nil
}

func newApp(c *config.Config, logger logging.Logger, store credentials.Store) *App {
	registry := session.NewRegistry()
	rt := router.New(registry, logger)
	gate := credentials.NewGate(store, logger)
	m := metrics.New()

	app := &App{
		config:   c,
		logger:   logger,
		store:    store,
		registry: registry,
		handler:  handler.New(gate, registry, rt, logger).WithObserver(m),
		metrics:  m,
		conns:    make(map[transport.Channel]struct{}),
	}
	m.Gauge("active_sessions", "Sessions admitted to the registry.", func() float64 {
		return float64(registry.Len())
	})
	m.Gauge("open_connections", "Accepted connections not yet closed.", func() float64 {
		app.mu.Lock()
		defer app.mu.Unlock()
		return float64(len(app.conns))
	})
	return app
}

// AddUser provisions identity with the verifier derived from password.
func (app *App) AddUser(ctx context.Context, identity, password string) error {
	if password == "" {
		return errors.New("password is required")
	}
	return credentials.Provision(ctx, app.store, identity, cryptox.SecretDerivative([]byte(password)))
}

// Close releases the credential store.
func (app *App) Close() error {
	var errs []error
	for _, c := range app.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run serves until ctx is cancelled or a termination signal arrives.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.initSignalHandler(cancelFunc)

	l, err := app.listen()
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	app.logger.Info(ctx, "Starting relay...", "addr", l.Addr(), "transport", app.config.Transport)

	if app.config.MetricsAddr != "" {
		go func() {
			if err := app.metrics.Serve(ctx, app.config.MetricsAddr, app.logger); err != nil {
				app.logger.Error(ctx, "metrics endpoint failed", "error", err)
			}
		}()
	}

	return app.serve(ctx, l)
}

// serve accepts connections from l and runs one handler goroutine per
// connection. On return the listener and every open connection are closed.
func (app *App) serve(ctx context.Context, l transport.Listener) error {
	stop := context.AfterFunc(ctx, func() { _ = l.Close() })
	defer stop()

	var (
		wg     sync.WaitGroup
		result error
	)
	for {
		ch, err := l.Accept()
		if err != nil {
			if ctx.Err() == nil {
				result = fmt.Errorf("accept: %w", err)
			}
			break
		}

		app.track(ch)
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer app.untrack(ch)
			app.handler.Serve(ctx, ch)
		}()
	}

	_ = l.Close()
	app.logger.Info(context.Background(), "Shutting down relay...", "connections", app.closeConnections())

	if !waitTimeout(&wg, app.config.ShutdownTimeout) {
		app.logger.Warn(context.Background(), "connections did not finish before shutdown timeout")
	}
	return result
}

func (app *App) track(ch transport.Channel) {
	app.mu.Lock()
	defer app.mu.Unlock()
	app.conns[ch] = struct{}{}
}

func (app *App) untrack(ch transport.Channel) {
	app.mu.Lock()
	defer app.mu.Unlock()
	delete(app.conns, ch)
}

// closeConnections closes every tracked channel, which ends their handlers'
// receive loops. It returns how many were open.
func (app *App) closeConnections() int {
	app.mu.Lock()
	open := make([]transport.Channel, 0, len(app.conns))
	for ch := range app.conns {
		open = append(open, ch)
	}
	app.mu.Unlock()

	for _, ch := range open {
		_ = ch.Close()
	}
	return len(open)
}

func waitTimeout(wg *sync.WaitGroup, d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}
