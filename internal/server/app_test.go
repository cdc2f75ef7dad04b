package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/securechat/internal/cryptox"
	"github.com/dmitrijs2005/securechat/internal/logging"
	"github.com/dmitrijs2005/securechat/internal/protocol"
	"github.com/dmitrijs2005/securechat/internal/server/config"
	"github.com/dmitrijs2005/securechat/internal/server/credentials"
	"github.com/dmitrijs2005/securechat/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testApp(t *testing.T) (*App, *transport.MemoryListener) {
	t.Helper()
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.ShutdownTimeout = 2 * time.Second

	app := newApp(cfg, logging.Discard(), credentials.NewMemoryStore(demoUsers))
	l := transport.NewMemoryListener(16)
	app.listen = func() (transport.Listener, error) { return l, nil }
	return app, l
}

func login(t *testing.T, l *transport.MemoryListener, identity string) *protocol.Codec {
	t.Helper()
	ch, err := l.Connect()
	require.NoError(t, err)
	c := protocol.NewCodec(ch)

	require.NoError(t, c.WriteAuthRequest(protocol.AuthRequest{
		Identity:         identity,
		SecretDerivative: cryptox.SecretDerivative([]byte("password")),
	}))
	resp, err := c.ReadAuthResponse()
	require.NoError(t, err)
	require.True(t, resp.OK(), resp.Message)

	key, err := cryptox.GenerateKey(cryptox.SchemeNaCl, 0)
	require.NoError(t, err)
	pem, err := key.Public().MarshalPEM()
	require.NoError(t, err)
	require.NoError(t, c.WriteRaw(pem))
	return c
}

func TestApp_RunServesAndShutsDown(t *testing.T) {
	app, l := testApp(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	alice := login(t, l, "alice")
	require.Eventually(t, func() bool { return app.registry.Len() == 1 }, time.Second, 5*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	// the relay closed alice's connection on shutdown
	_, err := alice.ReadEnvelope()
	assert.Error(t, err)
	assert.Equal(t, 0, app.registry.Len())
}

func TestApp_ListenError(t *testing.T) {
	app, _ := testApp(t)
	app.listen = func() (transport.Listener, error) { return nil, assert.AnError }

	err := app.Run(context.Background())
	assert.ErrorIs(t, err, assert.AnError)
}

func TestApp_AcceptErrorStopsServe(t *testing.T) {
	app, l := testApp(t)
	require.NoError(t, l.Close())

	err := app.serve(context.Background(), l)
	assert.Error(t, err)
}

func TestApp_AddUser(t *testing.T) {
	app, l := testApp(t)
	ctx := context.Background()

	require.NoError(t, app.AddUser(ctx, "carol", "password"))
	assert.Error(t, app.AddUser(ctx, "dave", ""))

	go func() { _ = app.serve(ctx, l) }()
	t.Cleanup(func() { _ = l.Close() })
	login(t, l, "carol")
}

func TestNewApp_MemoryStoreDefaults(t *testing.T) {
	cfg := &config.Config{}
	cfg.LoadDefaults()

	app, err := NewApp(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })

	v, err := app.store.Verifier(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, cryptox.SecretDerivative([]byte("password")), string(v))
}

func TestNewApp_InvalidConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.Transport = "smoke-signals"

	_, err := NewApp(context.Background(), cfg)
	assert.Error(t, err)
}

func TestApp_MetricsTrackSessions(t *testing.T) {
	app, l := testApp(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = app.serve(ctx, l) }()

	login(t, l, "alice")
	bob := login(t, l, "bob")
	require.Eventually(t, func() bool { return app.registry.Len() == 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, bob.WriteEnvelope(protocol.Chat("hi")))

	rec := httptest.NewRecorder()
	require.Eventually(t, func() bool {
		rec = httptest.NewRecorder()
		app.metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		return strings.Contains(rec.Body.String(), "securechat_relay_chat_deliveries_total 1")
	}, time.Second, 10*time.Millisecond)

	body := rec.Body.String()
	assert.Contains(t, body, "securechat_relay_active_sessions 2")
	assert.Contains(t, body, "securechat_relay_open_connections 2")
	assert.Contains(t, body, `securechat_relay_auth_attempts_total{result="success"} 2`)
}
