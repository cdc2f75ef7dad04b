// Package handler runs the relay side of one connection: credential
// exchange, key binding, registry admission, the receive loop and cleanup.
package handler

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dmitrijs2005/securechat/internal/common"
	"github.com/dmitrijs2005/securechat/internal/logging"
	"github.com/dmitrijs2005/securechat/internal/protocol"
	"github.com/dmitrijs2005/securechat/internal/server/credentials"
	"github.com/dmitrijs2005/securechat/internal/server/router"
	"github.com/dmitrijs2005/securechat/internal/server/session"
	"github.com/dmitrijs2005/securechat/internal/transport"
)

const (
	msgAuthOK        = "Authentication successful"
	msgMalformedAuth = "Malformed authentication request"
)

// Authenticator is the credential gate as seen by the handler.
type Authenticator interface {
	Authenticate(ctx context.Context, identity, derivative string) error
}

var _ Authenticator = (*credentials.Gate)(nil)

// Observer is told about authentication attempts and routed envelopes.
type Observer interface {
	AuthAttempt(ok bool)
	Received(kind protocol.Kind)
	Delivered(n int)
}

type nopObserver struct{}

func (nopObserver) AuthAttempt(bool)       {}
func (nopObserver) Received(protocol.Kind) {}
func (nopObserver) Delivered(int)          {}

// Handler is shared by all connections; Serve runs once per connection on
// its own goroutine.
type Handler struct {
	gate     Authenticator
	registry *session.Registry
	router   *router.Router
	logger   logging.Logger
	observer Observer

	// onState, when set, observes every state transition. Tests use it.
	onState func(remote string, s State)
}

func New(gate Authenticator, registry *session.Registry, rt *router.Router, logger logging.Logger) *Handler {
	return &Handler{
		gate:     gate,
		registry: registry,
		router:   rt,
		logger:   logger.With("module", "connection_handler"),
		observer: nopObserver{},
	}
}

// WithObserver sets the observer notified by every connection.
func (h *Handler) WithObserver(o Observer) *Handler {
	h.observer = o
	return h
}

type conn struct {
	ch     transport.Channel
	codec  *protocol.Codec
	logger logging.Logger
}

func (h *Handler) transition(c *conn, s State) {
	c.logger.Debug(context.Background(), "state", "state", s.String())
	if h.onState != nil {
		h.onState(c.ch.RemoteAddr(), s)
	}
}

// Serve drives ch through Authenticating → BindingKey → Active → Closed.
// It returns when the connection is finished; the channel is always
// closed, and an admitted session is always evicted and announced as gone.
func (h *Handler) Serve(ctx context.Context, ch transport.Channel) {
	c := &conn{
		ch:     ch,
		codec:  protocol.NewCodec(ch),
		logger: h.logger.With("remote", ch.RemoteAddr()),
	}
	h.transition(c, StateConnecting)

	defer func() {
		if p := recover(); p != nil {
			c.logger.Error(ctx, "connection handler panic", "panic", fmt.Sprint(p))
		}
		_ = ch.Close()
		h.transition(c, StateClosed)
	}()

	h.transition(c, StateAuthenticating)
	identity, err := h.authenticate(ctx, c)
	if err != nil {
		h.logEnd(ctx, c, "authentication aborted", err)
		return
	}
	c.logger = c.logger.With("identity", identity)

	h.transition(c, StateBindingKey)
	s := session.New(identity, ch)
	c.logger = c.logger.With("session_id", s.ID)
	raw, err := c.codec.ReadRaw()
	if err != nil {
		h.logEnd(ctx, c, "key binding aborted", err)
		return
	}
	if err := s.BindKey(raw); err != nil {
		c.logger.Warn(ctx, "malformed key material", "error", err)
		return
	}

	h.transition(c, StateActive)
	if replaced := h.registry.Admit(s); replaced != nil {
		c.logger.Warn(ctx, "replaced existing session", "replaced_session_id", replaced.ID)
	}
	defer h.release(ctx, c, s)

	c.logger.Info(ctx, "session admitted", "scheme", s.PublicKey().Scheme())
	h.router.Announce(ctx, s, router.JoinNotice(identity))

	err = h.receive(ctx, c, s)
	h.logEnd(ctx, c, "session ended", err)
}

// authenticate loops until the gate accepts a credential frame. Bad
// credentials and malformed requests are answered and retried; only a
// transport failure ends the loop.
func (h *Handler) authenticate(ctx context.Context, c *conn) (string, error) {
	for {
		req, err := c.codec.ReadAuthRequest()
		if err != nil {
			if !errors.Is(err, common.ErrProtocol) {
				return "", err
			}
			c.logger.Warn(ctx, "malformed auth request", "error", err)
			if err := c.codec.WriteAuthResponse(protocol.AuthResponse{Status: protocol.StatusError, Message: msgMalformedAuth}); err != nil {
				return "", err
			}
			continue
		}

		err = h.gate.Authenticate(ctx, req.Identity, req.SecretDerivative)
		h.observer.AuthAttempt(err == nil)
		if err != nil {
			c.logger.Info(ctx, "authentication failed", "identity", req.Identity)
			if err := c.codec.WriteAuthResponse(protocol.AuthResponse{Status: protocol.StatusError, Message: credentials.InvalidCredentialsMessage}); err != nil {
				return "", err
			}
			continue
		}

		if err := c.codec.WriteAuthResponse(protocol.AuthResponse{Status: protocol.StatusSuccess, Message: msgAuthOK}); err != nil {
			return "", err
		}
		return req.Identity, nil
	}
}

// receive runs the Active loop until the channel ends.
func (h *Handler) receive(ctx context.Context, c *conn, s *session.Session) error {
	for {
		env, err := s.Codec().ReadEnvelope()
		if err != nil {
			if errors.Is(err, common.ErrProtocol) && !errors.Is(err, common.ErrConnection) {
				c.logger.Warn(ctx, "malformed envelope", "error", err)
				if err := s.Send(protocol.Error("Malformed message")); err != nil {
					return err
				}
				continue
			}
			return err
		}

		h.observer.Received(env.Kind)
		switch env.Kind {
		case protocol.KindChat:
			h.observer.Delivered(h.router.Chat(ctx, s, env.Content))
		case protocol.KindCommand:
			if err := h.router.Dispatch(ctx, s, env.Content); err != nil {
				c.logger.Debug(ctx, "command rejected", "error", err)
			}
		default:
			if err := s.Send(protocol.Error(fmt.Sprintf("Unexpected %s envelope", env.Kind))); err != nil {
				return err
			}
		}
	}
}

// release evicts s and tells everyone else it left. A session superseded
// by a newer login for the same identity is no longer registered and leaves
// silently.
func (h *Handler) release(ctx context.Context, c *conn, s *session.Session) {
	if !h.registry.EvictSession(s) {
		c.logger.Info(ctx, "superseded session closed")
		return
	}
	h.router.Announce(ctx, s, router.LeaveNotice(s.Identity))
	c.logger.Info(ctx, "session evicted")
}

func (h *Handler) logEnd(ctx context.Context, c *conn, msg string, err error) {
	switch {
	case err == nil, errors.Is(err, io.EOF), errors.Is(err, common.ErrClosed):
		c.logger.Info(ctx, msg, "reason", "closed")
	default:
		c.logger.Warn(ctx, msg, "error", err)
	}
}
