// Package session holds the live per-connection state of an authenticated
// participant and the registry of everyone currently online.
package session

import (
	"fmt"
	"sync"

	"github.com/dmitrijs2005/securechat/internal/common"
	"github.com/dmitrijs2005/securechat/internal/cryptox"
	"github.com/dmitrijs2005/securechat/internal/protocol"
	"github.com/dmitrijs2005/securechat/internal/transport"
	"github.com/google/uuid"
)

// Session is one authenticated connection. The connection handler owns it;
// the registry and the router only hold references.
type Session struct {
	ID       string
	Identity string

	codec *protocol.Codec

	keyMu sync.RWMutex
	key   cryptox.PublicKey

	// sendMu serializes frames written by concurrent routers.
	sendMu sync.Mutex
}

// New creates the session for identity on ch. Only the connection handler
// calls it, after the credential gate accepted identity.
func New(identity string, ch transport.Channel) *Session {
	return &Session{
		ID:       uuid.NewString(),
		Identity: identity,
		codec:    protocol.NewCodec(ch),
	}
}

// BindKey parses the presented public key and attaches it to the session.
// No proof of possession is asked for: the transport is trusted to keep
// third parties from substituting keys.
func (s *Session) BindKey(raw []byte) error {
	pub, err := cryptox.ParsePublicKey(raw)
	if err != nil {
		return fmt.Errorf("bind key for %s: %w", s.Identity, err)
	}
	s.keyMu.Lock()
	s.key = pub
	s.keyMu.Unlock()
	return nil
}

// PublicKey returns the bound key, or nil before key binding.
func (s *Session) PublicKey() cryptox.PublicKey {
	s.keyMu.RLock()
	defer s.keyMu.RUnlock()
	return s.key
}

// Send writes one envelope to the session's channel.
func (s *Session) Send(e protocol.Envelope) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	return s.codec.WriteEnvelope(e)
}

// SendSealed seals text under the session's key and delivers it as a chat
// envelope.
func (s *Session) SendSealed(text string) error {
	pub := s.PublicKey()
	if pub == nil {
		return fmt.Errorf("%s: %w", s.Identity, common.ErrKeyNotBound)
	}
	content, err := cryptox.SealString(text, pub)
	if err != nil {
		return err
	}
	return s.Send(protocol.Chat(content))
}

// Codec exposes the session's codec to its owning handler for reads.
func (s *Session) Codec() *protocol.Codec { return s.codec }

// Close releases the transport.
func (s *Session) Close() error {
	return s.codec.Channel().Close()
}

func (s *Session) RemoteAddr() string {
	return s.codec.Channel().RemoteAddr()
}
