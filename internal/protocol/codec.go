package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/securechat/internal/transport"
)

// Codec reads and writes protocol messages on a transport channel. It adds
// no locking; callers serialize writes.
type Codec struct {
	ch transport.Channel
}

func NewCodec(ch transport.Channel) *Codec {
	return &Codec{ch: ch}
}

func (c *Codec) Channel() transport.Channel { return c.ch }

func (c *Codec) WriteEnvelope(e Envelope) error {
	b, err := MarshalEnvelope(e)
	if err != nil {
		return err
	}
	return c.ch.Send(b)
}

// ReadEnvelope returns transport errors unchanged and decode failures
// wrapped in common.ErrProtocol, so callers can tell a broken connection
// from a bad message.
func (c *Codec) ReadEnvelope() (Envelope, error) {
	frame, err := c.ch.Recv()
	if err != nil {
		return Envelope{}, err
	}
	return UnmarshalEnvelope(frame)
}

func (c *Codec) WriteAuthRequest(r AuthRequest) error {
	return c.writeJSON(r)
}

func (c *Codec) ReadAuthRequest() (AuthRequest, error) {
	frame, err := c.ch.Recv()
	if err != nil {
		return AuthRequest{}, err
	}
	return UnmarshalAuthRequest(frame)
}

func (c *Codec) WriteAuthResponse(r AuthResponse) error {
	return c.writeJSON(r)
}

func (c *Codec) ReadAuthResponse() (AuthResponse, error) {
	frame, err := c.ch.Recv()
	if err != nil {
		return AuthResponse{}, err
	}
	return UnmarshalAuthResponse(frame)
}

// WriteRaw sends frame without an envelope; used for the key binding frame.
func (c *Codec) WriteRaw(frame []byte) error {
	return c.ch.Send(frame)
}

func (c *Codec) ReadRaw() ([]byte, error) {
	return c.ch.Recv()
}

func (c *Codec) writeJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %T: %w", v, err)
	}
	return c.ch.Send(b)
}
