// Package chat is the participant side of the relay protocol: credential
// exchange, key publication, and the inbound and outbound message flows.
//
// A Client is used by two goroutines: one runs Receive, the other calls
// Send. Authenticate and PublishKey must complete before either starts.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/dmitrijs2005/securechat/internal/common"
	"github.com/dmitrijs2005/securechat/internal/cryptox"
	"github.com/dmitrijs2005/securechat/internal/logging"
	"github.com/dmitrijs2005/securechat/internal/protocol"
	"github.com/dmitrijs2005/securechat/internal/transport"
)

// Message is one inbound item ready for display. Chat text is already
// decrypted.
type Message struct {
	Kind protocol.Kind
	Text string
}

type Client struct {
	codec  *protocol.Codec
	logger logging.Logger
	key    cryptox.PrivateKey

	closeOnce sync.Once
	closeErr  error
}

func New(ch transport.Channel, logger logging.Logger) *Client {
	return &Client{codec: protocol.NewCodec(ch), logger: logger}
}

// Authenticate sends one credential request and returns the relay's answer.
// A rejected login is not an error; check resp.OK().
func (c *Client) Authenticate(identity string, password []byte) (protocol.AuthResponse, error) {
	req := protocol.AuthRequest{
		Identity:         identity,
		SecretDerivative: cryptox.SecretDerivative(password),
	}
	if err := c.codec.WriteAuthRequest(req); err != nil {
		return protocol.AuthResponse{}, fmt.Errorf("send credentials: %w", err)
	}
	resp, err := c.codec.ReadAuthResponse()
	if err != nil {
		return protocol.AuthResponse{}, fmt.Errorf("read auth response: %w", err)
	}
	return resp, nil
}

// PublishKey sends the public half of key as the session's key frame and
// keeps the private half for decrypting inbound chat.
func (c *Client) PublishKey(key cryptox.PrivateKey) error {
	pem, err := key.Public().MarshalPEM()
	if err != nil {
		return err
	}
	if err := c.codec.WriteRaw(pem); err != nil {
		return fmt.Errorf("publish key: %w", err)
	}
	c.key = key
	return nil
}

// Send classifies a typed line and sends it upstream.
func (c *Client) Send(line string) error {
	return c.codec.WriteEnvelope(protocol.Classify(line))
}

// Receive reads envelopes until the connection ends, passing each to sink.
// A chat envelope that cannot be decrypted or a malformed envelope ends the
// flow and closes the channel. It returns nil when ctx was cancelled or the
// relay closed the connection cleanly.
func (c *Client) Receive(ctx context.Context, sink func(Message)) error {
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()

	err := c.receive(sink)
	_ = c.Close()

	if ctx.Err() != nil || errors.Is(err, io.EOF) {
		c.logger.Debug(ctx, "inbound flow finished")
		return nil
	}
	c.logger.Warn(ctx, "inbound flow failed", "error", err)
	return err
}

func (c *Client) receive(sink func(Message)) error {
	for {
		e, err := c.codec.ReadEnvelope()
		if err != nil {
			return err
		}

		switch e.Kind {
		case protocol.KindChat:
			if c.key == nil {
				return common.ErrKeyNotBound
			}
			text, err := cryptox.OpenString(e.Content, c.key)
			if err != nil {
				return fmt.Errorf("decrypt chat: %w", err)
			}
			sink(Message{Kind: protocol.KindChat, Text: text})
		default:
			sink(Message{Kind: e.Kind, Text: e.Content})
		}
	}
}

// Close closes the underlying channel; later calls return the first result.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.codec.Channel().Close()
	})
	return c.closeErr
}
