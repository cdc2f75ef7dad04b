// Package protocol defines the messages exchanged between the relay and a
// participant: the pre-authentication request/response pair, the raw key
// frame, and the post-authentication Envelope. Messages are JSON objects,
// one per transport frame.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/securechat/internal/common"
)

// Kind discriminates envelopes.
type Kind string

const (
	// KindChat carries text. Upstream it is plaintext typed by the user;
	// downstream it is base64 ciphertext sealed for the receiving session.
	KindChat Kind = "chat"
	// KindCommand carries command text upstream and plaintext command
	// output (presence listing) downstream.
	KindCommand Kind = "command"
	// KindError carries a human-readable failure addressed to the sender.
	KindError Kind = "error"
)

// Valid reports whether k is one of the three envelope kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindChat, KindCommand, KindError:
		return true
	}
	return false
}

// Envelope is the only unit exchanged after authentication. It carries no
// addressing: the sender is the connection, recipients come from commands.
type Envelope struct {
	Kind    Kind   `json:"kind"`
	Content string `json:"content"`
}

func Chat(content string) Envelope    { return Envelope{Kind: KindChat, Content: content} }
func Command(content string) Envelope { return Envelope{Kind: KindCommand, Content: content} }
func Error(content string) Envelope   { return Envelope{Kind: KindError, Content: content} }

// AuthStatus is the outcome reported in an AuthResponse.
type AuthStatus string

const (
	StatusSuccess AuthStatus = "success"
	StatusError   AuthStatus = "error"
)

// AuthRequest is sent by the client until the relay accepts it.
type AuthRequest struct {
	Identity         string `json:"identity"`
	SecretDerivative string `json:"secretDerivative"`
}

// AuthResponse answers every AuthRequest.
type AuthResponse struct {
	Status  AuthStatus `json:"status"`
	Message string     `json:"message"`
}

// OK reports whether the relay accepted the credentials.
func (r AuthResponse) OK() bool { return r.Status == StatusSuccess }

// MarshalEnvelope encodes e for a single frame.
func MarshalEnvelope(e Envelope) ([]byte, error) {
	if !e.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown envelope kind %q", common.ErrProtocol, e.Kind)
	}
	return json.Marshal(e)
}

// UnmarshalEnvelope decodes and validates one frame.
func UnmarshalEnvelope(frame []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(frame, &e); err != nil {
		return Envelope{}, fmt.Errorf("%w: malformed envelope: %v", common.ErrProtocol, err)
	}
	if !e.Kind.Valid() {
		return Envelope{}, fmt.Errorf("%w: unknown envelope kind %q", common.ErrProtocol, e.Kind)
	}
	return e, nil
}

// UnmarshalAuthRequest decodes a credential frame. Both fields must be set.
func UnmarshalAuthRequest(frame []byte) (AuthRequest, error) {
	var r AuthRequest
	if err := json.Unmarshal(frame, &r); err != nil {
		return AuthRequest{}, fmt.Errorf("%w: malformed auth request: %v", common.ErrProtocol, err)
	}
	if r.Identity == "" || r.SecretDerivative == "" {
		return AuthRequest{}, fmt.Errorf("%w: auth request missing identity or secret", common.ErrProtocol)
	}
	return r, nil
}

// UnmarshalAuthResponse decodes the relay's answer to an AuthRequest.
func UnmarshalAuthResponse(frame []byte) (AuthResponse, error) {
	var r AuthResponse
	if err := json.Unmarshal(frame, &r); err != nil {
		return AuthResponse{}, fmt.Errorf("%w: malformed auth response: %v", common.ErrProtocol, err)
	}
	if r.Status != StatusSuccess && r.Status != StatusError {
		return AuthResponse{}, fmt.Errorf("%w: unknown auth status %q", common.ErrProtocol, r.Status)
	}
	return r, nil
}
