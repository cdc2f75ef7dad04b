// Package transport provides the secured, message-framed channel the relay
// and the client exchange frames over. Confidentiality and integrity come
// from TLS; this package only adds framing and a uniform Channel interface
// over TCP+TLS, gRPC streams and in-process pipes.
package transport

import (
	"context"
	"crypto/tls"
	"fmt"

	"google.golang.org/grpc"
)

// Channel is one bidirectional, ordered, reliable frame stream.
//
// Recv returns io.EOF when the peer closed the stream cleanly. Other
// failures wrap common.ErrConnection. Send and Recv may be called from
// different goroutines, but neither is safe for concurrent use with itself.
type Channel interface {
	Send(frame []byte) error
	Recv() ([]byte, error)
	Close() error
	RemoteAddr() string
}

// Listener hands out accepted channels.
type Listener interface {
	Accept() (Channel, error)
	Close() error
	Addr() string
}

// Kind selects a transport implementation.
type Kind string

const (
	KindTLS  Kind = "tls"
	KindGRPC Kind = "grpc"
)

// Listen opens a listener of the given kind on addr. opts only apply to the
// gRPC transport.
func Listen(kind Kind, addr string, cfg *tls.Config, opts ...grpc.ServerOption) (Listener, error) {
	switch kind {
	case KindTLS, "":
		return ListenTLS(addr, cfg)
	case KindGRPC:
		l, err := ListenGRPC(addr, cfg, opts...)
		if err != nil {
			return nil, err
		}
		return l, nil
	default:
		return nil, fmt.Errorf("unknown transport %q", kind)
	}
}

// Dial connects to a relay listening with the given transport kind.
func Dial(ctx context.Context, kind Kind, addr string, cfg *tls.Config) (Channel, error) {
	switch kind {
	case KindTLS, "":
		return DialTLS(ctx, addr, cfg)
	case KindGRPC:
		return DialGRPC(ctx, addr, cfg)
	default:
		return nil, fmt.Errorf("unknown transport %q", kind)
	}
}
