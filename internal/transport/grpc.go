package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/dmitrijs2005/securechat/internal/common"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	relayServiceName  = "securechat.Relay"
	sessionStreamName = "Session"
	sessionMethod     = "/" + relayServiceName + "/" + sessionStreamName
)

// relayServer is the handler type registered for the relay service.
type relayServer interface {
	session(stream grpc.ServerStream) error
}

// relayServiceDesc describes a single bidirectional stream. Every message on
// it is a google.protobuf.BytesValue holding one frame, so no generated
// stubs are needed.
var relayServiceDesc = grpc.ServiceDesc{
	ServiceName: relayServiceName,
	HandlerType: (*relayServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    sessionStreamName,
			Handler:       sessionHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
}

func sessionHandler(srv any, stream grpc.ServerStream) error {
	return srv.(relayServer).session(stream)
}

// grpcStream is the part of grpc.ServerStream / grpc.ClientStream used here.
type grpcStream interface {
	SendMsg(m any) error
	RecvMsg(m any) error
}

type grpcChannel struct {
	stream  grpcStream
	remote  string
	closeFn func() error

	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

func (c *grpcChannel) Send(frame []byte) error {
	select {
	case <-c.done:
		return common.ErrClosed
	default:
	}
	if err := c.stream.SendMsg(wrapperspb.Bytes(frame)); err != nil {
		return fmt.Errorf("%w: send: %v", common.ErrConnection, err)
	}
	return nil
}

func (c *grpcChannel) Recv() ([]byte, error) {
	m := new(wrapperspb.BytesValue)
	if err := c.stream.RecvMsg(m); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		if status.Code(err) == codes.Canceled {
			return nil, common.ErrClosed
		}
		return nil, fmt.Errorf("%w: recv: %v", common.ErrConnection, err)
	}
	return m.GetValue(), nil
}

func (c *grpcChannel) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.closeFn != nil {
			c.closeErr = c.closeFn()
		}
	})
	return c.closeErr
}

func (c *grpcChannel) RemoteAddr() string { return c.remote }

// GRPCListener serves the relay stream and turns every incoming stream into
// an accepted Channel. The stream handler stays blocked until the channel is
// closed, since returning from it ends the RPC.
type GRPCListener struct {
	srv   *grpc.Server
	lis   net.Listener
	conns chan *grpcChannel
	done  chan struct{}
	once  sync.Once
}

// ListenGRPC starts a TLS-secured gRPC server on addr. opts are passed to
// grpc.NewServer after the transport credentials.
func ListenGRPC(addr string, cfg *tls.Config, opts ...grpc.ServerOption) (*GRPCListener, error) {
	if cfg == nil {
		return nil, errors.New("grpc listener requires a tls config")
	}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	l := &GRPCListener{
		srv:   grpc.NewServer(append([]grpc.ServerOption{grpc.Creds(credentials.NewTLS(cfg))}, opts...)...),
		lis:   lis,
		conns: make(chan *grpcChannel),
		done:  make(chan struct{}),
	}
	l.srv.RegisterService(&relayServiceDesc, l)
	go func() { _ = l.srv.Serve(lis) }()
	return l, nil
}

func (l *GRPCListener) session(stream grpc.ServerStream) error {
	remote := "unknown"
	if p, ok := peer.FromContext(stream.Context()); ok {
		remote = p.Addr.String()
	}
	ch := &grpcChannel{stream: stream, remote: remote, done: make(chan struct{})}

	select {
	case l.conns <- ch:
	case <-l.done:
		return status.Error(codes.Unavailable, "relay shutting down")
	case <-stream.Context().Done():
		return stream.Context().Err()
	}

	select {
	case <-ch.done:
	case <-stream.Context().Done():
	}
	return nil
}

func (l *GRPCListener) Accept() (Channel, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case <-l.done:
		return nil, common.ErrClosed
	}
}

func (l *GRPCListener) Close() error {
	l.once.Do(func() {
		close(l.done)
		l.srv.Stop()
	})
	return nil
}

func (l *GRPCListener) Addr() string { return l.lis.Addr().String() }

// DialGRPC opens the relay stream on addr.
func DialGRPC(ctx context.Context, addr string, cfg *tls.Config) (Channel, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(credentials.NewTLS(cfg)))
	if err != nil {
		return nil, err
	}
	// The stream outlives ctx; ctx only bounds establishment.
	streamCtx, cancel := context.WithCancel(context.Background())
	stop := context.AfterFunc(ctx, cancel)
	stream, err := conn.NewStream(streamCtx, &relayServiceDesc.Streams[0], sessionMethod, grpc.WaitForReady(true))
	if !stop() && err == nil {
		err = ctx.Err()
	}
	if err != nil {
		cancel()
		_ = conn.Close()
		return nil, err
	}
	return &grpcChannel{
		stream: stream,
		remote: addr,
		done:   make(chan struct{}),
		closeFn: func() error {
			_ = stream.CloseSend()
			cancel()
			return conn.Close()
		},
	}, nil
}
