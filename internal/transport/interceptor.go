package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/securechat/internal/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// StreamLoggingInterceptor logs the start and end of every relay stream and
// turns a panic in the stream handler into codes.Internal.
func StreamLoggingInterceptor(logger logging.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) (err error) {
		ctx := ss.Context()
		remote := "unknown"
		if p, ok := peer.FromContext(ctx); ok {
			remote = p.Addr.String()
		}
		log := logger.With("method", info.FullMethod, "remote", remote)
		start := time.Now()

		defer func() {
			if p := recover(); p != nil {
				log.Error(context.Background(), "stream handler panic", "panic", fmt.Sprint(p))
				err = status.Error(codes.Internal, "internal error")
			}
			log.Debug(context.Background(), "stream closed",
				"code", status.Code(err).String(), "duration", time.Since(start))
		}()

		log.Debug(ctx, "stream opened")
		return handler(srv, ss)
	}
}
