package grpcx

import (
	"context"
	"log/slog"
	"runtime/debug"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Unary logging + recovery + timeout guard (если у вызова нет deadline)
func UnaryServerInterceptor(defaultTimeout time.Duration) grpc.UnaryServerInterceptor {
	if defaultTimeout <= 0 {
		defaultTimeout = 10 * time.Second
	}
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp any, err error) {
		start := time.Now()
		// deadline guard
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, defaultTimeout)
			defer cancel()
		}

		defer func() {
			if r := recover(); r != nil {
				slog.ErrorContext(ctx, "grpc unary panic",
					"method", info.FullMethod,
					"panic", r,
					"stack", string(debug.Stack()))
				err = status.Error(codes.Internal, "internal server error")
			}
			logCall(ctx, "grpc unary", info.FullMethod, start, err)
		}()

		return handler(ctx, req)
	}
}

func StreamServerInterceptor() grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) (err error) {
		start := time.Now()

		defer func() {
			if r := recover(); r != nil {
				slog.ErrorContext(ss.Context(), "grpc stream panic",
					"method", info.FullMethod,
					"panic", r,
					"stack", string(debug.Stack()))
				err = status.Error(codes.Internal, "internal server error")
			}
			logCall(ss.Context(), "grpc stream", info.FullMethod, start, err)
		}()

		return handler(srv, ss)
	}
}

// logCall пишет Info для успешных и клиентских ошибок, Error для серверных.
func logCall(ctx context.Context, msg, method string, start time.Time, err error) {
	code := status.Code(err)
	level := slog.LevelInfo
	switch code {
	case codes.Internal, codes.Unavailable, codes.Unknown, codes.DataLoss:
		level = slog.LevelError
	}
	slog.Log(ctx, level, msg,
		"method", method,
		"code", code.String(),
		"dur_ms", time.Since(start).Milliseconds(),
		"err", errString(err))
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
