package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/improbable-eng/grpc-web/go/grpcweb"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"social/infrastructure"
)

// HealthServices are the names reported by the gRPC health service besides
// the overall "" entry.
var HealthServices = []string{"social.chat", "social.notifications"}

// NewGRPCServer builds the admin gRPC server: health and reflection behind a
// logging interceptor.
func NewGRPCServer() (*grpc.Server, *health.Server) {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(UnaryLoggingInterceptor))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	for _, name := range HealthServices {
		hs.SetServingStatus(name, healthpb.HealthCheckResponse_SERVING)
	}
	return srv, hs
}

// UnaryLoggingInterceptor logs each call and converts domain errors into
// gRPC statuses.
func UnaryLoggingInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	err = StatusFromError(err)
	slog.Debug("grpc call", "method", info.FullMethod, "code", status.Code(err).String(), "latency", time.Since(start))
	return resp, err
}

// StatusFromError maps domain sentinels to gRPC codes. Errors that already
// carry a status are returned unchanged.
func StatusFromError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	var code codes.Code
	switch {
	case errors.Is(err, infrastructure.ErrInvalidInput), errors.Is(err, infrastructure.ErrUnsupportedEvent):
		code = codes.InvalidArgument
	case errors.Is(err, infrastructure.ErrMissingToken), errors.Is(err, infrastructure.ErrInvalidToken),
		errors.Is(err, infrastructure.ErrTokenExpired), errors.Is(err, infrastructure.ErrUnauthorized):
		code = codes.Unauthenticated
	case errors.Is(err, infrastructure.ErrForbidden), errors.Is(err, infrastructure.ErrNotMember):
		code = codes.PermissionDenied
	case errors.Is(err, infrastructure.ErrUserNotFound), errors.Is(err, infrastructure.ErrConversationNotFound),
		errors.Is(err, infrastructure.ErrNotificationNotFound):
		code = codes.NotFound
	case errors.Is(err, infrastructure.ErrUserAlreadyExists):
		code = codes.AlreadyExists
	default:
		return status.Error(codes.Internal, infrastructure.ErrInternalServer.Error())
	}
	return status.Error(code, err.Error())
}

// WithGRPCWeb serves grpc-web requests from grpcServer and everything else
// from next on the same listener.
func WithGRPCWeb(grpcServer *grpc.Server, next http.Handler) http.Handler {
	wrapped := grpcweb.WrapServer(grpcServer, grpcweb.WithOriginFunc(func(string) bool { return true }))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if wrapped.IsGrpcWebRequest(r) || wrapped.IsAcceptableGrpcCorsRequest(r) {
			wrapped.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}
