// Package grpcapi serves the compliance evaluate and relay operations over
// gRPC, alongside the standard health service.
package grpcapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/tollgate-labs/tollgate/server/internal/authn"
	"github.com/tollgate-labs/tollgate/server/internal/tollgate/service"
)

// CallerMetadataKey carries a plain caller address when address headers are
// allowed.
const CallerMetadataKey = "x-caller-address"

type Dependencies struct {
	Logger  *slog.Logger
	Service *service.ComplianceService

	JWTSecret         string
	AllowCallerHeader bool
}

// Server hosts tollgate.v1.Compliance and grpc.health.v1.Health.
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	logger     *slog.Logger
	svc        *service.ComplianceService
	verifier   authn.Verifier
}

func NewServer(d Dependencies) *Server {
	if d.Logger == nil {
		d.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Server{
		health:   health.NewServer(),
		logger:   d.Logger,
		svc:      d.Service,
		verifier: authn.Verifier{Secret: []byte(d.JWTSecret), AllowAddressHeader: d.AllowCallerHeader},
	}
	s.grpcServer = grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(s.logUnary, s.authUnary),
	)
	RegisterComplianceServer(s.grpcServer, s)
	grpc_health_v1.RegisterHealthServer(s.grpcServer, s.health)
	s.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	return s
}

// Serve accepts connections on lis until ctx ends, then drains in-flight
// calls.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.grpcServer.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		s.Stop()
		err := <-serveErr
		if err == nil || errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("serve gRPC: %w", err)
	case err := <-serveErr:
		if err == nil || errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("serve gRPC: %w", err)
	}
}

// Stop marks the health service NOT_SERVING and stops gracefully.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
}

// ── Interceptors ─────────────────────────────────────────────────────────────

type callerKey struct{}

func (s *Server) authUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	addr, ok, err := s.verifier.Resolve(first(md, "authorization"), first(md, CallerMetadataKey))
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, err.Error())
	}
	if ok {
		ctx = context.WithValue(ctx, callerKey{}, addr)
	}
	return handler(ctx, req)
}

func (s *Server) logUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	s.logger.Info("grpc",
		"method", info.FullMethod,
		"code", status.Code(err).String(),
		"dur_ms", time.Since(start).Milliseconds(),
	)
	return resp, err
}

func first(md metadata.MD, key string) string {
	if v := md.Get(key); len(v) > 0 {
		return v[0]
	}
	return ""
}

func callerFrom(ctx context.Context) (common.Address, error) {
	a, ok := ctx.Value(callerKey{}).(common.Address)
	if !ok {
		return common.Address{}, status.Error(codes.Unauthenticated, "caller address required")
	}
	return a, nil
}

// ── Handlers ─────────────────────────────────────────────────────────────────

func (s *Server) Evaluate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	registry, err := registryField(in)
	if err != nil {
		return nil, err
	}
	req, err := service.EvaluateRequestFromStruct(in)
	if err != nil {
		return nil, s.statusError("evaluate", err)
	}
	resp, err := s.svc.Evaluate(ctx, caller, registry, req)
	if err != nil {
		return nil, s.statusError("evaluate", err)
	}
	out, err := service.EvaluateResponseToStruct(resp)
	if err != nil {
		return nil, s.statusError("evaluate", err)
	}
	return out, nil
}

func (s *Server) Relay(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	registry, err := registryField(in)
	if err != nil {
		return nil, err
	}
	req, err := service.RelayRequestFromStruct(in)
	if err != nil {
		return nil, s.statusError("relay", err)
	}
	resp, err := s.svc.Relay(ctx, caller, registry, req)
	if err != nil {
		return nil, s.statusError("relay", err)
	}
	out, err := service.RelayResponseToStruct(resp)
	if err != nil {
		return nil, s.statusError("relay", err)
	}
	return out, nil
}

func (s *Server) Modules(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	registry, err := registryField(in)
	if err != nil {
		return nil, err
	}
	resp, err := s.svc.Modules(ctx, registry)
	if err != nil {
		return nil, s.statusError("modules", err)
	}
	modules := make([]any, len(resp.Modules))
	for i, m := range resp.Modules {
		modules[i] = m.Hex()
	}
	out, err := structpb.NewStruct(map[string]any{
		"registry": resp.Registry.Hex(),
		"modules":  modules,
	})
	if err != nil {
		return nil, s.statusError("modules", err)
	}
	return out, nil
}

func registryField(in *structpb.Struct) (common.Address, error) {
	raw := in.GetFields()["registry"].GetStringValue()
	if !common.IsHexAddress(raw) {
		return common.Address{}, status.Error(codes.InvalidArgument, "registry is not an address")
	}
	return common.HexToAddress(raw), nil
}

// statusError maps a service error onto a gRPC status. Internal errors are
// logged and replaced with a generic message.
func (s *Server) statusError(op string, err error) error {
	switch service.ErrorCode(err) {
	case service.CodeInvalid:
		return status.Error(codes.InvalidArgument, err.Error())
	case service.CodeUnauthorized:
		return status.Error(codes.PermissionDenied, err.Error())
	case service.CodeNotFound:
		return status.Error(codes.NotFound, err.Error())
	case service.CodeRejected:
		return status.Error(codes.FailedPrecondition, err.Error())
	default:
		s.logger.Error("grpc request failed", "op", op, "err", err)
		return status.Error(codes.Internal, "internal error")
	}
}
