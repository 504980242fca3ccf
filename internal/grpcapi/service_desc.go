package grpcapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "tollgate.v1.Compliance"

const (
	evaluateMethod = "/" + ServiceName + "/Evaluate"
	relayMethod    = "/" + ServiceName + "/Relay"
	modulesMethod  = "/" + ServiceName + "/Modules"
)

// ComplianceServer is the server side of tollgate.v1.Compliance. Every
// message is a google.protobuf.Struct carrying a "registry" field next to
// the request fields.
type ComplianceServer interface {
	Evaluate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Relay(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Modules(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterComplianceServer registers srv on s.
func RegisterComplianceServer(s grpc.ServiceRegistrar, srv ComplianceServer) {
	s.RegisterService(&complianceServiceDesc, srv)
}

var complianceServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ComplianceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Evaluate", Handler: unaryHandler(evaluateMethod, ComplianceServer.Evaluate)},
		{MethodName: "Relay", Handler: unaryHandler(relayMethod, ComplianceServer.Relay)},
		{MethodName: "Modules", Handler: unaryHandler(modulesMethod, ComplianceServer.Modules)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "tollgate/v1/compliance.proto",
}

type unaryMethod func(ComplianceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, m unaryMethod) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return m(srv.(ComplianceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return m(srv.(ComplianceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// Client calls tollgate.v1.Compliance over conn.
type Client struct {
	conn grpc.ClientConnInterface
}

func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

func (c *Client) Evaluate(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, evaluateMethod, in, opts...)
}

func (c *Client) Relay(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, relayMethod, in, opts...)
}

func (c *Client) Modules(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, modulesMethod, in, opts...)
}

func (c *Client) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
