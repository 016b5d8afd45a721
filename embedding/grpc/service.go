package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// The service exchanges google.protobuf.Struct messages so that no
// generated code is needed on either side.
//
//	service EmbeddingService {
//	  rpc Embed(google.protobuf.Struct) returns (google.protobuf.Struct);
//	  rpc ListModels(google.protobuf.Struct) returns (google.protobuf.Struct);
//	}
const (
	serviceName      = "semembed.EmbeddingService"
	embedMethod      = "/" + serviceName + "/Embed"
	listModelsMethod = "/" + serviceName + "/ListModels"

	maxMessageSize = 64 << 20
)

// EmbeddingServiceServer is the server API for EmbeddingService.
type EmbeddingServiceServer interface {
	Embed(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListModels(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// Register attaches srv to s.
func Register(s *grpc.Server, srv EmbeddingServiceServer) {
	s.RegisterService(&serviceDesc, srv)
}

// ServerOptions are the options the service expects its grpc.Server to
// be created with.
func ServerOptions() []grpc.ServerOption {
	return []grpc.ServerOption{
		grpc.MaxRecvMsgSize(maxMessageSize),
		grpc.MaxSendMsgSize(maxMessageSize),
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*EmbeddingServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Embed", Handler: embedHandler},
		{MethodName: "ListModels", Handler: listModelsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "semembed.proto",
}

func embedHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(EmbeddingServiceServer).Embed(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: embedMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(EmbeddingServiceServer).Embed(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func listModelsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(EmbeddingServiceServer).ListModels(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: listModelsMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(EmbeddingServiceServer).ListModels(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}
