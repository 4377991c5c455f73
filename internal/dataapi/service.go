package dataapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Fully qualified names of the evaluation service.
const (
	ServiceName    = "skylab.v1.Evaluation"
	EvaluateMethod = "/skylab.v1.Evaluation/Evaluate"
)

// EvaluationServer is the server side of skylab.v1.Evaluation. Messages are
// google.protobuf.Struct documents, so clients need no generated stubs.
type EvaluationServer interface {
	Evaluate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes skylab.v1.Evaluation for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*EvaluationServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Evaluate",
			Handler:    evaluateHandler,
		},
	},
	Streams: []grpc.StreamDesc{},
}

func evaluateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(EvaluationServer).Evaluate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: EvaluateMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(EvaluationServer).Evaluate(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}
