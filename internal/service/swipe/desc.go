package swipe

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "swipeguard.v1.SwipeService"

// SwipeServiceServer is the server API of swipeguard.v1.SwipeService.
type SwipeServiceServer interface {
	RecordSwipe(context.Context, *RecordSwipeRequest) (*RecordSwipeResponse, error)
	Unmatch(context.Context, *UnmatchRequest) (*UnmatchResponse, error)
	GetBehaviorReport(context.Context, *UserRequest) (*BehaviorReportResponse, error)
	AnalyzeBot(context.Context, *UserRequest) (*AnalyzeBotResponse, error)
	ListMatches(context.Context, *ListMatchesRequest) (*ListMatchesResponse, error)
}

// ServiceDesc describes swipeguard.v1.SwipeService. Messages are plain structs
// and must be sent with the JSON codec (content-subtype "json").
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SwipeServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("RecordSwipe", SwipeServiceServer.RecordSwipe),
		unary("Unmatch", SwipeServiceServer.Unmatch),
		unary("GetBehaviorReport", SwipeServiceServer.GetBehaviorReport),
		unary("AnalyzeBot", SwipeServiceServer.AnalyzeBot),
		unary("ListMatches", SwipeServiceServer.ListMatches),
	},
	Streams: []grpc.StreamDesc{},
}

// RegisterSwipeServiceServer attaches srv to s.
func RegisterSwipeServiceServer(s grpc.ServiceRegistrar, srv SwipeServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func fullMethod(method string) string { return "/" + ServiceName + "/" + method }

// unary builds the method handler the way generated code does: decode,
// then run through the interceptor chain when one is installed.
func unary[Req, Resp any](method string, call func(SwipeServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(SwipeServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(method)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(SwipeServiceServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}
