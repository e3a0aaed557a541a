package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "prompt.v1.Control"

// Method names, relative to ServiceName.
const (
	MethodStatus         = "Status"
	MethodPing           = "Ping"
	MethodRefresh        = "Refresh"
	MethodListFriends    = "ListFriends"
	MethodSearchFriends  = "SearchFriends"
	MethodInviteFriend   = "InviteFriend"
	MethodRemoveFriend   = "RemoveFriend"
	MethodListPrompts    = "ListPrompts"
	MethodSendPrompt     = "SendPrompt"
	MethodCancelPrompt   = "CancelPrompt"
	MethodSnoozePrompt   = "SnoozePrompt"
	MethodDeliverPush    = "DeliverPush"
	MethodExportCalendar = "ExportCalendar"
	MethodOccurrences    = "Occurrences"
)

// FullMethod returns the wire path of a method.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// ControlServer is the daemon control surface. Messages are well-known
// protobuf types so no generated code is needed on either side.
type ControlServer interface {
	Status(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Ping(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error)
	Refresh(context.Context, *wrapperspb.BoolValue) (*structpb.Struct, error)
	ListFriends(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	SearchFriends(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	InviteFriend(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	RemoveFriend(context.Context, *wrapperspb.Int64Value) (*emptypb.Empty, error)
	ListPrompts(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	SendPrompt(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CancelPrompt(context.Context, *wrapperspb.Int64Value) (*emptypb.Empty, error)
	SnoozePrompt(context.Context, *wrapperspb.Int64Value) (*structpb.Struct, error)
	DeliverPush(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ExportCalendar(context.Context, *emptypb.Empty) (*wrapperspb.BytesValue, error)
	Occurrences(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterControlServer attaches srv to s.
func RegisterControlServer(s grpc.ServiceRegistrar, srv ControlServer) {
	s.RegisterService(&ControlServiceDesc, srv)
}

// ControlServiceDesc describes ControlServer for grpc.
var ControlServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ControlServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodStatus, ControlServer.Status),
		unary(MethodPing, ControlServer.Ping),
		unary(MethodRefresh, ControlServer.Refresh),
		unary(MethodListFriends, ControlServer.ListFriends),
		unary(MethodSearchFriends, ControlServer.SearchFriends),
		unary(MethodInviteFriend, ControlServer.InviteFriend),
		unary(MethodRemoveFriend, ControlServer.RemoveFriend),
		unary(MethodListPrompts, ControlServer.ListPrompts),
		unary(MethodSendPrompt, ControlServer.SendPrompt),
		unary(MethodCancelPrompt, ControlServer.CancelPrompt),
		unary(MethodSnoozePrompt, ControlServer.SnoozePrompt),
		unary(MethodDeliverPush, ControlServer.DeliverPush),
		unary(MethodExportCalendar, ControlServer.ExportCalendar),
		unary(MethodOccurrences, ControlServer.Occurrences),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "prompt/v1/control.proto",
}

// unary builds the method descriptor protoc-gen-go-grpc would emit for call.
func unary[Req, Resp proto.Message](name string, call func(ControlServer, context.Context, Req) (Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			var zero Req
			in := zero.ProtoReflect().New().Interface().(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ControlServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(ControlServer), ctx, req.(Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}
