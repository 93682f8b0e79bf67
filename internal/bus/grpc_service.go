package bus

import (
	"context"

	"google.golang.org/grpc"
)

// SendRequest/SendResponse, RecvRequest/RecvResponse and
// DrainRequest/DrainResponse are the plain Go message types carried by the
// jsonCodec; they play the role a .proto-generated message would, without
// requiring a protoc toolchain invocation (none is available in this
// build environment).
type SendRequest struct {
	Channel     string  `json:"channel"`
	Msg         Message `json:"msg"`
	Immediately bool    `json:"immediately"`
}
type SendResponse struct{}

type RecvRequest struct {
	Channel string `json:"channel"`
}
type RecvResponse struct {
	Msg Message `json:"msg"`
	Ok  bool    `json:"ok"`
}

type DrainRequest struct {
	Channel string `json:"channel"`
}
type DrainResponse struct{}

// ControlBusServer is the server-side contract the hand-written
// ServiceDesc below dispatches to.
type ControlBusServer interface {
	Send(context.Context, *SendRequest) (*SendResponse, error)
	Recv(context.Context, *RecvRequest) (*RecvResponse, error)
	Drain(context.Context, *DrainRequest) (*DrainResponse, error)
}

// ControlBusClient is the client-side contract implemented by controlBusClient.
type ControlBusClient interface {
	Send(ctx context.Context, in *SendRequest, opts ...grpc.CallOption) (*SendResponse, error)
	Recv(ctx context.Context, in *RecvRequest, opts ...grpc.CallOption) (*RecvResponse, error)
	Drain(ctx context.Context, in *DrainRequest, opts ...grpc.CallOption) (*DrainResponse, error)
}

type controlBusClient struct {
	cc grpc.ClientConnInterface
}

// NewControlBusClient wraps cc as a ControlBusClient.
func NewControlBusClient(cc grpc.ClientConnInterface) ControlBusClient {
	return &controlBusClient{cc: cc}
}

func (c *controlBusClient) Send(ctx context.Context, in *SendRequest, opts ...grpc.CallOption) (*SendResponse, error) {
	out := new(SendResponse)
	if err := c.cc.Invoke(ctx, "/flowexec.ControlBus/Send", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *controlBusClient) Recv(ctx context.Context, in *RecvRequest, opts ...grpc.CallOption) (*RecvResponse, error) {
	out := new(RecvResponse)
	if err := c.cc.Invoke(ctx, "/flowexec.ControlBus/Recv", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *controlBusClient) Drain(ctx context.Context, in *DrainRequest, opts ...grpc.CallOption) (*DrainResponse, error) {
	out := new(DrainResponse)
	if err := c.cc.Invoke(ctx, "/flowexec.ControlBus/Drain", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func _ControlBus_Send_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(SendRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ControlBusServer).Send(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/flowexec.ControlBus/Send"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ControlBusServer).Send(ctx, req.(*SendRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _ControlBus_Recv_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(RecvRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ControlBusServer).Recv(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/flowexec.ControlBus/Recv"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ControlBusServer).Recv(ctx, req.(*RecvRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _ControlBus_Drain_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(DrainRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ControlBusServer).Drain(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/flowexec.ControlBus/Drain"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ControlBusServer).Drain(ctx, req.(*DrainRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// ControlBus_ServiceDesc is the hand-written equivalent of what
// protoc-gen-go-grpc would emit from a controlbus.proto definition.
var ControlBus_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "flowexec.ControlBus",
	HandlerType: (*ControlBusServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Send", Handler: _ControlBus_Send_Handler},
		{MethodName: "Recv", Handler: _ControlBus_Recv_Handler},
		{MethodName: "Drain", Handler: _ControlBus_Drain_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "internal/bus/grpc_service.go",
}
