package bus

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// controlBusService is the server-side ControlBusServer backing a GRPCBus
// listener. It delegates storage to a MemoryBus so the wire layer adds
// nothing but transport on top of the same queue/notify semantics used
// in-process.
type controlBusService struct {
	inner *MemoryBus
}

func newControlBusService() *controlBusService {
	return &controlBusService{inner: NewMemoryBus()}
}

func (s *controlBusService) Send(_ context.Context, req *SendRequest) (*SendResponse, error) {
	if err := s.inner.Send(req.Channel, req.Msg, req.Immediately); err != nil {
		return nil, err
	}
	return &SendResponse{}, nil
}

func (s *controlBusService) Recv(_ context.Context, req *RecvRequest) (*RecvResponse, error) {
	msg, ok, err := s.inner.Recv(req.Channel)
	if err != nil {
		return nil, err
	}
	return &RecvResponse{Msg: msg, Ok: ok}, nil
}

func (s *controlBusService) Drain(_ context.Context, req *DrainRequest) (*DrainResponse, error) {
	if err := s.inner.Drain(req.Channel); err != nil {
		return nil, err
	}
	return &DrainResponse{}, nil
}

// callOpts pins every RPC made by a GRPCBus to the json codec registered
// in grpc_codec.go, so the call succeeds against a server that never saw
// a .proto file.
var callOpts = []grpc.CallOption{grpc.CallContentSubtype(jsonCodecName)}

// GRPCBus is a Bus implementation that moves Messages over a real
// google.golang.org/grpc connection using the hand-authored ControlBus
// service and the json wire codec, rather than an in-process map.
type GRPCBus struct {
	client ControlBusClient
	conn   *grpc.ClientConn
}

// NewGRPCServer returns a *grpc.Server with the ControlBus service
// registered and ready to Serve. Callers attach their own net.Listener.
func NewGRPCServer(opts ...grpc.ServerOption) *grpc.Server {
	srv := grpc.NewServer(opts...)
	srv.RegisterService(&ControlBus_ServiceDesc, newControlBusService())
	return srv
}

// DialGRPCBus connects to a ControlBus server at target and returns a Bus
// backed by that connection. Callers own the returned GRPCBus and should
// Close it when done.
func DialGRPCBus(target string) (*GRPCBus, error) {
	conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("bus: failed to dial control bus at %s: %w", target, err)
	}
	return &GRPCBus{client: NewControlBusClient(conn), conn: conn}, nil
}

func (g *GRPCBus) Send(channel string, msg Message, immediately bool) error {
	_, err := g.client.Send(context.Background(), &SendRequest{Channel: channel, Msg: msg, Immediately: immediately}, callOpts...)
	return err
}

func (g *GRPCBus) Recv(channel string) (Message, bool, error) {
	resp, err := g.client.Recv(context.Background(), &RecvRequest{Channel: channel}, callOpts...)
	if err != nil {
		return Message{}, false, err
	}
	return resp.Msg, resp.Ok, nil
}

func (g *GRPCBus) Drain(channel string) error {
	_, err := g.client.Drain(context.Background(), &DrainRequest{Channel: channel}, callOpts...)
	return err
}

// Close releases the underlying grpc connection.
func (g *GRPCBus) Close() error {
	return g.conn.Close()
}
