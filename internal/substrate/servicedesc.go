package substrate

import (
	"context"

	"google.golang.org/grpc"
)

// serviceDesc is the hand-written stand-in for a protoc-generated
// _grpc.pb.go file: one MethodDesc per RPC, each decoding its request with
// the gob codec (codec.go) and dispatching straight to a *GRPC receiver
// method. See codec.go's doc comment for why there is no .proto here.

func (g *GRPC) handlePut(ctx context.Context, req *putRequest) (*putResponse, error) {
	if err := g.localPut(req.Window, req.Offset, req.Data); err != nil {
		return nil, err
	}
	return &putResponse{}, nil
}

func (g *GRPC) handleGet(ctx context.Context, req *getRequest) (*getResponse, error) {
	data := make([]byte, req.Length)
	if err := g.localGet(req.Window, req.Offset, data); err != nil {
		return nil, err
	}
	return &getResponse{Data: data}, nil
}

func (g *GRPC) handleAccumulate(ctx context.Context, req *atomicRequest) (*atomicResponse, error) {
	if _, err := g.localAtomic(req.Window, req.Offset, req.Datatype, req.Op, req.Data, false); err != nil {
		return nil, err
	}
	return &atomicResponse{}, nil
}

func (g *GRPC) handleGetAccumulate(ctx context.Context, req *atomicRequest) (*atomicResponse, error) {
	old, err := g.localAtomic(req.Window, req.Offset, req.Datatype, req.Op, req.Data, true)
	if err != nil {
		return nil, err
	}
	return &atomicResponse{Old: old}, nil
}

func (g *GRPC) handleCompareAndSwap(ctx context.Context, req *casRequest) (*casResponse, error) {
	old, err := g.localCAS(req.Window, req.Offset, req.Expected, req.New)
	if err != nil {
		return nil, err
	}
	return &casResponse{Old: old}, nil
}

func (g *GRPC) handleJoinRPC(ctx context.Context, req *joinRequest) (*joinResponse, error) {
	all, err := g.join(ctx, req.CommID, req.Members, req.SelfRank, req.Contribution)
	if err != nil {
		return nil, err
	}
	return &joinResponse{All: all}, nil
}

func putHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(putRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*GRPC).handlePut(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Put"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(*GRPC).handlePut(ctx, req.(*putRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func getHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(getRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*GRPC).handleGet(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Get"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(*GRPC).handleGet(ctx, req.(*getRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func accumulateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(atomicRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*GRPC).handleAccumulate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Accumulate"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(*GRPC).handleAccumulate(ctx, req.(*atomicRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func getAccumulateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(atomicRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*GRPC).handleGetAccumulate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/GetAccumulate"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(*GRPC).handleGetAccumulate(ctx, req.(*atomicRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func compareAndSwapHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(casRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*GRPC).handleCompareAndSwap(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/CompareAndSwap"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(*GRPC).handleCompareAndSwap(ctx, req.(*casRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func joinHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(joinRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*GRPC).handleJoinRPC(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Join"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(*GRPC).handleJoinRPC(ctx, req.(*joinRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Put", Handler: putHandler},
		{MethodName: "Get", Handler: getHandler},
		{MethodName: "Accumulate", Handler: accumulateHandler},
		{MethodName: "GetAccumulate", Handler: getAccumulateHandler},
		{MethodName: "CompareAndSwap", Handler: compareAndSwapHandler},
		{MethodName: "Join", Handler: joinHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "oshmpi/substrate.proto",
}
