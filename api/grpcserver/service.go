package grpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully-qualified gRPC service. Messages are
// google.protobuf.Struct in both directions, so no generated code is needed.
const ServiceName = "matchcore.v1.Exchange"

const (
	MethodSubmitOrder   = "SubmitOrder"
	MethodSubmitDeposit = "SubmitDeposit"
	MethodGetOrderBook  = "GetOrderBook"
	MethodGetBalance    = "GetBalance"
	MethodGetSyncStatus = "GetSyncStatus"
)

// ExchangeServer is the server side of matchcore.v1.Exchange.
type ExchangeServer interface {
	SubmitOrder(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SubmitDeposit(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetOrderBook(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetBalance(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetSyncStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type call func(ExchangeServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(name string, fn call) grpc.MethodDesc {
	full := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return fn(srv.(ExchangeServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: full}
			handler := func(ctx context.Context, req any) (any, error) {
				return fn(srv.(ExchangeServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ExchangeServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodSubmitOrder, ExchangeServer.SubmitOrder),
		unary(MethodSubmitDeposit, ExchangeServer.SubmitDeposit),
		unary(MethodGetOrderBook, ExchangeServer.GetOrderBook),
		unary(MethodGetBalance, ExchangeServer.GetBalance),
		unary(MethodGetSyncStatus, ExchangeServer.GetSyncStatus),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "matchcore/v1/exchange.proto",
}

func RegisterExchangeServer(r grpc.ServiceRegistrar, srv ExchangeServer) {
	r.RegisterService(&ServiceDesc, srv)
}

// -------------------- Client --------------------

// Client calls matchcore.v1.Exchange over any connection.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) SubmitOrder(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodSubmitOrder, in, opts...)
}

func (c *Client) SubmitDeposit(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodSubmitDeposit, in, opts...)
}

func (c *Client) GetOrderBook(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodGetOrderBook, in, opts...)
}

func (c *Client) GetBalance(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodGetBalance, in, opts...)
}

func (c *Client) GetSyncStatus(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodGetSyncStatus, in, opts...)
}
