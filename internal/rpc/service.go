package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// The Comparator service is described by hand; requests and replies are
// google.protobuf.Struct so no generated stubs are needed.
const (
	ServiceName       = "pricecompare.Comparator"
	compareMethodName = "/" + ServiceName + "/Compare"
)

type ComparatorServer interface {
	// Compare takes {"symbol": "BTC", "date": "2024-01-01"} and returns the
	// comparison object.
	Compare(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

type ComparatorClient interface {
	Compare(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

var ComparatorServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ComparatorServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Compare",
			Handler:    compareHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "pricecompare.proto",
}

func RegisterComparatorServer(s grpc.ServiceRegistrar, srv ComparatorServer) {
	s.RegisterService(&ComparatorServiceDesc, srv)
}

func compareHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ComparatorServer).Compare(ctx, in)
	}

	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: compareMethodName,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ComparatorServer).Compare(ctx, req.(*structpb.Struct))
	}

	return interceptor(ctx, in, info, handler)
}

type comparatorClient struct {
	cc grpc.ClientConnInterface
}

func NewComparatorClient(cc grpc.ClientConnInterface) ComparatorClient {
	return &comparatorClient{cc: cc}
}

func (c *comparatorClient) Compare(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, compareMethodName, req, out, opts...); err != nil {
		return nil, err
	}

	return out, nil
}
