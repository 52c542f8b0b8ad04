// Package proto holds the wire contract of marketplace.inventory.v1.
// Messages travel as JSON over gRPC.
package proto

import (
	"context"

	"google.golang.org/grpc"
)

const ServiceName = "marketplace.inventory.v1.InventoryService"

// StockRequest addresses one product. A non-empty OrderID selects the
// order-scoped variant of the operation.
type StockRequest struct {
	OrderID   string `json:"order_id,omitempty"`
	ProductID string `json:"product_id"`
	Quantity  int32  `json:"quantity"`
}

type GetStockRequest struct {
	ProductID string `json:"product_id"`
}

type StockReply struct {
	ProductID        string `json:"product_id"`
	StockQuantity    int32  `json:"stock_quantity"`
	ReservedQuantity int32  `json:"reserved_quantity"`
	Available        int32  `json:"available"`
}

type InventoryServiceServer interface {
	Reserve(context.Context, *StockRequest) (*StockReply, error)
	Release(context.Context, *StockRequest) (*StockReply, error)
	Confirm(context.Context, *StockRequest) (*StockReply, error)
	Cancel(context.Context, *StockRequest) (*StockReply, error)
	GetStock(context.Context, *GetStockRequest) (*StockReply, error)
}

type InventoryServiceClient interface {
	Reserve(ctx context.Context, in *StockRequest, opts ...grpc.CallOption) (*StockReply, error)
	Release(ctx context.Context, in *StockRequest, opts ...grpc.CallOption) (*StockReply, error)
	Confirm(ctx context.Context, in *StockRequest, opts ...grpc.CallOption) (*StockReply, error)
	Cancel(ctx context.Context, in *StockRequest, opts ...grpc.CallOption) (*StockReply, error)
	GetStock(ctx context.Context, in *GetStockRequest, opts ...grpc.CallOption) (*StockReply, error)
}

type inventoryServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewInventoryServiceClient(cc grpc.ClientConnInterface) InventoryServiceClient {
	return &inventoryServiceClient{cc: cc}
}

func (c *inventoryServiceClient) invoke(ctx context.Context, method string, in, out any, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	return c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...)
}

func (c *inventoryServiceClient) Reserve(ctx context.Context, in *StockRequest, opts ...grpc.CallOption) (*StockReply, error) {
	out := new(StockReply)
	if err := c.invoke(ctx, "Reserve", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *inventoryServiceClient) Release(ctx context.Context, in *StockRequest, opts ...grpc.CallOption) (*StockReply, error) {
	out := new(StockReply)
	if err := c.invoke(ctx, "Release", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *inventoryServiceClient) Confirm(ctx context.Context, in *StockRequest, opts ...grpc.CallOption) (*StockReply, error) {
	out := new(StockReply)
	if err := c.invoke(ctx, "Confirm", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *inventoryServiceClient) Cancel(ctx context.Context, in *StockRequest, opts ...grpc.CallOption) (*StockReply, error) {
	out := new(StockReply)
	if err := c.invoke(ctx, "Cancel", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *inventoryServiceClient) GetStock(ctx context.Context, in *GetStockRequest, opts ...grpc.CallOption) (*StockReply, error) {
	out := new(StockReply)
	if err := c.invoke(ctx, "GetStock", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

// UnimplementedInventoryServiceServer can be embedded to satisfy the server
// interface for methods a server does not serve.
type UnimplementedInventoryServiceServer struct{}

func (UnimplementedInventoryServiceServer) Reserve(context.Context, *StockRequest) (*StockReply, error) {
	return nil, errUnimplemented("Reserve")
}
func (UnimplementedInventoryServiceServer) Release(context.Context, *StockRequest) (*StockReply, error) {
	return nil, errUnimplemented("Release")
}
func (UnimplementedInventoryServiceServer) Confirm(context.Context, *StockRequest) (*StockReply, error) {
	return nil, errUnimplemented("Confirm")
}
func (UnimplementedInventoryServiceServer) Cancel(context.Context, *StockRequest) (*StockReply, error) {
	return nil, errUnimplemented("Cancel")
}
func (UnimplementedInventoryServiceServer) GetStock(context.Context, *GetStockRequest) (*StockReply, error) {
	return nil, errUnimplemented("GetStock")
}

func RegisterInventoryServiceServer(s grpc.ServiceRegistrar, srv InventoryServiceServer) {
	s.RegisterService(&InventoryService_ServiceDesc, srv)
}

func stockHandler(method string, call func(InventoryServiceServer, context.Context, *StockRequest) (*StockReply, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(StockRequest)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(InventoryServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(InventoryServiceServer), ctx, req.(*StockRequest))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func getStockHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetStockRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(InventoryServiceServer).GetStock(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/GetStock"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(InventoryServiceServer).GetStock(ctx, req.(*GetStockRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var InventoryService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*InventoryServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Reserve", Handler: stockHandler("Reserve", InventoryServiceServer.Reserve)},
		{MethodName: "Release", Handler: stockHandler("Release", InventoryServiceServer.Release)},
		{MethodName: "Confirm", Handler: stockHandler("Confirm", InventoryServiceServer.Confirm)},
		{MethodName: "Cancel", Handler: stockHandler("Cancel", InventoryServiceServer.Cancel)},
		{MethodName: "GetStock", Handler: getStockHandler},
	},
}
