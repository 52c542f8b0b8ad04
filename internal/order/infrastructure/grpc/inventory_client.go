package grpc

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	pb "github.com/dmehra2102/marketplace/internal/inventory/infrastructure/grpc/proto"
	"github.com/dmehra2102/marketplace/internal/order/application"
)

// InventoryClient calls the inventory service's order-scoped operations.
type InventoryClient struct {
	log  *slog.Logger
	conn *grpc.ClientConn
	cc   pb.InventoryServiceClient
}

var _ application.Inventory = (*InventoryClient)(nil)

func NewInventoryClient(log *slog.Logger, addr string, opts ...grpc.DialOption) (*InventoryClient, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, err
	}
	return &InventoryClient{
		log:  log,
		conn: conn,
		cc:   pb.NewInventoryServiceClient(conn),
	}, nil
}

func (c *InventoryClient) Close() error {
	return c.conn.Close()
}

func (c *InventoryClient) ReserveFor(ctx context.Context, orderID, productID string, qty int) error {
	req, err := request(orderID, productID, qty)
	if err != nil {
		return err
	}
	_, err = c.cc.Reserve(ctx, req)
	return fromStatus(err)
}

func (c *InventoryClient) ReleaseFor(ctx context.Context, orderID, productID string, qty int) error {
	req, err := request(orderID, productID, qty)
	if err != nil {
		return err
	}
	_, err = c.cc.Release(ctx, req)
	return fromStatus(err)
}

func (c *InventoryClient) ConfirmFor(ctx context.Context, orderID, productID string, qty int) error {
	req, err := request(orderID, productID, qty)
	if err != nil {
		return err
	}
	_, err = c.cc.Confirm(ctx, req)
	return fromStatus(err)
}

func (c *InventoryClient) CancelFor(ctx context.Context, orderID, productID string, qty int) error {
	req, err := request(orderID, productID, qty)
	if err != nil {
		return err
	}
	_, err = c.cc.Cancel(ctx, req)
	return fromStatus(err)
}

func request(orderID, productID string, qty int) (*pb.StockRequest, error) {
	if qty > math.MaxInt32 || qty < math.MinInt32 {
		return nil, fmt.Errorf("%w: %d does not fit the wire format", application.ErrInvalidQuantity, qty)
	}
	return &pb.StockRequest{OrderID: orderID, ProductID: productID, Quantity: int32(qty)}, nil
}

func fromStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.FailedPrecondition:
		return fmt.Errorf("%w: %s", application.ErrOutOfStock, st.Message())
	case codes.NotFound:
		return fmt.Errorf("%w: %s", application.ErrProductNotFound, st.Message())
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", application.ErrInvalidQuantity, st.Message())
	case codes.Unavailable, codes.DeadlineExceeded:
		return fmt.Errorf("%w: %s", application.ErrInventoryBusy, st.Message())
	default:
		return err
	}
}
