package grpc

import (
	"context"
	"errors"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dmehra2102/marketplace/internal/inventory/application"
	"github.com/dmehra2102/marketplace/internal/inventory/domain"
	pb "github.com/dmehra2102/marketplace/internal/inventory/infrastructure/grpc/proto"
)

type Server struct {
	pb.UnimplementedInventoryServiceServer
	log *slog.Logger
	svc *application.Service
}

func NewServer(log *slog.Logger, svc *application.Service) *Server {
	return &Server{log: log, svc: svc}
}

func (s *Server) Reserve(ctx context.Context, req *pb.StockRequest) (*pb.StockReply, error) {
	return s.apply(ctx, req, s.svc.Reserve, s.svc.ReserveFor)
}

func (s *Server) Release(ctx context.Context, req *pb.StockRequest) (*pb.StockReply, error) {
	return s.apply(ctx, req, s.svc.Release, s.svc.ReleaseFor)
}

func (s *Server) Confirm(ctx context.Context, req *pb.StockRequest) (*pb.StockReply, error) {
	return s.apply(ctx, req, s.svc.Confirm, s.svc.ConfirmFor)
}

func (s *Server) Cancel(ctx context.Context, req *pb.StockRequest) (*pb.StockReply, error) {
	return s.apply(ctx, req, s.svc.Cancel, s.svc.CancelFor)
}

func (s *Server) GetStock(ctx context.Context, req *pb.GetStockRequest) (*pb.StockReply, error) {
	st, err := s.svc.Stock(ctx, req.ProductID)
	if err != nil {
		return nil, toStatus(err)
	}
	return reply(st), nil
}

type (
	productOp func(ctx context.Context, productID string, qty int) error
	orderOp   func(ctx context.Context, orderID, productID string, qty int) error
)

func (s *Server) apply(ctx context.Context, req *pb.StockRequest, byProduct productOp, byOrder orderOp) (*pb.StockReply, error) {
	if req.ProductID == "" {
		return nil, status.Error(codes.InvalidArgument, "product_id is required")
	}
	var err error
	if req.OrderID != "" {
		err = byOrder(ctx, req.OrderID, req.ProductID, int(req.Quantity))
	} else {
		err = byProduct(ctx, req.ProductID, int(req.Quantity))
	}
	if err != nil {
		return nil, toStatus(err)
	}
	st, err := s.svc.Stock(ctx, req.ProductID)
	if err != nil {
		return nil, toStatus(err)
	}
	return reply(st), nil
}

func reply(st domain.Stock) *pb.StockReply {
	return &pb.StockReply{
		ProductID:        st.ProductID,
		StockQuantity:    int32(st.StockQuantity),
		ReservedQuantity: int32(st.ReservedQuantity),
		Available:        int32(st.Available()),
	}
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, domain.ErrInsufficientStock):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, domain.ErrProductNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrLockTimeout):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, domain.ErrInvalidQuantity), errors.Is(err, application.ErrMissingOrderID):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// logUnary logs failed calls.
func logUnary(log *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		resp, err := handler(ctx, req)
		if err != nil {
			log.Warn("grpc call failed", "method", info.FullMethod, "code", status.Code(err).String(), "err", err)
		}
		return resp, err
	}
}

func NewGRPCServer(log *slog.Logger, srv *Server) *grpc.Server {
	gs := grpc.NewServer(grpc.UnaryInterceptor(logUnary(log)))
	pb.RegisterInventoryServiceServer(gs, srv)
	return gs
}

func Run(log *slog.Logger, addr string, srv *Server) (*grpc.Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	gs := NewGRPCServer(log, srv)
	go func() {
		if err := gs.Serve(lis); err != nil {
			log.Error("grpc serve error", "err", err)
		}
	}()
	return gs, nil
}
