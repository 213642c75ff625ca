// Package status serves the gNB's live view over gRPC. The service has a
// single unary method, ransim.status.v1.Status/Snapshot, taking
// google.protobuf.Empty and returning a google.protobuf.Struct.
package status

import (
	"context"
	"errors"
	"net"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"ransim/internal/gnb"
	"ransim/pkg/state"
)

const (
	ServiceName    = "ransim.status.v1.Status"
	snapshotMethod = "/" + ServiceName + "/Snapshot"
)

type StatusServer interface {
	Snapshot(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// Source provides the view being served.
type Source interface {
	Snapshot() gnb.Snapshot
}

type Server struct {
	src Source
}

func NewServer(src Source) *Server {
	return &Server{src: src}
}

func (s *Server) Snapshot(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return Encode(s.src.Snapshot())
}

// Encode converts a gNB snapshot into its wire form.
func Encode(snap gnb.Snapshot) (*structpb.Struct, error) {
	amfs := make([]any, 0, len(snap.AMFs))
	for _, a := range snap.AMFs {
		amfs = append(amfs, map[string]any{
			"id":        a.ID,
			"capacity":  a.Capacity,
			"load":      a.Load,
			"connected": a.Connected,
		})
	}
	terminals := make(map[string]any, len(state.All))
	for _, st := range state.All {
		terminals[st.String()] = snap.States[st]
	}
	return structpb.NewStruct(map[string]any{
		"amfs":      amfs,
		"terminals": terminals,
	})
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*StatusServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Snapshot", Handler: snapshotHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ransim/status/v1/status.proto",
}

func snapshotHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StatusServer).Snapshot(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: snapshotMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(StatusServer).Snapshot(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func Register(s grpc.ServiceRegistrar, srv StatusServer) {
	s.RegisterService(&serviceDesc, srv)
}

type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) Snapshot(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, snapshotMethod, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Serve runs the status service on lis until ctx ends.
func Serve(ctx context.Context, lis net.Listener, src Source, logger *zap.Logger) error {
	s := grpc.NewServer()
	Register(s, NewServer(src))
	reflection.Register(s)

	go func() {
		<-ctx.Done()
		s.GracefulStop()
	}()

	logger.Named("status").Info("serving status", zap.Stringer("addr", lis.Addr()))
	if err := s.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}
