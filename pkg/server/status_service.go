package server

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"clusterwatch/pkg/poller"
)

// gRPC names of the status service.
const (
	ServiceName      = "clusterwatch.StatusService"
	MethodGetStatus  = "/" + ServiceName + "/GetStatus"
	MethodGetDCHost  = "/" + ServiceName + "/GetDCHost"
	MethodSaveLayout = "/" + ServiceName + "/SaveLayout"
	MethodWatch      = "/" + ServiceName + "/Watch"
)

// WatchStreamDesc describes the Watch server stream for clients.
var WatchStreamDesc = grpc.StreamDesc{StreamName: "Watch", ServerStreams: true}

// StatusServer is the server API of the status service.
type StatusServer interface {
	GetStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetDCHost(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	SaveLayout(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	Watch(*emptypb.Empty, WatchServer) error
}

// WatchServer is the server side of a Watch stream.
type WatchServer interface {
	Send(*structpb.Struct) error
	grpc.ServerStream
}

type watchServer struct {
	grpc.ServerStream
}

func (w *watchServer) Send(m *structpb.Struct) error { return w.ServerStream.SendMsg(m) }

// StatusServiceDesc is the service descriptor registered with grpc.
var StatusServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*StatusServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetStatus", Handler: unaryHandler(MethodGetStatus, StatusServer.GetStatus)},
		{MethodName: "GetDCHost", Handler: unaryHandler(MethodGetDCHost, StatusServer.GetDCHost)},
		{MethodName: "SaveLayout", Handler: unaryHandler(MethodSaveLayout, StatusServer.SaveLayout)},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Watch", Handler: watchHandler, ServerStreams: true},
	},
	Metadata: "clusterwatch/status.proto",
}

func RegisterStatusServer(s grpc.ServiceRegistrar, srv StatusServer) {
	s.RegisterService(&StatusServiceDesc, srv)
}

func unaryHandler[R any](fullMethod string, call func(StatusServer, context.Context, *emptypb.Empty) (R, error)) func(interface{}, context.Context, func(interface{}) error, grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(emptypb.Empty)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(StatusServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(StatusServer), ctx, req.(*emptypb.Empty))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func watchHandler(srv interface{}, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(StatusServer).Watch(in, &watchServer{stream})
}

// StatusService serves the watcher state over gRPC.
type StatusService struct {
	backend Backend
	hub     *Hub
	log     *log.Entry
}

var _ StatusServer = (*StatusService)(nil)

func NewStatusService(backend Backend, hub *Hub, logger *log.Entry) *StatusService {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &StatusService{backend: backend, hub: hub, log: logger.WithField("component", "status-service")}
}

// GetStatus returns the whole model.
func (s *StatusService) GetStatus(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(statusView(s.backend))
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encoding status: %v", err)
	}
	return out, nil
}

// GetDCHost returns the host commands should be sent to.
func (s *StatusService) GetDCHost(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	dc, ok := dcView(s.backend).(map[string]interface{})
	if !ok {
		return nil, status.Error(codes.Unavailable, "no hosts configured")
	}
	out, err := structpb.NewStruct(dc)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encoding dc host: %v", err)
	}
	return out, nil
}

// SaveLayout stores the graph positions on every host.
func (s *StatusService) SaveLayout(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	err := s.backend.SaveGraphPositions(ctx)
	switch {
	case err == nil:
		return &emptypb.Empty{}, nil
	case errors.Is(err, poller.ErrNoLayoutStore):
		return nil, status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil, status.FromContextError(err).Err()
	default:
		s.log.WithError(err).Error("saving layout failed")
		return nil, status.Errorf(codes.Internal, "saving layout: %v", err)
	}
}

// Watch sends the current status, then one message per tree batch until the
// client goes away.
func (s *StatusService) Watch(_ *emptypb.Empty, stream WatchServer) error {
	id, batches := s.hub.Subscribe()
	defer s.hub.Unsubscribe(id)
	logger := s.log.WithField("subscriber", id)

	first, err := structpb.NewStruct(map[string]interface{}{"type": "status", "status": statusView(s.backend)})
	if err != nil {
		return status.Errorf(codes.Internal, "encoding status: %v", err)
	}
	if err := stream.Send(first); err != nil {
		return err
	}

	for {
		select {
		case <-stream.Context().Done():
			logger.Debug("watch client left")
			return nil
		case b, ok := <-batches:
			if !ok {
				if s.hub.Closed() {
					return status.Error(codes.Unavailable, "server shutting down")
				}
				return status.Error(codes.ResourceExhausted, "watch subscriber fell behind")
			}
			msg, err := structpb.NewStruct(map[string]interface{}{"type": "batch", "batch": batchView(b)})
			if err != nil {
				return status.Errorf(codes.Internal, "encoding batch: %v", err)
			}
			if err := stream.Send(msg); err != nil {
				return err
			}
		}
	}
}
