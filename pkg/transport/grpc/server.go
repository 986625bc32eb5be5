package grpc

import (
    "context"
    "crypto/tls"
    "net"
    "time"

    "google.golang.org/grpc"
    "google.golang.org/grpc/credentials"
    "google.golang.org/grpc/health"
    healthpb "google.golang.org/grpc/health/grpc_health_v1"
    "google.golang.org/grpc/keepalive"

    "github.com/clusterkit/go-topology/pkg/observability/tracing"
)

// NodesFunc returns the node-table text this member reports for the
// cluster. It backs the Nodes discovery method.
type NodesFunc func(ctx context.Context) (string, error)

// Server exposes a member's topology view over gRPC using a JSON codec.
type Server struct {
    bind   string
    lis    net.Listener
    srv    *grpc.Server
    tlsCfg *tls.Config
}

func NewServer(bind string) *Server { return &Server{bind: bind} }

// UseTLS enables TLS for the gRPC server using the provided config.
func (s *Server) UseTLS(cfg *tls.Config) *Server { s.tlsCfg = cfg; return s }

// internal request/response types used over the gRPC JSON codec
type nodesRequest struct {
    Command string `json:"command"`
}
type nodesBlob struct {
    Data []byte `json:"data"`
}

// discoveryServer defines the methods we expose.
type discoveryServer interface {
    Nodes(ctx context.Context, in *nodesRequest) (*nodesBlob, error)
}

type discoveryImpl struct{ nodes NodesFunc }

func (d *discoveryImpl) Nodes(ctx context.Context, _ *nodesRequest) (*nodesBlob, error) {
    ctx, end := tracing.StartSpan(ctx, "grpc.nodes")
    defer end()
    text, err := d.nodes(ctx)
    if err != nil { return nil, err }
    return &nodesBlob{Data: []byte(text)}, nil
}

// Service descriptor and handler (hand-written, no codegen required)
var _Discovery_serviceDesc = grpc.ServiceDesc{
    ServiceName: "topology.v1.Discovery",
    HandlerType: (*discoveryServer)(nil),
    Methods: []grpc.MethodDesc{
        { MethodName: "Nodes", Handler: _Discovery_Nodes_Handler },
    },
}

func _Discovery_Nodes_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
    in := new(nodesRequest)
    if err := dec(in); err != nil { return nil, err }
    if interceptor == nil { return srv.(discoveryServer).Nodes(ctx, in) }
    info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/topology.v1.Discovery/Nodes"}
    handler := func(ctx context.Context, req interface{}) (interface{}, error) {
        return srv.(discoveryServer).Nodes(ctx, req.(*nodesRequest))
    }
    return interceptor(ctx, in, info, handler)
}

// Start listens on the bind address and serves the discovery service until
// ctx is done.
func (s *Server) Start(ctx context.Context, nodes NodesFunc) error {
    lis, err := net.Listen("tcp", s.bind)
    if err != nil { return err }
    s.lis = lis
    // Force JSON codec to avoid requiring protobuf types
    var opts []grpc.ServerOption
    opts = append(opts, grpc.ForceServerCodec(jsonCodec{}))
    opts = append(opts, grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{MinTime: 5 * time.Second, PermitWithoutStream: true}))
    opts = append(opts, grpc.KeepaliveParams(keepalive.ServerParameters{Time: 30 * time.Second, Timeout: 10 * time.Second}))
    if s.tlsCfg != nil { opts = append(opts, grpc.Creds(credentials.NewTLS(s.tlsCfg))) }
    srv := grpc.NewServer(opts...)
    s.srv = srv
    // Health service (always serving for now)
    healthSrv := health.NewServer()
    healthpb.RegisterHealthServer(srv, healthSrv)
    srv.RegisterService(&_Discovery_serviceDesc, &discoveryImpl{nodes: nodes})

    go func() {
        <-ctx.Done()
        // Graceful stop with a small timeout fallback
        ch := make(chan struct{})
        go func() { srv.GracefulStop(); close(ch) }()
        select {
        case <-ch:
        case <-time.After(2 * time.Second):
            srv.Stop()
        }
    }()
    go func() { _ = srv.Serve(lis) }()
    return nil
}

// Addr returns the actual listen address once started, the bind address
// otherwise. Useful when binding to port 0.
func (s *Server) Addr() string {
    if s.lis != nil { return s.lis.Addr().String() }
    return s.bind
}

func (s *Server) Stop(ctx context.Context) error {
    if s.srv == nil { return nil }
    ch := make(chan struct{})
    go func() { s.srv.GracefulStop(); close(ch) }()
    select {
    case <-ch:
    case <-ctx.Done():
        s.srv.Stop()
    }
    s.srv = nil
    if s.lis != nil { _ = s.lis.Close(); s.lis = nil }
    return nil
}
