package httpjson

import (
    "context"
    "crypto/tls"
    "fmt"
    "log"
    "net"
    "net/http"
    "time"

    "github.com/prometheus/client_golang/prometheus/promhttp"

    "github.com/clusterkit/go-topology/pkg/observability/tracing"
)

// NodesFunc returns the node-table text this member reports for the cluster.
type NodesFunc func(ctx context.Context) (string, error)

// Server is a minimal HTTP server exposing the node table plus
// metrics/healthz. It is intended for intra-cluster calls and development
// tooling.
type Server struct {
    bind   string
    lis    net.Listener
    srv    *http.Server
    logger *log.Logger
    tlsCfg *tls.Config
}

// NewServer binds to the given TCP address (e.g., ":17946").
func NewServer(bind string, logger *log.Logger) *Server {
    if logger == nil { logger = log.Default() }
    return &Server{bind: bind, logger: logger}
}

// UseTLS enables TLS for the HTTP server using the provided config.
func (s *Server) UseTLS(cfg *tls.Config) *Server { s.tlsCfg = cfg; return s }

// Start launches the HTTP server. It is shut down when ctx is canceled.
func (s *Server) Start(ctx context.Context, nodes NodesFunc) error {
    mux := http.NewServeMux()
    mux.HandleFunc("/topology/nodes", func(w http.ResponseWriter, r *http.Request) {
        if r.Method != http.MethodGet { http.Error(w, "method not allowed", http.StatusMethodNotAllowed); return }
        ctx, end := tracing.StartSpan(r.Context(), "http.nodes")
        defer end()
        text, err := nodes(ctx)
        if err != nil { http.Error(w, fmt.Sprintf("nodes error: %v", err), http.StatusInternalServerError); return }
        w.Header().Set("Content-Type", "text/plain; charset=utf-8")
        _, _ = w.Write([]byte(text))
    })
    mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
        if r.Method != http.MethodGet { http.Error(w, "method not allowed", http.StatusMethodNotAllowed); return }
        w.WriteHeader(http.StatusOK)
        _, _ = w.Write([]byte("ok"))
    })
    // Prometheus metrics
    mux.Handle("/metrics", promhttp.Handler())

    lis, err := net.Listen("tcp", s.bind)
    if err != nil { return err }
    s.lis = lis
    s.srv = &http.Server{Handler: mux, TLSConfig: s.tlsCfg, ReadHeaderTimeout: 5 * time.Second}
    go func() {
        <-ctx.Done()
        sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
        defer cancel()
        _ = s.srv.Shutdown(sctx)
    }()
    go func() {
        if s.tlsCfg != nil {
            _ = s.srv.ServeTLS(lis, "", "")
        } else {
            _ = s.srv.Serve(lis)
        }
    }()
    return nil
}

// Addr returns the actual listen address once started, the bind address
// otherwise.
func (s *Server) Addr() string {
    if s.lis != nil { return s.lis.Addr().String() }
    return s.bind
}

func (s *Server) Stop(ctx context.Context) error {
    if s.srv == nil { return nil }
    err := s.srv.Shutdown(ctx)
    s.srv = nil
    s.lis = nil
    return err
}
