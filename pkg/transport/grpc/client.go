package grpc

import (
    "context"
    "crypto/tls"
    "time"

    "google.golang.org/grpc"
    "google.golang.org/grpc/backoff"
    "google.golang.org/grpc/credentials"
    "google.golang.org/grpc/credentials/insecure"
    "google.golang.org/grpc/keepalive"

    "github.com/clusterkit/go-topology/pkg/transport"
)

// Connector opens gRPC connections to cluster members for topology queries.
// Connections are dialed fresh per refresh invocation; there is no pooling.
type Connector struct {
    dialTimeout time.Duration
    tlsCfg      *tls.Config
}

// NewConnector constructs a connector with the given dial timeout.
func NewConnector(dialTimeout time.Duration) *Connector {
    if dialTimeout <= 0 { dialTimeout = 3 * time.Second }
    return &Connector{dialTimeout: dialTimeout}
}

// UseTLS sets TLS config for dialed connections.
func (c *Connector) UseTLS(cfg *tls.Config) *Connector { c.tlsCfg = cfg; return c }

// Open dials addr and blocks until the connection is ready or the dial
// timeout expires.
func (c *Connector) Open(ctx context.Context, addr string) (transport.Conn, error) {
    dctx, cancel := context.WithTimeout(ctx, c.dialTimeout)
    defer cancel()
    // Use JSON codec and set content subtype accordingly.
    opts := []grpc.DialOption{
        grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{}), grpc.CallContentSubtype("json")),
        grpc.WithConnectParams(grpc.ConnectParams{Backoff: backoff.DefaultConfig, MinConnectTimeout: 500 * time.Millisecond}),
        grpc.WithKeepaliveParams(keepalive.ClientParameters{Time: 20 * time.Second, Timeout: 5 * time.Second, PermitWithoutStream: true}),
        grpc.WithBlock(),
    }
    if c.tlsCfg != nil {
        opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(c.tlsCfg)))
    } else {
        opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
    }
    cc, err := grpc.DialContext(dctx, addr, opts...)
    if err != nil {
        return nil, err
    }
    return &conn{cc: cc}, nil
}

var _ transport.Connector = (*Connector)(nil)

// conn is one open connection to a member's discovery endpoint.
type conn struct {
    cc *grpc.ClientConn
}

// Dispatch invokes the Nodes method asynchronously and completes cmd with
// the raw node table. The call itself carries no deadline: waits are
// bounded by the collector's shared budget, and replies arriving after the
// refresh returned are simply discarded.
func (c *conn) Dispatch(cmd *transport.TimedCommand) {
    go func() {
        req := &nodesRequest{Command: cmd.Name()}
        cmd.MarkEncoded()
        out := new(nodesBlob)
        if err := c.cc.Invoke(context.Background(), "/topology.v1.Discovery/Nodes", req, out); err != nil {
            cmd.Fail(err)
            return
        }
        cmd.Complete(string(out.Data))
    }()
}

func (c *conn) Close() error { return c.cc.Close() }
