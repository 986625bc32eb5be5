package httpjson

import (
    "context"
    "crypto/tls"
    "fmt"
    "io"
    "net"
    "net/http"
    "time"

    "github.com/clusterkit/go-topology/pkg/transport"
)

// Connector opens HTTP "connections" to cluster members. HTTP itself is
// connectionless, so Open probes the member with a TCP dial; the returned
// conn owns a dedicated http.Transport torn down on Close so that no state
// leaks across refresh invocations.
type Connector struct {
    dialTimeout time.Duration
    tlsCfg      *tls.Config
}

// NewConnector constructs a connector with the given dial timeout.
func NewConnector(dialTimeout time.Duration) *Connector {
    if dialTimeout <= 0 { dialTimeout = 3 * time.Second }
    return &Connector{dialTimeout: dialTimeout}
}

// UseTLS sets the TLS config and switches requests to https.
func (c *Connector) UseTLS(cfg *tls.Config) *Connector { c.tlsCfg = cfg; return c }

func (c *Connector) Open(ctx context.Context, addr string) (transport.Conn, error) {
    d := net.Dialer{Timeout: c.dialTimeout}
    probe, err := d.DialContext(ctx, "tcp", addr)
    if err != nil {
        return nil, fmt.Errorf("httpjson: connect %s: %w", addr, err)
    }
    _ = probe.Close()

    tr := &http.Transport{TLSClientConfig: c.tlsCfg}
    scheme := "http"
    if c.tlsCfg != nil { scheme = "https" }
    return &conn{
        url:   fmt.Sprintf("%s://%s/topology/nodes", scheme, addr),
        httpc: &http.Client{Transport: tr},
        tr:    tr,
    }, nil
}

var _ transport.Connector = (*Connector)(nil)

type conn struct {
    url   string
    httpc *http.Client
    tr    *http.Transport
}

// Dispatch fetches the node table asynchronously. The request carries no
// deadline; waits are bounded by the collector's shared budget and late
// replies are discarded.
func (c *conn) Dispatch(cmd *transport.TimedCommand) {
    go func() {
        req, err := http.NewRequest(http.MethodGet, c.url, nil)
        if err != nil {
            cmd.Fail(err)
            return
        }
        cmd.MarkEncoded()
        resp, err := c.httpc.Do(req)
        if err != nil {
            cmd.Fail(err)
            return
        }
        defer resp.Body.Close()
        body, err := io.ReadAll(resp.Body)
        if err != nil {
            cmd.Fail(err)
            return
        }
        if resp.StatusCode != http.StatusOK {
            cmd.Fail(fmt.Errorf("httpjson: status %d: %s", resp.StatusCode, string(body)))
            return
        }
        cmd.Complete(string(body))
    }()
}

func (c *conn) Close() error {
    c.tr.CloseIdleConnections()
    return nil
}
