package topology

import (
    "fmt"
    "net"
    "sort"
    "strings"
    "time"
)

// Endpoint identifies one cluster member used as a seed for discovery.
type Endpoint struct {
    // Host and Port form the advertised address of the member.
    Host string
    Port int

    // Addr is the resolved network address. A nil Addr marks the endpoint
    // as unreachable; the seed connector skips such endpoints silently.
    Addr *net.TCPAddr

    // Timeout is the command timeout configured for this endpoint. The
    // first seed in canonical order with a positive Timeout supplies the
    // shared budget of a refresh invocation.
    Timeout time.Duration
}

// NewEndpoint constructs an unresolved endpoint.
func NewEndpoint(host string, port int) *Endpoint {
    return &Endpoint{Host: host, Port: port}
}

// HostPort returns the "host:port" form of the endpoint.
func (e *Endpoint) HostPort() string {
    return net.JoinHostPort(e.Host, fmt.Sprintf("%d", e.Port))
}

func (e *Endpoint) String() string {
    if e == nil { return "<nil>" }
    return e.HostPort()
}

// Resolve fills Addr from Host/Port. On failure Addr stays nil and the
// endpoint remains unreachable; the error lets callers log the cause.
func (e *Endpoint) Resolve() error {
    addr, err := net.ResolveTCPAddr("tcp", e.HostPort())
    if err != nil {
        return fmt.Errorf("topology: resolve %s: %w", e.HostPort(), err)
    }
    e.Addr = addr
    return nil
}

// sortKey builds the canonical ordering key. A nil endpoint maps to the
// empty string, which sorts before any real address.
func sortKey(e *Endpoint) string {
    if e == nil { return "" }
    return strings.ToLower(fmt.Sprintf("%s:%d", e.Host, e.Port))
}

// CompareEndpoints is the total order used wherever endpoint iteration
// order is observable: case-insensitive comparison of "host:port".
func CompareEndpoints(a, b *Endpoint) int {
    return strings.Compare(sortKey(a), sortKey(b))
}

// SortEndpoints sorts endpoints in place into canonical order.
func SortEndpoints(eps []*Endpoint) {
    sort.Slice(eps, func(i, j int) bool { return CompareEndpoints(eps[i], eps[j]) < 0 })
}
