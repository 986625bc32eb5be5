package refresh

import (
    "bytes"
    "context"
    "errors"
    "fmt"
    "log"
    "net"
    "strings"
    "sync"
    "testing"
    "time"

    "github.com/clusterkit/go-topology/pkg/topology"
    "github.com/clusterkit/go-topology/pkg/transport"
)

// fakeConn answers the node query after an optional delay.
type fakeConn struct {
    reply string
    err   error
    delay time.Duration

    mu     sync.Mutex
    closed bool
}

func (c *fakeConn) Dispatch(cmd *transport.TimedCommand) {
    go func() {
        cmd.MarkEncoded()
        if c.delay > 0 {
            time.Sleep(c.delay)
        }
        if c.err != nil {
            cmd.Fail(c.err)
            return
        }
        cmd.Complete(c.reply)
    }()
}

func (c *fakeConn) Close() error {
    c.mu.Lock()
    c.closed = true
    c.mu.Unlock()
    return nil
}

func (c *fakeConn) isClosed() bool {
    c.mu.Lock()
    defer c.mu.Unlock()
    return c.closed
}

type fakeConnector struct {
    mu      sync.Mutex
    conns   map[string]*fakeConn
    openErr map[string]error
    opened  []string
}

func (f *fakeConnector) Open(ctx context.Context, addr string) (transport.Conn, error) {
    f.mu.Lock()
    defer f.mu.Unlock()
    f.opened = append(f.opened, addr)
    if err := f.openErr[addr]; err != nil {
        return nil, err
    }
    c, ok := f.conns[addr]
    if !ok {
        return nil, fmt.Errorf("no conn for %s", addr)
    }
    return c, nil
}

func seed(t *testing.T, host string, port int) *topology.Endpoint {
    t.Helper()
    ep := topology.NewEndpoint(host, port)
    ep.Addr = &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port}
    return ep
}

func nodeTable(lines ...string) string { return strings.Join(lines, "\n") + "\n" }

func newRefresher(t *testing.T, c transport.Connector, timeout time.Duration, out *bytes.Buffer) *Refresher {
    t.Helper()
    logger := log.Default()
    if out != nil {
        logger = log.New(out, "", 0)
    }
    r, err := New(Options{Connector: c, Timeout: timeout, Logger: logger})
    if err != nil {
        t.Fatalf("new refresher: %v", err)
    }
    return r
}

func TestLoadViews_MyselfTaggedAndSorted(t *testing.T) {
    e1 := seed(t, "a.example", 7000)
    e2 := seed(t, "b.example", 7000)

    // Each seed reports itself plus the rest of the cluster; n3 never
    // answers a query, so its latency stays unknown.
    tableA := nodeTable(
        "n1 a.example:7000 myself,master - 0 0 1 connected 0-8191",
        "n2 b.example:7000 master - 0 0 2 connected 8192-16383",
        "n3 c.example:7000 slave n1 0 0 1 connected",
    )
    tableB := nodeTable(
        "n2 b.example:7000 myself,master - 0 0 2 connected 8192-16383",
        "n1 a.example:7000 master - 0 0 1 connected 0-8191",
        "n3 c.example:7000 slave n1 0 0 1 connected",
    )
    fc := &fakeConnector{conns: map[string]*fakeConn{
        "a.example:7000": {reply: tableA, delay: 2 * time.Millisecond},
        "b.example:7000": {reply: tableB, delay: 2 * time.Millisecond},
    }}

    r := newRefresher(t, fc, time.Second, nil)
    views, err := r.LoadViews(context.Background(), []*topology.Endpoint{e2, e1})
    if err != nil {
        t.Fatalf("LoadViews: %v", err)
    }
    if len(views) != 2 {
        t.Fatalf("expected 2 views, got %d", len(views))
    }

    va := views[e1]
    if va == nil {
        t.Fatalf("no view for %s", e1)
    }
    my := va.Myself()
    if my == nil || my.ID != "n1" {
        t.Fatalf("expected myself n1, got %+v", my)
    }
    if my.Endpoint != e1 {
        t.Fatalf("myself endpoint not tagged with queried seed: %v", my.Endpoint)
    }

    // n1 and n2 both answered, so both carry latencies; n3 must sort last.
    for _, v := range views {
        last := v.Nodes[len(v.Nodes)-1]
        if last.ID != "n3" {
            t.Fatalf("expected unknown-latency node last, got order %v", ids(v))
        }
    }

    // Connections are torn down after the invocation.
    for addr, c := range fc.conns {
        if !c.isClosed() {
            t.Fatalf("conn %s left open", addr)
        }
    }
}

func TestLoadViews_PartialFailure(t *testing.T) {
    e1 := seed(t, "a.example", 7000)
    e2 := seed(t, "b.example", 7000)
    e3 := seed(t, "c.example", 7000)

    table := nodeTable("n1 a.example:7000 myself,master - 0 0 1 connected 0-16383")
    fc := &fakeConnector{conns: map[string]*fakeConn{
        "a.example:7000": {reply: table},
        "b.example:7000": {err: errors.New("boom")},
        "c.example:7000": {reply: table},
    }}

    var buf bytes.Buffer
    r := newRefresher(t, fc, time.Second, &buf)
    views, err := r.LoadViews(context.Background(), []*topology.Endpoint{e1, e2, e3})
    if err != nil {
        t.Fatalf("LoadViews: %v", err)
    }
    if len(views) != 2 {
        t.Fatalf("expected 2 views, got %d", len(views))
    }
    if views[e2] != nil {
        t.Fatalf("failed seed must not contribute a view")
    }
    if views[e1] == nil || views[e3] == nil {
        t.Fatalf("healthy seeds missing from result: %v", views)
    }
    if !strings.Contains(buf.String(), "b.example:7000") {
        t.Fatalf("expected warning naming the failed seed, got %q", buf.String())
    }
}

func TestLoadViews_BudgetCoversPrefix(t *testing.T) {
    e1 := seed(t, "a.example", 7000)
    e2 := seed(t, "b.example", 7000)
    e3 := seed(t, "c.example", 7000)

    table := nodeTable("n1 a.example:7000 myself,master - 0 0 1 connected 0-16383")
    fc := &fakeConnector{conns: map[string]*fakeConn{
        "a.example:7000": {reply: table, delay: 1 * time.Millisecond},
        "b.example:7000": {reply: table, delay: 10 * time.Second},
        "c.example:7000": {reply: table, delay: 1 * time.Millisecond},
    }}

    r := newRefresher(t, fc, 100*time.Millisecond, nil)
    views, err := r.LoadViews(context.Background(), []*topology.Endpoint{e1, e2, e3})
    if err != nil {
        t.Fatalf("LoadViews: %v", err)
    }
    // The slow seed exhausts the budget; collection stops there, so the
    // result is a prefix of the canonical order even though the third
    // seed already answered.
    if len(views) != 1 || views[e1] == nil {
        t.Fatalf("expected only the first seed's view, got %v", views)
    }
}

func TestLoadViews_Interrupted(t *testing.T) {
    e1 := seed(t, "a.example", 7000)
    fc := &fakeConnector{conns: map[string]*fakeConn{
        "a.example:7000": {reply: "x", delay: 10 * time.Second},
    }}

    r := newRefresher(t, fc, time.Minute, nil)
    ctx, cancel := context.WithCancel(context.Background())
    go func() {
        time.Sleep(10 * time.Millisecond)
        cancel()
    }()

    views, err := r.LoadViews(ctx, []*topology.Endpoint{e1})
    if !errors.Is(err, ErrInterrupted) {
        t.Fatalf("expected ErrInterrupted, got %v", err)
    }
    if views != nil {
        t.Fatalf("no partial result on interruption, got %v", views)
    }
    if !fc.conns["a.example:7000"].isClosed() {
        t.Fatalf("conn left open after interruption")
    }
}

func TestLoadViews_SkipsUnreachableSeeds(t *testing.T) {
    good := seed(t, "a.example", 7000)
    refused := seed(t, "b.example", 7000)
    unresolved := topology.NewEndpoint("c.example", 7000) // nil Addr

    table := nodeTable("n1 a.example:7000 myself,master - 0 0 1 connected 0-16383")
    fc := &fakeConnector{
        conns:   map[string]*fakeConn{"a.example:7000": {reply: table}},
        openErr: map[string]error{"b.example:7000": errors.New("connection refused")},
    }

    var buf bytes.Buffer
    r := newRefresher(t, fc, time.Second, &buf)
    views, err := r.LoadViews(context.Background(), []*topology.Endpoint{good, refused, unresolved})
    if err != nil {
        t.Fatalf("LoadViews: %v", err)
    }
    if len(views) != 1 || views[good] == nil {
        t.Fatalf("expected only the reachable seed's view, got %v", views)
    }
    for _, addr := range fc.opened {
        if addr == "c.example:7000" {
            t.Fatalf("unresolved seed must not be dialed")
        }
    }
    if !strings.Contains(buf.String(), "b.example:7000") {
        t.Fatalf("expected warning for refused seed, got %q", buf.String())
    }
}

func TestLoadViews_BadTableSkipped(t *testing.T) {
    e1 := seed(t, "a.example", 7000)
    e2 := seed(t, "b.example", 7000)

    table := nodeTable("n1 a.example:7000 myself,master - 0 0 1 connected 0-16383")
    fc := &fakeConnector{conns: map[string]*fakeConn{
        "a.example:7000": {reply: table},
        "b.example:7000": {reply: "n2 short line"},
    }}

    var buf bytes.Buffer
    r := newRefresher(t, fc, time.Second, &buf)
    views, err := r.LoadViews(context.Background(), []*topology.Endpoint{e1, e2})
    if err != nil {
        t.Fatalf("LoadViews: %v", err)
    }
    if len(views) != 1 || views[e1] == nil {
        t.Fatalf("expected bad table skipped, got %v", views)
    }
    if !strings.Contains(buf.String(), "b.example:7000") {
        t.Fatalf("expected warning for malformed view, got %q", buf.String())
    }
}

func TestLoadViews_EmptySeeds(t *testing.T) {
    r := newRefresher(t, &fakeConnector{}, time.Second, nil)
    views, err := r.LoadViews(context.Background(), nil)
    if err != nil {
        t.Fatalf("LoadViews: %v", err)
    }
    if len(views) != 0 {
        t.Fatalf("expected empty result, got %v", views)
    }
}

func ids(v *topology.View) []string {
    out := make([]string, 0, len(v.Nodes))
    for _, n := range v.Nodes {
        out = append(out, n.ID)
    }
    return out
}
