package refresh

import (
    "context"
    "fmt"
    "log"
    "time"

    "github.com/clusterkit/go-topology/pkg/internal/logutil"
    "github.com/clusterkit/go-topology/pkg/observability/metrics"
    "github.com/clusterkit/go-topology/pkg/observability/tracing"
    "github.com/clusterkit/go-topology/pkg/topology"
    "github.com/clusterkit/go-topology/pkg/transport"
)

// defaultTimeout bounds one refresh invocation when neither Options.Timeout
// nor any seed carries a per-endpoint timeout.
const defaultTimeout = 60 * time.Second

// Options carries the dependencies and tuning of a Refresher.
type Options struct {
    // Connector opens one fresh connection per seed per invocation.
    Connector transport.Connector

    // Timeout is the shared wait budget for one invocation. When zero, the
    // budget falls back to the first seed's per-endpoint timeout, then to
    // defaultTimeout.
    Timeout time.Duration

    // Logger is used for per-seed failure reporting. If nil, log.Default()
    // is used.
    Logger *log.Logger
}

// Validate performs a minimal validation of Options. It does not start any
// network activity and is safe to call before New.
func (o Options) Validate() error {
    if o.Connector == nil {
        return ErrNilConnector
    }
    return nil
}

// Refresher queries a set of seed endpoints for their view of the cluster
// and returns each seed's parsed node table, ranked by observed latency.
type Refresher struct {
    opts Options
}

// New constructs a Refresher from validated options.
func New(opts Options) (*Refresher, error) {
    if err := opts.Validate(); err != nil {
        return nil, err
    }
    if opts.Logger == nil {
        opts.Logger = log.Default()
    }
    metrics.Register()
    return &Refresher{opts: opts}, nil
}

// query is one seed's in-flight request.
type query struct {
    ep   *topology.Endpoint
    conn transport.Conn
    cmd  *transport.TimedCommand
}

// LoadViews connects to the given seeds, asks each for its node table and
// collects the replies under a shared wait budget. Seeds are processed in
// canonical endpoint order. Unreachable or misbehaving seeds are logged and
// skipped; the result maps each answering seed to its view. Replies that do
// not arrive within the budget are abandoned, so the result covers a prefix
// of the canonically ordered reachable seeds. Cancellation of ctx aborts the
// invocation with ErrInterrupted and no partial result.
func (r *Refresher) LoadViews(ctx context.Context, seeds []*topology.Endpoint) (map[*topology.Endpoint]*topology.View, error) {
    ctx, end := tracing.StartSpan(ctx, "refresh.loadviews")
    defer end()

    started := time.Now()
    ordered := append([]*topology.Endpoint(nil), seeds...)
    topology.SortEndpoints(ordered)

    queries := r.connect(ctx, ordered)
    defer func() {
        for _, q := range queries {
            if err := q.conn.Close(); err != nil {
                logutil.Warnf(r.opts.Logger, "refresh: close %s: %v", q.ep, err)
            }
        }
    }()
    metrics.SeedsConnected.Set(float64(len(queries)))

    // All requests go out before any wait starts, so slow seeds overlap.
    for _, q := range queries {
        q.conn.Dispatch(q.cmd)
    }

    views, err := r.collect(ctx, queries)
    if err != nil {
        metrics.Refreshes.WithLabelValues("interrupted").Inc()
        return nil, err
    }
    metrics.Refreshes.WithLabelValues("ok").Inc()
    metrics.RefreshDuration.Observe(time.Since(started).Seconds())
    return views, nil
}

// connect opens one connection per seed, in order. Seeds without a resolved
// address and seeds that refuse the connection are skipped.
func (r *Refresher) connect(ctx context.Context, ordered []*topology.Endpoint) []*query {
    queries := make([]*query, 0, len(ordered))
    for _, ep := range ordered {
        if ep == nil || ep.Addr == nil {
            continue
        }
        conn, err := r.opts.Connector.Open(ctx, ep.HostPort())
        if err != nil {
            logutil.Warnf(r.opts.Logger, "refresh: unable to connect to %s: %v", ep, err)
            metrics.ConnectFailures.Inc()
            continue
        }
        queries = append(queries, &query{
            ep:   ep,
            conn: conn,
            cmd:  transport.NewTimedCommand(transport.CmdClusterNodes),
        })
    }
    return queries
}

// collect awaits each pending reply under the shared budget, parses the node
// tables and ranks every view's nodes by the latencies observed this
// invocation.
func (r *Refresher) collect(ctx context.Context, queries []*query) (map[*topology.Endpoint]*topology.View, error) {
    budget := r.budget(queries)
    views := make(map[*topology.Endpoint]*topology.View, len(queries))
    latencies := make(topology.Latencies)

    var waited time.Duration
    for _, q := range queries {
        remaining := budget - waited
        if remaining <= 0 {
            break
        }
        waitStart := time.Now()
        done, err := q.cmd.Await(ctx, remaining)
        if err != nil {
            return nil, fmt.Errorf("%w: %v", ErrInterrupted, err)
        }
        waited += time.Since(waitStart)
        if !done {
            break
        }

        reply, err := q.cmd.Result()
        if err != nil {
            logutil.Warnf(r.opts.Logger, "refresh: unable to retrieve node view from %s: %v", q.ep, err)
            metrics.QueryFailures.Inc()
            continue
        }
        view, err := topology.ParseNodes(reply)
        if err != nil {
            logutil.Warnf(r.opts.Logger, "refresh: bad node view from %s: %v", q.ep, err)
            metrics.QueryFailures.Inc()
            continue
        }
        if myself := view.Myself(); myself != nil {
            myself.Endpoint = q.ep
            if d, ok := q.cmd.Duration(); ok {
                latencies[myself.ID] = d
            }
        }
        views[q.ep] = view
        metrics.ViewsCollected.Inc()
    }

    for _, v := range views {
        topology.SortByLatency(v.Nodes, latencies)
    }
    return views, nil
}

// budget picks the shared wait budget for one invocation.
func (r *Refresher) budget(queries []*query) time.Duration {
    if r.opts.Timeout > 0 {
        return r.opts.Timeout
    }
    for _, q := range queries {
        if q.ep.Timeout > 0 {
            return q.ep.Timeout
        }
    }
    return defaultTimeout
}
