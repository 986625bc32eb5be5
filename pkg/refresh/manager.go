package refresh

import (
    "context"
    "errors"
    "log"
    "sync"
    "time"

    "github.com/clusterkit/go-topology/pkg/discovery"
    "github.com/clusterkit/go-topology/pkg/internal/logutil"
    "github.com/clusterkit/go-topology/pkg/observability/metrics"
    "github.com/clusterkit/go-topology/pkg/topology"
)

// ManagerOptions configures a periodic refresh Manager.
type ManagerOptions struct {
    // Refresher performs the actual seed queries (required).
    Refresher *Refresher

    // Discovery provides the current seed addresses (required).
    Discovery discovery.Discovery

    // Interval between refresh cycles; defaults to 30s.
    Interval time.Duration

    // SeedTimeout is stamped onto resolved endpoints; it feeds the shared
    // budget when the Refresher carries no explicit timeout.
    SeedTimeout time.Duration

    // Logger is optional. If nil, log.Default() is used.
    Logger *log.Logger
}

func (o ManagerOptions) Validate() error {
    if o.Refresher == nil {
        return errors.New("refresh: nil Refresher")
    }
    if o.Discovery == nil {
        return errors.New("refresh: nil Discovery")
    }
    return nil
}

// Manager refreshes the topology on a fixed interval, keeps the most
// recently adopted view and publishes a notification whenever the essential
// topology changes.
type Manager struct {
    opts ManagerOptions

    mu      sync.RWMutex
    current *topology.View

    updates chan *topology.View
}

// NewManager constructs a Manager. Run must be called to start refreshing.
func NewManager(opts ManagerOptions) (*Manager, error) {
    if err := opts.Validate(); err != nil {
        return nil, err
    }
    if opts.Interval <= 0 {
        opts.Interval = 30 * time.Second
    }
    if opts.Logger == nil {
        opts.Logger = log.Default()
    }
    return &Manager{
        opts:    opts,
        updates: make(chan *topology.View, 1),
    }, nil
}

// Current returns the most recently adopted view, or nil before the first
// successful refresh.
func (m *Manager) Current() *topology.View {
    m.mu.RLock()
    defer m.mu.RUnlock()
    return m.current
}

// Updates delivers adopted views after essential changes. The channel holds
// one pending update; a stale unread update is replaced by the newer one.
func (m *Manager) Updates() <-chan *topology.View { return m.updates }

// Run refreshes immediately, then on every tick, until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) error {
    m.RefreshNow(ctx)
    t := time.NewTicker(m.opts.Interval)
    defer t.Stop()
    for {
        select {
        case <-ctx.Done():
            return ctx.Err()
        case <-t.C:
            m.RefreshNow(ctx)
        }
    }
}

// RefreshNow runs one refresh cycle: resolve seeds, load views, adopt the
// view of the first answering seed in canonical order when it differs
// essentially from the current one.
func (m *Manager) RefreshNow(ctx context.Context) {
    seeds := discovery.Resolve(m.opts.Discovery.Seeds(), m.opts.SeedTimeout, m.opts.Logger)
    if len(seeds) == 0 {
        logutil.Warnf(m.opts.Logger, "refresh: no usable seeds")
        return
    }
    views, err := m.opts.Refresher.LoadViews(ctx, seeds)
    if err != nil {
        logutil.Warnf(m.opts.Logger, "refresh: %v", err)
        return
    }

    candidate := pickView(seeds, views)
    if candidate == nil {
        logutil.Warnf(m.opts.Logger, "refresh: no seed answered")
        return
    }

    m.mu.Lock()
    changed := m.current == nil || topology.Changed(m.current, candidate)
    if changed {
        m.current = candidate
    }
    m.mu.Unlock()

    if changed {
        metrics.TopologyChanges.Inc()
        m.publish(candidate)
        logutil.Infof(m.opts.Logger, "refresh: adopted view with %d nodes", candidate.Size())
    }
}

// pickView selects the view of the first seed in canonical order that
// produced one. Resolve returns seeds already canonically sorted.
func pickView(ordered []*topology.Endpoint, views map[*topology.Endpoint]*topology.View) *topology.View {
    for _, ep := range ordered {
        if v, ok := views[ep]; ok {
            return v
        }
    }
    return nil
}

func (m *Manager) publish(v *topology.View) {
    for {
        select {
        case m.updates <- v:
            return
        default:
            // drop the stale pending update
            select {
            case <-m.updates:
            default:
            }
        }
    }
}
