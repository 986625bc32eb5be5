package gossip

import (
    "context"
    "encoding/json"
    "fmt"
    "log"
    "net"
    "sort"
    "sync"
    "time"

    "github.com/google/uuid"
    "github.com/hashicorp/memberlist"

    "github.com/clusterkit/go-topology/pkg/discovery"
    "github.com/clusterkit/go-topology/pkg/internal/logutil"
)

// metaAddrKey is the gossip metadata key under which each member advertises
// the address of its topology query endpoint.
const metaAddrKey = "topology_addr"

// Options configures the gossip-backed seed source.
type Options struct {
    // NodeID is the unique node identifier. A random one is generated when empty.
    NodeID string

    // Bind is the gossip bind address in host:port form (e.g. ":7946").
    Bind string

    // Advertise is the advertised gossip address. If empty, memberlist
    // derives it from Bind.
    Advertise string

    // QueryAddr is the topology query endpoint this node advertises to the
    // rest of the cluster. Optional; a node without one contributes no seed.
    QueryAddr string

    // Join lists gossip peers to contact at startup.
    Join []string

    // Logger is optional. If nil, log.Default() is used.
    Logger *log.Logger

    // Tuning parameters (optional). Zero means use defaults.
    ProbeInterval time.Duration
    ProbeTimeout  time.Duration
    SuspicionMult int
}

// Source discovers topology seeds through a memberlist gossip pool. Each
// member gossips its query endpoint as node metadata; Seeds returns the
// advertised endpoints of all currently alive members.
type Source struct {
    mu     sync.RWMutex
    opts   Options
    ml     *memberlist.Memberlist
    closed bool
}

// New constructs a gossip seed source. Start must be called before Seeds
// returns anything useful.
func New(opts Options) (*Source, error) {
    if opts.NodeID == "" {
        opts.NodeID = "topo-" + uuid.NewString()[:8]
    }
    if opts.Bind == "" {
        return nil, fmt.Errorf("gossip: empty Bind address")
    }
    if opts.Logger == nil {
        opts.Logger = log.Default()
    }
    return &Source{opts: opts}, nil
}

// Start creates the underlying memberlist instance and joins the configured
// peers. The instance shuts down when ctx is cancelled.
func (s *Source) Start(ctx context.Context) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    if s.ml != nil {
        return nil
    }

    cfg := memberlist.DefaultLANConfig()
    cfg.Name = s.opts.NodeID
    host, portStr, err := net.SplitHostPort(s.opts.Bind)
    if err != nil {
        return fmt.Errorf("gossip: invalid bind address %q: %w", s.opts.Bind, err)
    }
    port, err := parsePort(portStr)
    if err != nil {
        return err
    }
    cfg.BindAddr = host
    cfg.BindPort = port

    if s.opts.Advertise != "" {
        ahost, aportStr, err := net.SplitHostPort(s.opts.Advertise)
        if err != nil {
            return fmt.Errorf("gossip: invalid advertise address %q: %w", s.opts.Advertise, err)
        }
        aport, err := parsePort(aportStr)
        if err != nil {
            return err
        }
        cfg.AdvertiseAddr = ahost
        cfg.AdvertisePort = aport
    }

    if s.opts.ProbeInterval > 0 {
        cfg.ProbeInterval = s.opts.ProbeInterval
    }
    if s.opts.ProbeTimeout > 0 {
        cfg.ProbeTimeout = s.opts.ProbeTimeout
    }
    if s.opts.SuspicionMult > 0 {
        cfg.SuspicionMult = s.opts.SuspicionMult
    }

    meta := map[string]string{}
    if s.opts.QueryAddr != "" {
        meta[metaAddrKey] = s.opts.QueryAddr
    }
    metaBytes, _ := json.Marshal(meta)
    cfg.Delegate = &nodeDelegate{meta: metaBytes}

    ml, err := memberlist.Create(cfg)
    if err != nil {
        return err
    }
    s.ml = ml

    if len(s.opts.Join) > 0 {
        if _, err := ml.Join(s.opts.Join); err != nil {
            logutil.Warnf(s.opts.Logger, "gossip: join: %v", err)
        }
    }

    go func() {
        <-ctx.Done()
        _ = s.Stop()
    }()

    return nil
}

// Seeds returns the query endpoints advertised by all alive members, sorted
// and de-duplicated. Members without an advertised endpoint are skipped.
func (s *Source) Seeds() []string {
    s.mu.RLock()
    defer s.mu.RUnlock()
    if s.ml == nil {
        return nil
    }
    set := make(map[string]struct{})
    for _, n := range s.ml.Members() {
        if len(n.Meta) == 0 {
            continue
        }
        meta := map[string]string{}
        if err := json.Unmarshal(n.Meta, &meta); err != nil {
            continue
        }
        if addr := meta[metaAddrKey]; addr != "" {
            set[addr] = struct{}{}
        }
    }
    out := make([]string, 0, len(set))
    for a := range set {
        out = append(out, a)
    }
    sort.Strings(out)
    return out
}

// GossipAddr returns the bound gossip address once started, for joining
// further nodes.
func (s *Source) GossipAddr() string {
    s.mu.RLock()
    defer s.mu.RUnlock()
    if s.ml == nil {
        return ""
    }
    n := s.ml.LocalNode()
    return net.JoinHostPort(n.Addr.String(), fmt.Sprintf("%d", n.Port))
}

// HealthScore exposes memberlist's awareness score; -1 when not started.
func (s *Source) HealthScore() int {
    s.mu.RLock()
    defer s.mu.RUnlock()
    if s.ml == nil {
        return -1
    }
    return s.ml.GetHealthScore()
}

// Stop leaves the pool and shuts the memberlist instance down.
func (s *Source) Stop() error {
    s.mu.Lock()
    defer s.mu.Unlock()
    if s.closed {
        return nil
    }
    s.closed = true
    if s.ml != nil {
        _ = s.ml.Leave(time.Second)
        _ = s.ml.Shutdown()
        s.ml = nil
    }
    return nil
}

var _ discovery.Discovery = (*Source)(nil)

func parsePort(s string) (int, error) {
    var p int
    _, err := fmt.Sscanf(s, "%d", &p)
    if err != nil || p < 0 || p > 65535 {
        return 0, fmt.Errorf("invalid port: %q", s)
    }
    return p, nil
}

// nodeDelegate implements memberlist.Delegate to propagate node metadata.
type nodeDelegate struct{ meta []byte }

func (d *nodeDelegate) NodeMeta(limit int) []byte {
    if len(d.meta) <= limit { return d.meta }
    if limit <= 0 { return nil }
    return d.meta[:limit]
}

func (d *nodeDelegate) NotifyMsg([]byte)                       {}
func (d *nodeDelegate) GetBroadcasts(int, int) [][]byte        { return nil }
func (d *nodeDelegate) LocalState(join bool) []byte            { return nil }
func (d *nodeDelegate) MergeRemoteState(buf []byte, join bool) {}
