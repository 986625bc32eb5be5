package discovery

import (
    "log"
    "net"
    "strconv"
    "time"

    "github.com/clusterkit/go-topology/pkg/internal/logutil"
    "github.com/clusterkit/go-topology/pkg/topology"
)

// Discovery abstracts how seed addresses are provided.
// Implementations include static, DNS, file and gossip sources.
type Discovery interface {
    Seeds() []string
}

// Resolve turns "host:port" seed strings into endpoints carrying a resolved
// TCP address and the given command timeout. Seeds that cannot be split or
// resolved yield an endpoint with a nil address, which the seed connector
// treats as unreachable and skips; the cause is logged at reduced severity.
// The result is in canonical endpoint order.
func Resolve(seeds []string, timeout time.Duration, logger *log.Logger) []*topology.Endpoint {
    out := make([]*topology.Endpoint, 0, len(seeds))
    for _, s := range seeds {
        host, portStr, err := net.SplitHostPort(s)
        if err != nil {
            logutil.Warnf(logger, "discovery: bad seed %q: %v", s, err)
            continue
        }
        port, err := strconv.Atoi(portStr)
        if err != nil || port < 0 || port > 65535 {
            logutil.Warnf(logger, "discovery: bad seed port %q", s)
            continue
        }
        ep := topology.NewEndpoint(host, port)
        ep.Timeout = timeout
        if err := ep.Resolve(); err != nil {
            logutil.Warnf(logger, "discovery: %v", err)
        }
        out = append(out, ep)
    }
    topology.SortEndpoints(out)
    return out
}
