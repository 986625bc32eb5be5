package metrics

import (
    "sync"

    "github.com/prometheus/client_golang/prometheus"
)

var (
    once sync.Once

    Refreshes = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "go_topology",
        Name:      "refreshes_total",
        Help:      "Total topology refresh invocations by result",
    }, []string{"result"})

    RefreshDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
        Namespace: "go_topology",
        Name:      "refresh_duration_seconds",
        Help:      "Wall time of one topology refresh invocation",
        Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
    })

    SeedsConnected = prometheus.NewGauge(prometheus.GaugeOpts{
        Namespace: "go_topology",
        Name:      "seeds_connected",
        Help:      "Seeds successfully connected in the last refresh",
    })

    ConnectFailures = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: "go_topology",
        Name:      "connect_failures_total",
        Help:      "Total seed connection failures",
    })

    QueryFailures = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: "go_topology",
        Name:      "query_failures_total",
        Help:      "Total per-seed query or parse failures",
    })

    ViewsCollected = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: "go_topology",
        Name:      "views_collected_total",
        Help:      "Total node views collected within budget",
    })

    TopologyChanges = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: "go_topology",
        Name:      "changes_total",
        Help:      "Total essential topology changes adopted by the manager",
    })
)

// Register registers metrics into the default Prometheus registry (idempotent).
func Register() {
    once.Do(func() {
        prometheus.MustRegister(Refreshes)
        prometheus.MustRegister(RefreshDuration)
        prometheus.MustRegister(SeedsConnected)
        prometheus.MustRegister(ConnectFailures)
        prometheus.MustRegister(QueryFailures)
        prometheus.MustRegister(ViewsCollected)
        prometheus.MustRegister(TopologyChanges)
    })
}
