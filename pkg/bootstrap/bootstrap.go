package bootstrap

import (
    "context"
    "crypto/tls"
    "fmt"
    "log"
    "strings"
    "time"

    "github.com/spf13/viper"

    "github.com/clusterkit/go-topology/pkg/discovery"
    dDNS "github.com/clusterkit/go-topology/pkg/discovery/dns"
    dFile "github.com/clusterkit/go-topology/pkg/discovery/file"
    dGossip "github.com/clusterkit/go-topology/pkg/discovery/gossip"
    dStatic "github.com/clusterkit/go-topology/pkg/discovery/static"
    "github.com/clusterkit/go-topology/pkg/observability/tracing"
    "github.com/clusterkit/go-topology/pkg/refresh"
    tlsx "github.com/clusterkit/go-topology/pkg/security/tlsconfig"
    "github.com/clusterkit/go-topology/pkg/transport"
    tgrpc "github.com/clusterkit/go-topology/pkg/transport/grpc"
    thttp "github.com/clusterkit/go-topology/pkg/transport/httpjson"
)

// Config defines high-level inputs to assemble a topology refresher with
// sensible defaults. Applications embed the refresher by providing this
// structure and calling Build.
type Config struct {
    // Transport selection: "grpc" (default) or "http".
    Proto       string        `mapstructure:"proto"`
    DialTimeout time.Duration `mapstructure:"dial_timeout"`

    // Refresh tuning.
    Timeout     time.Duration `mapstructure:"timeout"`      // shared wait budget per invocation
    Interval    time.Duration `mapstructure:"interval"`     // manager refresh interval
    SeedTimeout time.Duration `mapstructure:"seed_timeout"` // per-endpoint timeout stamped on seeds

    // Discovery settings.
    DiscoveryKind string        `mapstructure:"discovery"` // "static" (default), "dns", "file", or "gossip"
    SeedsCSV      string        `mapstructure:"seeds"`     // used when kind=static
    DNSNamesCSV   string        `mapstructure:"dns_names"` // used when kind=dns
    DNSPort       int           `mapstructure:"dns_port"`  // used when kind=dns (A/AAAA)
    DiscRefresh   time.Duration `mapstructure:"disc_refresh"`
    FilePath      string        `mapstructure:"file_path"` // used when kind=file
    FileEnv       string        `mapstructure:"file_env"`  // used when kind=file

    // Gossip settings (kind=gossip).
    GossipBind      string `mapstructure:"gossip_bind"`
    GossipAdvertise string `mapstructure:"gossip_advertise"`
    GossipJoinCSV   string `mapstructure:"gossip_join"`
    GossipQueryAddr string `mapstructure:"gossip_query_addr"`

    // TLS (optional) for the query transport.
    TLSEnable     bool   `mapstructure:"tls_enable"`
    TLSCA         string `mapstructure:"tls_ca"`
    TLSCert       string `mapstructure:"tls_cert"`
    TLSKey        string `mapstructure:"tls_key"`
    TLSServerName string `mapstructure:"tls_server_name"`
    TLSSkipVerify bool   `mapstructure:"tls_skip_verify"`

    // Tracing enables the stdout span exporter.
    Tracing bool `mapstructure:"tracing"`

    // Logger (optional). If nil, log.Default() is used.
    Logger *log.Logger `mapstructure:"-"`
}

// Components holds the assembled pieces. Close releases what Build started.
type Components struct {
    Refresher *refresh.Refresher
    Manager   *refresh.Manager
    Discovery discovery.Discovery

    // Gossip is non-nil when discovery=gossip; its lifecycle is bound to
    // the ctx passed to Build.
    Gossip *dGossip.Source

    shutdownTracing func(context.Context) error
}

// Close stops background components started by Build.
func (c *Components) Close(ctx context.Context) error {
    var first error
    if c.Gossip != nil {
        if err := c.Gossip.Stop(); err != nil && first == nil {
            first = err
        }
    }
    if c.shutdownTracing != nil {
        if err := c.shutdownTracing(ctx); err != nil && first == nil {
            first = err
        }
    }
    return first
}

// Build assembles a refresher and manager from Config without starting
// periodic refreshing; call Components.Manager.Run for that.
func Build(ctx context.Context, cfg Config) (*Components, error) {
    if cfg.Logger == nil {
        cfg.Logger = log.Default()
    }

    shutdown, err := tracing.Setup(cfg.Tracing)
    if err != nil {
        return nil, err
    }

    var clientTLS *tls.Config
    if cfg.TLSEnable {
        topts := tlsx.Options{
            Enable:             true,
            CAFile:             cfg.TLSCA,
            CertFile:           cfg.TLSCert,
            KeyFile:            cfg.TLSKey,
            InsecureSkipVerify: cfg.TLSSkipVerify,
            ServerName:         cfg.TLSServerName,
        }
        clientTLS, err = topts.Client()
        if err != nil {
            return nil, err
        }
    }

    var conn transport.Connector
    switch strings.ToLower(cfg.Proto) {
    case "", "grpc":
        c := tgrpc.NewConnector(cfg.DialTimeout)
        if clientTLS != nil {
            c.UseTLS(clientTLS)
        }
        conn = c
    case "http":
        c := thttp.NewConnector(cfg.DialTimeout)
        if clientTLS != nil {
            c.UseTLS(clientTLS)
        }
        conn = c
    default:
        return nil, fmt.Errorf("bootstrap: unknown proto %q", cfg.Proto)
    }

    comp := &Components{shutdownTracing: shutdown}

    switch cfg.DiscoveryKind {
    case "dns":
        opts := dDNS.Options{Names: dStatic.Parse(cfg.DNSNamesCSV), Port: cfg.DNSPort, Logger: cfg.Logger}
        if cfg.DiscRefresh > 0 {
            opts.Refresh = cfg.DiscRefresh
        }
        comp.Discovery = dDNS.New(opts)
    case "file":
        opts := dFile.Options{Path: cfg.FilePath, Env: cfg.FileEnv}
        if cfg.DiscRefresh > 0 {
            opts.Refresh = cfg.DiscRefresh
        }
        comp.Discovery = dFile.New(opts)
    case "gossip":
        src, err := dGossip.New(dGossip.Options{
            Bind:      cfg.GossipBind,
            Advertise: cfg.GossipAdvertise,
            QueryAddr: cfg.GossipQueryAddr,
            Join:      dStatic.Parse(cfg.GossipJoinCSV),
            Logger:    cfg.Logger,
        })
        if err != nil {
            return nil, err
        }
        if err := src.Start(ctx); err != nil {
            return nil, err
        }
        comp.Gossip = src
        comp.Discovery = src
    case "", "static":
        comp.Discovery = dStatic.New(dStatic.Parse(cfg.SeedsCSV)...)
    default:
        return nil, fmt.Errorf("bootstrap: unknown discovery kind %q", cfg.DiscoveryKind)
    }

    comp.Refresher, err = refresh.New(refresh.Options{Connector: conn, Timeout: cfg.Timeout, Logger: cfg.Logger})
    if err != nil {
        return nil, err
    }
    comp.Manager, err = refresh.NewManager(refresh.ManagerOptions{
        Refresher:   comp.Refresher,
        Discovery:   comp.Discovery,
        Interval:    cfg.Interval,
        SeedTimeout: cfg.SeedTimeout,
        Logger:      cfg.Logger,
    })
    if err != nil {
        return nil, err
    }
    return comp, nil
}

// LoadFile reads Config from a YAML/TOML/JSON file, with TOPOLOGY_* env
// variables overriding file values.
func LoadFile(path string) (Config, error) {
    v := viper.New()
    v.SetConfigFile(path)
    v.SetEnvPrefix("TOPOLOGY")
    v.AutomaticEnv()
    v.SetDefault("proto", "grpc")
    v.SetDefault("discovery", "static")
    if err := v.ReadInConfig(); err != nil {
        return Config{}, fmt.Errorf("bootstrap: read config %s: %w", path, err)
    }
    var cfg Config
    if err := v.Unmarshal(&cfg); err != nil {
        return Config{}, fmt.Errorf("bootstrap: parse config %s: %w", path, err)
    }
    return cfg, nil
}
