package cli

import (
    "context"
    "fmt"
    "log"
    "os"
    "os/signal"
    "sort"
    "syscall"
    "time"

    "github.com/spf13/cobra"

    "github.com/clusterkit/go-topology/pkg/bootstrap"
    "github.com/clusterkit/go-topology/pkg/discovery"
    "github.com/clusterkit/go-topology/pkg/observability/metrics"
    tlsx "github.com/clusterkit/go-topology/pkg/security/tlsconfig"
    "github.com/clusterkit/go-topology/pkg/topology"
    tgrpc "github.com/clusterkit/go-topology/pkg/transport/grpc"
    thttp "github.com/clusterkit/go-topology/pkg/transport/httpjson"
)

// AddAll attaches topology subcommands (refresh/watch/serve) to the provided
// root command.
func AddAll(root *cobra.Command) {
    root.AddCommand(NewRefreshCmd())
    root.AddCommand(NewWatchCmd())
    root.AddCommand(NewServeCmd())
}

func configFlags(cmd *cobra.Command, cfg *bootstrap.Config) {
    cmd.Flags().StringVar(&cfg.Proto, "proto", "grpc", "query transport: grpc|http")
    cmd.Flags().DurationVar(&cfg.DialTimeout, "dial-timeout", 3*time.Second, "per-seed connect timeout")
    cmd.Flags().DurationVar(&cfg.Timeout, "timeout", 0, "shared wait budget per refresh (0 = per-seed timeout or 60s)")
    cmd.Flags().DurationVar(&cfg.SeedTimeout, "seed-timeout", 0, "per-endpoint command timeout stamped on seeds")
    cmd.Flags().StringVar(&cfg.DiscoveryKind, "discovery", "static", "discovery backend: static|dns|file|gossip")
    cmd.Flags().StringVar(&cfg.SeedsCSV, "seeds", "", "comma-separated seed addresses (host:port) — discovery=static")
    cmd.Flags().StringVar(&cfg.DNSNamesCSV, "dns-names", "", "comma-separated DNS names or SRV records (e.g., _topology._tcp.example.com)")
    cmd.Flags().IntVar(&cfg.DNSPort, "dns-port", 7379, "port used for A/AAAA lookups")
    cmd.Flags().DurationVar(&cfg.DiscRefresh, "disc-refresh", 5*time.Second, "discovery refresh/cache duration")
    cmd.Flags().StringVar(&cfg.FilePath, "file-path", "", "path or glob to a file with seeds (one per line or CSV)")
    cmd.Flags().StringVar(&cfg.FileEnv, "file-env", "", "ENV var name containing CSV seeds; overrides file when set")
    cmd.Flags().StringVar(&cfg.GossipBind, "gossip-bind", ":7946", "gossip bind addr (host:port) — discovery=gossip")
    cmd.Flags().StringVar(&cfg.GossipAdvertise, "gossip-adv", "", "gossip advertise addr (host:port, optional)")
    cmd.Flags().StringVar(&cfg.GossipJoinCSV, "gossip-join", "", "comma-separated gossip peers to join")
    cmd.Flags().StringVar(&cfg.GossipQueryAddr, "gossip-query-addr", "", "query endpoint advertised to gossip peers")
    cmd.Flags().BoolVar(&cfg.TLSEnable, "tls-enable", false, "enable TLS for the query transport")
    cmd.Flags().StringVar(&cfg.TLSCA, "tls-ca", "", "path to CA cert (PEM)")
    cmd.Flags().StringVar(&cfg.TLSCert, "tls-cert", "", "path to client certificate (PEM)")
    cmd.Flags().StringVar(&cfg.TLSKey, "tls-key", "", "path to client private key (PEM)")
    cmd.Flags().BoolVar(&cfg.TLSSkipVerify, "tls-skip-verify", false, "skip server cert verification (DEV ONLY)")
    cmd.Flags().StringVar(&cfg.TLSServerName, "tls-server-name", "", "expected server name (for TLS validation)")
    cmd.Flags().BoolVar(&cfg.Tracing, "trace", false, "enable OpenTelemetry stdout tracing (dev)")
}

// NewRefreshCmd returns the "refresh" command: one query round against the
// configured seeds, printing each answering seed's node table.
func NewRefreshCmd() *cobra.Command {
    var (
        cfg     bootstrap.Config
        cfgPath string
    )
    cmd := &cobra.Command{
        Use:   "refresh",
        Short: "Query seeds once and print their topology views",
        RunE: func(cmd *cobra.Command, args []string) error {
            if cfgPath != "" {
                loaded, err := bootstrap.LoadFile(cfgPath)
                if err != nil { return err }
                cfg = loaded
            }
            cfg.Logger = log.Default()
            ctx, cancel := signalContext()
            defer cancel()

            comp, err := bootstrap.Build(ctx, cfg)
            if err != nil { return err }
            defer comp.Close(context.Background())

            seeds := discovery.Resolve(comp.Discovery.Seeds(), cfg.SeedTimeout, cfg.Logger)
            if len(seeds) == 0 { return fmt.Errorf("no usable seeds") }

            views, err := comp.Refresher.LoadViews(ctx, seeds)
            if err != nil { return err }
            if len(views) == 0 { return fmt.Errorf("no seed answered") }

            ordered := make([]*topology.Endpoint, 0, len(views))
            for ep := range views { ordered = append(ordered, ep) }
            sort.Slice(ordered, func(i, j int) bool { return topology.CompareEndpoints(ordered[i], ordered[j]) < 0 })
            for _, ep := range ordered {
                fmt.Printf("# %s\n%s", ep, topology.FormatNodes(views[ep]))
            }
            return nil
        },
    }
    configFlags(cmd, &cfg)
    cmd.Flags().StringVar(&cfgPath, "config", "", "path to a config file (overrides other flags)")
    return cmd
}

// NewWatchCmd returns the "watch" command: periodic refresh, printing the
// adopted view whenever the essential topology changes.
func NewWatchCmd() *cobra.Command {
    var (
        cfg     bootstrap.Config
        cfgPath string
    )
    cmd := &cobra.Command{
        Use:   "watch",
        Short: "Refresh periodically and print adopted topology changes",
        RunE: func(cmd *cobra.Command, args []string) error {
            if cfgPath != "" {
                loaded, err := bootstrap.LoadFile(cfgPath)
                if err != nil { return err }
                cfg = loaded
            }
            cfg.Logger = log.Default()
            ctx, cancel := signalContext()
            defer cancel()

            comp, err := bootstrap.Build(ctx, cfg)
            if err != nil { return err }
            defer comp.Close(context.Background())

            go func() {
                for v := range comp.Manager.Updates() {
                    fmt.Printf("# topology changed: %d nodes\n%s", v.Size(), topology.FormatNodes(v))
                }
            }()
            err = comp.Manager.Run(ctx)
            if err == context.Canceled { return nil }
            return err
        },
    }
    configFlags(cmd, &cfg)
    cmd.Flags().DurationVar(&cfg.Interval, "interval", 30*time.Second, "refresh interval")
    cmd.Flags().StringVar(&cfgPath, "config", "", "path to a config file (overrides other flags)")
    return cmd
}

// NewServeCmd returns the "serve" command: expose a node table file over the
// query transport, mainly for demos and integration testing.
func NewServeCmd() *cobra.Command {
    var (
        bind, proto, tablePath                string
        tlsEnable, tlsSkip                    bool
        tlsCA, tlsCert, tlsKey, tlsServerName string
    )
    cmd := &cobra.Command{
        Use:   "serve",
        Short: "Serve a node table file over the query transport",
        RunE: func(cmd *cobra.Command, args []string) error {
            if tablePath == "" { return fmt.Errorf("missing --table") }
            ctx, cancel := signalContext()
            defer cancel()

            metrics.Register()
            nodes := func(ctx context.Context) (string, error) {
                data, err := os.ReadFile(tablePath)
                if err != nil { return "", err }
                // reject unparseable tables up front
                if _, err := topology.ParseNodes(string(data)); err != nil { return "", err }
                return string(data), nil
            }

            var srvTLS = tlsx.Options{Enable: tlsEnable, CAFile: tlsCA, CertFile: tlsCert, KeyFile: tlsKey, InsecureSkipVerify: tlsSkip, ServerName: tlsServerName}
            switch proto {
            case "grpc":
                s := tgrpc.NewServer(bind)
                if tlsEnable {
                    cfg, err := srvTLS.Server()
                    if err != nil { return err }
                    s.UseTLS(cfg)
                }
                if err := s.Start(ctx, nodes); err != nil { return err }
                defer s.Stop(context.Background())
                fmt.Printf("serving node table on %s (grpc). Press Ctrl+C to exit.\n", s.Addr())
            default:
                s := thttp.NewServer(bind, log.Default())
                if tlsEnable {
                    cfg, err := srvTLS.Server()
                    if err != nil { return err }
                    s.UseTLS(cfg)
                }
                if err := s.Start(ctx, nodes); err != nil { return err }
                defer s.Stop(context.Background())
                fmt.Printf("serving node table on %s (http). Press Ctrl+C to exit.\n", s.Addr())
            }
            <-ctx.Done()
            return nil
        },
    }
    cmd.Flags().StringVar(&bind, "bind", ":7379", "bind address (host:port)")
    cmd.Flags().StringVar(&proto, "proto", "grpc", "query transport: grpc|http")
    cmd.Flags().StringVar(&tablePath, "table", "", "path to a node table file (required)")
    cmd.Flags().BoolVar(&tlsEnable, "tls-enable", false, "enable TLS for the query transport")
    cmd.Flags().StringVar(&tlsCA, "tls-ca", "", "path to CA cert (PEM)")
    cmd.Flags().StringVar(&tlsCert, "tls-cert", "", "path to server certificate (PEM)")
    cmd.Flags().StringVar(&tlsKey, "tls-key", "", "path to server private key (PEM)")
    cmd.Flags().BoolVar(&tlsSkip, "tls-skip-verify", false, "skip client cert verification (DEV ONLY)")
    cmd.Flags().StringVar(&tlsServerName, "tls-server-name", "", "expected server name (for TLS validation)")
    return cmd
}

func signalContext() (context.Context, context.CancelFunc) {
    ctx, cancel := context.WithCancel(context.Background())
    go func() {
        ch := make(chan os.Signal, 1)
        signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
        <-ch
        cancel()
    }()
    return ctx, cancel
}
