package transport

import "context"

// CmdClusterNodes is the fixed subcommand sent to every seed; the reply is
// the raw line-oriented node table.
const CmdClusterNodes = "NODES"

// Connector opens a connection to a single cluster member. Implementations
// exist for the gRPC and HTTP/JSON management protocols.
type Connector interface {
    // Open establishes a connection to addr ("host:port"). The returned
    // connection belongs to the caller, which must close it.
    Open(ctx context.Context, addr string) (Conn, error)
}

// Conn is one open connection to a cluster member.
type Conn interface {
    // Dispatch sends cmd without waiting for the reply and returns
    // immediately; cmd completes or fails asynchronously.
    Dispatch(cmd *TimedCommand)

    Close() error
}
