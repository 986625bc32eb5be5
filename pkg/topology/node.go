package topology

// Flag is a role or state marker reported for a node in a cluster view.
type Flag string

const (
    FlagMyself    Flag = "myself"
    FlagMaster    Flag = "master"
    FlagSlave     Flag = "slave"
    FlagFail      Flag = "fail"
    FlagPFail     Flag = "fail?"
    FlagHandshake Flag = "handshake"
    FlagNoAddr    Flag = "noaddr"
    FlagNoFlags   Flag = "noflags"
)

// Flags is a set of node flags. Only MASTER and SLAVE participate in change
// detection; the rest are carried for diagnostics.
type Flags map[Flag]struct{}

func (f Flags) Has(flag Flag) bool {
    _, ok := f[flag]
    return ok
}

func (f Flags) Add(flag Flag) { f[flag] = struct{}{} }

// Node is one member's identity, role flags and owned slot set as reported
// within a single view. IDs are unique within one view.
type Node struct {
    // ID is the cluster-wide node identifier.
    ID string

    // Endpoint is the address the node is reachable at. For the MYSELF node
    // of a collected view it is overwritten with the endpoint queried.
    Endpoint *Endpoint

    // MasterID is the replication source for replicas, empty for masters.
    MasterID string

    Flags Flags

    // Slots are the hash slots this node serves.
    Slots []int

    // Bookkeeping fields from the node table, ignored by comparisons.
    PingSent    int64
    PongRecv    int64
    ConfigEpoch int64
    Connected   bool
}

// IsMaster reports whether the node carries the MASTER flag.
func (n *Node) IsMaster() bool { return n.Flags.Has(FlagMaster) }

// IsSlave reports whether the node carries the SLAVE flag.
func (n *Node) IsSlave() bool { return n.Flags.Has(FlagSlave) }
