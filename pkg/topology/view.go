package topology

import (
    "sort"
    "time"
)

// View is one queried node's reported picture of the whole cluster. Node
// order is meaningful only after latency ranking.
type View struct {
    Nodes []*Node
}

// Size returns the number of nodes in the view.
func (v *View) Size() int {
    if v == nil { return 0 }
    return len(v.Nodes)
}

// ByID returns the node with the given identifier, or nil.
func (v *View) ByID(id string) *Node {
    if v == nil { return nil }
    for _, n := range v.Nodes {
        if n.ID == id { return n }
    }
    return nil
}

// Myself returns the node flagged MYSELF, or nil. That entry describes the
// very node that produced the view.
func (v *View) Myself() *Node {
    if v == nil { return nil }
    for _, n := range v.Nodes {
        if n.Flags.Has(FlagMyself) { return n }
    }
    return nil
}

// Latencies maps node id to the measured round-trip of the query answered
// by that node. Only the MYSELF node of each collected view is recorded;
// absence means the latency is unknown.
type Latencies map[string]time.Duration

// SortByLatency ranks nodes by measured latency: known latencies ascending
// first, nodes without a measurement after them. Relative order among
// unmeasured nodes is unspecified.
func SortByLatency(nodes []*Node, lat Latencies) {
    sort.Slice(nodes, func(i, j int) bool {
        li, iok := lat[nodes[i].ID]
        lj, jok := lat[nodes[j].ID]
        switch {
        case iok && jok:
            return li < lj
        case iok:
            return true
        default:
            return false
        }
    })
}

// Changed reports whether candidate differs from previous in a way that
// matters operationally: node count, node identity, MASTER or SLAVE flag
// presence, or slot ownership. All other fields and flags are ignored so
// that metadata churn does not trigger topology propagation.
func Changed(previous, candidate *View) bool {
    if previous.Size() != candidate.Size() {
        return true
    }
    byID := make(map[string]*Node, previous.Size())
    for _, n := range previous.Nodes {
        byID[n.ID] = n
    }
    for _, n := range candidate.Nodes {
        if !essentiallyEqual(n, byID[n.ID]) {
            return true
        }
    }
    return false
}

// essentiallyEqual checks the MASTER flag, the SLAVE flag and the slot set.
func essentiallyEqual(a, b *Node) bool {
    if b == nil {
        return false
    }
    if !sameFlag(a, b, FlagMaster) {
        return false
    }
    if !sameFlag(a, b, FlagSlave) {
        return false
    }
    return sameSlots(a.Slots, b.Slots)
}

func sameFlag(a, b *Node, f Flag) bool {
    return a.Flags.Has(f) == b.Flags.Has(f)
}

// sameSlots compares slot numbers as unordered sets.
func sameSlots(a, b []int) bool {
    set := make(map[int]struct{}, len(a))
    for _, s := range a {
        set[s] = struct{}{}
    }
    if len(set) != setSize(b) {
        return false
    }
    for _, s := range b {
        if _, ok := set[s]; !ok { return false }
    }
    return true
}

func setSize(slots []int) int {
    set := make(map[int]struct{}, len(slots))
    for _, s := range slots {
        set[s] = struct{}{}
    }
    return len(set)
}
