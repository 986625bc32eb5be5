package topology

import (
    "testing"
    "time"
)

func node(id string, slots []int, flags ...Flag) *Node {
    n := &Node{ID: id, Flags: make(Flags), Slots: slots}
    for _, f := range flags {
        n.Flags.Add(f)
    }
    return n
}

func TestCompareEndpoints_Order(t *testing.T) {
    eps := []*Endpoint{
        NewEndpoint("b", 1),
        NewEndpoint("a", 2),
        NewEndpoint("a", 1),
    }
    SortEndpoints(eps)
    want := []string{"a:1", "a:2", "b:1"}
    for i, w := range want {
        if got := eps[i].HostPort(); got != w {
            t.Fatalf("position %d: got %s want %s", i, got, w)
        }
    }
}

func TestCompareEndpoints_NilSortsFirst(t *testing.T) {
    if CompareEndpoints(nil, NewEndpoint("a", 1)) >= 0 {
        t.Fatalf("nil endpoint must sort before any address")
    }
    if CompareEndpoints(nil, nil) != 0 {
        t.Fatalf("nil endpoints must compare equal")
    }
    if CompareEndpoints(NewEndpoint("A", 1), NewEndpoint("a", 1)) != 0 {
        t.Fatalf("comparison must be case-insensitive")
    }
}

func TestSortByLatency(t *testing.T) {
    nodes := []*Node{node("n1", nil), node("n2", nil), node("n3", nil)}
    lat := Latencies{"n1": 50 * time.Nanosecond, "n2": 10 * time.Nanosecond}
    SortByLatency(nodes, lat)
    if nodes[0].ID != "n2" || nodes[1].ID != "n1" || nodes[2].ID != "n3" {
        t.Fatalf("unexpected order: %s %s %s", nodes[0].ID, nodes[1].ID, nodes[2].ID)
    }
}

func TestChanged(t *testing.T) {
    base := func() *View {
        return &View{Nodes: []*Node{
            node("m1", []int{1, 2, 3}, FlagMaster, FlagMyself),
            node("s1", nil, FlagSlave),
        }}
    }

    if Changed(base(), base()) {
        t.Fatalf("identical views reported as changed")
    }

    // other flags and slot order must be ignored
    same := base()
    same.Nodes[0].Flags.Add(FlagFail)
    same.Nodes[0].Slots = []int{3, 1, 2}
    same.Nodes[0].PingSent = 99
    if Changed(base(), same) {
        t.Fatalf("non-operational churn reported as changed")
    }

    cases := []struct {
        name   string
        mutate func(v *View)
    }{
        {"node count", func(v *View) { v.Nodes = v.Nodes[:1] }},
        {"unknown id", func(v *View) { v.Nodes[1].ID = "s2" }},
        {"master flag", func(v *View) { delete(v.Nodes[0].Flags, FlagMaster) }},
        {"slave flag", func(v *View) { v.Nodes[1].Flags.Add(FlagMaster); delete(v.Nodes[1].Flags, FlagSlave) }},
        {"slot set", func(v *View) { v.Nodes[0].Slots = []int{1, 2, 4} }},
        {"slot count", func(v *View) { v.Nodes[0].Slots = []int{1, 2} }},
    }
    for _, c := range cases {
        v := base()
        c.mutate(v)
        if !Changed(base(), v) {
            t.Fatalf("%s: change not detected", c.name)
        }
    }
}

func TestMyself(t *testing.T) {
    v := &View{Nodes: []*Node{node("a", nil, FlagSlave), node("b", nil, FlagMaster, FlagMyself)}}
    if m := v.Myself(); m == nil || m.ID != "b" {
        t.Fatalf("Myself = %v, want b", m)
    }
    if (&View{}).Myself() != nil {
        t.Fatalf("empty view must have no myself node")
    }
}
