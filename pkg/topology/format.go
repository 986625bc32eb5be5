package topology

import (
    "fmt"
    "sort"
    "strings"
)

// FormatNodes renders a view back into node-table text, the inverse of
// ParseNodes. Servers use it to publish their local view; tests use it to
// build fixtures. Contiguous slots are collapsed into ranges.
func FormatNodes(v *View) string {
    var b strings.Builder
    for _, n := range v.Nodes {
        addr := ":0"
        if n.Endpoint != nil {
            addr = fmt.Sprintf("%s:%d", n.Endpoint.Host, n.Endpoint.Port)
        }
        master := n.MasterID
        if master == "" { master = "-" }
        link := "disconnected"
        if n.Connected { link = "connected" }
        fmt.Fprintf(&b, "%s %s %s %s %d %d %d %s", n.ID, addr, formatFlags(n.Flags), master, n.PingSent, n.PongRecv, n.ConfigEpoch, link)
        for _, r := range slotRanges(n.Slots) {
            b.WriteByte(' ')
            b.WriteString(r)
        }
        b.WriteByte('\n')
    }
    return b.String()
}

func formatFlags(f Flags) string {
    if len(f) == 0 {
        return string(FlagNoFlags)
    }
    out := make([]string, 0, len(f))
    // myself leads when present, matching how members report themselves
    if f.Has(FlagMyself) { out = append(out, string(FlagMyself)) }
    rest := make([]string, 0, len(f))
    for flag := range f {
        if flag == FlagMyself { continue }
        rest = append(rest, string(flag))
    }
    sort.Strings(rest)
    return strings.Join(append(out, rest...), ",")
}

func slotRanges(slots []int) []string {
    if len(slots) == 0 { return nil }
    sorted := append([]int(nil), slots...)
    sort.Ints(sorted)
    var out []string
    begin, prev := sorted[0], sorted[0]
    flush := func() {
        if begin == prev {
            out = append(out, fmt.Sprintf("%d", begin))
        } else {
            out = append(out, fmt.Sprintf("%d-%d", begin, prev))
        }
    }
    for _, s := range sorted[1:] {
        if s == prev || s == prev+1 {
            if s == prev+1 { prev = s }
            continue
        }
        flush()
        begin, prev = s, s
    }
    flush()
    return out
}
