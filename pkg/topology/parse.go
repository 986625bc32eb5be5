package topology

import (
    "bufio"
    "fmt"
    "net"
    "strconv"
    "strings"
)

// ParseNodes parses the line-oriented node table a cluster member reports:
//
//   <id> <host:port> <flags> <master> <ping-sent> <pong-recv> <config-epoch> <link-state> <slot> <slot> ...
//
// Slot tokens are single numbers or inclusive ranges ("begin-end"); tokens
// in brackets describe slot migrations and are ignored. Empty lines are
// skipped. A structurally short line makes the whole table unparseable.
func ParseNodes(text string) (*View, error) {
    view := &View{}
    seen := make(map[string]struct{})
    s := bufio.NewScanner(strings.NewReader(text))
    for s.Scan() {
        line := strings.TrimSpace(s.Text())
        if line == "" { continue }
        n, err := parseLine(line)
        if err != nil {
            return nil, err
        }
        if _, dup := seen[n.ID]; dup {
            return nil, fmt.Errorf("topology: duplicate node id %q", n.ID)
        }
        seen[n.ID] = struct{}{}
        view.Nodes = append(view.Nodes, n)
    }
    if err := s.Err(); err != nil {
        return nil, fmt.Errorf("topology: scan node table: %w", err)
    }
    return view, nil
}

func parseLine(line string) (*Node, error) {
    fields := strings.Fields(line)
    if len(fields) < 8 {
        return nil, fmt.Errorf("topology: malformed node line %q", line)
    }
    n := &Node{ID: fields[0], Flags: make(Flags)}

    if ep, err := parseAddr(fields[1]); err == nil {
        n.Endpoint = ep
    }

    if fields[2] != string(FlagNoFlags) {
        for _, f := range strings.Split(fields[2], ",") {
            if f != "" { n.Flags.Add(Flag(f)) }
        }
    }

    if fields[3] != "-" {
        n.MasterID = fields[3]
    }
    n.PingSent, _ = strconv.ParseInt(fields[4], 10, 64)
    n.PongRecv, _ = strconv.ParseInt(fields[5], 10, 64)
    n.ConfigEpoch, _ = strconv.ParseInt(fields[6], 10, 64)
    n.Connected = fields[7] == "connected"

    for _, tok := range fields[8:] {
        // migration entries like [slot->-id] are transient state
        if strings.HasPrefix(tok, "[") { continue }
        slots, err := parseSlots(tok)
        if err != nil {
            return nil, err
        }
        n.Slots = append(n.Slots, slots...)
    }
    return n, nil
}

// parseAddr splits "host:port" (tolerating a trailing "@busport" suffix).
// Nodes without a known address report ":0"; those yield no endpoint.
func parseAddr(s string) (*Endpoint, error) {
    if i := strings.IndexByte(s, '@'); i >= 0 {
        s = s[:i]
    }
    host, portStr, err := net.SplitHostPort(s)
    if err != nil {
        return nil, err
    }
    if host == "" {
        return nil, fmt.Errorf("topology: node without address")
    }
    port, err := strconv.Atoi(portStr)
    if err != nil {
        return nil, err
    }
    return NewEndpoint(host, port), nil
}

func parseSlots(tok string) ([]int, error) {
    if begin, end, ok := strings.Cut(tok, "-"); ok {
        b, err := strconv.Atoi(begin)
        if err != nil {
            return nil, fmt.Errorf("topology: bad slot range %q", tok)
        }
        e, err := strconv.Atoi(end)
        if err != nil || e < b {
            return nil, fmt.Errorf("topology: bad slot range %q", tok)
        }
        out := make([]int, 0, e-b+1)
        for s := b; s <= e; s++ {
            out = append(out, s)
        }
        return out, nil
    }
    s, err := strconv.Atoi(tok)
    if err != nil {
        return nil, fmt.Errorf("topology: bad slot %q", tok)
    }
    return []int{s}, nil
}
