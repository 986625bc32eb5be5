package refresh

import (
    "context"
    "testing"
    "time"

    "github.com/clusterkit/go-topology/pkg/discovery/static"
)

func TestBudgetFallback(t *testing.T) {
    r := newRefresher(t, &fakeConnector{}, 0, nil)

    if got := r.budget(nil); got != defaultTimeout {
        t.Fatalf("empty fallback: got %v want %v", got, defaultTimeout)
    }

    ep := seed(t, "a.example", 7000)
    ep.Timeout = 5 * time.Second
    if got := r.budget([]*query{{ep: ep}}); got != 5*time.Second {
        t.Fatalf("seed timeout fallback: got %v", got)
    }

    r2 := newRefresher(t, &fakeConnector{}, 2*time.Second, nil)
    if got := r2.budget([]*query{{ep: ep}}); got != 2*time.Second {
        t.Fatalf("explicit timeout wins: got %v", got)
    }
}

func TestManager_AdoptsAndNotifiesOnChange(t *testing.T) {
    table1 := nodeTable(
        "n1 127.0.0.1:7000 myself,master - 0 0 1 connected 0-16383",
    )
    table2 := nodeTable(
        "n1 127.0.0.1:7000 myself,master - 0 0 1 connected 0-8191",
        "n2 127.0.0.2:7000 master - 0 0 2 connected 8192-16383",
    )

    conn := &fakeConn{reply: table1}
    fc := &fakeConnector{conns: map[string]*fakeConn{"127.0.0.1:7000": conn}}
    r := newRefresher(t, fc, time.Second, nil)

    m, err := NewManager(ManagerOptions{
        Refresher: r,
        Discovery: static.New("127.0.0.1:7000"),
        Interval:  time.Hour,
    })
    if err != nil {
        t.Fatalf("new manager: %v", err)
    }
    if m.Current() != nil {
        t.Fatalf("expected no view before first refresh")
    }

    m.RefreshNow(context.Background())
    v1 := m.Current()
    if v1 == nil || v1.Size() != 1 {
        t.Fatalf("expected adopted 1-node view, got %v", v1)
    }
    select {
    case got := <-m.Updates():
        if got != v1 {
            t.Fatalf("update does not match adopted view")
        }
    default:
        t.Fatalf("expected an update after first adoption")
    }

    // Same essential topology: no new adoption, no update.
    m.RefreshNow(context.Background())
    select {
    case <-m.Updates():
        t.Fatalf("unexpected update for unchanged topology")
    default:
    }

    // Slot layout changed: adopt and notify.
    conn.mu.Lock()
    conn.reply = table2
    conn.closed = false
    conn.mu.Unlock()
    m.RefreshNow(context.Background())
    v2 := m.Current()
    if v2 == nil || v2.Size() != 2 {
        t.Fatalf("expected adopted 2-node view, got %v", v2)
    }
    select {
    case got := <-m.Updates():
        if got != v2 {
            t.Fatalf("update does not match new view")
        }
    default:
        t.Fatalf("expected an update after topology change")
    }
}

func TestManager_NoSeedsKeepsCurrent(t *testing.T) {
    r := newRefresher(t, &fakeConnector{}, time.Second, nil)
    m, err := NewManager(ManagerOptions{Refresher: r, Discovery: static.New()})
    if err != nil {
        t.Fatalf("new manager: %v", err)
    }
    m.RefreshNow(context.Background())
    if m.Current() != nil {
        t.Fatalf("expected nil view when no seeds are usable")
    }
}

func TestManager_Run_StopsOnCancel(t *testing.T) {
    table := nodeTable("n1 127.0.0.1:7000 myself,master - 0 0 1 connected 0-16383")
    fc := &fakeConnector{conns: map[string]*fakeConn{"127.0.0.1:7000": {reply: table}}}
    r := newRefresher(t, fc, time.Second, nil)
    m, err := NewManager(ManagerOptions{
        Refresher: r,
        Discovery: static.New("127.0.0.1:7000"),
        Interval:  10 * time.Millisecond,
    })
    if err != nil {
        t.Fatalf("new manager: %v", err)
    }

    ctx, cancel := context.WithCancel(context.Background())
    done := make(chan error, 1)
    go func() { done <- m.Run(ctx) }()

    deadline := time.Now().Add(2 * time.Second)
    for m.Current() == nil {
        if time.Now().After(deadline) {
            t.Fatalf("manager never adopted a view")
        }
        time.Sleep(5 * time.Millisecond)
    }
    cancel()
    select {
    case err := <-done:
        if err != context.Canceled {
            t.Fatalf("unexpected run error: %v", err)
        }
    case <-time.After(2 * time.Second):
        t.Fatalf("run did not stop on cancel")
    }
}
