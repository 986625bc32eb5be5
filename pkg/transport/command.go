package transport

import (
    "context"
    "sync"
    "time"
)

// unknownNs marks an unset timestamp.
const unknownNs = int64(-1)

// TimedCommand is one in-flight topology query. It records the time the
// request was encoded onto the wire and the time the reply completed it,
// so the round-trip of the most recent cycle can be derived.
type TimedCommand struct {
    name string

    mu          sync.Mutex
    encodedNs   int64
    completedNs int64
    reply       string
    err         error

    done chan struct{}
}

// NewTimedCommand creates a command with both timestamps unknown.
func NewTimedCommand(name string) *TimedCommand {
    return &TimedCommand{
        name:        name,
        encodedNs:   unknownNs,
        completedNs: unknownNs,
        done:        make(chan struct{}),
    }
}

// Name returns the subcommand this command carries.
func (c *TimedCommand) Name() string { return c.name }

// MarkEncoded records the encode event. Both timestamps reset to unknown
// before the new encode stamp, so a re-encoded (retransmitted) command
// reports the duration of its most recent cycle only.
func (c *TimedCommand) MarkEncoded() {
    c.mu.Lock()
    c.completedNs = unknownNs
    c.encodedNs = unknownNs
    c.encodedNs = time.Now().UnixNano()
    c.mu.Unlock()
}

// Complete stores the reply, stamps the completion time and releases
// waiters. A re-encoded command may complete again; the stamp then closes
// the most recent cycle.
func (c *TimedCommand) Complete(reply string) {
    c.mu.Lock()
    defer c.mu.Unlock()
    c.completedNs = time.Now().UnixNano()
    c.reply = reply
    select {
    case <-c.done:
    default:
        close(c.done)
    }
}

// Fail completes the command with an execution error.
func (c *TimedCommand) Fail(err error) {
    c.mu.Lock()
    defer c.mu.Unlock()
    c.err = err
    select {
    case <-c.done:
    default:
        close(c.done)
    }
}

// Await blocks until the command completes, the timeout elapses or ctx is
// cancelled. It reports whether the command completed; a ctx error is the
// fatal interruption path and is returned as-is.
func (c *TimedCommand) Await(ctx context.Context, timeout time.Duration) (bool, error) {
    timer := time.NewTimer(timeout)
    defer timer.Stop()
    select {
    case <-c.done:
        return true, nil
    case <-timer.C:
        return false, nil
    case <-ctx.Done():
        return false, ctx.Err()
    }
}

// Result returns the reply of a completed command, or its execution error.
func (c *TimedCommand) Result() (string, error) {
    c.mu.Lock()
    defer c.mu.Unlock()
    return c.reply, c.err
}

// Duration returns the encode-to-completion round-trip of the most recent
// cycle. ok is false while either boundary is unknown.
func (c *TimedCommand) Duration() (time.Duration, bool) {
    c.mu.Lock()
    defer c.mu.Unlock()
    if c.encodedNs == unknownNs || c.completedNs == unknownNs {
        return 0, false
    }
    return time.Duration(c.completedNs - c.encodedNs), true
}
