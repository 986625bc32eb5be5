package refresh

import "errors"

var (
    // ErrInterrupted reports that the calling context was cancelled while
    // awaiting node views. No partial result is returned in that case.
    ErrInterrupted = errors.New("refresh: interrupted")

    // ErrNilConnector is returned by Options.Validate.
    ErrNilConnector = errors.New("refresh: nil Connector")
)
