package core

import "errors"

var (
	// ErrHandleClosed is returned by Send on a handle that has left Connected.
	ErrHandleClosed = errors.New("connection handle closed")
	// ErrSlowConsumer is returned by Send when the handle's outbound queue is full.
	ErrSlowConsumer = errors.New("outbound queue full")
	// ErrHubClosed is returned by Attach once shutdown has started.
	ErrHubClosed = errors.New("hub is shut down")
)

// Eviction reasons, used as metric labels and close reasons.
const (
	ReasonSlowConsumer = "slow_consumer"
	ReasonClosed       = "closed"
	ReasonSendError    = "send_error"
	ReasonWriteFailed  = "write_failed"
	ReasonPingFailed   = "ping_failed"
	ReasonShutdown     = "server shutdown"
)

func evictionReason(err error) string {
	switch {
	case errors.Is(err, ErrSlowConsumer):
		return ReasonSlowConsumer
	case errors.Is(err, ErrHandleClosed):
		return ReasonClosed
	default:
		return ReasonSendError
	}
}
