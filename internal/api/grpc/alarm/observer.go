package alarm

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/oshokin/alarm-core/internal/notifier"
)

// errObserverBehind is returned when a stream did not keep up and a payload was dropped.
var errObserverBehind = errors.New("observer buffer is full, payload dropped")

// streamObserver buffers payloads for one Watch stream.
type streamObserver struct {
	id       string
	payloads chan *notifier.Payload
}

func newStreamObserver(buffer int) *streamObserver {
	return &streamObserver{
		id:       uuid.NewString(),
		payloads: make(chan *notifier.Payload, buffer),
	}
}

// ID returns the unique id of the stream.
func (o *streamObserver) ID() string {
	return o.id
}

// Receive queues payload without blocking.
func (o *streamObserver) Receive(ctx context.Context, payload *notifier.Payload) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case o.payloads <- payload:
		return nil
	default:
		return errObserverBehind
	}
}
