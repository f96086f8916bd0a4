package queue

import (
	"context"
	"time"

	"github.com/vstream/video-platform-back/internal/domain"
)

// LocalNotifier is an in-process wake channel used when Redis is not
// configured. Publish never blocks: when the buffer is full the event is
// dropped, which only means workers fall back to their poll interval.
type LocalNotifier struct {
	ch           chan domain.WakeEvent
	pollInterval time.Duration
}

func NewLocalNotifier(bufferSize int, pollInterval time.Duration) *LocalNotifier {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &LocalNotifier{
		ch:           make(chan domain.WakeEvent, bufferSize),
		pollInterval: pollInterval,
	}
}

func (n *LocalNotifier) Publish(ctx context.Context, event domain.WakeEvent) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case n.ch <- event:
		return nil
	default:
		return nil
	}
}

func (n *LocalNotifier) Wait(ctx context.Context) (domain.WakeEvent, bool, error) {
	timer := time.NewTimer(n.pollInterval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return domain.WakeEvent{}, false, ctx.Err()
	case event := <-n.ch:
		return event, true, nil
	case <-timer.C:
		return domain.WakeEvent{}, false, nil
	}
}
