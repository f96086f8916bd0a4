package queue

import (
	"context"

	"github.com/vstream/video-platform-back/internal/domain"
)

// Notifier publishes "job ready" wake events. Events are hints: the
// repository's atomic claim is the source of truth, so delivery may be
// lossy or duplicated without affecting correctness.
type Notifier interface {
	Publish(ctx context.Context, event domain.WakeEvent) error
}

// Waiter blocks until a wake event arrives or the timeout elapses.
// Implementations return (event, true) on a wake and (zero, false) on
// timeout; both outcomes tell the worker to attempt a claim.
type Waiter interface {
	Wait(ctx context.Context) (domain.WakeEvent, bool, error)
}
