// Package waker is a single-slot-per-runner waker registry: the async
// plumbing a parked scheduler loop uses to find out "something happened,
// recheck your queues". It deliberately does not carry a payload — the
// ready queue, death-report queue, and similar structures are the source
// of truth; the waker only says "go look again".
package waker

// Registry is a set of parked runners, each represented by a buffered
// 1-capacity channel. NotifyOne wakes at most one of them; if none are
// parked the notification is simply dropped, because the condition that
// would have woken a runner is still visible the next time one parks and
// checks its queue.
type Registry struct {
	slots chan chan struct{}
}

// NewRegistry creates a Registry that can hold up to capacity concurrently
// parked runners without blocking Park.
func NewRegistry(capacity int) *Registry {
	return &Registry{slots: make(chan chan struct{}, capacity)}
}

// Park registers the calling goroutine as waiting and returns a channel
// that receives exactly one value once NotifyOne wakes it. The caller must
// have already rechecked its condition (under whatever lock guards it)
// immediately before calling Park, to avoid the lost-wakeup race.
func (r *Registry) Park() chan struct{} {
	ch := make(chan struct{}, 1)
	r.slots <- ch
	return ch
}

// Cancel removes a previously Park'd channel if it is still waiting
// (the owning context was cancelled before any NotifyOne reached it).
// It is a no-op if the channel was already woken or already removed.
func (r *Registry) Cancel(ch chan struct{}) {
	// Drain slots looking for ch, putting back everything else. This is
	// O(parked) but parking only happens on the single suspension point
	// in the scheduler loop (spec §5), so the slice is always small.
	pending := make([]chan struct{}, 0, len(r.slots))
	for {
		select {
		case c := <-r.slots:
			if c == ch {
				continue
			}
			pending = append(pending, c)
		default:
			for _, c := range pending {
				r.slots <- c
			}
			return
		}
	}
}

// NotifyOne wakes at most one parked runner. Safe to call with no runner
// parked (the notification is simply dropped).
func (r *Registry) NotifyOne() {
	select {
	case ch := <-r.slots:
		select {
		case ch <- struct{}{}:
		default:
		}
	default:
	}
}
