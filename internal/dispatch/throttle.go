// internal/dispatch/throttle.go
package dispatch

import (
	"time"

	"github.com/mferraretto/chatshopee22/internal/types"
)

// Throttle enforces one automated reply per conversation key per window.
// It is owned and mutated by the engine's single driving goroutine, so it
// carries no lock.
type Throttle struct {
	window time.Duration
	last   map[types.ConversationKey]time.Time
	now    func() time.Time
}

func NewThrottle(window time.Duration) *Throttle {
	return &Throttle{
		window: window,
		last:   make(map[types.ConversationKey]time.Time),
		now:    time.Now,
	}
}

// Allow reports whether a reply to key is outside the cool-down window.
func (t *Throttle) Allow(key types.ConversationKey) bool {
	at, ok := t.last[key]
	if !ok {
		return true
	}
	return t.now().Sub(at) >= t.window
}

// MarkReplied records a confirmed send. It is deliberately not called on
// failed sends, so a broken input is retried on the next cycle.
func (t *Throttle) MarkReplied(key types.ConversationKey) {
	t.last[key] = t.now()
}
