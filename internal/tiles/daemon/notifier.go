package daemon

import (
	"sync"
	"time"
)

// Event is the payload-free change signal.
type Event int

const (
	// Invalidate tells the subscriber its view of the collection is stale.
	Invalidate Event = iota
)

// String returns a human-readable representation of the event.
func (e Event) String() string {
	switch e {
	case Invalidate:
		return "invalidate"
	default:
		return "unknown"
	}
}

// Listener receives change events.
type Listener func(Event)

// Notifier fans change events out to subscribers with debouncing.
type Notifier struct {
	debounce time.Duration

	mu        sync.Mutex
	listeners map[uint64]Listener
	nextID    uint64
	timer     *time.Timer
	closed    bool
}

// NewNotifier creates a notifier that coalesces events published within
// debounce of each other. A zero debounce still delivers asynchronously.
func NewNotifier(debounce time.Duration) *Notifier {
	if debounce < 0 {
		debounce = 0
	}
	return &Notifier{
		debounce:  debounce,
		listeners: make(map[uint64]Listener),
	}
}

// Subscribe registers fn and returns a function that removes it.
// The returned function is safe to call more than once.
func (n *Notifier) Subscribe(fn Listener) (unsubscribe func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return func() {}
	}

	id := n.nextID
	n.nextID++
	n.listeners[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.listeners, id)
			n.mu.Unlock()
		})
	}
}

// Publish schedules an Invalidate delivery. Calls made while a delivery is
// already pending are absorbed into it.
func (n *Notifier) Publish() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed || n.timer != nil {
		return
	}
	n.timer = time.AfterFunc(n.debounce, n.fire)
}

// fire delivers one Invalidate to every current listener.
func (n *Notifier) fire() {
	n.mu.Lock()
	n.timer = nil
	if n.closed {
		n.mu.Unlock()
		return
	}
	listeners := make([]Listener, 0, len(n.listeners))
	for _, fn := range n.listeners {
		listeners = append(listeners, fn)
	}
	n.mu.Unlock()

	for _, fn := range listeners {
		fn(Invalidate)
	}
}

// SubscriberCount returns the number of registered listeners.
func (n *Notifier) SubscriberCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.listeners)
}

// Close drops all listeners and cancels any pending delivery.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.closed = true
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
	n.listeners = make(map[uint64]Listener)
}
