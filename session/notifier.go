package session

import (
	"sync"

	"github.com/google/uuid"
)

// notifier fans state snapshots out to channel subscribers and synchronous
// observers. Channel delivery never blocks the publisher: each subscriber
// holds at most one pending snapshot and a newer one replaces it.
type notifier struct {
	mu        sync.RWMutex
	subs      map[string]chan State
	observers []observer
	closed    bool
}

type observer struct {
	id string
	fn func(State)
}

func newNotifier() *notifier {
	return &notifier{subs: make(map[string]chan State)}
}

func (n *notifier) publish(s State) {
	n.mu.RLock()
	if n.closed {
		n.mu.RUnlock()
		return
	}
	for _, ch := range n.subs {
		offer(ch, s.clone())
	}
	obs := append([]observer(nil), n.observers...)
	n.mu.RUnlock()

	for _, o := range obs {
		o.fn(s.clone())
	}
}

func offer(ch chan State, s State) {
	select {
	case ch <- s:
		return
	default:
	}
	// Drop the stale pending snapshot.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- s:
	default:
	}
}

func (n *notifier) subscribe() (<-chan State, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		ch := make(chan State)
		close(ch)
		return ch, func() {}
	}

	id := uuid.NewString()
	ch := make(chan State, 1)
	n.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			if c, ok := n.subs[id]; ok {
				delete(n.subs, id)
				close(c)
			}
		})
	}
}

func (n *notifier) observe(fn func(State)) func() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return func() {}
	}
	id := uuid.NewString()
	n.observers = append(n.observers, observer{id: id, fn: fn})

	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		for i, o := range n.observers {
			if o.id == id {
				n.observers = append(n.observers[:i:i], n.observers[i+1:]...)
				return
			}
		}
	}
}

func (n *notifier) close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	subs := n.subs
	n.subs = nil
	n.observers = nil
	n.mu.Unlock()

	for _, ch := range subs {
		close(ch)
	}
}
