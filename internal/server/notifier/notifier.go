// Package notifier fans events out to subscribers of the query server's
// event stream.
package notifier

import "sync"

// Notifier broadcasts events of type T to all subscribed listeners. Each
// listener buffers a single event; a listener that has not drained its
// channel sees the newest event only.
type Notifier[T any] struct {
	mu        sync.Mutex
	listeners map[chan T]struct{}
}

// New creates a Notifier with no listeners.
func New[T any]() *Notifier[T] {
	return &Notifier[T]{
		listeners: make(map[chan T]struct{}),
	}
}

// Subscribe returns a channel that receives broadcast events.
// The caller must call Unsubscribe when done.
func (n *Notifier[T]) Subscribe() chan T {
	ch := make(chan T, 1)
	n.mu.Lock()
	n.listeners[ch] = struct{}{}
	n.mu.Unlock()
	return ch
}

// Unsubscribe removes a listener channel and closes it. Unknown channels
// are ignored.
func (n *Notifier[T]) Unsubscribe(ch chan T) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.listeners[ch]; !ok {
		return
	}
	delete(n.listeners, ch)
	close(ch)
}

// Broadcast delivers ev to every listener without blocking. A pending
// event a listener has not read yet is replaced.
func (n *Notifier[T]) Broadcast(ev T) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for ch := range n.listeners {
		select {
		case <-ch:
		default:
		}
		ch <- ev
	}
}

// Len returns the number of listeners.
func (n *Notifier[T]) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.listeners)
}
