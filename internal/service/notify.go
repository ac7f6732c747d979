package service

import "sync"

// notifier fans a change signal out to subscribed observers. Callbacks run
// synchronously after each state change, outside the owning manager's lock.
type notifier struct {
	mu        sync.Mutex
	listeners map[int]func()
	nextID    int
}

func (n *notifier) Subscribe(fn func()) (cancel func()) {
	n.mu.Lock()
	if n.listeners == nil {
		n.listeners = make(map[int]func())
	}
	id := n.nextID
	n.nextID++
	n.listeners[id] = fn
	n.mu.Unlock()

	return func() {
		n.mu.Lock()
		delete(n.listeners, id)
		n.mu.Unlock()
	}
}

func (n *notifier) notify() {
	n.mu.Lock()
	fns := make([]func(), 0, len(n.listeners))
	for _, fn := range n.listeners {
		fns = append(fns, fn)
	}
	n.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}
