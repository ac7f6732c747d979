package connectivity

import (
	"context"
	"log"
	"sync"
	"time"
)

// Monitor reports whether the durability layer is reachable and notifies
// subscribers on transitions. Callbacks fire synchronously on the goroutine
// that detects the transition.
type Monitor interface {
	Online() bool
	Subscribe(fn func(online bool)) (cancel func())
}

// Manual is a Monitor driven by explicit Set calls. Used in tests and when
// the deployment forces offline mode.
type Manual struct {
	mu          sync.Mutex
	online      bool
	subscribers map[int]func(online bool)
	nextID      int
}

func NewManual(online bool) *Manual {
	return &Manual{online: online, subscribers: make(map[int]func(online bool))}
}

func (m *Manual) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

func (m *Manual) Subscribe(fn func(online bool)) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subscribers[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subscribers, id)
		m.mu.Unlock()
	}
}

// Set changes the state and notifies subscribers only on a transition.
func (m *Manual) Set(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	fns := make([]func(online bool), 0, len(m.subscribers))
	for _, fn := range m.subscribers {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(online)
	}
}

// Probe is a Monitor that polls a ping function on an interval. The first
// probe runs immediately on Start so the initial state settles fast.
type Probe struct {
	*Manual
	ping     func(ctx context.Context) error
	interval time.Duration
	stop     chan struct{}
	stopOnce sync.Once
}

func NewProbe(ping func(ctx context.Context) error, interval time.Duration) *Probe {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Probe{
		Manual:   NewManual(true),
		ping:     ping,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

func (p *Probe) Start(ctx context.Context) {
	p.probe(ctx)
	go func() {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.probe(ctx)
			case <-p.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (p *Probe) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
}

func (p *Probe) probe(ctx context.Context) {
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	err := p.ping(pingCtx)
	online := err == nil
	if !online && p.Online() {
		log.Printf("[connectivity] WARN: store unreachable, switching offline: %v", err)
	}
	p.Set(online)
}
