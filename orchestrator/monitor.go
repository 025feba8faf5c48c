package orchestrator

import "sync"

// monitor is a broadcast condition: Wait returns a channel that closes
// on the next Broadcast. Waiters re-check their predicate and call Wait
// again, so missed broadcasts only cost an extra check.
type monitor struct {
	mu sync.Mutex
	ch chan struct{}
}

func newMonitor() *monitor {
	return &monitor{ch: make(chan struct{})}
}

func (m *monitor) Broadcast() {
	m.mu.Lock()
	close(m.ch)
	m.ch = make(chan struct{})
	m.mu.Unlock()
}

func (m *monitor) Wait() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ch
}
