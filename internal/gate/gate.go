// Package gate serializes task execution: at most one task runs at a time,
// and contenders are turned away immediately instead of queued.
package gate

import "sync"

type Gate struct {
	mu   sync.Mutex
	held bool
	task string
}

func New() *Gate {
	return &Gate{}
}

// TryAcquire claims the gate for the described task. It never blocks: the
// return value reports whether the claim succeeded.
func (g *Gate) TryAcquire(task string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.held {
		return false
	}
	g.held = true
	g.task = task
	return true
}

// Release frees the gate unconditionally.
func (g *Gate) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.held = false
	g.task = ""
}

// Status reports whether the gate is held and, if so, for which task.
func (g *Gate) Status() (bool, string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.held, g.task
}
