package pipeline

import "sync"

// Ledger records temporary workspaces awaiting removal. Jobs register a
// workspace as soon as they create it; the Coordinator drains the ledger once
// every job has returned. It is safe for concurrent use.
type Ledger struct {
	mu    sync.Mutex
	paths []string
}

// NewLedger creates an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// Register adds a workspace path.
func (l *Ledger) Register(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.paths = append(l.paths, path)
}

// Len returns the number of pending paths.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.paths)
}

// Drain returns the pending paths in registration order and empties the ledger.
func (l *Ledger) Drain() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	paths := l.paths
	l.paths = nil
	return paths
}
