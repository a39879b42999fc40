package usecase

import "sync"

// expenseLocks serializes pipeline runs per expense so two concurrently
// triggered batches cannot interleave their writes and race the total
// recompute. Entries are reference counted and dropped when idle.
type expenseLocks struct {
	mu      sync.Mutex
	entries map[string]*expenseLock
}

type expenseLock struct {
	mu   sync.Mutex
	refs int
}

func newExpenseLocks() *expenseLocks {
	return &expenseLocks{entries: make(map[string]*expenseLock)}
}

func (l *expenseLocks) lock(id string) (unlock func()) {
	l.mu.Lock()
	entry, ok := l.entries[id]
	if !ok {
		entry = &expenseLock{}
		l.entries[id] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.entries, id)
		}
		l.mu.Unlock()
	}
}
