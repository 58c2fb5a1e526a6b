package distribution

import (
	"sync"

	"github.com/google/uuid"
)

// leadLocks hands out per-lead mutual-exclusion tokens. Manual and automatic
// redistribution of the same lead acquire the same token, so only one
// ownership change per lead can be in flight at a time.
type leadLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*leadLock
}

type leadLock struct {
	mu   sync.Mutex
	refs int
}

func newLeadLocks() *leadLocks {
	return &leadLocks{locks: make(map[uuid.UUID]*leadLock)}
}

// acquire blocks until the lead's token is held and returns the release
// function. Tokens are removed from the table once the last holder releases.
func (l *leadLocks) acquire(leadID uuid.UUID) func() {
	l.mu.Lock()
	entry, ok := l.locks[leadID]
	if !ok {
		entry = &leadLock{}
		l.locks[leadID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, leadID)
		}
		l.mu.Unlock()
	}
}
