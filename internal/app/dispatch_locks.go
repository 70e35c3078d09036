package app

import "sync"

// LockRegistry provides cooperative per-phone mutual exclusion so two logical
// dispatch attempts (a periodic cycle overlapping a manual trigger, or the
// receipt handler racing a cycle) never both decide to message the same
// recipient. Locks are advisory and process-local; Release must run on every
// exit path or the phone stays locked for the life of the process.
type LockRegistry struct {
	mu     sync.Mutex
	locked map[string]bool
}

func NewLockRegistry() *LockRegistry {
	return &LockRegistry{locked: make(map[string]bool)}
}

// TryAcquire takes the lock for phone, reporting false when already held.
func (r *LockRegistry) TryAcquire(phone string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.locked[phone] {
		return false
	}
	r.locked[phone] = true
	return true
}

// Release frees the lock for phone. Releasing an unheld lock is a no-op.
func (r *LockRegistry) Release(phone string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.locked, phone)
}

// Held reports whether phone is currently being dispatched.
func (r *LockRegistry) Held(phone string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.locked[phone]
}
