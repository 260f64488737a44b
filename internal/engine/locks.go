package engine

import "sync"

// LockRegistry serializes actions per game. The database transaction gives
// atomicity; the lock gives actions on one game a total order without
// blocking other games.
type LockRegistry struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewLockRegistry() *LockRegistry {
	return &LockRegistry{locks: map[string]*sync.Mutex{}}
}

// Lock acquires the lock for a game and returns its unlock func.
func (r *LockRegistry) Lock(gameID string) func() {
	r.mu.Lock()
	lock, ok := r.locks[gameID]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[gameID] = lock
	}
	r.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// Forget drops a game's lock entry, after deletion.
func (r *LockRegistry) Forget(gameID string) {
	r.mu.Lock()
	delete(r.locks, gameID)
	r.mu.Unlock()
}
