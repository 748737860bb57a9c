package scheduler

import (
	"sync"
)

// TurnLockManager serializes turns per task: only one agent turn runs at a
// time for a given task, while different tasks proceed concurrently.
// Uses a keyed mutex; entries are reference counted and removed when idle.
type TurnLockManager struct {
	mu    sync.Mutex // Guards the locks map itself
	locks map[string]*turnLock
}

type turnLock struct {
	mu   sync.Mutex
	refs int
}

// NewTurnLockManager creates a new TurnLockManager.
func NewTurnLockManager() *TurnLockManager {
	return &TurnLockManager{
		locks: make(map[string]*turnLock),
	}
}

// Lock acquires the turn lock for key, typically flowID/taskID.
func (m *TurnLockManager) Lock(key string) {
	m.mu.Lock()
	l, exists := m.locks[key]
	if !exists {
		l = &turnLock{}
		m.locks[key] = l
	}
	l.refs++
	m.mu.Unlock()

	// Acquire outside the manager lock so other keys are not blocked
	l.mu.Lock()
}

// Unlock releases the turn lock for key.
func (m *TurnLockManager) Unlock(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, exists := m.locks[key]
	if !exists {
		return
	}
	l.refs--
	if l.refs == 0 {
		delete(m.locks, key)
	}
	l.mu.Unlock()
}

// Active returns how many keys are locked or waited on.
func (m *TurnLockManager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}

func turnKey(flowID, taskID string) string {
	return flowID + "/" + taskID
}
