package pipeline

import (
	"sync"
	"sync/atomic"
)

// runLock provides non-blocking lock semantics using atomic operations.
type runLock struct {
	state atomic.Int32 // 0 = unlocked, 1 = locked
}

// TryAcquire attempts to acquire the lock without blocking.
func (l *runLock) TryAcquire() bool {
	return l.state.CompareAndSwap(0, 1)
}

// Release releases the lock.
// Must only be called by the goroutine that successfully acquired the lock.
func (l *runLock) Release() {
	l.state.Store(0)
}

// projectLocks keeps one run in flight per project within a process, so two
// overlapping Run calls (CLI and MCP, or two MCP requests) cannot supersede
// each other's runs.
type projectLocks struct {
	locks sync.Map // project id -> *runLock
}

func (p *projectLocks) TryAcquire(projectID string) bool {
	l, _ := p.locks.LoadOrStore(projectID, &runLock{})
	return l.(*runLock).TryAcquire()
}

func (p *projectLocks) Release(projectID string) {
	if l, ok := p.locks.Load(projectID); ok {
		l.(*runLock).Release()
	}
}
