package profile

import (
	"sync"

	"github.com/m-mizutani/hindsight/pkg/model"
)

// agentLocks serializes mutations per agent so concurrent writers to one
// profile cannot interleave, while different agents proceed in parallel.
type agentLocks struct {
	mu    sync.Mutex
	locks map[model.AgentID]*sync.Mutex
}

func newAgentLocks() *agentLocks {
	return &agentLocks{locks: make(map[model.AgentID]*sync.Mutex)}
}

// acquire locks the agent's mutex and returns its unlock function.
func (a *agentLocks) acquire(id model.AgentID) func() {
	a.mu.Lock()
	lock, ok := a.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		a.locks[id] = lock
	}
	a.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
