package state

import (
	"encoding/json"
	"time"

	"github.com/sasha-s/go-deadlock"
)

// EmptyState is the game state before any update has been accepted.
var EmptyState = json.RawMessage(`{}`)

type InMemoryStateManager struct {
	lock     deadlock.RWMutex
	snapshot Snapshot
}

// NewInMemoryStateManager starts with an empty state, an empty version and
// a time estimate of startedAt.
func NewInMemoryStateManager(startedAt time.Time) *InMemoryStateManager {
	return &InMemoryStateManager{
		snapshot: Snapshot{
			State:              EmptyState,
			Version:            "",
			ServerTimeEstimate: float64(startedAt.UnixMilli()),
		},
	}
}

func (m *InMemoryStateManager) Current() Snapshot {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.snapshot
}

func (m *InMemoryStateManager) Replace(snapshot Snapshot) {
	if len(snapshot.State) == 0 {
		snapshot.State = json.RawMessage(`null`)
	}

	m.lock.Lock()
	defer m.lock.Unlock()
	m.snapshot = snapshot
}
