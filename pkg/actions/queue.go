package actions

import (
	"errors"

	"github.com/cbodonnell/relayhub/pkg/messages"
	"github.com/sasha-s/go-deadlock"
)

// ErrQueueFull is returned by Enqueue when the queue is at capacity.
var ErrQueueFull = errors.New("unhandled action queue is full")

// Queue holds the actions that have been accepted but not yet reported as
// folded into the authoritative game state, in the order they were received.
type Queue struct {
	lock     deadlock.RWMutex
	actions  []messages.PlayerAction
	capacity int
}

// NewQueue creates an empty queue. A capacity of zero means unbounded.
func NewQueue(capacity int) *Queue {
	return &Queue{
		capacity: capacity,
	}
}

// Enqueue appends an action to the tail of the queue.
func (q *Queue) Enqueue(action messages.PlayerAction) error {
	q.lock.Lock()
	defer q.lock.Unlock()

	if q.capacity > 0 && len(q.actions) >= q.capacity {
		return ErrQueueFull
	}
	q.actions = append(q.actions, action)
	return nil
}

// Retire removes every action whose id is in handledIDs and returns how many
// were removed. Survivors keep their relative order.
func (q *Queue) Retire(handledIDs []string) int {
	if len(handledIDs) == 0 {
		return 0
	}

	handled := make(map[string]struct{}, len(handledIDs))
	for _, id := range handledIDs {
		handled[id] = struct{}{}
	}

	q.lock.Lock()
	defer q.lock.Unlock()

	survivors := q.actions[:0]
	for _, action := range q.actions {
		if _, ok := handled[action.ID]; ok {
			continue
		}
		survivors = append(survivors, action)
	}
	removed := len(q.actions) - len(survivors)
	// clear the tail so retired payloads can be collected
	for i := len(survivors); i < len(q.actions); i++ {
		q.actions[i] = messages.PlayerAction{}
	}
	q.actions = survivors
	return removed
}

// All returns a copy of the queued actions in receipt order.
func (q *Queue) All() []messages.PlayerAction {
	q.lock.RLock()
	defer q.lock.RUnlock()

	all := make([]messages.PlayerAction, len(q.actions))
	copy(all, q.actions)
	return all
}

// Len returns the number of queued actions.
func (q *Queue) Len() int {
	q.lock.RLock()
	defer q.lock.RUnlock()
	return len(q.actions)
}
