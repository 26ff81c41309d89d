package game

import (
	"time"

	"github.com/cbodonnell/relayhub/pkg/actions"
	"github.com/cbodonnell/relayhub/pkg/clients"
	"github.com/cbodonnell/relayhub/pkg/state"
)

// Session is the authoritative shared state behind one listener: who is
// connected, the current game state and the actions not yet folded into it.
// Only the GameManager mutates a session.
type Session struct {
	Clients *clients.ClientManager
	Actions *actions.Queue
	State   state.StateManager
}

type NewSessionOptions struct {
	// MaxUnhandledActions bounds the action queue. Zero means unbounded.
	MaxUnhandledActions int
	StartedAt           time.Time
}

func NewSession(opts NewSessionOptions) *Session {
	startedAt := opts.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now()
	}
	return &Session{
		Clients: clients.NewClientManager(),
		Actions: actions.NewQueue(opts.MaxUnhandledActions),
		State:   state.NewInMemoryStateManager(startedAt),
	}
}
