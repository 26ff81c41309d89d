package game

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cbodonnell/relayhub/pkg/actions"
	"github.com/cbodonnell/relayhub/pkg/game/types"
	"github.com/cbodonnell/relayhub/pkg/log"
	"github.com/cbodonnell/relayhub/pkg/messages"
	"github.com/cbodonnell/relayhub/pkg/queue"
	"github.com/cbodonnell/relayhub/pkg/state"
)

// Broadcaster delivers server messages to connected clients.
type Broadcaster interface {
	ToAll(msg messages.ServerMessage) error
	ToAllExcept(excludeID string, msg messages.ServerMessage) error
	ToOne(clientID string, msg messages.ServerMessage) error
}

// GameManager processes connection events and client messages one at a time
// and keeps every client in sync with the session.
type GameManager struct {
	session     *Session
	broadcaster Broadcaster
	eventQueue  queue.Queue
	now         func() time.Time
}

// NewGameManagerOptions contains options for creating a new GameManager.
type NewGameManagerOptions struct {
	Session     *Session
	Broadcaster Broadcaster
	EventQueue  queue.Queue
	// Clock defaults to time.Now.
	Clock func() time.Time
}

func NewGameManager(opts NewGameManagerOptions) *GameManager {
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	return &GameManager{
		session:     opts.Session,
		broadcaster: opts.Broadcaster,
		eventQueue:  opts.EventQueue,
		now:         now,
	}
}

// Start processes events until ctx is done, then closes every connected
// client.
func (gm *GameManager) Start(ctx context.Context) error {
	for {
		item, err := gm.eventQueue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				gm.closeClients("server shutting down")
				return nil
			}
			return fmt.Errorf("failed to dequeue event: %v", err)
		}
		gm.processEvent(item)
	}
}

func (gm *GameManager) closeClients(reason string) {
	conns := gm.session.Clients.Connections()
	for _, conn := range conns {
		conn.Close(reason)
	}
	log.Info("Closed %d client connections", len(conns))
}

func (gm *GameManager) processEvent(item interface{}) {
	switch event := item.(type) {
	case *types.ConnectClientEvent:
		gm.handleConnect(event)
	case *types.DisconnectClientEvent:
		gm.handleDisconnect(event)
	case *types.ClientMessageEvent:
		gm.handleClientMessage(event)
	default:
		log.Error("Unknown event type: %T", item)
	}
}

// handleConnect registers the client, sends it everything it needs to catch
// up and tells everyone else it joined.
func (gm *GameManager) handleConnect(event *types.ConnectClientEvent) {
	clientID := event.Conn.ID()
	gm.session.Clients.Add(clientID, event.Conn)
	log.Info("Client %s connected (%d connected)", clientID, gm.session.Clients.Count())

	snapshot := gm.session.State.Current()
	welcome := messages.NewServerWelcome(
		clientID,
		snapshot.State,
		gm.session.Actions.All(),
		gm.session.Clients.IDs(),
		snapshot.Version,
		snapshot.ServerTimeEstimate,
	)
	if err := gm.broadcaster.ToOne(clientID, welcome); err != nil {
		log.Error("Failed to send welcome to client %s: %v", clientID, err)
	}

	if err := gm.broadcaster.ToAllExcept(clientID, messages.NewServerClientJoined(clientID)); err != nil {
		log.Error("Failed to broadcast client %s joined: %v", clientID, err)
	}
}

func (gm *GameManager) handleDisconnect(event *types.DisconnectClientEvent) {
	if !gm.session.Clients.Remove(event.ClientID) {
		log.Debug("Client %s already removed", event.ClientID)
		return
	}
	log.Info("Client %s disconnected (%d connected)", event.ClientID, gm.session.Clients.Count())

	if err := gm.broadcaster.ToAll(messages.NewServerClientLeft(event.ClientID)); err != nil {
		log.Error("Failed to broadcast client %s left: %v", event.ClientID, err)
	}
}

func (gm *GameManager) handleClientMessage(event *types.ClientMessageEvent) {
	if !gm.session.Clients.Exists(event.ClientID) {
		log.Warn("Received %s message from %s, but client is not connected", event.Message.MessageType(), event.ClientID)
		return
	}

	var err error
	switch msg := event.Message.(type) {
	case *messages.ClientPing:
		err = gm.handlePing(event.ClientID, msg)
	case *messages.ClientGameStateUpdate:
		err = gm.handleGameStateUpdate(event.ClientID, msg)
	case *messages.ClientPlayerAction:
		err = gm.handlePlayerAction(event.ClientID, msg)
	default:
		err = fmt.Errorf("unhandled message type %T", event.Message)
	}
	if err != nil {
		log.Error("Failed to handle %s message from client %s: %v", event.Message.MessageType(), event.ClientID, err)
	}
}

func (gm *GameManager) handlePing(clientID string, msg *messages.ClientPing) error {
	pong := messages.NewServerPong(msg.Payload, gm.now().UnixMilli())
	return gm.broadcaster.ToOne(clientID, pong)
}

// handleGameStateUpdate accepts the update only if it was computed from the
// current version. Stale updates are dropped without telling the sender; it
// catches up from the broadcast of whichever update won.
func (gm *GameManager) handleGameStateUpdate(clientID string, msg *messages.ClientGameStateUpdate) error {
	if msg.ID == "" || msg.ID == msg.BasedOnID {
		log.Debug("Dropping gameStateUpdate from client %s: id %q must be non-empty and differ from basedOnId", clientID, msg.ID)
		return nil
	}

	current := gm.session.State.Current()
	if msg.BasedOnID != current.Version {
		log.Debug("Rejected stale gameStateUpdate %q from client %s: based on %q, current is %q", msg.ID, clientID, msg.BasedOnID, current.Version)
		return nil
	}

	serverTimeEstimate := float64(gm.now().UnixMilli())
	if msg.ServerTimeEstimate != nil {
		serverTimeEstimate = *msg.ServerTimeEstimate
	}

	next := state.Snapshot{
		State:              msg.State,
		Version:            msg.ID,
		ServerTimeEstimate: serverTimeEstimate,
	}
	update := messages.NewServerGameStateUpdate(next.State, msg.HandledActionIDs, next.ServerTimeEstimate, next.Version, msg.BasedOnID)
	// an update nobody can be sent must not become the current state
	if _, err := messages.SerializeServerMessage(update); err != nil {
		return fmt.Errorf("rejected gameStateUpdate %q: %w", msg.ID, err)
	}

	gm.session.State.Replace(next)
	retired := gm.session.Actions.Retire(msg.HandledActionIDs)
	log.Debug("Accepted gameStateUpdate %q from client %s (based on %q, %d actions retired)", msg.ID, clientID, msg.BasedOnID, retired)

	if err := gm.broadcaster.ToAll(update); err != nil {
		return fmt.Errorf("failed to broadcast game state %q: %w", next.Version, err)
	}
	return nil
}

func (gm *GameManager) handlePlayerAction(clientID string, msg *messages.ClientPlayerAction) error {
	if err := gm.session.Actions.Enqueue(msg.Action); err != nil {
		if errors.Is(err, actions.ErrQueueFull) {
			log.Warn("Dropping action %q from client %s: %v", msg.Action.ID, clientID, err)
			return nil
		}
		return fmt.Errorf("failed to enqueue action %q: %w", msg.Action.ID, err)
	}
	log.Trace("Queued action %q from client %s", msg.Action.ID, clientID)

	return gm.broadcaster.ToAll(messages.NewServerPlayerAction(msg.Action))
}

// Stats summarizes the session.
type Stats struct {
	Clients            int     `json:"clients"`
	Version            string  `json:"version"`
	ServerTimeEstimate float64 `json:"serverTimeEstimate"`
	UnhandledActions   int     `json:"unhandledActions"`
	PendingEvents      int     `json:"pendingEvents"`
}

func (gm *GameManager) Stats() Stats {
	snapshot := gm.session.State.Current()
	return Stats{
		Clients:            gm.session.Clients.Count(),
		Version:            snapshot.Version,
		ServerTimeEstimate: snapshot.ServerTimeEstimate,
		UnhandledActions:   gm.session.Actions.Len(),
		PendingEvents:      gm.eventQueue.Size(),
	}
}
