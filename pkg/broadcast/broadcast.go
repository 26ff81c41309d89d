package broadcast

import (
	"fmt"

	"github.com/cbodonnell/relayhub/pkg/clients"
	"github.com/cbodonnell/relayhub/pkg/log"
	"github.com/cbodonnell/relayhub/pkg/messages"
)

// Broadcaster delivers server messages to the clients in a registry.
// Delivery is fire-and-forget: closed connections are skipped and failed
// sends are not retried.
type Broadcaster struct {
	clientManager *clients.ClientManager
}

type NewBroadcasterOptions struct {
	ClientManager *clients.ClientManager
}

func NewBroadcaster(opts NewBroadcasterOptions) *Broadcaster {
	return &Broadcaster{
		clientManager: opts.ClientManager,
	}
}

// ToAll sends msg to every registered client.
func (b *Broadcaster) ToAll(msg messages.ServerMessage) error {
	return b.ToAllExcept("", msg)
}

// ToAllExcept sends msg to every registered client except excludeID.
func (b *Broadcaster) ToAllExcept(excludeID string, msg messages.ServerMessage) error {
	payload, err := messages.SerializeServerMessage(msg)
	if err != nil {
		return err
	}

	// the snapshot keeps registry changes made during delivery out of this loop
	for _, conn := range b.clientManager.Connections() {
		if conn.ID() == excludeID {
			continue
		}
		deliver(conn, msg.MessageType(), payload)
	}
	return nil
}

// ToOne sends msg to a single client. Unknown clients are ignored.
func (b *Broadcaster) ToOne(clientID string, msg messages.ServerMessage) error {
	conn, ok := b.clientManager.Get(clientID)
	if !ok {
		log.Trace("Dropping %s message for unknown client %s", msg.MessageType(), clientID)
		return nil
	}

	payload, err := messages.SerializeServerMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to send to client %s: %w", clientID, err)
	}
	deliver(conn, msg.MessageType(), payload)
	return nil
}

func deliver(conn clients.Connection, messageType messages.MessageType, payload []byte) {
	if !conn.IsOpen() {
		log.Trace("Skipping %s message for closed client %s", messageType, conn.ID())
		return
	}
	if err := conn.Send(payload); err != nil {
		log.Debug("Failed to send %s message to client %s: %v", messageType, conn.ID(), err)
	}
}
