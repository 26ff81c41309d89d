package clients

import (
	"errors"

	"github.com/google/uuid"
	"github.com/sasha-s/go-deadlock"
)

// ErrConnectionClosed is returned when sending on a connection that is no
// longer open.
var ErrConnectionClosed = errors.New("connection closed")

// Connection is the outbound half of a client's channel.
type Connection interface {
	// ID returns the client ID the connection was assigned.
	ID() string
	// Send queues data for delivery without blocking.
	Send(data []byte) error
	// IsOpen reports whether the connection can still deliver messages.
	IsOpen() bool
	// Close closes the connection with a reason that is reported to the peer.
	Close(reason string)
}

// NewClientID returns a new random client ID.
func NewClientID() string {
	return uuid.NewString()
}

// ClientManager is the registry of connected clients.
type ClientManager struct {
	clientsLock deadlock.RWMutex
	clients     map[string]Connection
	// order holds client IDs in the order they joined
	order []string
}

// NewClientManager creates a new ClientManager
func NewClientManager() *ClientManager {
	return &ClientManager{
		clients: make(map[string]Connection),
	}
}

// Add registers a connection under the given ID.
// Adding an ID that is already registered replaces its connection.
func (cm *ClientManager) Add(clientID string, conn Connection) {
	cm.clientsLock.Lock()
	defer cm.clientsLock.Unlock()

	if _, exists := cm.clients[clientID]; !exists {
		cm.order = append(cm.order, clientID)
	}
	cm.clients[clientID] = conn
}

// Remove deletes a client and reports whether it was registered.
func (cm *ClientManager) Remove(clientID string) bool {
	cm.clientsLock.Lock()
	defer cm.clientsLock.Unlock()

	if _, exists := cm.clients[clientID]; !exists {
		return false
	}
	delete(cm.clients, clientID)
	for i, id := range cm.order {
		if id == clientID {
			cm.order = append(cm.order[:i], cm.order[i+1:]...)
			break
		}
	}
	return true
}

// Get returns the connection registered under clientID.
func (cm *ClientManager) Get(clientID string) (Connection, bool) {
	cm.clientsLock.RLock()
	defer cm.clientsLock.RUnlock()
	conn, ok := cm.clients[clientID]
	return conn, ok
}

func (cm *ClientManager) Exists(clientID string) bool {
	_, ok := cm.Get(clientID)
	return ok
}

// IDs returns the IDs of all registered clients in join order.
func (cm *ClientManager) IDs() []string {
	cm.clientsLock.RLock()
	defer cm.clientsLock.RUnlock()
	ids := make([]string, len(cm.order))
	copy(ids, cm.order)
	return ids
}

// Connections returns a snapshot of all registered connections in join order.
// Later changes to the registry do not affect the returned slice.
func (cm *ClientManager) Connections() []Connection {
	cm.clientsLock.RLock()
	defer cm.clientsLock.RUnlock()
	conns := make([]Connection, 0, len(cm.order))
	for _, id := range cm.order {
		conns = append(conns, cm.clients[id])
	}
	return conns
}

func (cm *ClientManager) Count() int {
	cm.clientsLock.RLock()
	defer cm.clientsLock.RUnlock()
	return len(cm.clients)
}
