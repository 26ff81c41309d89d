package types

import (
	"github.com/cbodonnell/relayhub/pkg/clients"
	"github.com/cbodonnell/relayhub/pkg/messages"
)

// ConnectClientEvent is queued when a client opens a connection.
type ConnectClientEvent struct {
	Conn clients.Connection
}

// DisconnectClientEvent is queued once the client's connection is gone.
type DisconnectClientEvent struct {
	ClientID string
}

// ClientMessageEvent carries a decoded message from a connected client.
type ClientMessageEvent struct {
	ClientID string
	Message  messages.ClientMessage
}
