package messages

import "encoding/json"

// MessageType is the value of the "type" field every frame carries.
type MessageType string

// Message types
const (
	MessageTypePing            MessageType = "ping"
	MessageTypePong            MessageType = "pong"
	MessageTypeGameStateUpdate MessageType = "gameStateUpdate"
	MessageTypePlayerAction    MessageType = "playerAction"
	MessageTypeWelcome         MessageType = "welcome"
	MessageTypeClientJoined    MessageType = "clientJoined"
	MessageTypeClientLeft      MessageType = "clientLeft"
)

// PlayerAction is an action submitted by a client. The server only reads its
// id; the rest of the object is relayed byte for byte.
type PlayerAction struct {
	ID  string
	Raw json.RawMessage
}

func (a PlayerAction) MarshalJSON() ([]byte, error) {
	if len(a.Raw) == 0 {
		return json.Marshal(map[string]string{"id": a.ID})
	}
	return a.Raw, nil
}

// ClientMessage is a decoded message received from a client.
type ClientMessage interface {
	MessageType() MessageType
}

// ClientPing asks the server to echo Payload along with its clock.
type ClientPing struct {
	Payload json.RawMessage
}

func (*ClientPing) MessageType() MessageType { return MessageTypePing }

// ClientGameStateUpdate is a candidate replacement of the authoritative state.
type ClientGameStateUpdate struct {
	State json.RawMessage
	// ID is the version the state becomes if the update is accepted.
	ID string
	// BasedOnID is the version the client computed the candidate from.
	BasedOnID        string
	HandledActionIDs []string
	// ServerTimeEstimate is nil when the client did not send one.
	ServerTimeEstimate *float64
}

func (*ClientGameStateUpdate) MessageType() MessageType { return MessageTypeGameStateUpdate }

// ClientPlayerAction carries a new action for the unhandled action queue.
type ClientPlayerAction struct {
	Action PlayerAction
}

func (*ClientPlayerAction) MessageType() MessageType { return MessageTypePlayerAction }

// ServerMessage is a message sent from the server to clients.
type ServerMessage interface {
	MessageType() MessageType
}

// ServerWelcome is sent once to a client right after it connects.
type ServerWelcome struct {
	Type               MessageType     `json:"type"`
	ClientID           string          `json:"clientId"`
	GameState          json.RawMessage `json:"gameState"`
	UnhandledActions   []PlayerAction  `json:"unhandledActions"`
	Clients            []string        `json:"clients"`
	ID                 string          `json:"id"`
	ServerTimeEstimate float64         `json:"serverTimeEstimate"`
}

func (*ServerWelcome) MessageType() MessageType { return MessageTypeWelcome }

func NewServerWelcome(clientID string, gameState json.RawMessage, unhandledActions []PlayerAction, clients []string, id string, serverTimeEstimate float64) *ServerWelcome {
	if unhandledActions == nil {
		unhandledActions = []PlayerAction{}
	}
	if clients == nil {
		clients = []string{}
	}
	return &ServerWelcome{
		Type:               MessageTypeWelcome,
		ClientID:           clientID,
		GameState:          gameState,
		UnhandledActions:   unhandledActions,
		Clients:            clients,
		ID:                 id,
		ServerTimeEstimate: serverTimeEstimate,
	}
}

type ServerClientJoined struct {
	Type     MessageType `json:"type"`
	ClientID string      `json:"clientId"`
}

func (*ServerClientJoined) MessageType() MessageType { return MessageTypeClientJoined }

func NewServerClientJoined(clientID string) *ServerClientJoined {
	return &ServerClientJoined{Type: MessageTypeClientJoined, ClientID: clientID}
}

type ServerClientLeft struct {
	Type     MessageType `json:"type"`
	ClientID string      `json:"clientId"`
}

func (*ServerClientLeft) MessageType() MessageType { return MessageTypeClientLeft }

func NewServerClientLeft(clientID string) *ServerClientLeft {
	return &ServerClientLeft{Type: MessageTypeClientLeft, ClientID: clientID}
}

type ServerPong struct {
	Type       MessageType     `json:"type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	ServerTime int64           `json:"serverTime"`
}

func (*ServerPong) MessageType() MessageType { return MessageTypePong }

func NewServerPong(payload json.RawMessage, serverTime int64) *ServerPong {
	return &ServerPong{Type: MessageTypePong, Payload: payload, ServerTime: serverTime}
}

// ServerGameStateUpdate announces a newly accepted authoritative state.
type ServerGameStateUpdate struct {
	Type               MessageType     `json:"type"`
	State              json.RawMessage `json:"state"`
	HandledActionIDs   []string        `json:"handledActionIds"`
	ServerTimeEstimate float64         `json:"serverTimeEstimate"`
	ID                 string          `json:"id"`
	BasedOnID          string          `json:"basedOnId"`
}

func (*ServerGameStateUpdate) MessageType() MessageType { return MessageTypeGameStateUpdate }

func NewServerGameStateUpdate(state json.RawMessage, handledActionIDs []string, serverTimeEstimate float64, id, basedOnID string) *ServerGameStateUpdate {
	if handledActionIDs == nil {
		handledActionIDs = []string{}
	}
	return &ServerGameStateUpdate{
		Type:               MessageTypeGameStateUpdate,
		State:              state,
		HandledActionIDs:   handledActionIDs,
		ServerTimeEstimate: serverTimeEstimate,
		ID:                 id,
		BasedOnID:          basedOnID,
	}
}

type ServerPlayerAction struct {
	Type   MessageType  `json:"type"`
	Action PlayerAction `json:"action"`
}

func (*ServerPlayerAction) MessageType() MessageType { return MessageTypePlayerAction }

func NewServerPlayerAction(action PlayerAction) *ServerPlayerAction {
	return &ServerPlayerAction{Type: MessageTypePlayerAction, Action: action}
}
