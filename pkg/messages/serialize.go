package messages

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ErrMalformedMessage is returned when a frame is not a valid message.
type ErrMalformedMessage struct {
	Reason string
}

func (e *ErrMalformedMessage) Error() string {
	return fmt.Sprintf("malformed message: %s", e.Reason)
}

func IsMalformedMessage(err error) bool {
	var target *ErrMalformedMessage
	return errors.As(err, &target)
}

// ErrUnknownMessageType is returned for well formed frames whose type the
// server does not handle.
type ErrUnknownMessageType struct {
	Type string
}

func (e *ErrUnknownMessageType) Error() string {
	return fmt.Sprintf("unknown message type: %q", e.Type)
}

func IsUnknownMessageType(err error) bool {
	var target *ErrUnknownMessageType
	return errors.As(err, &target)
}

func malformed(format string, args ...interface{}) error {
	return &ErrMalformedMessage{Reason: fmt.Sprintf(format, args...)}
}

// DeserializeClientMessage decodes a single frame received from a client.
func DeserializeClientMessage(data []byte) (ClientMessage, error) {
	// relayed bytes end up in text frames, which must be UTF-8
	if !utf8.Valid(data) {
		return nil, malformed("invalid UTF-8")
	}
	if !gjson.ValidBytes(data) {
		return nil, malformed("invalid JSON")
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, malformed("expected a JSON object")
	}

	if key, ok := duplicateKey(root, "type"); ok {
		return nil, malformed("duplicate %q key", key)
	}
	messageType := root.Get("type")
	if messageType.Type != gjson.String {
		return nil, malformed("missing or non-string type")
	}

	switch MessageType(messageType.Str) {
	case MessageTypePing:
		return &ClientPing{Payload: rawField(root, "payload")}, nil
	case MessageTypeGameStateUpdate:
		return deserializeGameStateUpdate(root)
	case MessageTypePlayerAction:
		return deserializePlayerAction(data, root)
	default:
		return nil, &ErrUnknownMessageType{Type: messageType.Str}
	}
}

func deserializeGameStateUpdate(root gjson.Result) (*ClientGameStateUpdate, error) {
	if key, ok := duplicateKey(root, "state", "id", "basedOnId", "handledActionIds", "serverTimeEstimate"); ok {
		return nil, malformed("duplicate %q key", key)
	}

	state := root.Get("state")
	if !state.Exists() {
		return nil, malformed("gameStateUpdate without state")
	}

	id, err := requiredString(root, "id")
	if err != nil {
		return nil, err
	}
	basedOnID, err := requiredString(root, "basedOnId")
	if err != nil {
		return nil, err
	}

	update := &ClientGameStateUpdate{
		State:     json.RawMessage(state.Raw),
		ID:        id,
		BasedOnID: basedOnID,
	}

	handled := root.Get("handledActionIds")
	switch {
	case !handled.Exists() || handled.Type == gjson.Null:
	case handled.IsArray():
		for _, actionID := range handled.Array() {
			if actionID.Type != gjson.String {
				return nil, malformed("handledActionIds must contain strings")
			}
			update.HandledActionIDs = append(update.HandledActionIDs, actionID.Str)
		}
	default:
		return nil, malformed("handledActionIds must be an array")
	}

	estimate := root.Get("serverTimeEstimate")
	switch estimate.Type {
	case gjson.Null:
	case gjson.Number:
		value := estimate.Num
		if math.IsInf(value, 0) || math.IsNaN(value) {
			return nil, malformed("serverTimeEstimate must be finite")
		}
		update.ServerTimeEstimate = &value
	default:
		return nil, malformed("serverTimeEstimate must be a number")
	}

	return update, nil
}

// deserializePlayerAction accepts both {"type":"playerAction","action":{...}}
// and a frame that is itself the action.
func deserializePlayerAction(data []byte, root gjson.Result) (*ClientPlayerAction, error) {
	var raw []byte
	action := root.Get("action")
	if action.Exists() {
		if !action.IsObject() {
			return nil, malformed("action must be an object")
		}
		raw = []byte(action.Raw)
	} else {
		stripped, err := sjson.DeleteBytes(data, "type")
		if err != nil {
			return nil, malformed("failed to extract action: %v", err)
		}
		raw = stripped
		action = gjson.ParseBytes(raw)
	}

	if _, ok := duplicateKey(action, "id"); ok {
		return nil, malformed("action with duplicate id keys")
	}
	id := action.Get("id")
	if id.Type != gjson.String || id.Str == "" {
		return nil, malformed("action without a string id")
	}

	return &ClientPlayerAction{
		Action: PlayerAction{ID: id.Str, Raw: json.RawMessage(raw)},
	}, nil
}

// duplicateKey reports the first of keys that appears more than once in obj.
// gjson reads the first occurrence while most JSON parsers keep the last.
func duplicateKey(obj gjson.Result, keys ...string) (string, bool) {
	counts := make(map[string]int, len(keys))
	for _, key := range keys {
		counts[key] = 0
	}
	duplicate := ""
	obj.ForEach(func(key, _ gjson.Result) bool {
		if _, watched := counts[key.Str]; !watched {
			return true
		}
		counts[key.Str]++
		if counts[key.Str] > 1 {
			duplicate = key.Str
			return false
		}
		return true
	})
	return duplicate, duplicate != ""
}

func requiredString(root gjson.Result, field string) (string, error) {
	value := root.Get(field)
	if value.Type != gjson.String {
		return "", malformed("%s must be a string", field)
	}
	return value.Str, nil
}

func rawField(root gjson.Result, field string) json.RawMessage {
	value := root.Get(field)
	if !value.Exists() {
		return nil
	}
	return json.RawMessage(value.Raw)
}

// SerializeServerMessage encodes a message for a text frame.
func SerializeServerMessage(msg ServerMessage) ([]byte, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize %s message: %w", msg.MessageType(), err)
	}
	return b, nil
}
