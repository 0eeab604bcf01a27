package server

import (
	"encoding/json"

	"github.com/npezzotti/chatty/internal/types"
)

// Event is the frame exchanged over a websocket in both directions.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data"`
}

// ClientEvent is an inbound frame whose payload is decoded per event.
type ClientEvent struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data"`
}

func NewEvent(name string, data any) *Event {
	return &Event{Name: name, Data: data}
}

func ErrorEvent(message string) *Event {
	return NewEvent(types.EventError, types.ErrorPayload{Message: message})
}

func ErrInvalidMessage() *Event {
	return ErrorEvent("invalid message format")
}

func ErrUnknownEvent(name string) *Event {
	return ErrorEvent("unknown event: " + name)
}

func ErrNotMember() *Event {
	return ErrorEvent("Not a member of this room")
}

func ErrJoinFailed() *Event {
	return ErrorEvent("Failed to join room")
}

func serializeEvent(ev *Event) ([]byte, error) {
	return json.Marshal(ev)
}

// roomIdFromData accepts either a bare JSON string or an object with a
// roomId field.
func roomIdFromData(data json.RawMessage) (string, bool) {
	var roomId string
	if err := json.Unmarshal(data, &roomId); err == nil {
		return roomId, roomId != ""
	}

	var obj struct {
		RoomId string `json:"roomId"`
	}
	if err := json.Unmarshal(data, &obj); err == nil {
		return obj.RoomId, obj.RoomId != ""
	}

	return "", false
}
