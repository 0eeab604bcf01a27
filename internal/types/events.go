package types

import "time"

// Websocket event names. Client events are received from connections,
// the rest are emitted by the server.
const (
	EventRoomJoin    = "room:join"
	EventRoomLeave   = "room:leave"
	EventTypingStart = "typing:start"
	EventTypingStop  = "typing:stop"

	EventRoomUserJoined       = "room:user-joined"
	EventRoomUserLeft         = "room:user-left"
	EventUserTyping           = "user:typing"
	EventUserStoppedTyping    = "user:stopped-typing"
	EventMessageNew           = "message:new"
	EventMessageUpdated       = "message:updated"
	EventMessageDeleted       = "message:deleted"
	EventRoomUserJoinedSystem = "room:user-joined-system"
	EventRoomUserLeftSystem   = "room:user-left-system"
	EventRoomUpdated          = "room:updated"
	EventRoomCreated          = "room:created"
	EventRoomDeleted          = "room:deleted"
	EventUserOnline           = "user:online"
	EventUserOffline          = "user:offline"
	EventError                = "error"

	EventAdminStatsUpdated       = "admin:stats-updated"
	EventAdminRoomOnlineUpdated  = "admin:room-online-updated"
	EventAdminRoomMessagesUpdate = "admin:room-messages-updated"
	EventAdminRoomCreated        = "admin:room-created"
	EventAdminRoomUpdated        = "admin:room-updated"
	EventAdminRoomDeleted        = "admin:room-deleted"
	EventAdminUserStatusChanged  = "admin:user-status-changed"
)

type UserRef struct {
	Id       string `json:"id"`
	Username string `json:"username"`
}

type RoomUserJoinedPayload struct {
	RoomId string  `json:"roomId"`
	User   UserRef `json:"user"`
}

type RoomUserLeftPayload struct {
	RoomId string `json:"roomId"`
	UserId string `json:"userId"`
}

type TypingPayload struct {
	UserId   string `json:"userId"`
	Username string `json:"username"`
	RoomId   string `json:"roomId"`
}

type UserStatusPayload struct {
	UserId   string `json:"userId"`
	Username string `json:"username"`
}

type UserStatusChangedPayload struct {
	UserId   string `json:"userId"`
	IsOnline bool   `json:"isOnline"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

type RoomOnlinePayload struct {
	RoomId        string `json:"roomId"`
	OnlineMembers int    `json:"onlineMembers"`
	TotalMembers  int    `json:"totalMembers"`
}

type RoomMessagesPayload struct {
	RoomId        string `json:"roomId"`
	MessagesCount int    `json:"messagesCount"`
}

const (
	SystemMessageType = "SYSTEM"
	ActionUserJoined  = "USER_JOINED"
	ActionUserLeft    = "USER_LEFT"
)

type SystemUser struct {
	Id          string  `json:"id"`
	Username    string  `json:"username"`
	DisplayName *string `json:"displayName"`
}

// SystemMessage is a synthetic, never persisted room notice.
type SystemMessage struct {
	Id        string     `json:"id"`
	Type      string     `json:"type"`
	Action    string     `json:"action"`
	Content   string     `json:"content"`
	RoomId    string     `json:"roomId"`
	User      SystemUser `json:"user"`
	CreatedAt time.Time  `json:"createdAt"`
}
