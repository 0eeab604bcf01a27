package database

import (
	"errors"
	"time"
)

// ErrDuplicate is returned when an insert or update violates a unique
// constraint.
var ErrDuplicate = errors.New("duplicate record")

type GoChatRepository interface {
	Ping() error

	CreateUser(params CreateUserParams) (User, error)
	UpdateUser(params UpdateUserParams) (User, error)
	GetUserById(id string) (User, error)
	GetUserByLogin(emailOrUsername string) (User, error)
	SetUserOnline(id string, online bool) error
	ListUsersWithRooms() ([]UserWithRooms, error)
	SearchUsers(term, excludeId string, limit int) ([]User, error)
	CountUsers() (int, error)

	CreateRoom(params CreateRoomParams) (Room, error)
	GetRoom(id, viewerId string) (Room, error)
	RoomSlugExists(slug, excludeId string) (bool, error)
	UpdateRoom(params UpdateRoomParams) (Room, error)
	DeleteRoom(id string) error
	TouchRoom(id string) error
	ListJoinedRooms(userId string) ([]Room, error)
	ListPublicRooms(viewerId string, limit int) ([]Room, error)
	SearchRooms(term, viewerId string, limit int) ([]Room, error)
	ListRooms() ([]Room, error)
	CountRooms() (int, error)

	GetMembership(userId, roomId string) (Membership, error)
	CreateMembership(userId, roomId, role string) (Membership, error)
	DeleteMembership(userId, roomId string) error
	UpdateMembershipRole(userId, roomId, role string) error
	ListRoomMembers(roomId string) ([]Member, error)
	CountRoomMembers(roomId string) (int, error)

	CreateMessage(params CreateMessageParams) (Message, error)
	GetMessage(id string) (Message, error)
	UpdateMessageContent(id, content string) (Message, error)
	DeleteMessage(id string) error
	ListMessages(roomId string, before *time.Time, limit int) ([]Message, error)
	CountMessages() (int, error)
	CountMessagesSince(since time.Time) (int, error)
	CountRoomMessages(roomId string) (int, error)
}
