package database

import (
	"time"

	"github.com/stretchr/testify/mock"
)

type MockGoChatRepository struct {
	mock.Mock
}

func (m *MockGoChatRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockGoChatRepository) CreateUser(params CreateUserParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockGoChatRepository) UpdateUser(params UpdateUserParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockGoChatRepository) GetUserById(id string) (User, error) {
	args := m.Called(id)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockGoChatRepository) GetUserByLogin(emailOrUsername string) (User, error) {
	args := m.Called(emailOrUsername)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockGoChatRepository) SetUserOnline(id string, online bool) error {
	args := m.Called(id, online)
	return args.Error(0)
}
func (m *MockGoChatRepository) ListUsersWithRooms() ([]UserWithRooms, error) {
	args := m.Called()
	return args.Get(0).([]UserWithRooms), args.Error(1)
}
func (m *MockGoChatRepository) SearchUsers(term, excludeId string, limit int) ([]User, error) {
	args := m.Called(term, excludeId, limit)
	return args.Get(0).([]User), args.Error(1)
}
func (m *MockGoChatRepository) CountUsers() (int, error) {
	args := m.Called()
	return args.Int(0), args.Error(1)
}
func (m *MockGoChatRepository) CreateRoom(params CreateRoomParams) (Room, error) {
	args := m.Called(params)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockGoChatRepository) GetRoom(id, viewerId string) (Room, error) {
	args := m.Called(id, viewerId)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockGoChatRepository) RoomSlugExists(slug, excludeId string) (bool, error) {
	args := m.Called(slug, excludeId)
	return args.Bool(0), args.Error(1)
}
func (m *MockGoChatRepository) UpdateRoom(params UpdateRoomParams) (Room, error) {
	args := m.Called(params)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockGoChatRepository) DeleteRoom(id string) error {
	args := m.Called(id)
	return args.Error(0)
}
func (m *MockGoChatRepository) TouchRoom(id string) error {
	args := m.Called(id)
	return args.Error(0)
}
func (m *MockGoChatRepository) ListJoinedRooms(userId string) ([]Room, error) {
	args := m.Called(userId)
	return args.Get(0).([]Room), args.Error(1)
}
func (m *MockGoChatRepository) ListPublicRooms(viewerId string, limit int) ([]Room, error) {
	args := m.Called(viewerId, limit)
	return args.Get(0).([]Room), args.Error(1)
}
func (m *MockGoChatRepository) SearchRooms(term, viewerId string, limit int) ([]Room, error) {
	args := m.Called(term, viewerId, limit)
	return args.Get(0).([]Room), args.Error(1)
}
func (m *MockGoChatRepository) ListRooms() ([]Room, error) {
	args := m.Called()
	return args.Get(0).([]Room), args.Error(1)
}
func (m *MockGoChatRepository) CountRooms() (int, error) {
	args := m.Called()
	return args.Int(0), args.Error(1)
}
func (m *MockGoChatRepository) GetMembership(userId, roomId string) (Membership, error) {
	args := m.Called(userId, roomId)
	return args.Get(0).(Membership), args.Error(1)
}
func (m *MockGoChatRepository) CreateMembership(userId, roomId, role string) (Membership, error) {
	args := m.Called(userId, roomId, role)
	return args.Get(0).(Membership), args.Error(1)
}
func (m *MockGoChatRepository) DeleteMembership(userId, roomId string) error {
	args := m.Called(userId, roomId)
	return args.Error(0)
}
func (m *MockGoChatRepository) UpdateMembershipRole(userId, roomId, role string) error {
	args := m.Called(userId, roomId, role)
	return args.Error(0)
}
func (m *MockGoChatRepository) ListRoomMembers(roomId string) ([]Member, error) {
	args := m.Called(roomId)
	return args.Get(0).([]Member), args.Error(1)
}
func (m *MockGoChatRepository) CountRoomMembers(roomId string) (int, error) {
	args := m.Called(roomId)
	return args.Int(0), args.Error(1)
}
func (m *MockGoChatRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	args := m.Called(params)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockGoChatRepository) GetMessage(id string) (Message, error) {
	args := m.Called(id)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockGoChatRepository) UpdateMessageContent(id, content string) (Message, error) {
	args := m.Called(id, content)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockGoChatRepository) DeleteMessage(id string) error {
	args := m.Called(id)
	return args.Error(0)
}
func (m *MockGoChatRepository) ListMessages(roomId string, before *time.Time, limit int) ([]Message, error) {
	args := m.Called(roomId, before, limit)
	return args.Get(0).([]Message), args.Error(1)
}
func (m *MockGoChatRepository) CountMessages() (int, error) {
	args := m.Called()
	return args.Int(0), args.Error(1)
}
func (m *MockGoChatRepository) CountMessagesSince(since time.Time) (int, error) {
	args := m.Called(since)
	return args.Int(0), args.Error(1)
}
func (m *MockGoChatRepository) CountRoomMessages(roomId string) (int, error) {
	args := m.Called(roomId)
	return args.Int(0), args.Error(1)
}
