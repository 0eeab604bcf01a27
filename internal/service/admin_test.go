package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/npezzotti/chatty/internal/database"
	"github.com/npezzotti/chatty/internal/errs"
	"github.com/npezzotti/chatty/internal/fanout"
	"github.com/npezzotti/chatty/internal/testutil"
	"github.com/npezzotti/chatty/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestAdminService_Stats(t *testing.T) {
	ctx := context.Background()
	repo := &database.MockGoChatRepository{}
	defer repo.AssertExpectations(t)
	store := newTestStore(t)
	coord := fanout.NewCoordinator(testutil.TestLogger(t), nopHub{}, store, repo)
	svc := NewAdminService(testutil.TestLogger(t), repo, store, coord, NewRoomService(testutil.TestLogger(t), repo, nil))

	store.SetUserOnline(ctx, "u1")
	repo.On("CountUsers").Return(4, nil).Once()
	repo.On("CountRooms").Return(2, nil).Once()
	repo.On("CountMessages").Return(30, nil).Once()
	repo.On("CountMessagesSince", mock.AnythingOfType("time.Time")).Return(7, nil).Once()

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.DashboardStats{
		TotalUsers:    4,
		TotalRooms:    2,
		TotalMessages: 30,
		OnlineUsers:   1,
		MessagesToday: 7,
	}, stats)
}

func TestAdminService_Users(t *testing.T) {
	ctx := context.Background()
	repo := &database.MockGoChatRepository{}
	defer repo.AssertExpectations(t)
	store := newTestStore(t)
	svc := NewAdminService(testutil.TestLogger(t), repo, store, nil, nil)

	store.SetUserOnline(ctx, "u2")
	repo.On("ListUsersWithRooms").Return([]database.UserWithRooms{
		{User: database.User{Id: "u1", Username: "alice"}, Rooms: []database.RoomRef{{Id: "r1", Name: "General", Slug: "general"}}},
		{User: database.User{Id: "u2", Username: "bob"}},
	}, nil).Once()

	users, err := svc.Users(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.False(t, users[0].IsOnline)
	assert.Equal(t, []types.RoomRef{{Id: "r1", Name: "General", Slug: "general"}}, users[0].Rooms)
	assert.True(t, users[1].IsOnline)
	assert.Empty(t, users[1].Rooms)
}

func TestAdminService_Rooms(t *testing.T) {
	ctx := context.Background()
	repo := &database.MockGoChatRepository{}
	defer repo.AssertExpectations(t)
	store := newTestStore(t)
	svc := NewAdminService(testutil.TestLogger(t), repo, store, nil, nil)

	last := baseTime.Add(time.Hour)
	store.AddUserToRoom(ctx, "r1", "u1")
	store.AddUserToRoom(ctx, "r1", "u2")
	repo.On("ListRooms").Return([]database.Room{
		{Id: "r1", Name: "General", MembersCount: 5, MessagesCount: 12, LastMessageAt: &last},
		{Id: "r2", Name: "Quiet", MembersCount: 1},
	}, nil).Once()

	rooms, err := svc.Rooms(ctx)
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, 2, rooms[0].OnlineMembers)
	assert.Equal(t, 5, rooms[0].TotalMembers)
	assert.Equal(t, 12, rooms[0].MessagesCount)
	assert.Equal(t, &last, rooms[0].LastMessageAt)
	assert.Equal(t, 0, rooms[1].OnlineMembers)
	assert.Nil(t, rooms[1].LastMessageAt)
}

func TestAdminService_UpdateRoom(t *testing.T) {
	repo := &database.MockGoChatRepository{}
	defer repo.AssertExpectations(t)
	hook := &recordingHook{}
	rooms := NewRoomService(testutil.TestLogger(t), repo, hook.hook)
	svc := NewAdminService(testutil.TestLogger(t), repo, newTestStore(t), nil, rooms)

	private := true
	repo.On("UpdateRoom", database.UpdateRoomParams{RoomId: "r1", IsPrivate: &private}).
		Return(database.Room{Id: "r1", IsPrivate: true}, nil).Once()
	repo.On("GetRoom", "r1", "").Return(database.Room{Id: "r1", IsPrivate: true, MembersCount: 3}, nil).Once()

	room, err := svc.UpdateRoom(context.Background(), "r1", UpdateRoomInput{IsPrivate: &private})
	require.NoError(t, err)
	assert.True(t, room.IsPrivate)
	assert.Equal(t, 3, room.TotalMembers)
	assert.Equal(t, []fanout.Kind{fanout.RoomUpdated}, hook.kinds())
}

func TestAdminService_DeleteRoom(t *testing.T) {
	t.Run("invalidates cache", func(t *testing.T) {
		ctx := context.Background()
		repo := &database.MockGoChatRepository{}
		defer repo.AssertExpectations(t)
		store := newTestStore(t)
		coord := fanout.NewCoordinator(testutil.TestLogger(t), nopHub{}, store, repo)
		rooms := NewRoomService(testutil.TestLogger(t), repo, coord.Hook())
		svc := NewAdminService(testutil.TestLogger(t), repo, store, coord, rooms)

		store.CacheMessages(ctx, "r1", []types.Message{ToMessage(dbMessage(1))})
		store.AddUserToRoom(ctx, "r1", "u1")

		repo.On("GetRoom", "r1", "").Return(database.Room{Id: "r1"}, nil).Once()
		repo.On("DeleteRoom", "r1").Return(nil).Once()
		repo.On("CountUsers").Return(1, nil).Maybe()
		repo.On("CountRooms").Return(0, nil).Maybe()
		repo.On("CountMessages").Return(0, nil).Maybe()
		repo.On("CountMessagesSince", mock.Anything).Return(0, nil).Maybe()

		require.NoError(t, svc.DeleteRoom(ctx, "r1"))

		_, ok := store.GetCachedMessages(ctx, "r1")
		assert.False(t, ok)
		assert.Zero(t, store.GetRoomOnlineCount(ctx, "r1"))
	})

	t.Run("missing room", func(t *testing.T) {
		repo := &database.MockGoChatRepository{}
		defer repo.AssertExpectations(t)
		svc := NewAdminService(testutil.TestLogger(t), repo, newTestStore(t), nil, NewRoomService(testutil.TestLogger(t), repo, nil))

		repo.On("GetRoom", "r9", "").Return(database.Room{}, sql.ErrNoRows).Once()

		err := svc.DeleteRoom(context.Background(), "r9")
		assert.True(t, errs.Is(err, errs.KindNotFound))
	})
}
