package server

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/npezzotti/chatty/internal/database"
	"github.com/npezzotti/chatty/internal/fanout"
	"github.com/npezzotti/chatty/internal/presence"
	"github.com/npezzotti/chatty/internal/stats"
	"github.com/npezzotti/chatty/internal/testutil"
	"github.com/npezzotti/chatty/internal/types"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/mock"
)

type fakeConn struct {
	id     string
	mu     sync.Mutex
	events []*Event
	full   bool
	closed bool
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (c *fakeConn) ID() string {
	return c.id
}

func (c *fakeConn) Send(ev *Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full || c.closed {
		return false
	}
	c.events = append(c.events, ev)
	return true
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) received() []*Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Event(nil), c.events...)
}

func (c *fakeConn) named(name string) []*Event {
	var out []*Event
	for _, ev := range c.received() {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
}

func newTestStats() *stats.MockStatsUpdater {
	su := &stats.MockStatsUpdater{}
	su.On("RegisterMetric", mock.Anything).Maybe()
	su.On("Incr", mock.Anything).Maybe()
	su.On("Decr", mock.Anything).Maybe()
	return su
}

func newTestRegistry(t *testing.T) *Registry {
	return NewRegistry(testutil.TestLogger(t), newTestStats())
}

type testEnv struct {
	gateway  *Gateway
	registry *Registry
	db       *database.MockGoChatRepository
	presence *presence.RedisStore
	redis    *miniredis.Miniredis
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := testutil.TestLogger(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	db := &database.MockGoChatRepository{}
	db.On("CountUsers").Return(3, nil).Maybe()
	db.On("CountRooms").Return(2, nil).Maybe()
	db.On("CountMessages").Return(10, nil).Maybe()
	db.On("CountMessagesSince", mock.Anything).Return(4, nil).Maybe()
	db.On("CountRoomMembers", mock.Anything).Return(2, nil).Maybe()
	db.On("CountRoomMessages", mock.Anything).Return(5, nil).Maybe()
	db.On("SetUserOnline", mock.Anything, mock.Anything).Return(nil).Maybe()

	store := presence.NewRedisStoreWithClient(client, logger)
	registry := newTestRegistry(t)
	coord := fanout.NewCoordinator(logger, registry, store, db)

	return &testEnv{
		gateway:  NewGateway(logger, registry, db, store, coord),
		registry: registry,
		db:       db,
		presence: store,
		redis:    mr,
	}
}

// connect registers a fake connection for a user through the gateway.
func (e *testEnv) connect(connId, userId, role string) *fakeConn {
	conn := newFakeConn(connId)
	e.gateway.Connect(context.Background(), conn, Identity{
		UserId:   userId,
		Username: "user-" + userId,
		Role:     role,
	})
	return conn
}

func (e *testEnv) allowMembership(userId, roomId string) {
	e.db.On("GetMembership", userId, roomId).Return(database.Membership{
		Id:     "m-" + userId + "-" + roomId,
		UserId: userId,
		RoomId: roomId,
		Role:   types.MemberRoleMember,
	}, nil)
}

func (e *testEnv) join(connId, roomId string) {
	sess, _ := e.registry.Session(connId)
	e.gateway.Join(context.Background(), sess, roomId)
}
