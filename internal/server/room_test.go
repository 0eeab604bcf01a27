package server

import (
	"testing"

	"github.com/npezzotti/chatty/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestRegistry_Subscribe(t *testing.T) {
	r := newTestRegistry(t)
	r.Register(newFakeConn("c1"), Identity{UserId: "u1"})
	r.Register(newFakeConn("c2"), Identity{UserId: "u1"})

	added, first := r.Subscribe("c1", "r1")
	assert.True(t, added)
	assert.True(t, first)

	added, first = r.Subscribe("c1", "r1")
	assert.False(t, added, "expected repeated subscribe to be a no-op")
	assert.False(t, first)

	added, first = r.Subscribe("c2", "r1")
	assert.True(t, added)
	assert.False(t, first, "expected user to already be present through c1")

	assert.Equal(t, 2, r.RoomSubscriberCount("r1"))
	assert.True(t, r.UserSubscribed("u1", "r1"))

	added, _ = r.Subscribe("missing", "r1")
	assert.False(t, added)
}

func TestRegistry_Unsubscribe(t *testing.T) {
	r := newTestRegistry(t)
	r.Register(newFakeConn("c1"), Identity{UserId: "u1"})
	r.Register(newFakeConn("c2"), Identity{UserId: "u1"})
	r.Subscribe("c1", "r1")
	r.Subscribe("c2", "r1")

	removed, still := r.Unsubscribe("c1", "r1")
	assert.True(t, removed)
	assert.True(t, still)

	removed, still = r.Unsubscribe("c2", "r1")
	assert.True(t, removed)
	assert.False(t, still)
	assert.False(t, r.UserSubscribed("u1", "r1"))

	removed, _ = r.Unsubscribe("c2", "r1")
	assert.False(t, removed, "expected unsubscribe from a room not joined to be a no-op")
}

func TestRegistry_UnsubscribeUser(t *testing.T) {
	r := newTestRegistry(t)
	r.Register(newFakeConn("c1"), Identity{UserId: "u1"})
	r.Register(newFakeConn("c2"), Identity{UserId: "u1"})
	r.Register(newFakeConn("c3"), Identity{UserId: "u2"})
	r.Subscribe("c1", "r1")
	r.Subscribe("c2", "r1")
	r.Subscribe("c3", "r1")

	assert.Equal(t, 2, r.UnsubscribeUser("u1", "r1"))
	assert.False(t, r.UserSubscribed("u1", "r1"))
	assert.Equal(t, 1, r.RoomSubscriberCount("r1"))
}

func TestRegistry_RemoveRoom(t *testing.T) {
	r := newTestRegistry(t)
	r.Register(newFakeConn("c1"), Identity{UserId: "u1"})
	r.Register(newFakeConn("c2"), Identity{UserId: "u2"})
	r.Subscribe("c1", "r1")
	r.Subscribe("c2", "r1")
	r.Subscribe("c2", "r2")

	assert.Equal(t, 2, r.RemoveRoom("r1"))
	assert.Equal(t, 0, r.RoomSubscriberCount("r1"))

	sess, _ := r.Session("c2")
	assert.False(t, sess.Joined("r1"))
	assert.True(t, sess.Joined("r2"))
}

func TestRegistry_BroadcastToRoom(t *testing.T) {
	r := newTestRegistry(t)
	c1 := newFakeConn("c1")
	c2 := newFakeConn("c2")
	outsider := newFakeConn("c3")
	r.Register(c1, Identity{UserId: "u1"})
	r.Register(c2, Identity{UserId: "u2"})
	r.Register(outsider, Identity{UserId: "u3"})
	r.Subscribe("c1", "r1")
	r.Subscribe("c2", "r1")

	assert.Equal(t, 2, r.BroadcastToRoom("r1", types.EventMessageDeleted, "m1"))
	assert.Len(t, c1.named(types.EventMessageDeleted), 1)
	assert.Len(t, c2.named(types.EventMessageDeleted), 1)
	assert.Empty(t, outsider.received())

	assert.Equal(t, 1, r.BroadcastToRoomExcept("r1", "c1", types.EventUserTyping, types.TypingPayload{UserId: "u1"}))
	assert.Empty(t, c1.named(types.EventUserTyping))
	assert.Len(t, c2.named(types.EventUserTyping), 1)

	assert.Equal(t, 0, r.BroadcastToRoom("empty", types.EventMessageDeleted, "m1"))
}
