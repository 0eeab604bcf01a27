// Package fanout runs after a durable write commits: it keeps the room
// message cache consistent and notifies subscribed connections. Failures
// here are logged and never reach the caller that performed the write.
package fanout

import (
	"context"
	"fmt"
	"time"

	"github.com/npezzotti/chatty/internal/presence"
	"github.com/npezzotti/chatty/internal/types"
	"github.com/rs/zerolog"
)

type Kind int

const (
	MessageCreated Kind = iota + 1
	MessageUpdated
	MessageDeleted
	RoomCreated
	RoomUpdated
	RoomDeleted
	MemberJoined
	MemberLeft
	MemberRemoved
)

func (k Kind) String() string {
	switch k {
	case MessageCreated:
		return "message_created"
	case MessageUpdated:
		return "message_updated"
	case MessageDeleted:
		return "message_deleted"
	case RoomCreated:
		return "room_created"
	case RoomUpdated:
		return "room_updated"
	case RoomDeleted:
		return "room_deleted"
	case MemberJoined:
		return "member_joined"
	case MemberLeft:
		return "member_left"
	case MemberRemoved:
		return "member_removed"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Hook is invoked by services once a mutation has been committed.
type Hook func(ctx context.Context, kind Kind, payload any)

// MessageRef identifies a deleted message.
type MessageRef struct {
	Id     string
	RoomId string
}

// RoomRef identifies a deleted room.
type RoomRef struct {
	Id string
}

// Member identifies a user whose membership of a room changed.
type Member struct {
	RoomId      string
	UserId      string
	Username    string
	DisplayName *string
}

// Broadcaster delivers events to live connections.
type Broadcaster interface {
	BroadcastToRoom(roomId, event string, payload any) int
	BroadcastGlobal(event string, payload any) int
	BroadcastToAdmins(event string, payload any) int
	UnsubscribeUser(userId, roomId string) int
	RemoveRoom(roomId string) int
}

// Counter provides the durable counts shown on the admin dashboard.
type Counter interface {
	CountUsers() (int, error)
	CountRooms() (int, error)
	CountMessages() (int, error)
	CountMessagesSince(since time.Time) (int, error)
	CountRoomMembers(roomId string) (int, error)
	CountRoomMessages(roomId string) (int, error)
}

type Coordinator struct {
	log      zerolog.Logger
	hub      Broadcaster
	presence presence.Store
	counts   Counter
	now      func() time.Time
}

func NewCoordinator(log zerolog.Logger, hub Broadcaster, store presence.Store, counts Counter) *Coordinator {
	return &Coordinator{
		log:      log.With().Str("component", "fanout").Logger(),
		hub:      hub,
		presence: store,
		counts:   counts,
		now:      time.Now,
	}
}

// Hook returns AfterCommit as a Hook value.
func (c *Coordinator) Hook() Hook {
	return c.AfterCommit
}

// AfterCommit applies cache updates and fans out events for a committed
// mutation. It never panics and never returns an error.
func (c *Coordinator) AfterCommit(ctx context.Context, kind Kind, payload any) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error().Interface("panic", r).Stringer("kind", kind).Msg("recovered in post-commit hook")
		}
	}()

	switch kind {
	case MessageCreated:
		if msg, ok := payload.(types.Message); ok {
			c.messageCreated(ctx, msg)
			return
		}
	case MessageUpdated:
		if msg, ok := payload.(types.Message); ok {
			c.messageUpdated(ctx, msg)
			return
		}
	case MessageDeleted:
		if ref, ok := payload.(MessageRef); ok {
			c.messageDeleted(ctx, ref)
			return
		}
	case RoomCreated:
		if room, ok := payload.(types.Room); ok {
			c.roomCreated(ctx, room)
			return
		}
	case RoomUpdated:
		if room, ok := payload.(types.Room); ok {
			c.roomUpdated(ctx, room)
			return
		}
	case RoomDeleted:
		if ref, ok := payload.(RoomRef); ok {
			c.roomDeleted(ctx, ref.Id)
			return
		}
	case MemberJoined:
		if m, ok := payload.(Member); ok {
			c.memberJoined(ctx, m)
			return
		}
	case MemberLeft:
		if m, ok := payload.(Member); ok {
			c.memberLeft(ctx, m, true)
			return
		}
	case MemberRemoved:
		if m, ok := payload.(Member); ok {
			c.memberLeft(ctx, m, false)
			return
		}
	}

	c.log.Error().Stringer("kind", kind).Str("payload", fmt.Sprintf("%T", payload)).Msg("unexpected post-commit payload")
}

func (c *Coordinator) messageCreated(ctx context.Context, msg types.Message) {
	c.presence.AppendCachedMessage(ctx, msg.RoomId, msg)
	c.hub.BroadcastToRoom(msg.RoomId, types.EventMessageNew, msg)
	c.BroadcastStats(ctx)
	c.BroadcastRoomMessageCount(ctx, msg.RoomId)
}

func (c *Coordinator) messageUpdated(ctx context.Context, msg types.Message) {
	c.presence.InvalidateRoomCache(ctx, msg.RoomId)
	c.hub.BroadcastToRoom(msg.RoomId, types.EventMessageUpdated, msg)
}

func (c *Coordinator) messageDeleted(ctx context.Context, ref MessageRef) {
	c.presence.InvalidateRoomCache(ctx, ref.RoomId)
	c.hub.BroadcastToRoom(ref.RoomId, types.EventMessageDeleted, ref.Id)
	c.BroadcastRoomMessageCount(ctx, ref.RoomId)
}

func (c *Coordinator) roomCreated(ctx context.Context, room types.Room) {
	if room.IsPrivate {
		return
	}
	c.hub.BroadcastGlobal(types.EventRoomCreated, room)
	c.hub.BroadcastToAdmins(types.EventAdminRoomCreated, room)
	c.BroadcastStats(ctx)
}

func (c *Coordinator) roomUpdated(_ context.Context, room types.Room) {
	c.hub.BroadcastToRoom(room.Id, types.EventRoomUpdated, room)
	c.hub.BroadcastToAdmins(types.EventAdminRoomUpdated, room)
}

func (c *Coordinator) roomDeleted(ctx context.Context, roomId string) {
	c.presence.InvalidateRoomCache(ctx, roomId)
	for _, userId := range c.presence.GetRoomOnlineUsers(ctx, roomId) {
		c.presence.RemoveUserFromRoom(ctx, roomId, userId)
	}
	c.hub.RemoveRoom(roomId)
	c.hub.BroadcastGlobal(types.EventRoomDeleted, roomId)
	c.hub.BroadcastToAdmins(types.EventAdminRoomDeleted, roomId)
	c.BroadcastStats(ctx)
}

func (c *Coordinator) memberJoined(_ context.Context, m Member) {
	c.hub.BroadcastToRoom(m.RoomId, types.EventRoomUserJoinedSystem, c.systemMessage(m, types.ActionUserJoined))
}

// memberLeft drops every live subscription and presence entry the user
// held for the room. A system message is only posted for voluntary leaves.
func (c *Coordinator) memberLeft(ctx context.Context, m Member, announce bool) {
	c.hub.UnsubscribeUser(m.UserId, m.RoomId)
	c.presence.RemoveUserFromRoom(ctx, m.RoomId, m.UserId)
	if announce {
		c.hub.BroadcastToRoom(m.RoomId, types.EventRoomUserLeftSystem, c.systemMessage(m, types.ActionUserLeft))
	}
	c.BroadcastRoomOnline(ctx, m.RoomId)
}

func (c *Coordinator) systemMessage(m Member, action string) types.SystemMessage {
	now := c.now().UTC()
	name := m.Username
	if m.DisplayName != nil && *m.DisplayName != "" {
		name = *m.DisplayName
	}

	var (
		prefix = "sys-joined-"
		verb   = "joined"
	)
	if action == types.ActionUserLeft {
		prefix = "sys-left-"
		verb = "left"
	}

	return types.SystemMessage{
		Id:      fmt.Sprintf("%s%s-%d", prefix, m.UserId, now.UnixMilli()),
		Type:    types.SystemMessageType,
		Action:  action,
		Content: fmt.Sprintf("%s %s the room", name, verb),
		RoomId:  m.RoomId,
		User: types.SystemUser{
			Id:          m.UserId,
			Username:    m.Username,
			DisplayName: m.DisplayName,
		},
		CreatedAt: now,
	}
}

// DashboardStats gathers the admin dashboard counters. Count failures are
// returned; the online user count comes from presence.
func (c *Coordinator) DashboardStats(ctx context.Context) (types.DashboardStats, error) {
	var (
		stats types.DashboardStats
		err   error
	)

	if stats.TotalUsers, err = c.counts.CountUsers(); err != nil {
		return types.DashboardStats{}, fmt.Errorf("count users: %w", err)
	}
	if stats.TotalRooms, err = c.counts.CountRooms(); err != nil {
		return types.DashboardStats{}, fmt.Errorf("count rooms: %w", err)
	}
	if stats.TotalMessages, err = c.counts.CountMessages(); err != nil {
		return types.DashboardStats{}, fmt.Errorf("count messages: %w", err)
	}
	if stats.MessagesToday, err = c.counts.CountMessagesSince(startOfDay(c.now())); err != nil {
		return types.DashboardStats{}, fmt.Errorf("count messages today: %w", err)
	}
	stats.OnlineUsers = len(c.presence.GetOnlineUsers(ctx))

	return stats, nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// BroadcastStats sends fresh dashboard stats to the admin group.
func (c *Coordinator) BroadcastStats(ctx context.Context) {
	stats, err := c.DashboardStats(ctx)
	if err != nil {
		c.log.Error().Err(err).Msg("broadcast stats")
		return
	}
	c.hub.BroadcastToAdmins(types.EventAdminStatsUpdated, stats)
}

// BroadcastRoomOnline sends the room's online and total member counts to
// the admin group.
func (c *Coordinator) BroadcastRoomOnline(ctx context.Context, roomId string) {
	total, err := c.counts.CountRoomMembers(roomId)
	if err != nil {
		c.log.Error().Err(err).Str("room_id", roomId).Msg("broadcast room online")
		return
	}
	c.hub.BroadcastToAdmins(types.EventAdminRoomOnlineUpdated, types.RoomOnlinePayload{
		RoomId:        roomId,
		OnlineMembers: c.presence.GetRoomOnlineCount(ctx, roomId),
		TotalMembers:  total,
	})
}

// BroadcastRoomMessageCount sends the room's message count to the admin
// group.
func (c *Coordinator) BroadcastRoomMessageCount(_ context.Context, roomId string) {
	count, err := c.counts.CountRoomMessages(roomId)
	if err != nil {
		c.log.Error().Err(err).Str("room_id", roomId).Msg("broadcast room message count")
		return
	}
	c.hub.BroadcastToAdmins(types.EventAdminRoomMessagesUpdate, types.RoomMessagesPayload{
		RoomId:        roomId,
		MessagesCount: count,
	})
}
