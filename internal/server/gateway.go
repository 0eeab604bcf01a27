package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/npezzotti/chatty/internal/database"
	"github.com/npezzotti/chatty/internal/fanout"
	"github.com/npezzotti/chatty/internal/presence"
	"github.com/npezzotti/chatty/internal/types"
	"github.com/rs/zerolog"
)

// Gateway drives the connection lifecycle: it registers authenticated
// connections, handles room and typing events, and cleans up on
// disconnect. Presence and broadcast failures never abort a step.
type Gateway struct {
	log      zerolog.Logger
	registry *Registry
	db       database.GoChatRepository
	presence presence.Store
	notifier *fanout.Coordinator

	// statusMu orders online/offline writes so a disconnect racing a
	// reconnect of the same user cannot leave them marked offline.
	statusMu sync.Mutex

	lifeMu  sync.Mutex
	closing bool
	active  sync.WaitGroup
}

func NewGateway(log zerolog.Logger, registry *Registry, db database.GoChatRepository, store presence.Store, notifier *fanout.Coordinator) *Gateway {
	return &Gateway{
		log:      log.With().Str("component", "gateway").Logger(),
		registry: registry,
		db:       db,
		presence: store,
		notifier: notifier,
	}
}

func (g *Gateway) Registry() *Registry {
	return g.registry
}

// Connect registers an authenticated connection. The user is marked
// online only for their first live connection.
func (g *Gateway) Connect(ctx context.Context, conn Conn, id Identity) {
	if !g.registry.Register(conn, id) {
		return
	}

	g.statusMu.Lock()
	if err := g.db.SetUserOnline(id.UserId, true); err != nil {
		g.log.Error().Err(err).Str("user_id", id.UserId).Msg("mark user online")
	}
	g.presence.SetUserOnline(ctx, id.UserId)
	g.statusMu.Unlock()

	g.registry.BroadcastGlobal(types.EventUserOnline, types.UserStatusPayload{
		UserId:   id.UserId,
		Username: id.Username,
	})
	g.registry.BroadcastToAdmins(types.EventAdminUserStatusChanged, types.UserStatusChangedPayload{
		UserId:   id.UserId,
		IsOnline: true,
	})
	g.notifier.BroadcastStats(ctx)

	g.log.Info().Str("user_id", id.UserId).Str("username", id.Username).Msg("user connected")
}

// HandleEvent dispatches an inbound event from connId.
func (g *Gateway) HandleEvent(ctx context.Context, connId string, ev ClientEvent) {
	sess, ok := g.registry.Session(connId)
	if !ok {
		return
	}

	switch ev.Name {
	case types.EventRoomJoin, types.EventRoomLeave, types.EventTypingStart, types.EventTypingStop:
	default:
		g.reply(connId, ErrUnknownEvent(ev.Name))
		return
	}

	roomId, ok := roomIdFromData(ev.Data)
	if !ok {
		g.reply(connId, ErrorEvent("invalid room id"))
		return
	}

	switch ev.Name {
	case types.EventRoomJoin:
		g.Join(ctx, sess, roomId)
	case types.EventRoomLeave:
		g.Leave(ctx, sess, roomId)
	case types.EventTypingStart:
		g.Typing(sess, roomId, true)
	case types.EventTypingStop:
		g.Typing(sess, roomId, false)
	}
}

// Join subscribes the session to a room it holds a durable membership
// for. A missing membership yields an error event and no state change.
func (g *Gateway) Join(ctx context.Context, sess Session, roomId string) {
	if _, err := g.db.GetMembership(sess.UserId, roomId); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			g.reply(sess.ConnId, ErrNotMember())
			return
		}
		g.log.Error().Err(err).Str("room_id", roomId).Str("user_id", sess.UserId).Msg("lookup membership")
		g.reply(sess.ConnId, ErrJoinFailed())
		return
	}

	added, firstForUser := g.registry.Subscribe(sess.ConnId, roomId)
	if !added || !firstForUser {
		return
	}

	g.presence.AddUserToRoom(ctx, roomId, sess.UserId)
	g.registry.BroadcastToRoomExcept(roomId, sess.ConnId, types.EventRoomUserJoined, types.RoomUserJoinedPayload{
		RoomId: roomId,
		User:   types.UserRef{Id: sess.UserId, Username: sess.Username},
	})
	g.notifier.BroadcastRoomOnline(ctx, roomId)

	g.log.Debug().Str("room_id", roomId).Str("user_id", sess.UserId).Msg("joined room")
}

// Leave unsubscribes the session from a room. Presence is only released
// when no other connection of the user remains in the room.
func (g *Gateway) Leave(ctx context.Context, sess Session, roomId string) {
	removed, stillSubscribed := g.registry.Unsubscribe(sess.ConnId, roomId)
	if !removed || stillSubscribed {
		return
	}

	g.presence.RemoveUserFromRoom(ctx, roomId, sess.UserId)
	g.registry.BroadcastToRoom(roomId, types.EventRoomUserLeft, types.RoomUserLeftPayload{
		RoomId: roomId,
		UserId: sess.UserId,
	})
	g.notifier.BroadcastRoomOnline(ctx, roomId)

	g.log.Debug().Str("room_id", roomId).Str("user_id", sess.UserId).Msg("left room")
}

// Typing relays typing state to the other subscribers of a joined room.
func (g *Gateway) Typing(sess Session, roomId string, start bool) {
	if !sess.Joined(roomId) {
		return
	}

	event := types.EventUserStoppedTyping
	if start {
		event = types.EventUserTyping
	}

	g.registry.BroadcastToRoomExcept(roomId, sess.ConnId, event, types.TypingPayload{
		UserId:   sess.UserId,
		Username: sess.Username,
		RoomId:   roomId,
	})
}

// Disconnect unregisters connId and releases what it held. Each cleanup
// step runs regardless of earlier failures.
func (g *Gateway) Disconnect(ctx context.Context, connId string) {
	dep, ok := g.registry.Unregister(connId)
	if !ok {
		return
	}
	userId := dep.Session.UserId

	cleaned := make(map[string]struct{}, len(dep.ReleasedRooms))
	for _, roomId := range dep.ReleasedRooms {
		g.presence.RemoveUserFromRoom(ctx, roomId, userId)
		g.notifier.BroadcastRoomOnline(ctx, roomId)
		cleaned[roomId] = struct{}{}
	}

	if !dep.LastConnection {
		return
	}

	g.statusMu.Lock()
	if g.registry.UserConnectionCount(userId) > 0 {
		// reconnected since Unregister; that connection owns the status
		g.statusMu.Unlock()
		return
	}
	if err := g.db.SetUserOnline(userId, false); err != nil {
		g.log.Error().Err(err).Str("user_id", userId).Msg("mark user offline")
	}
	g.presence.SetUserOffline(ctx, userId)
	g.statusMu.Unlock()

	for _, roomId := range g.presence.GetUserRooms(ctx, userId) {
		if _, done := cleaned[roomId]; done {
			continue
		}
		g.presence.RemoveUserFromRoom(ctx, roomId, userId)
		g.notifier.BroadcastRoomOnline(ctx, roomId)
		cleaned[roomId] = struct{}{}
	}

	g.registry.BroadcastGlobal(types.EventUserOffline, types.UserStatusPayload{
		UserId:   userId,
		Username: dep.Session.Username,
	})
	g.registry.BroadcastToAdmins(types.EventAdminUserStatusChanged, types.UserStatusChangedPayload{
		UserId:   userId,
		IsOnline: false,
	})
	g.notifier.BroadcastStats(ctx)

	g.log.Info().Str("user_id", userId).Str("username", dep.Session.Username).Msg("user disconnected")
}

// Shutdown closes every live connection and waits until each served
// client has finished its disconnect cleanup or ctx is done. Clients that
// start serving afterwards are refused.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.lifeMu.Lock()
	g.closing = true
	g.lifeMu.Unlock()

	g.log.Info().Int("connections", g.registry.ConnectionCount()).Msg("closing connections")
	g.registry.CloseAll()

	done := make(chan struct{})
	go func() {
		g.active.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for connections: %w", ctx.Err())
	}
}

// track reserves a slot for a client about to serve. It reports false
// once Shutdown has started.
func (g *Gateway) track() bool {
	g.lifeMu.Lock()
	defer g.lifeMu.Unlock()
	if g.closing {
		return false
	}
	g.active.Add(1)
	return true
}

func (g *Gateway) untrack() {
	g.active.Done()
}

func (g *Gateway) shuttingDown() bool {
	g.lifeMu.Lock()
	defer g.lifeMu.Unlock()
	return g.closing
}

func (g *Gateway) reply(connId string, ev *Event) {
	g.registry.SendTo(connId, ev)
}
