package server

import "github.com/npezzotti/chatty/internal/stats"

// Subscribe adds connId to a room. added is false when the connection was
// already subscribed or is unknown. firstForUser is true when no other
// connection of the same user was subscribed before.
func (r *Registry) Subscribe(connId, roomId string) (added, firstForUser bool) {
	r.mu.Lock()
	sess, ok := r.sessions[connId]
	if !ok {
		r.mu.Unlock()
		return false, false
	}
	if _, joined := sess.Rooms[roomId]; joined {
		r.mu.Unlock()
		return false, false
	}

	firstForUser = !r.userSubscribedLocked(sess.UserId, roomId)

	sess.Rooms[roomId] = struct{}{}
	subs, ok := r.rooms[roomId]
	if !ok {
		subs = make(map[string]struct{})
		r.rooms[roomId] = subs
	}
	subs[connId] = struct{}{}
	r.mu.Unlock()

	r.stats.Incr(stats.NumRoomSubscriptions)
	r.log.Debug().Str("conn_id", connId).Str("room_id", roomId).Msg("subscribed")

	return true, firstForUser
}

// Unsubscribe removes connId from a room. userStillSubscribed reports
// whether another connection of the same user remains in the room.
func (r *Registry) Unsubscribe(connId, roomId string) (removed, userStillSubscribed bool) {
	r.mu.Lock()
	sess, ok := r.sessions[connId]
	if !ok {
		r.mu.Unlock()
		return false, false
	}
	if _, joined := sess.Rooms[roomId]; !joined {
		r.mu.Unlock()
		return false, false
	}

	delete(sess.Rooms, roomId)
	r.removeSubscriber(roomId, connId)
	userStillSubscribed = r.userSubscribedLocked(sess.UserId, roomId)
	r.mu.Unlock()

	r.stats.Decr(stats.NumRoomSubscriptions)
	r.log.Debug().Str("conn_id", connId).Str("room_id", roomId).Msg("unsubscribed")

	return true, userStillSubscribed
}

// UnsubscribeUser removes every connection of userId from a room and
// returns how many were removed.
func (r *Registry) UnsubscribeUser(userId, roomId string) int {
	r.mu.Lock()
	removed := 0
	for connId := range r.users[userId] {
		sess := r.sessions[connId]
		if _, joined := sess.Rooms[roomId]; !joined {
			continue
		}
		delete(sess.Rooms, roomId)
		r.removeSubscriber(roomId, connId)
		removed++
	}
	r.mu.Unlock()

	for i := 0; i < removed; i++ {
		r.stats.Decr(stats.NumRoomSubscriptions)
	}

	return removed
}

// RemoveRoom drops all subscriptions to a room.
func (r *Registry) RemoveRoom(roomId string) int {
	r.mu.Lock()
	subs := r.rooms[roomId]
	for connId := range subs {
		if sess, ok := r.sessions[connId]; ok {
			delete(sess.Rooms, roomId)
		}
	}
	delete(r.rooms, roomId)
	r.mu.Unlock()

	for range subs {
		r.stats.Decr(stats.NumRoomSubscriptions)
	}
	r.log.Debug().Str("room_id", roomId).Int("subscribers", len(subs)).Msg("removed room")

	return len(subs)
}

// UserSubscribed reports whether any connection of userId is in the room.
func (r *Registry) UserSubscribed(userId, roomId string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.userSubscribedLocked(userId, roomId)
}

func (r *Registry) RoomSubscriberCount(roomId string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[roomId])
}

// BroadcastToRoom sends an event to every connection subscribed to roomId.
func (r *Registry) BroadcastToRoom(roomId, event string, payload any) int {
	return r.BroadcastToRoomExcept(roomId, "", event, payload)
}

// BroadcastToRoomExcept sends an event to the room's subscribers other
// than exceptConnId.
func (r *Registry) BroadcastToRoomExcept(roomId, exceptConnId, event string, payload any) int {
	r.mu.RLock()
	subs := r.rooms[roomId]
	recipients := make([]Conn, 0, len(subs))
	for connId := range subs {
		if connId == exceptConnId {
			continue
		}
		recipients = append(recipients, r.conns[connId])
	}
	r.mu.RUnlock()

	return r.deliver(recipients, NewEvent(event, payload))
}

// removeSubscriber must be called with mu held.
func (r *Registry) removeSubscriber(roomId, connId string) {
	subs, ok := r.rooms[roomId]
	if !ok {
		return
	}
	delete(subs, connId)
	if len(subs) == 0 {
		delete(r.rooms, roomId)
	}
}

// userSubscribedLocked must be called with mu held.
func (r *Registry) userSubscribedLocked(userId, roomId string) bool {
	for connId := range r.users[userId] {
		if sess, ok := r.sessions[connId]; ok {
			if _, joined := sess.Rooms[roomId]; joined {
				return true
			}
		}
	}
	return false
}
