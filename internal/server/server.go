package server

import (
	"sync"

	"github.com/npezzotti/chatty/internal/stats"
	"github.com/npezzotti/chatty/internal/types"
	"github.com/rs/zerolog"
)

// Conn is a live connection able to receive events.
type Conn interface {
	ID() string
	// Send queues ev without blocking and reports whether it was accepted.
	Send(ev *Event) bool
	Close()
}

// Identity holds the token claims a connection was authenticated with.
type Identity struct {
	UserId   string
	Username string
	Role     string
}

// Session is the per-connection state owned by the Registry.
type Session struct {
	ConnId   string
	UserId   string
	Username string
	Role     string
	Rooms    map[string]struct{}
}

func (s Session) Joined(roomId string) bool {
	_, ok := s.Rooms[roomId]
	return ok
}

func (s *Session) snapshot() Session {
	cp := *s
	cp.Rooms = make(map[string]struct{}, len(s.Rooms))
	for id := range s.Rooms {
		cp.Rooms[id] = struct{}{}
	}
	return cp
}

// Departure describes what an unregistered connection leaves behind.
type Departure struct {
	Session Session
	// LastConnection is true when the user has no other live connection.
	LastConnection bool
	// ReleasedRooms are the rooms this connection had joined that no other
	// connection of the same user still holds.
	ReleasedRooms []string
}

// Registry maps connections to sessions, rooms to subscribed connections,
// and users to their connections. It is safe for concurrent use.
type Registry struct {
	log      zerolog.Logger
	stats    stats.StatsProvider
	mu       sync.RWMutex
	conns    map[string]Conn
	sessions map[string]*Session
	rooms    map[string]map[string]struct{}
	admins   map[string]struct{}
	users    map[string]map[string]struct{}
}

func NewRegistry(log zerolog.Logger, statsProvider stats.StatsProvider) *Registry {
	statsProvider.RegisterMetric(stats.NumActiveConnections)
	statsProvider.RegisterMetric(stats.NumOnlineUsers)
	statsProvider.RegisterMetric(stats.NumRoomSubscriptions)
	statsProvider.RegisterMetric(stats.NumDroppedEvents)

	return &Registry{
		log:      log.With().Str("component", "registry").Logger(),
		stats:    statsProvider,
		conns:    make(map[string]Conn),
		sessions: make(map[string]*Session),
		rooms:    make(map[string]map[string]struct{}),
		admins:   make(map[string]struct{}),
		users:    make(map[string]map[string]struct{}),
	}
}

// Register adds conn and reports whether it is the user's first live
// connection. Admin connections join the admin group.
func (r *Registry) Register(conn Conn, id Identity) bool {
	connId := conn.ID()

	r.mu.Lock()
	r.conns[connId] = conn
	r.sessions[connId] = &Session{
		ConnId:   connId,
		UserId:   id.UserId,
		Username: id.Username,
		Role:     id.Role,
		Rooms:    make(map[string]struct{}),
	}
	if id.Role == types.RoleAdmin {
		r.admins[connId] = struct{}{}
	}
	userConns, ok := r.users[id.UserId]
	if !ok {
		userConns = make(map[string]struct{})
		r.users[id.UserId] = userConns
	}
	userConns[connId] = struct{}{}
	first := len(userConns) == 1
	r.mu.Unlock()

	r.stats.Incr(stats.NumActiveConnections)
	if first {
		r.stats.Incr(stats.NumOnlineUsers)
	}
	r.log.Debug().Str("conn_id", connId).Str("user_id", id.UserId).Bool("first", first).Msg("registered connection")

	return first
}

// Unregister removes a connection and every subscription it held.
func (r *Registry) Unregister(connId string) (Departure, bool) {
	r.mu.Lock()
	sess, ok := r.sessions[connId]
	if !ok {
		r.mu.Unlock()
		return Departure{}, false
	}

	delete(r.sessions, connId)
	delete(r.conns, connId)
	delete(r.admins, connId)

	userConns := r.users[sess.UserId]
	delete(userConns, connId)
	last := len(userConns) == 0
	if last {
		delete(r.users, sess.UserId)
	}

	released := make([]string, 0, len(sess.Rooms))
	for roomId := range sess.Rooms {
		r.removeSubscriber(roomId, connId)
		if !r.userSubscribedLocked(sess.UserId, roomId) {
			released = append(released, roomId)
		}
	}
	r.mu.Unlock()

	r.stats.Decr(stats.NumActiveConnections)
	if last {
		r.stats.Decr(stats.NumOnlineUsers)
	}
	for range sess.Rooms {
		r.stats.Decr(stats.NumRoomSubscriptions)
	}
	r.log.Debug().Str("conn_id", connId).Str("user_id", sess.UserId).Bool("last", last).Msg("unregistered connection")

	return Departure{
		Session:        *sess,
		LastConnection: last,
		ReleasedRooms:  released,
	}, true
}

// Session returns a copy of the session for connId.
func (r *Registry) Session(connId string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.sessions[connId]
	if !ok {
		return Session{}, false
	}
	return sess.snapshot(), true
}

func (r *Registry) UserConnectionCount(userId string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users[userId])
}

func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// BroadcastGlobal sends an event to every connection.
func (r *Registry) BroadcastGlobal(event string, payload any) int {
	r.mu.RLock()
	recipients := make([]Conn, 0, len(r.conns))
	for _, c := range r.conns {
		recipients = append(recipients, c)
	}
	r.mu.RUnlock()

	return r.deliver(recipients, NewEvent(event, payload))
}

// BroadcastToAdmins sends an event to the admin group.
func (r *Registry) BroadcastToAdmins(event string, payload any) int {
	r.mu.RLock()
	recipients := make([]Conn, 0, len(r.admins))
	for connId := range r.admins {
		recipients = append(recipients, r.conns[connId])
	}
	r.mu.RUnlock()

	return r.deliver(recipients, NewEvent(event, payload))
}

// SendTo delivers ev to a single connection.
func (r *Registry) SendTo(connId string, ev *Event) bool {
	r.mu.RLock()
	conn, ok := r.conns[connId]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	return r.deliver([]Conn{conn}, ev) == 1
}

// deliver sends ev to each recipient outside of the lock. A full send
// buffer drops the event for that connection only.
func (r *Registry) deliver(recipients []Conn, ev *Event) int {
	delivered := 0
	for _, c := range recipients {
		if c.Send(ev) {
			delivered++
			continue
		}
		r.stats.Incr(stats.NumDroppedEvents)
		r.log.Warn().Str("conn_id", c.ID()).Str("event", ev.Name).Msg("send buffer full, dropping event")
	}
	return delivered
}

// CloseAll closes every registered connection.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	conns := make([]Conn, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.RUnlock()

	for _, c := range conns {
		c.Close()
	}
}
