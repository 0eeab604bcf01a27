package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/npezzotti/chatty/internal/database"
	"github.com/npezzotti/chatty/internal/fanout"
	"github.com/npezzotti/chatty/internal/presence"
	"github.com/npezzotti/chatty/internal/testutil"
	"github.com/redis/go-redis/v9"
)

type hookCall struct {
	kind    fanout.Kind
	payload any
}

type recordingHook struct {
	mu    sync.Mutex
	calls []hookCall
}

func (h *recordingHook) hook(_ context.Context, kind fanout.Kind, payload any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, hookCall{kind: kind, payload: payload})
}

func (h *recordingHook) kinds() []fanout.Kind {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]fanout.Kind, 0, len(h.calls))
	for _, c := range h.calls {
		out = append(out, c.kind)
	}
	return out
}

// nopHub satisfies fanout.Broadcaster without any live connections.
type nopHub struct{}

func (nopHub) BroadcastToRoom(string, string, any) int { return 0 }
func (nopHub) BroadcastGlobal(string, any) int         { return 0 }
func (nopHub) BroadcastToAdmins(string, any) int       { return 0 }
func (nopHub) UnsubscribeUser(string, string) int      { return 0 }
func (nopHub) RemoveRoom(string) int                   { return 0 }

func newTestStore(t *testing.T) *presence.RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return presence.NewRedisStoreWithClient(client, testutil.TestLogger(t))
}

var baseTime = time.Date(2025, 3, 4, 12, 0, 0, 0, time.UTC)

func dbMessage(i int) database.Message {
	ts := baseTime.Add(time.Duration(i) * time.Minute)
	return database.Message{
		Id:             fmt.Sprintf("m%d", i),
		Content:        fmt.Sprintf("message %d", i),
		RoomId:         "r1",
		SenderId:       "u1",
		SenderUsername: "alice",
		CreatedAt:      ts,
		UpdatedAt:      ts,
	}
}

// newestFirst returns messages from..to in descending creation order.
func newestFirst(from, to int) []database.Message {
	out := make([]database.Message, 0, to-from+1)
	for i := to; i >= from; i-- {
		out = append(out, dbMessage(i))
	}
	return out
}

func strPtr(s string) *string { return &s }
