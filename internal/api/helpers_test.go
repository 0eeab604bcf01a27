package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/npezzotti/chatty/internal/config"
	"github.com/npezzotti/chatty/internal/database"
	"github.com/npezzotti/chatty/internal/fanout"
	"github.com/npezzotti/chatty/internal/presence"
	"github.com/npezzotti/chatty/internal/server"
	"github.com/npezzotti/chatty/internal/service"
	"github.com/npezzotti/chatty/internal/stats"
	"github.com/npezzotti/chatty/internal/testutil"
	"github.com/npezzotti/chatty/internal/types"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	testSigningKey = []byte("test-signing-key")
	testRefreshKey = []byte("test-refresh-key")
)

type testApp struct {
	app      *GoChatApp
	repo     *database.MockGoChatRepository
	store    *presence.RedisStore
	mr       *miniredis.Miniredis
	registry *server.Registry
	handler  http.Handler
}

func testConfig() *config.Config {
	return &config.Config{
		ServerAddr:     "localhost:0",
		SigningKey:     testSigningKey,
		TokenExpiry:    15 * time.Minute,
		RefreshKey:     testRefreshKey,
		RefreshExpiry:  7 * 24 * time.Hour,
		AllowedOrigins: []string{"http://localhost:3000"},
	}
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	log := testutil.TestLogger(t)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	store := presence.NewRedisStoreWithClient(client, log)

	repo := &database.MockGoChatRepository{}
	t.Cleanup(func() { repo.AssertExpectations(t) })

	su := &stats.MockStatsUpdater{}
	su.On("RegisterMetric", mock.Anything).Maybe()
	su.On("Incr", mock.Anything).Maybe()
	su.On("Decr", mock.Anything).Maybe()

	registry := server.NewRegistry(log, su)
	coord := fanout.NewCoordinator(log, registry, store, repo)
	gateway := server.NewGateway(log, registry, repo, store, coord)
	rooms := service.NewRoomService(log, repo, coord.Hook())

	app := NewGoChatApp(http.NewServeMux(), log, Deps{
		DB:       repo,
		Presence: store,
		Gateway:  gateway,
		Rooms:    rooms,
		Messages: service.NewMessageService(log, repo, store, coord.Hook()),
		Admin:    service.NewAdminService(log, repo, store, coord, rooms),
		Users:    service.NewUserService(log, repo),
	}, testConfig())

	return &testApp{
		app:      app,
		repo:     repo,
		store:    store,
		mr:       mr,
		registry: registry,
		handler:  app.Handler(),
	}
}

// allowStats satisfies the dashboard counters fanout reads after writes.
func (ta *testApp) allowStats() {
	ta.repo.On("CountUsers").Return(1, nil).Maybe()
	ta.repo.On("CountRooms").Return(1, nil).Maybe()
	ta.repo.On("CountMessages").Return(1, nil).Maybe()
	ta.repo.On("CountMessagesSince", mock.Anything).Return(0, nil).Maybe()
	ta.repo.On("CountRoomMembers", mock.Anything).Return(1, nil).Maybe()
	ta.repo.On("CountRoomMessages", mock.Anything).Return(1, nil).Maybe()
}

func (ta *testApp) token(t *testing.T, user database.User) string {
	t.Helper()
	token, err := ta.app.createToken(user, time.Minute)
	require.NoError(t, err)
	return token
}

func (ta *testApp) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	buf := &bytes.Buffer{}
	if body != nil {
		require.NoError(t, json.NewEncoder(buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rr := httptest.NewRecorder()
	ta.handler.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v))
	return v
}

// findCookie returns the named cookie set on the response, or nil.
func findCookie(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, cookie := range rr.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

var (
	alice = database.User{Id: "u1", Email: "alice@example.com", Username: "alice", Role: types.RoleUser}
	admin = database.User{Id: "u9", Email: "root@example.com", Username: "root", Role: types.RoleAdmin}
)
