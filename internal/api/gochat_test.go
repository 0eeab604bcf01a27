package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/npezzotti/chatty/internal/database"
	"github.com/npezzotti/chatty/internal/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNewGoChatApp(t *testing.T) {
	mux := http.NewServeMux()
	logger := testutil.TestLogger(t)
	db := &database.MockGoChatRepository{}
	cfg := testConfig()

	app := NewGoChatApp(mux, logger, Deps{DB: db}, cfg)

	assert.NotNil(t, app, "expected app to be initialized")
	assert.NotNil(t, app.mux, "expected server to be initialized")
	assert.NotNil(t, app.validate, "expected validator to be set")
	assert.Equal(t, db, app.db, "expected db to be set")
	assert.Equal(t, cfg.SigningKey, app.signingKey, "expected signing key to be set")
	assert.Equal(t, cfg.TokenExpiry, app.tokenExpiry, "expected token expiry to be set")
	assert.Equal(t, cfg.RefreshKey, app.refreshKey, "expected refresh key to be set")
	assert.Equal(t, cfg.RefreshExpiry, app.refreshExpiry, "expected refresh expiry to be set")
	assert.Equal(t, cfg.ServerAddr, app.mux.Addr, "expected server address to match config")
}

func TestNewGoChatApp_CORS(t *testing.T) {
	ta := newTestApp(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/rooms/r1", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPatch)
	rr := httptest.NewRecorder()
	ta.handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "http://localhost:3000", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rr.Header().Get("Access-Control-Allow-Credentials"))
}
