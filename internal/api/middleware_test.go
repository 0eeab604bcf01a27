package api

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/npezzotti/chatty/internal/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorHandler_PanicRecovery(t *testing.T) {
	buf := &bytes.Buffer{}
	app := &GoChatApp{
		log: zerolog.New(buf),
	}

	panicHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(errors.New("test panic"))
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	handler := app.errorHandler(panicHandler)
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "close", rr.Header().Get("Connection"))
	assert.Contains(t, buf.String(), "test panic")
}

func Test_errorHandler_NoPanic(t *testing.T) {
	app := &GoChatApp{}

	called := false
	okHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	handler := app.errorHandler(okHandler)
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())
	assert.True(t, called, "expected handler to be called")
}

func TestAuthMiddleware(t *testing.T) {
	ta := newTestApp(t)
	valid := ta.token(t, alice)

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserId:         "u1",
		StandardClaims: jwt.StandardClaims{ExpiresAt: time.Now().Add(-time.Minute).Unix()},
	}).SignedString(testSigningKey)
	require.NoError(t, err)

	wrongKey, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserId:         "u1",
		StandardClaims: jwt.StandardClaims{ExpiresAt: time.Now().Add(time.Minute).Unix()},
	}).SignedString([]byte("other-key"))
	require.NoError(t, err)

	tcases := []struct {
		name       string
		setup      func(r *http.Request)
		wantStatus int
	}{
		{
			name:       "no token",
			setup:      func(r *http.Request) {},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "bearer header",
			setup:      func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+valid) },
			wantStatus: http.StatusOK,
		},
		{
			name:       "query parameter",
			setup:      func(r *http.Request) { r.URL.RawQuery = "token=" + valid },
			wantStatus: http.StatusOK,
		},
		{
			name:       "cookie",
			setup:      func(r *http.Request) { r.AddCookie(&http.Cookie{Name: tokenCookieKey, Value: valid}) },
			wantStatus: http.StatusOK,
		},
		{
			name:       "expired token",
			setup:      func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+expired) },
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "wrong signing key",
			setup:      func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+wrongKey) },
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			var got *Claims
			handler := ta.app.authMiddleware(func(w http.ResponseWriter, r *http.Request) {
				got, _ = CurrentUser(r.Context())
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			tc.setup(req)
			rr := httptest.NewRecorder()
			handler(rr, req)

			assert.Equal(t, tc.wantStatus, rr.Code)
			if tc.wantStatus == http.StatusOK {
				require.NotNil(t, got)
				assert.Equal(t, "u1", got.UserId)
				assert.Equal(t, "alice", got.Username)
				assert.Contains(t, rr.Header().Get("Cache-Control"), "no-store")
			}
		})
	}
}

func TestAdminMiddleware(t *testing.T) {
	ta := newTestApp(t)

	tcases := []struct {
		name       string
		role       string
		wantStatus int
	}{
		{name: "admin", role: types.RoleAdmin, wantStatus: http.StatusOK},
		{name: "regular user", role: types.RoleUser, wantStatus: http.StatusForbidden},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			user := alice
			user.Role = tc.role

			handler := ta.app.adminMiddleware(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", "Bearer "+ta.token(t, user))
			rr := httptest.NewRecorder()
			handler(rr, req)

			assert.Equal(t, tc.wantStatus, rr.Code)
		})
	}
}
