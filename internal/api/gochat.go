package api

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/handlers"
	"github.com/npezzotti/chatty/internal/config"
	"github.com/npezzotti/chatty/internal/database"
	"github.com/npezzotti/chatty/internal/presence"
	"github.com/npezzotti/chatty/internal/server"
	"github.com/npezzotti/chatty/internal/service"
	"github.com/rs/zerolog"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Deps are the components the HTTP surface delegates to.
type Deps struct {
	DB       database.GoChatRepository
	Presence presence.Store
	Gateway  *server.Gateway
	Rooms    *service.RoomService
	Messages *service.MessageService
	Admin    *service.AdminService
	Users    *service.UserService
}

type GoChatApp struct {
	log            zerolog.Logger
	db             database.GoChatRepository
	presence       presence.Store
	gateway        *server.Gateway
	rooms          *service.RoomService
	messages       *service.MessageService
	admin          *service.AdminService
	users          *service.UserService
	mux            *http.Server
	validate       *validator.Validate
	signingKey     []byte
	tokenExpiry    time.Duration
	refreshKey     []byte
	refreshExpiry  time.Duration
	allowedOrigins []string
}

func NewGoChatApp(mux *http.ServeMux, logger zerolog.Logger, deps Deps, cfg *config.Config) *GoChatApp {
	s := &GoChatApp{
		log:            logger.With().Str("component", "api").Logger(),
		db:             deps.DB,
		presence:       deps.Presence,
		gateway:        deps.Gateway,
		rooms:          deps.Rooms,
		messages:       deps.Messages,
		admin:          deps.Admin,
		users:          deps.Users,
		validate:       newValidator(),
		signingKey:     cfg.SigningKey,
		tokenExpiry:    cfg.TokenExpiry,
		refreshKey:     cfg.RefreshKey,
		refreshExpiry:  cfg.RefreshExpiry,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)

	mux.HandleFunc("POST /api/auth/register", s.register)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.HandleFunc("GET /api/auth/session", s.authMiddleware(s.session))
	mux.HandleFunc("POST /api/auth/refresh", s.refresh)
	mux.HandleFunc("POST /api/auth/logout", s.logout)
	mux.HandleFunc("POST /api/auth/change-password", s.authMiddleware(s.changePassword))
	mux.HandleFunc("GET /api/account", s.authMiddleware(s.getAccount))
	mux.HandleFunc("PUT /api/account", s.authMiddleware(s.updateAccount))

	mux.HandleFunc("GET /api/users/me", s.authMiddleware(s.getMyProfile))
	mux.HandleFunc("GET /api/users/search", s.authMiddleware(s.searchUsers))
	mux.HandleFunc("GET /api/users/{userId}", s.authMiddleware(s.getUserProfile))

	mux.HandleFunc("POST /api/rooms", s.authMiddleware(s.createRoom))
	mux.HandleFunc("GET /api/rooms/joined", s.authMiddleware(s.joinedRooms))
	mux.HandleFunc("GET /api/rooms/public", s.authMiddleware(s.publicRooms))
	mux.HandleFunc("GET /api/rooms/search", s.authMiddleware(s.searchRooms))
	mux.HandleFunc("GET /api/rooms/{roomId}", s.authMiddleware(s.getRoom))
	mux.HandleFunc("PATCH /api/rooms/{roomId}", s.authMiddleware(s.updateRoom))
	mux.HandleFunc("DELETE /api/rooms/{roomId}", s.authMiddleware(s.deleteRoom))
	mux.HandleFunc("POST /api/rooms/{roomId}/join", s.authMiddleware(s.joinRoom))
	mux.HandleFunc("POST /api/rooms/{roomId}/leave", s.authMiddleware(s.leaveRoom))
	mux.HandleFunc("GET /api/rooms/{roomId}/members", s.authMiddleware(s.roomMembers))
	mux.HandleFunc("POST /api/rooms/{roomId}/members", s.authMiddleware(s.addMember))
	mux.HandleFunc("DELETE /api/rooms/{roomId}/members/{memberId}", s.authMiddleware(s.removeMember))
	mux.HandleFunc("PATCH /api/rooms/{roomId}/members/{memberId}", s.authMiddleware(s.updateMemberRole))

	mux.HandleFunc("POST /api/messages", s.authMiddleware(s.sendMessage))
	mux.HandleFunc("GET /api/messages/{roomId}", s.authMiddleware(s.getMessages))
	mux.HandleFunc("PATCH /api/messages/{messageId}", s.authMiddleware(s.updateMessage))
	mux.HandleFunc("DELETE /api/messages/{messageId}", s.authMiddleware(s.deleteMessage))

	mux.HandleFunc("GET /api/admin/stats", s.adminMiddleware(s.adminStats))
	mux.HandleFunc("GET /api/admin/users", s.adminMiddleware(s.adminUsers))
	mux.HandleFunc("GET /api/admin/rooms", s.adminMiddleware(s.adminRooms))
	mux.HandleFunc("PATCH /api/admin/rooms/{roomId}", s.adminMiddleware(s.adminUpdateRoom))
	mux.HandleFunc("DELETE /api/admin/rooms/{roomId}", s.adminMiddleware(s.adminDeleteRoom))

	mux.HandleFunc("GET /ws", s.serveWs)

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "Authorization"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	s.mux = &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	})
	return v
}

func (s *GoChatApp) Handler() http.Handler {
	return s.mux.Handler
}

func (s *GoChatApp) Start() error {
	s.log.Info().Str("addr", s.mux.Addr).Msg("starting server")
	return s.mux.ListenAndServe()
}

func (s *GoChatApp) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down HTTP server")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
