package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"slices"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/chatty/internal/database"
	"github.com/npezzotti/chatty/internal/server"
	"github.com/npezzotti/chatty/internal/service"
	"github.com/npezzotti/chatty/internal/types"
)

const maxBodyBytes = 1 << 20

type CreateRoomRequest struct {
	Name        string  `json:"name" validate:"required,min=1,max=100"`
	Description *string `json:"description" validate:"omitempty,max=500"`
	IsPrivate   bool    `json:"isPrivate"`
}

type UpdateRoomRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=100"`
	Description *string `json:"description" validate:"omitempty,max=500"`
	IsPrivate   *bool   `json:"isPrivate"`
}

type AddMemberRequest struct {
	UserId string `json:"userId" validate:"required"`
}

type UpdateMemberRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=ADMIN MEMBER"`
}

type AttachmentRequest struct {
	Type     string  `json:"type" validate:"required,oneof=IMAGE FILE"`
	Url      string  `json:"url" validate:"required,url"`
	FileName *string `json:"fileName"`
	FileSize *int64  `json:"fileSize" validate:"omitempty,min=0"`
}

type SendMessageRequest struct {
	RoomId     string             `json:"roomId" validate:"required"`
	Content    string             `json:"content" validate:"required,max=5000"`
	Attachment *AttachmentRequest `json:"attachment"`
}

type UpdateMessageRequest struct {
	Content string `json:"content" validate:"required,max=5000"`
}

func (s *GoChatApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("json encode")
	}
}

func (s *GoChatApp) writeError(w http.ResponseWriter, errResp *ApiError) {
	if errResp.StatusCode >= http.StatusInternalServerError {
		s.log.Error().Err(errResp).Int("status", errResp.StatusCode).Msg("request failed")
	}
	s.writeJson(w, errResp.StatusCode, errResp)
}

// decode reads a JSON body into v and validates it.
func (s *GoChatApp) decode(r *http.Request, v any) *ApiError {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v); err != nil {
		errResp := NewBadRequestError()
		errResp.Err = err
		return errResp
	}
	if err := s.validate.Struct(v); err != nil {
		return NewValidationError(err)
	}
	return nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func toUser(u database.User) types.User {
	return service.ToUser(u)
}

func userId(r *http.Request) string {
	claims, _ := CurrentUser(r.Context())
	return claims.UserId
}

func (s *GoChatApp) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(); err != nil {
		s.writeError(w, NewServiceUnavailableError(err))
		return
	}
	if err := s.presence.Ping(r.Context()); err != nil {
		s.writeError(w, NewServiceUnavailableError(err))
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *GoChatApp) getMyProfile(w http.ResponseWriter, r *http.Request) {
	s.writeProfile(w, r, userId(r))
}

func (s *GoChatApp) getUserProfile(w http.ResponseWriter, r *http.Request) {
	s.writeProfile(w, r, r.PathValue("userId"))
}

func (s *GoChatApp) writeProfile(w http.ResponseWriter, r *http.Request, id string) {
	user, err := s.users.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, fromError(err))
		return
	}
	s.writeJson(w, http.StatusOK, user)
}

func (s *GoChatApp) searchUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.users.Search(r.Context(), userId(r), r.URL.Query().Get("q"))
	if err != nil {
		s.writeError(w, fromError(err))
		return
	}
	s.writeJson(w, http.StatusOK, users)
}

func (s *GoChatApp) createRoom(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if errResp := s.decode(r, &req); errResp != nil {
		s.writeError(w, errResp)
		return
	}

	room, err := s.rooms.Create(r.Context(), userId(r), service.CreateRoomInput{
		Name:        req.Name,
		Description: req.Description,
		IsPrivate:   req.IsPrivate,
	})
	if err != nil {
		s.writeError(w, fromError(err))
		return
	}

	s.writeJson(w, http.StatusCreated, room)
}

func (s *GoChatApp) joinedRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.rooms.Joined(r.Context(), userId(r))
	if err != nil {
		s.writeError(w, fromError(err))
		return
	}
	s.writeJson(w, http.StatusOK, rooms)
}

func (s *GoChatApp) publicRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.rooms.Public(r.Context(), userId(r))
	if err != nil {
		s.writeError(w, fromError(err))
		return
	}
	s.writeJson(w, http.StatusOK, rooms)
}

func (s *GoChatApp) searchRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.rooms.Search(r.Context(), userId(r), r.URL.Query().Get("query"))
	if err != nil {
		s.writeError(w, fromError(err))
		return
	}
	s.writeJson(w, http.StatusOK, rooms)
}

func (s *GoChatApp) getRoom(w http.ResponseWriter, r *http.Request) {
	room, err := s.rooms.Get(r.Context(), userId(r), r.PathValue("roomId"))
	if err != nil {
		s.writeError(w, fromError(err))
		return
	}
	s.writeJson(w, http.StatusOK, room)
}

func (s *GoChatApp) updateRoom(w http.ResponseWriter, r *http.Request) {
	var req UpdateRoomRequest
	if errResp := s.decode(r, &req); errResp != nil {
		s.writeError(w, errResp)
		return
	}

	room, err := s.rooms.Update(r.Context(), userId(r), r.PathValue("roomId"), service.UpdateRoomInput{
		Name:        req.Name,
		Description: req.Description,
		IsPrivate:   req.IsPrivate,
	})
	if err != nil {
		s.writeError(w, fromError(err))
		return
	}
	s.writeJson(w, http.StatusOK, room)
}

func (s *GoChatApp) deleteRoom(w http.ResponseWriter, r *http.Request) {
	if err := s.rooms.Delete(r.Context(), userId(r), r.PathValue("roomId")); err != nil {
		s.writeError(w, fromError(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *GoChatApp) joinRoom(w http.ResponseWriter, r *http.Request) {
	if err := s.rooms.Join(r.Context(), userId(r), r.PathValue("roomId")); err != nil {
		s.writeError(w, fromError(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *GoChatApp) leaveRoom(w http.ResponseWriter, r *http.Request) {
	if err := s.rooms.Leave(r.Context(), userId(r), r.PathValue("roomId")); err != nil {
		s.writeError(w, fromError(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *GoChatApp) roomMembers(w http.ResponseWriter, r *http.Request) {
	members, err := s.rooms.Members(r.Context(), userId(r), r.PathValue("roomId"))
	if err != nil {
		s.writeError(w, fromError(err))
		return
	}
	s.writeJson(w, http.StatusOK, members)
}

func (s *GoChatApp) addMember(w http.ResponseWriter, r *http.Request) {
	var req AddMemberRequest
	if errResp := s.decode(r, &req); errResp != nil {
		s.writeError(w, errResp)
		return
	}

	member, err := s.rooms.AddMember(r.Context(), userId(r), r.PathValue("roomId"), req.UserId)
	if err != nil {
		s.writeError(w, fromError(err))
		return
	}
	s.writeJson(w, http.StatusCreated, member)
}

func (s *GoChatApp) removeMember(w http.ResponseWriter, r *http.Request) {
	err := s.rooms.RemoveMember(r.Context(), userId(r), r.PathValue("roomId"), r.PathValue("memberId"))
	if err != nil {
		s.writeError(w, fromError(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *GoChatApp) updateMemberRole(w http.ResponseWriter, r *http.Request) {
	var req UpdateMemberRoleRequest
	if errResp := s.decode(r, &req); errResp != nil {
		s.writeError(w, errResp)
		return
	}

	err := s.rooms.UpdateMemberRole(r.Context(), userId(r), r.PathValue("roomId"), r.PathValue("memberId"), req.Role)
	if err != nil {
		s.writeError(w, fromError(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *GoChatApp) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if errResp := s.decode(r, &req); errResp != nil {
		s.writeError(w, errResp)
		return
	}

	in := service.SendMessageInput{RoomId: req.RoomId, Content: req.Content}
	if a := req.Attachment; a != nil {
		in.Attachment = &types.Attachment{
			Type:     a.Type,
			Url:      a.Url,
			FileName: a.FileName,
			FileSize: a.FileSize,
		}
	}

	msg, err := s.messages.Send(r.Context(), userId(r), in)
	if err != nil {
		s.writeError(w, fromError(err))
		return
	}
	s.writeJson(w, http.StatusCreated, msg)
}

func (s *GoChatApp) getMessages(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil || l <= 0 {
			s.writeError(w, NewBadRequestError())
			return
		}
		limit = l
	}

	page, err := s.messages.List(r.Context(), userId(r), r.PathValue("roomId"), limit, r.URL.Query().Get("cursor"))
	if err != nil {
		s.writeError(w, fromError(err))
		return
	}
	s.writeJson(w, http.StatusOK, page)
}

func (s *GoChatApp) updateMessage(w http.ResponseWriter, r *http.Request) {
	var req UpdateMessageRequest
	if errResp := s.decode(r, &req); errResp != nil {
		s.writeError(w, errResp)
		return
	}

	msg, err := s.messages.Update(r.Context(), userId(r), r.PathValue("messageId"), req.Content)
	if err != nil {
		s.writeError(w, fromError(err))
		return
	}
	s.writeJson(w, http.StatusOK, msg)
}

func (s *GoChatApp) deleteMessage(w http.ResponseWriter, r *http.Request) {
	if err := s.messages.Delete(r.Context(), userId(r), r.PathValue("messageId")); err != nil {
		s.writeError(w, fromError(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *GoChatApp) adminStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.admin.Stats(r.Context())
	if err != nil {
		s.writeError(w, fromError(err))
		return
	}
	s.writeJson(w, http.StatusOK, stats)
}

func (s *GoChatApp) adminUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.admin.Users(r.Context())
	if err != nil {
		s.writeError(w, fromError(err))
		return
	}
	s.writeJson(w, http.StatusOK, users)
}

func (s *GoChatApp) adminRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.admin.Rooms(r.Context())
	if err != nil {
		s.writeError(w, fromError(err))
		return
	}
	s.writeJson(w, http.StatusOK, rooms)
}

func (s *GoChatApp) adminUpdateRoom(w http.ResponseWriter, r *http.Request) {
	var req UpdateRoomRequest
	if errResp := s.decode(r, &req); errResp != nil {
		s.writeError(w, errResp)
		return
	}

	room, err := s.admin.UpdateRoom(r.Context(), r.PathValue("roomId"), service.UpdateRoomInput{
		Name:        req.Name,
		Description: req.Description,
		IsPrivate:   req.IsPrivate,
	})
	if err != nil {
		s.writeError(w, fromError(err))
		return
	}
	s.writeJson(w, http.StatusOK, room)
}

func (s *GoChatApp) adminDeleteRoom(w http.ResponseWriter, r *http.Request) {
	if err := s.admin.DeleteRoom(r.Context(), r.PathValue("roomId")); err != nil {
		s.writeError(w, fromError(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// serveWs authenticates the handshake before upgrading. A missing or
// invalid token is rejected with 401 and no connection is created.
func (s *GoChatApp) serveWs(w http.ResponseWriter, r *http.Request) {
	tokenString := tokenFromRequest(r)
	if tokenString == "" {
		s.writeError(w, NewUnauthorizedError())
		return
	}
	claims, err := s.verifyToken(tokenString)
	if err != nil {
		s.log.Debug().Err(err).Msg("rejected websocket handshake")
		s.writeError(w, NewUnauthorizedError())
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("error upgrading connection")
		return
	}

	client := server.NewClient(conn, server.Identity{
		UserId:   claims.UserId,
		Username: claims.Username,
		Role:     claims.Role,
	}, s.gateway, s.log)

	// the request context is cancelled once this handler returns
	go client.Serve(context.WithoutCancel(r.Context()))
}
