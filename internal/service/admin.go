package service

import (
	"context"

	"github.com/npezzotti/chatty/internal/database"
	"github.com/npezzotti/chatty/internal/presence"
	"github.com/npezzotti/chatty/internal/types"
	"github.com/rs/zerolog"
)

// StatsSource computes the admin dashboard counters.
type StatsSource interface {
	DashboardStats(ctx context.Context) (types.DashboardStats, error)
}

type AdminService struct {
	log      zerolog.Logger
	db       database.GoChatRepository
	presence presence.Store
	stats    StatsSource
	rooms    *RoomService
}

func NewAdminService(log zerolog.Logger, db database.GoChatRepository, store presence.Store, stats StatsSource, rooms *RoomService) *AdminService {
	return &AdminService{
		log:      log.With().Str("component", "admin").Logger(),
		db:       db,
		presence: store,
		stats:    stats,
		rooms:    rooms,
	}
}

func (s *AdminService) Stats(ctx context.Context) (types.DashboardStats, error) {
	stats, err := s.stats.DashboardStats(ctx)
	if err != nil {
		return types.DashboardStats{}, dbError(err, "stats not found")
	}
	return stats, nil
}

// Users lists every user with their online flag and joined rooms.
func (s *AdminService) Users(ctx context.Context) ([]types.AdminUser, error) {
	rows, err := s.db.ListUsersWithRooms()
	if err != nil {
		return nil, dbError(err, "users not found")
	}

	online := make(map[string]struct{})
	for _, id := range s.presence.GetOnlineUsers(ctx) {
		online[id] = struct{}{}
	}

	users := make([]types.AdminUser, 0, len(rows))
	for _, row := range rows {
		_, isOnline := online[row.Id]
		rooms := make([]types.RoomRef, 0, len(row.Rooms))
		for _, r := range row.Rooms {
			rooms = append(rooms, types.RoomRef{Id: r.Id, Name: r.Name, Slug: r.Slug})
		}
		users = append(users, types.AdminUser{
			Id:          row.Id,
			Username:    row.Username,
			DisplayName: row.DisplayName,
			AvatarUrl:   row.AvatarUrl,
			IsOnline:    isOnline,
			Rooms:       rooms,
		})
	}

	return users, nil
}

// Rooms lists every room with live and durable counters.
func (s *AdminService) Rooms(ctx context.Context) ([]types.AdminRoom, error) {
	rows, err := s.db.ListRooms()
	if err != nil {
		return nil, dbError(err, "rooms not found")
	}

	rooms := make([]types.AdminRoom, 0, len(rows))
	for _, r := range rows {
		rooms = append(rooms, s.adminRoom(ctx, r))
	}
	return rooms, nil
}

// UpdateRoom updates any room regardless of membership.
func (s *AdminService) UpdateRoom(ctx context.Context, roomId string, in UpdateRoomInput) (types.AdminRoom, error) {
	if _, err := s.rooms.update(ctx, roomId, in); err != nil {
		return types.AdminRoom{}, err
	}

	r, err := s.db.GetRoom(roomId, "")
	if err != nil {
		return types.AdminRoom{}, dbError(err, "Room not found")
	}

	s.log.Info().Str("room_id", roomId).Msg("room updated by admin")

	return s.adminRoom(ctx, r), nil
}

// DeleteRoom deletes any room regardless of membership.
func (s *AdminService) DeleteRoom(ctx context.Context, roomId string) error {
	if _, err := s.db.GetRoom(roomId, ""); err != nil {
		return dbError(err, "Room not found")
	}
	return s.rooms.delete(ctx, roomId)
}

func (s *AdminService) adminRoom(ctx context.Context, r database.Room) types.AdminRoom {
	return types.AdminRoom{
		Id:            r.Id,
		Name:          r.Name,
		Slug:          r.Slug,
		IsPrivate:     r.IsPrivate,
		TotalMembers:  r.MembersCount,
		OnlineMembers: s.presence.GetRoomOnlineCount(ctx, r.Id),
		MessagesCount: r.MessagesCount,
		LastMessageAt: r.LastMessageAt,
		CreatedById:   r.CreatedById,
		CreatedAt:     r.CreatedAt,
	}
}
