// Package service holds the room, message and admin operations behind the
// HTTP API. Every mutation is written durably first and then handed to a
// fanout.Hook, whose failures never reach the caller.
package service

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"

	"github.com/npezzotti/chatty/internal/database"
	"github.com/npezzotti/chatty/internal/errs"
	"github.com/npezzotti/chatty/internal/fanout"
	"github.com/npezzotti/chatty/internal/types"
)

var whitespace = regexp.MustCompile(`\s+`)

// Slugify lowercases name and replaces whitespace runs with "-".
func Slugify(name string) string {
	return whitespace.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
}

// dbError maps repository errors onto domain kinds.
func dbError(err error, notFound string) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return errs.NotFound(notFound)
	case errors.Is(err, database.ErrDuplicate):
		return errs.Wrap(errs.KindConflict, "already exists", err)
	default:
		return errs.Wrap(errs.KindInfrastructure, "database error", err)
	}
}

func noopHook(context.Context, fanout.Kind, any) {}

func hookOrNoop(h fanout.Hook) fanout.Hook {
	if h == nil {
		return noopHook
	}
	return h
}

func isRoomManager(role string) bool {
	return role == types.MemberRoleCreator || role == types.MemberRoleAdmin
}

func ToUser(u database.User) types.User {
	return types.User{
		Id:            u.Id,
		Email:         u.Email,
		Username:      u.Username,
		DisplayName:   u.DisplayName,
		AvatarUrl:     u.AvatarUrl,
		Role:          u.Role,
		IsOnline:      u.IsOnline,
		StatusMessage: u.StatusMessage,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
}

func ToRoom(r database.Room) types.Room {
	return types.Room{
		Id:          r.Id,
		Name:        r.Name,
		Slug:        r.Slug,
		Description: r.Description,
		IsPrivate:   r.IsPrivate,
		AvatarUrl:   r.AvatarUrl,
		CreatedById: r.CreatedById,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
		IsMember:    r.ViewerRole != "",
		IsCreator:   r.ViewerRole == types.MemberRoleCreator,
		Count: &types.RoomCount{
			Memberships: r.MembersCount,
			Messages:    r.MessagesCount,
		},
	}
}

func toRooms(rooms []database.Room) []types.Room {
	out := make([]types.Room, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, ToRoom(r))
	}
	return out
}

func ToMessage(m database.Message) types.Message {
	msg := types.Message{
		Id:       m.Id,
		Content:  m.Content,
		RoomId:   m.RoomId,
		SenderId: m.SenderId,
		Sender: types.UserSummary{
			Id:          m.SenderId,
			Username:    m.SenderUsername,
			DisplayName: m.SenderDisplayName,
			AvatarUrl:   m.SenderAvatarUrl,
		},
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
	if m.Attachment != nil {
		msg.Attachment = &types.Attachment{
			Type:     m.Attachment.Type,
			Url:      m.Attachment.Url,
			FileName: m.Attachment.FileName,
			FileSize: m.Attachment.FileSize,
		}
	}
	return msg
}

func ToMember(m database.Member) types.Member {
	return types.Member{
		Id:       m.Id,
		UserId:   m.UserId,
		RoomId:   m.RoomId,
		Role:     m.Role,
		JoinedAt: m.JoinedAt,
		User: types.UserSummary{
			Id:            m.UserId,
			Username:      m.Username,
			DisplayName:   m.DisplayName,
			AvatarUrl:     m.AvatarUrl,
			StatusMessage: m.StatusMessage,
		},
	}
}
