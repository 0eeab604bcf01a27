package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/npezzotti/chatty/internal/database"
	"github.com/npezzotti/chatty/internal/errs"
	"github.com/npezzotti/chatty/internal/fanout"
	"github.com/npezzotti/chatty/internal/presence"
	"github.com/npezzotti/chatty/internal/types"
	"github.com/rs/zerolog"
)

const (
	DefaultMessageLimit = 15
	MaxMessageLimit     = 100
	MaxMessageLength    = 5000
)

type SendMessageInput struct {
	RoomId     string
	Content    string
	Attachment *types.Attachment
}

type MessageService struct {
	log      zerolog.Logger
	db       database.GoChatRepository
	presence presence.Store
	hook     fanout.Hook
	now      func() time.Time
}

func NewMessageService(log zerolog.Logger, db database.GoChatRepository, store presence.Store, hook fanout.Hook) *MessageService {
	return &MessageService{
		log:      log.With().Str("component", "messages").Logger(),
		db:       db,
		presence: store,
		hook:     hookOrNoop(hook),
		now:      time.Now,
	}
}

func (s *MessageService) requireMembership(userId, roomId string) (database.Membership, error) {
	m, err := s.db.GetMembership(userId, roomId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return database.Membership{}, errs.Forbidden("You must join this room first to access its content")
		}
		return database.Membership{}, dbError(err, "membership not found")
	}
	return m, nil
}

func validContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return errs.Invalid("content is required")
	}
	if utf8.RuneCountInString(content) > MaxMessageLength {
		return errs.Invalid("content is too long")
	}
	return nil
}

// Send stores a message in a room the sender belongs to.
func (s *MessageService) Send(ctx context.Context, userId string, in SendMessageInput) (types.Message, error) {
	if err := validContent(in.Content); err != nil {
		return types.Message{}, err
	}
	if _, err := s.requireMembership(userId, in.RoomId); err != nil {
		return types.Message{}, err
	}

	params := database.CreateMessageParams{
		RoomId:   in.RoomId,
		SenderId: userId,
		Content:  in.Content,
	}
	if a := in.Attachment; a != nil {
		params.Attachment = &database.Attachment{
			Type:     a.Type,
			Url:      a.Url,
			FileName: a.FileName,
			FileSize: a.FileSize,
		}
	}

	created, err := s.db.CreateMessage(params)
	if err != nil {
		return types.Message{}, dbError(err, "room not found")
	}

	msg := ToMessage(created)
	s.hook(ctx, fanout.MessageCreated, msg)

	return msg, nil
}

// List returns a page of messages, oldest first. The first page is served
// from the room cache when it is populated; cursor pages always hit the
// database.
func (s *MessageService) List(ctx context.Context, userId, roomId string, limit int, cursor string) (types.MessagePage, error) {
	if _, err := s.requireMembership(userId, roomId); err != nil {
		return types.MessagePage{}, err
	}
	if limit <= 0 {
		limit = DefaultMessageLimit
	}
	if limit > MaxMessageLimit {
		limit = MaxMessageLimit
	}

	if cursor == "" {
		if cached, ok := s.presence.GetCachedMessages(ctx, roomId); ok && len(cached) > 0 {
			total, err := s.db.CountRoomMessages(roomId)
			if err != nil {
				return types.MessagePage{}, dbError(err, "room not found")
			}

			page := types.MessagePage{Messages: cached, HasMore: total > len(cached)}
			if page.HasMore {
				page.NextCursor = &cached[0].Id
			}
			return page, nil
		}
	}

	var before *time.Time
	if cursor != "" {
		at := s.now().UTC()
		if m, err := s.db.GetMessage(cursor); err == nil {
			at = m.CreatedAt
		} else if !errors.Is(err, sql.ErrNoRows) {
			return types.MessagePage{}, dbError(err, "message not found")
		}
		before = &at
	}

	rows, err := s.db.ListMessages(roomId, before, limit+1)
	if err != nil {
		return types.MessagePage{}, dbError(err, "room not found")
	}

	page := types.MessagePage{HasMore: len(rows) > limit}
	if page.HasMore {
		rows = rows[:limit]
		page.NextCursor = &rows[len(rows)-1].Id
	}

	// rows are newest first
	msgs := make([]types.Message, len(rows))
	for i, row := range rows {
		msgs[len(rows)-1-i] = ToMessage(row)
	}
	page.Messages = msgs

	if cursor == "" && len(msgs) > 0 {
		start := 0
		if len(msgs) > presence.CacheLimit {
			start = len(msgs) - presence.CacheLimit
		}
		s.presence.CacheMessages(ctx, roomId, msgs[start:])
	}

	return page, nil
}

// Update edits the content of a message. Only the sender may edit.
func (s *MessageService) Update(ctx context.Context, userId, messageId, content string) (types.Message, error) {
	if err := validContent(content); err != nil {
		return types.Message{}, err
	}

	existing, err := s.db.GetMessage(messageId)
	if err != nil {
		return types.Message{}, dbError(err, "Message not found")
	}
	if _, err := s.requireMembership(userId, existing.RoomId); err != nil {
		return types.Message{}, err
	}
	if existing.SenderId != userId {
		return types.Message{}, errs.Forbidden("You can only edit your own messages")
	}

	updated, err := s.db.UpdateMessageContent(messageId, content)
	if err != nil {
		return types.Message{}, dbError(err, "Message not found")
	}

	msg := ToMessage(updated)
	s.hook(ctx, fanout.MessageUpdated, msg)

	return msg, nil
}

// Delete removes a message. The sender or a room CREATOR or ADMIN may
// delete.
func (s *MessageService) Delete(ctx context.Context, userId, messageId string) error {
	existing, err := s.db.GetMessage(messageId)
	if err != nil {
		return dbError(err, "Message not found")
	}
	membership, err := s.requireMembership(userId, existing.RoomId)
	if err != nil {
		return err
	}
	if existing.SenderId != userId && !isRoomManager(membership.Role) {
		return errs.Forbidden("You do not have permission to delete this message")
	}

	if err := s.db.DeleteMessage(messageId); err != nil {
		return dbError(err, "Message not found")
	}

	s.hook(ctx, fanout.MessageDeleted, fanout.MessageRef{Id: messageId, RoomId: existing.RoomId})

	return nil
}
