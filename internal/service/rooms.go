package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/npezzotti/chatty/internal/database"
	"github.com/npezzotti/chatty/internal/errs"
	"github.com/npezzotti/chatty/internal/fanout"
	"github.com/npezzotti/chatty/internal/types"
	"github.com/rs/zerolog"
)

const (
	PublicRoomsLimit = 50
	SearchLimit      = 20
	MinSearchLength  = 2
)

type CreateRoomInput struct {
	Name        string
	Description *string
	IsPrivate   bool
}

type UpdateRoomInput struct {
	Name        *string
	Description *string
	IsPrivate   *bool
}

type RoomService struct {
	log  zerolog.Logger
	db   database.GoChatRepository
	hook fanout.Hook
}

func NewRoomService(log zerolog.Logger, db database.GoChatRepository, hook fanout.Hook) *RoomService {
	return &RoomService{
		log:  log.With().Str("component", "rooms").Logger(),
		db:   db,
		hook: hookOrNoop(hook),
	}
}

func (s *RoomService) Create(ctx context.Context, userId string, in CreateRoomInput) (types.Room, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return types.Room{}, errs.Invalid("Room name is required")
	}

	slug := Slugify(name)
	exists, err := s.db.RoomSlugExists(slug, "")
	if err != nil {
		return types.Room{}, dbError(err, "room not found")
	}
	if exists {
		return types.Room{}, errs.Conflict("A room with this name already exists")
	}

	created, err := s.db.CreateRoom(database.CreateRoomParams{
		Name:        name,
		Slug:        slug,
		Description: in.Description,
		IsPrivate:   in.IsPrivate,
		CreatedById: userId,
	})
	if err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return types.Room{}, errs.Conflict("A room with this name already exists")
		}
		return types.Room{}, dbError(err, "room not found")
	}

	room := ToRoom(created)
	s.hook(ctx, fanout.RoomCreated, room)

	s.log.Info().Str("room_id", room.Id).Str("user_id", userId).Msg("room created")

	return room, nil
}

// Get returns a room as seen by userId. Private rooms are only visible to
// their members.
func (s *RoomService) Get(_ context.Context, userId, roomId string) (types.Room, error) {
	r, err := s.db.GetRoom(roomId, userId)
	if err != nil {
		return types.Room{}, dbError(err, "Room not found")
	}
	if r.IsPrivate && r.ViewerRole == "" {
		return types.Room{}, errs.Forbidden("You do not have access to this private room")
	}
	return ToRoom(r), nil
}

func (s *RoomService) Joined(_ context.Context, userId string) ([]types.Room, error) {
	rooms, err := s.db.ListJoinedRooms(userId)
	if err != nil {
		return nil, dbError(err, "rooms not found")
	}
	return toRooms(rooms), nil
}

func (s *RoomService) Public(_ context.Context, userId string) ([]types.Room, error) {
	rooms, err := s.db.ListPublicRooms(userId, PublicRoomsLimit)
	if err != nil {
		return nil, dbError(err, "rooms not found")
	}
	return toRooms(rooms), nil
}

// Search matches public rooms and the user's private rooms by name or
// description. Terms shorter than two characters match nothing.
func (s *RoomService) Search(_ context.Context, userId, term string) ([]types.Room, error) {
	term = strings.TrimSpace(term)
	if len([]rune(term)) < MinSearchLength {
		return []types.Room{}, nil
	}

	rooms, err := s.db.SearchRooms(term, userId, SearchLimit)
	if err != nil {
		return nil, dbError(err, "rooms not found")
	}
	return toRooms(rooms), nil
}

func (s *RoomService) Update(ctx context.Context, userId, roomId string, in UpdateRoomInput) (types.Room, error) {
	if err := s.requireManager(userId, roomId, "You do not have permission to update this room"); err != nil {
		return types.Room{}, err
	}

	room, err := s.update(ctx, roomId, in)
	if err != nil {
		return types.Room{}, err
	}

	viewed, err := s.db.GetRoom(roomId, userId)
	if err != nil {
		return room, nil
	}
	return ToRoom(viewed), nil
}

// update applies in to a room without any permission check and runs the
// post-commit hook.
func (s *RoomService) update(ctx context.Context, roomId string, in UpdateRoomInput) (types.Room, error) {
	params := database.UpdateRoomParams{
		RoomId:      roomId,
		Description: in.Description,
		IsPrivate:   in.IsPrivate,
	}

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return types.Room{}, errs.Invalid("Room name is required")
		}
		slug := Slugify(name)
		exists, err := s.db.RoomSlugExists(slug, roomId)
		if err != nil {
			return types.Room{}, dbError(err, "Room not found")
		}
		if exists {
			return types.Room{}, errs.Conflict("A room with this name already exists")
		}
		params.Name = &name
		params.Slug = &slug
	}

	updated, err := s.db.UpdateRoom(params)
	if err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return types.Room{}, errs.Conflict("A room with this name already exists")
		}
		return types.Room{}, dbError(err, "Room not found")
	}

	room := ToRoom(updated)
	s.hook(ctx, fanout.RoomUpdated, room)

	return room, nil
}

// Delete removes a room. Only its creator may delete it.
func (s *RoomService) Delete(ctx context.Context, userId, roomId string) error {
	r, err := s.db.GetRoom(roomId, userId)
	if err != nil {
		return dbError(err, "Room not found")
	}
	if r.CreatedById != userId {
		return errs.Forbidden("Only the room creator can delete the room")
	}

	return s.delete(ctx, roomId)
}

func (s *RoomService) delete(ctx context.Context, roomId string) error {
	if err := s.db.DeleteRoom(roomId); err != nil {
		return dbError(err, "Room not found")
	}

	s.hook(ctx, fanout.RoomDeleted, fanout.RoomRef{Id: roomId})
	s.log.Info().Str("room_id", roomId).Msg("room deleted")

	return nil
}

// Join adds the user to a public room.
func (s *RoomService) Join(ctx context.Context, userId, roomId string) error {
	r, err := s.db.GetRoom(roomId, userId)
	if err != nil {
		return dbError(err, "Room not found")
	}
	if r.IsPrivate {
		return errs.Forbidden("Cannot join a private room without an invitation")
	}
	if r.ViewerRole != "" {
		return errs.Conflict("You are already a member of this room")
	}

	if _, err := s.db.CreateMembership(userId, roomId, types.MemberRoleMember); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return errs.Conflict("You are already a member of this room")
		}
		return dbError(err, "Room not found")
	}
	if err := s.db.TouchRoom(roomId); err != nil {
		s.log.Warn().Err(err).Str("room_id", roomId).Msg("touch room")
	}

	if member, ok := s.member(userId, roomId); ok {
		s.hook(ctx, fanout.MemberJoined, member)
	}

	return nil
}

// Leave removes the user's membership. The creator cannot leave.
func (s *RoomService) Leave(ctx context.Context, userId, roomId string) error {
	m, err := s.db.GetMembership(userId, roomId)
	if err != nil {
		return dbError(err, "You are not a member of this room")
	}
	if m.Role == types.MemberRoleCreator {
		return errs.Forbidden("Room creator cannot leave the room. Delete the room instead.")
	}

	member, found := s.member(userId, roomId)

	if err := s.db.DeleteMembership(userId, roomId); err != nil {
		return dbError(err, "You are not a member of this room")
	}

	if !found {
		member = fanout.Member{RoomId: roomId, UserId: userId}
	}
	s.hook(ctx, fanout.MemberLeft, member)

	return nil
}

// AddMember invites targetUserId into a room. Requires CREATOR or ADMIN.
func (s *RoomService) AddMember(_ context.Context, requesterId, roomId, targetUserId string) (types.Member, error) {
	if err := s.requireManager(requesterId, roomId, "You do not have permission to add members"); err != nil {
		return types.Member{}, err
	}

	target, err := s.db.GetUserById(targetUserId)
	if err != nil {
		return types.Member{}, dbError(err, "User not found")
	}

	m, err := s.db.CreateMembership(targetUserId, roomId, types.MemberRoleMember)
	if err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return types.Member{}, errs.Conflict("User is already a member of this room")
		}
		return types.Member{}, dbError(err, "Room not found")
	}
	if err := s.db.TouchRoom(roomId); err != nil {
		s.log.Warn().Err(err).Str("room_id", roomId).Msg("touch room")
	}

	return ToMember(database.Member{
		Membership:    m,
		Username:      target.Username,
		DisplayName:   target.DisplayName,
		AvatarUrl:     target.AvatarUrl,
		StatusMessage: target.StatusMessage,
	}), nil
}

// RemoveMember removes targetUserId from a room. The creator cannot be
// removed and only the creator removes admins.
func (s *RoomService) RemoveMember(ctx context.Context, requesterId, roomId, targetUserId string) error {
	requester, err := s.db.GetMembership(requesterId, roomId)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return dbError(err, "Room not found")
	}
	if err != nil || !isRoomManager(requester.Role) {
		return errs.Forbidden("You do not have permission to remove members")
	}

	target, err := s.db.GetMembership(targetUserId, roomId)
	if err != nil {
		return dbError(err, "User is not a member of this room")
	}
	if target.Role == types.MemberRoleCreator {
		return errs.Forbidden("Cannot remove the room creator")
	}
	if target.Role == types.MemberRoleAdmin && requester.Role != types.MemberRoleCreator {
		return errs.Forbidden("Only the creator can remove admins")
	}

	if err := s.db.DeleteMembership(targetUserId, roomId); err != nil {
		return dbError(err, "User is not a member of this room")
	}

	s.hook(ctx, fanout.MemberRemoved, fanout.Member{RoomId: roomId, UserId: targetUserId})

	return nil
}

// Members lists a room's members. Private room members are only visible
// to other members.
func (s *RoomService) Members(_ context.Context, userId, roomId string) ([]types.Member, error) {
	r, err := s.db.GetRoom(roomId, userId)
	if err != nil {
		return nil, dbError(err, "Room not found")
	}
	if r.IsPrivate && r.ViewerRole == "" {
		return nil, errs.Forbidden("You do not have access to this private room")
	}

	rows, err := s.db.ListRoomMembers(roomId)
	if err != nil {
		return nil, dbError(err, "Room not found")
	}

	members := make([]types.Member, 0, len(rows))
	for _, row := range rows {
		members = append(members, ToMember(row))
	}
	return members, nil
}

// UpdateMemberRole changes a member's role to ADMIN or MEMBER. Only the
// creator may change roles.
func (s *RoomService) UpdateMemberRole(_ context.Context, requesterId, roomId, targetUserId, role string) error {
	if role != types.MemberRoleAdmin && role != types.MemberRoleMember {
		return errs.Invalid("role must be ADMIN or MEMBER")
	}

	requester, err := s.db.GetMembership(requesterId, roomId)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return dbError(err, "Room not found")
	}
	if err != nil || requester.Role != types.MemberRoleCreator {
		return errs.Forbidden("Only the room creator can change member roles")
	}

	target, err := s.db.GetMembership(targetUserId, roomId)
	if err != nil {
		return dbError(err, "User is not a member of this room")
	}
	if target.Role == types.MemberRoleCreator {
		return errs.Forbidden("Cannot change the creator's role")
	}

	if err := s.db.UpdateMembershipRole(targetUserId, roomId, role); err != nil {
		return dbError(err, "User is not a member of this room")
	}

	return nil
}

func (s *RoomService) requireManager(userId, roomId, msg string) error {
	m, err := s.db.GetMembership(userId, roomId)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return dbError(err, "Room not found")
	}
	if err != nil || !isRoomManager(m.Role) {
		return errs.Forbidden(msg)
	}
	return nil
}

func (s *RoomService) member(userId, roomId string) (fanout.Member, bool) {
	u, err := s.db.GetUserById(userId)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", userId).Msg("load member")
		return fanout.Member{}, false
	}
	return fanout.Member{
		RoomId:      roomId,
		UserId:      u.Id,
		Username:    u.Username,
		DisplayName: u.DisplayName,
	}, true
}
