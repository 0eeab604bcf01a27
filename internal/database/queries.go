package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	userColumns = "id, email, username, password_hash, display_name, avatar_url, role, is_online, status_message, created_at, updated_at"

	roomSelect = `
		SELECT
				r.id,
				r.name,
				r.slug,
				r.description,
				r.is_private,
				r.avatar_url,
				r.created_by_id,
				r.created_at,
				r.updated_at,
				(SELECT COUNT(*) FROM memberships WHERE room_id = r.id) AS members_count,
				(SELECT COUNT(*) FROM messages WHERE room_id = r.id) AS messages_count,
				(SELECT MAX(created_at) FROM messages WHERE room_id = r.id) AS last_message_at,
				COALESCE(vm.role, '') AS viewer_role
		FROM rooms r
		LEFT JOIN memberships vm ON vm.room_id = r.id AND vm.user_id = $1`

	messageSelect = `
		SELECT
				m.id,
				m.content,
				m.room_id,
				m.sender_id,
				m.attachment,
				m.created_at,
				m.updated_at,
				u.username,
				u.display_name,
				u.avatar_url
		FROM messages m
		JOIN users u ON u.id = m.sender_id`

	createMembershipQuery = "INSERT INTO memberships (id, user_id, room_id, role, joined_at) VALUES ($1, $2, $3, $4, $5) " +
		"RETURNING id, user_id, room_id, role, joined_at"
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (User, error) {
	var u User
	err := row.Scan(
		&u.Id,
		&u.Email,
		&u.Username,
		&u.PasswordHash,
		&u.DisplayName,
		&u.AvatarUrl,
		&u.Role,
		&u.IsOnline,
		&u.StatusMessage,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	return u, err
}

func scanRoom(row rowScanner) (Room, error) {
	var (
		room          Room
		lastMessageAt sql.NullTime
	)
	err := row.Scan(
		&room.Id,
		&room.Name,
		&room.Slug,
		&room.Description,
		&room.IsPrivate,
		&room.AvatarUrl,
		&room.CreatedById,
		&room.CreatedAt,
		&room.UpdatedAt,
		&room.MembersCount,
		&room.MessagesCount,
		&lastMessageAt,
		&room.ViewerRole,
	)
	if err != nil {
		return Room{}, err
	}

	if lastMessageAt.Valid {
		room.LastMessageAt = &lastMessageAt.Time
	}

	return room, nil
}

func scanMessage(row rowScanner) (Message, error) {
	var (
		msg        Message
		attachment []byte
	)
	err := row.Scan(
		&msg.Id,
		&msg.Content,
		&msg.RoomId,
		&msg.SenderId,
		&attachment,
		&msg.CreatedAt,
		&msg.UpdatedAt,
		&msg.SenderUsername,
		&msg.SenderDisplayName,
		&msg.SenderAvatarUrl,
	)
	if err != nil {
		return Message{}, err
	}

	if len(attachment) > 0 {
		var a Attachment
		if err := json.Unmarshal(attachment, &a); err != nil {
			return Message{}, fmt.Errorf("decode attachment: %w", err)
		}
		msg.Attachment = &a
	}

	return msg, nil
}

func (db *PgGoChatRepository) queryRooms(query string, args ...any) ([]Room, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rooms := make([]Room, 0)
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		rooms = append(rooms, room)
	}

	return rooms, rows.Err()
}

func (db *PgGoChatRepository) count(query string, args ...any) (int, error) {
	var n int
	err := db.conn.QueryRow(query, args...).Scan(&n)
	return n, err
}

func (db *PgGoChatRepository) CreateUser(params CreateUserParams) (User, error) {
	now := time.Now().UTC()
	row := db.conn.QueryRow(
		"INSERT INTO users (id, email, username, password_hash, display_name, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING "+userColumns,
		uuid.NewString(),
		params.Email,
		params.Username,
		params.PasswordHash,
		params.DisplayName,
		now,
		now,
	)

	u, err := scanUser(row)
	if err != nil {
		return User{}, mapWriteError(err)
	}

	return u, nil
}

func (db *PgGoChatRepository) UpdateUser(params UpdateUserParams) (User, error) {
	row := db.conn.QueryRow(
		"UPDATE users SET username = $2, password_hash = $3, display_name = $4, status_message = $5, updated_at = $6 "+
			"WHERE id = $1 RETURNING "+userColumns,
		params.UserId,
		params.Username,
		params.PasswordHash,
		params.DisplayName,
		params.StatusMessage,
		time.Now().UTC(),
	)

	u, err := scanUser(row)
	if err != nil {
		return User{}, mapWriteError(err)
	}

	return u, nil
}

func (db *PgGoChatRepository) GetUserById(id string) (User, error) {
	return scanUser(db.conn.QueryRow(
		"SELECT "+userColumns+" FROM users WHERE id = $1 LIMIT 1",
		id,
	))
}

func (db *PgGoChatRepository) GetUserByLogin(emailOrUsername string) (User, error) {
	return scanUser(db.conn.QueryRow(
		"SELECT "+userColumns+" FROM users WHERE email = $1 OR username = $1 LIMIT 1",
		emailOrUsername,
	))
}

func (db *PgGoChatRepository) SetUserOnline(id string, online bool) error {
	_, err := db.conn.Exec("UPDATE users SET is_online = $2 WHERE id = $1", id, online)
	return err
}

func (db *PgGoChatRepository) ListUsersWithRooms() ([]UserWithRooms, error) {
	rows, err := db.conn.Query("SELECT " + userColumns + " FROM users ORDER BY created_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]UserWithRooms, 0)
	index := make(map[string]int)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		index[u.Id] = len(users)
		users = append(users, UserWithRooms{User: u, Rooms: make([]RoomRef, 0)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	roomRows, err := db.conn.Query(
		"SELECT m.user_id, r.id, r.name, r.slug FROM memberships m " +
			"JOIN rooms r ON r.id = m.room_id ORDER BY m.joined_at ASC",
	)
	if err != nil {
		return nil, err
	}
	defer roomRows.Close()

	for roomRows.Next() {
		var (
			userId string
			ref    RoomRef
		)
		if err := roomRows.Scan(&userId, &ref.Id, &ref.Name, &ref.Slug); err != nil {
			return nil, fmt.Errorf("scan membership room: %w", err)
		}
		if i, ok := index[userId]; ok {
			users[i].Rooms = append(users[i].Rooms, ref)
		}
	}

	return users, roomRows.Err()
}

// SearchUsers matches term case-insensitively against username, display
// name and email, skipping excludeId.
func (db *PgGoChatRepository) SearchUsers(term, excludeId string, limit int) ([]User, error) {
	rows, err := db.conn.Query(
		"SELECT "+userColumns+" FROM users WHERE id <> $1"+
			" AND (username ILIKE '%' || $2 || '%' OR display_name ILIKE '%' || $2 || '%' OR email ILIKE '%' || $2 || '%')"+
			" ORDER BY username ASC LIMIT $3",
		excludeId,
		term,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}

	return users, rows.Err()
}

func (db *PgGoChatRepository) CountUsers() (int, error) {
	return db.count("SELECT COUNT(*) FROM users")
}

func (db *PgGoChatRepository) CreateRoom(params CreateRoomParams) (Room, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return Room{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	roomId := uuid.NewString()
	_, err = tx.Exec(
		"INSERT INTO rooms (id, name, slug, description, is_private, created_by_id, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7, $8)",
		roomId,
		params.Name,
		params.Slug,
		params.Description,
		params.IsPrivate,
		params.CreatedById,
		now,
		now,
	)
	if err != nil {
		return Room{}, mapWriteError(err)
	}

	_, err = tx.Exec(
		createMembershipQuery,
		uuid.NewString(),
		params.CreatedById,
		roomId,
		"CREATOR",
		now,
	)
	if err != nil {
		return Room{}, mapWriteError(err)
	}

	if err = tx.Commit(); err != nil {
		return Room{}, err
	}

	return db.GetRoom(roomId, params.CreatedById)
}

func (db *PgGoChatRepository) GetRoom(id, viewerId string) (Room, error) {
	return scanRoom(db.conn.QueryRow(roomSelect+" WHERE r.id = $2 LIMIT 1", viewerId, id))
}

func (db *PgGoChatRepository) RoomSlugExists(slug, excludeId string) (bool, error) {
	var exists bool
	err := db.conn.QueryRow(
		"SELECT EXISTS (SELECT 1 FROM rooms WHERE slug = $1 AND id <> $2)",
		slug,
		excludeId,
	).Scan(&exists)

	return exists, err
}

func (db *PgGoChatRepository) UpdateRoom(params UpdateRoomParams) (Room, error) {
	res, err := db.conn.Exec(
		"UPDATE rooms SET "+
			"name = COALESCE($2, name), "+
			"slug = COALESCE($3, slug), "+
			"description = COALESCE($4, description), "+
			"is_private = COALESCE($5, is_private), "+
			"updated_at = $6 "+
			"WHERE id = $1",
		params.RoomId,
		params.Name,
		params.Slug,
		params.Description,
		params.IsPrivate,
		time.Now().UTC(),
	)
	if err != nil {
		return Room{}, mapWriteError(err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return Room{}, sql.ErrNoRows
	}

	return db.GetRoom(params.RoomId, "")
}

func (db *PgGoChatRepository) DeleteRoom(id string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	_, err = tx.Exec("DELETE FROM memberships WHERE room_id = $1", id)
	if err != nil {
		return err
	}

	_, err = tx.Exec("DELETE FROM messages WHERE room_id = $1", id)
	if err != nil {
		return err
	}

	_, err = tx.Exec("DELETE FROM rooms WHERE id = $1", id)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (db *PgGoChatRepository) TouchRoom(id string) error {
	_, err := db.conn.Exec("UPDATE rooms SET updated_at = $2 WHERE id = $1", id, time.Now().UTC())
	return err
}

func (db *PgGoChatRepository) ListJoinedRooms(userId string) ([]Room, error) {
	return db.queryRooms(roomSelect+" WHERE vm.user_id IS NOT NULL ORDER BY r.updated_at DESC", userId)
}

func (db *PgGoChatRepository) ListPublicRooms(viewerId string, limit int) ([]Room, error) {
	return db.queryRooms(roomSelect+" WHERE r.is_private = FALSE ORDER BY r.updated_at DESC LIMIT $2", viewerId, limit)
}

func (db *PgGoChatRepository) SearchRooms(term, viewerId string, limit int) ([]Room, error) {
	return db.queryRooms(
		roomSelect+
			" WHERE (r.name ILIKE '%' || $2 || '%' OR r.description ILIKE '%' || $2 || '%')"+
			" AND (r.is_private = FALSE OR vm.user_id IS NOT NULL)"+
			" ORDER BY r.updated_at DESC LIMIT $3",
		viewerId,
		term,
		limit,
	)
}

func (db *PgGoChatRepository) ListRooms() ([]Room, error) {
	return db.queryRooms(roomSelect+" ORDER BY r.updated_at DESC", "")
}

func (db *PgGoChatRepository) CountRooms() (int, error) {
	return db.count("SELECT COUNT(*) FROM rooms")
}

func (db *PgGoChatRepository) GetMembership(userId, roomId string) (Membership, error) {
	var m Membership
	err := db.conn.QueryRow(
		"SELECT id, user_id, room_id, role, joined_at FROM memberships WHERE user_id = $1 AND room_id = $2 LIMIT 1",
		userId,
		roomId,
	).Scan(&m.Id, &m.UserId, &m.RoomId, &m.Role, &m.JoinedAt)

	return m, err
}

func (db *PgGoChatRepository) CreateMembership(userId, roomId, role string) (Membership, error) {
	var m Membership
	err := db.conn.QueryRow(
		createMembershipQuery,
		uuid.NewString(),
		userId,
		roomId,
		role,
		time.Now().UTC(),
	).Scan(&m.Id, &m.UserId, &m.RoomId, &m.Role, &m.JoinedAt)
	if err != nil {
		return Membership{}, mapWriteError(err)
	}

	return m, nil
}

func (db *PgGoChatRepository) DeleteMembership(userId, roomId string) error {
	_, err := db.conn.Exec(
		"DELETE FROM memberships WHERE user_id = $1 AND room_id = $2",
		userId,
		roomId,
	)

	return err
}

func (db *PgGoChatRepository) UpdateMembershipRole(userId, roomId, role string) error {
	_, err := db.conn.Exec(
		"UPDATE memberships SET role = $3 WHERE user_id = $1 AND room_id = $2",
		userId,
		roomId,
		role,
	)

	return err
}

func (db *PgGoChatRepository) ListRoomMembers(roomId string) ([]Member, error) {
	rows, err := db.conn.Query(
		"SELECT m.id, m.user_id, m.room_id, m.role, m.joined_at, u.username, u.display_name, u.avatar_url, u.status_message "+
			"FROM memberships m JOIN users u ON u.id = m.user_id WHERE m.room_id = $1 "+
			"ORDER BY CASE m.role WHEN 'CREATOR' THEN 0 WHEN 'ADMIN' THEN 1 ELSE 2 END, m.joined_at ASC",
		roomId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := make([]Member, 0)
	for rows.Next() {
		var m Member
		if err := rows.Scan(
			&m.Id,
			&m.UserId,
			&m.RoomId,
			&m.Role,
			&m.JoinedAt,
			&m.Username,
			&m.DisplayName,
			&m.AvatarUrl,
			&m.StatusMessage,
		); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, m)
	}

	return members, rows.Err()
}

func (db *PgGoChatRepository) CountRoomMembers(roomId string) (int, error) {
	return db.count("SELECT COUNT(*) FROM memberships WHERE room_id = $1", roomId)
}

func (db *PgGoChatRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	var attachment []byte
	if params.Attachment != nil {
		b, err := json.Marshal(params.Attachment)
		if err != nil {
			return Message{}, fmt.Errorf("encode attachment: %w", err)
		}
		attachment = b
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return Message{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	id := uuid.NewString()
	_, err = tx.Exec(
		"INSERT INTO messages (id, content, room_id, sender_id, attachment, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7)",
		id,
		params.Content,
		params.RoomId,
		params.SenderId,
		attachment,
		now,
		now,
	)
	if err != nil {
		return Message{}, err
	}

	_, err = tx.Exec("UPDATE rooms SET updated_at = $2 WHERE id = $1", params.RoomId, now)
	if err != nil {
		return Message{}, err
	}

	if err = tx.Commit(); err != nil {
		return Message{}, err
	}

	return db.GetMessage(id)
}

func (db *PgGoChatRepository) GetMessage(id string) (Message, error) {
	return scanMessage(db.conn.QueryRow(messageSelect+" WHERE m.id = $1 LIMIT 1", id))
}

func (db *PgGoChatRepository) UpdateMessageContent(id, content string) (Message, error) {
	res, err := db.conn.Exec(
		"UPDATE messages SET content = $2, updated_at = $3 WHERE id = $1",
		id,
		content,
		time.Now().UTC(),
	)
	if err != nil {
		return Message{}, err
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return Message{}, sql.ErrNoRows
	}

	return db.GetMessage(id)
}

func (db *PgGoChatRepository) DeleteMessage(id string) error {
	_, err := db.conn.Exec("DELETE FROM messages WHERE id = $1", id)
	return err
}

// ListMessages returns up to limit messages of a room, newest first,
// created strictly before the given time when it is set.
func (db *PgGoChatRepository) ListMessages(roomId string, before *time.Time, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 15
	}

	var (
		rows *sql.Rows
		err  error
	)
	if before != nil {
		rows, err = db.conn.Query(
			messageSelect+" WHERE m.room_id = $1 AND m.created_at < $2 ORDER BY m.created_at DESC LIMIT $3",
			roomId,
			*before,
			limit,
		)
	} else {
		rows, err = db.conn.Query(
			messageSelect+" WHERE m.room_id = $1 ORDER BY m.created_at DESC LIMIT $2",
			roomId,
			limit,
		)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]Message, 0, limit)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

func (db *PgGoChatRepository) CountMessages() (int, error) {
	return db.count("SELECT COUNT(*) FROM messages")
}

func (db *PgGoChatRepository) CountMessagesSince(since time.Time) (int, error) {
	return db.count("SELECT COUNT(*) FROM messages WHERE created_at >= $1", since)
}

func (db *PgGoChatRepository) CountRoomMessages(roomId string) (int, error) {
	return db.count("SELECT COUNT(*) FROM messages WHERE room_id = $1", roomId)
}
