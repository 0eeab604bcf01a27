// Package presence tracks online users, per-room online sets and a short
// message cache per room in Redis. Every operation is best effort: backend
// failures are logged and reads degrade to offline, empty or absent.
package presence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/npezzotti/chatty/internal/types"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	onlineUsersKey   = "online:users"
	roomOnlinePrefix = "room:online:"
	roomCachePrefix  = "room:cache:"
	userRoomsPrefix  = "user:rooms:"

	MessageCacheTTL = 24 * time.Hour
	UserStatusTTL   = time.Hour

	// CacheLimit is the number of most recent messages kept per room.
	CacheLimit = 10
)

type Store interface {
	SetUserOnline(ctx context.Context, userId string)
	SetUserOffline(ctx context.Context, userId string)
	IsUserOnline(ctx context.Context, userId string) bool
	GetOnlineUsers(ctx context.Context) []string
	AddUserToRoom(ctx context.Context, roomId, userId string)
	RemoveUserFromRoom(ctx context.Context, roomId, userId string)
	GetRoomOnlineUsers(ctx context.Context, roomId string) []string
	GetRoomOnlineCount(ctx context.Context, roomId string) int
	GetUserRooms(ctx context.Context, userId string) []string
	CacheMessages(ctx context.Context, roomId string, msgs []types.Message)
	GetCachedMessages(ctx context.Context, roomId string) ([]types.Message, bool)
	AppendCachedMessage(ctx context.Context, roomId string, msg types.Message)
	InvalidateRoomCache(ctx context.Context, roomId string)
	Ping(ctx context.Context) error
}

func roomOnlineKey(roomId string) string {
	return roomOnlinePrefix + roomId
}

func roomCacheKey(roomId string) string {
	return roomCachePrefix + roomId + ":messages"
}

func userRoomsKey(userId string) string {
	return userRoomsPrefix + userId
}

func userStatusKey(userId string) string {
	return "user:" + userId + ":status"
}

type RedisStore struct {
	client redis.UniversalClient
	log    zerolog.Logger
}

// NewRedisStore connects to redisURL and verifies the connection.
func NewRedisStore(redisURL string, log zerolog.Logger) (*RedisStore, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("redis URL must be provided")
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client, log), nil
}

func NewRedisStoreWithClient(client redis.UniversalClient, log zerolog.Logger) *RedisStore {
	return &RedisStore{
		client: client,
		log:    log.With().Str("component", "presence").Logger(),
	}
}

func (s *RedisStore) SetUserOnline(ctx context.Context, userId string) {
	s.setStatus(ctx, userId, "online", func(pipe redis.Pipeliner) {
		pipe.SAdd(ctx, onlineUsersKey, userId)
	})
}

func (s *RedisStore) SetUserOffline(ctx context.Context, userId string) {
	s.setStatus(ctx, userId, "offline", func(pipe redis.Pipeliner) {
		pipe.SRem(ctx, onlineUsersKey, userId)
	})
}

func (s *RedisStore) setStatus(ctx context.Context, userId, status string, fn func(redis.Pipeliner)) {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		fn(pipe)
		pipe.Set(ctx, userStatusKey(userId), status, UserStatusTTL)
		return nil
	})
	if err != nil {
		s.log.Error().Err(err).Str("user_id", userId).Str("status", status).Msg("set user status")
		return
	}
	s.log.Debug().Str("user_id", userId).Str("status", status).Msg("user status changed")
}

func (s *RedisStore) IsUserOnline(ctx context.Context, userId string) bool {
	ok, err := s.client.SIsMember(ctx, onlineUsersKey, userId).Result()
	if err != nil {
		s.log.Error().Err(err).Str("user_id", userId).Msg("check user online")
		return false
	}
	return ok
}

func (s *RedisStore) GetOnlineUsers(ctx context.Context) []string {
	return s.members(ctx, onlineUsersKey)
}

func (s *RedisStore) AddUserToRoom(ctx context.Context, roomId, userId string) {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, roomOnlineKey(roomId), userId)
		pipe.SAdd(ctx, userRoomsKey(userId), roomId)
		return nil
	})
	if err != nil {
		s.log.Error().Err(err).Str("room_id", roomId).Str("user_id", userId).Msg("add user to room")
	}
}

func (s *RedisStore) RemoveUserFromRoom(ctx context.Context, roomId, userId string) {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SRem(ctx, roomOnlineKey(roomId), userId)
		pipe.SRem(ctx, userRoomsKey(userId), roomId)
		return nil
	})
	if err != nil {
		s.log.Error().Err(err).Str("room_id", roomId).Str("user_id", userId).Msg("remove user from room")
	}
}

func (s *RedisStore) GetRoomOnlineUsers(ctx context.Context, roomId string) []string {
	return s.members(ctx, roomOnlineKey(roomId))
}

func (s *RedisStore) GetRoomOnlineCount(ctx context.Context, roomId string) int {
	n, err := s.client.SCard(ctx, roomOnlineKey(roomId)).Result()
	if err != nil {
		s.log.Error().Err(err).Str("room_id", roomId).Msg("count room online users")
		return 0
	}
	return int(n)
}

func (s *RedisStore) GetUserRooms(ctx context.Context, userId string) []string {
	return s.members(ctx, userRoomsKey(userId))
}

func (s *RedisStore) members(ctx context.Context, key string) []string {
	members, err := s.client.SMembers(ctx, key).Result()
	if err != nil {
		s.log.Error().Err(err).Str("key", key).Msg("list set members")
		return []string{}
	}
	return members
}

// CacheMessages replaces the room cache with msgs, which must be ordered
// oldest first. Only the newest CacheLimit messages are kept.
func (s *RedisStore) CacheMessages(ctx context.Context, roomId string, msgs []types.Message) {
	if len(msgs) > CacheLimit {
		msgs = msgs[len(msgs)-CacheLimit:]
	}

	b, err := json.Marshal(msgs)
	if err != nil {
		s.log.Error().Err(err).Str("room_id", roomId).Msg("encode message cache")
		return
	}

	if err := s.client.Set(ctx, roomCacheKey(roomId), b, MessageCacheTTL).Err(); err != nil {
		s.log.Error().Err(err).Str("room_id", roomId).Msg("cache messages")
		return
	}
	s.log.Debug().Str("room_id", roomId).Int("count", len(msgs)).Msg("cached messages")
}

// GetCachedMessages returns the cached messages of a room oldest first.
// The second result is false when nothing is cached.
func (s *RedisStore) GetCachedMessages(ctx context.Context, roomId string) ([]types.Message, bool) {
	val, err := s.client.Get(ctx, roomCacheKey(roomId)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Error().Err(err).Str("room_id", roomId).Msg("get cached messages")
		}
		return nil, false
	}

	var msgs []types.Message
	if err := json.Unmarshal(val, &msgs); err != nil {
		s.log.Error().Err(err).Str("room_id", roomId).Msg("decode message cache")
		return nil, false
	}

	return msgs, true
}

// AppendCachedMessage appends msg to the room cache and trims it to the
// newest CacheLimit entries. Concurrent appends to one room may race.
func (s *RedisStore) AppendCachedMessage(ctx context.Context, roomId string, msg types.Message) {
	cached, _ := s.GetCachedMessages(ctx, roomId)
	s.CacheMessages(ctx, roomId, append(cached, msg))
}

func (s *RedisStore) InvalidateRoomCache(ctx context.Context, roomId string) {
	if err := s.client.Del(ctx, roomCacheKey(roomId)).Err(); err != nil {
		s.log.Error().Err(err).Str("room_id", roomId).Msg("invalidate room cache")
		return
	}
	s.log.Debug().Str("room_id", roomId).Msg("invalidated room cache")
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
