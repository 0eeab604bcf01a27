package service

import (
	"context"
	"strings"

	"github.com/npezzotti/chatty/internal/database"
	"github.com/npezzotti/chatty/internal/errs"
	"github.com/npezzotti/chatty/internal/types"
	"github.com/rs/zerolog"
)

const UserSearchLimit = 20

// UserService serves user profiles and user lookup.
type UserService struct {
	log zerolog.Logger
	db  database.GoChatRepository
}

func NewUserService(log zerolog.Logger, db database.GoChatRepository) *UserService {
	return &UserService{
		log: log.With().Str("component", "users").Logger(),
		db:  db,
	}
}

func (s *UserService) Get(_ context.Context, userId string) (types.User, error) {
	u, err := s.db.GetUserById(userId)
	if err != nil {
		return types.User{}, dbError(err, "User not found")
	}
	return ToUser(u), nil
}

// Search matches query against username, display name and email. The
// requester is never part of the result.
func (s *UserService) Search(_ context.Context, requesterId, query string) ([]types.User, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errs.Invalid("Search query is required")
	}

	rows, err := s.db.SearchUsers(query, requesterId, UserSearchLimit)
	if err != nil {
		return nil, dbError(err, "users not found")
	}

	users := make([]types.User, 0, len(rows))
	for _, u := range rows {
		users = append(users, ToUser(u))
	}
	return users, nil
}
