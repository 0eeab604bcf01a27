package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/npezzotti/chatty/internal/database"
	"github.com/npezzotti/chatty/internal/errs"
	"github.com/npezzotti/chatty/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUserService(t *testing.T) (*UserService, *database.MockGoChatRepository) {
	t.Helper()
	repo := &database.MockGoChatRepository{}
	t.Cleanup(func() { repo.AssertExpectations(t) })
	return NewUserService(testutil.TestLogger(t), repo), repo
}

func TestUserService_Get(t *testing.T) {
	tcases := []struct {
		name     string
		user     database.User
		err      error
		wantKind errs.Kind
	}{
		{name: "found", user: database.User{Id: "u2", Username: "bob"}},
		{name: "missing", err: sql.ErrNoRows, wantKind: errs.KindNotFound},
		{name: "db failure", err: errors.New("conn reset"), wantKind: errs.KindInfrastructure},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			svc, repo := newUserService(t)
			repo.On("GetUserById", "u2").Return(tc.user, tc.err).Once()

			got, err := svc.Get(context.Background(), "u2")
			if tc.wantKind != errs.KindUnknown {
				require.Error(t, err)
				assert.Equal(t, tc.wantKind, errs.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "bob", got.Username)
		})
	}
}

func TestUserService_Search(t *testing.T) {
	t.Run("blank query", func(t *testing.T) {
		svc, _ := newUserService(t)
		_, err := svc.Search(context.Background(), "u1", "   ")
		assert.True(t, errs.Is(err, errs.KindInvalid))
	})

	t.Run("excludes requester", func(t *testing.T) {
		svc, repo := newUserService(t)
		repo.On("SearchUsers", "bo", "u1", UserSearchLimit).
			Return([]database.User{{Id: "u2", Username: "bob"}}, nil).Once()

		users, err := svc.Search(context.Background(), "u1", " bo ")
		require.NoError(t, err)
		require.Len(t, users, 1)
		assert.Equal(t, "u2", users[0].Id)
	})

	t.Run("no matches", func(t *testing.T) {
		svc, repo := newUserService(t)
		repo.On("SearchUsers", "zed", "u1", UserSearchLimit).Return([]database.User{}, nil).Once()

		users, err := svc.Search(context.Background(), "u1", "zed")
		require.NoError(t, err)
		assert.NotNil(t, users)
		assert.Empty(t, users)
	})
}
