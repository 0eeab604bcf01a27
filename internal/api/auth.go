package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/npezzotti/chatty/internal/database"
	"github.com/npezzotti/chatty/internal/types"
	"golang.org/x/crypto/bcrypt"
)

const (
	tokenCookieKey   = "token"
	tokenQueryKey    = "token"
	refreshCookieKey = "refreshToken"
	refreshPath      = "/api/auth"
	bearerPrefix     = "Bearer "
)

type contextKey string

const userKey contextKey = "user"

// Claims are carried by every access and refresh token. The two kinds are
// signed with different keys.
type Claims struct {
	UserId   string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.StandardClaims
}

func WithUser(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, userKey, c)
}

// CurrentUser returns the claims of the authenticated caller.
func CurrentUser(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(userKey).(*Claims)
	return c, ok && c != nil
}

type RegisterRequest struct {
	Email       string  `json:"email" validate:"required,email"`
	Username    string  `json:"username" validate:"required,min=3,max=20,username"`
	Password    string  `json:"password" validate:"required,min=6"`
	DisplayName *string `json:"displayName" validate:"omitempty,min=1,max=50"`
}

type LoginRequest struct {
	EmailOrUsername string `json:"emailOrUsername" validate:"required"`
	Password        string `json:"password" validate:"required"`
}

type UpdateAccountRequest struct {
	Username        *string `json:"username" validate:"omitempty,min=3,max=20,username"`
	Password        *string `json:"password" validate:"omitempty,min=6"`
	CurrentPassword *string `json:"currentPassword" validate:"required_with=Password"`
	DisplayName     *string `json:"displayName" validate:"omitempty,min=1,max=50"`
	StatusMessage   *string `json:"statusMessage" validate:"omitempty,max=200"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=6"`
}

// RefreshRequest carries a refresh token for clients that cannot send the
// refreshToken cookie.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type AuthResponse struct {
	User        types.User `json:"user"`
	AccessToken string     `json:"accessToken"`
}

type RefreshResponse struct {
	AccessToken string `json:"accessToken"`
}

func (s *GoChatApp) register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if errResp := s.decode(r, &req); errResp != nil {
		s.writeError(w, errResp)
		return
	}

	pwdHash, err := hashPassword(req.Password)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	user, err := s.db.CreateUser(database.CreateUserParams{
		Email:        strings.ToLower(req.Email),
		Username:     req.Username,
		PasswordHash: pwdHash,
		DisplayName:  req.DisplayName,
	})
	if err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			errResp := NewConflictError()
			errResp.Message = "email or username already in use"
			s.writeError(w, errResp)
			return
		}
		s.writeError(w, NewInternalServerError(err))
		return
	}

	s.log.Info().Str("user_id", user.Id).Str("username", user.Username).Msg("account created")
	s.issueToken(w, http.StatusCreated, user)
}

func (s *GoChatApp) login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if errResp := s.decode(r, &req); errResp != nil {
		s.writeError(w, errResp)
		return
	}

	user, err := s.db.GetUserByLogin(req.EmailOrUsername)
	if err != nil {
		if isNoRows(err) {
			s.writeError(w, NewUnauthorizedError())
			return
		}
		s.writeError(w, NewInternalServerError(err))
		return
	}

	if !verifyPassword(user.PasswordHash, req.Password) {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	s.issueToken(w, http.StatusOK, user)
}

func (s *GoChatApp) issueToken(w http.ResponseWriter, status int, user database.User) {
	token, ok := s.setTokenCookies(w, user)
	if !ok {
		return
	}

	s.writeJson(w, status, AuthResponse{
		User:        toUser(user),
		AccessToken: token,
	})
}

// setTokenCookies signs a new access/refresh pair for user and sets both
// cookies. On failure the error response has already been written.
func (s *GoChatApp) setTokenCookies(w http.ResponseWriter, user database.User) (string, bool) {
	token, err := s.createToken(user, s.tokenExpiry)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return "", false
	}
	refresh, err := s.createRefreshToken(user, s.refreshExpiry)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return "", false
	}

	http.SetCookie(w, createJwtCookie(token, s.tokenExpiry))
	http.SetCookie(w, createRefreshCookie(refresh, s.refreshExpiry))
	return token, true
}

// refresh exchanges a valid refresh token for a new token pair. The user
// is reloaded so role changes take effect.
func (s *GoChatApp) refresh(w http.ResponseWriter, r *http.Request) {
	tokenString := refreshTokenFromRequest(r)
	if tokenString == "" {
		errResp := NewUnauthorizedError()
		errResp.Message = "refresh token is required"
		s.writeError(w, errResp)
		return
	}

	claims, err := s.verifyRefreshToken(tokenString)
	if err != nil {
		s.log.Debug().Err(err).Msg("rejected refresh token")
		errResp := NewUnauthorizedError()
		errResp.Message = "invalid refresh token"
		s.writeError(w, errResp)
		return
	}

	user, err := s.db.GetUserById(claims.UserId)
	if err != nil {
		if isNoRows(err) {
			s.writeError(w, NewUnauthorizedError())
			return
		}
		s.writeError(w, NewInternalServerError(err))
		return
	}

	token, ok := s.setTokenCookies(w, user)
	if !ok {
		return
	}
	s.writeJson(w, http.StatusOK, RefreshResponse{AccessToken: token})
}

func (s *GoChatApp) session(w http.ResponseWriter, r *http.Request) {
	claims, _ := CurrentUser(r.Context())

	user, err := s.db.GetUserById(claims.UserId)
	if err != nil {
		if isNoRows(err) {
			s.writeError(w, NewNotFoundError())
			return
		}
		s.writeError(w, NewInternalServerError(err))
		return
	}

	s.writeJson(w, http.StatusOK, toUser(user))
}

// logout clears both cookies. A valid refresh token also marks its user
// offline; any failure there is only logged.
func (s *GoChatApp) logout(w http.ResponseWriter, r *http.Request) {
	if tokenString := refreshTokenFromRequest(r); tokenString != "" {
		if claims, err := s.verifyRefreshToken(tokenString); err == nil {
			if err := s.db.SetUserOnline(claims.UserId, false); err != nil {
				s.log.Error().Err(err).Str("user_id", claims.UserId).Msg("mark user offline on logout")
			}
		}
	}

	// overwrite the cookies with expired ones
	http.SetCookie(w, createJwtCookie("", -time.Hour))
	http.SetCookie(w, createRefreshCookie("", -time.Hour))
	w.WriteHeader(http.StatusNoContent)
}

func (s *GoChatApp) changePassword(w http.ResponseWriter, r *http.Request) {
	claims, _ := CurrentUser(r.Context())

	var req ChangePasswordRequest
	if errResp := s.decode(r, &req); errResp != nil {
		s.writeError(w, errResp)
		return
	}

	cur, err := s.db.GetUserById(claims.UserId)
	if err != nil {
		if isNoRows(err) {
			s.writeError(w, NewUnauthorizedError())
			return
		}
		s.writeError(w, NewInternalServerError(err))
		return
	}

	params := updateParamsFrom(cur)
	if errResp := setPassword(&params, cur, req.CurrentPassword, req.NewPassword); errResp != nil {
		s.writeError(w, errResp)
		return
	}

	if _, err := s.db.UpdateUser(params); err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	s.log.Info().Str("user_id", cur.Id).Msg("password changed")
	w.WriteHeader(http.StatusNoContent)
}

func (s *GoChatApp) getAccount(w http.ResponseWriter, r *http.Request) {
	s.session(w, r)
}

func (s *GoChatApp) updateAccount(w http.ResponseWriter, r *http.Request) {
	claims, _ := CurrentUser(r.Context())

	var req UpdateAccountRequest
	if errResp := s.decode(r, &req); errResp != nil {
		s.writeError(w, errResp)
		return
	}

	cur, err := s.db.GetUserById(claims.UserId)
	if err != nil {
		if isNoRows(err) {
			s.writeError(w, NewNotFoundError())
			return
		}
		s.writeError(w, NewInternalServerError(err))
		return
	}

	params := updateParamsFrom(cur)
	if req.Username != nil {
		params.Username = *req.Username
	}
	if req.Password != nil {
		if errResp := setPassword(&params, cur, *req.CurrentPassword, *req.Password); errResp != nil {
			s.writeError(w, errResp)
			return
		}
	}
	if req.DisplayName != nil {
		params.DisplayName = req.DisplayName
	}
	if req.StatusMessage != nil {
		params.StatusMessage = req.StatusMessage
	}

	updated, err := s.db.UpdateUser(params)
	if err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			errResp := NewConflictError()
			errResp.Message = "username already in use"
			s.writeError(w, errResp)
			return
		}
		s.writeError(w, NewInternalServerError(err))
		return
	}

	s.writeJson(w, http.StatusOK, toUser(updated))
}

func updateParamsFrom(u database.User) database.UpdateUserParams {
	return database.UpdateUserParams{
		UserId:        u.Id,
		Username:      u.Username,
		PasswordHash:  u.PasswordHash,
		DisplayName:   u.DisplayName,
		StatusMessage: u.StatusMessage,
	}
}

// setPassword hashes newPassword into params once currentPassword matches
// the stored hash of cur.
func setPassword(params *database.UpdateUserParams, cur database.User, currentPassword, newPassword string) *ApiError {
	if !verifyPassword(cur.PasswordHash, currentPassword) {
		errResp := NewUnauthorizedError()
		errResp.Message = "current password is incorrect"
		return errResp
	}

	hash, err := hashPassword(newPassword)
	if err != nil {
		return NewInternalServerError(err)
	}
	params.PasswordHash = hash
	return nil
}

func createJwtCookie(tokenString string, exp time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     tokenCookieKey,
		Value:    tokenString,
		Path:     "/",
		Expires:  time.Now().Add(exp),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
}

// createRefreshCookie scopes the refresh token to the auth endpoints.
func createRefreshCookie(tokenString string, exp time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     refreshCookieKey,
		Value:    tokenString,
		Path:     refreshPath,
		Expires:  time.Now().Add(exp),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
}

func hashPassword(passwd string) (string, error) {
	passwdHash, err := bcrypt.GenerateFromPassword([]byte(passwd), bcrypt.DefaultCost)
	return string(passwdHash), err
}

func verifyPassword(passwdHash, passwd string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(passwdHash), []byte(passwd))
	return err == nil
}

func (s *GoChatApp) createToken(user database.User, exp time.Duration) (string, error) {
	return signToken(s.signingKey, user, exp)
}

func (s *GoChatApp) createRefreshToken(user database.User, exp time.Duration) (string, error) {
	return signToken(s.refreshKey, user, exp)
}

func signToken(key []byte, user database.User, exp time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserId:   user.Id,
		Email:    user.Email,
		Username: user.Username,
		Role:     user.Role,
		StandardClaims: jwt.StandardClaims{
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(exp).Unix(),
		},
	})

	return token.SignedString(key)
}

func (s *GoChatApp) verifyToken(tokenString string) (*Claims, error) {
	return parseToken(s.signingKey, tokenString)
}

func (s *GoChatApp) verifyRefreshToken(tokenString string) (*Claims, error) {
	return parseToken(s.refreshKey, tokenString)
}

func parseToken(key []byte, tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	if !token.Valid || claims.UserId == "" {
		return nil, fmt.Errorf("invalid token")
	}

	return claims, nil
}

// tokenFromRequest looks for an access token in the Authorization header,
// then the token query parameter, then the token cookie.
func tokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, bearerPrefix) {
		return strings.TrimSpace(strings.TrimPrefix(h, bearerPrefix))
	}
	if t := r.URL.Query().Get(tokenQueryKey); t != "" {
		return t
	}
	if c, err := r.Cookie(tokenCookieKey); err == nil {
		return c.Value
	}
	return ""
}

// refreshTokenFromRequest reads the refreshToken cookie, then a JSON body
// of the form {"refreshToken": "..."}.
func refreshTokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(refreshCookieKey); err == nil && c.Value != "" {
		return c.Value
	}

	var req RefreshRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		return ""
	}
	return strings.TrimSpace(req.RefreshToken)
}
