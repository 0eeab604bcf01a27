package api

import (
	"fmt"
	"net/http"

	"github.com/npezzotti/chatty/internal/types"
)

func (s *GoChatApp) errorHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				var panicError error
				switch e := err.(type) {
				case error:
					panicError = e
				default:
					panicError = fmt.Errorf("%v", e)
				}
				s.log.Error().Err(panicError).Str("path", r.URL.Path).Msg("panic")
				errResp := NewInternalServerError(panicError)
				w.Header().Set("Connection", "close")
				s.writeJson(w, errResp.StatusCode, errResp)
				return
			}
		}()

		next.ServeHTTP(w, r)
	})
}

func (s *GoChatApp) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenString := tokenFromRequest(r)
		if tokenString == "" {
			s.writeError(w, NewUnauthorizedError())
			return
		}

		claims, err := s.verifyToken(tokenString)
		if err != nil {
			s.log.Debug().Err(err).Msg("rejected token")
			s.writeError(w, NewUnauthorizedError())
			return
		}

		ctx := WithUser(r.Context(), claims)
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")

		next(w, r.WithContext(ctx))
	}
}

// adminMiddleware authenticates the caller and requires the ADMIN role.
func (s *GoChatApp) adminMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return s.authMiddleware(func(w http.ResponseWriter, r *http.Request) {
		claims, _ := CurrentUser(r.Context())
		if claims.Role != types.RoleAdmin {
			s.writeError(w, NewForbiddenError())
			return
		}

		next(w, r)
	})
}
