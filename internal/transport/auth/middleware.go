package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"vereinskasse/internal/domain"
	"vereinskasse/internal/repository"
)

type ctxKey string

const UserIDKey ctxKey = "userID"

// SessionCookie carries the admin panel's session token.
const SessionCookie = "vk_session"

type TokenFinder interface {
	FindByPlainToken(ctx context.Context, plain string) (*domain.AccessToken, error)
}

type queryTokenKey struct{}

func isWebSocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

// QueryToken takes ?token= off the request URL so that request logs never
// see it. The value is kept only for websocket upgrades, where browsers
// cannot set headers. Register it before the request logger.
func QueryToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if !q.Has("token") {
			next.ServeHTTP(w, r)
			return
		}

		token := q.Get("token")
		q.Del("token")

		ctx := r.Context()
		if token != "" && isWebSocketUpgrade(r) {
			ctx = context.WithValue(ctx, queryTokenKey{}, token)
		}
		r = r.Clone(ctx)
		r.URL.RawQuery = q.Encode()
		r.RequestURI = r.URL.RequestURI()

		next.ServeHTTP(w, r)
	})
}

// tokenCandidates lists the credentials of a request in lookup order:
// bearer header, session cookie, then the websocket query token.
func tokenCandidates(r *http.Request) []string {
	var out []string
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		if t := strings.TrimSpace(strings.TrimPrefix(h, "Bearer ")); t != "" {
			out = append(out, t)
		}
	}
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		out = append(out, c.Value)
	}
	if t, ok := r.Context().Value(queryTokenKey{}).(string); ok && t != "" {
		out = append(out, t)
	}
	return out
}

func unauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, message)
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error_code": code,
		"status":     "error",
		"message":    message,
		"data":       nil,
	})
}

func TokenMiddleware(tokens TokenFinder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var (
				token     *domain.AccessToken
				lookupErr error
			)
			for _, plain := range tokenCandidates(r) {
				t, err := tokens.FindByPlainToken(r.Context(), plain)
				if err != nil {
					if !errors.Is(err, repository.ErrTokenNotFound) {
						lookupErr = err
					}
					continue
				}
				token = t
				break
			}

			// a failing token store is not a logged-out session
			if token == nil && lookupErr != nil {
				slog.Error("token lookup failed", "path", r.URL.Path, "error", lookupErr)
				writeError(w, http.StatusServiceUnavailable, "Anmeldung derzeit nicht möglich")
				return
			}

			if token == nil {
				slog.Debug("request without valid token", "method", r.Method, "path", r.URL.Path)
				unauthorized(w, "Nicht angemeldet")
				return
			}

			if token.Expired(time.Now()) {
				slog.Info("expired token rejected", "token_id", token.ID, "user_id", token.UserID)
				unauthorized(w, "Sitzung abgelaufen")
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, token.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetUserID(ctx context.Context) (int64, error) {
	userID, ok := ctx.Value(UserIDKey).(int64)
	if !ok {
		return 0, errors.New("userID not found in context")
	}
	return userID, nil
}
