package httpmw

import (
	"context"
	"net/http"
	"strings"

	"github.com/cwrk-planet/karaoke-service/internal/security"
)

type ctxKey string

const (
	ctxKeyToken ctxKey = "token"
	ctxKeyUser  ctxKey = "user"

	HeaderUserID   = "X-User-ID"
	HeaderUserName = "X-User-Name"
)

type Identity struct {
	UserID string
	Name   string
}

type TokenVerifier interface {
	ParseAndValidate(token string) (*security.AccessClaims, error)
}

// Auth требует Bearer токен. С verifier токен проверяется и пользователь
// берётся из sub; без него (dev) из заголовка X-User-ID.
// WebSocket-клиенты передают токен и user_id в query.
func Auth(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				writeAuthError(w, "missing bearer token")
				return
			}

			var id Identity
			if verifier != nil {
				claims, err := verifier.ParseAndValidate(token)
				if err != nil {
					writeAuthError(w, "invalid token")
					return
				}
				id = Identity{UserID: claims.Subject, Name: claims.Name}
			} else {
				id = Identity{
					UserID: firstNonEmpty(r.Header.Get(HeaderUserID), r.URL.Query().Get("user_id")),
					Name:   firstNonEmpty(r.Header.Get(HeaderUserName), r.URL.Query().Get("name")),
				}
				if id.UserID == "" {
					writeAuthError(w, "missing X-User-ID")
					return
				}
			}

			ctx := context.WithValue(r.Context(), ctxKeyToken, token)
			ctx = context.WithValue(ctx, ctxKeyUser, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return strings.TrimSpace(r.URL.Query().Get("access_token"))
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func writeAuthError(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":{"code":"unauthorized","message":"` + msg + `"}}`))
}

func IdentityFromCtx(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKeyUser).(Identity)
	return id, ok && id.UserID != ""
}

func UserIDFromCtx(ctx context.Context) string {
	id, _ := IdentityFromCtx(ctx)
	return id.UserID
}

// WithIdentity is used by tests and by non-HTTP entry points that authenticate elsewhere.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKeyUser, id)
}
