package middleware

import (
	"context"
	"net/http"
	"time"

	"identity-service/internal/session"
)

// unexported, collision-proof context key
type accountIDContextKeyType struct{}

var accountIDKey = accountIDContextKeyType{}

// AccountIDFromContext extracts the authenticated account ID from context.
func AccountIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(accountIDKey).(string)
	return id, ok && id != ""
}

// WithAccountID attaches an authenticated account ID to ctx.
func WithAccountID(ctx context.Context, accountID string) context.Context {
	return context.WithValue(ctx, accountIDKey, accountID)
}

type AuthMiddleware struct {
	Store session.Store
	// SecureCookie selects which session cookie name is honored.
	SecureCookie bool
	now          func() time.Time
}

func NewAuthMiddleware(store session.Store, secureCookie bool) *AuthMiddleware {
	return &AuthMiddleware{Store: store, SecureCookie: secureCookie, now: time.Now}
}

// load resolves the session cookie to a live session, or nil.
func (a *AuthMiddleware) load(r *http.Request) *session.Session {
	id, ok := session.IDFromRequest(r, a.SecureCookie)
	if !ok {
		return nil
	}

	sess, err := a.Store.Get(r.Context(), id)
	if err != nil || sess == nil {
		return nil
	}

	if sess.Expired(a.now()) {
		_ = a.Store.Delete(r.Context(), id)
		return nil
	}
	return sess
}

// RequireAuth rejects requests without a live session.
func (a *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := a.load(r)
		if sess == nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithAccountID(r.Context(), sess.AccountID)))
	})
}

// OptionalAuth attaches the account when a live session exists and lets
// anonymous requests through. The OAuth callback uses it to choose between
// sign-in and connect.
func (a *AuthMiddleware) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sess := a.load(r); sess != nil {
			r = r.WithContext(WithAccountID(r.Context(), sess.AccountID))
		}
		next.ServeHTTP(w, r)
	})
}
