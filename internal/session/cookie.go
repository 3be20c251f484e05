package session

import (
	"net/http"
	"time"
)

// Browsers only store a __Host- cookie when it is Secure, has Path=/ and no
// Domain. Deployments without TLS use the plain name instead.
const (
	HostCookieName  = "__Host-session"
	PlainCookieName = "session"
)

// CookieName returns the session cookie name for the transport in use.
func CookieName(secure bool) string {
	if secure {
		return HostCookieName
	}
	return PlainCookieName
}

// CookieOptions controls the session cookie. Path, Domain and HttpOnly are
// fixed: the cookie is host-only, site-wide and never readable by scripts.
type CookieOptions struct {
	Secure   bool
	SameSite http.SameSite // defaults to Lax
}

func (o CookieOptions) cookie(value string) *http.Cookie {
	sameSite := o.SameSite
	if sameSite == 0 {
		sameSite = http.SameSiteLaxMode
	}
	return &http.Cookie{
		Name:     CookieName(o.Secure),
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   o.Secure,
		SameSite: sameSite,
	}
}

// SetCookie hands the session id to the client until expiresAt.
func SetCookie(w http.ResponseWriter, sessionID string, expiresAt time.Time, opts CookieOptions) {
	c := opts.cookie(sessionID)
	c.Expires = expiresAt
	http.SetCookie(w, c)
}

// ClearCookie expires the session cookie on the client.
func ClearCookie(w http.ResponseWriter, opts CookieOptions) {
	c := opts.cookie("")
	c.MaxAge = -1
	http.SetCookie(w, c)
}

// IDFromRequest reads the session id from the cookie name matching secure.
// A plain-named cookie is ignored on secure deployments, so a sibling host
// cannot plant a session.
func IDFromRequest(r *http.Request, secure bool) (string, bool) {
	c, err := r.Cookie(CookieName(secure))
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}
