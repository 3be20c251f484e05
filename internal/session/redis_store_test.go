package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisStore(client), mr
}

func TestRedisStoreRoundTrip(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	s := Session{
		SessionID:         "sid",
		AccountID:         "acc-1",
		CreatedAt:         now,
		AbsoluteExpiresAt: now.Add(time.Hour),
		ExpiresAt:         now.Add(time.Hour),
	}
	require.NoError(t, store.Create(ctx, s))
	assert.True(t, mr.Exists(key("sid")))
	assert.Greater(t, mr.TTL(key("sid")), 59*time.Minute)

	got, err := store.Get(ctx, "sid")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "acc-1", got.AccountID)
	assert.True(t, got.CreatedAt.Equal(now))

	require.NoError(t, store.Delete(ctx, "sid"))
	got, err = store.Get(ctx, "sid")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisStoreRejectsInvalidSessions(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	err := store.Create(ctx, Session{SessionID: "sid", ExpiresAt: time.Now().Add(time.Hour)})
	assert.Error(t, err)

	err = store.Create(ctx, Session{SessionID: "sid", AccountID: "a", ExpiresAt: time.Now().Add(-time.Second)})
	assert.Error(t, err)
}

func TestRedisStoreUpdateExpiredDeletes(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	s := Session{SessionID: "sid", AccountID: "a", ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, store.Create(ctx, s))

	s.ExpiresAt = time.Now().Add(-time.Minute)
	require.NoError(t, store.Update(ctx, s))
	assert.False(t, mr.Exists(key("sid")))
}

func TestRedisStoreExpiresWithTTL(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, Session{SessionID: "sid", AccountID: "a", ExpiresAt: time.Now().Add(time.Minute)}))
	mr.FastForward(2 * time.Minute)

	got, err := store.Get(ctx, "sid")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisStoreTTLFollowsAbsoluteDeadline(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, store.Create(ctx, Session{
		SessionID:         "sid",
		AccountID:         "a",
		ExpiresAt:         now.Add(time.Hour),
		AbsoluteExpiresAt: now.Add(10 * time.Minute),
	}))

	ttl := mr.TTL(key("sid"))
	assert.LessOrEqual(t, ttl, 10*time.Minute)
	assert.Greater(t, ttl, 9*time.Minute)
}

func TestSessionExpired(t *testing.T) {
	now := time.Now()
	assert.False(t, Session{ExpiresAt: now.Add(time.Minute)}.Expired(now))
	assert.True(t, Session{ExpiresAt: now}.Expired(now))
	assert.True(t, Session{
		ExpiresAt:         now.Add(time.Hour),
		AbsoluteExpiresAt: now.Add(-time.Second),
	}.Expired(now))
}

func TestCookieDefaults(t *testing.T) {
	w := httptest.NewRecorder()
	SetCookie(w, "sid", time.Now().Add(time.Hour), CookieOptions{Secure: true})

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, HostCookieName, cookies[0].Name)
	assert.True(t, cookies[0].Secure)
	assert.Equal(t, "/", cookies[0].Path)
	assert.Empty(t, cookies[0].Domain)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookies[0].SameSite)

	w = httptest.NewRecorder()
	ClearCookie(w, CookieOptions{Secure: true})
	cleared := w.Result().Cookies()[0]
	assert.Equal(t, HostCookieName, cleared.Name)
	assert.True(t, cleared.Secure)
	assert.Equal(t, -1, cleared.MaxAge)
}

func TestInsecureCookieDropsHostPrefix(t *testing.T) {
	w := httptest.NewRecorder()
	SetCookie(w, "sid", time.Now().Add(time.Hour), CookieOptions{})

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, PlainCookieName, cookies[0].Name)
	assert.False(t, cookies[0].Secure)
	assert.True(t, cookies[0].HttpOnly)

	w = httptest.NewRecorder()
	ClearCookie(w, CookieOptions{})
	cleared := w.Result().Cookies()[0]
	assert.Equal(t, PlainCookieName, cleared.Name)
	assert.Equal(t, -1, cleared.MaxAge)
}

func TestIDFromRequestHonorsOnlyConfiguredName(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: PlainCookieName, Value: "planted"})

	_, ok := IDFromRequest(req, true)
	assert.False(t, ok)

	id, ok := IDFromRequest(req, false)
	require.True(t, ok)
	assert.Equal(t, "planted", id)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: HostCookieName, Value: "sid"})
	id, ok = IDFromRequest(req, true)
	require.True(t, ok)
	assert.Equal(t, "sid", id)
}

func TestGenerateIDIsUnique(t *testing.T) {
	a, err := GenerateID()
	require.NoError(t, err)
	b, err := GenerateID()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 43)
}
