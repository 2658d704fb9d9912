package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testCookie = "abstrack_session"
	testUA     = "Mozilla/5.0 (X11; Linux x86_64) test-browser"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestManager(idle time.Duration) (*Manager, *MemoryStore, *fakeNow) {
	store := NewMemoryStore()
	clock := &fakeNow{t: time.Unix(1_700_000_000, 0)}
	store.now = clock.now
	m := NewManager(store, testCookie, idle, false)
	m.now = clock.now
	return m, store, clock
}

type fakeNow struct {
	t time.Time
}

func (f *fakeNow) now() time.Time          { return f.t }
func (f *fakeNow) advance(d time.Duration) { f.t = f.t.Add(d) }

// request builds a gin context carrying the cookie and user agent, then runs
// the Load middleware so the session lands in the request context.
func request(m *Manager, method, ua, cookieID string) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, "/", nil)
	if ua != "" {
		c.Request.Header.Set("User-Agent", ua)
	}
	if cookieID != "" {
		c.Request.AddCookie(&http.Cookie{Name: testCookie, Value: cookieID})
	}
	m.Load()(c)
	return c, w
}

func issuedCookie(w *httptest.ResponseRecorder) *http.Cookie {
	for _, ck := range w.Result().Cookies() {
		if ck.Name == testCookie {
			return ck
		}
	}
	return nil
}

func seedSession(t *testing.T, store Store, sess *Session) string {
	t.Helper()
	id := "seeded-session-id"
	require.NoError(t, store.Save(context.Background(), id, sess, time.Hour))
	return id
}

func studentSession(clock *fakeNow, ua string) *Session {
	id := int64(7)
	return &Session{
		StudentID:      &id,
		DisplayName:    "Etudiant Demo",
		UAHash:         hashUserAgent(ua),
		LastActivityAt: clock.now().Unix(),
		CSRFToken:      "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
	}
}

func TestAuthenticateRegeneratesIdentifier(t *testing.T) {
	m, store, _ := newTestManager(30 * time.Minute)

	anonID := seedSession(t, store, &Session{CSRFToken: "formtoken-1234"})
	c, w := request(m, http.MethodPost, testUA, anonID)

	require.NoError(t, m.Authenticate(c, RoleStudent, 42, "Etudiant Demo"))

	ck := issuedCookie(w)
	require.NotNil(t, ck, "login must set a session cookie")
	assert.NotEqual(t, anonID, ck.Value, "identifier must change on login")
	assert.True(t, ck.HttpOnly)

	// The pre-login record is gone, so a fixated cookie stays anonymous.
	old, err := store.Get(context.Background(), anonID)
	require.NoError(t, err)
	assert.Nil(t, old)

	fresh, err := store.Get(context.Background(), ck.Value)
	require.NoError(t, err)
	require.NotNil(t, fresh)
	require.NotNil(t, fresh.StudentID)
	assert.EqualValues(t, 42, *fresh.StudentID)
	assert.Nil(t, fresh.AdminID)
	assert.Equal(t, "formtoken-1234", fresh.CSRFToken, "token embedded in the login form stays valid")
	assert.Equal(t, hashUserAgent(testUA), fresh.UAHash)
}

func TestAuthenticateAdminSetsOnlyAdminIdentity(t *testing.T) {
	m, store, _ := newTestManager(30 * time.Minute)
	c, w := request(m, http.MethodPost, testUA, "")

	require.NoError(t, m.Authenticate(c, RoleAdmin, 3, "admin@example.com"))

	ck := issuedCookie(w)
	require.NotNil(t, ck)
	sess, err := store.Get(context.Background(), ck.Value)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Nil(t, sess.StudentID)
	require.NotNil(t, sess.AdminID)
	assert.EqualValues(t, 3, *sess.AdminID)
	assert.True(t, sess.HasRole(RoleAdmin))
	assert.False(t, sess.HasRole(RoleStudent))
}

func TestIdleTimeoutDestroysSession(t *testing.T) {
	m, store, clock := newTestManager(30 * time.Minute)

	id := seedSession(t, store, studentSession(clock, testUA))
	clock.advance(30*time.Minute + time.Second)

	c, w := request(m, http.MethodGet, testUA, id)
	sess := m.EnforceSecurity(c)
	assert.Nil(t, sess)

	stored, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, stored, "idle session must be removed server-side")

	ck := issuedCookie(w)
	require.NotNil(t, ck, "logout must clear the cookie")
	assert.Empty(t, ck.Value)
}

func TestExactlyAtTimeoutSurvives(t *testing.T) {
	m, store, clock := newTestManager(30 * time.Minute)

	id := seedSession(t, store, studentSession(clock, testUA))
	clock.advance(30 * time.Minute)

	c, _ := request(m, http.MethodGet, testUA, id)
	sess := m.EnforceSecurity(c)
	require.NotNil(t, sess, "elapsed == timeout is still inside the window")
	assert.Equal(t, clock.now().Unix(), sess.LastActivityAt, "activity stamp refreshed")
}

func TestUserAgentMismatchDestroysSession(t *testing.T) {
	m, store, clock := newTestManager(30 * time.Minute)

	id := seedSession(t, store, studentSession(clock, testUA))

	c, _ := request(m, http.MethodGet, "curl/8.0", id)
	sess := m.EnforceSecurity(c)
	assert.Nil(t, sess)

	stored, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestAnonymousSessionSkipsChecks(t *testing.T) {
	m, store, clock := newTestManager(30 * time.Minute)

	id := seedSession(t, store, &Session{CSRFToken: "tok"})
	clock.advance(24 * time.Hour)

	// A token-only session has no identity to protect; it must not be
	// destroyed by the idle or user-agent checks.
	c, _ := request(m, http.MethodGet, "different-ua", id)
	sess := m.EnforceSecurity(c)
	require.NotNil(t, sess)
	assert.False(t, sess.Authenticated())

	stored, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.NotNil(t, stored)
}

func TestRequireRoleAPI(t *testing.T) {
	m, store, clock := newTestManager(30 * time.Minute)
	guard := m.RequireRoleAPI(RoleStudent)

	t.Run("no session", func(t *testing.T) {
		c, w := request(m, http.MethodGet, testUA, "")
		guard(c)
		assert.True(t, c.IsAborted())
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("wrong role", func(t *testing.T) {
		adminID := int64(1)
		id := seedSession(t, store, &Session{
			AdminID:        &adminID,
			UAHash:         hashUserAgent(testUA),
			LastActivityAt: clock.now().Unix(),
		})
		c, w := request(m, http.MethodGet, testUA, id)
		guard(c)
		assert.True(t, c.IsAborted())
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("matching role", func(t *testing.T) {
		id := seedSession(t, store, studentSession(clock, testUA))
		c, _ := request(m, http.MethodGet, testUA, id)
		guard(c)
		assert.False(t, c.IsAborted())
	})
}

func TestRequireRolePageRedirects(t *testing.T) {
	m, _, _ := newTestManager(30 * time.Minute)

	c, w := request(m, http.MethodGet, testUA, "")
	m.RequireRolePage(RoleAdmin, "/admin/login")(c)
	assert.True(t, c.IsAborted())
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/admin/login", w.Header().Get("Location"))
}

func TestIssueTokenIsStableAndWellFormed(t *testing.T) {
	m, store, _ := newTestManager(30 * time.Minute)

	c, w := request(m, http.MethodGet, testUA, "")
	token, err := m.IssueToken(c)
	require.NoError(t, err)
	assert.Len(t, token, 64, "32 random bytes hex encoded")

	// Same request context: the token must not rotate.
	again, err := m.IssueToken(c)
	require.NoError(t, err)
	assert.Equal(t, token, again)

	// Follow-up request with the issued cookie sees the same token.
	ck := issuedCookie(w)
	require.NotNil(t, ck)
	c2, _ := request(m, http.MethodGet, testUA, ck.Value)
	later, err := m.IssueToken(c2)
	require.NoError(t, err)
	assert.Equal(t, token, later)

	stored, err := store.Get(context.Background(), ck.Value)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, token, stored.CSRFToken)
}

func TestVerifyHeaderToken(t *testing.T) {
	m, store, clock := newTestManager(30 * time.Minute)
	sess := studentSession(clock, testUA)
	id := seedSession(t, store, sess)

	cases := []struct {
		name      string
		submitted string
		wantErr   bool
	}{
		{"exact match", sess.CSRFToken, false},
		{"missing", "", true},
		{"truncated", sess.CSRFToken[:63], true},
		{"different token", "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := request(m, http.MethodPost, testUA, id)
			if tc.submitted != "" {
				c.Request.Header.Set(CSRFHeaderName, tc.submitted)
			}
			err := m.VerifyHeaderToken(c)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrCSRFMismatch)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestVerifyTokenWithoutSession(t *testing.T) {
	m, _, _ := newTestManager(30 * time.Minute)

	c, _ := request(m, http.MethodPost, testUA, "")
	c.Request.Header.Set(CSRFHeaderName, "anything")
	assert.ErrorIs(t, m.VerifyHeaderToken(c), ErrCSRFMismatch)
}

func TestCSRFHeaderMiddlewareAborts(t *testing.T) {
	m, store, clock := newTestManager(30 * time.Minute)
	id := seedSession(t, store, studentSession(clock, testUA))

	c, w := request(m, http.MethodPost, testUA, id)
	c.Request.Header.Set(CSRFHeaderName, "wrong")
	m.CSRFHeader()(c)
	assert.True(t, c.IsAborted())
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestDestroyRemovesSessionAndCookie(t *testing.T) {
	m, store, clock := newTestManager(30 * time.Minute)
	id := seedSession(t, store, studentSession(clock, testUA))

	c, w := request(m, http.MethodPost, testUA, id)
	m.Destroy(c)

	stored, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, stored)

	ck := issuedCookie(w)
	require.NotNil(t, ck)
	assert.Empty(t, ck.Value)
	assert.Nil(t, m.Current(c))
}

func TestMemoryStoreExpiry(t *testing.T) {
	store := NewMemoryStore()
	clock := &fakeNow{t: time.Unix(1_700_000_000, 0)}
	store.now = clock.now

	sess := &Session{CSRFToken: "tok"}
	require.NoError(t, store.Save(context.Background(), "id", sess, time.Minute))

	got, err := store.Get(context.Background(), "id")
	require.NoError(t, err)
	assert.NotNil(t, got)

	clock.advance(61 * time.Second)
	got, err = store.Get(context.Background(), "id")
	require.NoError(t, err)
	assert.Nil(t, got)
}
