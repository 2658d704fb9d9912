package session

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"abstrack/internal/metrics"
)

const (
	ctxKeySession   = "abstrack.session"
	ctxKeySessionID = "abstrack.session_id"

	// CSRFHeaderName is the header checked on JSON mutations.
	CSRFHeaderName = "X-CSRF-Token"
	// CSRFFormField is the hidden field checked on page form posts.
	CSRFFormField = "csrf_token"
)

// ErrCSRFMismatch is returned when a submitted token does not match the
// session's token. Callers must treat it as a hard stop.
var ErrCSRFMismatch = errors.New("csrf token mismatch")

// Manager owns the session lifecycle for both login roles: creation with
// identifier regeneration, idle timeout, user-agent binding and CSRF tokens.
type Manager struct {
	store       Store
	cookieName  string
	idleTimeout time.Duration
	trustProxy  bool
	now         func() time.Time
}

// NewManager creates a session manager over the given store.
func NewManager(store Store, cookieName string, idleTimeout time.Duration, trustProxy bool) *Manager {
	return &Manager{
		store:       store,
		cookieName:  cookieName,
		idleTimeout: idleTimeout,
		trustProxy:  trustProxy,
		now:         time.Now,
	}
}

// Load resolves the session cookie into request context. It never creates
// a session; that happens lazily when a token is issued or a login succeeds.
func (m *Manager) Load() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id, err := c.Cookie(m.cookieName); err == nil && id != "" {
			sess, err := m.store.Get(c.Request.Context(), id)
			if err != nil {
				log.Printf("session load failed: %v", err)
			} else if sess != nil {
				c.Set(ctxKeySession, sess)
				c.Set(ctxKeySessionID, id)
			}
		}
		c.Next()
	}
}

// Authenticate regenerates the session identifier and binds the session to
// the given role identity. The pre-authentication record is discarded so a
// fixated cookie can never be promoted; its CSRF token carries over, matching
// the token already embedded in the login form.
func (m *Manager) Authenticate(c *gin.Context, role Role, identity int64, display string) error {
	ctx := c.Request.Context()

	var carriedToken string
	if old, oldID := m.current(c); oldID != "" {
		if old != nil {
			carriedToken = old.CSRFToken
		}
		if err := m.store.Delete(ctx, oldID); err != nil {
			log.Printf("stale session delete failed: %v", err)
		}
	}

	sess := &Session{
		DisplayName:    display,
		UAHash:         hashUserAgent(c.Request.UserAgent()),
		LastActivityAt: m.now().Unix(),
		CSRFToken:      carriedToken,
	}
	switch role {
	case RoleStudent:
		sess.StudentID = &identity
	case RoleAdmin:
		sess.AdminID = &identity
	default:
		return fmt.Errorf("unknown role %q", role)
	}
	if sess.CSRFToken == "" {
		token, err := newCSRFToken()
		if err != nil {
			return err
		}
		sess.CSRFToken = token
	}

	id := uuid.NewString()
	if err := m.store.Save(ctx, id, sess, m.idleTimeout); err != nil {
		return err
	}
	m.setCookie(c, id, 0)
	c.Set(ctxKeySession, sess)
	c.Set(ctxKeySessionID, id)
	return nil
}

// EnforceSecurity applies the idle timeout and user-agent binding checks.
// It is a no-op for anonymous sessions. The returned session is nil when
// the request ends up logged out.
func (m *Manager) EnforceSecurity(c *gin.Context) *Session {
	sess, id := m.current(c)
	if !sess.Authenticated() {
		return sess
	}

	now := m.now()
	if sess.LastActivityAt > 0 && now.Unix()-sess.LastActivityAt > int64(m.idleTimeout/time.Second) {
		m.destroy(c, id, "idle")
		return nil
	}

	currentHash := hashUserAgent(c.Request.UserAgent())
	if sess.UAHash == "" || subtle.ConstantTimeCompare([]byte(sess.UAHash), []byte(currentHash)) != 1 {
		m.destroy(c, id, "ua_mismatch")
		return nil
	}

	sess.LastActivityAt = now.Unix()
	if err := m.store.Save(c.Request.Context(), id, sess, m.idleTimeout); err != nil {
		log.Printf("session refresh failed: %v", err)
	}
	return sess
}

// RequireRolePage gates page routes; unauthenticated requests are redirected
// to the role's login page.
func (m *Manager) RequireRolePage(role Role, loginPath string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.EnforceSecurity(c).HasRole(role) {
			c.Redirect(http.StatusFound, loginPath)
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireRoleAPI gates JSON routes; unauthenticated requests get a 401.
func (m *Manager) RequireRoleAPI(role Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.EnforceSecurity(c).HasRole(role) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		c.Next()
	}
}

// Identity returns the session's identity for the given role.
func (m *Manager) Identity(c *gin.Context, role Role) (int64, bool) {
	sess, _ := m.current(c)
	return sess.Identity(role)
}

// DisplayName returns the stored display value (student name or admin email).
func (m *Manager) DisplayName(c *gin.Context) string {
	sess, _ := m.current(c)
	if sess == nil {
		return ""
	}
	return sess.DisplayName
}

// Current returns the request's session, or nil.
func (m *Manager) Current(c *gin.Context) *Session {
	sess, _ := m.current(c)
	return sess
}

// Destroy logs the session out and tells the client to drop the cookie.
func (m *Manager) Destroy(c *gin.Context) {
	_, id := m.current(c)
	m.destroy(c, id, "logout")
}

// IssueToken returns the session's CSRF token, creating an anonymous session
// and/or token if needed. The token is stable for the session's lifetime.
func (m *Manager) IssueToken(c *gin.Context) (string, error) {
	sess, id := m.current(c)
	if sess == nil {
		sess = &Session{}
		id = uuid.NewString()
		m.setCookie(c, id, 0)
		c.Set(ctxKeySession, sess)
		c.Set(ctxKeySessionID, id)
	}
	if sess.CSRFToken == "" {
		token, err := newCSRFToken()
		if err != nil {
			return "", err
		}
		sess.CSRFToken = token
		if err := m.store.Save(c.Request.Context(), id, sess, m.idleTimeout); err != nil {
			return "", err
		}
	}
	return sess.CSRFToken, nil
}

// VerifyFormToken checks the csrf_token form field against the session.
func (m *Manager) VerifyFormToken(c *gin.Context) error {
	return m.verifyToken(c, c.PostForm(CSRFFormField))
}

// VerifyHeaderToken checks the X-CSRF-Token header against the session.
func (m *Manager) VerifyHeaderToken(c *gin.Context) error {
	return m.verifyToken(c, c.GetHeader(CSRFHeaderName))
}

// CSRFForm aborts form posts carrying a missing or wrong token.
func (m *Manager) CSRFForm() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := m.VerifyFormToken(c); err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Invalid request"})
			return
		}
		c.Next()
	}
}

// CSRFHeader aborts JSON mutations carrying a missing or wrong token.
func (m *Manager) CSRFHeader() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := m.VerifyHeaderToken(c); err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Invalid CSRF token"})
			return
		}
		c.Next()
	}
}

func (m *Manager) verifyToken(c *gin.Context, submitted string) error {
	sess, _ := m.current(c)
	if sess == nil || sess.CSRFToken == "" || submitted == "" {
		return ErrCSRFMismatch
	}
	if subtle.ConstantTimeCompare([]byte(sess.CSRFToken), []byte(submitted)) != 1 {
		return ErrCSRFMismatch
	}
	return nil
}

func (m *Manager) current(c *gin.Context) (*Session, string) {
	var sess *Session
	if v, ok := c.Get(ctxKeySession); ok {
		sess, _ = v.(*Session)
	}
	id := ""
	if v, ok := c.Get(ctxKeySessionID); ok {
		id, _ = v.(string)
	}
	return sess, id
}

func (m *Manager) destroy(c *gin.Context, id, reason string) {
	if id != "" {
		if err := m.store.Delete(c.Request.Context(), id); err != nil {
			log.Printf("session delete failed: %v", err)
		}
	}
	m.setCookie(c, "", -1)
	c.Set(ctxKeySession, (*Session)(nil))
	c.Set(ctxKeySessionID, "")
	metrics.SessionsDestroyed.WithLabelValues(reason).Inc()
}

func (m *Manager) setCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(m.cookieName, value, maxAge, "/", "", m.secureRequest(c.Request), true)
}

// secureRequest reports whether the request arrived over HTTPS, either
// directly or declared by a trusted proxy.
func (m *Manager) secureRequest(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	if !m.trustProxy {
		return false
	}
	proto := r.Header.Get("X-Forwarded-Proto")
	if idx := strings.IndexByte(proto, ','); idx >= 0 {
		proto = proto[:idx]
	}
	return strings.EqualFold(strings.TrimSpace(proto), "https")
}

func hashUserAgent(ua string) string {
	sum := sha256.Sum256([]byte(ua))
	return hex.EncodeToString(sum[:])
}

func newCSRFToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("csrf token generation failed: %w", err)
	}
	return hex.EncodeToString(b), nil
}
