package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"abstrack/internal/auth"
	"abstrack/internal/session"
)

func (h *Handler) login(c *gin.Context) {
	if err := h.sessions.VerifyFormToken(c); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "Invalid request"})
		return
	}

	identity, err := h.auth.Login(c.Request.Context(),
		c.ClientIP(), c.PostForm("email"), c.PostForm("password"))
	if err != nil {
		h.loginFailure(c, err)
		return
	}
	h.promote(c, identity)
}

func (h *Handler) adminLogin(c *gin.Context) {
	if err := h.sessions.VerifyFormToken(c); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "Invalid request"})
		return
	}

	identity, err := h.auth.AdminLogin(c.Request.Context(),
		c.ClientIP(), c.PostForm("email"), c.PostForm("password"))
	if err != nil {
		h.loginFailure(c, err)
		return
	}
	h.promote(c, identity)
}

func (h *Handler) register(c *gin.Context) {
	if err := h.sessions.VerifyFormToken(c); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "Invalid request"})
		return
	}

	identity, err := h.auth.Register(c.Request.Context(),
		c.ClientIP(),
		c.PostForm("email"),
		c.PostForm("password"),
		c.PostForm("full_name"),
		c.PostForm("invitation_code"))
	if err != nil {
		h.registerFailure(c, err)
		return
	}
	h.promote(c, identity)
}

func (h *Handler) logout(c *gin.Context) {
	if err := h.sessions.VerifyFormToken(c); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "Invalid request"})
		return
	}

	wasAdmin := h.sessions.Current(c).HasRole(session.RoleAdmin)
	h.sessions.Destroy(c)
	if wasAdmin {
		c.Redirect(http.StatusFound, adminLoginPath)
		return
	}
	c.Redirect(http.StatusFound, loginPath)
}

// promote turns a verified identity into an authenticated session and sends
// the client to the role's dashboard.
func (h *Handler) promote(c *gin.Context, identity auth.Identity) {
	if err := h.sessions.Authenticate(c, identity.Role, identity.ID, identity.Display); err != nil {
		log.Printf("session create failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Unable to start session"})
		return
	}
	if identity.Role == session.RoleAdmin {
		c.Redirect(http.StatusFound, adminDashboardPath)
		return
	}
	c.Redirect(http.StatusFound, dashboardPath)
}

func (h *Handler) loginFailure(c *gin.Context, err error) {
	var rl *auth.RateLimitError
	switch {
	case errors.As(err, &rl):
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":       "Too many attempts. Try again later.",
			"retry_after": int(rl.RetryAfter.Seconds()),
		})
	case errors.Is(err, auth.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password."})
	default:
		log.Printf("login failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Unable to sign in"})
	}
}

func (h *Handler) registerFailure(c *gin.Context, err error) {
	var rl *auth.RateLimitError
	switch {
	case errors.As(err, &rl):
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":       "Too many attempts. Try again later.",
			"retry_after": int(rl.RetryAfter.Seconds()),
		})
	case errors.Is(err, auth.ErrInvalidName):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid full name."})
	case errors.Is(err, auth.ErrWeakPassword):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Weak password (min 10, upper, lower, digit, symbol)."})
	case errors.Is(err, auth.ErrRegistrationClosed):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Registration disabled. Contact an administrator."})
	case errors.Is(err, auth.ErrInvalidInvite):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid invitation code."})
	case errors.Is(err, auth.ErrEmailTaken):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Account creation unavailable."})
	case errors.Is(err, auth.ErrInvalidCredentials):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid credentials."})
	default:
		log.Printf("registration failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Unable to create account"})
	}
}
