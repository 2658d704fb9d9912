package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"abstrack/internal/attendance"
	"abstrack/internal/auth"
	"abstrack/internal/httpmiddleware"
	"abstrack/internal/roster"
	"abstrack/internal/session"
)

// Paths the external page layer serves; mutations redirect between them.
const (
	loginPath          = "/login"
	adminLoginPath     = "/admin/login"
	dashboardPath      = "/dashboard"
	adminDashboardPath = "/admin"
)

// Handler wires the services to gin routes.
type Handler struct {
	sessions   *session.Manager
	auth       *auth.Service
	attendance *attendance.Service
	roster     *roster.Service
}

// New creates the handler set.
func New(sessions *session.Manager, authSvc *auth.Service, attendanceSvc *attendance.Service, rosterSvc *roster.Service) *Handler {
	return &Handler{
		sessions:   sessions,
		auth:       authSvc,
		attendance: attendanceSvc,
		roster:     rosterSvc,
	}
}

// Register mounts all routes on the engine.
func (h *Handler) Register(r *gin.Engine) {
	r.HandleMethodNotAllowed = true
	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "Method not allowed"})
	})

	// Login surface: form posts guarded by the form CSRF token that the
	// page layer embeds.
	r.POST("/login", h.login)
	r.POST("/register", h.register)
	r.POST("/admin/login", h.adminLogin)
	r.POST("/logout", h.logout)

	api := r.Group("/api", httpmiddleware.NoStore())
	api.GET("/session", h.sessionInfo)

	student := api.Group("", h.sessions.RequireRoleAPI(session.RoleStudent))
	student.GET("/modules", h.listModules)
	student.GET("/attendance", h.attendanceGrid)
	student.GET("/stats", h.attendanceStats)
	student.POST("/attendance", h.sessions.CSRFHeader(), h.toggleAttendance)

	admin := api.Group("/admin", h.sessions.RequireRoleAPI(session.RoleAdmin))
	admin.GET("/students", h.listStudents)
	admin.POST("/students", h.sessions.CSRFHeader(), h.createStudent)
	admin.PUT("/students/:id/group", h.sessions.CSRFHeader(), h.updateStudentGroup)
	admin.PUT("/students/:id/password", h.sessions.CSRFHeader(), h.resetStudentPassword)
	admin.DELETE("/students/:id", h.sessions.CSRFHeader(), h.deleteStudent)
	admin.POST("/modules", h.sessions.CSRFHeader(), h.createModule)
	admin.PUT("/modules/:id", h.sessions.CSRFHeader(), h.updateModule)
	admin.DELETE("/modules/:id", h.sessions.CSRFHeader(), h.deleteModule)
	admin.POST("/weeks", h.sessions.CSRFHeader(), h.generateWeeks)
}

// sessionInfo hands the page layer what it needs to render: the viewer's
// identity and the CSRF token to embed in forms and API calls.
func (h *Handler) sessionInfo(c *gin.Context) {
	sess := h.sessions.EnforceSecurity(c)
	token, err := h.sessions.IssueToken(c)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session unavailable"})
		return
	}

	info := gin.H{"authenticated": false, "csrf_token": token}
	switch {
	case sess.HasRole(session.RoleStudent):
		info["authenticated"] = true
		info["role"] = string(session.RoleStudent)
		info["display_name"] = sess.DisplayName
	case sess.HasRole(session.RoleAdmin):
		info["authenticated"] = true
		info["role"] = string(session.RoleAdmin)
		info["display_name"] = sess.DisplayName
	}
	c.JSON(http.StatusOK, info)
}
