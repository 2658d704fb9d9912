package handler

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"abstrack/internal/attendance"
	"abstrack/internal/session"
)

const defaultSemester = "2025-S2"

type toggleRequest struct {
	ModuleID int64  `json:"module_id"`
	WeekID   int64  `json:"week_id"`
	Status   string `json:"status"`
}

func (h *Handler) toggleAttendance(c *gin.Context) {
	if !strings.HasPrefix(strings.ToLower(c.ContentType()), "application/json") {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "Unsupported content type"})
		return
	}

	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON payload"})
		return
	}

	// The student id comes from the session, never the payload, so one
	// student can never write another student's cell.
	studentID, ok := h.sessions.Identity(c, session.RoleStudent)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	status, err := h.attendance.SetStatus(c.Request.Context(),
		studentID, req.ModuleID, req.WeekID, attendance.Status(req.Status))
	if err != nil {
		h.attendanceFailure(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "status": status})
}

func (h *Handler) attendanceGrid(c *gin.Context) {
	studentID, _ := h.sessions.Identity(c, session.RoleStudent)

	moduleID, err := strconv.ParseInt(c.Query("module_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid module_id"})
		return
	}
	semester := strings.TrimSpace(c.DefaultQuery("semester", defaultSemester))

	weeks, err := h.attendance.Grid(c.Request.Context(), studentID, moduleID, semester)
	if err != nil {
		h.attendanceFailure(c, err)
		return
	}
	if weeks == nil {
		weeks = []attendance.WeekStatus{}
	}
	c.JSON(http.StatusOK, weeks)
}

func (h *Handler) listModules(c *gin.Context) {
	modules, err := h.attendance.Modules(c.Request.Context())
	if err != nil {
		log.Printf("listing modules failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Unable to load modules"})
		return
	}
	if modules == nil {
		modules = []attendance.Module{}
	}
	c.JSON(http.StatusOK, modules)
}

func (h *Handler) attendanceStats(c *gin.Context) {
	studentID, _ := h.sessions.Identity(c, session.RoleStudent)

	report, err := h.attendance.Stats(c.Request.Context(), studentID)
	if err != nil {
		log.Printf("loading stats failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Unable to load stats"})
		return
	}
	if report.Modules == nil {
		report.Modules = []attendance.ModuleStat{}
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handler) attendanceFailure(c *gin.Context, err error) {
	switch {
	case errors.Is(err, attendance.ErrInvalidPayload):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payload"})
	case errors.Is(err, attendance.ErrModuleNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Module not found"})
	case errors.Is(err, attendance.ErrWeekNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Week not found"})
	default:
		log.Printf("attendance update failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Unable to update attendance"})
	}
}
