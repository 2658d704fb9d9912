package handler

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"abstrack/internal/roster"
)

func (h *Handler) listStudents(c *gin.Context) {
	students, err := h.roster.Students(c.Request.Context())
	if err != nil {
		log.Printf("listing students failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Unable to load students"})
		return
	}
	if students == nil {
		students = []roster.StudentRow{}
	}
	c.JSON(http.StatusOK, students)
}

func (h *Handler) createStudent(c *gin.Context) {
	var req struct {
		FullName  string `json:"full_name"`
		Email     string `json:"email"`
		Password  string `json:"password"`
		GroupName string `json:"group_name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON payload"})
		return
	}

	id, err := h.roster.CreateStudent(c.Request.Context(), req.FullName, req.Email, req.Password, req.GroupName)
	if err != nil {
		h.rosterFailure(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (h *Handler) updateStudentGroup(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req struct {
		GroupName string `json:"group_name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON payload"})
		return
	}
	if err := h.roster.UpdateGroup(c.Request.Context(), id, req.GroupName); err != nil {
		h.rosterFailure(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) resetStudentPassword(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req struct {
		NewPassword string `json:"new_password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON payload"})
		return
	}
	if err := h.roster.ResetPassword(c.Request.Context(), id, req.NewPassword); err != nil {
		h.rosterFailure(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) deleteStudent(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.roster.DeleteStudent(c.Request.Context(), id); err != nil {
		h.rosterFailure(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type moduleRequest struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	Teacher   string `json:"teacher"`
	Room      string `json:"room"`
	DayOfWeek string `json:"day_of_week"`
	TimeStart string `json:"time_start"`
	TimeEnd   string `json:"time_end"`
}

func (r moduleRequest) row(id int64) roster.ModuleRow {
	return roster.ModuleRow{
		ID:        id,
		Name:      r.Name,
		Type:      r.Type,
		Teacher:   r.Teacher,
		Room:      r.Room,
		DayOfWeek: r.DayOfWeek,
		TimeStart: r.TimeStart,
		TimeEnd:   r.TimeEnd,
	}
}

func (h *Handler) createModule(c *gin.Context) {
	var req moduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON payload"})
		return
	}
	id, err := h.roster.CreateModule(c.Request.Context(), req.row(0))
	if err != nil {
		h.rosterFailure(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (h *Handler) updateModule(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req moduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON payload"})
		return
	}
	if err := h.roster.UpdateModule(c.Request.Context(), req.row(id)); err != nil {
		h.rosterFailure(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) deleteModule(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.roster.DeleteModule(c.Request.Context(), id); err != nil {
		h.rosterFailure(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) generateWeeks(c *gin.Context) {
	var req struct {
		Semester  string `json:"semester"`
		DateStart string `json:"date_start"`
		Count     int    `json:"count"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON payload"})
		return
	}
	start, err := time.Parse("2006-01-02", req.DateStart)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid date_start"})
		return
	}
	if err := h.roster.GenerateWeeks(c.Request.Context(), req.Semester, start, req.Count); err != nil {
		h.rosterFailure(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "count": req.Count})
}

func (h *Handler) rosterFailure(c *gin.Context, err error) {
	switch {
	case errors.Is(err, roster.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
	case errors.Is(err, roster.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	case errors.Is(err, roster.ErrEmailTaken):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email already in use"})
	default:
		log.Printf("admin action failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Unable to apply change"})
	}
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid id"})
		return 0, false
	}
	return id, true
}
