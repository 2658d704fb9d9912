package attendance

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"abstrack/internal/metrics"
)

// Status is a student's recorded state for one module/week cell. The UI
// cycles unknown -> present -> absent per click, but that is a presentation
// convention only; the server accepts any valid status in any order.
type Status string

const (
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
	StatusUnknown Status = "unknown"
)

// Valid reports whether the status is one of the three accepted values.
func (s Status) Valid() bool {
	switch s {
	case StatusPresent, StatusAbsent, StatusUnknown:
		return true
	}
	return false
}

var (
	// ErrInvalidPayload covers malformed input: bad ids, bad status, bad semester.
	ErrInvalidPayload = errors.New("invalid payload")
	// ErrModuleNotFound means the referenced module row does not exist.
	ErrModuleNotFound = errors.New("module not found")
	// ErrWeekNotFound means the referenced week row does not exist.
	ErrWeekNotFound = errors.New("week not found")
)

var semesterPattern = regexp.MustCompile(`^[0-9]{4}-S[1-2]$`)

// Service validates and applies attendance updates.
type Service struct {
	repo *Repository
}

// NewService creates a service backed by a repository.
func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

// SetStatus upserts one attendance cell for the student. The student id
// always comes from the authenticated session, never from client input.
// Calling it twice with the same arguments is safe; the last write wins.
func (s *Service) SetStatus(ctx context.Context, studentID, moduleID, weekID int64, status Status) (Status, error) {
	if moduleID < 1 || weekID < 1 || !status.Valid() {
		return "", ErrInvalidPayload
	}

	exists, err := s.repo.ModuleExists(ctx, moduleID)
	if err != nil {
		return "", fmt.Errorf("checking module: %w", err)
	}
	if !exists {
		return "", ErrModuleNotFound
	}

	exists, err = s.repo.WeekExists(ctx, weekID)
	if err != nil {
		return "", fmt.Errorf("checking week: %w", err)
	}
	if !exists {
		return "", ErrWeekNotFound
	}

	if err := s.repo.UpsertStatus(ctx, studentID, moduleID, weekID, status); err != nil {
		return "", fmt.Errorf("upserting attendance: %w", err)
	}
	metrics.AttendanceToggles.WithLabelValues(string(status)).Inc()
	return status, nil
}

// Grid returns the student's week-by-week statuses for one module.
func (s *Service) Grid(ctx context.Context, studentID, moduleID int64, semester string) ([]WeekStatus, error) {
	if moduleID < 1 || !semesterPattern.MatchString(semester) {
		return nil, ErrInvalidPayload
	}
	exists, err := s.repo.ModuleExists(ctx, moduleID)
	if err != nil {
		return nil, fmt.Errorf("checking module: %w", err)
	}
	if !exists {
		return nil, ErrModuleNotFound
	}
	return s.repo.WeekStatuses(ctx, studentID, moduleID, semester)
}

// Modules returns the timetable.
func (s *Service) Modules(ctx context.Context) ([]Module, error) {
	return s.repo.ListModules(ctx)
}

// StatsTotals sums counters across modules.
type StatsTotals struct {
	Present  int `json:"present"`
	Absent   int `json:"absent"`
	Unknown  int `json:"unknown"`
	Recorded int `json:"recorded"`
}

// StatsReport is the per-module breakdown plus totals.
type StatsReport struct {
	Modules []ModuleStat `json:"modules"`
	Totals  StatsTotals  `json:"totals"`
}

// Stats aggregates the student's attendance counters.
func (s *Service) Stats(ctx context.Context, studentID int64) (StatsReport, error) {
	stats, err := s.repo.ModuleStats(ctx, studentID)
	if err != nil {
		return StatsReport{}, err
	}
	report := StatsReport{Modules: stats}
	for _, m := range stats {
		report.Totals.Present += m.Present
		report.Totals.Absent += m.Absent
		report.Totals.Unknown += m.Unknown
		report.Totals.Recorded += m.Recorded
	}
	return report, nil
}
