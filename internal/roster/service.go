package roster

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"abstrack/internal/auth"
)

var (
	// ErrInvalidInput covers malformed admin form values.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound means the targeted row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrEmailTaken means a student already uses the email.
	ErrEmailTaken = errors.New("email already in use")
)

var (
	emailPattern    = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	timePattern     = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9](:[0-5][0-9])?$`)
	semesterPattern = regexp.MustCompile(`^[0-9]{4}-S[1-2]$`)
	whitespaceRun   = regexp.MustCompile(`\s+`)
)

var validDays = map[string]bool{
	"Samedi": true, "Dimanche": true, "Lundi": true,
	"Mardi": true, "Mercredi": true, "Jeudi": true, "Vendredi": true,
}

// Service applies the admin-side mutations on students, modules and weeks.
type Service struct {
	repo *Repository
}

// NewService creates a roster service.
func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

// Students lists all student accounts.
func (s *Service) Students(ctx context.Context) ([]StudentRow, error) {
	return s.repo.ListStudents(ctx)
}

// CreateStudent adds a student account with an admin-chosen password.
func (s *Service) CreateStudent(ctx context.Context, fullName, email, password, groupName string) (int64, error) {
	fullName = whitespaceRun.ReplaceAllString(strings.TrimSpace(fullName), " ")
	email = strings.ToLower(strings.TrimSpace(email))
	groupName = strings.TrimSpace(groupName)
	if groupName == "" {
		groupName = "G1"
	}
	if len(fullName) < 3 || len(fullName) > 100 || !emailPattern.MatchString(email) {
		return 0, ErrInvalidInput
	}
	if !auth.ValidPasswordPolicy(password) {
		return 0, ErrInvalidInput
	}

	taken, err := s.repo.StudentEmailExists(ctx, email)
	if err != nil {
		return 0, fmt.Errorf("checking email: %w", err)
	}
	if taken {
		return 0, ErrEmailTaken
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return 0, fmt.Errorf("hashing password: %w", err)
	}
	return s.repo.InsertStudent(ctx, fullName, email, hash, groupName)
}

// UpdateGroup moves a student to another group.
func (s *Service) UpdateGroup(ctx context.Context, studentID int64, groupName string) error {
	groupName = strings.TrimSpace(groupName)
	if studentID < 1 || groupName == "" || len(groupName) > 20 {
		return ErrInvalidInput
	}
	found, err := s.repo.UpdateStudentGroup(ctx, studentID, groupName)
	if err != nil {
		return fmt.Errorf("updating group: %w", err)
	}
	if !found {
		return ErrNotFound
	}
	return nil
}

// ResetPassword replaces a student's password.
func (s *Service) ResetPassword(ctx context.Context, studentID int64, newPassword string) error {
	if studentID < 1 || !auth.ValidPasswordPolicy(newPassword) {
		return ErrInvalidInput
	}
	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	found, err := s.repo.UpdateStudentPassword(ctx, studentID, hash)
	if err != nil {
		return fmt.Errorf("updating password: %w", err)
	}
	if !found {
		return ErrNotFound
	}
	return nil
}

// DeleteStudent removes a student account and its attendance.
func (s *Service) DeleteStudent(ctx context.Context, studentID int64) error {
	if studentID < 1 {
		return ErrInvalidInput
	}
	found, err := s.repo.DeleteStudent(ctx, studentID)
	if err != nil {
		return fmt.Errorf("deleting student: %w", err)
	}
	if !found {
		return ErrNotFound
	}
	return nil
}

// CreateModule adds a timetable entry.
func (s *Service) CreateModule(ctx context.Context, m ModuleRow) (int64, error) {
	if err := validateModule(&m); err != nil {
		return 0, err
	}
	return s.repo.InsertModule(ctx, m)
}

// UpdateModule rewrites a timetable entry.
func (s *Service) UpdateModule(ctx context.Context, m ModuleRow) error {
	if m.ID < 1 {
		return ErrInvalidInput
	}
	if err := validateModule(&m); err != nil {
		return err
	}
	found, err := s.repo.UpdateModule(ctx, m)
	if err != nil {
		return fmt.Errorf("updating module: %w", err)
	}
	if !found {
		return ErrNotFound
	}
	return nil
}

// DeleteModule removes a timetable entry and its attendance.
func (s *Service) DeleteModule(ctx context.Context, moduleID int64) error {
	if moduleID < 1 {
		return ErrInvalidInput
	}
	found, err := s.repo.DeleteModule(ctx, moduleID)
	if err != nil {
		return fmt.Errorf("deleting module: %w", err)
	}
	if !found {
		return ErrNotFound
	}
	return nil
}

// GenerateWeeks upserts count consecutive weeks for a semester starting at
// start. Existing weeks keep their ids, so attendance survives regeneration.
func (s *Service) GenerateWeeks(ctx context.Context, semester string, start time.Time, count int) error {
	if !semesterPattern.MatchString(semester) || count < 1 || count > 52 {
		return ErrInvalidInput
	}
	for i := 0; i < count; i++ {
		weekStart := start.AddDate(0, 0, i*7)
		weekEnd := weekStart.AddDate(0, 0, 6)
		if err := s.repo.UpsertWeek(ctx, semester, i+1, weekStart, weekEnd); err != nil {
			return fmt.Errorf("upserting week %d: %w", i+1, err)
		}
	}
	return nil
}

func validateModule(m *ModuleRow) error {
	m.Name = whitespaceRun.ReplaceAllString(strings.TrimSpace(m.Name), " ")
	m.Type = strings.TrimSpace(m.Type)
	m.Teacher = strings.TrimSpace(m.Teacher)
	m.Room = strings.TrimSpace(m.Room)
	if m.Name == "" || len(m.Name) > 120 {
		return ErrInvalidInput
	}
	if m.Type != "TD" && m.Type != "TP" && m.Type != "Cours" {
		return ErrInvalidInput
	}
	if !validDays[m.DayOfWeek] {
		return ErrInvalidInput
	}
	if !timePattern.MatchString(m.TimeStart) || !timePattern.MatchString(m.TimeEnd) {
		return ErrInvalidInput
	}
	if m.TimeEnd <= m.TimeStart {
		return ErrInvalidInput
	}
	return nil
}
