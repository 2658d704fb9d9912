package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"abstrack/internal/metrics"
	"abstrack/internal/ratelimit"
	"abstrack/internal/session"
)

var (
	// ErrInvalidCredentials is deliberately generic so callers cannot tell
	// a missing account from a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrRegistrationClosed means no invitation code is configured.
	ErrRegistrationClosed = errors.New("registration disabled")
	// ErrInvalidInvite means the submitted invitation code did not match.
	ErrInvalidInvite = errors.New("invalid invitation code")
	// ErrInvalidName means the full name failed validation.
	ErrInvalidName = errors.New("invalid full name")
	// ErrWeakPassword means the password failed the policy.
	ErrWeakPassword = errors.New("password too weak")
	// ErrEmailTaken means an account already exists; callers surface it
	// with the same generic message as other registration failures.
	ErrEmailTaken = errors.New("account creation unavailable")
)

// RateLimitError reports a blocked attempt with its advisory retry delay.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("too many attempts, retry in %s", e.RetryAfter)
}

// Identity is the outcome of a successful credential check; the caller
// promotes it into a session.
type Identity struct {
	Role    session.Role
	ID      int64
	Display string
}

// Service runs the login and registration pipelines: rate limiting first,
// then credential checks, with failure bookkeeping on every exit path.
type Service struct {
	repo           *Repository
	limiter        ratelimit.Limiter
	invitationCode string

	// sleep is swapped out in tests.
	sleep func(time.Duration)
}

// NewService creates the auth service. invitationCode may be empty, which
// disables registration.
func NewService(repo *Repository, limiter ratelimit.Limiter, invitationCode string) *Service {
	return &Service{
		repo:           repo,
		limiter:        limiter,
		invitationCode: invitationCode,
		sleep:          time.Sleep,
	}
}

// Login checks credentials for either role, admins first. ip is the
// client's validated address, used only for rate-limit bucketing.
func (s *Service) Login(ctx context.Context, ip, email, password string) (Identity, error) {
	email = normalizeEmail(email)
	if err := s.checkRateLimit(ctx, ip, email); err != nil {
		return Identity{}, err
	}
	if !validEmail(email) || password == "" {
		return Identity{}, s.fail(ctx, ip, email, "")
	}

	admin, err := s.repo.AdminByEmail(ctx, email)
	if err != nil {
		return Identity{}, fmt.Errorf("admin lookup: %w", err)
	}
	if admin != nil && VerifyPassword(admin.PasswordHash, password) {
		return s.succeed(ctx, ip, email, Identity{Role: session.RoleAdmin, ID: admin.ID, Display: admin.Email})
	}

	student, err := s.repo.StudentByEmail(ctx, email)
	if err != nil {
		return Identity{}, fmt.Errorf("student lookup: %w", err)
	}
	if student != nil && VerifyPassword(student.PasswordHash, password) {
		return s.succeed(ctx, ip, email, Identity{Role: session.RoleStudent, ID: student.ID, Display: student.FullName})
	}

	// Randomized delay so response timing does not separate unknown
	// accounts from wrong passwords.
	s.sleep(time.Duration(200+rand.Intn(400)) * time.Millisecond)
	return Identity{}, s.fail(ctx, ip, email, roleLabel(admin != nil, student != nil))
}

// AdminLogin checks credentials against the admins table only.
func (s *Service) AdminLogin(ctx context.Context, ip, email, password string) (Identity, error) {
	email = normalizeEmail(email)
	if err := s.checkRateLimit(ctx, ip, email); err != nil {
		return Identity{}, err
	}
	if !validEmail(email) || password == "" {
		return Identity{}, s.fail(ctx, ip, email, string(session.RoleAdmin))
	}

	admin, err := s.repo.AdminByEmail(ctx, email)
	if err != nil {
		return Identity{}, fmt.Errorf("admin lookup: %w", err)
	}
	if admin != nil && VerifyPassword(admin.PasswordHash, password) {
		return s.succeed(ctx, ip, email, Identity{Role: session.RoleAdmin, ID: admin.ID, Display: admin.Email})
	}

	s.sleep(time.Duration(200+rand.Intn(400)) * time.Millisecond)
	return Identity{}, s.fail(ctx, ip, email, string(session.RoleAdmin))
}

// Register creates a student account gated by the invitation code and logs
// it straight in. Every rejected attempt counts toward the rate limit,
// matching the login pipeline.
func (s *Service) Register(ctx context.Context, ip, email, password, fullName, inviteCode string) (Identity, error) {
	email = normalizeEmail(email)
	if err := s.checkRateLimit(ctx, ip, email); err != nil {
		return Identity{}, err
	}

	fullName = collapseWhitespace(fullName)
	switch {
	case !validEmail(email):
		return Identity{}, s.failWith(ctx, ip, email, ErrInvalidCredentials)
	case len(fullName) < 3 || len(fullName) > 100:
		return Identity{}, s.failWith(ctx, ip, email, ErrInvalidName)
	case !ValidPasswordPolicy(password):
		return Identity{}, s.failWith(ctx, ip, email, ErrWeakPassword)
	case strings.TrimSpace(s.invitationCode) == "":
		return Identity{}, s.failWith(ctx, ip, email, ErrRegistrationClosed)
	case subtle.ConstantTimeCompare([]byte(s.invitationCode), []byte(inviteCode)) != 1:
		return Identity{}, s.failWith(ctx, ip, email, ErrInvalidInvite)
	}

	existing, err := s.repo.StudentByEmail(ctx, email)
	if err != nil {
		return Identity{}, fmt.Errorf("student lookup: %w", err)
	}
	if existing != nil {
		return Identity{}, s.failWith(ctx, ip, email, ErrEmailTaken)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return Identity{}, fmt.Errorf("hashing password: %w", err)
	}
	id, err := s.repo.CreateStudent(ctx, fullName, email, hash, "G1")
	if err != nil {
		return Identity{}, fmt.Errorf("creating student: %w", err)
	}
	return s.succeed(ctx, ip, email, Identity{Role: session.RoleStudent, ID: id, Display: fullName})
}

func (s *Service) checkRateLimit(ctx context.Context, ip, email string) error {
	status, err := s.limiter.Status(ctx, ip, email)
	if err != nil {
		return fmt.Errorf("rate limit status: %w", err)
	}
	if status.Blocked {
		metrics.LoginRateLimited.Inc()
		return &RateLimitError{RetryAfter: status.RetryAfter}
	}
	return nil
}

func (s *Service) succeed(ctx context.Context, ip, email string, id Identity) (Identity, error) {
	if err := s.limiter.ClearFailures(ctx, ip, email); err != nil {
		log.Printf("clearing login failures: %v", err)
	}
	switch id.Role {
	case session.RoleStudent:
		if err := s.repo.TouchStudentLogin(ctx, id.ID); err != nil {
			log.Printf("touching student login: %v", err)
		}
	case session.RoleAdmin:
		if err := s.repo.TouchAdminLogin(ctx, id.ID); err != nil {
			log.Printf("touching admin login: %v", err)
		}
	}
	metrics.AuthAttempts.WithLabelValues("success", string(id.Role)).Inc()
	return id, nil
}

func (s *Service) fail(ctx context.Context, ip, email, role string) error {
	if role == "" {
		role = "unknown"
	}
	metrics.AuthAttempts.WithLabelValues("failure", role).Inc()
	if err := s.limiter.RecordFailure(ctx, ip, email); err != nil {
		log.Printf("recording login failure: %v", err)
	}
	return ErrInvalidCredentials
}

func (s *Service) failWith(ctx context.Context, ip, email string, cause error) error {
	metrics.AuthAttempts.WithLabelValues("failure", "register").Inc()
	if err := s.limiter.RecordFailure(ctx, ip, email); err != nil {
		log.Printf("recording login failure: %v", err)
	}
	return cause
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	if email == "" {
		return false
	}
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

var whitespaceRun = regexp.MustCompile(`\s+`)

func collapseWhitespace(s string) string {
	return whitespaceRun.ReplaceAllString(strings.TrimSpace(s), " ")
}

func roleLabel(adminMatched, studentMatched bool) string {
	switch {
	case adminMatched:
		return string(session.RoleAdmin)
	case studentMatched:
		return string(session.RoleStudent)
	default:
		return "unknown"
	}
}
