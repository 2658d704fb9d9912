package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Student is a credential-store row for the student role.
type Student struct {
	ID           int64
	FullName     string
	Email        string
	PasswordHash string
	GroupName    string
	FirstLoginAt *time.Time
	LastLoginAt  *time.Time
}

// Admin is a credential-store row for the admin role.
type Admin struct {
	ID           int64
	FullName     string
	Email        string
	PasswordHash string
	LastLoginAt  *time.Time
}

// Repository reads and writes credential records.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// StudentByEmail returns the student record, or nil when absent.
func (r *Repository) StudentByEmail(ctx context.Context, email string) (*Student, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, full_name, email, password_hash, group_name
		FROM students WHERE email = $1
	`, email)
	var s Student
	if err := row.Scan(&s.ID, &s.FullName, &s.Email, &s.PasswordHash, &s.GroupName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// AdminByEmail returns the admin record, or nil when absent.
func (r *Repository) AdminByEmail(ctx context.Context, email string) (*Admin, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, full_name, email, password_hash
		FROM admins WHERE email = $1
	`, email)
	var a Admin
	if err := row.Scan(&a.ID, &a.FullName, &a.Email, &a.PasswordHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

// CreateStudent inserts a new student and returns its id.
func (r *Repository) CreateStudent(ctx context.Context, fullName, email, passwordHash, groupName string) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO students (full_name, email, password_hash, group_name)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, fullName, email, passwordHash, groupName).Scan(&id)
	return id, err
}

// TouchStudentLogin records first and latest login times.
func (r *Repository) TouchStudentLogin(ctx context.Context, studentID int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE students
		SET first_login_at = COALESCE(first_login_at, NOW()),
			last_login_at = NOW()
		WHERE id = $1
	`, studentID)
	return err
}

// TouchAdminLogin records the latest admin login time.
func (r *Repository) TouchAdminLogin(ctx context.Context, adminID int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE admins SET last_login_at = NOW() WHERE id = $1
	`, adminID)
	return err
}
