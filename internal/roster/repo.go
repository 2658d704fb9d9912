package roster

import (
	"context"
	"database/sql"
	"time"
)

// StudentRow is a student as the admin screens see it.
type StudentRow struct {
	ID           int64      `json:"id"`
	FullName     string     `json:"full_name"`
	Email        string     `json:"email"`
	GroupName    string     `json:"group_name"`
	FirstLoginAt *time.Time `json:"first_login_at,omitempty"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
}

// ModuleRow is a timetable entry as the admin screens see it.
type ModuleRow struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	Teacher   string `json:"teacher"`
	Room      string `json:"room"`
	DayOfWeek string `json:"day_of_week"`
	TimeStart string `json:"time_start"`
	TimeEnd   string `json:"time_end"`
}

// Repository persists admin-managed reference data.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// ListStudents returns all students ordered by name.
func (r *Repository) ListStudents(ctx context.Context) ([]StudentRow, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, full_name, email, group_name, first_login_at, last_login_at
		FROM students
		ORDER BY full_name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var students []StudentRow
	for rows.Next() {
		var s StudentRow
		if err := rows.Scan(&s.ID, &s.FullName, &s.Email, &s.GroupName, &s.FirstLoginAt, &s.LastLoginAt); err != nil {
			return nil, err
		}
		students = append(students, s)
	}
	return students, rows.Err()
}

// StudentEmailExists reports whether a student already uses the email.
func (r *Repository) StudentEmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM students WHERE email = $1)`, email).Scan(&exists)
	return exists, err
}

// InsertStudent creates a student account and returns its id.
func (r *Repository) InsertStudent(ctx context.Context, fullName, email, passwordHash, groupName string) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO students (full_name, email, password_hash, group_name)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, fullName, email, passwordHash, groupName).Scan(&id)
	return id, err
}

// UpdateStudentGroup moves a student to another group.
func (r *Repository) UpdateStudentGroup(ctx context.Context, studentID int64, groupName string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE students SET group_name = $1 WHERE id = $2`, groupName, studentID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// UpdateStudentPassword replaces a student's password hash.
func (r *Repository) UpdateStudentPassword(ctx context.Context, studentID int64, passwordHash string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE students SET password_hash = $1 WHERE id = $2`, passwordHash, studentID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// DeleteStudent removes a student; attendance rows cascade.
func (r *Repository) DeleteStudent(ctx context.Context, studentID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM students WHERE id = $1`, studentID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// InsertModule creates a timetable entry and returns its id.
func (r *Repository) InsertModule(ctx context.Context, m ModuleRow) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO modules (name, type, teacher, room, day_of_week, time_start, time_end)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, m.Name, m.Type, m.Teacher, m.Room, m.DayOfWeek, m.TimeStart, m.TimeEnd).Scan(&id)
	return id, err
}

// UpdateModule rewrites a timetable entry.
func (r *Repository) UpdateModule(ctx context.Context, m ModuleRow) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE modules
		SET name = $1, type = $2, teacher = $3, room = $4,
			day_of_week = $5, time_start = $6, time_end = $7
		WHERE id = $8
	`, m.Name, m.Type, m.Teacher, m.Room, m.DayOfWeek, m.TimeStart, m.TimeEnd, m.ID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// DeleteModule removes a timetable entry; attendance rows cascade.
func (r *Repository) DeleteModule(ctx context.Context, moduleID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM modules WHERE id = $1`, moduleID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// UpsertWeek writes one semester week keyed by (semester, week_number).
func (r *Repository) UpsertWeek(ctx context.Context, semester string, weekNumber int, dateStart, dateEnd time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO weeks (week_number, date_start, date_end, semester)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (semester, week_number) DO UPDATE
		SET date_start = EXCLUDED.date_start,
			date_end = EXCLUDED.date_end
	`, weekNumber, dateStart, dateEnd, semester)
	return err
}
