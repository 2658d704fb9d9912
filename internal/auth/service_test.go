package auth

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"abstrack/internal/ratelimit"
	"abstrack/internal/session"
)

const (
	testIP     = "1.2.3.4"
	testInvite = "INFO-2025"
)

func quickHash(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func newMockAuth(t *testing.T, limiter ratelimit.Limiter) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	svc := NewService(NewRepository(db), limiter, testInvite)
	svc.sleep = func(time.Duration) {}
	return svc, mock
}

func expectAdminLookup(mock sqlmock.Sqlmock, email string, row *Admin) {
	q := mock.ExpectQuery(regexp.QuoteMeta(`FROM admins WHERE email = $1`)).WithArgs(email)
	if row == nil {
		q.WillReturnError(sql.ErrNoRows)
		return
	}
	q.WillReturnRows(sqlmock.NewRows([]string{"id", "full_name", "email", "password_hash"}).
		AddRow(row.ID, row.FullName, row.Email, row.PasswordHash))
}

func expectStudentLookup(mock sqlmock.Sqlmock, email string, row *Student) {
	q := mock.ExpectQuery(regexp.QuoteMeta(`FROM students WHERE email = $1`)).WithArgs(email)
	if row == nil {
		q.WillReturnError(sql.ErrNoRows)
		return
	}
	q.WillReturnRows(sqlmock.NewRows([]string{"id", "full_name", "email", "password_hash", "group_name"}).
		AddRow(row.ID, row.FullName, row.Email, row.PasswordHash, row.GroupName))
}

func TestLoginStudentSuccessClearsFailures(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter(ratelimit.Config{Window: 900 * time.Second, MaxAttempts: 2})
	svc, mock := newMockAuth(t, limiter)
	ctx := context.Background()

	// One strike on the books; a success must wipe it.
	require.NoError(t, limiter.RecordFailure(ctx, testIP, "sam@example.com"))

	expectAdminLookup(mock, "sam@example.com", nil)
	expectStudentLookup(mock, "sam@example.com", &Student{
		ID: 7, FullName: "Sam Rivera", Email: "sam@example.com",
		PasswordHash: quickHash(t, "correct horse"), GroupName: "G1",
	})
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE students`)).
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	id, err := svc.Login(ctx, testIP, "Sam@Example.com ", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, session.RoleStudent, id.Role)
	assert.EqualValues(t, 7, id.ID)
	assert.Equal(t, "Sam Rivera", id.Display)
	assert.NoError(t, mock.ExpectationsWereMet())

	// The earlier strike is gone: one fresh failure stays under the ceiling.
	require.NoError(t, limiter.RecordFailure(ctx, testIP, "sam@example.com"))
	status, err := limiter.Status(ctx, testIP, "sam@example.com")
	require.NoError(t, err)
	assert.False(t, status.Blocked)
}

func TestLoginPrefersAdminAccount(t *testing.T) {
	svc, mock := newMockAuth(t, ratelimit.NewMemoryLimiter(ratelimit.Config{}))

	expectAdminLookup(mock, "admin@example.com", &Admin{
		ID: 3, FullName: "Main Administrator", Email: "admin@example.com",
		PasswordHash: quickHash(t, "admin pass"),
	})
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE admins SET last_login_at`)).
		WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	id, err := svc.Login(context.Background(), testIP, "admin@example.com", "admin pass")
	require.NoError(t, err)
	assert.Equal(t, session.RoleAdmin, id.Role)
	assert.Equal(t, "admin@example.com", id.Display, "admins display their email, not their name")
	assert.NoError(t, mock.ExpectationsWereMet(), "no student lookup after an admin match")
}

func TestLoginWrongPassword(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter(ratelimit.Config{Window: 900 * time.Second, MaxAttempts: 1})
	svc, mock := newMockAuth(t, limiter)
	slept := false
	svc.sleep = func(time.Duration) { slept = true }

	expectAdminLookup(mock, "sam@example.com", nil)
	expectStudentLookup(mock, "sam@example.com", &Student{
		ID: 7, FullName: "Sam Rivera", Email: "sam@example.com",
		PasswordHash: quickHash(t, "correct horse"), GroupName: "G1",
	})

	_, err := svc.Login(context.Background(), testIP, "sam@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.True(t, slept, "failed checks take the randomized delay path")

	// The failure was recorded, so the next attempt is throttled.
	status, err := limiter.Status(context.Background(), testIP, "sam@example.com")
	require.NoError(t, err)
	assert.True(t, status.Blocked)
}

func TestLoginUnknownAccountLooksLikeWrongPassword(t *testing.T) {
	svc, mock := newMockAuth(t, ratelimit.NewMemoryLimiter(ratelimit.Config{}))

	expectAdminLookup(mock, "ghost@example.com", nil)
	expectStudentLookup(mock, "ghost@example.com", nil)

	_, err := svc.Login(context.Background(), testIP, "ghost@example.com", "anything")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginBlockedBeforeCredentialCheck(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter(ratelimit.Config{Window: 900 * time.Second, MaxAttempts: 2})
	svc, mock := newMockAuth(t, limiter)
	ctx := context.Background()

	require.NoError(t, limiter.RecordFailure(ctx, testIP, "sam@example.com"))
	require.NoError(t, limiter.RecordFailure(ctx, testIP, "sam@example.com"))

	_, err := svc.Login(ctx, testIP, "sam@example.com", "correct horse")
	var rle *RateLimitError
	require.ErrorAs(t, err, &rle)
	assert.Greater(t, rle.RetryAfter, time.Duration(0))
	// No SQL ran: the limiter gate sits in front of the lookups.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoginMalformedEmailCountsAsFailure(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter(ratelimit.Config{Window: 900 * time.Second, MaxAttempts: 1})
	svc, _ := newMockAuth(t, limiter)

	_, err := svc.Login(context.Background(), testIP, "not-an-email", "pass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	status, err := limiter.Status(context.Background(), testIP, "not-an-email")
	require.NoError(t, err)
	assert.True(t, status.Blocked)
}

func TestAdminLoginIgnoresStudents(t *testing.T) {
	svc, mock := newMockAuth(t, ratelimit.NewMemoryLimiter(ratelimit.Config{}))

	// A student with these exact credentials exists, but the admin surface
	// only consults the admins table.
	expectAdminLookup(mock, "sam@example.com", nil)

	_, err := svc.AdminLogin(context.Background(), testIP, "sam@example.com", "correct horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegisterSuccessLogsIn(t *testing.T) {
	svc, mock := newMockAuth(t, ratelimit.NewMemoryLimiter(ratelimit.Config{}))

	expectStudentLookup(mock, "new@example.com", nil)
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO students`)).
		WithArgs("Nadia Benali", "new@example.com", sqlmock.AnyArg(), "G1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(12))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE students`)).
		WithArgs(int64(12)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	id, err := svc.Register(context.Background(), testIP,
		"New@Example.com", "Str0ng!Passw0rd", "  Nadia   Benali ", testInvite)
	require.NoError(t, err)
	assert.Equal(t, session.RoleStudent, id.Role)
	assert.EqualValues(t, 12, id.ID)
	assert.Equal(t, "Nadia Benali", id.Display, "whitespace runs collapse")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegisterValidation(t *testing.T) {
	cases := []struct {
		name     string
		email    string
		password string
		fullName string
		invite   string
		want     error
	}{
		{"bad email", "nope", "Str0ng!Passw0rd", "Nadia Benali", testInvite, ErrInvalidCredentials},
		{"short name", "new@example.com", "Str0ng!Passw0rd", "ab", testInvite, ErrInvalidName},
		{"weak password", "new@example.com", "password", "Nadia Benali", testInvite, ErrWeakPassword},
		{"wrong invite", "new@example.com", "Str0ng!Passw0rd", "Nadia Benali", "WRONG", ErrInvalidInvite},
		{"empty invite", "new@example.com", "Str0ng!Passw0rd", "Nadia Benali", "", ErrInvalidInvite},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			limiter := ratelimit.NewMemoryLimiter(ratelimit.Config{Window: 900 * time.Second, MaxAttempts: 1})
			svc, mock := newMockAuth(t, limiter)

			_, err := svc.Register(context.Background(), testIP,
				tc.email, tc.password, tc.fullName, tc.invite)
			assert.ErrorIs(t, err, tc.want)
			assert.NoError(t, mock.ExpectationsWereMet(), "rejected before any SQL")

			// Rejected registrations count toward the limiter like failed logins.
			status, err := limiter.Status(context.Background(), testIP, tc.email)
			require.NoError(t, err)
			assert.True(t, status.Blocked)
		})
	}
}

func TestRegisterClosedWithoutInvitationCode(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	svc := NewService(NewRepository(db), ratelimit.NewMemoryLimiter(ratelimit.Config{}), "")
	svc.sleep = func(time.Duration) {}

	_, err = svc.Register(context.Background(), testIP,
		"new@example.com", "Str0ng!Passw0rd", "Nadia Benali", "anything")
	assert.ErrorIs(t, err, ErrRegistrationClosed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegisterEmailTaken(t *testing.T) {
	svc, mock := newMockAuth(t, ratelimit.NewMemoryLimiter(ratelimit.Config{}))

	expectStudentLookup(mock, "sam@example.com", &Student{
		ID: 7, FullName: "Sam Rivera", Email: "sam@example.com",
		PasswordHash: "x", GroupName: "G1",
	})

	_, err := svc.Register(context.Background(), testIP,
		"sam@example.com", "Str0ng!Passw0rd", "Sam Rivera", testInvite)
	assert.ErrorIs(t, err, ErrEmailTaken)

	var rle *RateLimitError
	assert.False(t, errors.As(err, &rle))
}

func TestValidPasswordPolicy(t *testing.T) {
	cases := []struct {
		password string
		ok       bool
	}{
		{"Str0ng!Passw0rd", true},
		{"aA1!aA1!aA", true},
		{"short1A!", false},
		{"nouppercase1!x", false},
		{"NOLOWERCASE1!X", false},
		{"NoDigitsHere!!", false},
		{"NoSymbolsHere11", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, ValidPasswordPolicy(tc.password), "password %q", tc.password)
	}
}

func TestVerifyPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.True(t, VerifyPassword(hash, "correct horse"))
	assert.False(t, VerifyPassword(hash, "Correct horse"))
	assert.False(t, VerifyPassword("not-a-hash", "correct horse"))
}
