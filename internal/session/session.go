package session

// Role identifies which of the two login surfaces a session belongs to.
type Role string

const (
	RoleStudent Role = "student"
	RoleAdmin   Role = "admin"
)

// Session is the server-side state behind one opaque cookie identifier.
// At most one of StudentID/AdminID is ever set.
type Session struct {
	StudentID      *int64 `json:"student_id,omitempty"`
	AdminID        *int64 `json:"admin_id,omitempty"`
	DisplayName    string `json:"display_name,omitempty"`
	UAHash         string `json:"session_ua_hash,omitempty"`
	LastActivityAt int64  `json:"last_activity_at"`
	CSRFToken      string `json:"csrf_token,omitempty"`
}

// Authenticated reports whether either role identity is set.
func (s *Session) Authenticated() bool {
	return s != nil && (s.StudentID != nil || s.AdminID != nil)
}

// HasRole reports whether the session carries the given role's identity.
func (s *Session) HasRole(role Role) bool {
	if s == nil {
		return false
	}
	switch role {
	case RoleStudent:
		return s.StudentID != nil
	case RoleAdmin:
		return s.AdminID != nil
	}
	return false
}

// Identity returns the numeric identity for the role, if present.
func (s *Session) Identity(role Role) (int64, bool) {
	if s == nil {
		return 0, false
	}
	switch role {
	case RoleStudent:
		if s.StudentID != nil {
			return *s.StudentID, true
		}
	case RoleAdmin:
		if s.AdminID != nil {
			return *s.AdminID, true
		}
	}
	return 0, false
}
