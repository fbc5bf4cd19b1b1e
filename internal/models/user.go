package models

import (
	"time"

	"github.com/lib/pq"
)

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleGuest        UserRole = "GUEST"
	RoleStudent      UserRole = "STUDENT"
	RoleMentor       UserRole = "MENTOR"
	RoleAdmin        UserRole = "ADMIN"
	RoleCoAdmin      UserRole = "CO_ADMIN"
	RoleOrganization UserRole = "ORGANIZATION"
	RoleParent       UserRole = "PARENT"
)

// AllRoles lists every assignable role.
var AllRoles = []UserRole{RoleGuest, RoleStudent, RoleMentor, RoleAdmin, RoleCoAdmin, RoleOrganization, RoleParent}

// ValidRole reports whether the given string names a known role.
func ValidRole(raw string) bool {
	for _, r := range AllRoles {
		if string(r) == raw {
			return true
		}
	}
	return false
}

// User represents a platform account with its role-graph links.
// MentorID/OrganizationID/LinkedStudentID form the hierarchy: students hang
// off mentors and organizations, parents link to a single student.
type User struct {
	ID               string         `db:"id" json:"id"`
	Email            string         `db:"email" json:"email"`
	PasswordHash     string         `db:"password_hash" json:"-"`
	FullName         string         `db:"full_name" json:"full_name"`
	Role             UserRole       `db:"role" json:"role"`
	AllowedRoles     pq.StringArray `db:"allowed_roles" json:"allowed_roles"`
	Verified         bool           `db:"verified" json:"verified"`
	VerifyToken      *string        `db:"verify_token" json:"-"`
	Provider         string         `db:"provider" json:"provider,omitempty"`
	MentorID         *string        `db:"mentor_id" json:"mentor_id,omitempty"`
	OrganizationID   *string        `db:"organization_id" json:"organization_id,omitempty"`
	LinkedStudentID  *string        `db:"linked_student_id" json:"linked_student_id,omitempty"`
	CreatedBy        *string        `db:"created_by" json:"created_by,omitempty"`
	OrgCode          *string        `db:"org_code" json:"org_code,omitempty"`
	ClassCode        *string        `db:"class_code" json:"class_code,omitempty"`
	CuratedLessonIDs pq.StringArray `db:"curated_lesson_ids" json:"curated_lesson_ids"`
	ModuleOrder      []byte         `db:"module_order" json:"-"`
	Active           bool           `db:"active" json:"active"`
	LastLogin        *time.Time     `db:"last_login" json:"last_login,omitempty"`
	CreatedAt        time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at" json:"updated_at"`
}

// CustomModuleOrder maps a course id to that user's preferred module sequence.
// Stored in users.module_order as JSONB.
type CustomModuleOrder map[string][]string

// AllowsRole reports whether the user may switch into the given role view.
func (u *User) AllowsRole(role UserRole) bool {
	for _, r := range u.AllowedRoles {
		if UserRole(r) == role {
			return true
		}
	}
	return false
}

// DefaultAllowedRoles returns the role views granted on registration.
func DefaultAllowedRoles(role UserRole) []string {
	if role == RoleAdmin {
		roles := make([]string, len(AllRoles))
		for i, r := range AllRoles {
			roles[i] = string(r)
		}
		return roles
	}
	return []string{string(role)}
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role           *UserRole
	OrganizationID string
	MentorID       string
	Active         *bool
	Search         string
	Page           int
	PageSize       int
	SortBy         string
	SortOrder      string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
