package models

import "time"

// AuditAction constants represent actions to be logged.
const (
	AuditActionRegister       = "REGISTER"
	AuditActionVerifyEmail    = "VERIFY_EMAIL"
	AuditActionLogin          = "LOGIN"
	AuditActionSocialLogin    = "SOCIAL_LOGIN"
	AuditActionLogout         = "LOGOUT"
	AuditActionPasswordChange = "PASSWORD_CHANGE"
	AuditActionRoleSwitch     = "ROLE_SWITCH"
	AuditActionUserCreate     = "USER_CREATE"
	AuditActionUserUpdate     = "USER_UPDATE"
	AuditActionUserDelete     = "USER_DELETE"
	AuditActionRoleUpdate     = "ROLE_UPDATE"
	AuditActionGroupCreate    = "GROUP_CREATE"
	AuditActionParentLink     = "PARENT_LINK"
	AuditActionInviteCreate   = "INVITE_CREATE"
	AuditActionInviteAccept   = "INVITE_ACCEPT"
	AuditActionLessonPublish  = "LESSON_PUBLISH"
	AuditActionLessonDelete   = "LESSON_DELETE"
	AuditActionProgressReset  = "PROGRESS_RESET"
	AuditActionCertIssue      = "CERTIFICATE_ISSUE"
	AuditActionDraftCommit    = "DRAFT_COMMIT"
)

// AuditLog represents an audit trail record. Growth is bounded by the
// retention pruning job, not by the table itself.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	OldValues  []byte    `db:"old_values" json:"old_values,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
