package models

import "time"

// ActionLog action kinds.
const (
	ActionStatusUpdate      = "PRE_ENROLLMENT_STATUS_UPDATE"
	ActionStudentDataUpdate = "STUDENT_DATA_UPDATE"
	ActionPasswordReset     = "PASSWORD_RESET_BY_TOKEN"
	ActionLogin             = "LOGIN"
	ActionConfigUpdate      = "CONFIG_UPDATE"
	ActionAdminAccess       = "ADMIN_PANEL_ACCESS"
)

// ActionLog is an append-only audit record. Rows are never mutated or deleted.
type ActionLog struct {
	ID        string    `db:"id" json:"id"`
	Action    string    `db:"action" json:"action"`
	UserID    *string   `db:"user_id" json:"user_id,omitempty"`
	Token     *string   `db:"token" json:"token,omitempty"`
	Details   string    `db:"details" json:"details"`
	IPAddress *string   `db:"ip_address" json:"ip_address,omitempty"`
	UserAgent *string   `db:"user_agent" json:"user_agent,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ActionLogDetail joins the acting user's name and email for staff listings.
type ActionLogDetail struct {
	ActionLog
	UserName  *string `db:"user_name" json:"user_name,omitempty"`
	UserEmail *string `db:"user_email" json:"user_email,omitempty"`
}

// ActionLogFilter narrows the staff audit listing.
type ActionLogFilter struct {
	Action string
	Limit  int
}
