package models

import "time"

// PasswordResetAttempt tracks token-based password resets. Created lazily on
// the first attempt for a token; the attempt counter is hard-capped.
type PasswordResetAttempt struct {
	ID          string    `db:"id" json:"id"`
	Token       string    `db:"token" json:"token"`
	Attempts    int       `db:"attempts" json:"attempts"`
	LastAttempt time.Time `db:"last_attempt" json:"last_attempt"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}
