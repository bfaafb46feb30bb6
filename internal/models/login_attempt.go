package models

import "time"

// LoginAttempt is the per-IP counter behind temporary bans (HESK logins table).
type LoginAttempt struct {
	IP          string     `json:"ip" db:"ip"`
	Number      int        `json:"number" db:"number"`
	LastAttempt *time.Time `json:"last_attempt,omitempty" db:"last_attempt"`
}
