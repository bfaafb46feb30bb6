package models

// Staff is a help desk user who can receive reply notifications.
type Staff struct {
	ID                    int64  `json:"id" db:"id"`
	Name                  string `json:"name" db:"name"`
	Email                 string `json:"email" db:"email"`
	Active                bool   `json:"active" db:"active"`
	NotifyReplyMy         bool   `json:"notify_reply_my" db:"notify_reply_my"`
	NotifyReplyUnassigned bool   `json:"notify_reply_unassigned" db:"notify_reply_unassigned"`
}

// NotifyPreference names a per-staff notification switch.
type NotifyPreference string

const (
	PrefReplyMy         NotifyPreference = "notify_reply_my"
	PrefReplyUnassigned NotifyPreference = "notify_reply_unassigned"
)

// Enabled reports whether the staff member has the preference switched on.
// Unknown preferences are treated as disabled.
func (s *Staff) Enabled(pref NotifyPreference) bool {
	switch pref {
	case PrefReplyMy:
		return s.NotifyReplyMy
	case PrefReplyUnassigned:
		return s.NotifyReplyUnassigned
	}
	return false
}
