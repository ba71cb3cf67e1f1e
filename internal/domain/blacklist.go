package domain

import "time"

// BlacklistEntry bars a client from requesting support until it expires.
type BlacklistEntry struct {
	UID       string    `json:"uid"`
	Expires   time.Time `json:"expires"`
	Reason    string    `json:"reason"`
	InvokedBy string    `json:"invoked_by"`
}

// Expired reports whether the entry no longer applies.
func (e BlacklistEntry) Expired(now time.Time) bool {
	return !e.Expires.IsZero() && now.After(e.Expires)
}
