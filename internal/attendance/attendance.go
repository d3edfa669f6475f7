// Package attendance turns a verified identity and a calendar day into a
// durable, de-duplicated record.
package attendance

import (
	"time"
)

// Status is the recorded presence state for a day.
type Status string

const (
	StatusPresent Status = "Present"
	StatusAbsent  Status = "Absent"
	StatusLate    Status = "Late"
)

// Record is one identity's presence for one calendar day. Records are never
// mutated or deleted after creation.
type Record struct {
	ID         string    `json:"id"`
	IdentityID string    `json:"identity_id"`
	Day        string    `json:"day"`
	Status     Status    `json:"status"`
	MarkedAt   time.Time `json:"marked_at"`
}

// DayOf formats t as the calendar day key, YYYY-MM-DD in UTC.
func DayOf(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
