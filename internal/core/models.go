package core

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Preference is a user's charger preference.
type Preference string

const (
	PrefBoth        Preference = "both"
	PrefTesla       Preference = "tesla"
	PrefChargePoint Preference = "chargepoint"
)

// Valid reports whether p is a known preference value.
func (p Preference) Valid() bool {
	switch p {
	case PrefBoth, PrefTesla, PrefChargePoint:
		return true
	}
	return false
}

// SpotType is the kind of physical charger a spot provides.
type SpotType string

const (
	SpotTesla       SpotType = "tesla"
	SpotChargePoint SpotType = "chargepoint"
)

// User is a registered participant competing for charging spots.
type User struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Pref      Preference `json:"pref"`
	CreatedAt time.Time  `json:"created_at"`
}

// Spot is a physical charger. The set of spots is fixed and seeded once;
// only the assignment mutates.
type Spot struct {
	ID     string   `json:"id"`
	Type   SpotType `json:"type"`
	Label  string   `json:"label"`
	UserID *string  `json:"user_id"`
}

// QueueEntry is one slot in the waiting queue. Position is the sole
// ordering key and is unique within a snapshot.
type QueueEntry struct {
	Position int    `json:"position"`
	UserID   string `json:"user_id"`
}

// SpotAssignment is a desired spot-to-user binding submitted by a writer.
// A nil UserID leaves the spot unassigned.
type SpotAssignment struct {
	ID     string  `json:"id"`
	UserID *string `json:"user_id"`
}

// StateChange is a full desired replacement of the queue and the spot
// assignments. Rows are wholesale-replaced, never patched one by one.
type StateChange struct {
	Queue []QueueEntry     `json:"queue"`
	Spots []SpotAssignment `json:"spots"`
}

// Snapshot is a consistent view of the shared state. Version is the
// concurrency-control token: it strictly increases by one on every
// committed mutation to the queue or the spots.
type Snapshot struct {
	Queue     []QueueEntry `json:"queue"`
	Spots     []Spot       `json:"spots"`
	LastReset *time.Time   `json:"lastReset"`
	Version   int64        `json:"-"`
}

// Settings holds the daily reset configuration.
type Settings struct {
	ResetTime string `json:"resetTime"`
}

// DefaultResetTime is used when no reset time has been configured.
const DefaultResetTime = "06:00"

var (
	resetTimePattern = regexp.MustCompile(`^\d{2}:\d{2}$`)
	spacesPattern    = regexp.MustCompile(`\s+`)
)

// NormalizeName trims a user name and collapses internal whitespace runs
// to single spaces.
func NormalizeName(name string) string {
	return spacesPattern.ReplaceAllString(strings.TrimSpace(name), " ")
}

// ParseResetTime validates an HH:MM wall-clock time (UTC) and returns its
// hour and minute components.
func ParseResetTime(s string) (hour, minute int, err error) {
	if !resetTimePattern.MatchString(s) {
		return 0, 0, Validation("resetTime must be HH:MM")
	}
	if _, err := fmt.Sscanf(s, "%02d:%02d", &hour, &minute); err != nil {
		return 0, 0, Validation("resetTime must be HH:MM")
	}
	if hour > 23 || minute > 59 {
		return 0, 0, Validation("resetTime out of range")
	}
	return hour, minute, nil
}

// ResetTarget computes today's reset boundary in UTC for the given clock
// reading and configured HH:MM time-of-day.
func ResetTarget(now time.Time, resetTime string) (time.Time, error) {
	hour, minute, err := ParseResetTime(resetTime)
	if err != nil {
		return time.Time{}, err
	}
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, time.UTC), nil
}
