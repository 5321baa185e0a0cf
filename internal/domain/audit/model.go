package audit

import "time"

// Record is one terminal outcome of a join request.
type Record struct {
	ID          int64
	UserID      int64
	ChatID      int64
	Username    string
	DisplayName string
	Outcome     string // dialog terminal state
	Signal      string // roster field that decided, empty when none did
	RosterRow   int    // 0 when no record matched
	Note        string
	CreatedAt   time.Time
}
