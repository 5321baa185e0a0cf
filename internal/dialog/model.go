package dialog

import "time"

type State string

const (
	// StateNone means there is no verification going on for the key.
	StateNone State = ""

	StateStart       State = "start"
	StateAwaitingDNI State = "awaiting_dni"

	// Terminal states
	StateApproved      State = "approved"
	StateDenied        State = "denied"
	StateUndeliverable State = "undeliverable" // requester blocked the bot
	StateAborted       State = "aborted"       // roster or Telegram failed before a decision
	StateExpired       State = "expired"       // no DNI within the session TTL
)

func (s State) Terminal() bool {
	switch s {
	case StateApproved, StateDenied, StateUndeliverable, StateAborted, StateExpired:
		return true
	}
	return false
}

// Session is one pending join request waiting for the requester's DNI.
type Session struct {
	Key         int64 // requester's private chat id
	UserID      int64
	ChatID      int64 // group the requester wants to join
	ChatTitle   string
	State       State
	AdminMsgID  int // admin notice the outcome gets threaded under
	DisplayName string
	Username    string
	CreatedAt   time.Time
}
