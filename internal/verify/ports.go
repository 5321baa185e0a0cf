package verify

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"errors"

	"github.com/fpuinvestiga/gatekeeper-bot/internal/domain/audit"
	"github.com/fpuinvestiga/gatekeeper-bot/internal/domain/roster"
)

var (
	// ErrRecipientUnreachable means the requester cannot be messaged
	// privately, usually because they blocked the bot.
	ErrRecipientUnreachable = errors.New("recipient unreachable")

	// ErrMalformedReply is returned by ParseDNI for replies that cannot be a DNI.
	ErrMalformedReply = errors.New("malformed DNI reply")
)

// Matcher resolves one identity signal against a roster snapshot.
type Matcher interface {
	MatchColumn(ctx context.Context, snapshot roster.Snapshot, sig roster.Signal) (roster.Outcome, error)
}

// Messenger talks to a requester in their private chat.
type Messenger interface {
	SendPrivate(ctx context.Context, userID int64, text string) error
}

// Decider carries out the irreversible side of a verification.
type Decider interface {
	Admit(ctx context.Context, chatID, userID int64) error
	Deny(ctx context.Context, chatID, userID int64) error
	// NotifyAdmins posts to the admin chat, threaded under replyTo when it is
	// non-zero, and returns the id of the posted message.
	NotifyAdmins(ctx context.Context, text string, replyTo int) (int, error)
}

// AuditLog keeps a trail of terminal outcomes.
type AuditLog interface {
	Record(ctx context.Context, rec audit.Record) error
}
