package audit

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Repo appends verification outcomes to Postgres. *pgxpool.Pool satisfies querier.
type Repo struct {
	db querier
}

func NewRepo(db querier) *Repo { return &Repo{db: db} }

func (r *Repo) Record(ctx context.Context, rec Record) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO verification_decisions
			(user_id, chat_id, username, display_name, outcome, signal, roster_row, note)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, rec.UserID, rec.ChatID, rec.Username, rec.DisplayName, rec.Outcome, rec.Signal, rec.RosterRow, rec.Note)
	return err
}

// ListByUser returns the latest outcomes for a Telegram user, newest first.
func (r *Repo) ListByUser(ctx context.Context, userID int64, limit int) ([]Record, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, chat_id, username, display_name, outcome, signal, roster_row, note, created_at
		FROM verification_decisions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.ChatID, &rec.Username, &rec.DisplayName,
			&rec.Outcome, &rec.Signal, &rec.RosterRow, &rec.Note, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
