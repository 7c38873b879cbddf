// Package history persists the attempt log to Postgres. Optional: the bot
// runs without it when no DATABASE_URL is configured.
package history

import (
	"context"
	"time"

	"github.com/example/visawatch/internal/appointment"
	"github.com/example/visawatch/internal/db"
)

type Attempt struct {
	ID       int64
	Seq      int
	Location string
	Outcome  string
	Detail   string
	SlotDate *time.Time
	SlotTime string

	CreatedAt time.Time
}

// FromOutcome maps a classified attempt outcome onto its persisted form.
func FromOutcome(out appointment.Outcome) Attempt {
	a := Attempt{
		Location: out.Location.String(),
		Outcome:  string(out.Kind),
		Detail:   out.Reason,
		SlotTime: out.Slot,
	}
	if !out.Date.IsZero() {
		d := out.Date
		a.SlotDate = &d
	}
	return a
}

type Repo struct{ db *db.DB }

func NewRepo(d *db.DB) *Repo { return &Repo{db: d} }

func (r *Repo) Record(ctx context.Context, a Attempt) error {
	return r.db.Exec(ctx, `
INSERT INTO attempts(location, outcome, detail, slot_date, slot_time)
VALUES ($1,$2,$3,$4,$5)`,
		a.Location, a.Outcome, a.Detail, a.SlotDate, a.SlotTime)
}

func (r *Repo) Recent(ctx context.Context, limit int) ([]Attempt, error) {
	rows, err := r.db.Query(ctx, `
SELECT id, location, outcome, detail, slot_date, slot_time, created_at
FROM attempts
ORDER BY created_at DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		var a Attempt
		if err := rows.Scan(&a.ID, &a.Location, &a.Outcome, &a.Detail, &a.SlotDate, &a.SlotTime, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
