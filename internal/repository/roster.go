package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gatherly/rewards/internal/model"
	"github.com/gatherly/rewards/internal/roster"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const attendeeColumns = `id, event_id, user_id, status, joined_at,
	checked_in, checked_in_at, token, priority`

// RosterRepository persists per-event attendee/waitlist state. Every
// mutation locks the event row FOR UPDATE, loads the live roster, applies
// the pure transition from the roster package, and writes back the delta —
// all in one transaction, so two joins can never both take the last slot.
type RosterRepository struct {
	db *pgxpool.Pool
}

// NewRosterRepository constructs a RosterRepository.
func NewRosterRepository(db *pgxpool.Pool) *RosterRepository {
	return &RosterRepository{db: db}
}

// Join registers a user for an event, returning the created entry and the
// updated event.
func (r *RosterRepository) Join(ctx context.Context, eventID, userID string) (*model.Attendee, *model.Event, error) {
	var (
		entry *model.Attendee
		event *model.Event
	)
	err := inTx(ctx, r.db, func(tx pgx.Tx) error {
		rs, err := lockRoster(ctx, tx, eventID)
		if err != nil {
			return err
		}
		out, err := rs.Join(userID, time.Now().UTC())
		if err != nil {
			return err
		}

		a := out.Entry
		if _, err := tx.Exec(ctx,
			`INSERT INTO attendees (id, event_id, user_id, status, joined_at,
			   checked_in, checked_in_at, token, priority)
			 VALUES ($1, $2, $3, $4, $5, false, NULL, $6, 0)`,
			a.ID, a.EventID, a.UserID, a.Status, a.JoinedAt, a.Token,
		); err != nil {
			return fmt.Errorf("insert attendee: %w", err)
		}
		if err := saveEventCounters(ctx, tx, rs.Event); err != nil {
			return err
		}
		entry, event = a, rs.Event
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return entry, event, nil
}

// Leave cancels the user's entry and promotes the waitlist head if a
// confirmed slot was freed.
func (r *RosterRepository) Leave(ctx context.Context, eventID, userID string) (*roster.LeaveOutcome, *model.Event, error) {
	var (
		outcome *roster.LeaveOutcome
		event   *model.Event
	)
	err := inTx(ctx, r.db, func(tx pgx.Tx) error {
		rs, err := lockRoster(ctx, tx, eventID)
		if err != nil {
			return err
		}
		out, err := rs.Leave(userID)
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx,
			`UPDATE attendees SET status = $1 WHERE id = $2`,
			model.StatusCancelled, out.Left.ID,
		); err != nil {
			return fmt.Errorf("cancel attendee: %w", err)
		}
		if out.Promoted != nil {
			if _, err := tx.Exec(ctx,
				`UPDATE attendees SET status = $1 WHERE id = $2`,
				model.StatusConfirmed, out.Promoted.ID,
			); err != nil {
				return fmt.Errorf("promote attendee: %w", err)
			}
		}
		if err := saveEventCounters(ctx, tx, rs.Event); err != nil {
			return err
		}
		outcome, event = out, rs.Event
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return outcome, event, nil
}

// CheckIn marks a confirmed attendee present after validating the presented
// redemption token.
func (r *RosterRepository) CheckIn(ctx context.Context, eventID, userID, token string) (*model.Attendee, *model.Event, error) {
	var (
		entry *model.Attendee
		event *model.Event
	)
	err := inTx(ctx, r.db, func(tx pgx.Tx) error {
		rs, err := lockRoster(ctx, tx, eventID)
		if err != nil {
			return err
		}
		out, err := rs.CheckIn(userID, token, time.Now().UTC())
		if err != nil {
			return err
		}

		a := out.Entry
		if _, err := tx.Exec(ctx,
			`UPDATE attendees SET checked_in = true, checked_in_at = $1 WHERE id = $2`,
			a.CheckedInAt, a.ID,
		); err != nil {
			return fmt.Errorf("check in attendee: %w", err)
		}
		if err := saveEventCounters(ctx, tx, rs.Event); err != nil {
			return err
		}
		entry, event = a, rs.Event
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return entry, event, nil
}

// ListByEvent returns every roster entry for an event, cancelled ones
// included, ordered by join time.
func (r *RosterRepository) ListByEvent(ctx context.Context, eventID string) ([]model.Attendee, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+attendeeColumns+` FROM attendees
		 WHERE event_id = $1
		 ORDER BY joined_at ASC`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("list attendees: %w", err)
	}
	defer rows.Close()

	var entries []model.Attendee
	for rows.Next() {
		var a model.Attendee
		if err := rows.Scan(&a.ID, &a.EventID, &a.UserID, &a.Status, &a.JoinedAt,
			&a.CheckedIn, &a.CheckedInAt, &a.Token, &a.Priority); err != nil {
			return nil, fmt.Errorf("scan attendee: %w", err)
		}
		entries = append(entries, a)
	}
	return entries, rows.Err()
}

// lockRoster acquires the per-event lock and loads the live roster.
//
// SELECT ... FOR UPDATE on the event row blocks every other roster
// transaction for the same event until this one commits or rolls back, so
// the capacity check and the write are a single serialised unit.
func lockRoster(ctx context.Context, tx pgx.Tx, eventID string) (*roster.Roster, error) {
	row := tx.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1 FOR UPDATE`, eventID,
	)
	event, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lock event row: %w", err)
	}

	rows, err := tx.Query(ctx,
		`SELECT `+attendeeColumns+` FROM attendees
		 WHERE event_id = $1 AND status != $2
		 ORDER BY joined_at ASC`,
		eventID, model.StatusCancelled,
	)
	if err != nil {
		return nil, fmt.Errorf("load roster: %w", err)
	}
	defer rows.Close()

	var entries []*model.Attendee
	for rows.Next() {
		var a model.Attendee
		if err := rows.Scan(&a.ID, &a.EventID, &a.UserID, &a.Status, &a.JoinedAt,
			&a.CheckedIn, &a.CheckedInAt, &a.Token, &a.Priority); err != nil {
			return nil, fmt.Errorf("scan attendee: %w", err)
		}
		entries = append(entries, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &roster.Roster{Event: event, Entries: entries}, nil
}

func saveEventCounters(ctx context.Context, tx pgx.Tx, e *model.Event) error {
	if _, err := tx.Exec(ctx,
		`UPDATE events SET attendee_count = $1, checkin_count = $2 WHERE id = $3`,
		e.AttendeeCount, e.CheckinCount, e.ID,
	); err != nil {
		return fmt.Errorf("update event counters: %w", err)
	}
	return nil
}
