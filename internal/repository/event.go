package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gatherly/rewards/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const eventColumns = `id, organizer_id, name, description, capacity, waitlist_enabled,
	join_reward, checkin_reward, status, attendee_count, checkin_count, created_at`

// EventRepository handles persistence for events.
type EventRepository struct {
	db *pgxpool.Pool
}

// NewEventRepository constructs an EventRepository.
func NewEventRepository(db *pgxpool.Pool) *EventRepository {
	return &EventRepository{db: db}
}

// Create inserts a newly published event and returns it with a generated UUID.
func (r *EventRepository) Create(ctx context.Context, req model.CreateEventRequest) (*model.Event, error) {
	event := &model.Event{
		ID:              uuid.New().String(),
		OrganizerID:     req.OrganizerID,
		Name:            req.Name,
		Description:     req.Description,
		Capacity:        req.Capacity,
		WaitlistEnabled: req.WaitlistEnabled,
		JoinReward:      req.JoinReward,
		CheckinReward:   req.CheckinReward,
		Status:          model.EventPublished,
		CreatedAt:       time.Now().UTC(),
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO events (id, organizer_id, name, description, capacity, waitlist_enabled,
		   join_reward, checkin_reward, status, attendee_count, checkin_count, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0, 0, $10)`,
		event.ID, event.OrganizerID, event.Name, event.Description, event.Capacity, event.WaitlistEnabled,
		event.JoinReward, event.CheckinReward, event.Status, event.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}
	return event, nil
}

// List returns all events ordered by creation time descending.
func (r *EventRepository) List(ctx context.Context) ([]model.Event, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+eventColumns+` FROM events ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

// GetByID returns a single event or ErrNotFound.
func (r *EventRepository) GetByID(ctx context.Context, id string) (*model.Event, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1`, id,
	)
	e, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return e, nil
}

// Cancel soft-cancels an event: the status flips and the roster is left
// intact for audit. Capacity and counters are untouched.
func (r *EventRepository) Cancel(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE events SET status = $1 WHERE id = $2 AND status = $3`,
		model.EventCancelled, id, model.EventPublished,
	)
	if err != nil {
		return fmt.Errorf("cancel event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*model.Event, error) {
	var e model.Event
	err := row.Scan(&e.ID, &e.OrganizerID, &e.Name, &e.Description, &e.Capacity, &e.WaitlistEnabled,
		&e.JoinReward, &e.CheckinReward, &e.Status, &e.AttendeeCount, &e.CheckinCount, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan event: %w", err)
	}
	return &e, nil
}
