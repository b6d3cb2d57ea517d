// Package service implements business validation and the reward
// orchestration flow between HTTP handlers and the repository layer.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gatherly/rewards/internal/model"
	"github.com/gatherly/rewards/internal/repository"
)

// EventStore is the persistence surface EventService needs.
type EventStore interface {
	Create(ctx context.Context, req model.CreateEventRequest) (*model.Event, error)
	List(ctx context.Context) ([]model.Event, error)
	GetByID(ctx context.Context, id string) (*model.Event, error)
	Cancel(ctx context.Context, id string) error
}

// RosterReader lists roster entries for an event.
type RosterReader interface {
	ListByEvent(ctx context.Context, eventID string) ([]model.Attendee, error)
}

// StatsWriter bumps gamification counters.
type StatsWriter interface {
	Increment(ctx context.Context, userID, requirementType string, delta int) error
}

// EventService handles event authoring: publish, list, get, cancel.
type EventService struct {
	events EventStore
	roster RosterReader
	stats  StatsWriter
	log    *slog.Logger
}

// NewEventService constructs an EventService.
func NewEventService(events EventStore, roster RosterReader, stats StatsWriter, log *slog.Logger) *EventService {
	return &EventService{events: events, roster: roster, stats: stats, log: log}
}

// CreateEvent validates the request and publishes the event. Capacity is
// fixed at publish time. Publishing counts toward the organizer's
// events-created stat; that bump is best-effort, the published event stands
// either way.
func (s *EventService) CreateEvent(ctx context.Context, req model.CreateEventRequest) (*model.Event, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return nil, fmt.Errorf("event name is required")
	}
	if req.Capacity <= 0 {
		return nil, fmt.Errorf("capacity must be a positive integer")
	}
	if req.Capacity > 100_000 {
		return nil, fmt.Errorf("capacity cannot exceed 100,000")
	}
	if req.JoinReward < 0 || req.CheckinReward < 0 {
		return nil, fmt.Errorf("reward amounts cannot be negative")
	}

	event, err := s.events.Create(ctx, req)
	if err != nil {
		return nil, err
	}
	if event.OrganizerID != "" {
		if err := s.stats.Increment(ctx, event.OrganizerID, model.ReqEventsCreated, 1); err != nil {
			s.log.Error("count created event",
				slog.String("organizer_id", event.OrganizerID),
				slog.Any("error", err))
		}
	}
	return event, nil
}

// ListEvents returns all events.
func (s *EventService) ListEvents(ctx context.Context) ([]model.Event, error) {
	return s.events.List(ctx)
}

// GetEvent returns a single event by ID.
func (s *EventService) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	if id == "" {
		return nil, fmt.Errorf("event id is required")
	}
	event, err := s.events.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return event, nil
}

// CancelEvent soft-cancels an event, leaving its roster intact for audit.
func (s *EventService) CancelEvent(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("event id is required")
	}
	return s.events.Cancel(ctx, id)
}

// ListRoster returns every roster entry for an event, cancelled included.
func (s *EventService) ListRoster(ctx context.Context, eventID string) ([]model.Attendee, error) {
	if _, err := s.events.GetByID(ctx, eventID); err != nil {
		return nil, repository.ErrNotFound
	}
	return s.roster.ListByEvent(ctx, eventID)
}
