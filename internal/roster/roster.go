// Package roster implements the per-event attendee/waitlist state machine.
//
// A Roster is the in-memory aggregate for one event: the event header plus
// its live (non-cancelled) entries. All transitions are pure in-memory
// mutations; the repository layer is responsible for loading the aggregate
// under a per-event lock and persisting the outcome, so two concurrent joins
// can never both take the last open slot.
package roster

import (
	"errors"
	"time"

	"github.com/gatherly/rewards/internal/model"
	"github.com/google/uuid"
)

// ErrAlreadyRegistered is returned when a user with a live entry joins again.
var ErrAlreadyRegistered = errors.New("already registered for this event")

// ErrEventFull is returned when the event has no capacity and no waitlist.
var ErrEventFull = errors.New("event is full")

// ErrEventClosed is returned when the event has been cancelled.
var ErrEventClosed = errors.New("event is closed")

// ErrNotRegistered is returned when leave finds no live entry for the user.
var ErrNotRegistered = errors.New("not registered for this event")

// ErrInvalidCheckIn is returned when a check-in has no confirmed entry or
// the presented token does not match.
var ErrInvalidCheckIn = errors.New("invalid check-in")

// ErrAlreadyCheckedIn is returned on a repeated check-in attempt.
var ErrAlreadyCheckedIn = errors.New("already checked in")

// Roster is the loaded aggregate for one event. Entries holds every
// non-cancelled attendee and waitlist entry, ordered by join time.
type Roster struct {
	Event   *model.Event
	Entries []*model.Attendee
}

// JoinOutcome describes the entry created by a successful Join.
type JoinOutcome struct {
	Entry *model.Attendee
}

// LeaveOutcome describes the entry removed by Leave and the waitlist entry
// promoted in its place, if any.
type LeaveOutcome struct {
	Left     *model.Attendee
	Promoted *model.Attendee
}

// CheckInOutcome describes the entry marked present by CheckIn.
type CheckInOutcome struct {
	Entry *model.Attendee
}

// find returns the user's live entry, or nil.
func (r *Roster) find(userID string) *model.Attendee {
	for _, a := range r.Entries {
		if a.UserID == userID && a.Status != model.StatusCancelled {
			return a
		}
	}
	return nil
}

// Join registers a user: confirmed while capacity remains, waitlisted if the
// event allows it, ErrEventFull otherwise. A fresh redemption token is
// minted for every entry.
func (r *Roster) Join(userID string, now time.Time) (*JoinOutcome, error) {
	if r.Event.Status != model.EventPublished {
		return nil, ErrEventClosed
	}
	if r.find(userID) != nil {
		return nil, ErrAlreadyRegistered
	}

	entry := &model.Attendee{
		ID:       uuid.New().String(),
		EventID:  r.Event.ID,
		UserID:   userID,
		JoinedAt: now,
		Token:    uuid.New().String(),
	}
	switch {
	case !r.Event.IsFull():
		entry.Status = model.StatusConfirmed
		r.Event.AttendeeCount++
	case r.Event.WaitlistEnabled:
		entry.Status = model.StatusWaitlist
	default:
		return nil, ErrEventFull
	}

	r.Entries = append(r.Entries, entry)
	return &JoinOutcome{Entry: entry}, nil
}

// Leave cancels the user's entry. When a confirmed attendee leaves and the
// waitlist is non-empty, the earliest-joined waitlist entry is promoted to
// confirmed, so AttendeeCount is unchanged. When a waitlisted entry leaves
// no promotion occurs.
func (r *Roster) Leave(userID string) (*LeaveOutcome, error) {
	entry := r.find(userID)
	if entry == nil {
		return nil, ErrNotRegistered
	}

	wasConfirmed := entry.Status == model.StatusConfirmed
	entry.Status = model.StatusCancelled

	out := &LeaveOutcome{Left: entry}
	if !wasConfirmed {
		return out, nil
	}

	if next := r.waitlistHead(); next != nil {
		next.Status = model.StatusConfirmed
		out.Promoted = next
	} else {
		r.Event.AttendeeCount--
	}
	return out, nil
}

// CheckIn marks a confirmed attendee present. The presented token must match
// the entry's stored redemption token, and a second attempt is rejected
// rather than double-counted.
func (r *Roster) CheckIn(userID, token string, now time.Time) (*CheckInOutcome, error) {
	entry := r.find(userID)
	if entry == nil || entry.Status != model.StatusConfirmed {
		return nil, ErrInvalidCheckIn
	}
	if entry.CheckedIn {
		return nil, ErrAlreadyCheckedIn
	}
	if entry.Token != token {
		return nil, ErrInvalidCheckIn
	}

	entry.CheckedIn = true
	at := now
	entry.CheckedInAt = &at
	r.Event.CheckinCount++
	return &CheckInOutcome{Entry: entry}, nil
}

// waitlistHead returns the earliest-joined waitlist entry, or nil. Promotion
// is strictly FIFO on join time; the advisory Priority field is ignored.
func (r *Roster) waitlistHead() *model.Attendee {
	var head *model.Attendee
	for _, a := range r.Entries {
		if a.Status != model.StatusWaitlist {
			continue
		}
		if head == nil || a.JoinedAt.Before(head.JoinedAt) {
			head = a
		}
	}
	return head
}

// Confirmed counts live confirmed entries. It exists so callers and tests can
// assert the capacity invariant: Confirmed() == Event.AttendeeCount <= Capacity.
func (r *Roster) Confirmed() int {
	n := 0
	for _, a := range r.Entries {
		if a.Status == model.StatusConfirmed {
			n++
		}
	}
	return n
}
