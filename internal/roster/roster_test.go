package roster

import (
	"testing"
	"time"

	"github.com/gatherly/rewards/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRoster(capacity int, waitlist bool) *Roster {
	return &Roster{
		Event: &model.Event{
			ID:              "ev-1",
			Name:            "Go Meetup",
			Capacity:        capacity,
			WaitlistEnabled: waitlist,
			Status:          model.EventPublished,
		},
	}
}

func at(sec int) time.Time {
	return time.Date(2026, 8, 1, 18, 0, sec, 0, time.UTC)
}

func TestJoinConfirmsUntilCapacity(t *testing.T) {
	r := newRoster(2, false)

	out1, err := r.Join("user-1", at(0))
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, out1.Entry.Status)
	assert.NotEmpty(t, out1.Entry.Token)

	out2, err := r.Join("user-2", at(1))
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, out2.Entry.Status)
	assert.Equal(t, 2, r.Event.AttendeeCount)

	_, err = r.Join("user-3", at(2))
	assert.ErrorIs(t, err, ErrEventFull)

	assert.Equal(t, r.Event.AttendeeCount, r.Confirmed())
	assert.LessOrEqual(t, r.Event.AttendeeCount, r.Event.Capacity)
}

func TestJoinWaitlistsWhenFull(t *testing.T) {
	r := newRoster(2, true)

	_, err := r.Join("user-1", at(0))
	require.NoError(t, err)
	_, err = r.Join("user-2", at(1))
	require.NoError(t, err)

	out, err := r.Join("user-3", at(2))
	require.NoError(t, err)
	assert.Equal(t, model.StatusWaitlist, out.Entry.Status)
	assert.Equal(t, 2, r.Event.AttendeeCount)

	left, err := r.Leave("user-1")
	require.NoError(t, err)
	require.NotNil(t, left.Promoted)
	assert.Equal(t, "user-3", left.Promoted.UserID)
	assert.Equal(t, model.StatusConfirmed, left.Promoted.Status)
	assert.Equal(t, 2, r.Event.AttendeeCount)
	assert.Equal(t, 2, r.Confirmed())
}

func TestJoinRejectsDuplicates(t *testing.T) {
	r := newRoster(5, true)

	_, err := r.Join("user-1", at(0))
	require.NoError(t, err)

	_, err = r.Join("user-1", at(1))
	assert.ErrorIs(t, err, ErrAlreadyRegistered)

	// A cancelled entry does not block a fresh join.
	_, err = r.Leave("user-1")
	require.NoError(t, err)
	_, err = r.Join("user-1", at(2))
	assert.NoError(t, err)
}

func TestJoinRejectsClosedEvent(t *testing.T) {
	r := newRoster(5, true)
	r.Event.Status = model.EventCancelled

	_, err := r.Join("user-1", at(0))
	assert.ErrorIs(t, err, ErrEventClosed)
}

func TestLeaveRequiresLiveEntry(t *testing.T) {
	r := newRoster(5, true)

	_, err := r.Leave("ghost")
	assert.ErrorIs(t, err, ErrNotRegistered)
}

func TestLeaveByWaitlistedDoesNotPromote(t *testing.T) {
	r := newRoster(1, true)
	_, err := r.Join("user-1", at(0))
	require.NoError(t, err)
	_, err = r.Join("user-2", at(1))
	require.NoError(t, err)
	_, err = r.Join("user-3", at(2))
	require.NoError(t, err)

	out, err := r.Leave("user-2")
	require.NoError(t, err)
	assert.Nil(t, out.Promoted)
	assert.Equal(t, 1, r.Event.AttendeeCount)
	assert.Equal(t, 1, r.Confirmed())
}

func TestLeaveWithEmptyWaitlistFreesSlot(t *testing.T) {
	r := newRoster(2, true)
	_, err := r.Join("user-1", at(0))
	require.NoError(t, err)

	out, err := r.Leave("user-1")
	require.NoError(t, err)
	assert.Nil(t, out.Promoted)
	assert.Equal(t, 0, r.Event.AttendeeCount)
}

func TestWaitlistPromotionIsFIFO(t *testing.T) {
	r := newRoster(1, true)
	_, err := r.Join("confirmed", at(0))
	require.NoError(t, err)

	// Three waitlisted joiners at t1 < t2 < t3, out of priority order.
	for i, u := range []string{"w1", "w2", "w3"} {
		out, err := r.Join(u, at(i+1))
		require.NoError(t, err)
		require.Equal(t, model.StatusWaitlist, out.Entry.Status)
		// Priority is advisory data only; give the latest joiner the
		// highest priority to prove promotion ignores it.
		out.Entry.Priority = i * 10
	}

	out, err := r.Leave("confirmed")
	require.NoError(t, err)
	require.NotNil(t, out.Promoted)
	assert.Equal(t, "w1", out.Promoted.UserID)

	out, err = r.Leave("w1")
	require.NoError(t, err)
	require.NotNil(t, out.Promoted)
	assert.Equal(t, "w2", out.Promoted.UserID)
}

func TestCheckIn(t *testing.T) {
	r := newRoster(2, true)
	out, err := r.Join("user-1", at(0))
	require.NoError(t, err)
	token := out.Entry.Token

	t.Run("wrong token rejected", func(t *testing.T) {
		_, err := r.CheckIn("user-1", "not-the-token", at(10))
		assert.ErrorIs(t, err, ErrInvalidCheckIn)
	})

	t.Run("valid token accepted once", func(t *testing.T) {
		got, err := r.CheckIn("user-1", token, at(11))
		require.NoError(t, err)
		assert.True(t, got.Entry.CheckedIn)
		require.NotNil(t, got.Entry.CheckedInAt)
		assert.Equal(t, 1, r.Event.CheckinCount)
	})

	t.Run("second attempt rejected, counter unchanged", func(t *testing.T) {
		_, err := r.CheckIn("user-1", token, at(12))
		assert.ErrorIs(t, err, ErrAlreadyCheckedIn)
		assert.Equal(t, 1, r.Event.CheckinCount)
	})

	t.Run("unregistered user rejected", func(t *testing.T) {
		_, err := r.CheckIn("ghost", token, at(13))
		assert.ErrorIs(t, err, ErrInvalidCheckIn)
	})
}

func TestCheckInRequiresConfirmedStatus(t *testing.T) {
	r := newRoster(1, true)
	_, err := r.Join("user-1", at(0))
	require.NoError(t, err)
	out, err := r.Join("waitlisted", at(1))
	require.NoError(t, err)

	_, err = r.CheckIn("waitlisted", out.Entry.Token, at(2))
	assert.ErrorIs(t, err, ErrInvalidCheckIn)
}
