package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/gatherly/rewards/internal/catalog"
	"github.com/gatherly/rewards/internal/ledger"
	"github.com/gatherly/rewards/internal/model"
	"github.com/gatherly/rewards/internal/notify"
	"github.com/gatherly/rewards/internal/roster"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testEvent(joinReward, checkinReward int) *model.Event {
	return &model.Event{
		ID:            "ev-1",
		Name:          "Go Meetup",
		Capacity:      10,
		AttendeeCount: 3,
		CheckinCount:  1,
		JoinReward:    joinReward,
		CheckinReward: checkinReward,
		Status:        model.EventPublished,
	}
}

func testStats(attended int) *model.Stats {
	return &model.Stats{
		UserID:         "u-1",
		Level:          1,
		EventsAttended: attended,
		MemberSince:    time.Now().UTC().AddDate(0, -3, 0),
	}
}

func newService(r RosterStore, l LedgerStore, s StatsStore, defs []model.Definition, sink NotificationSink) *RewardService {
	return NewRewardService(r, l, s, catalog.New(defs), sink, testLogger())
}

func TestJoinEventAbortsWhollyOnRosterFailure(t *testing.T) {
	fl := newFakeLedger()
	fs := newFakeStats(testStats(0))
	sink := &fakeSink{}
	svc := newService(&fakeRoster{joinErr: roster.ErrEventFull}, fl, fs, nil, sink)

	_, err := svc.JoinEvent(context.Background(), "ev-1", "u-1")
	assert.ErrorIs(t, err, roster.ErrEventFull)

	// No ledger, unlock, or notification side effects.
	assert.Zero(t, fl.creditCalls)
	assert.Empty(t, fs.unlocks)
	assert.Empty(t, sink.payloads)
}

func TestJoinEventCreditsConfirmedJoin(t *testing.T) {
	event := testEvent(50, 0)
	fr := &fakeRoster{
		joinEntry: &model.Attendee{UserID: "u-1", Status: model.StatusConfirmed, Token: "tok-1"},
		joinEvent: event,
	}
	fl := newFakeLedger()
	svc := newService(fr, fl, newFakeStats(testStats(0)), nil, &fakeSink{})

	result, err := svc.JoinEvent(context.Background(), "ev-1", "u-1")
	require.NoError(t, err)

	assert.Equal(t, model.StatusConfirmed, result.Status)
	assert.Equal(t, event.Remaining(), result.CapacityRemaining)
	assert.Equal(t, "tok-1", result.Token)
	assert.Equal(t, 50, result.PointsCredited)
	assert.Equal(t, 50, fl.accounts["u-1"].Balance)
	require.Len(t, fl.txns, 1)
	assert.Equal(t, model.TxEarned, fl.txns[0].Type)
	assert.Equal(t, "event_join", fl.txns[0].Source)
}

func TestJoinEventWaitlistedEarnsNothing(t *testing.T) {
	fr := &fakeRoster{
		joinEntry: &model.Attendee{UserID: "u-1", Status: model.StatusWaitlist, Token: "tok-1"},
		joinEvent: testEvent(50, 0),
	}
	fl := newFakeLedger()
	svc := newService(fr, fl, newFakeStats(testStats(0)), nil, &fakeSink{})

	result, err := svc.JoinEvent(context.Background(), "ev-1", "u-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusWaitlist, result.Status)
	assert.Zero(t, result.PointsCredited)
	assert.Zero(t, fl.creditCalls)
}

func TestCheckInCreditsCountsAndUnlocks(t *testing.T) {
	event := testEvent(0, 20)
	fr := &fakeRoster{
		checkInEntry: &model.Attendee{UserID: "u-1", Status: model.StatusConfirmed, CheckedIn: true},
		checkInEvent: event,
	}
	fl := newFakeLedger()
	fs := newFakeStats(testStats(4))
	sink := &fakeSink{}
	defs := []model.Definition{{
		ID: "regular", Kind: model.KindBadge, Name: "Regular",
		RequirementType: model.ReqEventsAttended, RequirementValue: 5,
		Active: true, BonusPoints: 25, Position: 1,
	}}
	svc := newService(fr, fl, fs, defs, sink)

	// The 5th check-in crosses the threshold.
	result, err := svc.CheckIn(context.Background(), "ev-1", "u-1", "tok-1")
	require.NoError(t, err)

	assert.Equal(t, event.CheckinCount, result.CheckinCount)
	assert.Equal(t, 20, result.PointsCredited)
	require.Len(t, result.Unlocked, 1)
	assert.Equal(t, "regular", result.Unlocked[0].ID)

	// Check-in reward plus unlock bonus landed on the account.
	assert.Equal(t, 45, fl.accounts["u-1"].Balance)

	require.Len(t, sink.payloads, 1)
	assert.Equal(t, notify.KindUnlock, sink.payloads[0].Kind)
	assert.Equal(t, "u-1", sink.payloads[0].UserID)

	// A 6th check-in does not re-award the badge.
	result, err = svc.CheckIn(context.Background(), "ev-1", "u-1", "tok-1")
	require.NoError(t, err)
	assert.Empty(t, result.Unlocked)
	assert.Len(t, sink.payloads, 1)
}

func TestCheckInSurvivesUnlockFailure(t *testing.T) {
	fr := &fakeRoster{
		checkInEntry: &model.Attendee{UserID: "u-1", Status: model.StatusConfirmed},
		checkInEvent: testEvent(0, 20),
	}
	fs := newFakeStats(testStats(10))
	fs.recordErr = context.DeadlineExceeded
	defs := []model.Definition{{
		ID: "regular", RequirementType: model.ReqEventsAttended,
		RequirementValue: 5, Active: true, Position: 1,
	}}
	svc := newService(fr, newFakeLedger(), fs, defs, &fakeSink{})

	// The unlock write failing must not fail the check-in.
	result, err := svc.CheckIn(context.Background(), "ev-1", "u-1", "tok-1")
	require.NoError(t, err)
	assert.Equal(t, 20, result.PointsCredited)
	assert.Empty(t, result.Unlocked)
}

func TestLeaveEventNotifiesPromotedUser(t *testing.T) {
	fr := &fakeRoster{
		leaveOutcome: &roster.LeaveOutcome{
			Left:     &model.Attendee{UserID: "u-1", Status: model.StatusCancelled},
			Promoted: &model.Attendee{UserID: "w-1", Status: model.StatusConfirmed},
		},
		leaveEvent: testEvent(0, 0),
	}
	sink := &fakeSink{}
	svc := newService(fr, newFakeLedger(), newFakeStats(testStats(0)), nil, sink)

	result, err := svc.LeaveEvent(context.Background(), "ev-1", "u-1")
	require.NoError(t, err)
	require.NotNil(t, result.Promoted)
	assert.Equal(t, "w-1", *result.Promoted)

	require.Len(t, sink.payloads, 1)
	assert.Equal(t, notify.KindPromoted, sink.payloads[0].Kind)
	assert.Equal(t, "w-1", sink.payloads[0].UserID)
}

func TestSpendPropagatesInsufficientBalance(t *testing.T) {
	fl := newFakeLedger()
	fl.account("u-1").Balance = 10
	fl.account("u-1").TotalEarned = 10
	svc := newService(&fakeRoster{}, fl, newFakeStats(testStats(0)), nil, &fakeSink{})

	_, err := svc.Spend(context.Background(), "u-1", model.SpendRequest{
		Amount: 11, Description: "sticker pack", Source: "shop",
	})
	assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)

	result, err := svc.Spend(context.Background(), "u-1", model.SpendRequest{
		Amount: 10, Description: "sticker pack", Source: "shop",
	})
	require.NoError(t, err)
	assert.Zero(t, result.NewBalance)
}

func TestEarnTriggersEvaluation(t *testing.T) {
	fl := newFakeLedger()
	fs := newFakeStats(testStats(0))
	defs := []model.Definition{{
		ID: "collector", RequirementType: model.ReqPointsEarned,
		RequirementValue: 100, Active: true, Position: 1,
	}}
	svc := newService(&fakeRoster{}, fl, fs, defs, &fakeSink{})

	// Stats snapshot reflects the ledger total in production; mirror that.
	fs.stats.PointsEarned = 100
	_, err := svc.Earn(context.Background(), "u-1", model.SpendRequest{
		Amount: 100, Description: "imported points", Source: "migration",
	})
	require.NoError(t, err)
	assert.Contains(t, fs.unlocks, "collector")
}

func TestEvaluateUnlocksIsIdempotent(t *testing.T) {
	fs := newFakeStats(testStats(5))
	defs := []model.Definition{{
		ID: "regular", RequirementType: model.ReqEventsAttended,
		RequirementValue: 5, Active: true, Position: 1,
	}}
	svc := newService(&fakeRoster{}, newFakeLedger(), fs, defs, &fakeSink{})

	newly, err := svc.EvaluateUnlocks(context.Background(), "u-1")
	require.NoError(t, err)
	require.Len(t, newly, 1)

	// Unchanged stats: the second evaluation returns nothing new.
	newly, err = svc.EvaluateUnlocks(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Empty(t, newly)
}

func TestValidation(t *testing.T) {
	svc := newService(&fakeRoster{}, newFakeLedger(), newFakeStats(testStats(0)), nil, &fakeSink{})
	ctx := context.Background()

	_, err := svc.JoinEvent(ctx, "", "u-1")
	assert.Error(t, err)
	_, err = svc.JoinEvent(ctx, "ev-1", "")
	assert.Error(t, err)
	_, err = svc.CheckIn(ctx, "ev-1", "u-1", "")
	assert.Error(t, err)
	_, err = svc.Spend(ctx, "u-1", model.SpendRequest{Amount: 0, Description: "x"})
	assert.Error(t, err)
	_, err = svc.Spend(ctx, "u-1", model.SpendRequest{Amount: 5, Description: "  "})
	assert.Error(t, err)
	_, err = svc.Transfer(ctx, "u-1", "u-1", 0, "nothing")
	assert.Error(t, err)
}

func TestListUnlockedFollowsCatalogOrder(t *testing.T) {
	fs := newFakeStats(testStats(50))
	defs := []model.Definition{
		{ID: "b", RequirementType: model.ReqEventsAttended, RequirementValue: 10, Active: true, Position: 2},
		{ID: "a", RequirementType: model.ReqEventsAttended, RequirementValue: 5, Active: true, Position: 1},
	}
	svc := newService(&fakeRoster{}, newFakeLedger(), fs, defs, &fakeSink{})

	_, err := svc.EvaluateUnlocks(context.Background(), "u-1")
	require.NoError(t, err)

	items, err := svc.ListUnlocked(context.Background(), "u-1")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "a", items[0].Definition.ID)
	assert.Equal(t, "b", items[1].Definition.ID)
}
