package service

import (
	"context"
	"time"

	"github.com/gatherly/rewards/internal/ledger"
	"github.com/gatherly/rewards/internal/model"
	"github.com/gatherly/rewards/internal/notify"
	"github.com/gatherly/rewards/internal/roster"
)

// fakeRoster returns canned transition outcomes.
type fakeRoster struct {
	joinEntry *model.Attendee
	joinEvent *model.Event
	joinErr   error

	leaveOutcome *roster.LeaveOutcome
	leaveEvent   *model.Event
	leaveErr     error

	checkInEntry *model.Attendee
	checkInEvent *model.Event
	checkInErr   error
}

func (f *fakeRoster) Join(ctx context.Context, eventID, userID string) (*model.Attendee, *model.Event, error) {
	if f.joinErr != nil {
		return nil, nil, f.joinErr
	}
	return f.joinEntry, f.joinEvent, nil
}

func (f *fakeRoster) Leave(ctx context.Context, eventID, userID string) (*roster.LeaveOutcome, *model.Event, error) {
	if f.leaveErr != nil {
		return nil, nil, f.leaveErr
	}
	return f.leaveOutcome, f.leaveEvent, nil
}

func (f *fakeRoster) CheckIn(ctx context.Context, eventID, userID, token string) (*model.Attendee, *model.Event, error) {
	if f.checkInErr != nil {
		return nil, nil, f.checkInErr
	}
	return f.checkInEntry, f.checkInEvent, nil
}

// fakeLedger keeps real accounts in memory and applies writes through the
// ledger package, so balances behave exactly as in production.
type fakeLedger struct {
	accounts    map[string]*model.Account
	txns        []*model.Transaction
	creditCalls int
	debitCalls  int
	creditErr   error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{accounts: make(map[string]*model.Account)}
}

func (f *fakeLedger) account(userID string) *model.Account {
	acc, ok := f.accounts[userID]
	if !ok {
		acc = &model.Account{UserID: userID}
		f.accounts[userID] = acc
	}
	return acc
}

func (f *fakeLedger) Credit(ctx context.Context, userID, typ string, amount int, description, source, refType, refID string) (*model.Account, *model.Transaction, error) {
	f.creditCalls++
	if f.creditErr != nil {
		return nil, nil, f.creditErr
	}
	acc := f.account(userID)
	tx, err := ledger.Credit(acc, typ, amount, description, source, refType, refID, time.Now().UTC())
	if err != nil {
		return nil, nil, err
	}
	f.txns = append(f.txns, tx)
	return acc, tx, nil
}

func (f *fakeLedger) Debit(ctx context.Context, userID, typ string, amount int, description, source, refType, refID string) (*model.Account, *model.Transaction, error) {
	f.debitCalls++
	acc := f.account(userID)
	tx, err := ledger.Debit(acc, typ, amount, description, source, refType, refID, time.Now().UTC())
	if err != nil {
		return nil, nil, err
	}
	f.txns = append(f.txns, tx)
	return acc, tx, nil
}

func (f *fakeLedger) Transfer(ctx context.Context, fromUserID, toUserID string, amount int, description string) (*model.Account, error) {
	now := time.Now().UTC()
	from, to := f.account(fromUserID), f.account(toUserID)
	if _, err := ledger.Debit(from, model.TxTransfer, amount, description, "transfer", "user", toUserID, now); err != nil {
		return nil, err
	}
	if _, err := ledger.Credit(to, model.TxTransfer, amount, description, "transfer", "user", fromUserID, now); err != nil {
		return nil, err
	}
	return from, nil
}

func (f *fakeLedger) GetAccount(ctx context.Context, userID string) (*model.Account, error) {
	return f.account(userID), nil
}

func (f *fakeLedger) History(ctx context.Context, userID string, _ model.HistoryFilter) ([]model.Transaction, error) {
	var out []model.Transaction
	for i := len(f.txns) - 1; i >= 0; i-- {
		if f.txns[i].AccountID == userID {
			out = append(out, *f.txns[i])
		}
	}
	return out, nil
}

func (f *fakeLedger) MonthlyTotals(ctx context.Context, userID string) ([]model.MonthlyTotal, error) {
	return nil, nil
}

// fakeStats mirrors the stats repository's unlock semantics in memory.
type fakeStats struct {
	stats     *model.Stats
	unlocks   map[string]*model.Unlock
	recordErr error
}

func newFakeStats(stats *model.Stats) *fakeStats {
	return &fakeStats{stats: stats, unlocks: make(map[string]*model.Unlock)}
}

func (f *fakeStats) Snapshot(ctx context.Context, userID string) (*model.Stats, error) {
	s := *f.stats
	return &s, nil
}

func (f *fakeStats) Increment(ctx context.Context, userID, requirementType string, delta int) error {
	switch requirementType {
	case model.ReqEventsAttended:
		f.stats.EventsAttended += delta
	case model.ReqEventsCreated:
		f.stats.EventsCreated += delta
	}
	return nil
}

func (f *fakeStats) Unlocks(ctx context.Context, userID string) (map[string]*model.Unlock, error) {
	out := make(map[string]*model.Unlock, len(f.unlocks))
	for k, v := range f.unlocks {
		u := *v
		out[k] = &u
	}
	return out, nil
}

func (f *fakeStats) RecordUnlock(ctx context.Context, userID string, def model.Definition, statValue int, now time.Time) (bool, error) {
	if f.recordErr != nil {
		return false, f.recordErr
	}
	prior := f.unlocks[def.ID]
	if !def.Repeatable {
		if prior != nil {
			return false, nil
		}
		f.unlocks[def.ID] = &model.Unlock{
			UserID: userID, DefinitionID: def.ID, Count: 1,
			LastFiredValue: statValue, UnlockedAt: now,
		}
		return true, nil
	}
	count := 0
	if prior != nil {
		count = prior.Count
	}
	if statValue < def.RequirementValue*(count+1) {
		return false, nil
	}
	f.unlocks[def.ID] = &model.Unlock{
		UserID: userID, DefinitionID: def.ID, Count: count + 1,
		LastFiredValue: statValue, UnlockedAt: now,
	}
	return true, nil
}

// fakeSink records enqueued notification payloads.
type fakeSink struct {
	payloads []notify.Payload
}

func (f *fakeSink) Enqueue(p notify.Payload) {
	f.payloads = append(f.payloads, p)
}
