package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gatherly/rewards/internal/catalog"
	"github.com/gatherly/rewards/internal/model"
	"github.com/gatherly/rewards/internal/notify"
	"github.com/gatherly/rewards/internal/roster"
)

// RosterStore is the persistence surface for roster transitions.
type RosterStore interface {
	Join(ctx context.Context, eventID, userID string) (*model.Attendee, *model.Event, error)
	Leave(ctx context.Context, eventID, userID string) (*roster.LeaveOutcome, *model.Event, error)
	CheckIn(ctx context.Context, eventID, userID, token string) (*model.Attendee, *model.Event, error)
}

// LedgerStore is the persistence surface for point accounts.
type LedgerStore interface {
	Credit(ctx context.Context, userID, typ string, amount int, description, source, refType, refID string) (*model.Account, *model.Transaction, error)
	Debit(ctx context.Context, userID, typ string, amount int, description, source, refType, refID string) (*model.Account, *model.Transaction, error)
	Transfer(ctx context.Context, fromUserID, toUserID string, amount int, description string) (*model.Account, error)
	GetAccount(ctx context.Context, userID string) (*model.Account, error)
	History(ctx context.Context, userID string, f model.HistoryFilter) ([]model.Transaction, error)
	MonthlyTotals(ctx context.Context, userID string) ([]model.MonthlyTotal, error)
}

// StatsStore is the persistence surface for gamification profiles and
// unlock records.
type StatsStore interface {
	Snapshot(ctx context.Context, userID string) (*model.Stats, error)
	Increment(ctx context.Context, userID, requirementType string, delta int) error
	Unlocks(ctx context.Context, userID string) (map[string]*model.Unlock, error)
	RecordUnlock(ctx context.Context, userID string, def model.Definition, statValue int, now time.Time) (bool, error)
}

// NotificationSink accepts fire-and-forget notification payloads.
type NotificationSink interface {
	Enqueue(p notify.Payload)
}

// RewardService coordinates the cross-component flow: roster transition,
// point credit, eligibility re-evaluation, unlock persistence, notification.
//
// Only the roster transition can fail the operation as a whole. Everything
// after it is best-effort in sequence: a downstream failure is logged, the
// already-committed roster effect stands.
type RewardService struct {
	roster   RosterStore
	ledger   LedgerStore
	stats    StatsStore
	catalog  *catalog.Catalog
	notifier NotificationSink
	log      *slog.Logger
}

// NewRewardService constructs a RewardService.
func NewRewardService(rosterStore RosterStore, ledgerStore LedgerStore, statsStore StatsStore, cat *catalog.Catalog, notifier NotificationSink, log *slog.Logger) *RewardService {
	return &RewardService{
		roster:   rosterStore,
		ledger:   ledgerStore,
		stats:    statsStore,
		catalog:  cat,
		notifier: notifier,
		log:      log,
	}
}

// JoinEvent registers the user and, for a confirmed join, credits the
// event's join reward and re-evaluates eligibility. Waitlisted joins earn
// nothing until promotion into a confirmed slot becomes participation.
func (s *RewardService) JoinEvent(ctx context.Context, eventID, userID string) (*model.JoinResult, error) {
	if err := requireIDs(eventID, userID); err != nil {
		return nil, err
	}

	entry, event, err := s.roster.Join(ctx, eventID, userID)
	if err != nil {
		return nil, err
	}

	result := &model.JoinResult{
		Status:            entry.Status,
		CapacityRemaining: event.Remaining(),
		Token:             entry.Token,
		Unlocked:          []model.Definition{},
	}
	if entry.Status != model.StatusConfirmed {
		return result, nil
	}

	result.PointsCredited = s.credit(ctx, userID, model.TxEarned, event.JoinReward,
		"Joined "+event.Name, "event_join", eventID)
	result.Unlocked = s.evaluateAndUnlock(ctx, userID)
	return result, nil
}

// LeaveEvent cancels the user's entry. A freed confirmed slot promotes the
// waitlist head, who is notified of the promotion.
func (s *RewardService) LeaveEvent(ctx context.Context, eventID, userID string) (*model.LeaveResult, error) {
	if err := requireIDs(eventID, userID); err != nil {
		return nil, err
	}

	out, event, err := s.roster.Leave(ctx, eventID, userID)
	if err != nil {
		return nil, err
	}

	result := &model.LeaveResult{}
	if out.Promoted != nil {
		promoted := out.Promoted.UserID
		result.Promoted = &promoted
		s.notifier.Enqueue(notify.Payload{
			UserID:  promoted,
			Kind:    notify.KindPromoted,
			Title:   "You're in!",
			Message: fmt.Sprintf("A spot opened up in %s and you've been moved off the waitlist.", event.Name),
			Data:    map[string]any{"event_id": event.ID},
		})
	}
	return result, nil
}

// CheckIn validates the redemption token, marks the attendee present,
// credits the check-in bonus, counts the attendance, and re-evaluates
// eligibility.
func (s *RewardService) CheckIn(ctx context.Context, eventID, userID, token string) (*model.CheckInResult, error) {
	if err := requireIDs(eventID, userID); err != nil {
		return nil, err
	}
	if token == "" {
		return nil, fmt.Errorf("check-in token is required")
	}

	_, event, err := s.roster.CheckIn(ctx, eventID, userID, token)
	if err != nil {
		return nil, err
	}

	result := &model.CheckInResult{
		CheckinCount: event.CheckinCount,
		Unlocked:     []model.Definition{},
	}
	result.PointsCredited = s.credit(ctx, userID, model.TxEarned, event.CheckinReward,
		"Checked in to "+event.Name, "event_checkin", eventID)
	if err := s.stats.Increment(ctx, userID, model.ReqEventsAttended, 1); err != nil {
		s.log.Error("count attendance", slog.String("user_id", userID), slog.Any("error", err))
	}
	result.Unlocked = s.evaluateAndUnlock(ctx, userID)
	return result, nil
}

// Earn credits points to the user and re-evaluates eligibility, since
// earned-points thresholds may have just been crossed.
func (s *RewardService) Earn(ctx context.Context, userID string, req model.SpendRequest) (*model.BalanceResult, error) {
	if err := validateLedgerRequest(userID, &req); err != nil {
		return nil, err
	}
	acc, _, err := s.ledger.Credit(ctx, userID, model.TxEarned, req.Amount,
		req.Description, req.Source, req.RefType, req.RefID)
	if err != nil {
		return nil, err
	}
	s.evaluateAndUnlock(ctx, userID)
	return &model.BalanceResult{NewBalance: acc.Balance}, nil
}

// Spend debits points from the user, failing with
// ledger.ErrInsufficientBalance when the balance does not cover the amount.
func (s *RewardService) Spend(ctx context.Context, userID string, req model.SpendRequest) (*model.BalanceResult, error) {
	if err := validateLedgerRequest(userID, &req); err != nil {
		return nil, err
	}
	acc, _, err := s.ledger.Debit(ctx, userID, model.TxSpent, req.Amount,
		req.Description, req.Source, req.RefType, req.RefID)
	if err != nil {
		return nil, err
	}
	return &model.BalanceResult{NewBalance: acc.Balance}, nil
}

// Bonus credits points with the bonus tag, for aggregate reporting distinct
// from ordinary earning.
func (s *RewardService) Bonus(ctx context.Context, userID string, req model.SpendRequest) (*model.BalanceResult, error) {
	if err := validateLedgerRequest(userID, &req); err != nil {
		return nil, err
	}
	acc, _, err := s.ledger.Credit(ctx, userID, model.TxBonus, req.Amount,
		req.Description, req.Source, req.RefType, req.RefID)
	if err != nil {
		return nil, err
	}
	s.evaluateAndUnlock(ctx, userID)
	return &model.BalanceResult{NewBalance: acc.Balance}, nil
}

// Penalty debits points with the penalty tag, subject to the same
// non-negative balance rule as spending.
func (s *RewardService) Penalty(ctx context.Context, userID string, req model.SpendRequest) (*model.BalanceResult, error) {
	if err := validateLedgerRequest(userID, &req); err != nil {
		return nil, err
	}
	acc, _, err := s.ledger.Debit(ctx, userID, model.TxPenalty, req.Amount,
		req.Description, req.Source, req.RefType, req.RefID)
	if err != nil {
		return nil, err
	}
	return &model.BalanceResult{NewBalance: acc.Balance}, nil
}

// Refund credits points back with the refund tag.
func (s *RewardService) Refund(ctx context.Context, userID string, req model.SpendRequest) (*model.BalanceResult, error) {
	if err := validateLedgerRequest(userID, &req); err != nil {
		return nil, err
	}
	acc, _, err := s.ledger.Credit(ctx, userID, model.TxRefund, req.Amount,
		req.Description, req.Source, req.RefType, req.RefID)
	if err != nil {
		return nil, err
	}
	return &model.BalanceResult{NewBalance: acc.Balance}, nil
}

// Transfer moves points from one user to another.
func (s *RewardService) Transfer(ctx context.Context, fromUserID, toUserID string, amount int, description string) (*model.BalanceResult, error) {
	if fromUserID == "" || toUserID == "" {
		return nil, fmt.Errorf("both user ids are required")
	}
	if amount <= 0 {
		return nil, fmt.Errorf("amount must be a positive integer")
	}
	acc, err := s.ledger.Transfer(ctx, fromUserID, toUserID, amount, description)
	if err != nil {
		return nil, err
	}
	return &model.BalanceResult{NewBalance: acc.Balance}, nil
}

// GetBalance returns the user's account summary.
func (s *RewardService) GetBalance(ctx context.Context, userID string) (*model.Account, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	return s.ledger.GetAccount(ctx, userID)
}

// GetHistory returns the user's transaction history, newest first.
func (s *RewardService) GetHistory(ctx context.Context, userID string, f model.HistoryFilter) ([]model.Transaction, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	return s.ledger.History(ctx, userID, f)
}

// GetMonthlyTotals returns the user's per-month aggregates.
func (s *RewardService) GetMonthlyTotals(ctx context.Context, userID string) ([]model.MonthlyTotal, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	return s.ledger.MonthlyTotals(ctx, userID)
}

// EvaluateUnlocks re-runs the eligibility catalog for the user and returns
// the newly unlocked definitions. With unchanged stats a second call returns
// an empty list.
func (s *RewardService) EvaluateUnlocks(ctx context.Context, userID string) ([]model.Definition, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	stats, err := s.stats.Snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}
	unlocked, err := s.stats.Unlocks(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.unlock(ctx, userID, stats, s.catalog.Evaluate(stats, unlocked, time.Now().UTC())), nil
}

// ListUnlocked returns the user's unlocked items joined with their catalog
// definitions, in stable catalog order.
func (s *RewardService) ListUnlocked(ctx context.Context, userID string) ([]model.UnlockedItem, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	unlocked, err := s.stats.Unlocks(ctx, userID)
	if err != nil {
		return nil, err
	}
	items := []model.UnlockedItem{}
	for _, def := range s.catalog.Definitions() {
		u, ok := unlocked[def.ID]
		if !ok {
			continue
		}
		items = append(items, model.UnlockedItem{Definition: def, UnlockedAt: u.UnlockedAt})
	}
	return items, nil
}

// credit is the best-effort ledger step of the orchestration: a failure is
// logged, never surfaced, because the roster transition already committed.
// It returns the amount actually credited.
func (s *RewardService) credit(ctx context.Context, userID, typ string, amount int, description, source, eventID string) int {
	if amount <= 0 {
		return 0
	}
	if _, _, err := s.ledger.Credit(ctx, userID, typ, amount, description, source, "event", eventID); err != nil {
		s.log.Error("credit reward",
			slog.String("user_id", userID),
			slog.String("source", source),
			slog.Any("error", err))
		return 0
	}
	return amount
}

// evaluateAndUnlock is the best-effort eligibility step: snapshot, evaluate,
// persist. Failures are logged and produce an empty list.
func (s *RewardService) evaluateAndUnlock(ctx context.Context, userID string) []model.Definition {
	stats, err := s.stats.Snapshot(ctx, userID)
	if err != nil {
		s.log.Error("load stats snapshot", slog.String("user_id", userID), slog.Any("error", err))
		return []model.Definition{}
	}
	unlocked, err := s.stats.Unlocks(ctx, userID)
	if err != nil {
		s.log.Error("load unlocks", slog.String("user_id", userID), slog.Any("error", err))
		return []model.Definition{}
	}
	return s.unlock(ctx, userID, stats, s.catalog.Evaluate(stats, unlocked, time.Now().UTC()))
}

// unlock persists newly eligible definitions, credits their bonus points,
// and emits unlock notifications. Only definitions actually recorded (the
// write is idempotent under races) make it into the result.
func (s *RewardService) unlock(ctx context.Context, userID string, stats *model.Stats, newly []model.Definition) []model.Definition {
	recorded := []model.Definition{}
	now := time.Now().UTC()
	for _, def := range newly {
		ok, err := s.stats.RecordUnlock(ctx, userID, def, stats.Value(def.RequirementType), now)
		if err != nil {
			s.log.Error("record unlock",
				slog.String("user_id", userID),
				slog.String("definition_id", def.ID),
				slog.Any("error", err))
			continue
		}
		if !ok {
			continue
		}
		recorded = append(recorded, def)

		if def.BonusPoints > 0 {
			if _, _, err := s.ledger.Credit(ctx, userID, model.TxBonus, def.BonusPoints,
				"Unlocked "+def.Name, "unlock_bonus", "definition", def.ID); err != nil {
				s.log.Error("credit unlock bonus",
					slog.String("user_id", userID),
					slog.String("definition_id", def.ID),
					slog.Any("error", err))
			}
		}
		s.notifier.Enqueue(notify.Payload{
			UserID:  userID,
			Kind:    notify.KindUnlock,
			Title:   "New " + def.Kind + " unlocked!",
			Message: fmt.Sprintf("You've earned %s.", def.Name),
			Data:    map[string]any{"definition_id": def.ID, "tier": def.Tier},
		})
	}
	return recorded
}

func requireIDs(eventID, userID string) error {
	if eventID == "" {
		return fmt.Errorf("event id is required")
	}
	if userID == "" {
		return fmt.Errorf("user id is required")
	}
	return nil
}

func validateLedgerRequest(userID string, req *model.SpendRequest) error {
	if userID == "" {
		return fmt.Errorf("user id is required")
	}
	if req.Amount <= 0 {
		return fmt.Errorf("amount must be a positive integer")
	}
	req.Description = strings.TrimSpace(req.Description)
	if req.Description == "" {
		return fmt.Errorf("description is required")
	}
	if req.Source == "" {
		req.Source = "manual"
	}
	return nil
}
