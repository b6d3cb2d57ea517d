// Package model defines the core domain types for the event participation
// and rewards system.
package model

import "time"

// Attendee status values.
const (
	StatusConfirmed = "confirmed"
	StatusWaitlist  = "waitlist"
	StatusCancelled = "cancelled"
)

// Event status values.
const (
	EventPublished = "published"
	EventCancelled = "cancelled"
)

// Event represents a capacity-limited event published by an organizer.
// Capacity is immutable once published; cancellation is soft (status flips,
// the roster stays intact for audit).
type Event struct {
	ID              string    `json:"id"`
	OrganizerID     string    `json:"organizer_id"`
	Name            string    `json:"name"`
	Description     string    `json:"description"`
	Capacity        int       `json:"capacity"`
	WaitlistEnabled bool      `json:"waitlist_enabled"`
	JoinReward      int       `json:"join_reward"`
	CheckinReward   int       `json:"checkin_reward"`
	Status          string    `json:"status"`
	AttendeeCount   int       `json:"attendee_count"`
	CheckinCount    int       `json:"checkin_count"`
	CreatedAt       time.Time `json:"created_at"`
}

// Remaining returns the number of open confirmed slots.
func (e *Event) Remaining() int {
	return e.Capacity - e.AttendeeCount
}

// IsFull returns true when no confirmed slots remain.
func (e *Event) IsFull() bool {
	return e.AttendeeCount >= e.Capacity
}

// Attendee is one roster entry for an event. An entry is created on join and
// never deleted; leave flips it to cancelled. Priority is advisory metadata
// carried through from the organizer and is not consulted by waitlist
// promotion, which is strictly FIFO on JoinedAt.
type Attendee struct {
	ID          string     `json:"id"`
	EventID     string     `json:"event_id"`
	UserID      string     `json:"user_id"`
	Status      string     `json:"status"`
	JoinedAt    time.Time  `json:"joined_at"`
	CheckedIn   bool       `json:"checked_in"`
	CheckedInAt *time.Time `json:"checked_in_at,omitempty"`
	Token       string     `json:"token"`
	Priority    int        `json:"priority"`
}

// Transaction type tags.
const (
	TxEarned   = "earned"
	TxSpent    = "spent"
	TxBonus    = "bonus"
	TxPenalty  = "penalty"
	TxRefund   = "refund"
	TxTransfer = "transfer"
)

// Account is a user's point ledger account: a running balance derived from
// an append-only transaction log. Balance never goes negative.
type Account struct {
	UserID      string `json:"user_id"`
	Balance     int    `json:"balance"`
	TotalEarned int    `json:"total_earned"`
	TotalSpent  int    `json:"total_spent"`
	TxCount     int    `json:"tx_count"`
}

// Transaction is one immutable entry in an account's ledger. Amount is
// signed (credits positive, debits negative); BalanceAfter snapshots the
// running balance at write time so history reads never replay the log.
type Transaction struct {
	AccountID    string    `json:"account_id"`
	Seq          int       `json:"seq"`
	Type         string    `json:"type"`
	Amount       int       `json:"amount"`
	Description  string    `json:"description"`
	Source       string    `json:"source"`
	RefType      string    `json:"ref_type,omitempty"`
	RefID        string    `json:"ref_id,omitempty"`
	BalanceAfter int       `json:"balance_after"`
	CreatedAt    time.Time `json:"created_at"`
}

// MonthlyTotal aggregates one account's activity for one calendar month.
// Month is keyed "YYYY-MM" on the transaction's own timestamp.
type MonthlyTotal struct {
	AccountID string `json:"account_id"`
	Month     string `json:"month"`
	Earned    int    `json:"earned"`
	Spent     int    `json:"spent"`
	TxCount   int    `json:"tx_count"`
}

// MonthKey returns the "YYYY-MM" aggregation bucket for t.
func MonthKey(t time.Time) string {
	return t.Format("2006-01")
}

// Requirement types recognised by the eligibility catalog.
const (
	ReqEventsAttended     = "events_attended"
	ReqPointsEarned       = "points_earned"
	ReqFriendsInvited     = "friends_invited"
	ReqEventsCreated      = "events_created"
	ReqStreakDays         = "streak_days"
	ReqCategoriesExplored = "categories_explored"
	ReqLocationsVisited   = "locations_visited"
	ReqReviewsWritten     = "reviews_written"
	ReqGroupsJoined       = "groups_joined"
)

// Definition kinds.
const (
	KindBadge       = "badge"
	KindAchievement = "achievement"
)

// Definition is one entry in the badge/achievement catalog. Catalog data is
// immutable at request time; it is loaded once at startup.
type Definition struct {
	ID               string   `json:"id"`
	Kind             string   `json:"kind"`
	Name             string   `json:"name"`
	RequirementType  string   `json:"requirement_type"`
	RequirementValue int      `json:"requirement_value"`
	Tier             string   `json:"tier"`
	MinLevel         int      `json:"min_level"`
	Prerequisites    []string `json:"prerequisites,omitempty"`
	Repeatable       bool     `json:"repeatable"`
	Hidden           bool     `json:"hidden"`
	Active           bool     `json:"active"`
	BonusPoints      int      `json:"bonus_points"`
	TimeLimitDays    int      `json:"time_limit_days,omitempty"`
	Position         int      `json:"-"`
}

// Unlock records that a user has satisfied one definition. Non-repeatable
// definitions unlock at most once; repeatable ones track how many times they
// have fired and the stat value at the last firing.
type Unlock struct {
	UserID         string    `json:"user_id"`
	DefinitionID   string    `json:"definition_id"`
	Count          int       `json:"count"`
	LastFiredValue int       `json:"last_fired_value"`
	UnlockedAt     time.Time `json:"unlocked_at"`
}

// Stats is a user's gamification counters, the snapshot the catalog is
// evaluated against.
type Stats struct {
	UserID             string    `json:"user_id"`
	Level              int       `json:"level"`
	EventsAttended     int       `json:"events_attended"`
	PointsEarned       int       `json:"points_earned"`
	FriendsInvited     int       `json:"friends_invited"`
	EventsCreated      int       `json:"events_created"`
	StreakDays         int       `json:"streak_days"`
	CategoriesExplored int       `json:"categories_explored"`
	LocationsVisited   int       `json:"locations_visited"`
	ReviewsWritten     int       `json:"reviews_written"`
	GroupsJoined       int       `json:"groups_joined"`
	MemberSince        time.Time `json:"member_since"`
}

// Value returns the counter for one requirement type, 0 for unknown types.
func (s *Stats) Value(requirementType string) int {
	switch requirementType {
	case ReqEventsAttended:
		return s.EventsAttended
	case ReqPointsEarned:
		return s.PointsEarned
	case ReqFriendsInvited:
		return s.FriendsInvited
	case ReqEventsCreated:
		return s.EventsCreated
	case ReqStreakDays:
		return s.StreakDays
	case ReqCategoriesExplored:
		return s.CategoriesExplored
	case ReqLocationsVisited:
		return s.LocationsVisited
	case ReqReviewsWritten:
		return s.ReviewsWritten
	case ReqGroupsJoined:
		return s.GroupsJoined
	default:
		return 0
	}
}
