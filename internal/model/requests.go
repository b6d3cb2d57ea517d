package model

import "time"

// CreateEventRequest is the payload for publishing a new event.
type CreateEventRequest struct {
	OrganizerID     string `json:"organizer_id"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	Capacity        int    `json:"capacity"`
	WaitlistEnabled bool   `json:"waitlist_enabled"`
	JoinReward      int    `json:"join_reward"`
	CheckinReward   int    `json:"checkin_reward"`
}

// JoinRequest is the payload for joining an event.
type JoinRequest struct {
	UserID string `json:"user_id"`
}

// CheckInRequest is the payload for checking in to an event.
type CheckInRequest struct {
	UserID string `json:"user_id"`
	Token  string `json:"token"`
}

// SpendRequest is the payload for spending points.
type SpendRequest struct {
	Amount      int    `json:"amount"`
	Description string `json:"description"`
	Source      string `json:"source"`
	RefType     string `json:"ref_type,omitempty"`
	RefID       string `json:"ref_id,omitempty"`
}

// JoinResult summarises the outcome of a join: the attendee's status
// (confirmed or waitlist), remaining capacity, points credited for the join,
// and any definitions the join newly unlocked.
type JoinResult struct {
	Status            string       `json:"status"`
	CapacityRemaining int          `json:"capacity_remaining"`
	Token             string       `json:"token,omitempty"`
	PointsCredited    int          `json:"points_credited"`
	Unlocked          []Definition `json:"unlocked"`
}

// LeaveResult reports which waitlisted user, if any, was promoted.
type LeaveResult struct {
	Promoted *string `json:"promoted"`
}

// CheckInResult summarises the outcome of a check-in.
type CheckInResult struct {
	CheckinCount   int          `json:"checkin_count"`
	PointsCredited int          `json:"points_credited"`
	Unlocked       []Definition `json:"unlocked"`
}

// BalanceResult reports the account balance after a ledger write.
type BalanceResult struct {
	NewBalance int `json:"new_balance"`
}

// HistoryFilter narrows a ledger history read. Zero values mean "no filter".
type HistoryFilter struct {
	Type    string
	Source  string
	From    time.Time
	To      time.Time
	Page    int
	PerPage int
}

// UnlockedItem pairs an unlock record with its catalog definition for API
// responses and notification payloads.
type UnlockedItem struct {
	Definition Definition `json:"definition"`
	UnlockedAt time.Time  `json:"unlocked_at"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}
