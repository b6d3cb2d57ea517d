package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gatherly/rewards/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// statColumns whitelists the user_stats counters addressable by requirement
// type. Column names never come from request input.
var statColumns = map[string]string{
	model.ReqEventsAttended:     "events_attended",
	model.ReqFriendsInvited:     "friends_invited",
	model.ReqEventsCreated:      "events_created",
	model.ReqStreakDays:         "streak_days",
	model.ReqCategoriesExplored: "categories_explored",
	model.ReqLocationsVisited:   "locations_visited",
	model.ReqReviewsWritten:     "reviews_written",
	model.ReqGroupsJoined:       "groups_joined",
}

// StatsRepository persists the per-user gamification profile: the stat
// counters the catalog is evaluated against and the unlock records.
type StatsRepository struct {
	db *pgxpool.Pool
}

// NewStatsRepository constructs a StatsRepository.
func NewStatsRepository(db *pgxpool.Pool) *StatsRepository {
	return &StatsRepository{db: db}
}

// Snapshot returns the user's current stats, creating the profile row on
// first use. points_earned is not stored in user_stats: it is the account's
// total_earned, overlaid here so the ledger stays the single source of truth
// for point totals.
func (r *StatsRepository) Snapshot(ctx context.Context, userID string) (*model.Stats, error) {
	if _, err := r.db.Exec(ctx,
		`INSERT INTO user_stats (user_id) VALUES ($1)
		 ON CONFLICT (user_id) DO NOTHING`,
		userID,
	); err != nil {
		return nil, fmt.Errorf("ensure user stats: %w", err)
	}

	var s model.Stats
	err := r.db.QueryRow(ctx,
		`SELECT s.user_id, s.level, s.events_attended,
		   COALESCE(a.total_earned, 0),
		   s.friends_invited, s.events_created, s.streak_days,
		   s.categories_explored, s.locations_visited, s.reviews_written,
		   s.groups_joined, s.created_at
		 FROM user_stats s
		 LEFT JOIN accounts a ON a.user_id = s.user_id
		 WHERE s.user_id = $1`,
		userID,
	).Scan(&s.UserID, &s.Level, &s.EventsAttended, &s.PointsEarned,
		&s.FriendsInvited, &s.EventsCreated, &s.StreakDays,
		&s.CategoriesExplored, &s.LocationsVisited, &s.ReviewsWritten,
		&s.GroupsJoined, &s.MemberSince)
	if err != nil {
		return nil, fmt.Errorf("load user stats: %w", err)
	}
	return &s, nil
}

// Increment bumps one stat counter by delta, creating the profile row on
// first use. Unknown requirement types are rejected.
func (r *StatsRepository) Increment(ctx context.Context, userID, requirementType string, delta int) error {
	col, ok := statColumns[requirementType]
	if !ok {
		return fmt.Errorf("unknown stat counter %q", requirementType)
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO user_stats (user_id, `+col+`) VALUES ($1, $2)
		 ON CONFLICT (user_id) DO UPDATE
		 SET `+col+` = user_stats.`+col+` + EXCLUDED.`+col,
		userID, delta,
	)
	if err != nil {
		return fmt.Errorf("increment %s: %w", col, err)
	}
	return nil
}

// Unlocks returns the user's unlock records keyed by definition id.
func (r *StatsRepository) Unlocks(ctx context.Context, userID string) (map[string]*model.Unlock, error) {
	rows, err := r.db.Query(ctx,
		`SELECT user_id, definition_id, count, last_fired_value, unlocked_at
		 FROM unlocks
		 WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list unlocks: %w", err)
	}
	defer rows.Close()

	unlocked := make(map[string]*model.Unlock)
	for rows.Next() {
		var u model.Unlock
		if err := rows.Scan(&u.UserID, &u.DefinitionID, &u.Count, &u.LastFiredValue, &u.UnlockedAt); err != nil {
			return nil, fmt.Errorf("scan unlock: %w", err)
		}
		unlocked[u.DefinitionID] = &u
	}
	return unlocked, rows.Err()
}

// RecordUnlock writes one unlock for the user. It returns false when a
// concurrent evaluation already recorded the same firing, which makes
// re-awarding a no-op: the unlock lands exactly once no matter how many
// evaluations race.
//
// Unlock writes for one user are serialised on the user_stats row, the same
// aggregate-root locking the roster and ledger use.
func (r *StatsRepository) RecordUnlock(ctx context.Context, userID string, def model.Definition, statValue int, now time.Time) (bool, error) {
	recorded := false
	err := inTx(ctx, r.db, func(tx pgx.Tx) error {
		if err := lockUserStats(ctx, tx, userID); err != nil {
			return err
		}

		if !def.Repeatable {
			tag, err := tx.Exec(ctx,
				`INSERT INTO unlocks (user_id, definition_id, count, last_fired_value, unlocked_at)
				 VALUES ($1, $2, 1, $3, $4)
				 ON CONFLICT (user_id, definition_id) DO NOTHING`,
				userID, def.ID, statValue, now,
			)
			if err != nil {
				return fmt.Errorf("insert unlock: %w", err)
			}
			recorded = tag.RowsAffected() > 0
			return nil
		}

		// Repeatable: re-verify the next multiple under the lock before
		// bumping the firing count.
		var count int
		err := tx.QueryRow(ctx,
			`SELECT count FROM unlocks WHERE user_id = $1 AND definition_id = $2`,
			userID, def.ID,
		).Scan(&count)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			count = 0
		case err != nil:
			return fmt.Errorf("load unlock: %w", err)
		}
		if statValue < def.RequirementValue*(count+1) {
			return nil
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO unlocks (user_id, definition_id, count, last_fired_value, unlocked_at)
			 VALUES ($1, $2, 1, $3, $4)
			 ON CONFLICT (user_id, definition_id) DO UPDATE
			 SET count = unlocks.count + 1,
			     last_fired_value = EXCLUDED.last_fired_value,
			     unlocked_at = EXCLUDED.unlocked_at`,
			userID, def.ID, statValue, now,
		); err != nil {
			return fmt.Errorf("upsert unlock: %w", err)
		}
		recorded = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return recorded, nil
}

func lockUserStats(ctx context.Context, tx pgx.Tx, userID string) error {
	if _, err := tx.Exec(ctx,
		`INSERT INTO user_stats (user_id) VALUES ($1)
		 ON CONFLICT (user_id) DO NOTHING`,
		userID,
	); err != nil {
		return fmt.Errorf("ensure user stats: %w", err)
	}
	var id string
	if err := tx.QueryRow(ctx,
		`SELECT user_id FROM user_stats WHERE user_id = $1 FOR UPDATE`,
		userID,
	).Scan(&id); err != nil {
		return fmt.Errorf("lock user stats row: %w", err)
	}
	return nil
}
