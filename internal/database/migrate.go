package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is applied in order on startup. Statements are idempotent so a
// restart against an existing database is a no-op.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS events (
		id              UUID PRIMARY KEY,
		organizer_id    TEXT NOT NULL DEFAULT '',
		name            TEXT NOT NULL,
		description     TEXT NOT NULL DEFAULT '',
		capacity        INT NOT NULL CHECK (capacity > 0),
		waitlist_enabled BOOLEAN NOT NULL DEFAULT false,
		join_reward     INT NOT NULL DEFAULT 0,
		checkin_reward  INT NOT NULL DEFAULT 0,
		status          TEXT NOT NULL DEFAULT 'published',
		attendee_count  INT NOT NULL DEFAULT 0 CHECK (attendee_count >= 0 AND attendee_count <= capacity),
		checkin_count   INT NOT NULL DEFAULT 0,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS attendees (
		id            UUID PRIMARY KEY,
		event_id      UUID NOT NULL REFERENCES events(id),
		user_id       TEXT NOT NULL,
		status        TEXT NOT NULL,
		joined_at     TIMESTAMPTZ NOT NULL,
		checked_in    BOOLEAN NOT NULL DEFAULT false,
		checked_in_at TIMESTAMPTZ,
		token         UUID NOT NULL,
		priority      INT NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS attendees_event_idx ON attendees (event_id, joined_at)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS attendees_live_entry_idx
		ON attendees (event_id, user_id) WHERE status != 'cancelled'`,
	`CREATE TABLE IF NOT EXISTS accounts (
		user_id      TEXT PRIMARY KEY,
		balance      INT NOT NULL DEFAULT 0 CHECK (balance >= 0),
		total_earned INT NOT NULL DEFAULT 0,
		total_spent  INT NOT NULL DEFAULT 0,
		tx_count     INT NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		account_id    TEXT NOT NULL REFERENCES accounts(user_id),
		seq           INT NOT NULL,
		type          TEXT NOT NULL,
		amount        INT NOT NULL,
		description   TEXT NOT NULL,
		source        TEXT NOT NULL,
		ref_type      TEXT,
		ref_id        TEXT,
		balance_after INT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (account_id, seq)
	)`,
	`CREATE TABLE IF NOT EXISTS monthly_totals (
		account_id TEXT NOT NULL REFERENCES accounts(user_id),
		month      TEXT NOT NULL,
		earned     INT NOT NULL DEFAULT 0,
		spent      INT NOT NULL DEFAULT 0,
		tx_count   INT NOT NULL DEFAULT 0,
		PRIMARY KEY (account_id, month)
	)`,
	`CREATE TABLE IF NOT EXISTS definitions (
		id               TEXT PRIMARY KEY,
		kind             TEXT NOT NULL,
		name             TEXT NOT NULL,
		requirement_type  TEXT NOT NULL,
		requirement_value INT NOT NULL,
		tier             TEXT NOT NULL DEFAULT 'bronze',
		min_level        INT NOT NULL DEFAULT 0,
		prerequisites    TEXT[] NOT NULL DEFAULT '{}',
		repeatable       BOOLEAN NOT NULL DEFAULT false,
		hidden           BOOLEAN NOT NULL DEFAULT false,
		active           BOOLEAN NOT NULL DEFAULT true,
		bonus_points     INT NOT NULL DEFAULT 0,
		time_limit_days  INT NOT NULL DEFAULT 0,
		position         INT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS unlocks (
		user_id          TEXT NOT NULL,
		definition_id    TEXT NOT NULL REFERENCES definitions(id),
		count            INT NOT NULL DEFAULT 1,
		last_fired_value INT NOT NULL DEFAULT 0,
		unlocked_at      TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (user_id, definition_id)
	)`,
	`CREATE TABLE IF NOT EXISTS user_stats (
		user_id             TEXT PRIMARY KEY,
		level               INT NOT NULL DEFAULT 1,
		events_attended     INT NOT NULL DEFAULT 0,
		friends_invited     INT NOT NULL DEFAULT 0,
		events_created      INT NOT NULL DEFAULT 0,
		streak_days         INT NOT NULL DEFAULT 0,
		categories_explored INT NOT NULL DEFAULT 0,
		locations_visited   INT NOT NULL DEFAULT 0,
		reviews_written     INT NOT NULL DEFAULT 0,
		groups_joined       INT NOT NULL DEFAULT 0,
		created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// seedDefinitions gives a fresh database a small starter catalog. Existing
// rows are left untouched; the catalog is otherwise admin-managed data.
var seedDefinitions = `
	INSERT INTO definitions
		(id, kind, name, requirement_type, requirement_value, tier, min_level,
		 prerequisites, repeatable, hidden, active, bonus_points, time_limit_days, position)
	VALUES
		('first-steps', 'badge', 'First Steps', 'events_attended', 1, 'bronze', 0, '{}', false, false, true, 10, 0, 1),
		('regular', 'badge', 'Regular', 'events_attended', 5, 'silver', 0, '{first-steps}', false, false, true, 25, 0, 2),
		('devotee', 'badge', 'Devotee', 'events_attended', 20, 'gold', 0, '{regular}', false, false, true, 100, 0, 3),
		('point-collector', 'achievement', 'Point Collector', 'points_earned', 500, 'silver', 0, '{}', false, false, true, 0, 0, 4),
		('social-butterfly', 'achievement', 'Social Butterfly', 'friends_invited', 10, 'silver', 0, '{}', false, false, true, 50, 0, 5),
		('organizer', 'badge', 'Organizer', 'events_created', 3, 'silver', 0, '{}', false, false, true, 50, 0, 6),
		('on-a-roll', 'achievement', 'On a Roll', 'streak_days', 7, 'bronze', 0, '{}', true, false, true, 15, 0, 7),
		('explorer', 'badge', 'Explorer', 'categories_explored', 5, 'bronze', 0, '{}', false, false, true, 20, 0, 8)
	ON CONFLICT (id) DO NOTHING`

// Migrate applies the schema and seeds the starter catalog.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	if _, err := pool.Exec(ctx, seedDefinitions); err != nil {
		return fmt.Errorf("seed definitions: %w", err)
	}
	return nil
}
