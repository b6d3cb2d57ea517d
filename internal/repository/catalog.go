package repository

import (
	"context"
	"fmt"

	"github.com/gatherly/rewards/internal/model"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CatalogRepository loads the badge/achievement catalog. The catalog is read
// once at startup into an immutable catalog.Catalog; nothing here runs at
// request time.
type CatalogRepository struct {
	db *pgxpool.Pool
}

// NewCatalogRepository constructs a CatalogRepository.
func NewCatalogRepository(db *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// LoadDefinitions returns every catalog definition in position order.
func (r *CatalogRepository) LoadDefinitions(ctx context.Context) ([]model.Definition, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, kind, name, requirement_type, requirement_value, tier,
		   min_level, prerequisites, repeatable, hidden, active, bonus_points,
		   time_limit_days, position
		 FROM definitions
		 ORDER BY position ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("load definitions: %w", err)
	}
	defer rows.Close()

	var defs []model.Definition
	for rows.Next() {
		var d model.Definition
		if err := rows.Scan(&d.ID, &d.Kind, &d.Name, &d.RequirementType,
			&d.RequirementValue, &d.Tier, &d.MinLevel, &d.Prerequisites,
			&d.Repeatable, &d.Hidden, &d.Active, &d.BonusPoints,
			&d.TimeLimitDays, &d.Position); err != nil {
			return nil, fmt.Errorf("scan definition: %w", err)
		}
		defs = append(defs, d)
	}
	return defs, rows.Err()
}
