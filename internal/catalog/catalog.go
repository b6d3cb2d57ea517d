// Package catalog holds the immutable badge/achievement catalog and
// evaluates user stat snapshots against it.
//
// The catalog is loaded once at startup and injected where needed; it is
// never mutated at request time, so reads need no locking. Evaluation is
// forward-monotonic: it only ever reports newly satisfied definitions and
// never revokes a past unlock, even if thresholds have since changed.
package catalog

import (
	"sort"
	"time"

	"github.com/gatherly/rewards/internal/model"
)

// Catalog is the loaded definition set, ordered by catalog position.
type Catalog struct {
	defs []model.Definition
	byID map[string]int
}

// New builds a Catalog from loaded definitions. Input order does not matter;
// the catalog orders by Position so evaluation output is stable.
func New(defs []model.Definition) *Catalog {
	sorted := make([]model.Definition, len(defs))
	copy(sorted, defs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Position < sorted[j].Position
	})

	byID := make(map[string]int, len(sorted))
	for i, d := range sorted {
		byID[d.ID] = i
	}
	return &Catalog{defs: sorted, byID: byID}
}

// Get returns the definition with the given id.
func (c *Catalog) Get(id string) (model.Definition, bool) {
	i, ok := c.byID[id]
	if !ok {
		return model.Definition{}, false
	}
	return c.defs[i], true
}

// Len returns the number of definitions in the catalog.
func (c *Catalog) Len() int {
	return len(c.defs)
}

// Definitions returns the catalog entries in position order. The returned
// slice is a copy; the catalog itself stays immutable.
func (c *Catalog) Definitions() []model.Definition {
	out := make([]model.Definition, len(c.defs))
	copy(out, c.defs)
	return out
}

// Evaluate returns the definitions the user newly qualifies for, in catalog
// order. unlocked maps definition id to the user's existing unlock record.
//
// A definition qualifies when it is active and not hidden, the user's level
// meets MinLevel, every prerequisite id is already unlocked, any time limit
// (days since the user's registration) has not lapsed, and the tracked stat
// meets the requirement value. Non-repeatable definitions are excluded once
// unlocked; repeatable ones fire again each time the stat reaches the next
// whole multiple of the requirement value.
func (c *Catalog) Evaluate(stats *model.Stats, unlocked map[string]*model.Unlock, now time.Time) []model.Definition {
	var newly []model.Definition
	for _, def := range c.defs {
		if !def.Active || def.Hidden {
			continue
		}
		if stats.Level < def.MinLevel {
			continue
		}
		if def.TimeLimitDays > 0 {
			deadline := stats.MemberSince.AddDate(0, 0, def.TimeLimitDays)
			if now.After(deadline) {
				continue
			}
		}
		if !prereqsMet(def.Prerequisites, unlocked) {
			continue
		}

		value := stats.Value(def.RequirementType)
		prior := unlocked[def.ID]
		if def.Repeatable {
			fired := 0
			if prior != nil {
				fired = prior.Count
			}
			if value >= def.RequirementValue*(fired+1) {
				newly = append(newly, def)
			}
			continue
		}
		if prior != nil {
			continue
		}
		if value >= def.RequirementValue {
			newly = append(newly, def)
		}
	}
	return newly
}

func prereqsMet(prereqs []string, unlocked map[string]*model.Unlock) bool {
	for _, id := range prereqs {
		if unlocked[id] == nil {
			return false
		}
	}
	return true
}
