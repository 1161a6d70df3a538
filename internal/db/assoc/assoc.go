// Package assoc implements diff-based reconciliation of association tables.
//
// All three association kinds (group↔access-level, group↔user,
// file↔access-level) share one algorithm: compute the set difference between
// the currently associated foreign IDs and the requested target set, then
// issue at most one bulk DELETE and one bulk INSERT scoped to the single
// owner under reconciliation. Concurrent callers reconciling the same owner
// can deadlock on lock ordering between the two statements, which is why
// every call site is wrapped by retry.Do.
package assoc

import (
	"time"

	"gorm.io/gorm"
)

// ID constrains the integer key types used by the association tables.
type ID interface {
	~uint | ~uint64
}

// Def describes one association kind.
type Def struct {
	// Table is the association table name, e.g. "group_access_levels".
	Table string
	// OwnerColumn is the column holding the owning entity's ID.
	OwnerColumn string
	// ForeignColumn is the column holding the associated entity's ID.
	ForeignColumn string
	// ForeignTable is the referenced entity table, used to validate IDs.
	ForeignTable string
}

// Result reports what a reconciliation changed.
type Result struct {
	Added   int
	Removed int
}

// Changed reports whether the reconciliation wrote anything.
func (r Result) Changed() bool {
	return r.Added > 0 || r.Removed > 0
}

// Reconcile makes the owner's association set equal the valid subset of
// desired. IDs in desired that reference no existing row are silently
// dropped: callers may hold stale IDs from a concurrently deleted entity.
// An empty desired set removes all associations for the owner.
//
// It reads and writes only rows scoped to ownerID, so interleaved writers
// touching other owners cannot affect the outcome.
func Reconcile[O ID, F ID](tx *gorm.DB, def Def, ownerID O, desired []F) (Result, error) {
	var res Result

	valid, err := validForeignIDs(tx, def, desired)
	if err != nil {
		return res, err
	}

	var current []F
	if err := tx.Table(def.Table).
		Where(def.OwnerColumn+" = ?", ownerID).
		Pluck(def.ForeignColumn, &current).Error; err != nil {
		return res, err
	}

	toRemove := diff(current, valid)
	toAdd := diff(valid, current)

	if len(toRemove) > 0 {
		del := tx.Exec(
			"DELETE FROM "+def.Table+" WHERE "+def.OwnerColumn+" = ? AND "+def.ForeignColumn+" IN ?",
			ownerID, toRemove,
		)
		if del.Error != nil {
			return res, del.Error
		}

		res.Removed = int(del.RowsAffected)
	}

	if len(toAdd) > 0 {
		rows := make([]map[string]interface{}, 0, len(toAdd))
		now := time.Now().UTC()

		for _, id := range toAdd {
			rows = append(rows, map[string]interface{}{
				def.OwnerColumn:   ownerID,
				def.ForeignColumn: id,
				"created_at":      now,
			})
		}

		if err := tx.Table(def.Table).Create(rows).Error; err != nil {
			return res, err
		}

		res.Added = len(toAdd)
	}

	return res, nil
}

// validForeignIDs returns the subset of desired that references existing rows.
func validForeignIDs[F ID](tx *gorm.DB, def Def, desired []F) ([]F, error) {
	if len(desired) == 0 {
		return nil, nil
	}

	var valid []F
	if err := tx.Table(def.ForeignTable).
		Where("id IN ?", desired).
		Pluck("id", &valid).Error; err != nil {
		return nil, err
	}

	return valid, nil
}

// diff returns the elements of a not present in b.
func diff[F ID](a, b []F) []F {
	if len(a) == 0 {
		return nil
	}

	inB := make(map[F]struct{}, len(b))
	for _, id := range b {
		inB[id] = struct{}{}
	}

	var out []F

	for _, id := range a {
		if _, ok := inB[id]; !ok {
			out = append(out, id)
		}
	}

	return out
}
