package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/cosmicds/cds-api/core/hubble"
)

func (repo *hubbleRepository) GetMergeEntry(ctx context.Context, classID int) (hubble.MergeGroupEntry, error) {
	var e hubble.MergeGroupEntry
	q := repo.db.Rebind(`SELECT class_id, group_id, merge_order FROM hubble_class_merge_groups WHERE class_id = ?`)
	if err := repo.db.GetContext(ctx, &e, q, classID); err != nil {
		if err == sql.ErrNoRows {
			return hubble.MergeGroupEntry{}, hubble.ErrNotInMergeGroup
		}
		return hubble.MergeGroupEntry{}, errors.Wrap(err, "selecting merge entry")
	}
	return e, nil
}

func (repo *hubbleRepository) QueryMergeGroup(ctx context.Context, groupID int) ([]hubble.MergeGroupEntry, error) {
	entries := make([]hubble.MergeGroupEntry, 0)
	q := repo.db.Rebind(`SELECT class_id, group_id, merge_order FROM hubble_class_merge_groups
		WHERE group_id = ? ORDER BY merge_order`)
	if err := repo.db.SelectContext(ctx, &entries, q, groupID); err != nil {
		return nil, errors.Wrap(err, "selecting merge group")
	}
	return entries, nil
}

func (repo *hubbleRepository) QueryMergeEntries(ctx context.Context) ([]hubble.MergeGroupEntry, error) {
	entries := make([]hubble.MergeGroupEntry, 0)
	q := `SELECT class_id, group_id, merge_order FROM hubble_class_merge_groups ORDER BY group_id, merge_order`
	if err := repo.db.SelectContext(ctx, &entries, q); err != nil {
		return nil, errors.Wrap(err, "selecting merge entries")
	}
	return entries, nil
}

func (repo *hubbleRepository) QueryMergeCandidates(ctx context.Context, classID, minSize int, storyName string) ([]hubble.MergeCandidate, error) {
	candidates := make([]hubble.MergeCandidate, 0)
	q := repo.db.Rebind(`SELECT c.id AS class_id, mg.group_id,
			CASE WHEN mg.group_id IS NULL THEN 1
				ELSE (SELECT COUNT(*) FROM hubble_class_merge_groups x WHERE x.group_id = mg.group_id) END AS group_size,
			COALESCE((SELECT MAX(x.merge_order) FROM hubble_class_merge_groups x WHERE x.group_id = mg.group_id), 0) AS max_merge_order
		FROM classes c
		LEFT JOIN hubble_class_merge_groups mg ON mg.class_id = c.id
		WHERE c.id <> ?
			AND NOT EXISTS (SELECT 1 FROM ignore_classes i WHERE i.class_id = c.id AND (i.story_name IS NULL OR i.story_name = ?))
			AND (SELECT COUNT(*) FROM students_classes sc WHERE sc.class_id = c.id) >= ?
		ORDER BY c.id`)
	if err := repo.db.SelectContext(ctx, &candidates, q, classID, storyName, minSize); err != nil {
		return nil, errors.Wrap(err, "selecting merge candidates")
	}
	return candidates, nil
}

var errUniqueMergeEntry = errors.New("merge entry violates a unique constraint")

// uniqueMergeError tells which uniqueness rule a failed merge insert broke, by looking at the
// committed entries of the classes involved.
func (repo *hubbleRepository) uniqueMergeError(ctx context.Context, classIDs ...int) error {
	var grouped []int
	q := `SELECT class_id FROM hubble_class_merge_groups WHERE class_id IN (?)`
	if err := selectIn(ctx, repo.db, &grouped, q, classIDs); err != nil {
		return errors.Wrap(err, "checking merge entries")
	}
	if len(grouped) > 0 {
		return hubble.ErrAlreadyGrouped
	}
	return hubble.ErrMergeOrderTaken
}

func (repo *hubbleRepository) CreateMergeGroup(ctx context.Context, candidateID, classID int) (int, error) {
	var groupID int
	err := inTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &groupID, `SELECT COALESCE(MAX(group_id), 0) + 1 FROM hubble_class_merge_groups`); err != nil {
			return errors.Wrap(err, "selecting next group id")
		}
		q := tx.Rebind(`INSERT INTO hubble_class_merge_groups (class_id, group_id, merge_order) VALUES (?, ?, 1), (?, ?, 2)`)
		if _, err := tx.ExecContext(ctx, q, candidateID, groupID, classID, groupID); err != nil {
			if isUniqueViolation(err) {
				return errUniqueMergeEntry
			}
			return errors.Wrap(err, "inserting merge group")
		}
		return nil
	})
	if err == errUniqueMergeEntry {
		return 0, repo.uniqueMergeError(ctx, candidateID, classID)
	}
	if err != nil {
		return 0, err
	}
	return groupID, nil
}

func (repo *hubbleRepository) JoinMergeGroup(ctx context.Context, classID, groupID int) (hubble.MergeGroupEntry, error) {
	entry := hubble.MergeGroupEntry{ClassID: classID, GroupID: groupID}
	err := inTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		var maxOrder sql.NullInt64
		q := tx.Rebind(`SELECT MAX(merge_order) FROM hubble_class_merge_groups WHERE group_id = ?`)
		if err := tx.GetContext(ctx, &maxOrder, q, groupID); err != nil {
			return errors.Wrap(err, "selecting max merge order")
		}
		if !maxOrder.Valid {
			return hubble.ErrMergeGroupNotFound
		}
		entry.MergeOrder = int(maxOrder.Int64) + 1

		q = tx.Rebind(`INSERT INTO hubble_class_merge_groups (class_id, group_id, merge_order) VALUES (?, ?, ?)`)
		if _, err := tx.ExecContext(ctx, q, entry.ClassID, entry.GroupID, entry.MergeOrder); err != nil {
			if isUniqueViolation(err) {
				return errUniqueMergeEntry
			}
			return errors.Wrap(err, "inserting merge entry")
		}
		return nil
	})
	if err == errUniqueMergeEntry {
		return hubble.MergeGroupEntry{}, repo.uniqueMergeError(ctx, classID)
	}
	if err != nil {
		return hubble.MergeGroupEntry{}, err
	}
	return entry, nil
}

func (repo *hubbleRepository) RemoveFromMergeGroup(ctx context.Context, classID int) (bool, error) {
	var removed bool
	err := inTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		var e hubble.MergeGroupEntry
		q := tx.Rebind(`SELECT class_id, group_id, merge_order FROM hubble_class_merge_groups WHERE class_id = ?`)
		if err := tx.GetContext(ctx, &e, q, classID); err != nil {
			if err == sql.ErrNoRows {
				return nil
			}
			return errors.Wrap(err, "selecting merge entry")
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM hubble_class_merge_groups WHERE class_id = ?`), classID); err != nil {
			return errors.Wrap(err, "deleting merge entry")
		}
		removed = true

		// a group of one is no merge
		q = tx.Rebind(`DELETE FROM hubble_class_merge_groups WHERE group_id = ?
			AND (SELECT COUNT(*) FROM hubble_class_merge_groups WHERE group_id = ?) = 1`)
		if _, err := tx.ExecContext(ctx, q, e.GroupID, e.GroupID); err != nil {
			return errors.Wrap(err, "deleting singleton merge group")
		}
		return nil
	})
	return removed, err
}

func (repo *hubbleRepository) GetWaitingRoomOverride(ctx context.Context, classID int) (hubble.WaitingRoomOverride, error) {
	var o hubble.WaitingRoomOverride
	q := repo.db.Rebind(`SELECT class_id, created_at FROM hubble_waiting_room_overrides WHERE class_id = ?`)
	if err := repo.db.GetContext(ctx, &o, q, classID); err != nil {
		if err == sql.ErrNoRows {
			return hubble.WaitingRoomOverride{}, hubble.ErrOverrideNotFound
		}
		return hubble.WaitingRoomOverride{}, errors.Wrap(err, "selecting waiting room override")
	}
	return o, nil
}

func (repo *hubbleRepository) CreateWaitingRoomOverride(ctx context.Context, classID int) (bool, error) {
	q := repo.db.Rebind(`INSERT INTO hubble_waiting_room_overrides (class_id, created_at) VALUES (?, ?) ON CONFLICT DO NOTHING`)
	res, err := repo.db.ExecContext(ctx, q, classID, time.Now().UTC())
	if err != nil {
		return false, errors.Wrap(err, "inserting waiting room override")
	}
	return affected(res)
}

func (repo *hubbleRepository) DeleteWaitingRoomOverride(ctx context.Context, classID int) (bool, error) {
	q := repo.db.Rebind(`DELETE FROM hubble_waiting_room_overrides WHERE class_id = ?`)
	res, err := repo.db.ExecContext(ctx, q, classID)
	if err != nil {
		return false, errors.Wrap(err, "deleting waiting room override")
	}
	return affected(res)
}
