package hubble

import (
	"context"
	"sort"
	"strconv"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/cosmicds/cds-api/core/roster"
)

// maxMergeAttempts bounds how often a merge is re-resolved after losing a race to a concurrent writer.
const maxMergeAttempts = 3

// rankedCandidate is a candidate collapsed to one row per group.
type rankedCandidate struct {
	MergeCandidate
	key     string
	grouped bool
}

// ResolveMergeCandidate picks the class that classID should be merged with.
//
// Classes already in a group are collapsed into a single candidate per group. Ungrouped classes
// rank first, then smaller groups, then groups with the largest merge order. The lowest class id
// wins remaining ties.
func (svc *Service) ResolveMergeCandidate(ctx context.Context, classID int) (MergeCandidate, error) {
	candidates, err := svc.repo.QueryMergeCandidates(ctx, classID, MinMergeClassSize, StoryName)
	if err != nil {
		return MergeCandidate{}, errors.Wrap(err, "querying merge candidates")
	}

	byKey := make(map[string]*rankedCandidate, len(candidates))
	ranked := make([]*rankedCandidate, 0, len(candidates))
	for _, c := range candidates {
		if c.ClassID == classID {
			continue
		}
		rc := &rankedCandidate{MergeCandidate: c, grouped: c.GroupID.Valid}
		if rc.grouped {
			rc.key = strconv.Itoa(c.GroupID.Int)
		} else {
			// placeholder identity, unique per ungrouped class
			rc.key = uuid.NewString()
			rc.GroupSize = 1
		}
		if existing, ok := byKey[rc.key]; ok {
			if c.ClassID < existing.ClassID {
				existing.ClassID = c.ClassID
			}
			continue
		}
		byKey[rc.key] = rc
		ranked = append(ranked, rc)
	}
	if len(ranked) == 0 {
		return MergeCandidate{}, ErrNoMergeCandidate
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.grouped != b.grouped {
			return !a.grouped
		}
		if a.GroupSize != b.GroupSize {
			return a.GroupSize < b.GroupSize
		}
		if a.MaxMergeOrder != b.MaxMergeOrder {
			return a.MaxMergeOrder > b.MaxMergeOrder
		}
		return a.ClassID < b.ClassID
	})
	return ranked[0].MergeCandidate, nil
}

// AddClassToMergeGroup puts the class in a merge group and returns the group id.
// A class that already has a group keeps it.
func (svc *Service) AddClassToMergeGroup(ctx context.Context, classID int) (int, error) {
	for attempt := 0; attempt < maxMergeAttempts; attempt++ {
		entry, err := svc.repo.GetMergeEntry(ctx, classID)
		if err == nil {
			return entry.GroupID, nil
		}
		if errors.Cause(err) != ErrNotInMergeGroup {
			return 0, errors.Wrap(err, "getting merge entry")
		}

		candidate, err := svc.ResolveMergeCandidate(ctx, classID)
		if err != nil {
			return 0, err
		}

		var groupID int
		if candidate.GroupID.Valid {
			var joined MergeGroupEntry
			joined, err = svc.repo.JoinMergeGroup(ctx, classID, candidate.GroupID.Int)
			groupID = joined.GroupID
		} else {
			groupID, err = svc.repo.CreateMergeGroup(ctx, candidate.ClassID, classID)
		}

		switch errors.Cause(err) {
		case nil:
			svc.logger.Info("class added to merge group", map[string]interface{}{
				"class_id":     classID,
				"group_id":     groupID,
				"candidate_id": candidate.ClassID,
			})
			return groupID, nil
		case ErrAlreadyGrouped, ErrMergeOrderTaken, ErrMergeGroupNotFound:
			svc.logger.Debug("merge conflict, retrying", err, map[string]interface{}{"class_id": classID})
			continue
		default:
			return 0, errors.Wrap(err, "storing merge group")
		}
	}
	return 0, ErrMergeConflict
}

// RemoveClassFromMergeGroup takes the class out of its group. A group left with a single member is dissolved.
func (svc *Service) RemoveClassFromMergeGroup(ctx context.Context, classID int) (bool, error) {
	removed, err := svc.repo.RemoveFromMergeGroup(ctx, classID)
	if err != nil {
		return false, errors.Wrap(err, "removing class from merge group")
	}
	return removed, nil
}

// GetMergedClassIDs returns the ids of the classes merged with classID, ordered by merge order.
// Unless ignoreMergeOrder is set, only classes that joined no later than classID are returned.
func (svc *Service) GetMergedClassIDs(ctx context.Context, classID int, ignoreMergeOrder bool) ([]int, error) {
	entry, err := svc.repo.GetMergeEntry(ctx, classID)
	if err != nil {
		if errors.Cause(err) == ErrNotInMergeGroup {
			return []int{classID}, nil
		}
		return nil, errors.Wrap(err, "getting merge entry")
	}

	members, err := svc.repo.QueryMergeGroup(ctx, entry.GroupID)
	if err != nil {
		return nil, errors.Wrap(err, "querying merge group")
	}
	ids := make([]int, 0, len(members))
	for _, m := range members {
		if ignoreMergeOrder || m.MergeOrder <= entry.MergeOrder {
			ids = append(ids, m.ClassID)
		}
	}
	return ids, nil
}

// GetMergeGroup returns the entries of the class's group.
func (svc *Service) GetMergeGroup(ctx context.Context, classID int) ([]MergeGroupEntry, error) {
	entry, err := svc.repo.GetMergeEntry(ctx, classID)
	if err != nil {
		return nil, err
	}
	return svc.repo.QueryMergeGroup(ctx, entry.GroupID)
}

func (svc *Service) GetWaitingRoomOverride(ctx context.Context, classID int) (WaitingRoomOverride, error) {
	return svc.repo.GetWaitingRoomOverride(ctx, classID)
}

// SetWaitingRoomOverride records the override and puts the class in a merge group.
func (svc *Service) SetWaitingRoomOverride(ctx context.Context, classID int) (created bool, groupID int, err error) {
	if _, err = svc.roster.GetClass(ctx, classID); err != nil {
		return false, 0, err
	}
	created, err = svc.repo.CreateWaitingRoomOverride(ctx, classID)
	if err != nil {
		return false, 0, errors.Wrap(err, "creating waiting room override")
	}
	groupID, err = svc.AddClassToMergeGroup(ctx, classID)
	if err != nil {
		return created, 0, errors.Wrapf(err, "adding class %d to a merge group", classID)
	}
	return created, groupID, nil
}

// RemoveWaitingRoomOverride deletes the override. A small class also leaves its merge group.
func (svc *Service) RemoveWaitingRoomOverride(ctx context.Context, classID int) (bool, error) {
	cls, err := svc.roster.GetClass(ctx, classID)
	if err != nil {
		return false, err
	}
	deleted, err := svc.repo.DeleteWaitingRoomOverride(ctx, classID)
	if err != nil {
		return false, errors.Wrap(err, "deleting waiting room override")
	}
	if cls.SmallClass {
		if _, err := svc.RemoveClassFromMergeGroup(ctx, classID); err != nil {
			return deleted, err
		}
	}
	return deleted, nil
}

// ClassSetup merges asynchronous and small classes as soon as they are created.
func (svc *Service) ClassSetup(ctx context.Context, cls roster.Class) error {
	if !(cls.Asynchronous || cls.SmallClass) {
		return nil
	}
	if _, err := svc.AddClassToMergeGroup(ctx, cls.ID); err != nil {
		if errors.Cause(err) == ErrNoMergeCandidate {
			svc.logger.Info("no merge candidate for new class", map[string]interface{}{"class_id": cls.ID})
			return nil
		}
		return err
	}
	return nil
}
