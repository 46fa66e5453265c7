package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/cosmicds/cds-api/core/hubble"
	"github.com/cosmicds/cds-api/core/roster"
)

func (repo *hubbleRepository) GetMergeEntry(_ context.Context, classID int) (hubble.MergeGroupEntry, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if e, ok := repo.db.mergeEntries[classID]; ok {
		return e, nil
	}
	return hubble.MergeGroupEntry{}, hubble.ErrNotInMergeGroup
}

// group returns the members of a group ordered by merge order. Caller holds a lock.
func (repo *hubbleRepository) group(groupID int) []hubble.MergeGroupEntry {
	members := make([]hubble.MergeGroupEntry, 0)
	for _, e := range repo.db.mergeEntries {
		if e.GroupID == groupID {
			members = append(members, e)
		}
	}
	sort.Slice(members, func(i, j int) bool { return members[i].MergeOrder < members[j].MergeOrder })
	return members
}

func (repo *hubbleRepository) QueryMergeGroup(_ context.Context, groupID int) ([]hubble.MergeGroupEntry, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return repo.group(groupID), nil
}

func (repo *hubbleRepository) QueryMergeEntries(_ context.Context) ([]hubble.MergeGroupEntry, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	entries := make([]hubble.MergeGroupEntry, 0, len(repo.db.mergeEntries))
	for _, e := range repo.db.mergeEntries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].GroupID != entries[j].GroupID {
			return entries[i].GroupID < entries[j].GroupID
		}
		return entries[i].MergeOrder < entries[j].MergeOrder
	})
	return entries, nil
}

func (repo *hubbleRepository) QueryMergeCandidates(_ context.Context, classID, minSize int, storyName string) ([]hubble.MergeCandidate, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	candidates := make([]hubble.MergeCandidate, 0)
	for id := range repo.db.classes {
		if id == classID || repo.db.classIgnored(id, storyName) || len(repo.db.enrolments[id]) < minSize {
			continue
		}
		c := hubble.MergeCandidate{ClassID: id, GroupSize: 1}
		if e, ok := repo.db.mergeEntries[id]; ok {
			members := repo.group(e.GroupID)
			c.GroupID.SetValid(e.GroupID)
			c.GroupSize = len(members)
			c.MaxMergeOrder = members[len(members)-1].MergeOrder
		}
		candidates = append(candidates, c)
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ClassID < candidates[j].ClassID })
	return candidates, nil
}

func (repo *hubbleRepository) CreateMergeGroup(_ context.Context, candidateID, classID int) (int, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, id := range []int{candidateID, classID} {
		if _, ok := repo.db.classes[id]; !ok {
			return 0, roster.ErrClassNotFound
		}
		if _, ok := repo.db.mergeEntries[id]; ok {
			return 0, hubble.ErrAlreadyGrouped
		}
	}

	var groupID int
	for _, e := range repo.db.mergeEntries {
		if e.GroupID > groupID {
			groupID = e.GroupID
		}
	}
	groupID++
	repo.db.mergeEntries[candidateID] = hubble.MergeGroupEntry{ClassID: candidateID, GroupID: groupID, MergeOrder: 1}
	repo.db.mergeEntries[classID] = hubble.MergeGroupEntry{ClassID: classID, GroupID: groupID, MergeOrder: 2}
	return groupID, nil
}

func (repo *hubbleRepository) JoinMergeGroup(_ context.Context, classID, groupID int) (hubble.MergeGroupEntry, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.classes[classID]; !ok {
		return hubble.MergeGroupEntry{}, roster.ErrClassNotFound
	}
	if _, ok := repo.db.mergeEntries[classID]; ok {
		return hubble.MergeGroupEntry{}, hubble.ErrAlreadyGrouped
	}
	members := repo.group(groupID)
	if len(members) == 0 {
		return hubble.MergeGroupEntry{}, hubble.ErrMergeGroupNotFound
	}
	entry := hubble.MergeGroupEntry{
		ClassID:    classID,
		GroupID:    groupID,
		MergeOrder: members[len(members)-1].MergeOrder + 1,
	}
	repo.db.mergeEntries[classID] = entry
	return entry, nil
}

func (repo *hubbleRepository) RemoveFromMergeGroup(_ context.Context, classID int) (bool, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	entry, ok := repo.db.mergeEntries[classID]
	if !ok {
		return false, nil
	}
	delete(repo.db.mergeEntries, classID)
	if rest := repo.group(entry.GroupID); len(rest) == 1 {
		delete(repo.db.mergeEntries, rest[0].ClassID)
	}
	return true, nil
}

func (repo *hubbleRepository) GetWaitingRoomOverride(_ context.Context, classID int) (hubble.WaitingRoomOverride, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if o, ok := repo.db.overrides[classID]; ok {
		return o, nil
	}
	return hubble.WaitingRoomOverride{}, hubble.ErrOverrideNotFound
}

func (repo *hubbleRepository) CreateWaitingRoomOverride(_ context.Context, classID int) (bool, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.classes[classID]; !ok {
		return false, roster.ErrClassNotFound
	}
	if _, ok := repo.db.overrides[classID]; ok {
		return false, nil
	}
	repo.db.overrides[classID] = hubble.WaitingRoomOverride{ClassID: classID, CreatedAt: time.Now().UTC()}
	return true, nil
}

func (repo *hubbleRepository) DeleteWaitingRoomOverride(_ context.Context, classID int) (bool, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.overrides[classID]; !ok {
		return false, nil
	}
	delete(repo.db.overrides, classID)
	return true, nil
}
