package inmemdb

import (
	"context"
	"sort"

	"github.com/cosmicds/cds-api/core/hubble"
	"github.com/cosmicds/cds-api/core/roster"
)

func excluded(ids []int, id int) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

// exportClasses returns the classes under which the student's rows are exported,
// or nil when the student is ignored or a test student. Caller holds a lock.
func (repo *hubbleRepository) exportClasses(studentID int, filter hubble.ExportFilter) []int {
	s, ok := repo.db.students[studentID]
	if !ok || !(s.Seed || !s.Dummy) || repo.db.studentIgnored(studentID, filter.StoryName) {
		return nil
	}
	var classIDs []int
	for _, classID := range repo.db.studentClasses(studentID) {
		if repo.db.classIgnored(classID, filter.StoryName) || excluded(filter.ExcludeClassIDs, classID) {
			continue
		}
		classIDs = append(classIDs, classID)
	}
	sort.Ints(classIDs)
	return classIDs
}

func (repo *hubbleRepository) QueryExportMeasurements(_ context.Context, filter hubble.ExportFilter) ([]hubble.ClassMeasurement, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	rows := make([]hubble.ClassMeasurement, 0)
	for _, m := range repo.db.measurements {
		if filter.Before != nil && !m.LastModified.Before(*filter.Before) {
			continue
		}
		if filter.CompleteOnly && !m.Complete() {
			continue
		}
		for _, classID := range repo.exportClasses(m.StudentID, filter) {
			rows = append(rows, hubble.ClassMeasurement{Measurement: m, ClassID: classID})
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.StudentID != b.StudentID {
			return a.StudentID < b.StudentID
		}
		if a.GalaxyID != b.GalaxyID {
			return a.GalaxyID < b.GalaxyID
		}
		return a.ClassID < b.ClassID
	})
	return rows, nil
}

func (repo *hubbleRepository) QueryExportStudentData(_ context.Context, filter hubble.ExportFilter) ([]hubble.StudentDataRow, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	rows := make([]hubble.StudentDataRow, 0)
	for _, d := range repo.db.hubbleStudents {
		if filter.Before != nil && !d.LastDataUpdate.Before(*filter.Before) {
			continue
		}
		s := repo.db.students[d.StudentID]
		for _, classID := range repo.exportClasses(d.StudentID, filter) {
			rows = append(rows, hubble.StudentDataRow{StudentData: d, ClassID: classID, Seed: s.Seed, Dummy: s.Dummy})
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].StudentID != rows[j].StudentID {
			return rows[i].StudentID < rows[j].StudentID
		}
		return rows[i].ClassID < rows[j].ClassID
	})
	return rows, nil
}

func (repo *hubbleRepository) QueryExportClassData(_ context.Context, filter hubble.ExportFilter, minMeasurements int) ([]hubble.ClassData, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	rows := make([]hubble.ClassData, 0)
	for _, d := range repo.db.hubbleClasses {
		if filter.Before != nil && !d.LastDataUpdate.Before(*filter.Before) {
			continue
		}
		if repo.db.classIgnored(d.ClassID, filter.StoryName) || excluded(filter.ExcludeClassIDs, d.ClassID) {
			continue
		}
		var count int
		for k, m := range repo.db.measurements {
			if repo.db.enrolments[d.ClassID][k.studentID] && m.Complete() {
				count++
			}
		}
		if count >= minMeasurements {
			rows = append(rows, d)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ClassID < rows[j].ClassID })
	return rows, nil
}

func (repo *hubbleRepository) UpsertStudentData(_ context.Context, data hubble.StudentData) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.students[data.StudentID]; !ok {
		return roster.ErrStudentNotFound
	}
	repo.db.hubbleStudents[data.StudentID] = data
	return nil
}

func (repo *hubbleRepository) UpsertClassData(_ context.Context, data hubble.ClassData) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.classes[data.ClassID]; !ok {
		return roster.ErrClassNotFound
	}
	repo.db.hubbleClasses[data.ClassID] = data
	return nil
}
