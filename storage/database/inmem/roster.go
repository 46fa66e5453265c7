package inmemdb

import (
	"context"
	"encoding/json"

	"github.com/cosmicds/cds-api/core/roster"
)

type rosterRepository struct {
	db *DB
}

func NewRosterRepository(db *DB) roster.Repository {
	return &rosterRepository{db: db}
}

func (repo *rosterRepository) CreateStudent(_ context.Context, student roster.Student) (roster.Student, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	student.ID = repo.db.nextID("students")
	repo.db.students[student.ID] = student
	return student, nil
}

func (repo *rosterRepository) GetStudent(_ context.Context, id int) (roster.Student, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if student, ok := repo.db.students[id]; ok {
		return student, nil
	}
	return roster.Student{}, roster.ErrStudentNotFound
}

func (repo *rosterRepository) CreateClass(_ context.Context, cls roster.Class) (roster.Class, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, c := range repo.db.classes {
		if c.Code == cls.Code {
			return roster.Class{}, roster.ErrClassCodeExists
		}
	}
	cls.ID = repo.db.nextID("classes")
	repo.db.classes[cls.ID] = cls
	return cls, nil
}

func (repo *rosterRepository) GetClass(_ context.Context, id int) (roster.Class, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if cls, ok := repo.db.classes[id]; ok {
		return cls, nil
	}
	return roster.Class{}, roster.ErrClassNotFound
}

func (repo *rosterRepository) GetClassByCode(_ context.Context, code string) (roster.Class, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, cls := range repo.db.classes {
		if cls.Code == code {
			return cls, nil
		}
	}
	return roster.Class{}, roster.ErrClassNotFound
}

func (repo *rosterRepository) AddStudentToClass(_ context.Context, studentID, classID int) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.students[studentID]; !ok {
		return roster.ErrStudentNotFound
	}
	if _, ok := repo.db.classes[classID]; !ok {
		return roster.ErrClassNotFound
	}
	if repo.db.enrolments[classID] == nil {
		repo.db.enrolments[classID] = make(map[int]bool)
	}
	repo.db.enrolments[classID][studentID] = true
	return nil
}

func (repo *rosterRepository) ClassSize(_ context.Context, classID int) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if _, ok := repo.db.classes[classID]; !ok {
		return 0, roster.ErrClassNotFound
	}
	return len(repo.db.enrolments[classID]), nil
}

func (repo *rosterRepository) IgnoreStudent(_ context.Context, studentID int, storyName string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, e := range repo.db.ignoredStudents {
		if e.id == studentID && e.story == storyName {
			return nil
		}
	}
	repo.db.ignoredStudents = append(repo.db.ignoredStudents, ignoreEntry{id: studentID, story: storyName})
	return nil
}

func (repo *rosterRepository) IgnoreClass(_ context.Context, classID int, storyName string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, e := range repo.db.ignoredClasses {
		if e.id == classID && e.story == storyName {
			return nil
		}
	}
	repo.db.ignoredClasses = append(repo.db.ignoredClasses, ignoreEntry{id: classID, story: storyName})
	return nil
}

func (repo *rosterRepository) GetStoryState(_ context.Context, studentID int, storyName string) (roster.StoryState, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	state, ok := repo.db.storyStates[storyKey{studentID, storyName}]
	if !ok {
		return roster.StoryState{}, roster.ErrStoryStateNotFound
	}
	state.State = append(json.RawMessage(nil), state.State...)
	return state, nil
}

func (repo *rosterRepository) SaveStoryState(_ context.Context, state roster.StoryState) (roster.StoryState, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.students[state.StudentID]; !ok {
		return roster.StoryState{}, roster.ErrStudentNotFound
	}
	state.State = append(json.RawMessage(nil), state.State...)
	repo.db.storyStates[storyKey{state.StudentID, state.StoryName}] = state
	return state, nil
}
