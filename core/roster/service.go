package roster

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/cosmicds/cds-api/core"
)

var (
	// errors
	ErrStudentNotFound    = errors.New("student not found")
	ErrClassNotFound      = errors.New("class not found")
	ErrStoryStateNotFound = errors.New("story state not found")
	ErrClassCodeExists    = errors.New("a class with this code already exists")
)

type (
	Repository interface {
		CreateStudent(ctx context.Context, student Student) (Student, error)
		GetStudent(ctx context.Context, id int) (Student, error)
		CreateClass(ctx context.Context, cls Class) (Class, error)
		GetClass(ctx context.Context, id int) (Class, error)
		GetClassByCode(ctx context.Context, code string) (Class, error)
		// AddStudentToClass is a no-op when the student is already enrolled.
		AddStudentToClass(ctx context.Context, studentID, classID int) error
		ClassSize(ctx context.Context, classID int) (int, error)
		IgnoreStudent(ctx context.Context, studentID int, storyName string) error
		IgnoreClass(ctx context.Context, classID int, storyName string) error
		GetStoryState(ctx context.Context, studentID int, storyName string) (StoryState, error)
		SaveStoryState(ctx context.Context, state StoryState) (StoryState, error)
	}

	Service struct {
		repo   Repository
		logger core.Logger

		mu    sync.RWMutex
		hooks []ClassHook
	}
)

func NewService(repo Repository, logger core.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// OnClassCreated registers a hook run after every class creation.
func (svc *Service) OnClassCreated(hook ClassHook) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	svc.hooks = append(svc.hooks, hook)
}

func (svc *Service) CreateStudent(ctx context.Context, ns NewStudent) (Student, error) {
	return svc.repo.CreateStudent(ctx, Student{
		Username:  core.CleanString(ns.Username),
		Email:     core.CleanString(ns.Email, true /* lower */),
		Seed:      ns.Seed,
		Dummy:     ns.Dummy,
		CreatedAt: time.Now().UTC(),
	})
}

func (svc *Service) GetStudent(ctx context.Context, id int) (Student, error) {
	return svc.repo.GetStudent(ctx, id)
}

func (svc *Service) GetClass(ctx context.Context, id int) (Class, error) {
	return svc.repo.GetClass(ctx, id)
}

// CreateClass stores the class under a fresh join code and runs the registered hooks.
// A failing hook is logged; the class is still returned.
func (svc *Service) CreateClass(ctx context.Context, nc NewClass) (Class, error) {
	cls, err := svc.repo.CreateClass(ctx, Class{
		EducatorID:   nc.EducatorID,
		Name:         core.CleanString(nc.Name),
		Code:         uuid.NewString(),
		Asynchronous: nc.Asynchronous,
		SmallClass:   nc.SmallClass,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		return Class{}, errors.Wrap(err, "creating class")
	}

	svc.mu.RLock()
	hooks := svc.hooks
	svc.mu.RUnlock()
	for _, hook := range hooks {
		if err := hook(ctx, cls); err != nil {
			svc.logger.Warn("class setup failed", err, map[string]interface{}{"class_id": cls.ID})
		}
	}
	return cls, nil
}

func (svc *Service) JoinClass(ctx context.Context, jc JoinClass) (Class, error) {
	if _, err := svc.repo.GetStudent(ctx, jc.StudentID); err != nil {
		return Class{}, err
	}
	cls, err := svc.repo.GetClassByCode(ctx, core.CleanString(jc.Code))
	if err != nil {
		return Class{}, err
	}
	if err := svc.repo.AddStudentToClass(ctx, jc.StudentID, cls.ID); err != nil {
		return Class{}, errors.Wrap(err, "adding student to class")
	}
	return cls, nil
}

func (svc *Service) ClassSize(ctx context.Context, classID int) (int, error) {
	return svc.repo.ClassSize(ctx, classID)
}

func (svc *Service) IgnoreStudent(ctx context.Context, studentID int, storyName string) error {
	if _, err := svc.repo.GetStudent(ctx, studentID); err != nil {
		return err
	}
	return svc.repo.IgnoreStudent(ctx, studentID, storyName)
}

func (svc *Service) IgnoreClass(ctx context.Context, classID int, storyName string) error {
	if _, err := svc.repo.GetClass(ctx, classID); err != nil {
		return err
	}
	return svc.repo.IgnoreClass(ctx, classID, storyName)
}

func (svc *Service) GetStoryState(ctx context.Context, studentID int, storyName string) (StoryState, error) {
	return svc.repo.GetStoryState(ctx, studentID, storyName)
}

func (svc *Service) SaveStoryState(ctx context.Context, studentID int, storyName string, state json.RawMessage) (StoryState, error) {
	if _, err := svc.repo.GetStudent(ctx, studentID); err != nil {
		return StoryState{}, err
	}
	if !json.Valid(state) {
		return StoryState{}, core.NewValidationError(nil, core.FieldError{Field: "state", Error: "state must be valid JSON"})
	}
	return svc.repo.SaveStoryState(ctx, StoryState{
		StudentID:    studentID,
		StoryName:    strings.ToLower(storyName),
		State:        state,
		LastModified: time.Now().UTC(),
	})
}

// ClassDataStudentIDs returns the peer student ids stored under "class_data_students" in the
// student's story state. A missing state or field yields an empty list.
func (svc *Service) ClassDataStudentIDs(ctx context.Context, studentID int, storyName string) ([]int, error) {
	state, err := svc.repo.GetStoryState(ctx, studentID, storyName)
	if err != nil {
		if errors.Cause(err) == ErrStoryStateNotFound {
			return nil, nil
		}
		return nil, errors.Wrap(err, "getting story state")
	}
	var data classData
	if len(state.State) == 0 {
		return nil, nil
	}
	if err := json.Unmarshal(state.State, &data); err != nil {
		// a field of another shape means no peers
		svc.logger.Debug("unreadable class_data_students", err, map[string]interface{}{"student_id": studentID})
		return nil, nil
	}
	return data.ClassDataStudents, nil
}
