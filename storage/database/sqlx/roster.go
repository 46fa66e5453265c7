package sqlxrepos

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/cosmicds/cds-api/core/roster"
)

type rosterRepository struct {
	db *sqlx.DB
}

func NewRosterRepository(db *sqlx.DB) roster.Repository {
	return &rosterRepository{db: db}
}

func (repo *rosterRepository) CreateStudent(ctx context.Context, student roster.Student) (roster.Student, error) {
	q := repo.db.Rebind(`INSERT INTO students (username, email, seed, dummy, created_at)
		VALUES (?, ?, ?, ?, ?) RETURNING id`)
	err := repo.db.GetContext(ctx, &student.ID, q, student.Username, student.Email, student.Seed, student.Dummy, student.CreatedAt)
	if err != nil {
		return roster.Student{}, errors.Wrap(err, "inserting student")
	}
	return student, nil
}

func (repo *rosterRepository) GetStudent(ctx context.Context, id int) (roster.Student, error) {
	var student roster.Student
	q := repo.db.Rebind(`SELECT id, username, email, seed, dummy, created_at FROM students WHERE id = ?`)
	if err := repo.db.GetContext(ctx, &student, q, id); err != nil {
		if err == sql.ErrNoRows {
			return roster.Student{}, roster.ErrStudentNotFound
		}
		return roster.Student{}, errors.Wrap(err, "selecting student")
	}
	return student, nil
}

func (repo *rosterRepository) CreateClass(ctx context.Context, cls roster.Class) (roster.Class, error) {
	q := repo.db.Rebind(`INSERT INTO classes (educator_id, name, code, asynchronous, small_class, created_at)
		VALUES (?, ?, ?, ?, ?, ?) RETURNING id`)
	err := repo.db.GetContext(ctx, &cls.ID, q, cls.EducatorID, cls.Name, cls.Code, cls.Asynchronous, cls.SmallClass, cls.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return roster.Class{}, roster.ErrClassCodeExists
		}
		return roster.Class{}, errors.Wrap(err, "inserting class")
	}
	return cls, nil
}

const selectClass = `SELECT id, educator_id, name, code, asynchronous, small_class, created_at FROM classes`

func (repo *rosterRepository) getClass(ctx context.Context, where string, arg interface{}) (roster.Class, error) {
	var cls roster.Class
	if err := repo.db.GetContext(ctx, &cls, repo.db.Rebind(selectClass+" WHERE "+where), arg); err != nil {
		if err == sql.ErrNoRows {
			return roster.Class{}, roster.ErrClassNotFound
		}
		return roster.Class{}, errors.Wrap(err, "selecting class")
	}
	return cls, nil
}

func (repo *rosterRepository) GetClass(ctx context.Context, id int) (roster.Class, error) {
	return repo.getClass(ctx, "id = ?", id)
}

func (repo *rosterRepository) GetClassByCode(ctx context.Context, code string) (roster.Class, error) {
	return repo.getClass(ctx, "code = ?", code)
}

func (repo *rosterRepository) AddStudentToClass(ctx context.Context, studentID, classID int) error {
	q := repo.db.Rebind(`INSERT INTO students_classes (student_id, class_id) VALUES (?, ?) ON CONFLICT DO NOTHING`)
	if _, err := repo.db.ExecContext(ctx, q, studentID, classID); err != nil {
		return errors.Wrap(err, "inserting student class")
	}
	return nil
}

func (repo *rosterRepository) ClassSize(ctx context.Context, classID int) (int, error) {
	if _, err := repo.GetClass(ctx, classID); err != nil {
		return 0, err
	}
	var size int
	q := repo.db.Rebind(`SELECT COUNT(*) FROM students_classes WHERE class_id = ?`)
	if err := repo.db.GetContext(ctx, &size, q, classID); err != nil {
		return 0, errors.Wrap(err, "counting class students")
	}
	return size, nil
}

func (repo *rosterRepository) IgnoreStudent(ctx context.Context, studentID int, storyName string) error {
	q := repo.db.Rebind(`INSERT INTO ignore_students (student_id, story_name) VALUES (?, ?) ON CONFLICT DO NOTHING`)
	if _, err := repo.db.ExecContext(ctx, q, studentID, null.NewString(storyName, storyName != "")); err != nil {
		return errors.Wrap(err, "inserting ignored student")
	}
	return nil
}

func (repo *rosterRepository) IgnoreClass(ctx context.Context, classID int, storyName string) error {
	q := repo.db.Rebind(`INSERT INTO ignore_classes (class_id, story_name) VALUES (?, ?) ON CONFLICT DO NOTHING`)
	if _, err := repo.db.ExecContext(ctx, q, classID, null.NewString(storyName, storyName != "")); err != nil {
		return errors.Wrap(err, "inserting ignored class")
	}
	return nil
}

type storyStateRow struct {
	StudentID    int       `db:"student_id"`
	StoryName    string    `db:"story_name"`
	State        string    `db:"story_state"`
	LastModified time.Time `db:"last_modified"`
}

func (repo *rosterRepository) GetStoryState(ctx context.Context, studentID int, storyName string) (roster.StoryState, error) {
	var row storyStateRow
	q := repo.db.Rebind(`SELECT student_id, story_name, story_state, last_modified FROM story_states
		WHERE student_id = ? AND story_name = ?`)
	if err := repo.db.GetContext(ctx, &row, q, studentID, storyName); err != nil {
		if err == sql.ErrNoRows {
			return roster.StoryState{}, roster.ErrStoryStateNotFound
		}
		return roster.StoryState{}, errors.Wrap(err, "selecting story state")
	}
	return roster.StoryState{
		StudentID:    row.StudentID,
		StoryName:    row.StoryName,
		State:        json.RawMessage(row.State),
		LastModified: row.LastModified,
	}, nil
}

func (repo *rosterRepository) SaveStoryState(ctx context.Context, state roster.StoryState) (roster.StoryState, error) {
	q := repo.db.Rebind(`INSERT INTO story_states (student_id, story_name, story_state, last_modified) VALUES (?, ?, ?, ?)
		ON CONFLICT (student_id, story_name) DO UPDATE SET story_state = excluded.story_state, last_modified = excluded.last_modified`)
	if _, err := repo.db.ExecContext(ctx, q, state.StudentID, state.StoryName, string(state.State), state.LastModified); err != nil {
		return roster.StoryState{}, errors.Wrap(err, "saving story state")
	}
	return state, nil
}
