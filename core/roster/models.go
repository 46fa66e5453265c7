package roster

import (
	"context"
	"encoding/json"
	"time"
)

type (
	Student struct {
		ID        int       `json:"id" db:"id"`
		Username  string    `json:"username" db:"username"`
		Email     string    `json:"email" db:"email"`
		Seed      bool      `json:"seed" db:"seed"`
		Dummy     bool      `json:"dummy" db:"dummy"`
		CreatedAt time.Time `json:"created_at" db:"created_at"`
	}

	Class struct {
		ID           int       `json:"id" db:"id"`
		EducatorID   int       `json:"educator_id" db:"educator_id"`
		Name         string    `json:"name" db:"name"`
		Code         string    `json:"code" db:"code"`
		Asynchronous bool      `json:"asynchronous" db:"asynchronous"`
		SmallClass   bool      `json:"small_class" db:"small_class"`
		CreatedAt    time.Time `json:"created_at" db:"created_at"`
	}

	// StoryState is the free-form progress blob a student's lesson keeps for a story.
	StoryState struct {
		StudentID    int             `json:"student_id"`
		StoryName    string          `json:"story_name"`
		State        json.RawMessage `json:"state"`
		LastModified time.Time       `json:"last_modified"`
	}

	NewStudent struct {
		Username string `json:"username" validate:"required,max=50"`
		Email    string `json:"email" validate:"omitempty,email"`
		Seed     bool   `json:"seed"`
		Dummy    bool   `json:"dummy"`
	}

	NewClass struct {
		EducatorID   int    `json:"educator_id" validate:"required,min=1"`
		Name         string `json:"name" validate:"required,max=50"`
		Asynchronous bool   `json:"asynchronous"`
		SmallClass   bool   `json:"small_class"`
	}

	JoinClass struct {
		StudentID int    `json:"student_id" validate:"required,min=1"`
		Code      string `json:"code" validate:"required"`
	}

	// ClassHook runs after a class has been stored.
	ClassHook func(ctx context.Context, cls Class) error
)

// classData is the part of a story state the cohort queries read.
type classData struct {
	ClassDataStudents []int `json:"class_data_students"`
}
