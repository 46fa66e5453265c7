package testutil

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/cosmicds/cds-api/core"
	"github.com/cosmicds/cds-api/core/hubble"
	"github.com/cosmicds/cds-api/core/roster"
	"github.com/cosmicds/cds-api/storage/database"
)

// PrepareDB returns a migrated in-memory sqlite database, closed when the test ends.
func PrepareDB(t *testing.T) *sqlx.DB {
	t.Helper()
	conf := &core.Config{
		TestMode: true,
		Database: core.DatabaseConfig{Engine: "sqlite", Path: ":memory:"},
	}
	db, err := database.Open(conf)
	if err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := database.Migrate(db, "up"); err != nil {
		t.Fatalf("PrepareDB() failed to migrate: %v", err)
	}
	return db
}

// PreparePostgresDB migrates the database at $TEST_DATABASE_URL and resets it when the test ends.
// The test is skipped when the variable is not set.
func PreparePostgresDB(t *testing.T) *sqlx.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("PreparePostgresDB() failed: %v", err)
	}
	if err := database.Migrate(db, "up"); err != nil {
		t.Fatalf("PreparePostgresDB() failed to migrate: %v", err)
	}
	t.Cleanup(func() {
		if err := database.Migrate(db, "reset"); err != nil {
			t.Errorf("PreparePostgresDB() failed to reset: %v", err)
		}
		_ = db.Close()
	})
	return db
}

func CreateStudent(t *testing.T, repo roster.Repository, username string, seed, dummy bool) roster.Student {
	t.Helper()
	student, err := repo.CreateStudent(context.Background(), roster.Student{
		Username:  username,
		Email:     username + "@test.cosmicds.org",
		Seed:      seed,
		Dummy:     dummy,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateStudent() failed: %v", err)
	}
	return student
}

func CreateClass(t *testing.T, repo roster.Repository, name string, small bool) roster.Class {
	t.Helper()
	cls, err := repo.CreateClass(context.Background(), roster.Class{
		EducatorID: 1,
		Name:       name,
		Code:       uuid.NewString(),
		SmallClass: small,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateClass() failed: %v", err)
	}
	return cls
}

func Enroll(t *testing.T, repo roster.Repository, classID int, studentIDs ...int) {
	t.Helper()
	for _, id := range studentIDs {
		if err := repo.AddStudentToClass(context.Background(), id, classID); err != nil {
			t.Fatalf("Enroll() failed: %v", err)
		}
	}
}

// CreateClassWithStudents creates a class with size new real students enrolled.
func CreateClassWithStudents(t *testing.T, repo roster.Repository, name string, size int) (roster.Class, []roster.Student) {
	t.Helper()
	cls := CreateClass(t, repo, name, false)
	students := make([]roster.Student, 0, size)
	for i := 0; i < size; i++ {
		s := CreateStudent(t, repo, fmt.Sprintf("%s-student-%d", name, i), false, false)
		Enroll(t, repo, cls.ID, s.ID)
		students = append(students, s)
	}
	return cls, students
}

func CreateGalaxy(t *testing.T, repo hubble.Repository, name, typ string) hubble.FlaggedGalaxy {
	t.Helper()
	galaxy, err := repo.CreateGalaxy(context.Background(), hubble.FlaggedGalaxy{
		Galaxy: hubble.Galaxy{Name: name, Type: typ, RA: 10.5, Decl: -3.25, Z: 0.02, Element: "H-α"},
	})
	if err != nil {
		t.Fatalf("CreateGalaxy() failed: %v", err)
	}
	return galaxy
}

// Logger discards everything.
type Logger struct{}

var _ core.Logger = Logger{}

func (Logger) Debug(string, ...interface{}) {}
func (Logger) Info(string, ...interface{})  {}
func (Logger) Warn(string, ...interface{})  {}
func (Logger) Error(string, ...interface{}) {}
func (Logger) Fatal(string, ...interface{}) {}
