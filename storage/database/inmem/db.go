package inmemdb

import (
	"sync"

	"github.com/cosmicds/cds-api/core/apikey"
	"github.com/cosmicds/cds-api/core/eclipse"
	"github.com/cosmicds/cds-api/core/hubble"
	"github.com/cosmicds/cds-api/core/roster"
)

type (
	// DB keeps every table in memory behind a single lock, enforcing the same keys and
	// uniqueness rules as the SQL schema.
	DB struct {
		mutex sync.RWMutex
		seq   map[string]int

		students        map[int]roster.Student
		classes         map[int]roster.Class
		enrolments      map[int]map[int]bool // class id -> student ids
		ignoredStudents []ignoreEntry
		ignoredClasses  []ignoreEntry
		storyStates     map[storyKey]roster.StoryState

		galaxies       map[int]hubble.FlaggedGalaxy
		measurements   map[measurementKey]hubble.Measurement
		samples        map[sampleKey]hubble.SampleMeasurement
		mergeEntries   map[int]hubble.MergeGroupEntry // class id -> entry
		overrides      map[int]hubble.WaitingRoomOverride
		hubbleStudents map[int]hubble.StudentData
		hubbleClasses  map[int]hubble.ClassData

		eclipse map[string]eclipse.Data
		apiKeys map[int]apikey.APIKey
	}

	// ignoreEntry with an empty story ignores the entity in every story.
	ignoreEntry struct {
		id    int
		story string
	}

	storyKey struct {
		studentID int
		story     string
	}

	measurementKey struct {
		studentID, galaxyID int
	}

	sampleKey struct {
		studentID, galaxyID int
		number              string
	}
)

func Open() *DB {
	return &DB{
		seq:            make(map[string]int),
		students:       make(map[int]roster.Student),
		classes:        make(map[int]roster.Class),
		enrolments:     make(map[int]map[int]bool),
		storyStates:    make(map[storyKey]roster.StoryState),
		galaxies:       make(map[int]hubble.FlaggedGalaxy),
		measurements:   make(map[measurementKey]hubble.Measurement),
		samples:        make(map[sampleKey]hubble.SampleMeasurement),
		mergeEntries:   make(map[int]hubble.MergeGroupEntry),
		overrides:      make(map[int]hubble.WaitingRoomOverride),
		hubbleStudents: make(map[int]hubble.StudentData),
		hubbleClasses:  make(map[int]hubble.ClassData),
		eclipse:        make(map[string]eclipse.Data),
		apiKeys:        make(map[int]apikey.APIKey),
	}
}

// nextID returns the next primary key of table. Caller holds the write lock.
func (db *DB) nextID(table string) int {
	db.seq[table]++
	return db.seq[table]
}

func ignored(entries []ignoreEntry, id int, story string) bool {
	for _, e := range entries {
		if e.id == id && (e.story == "" || e.story == story) {
			return true
		}
	}
	return false
}

func (db *DB) studentIgnored(studentID int, story string) bool {
	return ignored(db.ignoredStudents, studentID, story)
}

func (db *DB) classIgnored(classID int, story string) bool {
	return ignored(db.ignoredClasses, classID, story)
}

// studentClasses returns the ids of the classes the student is enrolled in. Caller holds a lock.
func (db *DB) studentClasses(studentID int) []int {
	var ids []int
	for classID, students := range db.enrolments {
		if students[studentID] {
			ids = append(ids, classID)
		}
	}
	return ids
}
