package hubble

import (
	"context"

	"github.com/pkg/errors"

	"github.com/cosmicds/cds-api/core/roster"
)

var (
	// errors
	ErrGalaxyNotFound           = errors.New("galaxy not found")
	ErrMissingGalaxyRef         = errors.New("one of galaxy_id or galaxy_name is required")
	ErrMeasurementNotFound      = errors.New("measurement not found")
	ErrNotInMergeGroup          = errors.New("class is not in a merge group")
	ErrMergeGroupNotFound       = errors.New("merge group not found")
	ErrNoMergeCandidate         = errors.New("no class available to merge with")
	ErrAlreadyGrouped           = errors.New("class is already in a merge group")
	ErrMergeOrderTaken          = errors.New("merge order already taken in this group")
	ErrMergeConflict            = errors.New("could not add class to a merge group after repeated conflicts")
	ErrOverrideNotFound         = errors.New("waiting room override not found")
	ErrInvalidGalaxyCounter     = errors.New("invalid galaxy counter")
	ErrInvalidMeasurementNumber = errors.New("measurement number must be either 'first' or 'second'")
)

type (
	GalaxyRepository interface {
		CreateGalaxy(ctx context.Context, galaxy FlaggedGalaxy) (FlaggedGalaxy, error)
		GetGalaxy(ctx context.Context, id int) (FlaggedGalaxy, error)
		GetGalaxyByName(ctx context.Context, name string) (FlaggedGalaxy, error)
		// QueryGalaxies returns matching galaxies ordered by id.
		QueryGalaxies(ctx context.Context, filter GalaxyFilter) ([]FlaggedGalaxy, error)
		IncrementGalaxyCounter(ctx context.Context, id int, counter GalaxyCounter) error
		SetGalaxySpectrumStatus(ctx context.Context, id int, good bool) error
		// GalaxyMeasurementCounts counts measurements per galaxy made by seed or non-dummy students.
		// Galaxies without such measurements are absent from the map.
		GalaxyMeasurementCounts(ctx context.Context) (map[int]int, error)
	}

	// MeasurementRepository query methods return measurements of known galaxies only, with the galaxy attached.
	MeasurementRepository interface {
		// UpsertMeasurement inserts or updates the (student, galaxy) row atomically.
		UpsertMeasurement(ctx context.Context, m Measurement) (created bool, err error)
		GetMeasurement(ctx context.Context, studentID, galaxyID int) (Measurement, error)
		QueryStudentMeasurements(ctx context.Context, studentID int) ([]Measurement, error)
		DeleteMeasurement(ctx context.Context, studentID, galaxyID int) (bool, error)

		UpsertSampleMeasurement(ctx context.Context, m SampleMeasurement) (created bool, err error)
		GetSampleMeasurement(ctx context.Context, studentID int, number string) (SampleMeasurement, error)
		QueryStudentSampleMeasurements(ctx context.Context, studentID int) ([]SampleMeasurement, error)
		// QuerySampleMeasurements filters on measurement number when number is not empty.
		QuerySampleMeasurements(ctx context.Context, completeOnly bool, number string) ([]SampleMeasurement, error)
		DeleteSampleMeasurement(ctx context.Context, studentID int, number string) (bool, error)

		// QueryCohortMeasurements returns the measurements of the students selected by filter.
		QueryCohortMeasurements(ctx context.Context, filter CohortFilter) ([]Measurement, error)
	}

	ExportRepository interface {
		// QueryExportMeasurements returns one row per measurement and class membership of its student.
		QueryExportMeasurements(ctx context.Context, filter ExportFilter) ([]ClassMeasurement, error)
		QueryExportStudentData(ctx context.Context, filter ExportFilter) ([]StudentDataRow, error)
		// QueryExportClassData returns class data of classes whose students made at least minMeasurements complete measurements.
		QueryExportClassData(ctx context.Context, filter ExportFilter, minMeasurements int) ([]ClassData, error)
		UpsertStudentData(ctx context.Context, data StudentData) error
		UpsertClassData(ctx context.Context, data ClassData) error
	}

	MergeGroupRepository interface {
		GetMergeEntry(ctx context.Context, classID int) (MergeGroupEntry, error)
		// QueryMergeGroup returns the members of a group ordered by merge order.
		QueryMergeGroup(ctx context.Context, groupID int) ([]MergeGroupEntry, error)
		QueryMergeEntries(ctx context.Context) ([]MergeGroupEntry, error)
		// QueryMergeCandidates returns every class, other than classID and those ignored for storyName,
		// with at least minSize enrolled students.
		QueryMergeCandidates(ctx context.Context, classID, minSize int, storyName string) ([]MergeCandidate, error)
		// CreateMergeGroup atomically creates a new group with candidateID at order 1 and classID at order 2.
		// Fails with ErrAlreadyGrouped when either class already has a group.
		CreateMergeGroup(ctx context.Context, candidateID, classID int) (groupID int, err error)
		// JoinMergeGroup appends classID to an existing group with the next merge order.
		// Fails with ErrAlreadyGrouped, ErrMergeOrderTaken or ErrMergeGroupNotFound.
		JoinMergeGroup(ctx context.Context, classID, groupID int) (MergeGroupEntry, error)
		// RemoveFromMergeGroup deletes the class's entry and, if a single member remains, the whole group.
		RemoveFromMergeGroup(ctx context.Context, classID int) (bool, error)

		GetWaitingRoomOverride(ctx context.Context, classID int) (WaitingRoomOverride, error)
		CreateWaitingRoomOverride(ctx context.Context, classID int) (created bool, err error)
		DeleteWaitingRoomOverride(ctx context.Context, classID int) (bool, error)
	}

	Repository interface {
		GalaxyRepository
		MeasurementRepository
		ExportRepository
		MergeGroupRepository
	}

	// Roster is the part of the roster service the Hubble story reads.
	Roster interface {
		GetStudent(ctx context.Context, id int) (roster.Student, error)
		GetClass(ctx context.Context, id int) (roster.Class, error)
		ClassDataStudentIDs(ctx context.Context, studentID int, storyName string) ([]int, error)
	}
)
