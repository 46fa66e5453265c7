package hubble

import (
	"net/http"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/cosmicds/cds-api/core"
)

const (
	StoryName = core.StoryHubblesLaw

	// MinMergeClassSize is the enrolment a class needs before others can be merged into it.
	MinMergeClassSize = 15
	// CompleteMeasurementsThreshold is the number of complete measurements that marks a student as done.
	CompleteMeasurementsThreshold = 5
	// ClassDataMinMeasurements is the number of complete measurements a class needs to show up in exports.
	ClassDataMinMeasurements = 13 * 5

	GalaxyFileExt = ".fits"

	newGalaxiesMinID = 1388
	newGalaxiesMaxID = 1788
)

type (
	Galaxy struct {
		ID      int     `json:"id" db:"id"`
		RA      float64 `json:"ra" db:"ra"`
		Decl    float64 `json:"decl" db:"decl"`
		Z       float64 `json:"z" db:"z"`
		Type    string  `json:"type" db:"type"`
		Name    string  `json:"name" db:"name"`
		Element string  `json:"element" db:"element"`
	}

	// GalaxyFlags are the moderation counters and markers kept per galaxy.
	GalaxyFlags struct {
		IsBad             int `json:"is_bad" db:"is_bad"`
		SpecIsBad         int `json:"spec_is_bad" db:"spec_is_bad"`
		IsSample          int `json:"is_sample" db:"is_sample"`
		MarkedBad         int `json:"marked_bad" db:"marked_bad"`
		SpecMarkedBad     int `json:"spec_marked_bad" db:"spec_marked_bad"`
		TileloadMarkedBad int `json:"tileload_marked_bad" db:"tileload_marked_bad"`
		SpecChecked       int `json:"spec_checked" db:"spec_checked"`
		SpecIsGood        int `json:"spec_is_good" db:"spec_is_good"`
	}

	FlaggedGalaxy struct {
		Galaxy
		GalaxyFlags
	}

	// GalaxyCounter names one of the "marked bad" counters.
	GalaxyCounter string

	GalaxyFilter struct {
		Types         []string
		NotBad        bool // is_bad = 0 AND spec_is_bad = 0
		NotSample     bool
		SampleOnly    bool
		UncheckedOnly bool // spec_checked = 0
		MinID, MaxID  int  // inclusive; 0 means unbounded
	}

	MeasurementValues struct {
		RestWaveValue null.Float64 `json:"rest_wave_value" db:"rest_wave_value"`
		RestWaveUnit  null.String  `json:"rest_wave_unit" db:"rest_wave_unit"`
		ObsWaveValue  null.Float64 `json:"obs_wave_value" db:"obs_wave_value"`
		ObsWaveUnit   null.String  `json:"obs_wave_unit" db:"obs_wave_unit"`
		VelocityValue null.Float64 `json:"velocity_value" db:"velocity_value"`
		VelocityUnit  null.String  `json:"velocity_unit" db:"velocity_unit"`
		AngSizeValue  null.Float64 `json:"ang_size_value" db:"ang_size_value"`
		AngSizeUnit   null.String  `json:"ang_size_unit" db:"ang_size_unit"`
		EstDistValue  null.Float64 `json:"est_dist_value" db:"est_dist_value"`
		EstDistUnit   null.String  `json:"est_dist_unit" db:"est_dist_unit"`
		Brightness    null.Float64 `json:"brightness" db:"brightness"`
	}

	Measurement struct {
		StudentID int `json:"student_id" db:"student_id"`
		GalaxyID  int `json:"galaxy_id" db:"galaxy_id"`
		MeasurementValues
		LastModified time.Time `json:"last_modified" db:"last_modified"`
		Galaxy       *Galaxy   `json:"galaxy,omitempty" db:"galaxy"`
	}

	SampleMeasurement struct {
		Measurement
		MeasurementNumber string `json:"measurement_number" db:"measurement_number"`
	}

	// NewMeasurement is a submission payload. The galaxy is given by id or by file name.
	NewMeasurement struct {
		StudentID  int    `json:"student_id" validate:"required,min=1"`
		GalaxyID   *int   `json:"galaxy_id,omitempty" validate:"required_without=GalaxyName"`
		GalaxyName string `json:"galaxy_name,omitempty" validate:"required_without=GalaxyID"`
		MeasurementValues
	}

	NewSampleMeasurement struct {
		NewMeasurement
		MeasurementNumber string `json:"measurement_number" validate:"measurement_number"`
	}

	MergeGroupEntry struct {
		ClassID    int `json:"class_id" db:"class_id"`
		GroupID    int `json:"group_id" db:"group_id"`
		MergeOrder int `json:"merge_order" db:"merge_order"`
	}

	// MergeCandidate describes a class that others may be merged with.
	// GroupSize and MaxMergeOrder describe the whole group the class belongs to (1 and 0 when ungrouped).
	MergeCandidate struct {
		ClassID       int      `json:"class_id" db:"class_id"`
		GroupID       null.Int `json:"group_id" db:"group_id"`
		GroupSize     int      `json:"group_size" db:"group_size"`
		MaxMergeOrder int      `json:"max_merge_order" db:"max_merge_order"`
	}

	WaitingRoomOverride struct {
		ClassID   int       `json:"class_id" db:"class_id"`
		CreatedAt time.Time `json:"created_at" db:"created_at"`
	}

	// CohortFilter narrows cohort measurement reads. Nil id lists mean no restriction.
	CohortFilter struct {
		ClassIDs         []int
		StudentIDs       []int
		ExcludeStudentID int
		CompleteOnly     bool
		StoryName        string
	}

	// ExportFilter narrows the global exports.
	ExportFilter struct {
		Before          *time.Time
		ExcludeClassIDs []int
		CompleteOnly    bool
		StoryName       string
	}

	StudentData struct {
		StudentID      int          `json:"student_id" db:"student_id"`
		AgeValue       null.Float64 `json:"age_value" db:"age_value"`
		AgeUnit        null.String  `json:"age_unit" db:"age_unit"`
		HubbleFitValue null.Float64 `json:"hubble_fit_value" db:"hubble_fit_value"`
		HubbleFitUnit  null.String  `json:"hubble_fit_unit" db:"hubble_fit_unit"`
		LastDataUpdate time.Time    `json:"last_data_update" db:"last_data_update"`
	}

	ClassData struct {
		ClassID        int          `json:"class_id" db:"class_id"`
		AgeValue       null.Float64 `json:"age_value" db:"age_value"`
		AgeUnit        null.String  `json:"age_unit" db:"age_unit"`
		HubbleFitValue null.Float64 `json:"hubble_fit_value" db:"hubble_fit_value"`
		HubbleFitUnit  null.String  `json:"hubble_fit_unit" db:"hubble_fit_unit"`
		LastDataUpdate time.Time    `json:"last_data_update" db:"last_data_update"`
	}

	// ClassMeasurement is a measurement together with the class it is exported under.
	ClassMeasurement struct {
		Measurement
		ClassID int `json:"class_id" db:"class_id"`
	}

	StudentDataRow struct {
		StudentData
		ClassID int  `json:"class_id" db:"class_id"`
		Seed    bool `json:"seed" db:"seed"`
		Dummy   bool `json:"dummy" db:"dummy"`
	}

	ClassDataRow struct {
		ClassData
		CanonicalClassID int `json:"canonical_class_id" db:"-"`
	}

	MinimalMeasurement struct {
		StudentID     int          `json:"student_id"`
		GalaxyID      int          `json:"galaxy_id"`
		VelocityValue null.Float64 `json:"velocity_value"`
		EstDistValue  null.Float64 `json:"est_dist_value"`
		ClassID       int          `json:"class_id"`
	}

	MinimalStudentData struct {
		StudentID int          `json:"student_id"`
		AgeValue  null.Float64 `json:"age_value"`
	}

	MinimalClassData struct {
		ClassID  int          `json:"class_id"`
		AgeValue null.Float64 `json:"age_value"`
	}

	AllDataOptions struct {
		Before  *time.Time
		Minimal bool
		// ClassID excludes every class of this class's merge group.
		ClassID *int
	}

	// AllData holds the three exports; each list holds full or minimal rows depending on AllDataOptions.Minimal.
	AllData struct {
		Measurements interface{} `json:"measurements"`
		StudentData  interface{} `json:"studentData"`
		ClassData    interface{} `json:"classData"`
	}

	CohortQuery struct {
		StudentID int
		ClassID   *int
		// LastChecked is an epoch timestamp in milliseconds.
		LastChecked       *int64
		ExcludeIncomplete bool
		ExcludeRequester  bool
	}

	SubmitResult string
	RemoveResult string
)

const (
	CounterMarkedBad         GalaxyCounter = "marked_bad"
	CounterSpecMarkedBad     GalaxyCounter = "spec_marked_bad"
	CounterTileloadMarkedBad GalaxyCounter = "tileload_marked_bad"
)

const (
	SubmitBadRequest   SubmitResult = "bad_request"
	MeasurementCreated SubmitResult = "measurement_created"
	MeasurementUpdated SubmitResult = "measurement_updated"
	NoSuchStudent      SubmitResult = "no_such_student"
	WriteFailed        SubmitResult = "write_failed"
)

const (
	RemoveBadRequest   RemoveResult = "bad_request"
	MeasurementDeleted RemoveResult = "measurement_deleted"
	NoSuchMeasurement  RemoveResult = "no_such_measurement"
)

const (
	sampleNumberFirst  = "first"
	sampleNumberSecond = "second"
)

func (c GalaxyCounter) Valid() bool {
	switch c {
	case CounterMarkedBad, CounterSpecMarkedBad, CounterTileloadMarkedBad:
		return true
	}
	return false
}

func (r SubmitResult) Success() bool {
	return r == MeasurementCreated || r == MeasurementUpdated
}

func (r SubmitResult) StatusCode() int {
	switch r {
	case SubmitBadRequest:
		return http.StatusBadRequest
	case NoSuchStudent:
		return http.StatusNotFound
	case WriteFailed:
		return http.StatusInternalServerError
	}
	return http.StatusOK
}

func (r RemoveResult) Success() bool {
	return r == MeasurementDeleted
}

func (r RemoveResult) StatusCode() int {
	switch r {
	case RemoveBadRequest:
		return http.StatusBadRequest
	case NoSuchMeasurement:
		return http.StatusNotFound
	}
	return http.StatusOK
}

// Complete reports whether every value the analysis needs has been measured.
func (v MeasurementValues) Complete() bool {
	return v.ObsWaveValue.Valid && v.VelocityValue.Valid && v.AngSizeValue.Valid && v.EstDistValue.Valid
}

func (g FlaggedGalaxy) Usable() bool {
	return g.IsBad == 0 && g.SpecIsBad == 0 && g.IsSample == 0
}

func (m ClassMeasurement) Minimal() MinimalMeasurement {
	return MinimalMeasurement{
		StudentID:     m.StudentID,
		GalaxyID:      m.GalaxyID,
		VelocityValue: m.VelocityValue,
		EstDistValue:  m.EstDistValue,
		ClassID:       m.ClassID,
	}
}

func (d StudentDataRow) Minimal() MinimalStudentData {
	return MinimalStudentData{StudentID: d.StudentID, AgeValue: d.AgeValue}
}

func (d ClassDataRow) Minimal() MinimalClassData {
	return MinimalClassData{ClassID: d.ClassID, AgeValue: d.AgeValue}
}

// Galaxies drops the moderation flags.
func Galaxies(flagged []FlaggedGalaxy) []Galaxy {
	galaxies := make([]Galaxy, 0, len(flagged))
	for _, g := range flagged {
		galaxies = append(galaxies, g.Galaxy)
	}
	return galaxies
}
