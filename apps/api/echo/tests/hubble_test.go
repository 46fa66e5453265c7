package tests

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/cosmicds/cds-api/core/hubble"
	"github.com/cosmicds/cds-api/tests"
)

func measurementBody(t *testing.T, studentID int, galaxy interface{}, extra ...map[string]interface{}) []byte {
	body := map[string]interface{}{
		"student_id":     studentID,
		"obs_wave_value": 6700,
		"velocity_value": 5000,
		"ang_size_value": 40,
		"est_dist_value": 50,
	}
	switch g := galaxy.(type) {
	case int:
		body["galaxy_id"] = g
	case string:
		body["galaxy_name"] = g
	}
	for _, e := range extra {
		for k, v := range e {
			body[k] = v
		}
	}
	return marshallObj(t, body)
}

func submitStatus(status string, success bool) []byte {
	return []byte(fmt.Sprintf(`"status":%q,"success":%t`, status, success))
}

func TestSubmitMeasurement(t *testing.T) {
	e := setup(t)
	student := testutil.CreateStudent(t, e.rosterRepo, "ada", false, false)
	galaxy := testutil.CreateGalaxy(t, e.hubbleRepo, "g1.fits", "Sp")

	tests := []struct {
		name       string
		body       []byte
		wantCode   int
		wantStatus string
	}{
		{"created", measurementBody(t, student.ID, galaxy.ID), http.StatusOK, "measurement_created"},
		{"updated by name", measurementBody(t, student.ID, "g1"), http.StatusOK, "measurement_updated"},
		{"unknown student", measurementBody(t, 999, galaxy.ID), http.StatusNotFound, "no_such_student"},
		{"missing student", measurementBody(t, 0, galaxy.ID), http.StatusBadRequest, "bad_request"},
		{"missing galaxy", measurementBody(t, student.ID, nil), http.StatusBadRequest, "bad_request"},
		{"malformed", []byte(`{"student_id": "one"`), http.StatusBadRequest, "bad_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.do(http.MethodPut, "/hubbles_law/submit-measurement", tt.body)
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			body := decode(t, rec)
			assert.Equal(t, tt.wantStatus, body["status"])
			assert.Equal(t, tt.wantCode == http.StatusOK, body["success"])
			assert.Contains(t, body, "measurement")
		})
	}

	rec := e.do(http.MethodGet, "/hubbles_law/measurements/"+strconv.Itoa(student.ID))
	require.Equal(t, http.StatusOK, rec.Code)
	measurements := decode(t, rec)["measurements"].([]interface{})
	require.Len(t, measurements, 1)
	m := measurements[0].(map[string]interface{})
	assert.Equal(t, float64(5000), m["velocity_value"])
	assert.Equal(t, "g1.fits", m["galaxy"].(map[string]interface{})["name"])

	runTests(t, e.app, []httpTest{
		{
			name:     "unknown student measurements",
			method:   http.MethodGet,
			path:     "/hubbles_law/measurements/999",
			wantCode: http.StatusNotFound,
			wantData: []byte(`{"student_id": 999, "measurements": null}`),
		},
		{
			name:     "missing measurement",
			method:   http.MethodGet,
			path:     "/hubbles_law/measurements/1/2",
			wantCode: http.StatusNotFound,
			wantData: []byte(`{"student_id": 1, "galaxy_id": 2, "measurement": null}`),
		},
		{
			name:     "existing measurement",
			method:   http.MethodGet,
			path:     "/hubbles_law/measurements/1/1",
			wantCode: http.StatusOK,
		},
		{
			name:     "remove by name",
			method:   http.MethodDelete,
			path:     "/hubbles_law/measurement/1/g1.fits",
			wantCode: http.StatusOK,
			wantData: []byte(`{"student_id": 1, "galaxy_id": 1, ` + string(submitStatus("measurement_deleted", true)) + `}`),
		},
		{
			name:     "remove again",
			method:   http.MethodDelete,
			path:     "/hubbles_law/measurement/1/1",
			wantCode: http.StatusNotFound,
			wantData: []byte(`{"student_id": 1, "galaxy_id": 1, ` + string(submitStatus("no_such_measurement", false)) + `}`),
		},
		{
			name:     "remove with invalid student",
			method:   http.MethodDelete,
			path:     "/hubbles_law/measurement/abc/1",
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"student_id": 0, "galaxy_id": 1, ` + string(submitStatus("bad_request", false)) + `}`),
		},
	})
}

func TestSampleMeasurements(t *testing.T) {
	e := setup(t)
	student := testutil.CreateStudent(t, e.rosterRepo, "ada", false, false)
	galaxy := testutil.CreateGalaxy(t, e.hubbleRepo, "g1.fits", "Sp")

	rec := e.do(http.MethodPut, "/hubbles_law/sample-measurement",
		measurementBody(t, student.ID, galaxy.ID, map[string]interface{}{"measurement_number": "second"}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "measurement_created", body["status"])
	assert.Equal(t, "second", body["measurement"].(map[string]interface{})["measurement_number"])

	rec = e.do(http.MethodPut, "/hubbles_law/sample-measurement",
		measurementBody(t, student.ID, galaxy.ID, map[string]interface{}{"measurement_number": "third"}))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, "bad_request", body["status"])
	assert.Equal(t, false, body["success"])

	rec = e.do(http.MethodGet, "/hubbles_law/sample-measurements/1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["measurements"], 1)

	rec = e.do(http.MethodGet, "/hubbles_law/sample-measurements/second")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeList(t, rec), 1)

	rec = e.do(http.MethodGet, "/hubbles_law/sample-measurements")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeList(t, rec), 1)

	runTests(t, e.app, []httpTest{
		{
			name:     "invalid measurement number",
			method:   http.MethodGet,
			path:     "/hubbles_law/sample-measurements/third",
			wantCode: http.StatusBadRequest,
			wantData: []byte(`null`),
		},
		{
			name:     "missing sample",
			method:   http.MethodGet,
			path:     "/hubbles_law/sample-measurements/1/first",
			wantCode: http.StatusNotFound,
			wantData: []byte(`{"student_id": 1, "measurement": null}`),
		},
		{
			name:     "existing sample",
			method:   http.MethodGet,
			path:     "/hubbles_law/sample-measurements/1/second",
			wantCode: http.StatusOK,
		},
		{
			name:     "remove sample",
			method:   http.MethodDelete,
			path:     "/hubbles_law/sample-measurement/1/second",
			wantCode: http.StatusOK,
			wantData: []byte(`{"student_id": 1, ` + string(submitStatus("measurement_deleted", true)) + `}`),
		},
		{
			name:     "remove sample again",
			method:   http.MethodDelete,
			path:     "/hubbles_law/sample-measurement/1/second",
			wantCode: http.StatusNotFound,
			wantData: []byte(`{"student_id": 1, ` + string(submitStatus("no_such_measurement", false)) + `}`),
		},
	})
}

func TestStudentAndClassData(t *testing.T) {
	e := setup(t)
	student := testutil.CreateStudent(t, e.rosterRepo, "ada", false, false)
	cls := testutil.CreateClass(t, e.rosterRepo, "class", false)

	rec := e.do(http.MethodPut, "/hubbles_law/student-data",
		marshallObj(t, map[string]interface{}{"student_id": student.ID, "age_value": 13.8, "age_unit": "Gyr"}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 13.8, decode(t, rec)["age_value"])

	rec = e.do(http.MethodPut, "/hubbles_law/class-data",
		marshallObj(t, map[string]interface{}{"class_id": cls.ID, "hubble_fit_value": 70.2}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 70.2, decode(t, rec)["hubble_fit_value"])

	runTests(t, e.app, []httpTest{
		{
			name:     "student data without student",
			method:   http.MethodPut,
			path:     "/hubbles_law/student-data",
			body:     []byte(`{"age_value": 13.8}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"student_id": "this field is required"}`),
		},
		{
			name:     "student data for unknown student",
			method:   http.MethodPut,
			path:     "/hubbles_law/student-data",
			body:     []byte(`{"student_id": 999}`),
			wantCode: http.StatusNotFound,
			wantData: marshallObj(t, httpErr{Error: "student not found"}),
		},
		{
			name:     "class data for unknown class",
			method:   http.MethodPut,
			path:     "/hubbles_law/class-data",
			body:     []byte(`{"class_id": 999}`),
			wantCode: http.StatusNotFound,
			wantData: marshallObj(t, httpErr{Error: "class not found"}),
		},
	})
}

func TestClassMeasurements(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	cls, students := testutil.CreateClassWithStudents(t, e.rosterRepo, "class", 3)
	loner := testutil.CreateStudent(t, e.rosterRepo, "loner", false, false)

	var galaxyIDs []int
	for i := 0; i < hubble.CompleteMeasurementsThreshold; i++ {
		galaxyIDs = append(galaxyIDs, testutil.CreateGalaxy(t, e.hubbleRepo, fmt.Sprintf("g%d.fits", i), "Sp").ID)
	}
	for _, s := range append(students, loner) {
		for _, id := range galaxyIDs {
			galaxyID := id
			_, result, err := e.hubbleSvc.SubmitMeasurement(ctx, hubble.NewMeasurement{
				StudentID: s.ID,
				GalaxyID:  &galaxyID,
				MeasurementValues: hubble.MeasurementValues{
					ObsWaveValue:  null.Float64From(6700),
					VelocityValue: null.Float64From(5000),
					AngSizeValue:  null.Float64From(40),
					EstDistValue:  null.Float64From(50),
				},
			})
			require.NoError(t, err)
			require.Equal(t, hubble.MeasurementCreated, result)
		}
	}

	first := students[0].ID
	path := fmt.Sprintf("/hubbles_law/class-measurements/%d/%d", first, cls.ID)

	count := func(t *testing.T, path string) int {
		rec := e.do(http.MethodGet, path)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		return len(decode(t, rec)["measurements"].([]interface{}))
	}

	t.Run("class cohort", func(t *testing.T) {
		assert.Equal(t, 15, count(t, path))
		assert.Equal(t, 15, count(t, fmt.Sprintf("/hubbles_law/stage-3-data/%d/%d", first, cls.ID)))
		assert.Equal(t, 10, count(t, path+"?exclude_student=true"))
		assert.Equal(t, 15, count(t, path+"?complete_only=true"))
	})

	t.Run("last checked", func(t *testing.T) {
		future := time.Now().Add(time.Hour).UnixNano() / 1e6
		past := time.Now().Add(-time.Hour).UnixNano() / 1e6
		assert.Equal(t, 0, count(t, path+"?last_checked="+strconv.FormatInt(future, 10)))
		assert.Equal(t, 15, count(t, path+"?last_checked="+strconv.FormatInt(past, 10)))
	})

	t.Run("peers", func(t *testing.T) {
		rec := e.do(http.MethodGet, "/hubbles_law/class-measurements/"+strconv.Itoa(loner.ID))
		require.Equal(t, http.StatusOK, rec.Code)
		body := decode(t, rec)
		assert.Nil(t, body["class_id"])
		assert.Len(t, body["measurements"], 5)

		state := marshallObj(t, map[string]interface{}{"class_data_students": []int{first}})
		rec = e.do(http.MethodPut, fmt.Sprintf("/story-state/%d/hubbles_law", loner.ID), state)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, 10, count(t, "/hubbles_law/class-measurements/"+strconv.Itoa(loner.ID)))
		assert.Equal(t, 5, count(t, "/hubbles_law/class-measurements/"+strconv.Itoa(loner.ID)+"?exclude_student=true"))
	})

	t.Run("counts", func(t *testing.T) {
		rec := e.do(http.MethodGet, fmt.Sprintf("/hubbles_law/class-measurements/size/%d/%d", first, cls.ID))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "no-cache, no-store, must-revalidate", rec.Header().Get("Cache-Control"))
		assert.Equal(t, float64(15), decode(t, rec)["measurement_count"])

		rec = e.do(http.MethodGet, fmt.Sprintf("/hubbles_law/class-measurements/students-completed/%d/%d", first, cls.ID))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, float64(3), decode(t, rec)["students_completed_measurements"])
	})

	runTests(t, e.app, []httpTest{
		{
			name:     "unknown student and class",
			method:   http.MethodGet,
			path:     "/hubbles_law/class-measurements/999/999",
			wantCode: http.StatusNotFound,
			wantData: []byte(`{"message": "Invalid student and class IDs"}`),
		},
		{
			name:     "unknown class",
			method:   http.MethodGet,
			path:     fmt.Sprintf("/hubbles_law/class-measurements/%d/999", first),
			wantCode: http.StatusNotFound,
			wantData: []byte(`{"message": "Invalid class ID"}`),
		},
		{
			name:     "unknown student",
			method:   http.MethodGet,
			path:     "/hubbles_law/class-measurements/999",
			wantCode: http.StatusNotFound,
			wantData: []byte(`{"message": "Invalid student ID"}`),
		},
	})
}

func TestAllData(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	_, students := testutil.CreateClassWithStudents(t, e.rosterRepo, "class", 2)
	galaxy := testutil.CreateGalaxy(t, e.hubbleRepo, "g1.fits", "Sp")
	for _, s := range students {
		_, _, err := e.hubbleSvc.SubmitMeasurement(ctx, hubble.NewMeasurement{
			StudentID: s.ID,
			GalaxyID:  &galaxy.ID,
			MeasurementValues: hubble.MeasurementValues{
				ObsWaveValue:  null.Float64From(6700),
				VelocityValue: null.Float64From(5000),
				AngSizeValue:  null.Float64From(40),
				EstDistValue:  null.Float64From(50),
			},
		})
		require.NoError(t, err)
	}

	rec := e.do(http.MethodGet, "/hubbles_law/all-data")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Len(t, body["measurements"], 2)
	assert.Contains(t, body, "studentData")
	assert.Contains(t, body, "classData")

	rec = e.do(http.MethodGet, "/hubbles_law/all-data?minimal=true")
	require.Equal(t, http.StatusOK, rec.Code)
	m := decode(t, rec)["measurements"].([]interface{})[0].(map[string]interface{})
	assert.NotContains(t, m, "obs_wave_value")

	past := time.Now().Add(-time.Hour).UnixNano() / 1e6
	rec = e.do(http.MethodGet, "/hubbles_law/all-data?before="+strconv.FormatInt(past, 10))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode(t, rec)["measurements"])
}
