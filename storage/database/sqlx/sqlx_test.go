package sqlxrepos_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/cosmicds/cds-api/core/apikey"
	"github.com/cosmicds/cds-api/core/eclipse"
	"github.com/cosmicds/cds-api/core/hubble"
	"github.com/cosmicds/cds-api/core/roster"
	sqlxrepos "github.com/cosmicds/cds-api/storage/database/sqlx"
	"github.com/cosmicds/cds-api/tests"
)

type repos struct {
	roster  roster.Repository
	hubble  hubble.Repository
	eclipse eclipse.Repository
	apiKeys apikey.Repository
}

func newRepos(db *sqlx.DB) repos {
	return repos{
		roster:  sqlxrepos.NewRosterRepository(db),
		hubble:  sqlxrepos.NewHubbleRepository(db),
		eclipse: sqlxrepos.NewEclipseRepository(db),
		apiKeys: sqlxrepos.NewAPIKeyRepository(db),
	}
}

// engines runs fn against sqlite and, when TEST_DATABASE_URL is set, postgres.
func engines(t *testing.T, fn func(t *testing.T, r repos)) {
	t.Run("sqlite", func(t *testing.T) {
		fn(t, newRepos(testutil.PrepareDB(t)))
	})
	t.Run("postgres", func(t *testing.T) {
		fn(t, newRepos(testutil.PreparePostgresDB(t)))
	})
}

func complete(velocity float64) hubble.MeasurementValues {
	return hubble.MeasurementValues{
		ObsWaveValue:  null.Float64From(6700),
		VelocityValue: null.Float64From(velocity),
		AngSizeValue:  null.Float64From(40),
		EstDistValue:  null.Float64From(50),
		EstDistUnit:   null.StringFrom("Mpc"),
	}
}

func TestRosterRepository(t *testing.T) {
	engines(t, func(t *testing.T, r repos) {
		ctx := context.Background()

		student := testutil.CreateStudent(t, r.roster, "student", true, false)
		got, err := r.roster.GetStudent(ctx, student.ID)
		require.NoError(t, err)
		assert.Equal(t, "student", got.Username)
		assert.True(t, got.Seed)
		_, err = r.roster.GetStudent(ctx, 999)
		assert.Equal(t, roster.ErrStudentNotFound, errors.Cause(err))

		cls := testutil.CreateClass(t, r.roster, "class", true)
		byCode, err := r.roster.GetClassByCode(ctx, cls.Code)
		require.NoError(t, err)
		assert.Equal(t, cls.ID, byCode.ID)
		assert.True(t, byCode.SmallClass)

		_, err = r.roster.CreateClass(ctx, roster.Class{EducatorID: 1, Name: "dup", Code: cls.Code, CreatedAt: time.Now().UTC()})
		assert.Equal(t, roster.ErrClassCodeExists, errors.Cause(err))

		testutil.Enroll(t, r.roster, cls.ID, student.ID, student.ID)
		size, err := r.roster.ClassSize(ctx, cls.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, size)

		_, err = r.roster.GetStoryState(ctx, student.ID, "hubbles_law")
		assert.Equal(t, roster.ErrStoryStateNotFound, errors.Cause(err))
		for _, state := range []string{`{"stage": 1}`, `{"stage": 2}`} {
			_, err = r.roster.SaveStoryState(ctx, roster.StoryState{
				StudentID:    student.ID,
				StoryName:    "hubbles_law",
				State:        json.RawMessage(state),
				LastModified: time.Now().UTC(),
			})
			require.NoError(t, err)
		}
		state, err := r.roster.GetStoryState(ctx, student.ID, "hubbles_law")
		require.NoError(t, err)
		assert.JSONEq(t, `{"stage": 2}`, string(state.State))

		require.NoError(t, r.roster.IgnoreStudent(ctx, student.ID, "hubbles_law"))
		require.NoError(t, r.roster.IgnoreStudent(ctx, student.ID, "hubbles_law"))
		require.NoError(t, r.roster.IgnoreClass(ctx, cls.ID, "hubbles_law"))
	})
}

func TestHubbleRepository_Galaxies(t *testing.T) {
	engines(t, func(t *testing.T, r repos) {
		ctx := context.Background()

		spiral := testutil.CreateGalaxy(t, r.hubble, "spiral.fits", "Sp")
		testutil.CreateGalaxy(t, r.hubble, "elliptical.fits", "E")
		_, err := r.hubble.CreateGalaxy(ctx, hubble.FlaggedGalaxy{
			Galaxy:      hubble.Galaxy{ID: 1500, Name: "new.fits", Type: "Sp"},
			GalaxyFlags: hubble.GalaxyFlags{SpecIsBad: 1},
		})
		require.NoError(t, err)

		got, err := r.hubble.GetGalaxyByName(ctx, "spiral.fits")
		require.NoError(t, err)
		assert.Equal(t, spiral.ID, got.ID)
		assert.Equal(t, "Sp", got.Type)
		assert.InDelta(t, 10.5, got.RA, 1e-9)
		_, err = r.hubble.GetGalaxy(ctx, 999)
		assert.Equal(t, hubble.ErrGalaxyNotFound, errors.Cause(err))

		galaxies, err := r.hubble.QueryGalaxies(ctx, hubble.GalaxyFilter{Types: []string{"Sp"}})
		require.NoError(t, err)
		assert.Len(t, galaxies, 2)
		galaxies, err = r.hubble.QueryGalaxies(ctx, hubble.GalaxyFilter{NotBad: true})
		require.NoError(t, err)
		assert.Len(t, galaxies, 2)
		galaxies, err = r.hubble.QueryGalaxies(ctx, hubble.GalaxyFilter{MinID: 1388, MaxID: 1788})
		require.NoError(t, err)
		require.Len(t, galaxies, 1)
		assert.Equal(t, 1500, galaxies[0].ID)

		require.NoError(t, r.hubble.IncrementGalaxyCounter(ctx, spiral.ID, hubble.CounterTileloadMarkedBad))
		require.NoError(t, r.hubble.SetGalaxySpectrumStatus(ctx, spiral.ID, false))
		got, err = r.hubble.GetGalaxy(ctx, spiral.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, got.TileloadMarkedBad)
		assert.Equal(t, 1, got.SpecChecked)
		assert.Equal(t, 0, got.SpecIsGood)

		assert.Equal(t, hubble.ErrGalaxyNotFound, errors.Cause(r.hubble.IncrementGalaxyCounter(ctx, 999, hubble.CounterMarkedBad)))
	})
}

func TestHubbleRepository_Measurements(t *testing.T) {
	engines(t, func(t *testing.T, r repos) {
		ctx := context.Background()
		galaxy := testutil.CreateGalaxy(t, r.hubble, "gal.fits", "Sp")
		student := testutil.CreateStudent(t, r.roster, "student", false, false)
		dummy := testutil.CreateStudent(t, r.roster, "dummy", false, true)

		m := hubble.Measurement{StudentID: student.ID, GalaxyID: galaxy.ID, LastModified: time.Now().UTC()}
		created, err := r.hubble.UpsertMeasurement(ctx, m)
		require.NoError(t, err)
		assert.True(t, created)

		m.MeasurementValues = complete(1200)
		created, err = r.hubble.UpsertMeasurement(ctx, m)
		require.NoError(t, err)
		assert.False(t, created)

		got, err := r.hubble.GetMeasurement(ctx, student.ID, galaxy.ID)
		require.NoError(t, err)
		assert.Equal(t, null.Float64From(1200), got.VelocityValue)
		assert.Equal(t, null.StringFrom("Mpc"), got.EstDistUnit)
		assert.False(t, got.RestWaveValue.Valid)
		require.NotNil(t, got.Galaxy)
		assert.Equal(t, "gal.fits", got.Galaxy.Name)

		// rows for galaxy 0 are kept but never read back
		_, err = r.hubble.UpsertMeasurement(ctx, hubble.Measurement{StudentID: student.ID, LastModified: time.Now().UTC()})
		require.NoError(t, err)
		ms, err := r.hubble.QueryStudentMeasurements(ctx, student.ID)
		require.NoError(t, err)
		assert.Len(t, ms, 1)

		_, err = r.hubble.UpsertMeasurement(ctx, hubble.Measurement{StudentID: dummy.ID, GalaxyID: galaxy.ID, LastModified: time.Now().UTC()})
		require.NoError(t, err)
		counts, err := r.hubble.GalaxyMeasurementCounts(ctx)
		require.NoError(t, err)
		assert.Equal(t, map[int]int{galaxy.ID: 1}, counts)

		sample := hubble.SampleMeasurement{Measurement: m, MeasurementNumber: "first"}
		created, err = r.hubble.UpsertSampleMeasurement(ctx, sample)
		require.NoError(t, err)
		assert.True(t, created)
		sample.MeasurementNumber = "second"
		sample.MeasurementValues = hubble.MeasurementValues{}
		created, err = r.hubble.UpsertSampleMeasurement(ctx, sample)
		require.NoError(t, err)
		assert.True(t, created)

		samples, err := r.hubble.QuerySampleMeasurements(ctx, true, "")
		require.NoError(t, err)
		require.Len(t, samples, 1)
		assert.Equal(t, "first", samples[0].MeasurementNumber)
		samples, err = r.hubble.QueryStudentSampleMeasurements(ctx, student.ID)
		require.NoError(t, err)
		assert.Len(t, samples, 2)

		deleted, err := r.hubble.DeleteSampleMeasurement(ctx, student.ID, "second")
		require.NoError(t, err)
		assert.True(t, deleted)
		deleted, err = r.hubble.DeleteMeasurement(ctx, student.ID, galaxy.ID)
		require.NoError(t, err)
		assert.True(t, deleted)
		deleted, err = r.hubble.DeleteMeasurement(ctx, student.ID, galaxy.ID)
		require.NoError(t, err)
		assert.False(t, deleted)
	})
}

func TestHubbleRepository_CohortMeasurements(t *testing.T) {
	engines(t, func(t *testing.T, r repos) {
		ctx := context.Background()
		galaxy := testutil.CreateGalaxy(t, r.hubble, "gal.fits", "Sp")
		cls1, students1 := testutil.CreateClassWithStudents(t, r.roster, "one", 3)
		cls2, students2 := testutil.CreateClassWithStudents(t, r.roster, "two", 2)

		for i, s := range append(students1, students2...) {
			values := complete(1000)
			if i == 1 {
				values.AngSizeValue = null.Float64{}
			}
			_, err := r.hubble.UpsertMeasurement(ctx, hubble.Measurement{
				StudentID: s.ID, GalaxyID: galaxy.ID, MeasurementValues: values, LastModified: time.Now().UTC(),
			})
			require.NoError(t, err)
		}
		require.NoError(t, r.roster.IgnoreStudent(ctx, students1[2].ID, hubble.StoryName))

		ids := func(ms []hubble.Measurement) []int {
			out := make([]int, 0, len(ms))
			for _, m := range ms {
				out = append(out, m.StudentID)
			}
			return out
		}

		ms, err := r.hubble.QueryCohortMeasurements(ctx, hubble.CohortFilter{ClassIDs: []int{cls1.ID, cls2.ID}, StoryName: hubble.StoryName})
		require.NoError(t, err)
		assert.Equal(t, []int{students1[0].ID, students1[1].ID, students2[0].ID, students2[1].ID}, ids(ms))

		ms, err = r.hubble.QueryCohortMeasurements(ctx, hubble.CohortFilter{
			ClassIDs:         []int{cls1.ID},
			CompleteOnly:     true,
			ExcludeStudentID: students1[0].ID,
			StoryName:        hubble.StoryName,
		})
		require.NoError(t, err)
		assert.Empty(t, ms)

		ms, err = r.hubble.QueryCohortMeasurements(ctx, hubble.CohortFilter{StudentIDs: []int{students2[1].ID}, StoryName: hubble.StoryName})
		require.NoError(t, err)
		assert.Equal(t, []int{students2[1].ID}, ids(ms))

		require.NoError(t, r.roster.IgnoreClass(ctx, cls2.ID, hubble.StoryName))
		ms, err = r.hubble.QueryCohortMeasurements(ctx, hubble.CohortFilter{ClassIDs: []int{cls2.ID}, StoryName: hubble.StoryName})
		require.NoError(t, err)
		assert.Empty(t, ms)
	})
}

func TestHubbleRepository_MergeGroups(t *testing.T) {
	engines(t, func(t *testing.T, r repos) {
		ctx := context.Background()
		big, _ := testutil.CreateClassWithStudents(t, r.roster, "big", 15)
		small1 := testutil.CreateClass(t, r.roster, "small1", true)
		small2 := testutil.CreateClass(t, r.roster, "small2", true)
		ignored, _ := testutil.CreateClassWithStudents(t, r.roster, "ignored", 15)
		require.NoError(t, r.roster.IgnoreClass(ctx, ignored.ID, hubble.StoryName))

		candidates, err := r.hubble.QueryMergeCandidates(ctx, small1.ID, hubble.MinMergeClassSize, hubble.StoryName)
		require.NoError(t, err)
		require.Len(t, candidates, 1)
		assert.Equal(t, hubble.MergeCandidate{ClassID: big.ID, GroupSize: 1}, candidates[0])

		groupID, err := r.hubble.CreateMergeGroup(ctx, big.ID, small1.ID)
		require.NoError(t, err)
		_, err = r.hubble.CreateMergeGroup(ctx, big.ID, small2.ID)
		assert.Equal(t, hubble.ErrAlreadyGrouped, errors.Cause(err))

		entry, err := r.hubble.JoinMergeGroup(ctx, small2.ID, groupID)
		require.NoError(t, err)
		assert.Equal(t, hubble.MergeGroupEntry{ClassID: small2.ID, GroupID: groupID, MergeOrder: 3}, entry)
		_, err = r.hubble.JoinMergeGroup(ctx, small2.ID, groupID)
		assert.Equal(t, hubble.ErrAlreadyGrouped, errors.Cause(err))
		_, err = r.hubble.JoinMergeGroup(ctx, ignored.ID, groupID+1)
		assert.Equal(t, hubble.ErrMergeGroupNotFound, errors.Cause(err))

		candidates, err = r.hubble.QueryMergeCandidates(ctx, small1.ID, hubble.MinMergeClassSize, hubble.StoryName)
		require.NoError(t, err)
		require.Len(t, candidates, 1)
		assert.Equal(t, null.IntFrom(groupID), candidates[0].GroupID)
		assert.Equal(t, 3, candidates[0].GroupSize)
		assert.Equal(t, 3, candidates[0].MaxMergeOrder)

		members, err := r.hubble.QueryMergeGroup(ctx, groupID)
		require.NoError(t, err)
		assert.Equal(t, []hubble.MergeGroupEntry{
			{ClassID: big.ID, GroupID: groupID, MergeOrder: 1},
			{ClassID: small1.ID, GroupID: groupID, MergeOrder: 2},
			{ClassID: small2.ID, GroupID: groupID, MergeOrder: 3},
		}, members)

		removed, err := r.hubble.RemoveFromMergeGroup(ctx, small1.ID)
		require.NoError(t, err)
		assert.True(t, removed)
		removed, err = r.hubble.RemoveFromMergeGroup(ctx, small2.ID)
		require.NoError(t, err)
		assert.True(t, removed)
		entries, err := r.hubble.QueryMergeEntries(ctx)
		require.NoError(t, err)
		assert.Empty(t, entries, "a group of one is dissolved")

		created, err := r.hubble.CreateWaitingRoomOverride(ctx, small1.ID)
		require.NoError(t, err)
		assert.True(t, created)
		created, err = r.hubble.CreateWaitingRoomOverride(ctx, small1.ID)
		require.NoError(t, err)
		assert.False(t, created)
		o, err := r.hubble.GetWaitingRoomOverride(ctx, small1.ID)
		require.NoError(t, err)
		assert.Equal(t, small1.ID, o.ClassID)
		deleted, err := r.hubble.DeleteWaitingRoomOverride(ctx, small1.ID)
		require.NoError(t, err)
		assert.True(t, deleted)
		_, err = r.hubble.GetWaitingRoomOverride(ctx, small1.ID)
		assert.Equal(t, hubble.ErrOverrideNotFound, errors.Cause(err))
	})
}

func TestHubbleService_concurrentMerges(t *testing.T) {
	engines(t, func(t *testing.T, r repos) {
		ctx := context.Background()
		rosterSvc := roster.NewService(r.roster, testutil.Logger{})
		svc := hubble.NewService(r.hubble, rosterSvc, testutil.Logger{}, nil)

		big, _ := testutil.CreateClassWithStudents(t, r.roster, "big", 15)
		const n = 4
		var wg sync.WaitGroup
		errs := make([]error, n)
		for i := 0; i < n; i++ {
			cls := testutil.CreateClass(t, r.roster, "small", true)
			wg.Add(1)
			go func(i, classID int) {
				defer wg.Done()
				_, errs[i] = svc.AddClassToMergeGroup(ctx, classID)
			}(i, cls.ID)
		}
		wg.Wait()

		for _, err := range errs {
			require.NoError(t, err)
		}
		members, err := svc.GetMergeGroup(ctx, big.ID)
		require.NoError(t, err)
		require.Len(t, members, n+1)
		assert.Equal(t, big.ID, members[0].ClassID)
		for i, m := range members {
			assert.Equal(t, i+1, m.MergeOrder)
		}
	})
}

func TestHubbleRepository_Exports(t *testing.T) {
	engines(t, func(t *testing.T, r repos) {
		ctx := context.Background()
		galaxy := testutil.CreateGalaxy(t, r.hubble, "gal.fits", "Sp")
		cls, students := testutil.CreateClassWithStudents(t, r.roster, "class", 2)
		other, _ := testutil.CreateClassWithStudents(t, r.roster, "other", 0)
		dummy := testutil.CreateStudent(t, r.roster, "dummy", false, true)
		testutil.Enroll(t, r.roster, cls.ID, dummy.ID)
		testutil.Enroll(t, r.roster, other.ID, students[0].ID)

		for _, s := range append(students, dummy) {
			_, err := r.hubble.UpsertMeasurement(ctx, hubble.Measurement{
				StudentID: s.ID, GalaxyID: galaxy.ID, MeasurementValues: complete(1000), LastModified: time.Now().UTC(),
			})
			require.NoError(t, err)
			require.NoError(t, r.hubble.UpsertStudentData(ctx, hubble.StudentData{
				StudentID: s.ID, AgeValue: null.Float64From(13), LastDataUpdate: time.Now().UTC(),
			}))
		}
		require.NoError(t, r.hubble.UpsertClassData(ctx, hubble.ClassData{
			ClassID: cls.ID, HubbleFitValue: null.Float64From(70), LastDataUpdate: time.Now().UTC(),
		}))

		filter := hubble.ExportFilter{CompleteOnly: true, StoryName: hubble.StoryName}
		rows, err := r.hubble.QueryExportMeasurements(ctx, filter)
		require.NoError(t, err)
		assert.Len(t, rows, 3, "one row per real student and class")
		for _, row := range rows {
			assert.NotEqual(t, dummy.ID, row.StudentID)
		}

		filter.ExcludeClassIDs = []int{other.ID}
		rows, err = r.hubble.QueryExportMeasurements(ctx, filter)
		require.NoError(t, err)
		assert.Len(t, rows, 2)

		past := time.Now().Add(-time.Hour)
		filter.Before = &past
		rows, err = r.hubble.QueryExportMeasurements(ctx, filter)
		require.NoError(t, err)
		assert.Empty(t, rows)

		data, err := r.hubble.QueryExportStudentData(ctx, hubble.ExportFilter{StoryName: hubble.StoryName})
		require.NoError(t, err)
		assert.Len(t, data, 3)

		classData, err := r.hubble.QueryExportClassData(ctx, hubble.ExportFilter{StoryName: hubble.StoryName}, 3)
		require.NoError(t, err)
		require.Len(t, classData, 1)
		assert.Equal(t, null.Float64From(70), classData[0].HubbleFitValue)
		classData, err = r.hubble.QueryExportClassData(ctx, hubble.ExportFilter{StoryName: hubble.StoryName}, 4)
		require.NoError(t, err)
		assert.Empty(t, classData)

		err = r.hubble.UpsertStudentData(ctx, hubble.StudentData{StudentID: 999, LastDataUpdate: time.Now().UTC()})
		assert.Equal(t, roster.ErrStudentNotFound, errors.Cause(err))
	})
}

func TestEclipseRepository(t *testing.T) {
	engines(t, func(t *testing.T, r repos) {
		ctx := context.Background()
		userUUID := "0e0bd7b7-3a3e-4b0a-9d57-9a2e0f8b2f41"

		_, err := r.eclipse.GetData(ctx, userUUID)
		assert.Equal(t, eclipse.ErrDataNotFound, errors.Cause(err))

		d := eclipse.Data{
			UserUUID:                    userUUID,
			UserSelectedLocations:       eclipse.LatLonArray{{42.36, -71.06}},
			UserSelectedLocationsCount:  1,
			CloudCoverSelectedLocations: eclipse.LatLonArray{},
			TextSearchSelectedLocations: eclipse.LatLonArray{},
			AppTimeMs:                   100,
			Timestamp:                   time.Now().UTC(),
		}
		_, err = r.eclipse.UpsertData(ctx, d)
		require.NoError(t, err)
		d.AppTimeMs = 200
		_, err = r.eclipse.UpsertData(ctx, d)
		require.NoError(t, err)

		updated, err := r.eclipse.UpdateData(ctx, userUUID, func(d *eclipse.Data) {
			d.UserSelectedLocations = append(d.UserSelectedLocations, [2]float64{1, 2})
			d.InfoTimeMs += 5
		})
		require.NoError(t, err)
		assert.Len(t, updated.UserSelectedLocations, 2)

		got, err := r.eclipse.GetData(ctx, userUUID)
		require.NoError(t, err)
		assert.Equal(t, eclipse.LatLonArray{{42.36, -71.06}, {1, 2}}, got.UserSelectedLocations)
		assert.Equal(t, 200, got.AppTimeMs)
		assert.Equal(t, 5, got.InfoTimeMs)

		_, err = r.eclipse.UpdateData(ctx, "missing", func(*eclipse.Data) {})
		assert.Equal(t, eclipse.ErrDataNotFound, errors.Cause(err))

		all, err := r.eclipse.QueryData(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})
}

func TestAPIKeyRepository(t *testing.T) {
	engines(t, func(t *testing.T, r repos) {
		ctx := context.Background()
		key, err := r.apiKeys.CreateKey(ctx, apikey.APIKey{Client: "dashboard", HashedKey: []byte("hash"), CreatedAt: time.Now().UTC()})
		require.NoError(t, err)
		assert.NotZero(t, key.ID)

		got, err := r.apiKeys.GetKey(ctx, key.ID)
		require.NoError(t, err)
		assert.Equal(t, "dashboard", got.Client)
		assert.Equal(t, []byte("hash"), got.HashedKey)

		_, err = r.apiKeys.GetKey(ctx, key.ID+1)
		assert.Equal(t, apikey.ErrKeyNotFound, errors.Cause(err))
	})
}
