package hubble_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/cosmicds/cds-api/core/hubble"
	"github.com/cosmicds/cds-api/core/roster"
	inmemdb "github.com/cosmicds/cds-api/storage/database/inmem"
	"github.com/cosmicds/cds-api/tests"
)

type fixture struct {
	svc        *hubble.Service
	rosterSvc  *roster.Service
	rosterRepo roster.Repository
	repo       hubble.Repository
}

func setup(t *testing.T) fixture {
	db := inmemdb.Open()
	rosterRepo := inmemdb.NewRosterRepository(db)
	repo := inmemdb.NewHubbleRepository(db)
	rosterSvc := roster.NewService(rosterRepo, testutil.Logger{})
	return fixture{
		svc:        hubble.NewService(repo, rosterSvc, testutil.Logger{}, nil),
		rosterSvc:  rosterSvc,
		rosterRepo: rosterRepo,
		repo:       repo,
	}
}

func completeValues(velocity, distance float64) hubble.MeasurementValues {
	return hubble.MeasurementValues{
		ObsWaveValue:  null.Float64From(6700),
		ObsWaveUnit:   null.StringFrom("angstrom"),
		VelocityValue: null.Float64From(velocity),
		VelocityUnit:  null.StringFrom("km / s"),
		AngSizeValue:  null.Float64From(40),
		AngSizeUnit:   null.StringFrom("arcsecond"),
		EstDistValue:  null.Float64From(distance),
		EstDistUnit:   null.StringFrom("Mpc"),
	}
}

func (f fixture) submit(t *testing.T, studentID, galaxyID int, values hubble.MeasurementValues) hubble.Measurement {
	t.Helper()
	m, result, err := f.svc.SubmitMeasurement(context.Background(), hubble.NewMeasurement{
		StudentID:         studentID,
		GalaxyID:          &galaxyID,
		MeasurementValues: values,
	})
	require.NoError(t, err)
	require.True(t, result.Success(), "result %s", result)
	return m
}
