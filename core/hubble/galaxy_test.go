package hubble_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cosmicds/cds-api/core/hubble"
	"github.com/cosmicds/cds-api/tests"
)

func galaxyIDs(galaxies []hubble.FlaggedGalaxy) []int {
	ids := make([]int, 0, len(galaxies))
	for _, g := range galaxies {
		ids = append(ids, g.ID)
	}
	return ids
}

func TestService_GetGalaxies(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	spiral := testutil.CreateGalaxy(t, f.repo, "spiral.fits", "Sp")
	elliptical := testutil.CreateGalaxy(t, f.repo, "elliptical.fits", "E")
	bad, err := f.repo.CreateGalaxy(ctx, hubble.FlaggedGalaxy{
		Galaxy:      hubble.Galaxy{Name: "bad.fits", Type: "Sp"},
		GalaxyFlags: hubble.GalaxyFlags{IsBad: 1},
	})
	require.NoError(t, err)
	sample, err := f.repo.CreateGalaxy(ctx, hubble.FlaggedGalaxy{
		Galaxy:      hubble.Galaxy{Name: "sample.fits", Type: "Sp"},
		GalaxyFlags: hubble.GalaxyFlags{IsSample: 1},
	})
	require.NoError(t, err)

	galaxies, err := f.svc.GetGalaxies(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{spiral.ID, elliptical.ID}, galaxyIDs(galaxies))

	galaxies, err = f.svc.GetGalaxies(ctx, []string{"E"})
	require.NoError(t, err)
	assert.Equal(t, []int{elliptical.ID}, galaxyIDs(galaxies))

	got, err := f.svc.GetSampleGalaxy(ctx)
	require.NoError(t, err)
	assert.Equal(t, sample.ID, got.ID)

	got, err = f.svc.GetGalaxy(ctx, hubble.GalaxyRef{Name: "bad.fits"})
	require.NoError(t, err)
	assert.Equal(t, bad.ID, got.ID)

	_, err = f.svc.GetGalaxy(ctx, hubble.GalaxyRef{})
	assert.Equal(t, hubble.ErrMissingGalaxyRef, errors.Cause(err))
}

func TestService_MarkGalaxy(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	galaxy := testutil.CreateGalaxy(t, f.repo, "gal.fits", "Sp")

	require.NoError(t, f.svc.MarkGalaxyBad(ctx, hubble.GalaxyRef{ID: &galaxy.ID}))
	require.NoError(t, f.svc.MarkGalaxyBad(ctx, hubble.GalaxyRef{Name: "gal.fits"}))
	require.NoError(t, f.svc.MarkSpectrumBad(ctx, hubble.GalaxyRef{ID: &galaxy.ID}))
	require.NoError(t, f.svc.MarkTileloadBad(ctx, hubble.GalaxyRef{ID: &galaxy.ID}))

	got, err := f.repo.GetGalaxy(ctx, galaxy.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.MarkedBad)
	assert.Equal(t, 1, got.SpecMarkedBad)
	assert.Equal(t, 1, got.TileloadMarkedBad)

	err = f.svc.MarkGalaxyBad(ctx, hubble.GalaxyRef{Name: "nowhere.fits"})
	assert.Equal(t, hubble.ErrGalaxyNotFound, errors.Cause(err))
	err = f.svc.MarkGalaxy(ctx, hubble.GalaxyRef{ID: &galaxy.ID}, "is_bad")
	assert.Equal(t, hubble.ErrInvalidGalaxyCounter, errors.Cause(err))
}

func TestService_SetSpectrumStatus(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	galaxy := testutil.CreateGalaxy(t, f.repo, "gal.fits", "Sp")
	testutil.CreateGalaxy(t, f.repo, "other.fits", "Sp")

	unchecked, err := f.svc.GetUncheckedGalaxies(ctx)
	require.NoError(t, err)
	assert.Len(t, unchecked, 2)

	name, err := f.svc.SetSpectrumStatus(ctx, "gal", true)
	require.NoError(t, err)
	assert.Equal(t, "gal.fits", name)

	got, err := f.repo.GetGalaxy(ctx, galaxy.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.SpecChecked)
	assert.Equal(t, 1, got.SpecIsGood)

	unchecked, err = f.svc.GetUncheckedGalaxies(ctx)
	require.NoError(t, err)
	assert.Len(t, unchecked, 1)

	_, err = f.svc.SetSpectrumStatus(ctx, "nowhere", false)
	assert.Equal(t, hubble.ErrGalaxyNotFound, errors.Cause(err))
}

func TestService_GetNewGalaxies(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	for _, id := range []int{1000, 1388, 1500, 1788, 1789} {
		_, err := f.repo.CreateGalaxy(ctx, hubble.FlaggedGalaxy{Galaxy: hubble.Galaxy{ID: id, Type: "Sp"}})
		require.NoError(t, err)
	}

	galaxies, err := f.svc.GetNewGalaxies(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1388, 1500, 1788}, galaxyIDs(galaxies))
}

func TestService_GetDataGenerationGalaxies(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	g1 := testutil.CreateGalaxy(t, f.repo, "g1.fits", "Sp")
	g2 := testutil.CreateGalaxy(t, f.repo, "g2.fits", "Sp")
	g3 := testutil.CreateGalaxy(t, f.repo, "g3.fits", "Sp")
	g4 := testutil.CreateGalaxy(t, f.repo, "g4.fits", "Sp")
	testutil.CreateGalaxy(t, f.repo, "e1.fits", "E")

	real1 := testutil.CreateStudent(t, f.rosterRepo, "real1", false, false)
	real2 := testutil.CreateStudent(t, f.rosterRepo, "real2", false, false)
	dummy := testutil.CreateStudent(t, f.rosterRepo, "dummy", false, true)

	f.submit(t, real1.ID, g1.ID, completeValues(1000, 40))
	f.submit(t, real2.ID, g1.ID, completeValues(1000, 40))
	f.submit(t, real1.ID, g2.ID, completeValues(1000, 40))
	// dummy measurements do not count
	f.submit(t, dummy.ID, g3.ID, completeValues(1000, 40))
	f.submit(t, dummy.ID, g4.ID, completeValues(1000, 40))

	galaxies, err := f.svc.GetDataGenerationGalaxies(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{g4.ID, g3.ID, g2.ID, g1.ID}, galaxyIDs(galaxies))
}

func TestGalaxyMeasurementCounts_unknownGalaxy(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	g := testutil.CreateGalaxy(t, f.repo, "g1.fits", "Sp")
	student := testutil.CreateStudent(t, f.rosterRepo, "student", false, false)
	f.submit(t, student.ID, g.ID, completeValues(1000, 40))
	_, err := f.repo.UpsertMeasurement(ctx, hubble.Measurement{StudentID: student.ID, LastModified: time.Now().UTC()})
	require.NoError(t, err)

	counts, err := f.repo.GalaxyMeasurementCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[int]int{g.ID: 1}, counts)
}
