package hubble

import (
	"context"
	"sort"

	"github.com/pkg/errors"
)

// GalaxyRef identifies a galaxy by id or, failing that, by name.
type GalaxyRef struct {
	ID   *int   `json:"galaxy_id"`
	Name string `json:"galaxy_name"`
}

// GetGalaxies returns the usable galaxies, restricted to the given types when any are given.
func (svc *Service) GetGalaxies(ctx context.Context, types []string) ([]FlaggedGalaxy, error) {
	return svc.repo.QueryGalaxies(ctx, GalaxyFilter{Types: types, NotBad: true, NotSample: true})
}

func (svc *Service) GetGalaxy(ctx context.Context, ref GalaxyRef) (FlaggedGalaxy, error) {
	switch {
	case ref.ID != nil && *ref.ID != 0:
		return svc.repo.GetGalaxy(ctx, *ref.ID)
	case ref.Name != "":
		return svc.repo.GetGalaxyByName(ctx, ref.Name)
	}
	return FlaggedGalaxy{}, ErrMissingGalaxyRef
}

// GetSampleGalaxy returns the galaxy used by the tutorial.
func (svc *Service) GetSampleGalaxy(ctx context.Context) (FlaggedGalaxy, error) {
	galaxies, err := svc.repo.QueryGalaxies(ctx, GalaxyFilter{SampleOnly: true})
	if err != nil {
		return FlaggedGalaxy{}, err
	}
	if len(galaxies) == 0 {
		return FlaggedGalaxy{}, ErrGalaxyNotFound
	}
	return galaxies[0], nil
}

// MarkGalaxy increments one of the galaxy's "marked bad" counters.
func (svc *Service) MarkGalaxy(ctx context.Context, ref GalaxyRef, counter GalaxyCounter) error {
	if !counter.Valid() {
		return ErrInvalidGalaxyCounter
	}
	galaxy, err := svc.GetGalaxy(ctx, ref)
	if err != nil {
		return err
	}
	if err := svc.repo.IncrementGalaxyCounter(ctx, galaxy.ID, counter); err != nil {
		return errors.Wrapf(err, "incrementing %s", counter)
	}
	return nil
}

// SetSpectrumStatus records the outcome of a spectrum check on the galaxy with the given file name.
func (svc *Service) SetSpectrumStatus(ctx context.Context, name string, good bool) (string, error) {
	name = GalaxyFileName(name)
	galaxy, err := svc.repo.GetGalaxyByName(ctx, name)
	if err != nil {
		return name, err
	}
	if err := svc.repo.SetGalaxySpectrumStatus(ctx, galaxy.ID, good); err != nil {
		return name, errors.Wrap(err, "setting spectrum status")
	}
	return name, nil
}

func (svc *Service) GetUncheckedGalaxies(ctx context.Context) ([]FlaggedGalaxy, error) {
	return svc.repo.QueryGalaxies(ctx, GalaxyFilter{UncheckedOnly: true})
}

func (svc *Service) GetNewGalaxies(ctx context.Context) ([]FlaggedGalaxy, error) {
	return svc.repo.QueryGalaxies(ctx, GalaxyFilter{NotBad: true, MinID: newGalaxiesMinID, MaxID: newGalaxiesMaxID})
}

// GetDataGenerationGalaxies orders the usable galaxies of the given types (spirals by default) so that
// the least measured come first: galaxies nobody measured, then by ascending number of measurements
// from real students. Ties go to the higher id.
func (svc *Service) GetDataGenerationGalaxies(ctx context.Context, types []string) ([]FlaggedGalaxy, error) {
	if len(types) == 0 {
		types = []string{"Sp"}
	}
	galaxies, err := svc.repo.QueryGalaxies(ctx, GalaxyFilter{Types: types, NotBad: true, NotSample: true})
	if err != nil {
		return nil, errors.Wrap(err, "querying galaxies")
	}
	counts, err := svc.repo.GalaxyMeasurementCounts(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "counting galaxy measurements")
	}

	sort.SliceStable(galaxies, func(i, j int) bool {
		ci, cj := counts[galaxies[i].ID], counts[galaxies[j].ID]
		if ci != cj {
			return ci < cj
		}
		return galaxies[i].ID > galaxies[j].ID
	})
	return galaxies, nil
}

func (svc *Service) MarkGalaxyBad(ctx context.Context, ref GalaxyRef) error {
	return svc.MarkGalaxy(ctx, ref, CounterMarkedBad)
}

func (svc *Service) MarkSpectrumBad(ctx context.Context, ref GalaxyRef) error {
	return svc.MarkGalaxy(ctx, ref, CounterSpecMarkedBad)
}

func (svc *Service) MarkTileloadBad(ctx context.Context, ref GalaxyRef) error {
	return svc.MarkGalaxy(ctx, ref, CounterTileloadMarkedBad)
}
