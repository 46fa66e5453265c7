package inmemdb

import (
	"context"
	"sort"

	"github.com/cosmicds/cds-api/core/hubble"
)

type hubbleRepository struct {
	db *DB
}

func NewHubbleRepository(db *DB) hubble.Repository {
	return &hubbleRepository{db: db}
}

// galaxies

func (repo *hubbleRepository) CreateGalaxy(_ context.Context, galaxy hubble.FlaggedGalaxy) (hubble.FlaggedGalaxy, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if galaxy.ID == 0 {
		galaxy.ID = repo.db.nextID("galaxies")
	} else if galaxy.ID > repo.db.seq["galaxies"] {
		repo.db.seq["galaxies"] = galaxy.ID
	}
	repo.db.galaxies[galaxy.ID] = galaxy
	return galaxy, nil
}

func (repo *hubbleRepository) GetGalaxy(_ context.Context, id int) (hubble.FlaggedGalaxy, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if g, ok := repo.db.galaxies[id]; ok {
		return g, nil
	}
	return hubble.FlaggedGalaxy{}, hubble.ErrGalaxyNotFound
}

func (repo *hubbleRepository) GetGalaxyByName(_ context.Context, name string) (hubble.FlaggedGalaxy, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, g := range repo.db.galaxies {
		if g.Name == name {
			return g, nil
		}
	}
	return hubble.FlaggedGalaxy{}, hubble.ErrGalaxyNotFound
}

func matchGalaxy(g hubble.FlaggedGalaxy, f hubble.GalaxyFilter) bool {
	if len(f.Types) > 0 {
		var ok bool
		for _, t := range f.Types {
			if g.Type == t {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	switch {
	case f.NotBad && (g.IsBad != 0 || g.SpecIsBad != 0),
		f.NotSample && g.IsSample != 0,
		f.SampleOnly && g.IsSample == 0,
		f.UncheckedOnly && g.SpecChecked != 0,
		f.MinID > 0 && g.ID < f.MinID,
		f.MaxID > 0 && g.ID > f.MaxID:
		return false
	}
	return true
}

func (repo *hubbleRepository) QueryGalaxies(_ context.Context, filter hubble.GalaxyFilter) ([]hubble.FlaggedGalaxy, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	galaxies := make([]hubble.FlaggedGalaxy, 0)
	for _, g := range repo.db.galaxies {
		if matchGalaxy(g, filter) {
			galaxies = append(galaxies, g)
		}
	}
	sort.Slice(galaxies, func(i, j int) bool { return galaxies[i].ID < galaxies[j].ID })
	return galaxies, nil
}

func (repo *hubbleRepository) IncrementGalaxyCounter(_ context.Context, id int, counter hubble.GalaxyCounter) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	g, ok := repo.db.galaxies[id]
	if !ok {
		return hubble.ErrGalaxyNotFound
	}
	switch counter {
	case hubble.CounterMarkedBad:
		g.MarkedBad++
	case hubble.CounterSpecMarkedBad:
		g.SpecMarkedBad++
	case hubble.CounterTileloadMarkedBad:
		g.TileloadMarkedBad++
	default:
		return hubble.ErrInvalidGalaxyCounter
	}
	repo.db.galaxies[id] = g
	return nil
}

func (repo *hubbleRepository) SetGalaxySpectrumStatus(_ context.Context, id int, good bool) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	g, ok := repo.db.galaxies[id]
	if !ok {
		return hubble.ErrGalaxyNotFound
	}
	g.SpecChecked = 1
	g.SpecIsGood = 0
	if good {
		g.SpecIsGood = 1
	}
	repo.db.galaxies[id] = g
	return nil
}

func (repo *hubbleRepository) GalaxyMeasurementCounts(_ context.Context) (map[int]int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	counts := make(map[int]int)
	for k := range repo.db.measurements {
		if _, ok := repo.db.galaxies[k.galaxyID]; !ok {
			continue
		}
		s, ok := repo.db.students[k.studentID]
		if ok && (s.Seed || !s.Dummy) {
			counts[k.galaxyID]++
		}
	}
	return counts, nil
}

// measurements

func (repo *hubbleRepository) UpsertMeasurement(_ context.Context, m hubble.Measurement) (bool, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	m.Galaxy = nil
	key := measurementKey{m.StudentID, m.GalaxyID}
	_, exists := repo.db.measurements[key]
	repo.db.measurements[key] = m
	return !exists, nil
}

// withGalaxy attaches the measured galaxy, reporting false when it is unknown.
func (repo *hubbleRepository) withGalaxy(m hubble.Measurement) (hubble.Measurement, bool) {
	g, ok := repo.db.galaxies[m.GalaxyID]
	if ok {
		galaxy := g.Galaxy
		m.Galaxy = &galaxy
	}
	return m, ok
}

func (repo *hubbleRepository) GetMeasurement(_ context.Context, studentID, galaxyID int) (hubble.Measurement, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	m, ok := repo.db.measurements[measurementKey{studentID, galaxyID}]
	if !ok {
		return hubble.Measurement{}, hubble.ErrMeasurementNotFound
	}
	m, _ = repo.withGalaxy(m)
	return m, nil
}

func sortMeasurements(ms []hubble.Measurement) {
	sort.Slice(ms, func(i, j int) bool {
		if ms[i].StudentID != ms[j].StudentID {
			return ms[i].StudentID < ms[j].StudentID
		}
		return ms[i].GalaxyID < ms[j].GalaxyID
	})
}

func (repo *hubbleRepository) QueryStudentMeasurements(_ context.Context, studentID int) ([]hubble.Measurement, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	ms := make([]hubble.Measurement, 0)
	for k, m := range repo.db.measurements {
		if k.studentID != studentID {
			continue
		}
		if m, ok := repo.withGalaxy(m); ok {
			ms = append(ms, m)
		}
	}
	sortMeasurements(ms)
	return ms, nil
}

func (repo *hubbleRepository) DeleteMeasurement(_ context.Context, studentID, galaxyID int) (bool, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	key := measurementKey{studentID, galaxyID}
	if _, ok := repo.db.measurements[key]; !ok {
		return false, nil
	}
	delete(repo.db.measurements, key)
	return true, nil
}

func (repo *hubbleRepository) UpsertSampleMeasurement(_ context.Context, m hubble.SampleMeasurement) (bool, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	m.Galaxy = nil
	key := sampleKey{m.StudentID, m.GalaxyID, m.MeasurementNumber}
	_, exists := repo.db.samples[key]
	repo.db.samples[key] = m
	return !exists, nil
}

func (repo *hubbleRepository) querySamples(match func(hubble.SampleMeasurement) bool) []hubble.SampleMeasurement {
	ms := make([]hubble.SampleMeasurement, 0)
	for _, m := range repo.db.samples {
		if !match(m) {
			continue
		}
		var ok bool
		if m.Measurement, ok = repo.withGalaxy(m.Measurement); ok {
			ms = append(ms, m)
		}
	}
	sort.Slice(ms, func(i, j int) bool {
		a, b := ms[i], ms[j]
		if a.StudentID != b.StudentID {
			return a.StudentID < b.StudentID
		}
		if a.MeasurementNumber != b.MeasurementNumber {
			return a.MeasurementNumber < b.MeasurementNumber
		}
		return a.GalaxyID < b.GalaxyID
	})
	return ms
}

func (repo *hubbleRepository) GetSampleMeasurement(_ context.Context, studentID int, number string) (hubble.SampleMeasurement, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	ms := repo.querySamples(func(m hubble.SampleMeasurement) bool {
		return m.StudentID == studentID && m.MeasurementNumber == number
	})
	if len(ms) == 0 {
		return hubble.SampleMeasurement{}, hubble.ErrMeasurementNotFound
	}
	return ms[0], nil
}

func (repo *hubbleRepository) QueryStudentSampleMeasurements(_ context.Context, studentID int) ([]hubble.SampleMeasurement, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	return repo.querySamples(func(m hubble.SampleMeasurement) bool { return m.StudentID == studentID }), nil
}

func (repo *hubbleRepository) QuerySampleMeasurements(_ context.Context, completeOnly bool, number string) ([]hubble.SampleMeasurement, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	return repo.querySamples(func(m hubble.SampleMeasurement) bool {
		return (!completeOnly || m.Complete()) && (number == "" || m.MeasurementNumber == number)
	}), nil
}

func (repo *hubbleRepository) DeleteSampleMeasurement(_ context.Context, studentID int, number string) (bool, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	var deleted bool
	for k := range repo.db.samples {
		if k.studentID == studentID && k.number == number {
			delete(repo.db.samples, k)
			deleted = true
		}
	}
	return deleted, nil
}

func (repo *hubbleRepository) QueryCohortMeasurements(_ context.Context, filter hubble.CohortFilter) ([]hubble.Measurement, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var inStudents map[int]bool
	if filter.StudentIDs != nil {
		inStudents = make(map[int]bool, len(filter.StudentIDs))
		for _, id := range filter.StudentIDs {
			inStudents[id] = true
		}
	}
	var inClasses map[int]bool
	if filter.ClassIDs != nil {
		inClasses = make(map[int]bool)
		for _, classID := range filter.ClassIDs {
			if repo.db.classIgnored(classID, filter.StoryName) {
				continue
			}
			for studentID := range repo.db.enrolments[classID] {
				inClasses[studentID] = true
			}
		}
	}

	ms := make([]hubble.Measurement, 0)
	for k, m := range repo.db.measurements {
		switch {
		case inStudents != nil && !inStudents[k.studentID],
			inClasses != nil && !inClasses[k.studentID],
			filter.ExcludeStudentID != 0 && k.studentID == filter.ExcludeStudentID,
			filter.CompleteOnly && !m.Complete(),
			repo.db.studentIgnored(k.studentID, filter.StoryName):
			continue
		}
		if m, ok := repo.withGalaxy(m); ok {
			ms = append(ms, m)
		}
	}
	sortMeasurements(ms)
	return ms, nil
}
