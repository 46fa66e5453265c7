package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/cosmicds/cds-api/core/hubble"
)

const (
	galaxyColumns = `id, name, ra, decl, z, type, element, is_bad, spec_is_bad, is_sample,
		marked_bad, spec_marked_bad, tileload_marked_bad, spec_checked, spec_is_good`

	measurementColumns = `m.student_id, m.galaxy_id, m.rest_wave_value, m.rest_wave_unit, m.obs_wave_value, m.obs_wave_unit,
		m.velocity_value, m.velocity_unit, m.ang_size_value, m.ang_size_unit, m.est_dist_value, m.est_dist_unit,
		m.brightness, m.last_modified`

	// columns of the galaxy joined as g, scanned into Measurement.Galaxy
	joinedGalaxyColumns = `g.id AS "galaxy.id", g.ra AS "galaxy.ra", g.decl AS "galaxy.decl", g.z AS "galaxy.z",
		g.type AS "galaxy.type", g.name AS "galaxy.name", g.element AS "galaxy.element"`

	completeCondition = `m.obs_wave_value IS NOT NULL AND m.velocity_value IS NOT NULL
		AND m.ang_size_value IS NOT NULL AND m.est_dist_value IS NOT NULL`

	studentNotIgnored = `NOT EXISTS (SELECT 1 FROM ignore_students i
		WHERE i.student_id = %s AND (i.story_name IS NULL OR i.story_name = ?))`
	classNotIgnored = `NOT EXISTS (SELECT 1 FROM ignore_classes i
		WHERE i.class_id = %s AND (i.story_name IS NULL OR i.story_name = ?))`
)

type hubbleRepository struct {
	db *sqlx.DB
}

func NewHubbleRepository(db *sqlx.DB) hubble.Repository {
	return &hubbleRepository{db: db}
}

// galaxies

func (repo *hubbleRepository) CreateGalaxy(ctx context.Context, g hubble.FlaggedGalaxy) (hubble.FlaggedGalaxy, error) {
	cols := `name, ra, decl, z, type, element, is_bad, spec_is_bad, is_sample,
		marked_bad, spec_marked_bad, tileload_marked_bad, spec_checked, spec_is_good`
	vals := `:name, :ra, :decl, :z, :type, :element, :is_bad, :spec_is_bad, :is_sample,
		:marked_bad, :spec_marked_bad, :tileload_marked_bad, :spec_checked, :spec_is_good`
	if g.ID != 0 {
		cols, vals = "id, "+cols, ":id, "+vals
	}
	q, args, err := repo.db.BindNamed(fmt.Sprintf(`INSERT INTO galaxies (%s) VALUES (%s) RETURNING id`, cols, vals), g)
	if err != nil {
		return hubble.FlaggedGalaxy{}, errors.Wrap(err, "binding galaxy")
	}
	if err := repo.db.GetContext(ctx, &g.ID, q, args...); err != nil {
		return hubble.FlaggedGalaxy{}, errors.Wrap(err, "inserting galaxy")
	}
	return g, nil
}

func (repo *hubbleRepository) getGalaxy(ctx context.Context, where string, arg interface{}) (hubble.FlaggedGalaxy, error) {
	var g hubble.FlaggedGalaxy
	q := repo.db.Rebind(`SELECT ` + galaxyColumns + ` FROM galaxies WHERE ` + where)
	if err := repo.db.GetContext(ctx, &g, q, arg); err != nil {
		if err == sql.ErrNoRows {
			return hubble.FlaggedGalaxy{}, hubble.ErrGalaxyNotFound
		}
		return hubble.FlaggedGalaxy{}, errors.Wrap(err, "selecting galaxy")
	}
	return g, nil
}

func (repo *hubbleRepository) GetGalaxy(ctx context.Context, id int) (hubble.FlaggedGalaxy, error) {
	return repo.getGalaxy(ctx, "id = ?", id)
}

func (repo *hubbleRepository) GetGalaxyByName(ctx context.Context, name string) (hubble.FlaggedGalaxy, error) {
	return repo.getGalaxy(ctx, "name = ?", name)
}

func (repo *hubbleRepository) QueryGalaxies(ctx context.Context, f hubble.GalaxyFilter) ([]hubble.FlaggedGalaxy, error) {
	var (
		where []string
		args  []interface{}
	)
	if len(f.Types) > 0 {
		where = append(where, "type IN (?)")
		args = append(args, f.Types)
	}
	if f.NotBad {
		where = append(where, "is_bad = 0 AND spec_is_bad = 0")
	}
	if f.NotSample {
		where = append(where, "is_sample = 0")
	}
	if f.SampleOnly {
		where = append(where, "is_sample = 1")
	}
	if f.UncheckedOnly {
		where = append(where, "spec_checked = 0")
	}
	if f.MinID > 0 {
		where = append(where, "id >= ?")
		args = append(args, f.MinID)
	}
	if f.MaxID > 0 {
		where = append(where, "id <= ?")
		args = append(args, f.MaxID)
	}

	q := `SELECT ` + galaxyColumns + ` FROM galaxies`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	galaxies := make([]hubble.FlaggedGalaxy, 0)
	if err := selectIn(ctx, repo.db, &galaxies, q+" ORDER BY id", args...); err != nil {
		return nil, errors.Wrap(err, "selecting galaxies")
	}
	return galaxies, nil
}

func (repo *hubbleRepository) IncrementGalaxyCounter(ctx context.Context, id int, counter hubble.GalaxyCounter) error {
	if !counter.Valid() {
		return hubble.ErrInvalidGalaxyCounter
	}
	// counter is one of a fixed set of column names
	q := repo.db.Rebind(fmt.Sprintf(`UPDATE galaxies SET %[1]s = %[1]s + 1 WHERE id = ?`, counter))
	res, err := repo.db.ExecContext(ctx, q, id)
	if err != nil {
		return errors.Wrap(err, "updating galaxy")
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return hubble.ErrGalaxyNotFound
	}
	return nil
}

func (repo *hubbleRepository) SetGalaxySpectrumStatus(ctx context.Context, id int, good bool) error {
	var isGood int
	if good {
		isGood = 1
	}
	q := repo.db.Rebind(`UPDATE galaxies SET spec_checked = 1, spec_is_good = ? WHERE id = ?`)
	res, err := repo.db.ExecContext(ctx, q, isGood, id)
	if err != nil {
		return errors.Wrap(err, "updating galaxy")
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return hubble.ErrGalaxyNotFound
	}
	return nil
}

func (repo *hubbleRepository) GalaxyMeasurementCounts(ctx context.Context) (map[int]int, error) {
	var rows []struct {
		GalaxyID int `db:"galaxy_id"`
		Count    int `db:"count"`
	}
	q := `SELECT m.galaxy_id, COUNT(*) AS count FROM hubble_measurements m
		JOIN galaxies g ON g.id = m.galaxy_id
		JOIN students s ON s.id = m.student_id
		WHERE s.seed OR NOT s.dummy
		GROUP BY m.galaxy_id`
	if err := repo.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, errors.Wrap(err, "counting measurements")
	}
	counts := make(map[int]int, len(rows))
	for _, r := range rows {
		counts[r.GalaxyID] = r.Count
	}
	return counts, nil
}

// measurements

var measurementValueColumns = []string{
	"rest_wave_value", "rest_wave_unit", "obs_wave_value", "obs_wave_unit", "velocity_value",
	"velocity_unit", "ang_size_value", "ang_size_unit", "est_dist_value", "est_dist_unit", "brightness", "last_modified",
}

func measurementValueArgs(m hubble.Measurement) []interface{} {
	return []interface{}{
		m.RestWaveValue, m.RestWaveUnit, m.ObsWaveValue, m.ObsWaveUnit, m.VelocityValue,
		m.VelocityUnit, m.AngSizeValue, m.AngSizeUnit, m.EstDistValue, m.EstDistUnit, m.Brightness, m.LastModified,
	}
}

// upsert inserts the row or, when its key exists, updates its measurement values.
// It reports whether the row was created.
func (repo *hubbleRepository) upsert(ctx context.Context, table string, keyCols []string, keyArgs []interface{}, m hubble.Measurement) (bool, error) {
	valueCols := measurementValueColumns
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(keyCols)+len(valueCols)), ", ")
	insert := fmt.Sprintf(`INSERT INTO %s (%s, %s) VALUES (%s) ON CONFLICT DO NOTHING`,
		table, strings.Join(keyCols, ", "), strings.Join(valueCols, ", "), placeholders)

	sets := make([]string, len(valueCols))
	for i, c := range valueCols {
		sets[i] = c + " = ?"
	}
	wheres := make([]string, len(keyCols))
	for i, c := range keyCols {
		wheres[i] = c + " = ?"
	}
	update := fmt.Sprintf(`UPDATE %s SET %s WHERE %s`, table, strings.Join(sets, ", "), strings.Join(wheres, " AND "))

	var created bool
	err := inTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, tx.Rebind(insert), append(append([]interface{}{}, keyArgs...), measurementValueArgs(m)...)...)
		if err != nil {
			return errors.Wrap(err, "inserting measurement")
		}
		if created, err = affected(res); err != nil || created {
			return err
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(update), append(measurementValueArgs(m), keyArgs...)...); err != nil {
			return errors.Wrap(err, "updating measurement")
		}
		return nil
	})
	return created, err
}

func (repo *hubbleRepository) UpsertMeasurement(ctx context.Context, m hubble.Measurement) (bool, error) {
	return repo.upsert(ctx, "hubble_measurements",
		[]string{"student_id", "galaxy_id"}, []interface{}{m.StudentID, m.GalaxyID}, m)
}

func (repo *hubbleRepository) selectMeasurements(ctx context.Context, where string, args ...interface{}) ([]hubble.Measurement, error) {
	q := `SELECT ` + measurementColumns + `, ` + joinedGalaxyColumns + `
		FROM hubble_measurements m JOIN galaxies g ON g.id = m.galaxy_id
		WHERE ` + where + ` ORDER BY m.student_id, m.galaxy_id`
	ms := make([]hubble.Measurement, 0)
	if err := selectIn(ctx, repo.db, &ms, q, args...); err != nil {
		return nil, errors.Wrap(err, "selecting measurements")
	}
	return ms, nil
}

func (repo *hubbleRepository) GetMeasurement(ctx context.Context, studentID, galaxyID int) (hubble.Measurement, error) {
	var m hubble.Measurement
	q := repo.db.Rebind(`SELECT ` + measurementColumns + ` FROM hubble_measurements m WHERE m.student_id = ? AND m.galaxy_id = ?`)
	if err := repo.db.GetContext(ctx, &m, q, studentID, galaxyID); err != nil {
		if err == sql.ErrNoRows {
			return hubble.Measurement{}, hubble.ErrMeasurementNotFound
		}
		return hubble.Measurement{}, errors.Wrap(err, "selecting measurement")
	}
	if g, err := repo.GetGalaxy(ctx, galaxyID); err == nil {
		m.Galaxy = &g.Galaxy
	}
	return m, nil
}

func (repo *hubbleRepository) QueryStudentMeasurements(ctx context.Context, studentID int) ([]hubble.Measurement, error) {
	return repo.selectMeasurements(ctx, "m.student_id = ?", studentID)
}

func (repo *hubbleRepository) DeleteMeasurement(ctx context.Context, studentID, galaxyID int) (bool, error) {
	q := repo.db.Rebind(`DELETE FROM hubble_measurements WHERE student_id = ? AND galaxy_id = ?`)
	res, err := repo.db.ExecContext(ctx, q, studentID, galaxyID)
	if err != nil {
		return false, errors.Wrap(err, "deleting measurement")
	}
	return affected(res)
}

func (repo *hubbleRepository) UpsertSampleMeasurement(ctx context.Context, m hubble.SampleMeasurement) (bool, error) {
	return repo.upsert(ctx, "sample_hubble_measurements",
		[]string{"student_id", "galaxy_id", "measurement_number"},
		[]interface{}{m.StudentID, m.GalaxyID, m.MeasurementNumber}, m.Measurement)
}

func (repo *hubbleRepository) selectSampleMeasurements(ctx context.Context, where string, args ...interface{}) ([]hubble.SampleMeasurement, error) {
	q := `SELECT ` + measurementColumns + `, m.measurement_number, ` + joinedGalaxyColumns + `
		FROM sample_hubble_measurements m JOIN galaxies g ON g.id = m.galaxy_id
		WHERE ` + where + ` ORDER BY m.student_id, m.measurement_number, m.galaxy_id`
	ms := make([]hubble.SampleMeasurement, 0)
	if err := repo.db.SelectContext(ctx, &ms, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "selecting sample measurements")
	}
	return ms, nil
}

func (repo *hubbleRepository) GetSampleMeasurement(ctx context.Context, studentID int, number string) (hubble.SampleMeasurement, error) {
	ms, err := repo.selectSampleMeasurements(ctx, "m.student_id = ? AND m.measurement_number = ?", studentID, number)
	if err != nil {
		return hubble.SampleMeasurement{}, err
	}
	if len(ms) == 0 {
		return hubble.SampleMeasurement{}, hubble.ErrMeasurementNotFound
	}
	return ms[0], nil
}

func (repo *hubbleRepository) QueryStudentSampleMeasurements(ctx context.Context, studentID int) ([]hubble.SampleMeasurement, error) {
	return repo.selectSampleMeasurements(ctx, "m.student_id = ?", studentID)
}

func (repo *hubbleRepository) QuerySampleMeasurements(ctx context.Context, completeOnly bool, number string) ([]hubble.SampleMeasurement, error) {
	where, args := "1 = 1", []interface{}{}
	if completeOnly {
		where += " AND " + completeCondition
	}
	if number != "" {
		where += " AND m.measurement_number = ?"
		args = append(args, number)
	}
	return repo.selectSampleMeasurements(ctx, where, args...)
}

func (repo *hubbleRepository) DeleteSampleMeasurement(ctx context.Context, studentID int, number string) (bool, error) {
	q := repo.db.Rebind(`DELETE FROM sample_hubble_measurements WHERE student_id = ? AND measurement_number = ?`)
	res, err := repo.db.ExecContext(ctx, q, studentID, number)
	if err != nil {
		return false, errors.Wrap(err, "deleting sample measurement")
	}
	return affected(res)
}

func (repo *hubbleRepository) QueryCohortMeasurements(ctx context.Context, f hubble.CohortFilter) ([]hubble.Measurement, error) {
	if (f.ClassIDs != nil && len(f.ClassIDs) == 0) || (f.StudentIDs != nil && len(f.StudentIDs) == 0) {
		return []hubble.Measurement{}, nil
	}

	where := []string{fmt.Sprintf(studentNotIgnored, "m.student_id")}
	args := []interface{}{f.StoryName}
	if f.ClassIDs != nil {
		where = append(where, `EXISTS (SELECT 1 FROM students_classes sc
			WHERE sc.student_id = m.student_id AND sc.class_id IN (?) AND `+fmt.Sprintf(classNotIgnored, "sc.class_id")+`)`)
		args = append(args, f.ClassIDs, f.StoryName)
	}
	if f.StudentIDs != nil {
		where = append(where, "m.student_id IN (?)")
		args = append(args, f.StudentIDs)
	}
	if f.ExcludeStudentID != 0 {
		where = append(where, "m.student_id <> ?")
		args = append(args, f.ExcludeStudentID)
	}
	if f.CompleteOnly {
		where = append(where, completeCondition)
	}
	return repo.selectMeasurements(ctx, strings.Join(where, " AND "), args...)
}
