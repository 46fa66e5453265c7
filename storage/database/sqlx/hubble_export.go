package sqlxrepos

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/cosmicds/cds-api/core/hubble"
	"github.com/cosmicds/cds-api/core/roster"
)

// exportWhere selects rows of real, non-ignored students under each of their non-ignored classes.
// The query joins students as s and students_classes as sc.
func exportWhere(studentCol string, f hubble.ExportFilter) (string, []interface{}) {
	where := []string{
		"(s.seed OR NOT s.dummy)",
		fmt.Sprintf(studentNotIgnored, studentCol),
		fmt.Sprintf(classNotIgnored, "sc.class_id"),
	}
	args := []interface{}{f.StoryName, f.StoryName}
	if len(f.ExcludeClassIDs) > 0 {
		where = append(where, "sc.class_id NOT IN (?)")
		args = append(args, f.ExcludeClassIDs)
	}
	return strings.Join(where, " AND "), args
}

// before reports whether t passes the filter's cutoff. sqlite timestamps are text, so the cutoff is applied in Go.
func before(f hubble.ExportFilter, t time.Time) bool {
	return f.Before == nil || t.Before(*f.Before)
}

func (repo *hubbleRepository) QueryExportMeasurements(ctx context.Context, f hubble.ExportFilter) ([]hubble.ClassMeasurement, error) {
	where, args := exportWhere("m.student_id", f)
	if f.CompleteOnly {
		where += " AND " + completeCondition
	}
	q := `SELECT ` + measurementColumns + `, sc.class_id
		FROM hubble_measurements m
		JOIN students s ON s.id = m.student_id
		JOIN students_classes sc ON sc.student_id = m.student_id
		WHERE ` + where + `
		ORDER BY m.student_id, m.galaxy_id, sc.class_id`

	var rows []hubble.ClassMeasurement
	if err := selectIn(ctx, repo.db, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "selecting export measurements")
	}
	filtered := make([]hubble.ClassMeasurement, 0, len(rows))
	for _, row := range rows {
		if before(f, row.LastModified) {
			filtered = append(filtered, row)
		}
	}
	return filtered, nil
}

const studentDataColumns = `d.student_id, d.age_value, d.age_unit, d.hubble_fit_value, d.hubble_fit_unit, d.last_data_update`

func (repo *hubbleRepository) QueryExportStudentData(ctx context.Context, f hubble.ExportFilter) ([]hubble.StudentDataRow, error) {
	where, args := exportWhere("d.student_id", f)
	q := `SELECT ` + studentDataColumns + `, sc.class_id, s.seed, s.dummy
		FROM hubble_student_data d
		JOIN students s ON s.id = d.student_id
		JOIN students_classes sc ON sc.student_id = d.student_id
		WHERE ` + where + `
		ORDER BY d.student_id, sc.class_id`

	var rows []hubble.StudentDataRow
	if err := selectIn(ctx, repo.db, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "selecting export student data")
	}
	filtered := make([]hubble.StudentDataRow, 0, len(rows))
	for _, row := range rows {
		if before(f, row.LastDataUpdate) {
			filtered = append(filtered, row)
		}
	}
	return filtered, nil
}

const classDataColumns = `d.class_id, d.age_value, d.age_unit, d.hubble_fit_value, d.hubble_fit_unit, d.last_data_update`

func (repo *hubbleRepository) QueryExportClassData(ctx context.Context, f hubble.ExportFilter, minMeasurements int) ([]hubble.ClassData, error) {
	where := []string{fmt.Sprintf(classNotIgnored, "d.class_id")}
	args := []interface{}{f.StoryName}
	if len(f.ExcludeClassIDs) > 0 {
		where = append(where, "d.class_id NOT IN (?)")
		args = append(args, f.ExcludeClassIDs)
	}
	where = append(where, `(SELECT COUNT(*) FROM hubble_measurements m
		JOIN students_classes sc ON sc.student_id = m.student_id
		WHERE sc.class_id = d.class_id AND `+completeCondition+`) >= ?`)
	args = append(args, minMeasurements)
	q := `SELECT ` + classDataColumns + ` FROM hubble_class_data d
		WHERE ` + strings.Join(where, " AND ") + ` ORDER BY d.class_id`

	var rows []hubble.ClassData
	if err := selectIn(ctx, repo.db, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "selecting export class data")
	}
	filtered := make([]hubble.ClassData, 0, len(rows))
	for _, row := range rows {
		if before(f, row.LastDataUpdate) {
			filtered = append(filtered, row)
		}
	}
	return filtered, nil
}

func (repo *hubbleRepository) UpsertStudentData(ctx context.Context, data hubble.StudentData) error {
	q := `INSERT INTO hubble_student_data (student_id, age_value, age_unit, hubble_fit_value, hubble_fit_unit, last_data_update)
		VALUES (:student_id, :age_value, :age_unit, :hubble_fit_value, :hubble_fit_unit, :last_data_update)
		ON CONFLICT (student_id) DO UPDATE SET age_value = excluded.age_value, age_unit = excluded.age_unit,
		hubble_fit_value = excluded.hubble_fit_value, hubble_fit_unit = excluded.hubble_fit_unit,
		last_data_update = excluded.last_data_update`
	if _, err := repo.db.NamedExecContext(ctx, q, data); err != nil {
		if isForeignKeyViolation(err) {
			return roster.ErrStudentNotFound
		}
		return errors.Wrap(err, "upserting student data")
	}
	return nil
}

func (repo *hubbleRepository) UpsertClassData(ctx context.Context, data hubble.ClassData) error {
	q := `INSERT INTO hubble_class_data (class_id, age_value, age_unit, hubble_fit_value, hubble_fit_unit, last_data_update)
		VALUES (:class_id, :age_value, :age_unit, :hubble_fit_value, :hubble_fit_unit, :last_data_update)
		ON CONFLICT (class_id) DO UPDATE SET age_value = excluded.age_value, age_unit = excluded.age_unit,
		hubble_fit_value = excluded.hubble_fit_value, hubble_fit_unit = excluded.hubble_fit_unit,
		last_data_update = excluded.last_data_update`
	if _, err := repo.db.NamedExecContext(ctx, q, data); err != nil {
		if isForeignKeyViolation(err) {
			return roster.ErrClassNotFound
		}
		return errors.Wrap(err, "upserting class data")
	}
	return nil
}
