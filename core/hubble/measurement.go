package hubble

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/cosmicds/cds-api/core/roster"
)

// GalaxyFileName appends the .fits extension when it is missing.
func GalaxyFileName(name string) string {
	name = strings.TrimSpace(name)
	if !strings.HasSuffix(name, GalaxyFileExt) {
		name += GalaxyFileExt
	}
	return name
}

// resolveGalaxyID returns the id given, or the id of the galaxy with the given file name.
// An unknown name resolves to 0.
func (svc *Service) resolveGalaxyID(ctx context.Context, id *int, name string) (int, error) {
	if id != nil {
		return *id, nil
	}
	galaxy, err := svc.repo.GetGalaxyByName(ctx, GalaxyFileName(name))
	if err != nil {
		if errors.Cause(err) == ErrGalaxyNotFound {
			svc.logger.Warn("measurement for unknown galaxy", map[string]interface{}{"galaxy_name": name})
			return 0, nil
		}
		return 0, errors.Wrap(err, "getting galaxy by name")
	}
	return galaxy.ID, nil
}

// studentExists reports false, without error, for unknown students.
func (svc *Service) studentExists(ctx context.Context, studentID int) (bool, error) {
	if _, err := svc.roster.GetStudent(ctx, studentID); err != nil {
		if errors.Cause(err) == roster.ErrStudentNotFound {
			return false, nil
		}
		return false, errors.Wrap(err, "getting student")
	}
	return true, nil
}

// SubmitMeasurement creates or updates the student's measurement of a galaxy.
// Store write failures are logged and reported as WriteFailed.
func (svc *Service) SubmitMeasurement(ctx context.Context, nm NewMeasurement) (Measurement, SubmitResult, error) {
	galaxyID, err := svc.resolveGalaxyID(ctx, nm.GalaxyID, nm.GalaxyName)
	if err != nil {
		return Measurement{}, WriteFailed, err
	}
	m := Measurement{
		StudentID:         nm.StudentID,
		GalaxyID:          galaxyID,
		MeasurementValues: nm.MeasurementValues,
		LastModified:      time.Now().UTC(),
	}

	ok, err := svc.studentExists(ctx, nm.StudentID)
	if err != nil {
		return m, WriteFailed, err
	}
	if !ok {
		return m, NoSuchStudent, nil
	}

	created, err := svc.repo.UpsertMeasurement(ctx, m)
	if err != nil {
		svc.logger.Error("error storing measurement", err, map[string]interface{}{
			"student_id": m.StudentID,
			"galaxy_id":  m.GalaxyID,
		})
		return m, WriteFailed, nil
	}
	if created {
		return m, MeasurementCreated, nil
	}
	return m, MeasurementUpdated, nil
}

// SubmitSampleMeasurement is SubmitMeasurement for the tutorial measurements, keyed additionally
// by measurement number ("first" when not given).
func (svc *Service) SubmitSampleMeasurement(ctx context.Context, nm NewSampleMeasurement) (SampleMeasurement, SubmitResult, error) {
	number := nm.MeasurementNumber
	if number == "" {
		number = sampleNumberFirst
	}
	if !validMeasurementNumber(number) {
		return SampleMeasurement{}, SubmitBadRequest, nil
	}

	galaxyID, err := svc.resolveGalaxyID(ctx, nm.GalaxyID, nm.GalaxyName)
	if err != nil {
		return SampleMeasurement{}, WriteFailed, err
	}
	m := SampleMeasurement{
		Measurement: Measurement{
			StudentID:         nm.StudentID,
			GalaxyID:          galaxyID,
			MeasurementValues: nm.MeasurementValues,
			LastModified:      time.Now().UTC(),
		},
		MeasurementNumber: number,
	}

	ok, err := svc.studentExists(ctx, nm.StudentID)
	if err != nil {
		return m, WriteFailed, err
	}
	if !ok {
		return m, NoSuchStudent, nil
	}

	created, err := svc.repo.UpsertSampleMeasurement(ctx, m)
	if err != nil {
		svc.logger.Error("error storing sample measurement", err, map[string]interface{}{
			"student_id":         m.StudentID,
			"galaxy_id":          m.GalaxyID,
			"measurement_number": m.MeasurementNumber,
		})
		return m, WriteFailed, nil
	}
	if created {
		return m, MeasurementCreated, nil
	}
	return m, MeasurementUpdated, nil
}

// RemoveMeasurement deletes a measurement. galaxy is either a galaxy id or a galaxy name.
// It returns the galaxy id that was resolved.
func (svc *Service) RemoveMeasurement(ctx context.Context, studentID int, galaxy string) (int, RemoveResult, error) {
	galaxyID, _ := strconv.Atoi(galaxy)
	if galaxyID == 0 && galaxy != "" {
		g, err := svc.repo.GetGalaxyByName(ctx, galaxy)
		switch errors.Cause(err) {
		case nil:
			galaxyID = g.ID
		case ErrGalaxyNotFound:
		default:
			return 0, RemoveBadRequest, errors.Wrap(err, "getting galaxy by name")
		}
	}
	if studentID <= 0 || galaxyID == 0 {
		return galaxyID, RemoveBadRequest, nil
	}

	deleted, err := svc.repo.DeleteMeasurement(ctx, studentID, galaxyID)
	if err != nil {
		return galaxyID, RemoveBadRequest, errors.Wrap(err, "deleting measurement")
	}
	if !deleted {
		return galaxyID, NoSuchMeasurement, nil
	}
	return galaxyID, MeasurementDeleted, nil
}

func (svc *Service) RemoveSampleMeasurement(ctx context.Context, studentID int, number string) (RemoveResult, error) {
	if studentID <= 0 || !validMeasurementNumber(number) {
		return RemoveBadRequest, nil
	}
	deleted, err := svc.repo.DeleteSampleMeasurement(ctx, studentID, number)
	if err != nil {
		return RemoveBadRequest, errors.Wrap(err, "deleting sample measurement")
	}
	if !deleted {
		return NoSuchMeasurement, nil
	}
	return MeasurementDeleted, nil
}

func (svc *Service) GetMeasurement(ctx context.Context, studentID, galaxyID int) (Measurement, error) {
	return svc.repo.GetMeasurement(ctx, studentID, galaxyID)
}

func (svc *Service) GetStudentMeasurements(ctx context.Context, studentID int) ([]Measurement, error) {
	if _, err := svc.roster.GetStudent(ctx, studentID); err != nil {
		return nil, err
	}
	return svc.repo.QueryStudentMeasurements(ctx, studentID)
}

func (svc *Service) GetSampleMeasurement(ctx context.Context, studentID int, number string) (SampleMeasurement, error) {
	if !validMeasurementNumber(number) {
		return SampleMeasurement{}, ErrInvalidMeasurementNumber
	}
	return svc.repo.GetSampleMeasurement(ctx, studentID, number)
}

func (svc *Service) GetStudentSampleMeasurements(ctx context.Context, studentID int) ([]SampleMeasurement, error) {
	return svc.repo.QueryStudentSampleMeasurements(ctx, studentID)
}

func (svc *Service) GetAllSampleMeasurements(ctx context.Context, excludeIncomplete bool) ([]SampleMeasurement, error) {
	return svc.repo.QuerySampleMeasurements(ctx, excludeIncomplete, "")
}

func (svc *Service) GetAllNthSampleMeasurements(ctx context.Context, number string) ([]SampleMeasurement, error) {
	if !validMeasurementNumber(number) {
		return nil, ErrInvalidMeasurementNumber
	}
	return svc.repo.QuerySampleMeasurements(ctx, false, number)
}

// SubmitStudentData stores the student's fitted results.
func (svc *Service) SubmitStudentData(ctx context.Context, data StudentData) (StudentData, error) {
	if _, err := svc.roster.GetStudent(ctx, data.StudentID); err != nil {
		return StudentData{}, err
	}
	data.LastDataUpdate = time.Now().UTC()
	if err := svc.repo.UpsertStudentData(ctx, data); err != nil {
		return StudentData{}, errors.Wrap(err, "storing student data")
	}
	return data, nil
}

// SubmitClassData stores the class's fitted results.
func (svc *Service) SubmitClassData(ctx context.Context, data ClassData) (ClassData, error) {
	if _, err := svc.roster.GetClass(ctx, data.ClassID); err != nil {
		return ClassData{}, err
	}
	data.LastDataUpdate = time.Now().UTC()
	if err := svc.repo.UpsertClassData(ctx, data); err != nil {
		return ClassData{}, errors.Wrap(err, "storing class data")
	}
	return data, nil
}

func validMeasurementNumber(number string) bool {
	return number == sampleNumberFirst || number == sampleNumberSecond
}
