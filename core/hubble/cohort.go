package hubble

import (
	"context"

	"github.com/pkg/errors"
)

// GetClassMeasurements returns the measurements a student's lesson shows as classmates' data.
//
// With a class, the cohort is every class merged with it no later than itself. Without one, the
// cohort is the peers listed in the student's "class_data_students" story state plus the student.
// Ignored students and classes never appear. When LastChecked is set and nothing in the result was
// modified after it, the result is empty.
func (svc *Service) GetClassMeasurements(ctx context.Context, q CohortQuery) ([]Measurement, error) {
	filter := CohortFilter{
		CompleteOnly: q.ExcludeIncomplete,
		StoryName:    StoryName,
	}
	if q.ClassID != nil {
		classIDs, err := svc.GetMergedClassIDs(ctx, *q.ClassID, false)
		if err != nil {
			return nil, err
		}
		filter.ClassIDs = classIDs
	} else {
		peers, err := svc.roster.ClassDataStudentIDs(ctx, q.StudentID, StoryName)
		if err != nil {
			return nil, errors.Wrap(err, "getting class data students")
		}
		filter.StudentIDs = append(peers, q.StudentID)
	}
	if q.ExcludeRequester {
		filter.ExcludeStudentID = q.StudentID
	}

	measurements, err := svc.repo.QueryCohortMeasurements(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "querying cohort measurements")
	}
	if measurements == nil {
		measurements = []Measurement{}
	}

	if q.LastChecked != nil && len(measurements) > 0 {
		var lastModified int64
		for _, m := range measurements {
			if ms := m.LastModified.UnixNano() / 1e6; ms > lastModified {
				lastModified = ms
			}
		}
		if lastModified <= *q.LastChecked {
			return []Measurement{}, nil
		}
	}
	return measurements, nil
}

// GetClassMeasurementCount is the size of GetClassMeasurements without staleness filtering.
func (svc *Service) GetClassMeasurementCount(ctx context.Context, studentID int, classID *int, excludeIncomplete bool) (int, error) {
	measurements, err := svc.GetClassMeasurements(ctx, CohortQuery{
		StudentID:         studentID,
		ClassID:           classID,
		ExcludeIncomplete: excludeIncomplete,
	})
	if err != nil {
		return 0, err
	}
	return len(measurements), nil
}

// GetStudentsWithCompleteMeasurementsCount counts the cohort's students with at least
// CompleteMeasurementsThreshold complete measurements.
func (svc *Service) GetStudentsWithCompleteMeasurementsCount(ctx context.Context, studentID int, classID *int) (int, error) {
	measurements, err := svc.GetClassMeasurements(ctx, CohortQuery{
		StudentID:         studentID,
		ClassID:           classID,
		ExcludeIncomplete: true,
	})
	if err != nil {
		return 0, err
	}

	counts := make(map[int]int)
	for _, m := range measurements {
		counts[m.StudentID]++
	}
	var num int
	for _, count := range counts {
		if count >= CompleteMeasurementsThreshold {
			num++
		}
	}
	return num, nil
}
