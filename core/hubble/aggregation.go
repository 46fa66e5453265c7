package hubble

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// CanonicalClassIDs maps every grouped class to the member of its group with the lowest merge order.
func CanonicalClassIDs(entries []MergeGroupEntry) map[int]int {
	first := make(map[int]MergeGroupEntry) // group id -> lowest merge order entry
	for _, e := range entries {
		if f, ok := first[e.GroupID]; !ok || e.MergeOrder < f.MergeOrder {
			first[e.GroupID] = e
		}
	}
	canonical := make(map[int]int, len(entries))
	for _, e := range entries {
		canonical[e.ClassID] = first[e.GroupID].ClassID
	}
	return canonical
}

func (svc *Service) exportFilter(ctx context.Context, opts AllDataOptions, completeOnly bool) (ExportFilter, error) {
	filter := ExportFilter{
		Before:       opts.Before,
		CompleteOnly: completeOnly,
		StoryName:    StoryName,
	}
	if opts.ClassID != nil {
		classIDs, err := svc.GetMergedClassIDs(ctx, *opts.ClassID, true)
		if err != nil {
			return ExportFilter{}, err
		}
		filter.ExcludeClassIDs = classIDs
	}
	return filter, nil
}

func (svc *Service) canonicalClassIDs(ctx context.Context) (map[int]int, error) {
	entries, err := svc.repo.QueryMergeEntries(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "querying merge entries")
	}
	return CanonicalClassIDs(entries), nil
}

// GetAllHubbleMeasurements exports every complete measurement of real students, under the canonical
// id of each class the student belongs to. Ignored students and classes are left out.
func (svc *Service) GetAllHubbleMeasurements(ctx context.Context, opts AllDataOptions) ([]ClassMeasurement, error) {
	filter, err := svc.exportFilter(ctx, opts, true)
	if err != nil {
		return nil, err
	}
	rows, err := svc.repo.QueryExportMeasurements(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "querying measurements")
	}
	canonical, err := svc.canonicalClassIDs(ctx)
	if err != nil {
		return nil, err
	}

	type key struct{ student, galaxy, class int }
	seen := make(map[key]bool, len(rows))
	measurements := make([]ClassMeasurement, 0, len(rows))
	for _, row := range rows {
		if id, ok := canonical[row.ClassID]; ok {
			row.ClassID = id
		}
		k := key{row.StudentID, row.GalaxyID, row.ClassID}
		if seen[k] {
			continue
		}
		seen[k] = true
		measurements = append(measurements, row)
	}
	return measurements, nil
}

func (svc *Service) GetAllHubbleStudentData(ctx context.Context, opts AllDataOptions) ([]StudentDataRow, error) {
	filter, err := svc.exportFilter(ctx, opts, false)
	if err != nil {
		return nil, err
	}
	rows, err := svc.repo.QueryExportStudentData(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "querying student data")
	}
	canonical, err := svc.canonicalClassIDs(ctx)
	if err != nil {
		return nil, err
	}

	type key struct{ student, class int }
	seen := make(map[key]bool, len(rows))
	data := make([]StudentDataRow, 0, len(rows))
	for _, row := range rows {
		if id, ok := canonical[row.ClassID]; ok {
			row.ClassID = id
		}
		k := key{row.StudentID, row.ClassID}
		if seen[k] {
			continue
		}
		seen[k] = true
		data = append(data, row)
	}
	return data, nil
}

// GetAllHubbleClassData exports the data of classes with at least ClassDataMinMeasurements complete measurements.
func (svc *Service) GetAllHubbleClassData(ctx context.Context, opts AllDataOptions) ([]ClassDataRow, error) {
	filter, err := svc.exportFilter(ctx, opts, true)
	if err != nil {
		return nil, err
	}
	rows, err := svc.repo.QueryExportClassData(ctx, filter, ClassDataMinMeasurements)
	if err != nil {
		return nil, errors.Wrap(err, "querying class data")
	}
	canonical, err := svc.canonicalClassIDs(ctx)
	if err != nil {
		return nil, err
	}

	data := make([]ClassDataRow, 0, len(rows))
	for _, row := range rows {
		canonicalID := row.ClassID
		if id, ok := canonical[row.ClassID]; ok {
			canonicalID = id
		}
		data = append(data, ClassDataRow{ClassData: row, CanonicalClassID: canonicalID})
	}
	return data, nil
}

// AllData builds the three exports.
func (svc *Service) AllData(ctx context.Context, opts AllDataOptions) (AllData, error) {
	measurements, err := svc.GetAllHubbleMeasurements(ctx, opts)
	if err != nil {
		return AllData{}, err
	}
	studentData, err := svc.GetAllHubbleStudentData(ctx, opts)
	if err != nil {
		return AllData{}, err
	}
	classData, err := svc.GetAllHubbleClassData(ctx, opts)
	if err != nil {
		return AllData{}, err
	}

	if !opts.Minimal {
		return AllData{Measurements: measurements, StudentData: studentData, ClassData: classData}, nil
	}

	minMeasurements := make([]MinimalMeasurement, 0, len(measurements))
	for _, m := range measurements {
		minMeasurements = append(minMeasurements, m.Minimal())
	}
	minStudentData := make([]MinimalStudentData, 0, len(studentData))
	for _, d := range studentData {
		minStudentData = append(minStudentData, d.Minimal())
	}
	minClassData := make([]MinimalClassData, 0, len(classData))
	for _, d := range classData {
		minClassData = append(minClassData, d.Minimal())
	}
	return AllData{Measurements: minMeasurements, StudentData: minStudentData, ClassData: minClassData}, nil
}

func allDataCacheKey(opts AllDataOptions) string {
	before, class := "-", "-"
	if opts.Before != nil {
		before = strconv.FormatInt(opts.Before.UnixNano()/1e6, 10)
	}
	if opts.ClassID != nil {
		class = strconv.Itoa(*opts.ClassID)
	}
	return fmt.Sprintf("hubble:all-data:%s:%t:%s", before, opts.Minimal, class)
}

// AllDataJSON returns AllData encoded as JSON. Only views cut off at a past instant
// are cached; the live view is rebuilt on every call.
func (svc *Service) AllDataJSON(ctx context.Context, opts AllDataOptions) ([]byte, error) {
	cacheable := opts.Before != nil && !opts.Before.After(time.Now())
	key := allDataCacheKey(opts)
	if cacheable {
		if data, ok := svc.cache.Get(ctx, key); ok {
			return data, nil
		}
	}

	all, err := svc.AllData(ctx, opts)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(all)
	if err != nil {
		return nil, errors.Wrap(err, "encoding all data")
	}
	if !cacheable {
		return data, nil
	}
	if err := svc.cache.Set(ctx, key, data); err != nil {
		svc.logger.Warn("error caching all data", err)
	}
	return data, nil
}
