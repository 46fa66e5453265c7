package echoapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/cosmicds/cds-api/core/hubble"
	"github.com/cosmicds/cds-api/core/roster"
	metricsvc "github.com/cosmicds/cds-api/services/metrics"
)

type hubbleApi struct {
	svc      *hubble.Service
	roster   *roster.Service
	metrics  *metricsvc.Metrics
	validate *validator.Validate
}

func registerHubbleAPI(
	g *echo.Group,
	svc *hubble.Service,
	rosterSvc *roster.Service,
	metrics *metricsvc.Metrics,
	validate *validator.Validate,
) {
	api := hubbleApi{
		svc:      svc,
		roster:   rosterSvc,
		metrics:  metrics,
		validate: validate,
	}

	// submissions
	g.PUT("/submit-measurement", api.submitMeasurement)
	g.PUT("/sample-measurement", api.submitSampleMeasurement)
	g.DELETE("/measurement/:studentID/:galaxyIdentifier", api.removeMeasurement)
	g.DELETE("/sample-measurement/:studentID/:measurementNumber", api.removeSampleMeasurement)
	g.PUT("/student-data", api.submitStudentData)
	g.PUT("/class-data", api.submitClassData)

	// reads
	g.GET("/measurements/:studentID", api.queryStudentMeasurements)
	g.GET("/measurements/:studentID/:galaxyID", api.retrieveMeasurement)
	g.GET("/sample-measurements", api.querySampleMeasurements)
	g.GET("/sample-measurements/:studentID", api.querySampleMeasurementsFor)
	g.GET("/sample-measurements/:studentID/:measurementNumber", api.retrieveSampleMeasurement)

	// cohort
	g.GET("/class-measurements/size/:studentID/:classID", api.classMeasurementCount, noCacheMiddleware)
	g.GET("/class-measurements/students-completed/:studentID/:classID", api.studentsCompletedCount, noCacheMiddleware)
	g.GET("/class-measurements/:studentID/:classID", api.classMeasurements)
	g.GET("/stage-3-data/:studentID/:classID", api.classMeasurements)
	g.GET("/class-measurements/:studentID", api.peerMeasurements)
	g.GET("/all-data", api.allData)

	registerGalaxyAPI(g, svc, validate)
	registerMergeAPI(g, svc, metrics)
}

// Handlers

type submitResponse struct {
	Measurement interface{} `json:"measurement"`
	Status      string      `json:"status"`
	Success     bool        `json:"success"`
}

func (api *hubbleApi) submitMeasurement(ctx echo.Context) error {
	var data hubble.NewMeasurement
	if err := ctx.Bind(&data); err != nil || api.validate.Struct(data) != nil {
		api.metrics.ObserveSubmission("measurement", string(hubble.SubmitBadRequest))
		return ctx.JSON(http.StatusBadRequest, submitResponse{Measurement: data, Status: string(hubble.SubmitBadRequest)})
	}

	m, result, err := api.svc.SubmitMeasurement(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "submitting measurement")
	}
	api.metrics.ObserveSubmission("measurement", string(result))
	return ctx.JSON(result.StatusCode(), submitResponse{Measurement: m, Status: string(result), Success: result.Success()})
}

func (api *hubbleApi) submitSampleMeasurement(ctx echo.Context) error {
	var data hubble.NewSampleMeasurement
	if err := ctx.Bind(&data); err != nil || api.validate.Struct(data) != nil {
		api.metrics.ObserveSubmission("sample", string(hubble.SubmitBadRequest))
		return ctx.JSON(http.StatusBadRequest, submitResponse{Measurement: data, Status: string(hubble.SubmitBadRequest)})
	}

	m, result, err := api.svc.SubmitSampleMeasurement(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "submitting sample measurement")
	}
	api.metrics.ObserveSubmission("sample", string(result))
	if result == hubble.SubmitBadRequest {
		return ctx.JSON(http.StatusBadRequest, submitResponse{Measurement: data, Status: string(result)})
	}
	return ctx.JSON(result.StatusCode(), submitResponse{Measurement: m, Status: string(result), Success: result.Success()})
}

func (api *hubbleApi) removeMeasurement(ctx echo.Context) error {
	studentID, _ := strconv.Atoi(ctx.Param("studentID"))
	galaxyID, result, err := api.svc.RemoveMeasurement(ctx.Request().Context(), studentID, ctx.Param("galaxyIdentifier"))
	if err != nil {
		return errors.Wrap(err, "removing measurement")
	}
	return ctx.JSON(result.StatusCode(), echo.Map{
		"student_id": studentID,
		"galaxy_id":  galaxyID,
		"status":     result,
		"success":    result.Success(),
	})
}

func (api *hubbleApi) removeSampleMeasurement(ctx echo.Context) error {
	studentID, _ := strconv.Atoi(ctx.Param("studentID"))
	result, err := api.svc.RemoveSampleMeasurement(ctx.Request().Context(), studentID, ctx.Param("measurementNumber"))
	if err != nil {
		return errors.Wrap(err, "removing sample measurement")
	}
	return ctx.JSON(result.StatusCode(), echo.Map{
		"student_id": studentID,
		"status":     result,
		"success":    result.Success(),
	})
}

func (api *hubbleApi) submitStudentData(ctx echo.Context) error {
	var data hubble.StudentData
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to StudentData")
	}
	if err := api.validate.Var(data.StudentID, "required,min=1"); err != nil {
		return errRequiredField("student_id")
	}
	stored, err := api.svc.SubmitStudentData(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "submitting student data")
	}
	return ctx.JSON(http.StatusOK, stored)
}

func (api *hubbleApi) submitClassData(ctx echo.Context) error {
	var data hubble.ClassData
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ClassData")
	}
	if err := api.validate.Var(data.ClassID, "required,min=1"); err != nil {
		return errRequiredField("class_id")
	}
	stored, err := api.svc.SubmitClassData(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "submitting class data")
	}
	return ctx.JSON(http.StatusOK, stored)
}

func (api *hubbleApi) queryStudentMeasurements(ctx echo.Context) error {
	studentID, err := paramInt(ctx, "studentID")
	if err != nil {
		return err
	}
	measurements, err := api.svc.GetStudentMeasurements(ctx.Request().Context(), studentID)
	if err != nil {
		if errors.Cause(err) == roster.ErrStudentNotFound {
			return ctx.JSON(http.StatusNotFound, echo.Map{"student_id": studentID, "measurements": nil})
		}
		return errors.Wrap(err, "getting student measurements")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"student_id": studentID, "measurements": nonNil(measurements)})
}

func (api *hubbleApi) retrieveMeasurement(ctx echo.Context) error {
	studentID, err := paramInt(ctx, "studentID")
	if err != nil {
		return err
	}
	galaxyID, err := paramInt(ctx, "galaxyID")
	if err != nil {
		return err
	}
	resp := echo.Map{"student_id": studentID, "galaxy_id": galaxyID, "measurement": nil}
	m, err := api.svc.GetMeasurement(ctx.Request().Context(), studentID, galaxyID)
	if err != nil {
		if errors.Cause(err) == hubble.ErrMeasurementNotFound {
			return ctx.JSON(http.StatusNotFound, resp)
		}
		return errors.Wrap(err, "getting measurement")
	}
	resp["measurement"] = m
	return ctx.JSON(http.StatusOK, resp)
}

// querySampleMeasurements lists every sample measurement. Incomplete ones are left out unless filter_null=false.
func (api *hubbleApi) querySampleMeasurements(ctx echo.Context) error {
	filterNull := !strings.EqualFold(ctx.QueryParam("filter_null"), "false")
	measurements, err := api.svc.GetAllSampleMeasurements(ctx.Request().Context(), filterNull)
	if err != nil {
		return errors.Wrap(err, "getting sample measurements")
	}
	return ctx.JSON(http.StatusOK, nonNil(measurements))
}

// querySampleMeasurementsFor serves both /sample-measurements/:studentID and /sample-measurements/:measurementNumber.
func (api *hubbleApi) querySampleMeasurementsFor(ctx echo.Context) error {
	id := ctx.Param("studentID")
	if studentID, err := strconv.Atoi(id); err == nil {
		measurements, err := api.svc.GetStudentSampleMeasurements(ctx.Request().Context(), studentID)
		if err != nil {
			return errors.Wrap(err, "getting student sample measurements")
		}
		return ctx.JSON(http.StatusOK, echo.Map{"student_id": studentID, "measurements": nonNil(measurements)})
	}

	measurements, err := api.svc.GetAllNthSampleMeasurements(ctx.Request().Context(), id)
	if err != nil {
		if errors.Cause(err) == hubble.ErrInvalidMeasurementNumber {
			return ctx.JSON(http.StatusBadRequest, nil)
		}
		return errors.Wrap(err, "getting sample measurements")
	}
	return ctx.JSON(http.StatusOK, nonNil(measurements))
}

func (api *hubbleApi) retrieveSampleMeasurement(ctx echo.Context) error {
	studentID, err := paramInt(ctx, "studentID")
	if err != nil {
		return err
	}
	resp := echo.Map{"student_id": studentID, "measurement": nil}
	m, err := api.svc.GetSampleMeasurement(ctx.Request().Context(), studentID, ctx.Param("measurementNumber"))
	switch errors.Cause(err) {
	case nil:
		resp["measurement"] = m
		return ctx.JSON(http.StatusOK, resp)
	case hubble.ErrMeasurementNotFound:
		return ctx.JSON(http.StatusNotFound, resp)
	case hubble.ErrInvalidMeasurementNumber:
		return ctx.JSON(http.StatusBadRequest, resp)
	}
	return errors.Wrap(err, "getting sample measurement")
}

// checkStudentAndClass writes a 404 naming the unknown ids. It returns false when it did so.
func (api *hubbleApi) checkStudentAndClass(ctx echo.Context, studentID int, classID *int) (bool, error) {
	var invalid []string
	if _, err := api.roster.GetStudent(ctx.Request().Context(), studentID); err != nil {
		if errors.Cause(err) != roster.ErrStudentNotFound {
			return false, errors.Wrap(err, "getting student")
		}
		invalid = append(invalid, "student")
	}
	if classID != nil {
		if _, err := api.roster.GetClass(ctx.Request().Context(), *classID); err != nil {
			if errors.Cause(err) != roster.ErrClassNotFound {
				return false, errors.Wrap(err, "getting class")
			}
			invalid = append(invalid, "class")
		}
	}
	if len(invalid) == 0 {
		return true, nil
	}

	message := "Invalid " + strings.Join(invalid, " and ") + " ID"
	if len(invalid) > 1 {
		message += "s"
	}
	return false, ctx.JSON(http.StatusNotFound, echo.Map{"message": message})
}

func (api *hubbleApi) cohortParams(ctx echo.Context) (int, int, error) {
	studentID, err := paramInt(ctx, "studentID")
	if err != nil {
		return 0, 0, err
	}
	classID, err := paramInt(ctx, "classID")
	if err != nil {
		return 0, 0, err
	}
	return studentID, classID, nil
}

func (api *hubbleApi) classMeasurementCount(ctx echo.Context) error {
	studentID, classID, err := api.cohortParams(ctx)
	if err != nil {
		return err
	}
	if ok, err := api.checkStudentAndClass(ctx, studentID, &classID); !ok {
		return err
	}
	count, err := api.svc.GetClassMeasurementCount(ctx.Request().Context(), studentID, &classID, queryBool(ctx, "complete_only"))
	if err != nil {
		return errors.Wrap(err, "counting class measurements")
	}
	return ctx.JSON(http.StatusOK, echo.Map{
		"student_id":        studentID,
		"class_id":          classID,
		"measurement_count": count,
	})
}

func (api *hubbleApi) studentsCompletedCount(ctx echo.Context) error {
	studentID, classID, err := api.cohortParams(ctx)
	if err != nil {
		return err
	}
	if ok, err := api.checkStudentAndClass(ctx, studentID, &classID); !ok {
		return err
	}
	count, err := api.svc.GetStudentsWithCompleteMeasurementsCount(ctx.Request().Context(), studentID, &classID)
	if err != nil {
		return errors.Wrap(err, "counting students with complete measurements")
	}
	return ctx.JSON(http.StatusOK, echo.Map{
		"student_id":                      studentID,
		"class_id":                        classID,
		"students_completed_measurements": count,
	})
}

func (api *hubbleApi) classMeasurements(ctx echo.Context) error {
	studentID, classID, err := api.cohortParams(ctx)
	if err != nil {
		return err
	}
	if ok, err := api.checkStudentAndClass(ctx, studentID, &classID); !ok {
		return err
	}
	measurements, err := api.svc.GetClassMeasurements(ctx.Request().Context(), hubble.CohortQuery{
		StudentID:         studentID,
		ClassID:           &classID,
		LastChecked:       queryInt64(ctx, "last_checked"),
		ExcludeIncomplete: queryBool(ctx, "complete_only"),
		ExcludeRequester:  queryBool(ctx, "exclude_student"),
	})
	if err != nil {
		return errors.Wrap(err, "getting class measurements")
	}
	return ctx.JSON(http.StatusOK, echo.Map{
		"student_id":   studentID,
		"class_id":     classID,
		"measurements": measurements,
	})
}

// peerMeasurements is the cohort of a student without a class: the peers saved in the student's story state.
func (api *hubbleApi) peerMeasurements(ctx echo.Context) error {
	studentID, err := paramInt(ctx, "studentID")
	if err != nil {
		return err
	}
	if ok, err := api.checkStudentAndClass(ctx, studentID, nil); !ok {
		return err
	}
	measurements, err := api.svc.GetClassMeasurements(ctx.Request().Context(), hubble.CohortQuery{
		StudentID:         studentID,
		LastChecked:       queryInt64(ctx, "last_checked"),
		ExcludeIncomplete: queryBool(ctx, "complete_only"),
		ExcludeRequester:  queryBool(ctx, "exclude_student"),
	})
	if err != nil {
		return errors.Wrap(err, "getting class measurements")
	}
	return ctx.JSON(http.StatusOK, echo.Map{
		"student_id":   studentID,
		"class_id":     nil,
		"measurements": measurements,
	})
}

// allData serves the three exports. before is an epoch timestamp in milliseconds.
func (api *hubbleApi) allData(ctx echo.Context) error {
	data, err := api.svc.AllDataJSON(ctx.Request().Context(), hubble.AllDataOptions{
		Before:  queryTime(ctx, "before"),
		Minimal: queryBool(ctx, "minimal"),
		ClassID: queryInt(ctx, "class_id"),
	})
	if err != nil {
		return errors.Wrap(err, "getting all data")
	}
	return ctx.JSONBlob(http.StatusOK, data)
}

func nonNil[T any](list []T) []T {
	if list == nil {
		return []T{}
	}
	return list
}
