package echoapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/cosmicds/cds-api/core"
	"github.com/cosmicds/cds-api/core/roster"
)

type rosterApi struct {
	svc      *roster.Service
	validate *validator.Validate
}

func registerRosterAPI(g *echo.Group, svc *roster.Service, validate *validator.Validate) {
	api := rosterApi{svc: svc, validate: validate}

	g.GET("/students/:id", api.retrieveStudent)
	g.POST("/students", api.createStudent)

	g.POST("/classes", api.createClass)
	g.POST("/classes/join", api.joinClass)
	g.GET("/classes/:id", api.retrieveClass)
	g.GET("/classes/size/:id", api.classSize)

	g.GET("/story-state/:studentID/:storyName", api.retrieveStoryState)
	g.PUT("/story-state/:studentID/:storyName", api.saveStoryState)
}

// Handlers

func (api *rosterApi) retrieveStudent(ctx echo.Context) error {
	id, err := paramInt(ctx, "id")
	if err != nil {
		return err
	}
	student, err := api.svc.GetStudent(ctx.Request().Context(), id)
	if err != nil {
		if errors.Cause(err) == roster.ErrStudentNotFound {
			return ctx.JSON(http.StatusNotFound, echo.Map{"student": nil})
		}
		return errors.Wrap(err, "getting student")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"student": student})
}

func (api *rosterApi) createStudent(ctx echo.Context) error {
	var data roster.NewStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStudent")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	student, err := api.svc.CreateStudent(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating student")
	}
	return ctx.JSON(http.StatusCreated, echo.Map{"student": student})
}

func (api *rosterApi) createClass(ctx echo.Context) error {
	var data roster.NewClass
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewClass")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	cls, err := api.svc.CreateClass(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating class")
	}
	return ctx.JSON(http.StatusCreated, echo.Map{"class": cls})
}

func (api *rosterApi) joinClass(ctx echo.Context) error {
	var data roster.JoinClass
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to JoinClass")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	cls, err := api.svc.JoinClass(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "joining class")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"student_id": data.StudentID, "class": cls})
}

func (api *rosterApi) retrieveClass(ctx echo.Context) error {
	id, err := paramInt(ctx, "id")
	if err != nil {
		return err
	}
	cls, err := api.svc.GetClass(ctx.Request().Context(), id)
	if err != nil {
		if errors.Cause(err) == roster.ErrClassNotFound {
			return ctx.JSON(http.StatusNotFound, echo.Map{"class": nil})
		}
		return errors.Wrap(err, "getting class")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"class": cls})
}

func (api *rosterApi) classSize(ctx echo.Context) error {
	id, err := paramInt(ctx, "id")
	if err != nil {
		return err
	}
	if _, err := api.svc.GetClass(ctx.Request().Context(), id); err != nil {
		if errors.Cause(err) == roster.ErrClassNotFound {
			return ctx.JSON(http.StatusNotFound, echo.Map{"message": "Class " + ctx.Param("id") + " not found"})
		}
		return errors.Wrap(err, "getting class")
	}
	size, err := api.svc.ClassSize(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "getting class size")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"class_id": id, "size": size})
}

func (api *rosterApi) retrieveStoryState(ctx echo.Context) error {
	studentID, err := paramInt(ctx, "studentID")
	if err != nil {
		return err
	}
	storyName := ctx.Param("storyName")
	state, err := api.svc.GetStoryState(ctx.Request().Context(), studentID, storyName)
	if err != nil {
		if errors.Cause(err) == roster.ErrStoryStateNotFound {
			return ctx.JSON(http.StatusNotFound, storyStateResponse(studentID, storyName, nil))
		}
		return errors.Wrap(err, "getting story state")
	}
	return ctx.JSON(http.StatusOK, storyStateResponse(studentID, storyName, state.State))
}

func (api *rosterApi) saveStoryState(ctx echo.Context) error {
	studentID, err := paramInt(ctx, "studentID")
	if err != nil {
		return err
	}
	storyName := ctx.Param("storyName")
	if err := api.validate.Var(storyName, "story_name"); err != nil {
		return core.NewValidationError(nil, core.FieldError{Field: "storyName", Error: "invalid story name"})
	}

	body, err := io.ReadAll(ctx.Request().Body)
	if err != nil {
		return errors.Wrap(err, "reading story state")
	}
	state, err := api.svc.SaveStoryState(ctx.Request().Context(), studentID, storyName, body)
	if err != nil {
		if errors.Cause(err) == roster.ErrStudentNotFound {
			return ctx.JSON(http.StatusNotFound, storyStateResponse(studentID, storyName, nil))
		}
		return err
	}
	return ctx.JSON(http.StatusOK, storyStateResponse(studentID, storyName, state.State))
}

func storyStateResponse(studentID int, storyName string, state json.RawMessage) echo.Map {
	var s interface{}
	if state != nil {
		s = state
	}
	return echo.Map{"student_id": studentID, "story_name": storyName, "state": s}
}
