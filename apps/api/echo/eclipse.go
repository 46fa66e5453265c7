package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/cosmicds/cds-api/core/eclipse"
)

type eclipseApi struct {
	svc      *eclipse.Service
	validate *validator.Validate
}

func registerEclipseAPI(g *echo.Group, svc *eclipse.Service, validate *validator.Validate) {
	api := eclipseApi{svc: svc, validate: validate}

	g.PUT("/data", api.submit)
	g.GET("/data", api.query)
	g.GET("/data/:uuid", api.retrieve)
	g.PATCH("/data/:uuid", api.update)
}

// Handlers

func (api *eclipseApi) submit(ctx echo.Context) error {
	var entry eclipse.Entry
	if err := ctx.Bind(&entry); err != nil {
		return errors.Wrap(err, "binding to Entry")
	}
	if err := entry.Validate(api.validate); err != nil {
		return err
	}
	data, err := api.svc.Submit(ctx.Request().Context(), entry)
	if err != nil {
		return errors.Wrap(err, "submitting eclipse data")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"success": true, "response": data})
}

func (api *eclipseApi) query(ctx echo.Context) error {
	data, err := api.svc.GetAll(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "getting eclipse data")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"responses": nonNil(data)})
}

func (api *eclipseApi) retrieve(ctx echo.Context) error {
	uuid := ctx.Param("uuid")
	data, err := api.svc.Get(ctx.Request().Context(), uuid)
	if err != nil {
		if errors.Cause(err) == eclipse.ErrDataNotFound {
			return ctx.JSON(http.StatusNotFound, echo.Map{"user_uuid": uuid, "response": nil})
		}
		return errors.Wrap(err, "getting eclipse data")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"user_uuid": uuid, "response": data})
}

func (api *eclipseApi) update(ctx echo.Context) error {
	uuid := ctx.Param("uuid")
	var update eclipse.Update
	if err := ctx.Bind(&update); err != nil {
		return errors.Wrap(err, "binding to Update")
	}
	updated, err := api.svc.Update(ctx.Request().Context(), uuid, update)
	if err != nil {
		return errors.Wrap(err, "updating eclipse data")
	}
	if !updated {
		return ctx.JSON(http.StatusNotFound, echo.Map{"success": false, "error": "No response found for user " + uuid})
	}
	return ctx.JSON(http.StatusOK, echo.Map{"success": true})
}
