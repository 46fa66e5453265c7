package echoapi

import (
	"context"
	"net/http"
	"net/url"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/cosmicds/cds-api/core"
	"github.com/cosmicds/cds-api/core/hubble"
)

const spectraBaseURL = "https://cosmicds.s3.us-east-1.amazonaws.com/spectra/"

type galaxyApi struct {
	svc      *hubble.Service
	validate *validator.Validate
}

type spectrumStatusRequest struct {
	GalaxyName string `json:"galaxy_name"`
	Good       *bool  `json:"good"`
}

func registerGalaxyAPI(g *echo.Group, svc *hubble.Service, validate *validator.Validate) {
	api := galaxyApi{svc: svc, validate: validate}

	g.GET("/galaxies", api.query)
	g.GET("/sample-galaxy", api.sample)
	g.GET("/unchecked-galaxies", api.unchecked)
	g.GET("/new-galaxies", api.newGalaxies)
	g.GET("/data-generation-galaxies", api.dataGeneration)
	g.GET("/spectra/:type/:name", api.spectrum)

	// not idempotent, counters are incremented on every call
	g.PUT("/mark-galaxy-bad", api.markBad(svc.MarkGalaxyBad))
	g.POST("/mark-spectrum-bad", api.markBad(svc.MarkSpectrumBad))
	g.POST("/mark-tileload-bad", api.markBad(svc.MarkTileloadBad))
	g.POST("/set-spectrum-status", api.setSpectrumStatus)
}

func (api *galaxyApi) types(ctx echo.Context) ([]string, error) {
	types := queryList(ctx, "types")
	for _, t := range types {
		if err := api.validate.Var(t, "galaxy_type"); err != nil {
			return nil, core.NewValidationError(nil, core.FieldError{Field: "types", Error: "invalid galaxy type " + t})
		}
	}
	return types, nil
}

// Handlers

func (api *galaxyApi) query(ctx echo.Context) error {
	types, err := api.types(ctx)
	if err != nil {
		return err
	}
	galaxies, err := api.svc.GetGalaxies(ctx.Request().Context(), types)
	if err != nil {
		return errors.Wrap(err, "getting galaxies")
	}
	if queryBool(ctx, "flags") {
		return ctx.JSON(http.StatusOK, nonNil(galaxies))
	}
	return ctx.JSON(http.StatusOK, hubble.Galaxies(galaxies))
}

func (api *galaxyApi) sample(ctx echo.Context) error {
	galaxy, err := api.svc.GetSampleGalaxy(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "getting sample galaxy")
	}
	return ctx.JSON(http.StatusOK, galaxy)
}

func (api *galaxyApi) unchecked(ctx echo.Context) error {
	galaxies, err := api.svc.GetUncheckedGalaxies(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "getting unchecked galaxies")
	}
	return ctx.JSON(http.StatusOK, nonNil(galaxies))
}

func (api *galaxyApi) newGalaxies(ctx echo.Context) error {
	galaxies, err := api.svc.GetNewGalaxies(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "getting new galaxies")
	}
	return ctx.JSON(http.StatusOK, nonNil(galaxies))
}

func (api *galaxyApi) dataGeneration(ctx echo.Context) error {
	types, err := api.types(ctx)
	if err != nil {
		return err
	}
	galaxies, err := api.svc.GetDataGenerationGalaxies(ctx.Request().Context(), types)
	if err != nil {
		return errors.Wrap(err, "getting data generation galaxies")
	}
	return ctx.JSON(http.StatusOK, nonNil(galaxies))
}

func (api *galaxyApi) spectrum(ctx echo.Context) error {
	target := spectraBaseURL + url.PathEscape(ctx.Param("type")) + "/" + url.PathEscape(ctx.Param("name"))
	return ctx.Redirect(http.StatusFound, target)
}

func (api *galaxyApi) markBad(mark func(context.Context, hubble.GalaxyRef) error) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		var ref hubble.GalaxyRef
		if err := ctx.Bind(&ref); err != nil {
			return errors.Wrap(err, "binding to GalaxyRef")
		}
		switch err := mark(ctx.Request().Context(), ref); errors.Cause(err) {
		case nil:
			return ctx.NoContent(http.StatusNoContent)
		case hubble.ErrMissingGalaxyRef:
			return ctx.JSON(http.StatusBadRequest, echo.Map{"status": "missing_id_or_name"})
		case hubble.ErrGalaxyNotFound:
			return ctx.JSON(http.StatusBadRequest, echo.Map{"status": "no_such_galaxy"})
		default:
			return errors.Wrap(err, "marking galaxy")
		}
	}
}

func (api *galaxyApi) setSpectrumStatus(ctx echo.Context) error {
	var data spectrumStatusRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to spectrumStatusRequest")
	}
	name := hubble.GalaxyFileName(data.GalaxyName)
	if data.Good == nil {
		return ctx.JSON(http.StatusBadRequest, echo.Map{"status": "invalid_status", "galaxy": name})
	}

	name, err := api.svc.SetSpectrumStatus(ctx.Request().Context(), name, *data.Good)
	if err != nil {
		if errors.Cause(err) == hubble.ErrGalaxyNotFound {
			return ctx.JSON(http.StatusBadRequest, echo.Map{"status": "no_such_galaxy", "galaxy": name})
		}
		return errors.Wrap(err, "setting spectrum status")
	}
	return ctx.JSON(http.StatusOK, echo.Map{
		"status":      "status_updated",
		"marked_good": *data.Good,
		"marked_bad":  !*data.Good,
		"galaxy":      name,
	})
}
