package echoapi

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/cosmicds/cds-api/core/hubble"
	metricsvc "github.com/cosmicds/cds-api/services/metrics"
)

type mergeApi struct {
	svc     *hubble.Service
	metrics *metricsvc.Metrics
}

func registerMergeAPI(g *echo.Group, svc *hubble.Service, metrics *metricsvc.Metrics) {
	api := mergeApi{svc: svc, metrics: metrics}

	g.GET("/merge-group/:classID", api.retrieveGroup)
	g.PUT("/merge-group/:classID", api.merge)
	g.PUT("/sync-merged-class/:classID", api.merge)
	g.DELETE("/merge-group/:classID", api.unmerge)

	g.GET("/waiting-room-override/:classID", api.retrieveOverride)
	g.PUT("/waiting-room-override/:classID", api.setOverride)
	g.DELETE("/waiting-room-override/:classID", api.removeOverride)
}

func outcome(err error) string {
	switch errors.Cause(err) {
	case nil:
		return "ok"
	case hubble.ErrNoMergeCandidate:
		return "no_candidate"
	case hubble.ErrMergeConflict:
		return "conflict"
	}
	return "error"
}

// Handlers

func (api *mergeApi) retrieveGroup(ctx echo.Context) error {
	classID, err := paramInt(ctx, "classID")
	if err != nil {
		return err
	}
	ids, err := api.svc.GetMergedClassIDs(ctx.Request().Context(), classID, queryBool(ctx, "ignore_merge_order"))
	if err != nil {
		return errors.Wrap(err, "getting merged class ids")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"class_id": classID, "merged_class_ids": ids})
}

func (api *mergeApi) merge(ctx echo.Context) error {
	classID, err := paramInt(ctx, "classID")
	if err != nil {
		return err
	}
	groupID, err := api.svc.AddClassToMergeGroup(ctx.Request().Context(), classID)
	api.metrics.ObserveMerge("add", outcome(err))
	if err != nil {
		if errors.Cause(err) == hubble.ErrNoMergeCandidate {
			return ctx.JSON(http.StatusNotFound, echo.Map{"error": fmt.Sprintf("No class available to merge class %d with", classID)})
		}
		return errors.Wrap(err, "adding class to merge group")
	}

	members, err := api.svc.GetMergeGroup(ctx.Request().Context(), classID)
	if err != nil {
		return errors.Wrap(err, "getting merge group")
	}
	return ctx.JSON(http.StatusOK, echo.Map{
		"merge_info": echo.Map{"class_id": classID, "group_id": groupID, "members": members},
		"message":    fmt.Sprintf("Class %d is in merge group %d", classID, groupID),
	})
}

func (api *mergeApi) unmerge(ctx echo.Context) error {
	classID, err := paramInt(ctx, "classID")
	if err != nil {
		return err
	}
	removed, err := api.svc.RemoveClassFromMergeGroup(ctx.Request().Context(), classID)
	api.metrics.ObserveMerge("remove", outcome(err))
	if err != nil {
		return err
	}
	if !removed {
		return hubble.ErrNotInMergeGroup
	}
	return ctx.JSON(http.StatusOK, echo.Map{"class_id": classID, "success": true})
}

func (api *mergeApi) retrieveOverride(ctx echo.Context) error {
	classID, err := paramInt(ctx, "classID")
	if err != nil {
		return err
	}
	override, err := api.svc.GetWaitingRoomOverride(ctx.Request().Context(), classID)
	if err != nil {
		return errors.Wrap(err, "getting waiting room override")
	}
	return ctx.JSON(http.StatusOK, override)
}

func (api *mergeApi) setOverride(ctx echo.Context) error {
	classID, err := paramInt(ctx, "classID")
	if err != nil {
		return err
	}
	created, groupID, err := api.svc.SetWaitingRoomOverride(ctx.Request().Context(), classID)
	api.metrics.ObserveMerge("override", outcome(err))
	if err != nil {
		if errors.Cause(err) == hubble.ErrNoMergeCandidate {
			return ctx.JSON(http.StatusNotFound, echo.Map{
				"class_id": classID,
				"success":  false,
				"error":    fmt.Sprintf("Override set, but no class available to merge class %d with", classID),
			})
		}
		return errors.Wrap(err, "setting waiting room override")
	}
	code := http.StatusOK
	if created {
		code = http.StatusCreated
	}
	return ctx.JSON(code, echo.Map{"class_id": classID, "group_id": groupID, "success": true})
}

func (api *mergeApi) removeOverride(ctx echo.Context) error {
	classID, err := paramInt(ctx, "classID")
	if err != nil {
		return err
	}
	deleted, err := api.svc.RemoveWaitingRoomOverride(ctx.Request().Context(), classID)
	if err != nil {
		return errors.Wrap(err, "removing waiting room override")
	}
	if !deleted {
		return hubble.ErrOverrideNotFound
	}
	return ctx.JSON(http.StatusOK, echo.Map{"class_id": classID, "success": true})
}
