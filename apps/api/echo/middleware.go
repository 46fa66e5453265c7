package echoapi

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/cosmicds/cds-api/core/apikey"
	metricsvc "github.com/cosmicds/cds-api/services/metrics"
)

const contextAPIKey = "apiKey"

// apiKeyMiddleware rejects requests whose Authorization header does not hold a valid API key.
func apiKeyMiddleware(svc *apikey.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			plaintext := ctx.Request().Header.Get(echo.HeaderAuthorization)
			if plaintext == "" {
				return errMissingAPIKey
			}
			key, err := svc.Verify(ctx.Request().Context(), plaintext)
			if err != nil {
				if errors.Cause(err) == apikey.ErrInvalidKey {
					return errInvalidAPIKey
				}
				return errors.Wrap(err, "verifying api key")
			}
			ctx.Set(contextAPIKey, key)
			return next(ctx)
		}
	}
}

// noCacheMiddleware stops clients and proxies from caching responses that change with every submission.
func noCacheMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		h := ctx.Response().Header()
		h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
		h.Set("Pragma", "no-cache")
		h.Set("Expires", "0")
		return next(ctx)
	}
}

func metricsMiddleware(m *metricsvc.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			start := time.Now()
			if err := next(ctx); err != nil {
				ctx.Error(err)
			}
			req := ctx.Request()
			m.ObserveRequest(req.Method, ctx.Path(), ctx.Response().Status, time.Since(start))
			return nil
		}
	}
}
