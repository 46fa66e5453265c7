package echoapi

import (
	"context"
	"net/http"
	"reflect"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/cosmicds/cds-api/core"
	"github.com/cosmicds/cds-api/core/apikey"
	"github.com/cosmicds/cds-api/core/eclipse"
	"github.com/cosmicds/cds-api/core/hubble"
	"github.com/cosmicds/cds-api/core/roster"
)

var (
	errMissingAPIKey = echo.NewHTTPError(http.StatusUnauthorized, "missing api key")
	errInvalidAPIKey = echo.NewHTTPError(http.StatusUnauthorized, "invalid api key")
)

// errorCodes maps domain sentinel errors to HTTP status codes. Their messages are safe to show.
var errorCodes = map[error]int{
	roster.ErrStudentNotFound:          http.StatusNotFound,
	roster.ErrClassNotFound:            http.StatusNotFound,
	roster.ErrStoryStateNotFound:       http.StatusNotFound,
	roster.ErrClassCodeExists:          http.StatusConflict,
	hubble.ErrGalaxyNotFound:           http.StatusNotFound,
	hubble.ErrMeasurementNotFound:      http.StatusNotFound,
	hubble.ErrNotInMergeGroup:          http.StatusNotFound,
	hubble.ErrMergeGroupNotFound:       http.StatusNotFound,
	hubble.ErrNoMergeCandidate:         http.StatusNotFound,
	hubble.ErrOverrideNotFound:         http.StatusNotFound,
	hubble.ErrMergeConflict:            http.StatusConflict,
	hubble.ErrMissingGalaxyRef:         http.StatusBadRequest,
	hubble.ErrInvalidGalaxyCounter:     http.StatusBadRequest,
	hubble.ErrInvalidMeasurementNumber: http.StatusBadRequest,
	eclipse.ErrDataNotFound:            http.StatusNotFound,
	apikey.ErrInvalidKey:               http.StatusUnauthorized,
}

func errorCode(err error) (int, bool) {
	if t := reflect.TypeOf(err); t == nil || !t.Comparable() {
		return 0, false
	}
	code, ok := errorCodes[err]
	return code, ok
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// statusCheck, when set, runs after every server error; its error replaces the cause.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(
	logger core.Logger,
	translator ut.Translator,
	statusCheck func(context.Context) error,
	signalShutdown func(),
) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		switch origErr := errors.Cause(err).(type) {
		case *echo.HTTPError:
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case validator.ValidationErrors:
			fldErrs := make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				fldErrs[vErr.Field()] = vErr.Translate(translator)
			}
			code = http.StatusBadRequest
			message = fldErrs
		case *core.ValidationError:
			if origErr.Fields != nil {
				fldErrs := make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				message = fldErrs
			} else {
				message = origErr.Error()
			}
			code = http.StatusBadRequest
		default:
			if c, ok := errorCode(origErr); ok {
				code = c
				message = origErr.Error()
				break
			}

			// any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			message = msg

			if statusCheck != nil && !core.IsShutdown(err) {
				if sErr := statusCheck(ctx.Request().Context()); sErr != nil {
					err = errors.Wrap(sErr, err.Error())
				}
			}

			args := []interface{}{errors.Wrap(err, msg), map[string]interface{}{
				"method": ctx.Request().Method,
				"path":   ctx.Path(),
			}}
			if key, ok := ctx.Get(contextAPIKey).(apikey.APIKey); ok {
				args = append(args, key)
			}
			logger.Error(msg, args...)

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if ctx.Echo().Debug && code == http.StatusInternalServerError {
			message = err.Error()
		}
		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
