package echoapi

import (
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/cosmicds/cds-api/core"
)

// paramInt reads an integer path parameter.
func paramInt(ctx echo.Context, name string) (int, error) {
	v, err := strconv.Atoi(ctx.Param(name))
	if err != nil {
		return 0, core.NewValidationError(nil, core.FieldError{Field: name, Error: name + " must be an integer"})
	}
	return v, nil
}

// queryBool is true only for a case-insensitive "true".
func queryBool(ctx echo.Context, name string) bool {
	return strings.EqualFold(ctx.QueryParam(name), "true")
}

// queryInt64 returns nil when the parameter is missing or not a number.
func queryInt64(ctx echo.Context, name string) *int64 {
	v, err := strconv.ParseInt(ctx.QueryParam(name), 10, 64)
	if err != nil {
		return nil
	}
	return &v
}

func queryInt(ctx echo.Context, name string) *int {
	v, err := strconv.Atoi(ctx.QueryParam(name))
	if err != nil {
		return nil
	}
	return &v
}

// queryTime reads an epoch timestamp in milliseconds.
func queryTime(ctx echo.Context, name string) *time.Time {
	ms := queryInt64(ctx, name)
	if ms == nil {
		return nil
	}
	t := time.Unix(0, *ms*int64(time.Millisecond)).UTC()
	return &t
}

// queryList accepts both repeated parameters and comma separated values.
func queryList(ctx echo.Context, name string) []string {
	var list []string
	for _, v := range ctx.QueryParams()[name] {
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				list = append(list, item)
			}
		}
	}
	return list
}

func errRequiredField(name string) error {
	return core.NewValidationError(nil, core.FieldError{Field: name, Error: "this field is required"})
}
