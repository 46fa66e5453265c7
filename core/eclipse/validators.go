package eclipse

import (
	"github.com/go-playground/validator/v10"
)

func (e Entry) Validate(validate *validator.Validate) error {
	return validate.Struct(e)
}
