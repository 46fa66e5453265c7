package roster

import "github.com/go-playground/validator/v10"

func (ns NewStudent) Validate(validate *validator.Validate) error {
	return validate.Struct(ns)
}

func (nc NewClass) Validate(validate *validator.Validate) error {
	return validate.Struct(nc)
}

func (jc JoinClass) Validate(validate *validator.Validate) error {
	return validate.Struct(jc)
}
