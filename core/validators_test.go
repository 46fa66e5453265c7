package core

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type validated struct {
	Number string `json:"measurement_number" validate:"measurement_number"`
	Story  string `json:"story_name" validate:"required,story_name"`
	Type   string `json:"type" validate:"omitempty,galaxy_type"`
}

func TestNewValidator(t *testing.T) {
	validate, translator := NewValidator()

	require.NoError(t, validate.Struct(validated{Story: "hubbles_law", Type: "Sp"}))
	require.NoError(t, validate.Struct(validated{Number: "second", Story: "solar-eclipse-2024"}))

	err := validate.Struct(validated{Number: "third", Story: "Hubble's Law", Type: "S0 galaxy"})
	require.Error(t, err)
	vErrs, ok := err.(validator.ValidationErrors)
	require.True(t, ok)
	assert.Len(t, vErrs, 3)

	vErr, ok := ValidationErrorFrom(err, translator).(*ValidationError)
	require.True(t, ok)
	assert.Equal(t, []FieldError{
		{Field: "measurement_number", Error: "measurement_number must be either 'first' or 'second'"},
		{Field: "story_name", Error: "story_name may only contain lowercase letters, digits, dashes and underscores"},
		{Field: "type", Error: "type must be a galaxy type such as Sp, E or Ir"},
	}, vErr.Fields)

	err = validate.Struct(validated{})
	vErr, ok = ValidationErrorFrom(err, translator).(*ValidationError)
	require.True(t, ok)
	assert.Equal(t, []FieldError{{Field: "story_name", Error: "this field is required"}}, vErr.Fields)
}
