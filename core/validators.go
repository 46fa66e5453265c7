package core

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

var (
	// custom validation tags & texts
	measurementNumberTag  = "measurement_number"
	measurementNumberText = "{0} must be either 'first' or 'second'"

	storyNameTag   = "story_name"
	storyNameText  = "{0} may only contain lowercase letters, digits, dashes and underscores"
	storyNameRegex = regexp.MustCompile(`^[a-z0-9_-]+$`)

	galaxyTypeTag   = "galaxy_type"
	galaxyTypeText  = "{0} must be a galaxy type such as Sp, E or Ir"
	galaxyTypeRegex = regexp.MustCompile(`^[A-Za-z]{1,8}$`)

	requiredTag     = "required"
	requiredWithTag = "required_without"
	requiredText    = "this field is required"
)

// NewValidator returns a validator and its english translator, set up for use.
func NewValidator() (*validator.Validate, ut.Translator) {
	english := en.New()
	uni := ut.New(english, english)
	translator, _ := uni.GetTranslator("en")
	validate := validator.New()
	InitValidators(validate, translator)
	return validate, translator
}

// InitValidators instantiates the validator for use.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// Use JSON tag names for errors instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// register custom validators
	_ = validate.RegisterValidation(measurementNumberTag, measurementNumberValidation)
	RegisterCustomTranslation(validate, translator, measurementNumberTag, measurementNumberText)

	_ = validate.RegisterValidation(storyNameTag, storyNameValidation)
	RegisterCustomTranslation(validate, translator, storyNameTag, storyNameText)

	_ = validate.RegisterValidation(galaxyTypeTag, galaxyTypeValidation)
	RegisterCustomTranslation(validate, translator, galaxyTypeTag, galaxyTypeText)

	RegisterCustomTranslation(validate, translator, requiredTag, requiredText, true)
	RegisterCustomTranslation(validate, translator, requiredWithTag, requiredText, true)
}

// RegisterCustomTranslation registers a custom translation for the specified validation tag.
func RegisterCustomTranslation(validate *validator.Validate, translator ut.Translator, tag, text string, override ...bool) {
	var ovrd bool
	if len(override) > 0 {
		ovrd = override[0]
	}
	_ = validate.RegisterTranslation(
		tag, translator,
		func(t ut.Translator) error { return t.Add(tag, text, ovrd) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

// ValidationErrorFrom converts validator errors into a ValidationError carrying translated field messages.
func ValidationErrorFrom(err error, translator ut.Translator) error {
	vErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	flds := make([]FieldError, 0, len(vErrs))
	for _, vErr := range vErrs {
		flds = append(flds, FieldError{Field: vErr.Field(), Error: vErr.Translate(translator)})
	}
	return NewValidationError(nil, flds...)
}

// Custom Global Validators

// measurementNumberValidation allows the empty string (defaults to "first") and the two sample ordinals.
func measurementNumberValidation(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "", "first", "second":
		return true
	}
	return false
}

func storyNameValidation(fl validator.FieldLevel) bool {
	return storyNameRegex.MatchString(fl.Field().String())
}

func galaxyTypeValidation(fl validator.FieldLevel) bool {
	return galaxyTypeRegex.MatchString(fl.Field().String())
}
