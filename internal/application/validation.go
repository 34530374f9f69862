package application

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func inputValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(field reflect.StructField) string {
			name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			if name == "" {
				return field.Name
			}
			return name
		})
		_ = v.RegisterValidation("category", func(fl validator.FieldLevel) bool {
			return slices.Contains(Categories, fl.Field().String())
		})
		validate = v
	})
	return validate
}

// validateStruct runs the struct tags of input and converts failures into a
// ValidationError keyed by JSON field name.
func validateStruct(input any) *ValidationError {
	vErr := &ValidationError{}
	err := inputValidator().Struct(input)
	if err == nil {
		return vErr
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		vErr.add("input", err.Error())
		return vErr
	}
	for _, fe := range fieldErrs {
		vErr.add(fieldPath(fe), describeFieldError(fe))
	}
	return vErr
}

// fieldPath drops the struct name prefix from the validator namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return fe.Field()
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("must contain at most %s items", fe.Param())
		}
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at most %s characters", fe.Param())
		}
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "min":
		if fe.Kind() == reflect.String {
			return "must not be empty"
		}
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "url":
		return "must be a valid URL"
	case "category":
		return "must be one of " + strings.Join(Categories, ", ")
	case "oneof":
		return "must be one of " + fe.Param()
	}
	return "is invalid"
}

// normalizeTags trims, de-duplicates and sorts tags.
func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" || slices.Contains(out, tag) {
			continue
		}
		out = append(out, tag)
	}
	slices.Sort(out)
	return out
}

func trimInput(input EventInput) EventInput {
	input.Title = strings.TrimSpace(input.Title)
	input.Description = strings.TrimSpace(input.Description)
	input.Time = strings.TrimSpace(input.Time)
	input.Location = strings.TrimSpace(input.Location)
	input.Organizer = strings.TrimSpace(input.Organizer)
	input.Category = strings.ToLower(strings.TrimSpace(input.Category))
	input.ImageURL = normalizeOptionalString(input.ImageURL)
	return input
}

func trimPatch(patch EventPatch) EventPatch {
	trim := func(s *string) *string {
		if s == nil {
			return nil
		}
		v := strings.TrimSpace(*s)
		return &v
	}
	patch.Title = trim(patch.Title)
	patch.Description = trim(patch.Description)
	patch.Time = trim(patch.Time)
	patch.Location = trim(patch.Location)
	patch.Organizer = trim(patch.Organizer)
	if patch.Category != nil {
		c := strings.ToLower(strings.TrimSpace(*patch.Category))
		patch.Category = &c
	}
	patch.ImageURL = trim(patch.ImageURL)
	return patch
}

// validatePatch checks the patch tags. An empty image URL clears the image
// and is not checked as a URL.
func validatePatch(patch EventPatch) *ValidationError {
	if patch.ImageURL != nil && *patch.ImageURL == "" {
		patch.ImageURL = nil
	}
	return validateStruct(patch)
}

func normalizeOptionalString(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
