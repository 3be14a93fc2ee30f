package resource

import (
	stderrors "errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"sockrest/internal/errors"
)

// Serializer converts between raw request data and entity instances.
// Implementations are written per resource, carry the resource's input DTO
// and own its validation rules.
type Serializer[T any] interface {
	// Apply decodes data and applies the provided fields onto dst. With
	// partial=false, fields the resource marks required must be present.
	// Fields absent from data keep their current values either way.
	// Validation failures are returned as errors.ValidationErrors.
	Apply(data []byte, dst *T, partial bool) error

	// Serialize converts an entity to its wire representation, including
	// fields the request did not touch.
	Serialize(entity *T) any

	// PrimaryKey extracts the entity's primary key.
	PrimaryKey(entity *T) uint64
}

// validate is the shared validator instance. Field names in error messages
// come from json tags so they match the wire format.
var validate = func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}()

// ValidateStruct runs validator tags on an input DTO and translates any
// failures into the protocol's field-level error list.
func ValidateStruct(in any) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) {
		return err
	}
	out := make(errors.ValidationErrors, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, errors.ValidationError{
			Field:   fe.Field(),
			Message: validationMessage(fe),
		})
	}
	return out
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "email":
		return "Enter a valid email address."
	case "min":
		return fmt.Sprintf("Ensure this field has at least %s characters.", fe.Param())
	case "max":
		return fmt.Sprintf("Ensure this field has no more than %s characters.", fe.Param())
	case "gte":
		return fmt.Sprintf("Ensure this value is greater than or equal to %s.", fe.Param())
	case "oneof":
		return fmt.Sprintf("Value must be one of: %s.", fe.Param())
	default:
		return fmt.Sprintf("Failed %q validation.", fe.Tag())
	}
}
