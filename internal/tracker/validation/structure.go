package validation

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ehr/tracker/internal/tracker"
	"github.com/ehr/tracker/internal/tracker/bundle"
)

var structValidator = newStructValidator()

func newStructValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report JSON property names so findings match the payload.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// structure reports every failed struct tag of obj under code. The property
// path is relative to the object, e.g. "attributes[0].attribute".
func structure[T tracker.Object](code Code) Validator[T] {
	return Func[T](func(r *Reporter, _ *bundle.Bundle, obj T) {
		err := structValidator.Struct(obj)
		if err == nil {
			return
		}
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			r.AddError(obj, code, err.Error())
			return
		}
		for _, fe := range verrs {
			r.AddError(obj, code, propertyPath(fe.Namespace()))
		}
	})
}

// propertyPath strips the struct name from a validator namespace.
func propertyPath(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}
