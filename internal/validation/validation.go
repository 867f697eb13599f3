// Package validation is the gate every write and aggregation passes through
// before it reaches the store.
//
// Rules are declared as `validate:"..."` struct tags and checked with
// go-playground/validator. Validation is exhaustive: every violated rule is
// collected and returned as one apperror.Invalid failure, so a client sees all
// of its mistakes in a single response.
package validation

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/sakif/user-directory/internal/apperror"
	"github.com/sakif/user-directory/internal/model"
)

// Messages for the cross-field rules.
const (
	MsgUpdateNeedsField    = "At least one field (username, email, age, city) must be provided"
	MsgAggregateNeedsGroup = "At least one query parameter (city or age) must be true"
)

// AggregateQuery is the validated form of GET /api/users/aggregate.
type AggregateQuery struct {
	ByCity bool
	ByAge  bool
}

// aggregateParams holds the raw query values. Both default to "" (false).
type aggregateParams struct {
	City string `json:"city" validate:"omitempty,truefalse"`
	Age  string `json:"age"  validate:"omitempty,truefalse"`
}

// Validator holds the configured rule engine. It keeps no per-request state
// and is safe for concurrent use.
type Validator struct {
	v *validator.Validate
}

// New builds a Validator with the custom rules registered.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their JSON name ("username") instead of the Go name.
	v.RegisterTagNameFunc(jsonName)

	// Registration only fails on an empty tag name or nil func.
	_ = v.RegisterValidation("integer", isInteger)
	_ = v.RegisterValidation("safeint", isSafeInteger)
	_ = v.RegisterValidation("truefalse", isTrueFalse)

	v.RegisterStructValidation(requireOneField, model.UpdateUserRequest{})
	v.RegisterStructValidation(requireOneGroup, aggregateParams{})

	return &Validator{v: v}
}

// ValidateCreate checks a creation payload. All four fields are required.
func (v *Validator) ValidateCreate(req model.CreateUserRequest) error {
	return v.check(req)
}

// ValidateUpdate checks a partial update. Present fields follow the creation
// rules; at least one field must be present.
func (v *Validator) ValidateUpdate(req model.UpdateUserRequest) error {
	return v.check(req)
}

// ParseAggregateQuery reads the city and age flags. Each accepts "true" or
// "false" (any case) and defaults to false; both false is a failure.
func (v *Validator) ParseAggregateQuery(q url.Values) (AggregateQuery, error) {
	p := aggregateParams{
		City: q.Get("city"),
		Age:  q.Get("age"),
	}
	if err := v.check(p); err != nil {
		return AggregateQuery{}, err
	}
	return AggregateQuery{
		ByCity: strings.EqualFold(p.City, "true"),
		ByAge:  strings.EqualFold(p.Age, "true"),
	}, nil
}

func (v *Validator) check(s any) error {
	messages, err := v.violations(s, nil)
	if err != nil {
		return err
	}
	if len(messages) == 0 {
		return nil
	}
	return apperror.Invalid(messages)
}

// violations runs the struct rules on s and renders every failure. Fields
// named in skip already failed while decoding and are not reported twice;
// when any did, the "at least one field" rule is dropped too, since the
// client did send a field.
func (v *Validator) violations(s any, skip map[string]bool) ([]string, error) {
	err := v.v.Struct(s)
	if err == nil {
		return nil, nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil, fmt.Errorf("validation: %w", err)
	}

	messages := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if skip[fe.Field()] || (len(skip) > 0 && fe.Tag() == "atleastone") {
			continue
		}
		messages = append(messages, message(fe))
	}
	return messages, nil
}

// message renders one violation in the wording clients already parse.
func message(fe validator.FieldError) string {
	field := fe.Field()

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%q is required", field)
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%q length must be at least %s characters long", field, fe.Param())
		}
		return fmt.Sprintf("%q must be greater than or equal to %s", field, fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%q length must be less than or equal to %s characters long", field, fe.Param())
		}
		return fmt.Sprintf("%q must be less than or equal to %s", field, fe.Param())
	case "email":
		return fmt.Sprintf("%q must be a valid email", field)
	case "integer":
		return fmt.Sprintf("%q must be an integer", field)
	case "safeint":
		return fmt.Sprintf("%q must be a safe number", field)
	case "truefalse":
		return fmt.Sprintf("%q must be a boolean", field)
	case "atleastone":
		return MsgUpdateNeedsField
	case "atleastonetrue":
		return MsgAggregateNeedsGroup
	default:
		return fmt.Sprintf("%q failed the %q rule", field, fe.Tag())
	}
}

// jsonName returns the JSON key of a struct field, or "" when it has none.
func jsonName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	return name
}

func isInteger(fl validator.FieldLevel) bool {
	f := fl.Field()
	switch f.Kind() {
	case reflect.Float32, reflect.Float64:
		n := f.Float()
		return !math.IsInf(n, 0) && n == math.Trunc(n)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return true
	default:
		return false
	}
}

// maxSafeInteger is the largest integer a float64 holds exactly (2^53-1).
const maxSafeInteger = 1<<53 - 1

func isSafeInteger(fl validator.FieldLevel) bool {
	f := fl.Field()
	switch f.Kind() {
	case reflect.Float32, reflect.Float64:
		return math.Abs(f.Float()) <= maxSafeInteger
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n := f.Int()
		return n <= maxSafeInteger && n >= -maxSafeInteger
	default:
		return false
	}
}

func isTrueFalse(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	return strings.EqualFold(s, "true") || strings.EqualFold(s, "false")
}

func requireOneField(sl validator.StructLevel) {
	req := sl.Current().Interface().(model.UpdateUserRequest)
	if req.Username == nil && req.Email == nil && req.Age == nil && req.City == nil {
		sl.ReportError("", "body", "Body", "atleastone", "")
	}
}

func requireOneGroup(sl validator.StructLevel) {
	p := sl.Current().Interface().(aggregateParams)
	if !strings.EqualFold(p.City, "true") && !strings.EqualFold(p.Age, "true") {
		sl.ReportError("", "query", "Query", "atleastonetrue", "")
	}
}
