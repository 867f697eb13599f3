package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"sort"

	"github.com/sakif/user-directory/internal/apperror"
)

// DecodeBody reads a single JSON object from body into dst, which must be a
// pointer to a request struct.
//
// Problems with the body itself are validation failures, not server faults.
// A malformed document fails on its own. Field-level problems (a value of the
// wrong JSON type, a key the struct does not declare) do not stop decoding:
// every other field is still decoded and the struct rules run over the
// result, so the single failure lists every violation in the body.
//
// An empty body decodes as an empty object and passes; the service's rules
// then report what is missing.
func (v *Validator) DecodeBody(body io.Reader, dst any) error {
	rv := reflect.ValueOf(dst)
	if rv.Kind() != reflect.Pointer || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("validation: DecodeBody needs a pointer to a struct, got %T", dst)
	}

	var raw map[string]json.RawMessage
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		return bodyError(err)
	}

	problems := make([]string, 0)
	failed := make(map[string]bool)

	st := rv.Elem().Type()
	known := make(map[string]bool, st.NumField())
	for i := 0; i < st.NumField(); i++ {
		name := jsonName(st.Field(i))
		if name == "" {
			continue
		}
		known[name] = true

		value, ok := raw[name]
		if !ok {
			continue
		}
		if err := json.Unmarshal(value, rv.Elem().Field(i).Addr().Interface()); err != nil {
			problems = append(problems, typeMessage(name, err))
			failed[name] = true
		}
	}

	unknown := make([]string, 0)
	for key := range raw {
		if !known[key] {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	for _, key := range unknown {
		problems = append(problems, fmt.Sprintf("%q is not allowed", key))
	}

	if len(problems) == 0 {
		return nil
	}

	rules, err := v.violations(rv.Elem().Interface(), failed)
	if err != nil {
		return err
	}
	return apperror.Invalid(append(problems, rules...))
}

// bodyError classifies a failure to read the body as one JSON object.
func bodyError(err error) error {
	if errors.Is(err, io.EOF) {
		return nil
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	var maxErr *http.MaxBytesError

	switch {
	case errors.As(err, &typeErr):
		return apperror.ValidationFailed("", "request body must be a JSON object")
	case errors.As(err, &syntaxErr), errors.Is(err, io.ErrUnexpectedEOF):
		return apperror.ValidationFailed("", "request body must be valid JSON")
	case errors.As(err, &maxErr):
		return apperror.ValidationFailed("", "request body is too large")
	default:
		return apperror.ValidationFailed("", "request body could not be read")
	}
}

func typeMessage(field string, err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return fmt.Sprintf("%q must be a %s", field, jsonKind(typeErr.Type.Kind().String()))
	}
	return fmt.Sprintf("%q is invalid", field)
}

func jsonKind(goKind string) string {
	switch goKind {
	case "float32", "float64", "int", "int64":
		return "number"
	case "ptr":
		return "value"
	default:
		return goKind
	}
}
