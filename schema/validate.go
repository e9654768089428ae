package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
)

// Result is the outcome of validating a document against a schema.
type Result struct {
	Valid  bool         `json:"valid"`
	Errors []FieldError `json:"errors,omitempty"`
}

// ValidationError wraps a failed Result as an error for callers that
// want to propagate field-level detail up the stack.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return "schema: validation failed: " + e.Errors[0].String()
	}
	return fmt.Sprintf("schema: validation failed with %d violations (first: %s)",
		len(e.Errors), e.Errors[0].String())
}

// Validate checks a raw JSON document against the schema, applies
// defaults for absent fields, and returns the normalized document plus
// a Result listing every violation. Defaults are applied before the
// required check, so a required field that declares a default always
// passes. Validate never fails the process; malformed input is
// reported in the Result.
func (s *Schema) Validate(doc []byte) ([]byte, Result) {
	var value any
	if len(doc) > 0 {
		if err := json.Unmarshal(doc, &value); err != nil {
			return doc, Result{Valid: false, Errors: []FieldError{
				{Path: "", Message: "document is not valid JSON: " + err.Error()},
			}}
		}
	}

	value = s.applyDefaults(value)

	var errs []FieldError
	s.check(value, "", &errs)
	if len(errs) > 0 {
		return doc, Result{Valid: false, Errors: errs}
	}

	normalized, err := json.Marshal(value)
	if err != nil {
		return doc, Result{Valid: false, Errors: []FieldError{
			{Path: "", Message: "document cannot be re-encoded: " + err.Error()},
		}}
	}
	return normalized, Result{Valid: true}
}

// applyDefaults fills absent object fields that declare defaults and
// recurses into present nested objects. The input is not mutated.
func (s *Schema) applyDefaults(value any) any {
	if value == nil && s.Default != nil {
		return s.Default
	}

	obj, ok := value.(map[string]any)
	if !ok || len(s.Properties) == 0 {
		return value
	}

	out := make(map[string]any, len(obj))
	for k, v := range obj {
		out[k] = v
	}
	for name, prop := range s.Properties {
		if v, present := out[name]; present {
			out[name] = prop.applyDefaults(v)
			continue
		}
		if prop.Default != nil {
			out[name] = prop.Default
		}
	}
	return out
}

// check recursively validates a decoded value, appending every
// violation to errs.
func (s *Schema) check(value any, path string, errs *[]FieldError) {
	if !s.checkType(value, path, errs) {
		// A type mismatch makes the remaining keyword checks
		// meaningless for this node.
		return
	}

	if s.Enum != nil && !enumContains(s.Enum, value) {
		*errs = append(*errs, FieldError{path, fmt.Sprintf("value %v is not one of the allowed values", compact(value))})
	}

	switch v := value.(type) {
	case float64:
		if s.Minimum != nil && v < *s.Minimum {
			*errs = append(*errs, FieldError{path, fmt.Sprintf("value %v is below minimum %v", v, *s.Minimum)})
		}
		if s.Maximum != nil && v > *s.Maximum {
			*errs = append(*errs, FieldError{path, fmt.Sprintf("value %v is above maximum %v", v, *s.Maximum)})
		}
	case string:
		if s.pattern != nil && !s.pattern.MatchString(v) {
			*errs = append(*errs, FieldError{path, fmt.Sprintf("value does not match pattern %q", s.Pattern)})
		}
	case map[string]any:
		for _, name := range s.Required {
			if _, present := v[name]; !present {
				*errs = append(*errs, FieldError{joinPath(path, name), "required field is missing"})
			}
		}
		for name, prop := range s.Properties {
			if fieldValue, present := v[name]; present {
				prop.check(fieldValue, joinPath(path, name), errs)
			}
		}
	case []any:
		if s.Items != nil {
			for i, item := range v {
				s.Items.check(item, fmt.Sprintf("%s[%d]", path, i), errs)
			}
		}
	}
}

// checkType reports whether the value matches the declared type,
// appending an error when it does not. An empty type accepts anything.
func (s *Schema) checkType(value any, path string, errs *[]FieldError) bool {
	if s.Type == "" {
		return true
	}

	ok := false
	switch s.Type {
	case TypeObject:
		_, ok = value.(map[string]any)
	case TypeArray:
		_, ok = value.([]any)
	case TypeString:
		_, ok = value.(string)
	case TypeBoolean:
		_, ok = value.(bool)
	case TypeNumber:
		_, ok = value.(float64)
	case TypeInteger:
		f, isNum := value.(float64)
		ok = isNum && f == math.Trunc(f)
	case TypeNull:
		ok = value == nil
	}

	if !ok {
		*errs = append(*errs, FieldError{path, fmt.Sprintf("expected %s, got %s", s.Type, typeName(value))})
	}
	return ok
}

// enumContains compares with reflect.DeepEqual; both sides come from
// encoding/json so numeric values are uniformly float64.
func enumContains(enum []any, value any) bool {
	for _, e := range enum {
		if reflect.DeepEqual(e, value) {
			return true
		}
	}
	return false
}

func typeName(value any) string {
	switch v := value.(type) {
	case nil:
		return TypeNull
	case bool:
		return TypeBoolean
	case string:
		return TypeString
	case float64:
		if v == math.Trunc(v) {
			return TypeInteger
		}
		return TypeNumber
	case map[string]any:
		return TypeObject
	case []any:
		return TypeArray
	default:
		return fmt.Sprintf("%T", value)
	}
}

// compact renders a value for error messages without flooding logs.
func compact(value any) string {
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%v", value)
	}
	const limit = 64
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
