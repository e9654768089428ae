package schema

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// DefaultMaxPatternLength is the pattern length cap applied by Compile.
const DefaultMaxPatternLength = 512

// Type names accepted by the schema dialect. An empty type means "any".
const (
	TypeObject  = "object"
	TypeString  = "string"
	TypeNumber  = "number"
	TypeInteger = "integer"
	TypeBoolean = "boolean"
	TypeArray   = "array"
	TypeNull    = "null"
)

var validTypes = map[string]struct{}{
	TypeObject: {}, TypeString: {}, TypeNumber: {}, TypeInteger: {},
	TypeBoolean: {}, TypeArray: {}, TypeNull: {},
}

// Schema is a compiled parameter schema node. Build one with Compile;
// the zero value accepts any document.
type Schema struct {
	Type       string             `json:"type,omitempty"`
	Required   []string           `json:"required,omitempty"`
	Properties map[string]*Schema `json:"properties,omitempty"`
	Items      *Schema            `json:"items,omitempty"`
	Enum       []any              `json:"enum,omitempty"`
	Minimum    *float64           `json:"minimum,omitempty"`
	Maximum    *float64           `json:"maximum,omitempty"`
	Pattern    string             `json:"pattern,omitempty"`
	Default    any                `json:"default,omitempty"`

	// pattern is the compiled form of Pattern, set by Compile.
	pattern *regexp.Regexp
}

// FieldError describes a single violation at a dotted document path.
// An empty path refers to the document root.
type FieldError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (e FieldError) String() string {
	if e.Path == "" {
		return e.Message
	}
	return e.Path + ": " + e.Message
}

// CompileError reports every meta-rule violation found in a raw schema
// document.
type CompileError struct {
	Issues []FieldError
}

func (e *CompileError) Error() string {
	msgs := make([]string, len(e.Issues))
	for i, iss := range e.Issues {
		msgs[i] = iss.String()
	}
	return fmt.Sprintf("schema: invalid schema document: %s", strings.Join(msgs, "; "))
}

// Compile parses and meta-validates a raw schema document with the
// default pattern length cap. On failure it returns a *CompileError
// listing every violation.
func Compile(raw []byte) (*Schema, error) {
	return CompileWithLimit(raw, DefaultMaxPatternLength)
}

// CompileWithLimit is Compile with an explicit pattern length cap.
// A non-positive cap falls back to DefaultMaxPatternLength.
func CompileWithLimit(raw []byte, maxPatternLength int) (*Schema, error) {
	if maxPatternLength <= 0 {
		maxPatternLength = DefaultMaxPatternLength
	}

	var s Schema
	if len(raw) == 0 {
		return &s, nil
	}
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		return nil, &CompileError{Issues: []FieldError{{Path: "", Message: err.Error()}}}
	}

	var issues []FieldError
	s.compile("", maxPatternLength, &issues)
	if len(issues) > 0 {
		return nil, &CompileError{Issues: issues}
	}
	return &s, nil
}

// compile recursively applies the meta-rules and compiles patterns.
func (s *Schema) compile(path string, maxPatternLength int, issues *[]FieldError) {
	if s.Type != "" {
		if _, ok := validTypes[s.Type]; !ok {
			*issues = append(*issues, FieldError{path, fmt.Sprintf("unknown type %q", s.Type)})
		}
	}

	if s.Minimum != nil && s.Maximum != nil && *s.Minimum > *s.Maximum {
		*issues = append(*issues, FieldError{path, "minimum is greater than maximum"})
	}
	if (s.Minimum != nil || s.Maximum != nil) &&
		s.Type != "" && s.Type != TypeNumber && s.Type != TypeInteger {
		*issues = append(*issues, FieldError{path, "minimum/maximum require a numeric type"})
	}

	if s.Pattern != "" {
		if s.Type != "" && s.Type != TypeString {
			*issues = append(*issues, FieldError{path, "pattern requires type string"})
		}
		if len(s.Pattern) > maxPatternLength {
			*issues = append(*issues, FieldError{path, fmt.Sprintf("pattern exceeds %d bytes", maxPatternLength)})
		} else if re, err := regexp.Compile(s.Pattern); err != nil {
			*issues = append(*issues, FieldError{path, fmt.Sprintf("invalid pattern: %v", err)})
		} else {
			s.pattern = re
		}
	}

	if s.Enum != nil && len(s.Enum) == 0 {
		*issues = append(*issues, FieldError{path, "enum must not be empty"})
	}

	if len(s.Required) > 0 && s.Type != "" && s.Type != TypeObject {
		*issues = append(*issues, FieldError{path, "required is only valid for objects"})
	}
	seen := make(map[string]struct{}, len(s.Required))
	for _, name := range s.Required {
		if name == "" {
			*issues = append(*issues, FieldError{path, "required contains an empty field name"})
			continue
		}
		if _, dup := seen[name]; dup {
			*issues = append(*issues, FieldError{path, fmt.Sprintf("required lists %q twice", name)})
		}
		seen[name] = struct{}{}
	}

	if len(s.Properties) > 0 && s.Type != "" && s.Type != TypeObject {
		*issues = append(*issues, FieldError{path, "properties are only valid for objects"})
	}
	for name, prop := range s.Properties {
		childPath := joinPath(path, name)
		if prop == nil {
			*issues = append(*issues, FieldError{childPath, "property schema must not be null"})
			continue
		}
		prop.compile(childPath, maxPatternLength, issues)
	}

	if s.Items != nil {
		if s.Type != "" && s.Type != TypeArray {
			*issues = append(*issues, FieldError{path, "items is only valid for arrays"})
		}
		s.Items.compile(joinPath(path, "[]"), maxPatternLength, issues)
	}

	// A default must satisfy its own schema so that applying it can
	// never introduce an invalid value.
	if s.Default != nil {
		var defErrs []FieldError
		s.check(s.Default, path, &defErrs)
		for _, de := range defErrs {
			*issues = append(*issues, FieldError{de.Path, "default value: " + de.Message})
		}
	}
}

func joinPath(parent, child string) string {
	if parent == "" {
		return child
	}
	return parent + "." + child
}
