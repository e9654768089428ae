package schema_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/taskgrid/taskgrid/schema"
)

// ──────────────────────────────────────────────────
// Compile / meta-validation tests
// ──────────────────────────────────────────────────

func TestCompileValidSchemas(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
	}{
		{"empty document", ``},
		{"empty object", `{}`},
		{"typed object", `{"type":"object","required":["msg"],"properties":{"msg":{"type":"string"}}}`},
		{"numeric bounds", `{"type":"number","minimum":0,"maximum":100}`},
		{"enum", `{"type":"string","enum":["low","high"]}`},
		{"pattern", `{"type":"string","pattern":"^[a-z]+$"}`},
		{"default", `{"type":"string","default":"hello"}`},
		{"nested objects", `{"type":"object","properties":{"outer":{"type":"object","properties":{"inner":{"type":"integer"}}}}}`},
		{"array items", `{"type":"array","items":{"type":"string"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := schema.Compile([]byte(tt.raw)); err != nil {
				t.Fatalf("Compile(%s): %v", tt.raw, err)
			}
		})
	}
}

func TestCompileRejectsMalformedSchemas(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
	}{
		{"not JSON", `{`},
		{"unknown keyword", `{"typ":"object"}`},
		{"unknown type", `{"type":"decimal"}`},
		{"min above max", `{"type":"number","minimum":10,"maximum":1}`},
		{"bounds on string", `{"type":"string","minimum":1}`},
		{"pattern on number", `{"type":"number","pattern":"^a$"}`},
		{"invalid pattern", `{"type":"string","pattern":"["}`},
		{"empty enum", `{"type":"string","enum":[]}`},
		{"required on string", `{"type":"string","required":["x"]}`},
		{"duplicate required", `{"type":"object","required":["a","a"]}`},
		{"null property schema", `{"type":"object","properties":{"x":null}}`},
		{"items on object", `{"type":"object","items":{"type":"string"}}`},
		{"default violates own schema", `{"type":"integer","default":"nope"}`},
		{"nested violation", `{"type":"object","properties":{"x":{"type":"whatever"}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := schema.Compile([]byte(tt.raw))
			if err == nil {
				t.Fatalf("Compile(%s): expected error", tt.raw)
			}
			var cerr *schema.CompileError
			if !errors.As(err, &cerr) {
				t.Fatalf("expected *CompileError, got %T", err)
			}
		})
	}
}

func TestCompileCollectsAllIssues(t *testing.T) {
	t.Parallel()

	raw := `{"type":"object","required":["a",""],"properties":{"a":{"type":"bogus"},"b":{"type":"string","pattern":"["}}}`
	_, err := schema.Compile([]byte(raw))

	var cerr *schema.CompileError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *CompileError, got %v", err)
	}
	if len(cerr.Issues) < 3 {
		t.Errorf("expected at least 3 issues, got %d: %v", len(cerr.Issues), cerr.Issues)
	}
}

func TestCompilePatternLengthCap(t *testing.T) {
	t.Parallel()

	long := `{"type":"string","pattern":"` + strings.Repeat("a", 64) + `"}`
	if _, err := schema.CompileWithLimit([]byte(long), 16); err == nil {
		t.Fatal("expected oversized pattern to be rejected")
	}
	if _, err := schema.CompileWithLimit([]byte(long), 128); err != nil {
		t.Fatalf("pattern within cap rejected: %v", err)
	}
}

// TestPatternBoundedTime feeds a classic backtracking bomb through
// compile and match. Go's RE2 engine runs in linear time, so even an
// adversarial pattern against an adversarial input must return quickly.
func TestPatternBoundedTime(t *testing.T) {
	t.Parallel()

	s, err := schema.Compile([]byte(`{"type":"string","pattern":"(a+)+$"}`))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	input := `"` + strings.Repeat("a", 10000) + `b"`
	start := time.Now()
	_, res := s.Validate([]byte(input))
	elapsed := time.Since(start)

	if res.Valid {
		t.Error("expected pattern mismatch")
	}
	if elapsed > 2*time.Second {
		t.Fatalf("pattern match took %v, expected bounded time", elapsed)
	}
}
