// ABOUTME: Field validation for raw session-completion payloads
// ABOUTME: Collects every failing field into one ValidationError instead of stopping at the first

package session

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Limits applied to a session summary.
const (
	MaxDuration        = 3600.0 // seconds
	MinConfidenceScore = 0.0
	MaxConfidenceScore = 1.0
	MaxSessionIDBytes  = 128
)

// Summary is a validated session-completion payload.
type Summary struct {
	SessionID       string
	Duration        float64
	ClassesCovered  []string
	TopicsCovered   []string
	KeyConcepts     []string
	ConfidenceScore float64
	SummaryText     string
}

// FieldError describes one invalid field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (f FieldError) String() string {
	return f.Field + ": " + f.Message
}

// ValidationError lists every field that failed validation.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.String()
	}
	return "invalid session data: " + strings.Join(parts, "; ")
}

// Has reports whether field is among the failures.
func (e *ValidationError) Has(field string) bool {
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

type validator struct {
	fields map[string]json.RawMessage
	errs   []FieldError
}

func (v *validator) fail(field, format string, args ...any) {
	v.errs = append(v.errs, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// raw returns the field's JSON, or nil when absent or null.
func (v *validator) raw(field string) json.RawMessage {
	r, ok := v.fields[field]
	if !ok || string(r) == "null" {
		return nil
	}
	return r
}

func (v *validator) str(field string) (string, bool) {
	r := v.raw(field)
	if r == nil {
		v.fail(field, "is required")
		return "", false
	}
	var s string
	if err := json.Unmarshal(r, &s); err != nil {
		v.fail(field, "must be a string")
		return "", false
	}
	return s, true
}

func (v *validator) number(field string) (float64, bool) {
	r := v.raw(field)
	if r == nil {
		v.fail(field, "is required")
		return 0, false
	}
	var n float64
	if err := json.Unmarshal(r, &n); err != nil {
		v.fail(field, "must be a number")
		return 0, false
	}
	return n, true
}

func (v *validator) stringList(field string) []string {
	r := v.raw(field)
	if r == nil {
		v.fail(field, "must be an array of strings")
		return nil
	}
	var items []any
	if err := json.Unmarshal(r, &items); err != nil {
		v.fail(field, "must be an array of strings")
		return nil
	}
	out := make([]string, 0, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			v.fail(field, "element %d must be a string", i)
			return nil
		}
		out = append(out, s)
	}
	return out
}

// Validate decodes raw and checks every field. All failures are returned
// together in a *ValidationError; nothing is partially accepted.
func Validate(raw []byte) (*Summary, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil, &ValidationError{Fields: []FieldError{{Field: "body", Message: "must be a JSON object"}}}
	}

	v := &validator{fields: fields}
	var s Summary

	if id, ok := v.str("sessionId"); ok {
		switch {
		case strings.TrimSpace(id) == "":
			v.fail("sessionId", "must not be empty")
		case len(id) > MaxSessionIDBytes:
			v.fail("sessionId", "must be at most %d bytes", MaxSessionIDBytes)
		default:
			s.SessionID = id
		}
	}

	if d, ok := v.number("duration"); ok {
		if d <= 0 || d > MaxDuration {
			v.fail("duration", "must be greater than 0 and at most %g seconds", MaxDuration)
		} else {
			s.Duration = d
		}
	}

	if c, ok := v.number("confidenceScore"); ok {
		if c < MinConfidenceScore || c > MaxConfidenceScore {
			v.fail("confidenceScore", "must be between %g and %g", MinConfidenceScore, MaxConfidenceScore)
		} else {
			s.ConfidenceScore = c
		}
	}

	s.ClassesCovered = v.stringList("classesCovered")
	s.TopicsCovered = v.stringList("topicsCovered")
	s.KeyConcepts = v.stringList("keyConcepts")

	if text, ok := v.str("summaryText"); ok {
		if strings.TrimSpace(text) == "" {
			v.fail("summaryText", "must not be empty")
		} else {
			s.SummaryText = text
		}
	}

	if len(v.errs) > 0 {
		return nil, &ValidationError{Fields: v.errs}
	}
	return &s, nil
}
