// Package schemaguard detects drift in upstream API response shapes
// (Google Search, YouTube) against a learned baseline, logging warnings
// rather than failing requests. Adapted from the teacher's payload
// validator, which compared outbound request payloads against a learned
// baseline to catch fingerprint drift; here it watches inbound API
// responses instead.
package schemaguard

import (
	"fmt"
	"sort"
	"sync"
)

// MismatchKind classifies a single field-level difference from baseline.
type MismatchKind string

const (
	MissingField MismatchKind = "MISSING_FIELD"
	AddedField   MismatchKind = "ADDED_FIELD"
	TypeChanged  MismatchKind = "TYPE_CHANGE"
)

// Mismatch describes one divergence between an observed payload and the
// learned baseline for a schema name.
type Mismatch struct {
	Kind     MismatchKind
	Field    string
	Expected string
	Got      string
}

func (m Mismatch) String() string {
	switch m.Kind {
	case MissingField:
		return fmt.Sprintf("missing field %q (expected %s)", m.Field, m.Expected)
	case AddedField:
		return fmt.Sprintf("unexpected new field %q (type %s)", m.Field, m.Got)
	case TypeChanged:
		return fmt.Sprintf("field %q type changed: expected %s, got %s", m.Field, m.Expected, m.Got)
	default:
		return fmt.Sprintf("field %q mismatch", m.Field)
	}
}

// Validator tracks one baseline field-name-to-type map per named schema
// (e.g. "google_search.item", "youtube.transcript_segment") and compares
// freshly decoded responses against it.
type Validator struct {
	mu        sync.RWMutex
	baselines map[string]map[string]string
}

// New returns an empty Validator. Baselines are learned lazily from the
// first observation of each schema name, or set explicitly via SetBaseline.
func New() *Validator {
	return &Validator{baselines: make(map[string]map[string]string)}
}

// SetBaseline fixes the expected shape for a schema name explicitly,
// overriding anything previously learned.
func (v *Validator) SetBaseline(schemaName string, sample map[string]any) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.baselines[schemaName] = shapeOf(sample)
}

// Validate compares sample against the baseline for schemaName. If no
// baseline exists yet, sample's shape becomes the baseline and an empty
// mismatch list is returned. Validate never returns an error: schema drift
// is a signal for operators, not a request failure.
func (v *Validator) Validate(schemaName string, sample map[string]any) []Mismatch {
	shape := shapeOf(sample)

	v.mu.Lock()
	baseline, ok := v.baselines[schemaName]
	if !ok {
		v.baselines[schemaName] = shape
		v.mu.Unlock()
		return nil
	}
	v.mu.Unlock()

	var mismatches []Mismatch
	for field, expectedType := range baseline {
		gotType, present := shape[field]
		if !present {
			mismatches = append(mismatches, Mismatch{Kind: MissingField, Field: field, Expected: expectedType})
			continue
		}
		if gotType != expectedType {
			mismatches = append(mismatches, Mismatch{Kind: TypeChanged, Field: field, Expected: expectedType, Got: gotType})
		}
	}
	for field, gotType := range shape {
		if _, present := baseline[field]; !present {
			mismatches = append(mismatches, Mismatch{Kind: AddedField, Field: field, Got: gotType})
		}
	}

	sort.Slice(mismatches, func(i, j int) bool { return mismatches[i].Field < mismatches[j].Field })
	return mismatches
}

// Learn folds sample's shape into the baseline for schemaName, adding any
// newly observed fields rather than replacing the whole baseline. Useful
// when a response legitimately grows optional fields over time and callers
// want to stop flagging them after a human has reviewed the drift once.
func (v *Validator) Learn(schemaName string, sample map[string]any) {
	shape := shapeOf(sample)
	v.mu.Lock()
	defer v.mu.Unlock()
	baseline, ok := v.baselines[schemaName]
	if !ok {
		v.baselines[schemaName] = shape
		return
	}
	for field, t := range shape {
		baseline[field] = t
	}
}

func shapeOf(sample map[string]any) map[string]string {
	shape := make(map[string]string, len(sample))
	for k, v := range sample {
		shape[k] = typeName(v)
	}
	return shape
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "bool"
	case float64, int, int64:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return "unknown"
	}
}
