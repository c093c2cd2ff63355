package core

// validation.go turns raw source rows into typed records.
//
// Validation happens at two levels:
//  1. Header validation: key columns must be present before any batch runs
//  2. Row validation: each cell is coerced against its FieldSpec
//
// A row with a missing or malformed required value is rejected with a
// ValidationError. Malformed optional values are omitted from the record
// and reported in Record.Dropped.

import (
	"fmt"
	"strings"

	"github.com/JonMunkholm/graphload/internal/source"
)

// KeySeparator joins the parts of a composite natural key.
const KeySeparator = ":"

// ValidationError represents a rejected source row.
type ValidationError struct {
	Line    int    // 1-based line in the source file
	Field   string // Field/column name
	Value   string // The invalid value
	Message string // Human-readable error message
}

func (e ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("line %d: %s: %s", e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("line %d: %s", e.Line, e.Message)
}

// Transform validates a row against the kind's fields and builds the record.
// Undeclared columns are ignored. Empty optional cells produce no property.
func Transform(spec KindSpec, row source.Row) (Record, error) {
	if row.Err != nil {
		return Record{}, ValidationError{Line: row.Line, Message: row.Err.Error()}
	}

	isKey := make(map[string]bool, len(spec.Key))
	for _, k := range spec.Key {
		isKey[strings.ToLower(k)] = true
	}

	rec := Record{Line: row.Line, Props: make(map[string]any, len(spec.Fields))}
	keyParts := make(map[string]string, len(spec.Key))

	for _, f := range spec.Fields {
		name := strings.ToLower(f.Name)
		raw := CleanCell(row.Fields[name])
		if raw == "" {
			raw = f.Default
		}

		required := f.Required || isKey[name]
		if raw == "" {
			if required {
				return Record{}, ValidationError{Line: row.Line, Field: f.Name, Message: "required field is empty"}
			}
			continue
		}

		if f.Normalizer != nil {
			raw = f.Normalizer(raw)
		}

		v, ok := Coerce(raw, f)
		if !ok {
			if required {
				return Record{}, ValidationError{
					Line:    row.Line,
					Field:   f.Name,
					Value:   raw,
					Message: fmt.Sprintf("invalid %s", fieldTypeName(f.Type)),
				}
			}
			rec.Dropped = append(rec.Dropped, f.Name)
			continue
		}

		rec.Props[f.PropertyName()] = v
		if isKey[name] {
			keyParts[name] = raw
		}
	}

	parts := make([]string, len(spec.Key))
	for i, k := range spec.Key {
		parts[i] = keyParts[strings.ToLower(k)]
	}
	rec.Key = strings.Join(parts, KeySeparator)

	if spec.Derive != nil {
		spec.Derive(rec.Props)
	}
	return rec, nil
}

// ValidateHeader checks that every key column exists in the header.
// Headers are matched case-insensitively. A nil header (self-describing
// formats such as JSONL) always passes.
func ValidateHeader(spec KindSpec, header []string) error {
	if header == nil {
		return nil
	}

	present := make(map[string]bool, len(header))
	for _, h := range header {
		present[strings.ToLower(CleanCell(h))] = true
	}

	var missing []string
	for _, f := range spec.Fields {
		if present[strings.ToLower(f.Name)] {
			continue
		}
		if f.Required && f.Default == "" || containsFold(spec.Key, f.Name) {
			missing = append(missing, f.Name)
		}
	}

	if len(missing) > 0 {
		return &ConfigError{
			Op:  "header " + spec.File,
			Err: fmt.Errorf("missing required column: %s", strings.Join(missing, ", ")),
		}
	}
	return nil
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

// fieldTypeName returns a human-readable name for a field type.
func fieldTypeName(ft FieldType) string {
	switch ft {
	case FieldText:
		return "text"
	case FieldEnum:
		return "enum"
	case FieldDate:
		return "date"
	case FieldInt:
		return "integer"
	case FieldFloat:
		return "number"
	case FieldBool:
		return "bool"
	case FieldList:
		return "list"
	default:
		return "value"
	}
}
