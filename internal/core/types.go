// Package core provides the import pipeline: entity kinds, loaders,
// the batch pipeline and the relationship builder.
// This package has no CLI or transport dependencies.
package core

import (
	"time"
)

// FieldType represents the expected data type for a source field.
type FieldType int

const (
	FieldText FieldType = iota
	FieldEnum
	FieldDate
	FieldInt
	FieldFloat
	FieldBool
	FieldList
)

// FieldSpec defines how one source column becomes a node property.
type FieldSpec struct {
	Name       string              // Column header name (case-insensitive match)
	Property   string              // Graph property name (defaults to Name)
	Type       FieldType           // Expected data type
	Required   bool                // Row is skipped when the value is missing or malformed
	Default    string              // Raw value used when the cell is empty
	EnumValues []string            // Valid values for FieldEnum type
	Normalizer func(string) string // Optional transformation applied before coercion
}

// PropertyName returns the property the field is stored under.
func (f FieldSpec) PropertyName() string {
	if f.Property != "" {
		return f.Property
	}
	return f.Name
}

// KindSpec declares one entity kind: its source file, natural key and
// the kinds that must be fully committed before it may start.
type KindSpec struct {
	Name      string      // Checkpoint key: "stop_time"
	Label     string      // Graph label: "StopTime"
	File      string      // Source file relative to the data directory
	Key       []string    // Natural key fields, joined with ":" when composite
	Fields    []FieldSpec // Declared fields; key fields must be listed and are always required
	DependsOn []string    // Kinds that must be Completed first
	Optional  bool        // A missing source file completes the kind with zero batches

	// Derive runs after coercion and may add computed properties.
	Derive func(props map[string]any)
}

// Record is a validated, typed row ready to be upserted.
type Record struct {
	Key     string
	Line    int
	Props   map[string]any
	Dropped []string // optional fields whose values were malformed and omitted
}

// Batch is the unit of commit and of resume.
type Batch struct {
	Kind    string
	Index   int
	Rows    int // raw data rows covered by this batch
	Records []Record
	Invalid []ValidationError
}

// Side names an endpoint of a relationship.
type Side int

const (
	SourceSide Side = iota
	TargetSide
)

// Rule is either a DirectRule or a ProximityRule.
type Rule interface {
	isRule()
}

// DirectRule joins on a foreign-key property. The property lives on the
// kind named by On and holds the natural key of the other endpoint.
// List-valued properties produce one edge per element.
type DirectRule struct {
	Field string
	On    Side
}

// ProximityRule links source and target nodes whose great-circle distance
// is at most MaxDistanceMeters.
type ProximityRule struct {
	SourceLat, SourceLon string
	TargetLat, TargetLon string
	MaxDistanceMeters    float64
}

func (DirectRule) isRule()    {}
func (ProximityRule) isRule() {}

// RelationshipSpec declares one edge kind built after all entity kinds.
type RelationshipSpec struct {
	Kind   string // Edge type: "OPERATES"
	Source string // Entity kind at the edge start
	Target string // Entity kind at the edge end
	Rule   Rule
}

// ProgressKey is the checkpoint key used for the relationship.
func (r RelationshipSpec) ProgressKey() string {
	return "rel:" + r.Kind
}

// Dataset is an ordered set of entity kinds and the relationships
// built on top of them.
type Dataset struct {
	Name          string
	Description   string
	Kinds         []KindSpec // dependency order
	Relationships []RelationshipSpec
}

// Kind returns the kind with the given name.
func (d Dataset) Kind(name string) (KindSpec, bool) {
	for _, k := range d.Kinds {
		if k.Name == name {
			return k, true
		}
	}
	return KindSpec{}, false
}

// ProgressKeys returns every checkpoint key of the dataset in run order.
func (d Dataset) ProgressKeys() []string {
	keys := make([]string, 0, len(d.Kinds)+len(d.Relationships))
	for _, k := range d.Kinds {
		keys = append(keys, k.Name)
	}
	for _, r := range d.Relationships {
		keys = append(keys, r.ProgressKey())
	}
	return keys
}

// KindReport summarizes one kind (or relationship) within a run.
type KindReport struct {
	Name             string
	Skipped          bool // already Completed, nothing read
	TotalBatches     int
	ResumedFrom      int
	BatchesCommitted int
	RowsRead         int
	RecordsWritten   int
	RowsInvalid      int
	Duration         time.Duration
}

// RunReport collects per-kind results of a run.
type RunReport struct {
	RunID    string
	Kinds    []KindReport
	Duration time.Duration
}

// Merge appends other's kinds and adds its duration.
func (r *RunReport) Merge(other *RunReport) {
	if other == nil {
		return
	}
	r.Kinds = append(r.Kinds, other.Kinds...)
	r.Duration += other.Duration
}

// TotalWritten returns the number of records and edges written in the run.
func (r *RunReport) TotalWritten() int {
	n := 0
	for _, k := range r.Kinds {
		n += k.RecordsWritten
	}
	return n
}
