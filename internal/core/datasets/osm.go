package datasets

import (
	"github.com/JonMunkholm/graphload/internal/core"
)

func init() {
	core.Register(OSM())
}

// OSM returns the road network dataset: intersections and the directed
// road segments between them, as exported from an OpenStreetMap graph.
func OSM() core.Dataset {
	return core.Dataset{
		Name:        "osm",
		Description: "OpenStreetMap road network",
		Kinds: []core.KindSpec{
			{
				Name: "intersection", Label: "Intersection", File: "intersections.csv",
				Key: []string{"osm_id"},
				Fields: []core.FieldSpec{
					{Name: "osm_id", Type: core.FieldText},
					{Name: "lat", Type: core.FieldFloat, Required: true},
					{Name: "lon", Type: core.FieldFloat, Required: true},
					{Name: "street_count", Type: core.FieldInt},
					{Name: "highway", Type: core.FieldText},
				},
			},
			{
				// One row per directed edge; key disambiguates parallel segments.
				Name: "road", Label: "Road", File: "roads.csv",
				Key:       []string{"u", "v", "key"},
				DependsOn: []string{"intersection"},
				Fields: []core.FieldSpec{
					{Name: "u", Type: core.FieldText},
					{Name: "v", Type: core.FieldText},
					{Name: "key", Type: core.FieldInt},
					{Name: "name", Type: core.FieldText},
					{Name: "highway", Type: core.FieldText, Default: "unknown", Normalizer: lower},
					{Name: "length", Type: core.FieldFloat},
					{Name: "maxspeed", Type: core.FieldText},
					{Name: "lanes", Type: core.FieldText},
					{Name: "oneway", Type: core.FieldBool},
				},
			},
		},
		Relationships: []core.RelationshipSpec{
			{Kind: "STARTS_AT", Source: "road", Target: "intersection", Rule: core.DirectRule{Field: "u", On: core.SourceSide}},
			{Kind: "ENDS_AT", Source: "road", Target: "intersection", Rule: core.DirectRule{Field: "v", On: core.SourceSide}},
		},
	}
}
