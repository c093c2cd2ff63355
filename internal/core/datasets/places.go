package datasets

import (
	"github.com/JonMunkholm/graphload/internal/core"
)

// WithinMeters is the default place-to-stop linking distance.
const WithinMeters = 500

func init() {
	core.Register(Places())
}

// Places returns the Foursquare places dataset: points of interest near
// transit stops, with their categories.
func Places() core.Dataset {
	return core.Dataset{
		Name:        "places",
		Description: "Foursquare places near transit stops",
		Kinds: []core.KindSpec{
			{
				Name: "transit_stop", Label: "TransitStop", File: "stops.txt",
				Key: []string{"stop_id"},
				Fields: []core.FieldSpec{
					{Name: "stop_id", Type: core.FieldText},
					{Name: "stop_code", Type: core.FieldText},
					{Name: "stop_name", Type: core.FieldText},
					{Name: "tts_stop_name", Type: core.FieldText},
					{Name: "stop_lat", Type: core.FieldFloat, Required: true},
					{Name: "stop_lon", Type: core.FieldFloat, Required: true},
					{Name: "location_type", Type: core.FieldInt},
					{Name: "wheelchair_boarding", Type: core.FieldInt},
				},
			},
			{
				Name: "category", Label: "Category", File: "categories.csv",
				Key:      []string{"category_id"},
				Optional: true,
				Fields: []core.FieldSpec{
					{Name: "category_id", Type: core.FieldText},
					{Name: "category_label", Property: "label", Type: core.FieldText},
				},
			},
			{
				Name: "place", Label: "Place", File: "king_county_places_near_stops.csv",
				Key:       []string{"fsq_place_id"},
				DependsOn: []string{"category"},
				Fields: []core.FieldSpec{
					{Name: "fsq_place_id", Type: core.FieldText},
					{Name: "name", Type: core.FieldText},
					{Name: "latitude", Type: core.FieldFloat},
					{Name: "longitude", Type: core.FieldFloat},
					{Name: "address", Type: core.FieldText},
					{Name: "locality", Type: core.FieldText},
					{Name: "region", Type: core.FieldText, Normalizer: upper},
					{Name: "postcode", Type: core.FieldText},
					{Name: "country", Type: core.FieldText, Normalizer: upper},
					{Name: "fsq_category_ids", Property: "category_ids", Type: core.FieldList},
					{Name: "fsq_category_labels", Property: "category_labels", Type: core.FieldList},
					{Name: "closest_stop_name", Type: core.FieldText},
					{Name: "distance_to_stop", Type: core.FieldFloat},
				},
			},
		},
		Relationships: []core.RelationshipSpec{
			{
				Kind: "BELONGS_TO_CATEGORY", Source: "place", Target: "category",
				Rule: core.DirectRule{Field: "category_ids", On: core.SourceSide},
			},
			{
				Kind: "WITHIN_500M", Source: "place", Target: "transit_stop",
				Rule: core.ProximityRule{
					SourceLat: "latitude", SourceLon: "longitude",
					TargetLat: "stop_lat", TargetLon: "stop_lon",
					MaxDistanceMeters: WithinMeters,
				},
			},
		},
	}
}
