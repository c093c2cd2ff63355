package datasets

import (
	"github.com/JonMunkholm/graphload/internal/core"
)

// NearbyStopMeters is the default distance for NEARBY_STOP transfer
// candidates.
const NearbyStopMeters = 250

func init() {
	core.Register(GTFS())
}

// GTFS returns the General Transit Feed Specification dataset. Files are
// the standard feed names; the optional ones may be absent.
func GTFS() core.Dataset {
	return core.Dataset{
		Name:        "gtfs",
		Description: "GTFS static transit feed",
		Kinds: []core.KindSpec{
			{
				Name: "agency", Label: "Agency", File: "agency.txt",
				Key: []string{"agency_id"},
				Fields: []core.FieldSpec{
					{Name: "agency_id", Type: core.FieldText},
					{Name: "agency_name", Type: core.FieldText, Required: true},
					{Name: "agency_url", Type: core.FieldText},
					{Name: "agency_timezone", Type: core.FieldText},
					{Name: "agency_lang", Type: core.FieldText, Normalizer: lower},
					{Name: "agency_phone", Type: core.FieldText},
				},
			},
			{
				Name: "route", Label: "Route", File: "routes.txt",
				Key:       []string{"route_id"},
				DependsOn: []string{"agency"},
				Fields: []core.FieldSpec{
					{Name: "route_id", Type: core.FieldText},
					{Name: "agency_id", Type: core.FieldText},
					{Name: "route_short_name", Type: core.FieldText},
					{Name: "route_long_name", Type: core.FieldText},
					{Name: "route_desc", Type: core.FieldText},
					{Name: "route_type", Type: core.FieldInt, Required: true},
					{Name: "route_url", Type: core.FieldText},
					{Name: "route_color", Type: core.FieldText, Normalizer: hexColor},
					{Name: "route_text_color", Type: core.FieldText, Normalizer: hexColor},
				},
			},
			{
				Name: "stop", Label: "Stop", File: "stops.txt",
				Key: []string{"stop_id"},
				Fields: []core.FieldSpec{
					{Name: "stop_id", Type: core.FieldText},
					{Name: "stop_code", Type: core.FieldText},
					{Name: "stop_name", Type: core.FieldText},
					{Name: "stop_desc", Type: core.FieldText},
					{Name: "stop_lat", Type: core.FieldFloat},
					{Name: "stop_lon", Type: core.FieldFloat},
					{Name: "zone_id", Type: core.FieldText},
					{Name: "stop_url", Type: core.FieldText},
					{Name: "location_type", Type: core.FieldInt, Default: "0"},
					{Name: "parent_station", Type: core.FieldText},
					{Name: "wheelchair_boarding", Type: core.FieldInt},
				},
			},
			{
				Name: "calendar", Label: "Calendar", File: "calendar.txt",
				Key: []string{"service_id"},
				// A feed may describe service with calendar_dates.txt alone.
				Optional: true,
				Fields: []core.FieldSpec{
					{Name: "service_id", Type: core.FieldText},
					{Name: "monday", Type: core.FieldInt},
					{Name: "tuesday", Type: core.FieldInt},
					{Name: "wednesday", Type: core.FieldInt},
					{Name: "thursday", Type: core.FieldInt},
					{Name: "friday", Type: core.FieldInt},
					{Name: "saturday", Type: core.FieldInt},
					{Name: "sunday", Type: core.FieldInt},
					{Name: "start_date", Type: core.FieldDate},
					{Name: "end_date", Type: core.FieldDate},
				},
			},
			{
				Name: "calendar_date", Label: "CalendarDate", File: "calendar_dates.txt",
				Key:       []string{"service_id", "date"},
				DependsOn: []string{"calendar"},
				Optional:  true,
				Fields: []core.FieldSpec{
					{Name: "service_id", Type: core.FieldText},
					{Name: "date", Type: core.FieldDate},
					{Name: "exception_type", Type: core.FieldInt, Required: true},
				},
			},
			{
				Name: "trip", Label: "Trip", File: "trips.txt",
				Key:       []string{"trip_id"},
				DependsOn: []string{"route", "calendar"},
				Fields: []core.FieldSpec{
					{Name: "trip_id", Type: core.FieldText},
					{Name: "route_id", Type: core.FieldText, Required: true},
					{Name: "service_id", Type: core.FieldText, Required: true},
					{Name: "trip_headsign", Type: core.FieldText},
					{Name: "trip_short_name", Type: core.FieldText},
					{Name: "direction_id", Type: core.FieldInt},
					{Name: "block_id", Type: core.FieldText},
					{Name: "shape_id", Type: core.FieldText},
					{Name: "wheelchair_accessible", Type: core.FieldInt},
					{Name: "bikes_allowed", Type: core.FieldInt},
				},
			},
			{
				Name: "stop_time", Label: "StopTime", File: "stop_times.txt",
				Key:       []string{"trip_id", "stop_sequence"},
				DependsOn: []string{"trip", "stop"},
				Fields: []core.FieldSpec{
					{Name: "trip_id", Type: core.FieldText},
					{Name: "stop_sequence", Type: core.FieldInt},
					{Name: "stop_id", Type: core.FieldText, Required: true},
					{Name: "arrival_time", Type: core.FieldText, Normalizer: serviceTime},
					{Name: "departure_time", Type: core.FieldText, Normalizer: serviceTime},
					{Name: "stop_headsign", Type: core.FieldText},
					{Name: "pickup_type", Type: core.FieldInt},
					{Name: "drop_off_type", Type: core.FieldInt},
					{Name: "continuous_pickup", Type: core.FieldInt},
					{Name: "continuous_drop_off", Type: core.FieldInt},
					{Name: "shape_dist_traveled", Type: core.FieldFloat},
					{Name: "timepoint", Type: core.FieldInt},
				},
				Derive: deriveServiceSeconds,
			},
			{
				Name: "fare_attribute", Label: "FareAttribute", File: "fare_attributes.txt",
				Key:      []string{"fare_id"},
				Optional: true,
				Fields: []core.FieldSpec{
					{Name: "fare_id", Type: core.FieldText},
					{Name: "price", Type: core.FieldFloat, Required: true},
					{Name: "currency_type", Type: core.FieldText, Normalizer: upper},
					{Name: "payment_method", Type: core.FieldInt},
					{Name: "transfers", Type: core.FieldInt},
					{Name: "agency_id", Type: core.FieldText},
					{Name: "transfer_duration", Type: core.FieldInt},
				},
			},
			{
				// Zone-only rules have no route_id and are skipped.
				Name: "fare_rule", Label: "FareRule", File: "fare_rules.txt",
				Key:       []string{"fare_id", "route_id"},
				DependsOn: []string{"fare_attribute", "route"},
				Optional:  true,
				Fields: []core.FieldSpec{
					{Name: "fare_id", Type: core.FieldText},
					{Name: "route_id", Type: core.FieldText},
					{Name: "origin_id", Type: core.FieldText},
					{Name: "destination_id", Type: core.FieldText},
					{Name: "contains_id", Type: core.FieldText},
				},
			},
			{
				Name: "transfer", Label: "Transfer", File: "transfers.txt",
				Key:       []string{"from_stop_id", "to_stop_id"},
				DependsOn: []string{"stop"},
				Optional:  true,
				Fields: []core.FieldSpec{
					{Name: "from_stop_id", Type: core.FieldText},
					{Name: "to_stop_id", Type: core.FieldText},
					{Name: "transfer_type", Type: core.FieldInt, Default: "0"},
					{Name: "min_transfer_time", Type: core.FieldInt},
				},
			},
			{
				Name: "shape", Label: "Shape", File: "shapes.txt",
				Key:      []string{"shape_id", "shape_pt_sequence"},
				Optional: true,
				Fields: []core.FieldSpec{
					{Name: "shape_id", Type: core.FieldText},
					{Name: "shape_pt_sequence", Type: core.FieldInt},
					{Name: "shape_pt_lat", Type: core.FieldFloat, Required: true},
					{Name: "shape_pt_lon", Type: core.FieldFloat, Required: true},
					{Name: "shape_dist_traveled", Type: core.FieldFloat},
				},
			},
			{
				Name: "feed_info", Label: "FeedInfo", File: "feed_info.txt",
				Key:      []string{"feed_publisher_name"},
				Optional: true,
				Fields: []core.FieldSpec{
					{Name: "feed_publisher_name", Type: core.FieldText},
					{Name: "feed_publisher_url", Type: core.FieldText},
					{Name: "feed_lang", Type: core.FieldText, Normalizer: lower},
					{Name: "feed_start_date", Type: core.FieldDate},
					{Name: "feed_end_date", Type: core.FieldDate},
					{Name: "feed_version", Type: core.FieldText},
				},
			},
		},
		Relationships: []core.RelationshipSpec{
			{Kind: "OPERATES", Source: "agency", Target: "route", Rule: core.DirectRule{Field: "agency_id", On: core.TargetSide}},
			{Kind: "HAS_TRIP", Source: "route", Target: "trip", Rule: core.DirectRule{Field: "route_id", On: core.TargetSide}},
			{Kind: "SCHEDULES", Source: "calendar", Target: "trip", Rule: core.DirectRule{Field: "service_id", On: core.TargetSide}},
			{Kind: "HAS_STOP_TIME", Source: "trip", Target: "stop_time", Rule: core.DirectRule{Field: "trip_id", On: core.TargetSide}},
			{Kind: "AT_STOP", Source: "stop_time", Target: "stop", Rule: core.DirectRule{Field: "stop_id", On: core.SourceSide}},
			{
				Kind: "NEARBY_STOP", Source: "stop", Target: "stop",
				Rule: core.ProximityRule{
					SourceLat: "stop_lat", SourceLon: "stop_lon",
					TargetLat: "stop_lat", TargetLon: "stop_lon",
					MaxDistanceMeters: NearbyStopMeters,
				},
			},
		},
	}
}
