package core

import (
	"math"
)

// EarthRadiusMeters is the mean Earth radius used for distances.
const EarthRadiusMeters = 6371008.8

const metersPerDegreeLat = math.Pi * EarthRadiusMeters / 180

// HaversineMeters returns the great-circle distance between two points.
func HaversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	φ1 := lat1 * math.Pi / 180
	φ2 := lat2 * math.Pi / 180
	dφ := (lat2 - lat1) * math.Pi / 180
	dλ := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dφ/2)*math.Sin(dφ/2) + math.Cos(φ1)*math.Cos(φ2)*math.Sin(dλ/2)*math.Sin(dλ/2)
	return 2 * EarthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(a)))
}

// ValidCoordinate reports whether lat/lon are finite and in range.
func ValidCoordinate(lat, lon float64) bool {
	return !math.IsNaN(lat) && !math.IsNaN(lon) &&
		lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

const (
	polarLat       = 89.0
	wholeLongitude = 361.0
)

type geoPoint struct {
	key      string
	lat, lon float64
}

type cell struct{ x, y int }

// gridIndex buckets points into cells at least radius wide so that any
// point within radius of a query lies in the query's cell or one of its
// eight neighbours. Longitude wrap at ±180° is not handled outside the
// polar band.
type gridIndex struct {
	radius  float64
	latStep float64
	lonStep float64
	cells   map[cell][]geoPoint
}

func newGridIndex(points []geoPoint, radius float64) *gridIndex {
	maxAbsLat := 0.0
	for _, p := range points {
		maxAbsLat = math.Max(maxAbsLat, math.Abs(p.lat))
	}

	latStep := radius / metersPerDegreeLat
	// Widen longitude cells for the highest latitude present, plus one
	// cell of slack for queries slightly further from the equator. Within
	// reach of a pole a single column spans every longitude, so cells only
	// split by latitude.
	lonStep := wholeLongitude
	if reach := maxAbsLat + latStep; reach < polarLat {
		lonStep = latStep / math.Cos(reach*math.Pi/180)
	}

	g := &gridIndex{
		radius:  radius,
		latStep: latStep,
		lonStep: lonStep,
		cells:   make(map[cell][]geoPoint),
	}
	for _, p := range points {
		c := g.cellOf(p.lat, p.lon)
		g.cells[c] = append(g.cells[c], p)
	}
	return g
}

func (g *gridIndex) cellOf(lat, lon float64) cell {
	return cell{x: int(math.Floor(lon / g.lonStep)), y: int(math.Floor(lat / g.latStep))}
}

type geoMatch struct {
	key      string
	distance float64
}

// within returns every indexed point no further than radius from lat/lon.
func (g *gridIndex) within(lat, lon float64) []geoMatch {
	c := g.cellOf(lat, lon)

	var out []geoMatch
	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			for _, p := range g.cells[cell{c.x + dx, c.y + dy}] {
				d := HaversineMeters(lat, lon, p.lat, p.lon)
				if d <= g.radius {
					out = append(out, geoMatch{key: p.key, distance: d})
				}
			}
		}
	}
	return out
}
