// Package geo provides the geodesy primitives used by conflict detection:
// great-circle distance, vertical separation and short-horizon linear
// extrapolation. The extrapolation model is intentionally simple (no wind, no
// curvature) and is only valid for horizons up to about five minutes.
package geo

import (
	"errors"
	"math"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"

	"github.com/atcwatch/skyguard/internal/model"
)

// ErrInvalidCoordinates is returned when a position fails boundary validation.
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// EarthRadiusNM is the mean Earth radius in nautical miles.
const EarthRadiusNM = 3440.065

// metersPerDegree is the linear scale used by the extrapolation model.
const metersPerDegree = 111000.0

// mpsToFpm converts a vertical rate from m/s to ft/min.
const mpsToFpm = 196.85

// MpsToKnots converts a ground speed from m/s to knots.
const MpsToKnots = 1.944

// DistanceNM returns the haversine great-circle distance between two points
// in nautical miles.
func DistanceNM(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180
	lon1Rad := lon1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	lon2Rad := lon2 * math.Pi / 180

	dlat := lat2Rad - lat1Rad
	dlon := lon2Rad - lon1Rad

	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*math.Sin(dlon/2)*math.Sin(dlon/2)
	c := 2 * math.Asin(math.Sqrt(a))

	return EarthRadiusNM * c
}

// VerticalSeparation returns the absolute altitude difference in feet.
func VerticalSeparation(alt1, alt2 float64) float64 {
	return math.Abs(alt1 - alt2)
}

// Extrapolate predicts an aircraft's position after ahead seconds using a
// flat linear model: ground speed decomposed along the heading at a fixed
// 111 km/degree scale with cos-latitude longitude correction, and vertical
// rate applied as ft/min.
func Extrapolate(a *model.AircraftState, ahead float64) (lat, lon, alt float64) {
	headingRad := a.Heading * math.Pi / 180

	latVel := a.GroundSpeed * math.Cos(headingRad) / metersPerDegree
	lonVel := a.GroundSpeed * math.Sin(headingRad) /
		(metersPerDegree * math.Cos(a.Latitude*math.Pi/180))

	verticalFpm := a.VerticalRate * mpsToFpm

	lat = a.Latitude + latVel*ahead
	lon = a.Longitude + lonVel*ahead
	alt = a.Altitude + verticalFpm*ahead/60
	return lat, lon, alt
}

// Bearing returns the initial great-circle bearing from point 1 to point 2
// in degrees [0,360).
func Bearing(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	dlon := (lon2 - lon1) * math.Pi / 180

	y := math.Sin(dlon) * math.Cos(lat2Rad)
	x := math.Cos(lat1Rad)*math.Sin(lat2Rad) -
		math.Sin(lat1Rad)*math.Cos(lat2Rad)*math.Cos(dlon)

	bearing := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(bearing+360, 360)
}

// AvoidanceVector returns the heading perpendicular (to the right) of the
// bearing between the two aircraft.
func AvoidanceVector(a1, a2 *model.AircraftState) float64 {
	bearing := Bearing(a1.Latitude, a1.Longitude, a2.Latitude, a2.Longitude)
	return math.Mod(bearing+90, 360)
}

// HeadingDiff returns the smallest angle between two headings, in [0,180].
func HeadingDiff(h1, h2 float64) float64 {
	diff := math.Abs(h1 - h2)
	if diff > 180 {
		diff = 360 - diff
	}
	return diff
}

// Midpoint returns the arithmetic midpoint of two aircraft positions. Good
// enough at sector scale; not a great-circle midpoint.
func Midpoint(a1, a2 *model.AircraftState) (lat, lon float64) {
	return (a1.Latitude + a2.Latitude) / 2, (a1.Longitude + a2.Longitude) / 2
}

// ValidatePosition rejects non-finite or out-of-range coordinates. Malformed
// geometry must be caught here, at the ingestion boundary, rather than fed
// into the pairwise scan.
func ValidatePosition(lat, lon, alt float64) error {
	if math.IsNaN(lat) || math.IsInf(lat, 0) ||
		math.IsNaN(lon) || math.IsInf(lon, 0) ||
		math.IsNaN(alt) || math.IsInf(alt, 0) {
		return ErrInvalidCoordinates
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return ErrInvalidCoordinates
	}
	return nil
}

// Point3857From4326 projects a WGS84 lat/lon to a web-mercator geometry
// point. Archived conflict geometry is always stored as EPSG:3857 so that
// SQLite, which has no spatial awareness, can round-trip it as WKB.
func Point3857From4326(lat, lon float64) (geom.Point, error) {
	if err := ValidatePosition(lat, lon, 0); err != nil {
		return geom.Point{}, err
	}
	epsg := wgs84.EPSG()
	f := epsg.Transform(4326, 3857)
	x, y, _ := f(lon, lat, 0)
	point := geom.NewPoint(
		geom.Coordinates{
			XY: geom.XY{X: x, Y: y},
			Z:  0,
		},
	)
	return point, nil
}
