package overpass

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Feature is an OpenStreetMap feature class the count API understands.
type Feature string

const (
	FeatureHighway Feature = "highway"
	FeatureAirport Feature = "airport"
	FeatureRailway Feature = "railway"
	FeaturePort    Feature = "port"
)

// selectors maps each feature class to the QL statements that match it. A
// feature may need several statements; they are unioned in the query block.
var selectors = map[Feature][]string{
	FeatureHighway: {`way[highway~"^(motorway|trunk|primary)$"]`},
	FeatureAirport: {`nwr[aeroway=aerodrome]`},
	FeatureRailway: {`way[railway=rail]`},
	FeaturePort:    {`nwr[harbour=yes]`, `way[landuse=harbour]`},
}

// Query describes one around-radius feature count.
type Query struct {
	Lat          float64
	Lon          float64
	RadiusMeters int
	Feature      Feature

	// TimeoutSecs is the server-side evaluation budget embedded in the
	// query. Zero means the 25s default.
	TimeoutSecs int
}

// Build renders the query as Overpass QL with a count output.
func (q Query) Build() (string, error) {
	stmts, ok := selectors[q.Feature]
	if !ok {
		return "", eris.Errorf("overpass: unknown feature %q", q.Feature)
	}
	if q.RadiusMeters <= 0 {
		return "", eris.Errorf("overpass: radius %dm must be positive", q.RadiusMeters)
	}
	if q.Lat < -90 || q.Lat > 90 || q.Lon < -180 || q.Lon > 180 {
		return "", eris.Errorf("overpass: coordinate (%.4f,%.4f) off the globe", q.Lat, q.Lon)
	}

	timeout := q.TimeoutSecs
	if timeout <= 0 {
		timeout = 25
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[out:json][timeout:%d];(", timeout)
	for _, stmt := range stmts {
		fmt.Fprintf(&b, "%s(around:%d,%.6f,%.6f);", stmt, q.RadiusMeters, q.Lat, q.Lon)
	}
	b.WriteString(");out count;")
	return b.String(), nil
}
