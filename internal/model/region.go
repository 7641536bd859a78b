package model

import (
	"fmt"

	"github.com/rotisserie/eris"
)

// FeatureType identifies one class of transport infrastructure counted
// near a region center.
type FeatureType string

const (
	FeatureHighway FeatureType = "highway"
	FeatureAirport FeatureType = "airport"
	FeatureRailway FeatureType = "railway"
	FeaturePort    FeatureType = "port"
)

// FeatureTypes lists every feature class, in the order records report them.
var FeatureTypes = []FeatureType{FeatureHighway, FeatureAirport, FeatureRailway, FeaturePort}

// Valid reports whether f is one of the known feature classes.
func (f FeatureType) Valid() bool {
	switch f {
	case FeatureHighway, FeatureAirport, FeatureRailway, FeaturePort:
		return true
	}
	return false
}

// Coordinate is a WGS84 point.
type Coordinate struct {
	Lat float64 `json:"lat" yaml:"lat" mapstructure:"lat"`
	Lon float64 `json:"lon" yaml:"lon" mapstructure:"lon"`
}

// Validate checks the coordinate lies on the globe.
func (c Coordinate) Validate() error {
	if c.Lat < -90 || c.Lat > 90 {
		return eris.Errorf("model: latitude %.4f out of range [-90,90]", c.Lat)
	}
	if c.Lon < -180 || c.Lon > 180 {
		return eris.Errorf("model: longitude %.4f out of range [-180,180]", c.Lon)
	}
	return nil
}

// Region is one named geographic area subject to investment scoring.
// Regions come from configuration and are never mutated by a scan.
type Region struct {
	Key       string     `json:"key" yaml:"key,omitempty" mapstructure:"key"`
	Name      string     `json:"name" yaml:"name" mapstructure:"name"`
	Center    Coordinate `json:"center" yaml:"center" mapstructure:"center"`
	BaseScore float64    `json:"base_score" yaml:"base_score" mapstructure:"base_score"`
	// MarketTrendPct, when set, overrides the market providers for this region.
	MarketTrendPct *float64 `json:"market_trend_pct,omitempty" yaml:"market_trend_pct,omitempty" mapstructure:"market_trend_pct"`
}

// Normalize fills the lookup key from the display name when absent.
func (r *Region) Normalize() {
	if r.Key == "" {
		r.Key = Slugify(r.Name)
	}
}

// Validate checks a region is usable as scan input.
func (r Region) Validate() error {
	if r.Name == "" {
		return eris.New("model: region name is required")
	}
	if err := r.Center.Validate(); err != nil {
		return eris.Wrapf(err, "model: region %q", r.Name)
	}
	if r.BaseScore < 0 {
		return eris.Errorf("model: region %q base score %.2f is negative", r.Name, r.BaseScore)
	}
	return nil
}

// RecordSource tells where an InfrastructureRecord's numbers came from.
type RecordSource string

const (
	// SourceLive means every feature count came from a successful query.
	SourceLive RecordSource = "live"
	// SourcePartial means at least one feature query exhausted its attempts
	// and contributed a zero count.
	SourcePartial RecordSource = "partial"
	// SourceFallback means the record was read verbatim from the static
	// fallback database.
	SourceFallback RecordSource = "fallback"
)

// InfrastructureRecord aggregates nearby transport-feature counts and the
// derived infrastructure score for one region.
type InfrastructureRecord struct {
	Score    int          `json:"infra_score" yaml:"infra_score"`
	Highways int          `json:"highways" yaml:"highways"`
	Ports    int          `json:"ports" yaml:"ports"`
	Airports int          `json:"airports" yaml:"airports"`
	Railways int          `json:"railways" yaml:"railways"`
	Source   RecordSource `json:"source,omitempty" yaml:"-"`
}

// Count returns the stored count for one feature class.
func (r InfrastructureRecord) Count(f FeatureType) int {
	switch f {
	case FeatureHighway:
		return r.Highways
	case FeatureAirport:
		return r.Airports
	case FeatureRailway:
		return r.Railways
	case FeaturePort:
		return r.Ports
	}
	return 0
}

// SetCount stores a count for one feature class.
func (r *InfrastructureRecord) SetCount(f FeatureType, n int) {
	switch f {
	case FeatureHighway:
		r.Highways = n
	case FeatureAirport:
		r.Airports = n
	case FeatureRailway:
		r.Railways = n
	case FeaturePort:
		r.Ports = n
	}
}

// Validate enforces the record invariants: score bounded to [0,100] and
// non-negative counts.
func (r InfrastructureRecord) Validate() error {
	if r.Score < 0 || r.Score > 100 {
		return eris.Errorf("model: infrastructure score %d out of range [0,100]", r.Score)
	}
	for _, f := range FeatureTypes {
		if n := r.Count(f); n < 0 {
			return eris.Errorf("model: %s count %d is negative", f, n)
		}
	}
	return nil
}

// ProximityQuery asks for the count of one feature class within a radius of
// a region center.
type ProximityQuery struct {
	RegionKey string      `json:"region_key"`
	Center    Coordinate  `json:"center"`
	Feature   FeatureType `json:"feature"`
	RadiusKm  float64     `json:"radius_km"`
}

// String renders the query for logs and error messages.
func (q ProximityQuery) String() string {
	return fmt.Sprintf("%s/%s r=%.0fkm", q.RegionKey, q.Feature, q.RadiusKm)
}

// Validate checks the query is well-formed before it hits the network.
func (q ProximityQuery) Validate() error {
	if q.RegionKey == "" {
		return eris.New("model: proximity query needs a region key")
	}
	if !q.Feature.Valid() {
		return eris.Errorf("model: unknown feature type %q", q.Feature)
	}
	if q.RadiusKm <= 0 {
		return eris.Errorf("model: radius %.1fkm must be positive", q.RadiusKm)
	}
	return q.Center.Validate()
}
