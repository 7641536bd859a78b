package scorer

import (
	"fmt"
)

// Band maps every value at or above Min to one multiplier. A band with no
// floor is the catch-all for everything below the previous band.
type Band struct {
	Min        *float64 `json:"min,omitempty" yaml:"min,omitempty" mapstructure:"min"`
	Multiplier float64  `json:"multiplier" yaml:"multiplier" mapstructure:"multiplier"`
}

// BandTable is an ordered multiplier lookup. Floors descend strictly and the
// table ends in exactly one floorless catch-all, so every input value lands
// in exactly one band.
type BandTable []Band

// Lookup returns the multiplier of the first band whose floor is at or below
// v. The second return is false only for tables that never passed Validate.
func (t BandTable) Lookup(v float64) (float64, bool) {
	for _, b := range t {
		if b.Min == nil || v >= *b.Min {
			return b.Multiplier, true
		}
	}
	return 0, false
}

// GapError reports a band table that cannot classify every possible value,
// or whose multipliers would let a higher signal produce a lower score.
// Scans refuse to start while one is in place.
type GapError struct {
	Table  string
	Reason string
}

func (e *GapError) Error() string {
	return fmt.Sprintf("band table %s: %s", e.Table, e.Reason)
}

// Validate enforces the shape that makes Lookup total and order-preserving:
// at least one band, floors strictly descending, exactly one floorless
// catch-all in last position, multipliers positive and non-increasing.
func (t BandTable) Validate(name string) error {
	if len(t) == 0 {
		return &GapError{Table: name, Reason: "no bands configured"}
	}
	for i, b := range t {
		last := i == len(t)-1
		if b.Min == nil && !last {
			return &GapError{Table: name,
				Reason: fmt.Sprintf("band %d has no floor but is not the final catch-all", i)}
		}
		if b.Min != nil && last {
			return &GapError{Table: name,
				Reason: fmt.Sprintf("values below the last floor %.2f are unclassifiable", *b.Min)}
		}
		if b.Multiplier <= 0 {
			return &GapError{Table: name,
				Reason: fmt.Sprintf("band %d multiplier %.2f is not positive", i, b.Multiplier)}
		}
		if i == 0 {
			continue
		}
		prev := t[i-1]
		if b.Min != nil && prev.Min != nil && *b.Min >= *prev.Min {
			return &GapError{Table: name,
				Reason: fmt.Sprintf("floors must strictly descend, band %d floor %.2f is not below %.2f",
					i, *b.Min, *prev.Min)}
		}
		if b.Multiplier > prev.Multiplier {
			return &GapError{Table: name,
				Reason: fmt.Sprintf("multiplier rises from %.2f to %.2f as floors descend", prev.Multiplier, b.Multiplier)}
		}
	}
	return nil
}

func floor(v float64) *float64 {
	return &v
}

// DefaultInfraBands is the standard tiering for infrastructure scores.
func DefaultInfraBands() BandTable {
	return BandTable{
		{Min: floor(90), Multiplier: 1.30},
		{Min: floor(75), Multiplier: 1.15},
		{Min: floor(60), Multiplier: 1.00},
		{Min: floor(40), Multiplier: 0.90},
		{Multiplier: 0.80},
	}
}

// DefaultMarketBands is the standard tiering for market trend percentages.
func DefaultMarketBands() BandTable {
	return BandTable{
		{Min: floor(15), Multiplier: 1.40},
		{Min: floor(8), Multiplier: 1.20},
		{Min: floor(2), Multiplier: 1.00},
		{Min: floor(0), Multiplier: 0.95},
		{Multiplier: 0.85},
	}
}
