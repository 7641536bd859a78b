package dataset

import (
	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
)

// Mark is one infrastructure feature read from a shapefile, reduced to the
// representative points used for radius matching. A point shape keeps its
// point, a polyline keeps every vertex, and a polygon collapses to the
// center of its bounding box.
type Mark struct {
	points []orb.Point
}

// WithinKm reports whether any of the mark's points lies within radiusKm of
// center. A highway that merely passes through the radius counts the same as
// one that terminates inside it.
func (m Mark) WithinKm(center orb.Point, radiusKm float64) bool {
	for _, p := range m.points {
		if geo.Distance(center, p) <= radiusKm*1000 {
			return true
		}
	}
	return false
}

// LoadMarks reads every usable record from a shapefile. Records whose
// geometry is missing or malformed are skipped, not fatal; public transport
// datasets routinely carry a handful of broken rows.
func LoadMarks(shpPath string) ([]Mark, error) {
	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: open shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	var marks []Mark
	var skipped int

	for reader.Next() {
		_, shape := reader.Shape()
		points := markFromShape(shape)
		if len(points) == 0 {
			skipped++
			continue
		}
		marks = append(marks, Mark{points: points})
	}

	if skipped > 0 {
		zap.L().Debug("dataset: skipped shapefile records",
			zap.String("path", shpPath),
			zap.Int("skipped", skipped),
		)
	}

	return marks, nil
}

// markFromShape reduces a go-shp geometry to its representative points.
// Returns nil for unsupported or nil shapes.
func markFromShape(shape shp.Shape) []orb.Point {
	switch s := shape.(type) {
	case *shp.Point:
		return []orb.Point{{s.X, s.Y}}

	case *shp.PolyLine:
		mls := polyLineToMultiLineString(s)
		if mls == nil {
			return nil
		}
		return flatToPoints(mls.FlatCoords())

	case *shp.Polygon:
		mp := polygonToMultiPolygon(s)
		if mp == nil {
			return nil
		}
		center, ok := boundsCenter(mp.FlatCoords())
		if !ok {
			return nil
		}
		return []orb.Point{center}

	default:
		return nil
	}
}

// polyLineToMultiLineString converts a shapefile PolyLine to a geom.MultiLineString.
func polyLineToMultiLineString(pl *shp.PolyLine) *geom.MultiLineString {
	if pl == nil || pl.NumParts == 0 || len(pl.Points) == 0 {
		return nil
	}

	mls := geom.NewMultiLineString(geom.XY).SetSRID(4326)

	for i := int32(0); i < pl.NumParts; i++ {
		start := pl.Parts[i]
		var end int32
		if i+1 < pl.NumParts {
			end = pl.Parts[i+1]
		} else {
			end = int32(len(pl.Points))
		}

		coords := make([]geom.Coord, 0, end-start)
		for j := start; j < end; j++ {
			coords = append(coords, geom.Coord{pl.Points[j].X, pl.Points[j].Y})
		}

		ls := geom.NewLineStringFlat(geom.XY, flatCoords(coords))
		if err := mls.Push(ls); err != nil {
			zap.L().Debug("dataset: skipping malformed linestring part", zap.Int32("part", i), zap.Error(err))
			continue
		}
	}

	if mls.NumLineStrings() == 0 {
		return nil
	}
	return mls
}

// polygonToMultiPolygon converts a shapefile Polygon to a geom.MultiPolygon.
func polygonToMultiPolygon(p *shp.Polygon) *geom.MultiPolygon {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	mp := geom.NewMultiPolygon(geom.XY).SetSRID(4326)

	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		var end int32
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		} else {
			end = int32(len(p.Points))
		}

		coords := make([]geom.Coord, 0, end-start)
		for j := start; j < end; j++ {
			coords = append(coords, geom.Coord{p.Points[j].X, p.Points[j].Y})
		}

		ring := geom.NewLinearRingFlat(geom.XY, flatCoords(coords))
		poly := geom.NewPolygon(geom.XY)
		if err := poly.Push(ring); err != nil {
			zap.L().Debug("dataset: skipping malformed polygon ring", zap.Int32("part", i), zap.Error(err))
			continue
		}

		if err := mp.Push(poly); err != nil {
			zap.L().Debug("dataset: skipping malformed polygon part", zap.Int32("part", i), zap.Error(err))
			continue
		}
	}

	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}

// flatCoords converts a slice of Coord to flat coordinate pairs for go-geom.
func flatCoords(coords []geom.Coord) []float64 {
	flat := make([]float64, 0, len(coords)*2)
	for _, c := range coords {
		flat = append(flat, c[0], c[1])
	}
	return flat
}

// flatToPoints converts go-geom flat XY coordinates back to orb points.
func flatToPoints(flat []float64) []orb.Point {
	points := make([]orb.Point, 0, len(flat)/2)
	for i := 0; i+1 < len(flat); i += 2 {
		points = append(points, orb.Point{flat[i], flat[i+1]})
	}
	return points
}

// boundsCenter returns the center of the bounding box around flat XY
// coordinates. ok is false when there are no coordinates.
func boundsCenter(flat []float64) (orb.Point, bool) {
	if len(flat) < 2 {
		return orb.Point{}, false
	}

	first := orb.Point{flat[0], flat[1]}
	bound := orb.Bound{Min: first, Max: first}
	for i := 2; i+1 < len(flat); i += 2 {
		bound = bound.Extend(orb.Point{flat[i], flat[i+1]})
	}

	return orb.Point{
		(bound.Min.Lon() + bound.Max.Lon()) / 2,
		(bound.Min.Lat() + bound.Max.Lat()) / 2,
	}, true
}
