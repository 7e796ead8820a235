package detection

import (
	"math"

	"nvr-worker-go/internal/models"
)

const geomEpsilon = 1e-9

// PointInPolygon reports whether p lies strictly inside poly (ray casting).
// Points on an edge or vertex are outside. Polygons with fewer than three
// vertices contain nothing.
func PointInPolygon(p models.Point, poly []models.Point) bool {
	n := len(poly)
	if n < 3 {
		return false
	}

	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a, b := poly[i], poly[j]
		if onSegment(p, a, b) {
			return false
		}
		if (a.Y > p.Y) != (b.Y > p.Y) {
			xCross := (b.X-a.X)*(p.Y-a.Y)/(b.Y-a.Y) + a.X
			if p.X < xCross {
				inside = !inside
			}
		}
	}
	return inside
}

func onSegment(p, a, b models.Point) bool {
	cross := (b.X-a.X)*(p.Y-a.Y) - (b.Y-a.Y)*(p.X-a.X)
	if math.Abs(cross) > geomEpsilon {
		return false
	}
	return p.X >= math.Min(a.X, b.X)-geomEpsilon && p.X <= math.Max(a.X, b.X)+geomEpsilon &&
		p.Y >= math.Min(a.Y, b.Y)-geomEpsilon && p.Y <= math.Max(a.Y, b.Y)+geomEpsilon
}

// MatchRegion returns the first region, in configured order, that allows the
// detection's class and contains the center of its box.
func MatchRegion(det models.RawDetection, regions []models.DetectionRegion) (*models.DetectionRegion, bool) {
	center := det.BBox.Center()
	for i := range regions {
		r := &regions[i]
		if !r.Allows(det.Class) {
			continue
		}
		if PointInPolygon(center, r.Polygon) {
			return r, true
		}
	}
	return nil, false
}

// Match is a detection that passed filtering. RegionID is nil when the
// camera has no regions.
type Match struct {
	Detection models.RawDetection
	RegionID  *string
}

// Filter drops detections under threshold and, when regions are configured,
// those outside every region that allows their class.
func Filter(dets []models.RawDetection, threshold float64, regions []models.DetectionRegion) []Match {
	out := make([]Match, 0, len(dets))
	for _, d := range dets {
		if d.Confidence < threshold {
			continue
		}
		if len(regions) == 0 {
			out = append(out, Match{Detection: d})
			continue
		}
		if r, ok := MatchRegion(d, regions); ok {
			id := r.ID
			out = append(out, Match{Detection: d, RegionID: &id})
		}
	}
	return out
}
