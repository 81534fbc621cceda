package geo

import (
	"math"

	"github.com/mmcloughlin/geohash"
)

const (
	DefaultMinPrecision uint = 3
	DefaultMaxPrecision uint = 6
)

// Index buckets ids by geohash cell at every precision in [min, max] so that a
// radius query can be answered from a 3x3 block of cells instead of a full scan.
// Index is not safe for concurrent use; the owning store synchronizes access.
type Index struct {
	minPrecision uint
	maxPrecision uint
	cells        map[uint]map[string]map[string]struct{}
	members      map[string][]string
}

func NewIndex(minPrecision, maxPrecision uint) *Index {
	if minPrecision == 0 {
		minPrecision = 1
	}
	if maxPrecision > 12 {
		maxPrecision = 12
	}
	if maxPrecision < minPrecision {
		maxPrecision = minPrecision
	}

	cells := make(map[uint]map[string]map[string]struct{}, maxPrecision-minPrecision+1)
	for p := minPrecision; p <= maxPrecision; p++ {
		cells[p] = make(map[string]map[string]struct{})
	}

	return &Index{
		minPrecision: minPrecision,
		maxPrecision: maxPrecision,
		cells:        cells,
		members:      make(map[string][]string),
	}
}

// Put places id at p, replacing any previous position.
func (ix *Index) Put(id string, p Point) {
	ix.Remove(id)

	hash := geohash.EncodeWithPrecision(p.Lat, p.Lng, ix.maxPrecision)
	owned := make([]string, 0, ix.maxPrecision-ix.minPrecision+1)
	for prec := ix.minPrecision; prec <= ix.maxPrecision; prec++ {
		cell := hash[:prec]
		bucket, ok := ix.cells[prec][cell]
		if !ok {
			bucket = make(map[string]struct{})
			ix.cells[prec][cell] = bucket
		}
		bucket[id] = struct{}{}
		owned = append(owned, cell)
	}
	ix.members[id] = owned
}

func (ix *Index) Remove(id string) {
	owned, ok := ix.members[id]
	if !ok {
		return
	}
	for i, cell := range owned {
		prec := ix.minPrecision + uint(i)
		bucket := ix.cells[prec][cell]
		delete(bucket, id)
		if len(bucket) == 0 {
			delete(ix.cells[prec], cell)
		}
	}
	delete(ix.members, id)
}

func (ix *Index) Has(id string) bool {
	_, ok := ix.members[id]
	return ok
}

func (ix *Index) Len() int {
	return len(ix.members)
}

// Candidates returns every indexed id that may lie within radiusMeters of center.
// The result is a superset of the true answer. ok is false when no indexed
// precision can cover the radius with a 3x3 block; callers must then scan.
func (ix *Index) Candidates(center Point, radiusMeters float64) (ids []string, ok bool) {
	prec, ok := ix.CoveringPrecision(center, radiusMeters)
	if !ok {
		return nil, false
	}

	hash := geohash.EncodeWithPrecision(center.Lat, center.Lng, prec)
	block := append([]string{hash}, geohash.Neighbors(hash)...)

	seen := make(map[string]struct{})
	for _, cell := range block {
		for id := range ix.cells[prec][cell] {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids, true
}

// CoveringPrecision picks the finest indexed precision whose 3x3 cell block
// around center is guaranteed to contain the whole circle.
func (ix *Index) CoveringPrecision(center Point, radiusMeters float64) (uint, bool) {
	if math.IsNaN(radiusMeters) || radiusMeters < 0 {
		return 0, false
	}

	for prec := ix.maxPrecision; prec >= ix.minPrecision; prec-- {
		box := geohash.BoundingBox(geohash.EncodeWithPrecision(center.Lat, center.Lng, prec))
		height := box.MaxLat - box.MinLat
		width := box.MaxLng - box.MinLng

		top := box.MaxLat + height
		bottom := box.MinLat - height
		if top >= 90 || bottom <= -90 || box.MaxLng+width > 180 || box.MinLng-width < -180 {
			// the block would wrap over a pole or the antimeridian; coarser cells only make this worse
			return 0, false
		}

		if blockMargin(height, width, math.Max(math.Abs(top), math.Abs(bottom))) >= radiusMeters {
			return prec, true
		}
	}
	return 0, false
}

// blockMargin is a lower bound on the distance from any point of the center
// cell to any point outside the 3x3 block.
func blockMargin(heightDeg, widthDeg, maxAbsLat float64) float64 {
	northSouth := EarthRadiusMeters * toRadians(heightDeg)

	widthRad := toRadians(widthDeg)
	if widthRad > math.Pi/2 {
		widthRad = math.Pi / 2
	}
	eastWest := EarthRadiusMeters * math.Asin(math.Cos(toRadians(maxAbsLat))*math.Sin(widthRad))

	return math.Min(northSouth, eastWest)
}
