package airquality

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/airmonitor/airmonitor/internal/geo"
)

// Outcome describes how a search produced its result set.
type Outcome string

const (
	// OutcomeExact means at least one station is in the requested city.
	OutcomeExact Outcome = "EXACT"

	// OutcomeNearest means no station is in the city and the nearest
	// station was chosen instead.
	OutcomeNearest Outcome = "NEAREST"

	// OutcomeNone means the catalog is empty.
	OutcomeNone Outcome = "NONE"
)

// TieBreak selects between stations at exactly the same distance.
type TieBreak int

const (
	// TieBreakFirst keeps the first station in catalog order.
	TieBreakFirst TieBreak = iota

	// TieBreakLast keeps the last station in catalog order.
	TieBreakLast
)

// MatchSet is the set of station ids in the current search result.
type MatchSet map[int]struct{}

// Has reports whether id is matched.
func (m MatchSet) Has(id int) bool {
	_, ok := m[id]
	return ok
}

// Add marks id as matched.
func (m MatchSet) Add(id int) {
	m[id] = struct{}{}
}

// Remove unmarks id.
func (m MatchSet) Remove(id int) {
	delete(m, id)
}

// IDs returns the matched ids in ascending order.
func (m MatchSet) IDs() []int {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Clone returns a copy of the set.
func (m MatchSet) Clone() MatchSet {
	out := make(MatchSet, len(m))
	for id := range m {
		out[id] = struct{}{}
	}
	return out
}

// SearchResult is the outcome of matching a city against the catalog.
type SearchResult struct {
	// Query is the city name as entered.
	Query string

	// Matched holds copies of the matched stations in catalog order.
	Matched []Station

	// Matches is the set of matched station ids.
	Matches MatchSet

	// Center is where the map should be centered: the geocoded point for
	// exact matches, the fallback station's location otherwise.
	Center geo.Point

	// Outcome tells which branch of the search produced the result.
	Outcome Outcome

	// NearestDistance is the distance in meters to the fallback station.
	// Only set for OutcomeNearest.
	NearestDistance float64

	// Message is a human-readable summary of the result.
	Message string
}

// IsMatched reports whether the station with the given id is in the result.
func (r SearchResult) IsMatched(id int) bool {
	return r.Matches.Has(id)
}

// ResolverConfig holds configuration for the station resolver.
type ResolverConfig struct {
	// TieBreak picks between equidistant fallback candidates.
	// Default: TieBreakFirst.
	TieBreak TieBreak

	// Distance computes the distance between two points in meters.
	// Default: geo.Distance.
	Distance func(a, b geo.Point) float64
}

// Resolver matches a city name and its geocoded point against the catalog.
type Resolver struct {
	tieBreak TieBreak
	distance func(a, b geo.Point) float64
}

// NewResolver creates a new Resolver with the given configuration.
func NewResolver(cfg ResolverConfig) *Resolver {
	distance := cfg.Distance
	if distance == nil {
		distance = geo.Distance
	}
	return &Resolver{
		tieBreak: cfg.TieBreak,
		distance: distance,
	}
}

// NormalizeCity lower-cases a city name and collapses its whitespace.
func NormalizeCity(city string) string {
	return strings.Join(strings.Fields(strings.ToLower(city)), " ")
}

// Search selects every station whose city equals the query, ignoring case
// and whitespace. When none does, the station nearest to point is selected
// and becomes the new map center.
func (r *Resolver) Search(city string, catalog []Station, point geo.Point) SearchResult {
	result := SearchResult{
		Query:   city,
		Matches: make(MatchSet),
		Center:  point,
	}

	query := NormalizeCity(city)
	for _, s := range catalog {
		if NormalizeCity(s.City) == query {
			result.Matched = append(result.Matched, s)
			result.Matches.Add(s.ID)
		}
	}

	if len(result.Matched) > 0 {
		result.Outcome = OutcomeExact
		result.Message = fmt.Sprintf("Found %d stations in %s.", len(result.Matched), city)
		return result
	}

	nearest, dist, ok := r.Nearest(catalog, point)
	if !ok {
		result.Outcome = OutcomeNone
		result.Message = fmt.Sprintf("No stations found in %s.", city)
		return result
	}

	result.Matched = []Station{nearest}
	result.Matches.Add(nearest.ID)
	result.Center = nearest.Location
	result.Outcome = OutcomeNearest
	result.NearestDistance = dist
	result.Message = fmt.Sprintf("No stations found in %s. The nearest station is in %s.", city, nearest.City)
	return result
}

// Nearest returns the station closest to point and its distance in meters.
// It returns false for an empty catalog.
func (r *Resolver) Nearest(catalog []Station, point geo.Point) (Station, float64, bool) {
	best := -1
	minDistance := math.MaxFloat64

	for i, s := range catalog {
		d := r.distance(point, s.Location)
		switch {
		case d < minDistance:
		case d == minDistance && r.tieBreak == TieBreakLast:
		default:
			continue
		}
		minDistance = d
		best = i
	}

	if best < 0 {
		return Station{}, 0, false
	}
	return catalog[best], minDistance, true
}
