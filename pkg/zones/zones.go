// Package zones checks takeoff positions against UAS geozones published as
// GeoJSON feature collections.
package zones

import (
	"fmt"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

// Hit is a restricting zone the checked position falls into.
type Hit struct {
	Zone       string                 `json:"zone"`
	Reason     string                 `json:"reason"`
	Properties map[string]interface{} `json:"properties,omitempty"`
}

// ZoneHitError is returned when a takeoff position is inside a restricted zone.
type ZoneHitError struct {
	Hits []Hit
}

func (e *ZoneHitError) Error() string {
	names := make([]string, 0, len(e.Hits))
	for _, h := range e.Hits {
		names = append(names, fmt.Sprintf("%s (%s)", h.Zone, h.Reason))
	}
	return "position intersects restricted zone: " + strings.Join(names, ", ")
}

// Set is a loaded collection of zone features.
type Set struct {
	collection *geojson.FeatureCollection
}

func NewSet(fc *geojson.FeatureCollection) *Set {
	if fc == nil {
		fc = geojson.NewFeatureCollection()
	}
	return &Set{collection: fc}
}

func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.collection.Features)
}

// Check returns the restricting zones containing the point (lon, lat) at
// the given flight altitude. Permissive zones never hit.
func (s *Set) Check(lon, lat, altitude float64) []Hit {
	if s == nil {
		return nil
	}

	point := orb.Point{lon, lat}

	var hits []Hit
	for _, f := range s.collection.Features {
		if !contains(f.Geometry, point) {
			continue
		}

		props := f.Properties
		if isPermissive(props) {
			continue
		}

		reason := "restricted zone"
		if r, ok := props["restriction"]; ok && r != nil && fmt.Sprint(r) != "" {
			reason = fmt.Sprint(r)
		}

		if maxAlt, ok := props["max_altitude_m"].(float64); ok {
			if altitude <= maxAlt {
				continue
			}
			reason = fmt.Sprintf("%s; max_altitude=%gm, flight_alt=%gm", reason, maxAlt, altitude)
		}

		hits = append(hits, Hit{Zone: zoneName(f), Reason: reason, Properties: props})
	}

	return hits
}

// Verify returns a *ZoneHitError when the point is inside any restricting zone.
func (s *Set) Verify(lon, lat, altitude float64) error {
	if hits := s.Check(lon, lat, altitude); len(hits) > 0 {
		return &ZoneHitError{Hits: hits}
	}
	return nil
}

func zoneName(f *geojson.Feature) string {
	for _, key := range []string{"zone", "name", "id"} {
		if v := stringProp(f.Properties, key); v != "" {
			return v
		}
	}
	if f.ID != nil && fmt.Sprint(f.ID) != "" {
		return fmt.Sprint(f.ID)
	}
	return "unknown"
}

func isPermissive(props map[string]interface{}) bool {
	if allow, ok := props["allow_flight"].(bool); ok && allow {
		return true
	}

	category := strings.ToLower(stringProp(props, "category"))
	switch category {
	case "training", "allowed", "green":
		return true
	}

	restriction := strings.ToLower(stringProp(props, "restriction"))
	return strings.Contains(restriction, "training") || strings.Contains(restriction, "practice")
}

func stringProp(props map[string]interface{}, key string) string {
	if v, ok := props[key]; ok && v != nil {
		return fmt.Sprint(v)
	}
	return ""
}

// contains reports whether point lies in a polygonal geometry, holes
// excluded. Other geometry types never contain anything.
func contains(g orb.Geometry, point orb.Point) bool {
	switch g := g.(type) {
	case orb.Polygon:
		return planar.PolygonContains(g, point)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(g, point)
	}
	return false
}
