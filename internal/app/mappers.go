package app

import (
	"fmt"
	"strconv"
	"strings"

	"cityinfo/internal/domain"
)

/********** alias registries **********/

var cityAliases = map[string][]string{
	"id":          {"id", "city_id", "cityId"},
	"name":        {"name", "city_name", "cityName", "title"},
	"description": {"description", "summary", "desc", "details.description"},
	"children":    {"pointsOfInterest", "points_of_interest", "pois", "attractions"},
}

var poiAliases = map[string][]string{
	"id":          {"id", "poi_id", "pointOfInterestId"},
	"name":        {"name", "poi_name", "title"},
	"description": {"description", "summary", "desc"},
}

/********** tiny helpers **********/

// lookupAny: safe nested lookup with dot paths on maps.
func lookupAny(m map[string]any, path string) any {
	cur := any(m)
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		v, ok := obj[part]
		if !ok {
			return nil
		}
		cur = v
	}
	return cur
}

func lookupStr(m map[string]any, path string) string {
	if v := lookupAny(m, path); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// firstNonEmptyAlias: first non-blank string for a named alias set.
func firstNonEmptyAlias(m map[string]any, aliases map[string][]string, key string) *string {
	for _, p := range aliases[key] {
		if s := strings.TrimSpace(lookupStr(m, p)); s != "" {
			return &s
		}
	}
	return nil
}

// firstInt64Flexible: int64 from several paths (float64/int/string).
func firstInt64Flexible(m map[string]any, paths ...string) *int64 {
	for _, k := range paths {
		switch v := lookupAny(m, k).(type) {
		case float64:
			x := int64(v)
			return &x
		case int:
			x := int64(v)
			return &x
		case int64:
			x := v
			return &x
		case string:
			s := strings.TrimSpace(v)
			if s == "" {
				continue
			}
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				return &n
			}
		}
	}
	return nil
}

func firstObjects(m map[string]any, paths ...string) []map[string]any {
	for _, k := range paths {
		raw, ok := lookupAny(m, k).([]any)
		if !ok {
			continue
		}
		out := make([]map[string]any, 0, len(raw))
		for _, it := range raw {
			if obj, ok := it.(map[string]any); ok {
				out = append(out, obj)
			}
		}
		return out
	}
	return nil
}

/********** mappers **********/

// MapSeedCity turns one loosely keyed seed record into a City with its
// points of interest. Records without an id or a name are rejected.
func MapSeedCity(m map[string]any) (domain.City, error) {
	id := firstInt64Flexible(m, cityAliases["id"]...)
	name := firstNonEmptyAlias(m, cityAliases, "name")
	if id == nil || name == nil {
		return domain.City{}, fmt.Errorf("seed city: id and name are required")
	}
	c := domain.City{
		ID:          *id,
		Name:        *name,
		Description: firstNonEmptyAlias(m, cityAliases, "description"),
	}
	for i, pm := range firstObjects(m, cityAliases["children"]...) {
		p, err := mapSeedPOI(pm)
		if err != nil {
			return domain.City{}, fmt.Errorf("seed city %d: point of interest #%d: %w", c.ID, i+1, err)
		}
		p.CityID = c.ID
		c.PointsOfInterest = append(c.PointsOfInterest, p)
	}
	return c, nil
}

func mapSeedPOI(m map[string]any) (domain.PointOfInterest, error) {
	id := firstInt64Flexible(m, poiAliases["id"]...)
	name := firstNonEmptyAlias(m, poiAliases, "name")
	if id == nil || name == nil {
		return domain.PointOfInterest{}, fmt.Errorf("id and name are required")
	}
	p := domain.PointOfInterest{ID: *id, Name: *name, Description: firstNonEmptyAlias(m, poiAliases, "description")}
	if err := validateFields(p.Fields()); err != nil {
		return domain.PointOfInterest{}, err
	}
	return p, nil
}
