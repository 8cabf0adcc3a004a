package osm

import "slices"

// RulePolicy decides which values of a tag key mark a way as an area.
type RulePolicy int

const (
	// PolicyAll accepts every value except "no".
	PolicyAll RulePolicy = iota
	// PolicyWhitelist accepts only the listed values.
	PolicyWhitelist
	// PolicyBlacklist accepts every non-empty value that is not listed.
	PolicyBlacklist
)

func (p RulePolicy) String() string {
	switch p {
	case PolicyWhitelist:
		return "whitelist"
	case PolicyBlacklist:
		return "blacklist"
	}
	return "all"
}

// PolygonRule is one entry of the area classification table.
type PolygonRule struct {
	Key    string
	Policy RulePolicy
	Values []string
}

// Accepts reports whether a tag with this rule's key and value val marks
// an area.
func (r PolygonRule) Accepts(val string) bool {
	if val == "no" {
		return false
	}
	switch r.Policy {
	case PolicyWhitelist:
		return slices.Contains(r.Values, val)
	case PolicyBlacklist:
		return val != "" && !slices.Contains(r.Values, val)
	}
	return true
}

// Based on the id-area-keys / osm-polygon-features tables used by most
// OpenStreetMap renderers.
var polygonRules = func() map[string]PolygonRule {
	rules := []PolygonRule{
		{Key: "building", Policy: PolicyAll},
		{Key: "highway", Policy: PolicyWhitelist, Values: []string{"services", "rest_area", "escape", "elevator"}},
		{Key: "natural", Policy: PolicyBlacklist, Values: []string{"coastline", "cliff", "ridge", "arete", "tree_row"}},
		{Key: "landuse", Policy: PolicyAll},
		{Key: "waterway", Policy: PolicyWhitelist, Values: []string{"riverbank", "dock", "boatyard", "dam"}},
		{Key: "amenity", Policy: PolicyAll},
		{Key: "leisure", Policy: PolicyAll},
		{Key: "barrier", Policy: PolicyWhitelist, Values: []string{"city_wall", "ditch", "hedge", "retaining_wall", "wall", "spikes"}},
		{Key: "railway", Policy: PolicyWhitelist, Values: []string{"station", "turntable", "roundhouse", "platform"}},
		{Key: "area", Policy: PolicyAll},
		{Key: "boundary", Policy: PolicyAll},
		{Key: "man_made", Policy: PolicyBlacklist, Values: []string{"cutline", "embankment", "pipeline"}},
		{Key: "power", Policy: PolicyWhitelist, Values: []string{"plant", "substation", "generator", "transformer"}},
		{Key: "place", Policy: PolicyAll},
		{Key: "shop", Policy: PolicyAll},
		{Key: "aeroway", Policy: PolicyBlacklist, Values: []string{"taxiway"}},
		{Key: "tourism", Policy: PolicyAll},
		{Key: "historic", Policy: PolicyAll},
		{Key: "public_transport", Policy: PolicyAll},
		{Key: "office", Policy: PolicyAll},
		{Key: "building:part", Policy: PolicyAll},
		{Key: "military", Policy: PolicyAll},
		{Key: "ruins", Policy: PolicyAll},
		{Key: "area:highway", Policy: PolicyAll},
		{Key: "craft", Policy: PolicyAll},
		{Key: "golf", Policy: PolicyAll},
	}
	m := make(map[string]PolygonRule, len(rules))
	for _, r := range rules {
		m[r.Key] = r
	}
	return m
}()

// LookupPolygonRule returns the rule for a tag key.
func LookupPolygonRule(key string) (PolygonRule, bool) {
	r, ok := polygonRules[key]
	if !ok {
		return PolygonRule{}, false
	}
	r.Values = slices.Clone(r.Values)
	return r, true
}

// PolygonRuleKeys returns the keys of the classification table, sorted.
func PolygonRuleKeys() []string {
	keys := make([]string, 0, len(polygonRules))
	for k := range polygonRules {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Classifier decides whether a way describes an area or a line.
type Classifier struct {
	// ClosedLoop treats every way whose first and last node references
	// are equal as an area, before any tag is consulted.
	ClosedLoop bool
}

var (
	// DefaultClassifier checks for closed rings, then tags.
	DefaultClassifier = Classifier{ClosedLoop: true}

	// TagOnlyClassifier looks at tags only.
	TagOnlyClassifier = Classifier{}
)

// IsPolygon reports whether w is an area. Any single tag that matches a rule
// is enough; keys without a rule are ignored.
func (c Classifier) IsPolygon(w *Way) bool {
	if c.ClosedLoop && w.IsClosed() {
		return true
	}
	for _, tag := range w.Tags {
		if r, ok := polygonRules[tag.Key]; ok && r.Accepts(tag.Val) {
			return true
		}
	}
	return false
}

// AreaTags returns the tags of w that match a rule, in document order.
func AreaTags(w *Way) Tags {
	var out Tags
	for _, tag := range w.Tags {
		if r, ok := polygonRules[tag.Key]; ok && r.Accepts(tag.Val) {
			out = append(out, tag)
		}
	}
	return out
}

// IsPolygon classifies w with DefaultClassifier.
func IsPolygon(w *Way) bool {
	return DefaultClassifier.IsPolygon(w)
}

// IsPolygon classifies w with DefaultClassifier.
func (w *Way) IsPolygon() bool {
	return DefaultClassifier.IsPolygon(w)
}
