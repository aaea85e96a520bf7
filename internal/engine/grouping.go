package engine

import "sort"

// group is one partition of a level's calculation data: the breakdown value
// it was keyed by and the sub-data belonging to it.
type group struct {
	key  string
	data CalculationData
}

// partition splits one level of calculation data by its keys. Entries with an
// empty key, and entries whose value is not a nested map, are merged into the
// reserved unspecified bucket so no observation is lost. Go maps carry no
// document order, so groups are enumerated in sorted key order; that order is
// the stable tie-break downstream sorting preserves.
func partition(data CalculationData) []group {
	if len(data) == 0 {
		return nil
	}

	keys := make([]string, 0, len(data))
	for key := range data {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	groups := make([]group, 0, len(keys))
	var unspecified CalculationData
	for _, key := range keys {
		sub, isMap := data[key].(map[string]any)
		if key == "" || key == UnspecifiedKey || !isMap {
			if unspecified == nil {
				unspecified = CalculationData{}
			}
			if isMap {
				mergeInto(unspecified, sub)
			} else {
				// A bare value where a nested map was expected: keep it
				// keyed so leaf collection still sees it.
				mergeEntry(unspecified, key, data[key])
			}
			continue
		}
		groups = append(groups, group{key: key, data: sub})
	}
	if unspecified != nil {
		groups = append(groups, group{key: UnspecifiedKey, data: unspecified})
	}
	return groups
}

// mergeInto folds src into dst without mutating src. Colliding numbers sum,
// arrays concatenate, and maps merge recursively, so merging two groups is
// equivalent to having observed their data as one group.
func mergeInto(dst, src CalculationData) {
	for key, value := range src {
		mergeEntry(dst, key, value)
	}
}

func mergeEntry(dst CalculationData, key string, value any) {
	existing, ok := dst[key]
	if !ok {
		dst[key] = value
		return
	}

	switch have := existing.(type) {
	case map[string]any:
		if add, ok := value.(map[string]any); ok {
			merged := CalculationData{}
			mergeInto(merged, have)
			mergeInto(merged, add)
			dst[key] = merged
			return
		}
	case []any:
		if add, ok := value.([]any); ok {
			joined := make([]any, 0, len(have)+len(add))
			joined = append(joined, have...)
			joined = append(joined, add...)
			dst[key] = joined
			return
		}
	default:
		if haveN, ok := numeric(existing); ok {
			if addN, ok := numeric(value); ok {
				dst[key] = haveN + addN
				return
			}
		}
	}
	// Shapes disagree; keep the first value rather than guessing.
}

// conceptActive reports whether a concept sub-grouping applies at the given
// breakdown depth.
func conceptActive(settings WidgetSettings, depth int) bool {
	return depth < len(settings.ConceptBreakdowns)
}

// leavesBelowRoot gathers every leaf observation map in the dataset; the
// implicit Total group aggregates over all of them.
func leavesBelowRoot(data CalculationData, settings WidgetSettings) []CalculationData {
	if len(settings.Breakdowns) == 0 {
		return []CalculationData{data}
	}
	var leaves []CalculationData
	for _, g := range partition(data) {
		leaves = append(leaves, leavesBelowGroup(g.data, settings, 0)...)
	}
	return leaves
}

// leavesBelowGroup gathers the leaves beneath one breakdown-value group at
// the given depth, reading through the concept layer when one is configured
// for that depth.
func leavesBelowGroup(data CalculationData, settings WidgetSettings, depth int) []CalculationData {
	if !conceptActive(settings, depth) {
		return leavesAfterConcept(data, settings, depth)
	}
	var leaves []CalculationData
	for _, cg := range partition(data) {
		leaves = append(leaves, leavesAfterConcept(cg.data, settings, depth)...)
	}
	return leaves
}

// leavesAfterConcept descends the remaining breakdown levels below depth.
func leavesAfterConcept(data CalculationData, settings WidgetSettings, depth int) []CalculationData {
	if depth+1 >= len(settings.Breakdowns) {
		return []CalculationData{data}
	}
	var leaves []CalculationData
	for _, g := range partition(data) {
		leaves = append(leaves, leavesBelowGroup(g.data, settings, depth+1)...)
	}
	return leaves
}

// childLevelData returns the map keyed by the next breakdown level's values
// for one group: the group's own data, or the union of its concept sub-maps
// when a concept layer sits in between.
func childLevelData(data CalculationData, settings WidgetSettings, depth int) CalculationData {
	if !conceptActive(settings, depth) {
		return data
	}
	merged := CalculationData{}
	for _, cg := range partition(data) {
		mergeInto(merged, cg.data)
	}
	return merged
}
