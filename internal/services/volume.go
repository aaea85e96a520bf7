package services

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// EstimateRows predicts how many rows a full-table build would produce from
// the raw calculation payload, without decoding it. The walk mirrors the
// engine's recursion: one implicit total row, one row per group key at each
// breakdown level, plus concept sub-rows where a concept breakdown applies.
// Overlapping concept sub-maps may be counted more than once, so the estimate
// is an upper bound; that is the right direction for admission control.
func EstimateRows(raw json.RawMessage, settings WidgetSettings) int {
	parsed := gjson.ParseBytes(raw)
	if !parsed.IsObject() {
		return 1
	}
	return 1 + estimateLevel(parsed, settings, 0)
}

func estimateLevel(node gjson.Result, settings WidgetSettings, depth int) int {
	if depth >= len(settings.Breakdowns) {
		return 0
	}

	concept := depth < len(settings.ConceptBreakdowns)
	rows := 0
	node.ForEach(func(_ gjson.Result, group gjson.Result) bool {
		rows++
		if !group.IsObject() {
			return true
		}
		if !concept {
			rows += estimateLevel(group, settings, depth+1)
			return true
		}
		group.ForEach(func(_ gjson.Result, sub gjson.Result) bool {
			rows++
			if sub.IsObject() {
				rows += estimateLevel(sub, settings, depth+1)
			}
			return true
		})
		return true
	})
	return rows
}
