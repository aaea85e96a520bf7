package engine

import (
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// builtRow pairs an output row with the pre-rounding indicator values used
// for ordering; sorting on rounded values would let display rounding reorder
// rows.
type builtRow struct {
	row Row
	raw map[string]float64
}

// orderRows sorts one sibling set in place according to the widget's order
// column and direction. Ties keep the order groups were first enumerated in
// (sort.SliceStable), so repeated builds of identical input agree exactly.
func orderRows(rows []builtRow, settings WidgetSettings, collator *collate.Collator) {
	if len(rows) < 2 {
		return
	}

	desc := settings.OrderDirection == OrderDesc
	byIndicator := indicatorColumn(settings)

	less := func(i, j int) bool {
		if byIndicator {
			return rows[i].raw[settings.OrderColumn] < rows[j].raw[settings.OrderColumn]
		}
		return collator.CompareString(rows[i].row.Label, rows[j].row.Label) < 0
	}
	if desc {
		inner := less
		less = func(i, j int) bool { return inner(j, i) }
	}

	sort.SliceStable(rows, less)
}

// indicatorColumn reports whether the order column names a configured
// indicator; anything else (label included) sorts lexicographically.
func indicatorColumn(settings WidgetSettings) bool {
	for _, ind := range settings.Indicators {
		if ind.ID == settings.OrderColumn {
			return true
		}
	}
	for _, ind := range settings.AmountIndicators {
		if ind.ID == settings.OrderColumn {
			return true
		}
	}
	return false
}

// newCollator builds the Unicode collator used for label ordering. Collators
// are not safe for concurrent use, so each build call owns one.
func newCollator() *collate.Collator {
	return collate.New(language.Und)
}
