package engine

import (
	"fmt"

	"golang.org/x/text/collate"
)

// DefaultMaxBreakdownDepth bounds recursion depth for configurations that do
// not override it. Breakdown depth is caller-controlled input, so it must be
// capped rather than trusted.
const DefaultMaxBreakdownDepth = 10

// BuilderConfig tunes engine limits.
type BuilderConfig struct {
	// MaxBreakdownDepth rejects configurations with more breakdown
	// dimensions than this; zero applies DefaultMaxBreakdownDepth.
	MaxBreakdownDepth int
}

// Builder constructs row trees from calculation data and a widget
// configuration. It holds no per-call state; one Builder may serve
// concurrent builds.
type Builder struct {
	maxDepth int
}

// NewBuilder constructs a Builder.
func NewBuilder(cfg BuilderConfig) *Builder {
	maxDepth := cfg.MaxBreakdownDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxBreakdownDepth
	}
	return &Builder{maxDepth: maxDepth}
}

// build carries the call-local pieces of one tree construction.
type build struct {
	widget   Widget
	targets  map[string]CampaignTarget
	collator *collate.Collator
}

// BuildData computes the full nested row tree for one widget: an implicit
// Total root, one recursion level per configured breakdown, siblings ordered
// per the widget's order settings. Configuration errors abort the whole call;
// no partial tree is ever returned.
func (b *Builder) BuildData(data CalculationData, widget Widget) (Row, error) {
	if err := b.validate(widget); err != nil {
		return Row{}, err
	}

	bd := newBuild(widget)
	root := bd.buildRow(TotalLabel, "", leavesBelowRoot(data, widget.Settings))
	if children := bd.buildLevel(data, 0); len(children) > 0 {
		root.Children = children
	}
	return root, nil
}

// BuildRow computes a single row from pre-grouped data, skipping grouping and
// recursion entirely.
func (b *Builder) BuildRow(label, tooltip string, rowData CalculationData, widget Widget) (Row, error) {
	if err := b.validate(widget); err != nil {
		return Row{}, err
	}

	bd := newBuild(widget)
	return bd.buildRow(label, tooltip, []CalculationData{rowData}), nil
}

func newBuild(widget Widget) *build {
	targets := make(map[string]CampaignTarget, len(widget.CampaignTargets))
	for _, target := range widget.CampaignTargets {
		targets[target.ID] = target
	}
	return &build{
		widget:   widget,
		targets:  targets,
		collator: newCollator(),
	}
}

// buildLevel produces the ordered sibling rows one breakdown level deep:
// one row per breakdown-value group, each recursing into the next level,
// plus concept sub-grouping rows attached as siblings when a concept
// breakdown is configured for this depth.
func (bd *build) buildLevel(data CalculationData, depth int) []Row {
	settings := bd.widget.Settings
	if depth >= len(settings.Breakdowns) {
		return nil
	}

	tooltip := bd.dimensionTooltip(settings.Breakdowns[depth])
	groups := partition(data)
	rows := make([]builtRow, 0, len(groups))
	for _, g := range groups {
		row, raw := bd.buildRowRaw(g.key, tooltip, leavesBelowGroup(g.data, settings, depth))
		if depth+1 < len(settings.Breakdowns) {
			row.Children = bd.buildLevel(childLevelData(g.data, settings, depth), depth+1)
		}
		rows = append(rows, builtRow{row: row, raw: raw})
	}

	if conceptActive(settings, depth) {
		conceptTooltip := bd.dimensionTooltip(settings.ConceptBreakdowns[depth])
		for _, g := range groups {
			for _, cg := range partition(g.data) {
				row, raw := bd.buildRowRaw(cg.key, conceptTooltip, leavesAfterConcept(cg.data, settings, depth))
				rows = append(rows, builtRow{row: row, raw: raw})
			}
		}
	}

	orderRows(rows, settings, bd.collator)

	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = r.row
	}
	return out
}

func (bd *build) buildRow(label, tooltip string, leaves []CalculationData) Row {
	row, _ := bd.buildRowRaw(label, tooltip, leaves)
	return row
}

// buildRowRaw computes every configured indicator for one group of leaves.
// The raw map keeps pre-rounding values for ordering.
func (bd *build) buildRowRaw(label, tooltip string, leaves []CalculationData) (Row, map[string]float64) {
	settings := bd.widget.Settings
	values := make(map[string]Value, len(settings.Indicators)+len(settings.AmountIndicators))
	raws := make(map[string]float64, len(values))

	for _, ind := range settings.Indicators {
		values[ind.ID], raws[ind.ID] = aggregateIndicator(ind, leaves, bd.targetFor(ind))
	}
	for _, ind := range settings.AmountIndicators {
		values[ind.ID], raws[ind.ID] = aggregateIndicator(ind, leaves, bd.targetFor(ind))
	}

	return Row{
		Label:    label,
		Tooltip:  tooltip,
		Values:   values,
		Children: []Row{},
	}, raws
}

// targetFor resolves an indicator's campaign target. A dangling reference is
// not an error; the indicator simply computes without classification.
func (bd *build) targetFor(ind Indicator) *CampaignTarget {
	if ind.CampaignTargetID == "" {
		return nil
	}
	target, ok := bd.targets[ind.CampaignTargetID]
	if !ok {
		return nil
	}
	return &target
}

func (bd *build) dimensionTooltip(dimension string) string {
	question, ok := bd.widget.SchemaQuestions[dimension]
	if !ok {
		return ""
	}
	return question.Tooltip
}

// validate checks the widget configuration up front so a build either runs to
// completion or fails before producing anything.
func (b *Builder) validate(widget Widget) error {
	settings := widget.Settings

	if len(settings.Breakdowns) > b.maxDepth {
		return configErrorf("breakdowns", "%d breakdown dimensions exceed the maximum of %d", len(settings.Breakdowns), b.maxDepth)
	}

	switch settings.OrderDirection {
	case "", OrderAsc, OrderDesc:
	default:
		return configErrorf("order_direction", "unknown direction %q", settings.OrderDirection)
	}

	seen := make(map[string]struct{}, len(settings.Indicators)+len(settings.AmountIndicators))
	validateIndicators := func(field string, indicators []Indicator) error {
		for i, ind := range indicators {
			ref := fmt.Sprintf("%s[%d]", field, i)
			if ind.ID == "" {
				return configErrorf(ref, "indicator id is required")
			}
			if _, dup := seen[ind.ID]; dup {
				return configErrorf(ref, "duplicate indicator id %q", ind.ID)
			}
			seen[ind.ID] = struct{}{}
			if ind.Question == "" {
				return configErrorf(ref, "indicator %q has no question", ind.ID)
			}
			switch ind.Measure {
			case "", MeasureSum, MeasureAverage, MeasurePercentage, MeasureCount:
			default:
				return configErrorf(ref, "unknown measure %q", ind.Measure)
			}
			if ind.Digits != nil && *ind.Digits < 0 {
				return configErrorf(ref, "digits must not be negative")
			}
			if err := resolveQuestion(widget, ref, ind.Question); err != nil {
				return err
			}
		}
		return nil
	}

	if err := validateIndicators("indicators", settings.Indicators); err != nil {
		return err
	}
	if err := validateIndicators("amount_indicators", settings.AmountIndicators); err != nil {
		return err
	}

	for i, dimension := range settings.Breakdowns {
		ref := fmt.Sprintf("breakdowns[%d]", i)
		if dimension == "" {
			return configErrorf(ref, "breakdown identifier is required")
		}
		if err := resolveQuestion(widget, ref, dimension); err != nil {
			return err
		}
	}
	for i, dimension := range settings.ConceptBreakdowns {
		ref := fmt.Sprintf("concept_breakdowns[%d]", i)
		if dimension == "" {
			return configErrorf(ref, "concept breakdown identifier is required")
		}
		if err := resolveQuestion(widget, ref, dimension); err != nil {
			return err
		}
	}

	return nil
}

// resolveQuestion enforces reference resolution against the widget's schema.
// A widget shipped without schema questions skips resolution; one that
// carries them must resolve every reference.
func resolveQuestion(widget Widget, field, id string) error {
	if len(widget.SchemaQuestions) == 0 {
		return nil
	}
	if _, ok := widget.SchemaQuestions[id]; !ok {
		return configErrorf(field, "%q does not resolve to a schema question", id)
	}
	return nil
}
