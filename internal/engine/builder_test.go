package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBuilder(t *testing.T) *Builder {
	t.Helper()
	return NewBuilder(BuilderConfig{})
}

func TestBuildDataWithoutBreakdowns(t *testing.T) {
	widget := Widget{Settings: WidgetSettings{
		Indicators: []Indicator{{
			ID:            "satisfied",
			Question:      "Q1",
			Measure:       MeasurePercentage,
			ResponseItems: []string{"yes"},
			Digits:        intPtr(0),
		}},
	}}
	data := CalculationData{"Q1": map[string]any{"yes": 30.0, "no": 20.0}}

	root, err := newTestBuilder(t).BuildData(data, widget)
	require.NoError(t, err)

	assert.Equal(t, TotalLabel, root.Label)
	require.Contains(t, root.Values, "satisfied")
	assert.Equal(t, 60.0, root.Values["satisfied"].Value)
	assert.Equal(t, "60", root.Values["satisfied"].Display)
	require.NotNil(t, root.Children)
	assert.Empty(t, root.Children)
}

func TestBuildDataNestsOneLevelPerBreakdown(t *testing.T) {
	widget := Widget{Settings: WidgetSettings{
		Indicators: []Indicator{{ID: "n", Question: "Q", Measure: MeasureCount}},
		Breakdowns: []string{"region", "city"},
	}}
	data := CalculationData{
		"North": map[string]any{
			"Oslo":   map[string]any{"Q": map[string]any{"yes": 2.0}},
			"Bergen": map[string]any{"Q": map[string]any{"no": 1.0}},
		},
		"South": map[string]any{
			"Rome": map[string]any{"Q": map[string]any{"yes": 4.0}},
		},
	}

	root, err := newTestBuilder(t).BuildData(data, widget)
	require.NoError(t, err)

	// Total plus exactly one level per breakdown dimension.
	assert.Equal(t, 7.0, root.Values["n"].Value)
	require.Len(t, root.Children, 2)

	north := root.Children[0]
	require.Equal(t, "North", north.Label)
	assert.Equal(t, 3.0, north.Values["n"].Value)
	require.Len(t, north.Children, 2)
	assert.Equal(t, "Bergen", north.Children[0].Label)
	assert.Equal(t, "Oslo", north.Children[1].Label)
	for _, city := range north.Children {
		require.NotNil(t, city.Children)
		assert.Empty(t, city.Children)
	}

	south := root.Children[1]
	assert.Equal(t, "South", south.Label)
	assert.Equal(t, 4.0, south.Values["n"].Value)
}

func TestBuildDataGroupsMissingDimensionAsUnspecified(t *testing.T) {
	widget := Widget{Settings: WidgetSettings{
		Indicators: []Indicator{{ID: "n", Question: "Q", Measure: MeasureCount}},
		Breakdowns: []string{"region"},
	}}
	data := CalculationData{
		"North": map[string]any{"Q": map[string]any{"yes": 2.0}},
		"":      map[string]any{"Q": map[string]any{"yes": 1.0}},
	}

	root, err := newTestBuilder(t).BuildData(data, widget)
	require.NoError(t, err)

	require.Len(t, root.Children, 2)
	assert.Equal(t, "North", root.Children[0].Label)
	assert.Equal(t, UnspecifiedKey, root.Children[1].Label)
	assert.Equal(t, 1.0, root.Children[1].Values["n"].Value)
	assert.Equal(t, 3.0, root.Values["n"].Value)
}

func TestBuildDataConceptRowsAreChildlessSiblings(t *testing.T) {
	widget := Widget{Settings: WidgetSettings{
		Indicators:        []Indicator{{ID: "n", Question: "Q", Measure: MeasureCount}},
		Breakdowns:        []string{"region"},
		ConceptBreakdowns: []string{"category"},
	}}
	data := CalculationData{
		"North": map[string]any{
			"catA": map[string]any{"Q": map[string]any{"yes": 1.0}},
			"catB": map[string]any{"Q": map[string]any{"yes": 2.0}},
		},
	}

	root, err := newTestBuilder(t).BuildData(data, widget)
	require.NoError(t, err)

	require.Len(t, root.Children, 3)
	assert.Equal(t, "catA", root.Children[0].Label)
	assert.Equal(t, "catB", root.Children[1].Label)
	assert.Equal(t, "North", root.Children[2].Label)

	// The breakdown row aggregates through the concept layer; concept rows
	// carry their own slice and never recurse.
	assert.Equal(t, 3.0, root.Children[2].Values["n"].Value)
	assert.Equal(t, 1.0, root.Children[0].Values["n"].Value)
	assert.Equal(t, 2.0, root.Children[1].Values["n"].Value)
	for _, child := range root.Children {
		assert.Empty(t, child.Children)
	}
}

func TestBuildDataOrdersByIndicatorColumn(t *testing.T) {
	widget := Widget{Settings: WidgetSettings{
		Indicators:     []Indicator{{ID: "n", Question: "Q", Measure: MeasureCount}},
		Breakdowns:     []string{"region"},
		OrderColumn:    "n",
		OrderDirection: OrderDesc,
	}}
	data := CalculationData{
		"Alpha": map[string]any{"Q": map[string]any{"yes": 1.0}},
		"Beta":  map[string]any{"Q": map[string]any{"yes": 5.0}},
		"Gamma": map[string]any{"Q": map[string]any{"yes": 3.0}},
	}

	root, err := newTestBuilder(t).BuildData(data, widget)
	require.NoError(t, err)

	require.Len(t, root.Children, 3)
	assert.Equal(t, "Beta", root.Children[0].Label)
	assert.Equal(t, "Gamma", root.Children[1].Label)
	assert.Equal(t, "Alpha", root.Children[2].Label)
}

func TestBuildDataAttachesTargetStatus(t *testing.T) {
	widget := Widget{
		Settings: WidgetSettings{
			Indicators: []Indicator{{
				ID:               "score",
				Question:         "Q",
				Measure:          MeasureSum,
				CampaignTargetID: "ct",
			}},
		},
		CampaignTargets: []CampaignTarget{{ID: "ct", Target: 100, Margin: 5}},
	}

	root, err := newTestBuilder(t).BuildData(CalculationData{"Q": 108.0}, widget)
	require.NoError(t, err)
	assert.Equal(t, StatusAbove, root.Values["score"].Status)

	widget.CampaignTargets[0].RevertCalcul = true
	root, err = newTestBuilder(t).BuildData(CalculationData{"Q": 108.0}, widget)
	require.NoError(t, err)
	assert.Equal(t, StatusBelow, root.Values["score"].Status)
}

func TestBuildDataSkipsStatusOnDanglingTarget(t *testing.T) {
	widget := Widget{Settings: WidgetSettings{
		Indicators: []Indicator{{
			ID:               "score",
			Question:         "Q",
			Measure:          MeasureSum,
			CampaignTargetID: "missing",
		}},
	}}

	root, err := newTestBuilder(t).BuildData(CalculationData{"Q": 42.0}, widget)
	require.NoError(t, err)
	assert.Equal(t, 42.0, root.Values["score"].Value)
	assert.Empty(t, root.Values["score"].Status)
}

func TestBuildDataComputesAmountIndicators(t *testing.T) {
	widget := Widget{Settings: WidgetSettings{
		Indicators:       []Indicator{{ID: "avg", Question: "Q", Measure: MeasureAverage}},
		AmountIndicators: []Indicator{{ID: "volume", Question: "Q", Measure: MeasureCount, Digits: intPtr(0)}},
	}}
	data := CalculationData{"Q": []any{2.0, 4.0}}

	root, err := newTestBuilder(t).BuildData(data, widget)
	require.NoError(t, err)
	assert.Equal(t, 3.0, root.Values["avg"].Value)
	assert.Equal(t, 2.0, root.Values["volume"].Value)
	assert.Equal(t, "2", root.Values["volume"].Display)
}

func TestBuildDataAttachesSchemaTooltips(t *testing.T) {
	widget := Widget{
		Settings: WidgetSettings{
			Indicators: []Indicator{{ID: "n", Question: "Q", Measure: MeasureCount}},
			Breakdowns: []string{"region"},
		},
		SchemaQuestions: map[string]SchemaQuestion{
			"Q":      {Title: "Question"},
			"region": {Title: "Region", Tooltip: "Respondent region"},
		},
	}
	data := CalculationData{"North": map[string]any{"Q": map[string]any{"yes": 1.0}}}

	root, err := newTestBuilder(t).BuildData(data, widget)
	require.NoError(t, err)
	require.Len(t, root.Children, 1)
	assert.Equal(t, "Respondent region", root.Children[0].Tooltip)
	assert.Empty(t, root.Tooltip)
}

func TestBuildRowComputesSingleRow(t *testing.T) {
	widget := Widget{Settings: WidgetSettings{
		Indicators: []Indicator{{
			ID:            "satisfied",
			Question:      "Q1",
			Measure:       MeasurePercentage,
			ResponseItems: []string{"yes"},
		}},
		// Breakdowns are ignored for single-row builds.
		Breakdowns: []string{"region"},
	}}
	data := CalculationData{"Q1": map[string]any{"yes": 1.0, "no": 3.0}}

	row, err := newTestBuilder(t).BuildRow("North", "Respondent region", data, widget)
	require.NoError(t, err)
	assert.Equal(t, "North", row.Label)
	assert.Equal(t, "Respondent region", row.Tooltip)
	assert.Equal(t, 25.0, row.Values["satisfied"].Value)
	assert.Empty(t, row.Children)
}

func TestBuildDataRejectsInvalidConfiguration(t *testing.T) {
	builder := newTestBuilder(t)
	data := CalculationData{"Q": 1.0}

	cases := []struct {
		name   string
		widget Widget
		field  string
	}{
		{
			name: "missing indicator id",
			widget: Widget{Settings: WidgetSettings{
				Indicators: []Indicator{{Question: "Q"}},
			}},
			field: "indicators[0]",
		},
		{
			name: "duplicate indicator id across lists",
			widget: Widget{Settings: WidgetSettings{
				Indicators:       []Indicator{{ID: "x", Question: "Q"}},
				AmountIndicators: []Indicator{{ID: "x", Question: "Q"}},
			}},
			field: "amount_indicators[0]",
		},
		{
			name: "unknown measure",
			widget: Widget{Settings: WidgetSettings{
				Indicators: []Indicator{{ID: "x", Question: "Q", Measure: "median"}},
			}},
			field: "indicators[0]",
		},
		{
			name: "negative digits",
			widget: Widget{Settings: WidgetSettings{
				Indicators: []Indicator{{ID: "x", Question: "Q", Digits: intPtr(-1)}},
			}},
			field: "indicators[0]",
		},
		{
			name: "unknown order direction",
			widget: Widget{Settings: WidgetSettings{
				Indicators:     []Indicator{{ID: "x", Question: "Q"}},
				OrderDirection: "sideways",
			}},
			field: "order_direction",
		},
		{
			name: "empty breakdown identifier",
			widget: Widget{Settings: WidgetSettings{
				Indicators: []Indicator{{ID: "x", Question: "Q"}},
				Breakdowns: []string{""},
			}},
			field: "breakdowns[0]",
		},
		{
			name: "unresolved question against schema",
			widget: Widget{
				Settings: WidgetSettings{
					Indicators: []Indicator{{ID: "x", Question: "missing"}},
				},
				SchemaQuestions: map[string]SchemaQuestion{"Q": {Title: "Question"}},
			},
			field: "indicators[0]",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			row, err := builder.BuildData(data, tc.widget)
			require.Error(t, err)

			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tc.field, cfgErr.Field)

			// No partial tree on configuration errors.
			assert.Equal(t, Row{}, row)
		})
	}
}

func TestBuildDataEnforcesDepthCap(t *testing.T) {
	builder := NewBuilder(BuilderConfig{MaxBreakdownDepth: 2})
	widget := Widget{Settings: WidgetSettings{
		Indicators: []Indicator{{ID: "x", Question: "Q"}},
		Breakdowns: []string{"a", "b", "c"},
	}}

	_, err := builder.BuildData(CalculationData{}, widget)
	require.Error(t, err)

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "breakdowns", cfgErr.Field)
}
