package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestAggregatePercentageOfResponseItems(t *testing.T) {
	leaves := []CalculationData{{"Q1": map[string]any{"yes": 30.0, "no": 20.0}}}
	ind := Indicator{
		ID:            "satisfied",
		Question:      "Q1",
		Measure:       MeasurePercentage,
		ResponseItems: []string{"yes"},
		Digits:        intPtr(0),
	}

	value, raw := aggregateIndicator(ind, leaves, nil)

	require.Equal(t, 60.0, raw)
	assert.Equal(t, 60.0, value.Value)
	assert.Equal(t, "60", value.Display)
	assert.Empty(t, value.Status)
}

func TestAggregateAverageOfEmptyGroupIsZero(t *testing.T) {
	ind := Indicator{ID: "avg", Question: "Q9", Measure: MeasureAverage}

	value, raw := aggregateIndicator(ind, nil, nil)
	require.Equal(t, 0.0, raw)
	assert.Equal(t, 0.0, value.Value)

	// A group whose leaves never mention the question behaves the same.
	value, _ = aggregateIndicator(ind, []CalculationData{{"other": 3.0}}, nil)
	assert.Equal(t, 0.0, value.Value)
}

func TestAggregateSumAcrossValueShapes(t *testing.T) {
	leaves := []CalculationData{{
		"single": 4.0,
		"series": []any{1.0, 2.0},
		"scale":  map[string]any{"5": 2.0, "3": 1.0},
		"tally":  map[string]any{"yes": 30.0, "no": 20.0},
	}}

	sum := func(question string) float64 {
		_, raw := aggregateIndicator(Indicator{ID: "s", Question: question, Measure: MeasureSum}, leaves, nil)
		return raw
	}

	assert.Equal(t, 4.0, sum("single"))
	assert.Equal(t, 3.0, sum("series"))
	// Numeric option keys weight by count: 5*2 + 3*1.
	assert.Equal(t, 13.0, sum("scale"))
	// Plain categorical tallies sum to the response volume.
	assert.Equal(t, 50.0, sum("tally"))
}

func TestAggregateAverageWeightsRatingScales(t *testing.T) {
	leaves := []CalculationData{{"rating": map[string]any{"5": 2.0, "3": 1.0}}}
	ind := Indicator{ID: "avg", Question: "rating", Measure: MeasureAverage, Digits: intPtr(2)}

	value, raw := aggregateIndicator(ind, leaves, nil)
	require.InDelta(t, 13.0/3.0, raw, 1e-12)
	assert.Equal(t, 4.33, value.Value)
	assert.Equal(t, "4.33", value.Display)
}

func TestAggregatePercentageOverNumericSeries(t *testing.T) {
	leaves := []CalculationData{{"picks": []any{1.0, 2.0, 1.0}}}
	ind := Indicator{ID: "ones", Question: "picks", Measure: MeasurePercentage, ResponseItems: []string{"1"}}

	value, raw := aggregateIndicator(ind, leaves, nil)
	require.InDelta(t, 200.0/3.0, raw, 1e-12)
	assert.Equal(t, 66.7, value.Value)
}

func TestRoundToHalfAwayFromZero(t *testing.T) {
	assert.Equal(t, 3.0, roundTo(2.5, 0))
	assert.Equal(t, -3.0, roundTo(-2.5, 0))
	assert.Equal(t, 0.13, roundTo(0.125, 2))
	assert.Equal(t, 2.3, roundTo(2.25, 1))
}

func TestRoundToIsIdempotent(t *testing.T) {
	values := []float64{0, 1.25, -1.25, 66.666666, 0.0049, 1234.5}
	for _, v := range values {
		for digits := 0; digits <= 4; digits++ {
			once := roundTo(v, digits)
			assert.Equal(t, once, roundTo(once, digits), "value %v digits %d", v, digits)
		}
	}
}

func TestClassifyAgainstTarget(t *testing.T) {
	target := CampaignTarget{ID: "t", Target: 100, Margin: 5}

	assert.Equal(t, StatusAbove, classify(108, target))
	assert.Equal(t, StatusBelow, classify(92, target))
	assert.Equal(t, StatusOnTarget, classify(104, target))
	assert.Equal(t, StatusOnTarget, classify(96.5, target))

	target.RevertCalcul = true
	assert.Equal(t, StatusBelow, classify(108, target))
	assert.Equal(t, StatusAbove, classify(92, target))
	assert.Equal(t, StatusOnTarget, classify(104, target))
}

func TestClassifyMirrorSymmetry(t *testing.T) {
	target := CampaignTarget{ID: "t", Target: 50, Margin: 3}
	mirror := map[string]string{
		StatusAbove:    StatusBelow,
		StatusBelow:    StatusAbove,
		StatusOnTarget: StatusOnTarget,
	}

	for _, v := range []float64{0, 30, 47.5, 50, 52, 53, 80, 120} {
		mirrored := 2*target.Target - v
		assert.Equal(t, mirror[classify(v, target)], classify(mirrored, target), "value %v", v)
	}
}

func TestClassificationUsesPreRoundingValue(t *testing.T) {
	// 104.96 rounds to 105.0 for display, but the raw delta 4.96 stays
	// inside the margin band.
	target := CampaignTarget{ID: "t", Target: 100, Margin: 5}
	leaves := []CalculationData{{"Q": 104.96}}
	ind := Indicator{ID: "v", Question: "Q", Measure: MeasureSum, CampaignTargetID: "t"}

	value, _ := aggregateIndicator(ind, leaves, &target)
	assert.Equal(t, 105.0, value.Value)
	assert.Equal(t, StatusOnTarget, value.Status)
}
