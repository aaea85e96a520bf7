package engine

import (
	"math"
	"strconv"
)

// questionStats summarises the raw observations recorded for one question
// across a set of leaf observation maps. All fields are accumulated without
// rounding; rounding happens only when a value is placed on a row.
type questionStats struct {
	sum     float64
	count   float64
	matched float64
}

// collectStats accumulates statistics for an indicator's question over every
// leaf in the group. A question absent from a leaf contributes nothing, so
// sparse data degrades to zeros rather than errors.
func collectStats(leaves []CalculationData, question string, responseItems []string) questionStats {
	var stats questionStats
	for _, leaf := range leaves {
		raw, ok := leaf[question]
		if !ok {
			continue
		}
		accumulate(&stats, raw, responseItems)
	}
	return stats
}

// accumulate folds one question value into the running statistics. Three
// shapes are understood: a single number, an array of numbers, and an object
// of category->count tallies. Anything else is ignored.
func accumulate(stats *questionStats, raw any, responseItems []string) {
	switch v := raw.(type) {
	case []any:
		for _, item := range v {
			if n, ok := numeric(item); ok {
				stats.sum += n
				stats.count++
				if matchesNumeric(n, responseItems) {
					stats.matched++
				}
			}
		}
	case map[string]any:
		tallySum := 0.0
		tallyCount := 0.0
		weighted := 0.0
		weightable := false
		for option, rawCount := range v {
			n, ok := numeric(rawCount)
			if !ok {
				continue
			}
			tallySum += n
			tallyCount += n
			if matchesOption(option, responseItems) {
				stats.matched += n
			}
			if w, err := strconv.ParseFloat(option, 64); err == nil {
				weighted += w * n
				weightable = true
			}
		}
		// Numeric option keys (rating scales) sum as value*count; plain
		// categorical tallies fall back to the response volume.
		if weightable {
			stats.sum += weighted
		} else {
			stats.sum += tallySum
		}
		stats.count += tallyCount
	default:
		if n, ok := numeric(raw); ok {
			stats.sum += n
			stats.count++
			if matchesNumeric(n, responseItems) {
				stats.matched++
			}
		}
	}
}

func numeric(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func matchesOption(option string, responseItems []string) bool {
	for _, item := range responseItems {
		if item == option {
			return true
		}
	}
	return false
}

func matchesNumeric(value float64, responseItems []string) bool {
	formatted := strconv.FormatFloat(value, 'f', -1, 64)
	return matchesOption(formatted, responseItems)
}

// measureValue computes the indicator's pre-rounding value from the
// accumulated statistics. Empty groups always yield 0, never an error.
func measureValue(ind Indicator, stats questionStats) float64 {
	switch ind.Measure {
	case MeasureAverage:
		if stats.count == 0 {
			return 0
		}
		return stats.sum / stats.count
	case MeasurePercentage:
		if stats.count == 0 {
			return 0
		}
		return stats.matched / stats.count * 100
	case MeasureCount:
		return stats.count
	default:
		// MeasureSum and the empty default.
		return stats.sum
	}
}

// roundTo rounds half away from zero to the given number of decimal places.
func roundTo(value float64, digits int) float64 {
	pow := math.Pow(10, float64(digits))
	return math.Round(value*pow) / pow
}

// formatValue renders a rounded value with exactly the configured digits;
// digits=0 renders an integer.
func formatValue(value float64, digits int) string {
	return strconv.FormatFloat(value, 'f', digits, 64)
}

// classify compares a pre-rounding value against a campaign target. The
// delta must clear the margin in either direction to leave the on-target
// band; RevertCalcul swaps the above/below labels.
func classify(value float64, target CampaignTarget) string {
	delta := value - target.Target
	status := StatusOnTarget
	switch {
	case delta >= target.Margin:
		status = StatusAbove
	case delta <= -target.Margin:
		status = StatusBelow
	}
	if target.RevertCalcul {
		switch status {
		case StatusAbove:
			status = StatusBelow
		case StatusBelow:
			status = StatusAbove
		}
	}
	return status
}

// aggregateIndicator computes the display entry for one indicator over a
// group's leaves. The returned raw value is pre-rounding and feeds row
// ordering; classification also uses it so that rounding never flips a
// status.
func aggregateIndicator(ind Indicator, leaves []CalculationData, target *CampaignTarget) (Value, float64) {
	stats := collectStats(leaves, ind.Question, ind.ResponseItems)
	raw := measureValue(ind, stats)

	rounded := roundTo(raw, ind.digits())
	value := Value{
		Value:   rounded,
		Display: formatValue(rounded, ind.digits()),
	}
	if target != nil {
		value.Status = classify(raw, *target)
	}
	return value, raw
}
