package engine

import "fmt"

// Reserved row labels and grouping keys.
const (
	// TotalLabel is the label of the implicit root group covering the whole
	// dataset.
	TotalLabel = "Total"
	// UnspecifiedKey collects observations whose breakdown value is missing
	// or malformed; they are bucketed rather than dropped.
	UnspecifiedKey = "unspecified"
)

// Supported indicator measures.
const (
	MeasureSum        = "sum"
	MeasureAverage    = "average"
	MeasurePercentage = "percentage"
	MeasureCount      = "count"
)

// Target classification statuses attached to indicator values.
const (
	StatusAbove    = "above"
	StatusBelow    = "below"
	StatusOnTarget = "on-target"
)

// Sort directions accepted by WidgetSettings.OrderDirection.
const (
	OrderAsc  = "asc"
	OrderDesc = "desc"
)

const defaultDigits = 1

// CalculationData is one level of the nested calculation payload as decoded
// from JSON. At breakdown levels the keys are breakdown values and the values
// are nested CalculationData maps; at leaf level the keys are question ids and
// the values are a number, an array of numbers, or an object of
// category->count tallies. The engine treats it as read-only.
type CalculationData = map[string]any

// Widget is the full configuration envelope accompanying a build request.
type Widget struct {
	Settings        WidgetSettings            `json:"settings"`
	SchemaQuestions map[string]SchemaQuestion `json:"schema_questions"`
	CampaignTargets []CampaignTarget          `json:"campaign_targets"`
}

// SchemaQuestion describes a question or breakdown dimension referenced by
// the widget configuration. Tooltip text, when present, is surfaced verbatim
// on the rows of that dimension.
type SchemaQuestion struct {
	Title   string `json:"title"`
	Tooltip string `json:"tooltip,omitempty"`
}

// WidgetSettings is the immutable configuration for one build call.
type WidgetSettings struct {
	Indicators        []Indicator `json:"indicators"`
	AmountIndicators  []Indicator `json:"amount_indicators"`
	Breakdowns        []string    `json:"breakdowns"`
	ConceptBreakdowns []string    `json:"concept_breakdowns"`
	OrderColumn       string      `json:"order_column"`
	OrderDirection    string      `json:"order_direction"`
}

// Indicator configures one displayed measure.
type Indicator struct {
	ID               string   `json:"id"`
	Type             string   `json:"type"`
	Question         string   `json:"question"`
	Title            string   `json:"title"`
	Measure          string   `json:"measure"`
	ResponseItems    []string `json:"response_items"`
	Digits           *int     `json:"digits"`
	CampaignTargetID string   `json:"campaign_target_id"`
}

// digits returns the rounding precision, applying the documented default of 1
// when the configuration leaves it unset.
func (ind Indicator) digits() int {
	if ind.Digits == nil {
		return defaultDigits
	}
	return *ind.Digits
}

// CampaignTarget is a numeric goal with a tolerance band. RevertCalcul
// inverts the comparison so that values below the target classify as above
// (lower is favourable).
type CampaignTarget struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Target       float64 `json:"target"`
	Margin       float64 `json:"margin"`
	RevertCalcul bool    `json:"revert_calcul"`
}

// Value is one computed indicator entry on a row. Value carries the rounded
// number, Display its rendered form honouring the indicator's digits, and
// Status the optional target classification.
type Value struct {
	Value   float64 `json:"value"`
	Display string  `json:"display"`
	Status  string  `json:"status,omitempty"`
}

// Row is one node of the output table tree.
type Row struct {
	Label    string           `json:"label"`
	Tooltip  string           `json:"tooltip,omitempty"`
	Values   map[string]Value `json:"values"`
	Children []Row            `json:"children"`
}

// ConfigError reports a fatal problem with the widget configuration. A build
// that returns a ConfigError produced no partial tree.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("widget configuration: %s: %s", e.Field, e.Reason)
}

func configErrorf(field, format string, args ...any) *ConfigError {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
