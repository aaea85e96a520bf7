package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/surveypulse/analytics/internal/engine"
)

var (
	// ErrWidgetInvalidInput indicates the caller supplied a request the service
	// cannot interpret (malformed payload, missing widget).
	ErrWidgetInvalidInput = errors.New("widget: invalid input")
	// ErrWidgetInvalidConfig indicates the widget configuration failed
	// validation; the message carries the offending field.
	ErrWidgetInvalidConfig = errors.New("widget: invalid configuration")
	// ErrWidgetVolumeExceeded indicates the calculation data would produce more
	// rows than the configured limit allows.
	ErrWidgetVolumeExceeded = errors.New("widget: calculation volume exceeds row limit")

	errWidgetBuilderRequired = errors.New("widget service: builder is required")
)

var widgetTracer = otel.Tracer("github.com/surveypulse/analytics/internal/services")

// DefaultMaxCalculationRows bounds the estimated output row count for one
// build request when the configuration does not override it.
const DefaultMaxCalculationRows = 10000

// Type aliases expose engine models to callers of the services package without
// reversing dependency direction.
type (
	Widget          = engine.Widget
	WidgetSettings  = engine.WidgetSettings
	Row             = engine.Row
	CalculationData = engine.CalculationData
)

// WidgetService computes summary tables for analytics widgets.
type WidgetService interface {
	BuildData(ctx context.Context, cmd BuildDataCommand) (BuildResult, error)
	BuildRow(ctx context.Context, cmd BuildRowCommand) (BuildResult, error)
}

// BuildDataCommand carries one full-table build request. Data is the raw
// calculation payload as received on the wire; the service decodes it itself
// so volume accounting and decoding agree on the same bytes.
type BuildDataCommand struct {
	Data   json.RawMessage
	Widget Widget
}

// BuildRowCommand carries a single-row build request over pre-grouped data.
type BuildRowCommand struct {
	Label   string
	Tooltip string
	Data    json.RawMessage
	Widget  Widget
}

// BuildResult is the service-level outcome of a build: the row tree, the
// identifier assigned to this build, and the number of rows produced.
type BuildResult struct {
	Row     Row
	BuildID string
	Rows    int
}

// WidgetServiceDeps bundles collaborators required to construct a widget service.
type WidgetServiceDeps struct {
	Builder            *engine.Builder
	Clock              func() time.Time
	IDGenerator        func() string
	Logger             func(context.Context, string, map[string]any)
	MaxCalculationRows int
}

type widgetService struct {
	builder *engine.Builder
	clock   func() time.Time
	newID   func() string
	logger  func(context.Context, string, map[string]any)
	maxRows int
}

// NewWidgetService constructs a WidgetService with the provided dependencies.
func NewWidgetService(deps WidgetServiceDeps) (WidgetService, error) {
	if deps.Builder == nil {
		return nil, errWidgetBuilderRequired
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	maxRows := deps.MaxCalculationRows
	if maxRows <= 0 {
		maxRows = DefaultMaxCalculationRows
	}

	return &widgetService{
		builder: deps.Builder,
		clock:   func() time.Time { return clock().UTC() },
		newID:   func() string { return strings.ToLower(idGen()) },
		logger:  logger,
		maxRows: maxRows,
	}, nil
}

// BuildData validates volume, decodes the calculation payload, and computes
// the full nested row tree.
func (s *widgetService) BuildData(ctx context.Context, cmd BuildDataCommand) (BuildResult, error) {
	ctx, span := widgetTracer.Start(ctx, "widget.build_data")
	defer span.End()

	started := s.clock()
	buildID := s.newID()
	span.SetAttributes(attribute.String("widget.build_id", buildID))

	estimated, err := s.admitVolume(ctx, cmd.Data, cmd.Widget, buildID)
	if err != nil {
		return BuildResult{}, err
	}

	data, err := decodeCalculationData(cmd.Data)
	if err != nil {
		return BuildResult{}, err
	}

	root, err := s.builder.BuildData(data, cmd.Widget)
	if err != nil {
		return BuildResult{}, translateBuildError(err)
	}

	rows := countTreeRows(root)
	s.logger(ctx, "widget.build_data", map[string]any{
		"build_id":       buildID,
		"rows":           rows,
		"estimated_rows": estimated,
		"breakdowns":     len(cmd.Widget.Settings.Breakdowns),
		"duration_ms":    s.clock().Sub(started).Milliseconds(),
	})
	span.SetAttributes(attribute.Int("widget.rows", rows))

	return BuildResult{Row: root, BuildID: buildID, Rows: rows}, nil
}

// BuildRow computes a single row from pre-grouped data. No volume admission is
// needed; the output is always exactly one row.
func (s *widgetService) BuildRow(ctx context.Context, cmd BuildRowCommand) (BuildResult, error) {
	ctx, span := widgetTracer.Start(ctx, "widget.build_row")
	defer span.End()

	if strings.TrimSpace(cmd.Label) == "" {
		return BuildResult{}, fmt.Errorf("%w: row label is required", ErrWidgetInvalidInput)
	}

	buildID := s.newID()
	span.SetAttributes(attribute.String("widget.build_id", buildID))

	data, err := decodeCalculationData(cmd.Data)
	if err != nil {
		return BuildResult{}, err
	}

	row, err := s.builder.BuildRow(cmd.Label, cmd.Tooltip, data, cmd.Widget)
	if err != nil {
		return BuildResult{}, translateBuildError(err)
	}

	s.logger(ctx, "widget.build_row", map[string]any{
		"build_id": buildID,
		"label":    cmd.Label,
	})

	return BuildResult{Row: row, BuildID: buildID, Rows: 1}, nil
}

// admitVolume estimates the output row count from the raw payload and rejects
// requests that would exceed the configured limit before any decoding work.
func (s *widgetService) admitVolume(ctx context.Context, raw json.RawMessage, widget Widget, buildID string) (int, error) {
	estimated := EstimateRows(raw, widget.Settings)
	if estimated > s.maxRows {
		s.logger(ctx, "widget.volume_rejected", map[string]any{
			"build_id":       buildID,
			"estimated_rows": estimated,
			"max_rows":       s.maxRows,
		})
		return estimated, fmt.Errorf("%w: estimated %d rows, limit %d", ErrWidgetVolumeExceeded, estimated, s.maxRows)
	}
	return estimated, nil
}

func decodeCalculationData(raw json.RawMessage) (CalculationData, error) {
	if len(raw) == 0 {
		return CalculationData{}, nil
	}
	var data CalculationData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("%w: calculation_data is not a JSON object", ErrWidgetInvalidInput)
	}
	if data == nil {
		data = CalculationData{}
	}
	return data, nil
}

// translateBuildError maps engine errors onto the service's sentinel errors so
// callers can branch without importing the engine package.
func translateBuildError(err error) error {
	if err == nil {
		return nil
	}
	var cfgErr *engine.ConfigError
	if errors.As(err, &cfgErr) {
		return fmt.Errorf("%w: %s: %s", ErrWidgetInvalidConfig, cfgErr.Field, cfgErr.Reason)
	}
	return err
}

func countTreeRows(row Row) int {
	total := 1
	for _, child := range row.Children {
		total += countTreeRows(child)
	}
	return total
}
