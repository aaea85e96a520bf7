package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/surveypulse/analytics/internal/platform/httpx"
	"github.com/surveypulse/analytics/internal/services"
)

const defaultMaxWidgetRequestBody = int64(8 << 20)

var (
	errBodyTooLarge = errors.New("request body too large")
	errEmptyBody    = errors.New("request body is empty")
)

// WidgetHandlers exposes the widget computation endpoints.
type WidgetHandlers struct {
	svc     services.WidgetService
	maxBody int64
}

// NewWidgetHandlers constructs a widget handler set. maxBody bounds the
// accepted request payload in bytes; zero applies the default.
func NewWidgetHandlers(svc services.WidgetService, maxBody int64) *WidgetHandlers {
	if maxBody <= 0 {
		maxBody = defaultMaxWidgetRequestBody
	}
	return &WidgetHandlers{svc: svc, maxBody: maxBody}
}

// Routes registers the widget endpoints.
func (h *WidgetHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/widgets:build-data", h.buildData)
	r.Post("/widgets:build-row", h.buildRow)
}

type buildDataRequest struct {
	CalculationData json.RawMessage `json:"calculation_data"`
	Widget          services.Widget `json:"widget"`
}

type buildRowRequest struct {
	Label           string          `json:"label"`
	Tooltip         string          `json:"tooltip"`
	CalculationData json.RawMessage `json:"calculation_data"`
	Widget          services.Widget `json:"widget"`
}

type buildResponse struct {
	Row  services.Row  `json:"row"`
	Meta buildMetadata `json:"meta"`
}

type buildMetadata struct {
	BuildID string `json:"build_id"`
	Rows    int    `json:"rows"`
}

func (h *WidgetHandlers) buildData(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.svc == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "widget service not available", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, h.maxBody)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req buildDataRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	result, err := h.svc.BuildData(ctx, services.BuildDataCommand{
		Data:   req.CalculationData,
		Widget: req.Widget,
	})
	if err != nil {
		writeWidgetError(ctx, w, err)
		return
	}

	writeBuildResponse(w, result)
}

func (h *WidgetHandlers) buildRow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.svc == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "widget service not available", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, h.maxBody)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req buildRowRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	result, err := h.svc.BuildRow(ctx, services.BuildRowCommand{
		Label:   req.Label,
		Tooltip: req.Tooltip,
		Data:    req.CalculationData,
		Widget:  req.Widget,
	})
	if err != nil {
		writeWidgetError(ctx, w, err)
		return
	}

	writeBuildResponse(w, result)
}

func writeBuildResponse(w http.ResponseWriter, result services.BuildResult) {
	httpx.WriteJSON(w, http.StatusOK, buildResponse{
		Row: result.Row,
		Meta: buildMetadata{
			BuildID: result.BuildID,
			Rows:    result.Rows,
		},
	})
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	case errors.Is(err, errEmptyBody):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	}
}

func writeWidgetError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrWidgetInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrWidgetInvalidConfig):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_widget_config", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrWidgetVolumeExceeded):
		httpx.WriteError(ctx, w, httpx.NewError("calculation_too_large", err.Error(), http.StatusRequestEntityTooLarge))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("widget_error", "failed to compute widget", http.StatusInternalServerError))
	}
}

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = defaultMaxWidgetRequestBody
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}
