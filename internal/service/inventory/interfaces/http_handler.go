package interfaces

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"nexus-inventory/internal/pkg/logger"
	"nexus-inventory/internal/pkg/metrics"
	"nexus-inventory/internal/service/inventory/application"
	"nexus-inventory/internal/service/inventory/domain"
)

// InventoryHandler 封装了库存服务面向订单流程的内部 HTTP 接口
type InventoryHandler struct {
	reservations *application.ReservationService
	fulfillment  *application.FulfillmentService
	availability *application.AvailabilityService
	sweeper      *application.ExpirySweeper
	tracer       trace.Tracer
}

// NewInventoryHandler 创建一个新的 HTTP 处理器实例
func NewInventoryHandler(reservations *application.ReservationService, fulfillment *application.FulfillmentService, availability *application.AvailabilityService, sweeper *application.ExpirySweeper, tracer trace.Tracer) *InventoryHandler {
	return &InventoryHandler{
		reservations: reservations,
		fulfillment:  fulfillment,
		availability: availability,
		sweeper:      sweeper,
		tracer:       tracer,
	}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *InventoryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("POST /reservations", h.createReservations)
	mux.HandleFunc("POST /reservations/confirm", h.confirmReservations)
	mux.HandleFunc("POST /reservations/cancel", h.cancelReservations)
	mux.HandleFunc("POST /reservations/expire", h.expireReservations)
	mux.HandleFunc("GET /reservations", h.listActiveReservations)
	mux.HandleFunc("POST /fulfillment/decrement", h.decrementStock)
	mux.HandleFunc("GET /availability", h.getAvailability)
}

// errorResponse 是所有错误响应的统一格式
type errorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	ProductID string `json:"productId,omitempty"`
	Requested int64  `json:"requested,omitempty"`
	Available *int64 `json:"available,omitempty"`
}

func (h *InventoryHandler) createReservations(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.startSpan(r, "http.CreateReservations")
	defer span.End()

	var req application.CreateReservationsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_request", Message: "invalid request body"})
		return
	}
	if req.OrderID == "" || len(req.Lines) == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_request", Message: "orderId and lines are required"})
		return
	}
	span.SetAttributes(attribute.String("order.id", req.OrderID))

	created, err := h.reservations.CreateBulkReservations(ctx, req.OrderID, req.ToOrderLines())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, application.ToReservationViews(created))
}

func (h *InventoryHandler) confirmReservations(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.startSpan(r, "http.ConfirmReservations")
	defer span.End()

	orderID, ok := requireQuery(w, r, "orderId")
	if !ok {
		return
	}
	confirmed, err := h.reservations.ConfirmReservations(ctx, orderID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, application.ToReservationViews(confirmed))
}

func (h *InventoryHandler) cancelReservations(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.startSpan(r, "http.CancelReservations")
	defer span.End()

	orderID, ok := requireQuery(w, r, "orderId")
	if !ok {
		return
	}
	cancelled, err := h.reservations.CancelReservations(ctx, orderID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, application.ToReservationViews(cancelled))
}

func (h *InventoryHandler) expireReservations(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.startSpan(r, "http.ExpireReservations")
	defer span.End()

	expired, err := h.sweeper.ProcessExpiredReservations(ctx)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"expired": expired})
}

func (h *InventoryHandler) listActiveReservations(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.startSpan(r, "http.ListActiveReservations")
	defer span.End()

	var (
		found []*domain.Reservation
		err   error
	)
	q := r.URL.Query()
	switch {
	case q.Get("orderId") != "":
		found, err = h.reservations.GetActiveReservationsByOrder(ctx, q.Get("orderId"))
	case q.Get("productId") != "":
		found, err = h.reservations.GetActiveReservationsByProduct(ctx, q.Get("productId"))
	default:
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_request", Message: "orderId or productId is required"})
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, application.ToReservationViews(found))
}

func (h *InventoryHandler) decrementStock(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.startSpan(r, "http.DecrementConfirmedStock")
	defer span.End()

	orderID, ok := requireQuery(w, r, "orderId")
	if !ok {
		return
	}
	summary, err := h.fulfillment.DecrementConfirmedStock(ctx, orderID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *InventoryHandler) getAvailability(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.startSpan(r, "http.GetAvailability")
	defer span.End()

	productID, ok := requireQuery(w, r, "productId")
	if !ok {
		return
	}
	view, err := h.availability.GetAvailability(ctx, productID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *InventoryHandler) startSpan(r *http.Request, name string) (context.Context, trace.Span) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	return h.tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindServer))
}

// writeError 把领域错误映射为 HTTP 状态码
func (h *InventoryHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var shortage *domain.InsufficientStockError
	switch {
	case errors.As(err, &shortage):
		available := shortage.Available
		writeJSON(w, http.StatusConflict, errorResponse{
			Error:     "insufficient_stock",
			Message:   err.Error(),
			ProductID: shortage.ProductID,
			Requested: shortage.Requested,
			Available: &available,
		})
	case errors.Is(err, domain.ErrInvalidQuantity), errors.Is(err, domain.ErrInvalidLine), errors.Is(err, domain.ErrLineRejected):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "rejected", Message: err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not_found", Message: err.Error()})
	case errors.Is(err, domain.ErrInvariantViolation):
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "reconciliation_required", Message: err.Error()})
	case errors.Is(err, domain.ErrWriteConflict):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "write_conflict", Message: err.Error()})
	case errors.Is(err, domain.ErrIllegalState):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "illegal_state", Message: err.Error()})
	default:
		logger.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal", Message: "internal error"})
	}
}

func requireQuery(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_request", Message: name + " is required"})
		return "", false
	}
	return v, true
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
