package invoice

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/invoicely/invoicely/internal/platform/httpx"
	"github.com/invoicely/invoicely/internal/shared"
)

const idempotencyModule = "invoice_payments"

// SummaryReader serves cached dashboard summaries.
type SummaryReader interface {
	Summary(ctx context.Context) (Summary, error)
	ClientSummary(ctx context.Context, clientID int64) (Summary, error)
}

// IdempotencyGuard records processed Idempotency-Key headers and the
// responses they produced.
type IdempotencyGuard interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Complete(ctx context.Context, key string, response []byte) error
	Response(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// Handler exposes the invoice JSON API.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	summaries   SummaryReader
	idempotency IdempotencyGuard
	validator   *validator.Validate
}

// NewHandler constructs the handler. summaries and idempotency may be nil.
func NewHandler(logger *slog.Logger, service *Service, summaries SummaryReader, idempotency IdempotencyGuard) *Handler {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{
		logger:      logger,
		service:     service,
		summaries:   summaries,
		idempotency: idempotency,
		validator:   v,
	}
}

// MountRoutes registers invoice routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/invoices", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Post("/totals/preview", h.previewTotals)
		r.Get("/summary", h.summary)
		r.Get("/{id}", h.show)
		r.Put("/{id}/items", h.updateItems)
		r.Post("/{id}/payments", h.recordPayment)
		r.Post("/{id}/status", h.changeStatus)
	})
	r.Get("/clients/{clientID}/summary", h.clientSummary)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := ListInvoicesRequest{Limit: 50}
	if raw := q.Get("status"); raw != "" {
		status, err := ParseStatus(raw)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		req.Status = status
	}
	if raw := q.Get("client_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			h.writeError(w, r, newValidationError("client_id", "must be a positive integer"))
			return
		}
		req.ClientID = id
	}
	if n, err := strconv.Atoi(q.Get("limit")); err == nil && n > 0 && n <= 500 {
		req.Limit = n
	}
	if n, err := strconv.Atoi(q.Get("offset")); err == nil && n > 0 {
		req.Offset = n
	}

	invoices, err := h.service.ListInvoices(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := listResponse{Data: make([]Record, 0, len(invoices)), Count: len(invoices)}
	for _, inv := range invoices {
		resp.Data = append(resp.Data, ToRecord(inv))
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, ok := h.invoiceID(w, r)
	if !ok {
		return
	}
	inv, err := h.service.GetInvoice(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ToRecord(inv))
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var payload createInvoicePayload
	if !h.decode(w, r, &payload) {
		return
	}
	inv, err := h.service.CreateInvoice(r.Context(), payload.draft())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, ToRecord(inv))
}

func (h *Handler) updateItems(w http.ResponseWriter, r *http.Request) {
	id, ok := h.invoiceID(w, r)
	if !ok {
		return
	}
	var payload updateItemsPayload
	if !h.decode(w, r, &payload) {
		return
	}
	inv, err := h.service.UpdateLineItems(r.Context(), id, toLineItems(payload.Items), payload.TaxRate)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ToRecord(inv))
}

func (h *Handler) previewTotals(w http.ResponseWriter, r *http.Request) {
	var payload previewPayload
	if !h.decode(w, r, &payload) {
		return
	}
	totals := ComputeEstimateTotals(toLineItems(payload.Items), payload.TaxRate, payload.DiscountRate)
	httpx.JSON(w, http.StatusOK, totals.Rounded())
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.invoiceID(w, r)
	if !ok {
		return
	}
	var payload paymentPayload
	if !h.decode(w, r, &payload) {
		return
	}
	input, err := payload.input()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.idempotent(w, r, func(ctx context.Context, key string) (Invoice, error) {
		return h.service.RecordPayment(ctx, RecordPaymentRequest{
			InvoiceID:      id,
			Payment:        input,
			Billing:        payload.billing(0),
			IdempotencyKey: key,
		})
	})
}

func (h *Handler) changeStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.invoiceID(w, r)
	if !ok {
		return
	}
	var payload statusPayload
	if !h.decode(w, r, &payload) {
		return
	}
	target, err := ParseStatus(payload.Status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	req := ChangeStatusRequest{InvoiceID: id, Target: target}
	if payload.Payment != nil {
		input, err := payload.Payment.input()
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		req.Payment = &input
		req.Billing = payload.Payment.billing(0)
	}
	h.idempotent(w, r, func(ctx context.Context, key string) (Invoice, error) {
		req.IdempotencyKey = key
		return h.service.ChangeStatus(ctx, req)
	})
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	if h.summaries == nil {
		httpx.Problem(w, r, http.StatusServiceUnavailable, "Unavailable", "summaries are not configured")
		return
	}
	s, err := h.summaries.Summary(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, s)
}

func (h *Handler) clientSummary(w http.ResponseWriter, r *http.Request) {
	if h.summaries == nil {
		httpx.Problem(w, r, http.StatusServiceUnavailable, "Unavailable", "summaries are not configured")
		return
	}
	clientID, err := strconv.ParseInt(chi.URLParam(r, "clientID"), 10, 64)
	if err != nil || clientID <= 0 {
		h.writeError(w, r, newValidationError("client_id", "must be a positive integer"))
		return
	}
	s, err := h.summaries.ClientSummary(r.Context(), clientID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, s)
}

// idempotent runs fn at most once per Idempotency-Key and route. A retry of
// a completed request replays the stored response; a retry while the first
// attempt is still running gets 409. A failed attempt releases the key so
// the client can retry.
func (h *Handler) idempotent(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, key string) (Invoice, error)) {
	ctx := r.Context()
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	guarded := key != "" && h.idempotency != nil
	scoped := r.URL.Path + "|" + key
	if guarded {
		if err := h.idempotency.CheckAndInsert(ctx, scoped, idempotencyModule); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				h.replay(w, r, scoped, err)
				return
			}
			h.writeError(w, r, err)
			return
		}
	}
	inv, err := fn(ctx, key)
	if err != nil {
		if guarded {
			if delErr := h.idempotency.Delete(context.WithoutCancel(ctx), scoped); delErr != nil {
				h.logger.Warn("release idempotency key", slog.String("key", key), slog.Any("error", delErr))
			}
		}
		h.writeError(w, r, err)
		return
	}
	body, err := json.Marshal(ToRecord(inv))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if guarded {
		if err := h.idempotency.Complete(context.WithoutCancel(ctx), scoped, body); err != nil {
			h.logger.Warn("store idempotent response", slog.String("key", key), slog.Any("error", err))
		}
	}
	httpx.Raw(w, http.StatusOK, body)
}

func (h *Handler) replay(w http.ResponseWriter, r *http.Request, scoped string, conflict error) {
	body, err := h.idempotency.Response(r.Context(), scoped)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if len(body) == 0 {
		h.writeError(w, r, conflict)
		return
	}
	w.Header().Set("Idempotent-Replayed", "true")
	httpx.Raw(w, http.StatusOK, body)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, r, http.StatusBadRequest, "Bad Request", "request body must be valid JSON")
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			h.writeError(w, r, newValidationError(fe.Field(), "failed %q check", fe.Tag()))
			return false
		}
		h.writeError(w, r, newValidationError("", "%v", err))
		return false
	}
	return true
}

func (h *Handler) invoiceID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, r, http.StatusBadRequest, "Bad Request", "invalid invoice id")
		return 0, false
	}
	return id, true
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, r, http.StatusUnprocessableEntity, "Validation Failed", UserMessage(err))
	case errors.Is(err, ErrOverpayment):
		httpx.Problem(w, r, http.StatusUnprocessableEntity, "Overpayment", UserMessage(err))
	case errors.Is(err, ErrInvalidTransition):
		httpx.Problem(w, r, http.StatusConflict, "Invalid Status Change", UserMessage(err))
	case errors.Is(err, ErrPaymentAbandoned):
		httpx.Problem(w, r, http.StatusConflict, "Payment Abandoned", UserMessage(err))
	case errors.Is(err, ErrGateway):
		httpx.Problem(w, r, http.StatusPaymentRequired, "Payment Failed", UserMessage(err))
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, r, http.StatusNotFound, "Not Found", UserMessage(err))
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, r, http.StatusConflict, "Duplicate Request", "a request with this Idempotency-Key is still in progress")
	default:
		h.logger.Error("invoice request failed",
			slog.String("path", r.URL.Path),
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.Any("error", err))
		httpx.Problem(w, r, http.StatusInternalServerError, "Internal Error", "")
	}
}
