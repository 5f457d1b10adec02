package refund

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/lemuelpay/settlement-service/internal/domain"
	"github.com/lemuelpay/settlement-service/internal/domain/models"
	refundsvc "github.com/lemuelpay/settlement-service/internal/services/refund"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Handler handles refund HTTP endpoints
type Handler struct {
	service *refundsvc.Service
	logger  *zap.Logger
}

// NewHandler creates a new refund handler
func NewHandler(service *refundsvc.Service, logger *zap.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// CreateRefundRequest represents the request body for POST /refunds
type CreateRefundRequest struct {
	PaymentID  string `json:"payment_id"`
	Amount     string `json:"amount"` // decimal string; ignored when full_refund is true
	Reason     string `json:"reason"`
	FullRefund bool   `json:"full_refund"`
}

// PaymentSnapshot is the payment state returned alongside the refund
type PaymentSnapshot struct {
	ID               string `json:"id"`
	CapturedAmount   string `json:"captured_amount"`
	RefundedAmount   string `json:"refunded_amount"`
	RefundableAmount string `json:"refundable_amount"`
	Status           string `json:"status"`
}

// RefundResponse is the refund record as returned to callers
type RefundResponse struct {
	ID          string  `json:"id"`
	PaymentID   string  `json:"payment_id"`
	Amount      string  `json:"amount"`
	Status      string  `json:"status"`
	Reason      string  `json:"reason,omitempty"`
	RequestedAt string  `json:"requested_at"`
	CompletedAt *string `json:"completed_at,omitempty"`
}

// CreateRefundResponse represents the response for POST /refunds
type CreateRefundResponse struct {
	Success  bool            `json:"success"`
	Replayed bool            `json:"replayed"`
	Refund   RefundResponse  `json:"refund"`
	Payment  PaymentSnapshot `json:"payment"`
}

// CreateRefund handles the POST /refunds endpoint. The Idempotency-Key header
// is mandatory; retrying with the same key returns the original refund.
func (h *Handler) CreateRefund(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.respondError(w, http.StatusMethodNotAllowed, "only POST method is allowed", "")
		return
	}

	idempotencyKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if idempotencyKey == "" {
		h.respondError(w, http.StatusBadRequest, "Idempotency-Key header is required",
			string(domain.ErrorCodeRefundMissingIdemKey))
		return
	}

	var req CreateRefundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}
	if req.PaymentID == "" {
		h.respondError(w, http.StatusBadRequest, "payment_id is required", "")
		return
	}

	amount := decimal.Zero
	if !req.FullRefund {
		parsed, err := decimal.NewFromString(req.Amount)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, "amount must be a decimal string", "")
			return
		}
		amount = parsed
	}

	result, err := h.service.CreateRefund(r.Context(), refundsvc.CreateRefundRequest{
		PaymentID:      req.PaymentID,
		Amount:         amount,
		IdempotencyKey: idempotencyKey,
		Reason:         req.Reason,
		FullRefund:     req.FullRefund,
	})
	if err != nil {
		h.respondDomainError(w, err)
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	h.respondJSON(w, status, CreateRefundResponse{
		Success:  true,
		Replayed: result.Replayed,
		Refund:   toRefundResponse(result.Refund),
		Payment:  toPaymentSnapshot(result.Payment),
	})
}

// GetRefund handles the GET /refunds/{id} endpoint
func (h *Handler) GetRefund(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.respondError(w, http.StatusMethodNotAllowed, "only GET method is allowed", "")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/refunds/")
	if id == "" || strings.Contains(id, "/") {
		h.respondError(w, http.StatusBadRequest, "refund id is required", "")
		return
	}

	refund, err := h.service.GetRefund(r.Context(), id)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"refund":  toRefundResponse(refund),
	})
}

// respondDomainError maps domain error classes onto HTTP status codes
func (h *Handler) respondDomainError(w http.ResponseWriter, err error) {
	code := domain.GetErrorCode(err)

	var status int
	switch {
	case domain.IsNotFoundError(err):
		status = http.StatusNotFound
	case domain.IsConflictError(err):
		status = http.StatusConflict
	case domain.IsValidationError(err):
		status = http.StatusBadRequest
	case domain.IsGatewayError(err):
		status = http.StatusBadGateway
	default:
		status = http.StatusInternalServerError
		h.logger.Error("refund request failed", zap.Error(err))
	}

	message := "internal error"
	if status != http.StatusInternalServerError {
		message = err.Error()
	}
	h.respondError(w, status, message, string(code))
}

func (h *Handler) respondError(w http.ResponseWriter, statusCode int, message, code string) {
	resp := map[string]interface{}{
		"success": false,
		"error":   message,
	}
	if code != "" {
		resp["code"] = code
	}
	h.respondJSON(w, statusCode, resp)
}

func (h *Handler) respondJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func toRefundResponse(refund *models.Refund) RefundResponse {
	resp := RefundResponse{
		ID:          refund.ID,
		PaymentID:   refund.PaymentID,
		Amount:      refund.Amount.String(),
		Status:      string(refund.Status),
		Reason:      refund.Reason,
		RequestedAt: refund.RequestedAt.Format(time.RFC3339),
	}
	if refund.CompletedAt != nil {
		completed := refund.CompletedAt.Format(time.RFC3339)
		resp.CompletedAt = &completed
	}
	return resp
}

func toPaymentSnapshot(payment *models.Payment) PaymentSnapshot {
	return PaymentSnapshot{
		ID:               payment.ID,
		CapturedAmount:   payment.CapturedAmount.String(),
		RefundedAmount:   payment.RefundedAmount.String(),
		RefundableAmount: payment.RefundableAmount().String(),
		Status:           string(payment.Status),
	}
}
