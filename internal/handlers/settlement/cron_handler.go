package settlement

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	settlementsvc "github.com/lemuelpay/settlement-service/internal/services/settlement"
	"go.uber.org/zap"
)

// CronHandler handles the scheduled settlement batch endpoints. Scheduling
// itself lives outside the service (Cloud Scheduler or cron hitting these
// endpoints); both jobs are idempotent so overlapping triggers are safe.
type CronHandler struct {
	batch      *settlementsvc.BatchService
	logger     *zap.Logger
	cronSecret string
}

// NewCronHandler creates a new settlement cron handler
func NewCronHandler(batch *settlementsvc.BatchService, logger *zap.Logger, cronSecret string) *CronHandler {
	return &CronHandler{
		batch:      batch,
		logger:     logger,
		cronSecret: cronSecret,
	}
}

// BatchRequest represents the optional request body for batch endpoints
type BatchRequest struct {
	TargetDate *string `json:"target_date"` // Optional: ISO date string, defaults to yesterday
}

// BatchResponse represents the response from a batch run
type BatchResponse struct {
	Success     bool   `json:"success"`
	TargetDate  string `json:"target_date"`
	Processed   int    `json:"processed"`
	Skipped     int    `json:"skipped"`
	Failed      int    `json:"failed"`
	ProcessedAt string `json:"processed_at"`
}

// CreateSettlements handles the POST /cron/create-settlements endpoint.
// Creates settlements for payments captured on the target date.
func (h *CronHandler) CreateSettlements(w http.ResponseWriter, r *http.Request) {
	h.runBatch(w, r, "create-settlements", h.batch.CreateDailySettlements)
}

// ConfirmSettlements handles the POST /cron/confirm-settlements endpoint.
// Confirms settlements dated on the target date that are still awaiting
// confirmation.
func (h *CronHandler) ConfirmSettlements(w http.ResponseWriter, r *http.Request) {
	h.runBatch(w, r, "confirm-settlements", h.batch.ConfirmDailySettlements)
}

// ConfirmAdjustments handles the POST /cron/confirm-adjustments endpoint.
// Confirms pending adjustments whose owning settlement is confirmed.
func (h *CronHandler) ConfirmAdjustments(w http.ResponseWriter, r *http.Request) {
	h.runBatch(w, r, "confirm-adjustments", h.batch.ConfirmPendingAdjustments)
}

type batchFunc func(ctx context.Context, targetDate time.Time) (*settlementsvc.BatchResult, error)

func (h *CronHandler) runBatch(w http.ResponseWriter, r *http.Request, job string, run batchFunc) {
	h.logger.Info("Settlement cron job triggered",
		zap.String("job", job),
		zap.String("remote_addr", r.RemoteAddr),
	)

	if r.Method != http.MethodPost {
		h.respondError(w, http.StatusMethodNotAllowed, "only POST method is allowed")
		return
	}
	if !h.authenticateRequest(r) {
		h.logger.Warn("Unauthorized cron request",
			zap.String("job", job),
			zap.String("remote_addr", r.RemoteAddr),
		)
		h.respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	// Batches default to the previous day: creation settles yesterday's
	// captures, confirmation finalizes yesterday's settlements.
	targetDate := time.Now().AddDate(0, 0, -1)

	var req BatchRequest
	if r.Body != nil && r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.logger.Warn("Failed to parse request body", zap.Error(err))
		}
	}
	if req.TargetDate != nil {
		parsed, err := time.Parse("2006-01-02", *req.TargetDate)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, "invalid target_date format, want YYYY-MM-DD")
			return
		}
		targetDate = parsed
	}

	result, err := run(r.Context(), targetDate)
	if err != nil {
		h.logger.Error("Settlement batch failed",
			zap.String("job", job),
			zap.Error(err),
		)
		h.respondError(w, http.StatusInternalServerError, "batch run failed")
		return
	}

	resp := BatchResponse{
		Success:     result.Failed == 0,
		TargetDate:  targetDate.Format("2006-01-02"),
		Processed:   result.Processed,
		Skipped:     result.Skipped,
		Failed:      result.Failed,
		ProcessedAt: time.Now().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if resp.Success {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusPartialContent)
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// authenticateRequest verifies the cron request is authorized
func (h *CronHandler) authenticateRequest(r *http.Request) bool {
	cronSecret := r.Header.Get("X-Cron-Secret")
	if cronSecret != "" && cronSecret == h.cronSecret {
		return true
	}
	authHeader := r.Header.Get("Authorization")
	return authHeader == "Bearer "+h.cronSecret
}

// respondError sends an error response
func (h *CronHandler) respondError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	resp := map[string]interface{}{
		"success": false,
		"error":   message,
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("Failed to encode error response", zap.Error(err))
	}
}
