package settlement

import (
	"encoding/json"
	"net/http"

	settlementsvc "github.com/lemuelpay/settlement-service/internal/services/settlement"
	"go.uber.org/zap"
)

// HealthHandler exposes the settlement pipeline health snapshot
type HealthHandler struct {
	health *settlementsvc.HealthService
	logger *zap.Logger
}

// NewHealthHandler creates a new settlement health handler
func NewHealthHandler(health *settlementsvc.HealthService, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		health: health,
		logger: logger,
	}
}

// Snapshot handles the GET /settlements/health endpoint. Degraded means the
// batches are behind on yesterday's settlements, reported as 200 so monitors
// alert on the payload rather than treating the service as down.
func (h *HealthHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusMethodNotAllowed)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": false,
			"error":   "only GET method is allowed",
		})
		return
	}

	snapshot, err := h.health.Snapshot(r.Context())
	if err != nil {
		h.logger.Error("settlement health snapshot failed", zap.Error(err))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": false,
			"error":   "health snapshot failed",
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(snapshot); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}
