package settlement

import (
	"context"
	"time"

	"github.com/lemuelpay/settlement-service/internal/domain/models"
	"github.com/lemuelpay/settlement-service/internal/domain/ports"
)

// Backlog thresholds above which the snapshot degrades. Tuned to the daily
// batch volume; a healthy run leaves both near zero.
const (
	maxPendingSettlements = 100
	maxPendingAdjustments = 50
)

// HealthSnapshot is a point-in-time view of the settlement pipeline for the
// previous settlement day
type HealthSnapshot struct {
	Status                 string    `json:"status"`
	SettlementDate         string    `json:"settlementDate"`
	PendingCount           int       `json:"pendingCount"`
	ConfirmedCount         int       `json:"confirmedCount"`
	PendingAdjustmentCount int       `json:"pendingAdjustmentCount"`
	CheckedAt              time.Time `json:"checkedAt"`
}

// HealthService reports whether the settlement batches are keeping up
type HealthService struct {
	db          ports.DBPort
	settlements ports.SettlementRepository
	adjustments ports.AdjustmentRepository
	logger      ports.Logger
}

// NewHealthService creates a new health service
func NewHealthService(
	db ports.DBPort,
	settlements ports.SettlementRepository,
	adjustments ports.AdjustmentRepository,
	logger ports.Logger,
) *HealthService {
	return &HealthService{
		db:          db,
		settlements: settlements,
		adjustments: adjustments,
		logger:      logger,
	}
}

// Snapshot counts yesterday's unconfirmed settlements and the pending
// adjustment backlog. Degraded means the confirmation batches are behind, not
// that the service is down.
func (s *HealthService) Snapshot(ctx context.Context) (*HealthSnapshot, error) {
	date, _ := dayRange(time.Now().AddDate(0, 0, -1))

	pending, err := s.settlements.CountByDateAndStatus(ctx, nil, date, models.SettlementPending)
	if err != nil {
		return nil, err
	}
	waiting, err := s.settlements.CountByDateAndStatus(ctx, nil, date, models.SettlementWaitingApproval)
	if err != nil {
		return nil, err
	}
	confirmed, err := s.settlements.CountByDateAndStatus(ctx, nil, date, models.SettlementConfirmed)
	if err != nil {
		return nil, err
	}
	pendingAdjustments, err := s.adjustments.CountPendingByDate(ctx, nil, date)
	if err != nil {
		return nil, err
	}

	snapshot := &HealthSnapshot{
		Status:                 "healthy",
		SettlementDate:         date.Format("2006-01-02"),
		PendingCount:           pending + waiting,
		ConfirmedCount:         confirmed,
		PendingAdjustmentCount: pendingAdjustments,
		CheckedAt:              time.Now(),
	}
	if snapshot.PendingCount > maxPendingSettlements || snapshot.PendingAdjustmentCount > maxPendingAdjustments {
		snapshot.Status = "degraded"
		s.logger.Warn("settlement pipeline backlog over threshold",
			ports.String("settlement_date", snapshot.SettlementDate),
			ports.Int("pending_settlements", snapshot.PendingCount),
			ports.Int("pending_adjustments", snapshot.PendingAdjustmentCount))
	}
	return snapshot, nil
}
