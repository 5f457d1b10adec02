package refund_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	mockgw "github.com/lemuelpay/settlement-service/internal/adapters/mock"
	"github.com/lemuelpay/settlement-service/internal/domain"
	"github.com/lemuelpay/settlement-service/internal/domain/models"
	"github.com/lemuelpay/settlement-service/internal/domain/ports"
	"github.com/lemuelpay/settlement-service/internal/services/refund"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockDBPort mocks the database port
type MockDBPort struct {
	mock.Mock
}

func (m *MockDBPort) GetDB() *pgxpool.Pool {
	return nil
}

func (m *MockDBPort) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	// Execute the function with a nil transaction for testing
	return fn(ctx, nil)
}

func (m *MockDBPort) WithReadOnlyTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	return fn(ctx, nil)
}

// MockPaymentRepository mocks the payment repository
type MockPaymentRepository struct {
	mock.Mock
}

func (m *MockPaymentRepository) Create(ctx context.Context, tx ports.DBTX, payment *models.Payment) error {
	args := m.Called(ctx, tx, payment)
	return args.Error(0)
}

func (m *MockPaymentRepository) GetByID(ctx context.Context, db ports.DBTX, id string) (*models.Payment, error) {
	args := m.Called(ctx, db, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Payment), args.Error(1)
}

func (m *MockPaymentRepository) GetByIDForUpdate(ctx context.Context, tx ports.DBTX, id string) (*models.Payment, error) {
	args := m.Called(ctx, tx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Payment), args.Error(1)
}

func (m *MockPaymentRepository) UpdateRefundProgress(ctx context.Context, tx ports.DBTX, payment *models.Payment) error {
	args := m.Called(ctx, tx, payment)
	return args.Error(0)
}

func (m *MockPaymentRepository) ListCapturedBetween(ctx context.Context, db ports.DBTX, start, end time.Time) ([]*models.Payment, error) {
	args := m.Called(ctx, db, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Payment), args.Error(1)
}

// MockRefundRepository mocks the refund repository
type MockRefundRepository struct {
	mock.Mock
}

func (m *MockRefundRepository) Create(ctx context.Context, tx ports.DBTX, r *models.Refund) error {
	args := m.Called(ctx, tx, r)
	return args.Error(0)
}

func (m *MockRefundRepository) GetByID(ctx context.Context, db ports.DBTX, id string) (*models.Refund, error) {
	args := m.Called(ctx, db, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Refund), args.Error(1)
}

func (m *MockRefundRepository) GetByPaymentAndIdempotencyKey(ctx context.Context, db ports.DBTX, paymentID, key string) (*models.Refund, error) {
	args := m.Called(ctx, db, paymentID, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Refund), args.Error(1)
}

func (m *MockRefundRepository) UpdateStatus(ctx context.Context, tx ports.DBTX, r *models.Refund) error {
	args := m.Called(ctx, tx, r)
	return args.Error(0)
}

// MockReconciler mocks the settlement reconciler
type MockReconciler struct {
	mock.Mock
}

func (m *MockReconciler) ApplyRefundToSettlement(ctx context.Context, r *models.Refund) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

type nopLogger struct{}

func (nopLogger) Info(string, ...ports.Field)  {}
func (nopLogger) Error(string, ...ports.Field) {}
func (nopLogger) Warn(string, ...ports.Field)  {}
func (nopLogger) Debug(string, ...ports.Field) {}

func capturedPayment(amount, refunded string) *models.Payment {
	return &models.Payment{
		ID:             "pay-1",
		OrderID:        "order-1",
		CapturedAmount: decimal.RequireFromString(amount),
		RefundedAmount: decimal.RequireFromString(refunded),
		Status:         models.PaymentCaptured,
	}
}

type serviceFixture struct {
	payments   *MockPaymentRepository
	refunds    *MockRefundRepository
	gateway    *mockgw.RefundGateway
	reconciler *MockReconciler
	service    *refund.Service
}

func newFixture() *serviceFixture {
	f := &serviceFixture{
		payments:   new(MockPaymentRepository),
		refunds:    new(MockRefundRepository),
		gateway:    mockgw.NewRefundGateway(),
		reconciler: new(MockReconciler),
	}
	f.service = refund.NewService(new(MockDBPort), f.payments, f.refunds, f.gateway, f.reconciler, nil, nopLogger{})
	return f
}

func TestCreateRefund(t *testing.T) {
	ctx := context.Background()

	t.Run("completes a valid partial refund", func(t *testing.T) {
		f := newFixture()
		payment := capturedPayment("10000.00", "0")

		f.refunds.On("GetByPaymentAndIdempotencyKey", ctx, mock.Anything, "pay-1", "key-1").
			Return(nil, domain.ErrRefundNotFound)
		f.payments.On("GetByIDForUpdate", ctx, mock.Anything, "pay-1").Return(payment, nil)
		f.refunds.On("Create", ctx, mock.Anything, mock.AnythingOfType("*models.Refund")).Return(nil)
		f.refunds.On("UpdateStatus", ctx, mock.Anything, mock.AnythingOfType("*models.Refund")).Return(nil)
		f.payments.On("UpdateRefundProgress", ctx, mock.Anything, payment).Return(nil)
		f.reconciler.On("ApplyRefundToSettlement", ctx, mock.AnythingOfType("*models.Refund")).Return(nil)

		result, err := f.service.CreateRefund(ctx, refund.CreateRefundRequest{
			PaymentID:      "pay-1",
			Amount:         decimal.RequireFromString("3000.00"),
			IdempotencyKey: "key-1",
		})

		require.NoError(t, err)
		assert.False(t, result.Replayed)
		assert.Equal(t, models.RefundCompleted, result.Refund.Status)
		assert.True(t, result.Payment.RefundedAmount.Equal(decimal.RequireFromString("3000.00")))
		assert.Equal(t, models.PaymentCaptured, result.Payment.Status)
		assert.Len(t, f.gateway.Calls(), 1)
		f.reconciler.AssertExpectations(t)
	})

	t.Run("full refund flips payment to refunded", func(t *testing.T) {
		f := newFixture()
		payment := capturedPayment("10000.00", "2500.00")

		f.refunds.On("GetByPaymentAndIdempotencyKey", ctx, mock.Anything, "pay-1", "key-1").
			Return(nil, domain.ErrRefundNotFound)
		f.payments.On("GetByIDForUpdate", ctx, mock.Anything, "pay-1").Return(payment, nil)
		f.refunds.On("Create", ctx, mock.Anything, mock.Anything).Return(nil)
		f.refunds.On("UpdateStatus", ctx, mock.Anything, mock.Anything).Return(nil)
		f.payments.On("UpdateRefundProgress", ctx, mock.Anything, payment).Return(nil)
		f.reconciler.On("ApplyRefundToSettlement", ctx, mock.Anything).Return(nil)

		result, err := f.service.CreateRefund(ctx, refund.CreateRefundRequest{
			PaymentID:      "pay-1",
			IdempotencyKey: "key-1",
			FullRefund:     true,
		})

		require.NoError(t, err)
		assert.True(t, result.Refund.Amount.Equal(decimal.RequireFromString("7500.00")))
		assert.Equal(t, models.PaymentRefunded, result.Payment.Status)
	})

	t.Run("rejects missing idempotency key", func(t *testing.T) {
		f := newFixture()

		_, err := f.service.CreateRefund(ctx, refund.CreateRefundRequest{
			PaymentID: "pay-1",
			Amount:    decimal.NewFromInt(100),
		})

		assert.True(t, domain.IsDomainError(err, domain.ErrorCodeRefundMissingIdemKey))
		f.payments.AssertNotCalled(t, "GetByIDForUpdate", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("rejects non-positive amount", func(t *testing.T) {
		f := newFixture()

		_, err := f.service.CreateRefund(ctx, refund.CreateRefundRequest{
			PaymentID:      "pay-1",
			Amount:         decimal.Zero,
			IdempotencyKey: "key-1",
		})

		assert.True(t, domain.IsDomainError(err, domain.ErrorCodeValidationAmountInvalid))
	})

	t.Run("replays the original refund for a repeated idempotency key", func(t *testing.T) {
		f := newFixture()
		existing := &models.Refund{
			ID:             "ref-1",
			PaymentID:      "pay-1",
			Amount:         decimal.RequireFromString("3000.00"),
			Status:         models.RefundCompleted,
			IdempotencyKey: "key-1",
		}
		payment := capturedPayment("10000.00", "3000.00")

		f.refunds.On("GetByPaymentAndIdempotencyKey", ctx, mock.Anything, "pay-1", "key-1").
			Return(existing, nil)
		f.payments.On("GetByID", ctx, mock.Anything, "pay-1").Return(payment, nil)

		result, err := f.service.CreateRefund(ctx, refund.CreateRefundRequest{
			PaymentID:      "pay-1",
			Amount:         decimal.RequireFromString("3000.00"),
			IdempotencyKey: "key-1",
		})

		require.NoError(t, err)
		assert.True(t, result.Replayed)
		assert.Equal(t, "ref-1", result.Refund.ID)
		// The payment is not locked or mutated on replay
		f.payments.AssertNotCalled(t, "GetByIDForUpdate", mock.Anything, mock.Anything, mock.Anything)
		assert.Empty(t, f.gateway.Calls())
	})

	t.Run("rejects refund exceeding the refundable balance", func(t *testing.T) {
		f := newFixture()
		payment := capturedPayment("10000.00", "9999.00")

		f.refunds.On("GetByPaymentAndIdempotencyKey", ctx, mock.Anything, "pay-1", "key-1").
			Return(nil, domain.ErrRefundNotFound)
		f.payments.On("GetByIDForUpdate", ctx, mock.Anything, "pay-1").Return(payment, nil)

		_, err := f.service.CreateRefund(ctx, refund.CreateRefundRequest{
			PaymentID:      "pay-1",
			Amount:         decimal.RequireFromString("2.00"),
			IdempotencyKey: "key-1",
		})

		assert.True(t, domain.IsDomainError(err, domain.ErrorCodeRefundExceedsPayment))
		f.refunds.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
		assert.Empty(t, f.gateway.Calls())
	})

	t.Run("rejects refund on a non-captured payment", func(t *testing.T) {
		f := newFixture()
		payment := capturedPayment("10000.00", "10000.00")
		payment.Status = models.PaymentRefunded

		f.refunds.On("GetByPaymentAndIdempotencyKey", ctx, mock.Anything, "pay-1", "key-1").
			Return(nil, domain.ErrRefundNotFound)
		f.payments.On("GetByIDForUpdate", ctx, mock.Anything, "pay-1").Return(payment, nil)

		_, err := f.service.CreateRefund(ctx, refund.CreateRefundRequest{
			PaymentID:      "pay-1",
			Amount:         decimal.NewFromInt(1),
			IdempotencyKey: "key-1",
		})

		assert.True(t, domain.IsDomainError(err, domain.ErrorCodePaymentInvalidState))
	})

	t.Run("gateway failure leaves the payment untouched", func(t *testing.T) {
		f := newFixture()
		payment := capturedPayment("10000.00", "0")
		f.gateway.FailPayment("pay-1", errors.New("connection reset"))

		f.refunds.On("GetByPaymentAndIdempotencyKey", ctx, mock.Anything, "pay-1", "key-1").
			Return(nil, domain.ErrRefundNotFound)
		f.payments.On("GetByIDForUpdate", ctx, mock.Anything, "pay-1").Return(payment, nil)
		f.refunds.On("Create", ctx, mock.Anything, mock.Anything).Return(nil)

		_, err := f.service.CreateRefund(ctx, refund.CreateRefundRequest{
			PaymentID:      "pay-1",
			Amount:         decimal.RequireFromString("3000.00"),
			IdempotencyKey: "key-1",
		})

		assert.True(t, domain.IsGatewayError(err))
		f.payments.AssertNotCalled(t, "UpdateRefundProgress", mock.Anything, mock.Anything, mock.Anything)
		assert.True(t, payment.RefundedAmount.IsZero())

		// The failed attempt is recorded outside the rolled-back transaction
		var failedRecorded bool
		for _, call := range f.refunds.Calls {
			if call.Method == "Create" {
				if r, ok := call.Arguments.Get(2).(*models.Refund); ok && r.Status == models.RefundFailed {
					failedRecorded = true
				}
			}
		}
		assert.True(t, failedRecorded)
	})

	t.Run("reconciliation failure never reverts the refund", func(t *testing.T) {
		f := newFixture()
		payment := capturedPayment("10000.00", "0")

		f.refunds.On("GetByPaymentAndIdempotencyKey", ctx, mock.Anything, "pay-1", "key-1").
			Return(nil, domain.ErrRefundNotFound)
		f.payments.On("GetByIDForUpdate", ctx, mock.Anything, "pay-1").Return(payment, nil)
		f.refunds.On("Create", ctx, mock.Anything, mock.Anything).Return(nil)
		f.refunds.On("UpdateStatus", ctx, mock.Anything, mock.Anything).Return(nil)
		f.payments.On("UpdateRefundProgress", ctx, mock.Anything, payment).Return(nil)
		f.reconciler.On("ApplyRefundToSettlement", ctx, mock.Anything).
			Return(errors.New("settlement store unavailable"))

		result, err := f.service.CreateRefund(ctx, refund.CreateRefundRequest{
			PaymentID:      "pay-1",
			Amount:         decimal.RequireFromString("3000.00"),
			IdempotencyKey: "key-1",
		})

		require.NoError(t, err)
		assert.Equal(t, models.RefundCompleted, result.Refund.Status)
	})
}

// lockingDB serializes transactions with a mutex the way the payment row lock
// serializes concurrent refunds on one payment.
type lockingDB struct {
	mu sync.Mutex
}

func (db *lockingDB) GetDB() *pgxpool.Pool { return nil }

func (db *lockingDB) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return fn(ctx, nil)
}

func (db *lockingDB) WithReadOnlyTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	return fn(ctx, nil)
}

// memPaymentRepo is an in-memory payment store for the concurrency test.
// Callers hold the lockingDB mutex, so reads under GetByIDForUpdate see every
// prior committed mutation.
type memPaymentRepo struct {
	payment *models.Payment
}

func (r *memPaymentRepo) Create(ctx context.Context, tx ports.DBTX, p *models.Payment) error {
	return nil
}

func (r *memPaymentRepo) GetByID(ctx context.Context, db ports.DBTX, id string) (*models.Payment, error) {
	return r.payment, nil
}

func (r *memPaymentRepo) GetByIDForUpdate(ctx context.Context, tx ports.DBTX, id string) (*models.Payment, error) {
	return r.payment, nil
}

func (r *memPaymentRepo) UpdateRefundProgress(ctx context.Context, tx ports.DBTX, p *models.Payment) error {
	return nil
}

func (r *memPaymentRepo) ListCapturedBetween(ctx context.Context, db ports.DBTX, start, end time.Time) ([]*models.Payment, error) {
	return nil, nil
}

type memRefundRepo struct {
	mu      sync.Mutex
	refunds map[string]*models.Refund // (paymentID, idempotencyKey) -> refund
}

func refundKey(paymentID, key string) string { return paymentID + ":" + key }

func (r *memRefundRepo) Create(ctx context.Context, tx ports.DBTX, ref *models.Refund) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := refundKey(ref.PaymentID, ref.IdempotencyKey)
	if _, ok := r.refunds[k]; ok {
		return domain.WrapError(domain.ErrorCodeValidationFailed, "duplicate idempotency key", nil)
	}
	r.refunds[k] = ref
	return nil
}

func (r *memRefundRepo) GetByID(ctx context.Context, db ports.DBTX, id string) (*models.Refund, error) {
	return nil, domain.ErrRefundNotFound
}

func (r *memRefundRepo) GetByPaymentAndIdempotencyKey(ctx context.Context, db ports.DBTX, paymentID, key string) (*models.Refund, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ref, ok := r.refunds[refundKey(paymentID, key)]; ok {
		return ref, nil
	}
	return nil, domain.ErrRefundNotFound
}

func (r *memRefundRepo) UpdateStatus(ctx context.Context, tx ports.DBTX, ref *models.Refund) error {
	return nil
}

type nopReconciler struct{}

func (nopReconciler) ApplyRefundToSettlement(ctx context.Context, r *models.Refund) error {
	return nil
}

func TestCreateRefundConcurrentOverspend(t *testing.T) {
	// Two concurrent refunds whose combined amount exceeds the balance:
	// exactly one succeeds, the other is rejected after acquiring the lock.
	payment := capturedPayment("10000.00", "0")

	svc := refund.NewService(
		&lockingDB{},
		&memPaymentRepo{payment: payment},
		&memRefundRepo{refunds: make(map[string]*models.Refund)},
		mockgw.NewRefundGateway(),
		nopReconciler{},
		nil,
		nopLogger{},
	)

	ctx := context.Background()
	amount := decimal.RequireFromString("6000.00")
	errs := make([]error, 2)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.CreateRefund(ctx, refund.CreateRefundRequest{
				PaymentID:      "pay-1",
				Amount:         amount,
				IdempotencyKey: string(rune('a' + i)),
			})
		}(i)
	}
	wg.Wait()

	var succeeded, rejected int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case domain.IsDomainError(err, domain.ErrorCodeRefundExceedsPayment):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, rejected)
	assert.True(t, payment.RefundedAmount.Equal(amount))
}
