package refund_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lemuelpay/settlement-service/internal/handlers/refund"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCreateRefundRequestValidation(t *testing.T) {
	// Requests rejected before the service is touched
	h := refund.NewHandler(nil, zap.NewNop())

	t.Run("rejects missing idempotency key", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/refunds", strings.NewReader(`{"payment_id":"pay-1","amount":"100.00"}`))
		rec := httptest.NewRecorder()

		h.CreateRefund(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)

		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "REFUND_MISSING_IDEMPOTENCY_KEY", body["code"])
	})

	t.Run("rejects non-POST methods", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/refunds", nil)
		rec := httptest.NewRecorder()

		h.CreateRefund(rec, req)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})

	t.Run("rejects malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/refunds", strings.NewReader(`{`))
		req.Header.Set("Idempotency-Key", "key-1")
		rec := httptest.NewRecorder()

		h.CreateRefund(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects missing payment id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/refunds", strings.NewReader(`{"amount":"100.00"}`))
		req.Header.Set("Idempotency-Key", "key-1")
		rec := httptest.NewRecorder()

		h.CreateRefund(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects non-decimal amount", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/refunds", strings.NewReader(`{"payment_id":"pay-1","amount":"abc"}`))
		req.Header.Set("Idempotency-Key", "key-1")
		rec := httptest.NewRecorder()

		h.CreateRefund(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
