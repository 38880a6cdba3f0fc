package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/vaultline/aa-relayer-go/internal/errors"
	"github.com/vaultline/aa-relayer-go/internal/util"
)

func testSettleRequest() SettleRequest {
	return SettleRequest{
		ApprovalID:           "appr-42",
		ParamsHash:           "0xdeadbeef",
		TxHash:               "0xabc",
		GasUsedWei:           "21000",
		EffectiveGasPriceWei: "1500000000",
		CorrelationID:        "corr-1",
	}
}

func TestSettlementClient(t *testing.T) {
	t.Run("signs the canonical field ordering", func(t *testing.T) {
		var gotSignature, gotIdempotency, gotCorrelation string
		var gotBody SettleRequest
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/internal/settlements", r.URL.Path)
			gotSignature = r.Header.Get("X-Signature")
			gotIdempotency = r.Header.Get("Idempotency-Key")
			gotCorrelation = r.Header.Get("X-Correlation-ID")
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		client := NewSettlementClient(server.URL, "test-secret")
		require.NoError(t, client.Settle(context.Background(), testSettleRequest()))

		expected := util.HmacSHA256("test-secret", "0xdeadbeef|appr-42|21000|1500000000")
		assert.Equal(t, expected, gotSignature)
		assert.NotEmpty(t, gotIdempotency)
		assert.Equal(t, "corr-1", gotCorrelation)
		assert.Equal(t, "appr-42", gotBody.ApprovalID)
		assert.Equal(t, "21000", gotBody.GasUsedWei)
	})

	t.Run("fresh idempotency key per call", func(t *testing.T) {
		var keys []string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			keys = append(keys, r.Header.Get("Idempotency-Key"))
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		client := NewSettlementClient(server.URL, "test-secret")
		require.NoError(t, client.Settle(context.Background(), testSettleRequest()))
		require.NoError(t, client.Settle(context.Background(), testSettleRequest()))
		require.Len(t, keys, 2)
		assert.NotEqual(t, keys[0], keys[1])
	})

	t.Run("conflict means already settled", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusConflict)
		}))
		defer server.Close()

		client := NewSettlementClient(server.URL, "test-secret")
		assert.NoError(t, client.Settle(context.Background(), testSettleRequest()))
	})

	t.Run("server error surfaces as external error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "ledger unavailable", http.StatusServiceUnavailable)
		}))
		defer server.Close()

		client := NewSettlementClient(server.URL, "test-secret")
		err := client.Settle(context.Background(), testSettleRequest())
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeExternal, apperrors.GetCode(err))
		assert.Contains(t, err.Error(), "503")
	})
}
