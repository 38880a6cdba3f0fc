package service

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/vaultline/aa-relayer-go/internal/errors"
	"github.com/vaultline/aa-relayer-go/internal/signer"
)

type mockSigner struct {
	receipt *signer.Receipt
	errs    []error
	calls   int
}

func (m *mockSigner) SendTransaction(ctx context.Context, req signer.TxRequest) (*signer.Receipt, error) {
	call := m.calls
	m.calls++
	if call < len(m.errs) && m.errs[call] != nil {
		return nil, m.errs[call]
	}
	return m.receipt, nil
}

type mockSettler struct {
	errs  []error
	calls int
	last  SettleRequest
}

func (m *mockSettler) Settle(ctx context.Context, req SettleRequest) error {
	call := m.calls
	m.calls++
	m.last = req
	if call < len(m.errs) && m.errs[call] != nil {
		return m.errs[call]
	}
	return nil
}

func testReceipt() *signer.Receipt {
	return &signer.Receipt{
		TxHash:            common.HexToHash("0xabc123"),
		GasUsed:           big.NewInt(21000),
		EffectiveGasPrice: big.NewInt(1_500_000_000),
		BlockNumber:       big.NewInt(777),
	}
}

func testParams() SubmitAndSettleParams {
	return SubmitAndSettleParams{
		ApprovalID:    "appr-42",
		ParamsHash:    "0xdeadbeef",
		CorrelationID: "corr-1",
	}
}

func newTestService(s signer.Signer, settler Settler) *RelayerService {
	svc := NewRelayerService(s, settler)
	svc.backoff = time.Millisecond
	return svc
}

func TestRelayerServiceSubmitAndSettle(t *testing.T) {
	t.Run("success on first attempt", func(t *testing.T) {
		sig := &mockSigner{receipt: testReceipt()}
		set := &mockSettler{}
		svc := newTestService(sig, set)

		result, err := svc.SubmitAndSettle(context.Background(), testParams())
		require.NoError(t, err)
		assert.Equal(t, 1, sig.calls)
		assert.Equal(t, 1, set.calls)
		assert.Equal(t, "21000", result.GasUsedWei)
		assert.Equal(t, "1500000000", result.EffectiveGasPriceWei)
		assert.Equal(t, "appr-42", set.last.ApprovalID)
		assert.Equal(t, "0xdeadbeef", set.last.ParamsHash)
	})

	t.Run("retries transient signer failure then succeeds", func(t *testing.T) {
		sig := &mockSigner{
			receipt: testReceipt(),
			errs:    []error{errors.New("rpc timeout"), nil},
		}
		set := &mockSettler{}
		svc := newTestService(sig, set)

		_, err := svc.SubmitAndSettle(context.Background(), testParams())
		require.NoError(t, err)
		assert.Equal(t, 2, sig.calls)
		assert.Equal(t, 1, set.calls)
	})

	t.Run("retries settlement failure independently of signing", func(t *testing.T) {
		sig := &mockSigner{receipt: testReceipt()}
		set := &mockSettler{errs: []error{errors.New("503"), nil}}
		svc := newTestService(sig, set)

		_, err := svc.SubmitAndSettle(context.Background(), testParams())
		require.NoError(t, err)
		assert.Equal(t, 2, set.calls)
	})

	t.Run("exhausted retries return terminal error naming the approval", func(t *testing.T) {
		sig := &mockSigner{errs: []error{
			errors.New("down"), errors.New("down"), errors.New("down"),
		}}
		set := &mockSettler{}
		svc := newTestService(sig, set)

		_, err := svc.SubmitAndSettle(context.Background(), testParams())
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeSettlementFailed, apperrors.GetCode(err))
		assert.Contains(t, err.Error(), "appr-42")
		assert.Equal(t, 3, sig.calls)
		// Nothing to settle if signing never produced a receipt.
		assert.Equal(t, 0, set.calls)
	})

	t.Run("config errors are not retried", func(t *testing.T) {
		sig := &mockSigner{errs: []error{
			apperrors.Config("bad signer key"),
			apperrors.Config("bad signer key"),
		}}
		svc := newTestService(sig, &mockSettler{})

		_, err := svc.SubmitAndSettle(context.Background(), testParams())
		require.Error(t, err)
		assert.True(t, apperrors.IsConfigError(err))
		assert.Equal(t, 1, sig.calls)
	})

	t.Run("respects explicit max attempts", func(t *testing.T) {
		sig := &mockSigner{errs: []error{errors.New("a"), errors.New("b")}}
		svc := newTestService(sig, &mockSettler{})

		params := testParams()
		params.MaxAttempts = 1
		_, err := svc.SubmitAndSettle(context.Background(), params)
		require.Error(t, err)
		assert.Equal(t, 1, sig.calls)
	})

	t.Run("stops when context is cancelled between attempts", func(t *testing.T) {
		sig := &mockSigner{errs: []error{errors.New("down"), errors.New("down")}}
		svc := newTestService(sig, &mockSettler{})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		// First attempt runs, the backoff select observes cancellation.
		_, err := svc.SubmitAndSettle(ctx, testParams())
		require.Error(t, err)
		assert.LessOrEqual(t, sig.calls, 1)
	})
}
