package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/vaultline/aa-relayer-go/internal/errors"
	"github.com/vaultline/aa-relayer-go/internal/model"
	"github.com/vaultline/aa-relayer-go/internal/redis"
	"github.com/vaultline/aa-relayer-go/internal/service"
	"github.com/vaultline/aa-relayer-go/internal/signer"
)

type mockHoldSource struct {
	holds       []model.Hold
	transitions [][3]string
	updateOK    bool
}

func (m *mockHoldSource) FindActive(ctx context.Context, limit int) ([]model.Hold, error) {
	if limit < len(m.holds) {
		return m.holds[:limit], nil
	}
	return m.holds, nil
}

func (m *mockHoldSource) UpdateStatus(ctx context.Context, approvalID string, from, to model.HoldStatus) (bool, error) {
	m.transitions = append(m.transitions, [3]string{approvalID, string(from), string(to)})
	return m.updateOK, nil
}

type mockLockStore struct {
	held     map[string]bool
	acquired []string
	released []string
}

func newMockLockStore() *mockLockStore {
	return &mockLockStore{held: make(map[string]bool)}
}

func (m *mockLockStore) Acquire(ctx context.Context, key string, ttl time.Duration) (*redis.Lock, error) {
	if m.held[key] {
		return nil, nil
	}
	m.acquired = append(m.acquired, key)
	return &redis.Lock{Key: key, Token: "tok-" + key}, nil
}

func (m *mockLockStore) Release(ctx context.Context, lock *redis.Lock) (bool, error) {
	m.released = append(m.released, lock.Key)
	return true, nil
}

type mockRelayer struct {
	failFor map[string]error
	calls   []string
}

func (m *mockRelayer) SubmitAndSettle(ctx context.Context, params service.SubmitAndSettleParams) (*service.SettleResult, error) {
	m.calls = append(m.calls, params.ApprovalID)
	if err := m.failFor[params.ApprovalID]; err != nil {
		return nil, err
	}
	return &service.SettleResult{TxHash: "0xabc", GasUsedWei: "21000", EffectiveGasPriceWei: "1"}, nil
}

func testHold(approvalID string) model.Hold {
	return model.Hold{
		ApprovalID: approvalID,
		OrgID:      "org-1",
		Amount:     decimal.NewFromInt(100),
		ParamsHash: "0xhash-" + approvalID,
		Status:     model.HoldStatusActive,
		ExpiresAt:  time.Now().Add(time.Hour),
	}
}

func passthroughBuildTx(hold model.Hold) (signer.TxRequest, error) {
	return signer.TxRequest{}, nil
}

func newTestWorker(holds *mockHoldSource, locks *mockLockStore, relayer *mockRelayer, buildTx BuildTxRequest) *RelayerWorker {
	if buildTx == nil {
		buildTx = passthroughBuildTx
	}
	return NewRelayerWorker(holds, locks, relayer, buildTx, time.Second, 10, time.Minute, 3)
}

func TestRelayerWorkerPoll(t *testing.T) {
	t.Run("settles each active hold and marks it captured", func(t *testing.T) {
		holds := &mockHoldSource{holds: []model.Hold{testHold("a"), testHold("b")}, updateOK: true}
		locks := newMockLockStore()
		relayer := &mockRelayer{}
		w := newTestWorker(holds, locks, relayer, nil)

		w.poll()

		assert.Equal(t, []string{"a", "b"}, relayer.calls)
		require.Len(t, holds.transitions, 2)
		assert.Equal(t, [3]string{"a", "active", "captured"}, holds.transitions[0])
		assert.Equal(t, locks.acquired, locks.released)
	})

	t.Run("skips holds another worker has locked", func(t *testing.T) {
		holds := &mockHoldSource{holds: []model.Hold{testHold("a"), testHold("b")}, updateOK: true}
		locks := newMockLockStore()
		locks.held[redis.HoldLockKey("a")] = true
		relayer := &mockRelayer{}
		w := newTestWorker(holds, locks, relayer, nil)

		w.poll()

		assert.Equal(t, []string{"b"}, relayer.calls)
		// The skipped hold's lock is never touched.
		assert.NotContains(t, locks.released, redis.HoldLockKey("a"))
	})

	t.Run("one hold's failure never blocks the batch", func(t *testing.T) {
		holds := &mockHoldSource{holds: []model.Hold{testHold("a"), testHold("b"), testHold("c")}, updateOK: true}
		locks := newMockLockStore()
		relayer := &mockRelayer{failFor: map[string]error{"b": errors.New("bundler down")}}
		w := newTestWorker(holds, locks, relayer, nil)

		w.poll()

		assert.Equal(t, []string{"a", "b", "c"}, relayer.calls)
		// Failed hold stays active.
		require.Len(t, holds.transitions, 2)
		assert.Equal(t, "a", holds.transitions[0][0])
		assert.Equal(t, "c", holds.transitions[1][0])
	})

	t.Run("exhausted settlement leaves the hold active for a future pass", func(t *testing.T) {
		holds := &mockHoldSource{holds: []model.Hold{testHold("a")}, updateOK: true}
		locks := newMockLockStore()
		relayer := &mockRelayer{failFor: map[string]error{
			"a": apperrors.SettlementFailed("a", errors.New("endpoint rejected")),
		}}
		w := newTestWorker(holds, locks, relayer, nil)

		w.poll()

		assert.Empty(t, holds.transitions)
	})

	t.Run("configuration error leaves the hold claimable", func(t *testing.T) {
		holds := &mockHoldSource{holds: []model.Hold{testHold("a")}, updateOK: true}
		locks := newMockLockStore()
		relayer := &mockRelayer{failFor: map[string]error{
			"a": apperrors.NotImplemented("custody signer"),
		}}
		w := newTestWorker(holds, locks, relayer, nil)

		w.poll()

		assert.Empty(t, holds.transitions)
	})

	t.Run("releases the lock even when settlement fails", func(t *testing.T) {
		holds := &mockHoldSource{holds: []model.Hold{testHold("a")}, updateOK: true}
		locks := newMockLockStore()
		relayer := &mockRelayer{failFor: map[string]error{"a": errors.New("down")}}
		w := newTestWorker(holds, locks, relayer, nil)

		w.poll()

		assert.Equal(t, []string{redis.HoldLockKey("a")}, locks.released)
	})

	t.Run("build failure skips settlement entirely", func(t *testing.T) {
		holds := &mockHoldSource{holds: []model.Hold{testHold("a")}, updateOK: true}
		locks := newMockLockStore()
		relayer := &mockRelayer{}
		w := newTestWorker(holds, locks, relayer, func(model.Hold) (signer.TxRequest, error) {
			return signer.TxRequest{}, errors.New("no paymaster for org")
		})

		w.poll()

		assert.Empty(t, relayer.calls)
		assert.Empty(t, holds.transitions)
		// Lock is still released.
		assert.Len(t, locks.released, 1)
	})
}

func TestRelayerWorkerLifecycle(t *testing.T) {
	t.Run("stop terminates the loop", func(t *testing.T) {
		holds := &mockHoldSource{updateOK: true}
		w := newTestWorker(holds, newMockLockStore(), &mockRelayer{}, nil)

		w.Start()
		time.Sleep(10 * time.Millisecond)
		w.Stop()

		select {
		case <-w.done:
		default:
			t.Fatal("done channel should be closed after Stop")
		}
	})
}
