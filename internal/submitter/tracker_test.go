package submitter

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/supesu/trading-core/internal/infrastructure/cache"
	"github.com/supesu/trading-core/pkg/domain"
	"github.com/supesu/trading-core/pkg/logger"
)

type scriptedStatusReader struct {
	mu       sync.Mutex
	calls    int
	statuses []*domain.SignatureStatus // consumed per poll; last repeats
}

func (s *scriptedStatusReader) GetSignatureStatus(ctx context.Context, signature string) (*domain.SignatureStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.calls
	s.calls++
	if idx >= len(s.statuses) {
		idx = len(s.statuses) - 1
	}
	return s.statuses[idx], nil
}

func (s *scriptedStatusReader) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func newTestTracker(t *testing.T, reader StatusReader, timeout time.Duration) (*ConfirmationTracker, *cache.StateCache) {
	t.Helper()
	log := logger.New("error", "test")
	stateCache := cache.New(log, cache.Options{SweepInterval: time.Hour})
	tracker := NewConfirmationTracker(reader, stateCache, nil, nil,
		timeout, 5*time.Millisecond, time.Hour, log)
	return tracker, stateCache
}

func TestAwaitConfirms(t *testing.T) {
	reader := &scriptedStatusReader{statuses: []*domain.SignatureStatus{
		{},
		{},
		{Confirmed: true, Slot: 1234},
	}}
	tracker, _ := newTestTracker(t, reader, time.Second)

	result, err := tracker.Await(context.Background(), "sig-1")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "sig-1", result.Signature)
	assert.Equal(t, uint64(1234), result.Slot)
	assert.Greater(t, result.Confirmation, time.Duration(0))
}

func TestAwaitIsIdempotentForTerminalOutcomes(t *testing.T) {
	reader := &scriptedStatusReader{statuses: []*domain.SignatureStatus{
		{Finalized: true, Slot: 77},
	}}
	tracker, _ := newTestTracker(t, reader, time.Second)

	first, err := tracker.Await(context.Background(), "sig-1")
	require.NoError(t, err)
	polls := reader.callCount()

	second, err := tracker.Await(context.Background(), "sig-1")
	require.NoError(t, err)
	assert.Equal(t, first.Slot, second.Slot)
	assert.Equal(t, polls, reader.callCount(), "a cached terminal outcome must not poll the chain")
}

func TestAwaitOnChainFailure(t *testing.T) {
	reader := &scriptedStatusReader{statuses: []*domain.SignatureStatus{
		{Err: "InstructionError: custom program error 0x1"},
	}}
	tracker, _ := newTestTracker(t, reader, time.Second)

	_, err := tracker.Await(context.Background(), "sig-1")
	require.Error(t, err)
	assert.Equal(t, domain.ErrKindOnChain, domain.KindOf(err))

	// The on-chain failure is itself terminal and served from cache.
	polls := reader.callCount()
	_, err = tracker.Await(context.Background(), "sig-1")
	require.Error(t, err)
	assert.Equal(t, domain.ErrKindOnChain, domain.KindOf(err))
	assert.Equal(t, polls, reader.callCount())
}

func TestAwaitTimesOut(t *testing.T) {
	reader := &scriptedStatusReader{statuses: []*domain.SignatureStatus{{}}}
	tracker, stateCache := newTestTracker(t, reader, 30*time.Millisecond)

	_, err := tracker.Await(context.Background(), "sig-1")
	require.Error(t, err)
	assert.Equal(t, domain.ErrKindConfirmationTimeout, domain.KindOf(err))

	// Timeouts are not terminal; nothing may be cached for the signature.
	_, ok := stateCache.Get(context.Background(), cache.SignatureKey("sig-1"))
	assert.False(t, ok)
}

func TestAwaitEmptySignature(t *testing.T) {
	tracker, _ := newTestTracker(t, &scriptedStatusReader{statuses: []*domain.SignatureStatus{{}}}, time.Second)

	_, err := tracker.Await(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, domain.ErrKindSubmission, domain.KindOf(err))
}

func TestAwaitCanceledContext(t *testing.T) {
	reader := &scriptedStatusReader{statuses: []*domain.SignatureStatus{{}}}
	tracker, _ := newTestTracker(t, reader, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tracker.Await(ctx, "sig-1")
	require.Error(t, err)
	assert.Equal(t, domain.ErrKindConfirmationTimeout, domain.KindOf(err))
}
