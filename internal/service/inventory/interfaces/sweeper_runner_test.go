package interfaces

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nexus-inventory/internal/service/inventory/infrastructure/storetest"
)

type countingProcessor struct {
	calls atomic.Int32
	err   error
}

func (p *countingProcessor) ProcessExpiredReservations(context.Context) (int64, error) {
	p.calls.Add(1)
	return 3, p.err
}

type stubLocker struct {
	lockErr  error
	locked   int
	unlocked int
}

func (l *stubLocker) Lock() error {
	if l.lockErr != nil {
		return l.lockErr
	}
	l.locked++
	return nil
}

func (l *stubLocker) Unlock() error {
	l.unlocked++
	return nil
}

func TestRunOnceHoldsLock(t *testing.T) {
	p := &countingProcessor{}
	l := &stubLocker{}
	r := NewSweeperRunner(p, l, time.Minute)

	assert.Equal(t, int64(3), r.RunOnce(context.Background()))
	assert.Equal(t, 1, l.locked)
	assert.Equal(t, 1, l.unlocked)
}

func TestRunOnceSkipsWithoutLock(t *testing.T) {
	p := &countingProcessor{}
	r := NewSweeperRunner(p, &stubLocker{lockErr: errors.New("held elsewhere")}, time.Minute)

	assert.Zero(t, r.RunOnce(context.Background()))
	assert.Zero(t, p.calls.Load())
}

func TestRunOnceReleasesLockOnFailure(t *testing.T) {
	l := &stubLocker{}
	r := NewSweeperRunner(&countingProcessor{err: errors.New("db down")}, l, time.Minute)

	assert.Zero(t, r.RunOnce(context.Background()))
	assert.Equal(t, 1, l.unlocked)
}

func TestRunTicksUntilCancelled(t *testing.T) {
	p := &countingProcessor{}
	r := NewSweeperRunner(p, nil, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return p.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("runner did not stop")
	}
}

func TestRunnerExpiresRealReservations(t *testing.T) {
	engine := newTestEngine(t)
	storetest.SeedProduct(t, engine.db, "p-1", 5)
	_, err := engine.reservations.CreateReservation(context.Background(), "order-1", "p-1", 1)
	require.NoError(t, err)

	clock := time.Now().UTC().Add(time.Hour)
	engine.sweeper.WithClock(func() time.Time { return clock })

	r := NewSweeperRunner(engine.sweeper, nil, time.Minute)
	assert.Equal(t, int64(1), r.RunOnce(context.Background()))
	assert.Zero(t, r.RunOnce(context.Background()))
}
