package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func TestNewReservation(t *testing.T) {
	r, err := NewReservation("order-1", "p-1", 3, t0, 30*time.Minute)
	require.NoError(t, err)
	assert.NotEmpty(t, r.ID)
	assert.Equal(t, StatusActive, r.Status)
	assert.Equal(t, t0.Add(30*time.Minute), r.ExpiresAt)
	assert.Nil(t, r.CommittedAt)

	_, err = NewReservation("order-1", "p-1", 0, t0, time.Minute)
	assert.True(t, errors.Is(err, ErrInvalidQuantity))

	_, err = NewReservation("order-1", "p-1", -2, t0, time.Minute)
	assert.True(t, errors.Is(err, ErrInvalidQuantity))

	_, err = NewReservation("", "p-1", 1, t0, time.Minute)
	assert.True(t, errors.Is(err, ErrInvalidLine))
}

func TestReservationLifecycle(t *testing.T) {
	r, err := NewReservation("order-1", "p-1", 1, t0, time.Minute)
	require.NoError(t, err)

	require.NoError(t, r.Confirm(t0.Add(time.Second)))
	assert.Equal(t, StatusConfirmed, r.Status)
	assert.True(t, r.Status.IsTerminal())

	err = r.Confirm(t0)
	assert.True(t, errors.Is(err, ErrInvalidReservationState))
	assert.True(t, errors.Is(err, ErrIllegalState))
	assert.False(t, r.Cancel(t0), "confirmed reservation must not be cancelled")

	require.NoError(t, r.MarkCommitted(t0))
	assert.NotNil(t, r.CommittedAt)
	assert.True(t, errors.Is(r.MarkCommitted(t0), ErrIllegalState))
}

func TestCancelIsNoOpOnTerminal(t *testing.T) {
	r, err := NewReservation("order-1", "p-1", 1, t0, time.Minute)
	require.NoError(t, err)

	assert.True(t, r.Cancel(t0))
	assert.Equal(t, StatusCancelled, r.Status)
	assert.False(t, r.Cancel(t0))
	assert.Equal(t, StatusCancelled, r.Status)

	assert.True(t, errors.Is(r.MarkCommitted(t0), ErrIllegalState))
}

func TestNewAvailabilityClampsAtZero(t *testing.T) {
	a := NewAvailability("p-1", 5, 8)
	assert.Equal(t, int64(0), a.AvailableStock)
	assert.Equal(t, int64(8), a.ReservedStock)

	a = NewAvailability("p-1", 5, 2)
	assert.Equal(t, int64(3), a.AvailableStock)
}

func TestInsufficientStockErrorMatchesSentinel(t *testing.T) {
	var err error = &InsufficientStockError{ProductID: "p-1", Requested: 3, Available: 2}
	assert.True(t, errors.Is(err, ErrInsufficientStock))
	assert.Contains(t, err.Error(), "requested 3, available 2")

	var target *InsufficientStockError
	require.True(t, errors.As(err, &target))
	assert.Equal(t, int64(2), target.Available)
}

func TestNotFoundHierarchy(t *testing.T) {
	assert.True(t, errors.Is(ErrReservationNotFound, ErrNotFound))
	assert.True(t, errors.Is(ErrProductNotFound, ErrNotFound))
	assert.True(t, errors.Is(ErrNothingToDecrement, ErrIllegalState))
	assert.False(t, errors.Is(ErrInvariantViolation, ErrIllegalState))
}
