package application

import (
	"github.com/pkg/errors"
	"nexus-inventory/internal/service/inventory/domain"
)

func (s *EngineTestSuite) TestAvailabilityReflectsActiveReservationsOnly() {
	s.seed("p-1", 10)

	_, err := s.reservations.CreateReservation(s.ctx, "order-1", "p-1", 3)
	s.Require().NoError(err)
	_, err = s.reservations.CreateReservation(s.ctx, "order-2", "p-1", 2)
	s.Require().NoError(err)

	view, err := s.availability.GetAvailability(s.ctx, "p-1")
	s.Require().NoError(err)
	s.Equal(domain.Availability{ProductID: "p-1", ActualStock: 10, ReservedStock: 5, AvailableStock: 5}, view)

	_, err = s.reservations.CancelReservations(s.ctx, "order-2")
	s.Require().NoError(err)
	s.Equal(int64(7), s.available("p-1"))

	// 确认后 ACTIVE 合计不再包含它，扣减后实际库存下降
	_, err = s.reservations.ConfirmReservations(s.ctx, "order-1")
	s.Require().NoError(err)
	_, err = s.fulfillment.DecrementConfirmedStock(s.ctx, "order-1")
	s.Require().NoError(err)

	view, err = s.availability.GetAvailability(s.ctx, "p-1")
	s.Require().NoError(err)
	s.Equal(int64(7), view.ActualStock)
	s.Equal(int64(0), view.ReservedStock)
	s.Equal(int64(7), view.AvailableStock)
}

func (s *EngineTestSuite) TestAvailabilityUnknownProduct() {
	_, err := s.availability.GetAvailability(s.ctx, "missing")
	s.True(errors.Is(err, domain.ErrProductNotFound))
	s.True(errors.Is(err, domain.ErrNotFound))
}

// 没有扣减发生时，预占增加只会让可售库存不增。
func (s *EngineTestSuite) TestAvailabilityMonotonicWithoutDecrement() {
	s.seed("p-1", 20)
	prev := s.available("p-1")
	for i, qty := range []int64{1, 4, 2, 6} {
		_, err := s.reservations.CreateReservation(s.ctx, orderID(i), "p-1", qty)
		s.Require().NoError(err)
		cur := s.available("p-1")
		s.LessOrEqual(cur, prev)
		prev = cur
	}
	s.Equal(int64(7), prev)
}
