package application

import (
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"nexus-inventory/internal/service/inventory/domain"
)

func (s *EngineTestSuite) TestSweepIsReentrant() {
	s.seed("p-1", 10)
	_, err := s.reservations.CreateReservation(s.ctx, "order-1", "p-1", 1)
	s.Require().NoError(err)
	_, err = s.reservations.CreateReservation(s.ctx, "order-2", "p-1", 1)
	s.Require().NoError(err)

	n, err := s.sweeper.ProcessExpiredReservations(s.ctx)
	s.Require().NoError(err)
	s.Zero(n, "nothing has expired yet")

	s.clock.Advance(testTTL + time.Second)
	n, err = s.sweeper.ProcessExpiredReservations(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(2), n)

	n, err = s.sweeper.ProcessExpiredReservations(s.ctx)
	s.Require().NoError(err)
	s.Zero(n)

	s.Equal(2.0, testutil.ToFloat64(s.metrics.ExpiredReservations))
	s.Equal(int64(10), s.available("p-1"))
}

// TTL 30 分钟，31 分钟后清理，之后迟到的支付成功确认会失败。
func (s *EngineTestSuite) TestExpiredReservationCannotBeConfirmed() {
	s.seed("p-1", 10)
	_, err := s.reservations.CreateReservation(s.ctx, "order-1", "p-1", 3)
	s.Require().NoError(err)

	s.clock.Advance(testTTL + time.Minute)
	n, err := s.sweeper.ProcessExpiredReservations(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), n)

	all, err := s.repo.FindByOrder(s.ctx, "order-1")
	s.Require().NoError(err)
	s.Equal(domain.StatusExpired, all[0].Status)

	_, err = s.reservations.ConfirmReservations(s.ctx, "order-1")
	s.True(errors.Is(err, domain.ErrInvalidReservationState))
}

func (s *EngineTestSuite) TestSweepLeavesTerminalReservationsAlone() {
	s.seed("p-1", 10)
	_, err := s.reservations.CreateReservation(s.ctx, "order-1", "p-1", 1)
	s.Require().NoError(err)
	_, err = s.reservations.CreateReservation(s.ctx, "order-2", "p-1", 1)
	s.Require().NoError(err)
	_, err = s.reservations.ConfirmReservations(s.ctx, "order-1")
	s.Require().NoError(err)
	_, err = s.reservations.CancelReservations(s.ctx, "order-2")
	s.Require().NoError(err)

	s.clock.Advance(2 * testTTL)
	n, err := s.sweeper.ProcessExpiredReservations(s.ctx)
	s.Require().NoError(err)
	s.Zero(n)
}
