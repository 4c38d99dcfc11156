package application

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"nexus-inventory/internal/service/inventory/domain"
)

func (s *EngineTestSuite) TestDecrementConfirmedStock() {
	s.seed("p-1", 10)
	s.seed("p-2", 4)
	_, err := s.reservations.CreateBulkReservations(s.ctx, "order-1", []domain.OrderLine{
		{ProductID: "p-2", Quantity: 1},
		{ProductID: "p-1", Quantity: 2},
		{ProductID: "p-1", Quantity: 3},
	})
	s.Require().NoError(err)
	_, err = s.reservations.ConfirmReservations(s.ctx, "order-1")
	s.Require().NoError(err)

	summary, err := s.fulfillment.DecrementConfirmedStock(s.ctx, "order-1")
	s.Require().NoError(err)
	s.Equal("order-1", summary.OrderID)
	s.Equal([]DecrementedItem{{ProductID: "p-1", Quantity: 5}, {ProductID: "p-2", Quantity: 1}}, summary.Items)
	s.Equal(int64(6), summary.TotalUnits)

	s.Equal(int64(5), s.stock("p-1"))
	s.Equal(int64(3), s.stock("p-2"))
	s.Equal(6.0, testutil.ToFloat64(s.metrics.StockDecremented))

	all, err := s.repo.FindByOrder(s.ctx, "order-1")
	s.Require().NoError(err)
	for _, r := range all {
		s.Equal(domain.StatusConfirmed, r.Status)
		s.NotNil(r.CommittedAt)
	}
}

func (s *EngineTestSuite) TestDecrementTwiceFailsTheSecondTime() {
	s.seed("p-1", 10)
	_, err := s.reservations.CreateReservation(s.ctx, "order-1", "p-1", 4)
	s.Require().NoError(err)
	_, err = s.reservations.ConfirmReservations(s.ctx, "order-1")
	s.Require().NoError(err)

	_, err = s.fulfillment.DecrementConfirmedStock(s.ctx, "order-1")
	s.Require().NoError(err)

	_, err = s.fulfillment.DecrementConfirmedStock(s.ctx, "order-1")
	s.True(errors.Is(err, domain.ErrNothingToDecrement))
	s.True(errors.Is(err, domain.ErrIllegalState))
	s.Equal(int64(6), s.stock("p-1"))
}

func (s *EngineTestSuite) TestDecrementWithoutConfirmation() {
	s.seed("p-1", 10)
	_, err := s.reservations.CreateReservation(s.ctx, "order-1", "p-1", 4)
	s.Require().NoError(err)

	_, err = s.fulfillment.DecrementConfirmedStock(s.ctx, "order-1")
	s.True(errors.Is(err, domain.ErrNothingToDecrement))
	s.Equal(int64(10), s.stock("p-1"))
}

// 库存在确认之后被外部修改到不足，扣减必须整体失败并上报，不能把库存扣成负数。
func (s *EngineTestSuite) TestDecrementInvariantViolationRollsBack() {
	s.seed("p-1", 10)
	s.seed("p-2", 10)
	_, err := s.reservations.CreateBulkReservations(s.ctx, "order-1", []domain.OrderLine{
		{ProductID: "p-1", Quantity: 2},
		{ProductID: "p-2", Quantity: 5},
	})
	s.Require().NoError(err)
	_, err = s.reservations.ConfirmReservations(s.ctx, "order-1")
	s.Require().NoError(err)

	s.Require().NoError(s.db.Exec("UPDATE products SET stock = 1 WHERE id = ?", "p-2").Error)

	_, err = s.fulfillment.DecrementConfirmedStock(s.ctx, "order-1")
	s.True(errors.Is(err, domain.ErrInvariantViolation))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.InvariantViolations))

	// p-1 的扣减随事务一起回滚
	s.Equal(int64(10), s.stock("p-1"))
	s.Equal(int64(1), s.stock("p-2"))
	uncommitted, err := s.repo.FindUncommittedConfirmed(s.ctx, "order-1")
	s.Require().NoError(err)
	s.Len(uncommitted, 2)
}

func (s *EngineTestSuite) TestIsOrderFulfilled() {
	s.seed("p-1", 10)
	_, err := s.reservations.CreateReservation(s.ctx, "order-1", "p-1", 2)
	s.Require().NoError(err)
	_, err = s.reservations.CreateReservation(s.ctx, "order-2", "p-1", 2)
	s.Require().NoError(err)

	done, err := s.fulfillment.IsOrderFulfilled(s.ctx, "order-1")
	s.Require().NoError(err)
	s.False(done)

	_, err = s.reservations.ConfirmReservations(s.ctx, "order-1")
	s.Require().NoError(err)
	done, err = s.fulfillment.IsOrderFulfilled(s.ctx, "order-1")
	s.Require().NoError(err)
	s.False(done, "confirmed but not decremented")

	_, err = s.fulfillment.DecrementConfirmedStock(s.ctx, "order-1")
	s.Require().NoError(err)
	done, err = s.fulfillment.IsOrderFulfilled(s.ctx, "order-1")
	s.Require().NoError(err)
	s.True(done)

	_, err = s.reservations.CancelReservations(s.ctx, "order-2")
	s.Require().NoError(err)
	done, err = s.fulfillment.IsOrderFulfilled(s.ctx, "order-2")
	s.Require().NoError(err)
	s.False(done)

	done, err = s.fulfillment.IsOrderFulfilled(s.ctx, "order-unknown")
	s.Require().NoError(err)
	s.False(done)
}
