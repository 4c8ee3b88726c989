package scheduler

import (
	"context"
	"time"

	"github.com/ignatzorin/marketplace-backend/internal/logger"
)

// OrderSweeper описывает операции обработки просроченных дедлайнов.
type OrderSweeper interface {
	CancelExpiredAcceptances(ctx context.Context) (int, error)
	AutoReleaseExpiredReviews(ctx context.Context) (int, error)
}

// Sweeper периодически обходит заказы с истёкшими дедлайнами.
// Таймеров на заказ нет: один тикер на процесс, промахи цикла
// подбираются на следующем. Ошибки цикла не фатальны.
type Sweeper struct {
	orders   OrderSweeper
	interval time.Duration
}

// NewSweeper создаёт планировщик дедлайнов.
func NewSweeper(orders OrderSweeper, interval time.Duration) *Sweeper {
	return &Sweeper{
		orders:   orders,
		interval: interval,
	}
}

// Run крутит цикл обхода до отмены контекста.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	cancelled, err := s.orders.CancelExpiredAcceptances(ctx)
	if err != nil {
		if logger.Log != nil {
			logger.Log.Errorf("scheduler: обход окон принятия не удался: %v", err)
		}
	} else if cancelled > 0 && logger.Log != nil {
		logger.Log.WithField("count", cancelled).Info("scheduler: отменены непринятые в срок заказы")
	}

	released, err := s.orders.AutoReleaseExpiredReviews(ctx)
	if err != nil {
		if logger.Log != nil {
			logger.Log.Errorf("scheduler: обход сроков проверки не удался: %v", err)
		}
	} else if released > 0 && logger.Log != nil {
		logger.Log.WithField("count", released).Info("scheduler: автоматически завершены заказы")
	}
}
