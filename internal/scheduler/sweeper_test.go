package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeOrderSweeper struct {
	mu           sync.Mutex
	cancelCalls  int
	releaseCalls int
	cancelErr    error
}

func (f *fakeOrderSweeper) CancelExpiredAcceptances(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelCalls++
	if f.cancelErr != nil {
		return 0, f.cancelErr
	}
	return 1, nil
}

func (f *fakeOrderSweeper) AutoReleaseExpiredReviews(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releaseCalls++
	return 0, nil
}

func (f *fakeOrderSweeper) calls() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelCalls, f.releaseCalls
}

func TestSweeper_SweepCallsBothPasses(t *testing.T) {
	orders := &fakeOrderSweeper{}
	sweeper := NewSweeper(orders, time.Minute)

	sweeper.sweep(context.Background())

	cancels, releases := orders.calls()
	assert.Equal(t, 1, cancels)
	assert.Equal(t, 1, releases)
}

func TestSweeper_SweepContinuesAfterError(t *testing.T) {
	orders := &fakeOrderSweeper{cancelErr: errors.New("db down")}
	sweeper := NewSweeper(orders, time.Minute)

	// Ошибка первого прохода не мешает второму
	sweeper.sweep(context.Background())

	cancels, releases := orders.calls()
	assert.Equal(t, 1, cancels)
	assert.Equal(t, 1, releases)
}

func TestSweeper_RunStopsOnContextCancel(t *testing.T) {
	orders := &fakeOrderSweeper{}
	sweeper := NewSweeper(orders, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after context cancel")
	}

	cancels, _ := orders.calls()
	assert.GreaterOrEqual(t, cancels, 1)
}
