package task

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
)

type countingEnqueuer struct {
	n atomic.Int64
}

func (e *countingEnqueuer) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	e.n.Add(1)
	return &asynq.TaskInfo{}, nil
}

func TestScheduler_EnqueuesAndStopsOnCancel(t *testing.T) {
	enq := &countingEnqueuer{}
	s := &Scheduler{enqueuer: enq, interval: 5 * time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.run(ctx)
	}()

	require.Eventually(t, func() bool { return enq.n.Load() > 0 }, time.Second, time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweep loop did not stop after cancellation")
	}
}

func TestScheduler_DisabledWithoutInterval(t *testing.T) {
	s := &Scheduler{enqueuer: &countingEnqueuer{}, interval: 0}

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.run(context.Background())
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disabled sweep loop should return immediately")
	}
}

func TestStartScheduler_StopsLoopOnShutdown(t *testing.T) {
	enq := &countingEnqueuer{}
	s := &Scheduler{enqueuer: enq, interval: time.Millisecond}

	lc := fxtest.NewLifecycle(t)
	StartScheduler(lc, s)
	lc.RequireStart()

	require.Eventually(t, func() bool { return enq.n.Load() > 0 }, time.Second, time.Millisecond)

	// RequireStop fails unless the OnStop hook saw the loop exit.
	lc.RequireStop()
}
