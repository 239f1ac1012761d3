package parallel

import (
	"context"
	"errors"
	"runtime"
	"sync/atomic"
	"testing"
)

func TestPoolWorkers(t *testing.T) {
	tests := []struct {
		n, want int
	}{
		{4, 4},
		{0, runtime.GOMAXPROCS(0)},
		{-3, runtime.GOMAXPROCS(0)},
	}
	for _, tt := range tests {
		p := NewPool(tt.n)
		if got := p.Workers(); got != tt.want {
			t.Errorf("NewPool(%d).Workers() = %d, want %d", tt.n, got, tt.want)
		}
		p.Close()
	}
}

func TestPoolRun(t *testing.T) {
	p := NewPool(3)
	defer p.Close()

	var count atomic.Int64
	boom := errors.New("boom")
	jobs := make([]Job, 50)
	for i := range jobs {
		jobs[i] = func(context.Context) error {
			count.Add(1)
			if i == 7 {
				return boom
			}
			return nil
		}
	}
	errs := p.Run(context.Background(), jobs)
	if count.Load() != 50 {
		t.Errorf("ran %d jobs, want 50", count.Load())
	}
	for i, err := range errs {
		if (i == 7) != errors.Is(err, boom) {
			t.Errorf("job %d error = %v", i, err)
		}
	}
}

func TestPoolRunCanceled(t *testing.T) {
	p := NewPool(2)
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var count atomic.Int64
	jobs := []Job{
		func(context.Context) error { count.Add(1); return nil },
		func(context.Context) error { count.Add(1); return nil },
	}
	for i, err := range p.Run(ctx, jobs) {
		if !errors.Is(err, context.Canceled) {
			t.Errorf("job %d error = %v, want context.Canceled", i, err)
		}
	}
	if count.Load() != 0 {
		t.Errorf("%d jobs ran after cancel", count.Load())
	}
}

func TestPoolClosed(t *testing.T) {
	p := NewPool(1)
	p.Close()
	p.Close()
	errs := p.Run(context.Background(), []Job{func(context.Context) error { return nil }})
	if !errors.Is(errs[0], ErrClosed) {
		t.Errorf("Run on closed pool = %v, want ErrClosed", errs[0])
	}
}
