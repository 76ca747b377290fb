package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type countingSweeper struct{ calls atomic.Int32 }

func (c *countingSweeper) SweepOverdue(context.Context) (int, error) {
	c.calls.Add(1)
	return 1, nil
}

type failingDrainer struct{ calls atomic.Int32 }

func (f *failingDrainer) Drain(context.Context) error {
	f.calls.Add(1)
	return errors.New("redis down")
}

func TestRunOnce(t *testing.T) {
	sw := &countingSweeper{}
	dr := &failingDrainer{}
	s, err := New(sw, dr, nil, Config{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := s.RunOnce(context.Background()); err == nil {
		t.Fatalf("expected drain error")
	}
	if sw.calls.Load() != 1 || dr.calls.Load() != 1 {
		t.Fatalf("unexpected calls: sweep=%d drain=%d", sw.calls.Load(), dr.calls.Load())
	}
}

func TestScheduledJobsRun(t *testing.T) {
	sw := &countingSweeper{}
	dr := &failingDrainer{}
	s, err := New(sw, dr, nil, Config{SweepInterval: time.Second, DrainInterval: time.Second})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	s.Start()
	deadline := time.Now().Add(3 * time.Second)
	for sw.calls.Load() == 0 || dr.calls.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("jobs did not run: sweep=%d drain=%d", sw.calls.Load(), dr.calls.Load())
		}
		time.Sleep(50 * time.Millisecond)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestEveryFloorsToOneSecond(t *testing.T) {
	if got := every(200 * time.Millisecond); got != "@every 1s" {
		t.Fatalf("every = %q", got)
	}
	if got := every(90 * time.Second); got != "@every 90s" {
		t.Fatalf("every = %q", got)
	}
}
