package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestRunner_ExecutesSubmittedTasks(t *testing.T) {
	r := NewRunner(2, 10)
	r.Start()
	defer r.Stop()

	var mu sync.Mutex
	done := make(chan struct{})
	ran := 0

	for i := 0; i < 5; i++ {
		err := r.Submit("task", func(ctx context.Context) error {
			mu.Lock()
			ran++
			if ran == 5 {
				close(done)
			}
			mu.Unlock()
			return nil
		})
		if err != nil {
			t.Fatalf("submit failed: %v", err)
		}
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("tasks did not run in time")
	}
}

func TestRunner_ReportsFailuresToHandler(t *testing.T) {
	r := NewRunner(1, 10)

	failures := make(chan error, 1)
	r.SetErrorHandler(func(name string, err error) {
		failures <- err
	})
	r.Start()
	defer r.Stop()

	taskErr := errors.New("dispatch failed")
	if err := r.Submit("bad-task", func(ctx context.Context) error {
		return taskErr
	}); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	select {
	case err := <-failures:
		if err != taskErr {
			t.Errorf("expected task error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("error handler was not called")
	}
}

func TestRunner_FullQueueRejectsSubmit(t *testing.T) {
	// No workers started, so nothing drains the queue.
	r := NewRunner(1, 1)

	noop := func(ctx context.Context) error { return nil }
	if err := r.Submit("first", noop); err != nil {
		t.Fatalf("first submit should fit, got %v", err)
	}
	if err := r.Submit("second", noop); err == nil {
		t.Fatal("expected rejection when the queue is full")
	}
}
