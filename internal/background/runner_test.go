package background

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunner_ExecutesTasks(t *testing.T) {
	r := NewRunner(nil, 2)
	var ran int32
	done := make(chan struct{})
	r.Submit("t", func(context.Context) error {
		atomic.AddInt32(&ran, 1)
		close(done)
		return nil
	})
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("task never ran")
	}
	r.Close()
	if atomic.LoadInt32(&ran) != 1 {
		t.Fatalf("ran = %d", ran)
	}
}

func TestRunner_CloseWaitsForInFlight(t *testing.T) {
	r := NewRunner(nil, 1)
	var finished int32
	r.Submit("slow", func(context.Context) error {
		time.Sleep(50 * time.Millisecond)
		atomic.StoreInt32(&finished, 1)
		return nil
	})
	r.Close()
	if atomic.LoadInt32(&finished) != 1 {
		t.Fatalf("Close returned before in-flight task finished")
	}
}

func TestRunner_SubmitAfterCloseIsDropped(t *testing.T) {
	r := NewRunner(nil, 1)
	r.Close()
	// Must not panic or block.
	r.Submit("late", func(context.Context) error { return nil })
}

func TestRunner_TaskErrorsDoNotStopWorkers(t *testing.T) {
	r := NewRunner(nil, 1)
	defer r.Close()

	r.Submit("failing", func(context.Context) error { return errors.New("boom") })
	done := make(chan struct{})
	r.Submit("next", func(context.Context) error {
		close(done)
		return nil
	})
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("worker stopped after failing task")
	}
}
