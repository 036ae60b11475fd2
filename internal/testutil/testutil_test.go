package testutil

import (
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

func TestAssertNoError(t *testing.T) {
	t.Parallel()

	// Verify nil error doesn't cause issues
	AssertNoError(t, nil)
}

func TestAssertError(t *testing.T) {
	t.Parallel()

	AssertError(t, errors.New("test error"))
}

func TestAssertErrorIs(t *testing.T) {
	t.Parallel()

	base := errors.New("base")
	AssertErrorIs(t, fmt.Errorf("wrapped: %w", base), base)
}

func TestPoll(t *testing.T) {
	t.Parallel()

	var n atomic.Int32
	ok := Poll(time.Second, func() bool { return n.Add(1) >= 3 })
	if !ok {
		t.Error("Poll should succeed once the condition holds")
	}

	if Poll(10*time.Millisecond, func() bool { return false }) {
		t.Error("Poll should time out on a condition that never holds")
	}
}

func TestEventually(t *testing.T) {
	t.Parallel()

	done := make(chan struct{})
	go func() {
		time.Sleep(5 * time.Millisecond)
		close(done)
	}()
	Eventually(t, time.Second, func() bool {
		select {
		case <-done:
			return true
		default:
			return false
		}
	}, "done channel closed")
}
