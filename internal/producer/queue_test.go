package producer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func drain[T any](t *testing.T, q *Queue[T]) []T {
	t.Helper()
	var out []T
	for q.Len() > 0 {
		v, err := q.Pop(context.Background())
		if err != nil {
			t.Fatalf("Pop() = %v", err)
		}
		out = append(out, v)
	}
	return out
}

func TestQueue_UnboundedFIFO(t *testing.T) {
	q := NewQueue[int](0)
	for i := 1; i <= 100; i++ {
		if err := q.Push(i); err != nil {
			t.Fatalf("Push(%d) = %v", i, err)
		}
	}
	if q.Len() != 100 {
		t.Fatalf("Len() = %d, want 100", q.Len())
	}
	got := drain(t, q)
	for i, v := range got {
		if v != i+1 {
			t.Fatalf("item %d = %d, want %d", i, v, i+1)
		}
	}
	if q.Dropped() != 0 {
		t.Errorf("Dropped() = %d, want 0 for unbounded queue", q.Dropped())
	}
}

func TestQueue_DropOldest(t *testing.T) {
	q := NewQueue[int](3)
	for i := 1; i <= 5; i++ {
		q.Push(i)
	}
	if q.Dropped() != 2 {
		t.Errorf("Dropped() = %d, want 2", q.Dropped())
	}
	if diff := cmp.Diff([]int{3, 4, 5}, drain(t, q)); diff != "" {
		t.Errorf("queue contents mismatch (-want +got):\n%s", diff)
	}
	if q.Cap() != 3 {
		t.Errorf("Cap() = %d, want 3", q.Cap())
	}
}

func TestQueue_TakeNewest(t *testing.T) {
	q := NewQueue[string](0)

	if _, ok := q.TakeNewest(); ok {
		t.Fatal("TakeNewest() on empty queue should report no data")
	}

	q.Push("a")
	q.Push("b")
	q.Push("c")

	v, ok := q.TakeNewest()
	if !ok || v != "c" {
		t.Errorf("TakeNewest() = %q, %v; want c, true", v, ok)
	}
	// Everything older is consumed with it.
	if q.Len() != 0 {
		t.Errorf("Len() after TakeNewest = %d, want 0", q.Len())
	}
	if _, ok := q.TakeNewest(); ok {
		t.Error("second TakeNewest() without a push should report no data")
	}

	q.Push("d")
	if v, ok := q.TakeNewest(); !ok || v != "d" {
		t.Errorf("TakeNewest() = %q, %v; want d, true", v, ok)
	}
}

func TestQueue_PopBlocksUntilPush(t *testing.T) {
	q := NewQueue[int](0)
	got := make(chan int, 1)
	go func() {
		v, err := q.Pop(context.Background())
		if err == nil {
			got <- v
		}
	}()

	select {
	case <-got:
		t.Fatal("Pop returned before anything was pushed")
	case <-time.After(20 * time.Millisecond):
	}

	q.Push(42)
	select {
	case v := <-got:
		if v != 42 {
			t.Errorf("Pop() = %d, want 42", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Pop did not return after Push")
	}
}

func TestQueue_PopHonoursContext(t *testing.T) {
	q := NewQueue[int](0)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := q.Pop(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Pop() = %v, want context.DeadlineExceeded", err)
	}
}

func TestQueue_CloseUnblocksPop(t *testing.T) {
	q := NewQueue[int](0)
	errCh := make(chan error, 1)
	go func() {
		_, err := q.Pop(context.Background())
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	q.Close()
	q.Close() // idempotent

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrQueueClosed) {
			t.Errorf("Pop() = %v, want ErrQueueClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Pop did not return after Close")
	}

	if err := q.Push(1); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Push() after Close = %v, want ErrQueueClosed", err)
	}
}

func TestQueue_CloseDrainsRemaining(t *testing.T) {
	q := NewQueue[int](0)
	q.Push(1)
	q.Push(2)
	q.Close()

	for _, want := range []int{1, 2} {
		v, err := q.Pop(context.Background())
		if err != nil || v != want {
			t.Fatalf("Pop() = %d, %v; want %d, nil", v, err, want)
		}
	}
	if _, err := q.Pop(context.Background()); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Pop() on drained closed queue = %v, want ErrQueueClosed", err)
	}
}

func TestQueue_ConcurrentProducerConsumer(t *testing.T) {
	const n = 1000
	q := NewQueue[int](0)

	go func() {
		for i := 1; i <= n; i++ {
			q.Push(i)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for want := 1; want <= n; want++ {
		v, err := q.Pop(ctx)
		if err != nil {
			t.Fatalf("Pop() = %v after %d items", err, want-1)
		}
		if v != want {
			t.Fatalf("Pop() = %d, want %d", v, want)
		}
	}
}
