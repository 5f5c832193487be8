package future

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

// Many waiters on one Future all observe the single published value.
func TestFuture_ManyWaiters(t *testing.T) {
	t.Parallel()

	f := New[int]()
	var g errgroup.Group
	var seen atomic.Int64
	for i := 0; i < 32; i++ {
		g.Go(func() error {
			v, err := f.Await(context.Background())
			if err != nil {
				return err
			}
			seen.Add(int64(v))
			return nil
		})
	}

	f.Resolve(2, nil)
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if got := seen.Load(); got != 64 {
		t.Fatalf("want 64, got %d", got)
	}
}

// Only the first Resolve counts, error included.
func TestFuture_ResolveOnce(t *testing.T) {
	t.Parallel()

	f := New[string]()
	f.Resolve("first", nil)
	f.Resolve("second", errors.New("ignored"))

	v, err := f.Await(context.Background())
	if err != nil || v != "first" {
		t.Fatalf("want first/nil, got %q/%v", v, err)
	}
}

// A cancelled waiter returns ctx.Err() and the Future still resolves later.
func TestFuture_AwaitCancel(t *testing.T) {
	t.Parallel()

	f := New[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := f.Await(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want deadline exceeded, got %v", err)
	}

	f.Resolve(7, nil)
	if v, err := f.Await(context.Background()); err != nil || v != 7 {
		t.Fatalf("want 7/nil, got %d/%v", v, err)
	}
}
