package retry

import (
	"context"
	"errors"
	"testing"
)

func TestNewExecutor(t *testing.T) {
	t.Run("negative budget rejected", func(t *testing.T) {
		_, err := NewExecutor(-1)
		if !errors.Is(err, ErrInvalidMaxRetries) {
			t.Fatalf("expected ErrInvalidMaxRetries, got %v", err)
		}
	})

	t.Run("zero budget allowed", func(t *testing.T) {
		e, err := NewExecutor(0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if e.MaxRetries() != 0 {
			t.Fatalf("expected budget 0, got %d", e.MaxRetries())
		}
	})
}

func TestDo(t *testing.T) {
	ctx := context.Background()

	t.Run("succeeds on first attempt", func(t *testing.T) {
		e, _ := NewExecutor(3)
		attempts := 0
		ok, err := e.Do(ctx, func(context.Context) (bool, error) {
			attempts++
			return true, nil
		})
		if err != nil || !ok {
			t.Fatalf("expected success, got ok=%v err=%v", ok, err)
		}
		if attempts != 1 {
			t.Fatalf("expected 1 attempt, got %d", attempts)
		}
	})

	t.Run("succeeds on last attempt", func(t *testing.T) {
		e, _ := NewExecutor(3)
		attempts := 0
		ok, err := e.Do(ctx, func(context.Context) (bool, error) {
			attempts++
			return attempts == 3, nil
		})
		if err != nil || !ok {
			t.Fatalf("expected success, got ok=%v err=%v", ok, err)
		}
		if attempts != 3 {
			t.Fatalf("expected 3 attempts, got %d", attempts)
		}
	})

	t.Run("exhaustion is not an error", func(t *testing.T) {
		e, _ := NewExecutor(2)
		attempts := 0
		ok, err := e.Do(ctx, func(context.Context) (bool, error) {
			attempts++
			return false, nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ok {
			t.Fatal("expected exhaustion, got success")
		}
		if attempts != 2 {
			t.Fatalf("expected 2 attempts, got %d", attempts)
		}
	})

	t.Run("zero budget never runs the op", func(t *testing.T) {
		e, _ := NewExecutor(0)
		ran := false
		ok, err := e.Do(ctx, func(context.Context) (bool, error) {
			ran = true
			return true, nil
		})
		if err != nil || ok {
			t.Fatalf("expected clean exhaustion, got ok=%v err=%v", ok, err)
		}
		if ran {
			t.Fatal("operation should not have run")
		}
	})

	t.Run("operation error stops retries", func(t *testing.T) {
		e, _ := NewExecutor(5)
		boom := errors.New("boom")
		attempts := 0
		ok, err := e.Do(ctx, func(context.Context) (bool, error) {
			attempts++
			return false, boom
		})
		if !errors.Is(err, boom) || ok {
			t.Fatalf("expected boom, got ok=%v err=%v", ok, err)
		}
		if attempts != 1 {
			t.Fatalf("expected 1 attempt, got %d", attempts)
		}
	})

	t.Run("cancelled context stops between attempts", func(t *testing.T) {
		e, _ := NewExecutor(5)
		cctx, cancel := context.WithCancel(ctx)
		attempts := 0
		ok, err := e.Do(cctx, func(context.Context) (bool, error) {
			attempts++
			cancel()
			return false, nil
		})
		if !errors.Is(err, context.Canceled) || ok {
			t.Fatalf("expected context.Canceled, got ok=%v err=%v", ok, err)
		}
		if attempts != 1 {
			t.Fatalf("expected 1 attempt, got %d", attempts)
		}
	})
}

func TestDoResult(t *testing.T) {
	ctx := context.Background()

	t.Run("returns first present result", func(t *testing.T) {
		e, _ := NewExecutor(3)
		attempts := 0
		v, ok, err := DoResult(ctx, e, func(context.Context) (string, bool, error) {
			attempts++
			if attempts < 2 {
				return "", false, nil
			}
			return "hello", true, nil
		})
		if err != nil || !ok {
			t.Fatalf("expected success, got ok=%v err=%v", ok, err)
		}
		if v != "hello" {
			t.Fatalf("expected %q, got %q", "hello", v)
		}
	})

	t.Run("zero value on exhaustion", func(t *testing.T) {
		e, _ := NewExecutor(2)
		v, ok, err := DoResult(ctx, e, func(context.Context) (int, bool, error) {
			return 42, false, nil
		})
		if err != nil || ok {
			t.Fatalf("expected exhaustion, got ok=%v err=%v", ok, err)
		}
		if v != 0 {
			t.Fatalf("expected zero value, got %d", v)
		}
	})
}
