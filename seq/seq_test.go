package seq

import (
	"context"
	"errors"
	"testing"
)

func TestCollect(t *testing.T) {
	h := FromSlice[string, int]([]int{1, 2, 3}, nil)
	items, err := Collect(h(context.Background(), "req"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 3 || items[0] != 1 || items[2] != 3 {
		t.Errorf("items = %v, want [1 2 3]", items)
	}
}

func TestFromSlice_Restarts(t *testing.T) {
	var calls []int
	h := FromSlice[string, int]([]int{1, 2}, func(attempt int) { calls = append(calls, attempt) })

	first, _ := Collect(h(context.Background(), "req"))
	second, _ := Collect(h(context.Background(), "req"))

	if len(first) != 2 || len(second) != 2 {
		t.Fatalf("expected both calls to replay all items, got %v and %v", first, second)
	}
	if len(calls) != 2 || calls[0] != 1 || calls[1] != 2 {
		t.Errorf("onCall attempts = %v, want [1 2]", calls)
	}
}

func TestFailing_FailsOnceThenSucceeds(t *testing.T) {
	testErr := errors.New("boom")
	h := Failing[string, int]([]int{1, 2, 3}, 2, testErr)

	items1, err1 := Collect(h(context.Background(), "req"))
	if err1 != nil {
		t.Errorf("attempt 1: unexpected error %v", err1)
	}
	if len(items1) != 3 {
		t.Errorf("attempt 1: items = %v, want 3 items", items1)
	}

	items2, err2 := Collect(h(context.Background(), "req"))
	if !errors.Is(err2, testErr) {
		t.Errorf("attempt 2: error = %v, want %v", err2, testErr)
	}
	if len(items2) != 3 {
		t.Errorf("attempt 2: items before failure = %v, want 3", items2)
	}

	items3, err3 := Collect(h(context.Background(), "req"))
	if err3 != nil {
		t.Errorf("attempt 3: unexpected error %v", err3)
	}
	if len(items3) != 3 {
		t.Errorf("attempt 3: items = %v, want 3 items", items3)
	}
}

func TestAlwaysFailing(t *testing.T) {
	testErr := errors.New("always boom")
	var attempts int
	h := AlwaysFailing[string, int](nil, testErr, &attempts)

	for i := 0; i < 3; i++ {
		_, err := Collect(h(context.Background(), "req"))
		if !errors.Is(err, testErr) {
			t.Errorf("call %d: error = %v, want %v", i, err, testErr)
		}
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestFromSlice_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	h := FromSlice[string, int]([]int{1, 2, 3}, nil)
	_, err := Collect(h(ctx, "req"))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}
