package hooks

import (
	"context"
	"testing"
)

func TestRegistry_ContinueWhenEmpty(t *testing.T) {
	r := New(nil)
	got := r.Dispatch(context.Background(), Event{Kind: EventUserMessage})
	if got.Kind != ResponseContinue {
		t.Errorf("Dispatch() = %v, want Continue", got)
	}
}

func TestRegistry_FirstNonContinueShortCircuits(t *testing.T) {
	r := New(nil)
	var calls []int

	r.Register(HandlerFunc(func(ctx context.Context, e Event) Response {
		calls = append(calls, 1)
		return Continue
	}))
	r.Register(HandlerFunc(func(ctx context.Context, e Event) Response {
		calls = append(calls, 2)
		return Block("denied")
	}))
	r.Register(HandlerFunc(func(ctx context.Context, e Event) Response {
		calls = append(calls, 3)
		return Continue
	}))

	got := r.Dispatch(context.Background(), Event{Kind: EventPreToolUse})
	if got.Kind != ResponseBlock || got.Reason != "denied" {
		t.Errorf("Dispatch() = %+v, want Block(denied)", got)
	}
	if len(calls) != 2 {
		t.Errorf("dispatched to %d handlers, want 2 (short-circuit)", len(calls))
	}
}

func TestRegistry_PanicTreatedAsContinue(t *testing.T) {
	r := New(nil)
	called := false

	r.Register(HandlerFunc(func(ctx context.Context, e Event) Response {
		panic("boom")
	}))
	r.Register(HandlerFunc(func(ctx context.Context, e Event) Response {
		called = true
		return Continue
	}))

	got := r.Dispatch(context.Background(), Event{Kind: EventPostToolUse})
	if got.Kind != ResponseContinue {
		t.Errorf("Dispatch() = %v, want Continue after panic recovery", got)
	}
	if !called {
		t.Error("dispatch did not continue to handler after panicking handler")
	}
}

func TestRegistry_Transform(t *testing.T) {
	r := New(nil)
	r.Register(HandlerFunc(func(ctx context.Context, e Event) Response {
		return Transform(`{"redacted":true}`)
	}))

	got := r.Dispatch(context.Background(), Event{Kind: EventPreToolUse})
	if got.Kind != ResponseTransform || got.Payload != `{"redacted":true}` {
		t.Errorf("Dispatch() = %+v, want Transform payload", got)
	}
}

func TestRegistry_Count(t *testing.T) {
	r := New(nil)
	if r.Count() != 0 {
		t.Fatalf("Count() = %d, want 0", r.Count())
	}
	r.Register(HandlerFunc(func(ctx context.Context, e Event) Response { return Continue }))
	if r.Count() != 1 {
		t.Errorf("Count() = %d, want 1", r.Count())
	}
}
