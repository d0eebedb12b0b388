package signal

import (
	"errors"
	"reflect"
	"testing"
)

func TestEmitCallsCallbacksInRegistrationOrder(t *testing.T) {
	e := NewEmitter("output")
	var calls []string
	for _, tag := range []string{"a", "b", "c"} {
		if err := e.On("output", func(args ...any) {
			calls = append(calls, tag+":"+args[0].(string))
		}); err != nil {
			t.Fatalf("On: %v", err)
		}
	}

	if err := e.Emit("output", "x"); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if err := e.Emit("output", "y"); err != nil {
		t.Fatalf("Emit: %v", err)
	}

	want := []string{"a:x", "b:x", "c:x", "a:y", "b:y", "c:y"}
	if !reflect.DeepEqual(calls, want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
}

func TestUnknownSignalFailsFast(t *testing.T) {
	e := NewEmitter("output", "finished")

	err := e.On("finshed", func(...any) {})
	if !errors.Is(err, ErrUnknownSignal) {
		t.Fatalf("expected ErrUnknownSignal from On, got %v", err)
	}
	if err := e.Emit("nope"); !errors.Is(err, ErrUnknownSignal) {
		t.Fatalf("expected ErrUnknownSignal from Emit, got %v", err)
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	e := NewEmitter("output")
	if err := e.Register("output"); !errors.Is(err, ErrDuplicateSignal) {
		t.Fatalf("expected ErrDuplicateSignal, got %v", err)
	}
	if err := e.Register("info"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if got := e.Names(); !reflect.DeepEqual(got, []Name{"output", "info"}) {
		t.Fatalf("Names() = %v", got)
	}
}

func TestCallbackMayRegisterDuringEmit(t *testing.T) {
	e := NewEmitter("output")
	count := 0
	_ = e.On("output", func(...any) {
		count++
		_ = e.On("output", func(...any) { count += 10 })
	})

	_ = e.Emit("output")
	if count != 1 {
		t.Fatalf("callback added during emit must not run for that emit, count=%d", count)
	}
	_ = e.Emit("output")
	if count != 12 {
		t.Fatalf("count = %d, want 12", count)
	}
}

func TestOnRejectsNilCallback(t *testing.T) {
	e := NewEmitter("output")
	if err := e.On("output", nil); err == nil {
		t.Fatal("expected error for nil callback")
	}
}
