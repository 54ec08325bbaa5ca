package flow

import (
	"context"
	"errors"
	"testing"
)

type discountProcess struct {
	applied int
}

func (p *discountProcess) Execute(_ context.Context, c *testCtx) error {
	p.applied++
	c.record("discount")
	return nil
}

func TestKeyOf(t *testing.T) {
	if got := KeyOf[discountProcess](); got != "discountProcess" {
		t.Errorf("KeyOf[discountProcess] = %q", got)
	}
	if got := KeyOf[*discountProcess](); got != "discountProcess" {
		t.Errorf("KeyOf[*discountProcess] = %q", got)
	}
}

func TestRegistry(t *testing.T) {
	t.Run("register and resolve", func(t *testing.T) {
		reg := NewRegistry[*testCtx]()
		if err := RegisterType(reg, func() *discountProcess { return &discountProcess{} }); err != nil {
			t.Fatalf("RegisterType: %v", err)
		}

		p1, err := reg.Resolve("discountProcess")
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		p2, _ := reg.Resolve("discountProcess")
		if err := p1.Execute(context.Background(), newTestCtx()); err != nil {
			t.Fatalf("Execute: %v", err)
		}
		if got := p1.(*discountProcess).applied; got != 1 {
			t.Fatalf("applied = %d, want 1", got)
		}
		if got := p2.(*discountProcess).applied; got != 0 {
			t.Error("Resolve must return a new instance per call")
		}
	})

	t.Run("errors", func(t *testing.T) {
		reg := NewRegistry[*testCtx]()
		factory := func() Process[*testCtx] { return &discountProcess{} }

		if err := reg.Register("", factory); !errors.Is(err, ErrEmptyProcess) {
			t.Errorf("empty key: expected ErrEmptyProcess, got %v", err)
		}
		if err := reg.Register("x", nil); err == nil {
			t.Error("nil factory: expected error")
		}
		if err := reg.Register("x", factory); err != nil {
			t.Fatalf("Register: %v", err)
		}
		if err := reg.Register("x", factory); err == nil {
			t.Error("duplicate key: expected error")
		}
		if _, err := reg.Resolve("missing"); !errors.Is(err, ErrUnknownProcess) {
			t.Errorf("expected ErrUnknownProcess, got %v", err)
		}

		reg.MustRegister("nil", func() Process[*testCtx] { return nil })
		if _, err := reg.Resolve("nil"); err == nil {
			t.Error("nil instance: expected error")
		}
	})

	t.Run("must register panics", func(t *testing.T) {
		reg := NewRegistry[*testCtx]()
		defer func() {
			if recover() == nil {
				t.Error("expected panic")
			}
		}()
		reg.MustRegister("", func() Process[*testCtx] { return nil })
	})

	t.Run("keys and missing", func(t *testing.T) {
		reg := newTestRegistry(t, "b", "a")
		keys := reg.Keys()
		if len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
			t.Errorf("Keys = %v, want [a b]", keys)
		}
		missing := reg.Missing([]ProcessKey{"a", "c", "b", "d"})
		if len(missing) != 2 || missing[0] != "c" || missing[1] != "d" {
			t.Errorf("Missing = %v, want [c d]", missing)
		}
	})
}
