package registry

import (
	"testing"
)

type forkMarker struct {
	closed bool
}

func (f *forkMarker) Close() { f.closed = true }

func TestContextStack(t *testing.T) {
	inst := New().Get(testMachine(t))
	if inst.Top() != nil || inst.PopContext() != nil {
		t.Fatal("empty stack should have no top")
	}

	outer := inst.PushContext(1)
	inner := inst.PushContext(2)
	if inst.Depth() != 2 || inst.Top() != inner {
		t.Fatalf("Depth = %d", inst.Depth())
	}
	if inst.PopContext() != inner || inst.Top() != outer {
		t.Fatal("PopContext returned the wrong context")
	}
}

func TestTakeAndReplaceTop(t *testing.T) {
	inst := New().Get(testMachine(t))
	ctx := inst.PushContext(3)
	ctx.Result = 42
	ctx.AddGuard(func() {})

	taken := inst.TakeTop()
	if taken != ctx {
		t.Fatal("TakeTop returned the wrong context")
	}
	placeholder := inst.Top()
	if placeholder == ctx || placeholder.Entry != 3 || !placeholder.Empty() {
		t.Fatalf("placeholder = %+v", placeholder)
	}
	if inst.Depth() != 1 {
		t.Fatalf("Depth = %d after TakeTop", inst.Depth())
	}

	old := inst.ReplaceTop(taken)
	if old != placeholder || inst.Top() != taken || inst.Top().Result != 42 {
		t.Fatal("ReplaceTop did not reinstall the context")
	}

	inst.PopContext()
	if inst.ReplaceTop(ctx) != nil || inst.Depth() != 1 {
		t.Fatal("ReplaceTop on an empty stack should push")
	}
}

func TestContextGuardsReverseOrder(t *testing.T) {
	ctx := NewContext(0)
	var order []int
	for i := 0; i < 3; i++ {
		ctx.AddGuard(func() { order = append(order, i) })
	}
	if ctx.Guards() != 3 {
		t.Fatalf("Guards = %d", ctx.Guards())
	}
	ctx.Close()
	if len(order) != 3 || order[0] != 2 || order[1] != 1 || order[2] != 0 {
		t.Fatalf("guards ran in order %v, want [2 1 0]", order)
	}
	ctx.Close()
	if len(order) != 3 {
		t.Fatal("second Close ran guards again")
	}
}

func TestContextExtras(t *testing.T) {
	ctx := NewContext(0)
	if _, ok := FindContextExtra[*forkMarker](ctx); ok {
		t.Fatal("unexpected extra")
	}
	calls := 0
	m := ContextExtraOf(ctx, func() *forkMarker { calls++; return &forkMarker{} })
	if ContextExtraOf(ctx, func() *forkMarker { calls++; return &forkMarker{} }) != m || calls != 1 {
		t.Fatal("ContextExtraOf constructed twice")
	}

	replacement := &forkMarker{}
	SetContextExtra(ctx, replacement)
	if !m.closed {
		t.Error("SetContextExtra should close the replaced extra")
	}

	taken, ok := TakeContextExtra[*forkMarker](ctx)
	if !ok || taken != replacement || taken.closed {
		t.Fatal("TakeContextExtra should detach without closing")
	}
	if !ctx.Empty() {
		t.Error("context should be empty after TakeContextExtra")
	}

	SetContextExtra(ctx, taken)
	ctx.Close()
	if !taken.closed {
		t.Error("Close should close extras")
	}
}
