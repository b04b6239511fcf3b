package resource

import (
	"errors"
	"testing"
)

type testObserver struct {
	events []Event
}

func (o *testObserver) OnResourceEvent(e Event) {
	o.events = append(o.events, e)
}

func TestTable_Basic(t *testing.T) {
	table := NewTable(0)

	// Insert
	h, err := table.Insert(KindTask, "test")
	if err != nil || h == 0 {
		t.Fatalf("Insert = %d, %v", h, err)
	}

	// Get with correct kind
	val, ok := table.Get(h, KindTask)
	if !ok {
		t.Fatal("Get failed")
	}
	if val != "test" {
		t.Fatalf("Expected 'test', got %v", val)
	}

	// Get with wrong kind
	if _, ok = table.Get(h, KindScratchVar); ok {
		t.Fatal("Get with wrong kind should fail")
	}
	if _, err = table.Remove(h, KindScratchVar); !errors.Is(err, ErrInvalidHandle) {
		t.Fatalf("Remove with wrong kind err = %v", err)
	}

	// Remove
	val, err = table.Remove(h, KindTask)
	if err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if val != "test" {
		t.Fatalf("Expected 'test', got %v", val)
	}

	// Len should be 0
	if table.Len() != 0 {
		t.Fatal("Expected Len() == 0 after Remove")
	}
}

func TestTable_Observer(t *testing.T) {
	table := NewTable(0)
	obs := &testObserver{}
	table.Subscribe(obs)

	// Insert should trigger EventCreated
	h, _ := table.Insert(KindTask, "test")
	if len(obs.events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(obs.events))
	}
	if obs.events[0].Type != EventCreated || obs.events[0].Handle != h {
		t.Fatalf("unexpected event %+v", obs.events[0])
	}

	table.Acquire(h)
	table.Release(h)
	if obs.events[1].Type != EventAcquired || obs.events[1].Refs != 1 {
		t.Fatalf("unexpected acquire event %+v", obs.events[1])
	}
	if obs.events[2].Type != EventReleased || obs.events[2].Refs != 0 {
		t.Fatalf("unexpected release event %+v", obs.events[2])
	}

	// Remove should trigger EventDropped
	table.Remove(h, KindTask)
	if len(obs.events) != 4 || obs.events[3].Type != EventDropped {
		t.Fatalf("Expected dropped event, got %+v", obs.events)
	}
}

func TestTable_ObserverFunc(t *testing.T) {
	table := NewTable(0)
	var kinds []Kind
	table.Subscribe(ObserverFunc(func(e Event) {
		if e.Type == EventCreated {
			kinds = append(kinds, e.Kind)
		}
	}))
	table.Insert(KindTask, 1)
	table.Insert(KindScratchVar, 2)
	if len(kinds) != 2 || kinds[0] != KindTask || kinds[1] != KindScratchVar {
		t.Fatalf("kinds = %v", kinds)
	}
}

func TestTable_Close(t *testing.T) {
	table := NewTable(0)
	if _, err := table.Insert(KindTask, "v"); err != nil {
		t.Fatal(err)
	}
	if err := table.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := table.Insert(KindTask, "late"); !errors.Is(err, ErrClosed) {
		t.Fatalf("Insert after Close err = %v, want ErrClosed", err)
	}
	if table.Len() != 0 {
		t.Fatalf("Len = %d after Close", table.Len())
	}
}

func TestTable_Referenced(t *testing.T) {
	table := NewTable(0)
	h, _ := table.Insert(KindTask, "v")
	table.Acquire(h)

	if _, err := table.Remove(h, KindTask); !errors.Is(err, ErrReferenced) {
		t.Fatalf("Remove err = %v, want ErrReferenced", err)
	}
	if refs, _ := table.Refs(h); refs != 1 {
		t.Fatalf("Refs = %d, want 1", refs)
	}
	if _, err := table.ForceRemove(h, KindTask); err != nil {
		t.Fatalf("ForceRemove failed: %v", err)
	}
}

func TestTable_Dropper(t *testing.T) {
	table := NewTable(0)
	drops := 0
	h, _ := table.Insert(KindScratchVar, dropCounter{&drops})
	table.Remove(h, KindScratchVar)
	if drops != 1 {
		t.Fatalf("drops = %d, want 1", drops)
	}
}

func TestTable_EachAndClear(t *testing.T) {
	table := NewTable(0)
	table.Insert(KindTask, "a")
	table.Insert(KindScratchVar, "b")
	h, _ := table.Insert(KindTask, "c")
	table.Acquire(h)

	var tasks []any
	table.Each(KindTask, func(_ Handle, v any) bool {
		tasks = append(tasks, v)
		return true
	})
	if len(tasks) != 2 {
		t.Fatalf("Each(KindTask) saw %v", tasks)
	}

	table.Clear()
	if table.Len() != 0 {
		t.Fatalf("Len() = %d after Clear", table.Len())
	}
}

func TestTable_Limit(t *testing.T) {
	table := NewTable(1)
	if _, err := table.Insert(KindNativeHook, 1); err != nil {
		t.Fatal(err)
	}
	if _, err := table.Insert(KindNativeHook, 2); !errors.Is(err, ErrFull) {
		t.Fatalf("Insert over limit err = %v, want ErrFull", err)
	}
}

func TestKindString(t *testing.T) {
	if KindTask.String() != "task" || Kind(0).String() != "unknown" {
		t.Errorf("unexpected kind names %q %q", KindTask.String(), Kind(0).String())
	}
}
