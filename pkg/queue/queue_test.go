package queue

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/menta2k/image-editor/pkg/types"
)

func TestEnqueuePreservesOrder(t *testing.T) {
	t.Parallel()

	q := New()
	kinds := []types.Kind{types.KindBrightness, types.KindGrayscale, types.KindRotate}
	params := []types.Params{{"factor": 1.2}, nil, {"angle": 90}}

	ids := make([]string, len(kinds))
	for i, k := range kinds {
		id, err := q.Enqueue(k, params[i])
		if err != nil {
			t.Fatalf("Enqueue(%s) error = %v", k, err)
		}
		ids[i] = id
	}

	ops := q.List()
	if len(ops) != 3 {
		t.Fatalf("List() returned %d ops, want 3", len(ops))
	}
	for i, op := range ops {
		if op.Kind != kinds[i] || op.ID != ids[i] {
			t.Errorf("op %d = %s/%s, want %s/%s", i, op.Kind, op.ID, kinds[i], ids[i])
		}
	}
}

func TestEnqueueAssignsUniqueIDs(t *testing.T) {
	t.Parallel()

	q := New()
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, err := q.Enqueue(types.KindGrayscale, nil)
		if err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
}

func TestEnqueueRejectsInvalidOperations(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		kind   types.Kind
		params types.Params
	}{
		{"unknown kind", types.Kind("posterize"), nil},
		{"batch kind", types.KindBatch, nil},
		{"missing params", types.KindResize, types.Params{"width": 100}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			q := New()
			if _, err := q.Enqueue(tt.kind, tt.params); err == nil {
				t.Error("expected error")
			}
			if q.Len() != 0 {
				t.Errorf("rejected op was queued")
			}
		})
	}
}

func TestParamsAreIsolated(t *testing.T) {
	t.Parallel()

	q := New()
	params := types.Params{"factor": 1.5}
	if _, err := q.Enqueue(types.KindContrast, params); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	params["factor"] = 9.0
	listed := q.List()
	listed[0].Params["factor"] = 7.0

	want := types.Params{"factor": 1.5}
	if diff := cmp.Diff(want, q.List()[0].Params); diff != "" {
		t.Errorf("queued params mutated (-want +got):\n%s", diff)
	}
}

func TestRemove(t *testing.T) {
	t.Parallel()

	q := New()
	a, _ := q.Enqueue(types.KindGrayscale, nil)
	b, _ := q.Enqueue(types.KindBlur, types.Params{"radius": 2})
	c, _ := q.Enqueue(types.KindFlip, types.Params{"direction": "horizontal"})

	if !q.Remove(b) {
		t.Fatal("Remove() of queued id returned false")
	}
	if q.Remove(b) {
		t.Error("second Remove() of same id returned true")
	}
	if q.Remove("missing") {
		t.Error("Remove() of unknown id returned true")
	}

	ops := q.List()
	if len(ops) != 2 || ops[0].ID != a || ops[1].ID != c {
		t.Errorf("unexpected queue after remove: %+v", ops)
	}
}

func TestClearReturnsDiscarded(t *testing.T) {
	t.Parallel()

	q := New()
	q.Enqueue(types.KindGrayscale, nil)
	q.Enqueue(types.KindSharpen, types.Params{"factor": 2})

	dropped := q.Clear()
	if len(dropped) != 2 {
		t.Errorf("Clear() returned %d ops, want 2", len(dropped))
	}
	if q.Len() != 0 {
		t.Errorf("Len() = %d after Clear", q.Len())
	}
	if len(q.Clear()) != 0 {
		t.Error("Clear() on empty queue returned ops")
	}
}
