package history

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/menta2k/image-editor/pkg/artifact"
	"github.com/menta2k/image-editor/pkg/types"
)

func TestRecordNewestFirst(t *testing.T) {
	t.Parallel()

	l := New(DefaultCapacity)
	first, _ := l.Record(Entry{Kind: types.KindGrayscale, Result: "a"})
	second, _ := l.Record(Entry{Kind: types.KindBlur, Params: types.Params{"radius": 2}, Result: "b"})

	entries := l.List()
	if len(entries) != 2 {
		t.Fatalf("List() returned %d entries, want 2", len(entries))
	}
	if entries[0].ID != second.ID || entries[1].ID != first.ID {
		t.Errorf("entries not newest first: %s, %s", entries[0].ID, entries[1].ID)
	}
	if first.ID == "" || first.Timestamp.IsZero() {
		t.Errorf("Record() did not fill ID and Timestamp: %+v", first)
	}
}

func TestRecordEvictsOldest(t *testing.T) {
	t.Parallel()

	l := New(DefaultCapacity)
	var ids []string
	for i := 0; i < 11; i++ {
		e, evicted := l.Record(Entry{Kind: types.KindRotate, Params: types.Params{"angle": i}, Result: artifact.Handle(fmt.Sprint(i))})
		ids = append(ids, e.ID)

		if i < 10 && len(evicted) != 0 {
			t.Errorf("record %d evicted %d entries", i, len(evicted))
		}
		if i == 10 && (len(evicted) != 1 || evicted[0].ID != ids[0]) {
			t.Errorf("record 10 evicted %+v, want the first entry", evicted)
		}
	}

	if l.Len() != 10 {
		t.Fatalf("Len() = %d, want 10", l.Len())
	}
	if _, err := l.Restore(ids[0]); !errors.Is(err, ErrNotFound) {
		t.Errorf("Restore(evicted) error = %v, want ErrNotFound", err)
	}
	if h, err := l.Restore(ids[1]); err != nil || h != "1" {
		t.Errorf("Restore(ids[1]) = %q, %v", h, err)
	}
	if l.List()[0].ID != ids[10] {
		t.Error("newest entry not at the front")
	}
}

func TestRestoreDoesNotMutate(t *testing.T) {
	t.Parallel()

	l := New(3)
	a, _ := l.Record(Entry{Kind: types.KindGrayscale, Result: "a"})
	l.Record(Entry{Kind: types.KindGrayscale, Result: "b"})

	before := l.List()
	if _, err := l.Restore(a.ID); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if diff := cmp.Diff(before, l.List()); diff != "" {
		t.Errorf("Restore() changed the log (-before +after):\n%s", diff)
	}
}

func TestRecordCopiesParams(t *testing.T) {
	t.Parallel()

	l := New(DefaultCapacity)
	params := types.Params{"factor": 1.1}
	l.Record(Entry{Kind: types.KindBrightness, Params: params, Result: "a"})
	params["factor"] = 3.0

	if got := l.List()[0].Params["factor"]; got != 1.1 {
		t.Errorf("recorded factor = %v, want 1.1", got)
	}
}

func TestListReturnsCopies(t *testing.T) {
	t.Parallel()

	l := New(DefaultCapacity)
	ops := []types.Operation{{ID: "1", Kind: types.KindBrightness, Params: types.Params{"factor": 1.2}}}
	recorded, _ := l.Record(Entry{Kind: types.KindBatch, Params: BatchParams(ops), Result: "a"})

	recorded.Params["extra"] = true
	listed := l.List()[0]
	listed.Params["extra"] = true
	listed.Params["operations"].([]types.Operation)[0].Params["factor"] = 9.0

	want := types.Params{"operations": []types.Operation{
		{ID: "1", Kind: types.KindBrightness, Params: types.Params{"factor": 1.2}},
	}}
	if diff := cmp.Diff(want, l.List()[0].Params); diff != "" {
		t.Errorf("stored entry changed through a returned copy (-want +got):\n%s", diff)
	}
}

func TestBatchParams(t *testing.T) {
	t.Parallel()

	ops := []types.Operation{
		{ID: "1", Kind: types.KindBrightness, Params: types.Params{"factor": 1.2}},
		{ID: "2", Kind: types.KindGrayscale},
	}
	params := BatchParams(ops)
	ops[0].Params["factor"] = 5.0

	got, ok := params["operations"].([]types.Operation)
	if !ok || len(got) != 2 {
		t.Fatalf("operations param = %#v", params["operations"])
	}
	if got[0].Params["factor"] != 1.2 {
		t.Error("BatchParams shares params with the queue")
	}

	e := Entry{Kind: types.KindBatch, Params: params}
	if e.Name() != "Batch Operations" {
		t.Errorf("Name() = %q", e.Name())
	}
}

func TestClearAndReferences(t *testing.T) {
	t.Parallel()

	l := New(DefaultCapacity)
	l.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	e, _ := l.Record(Entry{Kind: types.KindFlip, Params: types.Params{"direction": "vertical"}, Result: "h1"})

	if !e.Timestamp.Equal(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)) {
		t.Errorf("Timestamp = %v", e.Timestamp)
	}
	if !l.References("h1") || l.References("h2") {
		t.Error("References() mismatch")
	}

	if cleared := l.Clear(); len(cleared) != 1 {
		t.Errorf("Clear() returned %d entries, want 1", len(cleared))
	}
	if l.Len() != 0 || l.References("h1") {
		t.Error("log not empty after Clear")
	}
}

func TestNewDefaultsCapacity(t *testing.T) {
	t.Parallel()

	l := New(0)
	for i := 0; i < 15; i++ {
		l.Record(Entry{Kind: types.KindGrayscale, Result: "x"})
	}
	if l.Len() != DefaultCapacity {
		t.Errorf("Len() = %d, want %d", l.Len(), DefaultCapacity)
	}
}
