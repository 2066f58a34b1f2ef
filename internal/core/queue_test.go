// ABOUTME: Tests for queue index bookkeeping
// ABOUTME: Covers remove-at-current semantics and move remapping of the selection
package core

import "testing"

func makeQueue(names ...string) *Queue {
	q := NewQueue()
	for _, n := range names {
		q.Add(Track{ID: n, Name: n, Source: n + ".mp3"})
	}
	return q
}

func TestQueueAddAndCurrent(t *testing.T) {
	q := NewQueue()
	if q.Current() != nil {
		t.Error("empty queue should have no current track")
	}

	idx := q.Add(Track{ID: "a", Name: "A"})
	if idx != 0 {
		t.Errorf("expected first add at index 0, got %d", idx)
	}
	if q.Current() != nil {
		t.Error("add should not select a track")
	}

	if err := q.SkipTo(0); err != nil {
		t.Fatalf("SkipTo(0) failed: %v", err)
	}
	if got := q.Current(); got == nil || got.ID != "a" {
		t.Errorf("expected current track a, got %v", got)
	}
}

func TestQueueRemoveBeforeCurrent(t *testing.T) {
	q := makeQueue("a", "b", "c")
	q.CurrentIndex = 2

	removedCurrent, err := q.RemoveAt(0)
	if err != nil {
		t.Fatalf("RemoveAt(0) failed: %v", err)
	}
	if removedCurrent {
		t.Error("removing an earlier entry should not report current removal")
	}
	if q.CurrentIndex != 1 {
		t.Errorf("expected current index 1 after removal, got %d", q.CurrentIndex)
	}
	if got := q.Current(); got == nil || got.ID != "c" {
		t.Errorf("expected selection to stay on c, got %v", got)
	}
}

func TestQueueRemoveCurrentKeepsIndexForSuccessor(t *testing.T) {
	q := makeQueue("a", "b", "c")
	q.CurrentIndex = 1

	removedCurrent, err := q.RemoveAt(1)
	if err != nil {
		t.Fatalf("RemoveAt(1) failed: %v", err)
	}
	if !removedCurrent {
		t.Error("expected current removal to be reported")
	}
	if q.CurrentIndex != 1 {
		t.Errorf("expected index to stay at 1, got %d", q.CurrentIndex)
	}
	if got := q.Current(); got == nil || got.ID != "c" {
		t.Errorf("expected successor c at the removed index, got %v", got)
	}
}

func TestQueueRemoveCurrentAtEnd(t *testing.T) {
	q := makeQueue("a", "b")
	q.CurrentIndex = 1

	removedCurrent, err := q.RemoveAt(1)
	if err != nil {
		t.Fatalf("RemoveAt(1) failed: %v", err)
	}
	if !removedCurrent {
		t.Error("expected current removal to be reported")
	}
	// Index is one past the end; the engine detects this and goes idle.
	if q.CurrentIndex != 1 || q.Current() != nil {
		t.Errorf("expected index past end with no current track, got index %d", q.CurrentIndex)
	}
}

func TestQueueRemoveOutOfRange(t *testing.T) {
	q := makeQueue("a")
	if _, err := q.RemoveAt(3); err == nil {
		t.Error("expected error for out-of-range removal")
	}
	if _, err := q.RemoveAt(-1); err == nil {
		t.Error("expected error for negative index")
	}
}

func TestQueueClear(t *testing.T) {
	q := makeQueue("a", "b")
	q.CurrentIndex = 0
	q.Clear()
	if !q.IsEmpty() || q.CurrentIndex != -1 {
		t.Errorf("expected empty queue with no selection, got len %d index %d", q.Len(), q.CurrentIndex)
	}
}

func TestQueueAdvanceRetreat(t *testing.T) {
	q := makeQueue("a", "b")
	q.CurrentIndex = 0

	if !q.Advance() || q.CurrentIndex != 1 {
		t.Errorf("expected advance to index 1, got %d", q.CurrentIndex)
	}
	if q.Advance() {
		t.Error("advance past the last track should fail")
	}
	if !q.Retreat() || q.CurrentIndex != 0 {
		t.Errorf("expected retreat to index 0, got %d", q.CurrentIndex)
	}
	if q.Retreat() {
		t.Error("retreat before the first track should fail")
	}
}

func TestQueueMove(t *testing.T) {
	tests := []struct {
		name      string
		current   int
		from, to  int
		wantOrder []string
		wantIndex int
	}{
		{"moved track keeps selection", 0, 0, 2, []string{"b", "c", "a"}, 2},
		{"move from before current", 2, 0, 2, []string{"b", "c", "a"}, 1},
		{"move from after current", 0, 2, 0, []string{"c", "a", "b"}, 1},
		{"move not crossing current", 0, 1, 2, []string{"a", "c", "b"}, 0},
		{"same position is a no-op", 1, 1, 1, []string{"a", "b", "c"}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := makeQueue("a", "b", "c")
			q.CurrentIndex = tt.current

			if err := q.Move(tt.from, tt.to); err != nil {
				t.Fatalf("Move(%d, %d) failed: %v", tt.from, tt.to, err)
			}
			for i, want := range tt.wantOrder {
				if q.Tracks[i].ID != want {
					t.Errorf("position %d: expected %s, got %s", i, want, q.Tracks[i].ID)
				}
			}
			if q.CurrentIndex != tt.wantIndex {
				t.Errorf("expected current index %d, got %d", tt.wantIndex, q.CurrentIndex)
			}
		})
	}
}

func TestQueueMoveOutOfRange(t *testing.T) {
	q := makeQueue("a", "b")
	if err := q.Move(0, 5); err == nil {
		t.Error("expected error for out-of-range move target")
	}
	if err := q.Move(-1, 0); err == nil {
		t.Error("expected error for out-of-range move source")
	}
}

func TestQueueCopyIsIndependent(t *testing.T) {
	q := makeQueue("a", "b")
	q.CurrentIndex = 1

	snap := q.Copy()
	q.Tracks[0].Name = "mutated"
	q.CurrentIndex = 0

	if snap.Tracks[0].Name != "a" {
		t.Errorf("expected snapshot to keep original name, got %s", snap.Tracks[0].Name)
	}
	if snap.CurrentIndex != 1 {
		t.Errorf("expected snapshot index 1, got %d", snap.CurrentIndex)
	}
}
