// ABOUTME: Ordered playback queue with a current-index pointer
// ABOUTME: Index bookkeeping for remove and move keeps the pointer on the same logical track
package core

import "fmt"

// Queue represents an ordered playback queue. CurrentIndex is -1 when no
// track is selected. It may equal len(Tracks) only transiently, while the
// engine transitions to idle after the last track is removed or finishes.
type Queue struct {
	Tracks       []Track `json:"tracks"`
	CurrentIndex int     `json:"current_index"`
}

// NewQueue returns an empty queue with no selection.
func NewQueue() *Queue {
	return &Queue{CurrentIndex: -1}
}

// Current returns the currently selected track, or nil.
func (q *Queue) Current() *Track {
	if q == nil || q.CurrentIndex < 0 || q.CurrentIndex >= len(q.Tracks) {
		return nil
	}
	return &q.Tracks[q.CurrentIndex]
}

// Len returns the total number of tracks in the queue.
func (q *Queue) Len() int {
	if q == nil {
		return 0
	}
	return len(q.Tracks)
}

// IsEmpty returns true if the queue has no tracks.
func (q *Queue) IsEmpty() bool {
	return q.Len() == 0
}

// Add appends a track and returns its index.
func (q *Queue) Add(t Track) int {
	q.Tracks = append(q.Tracks, t)
	return len(q.Tracks) - 1
}

// RemoveAt deletes the track at index i. It reports whether the removed
// entry was the current one; in that case CurrentIndex is left in place so
// the caller can start whatever now occupies it, or detect that it ran off
// the end. Removing an earlier entry shifts CurrentIndex down to keep it on
// the same logical track.
func (q *Queue) RemoveAt(i int) (removedCurrent bool, err error) {
	if i < 0 || i >= len(q.Tracks) {
		return false, fmt.Errorf("remove index %d out of range (queue length %d)", i, len(q.Tracks))
	}
	removedCurrent = i == q.CurrentIndex
	q.Tracks = append(q.Tracks[:i], q.Tracks[i+1:]...)
	if i < q.CurrentIndex {
		q.CurrentIndex--
	}
	return removedCurrent, nil
}

// Clear empties the queue and drops the selection.
func (q *Queue) Clear() {
	q.Tracks = nil
	q.CurrentIndex = -1
}

// Deselect drops the current-index pointer without touching the tracks.
func (q *Queue) Deselect() {
	q.CurrentIndex = -1
}

// SkipTo selects the track at index i.
func (q *Queue) SkipTo(i int) error {
	if i < 0 || i >= len(q.Tracks) {
		return fmt.Errorf("skip index %d out of range (queue length %d)", i, len(q.Tracks))
	}
	q.CurrentIndex = i
	return nil
}

// Advance moves the selection to the next track, reporting whether one
// existed.
func (q *Queue) Advance() bool {
	if q.CurrentIndex+1 >= len(q.Tracks) {
		return false
	}
	q.CurrentIndex++
	return true
}

// Retreat moves the selection to the previous track, reporting whether one
// existed.
func (q *Queue) Retreat() bool {
	if q.CurrentIndex <= 0 || len(q.Tracks) == 0 {
		return false
	}
	q.CurrentIndex--
	return true
}

// Move reorders the track at from so it ends up at index to. The selection
// follows the same logical track across the reorder.
func (q *Queue) Move(from, to int) error {
	n := len(q.Tracks)
	if from < 0 || from >= n {
		return fmt.Errorf("move source %d out of range (queue length %d)", from, n)
	}
	if to < 0 || to >= n {
		return fmt.Errorf("move target %d out of range (queue length %d)", to, n)
	}
	if from == to {
		return nil
	}

	t := q.Tracks[from]
	q.Tracks = append(q.Tracks[:from], q.Tracks[from+1:]...)
	rest := append([]Track{t}, q.Tracks[to:]...)
	q.Tracks = append(q.Tracks[:to], rest...)

	switch {
	case q.CurrentIndex == from:
		q.CurrentIndex = to
	case from < q.CurrentIndex && to >= q.CurrentIndex:
		q.CurrentIndex--
	case from > q.CurrentIndex && to <= q.CurrentIndex:
		q.CurrentIndex++
	}
	return nil
}

// Copy returns a snapshot of the queue safe to hand across goroutines.
func (q *Queue) Copy() Queue {
	out := Queue{CurrentIndex: q.CurrentIndex}
	if len(q.Tracks) > 0 {
		out.Tracks = make([]Track, len(q.Tracks))
		copy(out.Tracks, q.Tracks)
	}
	return out
}
