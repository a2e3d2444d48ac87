// File: internal/session/table.go
// Author: basalt authors
// License: Apache-2.0

package session

// Table is the fixed-capacity array of session rows. Allocation is a first
// free-row scan; release zeroes the row, frees its ring, and bumps the
// generation counter so late completions referencing the old occupant can
// be rejected.
type Table struct {
	rows   []Session
	active int
}

// NewTable creates a table with capacity rows.
func NewTable(capacity int) *Table {
	t := &Table{rows: make([]Session, capacity)}
	for i := range t.rows {
		t.rows[i].index = int32(i)
	}
	return t
}

// Claim returns the first unused row, or nil if the server is full. The
// caller activates the row.
func (t *Table) Claim() *Session {
	for i := range t.rows {
		if !t.rows[i].InUse() {
			t.active++
			return &t.rows[i]
		}
	}
	return nil
}

// Get resolves an (index, generation) pair to a live session. It returns
// nil for an out-of-range index, a freed row, or a stale generation.
func (t *Table) Get(index int32, generation uint32) *Session {
	if index < 0 || int(index) >= len(t.rows) {
		return nil
	}
	s := &t.rows[index]
	if !s.InUse() || s.generation != generation {
		return nil
	}
	return s
}

// At returns the in-use session at index, or nil. Callers that hold a
// generation should prefer Get.
func (t *Table) At(index int32) *Session {
	if index < 0 || int(index) >= len(t.rows) {
		return nil
	}
	s := &t.rows[index]
	if !s.InUse() {
		return nil
	}
	return s
}

// Release frees the row: the read ring is destroyed, every field reset, and
// the generation advanced.
func (t *Table) Release(s *Session) {
	if s.In != nil {
		s.In.Close()
	}
	index, generation := s.index, s.generation
	*s = Session{index: index, generation: generation + 1}
	t.active--
}

// Capacity reports the table size.
func (t *Table) Capacity() int { return len(t.rows) }

// Active reports how many rows hold live connections.
func (t *Table) Active() int { return t.active }

// Range applies fn to every in-use session until fn returns false.
func (t *Table) Range(fn func(*Session) bool) {
	for i := range t.rows {
		if t.rows[i].InUse() && !fn(&t.rows[i]) {
			return
		}
	}
}
