package buttons

// NoSelection is the cursor position before any folder is chosen.
const NoSelection = -1

// NextFile returns the index after i in a listing of n files, wrapping to
// the first. An index outside the listing starts from the first file.
func NextFile(i, n int) int {
	if n <= 0 {
		return NoSelection
	}
	if i < 0 || i >= n {
		return 0
	}
	return (i + 1) % n
}

// PrevFile returns the index before i, wrapping to the last file.
func PrevFile(i, n int) int {
	if n <= 0 {
		return NoSelection
	}
	if i < 0 || i >= n {
		return n - 1
	}
	return (i - 1 + n) % n
}

// Cursor is a position in a folder listing. The positions form a ring of
// n+1 slots: the n folders followed by NoSelection.
type Cursor struct {
	index int
}

// NewCursor returns a cursor with nothing selected.
func NewCursor() Cursor {
	return Cursor{index: NoSelection}
}

// Index returns the position within a listing of n folders. A position
// left over from a longer listing reads as NoSelection.
func (c *Cursor) Index(n int) int {
	if c.index < 0 || c.index >= n {
		return NoSelection
	}
	return c.index
}

// Next advances the cursor through a listing of n folders and returns
// the new position.
func (c *Cursor) Next(n int) int {
	switch i := c.Index(n); {
	case i == NoSelection && n > 0:
		c.index = 0
	case i == n-1:
		c.index = NoSelection
	default:
		c.index = i + 1
	}
	return c.index
}

// Prev retreats the cursor and returns the new position.
func (c *Cursor) Prev(n int) int {
	switch i := c.Index(n); {
	case i == NoSelection:
		c.index = n - 1
	default:
		c.index = i - 1
	}
	if c.index < 0 {
		c.index = NoSelection
	}
	return c.index
}

// Reset forgets the selection.
func (c *Cursor) Reset() { c.index = NoSelection }

// Selected reports whether a folder of a listing of n is selected.
func (c *Cursor) Selected(n int) bool { return c.Index(n) != NoSelection }
