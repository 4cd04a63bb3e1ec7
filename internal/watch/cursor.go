package watch

// CursorTracker holds the monotonic high-water mark of the last processed
// identifier for a backend that assigns strictly increasing identifiers.
// It only ever moves forward; Advance with a smaller value is ignored.
type CursorTracker struct {
	last uint32
}

func NewCursorTracker(seed uint32) *CursorTracker {
	return &CursorTracker{last: seed}
}

// Last returns the identifier of the last successfully processed item.
func (c *CursorTracker) Last() uint32 {
	return c.last
}

// Advance moves the cursor to uid. Regressions are ignored so the cursor is
// non-decreasing over the lifetime of the process.
func (c *CursorTracker) Advance(uid uint32) {
	if uid > c.last {
		c.last = uid
	}
}
