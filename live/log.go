package live

// Log is a per-subscriber accumulator of an Array's changes since the last
// flush. Multiple Logs may subscribe to the same Array; each receives
// every Change exactly once.
type Log struct {
	array    *Array
	token    int
	changes  []Change
	replaced bool
	dirty    Dirtier
}

// Dirtier is notified the first time a Log accumulates a change since its
// last flush. A DataManager implements this to track which subscribers
// need to be flushed.
type Dirtier interface {
	MarkDirty(*Log)
}

// NewLog subscribes a new Log to array. dirty may be nil, in which case
// the Log simply accumulates changes without notifying anything.
func NewLog(array *Array, dirty Dirtier) *Log {
	l := &Log{array: array, dirty: dirty}
	l.token = array.AddChangeCallback(l.record)
	return l
}

// Array returns the Array this Log is subscribed to.
func (l *Log) Array() *Array { return l.array }

// Detach unsubscribes the Log from its Array. Safe to call more than once.
func (l *Log) Detach() {
	if l.array == nil {
		return
	}
	l.array.RemoveChangeCallback(l.token)
	l.array = nil
}

func (l *Log) record(c Change) {
	// Once replaced has been set, further changes are dropped until flush:
	// the whole array was already invalidated, so re-recording smaller
	// changes cannot make the log any more invalid.
	if l.replaced {
		return
	}
	wasEmpty := len(l.changes) == 0 && !l.replaced
	if c.Command == Replace {
		l.replaced = true
		l.changes = l.changes[:0]
	} else {
		l.changes = append(l.changes, c)
	}
	if wasEmpty && l.dirty != nil {
		l.dirty.MarkDirty(l)
	}
}

// IsEmpty reports whether the Log holds no unflushed changes.
func (l *Log) IsEmpty() bool {
	return len(l.changes) == 0 && !l.replaced
}

// Replaced reports whether a Replace change has been recorded since the
// last flush.
func (l *Log) Replaced() bool { return l.replaced }

// Flush clears the accumulated changes and the replaced flag. It does not
// touch the underlying Array.
func (l *Log) Flush() {
	l.changes = l.changes[:0]
	l.replaced = false
}

// NewToOld translates a post-change index back to the index it occupied
// before any of the currently-accumulated changes were applied. It returns
// (-1, false) if index corresponds to no prior slot (it is newly inserted,
// or the whole array was replaced). changed reports whether the slot's
// value was overwritten by an Update even though its position survived.
//
// The walk proceeds in reverse over the recorded changes, undoing each
// mutation's effect on the index as it goes.
func (l *Log) NewToOld(index int) (old int, changed bool) {
	if l.replaced {
		return -1, false
	}
	for i := len(l.changes) - 1; i >= 0; i-- {
		c := l.changes[i]
		switch c.Command {
		case Remove:
			if index >= c.Position {
				index += c.Count
			}
		case Update:
			if index >= c.Position && index < c.Position+c.Count {
				changed = true
			}
		case Insert:
			if index >= c.Position+c.Count {
				index -= c.Count
			} else if index >= c.Position {
				return -1, false
			}
		}
	}
	return index, changed
}
