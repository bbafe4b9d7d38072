// Package data implements the flush driver that keeps per-document
// subscribers (live.Log instances) coherent with the view layer.
package data

import "git.sr.ht/~gioverse/dynlist/live"

// FlushCallback is invoked for a subscriber immediately before its Log is
// flushed. A LayoutRebuilder registers one of these per live.Log so it can
// read the accumulated changes before they are cleared.
type FlushCallback func(*live.Log)

// Manager tracks the full set of subscribers for one document and drives
// their flush cycle. It is not safe for concurrent use: all operations on
// a document run on a single logical thread.
type Manager struct {
	trackers  map[*live.Log]struct{}
	dirty     map[*live.Log]struct{}
	callbacks map[*live.Log][]FlushCallback
	flushing  bool
}

// NewManager constructs an empty Manager.
func NewManager() *Manager {
	return &Manager{
		trackers:  make(map[*live.Log]struct{}),
		dirty:     make(map[*live.Log]struct{}),
		callbacks: make(map[*live.Log][]FlushCallback),
	}
}

// Track registers l as a live subscriber of this document.
func (m *Manager) Track(l *live.Log) {
	m.trackers[l] = struct{}{}
}

// Untrack removes l from the tracked set, detaching it from its Array and
// dropping any registered flush callbacks. Safe to call during a flush.
func (m *Manager) Untrack(l *live.Log) {
	delete(m.trackers, l)
	delete(m.dirty, l)
	delete(m.callbacks, l)
	l.Detach()
}

// OnFlush registers cb to run for l immediately before each flush that
// finds l dirty.
func (m *Manager) OnFlush(l *live.Log, cb FlushCallback) {
	m.callbacks[l] = append(m.callbacks[l], cb)
}

// MarkDirty implements live.Dirtier, inserting l into the dirty set so the
// next Flush call will process it.
func (m *Manager) MarkDirty(l *live.Log) {
	if _, tracked := m.trackers[l]; !tracked {
		return
	}
	m.dirty[l] = struct{}{}
}

// Flush invokes each dirty subscriber's flush callbacks (typically a
// LayoutRebuilder) and then flushes its Log. Re-entrant MarkDirty calls
// made from within a callback are processed in the same pass: the dirty
// set is drained to a fixpoint rather than iterated once, so a change
// raised during a callback is never missed.
func (m *Manager) Flush() {
	if m.flushing {
		// A Flush already in progress will drain this addition; avoid
		// re-entering the drain loop from within a callback.
		return
	}
	m.flushing = true
	defer func() { m.flushing = false }()
	for len(m.dirty) > 0 {
		batch := make([]*live.Log, 0, len(m.dirty))
		for l := range m.dirty {
			batch = append(batch, l)
		}
		for _, l := range batch {
			delete(m.dirty, l)
			if _, stillTracked := m.trackers[l]; !stillTracked {
				continue
			}
			for _, cb := range m.callbacks[l] {
				cb(l)
			}
			l.Flush()
		}
	}
}

// IsDirty reports whether l currently has unflushed changes pending.
func (m *Manager) IsDirty(l *live.Log) bool {
	_, dirty := m.dirty[l]
	return dirty
}
