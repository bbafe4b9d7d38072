package provider

// State is the connection state of a Provider. Once Failed, every further
// update attempt is rejected with InternalError until document teardown.
type State uint8

const (
	Normal State = iota
	Failed
)

// Event is the single FetchRequest event family a Provider pushes onto
// the host's event queue. Name identifies which provider
// kind raised it; Value carries listId/correlationToken plus either
// {startIndex, count} or {pageToken}, left as a loosely-typed map so both
// provider kinds can populate it without a shared locator type.
type Event struct {
	Name  string
	Value map[string]interface{}
}

// Sink receives Events pushed by a Provider. A host drains it; tests can
// use a simple slice-backed Sink.
type Sink interface {
	Push(Event)
}

// SliceSink is a Sink that appends Events to a slice, useful for tests and
// for a host that polls rather than reacts.
type SliceSink struct {
	Events []Event
}

// Push implements Sink.
func (s *SliceSink) Push(e Event) { s.Events = append(s.Events, e) }

// Drain returns and clears the accumulated events.
func (s *SliceSink) Drain() []Event {
	out := s.Events
	s.Events = nil
	return out
}

// Capability is the common shape both provider kinds implement. The two
// share no code beyond the fetch coordinator; this is deliberately a
// capability set, not a base type.
type Capability interface {
	// ProcessUpdate applies a host-supplied payload (fetch response or
	// CRUD batch) and reports whether it was accepted at all (a
	// partially accepted response still returns true).
	ProcessUpdate(payload interface{}) bool
	// Ensure hints that the provider should fetch data around index,
	// typically called from view-host edge/visibility callbacks routed
	// through a rebuild.Rebuilder.
	Ensure(index int)
	// PendingErrors drains and returns the errors accumulated since the
	// last call.
	PendingErrors() []error
	// ListID returns the host-assigned identifier this provider owns.
	ListID() string
	// ConnectionState reports whether the provider has been quarantined.
	ConnectionState() State
	// Close cancels every outstanding fetch request and pending timer,
	// so document teardown releases no callback that could fire
	// afterwards.
	Close()
}

// Variant tags which concrete provider a Provider wraps.
type Variant uint8

const (
	IndexKind Variant = iota
	TokenKind
)

// Provider is the tagged union over the two provider kinds. Impl is
// non-nil; Which selects how to interpret it.
type Provider struct {
	Which Variant
	Impl  Capability
}

// ProcessUpdate delegates to the wrapped implementation.
func (p Provider) ProcessUpdate(payload interface{}) bool { return p.Impl.ProcessUpdate(payload) }

// Ensure delegates to the wrapped implementation.
func (p Provider) Ensure(index int) { p.Impl.Ensure(index) }

// PendingErrors delegates to the wrapped implementation.
func (p Provider) PendingErrors() []error { return p.Impl.PendingErrors() }

// ListID delegates to the wrapped implementation.
func (p Provider) ListID() string { return p.Impl.ListID() }

// Close delegates to the wrapped implementation.
func (p Provider) Close() { p.Impl.Close() }
