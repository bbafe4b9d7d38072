package indexlist

import (
	"git.sr.ht/~gioverse/dynlist/bounds"
	"git.sr.ht/~gioverse/dynlist/fetch"
	"git.sr.ht/~gioverse/dynlist/live"
	"git.sr.ht/~gioverse/dynlist/provider"
	"git.sr.ht/~gioverse/dynlist/wire"
)

// side identifies which edge of the cached window a fetch or proactive
// buffer check concerns.
type side uint8

const (
	sideBefore side = iota
	sideAfter
)

// locator is the fetch.Request payload this provider issues: a contiguous
// [start, start+count) window on a given side.
type locator struct {
	side  side
	start int64
	count int64
}

// Deps are the injected collaborators a Provider needs beyond the host
// payloads themselves. Timers never touch the OS directly; everything
// time-driven goes through Clock and Scheduler so tests stay
// deterministic.
type Deps struct {
	Clock     fetch.Clock
	Scheduler fetch.Scheduler
	Sink      provider.Sink
	// Tokens is the correlation-token source, shared with every other
	// provider in the same document so tokens stay globally unique. nil
	// gives the provider a private counter.
	Tokens *fetch.TokenSource
}

// Provider is the dynamicIndexList state machine.
type Provider struct {
	listID string
	opts   Options
	deps   Deps

	bnds  bounds.Bounds
	base  int64 // index represented by array position 0
	items map[int64]live.Value
	array *live.Array

	nextVersion     uint32
	pendingVersions map[uint32]wire.CrudBatch
	pendingLowest   uint32
	pendingCancel   fetch.CancelFunc

	state provider.State
	errs  provider.Errors

	coord *fetch.Coordinator

	outstandingBefore int
	outstandingAfter  int
	exhaustedBefore   bool
	exhaustedAfter    bool
}

// New constructs a Provider from host metadata. Missing listId/startIndex,
// or bounds that exclude startIndex while items are present, produce an
// error and a nil Provider. A missing type takes Options.Type.
func New(meta wire.IndexConstruct, opts Options, deps Deps) (*Provider, error) {
	opts.applyDefaults()
	if meta.Type == "" {
		meta.Type = opts.Type
	}
	if meta.ListID == "" {
		return nil, provider.New(provider.InternalError, "missing listId")
	}
	if meta.StartIndex == nil {
		return nil, provider.New(provider.InternalError, "missing startIndex")
	}
	start := *meta.StartIndex

	min := int64(bounds.NegInf)
	if meta.MinimumInclusiveIndex != nil {
		min = *meta.MinimumInclusiveIndex
	}
	max := int64(bounds.PosInf)
	if meta.MaximumExclusiveIndex != nil {
		max = *meta.MaximumExclusiveIndex
	}
	b := bounds.Bounds{Min: min, Max: max}
	if !b.Valid() {
		return nil, provider.New(provider.InternalError, "minimumInclusiveIndex > maximumExclusiveIndex")
	}
	// An empty permitted window (min == max) is a legal degenerate
	// construction as long as there is nothing to seed at startIndex; a
	// non-empty seed outside the window is an error.
	if len(meta.Items) > 0 {
		if start < min {
			return nil, provider.New(provider.InternalError, "minimumInclusiveIndex > startIndex")
		}
		if start >= max {
			return nil, provider.New(provider.InternalError, "maximumExclusiveIndex <= startIndex")
		}
	}

	p := &Provider{
		listID:          meta.ListID,
		opts:            opts,
		deps:            deps,
		bnds:            b,
		base:            start,
		items:           make(map[int64]live.Value),
		array:           live.NewArray(nil),
		nextVersion:     1,
		pendingVersions: make(map[uint32]wire.CrudBatch),
	}
	p.coord = fetch.NewCoordinator(deps.Clock, deps.Scheduler, deps.Tokens, fetch.Hooks{
		Emit:     p.emit,
		TimedOut: p.onTimedOut,
	})

	values := make([]live.Value, len(meta.Items))
	for i, v := range meta.Items {
		values[i] = v
		p.items[start+int64(i)] = v
	}
	p.array.PushBackRange(values)

	p.maybePrefetch()
	return p, nil
}

// ListID implements provider.Capability.
func (p *Provider) ListID() string { return p.listID }

// ConnectionState implements provider.Capability.
func (p *Provider) ConnectionState() provider.State { return p.state }

// Array returns the backing LiveArray, for wiring to a live.Log / rebuilder.
func (p *Provider) Array() *live.Array { return p.array }

// Bounds returns the provider's current window.
func (p *Provider) Bounds() bounds.Bounds { return p.bnds }

// PendingErrors implements provider.Capability.
func (p *Provider) PendingErrors() []error { return p.errs.Pending() }

// Close implements provider.Capability: every outstanding fetch request
// is cancelled (their armed timeouts become no-ops) and the
// pending-version expiry timer is stopped, so no callback fires after
// document teardown.
func (p *Provider) Close() {
	p.coord.CancelMatching(func(*fetch.Request) bool { return true })
	p.outstandingBefore = 0
	p.outstandingAfter = 0
	if p.pendingCancel != nil {
		p.pendingCancel()
		p.pendingCancel = nil
	}
}

func (p *Provider) fail(kind provider.Kind, format string, args ...interface{}) {
	p.errs.Push(provider.New(kind, format, args...))
	p.state = provider.Failed
}

func (p *Provider) warn(kind provider.Kind, format string, args ...interface{}) {
	p.errs.Push(provider.New(kind, format, args...))
}

// quarantined rejects any further mutation once the provider has failed.
// The array keeps its last valid contents so the view stays usable.
func (p *Provider) quarantined() bool {
	if p.state == provider.Failed {
		p.errs.Push(provider.New(provider.InternalError, "provider %s is failed", p.listID))
		return true
	}
	return false
}

func (p *Provider) emit(req *fetch.Request) {
	if p.deps.Sink == nil {
		return
	}
	loc := req.Locator.(locator)
	p.deps.Sink.Push(provider.Event{
		Name: p.opts.Type,
		Value: map[string]interface{}{
			"listId":           p.listID,
			"correlationToken": req.Token,
			"startIndex":       loc.start,
			"count":            loc.count,
		},
	})
}

func (p *Provider) onTimedOut(req *fetch.Request, retrying bool) {
	p.warn(provider.LoadTimeout, "fetch %v timed out", req.Token)
	if retrying {
		return
	}
	loc := req.Locator.(locator)
	switch loc.side {
	case sideBefore:
		p.outstandingBefore--
	case sideAfter:
		p.outstandingAfter--
	}
	// FetchRetries exhausted on a pure timeout path (no response ever
	// arrived): give up, same as an exhausted MISSING_LIST_ITEMS budget.
	switch loc.side {
	case sideBefore:
		p.exhaustedBefore = true
	case sideAfter:
		p.exhaustedAfter = true
	}
	p.warn(provider.InternalError, "listId %s: window %+v exhausted fetchRetries", p.listID, loc)
}
