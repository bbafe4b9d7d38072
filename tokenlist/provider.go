// Package tokenlist implements the token-addressed dynamicTokenList
// provider: bidirectional page-token fetch translation with no CRUD
// acceptance.
package tokenlist

import (
	"time"

	"git.sr.ht/~gioverse/dynlist/fetch"
	"git.sr.ht/~gioverse/dynlist/live"
	"git.sr.ht/~gioverse/dynlist/provider"
	"git.sr.ht/~gioverse/dynlist/wire"
)

// Options is the recognized configuration surface for a token provider.
// Unlike the index provider there is no cache-chunk sizing: a page's size
// is whatever the host returns.
type Options struct {
	Type         string
	FetchRetries uint8
	FetchTimeout time.Duration
}

// DefaultOptions returns the documented defaults for dynamicTokenList.
func DefaultOptions() Options {
	return Options{
		Type:         "dynamicTokenList",
		FetchRetries: 2,
		FetchTimeout: 5000 * time.Millisecond,
	}
}

func (o *Options) applyDefaults() {
	d := DefaultOptions()
	if o.Type == "" {
		o.Type = d.Type
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = d.FetchTimeout
	}
	if o.FetchRetries == 0 {
		o.FetchRetries = d.FetchRetries
	}
}

// Deps are the injected collaborators a Provider needs beyond host payloads.
type Deps struct {
	Clock     fetch.Clock
	Scheduler fetch.Scheduler
	Sink      provider.Sink
	// Tokens is the correlation-token source, shared with every other
	// provider in the same document so tokens stay globally unique. nil
	// gives the provider a private counter.
	Tokens *fetch.TokenSource
}

type direction uint8

const (
	dirBackward direction = iota
	dirForward
)

// locator is the fetch.Request payload this provider issues.
type locator struct {
	dir       direction
	pageToken string
}

// Provider is the dynamicTokenList state machine. It keeps a dense
// live.Array of pages seen so far, plus the outstanding forward and
// backward page tokens still eligible for fetch.
type Provider struct {
	listID string
	opts   Options
	deps   Deps

	array *live.Array

	backwardToken *string // nil once exhausted
	forwardToken  *string // nil once exhausted

	state provider.State
	errs  provider.Errors

	coord *fetch.Coordinator

	outstandingBackward bool
	outstandingForward  bool
}

// New constructs a Provider from host metadata.
func New(meta wire.TokenConstruct, opts Options, deps Deps) (*Provider, error) {
	opts.applyDefaults()
	if meta.Type == "" {
		meta.Type = opts.Type
	}
	if meta.ListID == "" {
		return nil, provider.New(provider.InternalError, "missing listId")
	}
	if meta.PageToken == "" {
		return nil, provider.New(provider.InternalError, "missing pageToken")
	}
	if meta.Items == nil {
		return nil, provider.New(provider.InternalError, "missing items")
	}

	p := &Provider{
		listID: meta.ListID,
		opts:   opts,
		deps:   deps,
		array:  live.NewArray(nil),
	}
	p.coord = fetch.NewCoordinator(deps.Clock, deps.Scheduler, deps.Tokens, fetch.Hooks{
		Emit:     p.emit,
		TimedOut: p.onTimedOut,
	})

	values := make([]live.Value, len(meta.Items))
	for i, v := range meta.Items {
		values[i] = v
	}
	p.array.PushBackRange(values)

	// pageToken identifies the initially-loaded page and is never reused
	// for further fetches: a side without its own token starts exhausted.
	if meta.BackwardPageToken != nil {
		p.backwardToken = meta.BackwardPageToken
	}
	if meta.ForwardPageToken != nil {
		p.forwardToken = meta.ForwardPageToken
	}

	p.maybePrefetch()
	return p, nil
}

// ListID implements provider.Capability.
func (p *Provider) ListID() string { return p.listID }

// ConnectionState implements provider.Capability.
func (p *Provider) ConnectionState() provider.State { return p.state }

// Array returns the backing LiveArray.
func (p *Provider) Array() *live.Array { return p.array }

// PendingErrors implements provider.Capability.
func (p *Provider) PendingErrors() []error { return p.errs.Pending() }

// Close implements provider.Capability: every outstanding fetch request
// is cancelled so its armed timeout becomes a no-op after document
// teardown.
func (p *Provider) Close() {
	p.coord.CancelMatching(func(*fetch.Request) bool { return true })
	p.outstandingBackward = false
	p.outstandingForward = false
}

func (p *Provider) fail(kind provider.Kind, format string, args ...interface{}) {
	p.errs.Push(provider.New(kind, format, args...))
	p.state = provider.Failed
}

func (p *Provider) warn(kind provider.Kind, format string, args ...interface{}) {
	p.errs.Push(provider.New(kind, format, args...))
}

func (p *Provider) quarantined() bool {
	if p.state == provider.Failed {
		p.errs.Push(provider.New(provider.InternalError, "provider %s is failed", p.listID))
		return true
	}
	return false
}

func (p *Provider) maybePrefetch() {
	if p.quarantined() {
		return
	}
	// Forward side first, so a fresh construction numbers its forward
	// request before its backward one.
	if p.forwardToken != nil && !p.outstandingForward {
		p.outstandingForward = true
		p.coord.Issue(locator{dir: dirForward, pageToken: *p.forwardToken}, p.opts.FetchTimeout, p.opts.FetchRetries)
	}
	if p.backwardToken != nil && !p.outstandingBackward {
		p.outstandingBackward = true
		p.coord.Issue(locator{dir: dirBackward, pageToken: *p.backwardToken}, p.opts.FetchTimeout, p.opts.FetchRetries)
	}
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
			"pageToken":        loc.pageToken,
		},
	})
}

func (p *Provider) onTimedOut(req *fetch.Request, retrying bool) {
	p.warn(provider.LoadTimeout, "fetch %v timed out", req.Token)
	if retrying {
		return
	}
	loc := req.Locator.(locator)
	switch loc.dir {
	case dirBackward:
		p.outstandingBackward = false
	case dirForward:
		p.outstandingForward = false
	}
	p.warn(provider.InternalError, "listId %s: pageToken %q exhausted fetchRetries", p.listID, loc.pageToken)
}

// ProcessUpdate implements provider.Capability. dynamicTokenList accepts
// only fetch responses; any payload shaped like a CRUD batch is rejected
// with INVALID_OPERATION.
func (p *Provider) ProcessUpdate(payload interface{}) bool {
	if p.quarantined() {
		return false
	}
	m, err := wire.ToMap(payload)
	if err != nil {
		p.fail(provider.InternalError, "%v", err)
		return false
	}
	if _, isCrud := m["operations"]; isCrud {
		p.fail(provider.InvalidOperation, "dynamicTokenList does not accept CRUD operations")
		return false
	}
	return p.applyFetchResponse(m)
}

func (p *Provider) applyFetchResponse(m map[string]interface{}) bool {
	resp, err := wire.DecodeTokenFetchResponse(m)
	if err != nil {
		p.fail(provider.InternalError, "%v", err)
		return false
	}
	if resp.ListID != "" && resp.ListID != p.listID {
		// Warned but still accepted, same as the index provider.
		p.warn(provider.InconsistentListID, "fetch response listId %q != %q", resp.ListID, p.listID)
	}

	var req *fetch.Request
	if resp.CorrelationToken != nil {
		tok := parseToken(*resp.CorrelationToken)
		var ok bool
		req, ok = p.coord.Lookup(tok)
		if !ok {
			// Retired token: drop with INTERNAL_ERROR, provider stays
			// usable.
			p.warn(provider.InternalError, "no outstanding fetch has correlation token %v", tok)
			return false
		}
	} else {
		req, _ = p.coord.Oldest(func(r *fetch.Request) bool {
			loc := r.Locator.(locator)
			return loc.pageToken == resp.PageToken
		})
	}
	if req == nil {
		p.warn(provider.InternalError, "no outstanding fetch matches response")
		return false
	}
	loc := req.Locator.(locator)
	if resp.PageToken != "" && resp.PageToken != loc.pageToken {
		// An unrecognized pageToken is dropped: the token must match the
		// request it claims to answer.
		p.warn(provider.InvalidListID, "fetch response pageToken %q != requested %q", resp.PageToken, loc.pageToken)
		return false
	}
	p.coord.Resolve(req.Token)
	switch loc.dir {
	case dirBackward:
		p.outstandingBackward = false
	case dirForward:
		p.outstandingForward = false
	}

	if len(resp.Items) == 0 {
		p.warn(provider.MissingListItems, "fetch response for listId %s carried no items", p.listID)
		p.retryWindow(loc, req.RetriesLeft)
		return false
	}

	values := make([]live.Value, len(resp.Items))
	for i, v := range resp.Items {
		values[i] = v
	}
	switch loc.dir {
	case dirBackward:
		p.array.InsertRange(0, values)
		p.backwardToken = resp.NextPageToken
	case dirForward:
		p.array.PushBackRange(values)
		p.forwardToken = resp.NextPageToken
	}

	p.maybePrefetch()
	return true
}

// retryWindow re-issues loc with a fresh correlation token, consuming one
// of retriesLeft. Once exhausted it emits INTERNAL_ERROR and stops
// retrying; the provider stays Normal. No exhausted marker is kept: the
// side's page token stays set, so the next maybePrefetch pass (an Ensure
// call, or any accepted response) issues that page again with a fresh
// FetchRetries budget.
func (p *Provider) retryWindow(loc locator, retriesLeft uint8) {
	if retriesLeft == 0 {
		p.warn(provider.InternalError, "listId %s: pageToken %q exhausted fetchRetries", p.listID, loc.pageToken)
		return
	}
	switch loc.dir {
	case dirBackward:
		p.outstandingBackward = true
	case dirForward:
		p.outstandingForward = true
	}
	p.coord.Issue(loc, p.opts.FetchTimeout, retriesLeft-1)
}

// Ensure implements provider.Capability. dynamicTokenList has no
// index-addressed cache to target, so Ensure simply retries whichever edge
// is not currently in flight and not yet exhausted.
func (p *Provider) Ensure(index int) {
	p.maybePrefetch()
}

func parseToken(s string) fetch.Token {
	var n uint64
	for _, r := range s {
		if r < '0' || r > '9' {
			break
		}
		n = n*10 + uint64(r-'0')
	}
	return fetch.Token(n)
}
