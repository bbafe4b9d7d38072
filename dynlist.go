// Package dynlist ties the index and token list providers, their
// per-provider change logs, and a document-scoped event queue into one
// host-facing surface: construct a provider from host metadata, route
// fetch-response and CRUD payloads back into it, and drain the
// FetchRequest events and errors it accumulates in between.
package dynlist

import (
	"git.sr.ht/~gioverse/dynlist/data"
	"git.sr.ht/~gioverse/dynlist/fetch"
	"git.sr.ht/~gioverse/dynlist/indexlist"
	"git.sr.ht/~gioverse/dynlist/live"
	"git.sr.ht/~gioverse/dynlist/provider"
	"git.sr.ht/~gioverse/dynlist/tokenlist"
	"git.sr.ht/~gioverse/dynlist/wire"
)

// Document owns every list provider constructed within one presentation
// document. listId uniqueness scopes here: two lists in the same Document
// may never share a listId, even across index/token kinds, while separate
// Documents may.
type Document struct {
	clock     fetch.Clock
	scheduler fetch.Scheduler
	sink      provider.Sink
	tokens    *fetch.TokenSource

	data  *data.Manager
	lists map[string]*entry
	errs  provider.Errors
}

type entry struct {
	provider provider.Provider
	log      *live.Log
}

// NewDocument constructs an empty Document. clock/scheduler drive every
// provider's fetch timeouts and CRUD cache-expiry timers; sink receives the
// FetchRequest events every provider emits.
func NewDocument(clock fetch.Clock, scheduler fetch.Scheduler, sink provider.Sink) *Document {
	return &Document{
		clock:     clock,
		scheduler: scheduler,
		sink:      sink,
		tokens:    fetch.NewTokenSource(),
		data:      data.NewManager(),
		lists:     make(map[string]*entry),
	}
}

// Data returns the DataManager backing every provider's ChangeLog, so a
// host can drive Flush() on its own schedule (e.g. once per frame).
func (d *Document) Data() *data.Manager { return d.data }

// NewIndexList constructs and registers a dynamicIndexList provider from
// host metadata. Returns INVALID_LIST_ID if listId collides with an
// already-registered list in this Document.
func (d *Document) NewIndexList(meta wire.IndexConstruct, opts indexlist.Options) (*indexlist.Provider, error) {
	if _, exists := d.lists[meta.ListID]; exists {
		return nil, provider.New(provider.InvalidListID, "listId %q already registered in this document", meta.ListID)
	}
	p, err := indexlist.New(meta, opts, indexlist.Deps{
		Clock:     d.clock,
		Scheduler: d.scheduler,
		Sink:      d.sink,
		Tokens:    d.tokens,
	})
	if err != nil {
		return nil, err
	}
	d.register(meta.ListID, provider.Provider{Which: provider.IndexKind, Impl: p}, p.Array())
	return p, nil
}

// NewTokenList constructs and registers a dynamicTokenList provider from
// host metadata.
func (d *Document) NewTokenList(meta wire.TokenConstruct, opts tokenlist.Options) (*tokenlist.Provider, error) {
	if _, exists := d.lists[meta.ListID]; exists {
		return nil, provider.New(provider.InvalidListID, "listId %q already registered in this document", meta.ListID)
	}
	p, err := tokenlist.New(meta, opts, tokenlist.Deps{
		Clock:     d.clock,
		Scheduler: d.scheduler,
		Sink:      d.sink,
		Tokens:    d.tokens,
	})
	if err != nil {
		return nil, err
	}
	d.register(meta.ListID, provider.Provider{Which: provider.TokenKind, Impl: p}, p.Array())
	return p, nil
}

func (d *Document) register(listID string, p provider.Provider, array *live.Array) {
	log := live.NewLog(array, d.data)
	d.data.Track(log)
	d.lists[listID] = &entry{provider: p, log: log}
}

// Provider looks up a previously registered provider by listId.
func (d *Document) Provider(listID string) (provider.Provider, bool) {
	e, ok := d.lists[listID]
	if !ok {
		return provider.Provider{}, false
	}
	return e.provider, true
}

// Log returns the ChangeLog feeding a rebuild.Rebuilder for listId, so a
// host can wire one rebuilder per list.
func (d *Document) Log(listID string) (*live.Log, bool) {
	e, ok := d.lists[listID]
	if !ok {
		return nil, false
	}
	return e.log, true
}

// Dispatch routes a host-delivered payload (fetch response or CRUD batch)
// to the provider named by listId. An unregistered listId records
// INVALID_LIST_ID against the Document and rejects the payload.
func (d *Document) Dispatch(listID string, payload interface{}) bool {
	e, ok := d.lists[listID]
	if !ok {
		d.errs.Push(provider.New(provider.InvalidListID, "no list %q registered in this document", listID))
		return false
	}
	return e.provider.ProcessUpdate(payload)
}

// DispatchPayload routes a payload by the listId it itself carries. A
// non-object payload is INTERNAL_ERROR, a payload with no listId is
// INVALID_LIST_ID, and an unknown listId is INVALID_LIST_ID; all three
// are recorded against the Document since no provider can own them.
func (d *Document) DispatchPayload(payload interface{}) bool {
	m, err := wire.ToMap(payload)
	if err != nil {
		d.errs.Push(err)
		return false
	}
	id, _ := m["listId"].(string)
	if id == "" {
		d.errs.Push(provider.New(provider.InvalidListID, "payload carries no listId"))
		return false
	}
	return d.Dispatch(id, m)
}

// Teardown unregisters listId, detaching its ChangeLog, cancelling its
// outstanding fetch requests and timers, and discarding its provider. A
// torn-down list accepts no further Dispatch calls.
func (d *Document) Teardown(listID string) {
	e, ok := d.lists[listID]
	if !ok {
		return
	}
	e.provider.Close()
	d.data.Untrack(e.log)
	delete(d.lists, listID)
}

// Close tears down every registered list, detaching all subscriptions and
// cancelling all outstanding requests and timers.
func (d *Document) Close() {
	for id := range d.lists {
		d.Teardown(id)
	}
}

// PendingErrors collects and drains the accumulated errors across every
// registered provider, keyed by listId. Each provider's errors keep their
// emission order; the map itself has no order. Errors no
// provider could own (unroutable or malformed payloads recorded by
// Dispatch/DispatchPayload) appear under the empty-string key.
func (d *Document) PendingErrors() map[string][]error {
	out := make(map[string][]error)
	for id, e := range d.lists {
		if errs := e.provider.PendingErrors(); len(errs) > 0 {
			out[id] = errs
		}
	}
	if unrouted := d.errs.Pending(); len(unrouted) > 0 {
		out[""] = unrouted
	}
	return out
}
