package indexlist

import (
	"sort"

	"git.sr.ht/~gioverse/dynlist/bounds"
	"git.sr.ht/~gioverse/dynlist/fetch"
	"git.sr.ht/~gioverse/dynlist/live"
	"git.sr.ht/~gioverse/dynlist/provider"
	"git.sr.ht/~gioverse/dynlist/wire"
)

// ProcessUpdate implements provider.Capability. payload is either a fetch
// response (has startIndex/items) or a CRUD batch (has operations), and is
// routed to the matching handler by probing its decoded shape.
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
		return p.applyCrudBatch(m)
	}
	return p.applyFetchResponse(m)
}

func (p *Provider) applyFetchResponse(m map[string]interface{}) bool {
	resp, err := wire.DecodeIndexFetchResponse(m)
	if err != nil {
		p.fail(provider.InternalError, "%v", err)
		return false
	}
	if resp.ListID != "" && resp.ListID != p.listID {
		// A known list reached the wrong provider instance: warned, but
		// the items are still accepted, with the mismatched id serving
		// as a correlation-token substitute.
		p.warn(provider.InconsistentListID, "fetch response listId %q != %q", resp.ListID, p.listID)
	}

	var req *fetch.Request
	if resp.CorrelationToken != nil {
		tok := parseToken(*resp.CorrelationToken)
		var ok bool
		req, ok = p.coord.Lookup(tok)
		if !ok {
			// A retired token (resolved, cancelled, or replaced by a
			// retry): the response is dropped with INTERNAL_ERROR but
			// the provider itself stays usable.
			p.warn(provider.InternalError, "no outstanding fetch has correlation token %v", tok)
			return false
		}
	} else {
		// Unsolicited response: resolve against the oldest outstanding
		// request whose locator matches this response's region.
		req, _ = p.coord.Oldest(func(r *fetch.Request) bool {
			loc := r.Locator.(locator)
			return loc.start == resp.StartIndex
		})
	}
	if req == nil {
		p.warn(provider.InternalError, "no outstanding fetch matches response")
		return false
	}
	loc := req.Locator.(locator)
	p.coord.Resolve(req.Token)
	switch loc.side {
	case sideBefore:
		p.outstandingBefore--
	case sideAfter:
		p.outstandingAfter--
	}

	if len(resp.Items) == 0 {
		p.warn(provider.MissingListItems, "fetch response for listId %s carried no items", p.listID)
		p.retryWindow(loc, req.RetriesLeft)
		return false
	}
	if resp.StartIndex != loc.start {
		p.fail(provider.InternalError, "fetch response startIndex %d != requested %d", resp.StartIndex, loc.start)
		return false
	}

	// Items straddling a shrunken boundary are partially accepted: items
	// inside bounds are inserted, items beyond are silently dropped, and
	// LOAD_INDEX_OUT_OF_RANGE is emitted once for the whole response,
	// not per item.
	endIndex := resp.StartIndex + int64(len(resp.Items))
	if resp.StartIndex < int64(p.bnds.Min) || endIndex > int64(p.bnds.Max) {
		p.warn(provider.LoadIndexOutOfRange, "fetch response [%d,%d) straddles bounds [%d,%d)", resp.StartIndex, endIndex, p.bnds.Min, p.bnds.Max)
	}

	// Clipping to bounds trims only the ends of the response, so the
	// accepted items remain one contiguous ascending run.
	var (
		run      []live.Value
		runStart int64
	)
	for i, v := range resp.Items {
		idx := resp.StartIndex + int64(i)
		if idx < int64(p.bnds.Min) || idx >= int64(p.bnds.Max) {
			continue
		}
		if len(run) == 0 {
			runStart = idx
		}
		if _, occupied := p.items[idx]; occupied {
			p.warn(provider.OccupiedListIndex, "fetch response overwrote occupied index %d", idx)
		}
		p.items[idx] = v
		run = append(run, v)
	}
	if len(run) > 0 {
		p.spliceRange(runStart, run)
	}

	if resp.MinimumInclusiveIndex != nil || resp.MaximumExclusiveIndex != nil {
		declMin := int64(p.bnds.Min)
		declMax := int64(p.bnds.Max)
		if resp.MinimumInclusiveIndex != nil {
			declMin = *resp.MinimumInclusiveIndex
		}
		if resp.MaximumExclusiveIndex != nil {
			declMax = *resp.MaximumExclusiveIndex
		}
		narrowed, widened := p.bnds.Shrink(declMin, declMax)
		if widened {
			p.warn(provider.InconsistentRange, "fetch response tried to widen bounds")
		}
		p.bnds = narrowed
		p.evictOutsideBounds()
		p.coord.CancelMatching(func(r *fetch.Request) bool {
			loc := r.Locator.(locator)
			return loc.start < int64(p.bnds.Min) || loc.start >= int64(p.bnds.Max)
		})
	}

	p.maybePrefetch()
	return true
}

// retryWindow re-issues loc with a fresh correlation token, consuming one
// of retriesLeft. MISSING_LIST_ITEMS and fetch timeouts share the same
// FetchRetries budget for a given logical window. Once the budget is
// exhausted it emits INTERNAL_ERROR and gives up, leaving the provider
// Normal and the window unfetched.
func (p *Provider) retryWindow(loc locator, retriesLeft uint8) {
	if retriesLeft == 0 {
		switch loc.side {
		case sideBefore:
			p.exhaustedBefore = true
		case sideAfter:
			p.exhaustedAfter = true
		}
		p.warn(provider.InternalError, "listId %s: window %+v exhausted fetchRetries", p.listID, loc)
		return
	}
	switch loc.side {
	case sideBefore:
		p.outstandingBefore++
	case sideAfter:
		p.outstandingAfter++
	}
	p.coord.Issue(loc, p.opts.FetchTimeout, retriesLeft-1)
}

// evictOutsideBounds drops any cached items that fall outside the current
// bounds, emitting a Remove for each trimmed edge.
func (p *Provider) evictOutsideBounds() {
	lo, hi := p.cachedRange()
	if lo < int64(p.bnds.Min) {
		n := int64(p.bnds.Min) - lo
		if n > int64(p.array.Size()) {
			n = int64(p.array.Size())
		}
		for i := int64(0); i < n; i++ {
			delete(p.items, p.base+i)
		}
		p.array.Remove(0, int(n))
		p.base += n
	}
	_, hi = p.cachedRange()
	if p.bnds.Max != bounds.PosInf && hi > int64(p.bnds.Max) {
		n := hi - int64(p.bnds.Max)
		if n > int64(p.array.Size()) {
			n = int64(p.array.Size())
		}
		start := int64(p.array.Size()) - n
		for i := int64(0); i < n; i++ {
			delete(p.items, p.base+start+i)
		}
		p.array.Remove(int(start), int(n))
	}
}

// spliceRange merges a contiguous run of values, starting at absolute
// index start, into the dense cache window. Positions overlapping the
// window are updated in place; a prefix reaching down to the window's low
// edge is prepended as one Insert (so a whole backward page keeps its
// order and arrives as a single change), and a suffix starting at the
// high edge is appended. A run separated from the window by a gap is
// dropped rather than corrupting the dense window; the gap is closed by a
// follow-up prefetch.
func (p *Provider) spliceRange(start int64, values []live.Value) {
	if p.array.Size() == 0 {
		p.base = start
		p.array.PushBackRange(values)
		return
	}
	lo, hi := p.cachedRange()
	end := start + int64(len(values))
	if end < lo || start > hi {
		return
	}
	oLo, oHi := start, end
	if oLo < lo {
		oLo = lo
	}
	if oHi > hi {
		oHi = hi
	}
	if oLo < oHi {
		p.array.UpdateRange(int(oLo-p.base), values[oLo-start:oHi-start])
	}
	if end > hi {
		p.array.PushBackRange(values[hi-start:])
	}
	// Prepending moves base, so it goes last: the updates and the append
	// above address positions relative to the old base.
	if start < lo {
		p.array.InsertRange(0, values[:lo-start])
		p.base = start
	}
}

func (p *Provider) applyCrudBatch(m map[string]interface{}) bool {
	batch, err := wire.DecodeCrudBatch(m)
	if err != nil {
		p.fail(provider.InternalError, "%v", err)
		return false
	}
	if batch.ListID != "" && batch.ListID != p.listID {
		// Same accepted-anyway posture as the fetch-response path.
		p.warn(provider.InconsistentListID, "CRUD batch listId %q != %q", batch.ListID, p.listID)
	}
	if batch.ListVersion == nil {
		p.fail(provider.MissingListVersionInSendData, "CRUD batch for listId %s missing listVersion", p.listID)
		return false
	}
	version := uint32(*batch.ListVersion)

	switch {
	case version < p.nextVersion:
		p.warn(provider.DuplicateListVersion, "CRUD batch version %d already applied", version)
		return false
	case version == p.nextVersion:
		p.applyOperations(batch.Operations)
		p.nextVersion++
		p.drainPending()
		return p.state != provider.Failed
	default:
		if _, buffered := p.pendingVersions[version]; buffered {
			p.warn(provider.DuplicateListVersion, "CRUD batch version %d already buffered", version)
			return false
		}
		p.pendingVersions[version] = batch
		// The expiry timer restarts only when this version narrows the
		// gap to the lowest buffered version; otherwise the
		// earliest-queued version's deadline governs.
		if p.pendingCancel == nil || version < p.pendingLowest {
			p.pendingLowest = version
			p.armPendingExpiry()
		}
		return true
	}
}

// drainPending applies any buffered future-versioned batches that have
// become contiguous after the version bump above.
func (p *Provider) drainPending() {
	for {
		batch, ok := p.pendingVersions[p.nextVersion]
		if !ok {
			break
		}
		delete(p.pendingVersions, p.nextVersion)
		p.applyOperations(batch.Operations)
		p.nextVersion++
	}
	if len(p.pendingVersions) == 0 && p.pendingCancel != nil {
		p.pendingCancel()
		p.pendingCancel = nil
		p.pendingLowest = 0
	}
}

// armPendingExpiry (re)starts the CacheExpiryTimeout countdown that raises
// MISSING_LIST_VERSION if the version gap never closes.
func (p *Provider) armPendingExpiry() {
	if p.pendingCancel != nil {
		p.pendingCancel()
	}
	want := p.nextVersion
	p.pendingCancel = p.deps.Scheduler.Schedule(p.opts.CacheExpiryTimeout, func() {
		if _, stillMissing := p.pendingVersions[want]; !stillMissing && len(p.pendingVersions) == 0 {
			return
		}
		p.fail(provider.MissingListVersion, "listId %s never received version %d", p.listID, want)
	})
}

func (p *Provider) applyOperations(ops []wire.CrudOperation) {
	for _, op := range ops {
		if p.state == provider.Failed {
			// A mid-batch failure reverts nothing already applied, but
			// every op after it is skipped, even one that would
			// otherwise be in range. Checked directly against p.state
			// rather than quarantined(), which also pushes an
			// INTERNAL_ERROR meant for a fresh top-level ProcessUpdate
			// call, not for the remainder of a batch already failing.
			return
		}
		p.applyOperation(op)
	}
	p.maybePrefetch()
}

func (p *Provider) applyOperation(op wire.CrudOperation) {
	lo, hi := p.cachedRange()
	switch op.Type {
	case "InsertListItem":
		if op.Index < lo || op.Index > hi {
			p.fail(provider.ListIndexOutOfRange, "insert at %d out of cached range [%d,%d]", op.Index, lo, hi)
			return
		}
		p.array.Insert(int(op.Index-p.base), op.Item)
		p.shiftItemsFrom(op.Index, 1)
		p.items[op.Index] = op.Item
		p.bnds = p.bnds.ExtendMax(1)
	case "InsertMultipleItems":
		if len(op.Items) == 0 {
			p.fail(provider.InternalError, "InsertMultipleItems with empty items")
			return
		}
		if op.Index < lo || op.Index > hi {
			p.fail(provider.ListIndexOutOfRange, "insert at %d out of cached range [%d,%d]", op.Index, lo, hi)
			return
		}
		items := make([]live.Value, len(op.Items))
		for i, v := range op.Items {
			items[i] = v
		}
		p.array.InsertRange(int(op.Index-p.base), items)
		p.shiftItemsFrom(op.Index, int64(len(op.Items)))
		for i, v := range op.Items {
			p.items[op.Index+int64(i)] = v
		}
		p.bnds = p.bnds.ExtendMax(int64(len(op.Items)))
	case "SetItem", "ReplaceListItem":
		if op.Index < lo || op.Index >= hi {
			p.fail(provider.ListIndexOutOfRange, "set at %d out of cached range [%d,%d)", op.Index, lo, hi)
			return
		}
		p.array.Update(int(op.Index-p.base), op.Item)
		p.items[op.Index] = op.Item
	case "DeleteListItem":
		if op.Index < lo || op.Index >= hi {
			p.fail(provider.ListIndexOutOfRange, "delete at %d out of cached range [%d,%d)", op.Index, lo, hi)
			return
		}
		p.removeCached(op.Index, 1)
		p.bnds = p.bnds.ShrinkMax(1)
	case "DeleteMultipleItems":
		count := int64(1)
		if op.Count != nil {
			count = *op.Count
		}
		if count <= 0 || op.Index < lo || op.Index+count > hi {
			p.fail(provider.ListIndexOutOfRange, "delete at %d+%d out of cached range [%d,%d)", op.Index, count, lo, hi)
			return
		}
		p.removeCached(op.Index, count)
		p.bnds = p.bnds.ShrinkMax(count)
	default:
		p.fail(provider.InvalidOperation, "unrecognized CRUD operation %q", op.Type)
	}
}

// removeCached drops count cached items starting at idx, renumbering the
// sparse cache keys above them. A delete that empties the cache emits a
// Replace instead of a Remove.
func (p *Provider) removeCached(idx, count int64) {
	if count == int64(p.array.Size()) {
		p.array.Clear()
	} else {
		p.array.Remove(int(idx-p.base), int(count))
	}
	for i := int64(0); i < count; i++ {
		delete(p.items, idx+i)
	}
	p.shiftItemsFrom(idx+count, -count)
}

// shiftItemsFrom renumbers the sparse item cache keys at or after from by
// delta, keeping p.items consistent with an insert/delete that shifted the
// dense array. Keys are moved in an order that never overwrites a key not
// yet moved: highest first for a positive delta, lowest first for a
// negative one.
func (p *Provider) shiftItemsFrom(from int64, delta int64) {
	if delta == 0 {
		return
	}
	keys := make([]int64, 0, len(p.items))
	for k := range p.items {
		if k >= from {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	if delta > 0 {
		for i := len(keys) - 1; i >= 0; i-- {
			k := keys[i]
			v := p.items[k]
			delete(p.items, k)
			p.items[k+delta] = v
		}
	} else {
		for _, k := range keys {
			v := p.items[k]
			delete(p.items, k)
			p.items[k+delta] = v
		}
	}
}

// Ensure implements provider.Capability: hint that index should be fetched
// if not already cached.
func (p *Provider) Ensure(index int) {
	idx := int64(index)
	lo, hi := p.cachedRange()
	if idx >= lo && idx < hi {
		return
	}
	if idx < lo {
		p.exhaustedBefore = false
		p.prefetchBefore()
		return
	}
	p.exhaustedAfter = false
	p.prefetchAfter()
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
