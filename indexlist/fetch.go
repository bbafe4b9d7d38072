package indexlist

import (
	"git.sr.ht/~gioverse/dynlist/bounds"
)

// maybePrefetch checks both edges of the cached window and issues a fetch
// on any side that has not yet reached its bound. A side fetches
// unconditionally, chunked by CacheChunkSize, until its bound is reached.
// A lower side with no declared minimum never fetches; an upper side with
// no declared maximum keeps fetching one chunk at a time.
// ListUpdateBufferSize governs the external view host's edge-proximity
// notifications, not this internal trigger. At most one outstanding fetch
// per side is kept in flight at a time.
func (p *Provider) maybePrefetch() {
	if p.quarantined() {
		return
	}
	// Forward side first, so a fresh construction numbers its forward
	// request before its backward one.
	p.prefetchAfter()
	p.prefetchBefore()
}

func (p *Provider) cachedRange() (lo, hi int64) {
	return p.base, p.base + int64(p.array.Size())
}

func (p *Provider) prefetchBefore() {
	if p.outstandingBefore > 0 || p.exhaustedBefore {
		return
	}
	if p.bnds.Min == bounds.NegInf {
		// No declared lower bound: there is nothing concrete to prefetch
		// toward, so this side never proactively fetches.
		return
	}
	lo, _ := p.cachedRange()
	if lo <= int64(p.bnds.Min) {
		return
	}
	count := int64(p.opts.CacheChunkSize)
	start := lo - count
	if start < int64(p.bnds.Min) {
		start = int64(p.bnds.Min)
		count = lo - start
	}
	if count <= 0 {
		return
	}
	p.outstandingBefore++
	p.coord.Issue(locator{side: sideBefore, start: start, count: count}, p.opts.FetchTimeout, p.opts.FetchRetries)
}

func (p *Provider) prefetchAfter() {
	if p.outstandingAfter > 0 || p.exhaustedAfter {
		return
	}
	_, hi := p.cachedRange()
	if p.bnds.Max != bounds.PosInf && hi >= int64(p.bnds.Max) {
		return
	}
	count := int64(p.opts.CacheChunkSize)
	if p.bnds.Max != bounds.PosInf {
		if remaining := int64(p.bnds.Max) - hi; remaining < count {
			count = remaining
		}
	}
	if count <= 0 {
		return
	}
	p.outstandingAfter++
	p.coord.Issue(locator{side: sideAfter, start: hi, count: count}, p.opts.FetchTimeout, p.opts.FetchRetries)
}
