// Package rebuild reconciles a parent view's children against a
// live.Array's change history while preserving child identity and scroll
// position. It never measures, paints, or scrolls anything itself; a host
// Builder owns those concerns.
package rebuild

import (
	"git.sr.ht/~gioverse/dynlist/live"
)

// Numbering controls how RebuildContext.Ordinal advances across children.
// Normal counts every child in sequence; Reset restarts the count at 1
// whenever Builder.ResetOrdinalAt reports a boundary, for numbered
// containers whose ordinal run restarts per logical section.
type Numbering uint8

const (
	NumberingNormal Numbering = iota
	NumberingReset
)

// RebuildContext is the per-child data-binding environment a Builder
// receives: the raw value plus every derived binding a template
// expression may reference.
type RebuildContext struct {
	Data      live.Value
	Index     int // position within the parent's full child list (leading fixed children included)
	DataIndex int // position within the backing LiveArray
	Length    int // total LiveArray size at rebuild time
	Ordinal   int
	Token     string // correlation token of the nested provider that produced Data, if any; the Rebuilder never sets it
	// Item is non-nil only while this child is a deferred placeholder
	// awaiting Rebuilder.InflateIfRequired: set when
	// Builder.ShouldFullyInflate reported false at build time, cleared
	// once inflation completes.
	Item live.Value
}

// Builder is the host collaborator that turns a RebuildContext into a
// presentable child and reports per-index layout hints. Implementations
// own rendering; this package only decides which RebuildContext an index
// gets and whether a prior child handle can be reused.
type Builder interface {
	// Build materializes a child for ctx and reports whether it was
	// accepted. A false accepted mirrors the middle-item template's
	// `when` rejecting the slot: the data index still advances but no
	// child is inserted and insertIndex/ordinal do not move. The first
	// Build calls it for every index; Rebuild calls it only for an index
	// with no reusable prior child (a newly inserted slot, or one whose
	// earlier child was rejected). A reused slot whose data changed goes
	// to Refresh instead.
	//
	// fullyInflate is Builder.ShouldFullyInflate's verdict for this
	// dataIndex. When false, Build may construct a lightweight placeholder
	// instead of the full child (ctx.Item is set to mark it as deferred)
	// and Rebuilder.InflateIfRequired later calls Inflate to complete it.
	// `when` rejection is still decided up front regardless of inflation
	// mode: accepted has the same meaning either way.
	Build(ctx RebuildContext, fullyInflate bool) (handle interface{}, accepted bool)
	// Refresh updates an already-built handle in place when the slot it
	// occupies is reused across a rebuild but NewToOld reported its data
	// changed. The handle itself, and whether the slot was previously
	// accepted, never change; only the data the handle is bound to is
	// refreshed, and anything computed from it should be recomputed.
	Refresh(handle interface{}, ctx RebuildContext)
	// Inflate completes a deferred placeholder handle in place, called
	// only when the handle was built with fullyInflate == false and
	// ctx.Item is still set.
	Inflate(handle interface{}, ctx RebuildContext)
	// ShouldFullyInflate reports whether index must be built eagerly even
	// if it falls outside the currently visible range (e.g. for
	// accessibility traversal).
	ShouldFullyInflate(index int) bool
	// ResetOrdinalAt reports whether index begins a new ordinal run, only
	// consulted when the Rebuilder is constructed with NumberingReset.
	ResetOrdinalAt(index int) bool
}

// Hooks are the optional edge-notification callbacks a host may set to
// learn about scroll-relevant events when NotifyVisible reports the
// visible range.
type Hooks struct {
	// ItemOnScreen is called once per index in [firstVisible, lastVisible].
	ItemOnScreen func(index int)
	// StartEdgeReached is called when firstVisible == 0.
	StartEdgeReached func()
	// EndEdgeReached is called when lastVisible == array.Size()-1.
	EndEdgeReached func()
}

// child is one materialized entry, tracked by the dense array position it
// occupied as of the last rebuild. A nil *child at a given position means
// that position's when rejected it: the slot exists in the data but has no
// inserted child.
type child struct {
	ctx      RebuildContext
	handle   interface{}
	deferred bool // true until InflateIfRequired completes a lazy placeholder
}

// Rebuilder reconciles children against an Array's change history, using a
// live.Log's NewToOld mapping to decide whether each new-index child can
// reuse a prior handle (same handle kept, preserving scroll position and
// any per-child widget state, and refreshed in place if its data changed)
// or must be built fresh.
//
// Rebuilder owns only the data-bound middle region: leading and trailing
// report how many fixed children ("firstItem" / "lastItem") the parent
// places before and after that region, so the
// RebuildContext.Index values this package hands out line up with the
// parent's real child list rather than a 0-based count of the middle region
// alone.
type Rebuilder struct {
	array     *live.Array
	log       *live.Log
	builder   Builder
	numbering Numbering
	hooks     Hooks
	leading   int
	trailing  int

	children []*child // indexed by the PREVIOUS rebuild's dataIndex positions
	built    bool
}

// New constructs a Rebuilder over array, consuming change notifications
// from log (which must be backed by the same array). numbering selects how
// RebuildContext.Ordinal is computed. leading and trailing are the counts
// of fixed children the parent places before and after the data-bound
// middle region this Rebuilder owns (0 for a parent with no firstItem/
// lastItem).
func New(array *live.Array, log *live.Log, builder Builder, numbering Numbering, hooks Hooks, leading, trailing int) *Rebuilder {
	return &Rebuilder{
		array:     array,
		log:       log,
		builder:   builder,
		numbering: numbering,
		hooks:     hooks,
		leading:   leading,
		trailing:  trailing,
	}
}

// Children returns the current child handles in array order, omitting any
// dataIndex whose when rejected it.
func (r *Rebuilder) Children() []interface{} {
	out := make([]interface{}, 0, len(r.children))
	for _, c := range r.children {
		if c != nil {
			out = append(out, c.handle)
		}
	}
	return out
}

// Contexts returns the RebuildContext each current child was built or
// reused with, in array order. The Rebuilder does not fill
// RebuildContext.Token, so every context returned here has an empty Token
// and FindToken matches none of them to a nested provider's correlation
// token.
func (r *Rebuilder) Contexts() []RebuildContext {
	out := make([]RebuildContext, 0, len(r.children))
	for _, c := range r.children {
		if c != nil {
			out = append(out, c.ctx)
		}
	}
	return out
}

// FindToken walks contexts for the one tagged with token, as produced by a
// nested provider's fetch response, as when a list's items are themselves
// embedded documents. Returns false if no context carries that token.
func FindToken(contexts []RebuildContext, token string) (RebuildContext, bool) {
	for _, c := range contexts {
		if c.Token == token {
			return c, true
		}
	}
	return RebuildContext{}, false
}

// FirstChildIndex reports the position, within the parent's full child
// list, where the data-bound middle region begins, immediately after any
// fixed leading child.
func (r *Rebuilder) FirstChildIndex() int { return r.leading }

// TrailingIndex reports the position, within the parent's full child list,
// immediately after the last currently-materialized middle-region child,
// where a fixed trailing child (if trailing > 0) belongs. A host re-checks
// this after every Build/Rebuild, since the middle region's length changes
// independently of the fixed children around it.
func (r *Rebuilder) TrailingIndex() int { return r.leading + len(r.Children()) }

// Build performs the first reconciliation pass, materializing a child for
// every element currently in the array whose when the Builder accepts.
// Rejected slots leave insertIndex and ordinal unchanged. Call once
// before the first Rebuild.
func (r *Rebuilder) Build() []interface{} {
	r.children = make([]*child, r.array.Size())
	insertIndex, ordinal := 0, 0
	for i := 0; i < r.array.Size(); i++ {
		candidate := r.nextOrdinal(i, ordinal)
		c := r.buildChild(i, insertIndex, candidate)
		if c == nil {
			continue
		}
		r.children[i] = c
		insertIndex++
		ordinal = candidate
	}
	r.built = true
	return r.Children()
}

// Rebuild reconciles the current children against every change recorded in
// the log since the last Rebuild (or Build), then flushes the log. For
// each new-index position it asks the log whether the data backing that
// position changed since the previous pass. A position whose prior child
// survives keeps that child's handle (and therefore any scroll offset or
// focus state tied to it), passed to Builder.Refresh if its data changed;
// a new position, or one whose prior child was rejected, is built via
// Builder.Build.
func (r *Rebuilder) Rebuild() []interface{} {
	if !r.built {
		return r.Build()
	}
	if r.log.Replaced() {
		// The whole array was reset (Clear, or total replacement); no
		// per-index correspondence survives, so rebuild unconditionally.
		out := r.Build()
		r.log.Flush()
		return out
	}

	next := make([]*child, r.array.Size())
	insertIndex, ordinal := 0, 0
	for i := 0; i < r.array.Size(); i++ {
		candidate := r.nextOrdinal(i, ordinal)

		old, changed := r.log.NewToOld(i)
		// old < 0 is a new slot; old >= len(r.children) or
		// children[old] == nil means the walker passed oldIndex without
		// finding it because it was previously filtered out by when.
		// Both fall through to building a fresh child below. A found
		// prior child is reused regardless of changed, only refreshing
		// its data when changed is set, never rebuilding a new one.
		if old >= 0 && old < len(r.children) && r.children[old] != nil {
			reused := r.children[old]
			reused.ctx = r.contextFor(i, insertIndex, candidate, !reused.deferred)
			if changed {
				r.builder.Refresh(reused.handle, reused.ctx)
			}
			next[i] = reused
			insertIndex++
			ordinal = candidate
			continue
		}
		c := r.buildChild(i, insertIndex, candidate)
		if c == nil {
			continue
		}
		next[i] = c
		insertIndex++
		ordinal = candidate
	}
	r.children = next
	r.log.Flush()
	return r.Children()
}

// InflateIfRequired completes lazy inflation for the child currently
// occupying dataIndex, if Build produced it as a deferred placeholder. A
// host calls this once the view reports the child is about to become
// visible. No-op if dataIndex has no child, or the child there is already
// fully inflated.
func (r *Rebuilder) InflateIfRequired(dataIndex int) {
	if dataIndex < 0 || dataIndex >= len(r.children) {
		return
	}
	c := r.children[dataIndex]
	if c == nil || !c.deferred {
		return
	}
	r.builder.Inflate(c.handle, c.ctx)
	c.deferred = false
	c.ctx.Item = nil
}

// buildChild materializes a fresh child for dataIndex, honoring
// Builder.ShouldFullyInflate. Returns nil if the Builder's when rejected
// the slot.
func (r *Rebuilder) buildChild(dataIndex, insertIndex, ordinal int) *child {
	fullyInflate := r.builder.ShouldFullyInflate(dataIndex)
	ctx := r.contextFor(dataIndex, insertIndex, ordinal, fullyInflate)
	handle, accepted := r.builder.Build(ctx, fullyInflate)
	if !accepted {
		return nil
	}
	return &child{ctx: ctx, handle: handle, deferred: !fullyInflate}
}

func (r *Rebuilder) nextOrdinal(index int, prev int) int {
	if r.numbering == NumberingReset && r.builder.ResetOrdinalAt(index) {
		return 1
	}
	return prev + 1
}

// contextFor builds the RebuildContext for the element at dataIndex.
// insertIndex and ordinal are the walker's running counts, which only the
// caller advances and only when this slot ends up accepted. fullyInflate
// controls whether Item is populated as a deferred-inflation marker.
func (r *Rebuilder) contextFor(dataIndex int, insertIndex int, ordinal int, fullyInflate bool) RebuildContext {
	data := r.array.At(dataIndex)
	ctx := RebuildContext{
		Data:      data,
		Index:     r.leading + insertIndex,
		DataIndex: dataIndex,
		Length:    r.array.Size(),
		Ordinal:   ordinal,
	}
	if !fullyInflate {
		ctx.Item = data
	}
	return ctx
}

// NotifyVisible reports the currently visible child range (inclusive,
// array-position addressed) to Hooks, driving ItemOnScreen/edge callbacks.
// A host calls this after layout, using whatever viewport math it owns;
// this package treats the range as opaque input.
func (r *Rebuilder) NotifyVisible(firstVisible, lastVisible int) {
	if r.hooks.ItemOnScreen != nil {
		for i := firstVisible; i <= lastVisible; i++ {
			r.hooks.ItemOnScreen(i)
		}
	}
	if firstVisible <= 0 && r.hooks.StartEdgeReached != nil {
		r.hooks.StartEdgeReached()
	}
	if lastVisible >= r.array.Size()-1 && r.hooks.EndEdgeReached != nil {
		r.hooks.EndEdgeReached()
	}
}
