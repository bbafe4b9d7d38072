package rebuild_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.sr.ht/~gioverse/dynlist/data"
	"git.sr.ht/~gioverse/dynlist/live"
	"git.sr.ht/~gioverse/dynlist/rebuild"
)

// box is a mutable handle: its pointer identity is what stands in for
// "the same built child object" across a rebuild, while its rendered
// field can be refreshed in place without losing that identity (a
// reused-but-changed slot keeps its handle and only refreshes the data it
// is bound to).
type box struct {
	rendered string
}

type stubBuilder struct {
	builds    int
	refreshes int
	inflates  int
	rejects   map[string]bool
	// deferred names the dataIndex values ShouldFullyInflate should report
	// false for, producing a placeholder handle until InflateIfRequired
	// completes it.
	deferred map[int]bool
}

func (b *stubBuilder) Build(ctx rebuild.RebuildContext, fullyInflate bool) (interface{}, bool) {
	b.builds++
	data := fmt.Sprintf("%v", ctx.Data)
	if b.rejects[data] {
		return nil, false
	}
	rendered := fmt.Sprintf("%v@%d", ctx.Data, ctx.Index)
	if !fullyInflate {
		rendered = "placeholder:" + rendered
	}
	return &box{rendered: rendered}, true
}

func (b *stubBuilder) Refresh(handle interface{}, ctx rebuild.RebuildContext) {
	b.refreshes++
	handle.(*box).rendered = fmt.Sprintf("%v@%d", ctx.Data, ctx.Index)
}

func (b *stubBuilder) Inflate(handle interface{}, ctx rebuild.RebuildContext) {
	b.inflates++
	handle.(*box).rendered = fmt.Sprintf("%v@%d", ctx.Data, ctx.Index)
}

func (b *stubBuilder) ShouldFullyInflate(index int) bool { return !b.deferred[index] }

func (b *stubBuilder) ResetOrdinalAt(index int) bool { return false }

func render(children []interface{}) []string {
	out := make([]string, len(children))
	for i, c := range children {
		out[i] = c.(*box).rendered
	}
	return out
}

func TestBuildCreatesOneChildPerElement(t *testing.T) {
	arr := live.NewArray([]live.Value{"a", "b", "c"})
	mgr := data.NewManager()
	log := live.NewLog(arr, mgr)
	mgr.Track(log)

	b := &stubBuilder{}
	r := rebuild.New(arr, log, b, rebuild.NumberingNormal, rebuild.Hooks{}, 0, 0)
	children := r.Build()
	require.Len(t, children, 3)
	assert.Equal(t, "a@0", render(children)[0])
	assert.Equal(t, 3, b.builds)
}

func TestRebuildReusesUnchangedChildren(t *testing.T) {
	arr := live.NewArray([]live.Value{"a", "b", "c"})
	mgr := data.NewManager()
	log := live.NewLog(arr, mgr)
	mgr.Track(log)

	b := &stubBuilder{}
	r := rebuild.New(arr, log, b, rebuild.NumberingNormal, rebuild.Hooks{}, 0, 0)
	r.Build()
	require.Equal(t, 3, b.builds)

	arr.Insert(0, "z")
	children := r.Rebuild()

	require.Len(t, children, 4)
	assert.Equal(t, "a@0", render(children)[1], "shifted position reuses the prior handle unchanged even though its context moved")
	assert.Equal(t, 4, b.builds, "only the new element at index 0 triggers a Build call")
}

func TestRebuildAfterClearRebuildsEverything(t *testing.T) {
	arr := live.NewArray([]live.Value{"a", "b"})
	mgr := data.NewManager()
	log := live.NewLog(arr, mgr)
	mgr.Track(log)

	b := &stubBuilder{}
	r := rebuild.New(arr, log, b, rebuild.NumberingNormal, rebuild.Hooks{}, 0, 0)
	r.Build()

	arr.Clear()
	arr.PushBack("x")
	children := r.Rebuild()

	require.Len(t, children, 1)
	assert.Equal(t, "x@0", render(children)[0])
}

func TestNotifyVisibleFiresEdgeHooks(t *testing.T) {
	arr := live.NewArray([]live.Value{"a", "b", "c"})
	mgr := data.NewManager()
	log := live.NewLog(arr, mgr)
	mgr.Track(log)

	var start, end bool
	var seen []int
	r := rebuild.New(arr, log, &stubBuilder{}, rebuild.NumberingNormal, rebuild.Hooks{
		ItemOnScreen:     func(i int) { seen = append(seen, i) },
		StartEdgeReached: func() { start = true },
		EndEdgeReached:   func() { end = true },
	}, 0, 0)
	r.Build()
	r.NotifyVisible(0, 2)

	assert.True(t, start)
	assert.True(t, end)
	assert.Equal(t, []int{0, 1, 2}, seen)
}

func TestBuildSkipsRejectedChildrenWithoutAdvancingInsertIndex(t *testing.T) {
	arr := live.NewArray([]live.Value{"a", "b", "c"})
	mgr := data.NewManager()
	log := live.NewLog(arr, mgr)
	mgr.Track(log)

	b := &stubBuilder{rejects: map[string]bool{"b": true}}
	r := rebuild.New(arr, log, b, rebuild.NumberingNormal, rebuild.Hooks{}, 0, 0)
	children := r.Build()

	require.Len(t, children, 2, "the rejected middle element is not inserted")
	rendered := render(children)
	assert.Equal(t, "a@0", rendered[0])
	assert.Equal(t, "c@1", rendered[1], "insertIndex did not advance past the rejected slot")
}

func TestRebuildStillExcludesUnchangedRejectedSlot(t *testing.T) {
	arr := live.NewArray([]live.Value{"a", "b", "c"})
	mgr := data.NewManager()
	log := live.NewLog(arr, mgr)
	mgr.Track(log)

	b := &stubBuilder{rejects: map[string]bool{"b": true}}
	r := rebuild.New(arr, log, b, rebuild.NumberingNormal, rebuild.Hooks{}, 0, 0)
	r.Build()

	arr.PushBack("d")
	children := r.Rebuild()

	require.Len(t, children, 3, "b was never inserted and remains excluded")
	rendered := render(children)
	assert.Equal(t, "a@0", rendered[0])
	assert.Equal(t, "c@1", rendered[1])
	assert.Equal(t, "d@2", rendered[2])
}

func TestRebuildTreatsPreviouslyRejectedSlotAsNotFound(t *testing.T) {
	arr := live.NewArray([]live.Value{"a", "b", "c"})
	mgr := data.NewManager()
	log := live.NewLog(arr, mgr)
	mgr.Track(log)

	b := &stubBuilder{rejects: map[string]bool{"b": true}}
	r := rebuild.New(arr, log, b, rebuild.NumberingNormal, rebuild.Hooks{}, 0, 0)
	r.Build()

	delete(b.rejects, "b")
	arr.Update(1, "b")
	children := r.Rebuild()

	require.Len(t, children, 3, "b is now accepted and inserted")
	rendered := render(children)
	assert.Equal(t, "a@0", rendered[0])
	assert.Equal(t, "b@1", rendered[1])
	assert.Equal(t, "c@1", rendered[2], "c's handle is reused unchanged from the original build, where it was inserted at index 1")
}

// Starting from ["a","b","c","d"]: insert "x" at 1, update index 2 to
// "C", remove index 3, all before a single Rebuild. The final children
// are [a,x,C,d] where a and d are the original handles (identity
// preserved), C is the original "b" handle with its data replaced, and
// "c" is destroyed.
func TestRebuildReusesRefreshesAndDropsAcrossOneFlush(t *testing.T) {
	arr := live.NewArray([]live.Value{"a", "b", "c", "d"})
	mgr := data.NewManager()
	log := live.NewLog(arr, mgr)
	mgr.Track(log)

	b := &stubBuilder{}
	r := rebuild.New(arr, log, b, rebuild.NumberingNormal, rebuild.Hooks{}, 0, 0)
	before := r.Build()
	require.Len(t, before, 4)
	handleA, handleB, handleD := before[0], before[1], before[3]

	arr.Insert(1, "x")
	arr.Update(2, "C")
	arr.Remove(3, 1)

	after := r.Rebuild()
	require.Len(t, after, 4)
	assert.Equal(t, handleA, after[0], "a's handle is reused unchanged")
	assert.Equal(t, "x@1", after[1].(*box).rendered, "x is a freshly built child for the new slot")
	assert.Same(t, handleB, after[2], "C reuses the old b handle's identity rather than being rebuilt")
	assert.Equal(t, "C@2", after[2].(*box).rendered, "the reused handle's data was refreshed to C")
	assert.Equal(t, 1, b.refreshes, "exactly one reused handle needed a data refresh")
	assert.Equal(t, handleD, after[3], "d's handle is reused unchanged despite shifting position")
}

func TestFindTokenLocatesTaggedContext(t *testing.T) {
	contexts := []rebuild.RebuildContext{
		{Index: 0, Token: "tok-a"},
		{Index: 1, Token: "tok-b"},
	}
	got, ok := rebuild.FindToken(contexts, "tok-b")
	require.True(t, ok)
	assert.Equal(t, 1, got.Index)

	_, ok = rebuild.FindToken(contexts, "missing")
	assert.False(t, ok)
}

func TestLeadingOffsetsContextIndex(t *testing.T) {
	arr := live.NewArray([]live.Value{"a", "b"})
	mgr := data.NewManager()
	log := live.NewLog(arr, mgr)
	mgr.Track(log)

	b := &stubBuilder{}
	r := rebuild.New(arr, log, b, rebuild.NumberingNormal, rebuild.Hooks{}, 2, 1)
	children := r.Build()

	require.Len(t, children, 2)
	assert.Equal(t, "a@2", render(children)[0], "leading fixed children occupy parent indices 0 and 1")
	assert.Equal(t, "b@3", render(children)[1])
	assert.Equal(t, 2, r.FirstChildIndex())
	assert.Equal(t, 4, r.TrailingIndex(), "trailing fixed child belongs right after the 2 middle children")
}

func TestInflateIfRequiredCompletesDeferredPlaceholder(t *testing.T) {
	arr := live.NewArray([]live.Value{"a", "b", "c"})
	mgr := data.NewManager()
	log := live.NewLog(arr, mgr)
	mgr.Track(log)

	b := &stubBuilder{deferred: map[int]bool{1: true}}
	r := rebuild.New(arr, log, b, rebuild.NumberingNormal, rebuild.Hooks{}, 0, 0)
	children := r.Build()

	require.Len(t, children, 3)
	rendered := render(children)
	assert.Equal(t, "a@0", rendered[0], "index 0 is fully inflated immediately")
	assert.Equal(t, "placeholder:b@1", rendered[1], "index 1 is deferred since ShouldFullyInflate reported false")
	assert.Equal(t, "c@2", rendered[2])
	assert.Equal(t, 0, b.inflates)

	r.InflateIfRequired(0) // already fully inflated: no-op
	assert.Equal(t, 0, b.inflates)

	r.InflateIfRequired(1)
	assert.Equal(t, 1, b.inflates)
	assert.Equal(t, "b@1", render(r.Children())[1], "placeholder replaced by the fully inflated render")

	r.InflateIfRequired(1) // already inflated now: no-op
	assert.Equal(t, 1, b.inflates)
}
