package provider_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.sr.ht/~gioverse/dynlist/provider"
)

func TestErrorFormatsKindAndMessage(t *testing.T) {
	err := provider.New(provider.ListIndexOutOfRange, "index %d out of range", 7)
	assert.Equal(t, "LIST_INDEX_OUT_OF_RANGE: index 7 out of range", err.Error())
	assert.Equal(t, provider.ListIndexOutOfRange, err.Kind)
	assert.Contains(t, err.Site, "errors_test.go", "New should tag the raising call site")
}

func TestErrorsAccumulatesAndDrains(t *testing.T) {
	var errs provider.Errors
	assert.True(t, errs.Empty())

	errs.Push(provider.New(provider.InternalError, "first"))
	errs.Push(provider.New(provider.LoadTimeout, "second"))
	assert.False(t, errs.Empty())

	pending := errs.Pending()
	require.Len(t, pending, 2)
	assert.True(t, errs.Empty(), "Pending drains the accumulator")

	assert.Empty(t, errs.Pending(), "a second drain with nothing pushed since is empty")
}

func TestSliceSinkPushAndDrain(t *testing.T) {
	sink := &provider.SliceSink{}
	sink.Push(provider.Event{Name: "dynamicIndexList"})
	sink.Push(provider.Event{Name: "dynamicTokenList"})

	events := sink.Drain()
	require.Len(t, events, 2)
	assert.Empty(t, sink.Drain())
}

func TestProviderTaggedUnionDelegates(t *testing.T) {
	impl := &stubCapability{id: "list1"}
	p := provider.Provider{Which: provider.IndexKind, Impl: impl}

	assert.Equal(t, "list1", p.ListID())
	assert.True(t, p.ProcessUpdate(nil))
	p.Ensure(3)
	assert.Equal(t, 3, impl.ensured)
}

type stubCapability struct {
	id      string
	ensured int
}

func (s *stubCapability) ProcessUpdate(interface{}) bool { return true }
func (s *stubCapability) Ensure(index int)               { s.ensured = index }
func (s *stubCapability) PendingErrors() []error          { return nil }
func (s *stubCapability) ListID() string                  { return s.id }
func (s *stubCapability) ConnectionState() provider.State { return provider.Normal }
func (s *stubCapability) Close()                          {}
