// Package indexlist implements the index-addressed dynamicIndexList
// provider: bounds ownership, a sparse item cache, fetch translation, and
// strictly-versioned CRUD application.
package indexlist

import "time"

// Options is the recognized configuration surface for an index provider.
type Options struct {
	// Type overrides the source-type tag used in emitted events. Defaults
	// to "dynamicIndexList".
	Type string
	// CacheChunkSize is how many items a proactive fetch requests at a
	// time. Defaults to 10.
	CacheChunkSize int
	// ListUpdateBufferSize is how many items near each edge the external
	// view host should treat as "close enough" to trigger an
	// item-on-screen-driven Ensure call. The provider threads it through
	// for configuration completeness; its own proactive-fetch trigger
	// (maybePrefetch) is unconditional. Defaults to 5.
	ListUpdateBufferSize int
	// FetchRetries is how many times a fetch is retried after a timeout
	// before giving up. Defaults to 2.
	FetchRetries uint8
	// FetchTimeout is how long a fetch request waits before retrying.
	// Defaults to 5000ms.
	FetchTimeout time.Duration
	// CacheExpiryTimeout bounds how long an out-of-order CRUD version may
	// sit in the pending buffer before MISSING_LIST_VERSION is raised.
	// Defaults to 5000ms.
	CacheExpiryTimeout time.Duration
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{
		Type:                 "dynamicIndexList",
		CacheChunkSize:       10,
		ListUpdateBufferSize: 5,
		FetchRetries:         2,
		FetchTimeout:         5000 * time.Millisecond,
		CacheExpiryTimeout:   5000 * time.Millisecond,
	}
}

func (o *Options) applyDefaults() {
	d := DefaultOptions()
	if o.Type == "" {
		o.Type = d.Type
	}
	if o.CacheChunkSize <= 0 {
		o.CacheChunkSize = d.CacheChunkSize
	}
	if o.ListUpdateBufferSize <= 0 {
		o.ListUpdateBufferSize = d.ListUpdateBufferSize
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = d.FetchTimeout
	}
	if o.CacheExpiryTimeout <= 0 {
		o.CacheExpiryTimeout = d.CacheExpiryTimeout
	}
	// Zero is indistinguishable from "not configured", so it takes the
	// default like the other fields. Callers that truly want zero
	// retries are rare enough to live with the default of 2.
	if o.FetchRetries == 0 {
		o.FetchRetries = d.FetchRetries
	}
}
