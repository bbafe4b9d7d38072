// Package provider defines the capability set shared by indexlist.Provider
// and tokenlist.Provider, the tagged union wrapping either kind, and the
// wire-level error kinds both emit.
package provider

import (
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"git.sr.ht/~gioverse/dynlist/diag"
)

// Kind is one of the error-kind string constants reported to the host.
type Kind string

const (
	InternalError                 Kind = "INTERNAL_ERROR"
	InvalidListID                 Kind = "INVALID_LIST_ID"
	InconsistentListID            Kind = "INCONSISTENT_LIST_ID"
	MissingListItems              Kind = "MISSING_LIST_ITEMS"
	LoadIndexOutOfRange           Kind = "LOAD_INDEX_OUT_OF_RANGE"
	OccupiedListIndex             Kind = "OCCUPIED_LIST_INDEX"
	InconsistentRange             Kind = "INCONSISTENT_RANGE"
	LoadTimeout                   Kind = "LOAD_TIMEOUT"
	DuplicateListVersion          Kind = "DUPLICATE_LIST_VERSION"
	MissingListVersion            Kind = "MISSING_LIST_VERSION"
	MissingListVersionInSendData  Kind = "MISSING_LIST_VERSION_IN_SEND_DATA"
	ListIndexOutOfRange           Kind = "LIST_INDEX_OUT_OF_RANGE"
	InvalidOperation              Kind = "INVALID_OPERATION"
)

// Error pairs a wire Kind with a human-readable message. Site records the
// file:line that raised it, so a host juggling several providers can tell
// which of several code paths producing the same Kind actually fired
// without re-deriving it from a stack trace.
type Error struct {
	Kind    Kind
	Message string
	Site    string
}

func (e *Error) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// New constructs an *Error for kind with a formatted message, tagging it
// with the caller's file:line.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    kind,
		Message: errors.Errorf(format, args...).Error(),
		Site:    diag.Caller(3),
	}
}

// Errors accumulates a provider's pending errors, flushed to the host on
// query. Built on hashicorp/go-multierror, which already models "grow a
// list of errors, read them back as one value."
type Errors struct {
	err *multierror.Error
}

// Push appends err to the pending list.
func (p *Errors) Push(err error) {
	p.err = multierror.Append(p.err, err)
}

// Pending returns the accumulated errors in emission order and clears the
// list (a flush, mirroring how the host drains FetchRequest events).
func (p *Errors) Pending() []error {
	if p.err == nil {
		return nil
	}
	out := make([]error, len(p.err.Errors))
	copy(out, p.err.Errors)
	p.err = nil
	return out
}

// Empty reports whether there are no pending errors.
func (p *Errors) Empty() bool { return p.err == nil || len(p.err.Errors) == 0 }
