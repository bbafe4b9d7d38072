// Package fetch implements the correlation-token allocation and
// retry/timeout policy shared by the index- and token-addressed list
// providers.
package fetch

import "time"

// Token uniquely identifies one outstanding fetch request. Tokens are
// allocated from a single monotonic counter starting at 101, shared
// across both provider kinds that use this package.
type Token uint32

const firstToken Token = 101

// TokenSource allocates correlation tokens from one monotonic counter
// starting at 101. Every coordinator in a document shares a single source
// so tokens stay unique across providers.
type TokenSource struct {
	next Token
}

// NewTokenSource returns a source whose first token is 101.
func NewTokenSource() *TokenSource {
	return &TokenSource{next: firstToken}
}

func (s *TokenSource) allocate() Token {
	t := s.next
	s.next++
	return t
}

// Request describes one in-flight fetch. Locator is provider-specific:
// IndexProvider stores a (startIndex, count) pair, TokenProvider stores a
// pageToken string.
type Request struct {
	Token       Token
	Locator     interface{}
	Deadline    time.Time
	RetriesLeft uint8
}

// Hooks are the provider-supplied callbacks a Coordinator drives.
type Hooks struct {
	// Emit is called once when a request is first issued, and again, with
	// a new Request carrying a fresh token and the same Locator, every
	// time it is re-issued after a timeout.
	Emit func(*Request)
	// TimedOut is called when a request's deadline passes. retrying
	// reports whether the coordinator will immediately re-issue it with a
	// new token (true) or has given up (false, retries exhausted).
	TimedOut func(req *Request, retrying bool)
}

// Coordinator allocates correlation tokens, tracks outstanding requests,
// and manages their timeout/retry lifecycle. It is not safe for
// concurrent use; like the rest of this module it assumes all document
// work runs on one logical thread.
type Coordinator struct {
	clock       Clock
	scheduler   Scheduler
	hooks       Hooks
	tokens      *TokenSource
	outstanding map[Token]*Request
}

// NewCoordinator constructs a Coordinator. clock and scheduler are the
// injected time primitives; hooks wire the coordinator back into the
// owning provider. tokens may be shared with other coordinators in the
// same document; nil allocates a private source.
func NewCoordinator(clock Clock, scheduler Scheduler, tokens *TokenSource, hooks Hooks) *Coordinator {
	if tokens == nil {
		tokens = NewTokenSource()
	}
	return &Coordinator{
		clock:       clock,
		scheduler:   scheduler,
		hooks:       hooks,
		tokens:      tokens,
		outstanding: make(map[Token]*Request),
	}
}

// Issue allocates a new correlation token, records the request, emits it
// via hooks.Emit, and schedules a timeout at now+timeout. retries is the
// number of additional attempts allowed after the first timeout.
func (c *Coordinator) Issue(locator interface{}, timeout time.Duration, retries uint8) *Request {
	req := &Request{
		Token:       c.allocate(),
		Locator:     locator,
		RetriesLeft: retries,
	}
	c.arm(req, timeout)
	return req
}

func (c *Coordinator) allocate() Token {
	return c.tokens.allocate()
}

func (c *Coordinator) arm(req *Request, timeout time.Duration) {
	req.Deadline = c.clock.Now().Add(timeout)
	c.outstanding[req.Token] = req
	c.hooks.Emit(req)
	c.scheduler.Schedule(timeout, func() { c.onTimeout(req, timeout) })
}

func (c *Coordinator) onTimeout(req *Request, timeout time.Duration) {
	if _, stillOutstanding := c.outstanding[req.Token]; !stillOutstanding {
		// Cancelled (e.g. a bounds shrink) or already resolved.
		return
	}
	delete(c.outstanding, req.Token)
	if req.RetriesLeft > 0 {
		c.hooks.TimedOut(req, true)
		retried := &Request{
			Token:       c.allocate(),
			Locator:     req.Locator,
			RetriesLeft: req.RetriesLeft - 1,
		}
		c.arm(retried, timeout)
		return
	}
	c.hooks.TimedOut(req, false)
}

// Lookup returns the outstanding request for token, if any.
func (c *Coordinator) Lookup(token Token) (*Request, bool) {
	req, ok := c.outstanding[token]
	return req, ok
}

// Resolve removes token from the outstanding set because a matching
// response arrived (accepted or rejected, either way the request's
// lifetime is over).
func (c *Coordinator) Resolve(token Token) {
	delete(c.outstanding, token)
}

// Oldest returns the least-recently-issued outstanding request for which
// match returns true. An unsolicited response (no correlation token) is
// treated as a response to the oldest outstanding request for the same
// region; this finds that request.
func (c *Coordinator) Oldest(match func(*Request) bool) (*Request, bool) {
	var (
		best    *Request
		bestTok = Token(^uint32(0))
	)
	for tok, req := range c.outstanding {
		if !match(req) {
			continue
		}
		if tok < bestTok {
			bestTok = tok
			best = req
		}
	}
	return best, best != nil
}

// CancelMatching removes every outstanding request for which match
// returns true, used when a bounds shrink makes some in-flight requests
// unnecessary.
func (c *Coordinator) CancelMatching(match func(*Request) bool) {
	for tok, req := range c.outstanding {
		if match(req) {
			delete(c.outstanding, tok)
		}
	}
}

// Outstanding returns the number of in-flight requests.
func (c *Coordinator) Outstanding() int { return len(c.outstanding) }
