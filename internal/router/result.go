package router

import (
	"fmt"
)

// Outcome classifies how a handler invocation ended.
type Outcome int

const (
	// OutcomeOK is a normal return, with or without a reply.
	OutcomeOK Outcome = iota
	// OutcomeFormatFailure marks the request erroneous; routing continues.
	OutcomeFormatFailure
	// OutcomeStop ends routing for the message without marking it erroneous.
	OutcomeStop
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeFormatFailure:
		return "format_failure"
	case OutcomeStop:
		return "stop"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result is the tagged value a handler returns. The reply is optional and
// may be deferred until the engine asks for it.
type Result struct {
	Outcome Outcome

	reply    string
	hasReply bool
	deferred func() (string, bool)
}

// Ok returns a normal result without a reply.
func Ok() Result {
	return Result{Outcome: OutcomeOK}
}

// Reply returns a normal result replying with text.
func Reply(text string) Result {
	return Result{Outcome: OutcomeOK, reply: text, hasReply: true}
}

// Lazy returns a normal result whose reply is computed by fn when the
// engine resolves it. fn reports false for no reply.
func Lazy(fn func() (string, bool)) Result {
	return Result{Outcome: OutcomeOK, deferred: fn}
}

// FormatFailure returns a format failure, replying with text when given.
func FormatFailure(text ...string) Result {
	r := Result{Outcome: OutcomeFormatFailure}
	if len(text) > 0 {
		r.reply, r.hasReply = text[0], true
	}
	return r
}

// Stop returns an explicit stop, replying with text when given.
func Stop(text ...string) Result {
	r := Result{Outcome: OutcomeStop}
	if len(text) > 0 {
		r.reply, r.hasReply = text[0], true
	}
	return r
}

// ReplyText resolves the reply, invoking a deferred reply at most once.
func (r *Result) ReplyText() (string, bool) {
	if r.deferred != nil {
		r.reply, r.hasReply = r.deferred()
		r.deferred = nil
	}
	return r.reply, r.hasReply
}

// FormatError is returned from a parse or handle phase to report a format
// failure carrying user-facing reply text.
type FormatError struct {
	Text string
}

// FormatErrorf builds a FormatError with a formatted reply.
func FormatErrorf(format string, args ...any) *FormatError {
	return &FormatError{Text: fmt.Sprintf(format, args...)}
}

func (e *FormatError) Error() string {
	return "format error: " + e.Text
}

// StopError is returned to end routing for a message, optionally replying.
type StopError struct {
	Text string
}

func (e *StopError) Error() string {
	if e.Text == "" {
		return "stop"
	}
	return "stop: " + e.Text
}
