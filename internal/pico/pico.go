// Package pico is a small parser-combinator toolkit for the parse phase of
// message handlers. Parsers are plain functions over a rune stream; every
// combinator that tries alternatives restores the stream position on a
// non-match, and Commit turns later non-matches into hard failures.
package pico

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoMatch reports that a parser did not match at the current position.
	ErrNoMatch = errors.New("pico: no match")
	// ErrCommitted reports a non-match after Commit; alternatives are not tried.
	ErrCommitted = errors.New("pico: commit / cut called")
)

// State is the input stream shared by a parser run.
type State struct {
	input     []rune
	pos       int
	committed bool
}

// NewState returns a stream positioned at the start of text.
func NewState(text string) *State {
	return &State{input: []rune(text)}
}

// Pos returns the current rune offset.
func (s *State) Pos() int { return s.pos }

// AtEnd reports whether the input is exhausted.
func (s *State) AtEnd() bool { return s.pos >= len(s.input) }

// Remaining returns the unconsumed input.
func (s *State) Remaining() string { return string(s.input[s.pos:]) }

func (s *State) peek() (rune, bool) {
	if s.AtEnd() {
		return 0, false
	}
	return s.input[s.pos], true
}

func (s *State) next() (rune, bool) {
	r, ok := s.peek()
	if ok {
		s.pos++
	}
	return r, ok
}

// Parser consumes from a State and returns a value or an error. A parser
// that fails with ErrNoMatch may leave the position anywhere; combinators
// that backtrack restore it.
type Parser[T any] func(s *State) (T, error)

// Run applies p to text and returns the value and the unconsumed rest.
func Run[T any](p Parser[T], text string) (T, string, error) {
	s := NewState(text)
	v, err := p(s)
	if err != nil {
		var zero T
		return zero, text, err
	}
	return v, s.Remaining(), nil
}

// IsNoMatch reports whether err is a non-match or a committed non-match.
func IsNoMatch(err error) bool {
	return errors.Is(err, ErrNoMatch) || errors.Is(err, ErrCommitted)
}

// attempt runs p with its own commit scope. A plain non-match rewinds the
// stream and reports ok=false; a non-match after Commit becomes ErrCommitted.
func attempt[T any](s *State, p Parser[T]) (T, bool, error) {
	var zero T
	pos, outer := s.pos, s.committed
	s.committed = false
	v, err := p(s)
	cut := s.committed
	s.committed = outer
	switch {
	case err == nil:
		return v, true, nil
	case errors.Is(err, ErrNoMatch) && cut:
		return zero, false, fmt.Errorf("%w at offset %d", ErrCommitted, s.pos)
	case errors.Is(err, ErrNoMatch):
		s.pos = pos
		return zero, false, nil
	default:
		return zero, false, err
	}
}

// ParseFunc is the handler-facing form of a wrapped parser: it reads its
// input from the named captures of a route match.
type ParseFunc[T any] func(captures map[string]string) (T, bool, error)

// Wrap adapts p to read the capture named arg. A missing or empty capture
// is replaced by a single newline so primitives always see input. A
// non-match (committed or not) yields ok=false without error.
func Wrap[T any](arg string, p Parser[T]) ParseFunc[T] {
	return func(captures map[string]string) (T, bool, error) {
		var zero T
		text := captures[arg]
		if text == "" {
			text = "\n"
		}
		v, _, err := Run(p, text)
		if err != nil {
			if IsNoMatch(err) {
				return zero, false, nil
			}
			return zero, false, err
		}
		return v, true, nil
	}
}

// Parse runs a rune-list parser and joins the result, mirroring how most
// primitives are tested in isolation.
func Parse(p Parser[[]rune], text string) (string, error) {
	v, _, err := Run(p, text)
	if err != nil {
		return "", err
	}
	return string(v), nil
}

func join(parts []string) string {
	return strings.Join(parts, " ")
}
