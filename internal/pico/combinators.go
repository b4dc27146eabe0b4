package pico

import (
	"strings"
	"unicode"
)

// Satisfies matches one rune accepted by pred.
func Satisfies(pred func(rune) bool) Parser[rune] {
	return func(s *State) (rune, error) {
		r, ok := s.peek()
		if !ok || !pred(r) {
			return 0, ErrNoMatch
		}
		s.pos++
		return r, nil
	}
}

// OneOf matches one rune contained in chars.
func OneOf(chars string) Parser[rune] {
	return Satisfies(func(r rune) bool { return strings.ContainsRune(chars, r) })
}

// NotOneOf matches one rune not contained in chars.
func NotOneOf(chars string) Parser[rune] {
	return Satisfies(func(r rune) bool { return !strings.ContainsRune(chars, r) })
}

// AnyToken matches any single rune.
func AnyToken(s *State) (rune, error) {
	r, ok := s.next()
	if !ok {
		return 0, ErrNoMatch
	}
	return r, nil
}

// Peek returns the next rune without consuming it, or 0 at end of input.
func Peek(s *State) (rune, error) {
	r, _ := s.peek()
	return r, nil
}

// Remaining consumes and returns the rest of the input.
func Remaining(s *State) (string, error) {
	rest := s.Remaining()
	s.pos = len(s.input)
	return rest, nil
}

// Commit marks the current alternative as chosen: a later non-match in the
// same alternative fails the enclosing Choice, Optional or Many instead of
// backtracking.
func Commit(s *State) (struct{}, error) {
	s.committed = true
	return struct{}{}, nil
}

// Fail never matches.
func Fail[T any](*State) (T, error) {
	var zero T
	return zero, ErrNoMatch
}

// Try runs p and rewinds the stream if it does not match.
func Try[T any](p Parser[T]) Parser[T] {
	return func(s *State) (T, error) {
		v, ok, err := attempt(s, p)
		if err != nil {
			return v, err
		}
		if !ok {
			return v, ErrNoMatch
		}
		return v, nil
	}
}

// Choice returns the result of the first alternative that matches.
func Choice[T any](alternatives ...Parser[T]) Parser[T] {
	return func(s *State) (T, error) {
		for _, p := range alternatives {
			v, ok, err := attempt(s, p)
			if err != nil {
				return v, err
			}
			if ok {
				return v, nil
			}
		}
		var zero T
		return zero, ErrNoMatch
	}
}

// Optional returns def when p does not match.
func Optional[T any](p Parser[T], def T) Parser[T] {
	return func(s *State) (T, error) {
		v, ok, err := attempt(s, p)
		if err != nil {
			return v, err
		}
		if !ok {
			return def, nil
		}
		return v, nil
	}
}

// Many applies p zero or more times.
func Many[T any](p Parser[T]) Parser[[]T] {
	return func(s *State) ([]T, error) {
		var out []T
		for {
			pos := s.pos
			v, ok, err := attempt(s, p)
			if err != nil {
				return nil, err
			}
			if !ok || s.pos == pos {
				if ok {
					out = append(out, v)
				}
				return out, nil
			}
			out = append(out, v)
		}
	}
}

// Many1 applies p one or more times.
func Many1[T any](p Parser[T]) Parser[[]T] {
	many := Many(p)
	return func(s *State) ([]T, error) {
		first, err := p(s)
		if err != nil {
			return nil, err
		}
		rest, err := many(s)
		if err != nil {
			return nil, err
		}
		return append([]T{first}, rest...), nil
	}
}

// NOf applies p exactly n times.
func NOf[T any](p Parser[T], n int) Parser[[]T] {
	return func(s *State) ([]T, error) {
		out := make([]T, 0, n)
		for range n {
			v, err := p(s)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	}
}

// Sep1 parses one or more p separated by sep. A trailing separator is left unconsumed.
func Sep1[T, S any](p Parser[T], sep Parser[S]) Parser[[]T] {
	next := func(s *State) (T, error) {
		if _, err := sep(s); err != nil {
			var zero T
			return zero, err
		}
		return p(s)
	}
	return func(s *State) ([]T, error) {
		first, err := p(s)
		if err != nil {
			return nil, err
		}
		out := []T{first}
		for {
			pos := s.pos
			v, ok, err := attempt(s, next)
			if err != nil {
				return nil, err
			}
			if !ok || s.pos == pos {
				return out, nil
			}
			out = append(out, v)
		}
	}
}

// Sep parses zero or more p separated by sep.
func Sep[T, S any](p Parser[T], sep Parser[S]) Parser[[]T] {
	return Optional(Sep1(p, sep), nil)
}

// Map transforms the result of p.
func Map[T, U any](p Parser[T], f func(T) U) Parser[U] {
	return func(s *State) (U, error) {
		v, err := p(s)
		if err != nil {
			var zero U
			return zero, err
		}
		return f(v), nil
	}
}

// String joins a rune-list parser into a string parser.
func String(p Parser[[]rune]) Parser[string] {
	return Map(p, func(rs []rune) string { return string(rs) })
}

// CaselessString matches text ignoring case and returns the input as written.
func CaselessString(text string) Parser[string] {
	want := []rune(text)
	return func(s *State) (string, error) {
		start := s.pos
		for _, w := range want {
			r, ok := s.next()
			if !ok || unicode.ToLower(r) != unicode.ToLower(w) {
				return "", ErrNoMatch
			}
		}
		return string(s.input[start:s.pos]), nil
	}
}

// Whitespace consumes zero or more whitespace runes.
func Whitespace(s *State) ([]rune, error) {
	return Many(Satisfies(unicode.IsSpace))(s)
}

// Whitespace1 consumes one or more whitespace runes.
func Whitespace1(s *State) ([]rune, error) {
	return Many1(Satisfies(unicode.IsSpace))(s)
}

// Lexeme parses p surrounded by optional whitespace.
func Lexeme[T any](p Parser[T]) Parser[T] {
	return func(s *State) (T, error) {
		if _, err := Whitespace(s); err != nil {
			var zero T
			return zero, err
		}
		v, err := p(s)
		if err != nil {
			return v, err
		}
		_, err = Whitespace(s)
		return v, err
	}
}
