package pico

import (
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"
)

const (
	asciiLetters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digitChars   = "0123456789"
)

var (
	// Comma matches ",".
	Comma = OneOf(",")
	// Dot matches ".".
	Dot = OneOf(".")
	// Hash matches "#".
	Hash = OneOf("#")
	// NotComma matches any rune except ",".
	NotComma = NotOneOf(",")
	// Digit matches one ASCII digit.
	Digit = OneOf(digitChars)
	// Digits matches one or more ASCII digits.
	Digits = Many1(Digit)

	listSeparator = Many1(OneOf(" ,"))
)

// IdentifierOption customizes Identifier.
type IdentifierOption func(*identifierConfig)

type identifierConfig struct {
	first       Parser[rune]
	consecutive Parser[rune]
	mustContain string
}

// WithFirst sets the parser for the leading rune; nil drops the leading rune.
func WithFirst(p Parser[rune]) IdentifierOption {
	return func(c *identifierConfig) { c.first = p }
}

// WithConsecutive sets the parser for the trailing runes.
func WithConsecutive(p Parser[rune]) IdentifierOption {
	return func(c *identifierConfig) { c.consecutive = p }
}

// WithMustContain requires at least one trailing rune from chars; an empty
// set lifts the requirement and allows zero trailing runes.
func WithMustContain(chars string) IdentifierOption {
	return func(c *identifierConfig) { c.mustContain = chars }
}

// Identifier expects a letter followed by letters, digits and underscores,
// at least one of them a digit. This tells identifiers apart from names.
func Identifier(opts ...IdentifierOption) Parser[string] {
	cfg := identifierConfig{
		first:       OneOf(asciiLetters),
		consecutive: OneOf(asciiLetters + digitChars + "_"),
		mustContain: digitChars,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	var tail Parser[[]rune]
	if cfg.mustContain == "" {
		tail = Many(cfg.consecutive)
	} else {
		tail = Many1(Choice(cfg.consecutive, OneOf(cfg.mustContain)))
	}
	return func(s *State) (string, error) {
		var out []rune
		if cfg.first != nil {
			r, err := cfg.first(s)
			if err != nil {
				return "", err
			}
			out = append(out, r)
		}
		chars, err := tail(s)
		if err != nil {
			return "", err
		}
		if cfg.mustContain != "" && !strings.ContainsAny(string(chars), cfg.mustContain) {
			return "", ErrNoMatch
		}
		return string(append(out, chars...)), nil
	}
}

// Identifiers parses identifiers separated by whitespace and/or commas.
func Identifiers(opts ...IdentifierOption) Parser[[]string] {
	return Sep(Identifier(opts...), listSeparator)
}

// IDs parses alphanumeric identifiers that may start with a digit.
func IDs() Parser[[]string] {
	return Identifiers(WithFirst(nil))
}

// Separator parses sep (a comma by default) with surrounding whitespace.
func Separator(sep ...Parser[rune]) Parser[rune] {
	p := Comma
	if len(sep) > 0 && sep[0] != nil {
		p = sep[0]
	}
	return Lexeme(p)
}

// Floating parses an optional digit run, an optional "," or "." (normalized
// to "."), and an optional digit run. An empty result is accepted.
func Floating(s *State) (string, error) {
	whole, err := Optional(Digits, nil)(s)
	if err != nil {
		return "", err
	}
	sep, err := Optional(Choice(Comma, Dot), 0)(s)
	if err != nil {
		return "", err
	}
	frac, err := Optional(Digits, nil)(s)
	if err != nil {
		return "", err
	}
	out := string(whole)
	if sep != 0 {
		out += "."
	}
	return out + string(frac), nil
}

var nameWords = Sep1(String(Many(Satisfies(unicode.IsLetter))), Whitespace1)

// Name parses whitespace-separated alphabetic words joined by single
// spaces. A comma ends the name; an empty name does not match.
func Name(s *State) (string, error) {
	words, err := nameWords(s)
	if err != nil {
		return "", err
	}
	name := strings.TrimSpace(join(words))
	if name == "" {
		return "", ErrNoMatch
	}
	return name, nil
}

// OneOfStrings matches one of choices ignoring case, tried in order.
func OneOfStrings(choices ...string) Parser[string] {
	alternatives := make([]Parser[string], len(choices))
	for i, c := range choices {
		alternatives[i] = CaselessString(c)
	}
	return Choice(alternatives...)
}

var unitDays = map[rune]int{
	'd': 1,
	'w': 7,
	'm': 30,
	'y': 365,
}

// maxDeltaDays is the longest span of days a time.Duration can hold.
const maxDeltaDays = int(math.MaxInt64 / int64(24*time.Hour))

var timeUnit = OneOfStrings("day", "week", "wk", "month", "mo", "year", "yr", "d", "w", "m", "y")

// Timedelta parses a quantity and a unit (days, weeks, months, years and
// their abbreviations) into a duration of whole days. A month counts as 30
// days and a year as 365.
func Timedelta(s *State) (time.Duration, error) {
	digits, err := Digits(s)
	if err != nil {
		return 0, err
	}
	quantity, err := strconv.Atoi(string(digits))
	if err != nil {
		return 0, ErrNoMatch
	}
	if _, err := Whitespace(s); err != nil {
		return 0, err
	}
	unit, err := timeUnit(s)
	if err != nil {
		return 0, err
	}
	if _, err := Optional(OneOf("sS"), 0)(s); err != nil {
		return 0, err
	}
	days := unitDays[unicode.ToLower([]rune(unit)[0])]
	if quantity > maxDeltaDays/days {
		return 0, ErrNoMatch
	}
	return time.Duration(quantity*days) * 24 * time.Hour, nil
}

// Tag parses an optional "#" followed by one or more ASCII letters.
func Tag(s *State) (string, error) {
	if _, err := Optional(Hash, 0)(s); err != nil {
		return "", err
	}
	letters, err := Many1(OneOf(asciiLetters))(s)
	if err != nil {
		return "", err
	}
	return string(letters), nil
}

// Tags parses tags separated by whitespace and/or commas.
func Tags(s *State) ([]string, error) {
	return Sep(Parser[string](Tag), listSeparator)(s)
}
