package pico

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/itchyny/timefmt-go"
)

// DefaultDateFormats are the input formats accepted when Date is called
// without arguments.
var DefaultDateFormats = []string{"%m/%d/%Y"}

// CommonDateFormats is a broad set of day-level input formats.
var CommonDateFormats = []string{
	"%Y-%m-%d", "%m/%d/%Y", "%m/%d/%y",
	"%b %d %Y", "%b %d, %Y",
	"%d %b %Y", "%d %b, %Y",
	"%B %d %Y", "%B %d, %Y",
	"%d %B %Y", "%d %B, %Y",
}

var (
	shortMonths = monthNames("Jan")
	longMonths  = monthNames("January")
)

func monthNames(layout string) []string {
	names := make([]string, 12)
	for i := range names {
		names[i] = time.Date(1900, time.Month(i+1), 1, 0, 0, 0, 0, time.UTC).Format(layout)
	}
	return names
}

type dateToken struct {
	directive byte
	parser    Parser[string]
}

// Date parses a date using the first of formats that matches. Formats use
// strftime directives %Y %y %m %d %b %B; other runes match literally.
// An unsupported directive is reported as an error, not a non-match.
func Date(formats ...string) Parser[time.Time] {
	if len(formats) == 0 {
		formats = DefaultDateFormats
	}
	alternatives := make([]Parser[time.Time], len(formats))
	for i, format := range formats {
		alternatives[i] = dateFormat(format)
	}
	return Choice(alternatives...)
}

func dateFormat(format string) Parser[time.Time] {
	tokens, tokenErr := tokenizeDateFormat(format)
	return func(s *State) (time.Time, error) {
		if tokenErr != nil {
			return time.Time{}, tokenErr
		}
		var (
			b          strings.Builder
			month, day string
		)
		for _, tok := range tokens {
			text, err := tok.parser(s)
			if err != nil {
				return time.Time{}, err
			}
			switch tok.directive {
			case 'm':
				month = text
			case 'd':
				day = text
			}
			b.WriteString(text)
		}
		t, err := timefmt.Parse(b.String(), format)
		if err != nil {
			return time.Time{}, ErrNoMatch
		}
		// time.Date normalizes overflow such as February 30; reject it instead
		if month != "" && !sameNumber(month, int(t.Month())) {
			return time.Time{}, ErrNoMatch
		}
		if day != "" && !sameNumber(day, t.Day()) {
			return time.Time{}, ErrNoMatch
		}
		return t, nil
	}
}

func sameNumber(text string, want int) bool {
	n, err := strconv.Atoi(text)
	return err == nil && n == want
}

func tokenizeDateFormat(format string) ([]dateToken, error) {
	var tokens []dateToken
	runes := []rune(format)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r != '%' {
			tokens = append(tokens, dateToken{parser: Map(OneOf(string(r)), func(r rune) string { return string(r) })})
			continue
		}
		if i+1 >= len(runes) {
			return nil, fmt.Errorf("pico: dangling %% in date format %q", format)
		}
		i++
		var p Parser[string]
		switch runes[i] {
		case 'Y':
			p = String(NOf(Digit, 4))
		case 'y':
			p = String(NOf(Digit, 2))
		case 'm', 'd':
			p = String(Digits)
		case 'b':
			p = OneOfStrings(shortMonths...)
		case 'B':
			p = OneOfStrings(longMonths...)
		default:
			return nil, fmt.Errorf("pico: unsupported date directive %%%c in %q", runes[i], format)
		}
		tokens = append(tokens, dateToken{directive: byte(runes[i]), parser: p})
	}
	return tokens, nil
}
