package router

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// KeywordPattern builds a pattern matching a prefixed keyword followed by
// free text, e.g. "+reg John Smith".
type KeywordPattern struct {
	// Terms are regular expressions; longer terms are tried first.
	Terms []string
	// Group names the capture for the text after the keyword. Default "text".
	Group string
	// Prefix is the literal keyword marker. Default "+".
	Prefix string
	// NoSplit lets the captured text run over later prefixes instead of
	// stopping at the next one.
	NoSplit bool
}

// Keyword returns the pattern for terms with the default options.
func Keyword(terms ...string) string {
	return KeywordPattern{Terms: terms}.String()
}

func (k KeywordPattern) String() string {
	group := k.Group
	if group == "" {
		group = "text"
	}
	prefix := k.Prefix
	if prefix == "" {
		prefix = "+"
	}
	terms := append([]string(nil), k.Terms...)
	sort.SliceStable(terms, func(i, j int) bool { return len(terms[i]) > len(terms[j]) })

	body := "[^" + regexp.QuoteMeta(prefix) + "]*"
	if k.NoSplit {
		body = ".*"
	}
	return fmt.Sprintf(`^%s\s*(%s)(\s+(?P<%s>%s)|$)`,
		regexp.QuoteMeta(prefix), strings.Join(terms, "|"), group, body)
}
