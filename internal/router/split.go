package router

import (
	"iter"
	"strings"
)

// Match is one slice of a message's text claimed by a routing entry.
type Match struct {
	// Text is the matched span of the trimmed remaining text.
	Text     string
	Captures map[string]string
	Handler  Handler
	Name     string
}

// Split walks text through the table: each round trims the remaining text,
// takes the first entry (in table order, skipping excluded handlers) whose
// pattern matches anywhere in it, and continues after the match. A match
// that consumes nothing excludes its handler from later rounds. Splitting
// ends when no entry matches or no text remains.
func (c *Compiled) Split(text string) iter.Seq[Match] {
	return func(yield func(Match) bool) {
		excluded := map[Handler]struct{}{}
		remaining := text
		for {
			trimmed := strings.TrimSpace(remaining)
			matched := false
			for _, entry := range c.entries {
				if _, skip := excluded[entry.handler]; skip {
					continue
				}
				loc := entry.re.FindStringSubmatchIndex(trimmed)
				if loc == nil {
					continue
				}
				matched = true
				m := Match{
					Text:     trimmed[loc[0]:loc[1]],
					Captures: captures(entry, trimmed, loc),
					Handler:  entry.handler,
					Name:     entry.name,
				}
				if !yield(m) {
					return
				}
				remaining = trimmed[loc[1]:]
				if remaining == trimmed {
					excluded[entry.handler] = struct{}{}
				}
				break
			}
			if !matched || remaining == "" {
				return
			}
		}
	}
}

func captures(entry compiledEntry, text string, loc []int) map[string]string {
	out := map[string]string{}
	for i, name := range entry.re.SubexpNames() {
		if name == "" || loc[2*i] < 0 {
			continue
		}
		out[name] = text[loc[2*i]:loc[2*i+1]]
	}
	return out
}
