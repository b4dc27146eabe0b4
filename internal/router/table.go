package router

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"
)

// Ref points at a handler either directly or by registered symbol path.
type Ref struct {
	handler Handler
	symbol  string
}

// Direct references h itself.
func Direct(h Handler) Ref {
	return Ref{handler: h}
}

// Symbol references a handler registered under path.
func Symbol(path string) Ref {
	return Ref{symbol: path}
}

func (r Ref) String() string {
	if r.handler != nil {
		return HandlerName(r.handler)
	}
	return r.symbol
}

func (r Ref) identity() string {
	if r.handler == nil {
		return "symbol:" + r.symbol
	}
	v := reflect.ValueOf(r.handler)
	switch v.Kind() {
	case reflect.Pointer, reflect.Func, reflect.Map, reflect.Chan, reflect.Slice, reflect.UnsafePointer:
		return fmt.Sprintf("direct:%T@%x", r.handler, v.Pointer())
	default:
		return fmt.Sprintf("direct:%T:%#v", r.handler, r.handler)
	}
}

// Entry is one row of a routing table.
type Entry struct {
	Pattern string
	Handler Ref
}

// Route builds an entry for a pattern and a direct handler.
func Route(pattern string, h Handler) Entry {
	return Entry{Pattern: pattern, Handler: Direct(h)}
}

// SymbolRoute builds an entry for a pattern and a handler symbol path.
func SymbolRoute(pattern, path string) Entry {
	return Entry{Pattern: pattern, Handler: Symbol(path)}
}

// Table is an ordered routing table; earlier entries win.
type Table []Entry

func (t Table) fingerprint() string {
	var b strings.Builder
	for _, e := range t {
		fmt.Fprintf(&b, "%d:%s\x00%s\x01", len(e.Pattern), e.Pattern, e.Handler.identity())
	}
	return b.String()
}

// ConfigError reports a routing table that cannot be compiled. It is fatal
// and surfaces when the table is first compiled, never during dispatch.
type ConfigError struct {
	Index   int
	Pattern string
	Handler string
	Err     error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("bad routing table entry %d (%q -> %s): %v", e.Index, e.Pattern, e.Handler, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

type compiledEntry struct {
	re      *regexp.Regexp
	handler Handler
	name    string
}

// Compiled is a routing table with patterns compiled and symbols resolved.
type Compiled struct {
	entries []compiledEntry
}

// Len returns the number of entries.
func (c *Compiled) Len() int { return len(c.entries) }

// Handlers returns the resolved handlers in table order.
func (c *Compiled) Handlers() []Handler {
	items := make([]Handler, len(c.entries))
	for i, e := range c.entries {
		items[i] = e.handler
	}
	return items
}

// Compile resolves every entry of table against reg and compiles its
// pattern case-insensitively.
func Compile(table Table, reg *Registry) (*Compiled, error) {
	compiled := &Compiled{entries: make([]compiledEntry, 0, len(table))}
	for i, entry := range table {
		cfgErr := func(err error) error {
			return &ConfigError{Index: i, Pattern: entry.Pattern, Handler: entry.Handler.String(), Err: err}
		}
		if strings.TrimSpace(entry.Pattern) == "" {
			return nil, cfgErr(fmt.Errorf("pattern is required"))
		}
		h := entry.Handler.handler
		if h == nil {
			if entry.Handler.symbol == "" {
				return nil, cfgErr(fmt.Errorf("handler is required"))
			}
			if err := validSymbol(entry.Handler.symbol); err != nil {
				return nil, cfgErr(err)
			}
			resolved, ok := reg.Resolve(entry.Handler.symbol)
			if !ok {
				return nil, cfgErr(fmt.Errorf("unknown handler symbol: %s", entry.Handler.symbol))
			}
			h = resolved
		}
		if !reflect.TypeOf(h).Comparable() {
			return nil, cfgErr(fmt.Errorf("handler is not comparable: %T", h))
		}
		re, err := regexp.Compile("(?i)" + entry.Pattern)
		if err != nil {
			return nil, cfgErr(err)
		}
		compiled.entries = append(compiled.entries, compiledEntry{re: re, handler: h, name: HandlerName(h)})
	}
	return compiled, nil
}

// Cache memoizes compiled tables by structural fingerprint. Concurrent
// first compiles of the same table may both run; the last one stored wins.
type Cache struct {
	mu    sync.RWMutex
	items map[string]*Compiled
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{items: map[string]*Compiled{}}
}

// Get returns the compiled form of table, compiling it on first use.
// Errors are not cached.
func (c *Cache) Get(table Table, reg *Registry) (*Compiled, error) {
	key := table.fingerprint()
	c.mu.RLock()
	compiled, ok := c.items[key]
	c.mu.RUnlock()
	if ok {
		return compiled, nil
	}
	compiled, err := Compile(table, reg)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.items[key] = compiled
	c.mu.Unlock()
	return compiled, nil
}

// Len returns the number of cached tables.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Invalidate drops every cached table, e.g. after registry changes.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.items = map[string]*Compiled{}
	c.mu.Unlock()
}
