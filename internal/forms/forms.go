// Package forms holds the built-in message handlers and turns configured
// routes into a routing table.
package forms

import (
	"errors"
	"fmt"
	"strings"

	"github.com/memohai/smsrouter/internal/config"
	"github.com/memohai/smsrouter/internal/router"
)

// Symbol paths of the built-in handlers.
const (
	SymbolEcho          = "forms.Echo"
	SymbolPing          = "forms.Ping"
	SymbolRegister      = "forms.Register"
	SymbolMustRegister  = "forms.MustRegister"
	SymbolNotUnderstood = "forms.NotUnderstood"
	SymbolInput         = "forms.Input"
)

// Install registers every built-in handler on reg.
func Install(reg *router.Registry) error {
	builtins := []struct {
		path    string
		handler router.Handler
	}{
		{SymbolEcho, Echo{}},
		{SymbolPing, Ping{}},
		{SymbolRegister, RegisterHandler},
		{SymbolMustRegister, MustRegister{}},
		{SymbolNotUnderstood, NotUnderstood{}},
		{SymbolInput, InputHandler},
	}
	for _, b := range builtins {
		if err := reg.Register(b.path, b.handler); err != nil {
			return err
		}
	}
	return nil
}

// DefaultRoutes is the table used when the configuration lists no routes.
func DefaultRoutes() []config.RouteConfig {
	return []config.RouteConfig{
		{Keyword: "echo", Handler: SymbolEcho},
		{Keyword: "ping", Handler: SymbolPing},
		{Keyword: "register|reg", Handler: SymbolRegister},
		{Pattern: `^`, Handler: SymbolMustRegister},
		{Keyword: `\w+`, Handler: SymbolNotUnderstood},
		{Pattern: `^(?P<text>.*)$`, Handler: SymbolInput},
	}
}

// Table converts configured routes into a routing table of symbol
// references. Keyword routes expand through router.KeywordPattern.
func Table(routes []config.RouteConfig) (router.Table, error) {
	if len(routes) == 0 {
		routes = DefaultRoutes()
	}
	table := make(router.Table, 0, len(routes))
	for i, rc := range routes {
		pattern, err := routePattern(rc)
		if err != nil {
			return nil, fmt.Errorf("route %d: %w", i, err)
		}
		handler := strings.TrimSpace(rc.Handler)
		if handler == "" {
			return nil, fmt.Errorf("route %d: handler is required", i)
		}
		table = append(table, router.SymbolRoute(pattern, handler))
	}
	return table, nil
}

func routePattern(rc config.RouteConfig) (string, error) {
	pattern := rc.Pattern
	keyword := strings.TrimSpace(rc.Keyword)
	switch {
	case pattern != "" && keyword != "":
		return "", errors.New("pattern and keyword are mutually exclusive")
	case keyword != "":
		return router.KeywordPattern{
			Terms:  strings.Split(keyword, "|"),
			Prefix: rc.Prefix,
		}.String(), nil
	case strings.TrimSpace(pattern) == "":
		return "", errors.New("pattern or keyword is required")
	}
	return pattern, nil
}
