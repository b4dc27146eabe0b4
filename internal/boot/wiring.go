package boot

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/memohai/smsrouter/internal/config"
	"github.com/memohai/smsrouter/internal/forms"
	"github.com/memohai/smsrouter/internal/metrics"
	"github.com/memohai/smsrouter/internal/router"
	"github.com/memohai/smsrouter/internal/store"
	"github.com/memohai/smsrouter/internal/transport"
	"github.com/memohai/smsrouter/internal/transport/httpgw"
	"github.com/memohai/smsrouter/internal/transport/loopback"
	"github.com/memohai/smsrouter/internal/transport/poller"
)

// NewRouter builds the dispatch engine for the configured routing table,
// with the built-in forms registered under their symbols.
func NewRouter(log *slog.Logger, cfg config.Config, st store.Store) (*router.Router, error) {
	symbols := router.NewRegistry()
	if err := forms.Install(symbols); err != nil {
		return nil, err
	}
	table, err := forms.Table(cfg.Routes)
	if err != nil {
		return nil, fmt.Errorf("routes: %w", err)
	}
	r := router.New(st, table, router.WithRegistry(symbols), router.WithLogger(log))
	if _, err := r.Compile(); err != nil {
		return nil, err
	}
	metrics.ObserveRouter(r.Hooks())
	return r, nil
}

// NewTransports builds every configured transport and registers it. HTTP
// gateways subscribe to new outgoing rows on st so replies go out as soon
// as they are queued. Poll-based transports drive an in-memory device.
func NewTransports(log *slog.Logger, cfg config.Config, rt *RuntimeConfig, st *store.Observed, r transport.Router) (*transport.Registry, error) {
	reg := transport.NewRegistry()
	for _, name := range sortedNames(cfg.Transports) {
		tc, err := cfg.Transports[name].Normalize()
		if err != nil {
			return nil, fmt.Errorf("transport %s: %w", name, err)
		}
		base := transport.NewBase(log, name, st, r, transport.WithDebug(rt.Debug))
		metrics.ObserveTransport(name, base.Hooks())

		var t transport.Transport
		switch tc.Kind {
		case config.KindHTTP:
			gw := httpgw.New(base, httpgw.OptionsFromConfig(tc), nil)
			st.OnOutgoingCreated(gw.OnOutgoing)
			t = gw
		case config.KindPoller:
			p := poller.New(base, poller.NewMemoryDevice(), poller.OptionsFromConfig(tc))
			p.OnDeadLetter(metrics.DeadLetter(name))
			t = p
		case config.KindLoopback:
			t = loopback.New(base, nil)
		default:
			return nil, fmt.Errorf("transport %s: unknown kind: %s", name, tc.Kind)
		}
		if err := reg.Register(t); err != nil {
			return nil, err
		}
		log.Info("transport configured",
			slog.String("transport", name),
			slog.String("kind", tc.Kind))
	}
	return reg, nil
}

// NewLoopback builds a standalone loopback transport, used by the CLI to
// feed text through the router without a running service.
func NewLoopback(log *slog.Logger, name string, st store.Store, r transport.Router, debug bool, now func() time.Time) *loopback.Gateway {
	base := transport.NewBase(log, name, st, r, transport.WithDebug(debug), transport.WithClock(now))
	return loopback.New(base, nil)
}

func sortedNames(m map[string]config.TransportConfig) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
