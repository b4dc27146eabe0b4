// Package poller is a transport for poll-based channels. A single
// background worker alternates between reading the device inbox and
// sending queued outgoing messages.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/memohai/smsrouter/internal/config"
	"github.com/memohai/smsrouter/internal/message"
	"github.com/memohai/smsrouter/internal/transport"
)

// State is the worker's current phase.
type State int

const (
	StateIdle State = iota
	StatePolling
	StateDraining
	StateSending
	StateShuttingDown
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePolling:
		return "polling"
	case StateDraining:
		return "draining"
	case StateSending:
		return "sending"
	case StateShuttingDown:
		return "shutting_down"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrRunning is returned by Start when the worker is already running.
var ErrRunning = errors.New("poller: already running")

// Options configures a Poller.
type Options struct {
	// PollTicks is how many ticks to wait when the device is not ready.
	PollTicks int
	// PollTick is the sleep between loop iterations.
	PollTick time.Duration
	// AckTimeout bounds the wait for a message id after each send.
	AckTimeout time.Duration
	// MaxAttempts dead-letters an outgoing message after this many failed
	// sends. Zero retries forever.
	MaxAttempts int
	// MinIdentLength discards inbound items from shorter sender idents.
	MinIdentLength int
	// SendRate caps sends per second. Zero is unlimited.
	SendRate float64
}

// OptionsFromConfig converts a normalized transport section.
func OptionsFromConfig(tc config.TransportConfig) Options {
	return Options{
		PollTicks:      tc.PollTicks,
		PollTick:       time.Duration(tc.PollTickMs) * time.Millisecond,
		AckTimeout:     time.Duration(tc.AckTimeoutMs) * time.Millisecond,
		MaxAttempts:    tc.MaxAttempts,
		MinIdentLength: tc.MinIdentLength,
		SendRate:       tc.SendRate,
	}
}

func (o Options) normalize() Options {
	if o.PollTicks <= 0 {
		o.PollTicks = config.DefaultPollTicks
	}
	if o.PollTick <= 0 {
		o.PollTick = config.DefaultPollTickMs * time.Millisecond
	}
	if o.AckTimeout <= 0 {
		o.AckTimeout = config.DefaultAckTimeoutMs * time.Millisecond
	}
	if o.MaxAttempts < 0 {
		o.MaxAttempts = 0
	}
	if o.MinIdentLength <= 0 {
		o.MinIdentLength = config.DefaultMinIdentLength
	}
	return o
}

// DeadLetterFunc observes an outgoing message the worker gave up on.
type DeadLetterFunc func(ctx context.Context, out message.Outgoing, err error)

// Poller is the polling transport. Run exactly one per transport name:
// outgoing rows are selected by "not sent yet", so two workers would send
// the same message twice.
type Poller struct {
	*transport.Base

	device  Device
	opts    Options
	limiter *rate.Limiter
	now     func() time.Time

	mu          sync.Mutex
	state       State
	running     bool
	stop        context.CancelFunc
	done        chan struct{}
	err         error
	attempts    map[int64]int
	deadLetters []DeadLetterFunc
}

// New creates a polling transport over device.
func New(base *transport.Base, device Device, opts Options) *Poller {
	opts = opts.normalize()
	limit := rate.Inf
	if opts.SendRate > 0 {
		limit = rate.Limit(opts.SendRate)
	}
	return &Poller{
		Base:     base,
		device:   device,
		opts:     opts,
		limiter:  rate.NewLimiter(limit, 1),
		now:      time.Now,
		attempts: map[int64]int{},
	}
}

func (p *Poller) Kind() string { return config.KindPoller }

// OnDeadLetter registers fn.
func (p *Poller) OnDeadLetter(fn DeadLetterFunc) {
	if fn == nil {
		return
	}
	p.mu.Lock()
	p.deadLetters = append(p.deadLetters, fn)
	p.mu.Unlock()
}

// State returns the worker's current phase.
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Err returns the error that stopped the worker, if any.
func (p *Poller) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Done is closed when the worker has exited. It is nil before Start.
func (p *Poller) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

// Start launches the worker. The worker outlives ctx's deadline but keeps
// its values; use Stop to end it.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return ErrRunning
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.running = true
	p.stop = cancel
	p.done = make(chan struct{})
	p.err = nil
	go p.run(runCtx, p.done)
	return nil
}

// Stop asks the worker to finish its current iteration and waits for it
// to release the device.
func (p *Poller) Stop(ctx context.Context) error {
	p.mu.Lock()
	stop, done := p.stop, p.done
	p.mu.Unlock()
	if stop == nil {
		return nil
	}
	stop()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Poller) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

func (p *Poller) run(ctx context.Context, done chan struct{}) {
	log := p.Logger()
	defer func() {
		p.setState(StateShuttingDown)
		if err := p.device.Close(); err != nil {
			log.Warn("error disconnecting", slog.Any("error", err))
		} else {
			log.Info("disconnected")
		}
		p.mu.Lock()
		p.state = StateIdle
		p.running = false
		p.stop = nil
		p.mu.Unlock()
		close(done)
	}()

	log.Info("poller started")
	for ctx.Err() == nil {
		if err := p.iterate(ctx); err != nil {
			log.Error("cleanup failed, stopping poller", slog.Any("error", err))
			p.mu.Lock()
			p.err = err
			p.mu.Unlock()
			return
		}
		p.setState(StateIdle)
		p.wait(ctx, 1)
	}
	log.Info("stopping")
}

// iterate runs one pass. Only a cleanup failure is returned; everything
// else is logged and retried on the next pass.
func (p *Poller) iterate(ctx context.Context) error {
	log := p.Logger()
	// Device operations are not interrupted by Stop; only timeouts end them.
	op := context.WithoutCancel(ctx)

	p.setState(StatePolling)
	ready, err := p.device.Ready(op)
	if err != nil || !ready {
		log.Warn("device not ready, waiting",
			slog.Int("ticks", p.opts.PollTicks),
			slog.Any("error", err))
		p.wait(ctx, p.opts.PollTicks)
		return nil
	}

	p.setState(StateDraining)
	items, err := p.device.Receive(op)
	if err != nil {
		log.Warn("receive failed", slog.Any("error", err))
		p.wait(ctx, 1)
		return nil
	}
	if len(items) > 0 {
		log.Debug("received messages", slog.Int("count", len(items)))
	}
	for _, item := range items {
		if len([]rune(item.Ident)) < p.opts.MinIdentLength {
			log.Debug("ignored message", slog.String("ident", item.Ident), slog.String("text", fmt.Sprintf("%q", item.Text)))
			continue
		}
		if _, err := p.Incoming(op, item.Ident, item.Text, item.Time); err != nil {
			log.Warn("incoming failed", slog.String("ident", item.Ident), slog.Any("error", err))
		}
	}

	p.setState(StateSending)
	p.sendPending(ctx, op)

	if err := p.device.Cleanup(op); err != nil {
		return fmt.Errorf("cleanup: %w", err)
	}
	return nil
}

func (p *Poller) sendPending(ctx, op context.Context) {
	log := p.Logger()
	pending, err := p.Store().ListUnsent(op, message.TransportPrefix(p.Name()))
	if err != nil {
		log.Warn("list unsent failed", slog.Any("error", err))
		return
	}
	if len(pending) > 0 {
		log.Debug("sending messages", slog.Int("count", len(pending)))
	}
	for _, out := range pending {
		if ctx.Err() != nil {
			return
		}
		if err := p.limiter.Wait(ctx); err != nil {
			return
		}
		err := p.send(op, out)
		if err == nil {
			continue
		}
		if p.recordFailure(op, out, err) {
			continue
		}
		log.Warn("send failed, retrying next pass", slog.Int64("outgoing_id", out.ID), slog.Any("error", err))
		p.wait(ctx, 1)
		return
	}
}

// send transmits out unless it was sent or abandoned since it was listed.
// The row is read again before stamping so concurrent changes survive.
func (p *Poller) send(ctx context.Context, out message.Outgoing) error {
	current, err := p.Store().GetOutgoing(ctx, out.ID)
	if err != nil {
		return fmt.Errorf("load outgoing %d: %w", out.ID, err)
	}
	if current.Sent() || current.Abandoned != nil {
		p.forget(out.ID)
		p.Logger().Debug("skipping settled message", slog.Int64("outgoing_id", out.ID))
		return nil
	}
	_, ident, ok := message.SplitURI(current.URI)
	if !ok || ident == "" {
		return fmt.Errorf("bad uri: %s", current.URI)
	}
	sendCtx, cancel := context.WithTimeout(ctx, p.opts.AckTimeout)
	deliveryID, err := p.device.Send(sendCtx, ident, current.Text)
	cancel()
	if err != nil {
		return err
	}
	if deliveryID == "" {
		return errors.New("did not receive message id")
	}

	latest, err := p.Store().GetOutgoing(ctx, out.ID)
	if err != nil {
		return fmt.Errorf("load sent message: %w", err)
	}
	now := p.now()
	latest.DeliveryID = deliveryID
	if latest.Time == nil {
		latest.Time = &now
	}
	if err := p.Store().UpdateOutgoing(ctx, latest); err != nil {
		return fmt.Errorf("store sent message: %w", err)
	}
	p.forget(out.ID)
	p.Logger().Debug("message sent", slog.Int64("outgoing_id", out.ID), slog.String("delivery_id", deliveryID))
	return nil
}

func (p *Poller) forget(id int64) {
	p.mu.Lock()
	delete(p.attempts, id)
	p.mu.Unlock()
}

// recordFailure counts a failed send and reports whether the message was
// dead-lettered.
func (p *Poller) recordFailure(ctx context.Context, out message.Outgoing, sendErr error) bool {
	p.mu.Lock()
	p.attempts[out.ID]++
	attempts := p.attempts[out.ID]
	exhausted := p.opts.MaxAttempts > 0 && attempts >= p.opts.MaxAttempts
	if exhausted {
		delete(p.attempts, out.ID)
	}
	observers := append([]DeadLetterFunc(nil), p.deadLetters...)
	p.mu.Unlock()
	if !exhausted {
		return false
	}

	if current, err := p.Store().GetOutgoing(ctx, out.ID); err == nil {
		out = current
	}
	now := p.now()
	out.Abandoned = &now
	if err := p.Store().UpdateOutgoing(ctx, out); err != nil {
		p.Logger().Error("dead-letter failed", slog.Int64("outgoing_id", out.ID), slog.Any("error", err))
		return false
	}
	p.Logger().Error("message abandoned",
		slog.Int64("outgoing_id", out.ID),
		slog.Int("attempts", attempts),
		slog.Any("error", sendErr))
	for _, fn := range observers {
		fn(ctx, out, sendErr)
	}
	return true
}

// wait sleeps for n ticks, returning early once ctx is done.
func (p *Poller) wait(ctx context.Context, n int) {
	for range n {
		timer := time.NewTimer(p.opts.PollTick)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}
