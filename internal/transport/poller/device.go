package poller

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"
)

// Received is one inbound item read from a device.
type Received struct {
	Ident string
	Text  string
	Time  time.Time
}

// Device is a poll-based channel, typically a modem.
type Device interface {
	// Ready reports whether the channel can be used, e.g. has signal.
	Ready(ctx context.Context) (bool, error)
	// Receive drains the inbound items waiting on the device.
	Receive(ctx context.Context) ([]Received, error)
	// Send transmits text to ident and returns the channel's message id.
	// It must give up when ctx expires.
	Send(ctx context.Context, ident, text string) (string, error)
	// Cleanup discards read and sent items from device storage.
	Cleanup(ctx context.Context) error
	// Close releases the device.
	Close() error
}

// Sent is a message transmitted through a MemoryDevice.
type Sent struct {
	ID    string
	Ident string
	Text  string
}

// MemoryDevice is an in-process Device for tests and local runs.
type MemoryDevice struct {
	mu         sync.Mutex
	notReady   bool
	inbox      []Received
	sent       []Sent
	sendErrs   []error
	cleanupErr error
	cleanups   int
	closed     bool
	seq        int
}

// NewMemoryDevice returns a ready device with an empty inbox.
func NewMemoryDevice() *MemoryDevice {
	return &MemoryDevice{}
}

// Deliver queues an inbound message.
func (d *MemoryDevice) Deliver(ident, text string, at time.Time) {
	d.mu.Lock()
	d.inbox = append(d.inbox, Received{Ident: ident, Text: text, Time: at})
	d.mu.Unlock()
}

// SetReady toggles readiness.
func (d *MemoryDevice) SetReady(ready bool) {
	d.mu.Lock()
	d.notReady = !ready
	d.mu.Unlock()
}

// FailSends makes the next len(errs) sends fail with errs in order.
func (d *MemoryDevice) FailSends(errs ...error) {
	d.mu.Lock()
	d.sendErrs = append(d.sendErrs, errs...)
	d.mu.Unlock()
}

// FailCleanup makes every later cleanup fail with err.
func (d *MemoryDevice) FailCleanup(err error) {
	d.mu.Lock()
	d.cleanupErr = err
	d.mu.Unlock()
}

// SentMessages returns what was transmitted so far.
func (d *MemoryDevice) SentMessages() []Sent {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Sent(nil), d.sent...)
}

// Cleanups returns how many cleanup commands were issued.
func (d *MemoryDevice) Cleanups() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cleanups
}

// Closed reports whether Close was called.
func (d *MemoryDevice) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *MemoryDevice) Ready(context.Context) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false, errors.New("device closed")
	}
	return !d.notReady, nil
}

func (d *MemoryDevice) Receive(context.Context) ([]Received, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	items := d.inbox
	d.inbox = nil
	return items, nil
}

func (d *MemoryDevice) Send(ctx context.Context, ident, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.sendErrs) > 0 {
		err := d.sendErrs[0]
		d.sendErrs = d.sendErrs[1:]
		return "", err
	}
	d.seq++
	id := strconv.Itoa(d.seq)
	d.sent = append(d.sent, Sent{ID: id, Ident: ident, Text: text})
	return id, nil
}

func (d *MemoryDevice) Cleanup(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cleanups++
	return d.cleanupErr
}

func (d *MemoryDevice) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}
