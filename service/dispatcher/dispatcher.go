// Package dispatcher owns the session state and serializes every change to
// it through a single event loop.
//
// Operations are closures posted to the loop. The loop never performs I/O:
// requests to the backend run in the calling goroutine (or in a goroutine
// started for an effect) and their results are posted back to the loop, so
// a confirmation is only ever applied to the command it answers.
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cpuview/cpuview/pkg/export"
	"github.com/cpuview/cpuview/pkg/logflags"
	"github.com/cpuview/cpuview/pkg/settings"
	"github.com/cpuview/cpuview/pkg/state"
	"github.com/cpuview/cpuview/service"
	"github.com/cpuview/cpuview/service/api"
)

// DefaultCount is the number of instructions requested per window.
const DefaultCount = 100

// Config configures a Dispatcher.
type Config struct {
	// Count is the number of instructions per window, DefaultCount if zero.
	Count int
	// Settings are the display settings used until the backend's are loaded.
	Settings settings.Settings
	// Clipboard receives exported text. Copy only returns the text if nil.
	Clipboard export.Clipboard
}

// Dispatcher runs the event loop.
type Dispatcher struct {
	client service.Client
	count  int
	clip   export.Clipboard
	log    logflags.Logger

	ops     chan func()
	stopped chan struct{}
	started int32

	// ctx is the context passed to Run, used by requests started for
	// effects. Only read from goroutines started by the loop.
	ctx context.Context

	// model is only accessed from the loop.
	model state.Model
	snap  atomic.Value

	subsMu sync.Mutex
	subs   map[chan struct{}]bool
}

// New returns a dispatcher for client. Call Run to start it.
func New(client service.Client, cfg Config) *Dispatcher {
	if cfg.Count <= 0 {
		cfg.Count = DefaultCount
	}
	d := &Dispatcher{
		client:  client,
		count:   cfg.Count,
		clip:    cfg.Clipboard,
		log:     logflags.DispatcherLogger(),
		ops:     make(chan func()),
		stopped: make(chan struct{}),
		ctx:     context.Background(),
		model:   state.New(cfg.Settings),
		subs:    make(map[chan struct{}]bool),
	}
	d.snap.Store(d.model)
	return d
}

// Run executes posted operations until ctx is done. It must be called
// exactly once.
func (d *Dispatcher) Run(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&d.started, 0, 1) {
		return fmt.Errorf("dispatcher already running")
	}
	d.ctx = ctx
	defer close(d.stopped)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case op := <-d.ops:
			op()
			d.publish()
		}
	}
}

// Snapshot returns the current state. The returned value is never modified
// by the dispatcher.
func (d *Dispatcher) Snapshot() state.Model {
	return d.snap.Load().(state.Model)
}

// Subscribe returns a channel that receives a value after state changes.
// Notifications are coalesced. Call cancel to stop receiving.
func (d *Dispatcher) Subscribe() (ch <-chan struct{}, cancel func()) {
	c := make(chan struct{}, 1)
	d.subsMu.Lock()
	d.subs[c] = true
	d.subsMu.Unlock()
	return c, func() {
		d.subsMu.Lock()
		delete(d.subs, c)
		d.subsMu.Unlock()
	}
}

func (d *Dispatcher) publish() {
	d.snap.Store(d.model)
	d.subsMu.Lock()
	defer d.subsMu.Unlock()
	for c := range d.subs {
		select {
		case c <- struct{}{}:
		default:
		}
	}
}

// exec runs fn on the loop and waits for it to return.
func (d *Dispatcher) exec(ctx context.Context, fn func(m *state.Model) error) error {
	errc := make(chan error, 1)
	op := func() { errc <- fn(&d.model) }
	select {
	case d.ops <- op:
	case <-ctx.Done():
		return ctx.Err()
	case <-d.stopped:
		return ErrStopped
	}
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-d.stopped:
		return ErrStopped
	}
}

// post runs fn on the loop without waiting for it.
func (d *Dispatcher) post(fn func(m *state.Model)) {
	select {
	case d.ops <- func() { fn(&d.model) }:
	case <-d.stopped:
	}
}

// apply starts the I/O requested by effects.
func (d *Dispatcher) apply(effects []state.Effect) {
	for _, e := range effects {
		switch e := e.(type) {
		case state.Refresh:
			go d.fetchWindow(e)
		}
	}
}

func (d *Dispatcher) fetchWindow(r state.Refresh) {
	out, err := d.client.Disassemble(d.ctx, api.DisassembleIn{Start: string(r.Anchor), Count: d.count, Seq: r.Seq})
	d.post(func(m *state.Model) {
		if err != nil {
			m.Session = m.Session.RefreshFailed(r.Seq)
			d.record(m, logrus.ErrorLevel, "disassemble at %s: %v", r.Anchor, err)
			return
		}
		if out.Status == api.StatusRequested && len(out.Instructions) == 0 {
			// the window follows on the push channel
			return
		}
		recs, err := records(out.Instructions)
		if err != nil {
			m.Session = m.Session.RefreshFailed(r.Seq)
			d.record(m, logrus.WarnLevel, "%v", &MalformedError{Kind: "disassemble response", Err: err})
			return
		}
		seq := out.Seq
		if seq == 0 {
			seq = r.Seq
		}
		var ok bool
		m.Session, ok = m.Session.ReceiveWindow(recs, seq)
		if !ok && logflags.Dispatcher() {
			d.log.Debugf("discarding stale window at %s (seq %d, last %d)", r.Anchor, seq, m.Session.LastSeq())
		}
	})
}

// record appends a line to the system log and to the dispatcher's logger.
func (d *Dispatcher) record(m *state.Model, level logrus.Level, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	m.Log = m.Log.Append(state.LogEntry{Time: time.Now(), Level: level, Message: msg})
	switch level {
	case logrus.ErrorLevel:
		d.log.Error(msg)
	case logrus.WarnLevel:
		d.log.Warn(msg)
	default:
		if logflags.Dispatcher() {
			d.log.Debug(msg)
		}
	}
}

// update runs fn on the loop and waits for it, for results of requests
// that must be applied even if the caller's context is done.
func (d *Dispatcher) update(fn func(m *state.Model)) {
	d.exec(context.Background(), func(m *state.Model) error {
		fn(m)
		return nil
	})
}

// fail records err in the system log and returns it. Used by operations
// whose failure leaves the state unchanged.
func (d *Dispatcher) fail(err error) error {
	d.update(func(m *state.Model) {
		d.record(m, logrus.ErrorLevel, "%v", err)
	})
	return err
}
