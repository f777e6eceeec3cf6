package network

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/banshee-data/tmsnav/internal/loop"
	"github.com/banshee-data/tmsnav/internal/monitoring"
)

// Receiver is the read side of a channel as the poller sees it.
type Receiver interface {
	// TryReceive waits a bounded time for one datagram. ok is false when
	// nothing arrived in time.
	TryReceive() (data []byte, ok bool, err error)
}

// Handler processes one telemetry datagram. Returned errors are logged and
// dropped; polling continues.
type Handler func(data []byte) error

// PollerState is the poller's run state.
type PollerState int32

const (
	PollerStopped PollerState = iota
	PollerPolling
)

func (s PollerState) String() string {
	if s == PollerPolling {
		return "polling"
	}
	return "stopped"
}

// PollerStats counts poller activity.
type PollerStats struct {
	Ticks         uint64 `json:"ticks"`
	Dispatched    uint64 `json:"dispatched"`
	HandlerErrors uint64 `json:"handler_errors"`
}

// Poller is a self-rescheduling receive task on a loop. Each tick checks
// the active flag, receives once and, if data arrived, runs the handler
// before posting the next tick. Stop takes effect at the next tick.
type Poller struct {
	name    string
	loop    *loop.Loop
	recv    Receiver
	handler Handler

	mu    sync.Mutex
	state PollerState
	gen   uint64

	ticks         atomic.Uint64
	dispatched    atomic.Uint64
	handlerErrors atomic.Uint64
}

// NewPoller returns a stopped poller.
func NewPoller(name string, l *loop.Loop, recv Receiver, handler Handler) *Poller {
	return &Poller{name: name, loop: l, recv: recv, handler: handler}
}

// Start begins polling. Starting an already polling poller is a no-op.
func (p *Poller) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == PollerPolling {
		return nil
	}
	p.gen++
	gen := p.gen
	if err := p.loop.Post(func() { p.tick(gen) }); err != nil {
		return err
	}
	p.state = PollerPolling
	monitoring.Logf("network: %s poller started", p.name)
	return nil
}

// Stop clears the active flag.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == PollerStopped {
		return
	}
	p.state = PollerStopped
	monitoring.Logf("network: %s poller stopped", p.name)
}

// State returns the current run state.
func (p *Poller) State() PollerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Stats returns a snapshot of the counters.
func (p *Poller) Stats() PollerStats {
	return PollerStats{
		Ticks:         p.ticks.Load(),
		Dispatched:    p.dispatched.Load(),
		HandlerErrors: p.handlerErrors.Load(),
	}
}

func (p *Poller) active(gen uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == PollerPolling && p.gen == gen
}

func (p *Poller) tick(gen uint64) {
	// A tick from an earlier Start/Stop cycle must not run alongside the
	// current one.
	if !p.active(gen) {
		return
	}
	p.ticks.Add(1)

	data, ok, err := p.recv.TryReceive()
	switch {
	case errors.Is(err, ErrChannelClosed):
		monitoring.Logf("network: %s poller: channel closed, stopping", p.name)
		p.stopGen(gen)
		return
	case err != nil:
		monitoring.Logf("network: %s poller receive: %v", p.name, err)
	case ok:
		p.dispatched.Add(1)
		if herr := p.handler(data); herr != nil {
			p.handlerErrors.Add(1)
			monitoring.Logf("network: %s poller dropped message: %v", p.name, herr)
		}
	}

	if !p.active(gen) {
		return
	}
	if err := p.loop.Post(func() { p.tick(gen) }); err != nil {
		monitoring.Logf("network: %s poller cannot reschedule: %v", p.name, err)
		p.stopGen(gen)
	}
}

func (p *Poller) stopGen(gen uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gen == gen {
		p.state = PollerStopped
	}
}
