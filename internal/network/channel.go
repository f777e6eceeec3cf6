// Package network carries commands to the navigation side and telemetry back
// over UDP.
//
// A CommandChannel owns two sockets per logical module: one bound to the
// module's fixed receive port and one used to send to the module's fixed
// remote port. Sends are synchronous: every command waits for an ack
// datagram on the receive socket before the next can go out.
package network

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/tmsnav/internal/monitoring"
	"github.com/banshee-data/tmsnav/internal/protocol"
)

// ReceiveTimeout bounds every blocking read.
const ReceiveTimeout = 500 * time.Millisecond

// ErrCommandTimeout is returned when no ack arrives within ReceiveTimeout.
var ErrCommandTimeout = errors.New("command response timed out")

// ErrChannelClosed is returned by operations on a closed channel.
var ErrChannelClosed = errors.New("channel closed")

// Endpoint is the address pair of one logical module.
type Endpoint struct {
	Name        string
	ReceiveAddr *net.UDPAddr
	SendAddr    *net.UDPAddr
}

// ResolveEndpoint builds an Endpoint from host and port values.
func ResolveEndpoint(name, receiveIP string, receivePort int, sendIP string, sendPort int) (Endpoint, error) {
	recv, err := net.ResolveUDPAddr("udp", net.JoinHostPort(receiveIP, strconv.Itoa(receivePort)))
	if err != nil {
		return Endpoint{}, fmt.Errorf("resolve %s receive address: %w", name, err)
	}
	send, err := net.ResolveUDPAddr("udp", net.JoinHostPort(sendIP, strconv.Itoa(sendPort)))
	if err != nil {
		return Endpoint{}, fmt.Errorf("resolve %s send address: %w", name, err)
	}
	return Endpoint{Name: name, ReceiveAddr: recv, SendAddr: send}, nil
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%s (recv %v, send %v)", e.Name, e.ReceiveAddr, e.SendAddr)
}

// State is the position of a CommandChannel in its send cycle.
type State int32

const (
	StateIdle State = iota
	StateSending
	StateWaitingForAck
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateWaitingForAck:
		return "waiting_for_ack"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Stats counts channel traffic.
type Stats struct {
	Sent     uint64 `json:"sent"`
	Acked    uint64 `json:"acked"`
	Timeouts uint64 `json:"timeouts"`
	Received uint64 `json:"received"`
}

// CommandChannel is a synchronous request/ack channel. Exactly one request
// is in flight at a time.
type CommandChannel struct {
	endpoint Endpoint
	timeout  time.Duration

	mu   sync.Mutex
	recv UDPSocket
	send UDPSocket
	buf  [protocol.AckBufferSize]byte

	state    atomic.Int32
	sent     atomic.Uint64
	acked    atomic.Uint64
	timeouts atomic.Uint64
	received atomic.Uint64
}

// Open binds the receive socket and opens the send socket for ep.
func Open(ep Endpoint, factory UDPSocketFactory) (*CommandChannel, error) {
	if factory == nil {
		factory = RealUDPSocketFactory{}
	}
	recv, err := factory.ListenUDP("udp", ep.ReceiveAddr)
	if err != nil {
		return nil, fmt.Errorf("bind %s receive socket: %w", ep.Name, err)
	}
	send, err := factory.ListenUDP("udp", nil)
	if err != nil {
		recv.Close()
		return nil, fmt.Errorf("open %s send socket: %w", ep.Name, err)
	}
	monitoring.Logf("network: %v open", ep)
	return &CommandChannel{
		endpoint: ep,
		timeout:  ReceiveTimeout,
		recv:     recv,
		send:     send,
	}, nil
}

// Endpoint returns the channel's addresses.
func (c *CommandChannel) Endpoint() Endpoint { return c.endpoint }

// LocalAddr returns the bound address of the receive socket.
func (c *CommandChannel) LocalAddr() net.Addr { return c.recv.LocalAddr() }

// State returns the current send state.
func (c *CommandChannel) State() State { return State(c.state.Load()) }

// Stats returns a snapshot of the traffic counters.
func (c *CommandChannel) Stats() Stats {
	return Stats{
		Sent:     c.sent.Load(),
		Acked:    c.acked.Load(),
		Timeouts: c.timeouts.Load(),
		Received: c.received.Load(),
	}
}

// Send encodes cmd, transmits it and waits for the ack datagram, which is
// returned. Over-long commands fail before any socket call. A missing ack
// returns ErrCommandTimeout and the command is not retried.
func (c *CommandChannel) Send(cmd protocol.Command) ([]byte, error) {
	data, err := cmd.Encode()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.State() == StateClosed {
		return nil, ErrChannelClosed
	}
	defer c.state.Store(int32(StateIdle))

	c.state.Store(int32(StateSending))
	if _, err := c.send.WriteToUDP(data, c.endpoint.SendAddr); err != nil {
		return nil, fmt.Errorf("send %s to %s: %w", cmd.Opcode, c.endpoint.Name, err)
	}
	c.sent.Add(1)

	c.state.Store(int32(StateWaitingForAck))
	ack, err := c.readLocked()
	if err != nil {
		if errors.Is(err, ErrCommandTimeout) {
			c.timeouts.Add(1)
			return nil, fmt.Errorf("%s on %s: %w", cmd.Opcode, c.endpoint.Name, err)
		}
		return nil, err
	}
	c.acked.Add(1)
	return ack, nil
}

// Receive waits up to ReceiveTimeout for one datagram.
func (c *CommandChannel) Receive() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.State() == StateClosed {
		return nil, ErrChannelClosed
	}
	data, err := c.readLocked()
	if err == nil {
		c.received.Add(1)
	}
	return data, err
}

// TryReceive is Receive with the timeout reported as ok == false instead
// of an error.
func (c *CommandChannel) TryReceive() ([]byte, bool, error) {
	data, err := c.Receive()
	switch {
	case err == nil:
		return data, true, nil
	case errors.Is(err, ErrCommandTimeout):
		return nil, false, nil
	default:
		return nil, false, err
	}
}

func (c *CommandChannel) readLocked() ([]byte, error) {
	if err := c.recv.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return nil, fmt.Errorf("set read deadline: %w", err)
	}
	n, _, err := c.recv.ReadFromUDP(c.buf[:])
	if err != nil {
		if IsTimeout(err) {
			return nil, ErrCommandTimeout
		}
		if errors.Is(err, net.ErrClosed) {
			return nil, ErrChannelClosed
		}
		return nil, fmt.Errorf("receive on %s: %w", c.endpoint.Name, err)
	}
	return append([]byte(nil), c.buf[:n]...), nil
}

// Close closes both sockets. Closing twice is a no-op.
func (c *CommandChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.State() == StateClosed {
		return nil
	}
	c.state.Store(int32(StateClosed))
	return errors.Join(c.recv.Close(), c.send.Close())
}

// SendAll sends cmds in order and stops at the first failure, returning how
// many were acknowledged. Every command is length-checked before the first
// one goes out.
func (c *CommandChannel) SendAll(cmds []protocol.Command) (int, error) {
	for _, cmd := range cmds {
		if _, err := cmd.Encode(); err != nil {
			return 0, err
		}
	}
	for i, cmd := range cmds {
		if _, err := c.Send(cmd); err != nil {
			return i, err
		}
	}
	return len(cmds), nil
}
