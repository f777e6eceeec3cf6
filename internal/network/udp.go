package network

import (
	"errors"
	"net"
	"sync"
	"time"
)

// UDPSocket is the subset of *net.UDPConn a command channel uses.
// Mock implementations let the channel be tested without real sockets.
type UDPSocket interface {
	// ReadFromUDP reads one datagram.
	ReadFromUDP(b []byte) (n int, addr *net.UDPAddr, err error)

	// WriteToUDP sends one datagram to addr.
	WriteToUDP(b []byte, addr *net.UDPAddr) (int, error)

	// SetReadDeadline sets the deadline for future reads.
	SetReadDeadline(t time.Time) error

	// Close closes the socket.
	Close() error

	// LocalAddr returns the local network address.
	LocalAddr() net.Addr
}

// UDPSocketFactory creates sockets. A nil laddr binds an ephemeral port.
type UDPSocketFactory interface {
	ListenUDP(network string, laddr *net.UDPAddr) (UDPSocket, error)
}

// RealUDPSocketFactory implements UDPSocketFactory using net.ListenUDP.
type RealUDPSocketFactory struct{}

// ListenUDP creates a new UDP socket.
func (RealUDPSocketFactory) ListenUDP(network string, laddr *net.UDPAddr) (UDPSocket, error) {
	conn, err := net.ListenUDP(network, laddr)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// IsTimeout reports whether err is a read deadline expiry.
func IsTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// MockUDPSocket implements UDPSocket for testing. Reads return queued
// packets in order and a timeout error once the queue is empty.
type MockUDPSocket struct {
	mu sync.Mutex

	packets      []MockUDPPacket
	written      []MockUDPPacket
	closed       bool
	readDeadline time.Time
	readErr      error
	writeErr     error

	// LocalAddress is returned by LocalAddr.
	LocalAddress *net.UDPAddr
	// OnWrite, if set, is called with every datagram written.
	OnWrite func(data []byte, addr *net.UDPAddr)
}

// MockUDPPacket is one datagram read from or written to a mock socket.
type MockUDPPacket struct {
	Data []byte
	Addr *net.UDPAddr
}

// NewMockUDPSocket returns a mock socket that will read packets in order.
func NewMockUDPSocket(packets ...MockUDPPacket) *MockUDPSocket {
	return &MockUDPSocket{
		packets:      packets,
		LocalAddress: &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0},
	}
}

// Push queues data for a later read.
func (m *MockUDPSocket) Push(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.packets = append(m.packets, MockUDPPacket{Data: append([]byte(nil), data...)})
}

// FailNextRead makes the next read return err.
func (m *MockUDPSocket) FailNextRead(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readErr = err
}

// FailWrites makes every write return err until cleared with nil.
func (m *MockUDPSocket) FailWrites(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErr = err
}

// ReadFromUDP returns the next queued packet.
func (m *MockUDPSocket) ReadFromUDP(b []byte) (int, *net.UDPAddr, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, nil, net.ErrClosed
	}
	if m.readErr != nil {
		err := m.readErr
		m.readErr = nil
		return 0, nil, err
	}
	if len(m.packets) == 0 {
		return 0, nil, &net.OpError{Op: "read", Net: "udp", Err: timeoutError{}}
	}
	pkt := m.packets[0]
	m.packets = m.packets[1:]
	return copy(b, pkt.Data), pkt.Addr, nil
}

// WriteToUDP records the datagram and calls OnWrite.
func (m *MockUDPSocket) WriteToUDP(b []byte, addr *net.UDPAddr) (int, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, net.ErrClosed
	}
	if m.writeErr != nil {
		err := m.writeErr
		m.mu.Unlock()
		return 0, err
	}
	data := append([]byte(nil), b...)
	m.written = append(m.written, MockUDPPacket{Data: data, Addr: addr})
	onWrite := m.OnWrite
	m.mu.Unlock()

	if onWrite != nil {
		onWrite(data, addr)
	}
	return len(b), nil
}

// Written returns every datagram written so far.
func (m *MockUDPSocket) Written() []MockUDPPacket {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockUDPPacket, len(m.written))
	copy(out, m.written)
	return out
}

// WrittenStrings returns the payloads written so far as strings.
func (m *MockUDPSocket) WrittenStrings() []string {
	pkts := m.Written()
	out := make([]string, len(pkts))
	for i, p := range pkts {
		out[i] = string(p.Data)
	}
	return out
}

// SetReadDeadline records the deadline.
func (m *MockUDPSocket) SetReadDeadline(t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readDeadline = t
	return nil
}

// ReadDeadline returns the last deadline set.
func (m *MockUDPSocket) ReadDeadline() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readDeadline
}

// Close marks the socket as closed.
func (m *MockUDPSocket) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *MockUDPSocket) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// LocalAddr returns the mock local address.
func (m *MockUDPSocket) LocalAddr() net.Addr {
	return m.LocalAddress
}

// MockUDPSocketFactory hands out Sockets in order, one per ListenUDP call.
type MockUDPSocketFactory struct {
	mu sync.Mutex
	// Sockets are returned by successive ListenUDP calls.
	Sockets []*MockUDPSocket
	// Error is returned by ListenUDP if set.
	Error error
	// ListenCalls records all ListenUDP calls.
	ListenCalls []MockListenCall
}

// MockListenCall records a call to ListenUDP.
type MockListenCall struct {
	Network string
	Addr    *net.UDPAddr
}

// NewMockUDPSocketFactory returns a factory handing out sockets in order.
func NewMockUDPSocketFactory(sockets ...*MockUDPSocket) *MockUDPSocketFactory {
	return &MockUDPSocketFactory{Sockets: sockets}
}

// ListenUDP returns the next configured mock socket.
func (f *MockUDPSocketFactory) ListenUDP(network string, laddr *net.UDPAddr) (UDPSocket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ListenCalls = append(f.ListenCalls, MockListenCall{Network: network, Addr: laddr})
	if f.Error != nil {
		return nil, f.Error
	}
	if len(f.Sockets) == 0 {
		return nil, errors.New("mock factory: no sockets left")
	}
	s := f.Sockets[0]
	f.Sockets = f.Sockets[1:]
	return s, nil
}

// timeoutError implements net.Error for timeout simulation.
type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }
