package network

import (
	"errors"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/tmsnav/internal/geom"
	"github.com/banshee-data/tmsnav/internal/protocol"
)

var testEndpoint = Endpoint{
	Name:        "MedImg",
	ReceiveAddr: &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 8059},
	SendAddr:    &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 8057},
}

// openMock returns a channel over mock sockets. The send socket acks the
// first acks writes by queueing "ACK" on the receive socket.
func openMock(t *testing.T, acks int) (*CommandChannel, *MockUDPSocket, *MockUDPSocket) {
	t.Helper()
	recv := NewMockUDPSocket()
	send := NewMockUDPSocket()
	var n atomic.Int32
	send.OnWrite = func([]byte, *net.UDPAddr) {
		if int(n.Add(1)) <= acks {
			recv.Push([]byte("ACK"))
		}
	}
	factory := NewMockUDPSocketFactory(recv, send)
	ch, err := Open(testEndpoint, factory)
	require.NoError(t, err)

	require.Len(t, factory.ListenCalls, 2)
	assert.Equal(t, testEndpoint.ReceiveAddr, factory.ListenCalls[0].Addr)
	assert.Nil(t, factory.ListenCalls[1].Addr)
	return ch, recv, send
}

func TestCommandChannel_SendAck(t *testing.T) {
	ch, recv, send := openMock(t, 1)

	var stateDuringWrite State
	onWrite := send.OnWrite
	send.OnWrite = func(b []byte, addr *net.UDPAddr) {
		stateDuringWrite = ch.State()
		onWrite(b, addr)
	}

	ack, err := ch.Send(protocol.NewCommand("START_REGISTRATION"))
	require.NoError(t, err)
	assert.Equal(t, []byte("ACK"), ack)
	assert.Equal(t, StateSending, stateDuringWrite)
	assert.Equal(t, StateIdle, ch.State())

	written := send.Written()
	require.Len(t, written, 1)
	assert.Equal(t, "START_REGISTRATION", string(written[0].Data))
	assert.Equal(t, testEndpoint.SendAddr, written[0].Addr)
	assert.WithinDuration(t, time.Now().Add(ReceiveTimeout), recv.ReadDeadline(), ReceiveTimeout)
	assert.Equal(t, Stats{Sent: 1, Acked: 1}, ch.Stats())
}

func TestCommandChannel_TooLongNeverTouchesSocket(t *testing.T) {
	ch, _, send := openMock(t, 1)

	_, err := ch.Send(protocol.NewCommand(strings.Repeat("X", 151)))
	require.ErrorIs(t, err, protocol.ErrMessageTooLong)
	assert.Empty(t, send.Written())
	assert.Equal(t, Stats{}, ch.Stats())
}

func TestCommandChannel_Timeout(t *testing.T) {
	ch, _, send := openMock(t, 0)

	_, err := ch.Send(protocol.NewCommand("GET_EFF_POSE"))
	require.ErrorIs(t, err, ErrCommandTimeout)
	assert.Contains(t, err.Error(), "GET_EFF_POSE")
	assert.Len(t, send.Written(), 1, "no retry")
	assert.Equal(t, StateIdle, ch.State())
	assert.Equal(t, uint64(1), ch.Stats().Timeouts)
}

func TestCommandChannel_WriteAndReadErrors(t *testing.T) {
	ch, recv, send := openMock(t, 0)

	boom := errors.New("boom")
	send.FailWrites(boom)
	_, err := ch.Send(protocol.NewCommand("ROB_CONN_ON"))
	require.ErrorIs(t, err, boom)
	send.FailWrites(nil)

	recv.FailNextRead(boom)
	_, err = ch.Send(protocol.NewCommand("ROB_CONN_ON"))
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, ErrCommandTimeout)
}

func TestCommandChannel_SendAllStopsAtFirstTimeout(t *testing.T) {
	ch, _, send := openMock(t, 2)
	cmds := protocol.LandmarkSequence(protocol.LandmarkOpcodes{
		Count:   "LANDMARK_NUM_OF_ON_IMG",
		Current: "LANDMARK_CURRENT_ON_IMG",
		Last:    "LANDMARK_LAST_RECEIVED",
	}, make([]geom.Point3, 3))

	n, err := ch.SendAll(cmds)
	require.ErrorIs(t, err, ErrCommandTimeout)
	assert.Equal(t, 2, n)

	sent := send.WrittenStrings()
	require.Len(t, sent, 3)
	assert.True(t, strings.HasPrefix(sent[0], "LANDMARK_NUM_OF_ON_IMG_03"))
	assert.True(t, strings.HasPrefix(sent[1], "LANDMARK_CURRENT_ON_IMG_00_"))
	assert.True(t, strings.HasPrefix(sent[2], "LANDMARK_CURRENT_ON_IMG_01_"))
}

func TestCommandChannel_SendAllChecksLengthFirst(t *testing.T) {
	ch, _, send := openMock(t, 5)
	_, err := ch.SendAll([]protocol.Command{
		protocol.NewCommand("OK"),
		protocol.NewCommand(strings.Repeat("X", 200)),
	})
	require.ErrorIs(t, err, protocol.ErrMessageTooLong)
	assert.Empty(t, send.Written())
}

func TestCommandChannel_ReceiveAndClose(t *testing.T) {
	ch, recv, send := openMock(t, 0)

	recv.Push([]byte("__msg_point_1_2_3"))
	data, ok, err := ch.TryReceive()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "__msg_point_1_2_3", string(data))

	_, ok, err = ch.TryReceive()
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = ch.Receive()
	require.ErrorIs(t, err, ErrCommandTimeout)

	require.NoError(t, ch.Close())
	require.NoError(t, ch.Close())
	assert.True(t, recv.Closed())
	assert.True(t, send.Closed())
	assert.Equal(t, StateClosed, ch.State())

	_, err = ch.Send(protocol.NewCommand("SESSION_END"))
	require.ErrorIs(t, err, ErrChannelClosed)
	_, _, err = ch.TryReceive()
	require.ErrorIs(t, err, ErrChannelClosed)
}

func TestOpen_FactoryError(t *testing.T) {
	factory := NewMockUDPSocketFactory()
	factory.Error = errors.New("address in use")
	_, err := Open(testEndpoint, factory)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MedImg")

	recv := NewMockUDPSocket()
	_, err = Open(testEndpoint, NewMockUDPSocketFactory(recv))
	require.Error(t, err)
	assert.True(t, recv.Closed(), "receive socket released when the send socket fails")
}

func TestResolveEndpoint(t *testing.T) {
	ep, err := ResolveEndpoint("Robot", "127.0.0.1", 8083, "127.0.0.1", 8081)
	require.NoError(t, err)
	assert.Equal(t, 8083, ep.ReceiveAddr.Port)
	assert.Equal(t, 8081, ep.SendAddr.Port)
	assert.Contains(t, ep.String(), "Robot")

	_, err = ResolveEndpoint("Robot", "127.0.0.1", -1, "127.0.0.1", 8081)
	require.Error(t, err)
}

func loopbackEndpoint(t *testing.T, sendPort int) Endpoint {
	t.Helper()
	ep, err := ResolveEndpoint("loopback", "127.0.0.1", 0, "127.0.0.1", sendPort)
	require.NoError(t, err)
	return ep
}

func TestCommandChannel_LoopbackTimeout(t *testing.T) {
	// Reserve a port, then release it so nothing answers there.
	probe, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	port := probe.LocalAddr().(*net.UDPAddr).Port
	require.NoError(t, probe.Close())

	ch, err := Open(loopbackEndpoint(t, port), nil)
	require.NoError(t, err)
	defer ch.Close()

	start := time.Now()
	_, err = ch.Send(protocol.NewCommand("START_TRE_CALCULATION_START"))
	elapsed := time.Since(start)

	require.ErrorIs(t, err, ErrCommandTimeout)
	assert.GreaterOrEqual(t, elapsed, ReceiveTimeout-50*time.Millisecond)
	assert.Less(t, elapsed, 3*ReceiveTimeout)
}

func TestCommandChannel_LoopbackAck(t *testing.T) {
	peer, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer peer.Close()

	ch, err := Open(loopbackEndpoint(t, peer.LocalAddr().(*net.UDPAddr).Port), nil)
	require.NoError(t, err)
	defer ch.Close()
	replyTo := ch.LocalAddr().(*net.UDPAddr)

	got := make(chan string, 1)
	go func() {
		buf := make([]byte, protocol.AckBufferSize)
		peer.SetReadDeadline(time.Now().Add(2 * time.Second))
		n, _, err := peer.ReadFromUDP(buf)
		if err != nil {
			got <- ""
			return
		}
		got <- string(buf[:n])
		peer.WriteToUDP([]byte("ok"), replyTo)
	}()

	ack, err := ch.Send(protocol.NewCommand("VISUALIZE_START"))
	require.NoError(t, err)
	assert.Equal(t, "ok", string(ack))
	assert.Equal(t, "VISUALIZE_START", <-got)
}
