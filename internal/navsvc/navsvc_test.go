package navsvc

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/tmsnav/internal/config"
	"github.com/banshee-data/tmsnav/internal/geom"
	"github.com/banshee-data/tmsnav/internal/loop"
	"github.com/banshee-data/tmsnav/internal/mesh"
	"github.com/banshee-data/tmsnav/internal/network"
	"github.com/banshee-data/tmsnav/internal/protocol"
	"github.com/banshee-data/tmsnav/internal/testutil"
)

// fakeChannel acks every command unless failAfter commands have been sent.
// Replies feed Receive; telemetry feeds TryReceive.
type fakeChannel struct {
	mu        sync.Mutex
	sent      []string
	replies   [][]byte
	failAfter int
	sendErr   error
	closed    bool
	stats     network.Stats

	telemetry chan []byte
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{failAfter: -1, telemetry: make(chan []byte, 16)}
}

func (f *fakeChannel) Send(cmd protocol.Command) ([]byte, error) {
	if _, err := cmd.Encode(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, network.ErrChannelClosed
	}
	if f.sendErr != nil || (f.failAfter >= 0 && len(f.sent) >= f.failAfter) {
		f.stats.Timeouts++
		if f.sendErr != nil {
			return nil, f.sendErr
		}
		return nil, network.ErrCommandTimeout
	}
	f.sent = append(f.sent, cmd.String())
	f.stats.Sent++
	f.stats.Acked++
	return []byte("ACK"), nil
}

func (f *fakeChannel) SendAll(cmds []protocol.Command) (int, error) {
	for i, cmd := range cmds {
		if _, err := f.Send(cmd); err != nil {
			return i, err
		}
	}
	return len(cmds), nil
}

func (f *fakeChannel) Receive() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.replies) == 0 {
		return nil, network.ErrCommandTimeout
	}
	r := f.replies[0]
	f.replies = f.replies[1:]
	f.stats.Received++
	return r, nil
}

func (f *fakeChannel) TryReceive() ([]byte, bool, error) {
	f.mu.Lock()
	closed := f.closed
	f.mu.Unlock()
	if closed {
		return nil, false, network.ErrChannelClosed
	}
	select {
	case d := <-f.telemetry:
		return d, true, nil
	case <-time.After(2 * time.Millisecond):
		return nil, false, nil
	}
}

func (f *fakeChannel) State() network.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return network.StateClosed
	}
	return network.StateIdle
}

func (f *fakeChannel) Stats() network.Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeChannel) Sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func (f *fakeChannel) reply(data string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, []byte(data))
}

// identityGroup maps each name to itself so sent commands are readable.
func identityGroup(names ...string) map[string]string {
	g := make(map[string]string, len(names))
	for _, n := range names {
		g[n] = n
	}
	return g
}

func medImgCommands() map[string]string {
	return identityGroup(
		CmdLandmarkCount, CmdLandmarkCurrent, CmdLandmarkLast,
		CmdPoseOrientation, CmdPoseTranslation,
		CmdDigitizeHighlighted, CmdDigitizePrevAndHigh, CmdDigitizePrev, CmdAutoDigitize,
		CmdRegister, CmdRegisterPrevious, CmdTREStart, CmdTREStop,
		CmdICPDigitize, CmdICPClearPrev, CmdICPClearAll, CmdICPRegister,
	)
}

func testCommandSet() config.CommandSet {
	return config.CommandSet{
		config.GroupMedImg:    medImgCommands(),
		config.GroupTargetViz: identityGroup(CmdVisualizeStart, CmdVisualizeStop),
		config.GroupRobot:     identityGroup("MAN_ADJUST_T", "MAN_ADJUST_R", "ROB_CONN_ON", "GET_JNT_ANGS", "EXECUTE_MOTION"),
	}
}

// skinPlane is a z = 0 patch facing +z.
func skinPlane() *mesh.Mesh {
	return mesh.Plane(r3.Vec{X: 0.3, Y: 0.7}, 50, 1)
}

var squareLandmarks = []geom.Point3{{}, {X: 10}, {Y: 10}, {X: -10}}

func runLoop(t *testing.T) *loop.Loop {
	t.Helper()
	l := loop.New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-l.Done()
	})
	return l
}

type testService struct {
	*Service
	medImg, targetViz, robot *fakeChannel
}

// newTestService builds a running service over fake channels.
func newTestService(t *testing.T) *testService {
	t.Helper()
	testutil.MuteLogs(t)
	ts := &testService{medImg: newFakeChannel(), targetViz: newFakeChannel(), robot: newFakeChannel()}
	svc, err := NewWithChannels(Config{
		Commands: testCommandSet(),
		Skin:     skinPlane(),
	}, Channels{MedImg: ts.medImg, TargetViz: ts.targetViz, Robot: ts.robot})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go svc.Run(ctx)
	t.Cleanup(func() {
		svc.Close()
		cancel()
		<-svc.loop.Done()
	})
	ts.Service = svc
	return ts
}
