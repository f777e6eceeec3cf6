// Package navsvc runs the three navigation modules (medical image planning,
// target visualization and robot control) over their UDP command channels.
//
// Each module owns one network.CommandChannel. Telemetry polling and every
// operation requested through Service.Exec run on a single loop.Loop, so at
// most one module operation touches the planner or a channel at a time.
package navsvc

import (
	"errors"
	"fmt"

	"github.com/banshee-data/tmsnav/internal/network"
	"github.com/banshee-data/tmsnav/internal/protocol"
)

var (
	// ErrUnknownCommand is returned for command names missing from a
	// module's opcode group.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrTooFewLandmarks is returned when fewer than three planned landmarks
	// are pushed for registration.
	ErrTooFewLandmarks = errors.New("registration needs at least 3 landmarks")
	// ErrNoSkin is returned by operations that need the skin surface.
	ErrNoSkin = errors.New("skin surface not loaded")
	// ErrInvalidArgument wraps malformed operation arguments.
	ErrInvalidArgument = errors.New("invalid argument")
)

// Channel is the command transport of one module, normally a
// *network.CommandChannel.
type Channel interface {
	Send(cmd protocol.Command) ([]byte, error)
	SendAll(cmds []protocol.Command) (int, error)
	Receive() ([]byte, error)
	TryReceive() ([]byte, bool, error)
	State() network.State
	Stats() network.Stats
	Close() error
}

// opcodes resolves command names against one module's group.
type opcodes map[string]string

func (o opcodes) get(name string) (string, error) {
	op, ok := o[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}
	return op, nil
}

func (o opcodes) command(name string, fields ...string) (protocol.Command, error) {
	op, err := o.get(name)
	if err != nil {
		return protocol.Command{}, err
	}
	return protocol.NewCommand(op, fields...), nil
}

// ChannelStatus reports a channel's state for the admin routes.
type ChannelStatus struct {
	State string        `json:"state"`
	Stats network.Stats `json:"stats"`
}

func channelStatus(ch Channel) ChannelStatus {
	return ChannelStatus{State: ch.State().String(), Stats: ch.Stats()}
}

// PollerStatus reports a poller's state for the admin routes.
type PollerStatus struct {
	State string              `json:"state"`
	Stats network.PollerStats `json:"stats"`
}

func pollerStatus(p *network.Poller) PollerStatus {
	return PollerStatus{State: p.State().String(), Stats: p.Stats()}
}
