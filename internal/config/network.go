package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/banshee-data/tmsnav/internal/network"
)

// DefaultNetworkPath is the shipped endpoint configuration.
const DefaultNetworkPath = "config/network.json"

// Module suffixes used in the network keys.
const (
	SuffixMedImg    = "MEDIMG"
	SuffixTargetViz = "TARGETVIZ"
	SuffixRobot     = "RobotControl"
)

// ErrMissingKey is returned when a module's endpoint keys are incomplete.
var ErrMissingKey = errors.New("missing config key")

// NetworkConfig is the flat endpoint table. Each module has four keys:
// IP_RECEIVE_<suffix>, IP_SEND_<suffix>, PORT_RECEIVE_<suffix> and
// PORT_SEND_<suffix>.
type NetworkConfig map[string]any

// LoadNetworkConfig reads and validates a network configuration file.
func LoadNetworkConfig(path string) (NetworkConfig, error) {
	cfg := NetworkConfig{}
	if err := readJSON(path, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Modules lists the suffixes that have at least one endpoint key, sorted.
func (c NetworkConfig) Modules() []string {
	seen := map[string]bool{}
	for k := range c {
		for _, prefix := range []string{"IP_RECEIVE_", "IP_SEND_", "PORT_RECEIVE_", "PORT_SEND_"} {
			if s, ok := strings.CutPrefix(k, prefix); ok && s != "" {
				seen[s] = true
			}
		}
	}
	var out []string
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Validate checks that every module present resolves to an endpoint.
func (c NetworkConfig) Validate() error {
	for _, suffix := range c.Modules() {
		if _, err := c.Endpoint(suffix); err != nil {
			return err
		}
	}
	return nil
}

// Endpoint resolves the addresses configured for suffix.
func (c NetworkConfig) Endpoint(suffix string) (network.Endpoint, error) {
	recvIP, err := c.ip("IP_RECEIVE_" + suffix)
	if err != nil {
		return network.Endpoint{}, err
	}
	sendIP, err := c.ip("IP_SEND_" + suffix)
	if err != nil {
		return network.Endpoint{}, err
	}
	recvPort, err := c.port("PORT_RECEIVE_" + suffix)
	if err != nil {
		return network.Endpoint{}, err
	}
	sendPort, err := c.port("PORT_SEND_" + suffix)
	if err != nil {
		return network.Endpoint{}, err
	}
	return network.ResolveEndpoint(suffix, recvIP, recvPort, sendIP, sendPort)
}

func (c NetworkConfig) ip(key string) (string, error) {
	v, ok := c[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingKey, key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("%s must be a non-empty string, got %v", key, v)
	}
	return s, nil
}

func (c NetworkConfig) port(key string) (int, error) {
	v, ok := c[key]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingKey, key)
	}
	f, ok := v.(float64)
	if !ok || f != float64(int(f)) || f < 0 || f > 65535 {
		return 0, fmt.Errorf("%s must be a port number, got %v", key, v)
	}
	return int(f), nil
}
