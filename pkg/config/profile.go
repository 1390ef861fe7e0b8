package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lockengine/lockengine-go/pkg/protocol"
)

// Profile is a connection profile for a single lock: the serial
// number to scan for, the reconnect policy, timeout overrides, and
// the default parameter byte for each gated operation (§4.1, §4.6,
// §8). Callers typically load one from YAML (mirroring how the
// teacher's CLI tools load their own connection profiles) but may
// also build one programmatically.
type Profile struct {
	// Serial is the lock's serial number, used for BLE discovery
	// (§4.1).
	Serial string `yaml:"serial"`

	// KeepConnection selects the unbounded-retry-with-backoff policy
	// over the bounded give-up-after-N policy (§4.2, §8 scenario S5).
	KeepConnection bool `yaml:"keep_connection"`

	// ScanTimeout is loaded from the profile but not read by the
	// engine; scans always use transport.DefaultScanTimeout.
	ScanTimeout time.Duration `yaml:"scan_timeout"`

	// RequestTimeout is loaded from the profile but not read by the
	// engine; requests always use commandmux.DefaultTimeout.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// Params holds the default parameter byte for each gated operation
	// (OPEN, CLOSE, PULL_SPRING) this profile issues without an
	// explicit override, keyed by command name. Unlisted commands fall
	// back to protocol.ParamAuto.
	Params map[string]protocol.Param `yaml:"params"`
}

// yamlProfile mirrors Profile's wire shape; Params is decoded as
// strings since YAML has no notion of protocol.Param, then resolved
// against paramNames.
type yamlProfile struct {
	Serial         string            `yaml:"serial"`
	KeepConnection bool              `yaml:"keep_connection"`
	ScanTimeout    time.Duration     `yaml:"scan_timeout"`
	RequestTimeout time.Duration     `yaml:"request_timeout"`
	Params         map[string]string `yaml:"params"`
}

var paramNames = map[string]protocol.Param{
	"none":         protocol.ParamNone,
	"auto":         protocol.ParamAuto,
	"force":        protocol.ParamForce,
	"without_pull": protocol.ParamWithoutPull,
}

// Load reads a Profile from a YAML file at path.
func Load(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a Profile from YAML-encoded data.
func Parse(data []byte) (Profile, error) {
	var y yamlProfile
	if err := yaml.Unmarshal(data, &y); err != nil {
		return Profile{}, fmt.Errorf("config: parse: %w", err)
	}

	params := make(map[string]protocol.Param, len(y.Params))
	for cmd, name := range y.Params {
		p, ok := paramNames[name]
		if !ok {
			return Profile{}, fmt.Errorf("config: unknown param %q for %q", name, cmd)
		}
		params[cmd] = p
	}

	return Profile{
		Serial:         y.Serial,
		KeepConnection: y.KeepConnection,
		ScanTimeout:    y.ScanTimeout,
		RequestTimeout: y.RequestTimeout,
		Params:         params,
	}, nil
}

// Param returns the configured default parameter byte for cmd,
// falling back to protocol.ParamAuto when unset.
func (p Profile) Param(cmd protocol.Command) protocol.Param {
	if v, ok := p.Params[cmd.String()]; ok {
		return v
	}
	return protocol.ParamAuto
}

// Save writes the profile to path as YAML, creating or truncating the
// file.
func (p Profile) Save(path string) error {
	data, err := p.Marshal()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// Marshal encodes the profile as YAML.
func (p Profile) Marshal() ([]byte, error) {
	y := yamlProfile{
		Serial:         p.Serial,
		KeepConnection: p.KeepConnection,
		ScanTimeout:    p.ScanTimeout,
		RequestTimeout: p.RequestTimeout,
		Params:         make(map[string]string, len(p.Params)),
	}
	for cmd, param := range p.Params {
		for name, v := range paramNames {
			if v == param {
				y.Params[cmd] = name
				break
			}
		}
	}
	data, err := yaml.Marshal(y)
	if err != nil {
		return nil, fmt.Errorf("config: marshal: %w", err)
	}
	return data, nil
}
