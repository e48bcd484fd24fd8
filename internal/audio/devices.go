// Package audio handles input device discovery, selection, and microphone recording.
package audio

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

// Device describes one Pulse input source.
type Device struct {
	ID          string
	Description string
	State       string
	Available   bool
	Muted       bool
	Default     bool
	// Monitor marks a loopback of an output sink rather than a microphone.
	Monitor bool
}

// Usable reports whether capture from d would yield audio.
func (d Device) Usable() bool {
	return d.Available && !d.Muted
}

// loopback reports whether d is a sink monitor, by flag or by PulseAudio's
// ".monitor" naming.
func (d Device) loopback() bool {
	return d.Monitor || strings.HasSuffix(strings.ToLower(d.ID), ".monitor")
}

func (d Device) problem() string {
	if d.Muted {
		return "muted"
	}
	return "unavailable"
}

// Selection is the resolved capture source plus optional fallback warning context.
type Selection struct {
	Device   Device
	Warning  string
	Fallback bool
}

func newPulseClient() (*pulse.Client, error) {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName("trace"),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
	if err != nil {
		return nil, fmt.Errorf("connect pulse server: %w", err)
	}
	return client, nil
}

// ListDevices returns Pulse input sources with default/availability metadata.
func ListDevices(_ context.Context) ([]Device, error) {
	client, err := newPulseClient()
	if err != nil {
		return nil, err
	}
	defer client.Close()

	defaultSource, err := client.DefaultSource()
	if err != nil {
		return nil, fmt.Errorf("read default source: %w", err)
	}

	var replies pulseproto.GetSourceInfoListReply
	if err := client.RawRequest(&pulseproto.GetSourceInfoList{}, &replies); err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}

	devices := make([]Device, 0, len(replies))
	for _, reply := range replies {
		if reply == nil {
			continue
		}
		devices = append(devices, deviceFromSource(reply, defaultSource.ID()))
	}
	return devices, nil
}

func deviceFromSource(reply *pulseproto.GetSourceInfoReply, defaultID string) Device {
	return Device{
		ID:          reply.SourceName,
		Description: reply.Device,
		State:       stateName(reply.State),
		Available:   activePortAvailable(reply),
		Muted:       reply.Mute,
		Default:     reply.SourceName == defaultID,
		Monitor:     strings.HasSuffix(reply.SourceName, ".monitor"),
	}
}

// SelectDevice resolves audio.input/audio.fallback preferences against live devices.
func SelectDevice(ctx context.Context, input string, fallback string) (Selection, error) {
	devices, err := ListDevices(ctx)
	if err != nil {
		return Selection{}, err
	}
	return selectDevice(devices, input, fallback)
}

// preference is a normalized audio.input or audio.fallback value. Empty and
// "default" both mean the server's default source.
type preference string

func newPreference(raw string) preference {
	return preference(strings.ToLower(strings.TrimSpace(raw)))
}

func (p preference) isDefault() bool {
	return p == "" || p == "default"
}

// resolve returns the device p names. Monitor sources only match by exact id.
func (p preference) resolve(devices []Device) (Device, bool) {
	for _, device := range devices {
		if p.isDefault() {
			if device.Default {
				return device, true
			}
			continue
		}
		if device.loopback() && strings.ToLower(device.ID) != string(p) {
			continue
		}
		if deviceMatches(device, string(p)) {
			return device, true
		}
	}
	return Device{}, false
}

// selectDevice prefers input, then fallback, then the default source.
func selectDevice(devices []Device, input string, fallback string) (Selection, error) {
	if len(devices) == 0 {
		return Selection{}, errors.New("no audio input devices found")
	}

	primaryPref := newPreference(input)
	primary, ok := primaryPref.resolve(devices)
	switch {
	case !ok && primaryPref.isDefault():
		return Selection{}, errors.New("default audio source is unavailable")
	case !ok:
		return Selection{}, fmt.Errorf("audio.input %q did not match any device", primaryPref)
	case primary.Usable():
		return Selection{Device: primary}, nil
	}

	fallbackPref := newPreference(fallback)
	backup, ok := fallbackPref.resolve(devices)
	if !ok {
		if fallbackPref.isDefault() {
			return Selection{}, fmt.Errorf("primary input %q is %s and no usable fallback: default audio source is unavailable", primary.ID, primary.problem())
		}
		return Selection{}, fmt.Errorf("primary input %q is %s and fallback %q not found", primary.ID, primary.problem(), fallbackPref)
	}
	if !backup.Usable() {
		return Selection{}, fmt.Errorf("audio fallback device %q is %s", backup.ID, backup.problem())
	}

	return Selection{
		Device:   backup,
		Warning:  fmt.Sprintf("audio.input %q is %s; falling back to %q", primary.ID, primary.problem(), backup.ID),
		Fallback: primary.ID != backup.ID,
	}, nil
}

// deviceMatches reports whether a lowercase search term matches a device id or description.
func deviceMatches(device Device, term string) bool {
	if term == "" {
		return false
	}
	return strings.Contains(strings.ToLower(device.ID), term) ||
		strings.Contains(strings.ToLower(device.Description), term)
}

func stateName(state uint32) string {
	switch state {
	case 0:
		return "running"
	case 1:
		return "idle"
	case 2:
		return "suspended"
	default:
		return fmt.Sprintf("unknown(%d)", state)
	}
}

// activePortAvailable treats sources without ports, and ports of unknown
// availability, as available. PulseAudio values: unknown=0, no=1, yes=2.
func activePortAvailable(reply *pulseproto.GetSourceInfoReply) bool {
	if reply == nil {
		return false
	}
	for _, port := range reply.Ports {
		if port.Name == reply.ActivePortName {
			return port.Available != 1
		}
	}
	return true
}
