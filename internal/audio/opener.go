package audio

import (
	"context"
	"log/slog"
	"sync"

	"github.com/rbright/trace/internal/fault"
)

// PulseOpener opens exclusive record streams on the configured Pulse input.
type PulseOpener struct {
	Input      string
	Fallback   string
	SampleRate int
	Logger     *slog.Logger
}

var deviceLocks sync.Map // device id -> *sync.Mutex

// Open selects the input device, locks it for this process, and starts capture.
func (o PulseOpener) Open(ctx context.Context) (Stream, Device, error) {
	selection, err := SelectDevice(ctx, o.Input, o.Fallback)
	if err != nil {
		return nil, Device{}, fault.Wrap(fault.DeviceUnavailable, err, "select input device")
	}
	if selection.Warning != "" && o.Logger != nil {
		o.Logger.Warn(selection.Warning)
	}

	unlock, ok := lockDevice(selection.Device.ID)
	if !ok {
		return nil, Device{}, fault.New(fault.DeviceUnavailable, "input device %q is already recording", selection.Device.ID)
	}

	capture, err := StartCapture(ctx, selection.Device, o.SampleRate)
	if err != nil {
		unlock()
		return nil, Device{}, fault.Wrap(fault.DeviceUnavailable, err, "start capture on %q", selection.Device.ID)
	}

	return &lockedStream{Stream: capture, unlock: unlock}, selection.Device, nil
}

// lockDevice takes the per-device lock without blocking.
func lockDevice(id string) (func(), bool) {
	value, _ := deviceLocks.LoadOrStore(id, &sync.Mutex{})
	mu := value.(*sync.Mutex)
	if !mu.TryLock() {
		return nil, false
	}
	var once sync.Once
	return func() { once.Do(mu.Unlock) }, true
}

// lockedStream releases the device lock after the wrapped stream stops.
type lockedStream struct {
	Stream
	unlock func()
}

func (s *lockedStream) Stop() error {
	defer s.unlock()
	return s.Stream.Stop()
}
