package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rbright/trace/internal/fault"
	"github.com/rbright/trace/internal/payload"
)

var (
	// ErrAlreadyRecording indicates Start was called while a recording is active.
	ErrAlreadyRecording = errors.New("recording already in progress")
	// ErrNotRecording indicates Stop or Cancel was called without an active recording.
	ErrNotRecording = errors.New("no active recording")
)

// Stream is one exclusively held input device producing PCM chunks.
// Stop must release the device and close the Chunks channel.
type Stream interface {
	Chunks() <-chan []byte
	Stop() error
}

// DeviceOpener acquires an input device for the duration of one recording.
type DeviceOpener interface {
	Open(context.Context) (Stream, Device, error)
}

// DeviceOpenerFunc adapts a function to the DeviceOpener interface.
type DeviceOpenerFunc func(context.Context) (Stream, Device, error)

func (f DeviceOpenerFunc) Open(ctx context.Context) (Stream, Device, error) {
	return f(ctx)
}

// Recorder is the microphone capture adapter: Start acquires the device,
// Stop releases it and yields the recorded clip as a WAV payload.
type Recorder struct {
	opener     DeviceOpener
	sampleRate int
	now        func() time.Time

	mu     sync.Mutex
	active *recording
}

type recording struct {
	stream  Stream
	device  Device
	drained chan struct{}

	mu     sync.Mutex
	chunks [][]byte

	releaseOnce sync.Once
	releaseErr  error
}

// NewRecorder constructs a recorder over opener producing mono s16 PCM at sampleRate.
func NewRecorder(opener DeviceOpener, sampleRate int) *Recorder {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return &Recorder{opener: opener, sampleRate: sampleRate, now: time.Now}
}

// Start acquires the input device and begins buffering chunks. Cancelling ctx
// releases the device and discards the recording even if Stop is never called.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active != nil {
		return ErrAlreadyRecording
	}

	stream, device, err := r.opener.Open(ctx)
	if err != nil {
		if _, classified := fault.KindOf(err); classified {
			return err
		}
		return fault.Wrap(fault.DeviceUnavailable, err, "open input device")
	}

	rec := &recording{stream: stream, device: device, drained: make(chan struct{})}
	go rec.drain()
	go func() {
		select {
		case <-ctx.Done():
			_ = rec.release()
			r.mu.Lock()
			if r.active == rec {
				r.active = nil
			}
			r.mu.Unlock()
		case <-rec.drained:
		}
	}()

	r.active = rec
	return nil
}

// Recording reports whether a device is currently held.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active != nil
}

// Device returns the active recording's device, if any.
func (r *Recorder) Device() (Device, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil {
		return Device{}, false
	}
	return r.active.device, true
}

// Stop releases the device and returns the buffered audio. Zero captured
// chunks yield an empty payload.
func (r *Recorder) Stop() (*payload.Payload, error) {
	rec, err := r.detach()
	if err != nil {
		return nil, err
	}

	releaseErr := rec.release()
	<-rec.drained
	if releaseErr != nil {
		return nil, fault.Wrap(fault.DeviceUnavailable, releaseErr, "stop capture")
	}

	pcm := rec.concat()
	var data []byte
	if len(pcm) > 0 {
		data = EncodeWAV(pcm, r.sampleRate, 1)
	}

	name := fmt.Sprintf("recording-%d.wav", r.now().UnixMilli())
	return payload.New(name, "audio/wav", data)
}

// Cancel releases the device and discards buffered audio.
func (r *Recorder) Cancel() error {
	rec, err := r.detach()
	if err != nil {
		return err
	}
	releaseErr := rec.release()
	<-rec.drained
	return releaseErr
}

func (r *Recorder) detach() (*recording, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.active
	if rec == nil {
		return nil, ErrNotRecording
	}
	r.active = nil
	return rec, nil
}

// drain copies chunks in arrival order until the stream closes its channel.
func (rec *recording) drain() {
	defer close(rec.drained)
	for chunk := range rec.stream.Chunks() {
		if len(chunk) == 0 {
			continue
		}
		rec.mu.Lock()
		rec.chunks = append(rec.chunks, append([]byte(nil), chunk...))
		rec.mu.Unlock()
	}
}

func (rec *recording) release() error {
	rec.releaseOnce.Do(func() {
		rec.releaseErr = rec.stream.Stop()
	})
	return rec.releaseErr
}

func (rec *recording) concat() []byte {
	rec.mu.Lock()
	defer rec.mu.Unlock()

	total := 0
	for _, chunk := range rec.chunks {
		total += len(chunk)
	}
	out := make([]byte, 0, total)
	for _, chunk := range rec.chunks {
		out = append(out, chunk...)
	}
	return out
}
