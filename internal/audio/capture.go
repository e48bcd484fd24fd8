package audio

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

const (
	// DefaultSampleRate is the mono s16 capture rate used for recordings.
	DefaultSampleRate = 16000

	frameBytes = 640 // 20ms @ 16kHz mono s16
)

// framer splits an arbitrary PCM byte stream into fixed-size frames.
type framer struct {
	size    int
	pending []byte
}

// push appends b and returns every complete frame now available.
func (f *framer) push(b []byte) [][]byte {
	f.pending = append(f.pending, b...)
	var frames [][]byte
	for len(f.pending) >= f.size {
		frame := make([]byte, f.size)
		copy(frame, f.pending)
		f.pending = f.pending[f.size:]
		frames = append(frames, frame)
	}
	return frames
}

// rest returns and clears the trailing partial frame.
func (f *framer) rest() []byte {
	if len(f.pending) == 0 {
		return nil
	}
	tail := append([]byte(nil), f.pending...)
	f.pending = nil
	return tail
}

// Capture is a Pulse record stream on one source. It satisfies Stream.
type Capture struct {
	client *pulse.Client
	stream *pulse.RecordStream

	frames chan []byte
	done   chan struct{}

	mu       sync.Mutex
	framer   framer
	stopped  bool
	inflight sync.WaitGroup
}

func newCapture() *Capture {
	return &Capture{
		frames: make(chan []byte, 128),
		done:   make(chan struct{}),
		framer: framer{size: frameBytes},
	}
}

// StartCapture opens a mono s16 record stream on device at sampleRate.
// Cancelling ctx stops the capture.
func StartCapture(ctx context.Context, device Device, sampleRate int) (*Capture, error) {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}

	client, err := newPulseClient()
	if err != nil {
		return nil, err
	}
	source, err := client.SourceByID(device.ID)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("resolve source %q: %w", device.ID, err)
	}

	c := newCapture()
	c.client = client
	stream, err := client.NewRecord(
		pulse.NewWriter(writerFunc(c.write), pulseproto.FormatInt16LE),
		pulse.RecordSource(source),
		pulse.RecordMono,
		pulse.RecordSampleRate(sampleRate),
		pulse.RecordBufferFragmentSize(frameBytes),
		pulse.RecordMediaName("trace forensic capture"),
	)
	if err != nil {
		_ = c.Stop()
		return nil, fmt.Errorf("create pulse record stream: %w", err)
	}
	c.stream = stream
	stream.Start()

	go func() {
		select {
		case <-ctx.Done():
			_ = c.Stop()
		case <-c.done:
		}
	}()
	return c, nil
}

// Chunks returns captured PCM in fixed-size frames, closed after Stop.
func (c *Capture) Chunks() <-chan []byte {
	return c.frames
}

// Stop releases the Pulse stream, emits any partial frame, and closes Chunks.
// It is idempotent. Delivering the partial frame waits for Chunks to be drained
// when the buffer is full.
func (c *Capture) Stop() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	close(c.done)
	c.mu.Unlock()

	if c.stream != nil {
		c.stream.Stop()
		c.stream.Close()
	}
	if c.client != nil {
		c.client.Close()
	}
	c.inflight.Wait()

	c.mu.Lock()
	tail := c.framer.rest()
	c.mu.Unlock()
	if tail != nil {
		c.frames <- tail
	}
	close(c.frames)
	return nil
}

// write is the Pulse callback. It returns io.EOF once Stop has begun.
func (c *Capture) write(buffer []byte) (int, error) {
	if len(buffer) == 0 {
		return 0, nil
	}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return 0, io.EOF
	}
	// Add under mu so Stop's Wait cannot race it.
	c.inflight.Add(1)
	frames := c.framer.push(buffer)
	c.mu.Unlock()
	defer c.inflight.Done()

	for _, frame := range frames {
		select {
		case <-c.done:
			return 0, io.EOF
		case c.frames <- frame:
		}
	}
	return len(buffer), nil
}

type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) {
	return f(b)
}
