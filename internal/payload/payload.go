// Package payload holds captured audio clips and the file-picker capture adapter.
package payload

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rbright/trace/internal/fault"
)

// DefaultMaxBytes matches the inline request size accepted by the inference endpoint.
const DefaultMaxBytes int64 = 20 << 20

// Payload is one immutable audio clip pending analysis.
type Payload struct {
	name     string
	mimeType string
	data     []byte

	mu          sync.Mutex
	previewPath string
	released    bool
}

// New validates and copies a captured clip.
func New(name string, mimeType string, data []byte) (*Payload, error) {
	mimeType = normalizeMIME(mimeType)
	if !IsAudioMIME(mimeType) {
		return nil, fault.New(fault.InvalidInput, "%q has media type %q; an audio file is required", name, mimeType)
	}
	if strings.TrimSpace(name) == "" {
		name = "clip" + extensionFor(mimeType)
	}
	return &Payload{
		name:     name,
		mimeType: mimeType,
		data:     append([]byte(nil), data...),
	}, nil
}

// Open reads a file from disk as a payload, enforcing maxBytes when positive.
func Open(path string, maxBytes int64) (*Payload, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fault.Wrap(fault.InvalidInput, err, "open audio file")
	}
	defer f.Close()

	return Read(filepath.Base(path), "", f, maxBytes)
}

// Read consumes r as a payload. The declared MIME type wins when present; otherwise
// it is resolved from the file extension and finally from content sniffing.
func Read(name string, declaredMIME string, r io.Reader, maxBytes int64) (*Payload, error) {
	limited := r
	if maxBytes > 0 {
		limited = io.LimitReader(r, maxBytes+1)
	}
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, fault.Wrap(fault.InvalidInput, err, "read %q", name)
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, fault.New(fault.InvalidInput, "%q exceeds the %d byte upload limit", name, maxBytes)
	}

	mimeType := ResolveMIME(name, declaredMIME, data)
	return New(name, mimeType, data)
}

// Name returns the clip's display name.
func (p *Payload) Name() string { return p.name }

// MIMEType returns the declared media type.
func (p *Payload) MIMEType() string { return p.mimeType }

// SizeBytes returns the clip length in bytes.
func (p *Payload) SizeBytes() int64 { return int64(len(p.data)) }

// Data returns a copy of the clip bytes.
func (p *Payload) Data() []byte {
	return append([]byte(nil), p.data...)
}

// Preview writes the clip to a temporary file suitable for local playback and
// returns its path. The file lives until Release.
func (p *Payload) Preview() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.released {
		return "", errors.New("payload already released")
	}
	if p.previewPath != "" {
		return p.previewPath, nil
	}

	f, err := os.CreateTemp("", "trace-preview-*"+extensionFor(p.mimeType))
	if err != nil {
		return "", fmt.Errorf("create preview file: %w", err)
	}
	if _, err := f.Write(p.data); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("write preview file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("close preview file: %w", err)
	}

	p.previewPath = f.Name()
	return p.previewPath, nil
}

// Release drops the preview handle. It is safe to call more than once.
func (p *Payload) Release() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.released = true
	if p.previewPath != "" {
		_ = os.Remove(p.previewPath)
		p.previewPath = ""
	}
}

// Released reports whether Release has been called.
func (p *Payload) Released() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.released
}
