package session

import (
	"github.com/rbright/trace/internal/analysis"
	"github.com/rbright/trace/internal/fault"
	"github.com/rbright/trace/internal/fsm"
	"github.com/rbright/trace/internal/payload"
)

// State is the closed set of controller states. Exactly one of Idle,
// Analyzing, Reported, or Failed.
type State interface {
	Phase() fsm.State
	sealed()
}

// Idle holds an optional clip waiting for analysis.
type Idle struct {
	Payload *payload.Payload
}

// Analyzing holds the clip currently submitted to the analyzer.
type Analyzing struct {
	Payload *payload.Payload
}

// Reported holds the last successful verdict.
type Reported struct {
	Report analysis.Report
}

// Failed holds the last failure, classified for display.
type Failed struct {
	Kind    fault.Kind
	Message string
}

func (Idle) Phase() fsm.State      { return fsm.StateIdle }
func (Analyzing) Phase() fsm.State { return fsm.StateAnalyzing }
func (Reported) Phase() fsm.State  { return fsm.StateReported }
func (Failed) Phase() fsm.State    { return fsm.StateFailed }

func (Idle) sealed()      {}
func (Analyzing) sealed() {}
func (Reported) sealed()  {}
func (Failed) sealed()    {}

// PayloadInfo describes a clip without exposing its bytes.
type PayloadInfo struct {
	Name      string `json:"name"`
	MIMEType  string `json:"mime_type"`
	SizeBytes int64  `json:"size_bytes"`
}

// ErrorInfo is the display form of a Failed state.
type ErrorInfo struct {
	Kind    fault.Kind `json:"kind"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
}

// Snapshot is the serializable view of a controller at one version.
type Snapshot struct {
	State   fsm.State        `json:"state"`
	Version uint64           `json:"version"`
	Payload *PayloadInfo     `json:"payload,omitempty"`
	Report  *analysis.Report `json:"report,omitempty"`
	Error   *ErrorInfo       `json:"error,omitempty"`
}

func snapshotOf(state State, version uint64) Snapshot {
	snap := Snapshot{State: state.Phase(), Version: version}
	switch s := state.(type) {
	case Idle:
		snap.Payload = infoOf(s.Payload)
	case Analyzing:
		snap.Payload = infoOf(s.Payload)
	case Reported:
		report := s.Report
		snap.Report = &report
	case Failed:
		snap.Error = &ErrorInfo{Kind: s.Kind, Title: s.Kind.Title(), Message: s.Message}
	}
	return snap
}

func infoOf(p *payload.Payload) *PayloadInfo {
	if p == nil {
		return nil
	}
	return &PayloadInfo{Name: p.Name(), MIMEType: p.MIMEType(), SizeBytes: p.SizeBytes()}
}

// payloadOf returns the clip held by state, if any.
func payloadOf(state State) *payload.Payload {
	switch s := state.(type) {
	case Idle:
		return s.Payload
	case Analyzing:
		return s.Payload
	default:
		return nil
	}
}
