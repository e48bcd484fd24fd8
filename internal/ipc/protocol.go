// Package ipc carries the newline-delimited JSON control protocol between
// `trace stop|cancel|status|reset` and a running `trace record` owner.
package ipc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

// Commands understood by the recording owner.
const (
	CommandStop   = "stop"
	CommandCancel = "cancel"
	CommandStatus = "status"
	CommandReset  = "reset"
)

type Request struct {
	Command string `json:"command"`
}

type Response struct {
	OK       bool   `json:"ok"`
	State    string `json:"state,omitempty"`
	Message  string `json:"message,omitempty"`
	Decision string `json:"decision,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Known reports whether command is part of the protocol.
func Known(command string) bool {
	switch command {
	case CommandStop, CommandCancel, CommandStatus, CommandReset:
		return true
	default:
		return false
	}
}

// Unknown builds the canonical rejection for an unsupported command.
func Unknown(state string, command string) Response {
	return Response{OK: false, State: state, Error: fmt.Sprintf("unknown command: %s", command)}
}

func failure(format string, args ...any) Response {
	return Response{OK: false, Error: fmt.Sprintf(format, args...)}
}

// writeLine encodes v as one JSON line.
func writeLine(w io.Writer, v any) error {
	return json.NewEncoder(w).Encode(v)
}

// readLine reads one line and decodes it into v. Transport and syntax
// failures are reported with distinct prefixes.
func readLine(r *bufio.Reader, v any, what string) error {
	line, err := r.ReadBytes('\n')
	if err != nil {
		return fmt.Errorf("read %s: %w", what, err)
	}
	if err := json.Unmarshal(line, v); err != nil {
		return fmt.Errorf("decode %s: %w", what, err)
	}
	return nil
}
