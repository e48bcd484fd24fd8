package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rbright/trace/internal/fault"
	"github.com/rbright/trace/internal/report"
	"github.com/rbright/trace/internal/session"
)

// errorBody keeps the "detail" field of the original upload API alongside
// the classified failure.
type errorBody struct {
	Detail string          `json:"detail"`
	Error  *report.Failure `json:"error,omitempty"`
}

// statusFor maps a fault kind to its HTTP status.
func statusFor(kind fault.Kind) int {
	switch kind {
	case fault.InvalidInput:
		return http.StatusBadRequest
	case fault.DeviceUnavailable, fault.Configuration:
		return http.StatusServiceUnavailable
	case fault.Transport:
		return http.StatusGatewayTimeout
	case fault.MalformedResponse, fault.Upstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errSessionNotFound), errors.Is(err, session.ErrNoClip):
		writeJSON(w, http.StatusNotFound, errorBody{Detail: err.Error()})
	case errors.Is(err, errTooManySessions):
		writeJSON(w, http.StatusTooManyRequests, errorBody{Detail: err.Error()})
	case errors.Is(err, session.ErrBusy):
		writeJSON(w, http.StatusConflict, errorBody{Detail: err.Error()})
	case errors.Is(err, session.ErrClosed):
		writeJSON(w, http.StatusGone, errorBody{Detail: err.Error()})
	default:
		kind, ok := fault.KindOf(err)
		if !ok {
			writeJSON(w, http.StatusInternalServerError, errorBody{Detail: err.Error()})
			return
		}
		f := report.FailureOf(err)
		writeJSON(w, statusFor(kind), errorBody{Detail: f.Message, Error: &f})
	}
}
