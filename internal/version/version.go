// Package version carries build metadata stamped in through -ldflags.
package version

import "runtime"

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Engine is the product name reported by the health document.
const Engine = "TRACE"

func String() string {
	return "trace " + Version + " (commit=" + Commit + ", date=" + Date + ", go=" + runtime.Version() + ")"
}

// Info is the machine-readable form of String.
type Info struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
	Go      string `json:"go"`
}

func Current() Info {
	return Info{Version: Version, Commit: Commit, Date: Date, Go: runtime.Version()}
}
