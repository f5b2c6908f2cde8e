package sim

import "errors"

var (
	// ErrTimeout reports that an expected peer response was not observed
	// within the configured step timeout.
	ErrTimeout = errors.New("peer response timed out")

	// ErrProtocol reports a message with an unexpected kind, step or
	// sender. This indicates an implementation bug, not a runtime
	// condition, and is always fatal to the run.
	ErrProtocol = errors.New("protocol violation")

	// ErrAborted reports that the coordinator tore the run down after
	// detecting a failure.
	ErrAborted = errors.New("run aborted")
)
