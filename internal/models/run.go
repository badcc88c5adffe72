package models

import "time"

type RunOutcome string

const (
	RunOutcomeOK             RunOutcome = "ok"
	RunOutcomeTransportError RunOutcome = "transport_error"
	RunOutcomeHTTPError      RunOutcome = "http_error"
	RunOutcomeDecodeError    RunOutcome = "decode_error"
	RunOutcomeSuperseded     RunOutcome = "superseded"
)

// Run is one journal entry: what a single dispatch submission did.
type Run struct {
	ID  string
	Seq uint64 // orchestrator sequence number, resets on restart

	Outcome RunOutcome
	// HTTPStatus is set when the planner rejected the request.
	HTTPStatus int
	Error      string

	Lines   int
	Markers int
	Skipped int
	Bounds  *Viewport

	InputBytes int
	StartedAt  time.Time
	Duration   time.Duration
}
