package dispatch

import (
	"errors"
	"fmt"
)

// ErrSuperseded is returned for a submission whose result was discarded
// because a newer one was issued while it was in flight.
var ErrSuperseded = errors.New("superseded by a newer request")

// TransportError is a network-level failure: no usable response arrived.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// HTTPError is a planner response with a non-success status.
type HTTPError struct {
	Status     int
	StatusText string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%d %s", e.Status, e.StatusText)
}

// DecodeError is a success response whose body is not JSON.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return "error decoding response body: " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Message formats err for display next to the map.
func Message(err error) string {
	if err == nil {
		return ""
	}
	return "Error: " + err.Error()
}
