package stocks

import (
	"errors"
	"fmt"
)

// ErrRunActive is returned by Execute when another run is still in flight.
var ErrRunActive = errors.New("a refresh run is already active")

// ErrBatchAborted marks items that were abandoned when a batch aborted before
// resolving them.
var ErrBatchAborted = errors.New("batch aborted before item was processed")

// ConfigError reports an invalid job configuration. It is fatal to the run
// before any remote call is made.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid job config: %s", e.Reason)
}

// ResolveError reports that the symbol listing failed or produced no work.
// It is fatal to the run; no batches are started.
type ResolveError struct {
	Reason string
	Err    error
}

func (e *ResolveError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("resolve symbols: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("resolve symbols: %s", e.Reason)
}

func (e *ResolveError) Unwrap() error {
	return e.Err
}

// TransportError wraps a network-level failure talking to the upstream API.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("upstream transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// StatusError reports a non-2xx HTTP response from the upstream API.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned HTTP %d: %s", e.Code, e.Body)
}

// APIError reports an application-level failure: the upstream responded 200
// but flagged success=false in its envelope.
type APIError struct {
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("upstream reported failure: %s", e.Message)
}
