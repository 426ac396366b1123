// Package failures defines the error values shared by every pipeline stage.
package failures

import (
	"errors"
	"fmt"
)

var (
	ErrSetup         = errors.New("setup")
	ErrEmptyResult   = errors.New("empty result")
	ErrMissingResult = errors.New("missing result")
	ErrNoInput       = errors.New("no input")
	ErrOutOfRange    = errors.New("frame out of range")
	ErrDecode        = errors.New("decode")
)

// Remote call names used in RemoteError.Op and NetworkError.Op.
const (
	OpOptimize    = "optimize"
	OpSubmit      = "submit"
	OpPoll        = "poll"
	OpDownload    = "download"
	OpReconstruct = "reconstruct"
)

// RemoteError reports a non-success or malformed response from an external service.
type RemoteError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *RemoteError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: malformed response: %s", e.Op, e.Body)
	}
	if e.Body == "" {
		return fmt.Sprintf("%s: status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

// IsSubmission reports whether err is a rejected video job submission.
func IsSubmission(err error) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.Op == OpSubmit
}

// NetworkError reports a transport failure talking to an external service.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("%s: network: %v", e.Op, e.Err) }
func (e *NetworkError) Unwrap() error { return e.Err }

// OperationError is the failure payload of a finished long-running operation.
type OperationError struct {
	Code    int
	Message string
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("operation finished with an error: (code %d) %s", e.Code, e.Message)
}

// SubprocessError reports a child process that could not start (ExitCode -1)
// or exited non-zero.
type SubprocessError struct {
	Name     string
	ExitCode int
	Err      error
}

func (e *SubprocessError) Error() string {
	if e.ExitCode < 0 {
		return fmt.Sprintf("%s: failed to start: %v", e.Name, e.Err)
	}
	return fmt.Sprintf("%s: exited with status %d", e.Name, e.ExitCode)
}

func (e *SubprocessError) Unwrap() error { return e.Err }
