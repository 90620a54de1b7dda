package transfer

import "fmt"

// IOError represents local filesystem failures: create, open, read or write.
type IOError struct {
	Op   string // What was being done (e.g., "create_cache_dir", "write_chunk")
	Path string // The local path involved
	Err  error  // Underlying error, if any
}

func (e *IOError) Error() string {
	return fmt.Sprintf("io error during %s on %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// NetworkError represents transport-level failures: DNS, connection resets,
// timeouts, interrupted bodies. StatusCode is set when a download origin
// answered with a non-success status.
type NetworkError struct {
	Operation  string // The operation that failed (e.g., "download", "upload")
	StatusCode int    // HTTP status code, if applicable (0 for non-HTTP errors)
	APIMessage string // Error message from the network layer
	Err        error  // Underlying error, if any
}

func (e *NetworkError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("network error during %s (HTTP %d): %s", e.Operation, e.StatusCode, e.APIMessage)
	}

	return fmt.Sprintf("network error during %s: %s", e.Operation, e.APIMessage)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// HTTPStatusError means the remote endpoint rejected an upload.
type HTTPStatusError struct {
	Operation string
	Status    int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("%s rejected with HTTP status %d", e.Operation, e.Status)
}

// DigestMismatchError means a freshly downloaded file failed the integrity gate.
type DigestMismatchError struct {
	Expected string
	Actual   string
}

func (e *DigestMismatchError) Error() string {
	return fmt.Sprintf("MD5 mismatch: expected %s, got %s", e.Expected, e.Actual)
}

// ResourceOpenError means neither a direct open nor the scoped resolver could
// produce a readable handle for an upload source.
type ResourceOpenError struct {
	Source string
	Err    error
}

func (e *ResourceOpenError) Error() string {
	return fmt.Sprintf("failed to open resource %s: %v", e.Source, e.Err)
}

func (e *ResourceOpenError) Unwrap() error {
	return e.Err
}
