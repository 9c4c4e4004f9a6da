package agentrt

import (
	"errors"
	"regexp"
)

// toolsNotSupportedHeuristic matches adapter error text indicating the
// provider rejected the `tools` request field outright.
var toolsNotSupportedHeuristic = regexp.MustCompile(`(?i)tools?.not.supported|does not support tools|unknown.field.*tools|invalid.*tool`)

// ToolsNotSupportedError is the sentinel thrown when an adapter's error
// matches the tools-not-supported heuristic. The tool loop catches it, flips
// the capability cache entry to not_supported, and falls back to a
// flattened ChatComplete call.
type ToolsNotSupportedError struct {
	Err error
}

func (e *ToolsNotSupportedError) Error() string { return e.Err.Error() }
func (e *ToolsNotSupportedError) Unwrap() error { return e.Err }

// classifyToolError wraps err as *ToolsNotSupportedError if its message
// matches the provider-rejected-tools heuristic; otherwise returns err
// unchanged (a genuine transport/provider error, which must bubble).
func classifyToolError(err error) error {
	if err == nil {
		return nil
	}
	var already *ToolsNotSupportedError
	if errors.As(err, &already) {
		return err
	}
	if toolsNotSupportedHeuristic.MatchString(err.Error()) {
		return &ToolsNotSupportedError{Err: err}
	}
	return err
}
