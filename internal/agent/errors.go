// File: internal/agent/errors.go
package agent

// ErrorCode is a string type used for structured error reporting in
// corrective prompts and trajectories. A custom type keeps free-form strings
// out of positions expecting a code.
type ErrorCode string

const (
	// -- Model output problems --
	ErrCodeInvalidRegion    ErrorCode = "INVALID_REGION"
	ErrCodeCropFailure      ErrorCode = "CROP_FAILURE"
	ErrCodeFeatureDisabled  ErrorCode = "FEATURE_DISABLED"
	ErrCodePrematureAnswer  ErrorCode = "PREMATURE_ANSWER"
	ErrCodeUnexpectedAction ErrorCode = "UNEXPECTED_ACTION"

	// -- Collaborator problems --
	ErrCodeProviderFailure ErrorCode = "PROVIDER_FAILURE"
	ErrCodeParseFailure    ErrorCode = "PARSE_FAILURE"
	ErrCodeToolFailure     ErrorCode = "TOOL_FAILURE"
)
