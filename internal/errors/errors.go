package errors

import (
	"fmt"
	"strings"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

// Error categories
const (
	// Provider errors (PROVIDER-001 to PROVIDER-099)
	ErrCodeProviderNotFound  ErrorCode = "PROVIDER-001"
	ErrCodeProviderConfig    ErrorCode = "PROVIDER-002"
	ErrCodeProviderAuth      ErrorCode = "PROVIDER-003"
	ErrCodeProviderAPI       ErrorCode = "PROVIDER-004"
	ErrCodeProviderRateLimit ErrorCode = "PROVIDER-005"
	ErrCodeProviderTimeout   ErrorCode = "PROVIDER-006"
	ErrCodeProviderExhausted ErrorCode = "PROVIDER-007"

	// Parameter resolution errors (PARAM-001 to PARAM-099)
	ErrCodeParamBackendUnknown ErrorCode = "PARAM-001"
	ErrCodeParamNoCapabilities ErrorCode = "PARAM-002"
	ErrCodeParamInvalid        ErrorCode = "PARAM-003"

	// Phase errors (PHASE-001 to PHASE-099)
	ErrCodePhaseTerminal     ErrorCode = "PHASE-001"
	ErrCodePhaseUnknown      ErrorCode = "PHASE-002"
	ErrCodePhaseNoHandler    ErrorCode = "PHASE-003"
	ErrCodePhaseExecFailed   ErrorCode = "PHASE-004"
	ErrCodePhaseBlocked      ErrorCode = "PHASE-005"
	ErrCodeProjectNotFound   ErrorCode = "PHASE-006"
	ErrCodePhaseRemedyFailed ErrorCode = "PHASE-007"
	ErrCodeProjectExists     ErrorCode = "PHASE-008"
	ErrCodeRecordNotFound    ErrorCode = "PHASE-009"

	// Approval gate errors (GATE-001 to GATE-099)
	ErrCodeGateNotFound   ErrorCode = "GATE-001"
	ErrCodeGateWrongPhase ErrorCode = "GATE-002"
	ErrCodeGateDecision   ErrorCode = "GATE-003"

	// Dispatch errors (DISPATCH-001 to DISPATCH-099)
	ErrCodeDispatchDuplicateName ErrorCode = "DISPATCH-001"
	ErrCodeDispatchDanglingDep   ErrorCode = "DISPATCH-002"
	ErrCodeDispatchCyclicDep     ErrorCode = "DISPATCH-003"
	ErrCodeDispatchExtract       ErrorCode = "DISPATCH-004"

	// Snapshot errors (SNAPSHOT-001 to SNAPSHOT-099)
	ErrCodeSnapshotNotFound ErrorCode = "SNAPSHOT-001"
	ErrCodeSnapshotCreate   ErrorCode = "SNAPSHOT-002"

	// File I/O errors (IO-001 to IO-099)
	ErrCodeFileNotFound    ErrorCode = "IO-001"
	ErrCodeFileReadFailed  ErrorCode = "IO-002"
	ErrCodeFileWriteFailed ErrorCode = "IO-003"
	ErrCodeFileUnmarshal   ErrorCode = "IO-004"
	ErrCodeFileMarshal     ErrorCode = "IO-005"
)

// SpecflowError represents an enhanced error with code, suggestions, and documentation
type SpecflowError struct {
	Code        ErrorCode
	Message     string
	Suggestions []string
	DocsURL     string
	Cause       error
}

// Error implements the error interface
func (e *SpecflowError) Error() string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf(": %v", e.Cause))
	}

	if len(e.Suggestions) > 0 {
		b.WriteString("\n\nSuggestions:")
		for _, suggestion := range e.Suggestions {
			b.WriteString(fmt.Sprintf("\n  • %s", suggestion))
		}
	}

	if e.DocsURL != "" {
		b.WriteString(fmt.Sprintf("\n\nDocumentation: %s", e.DocsURL))
	}

	return b.String()
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *SpecflowError) Unwrap() error {
	return e.Cause
}

// New creates a new SpecflowError
func New(code ErrorCode, message string) *SpecflowError {
	return &SpecflowError{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new SpecflowError wrapping an existing error
func Wrap(code ErrorCode, message string, cause error) *SpecflowError {
	return &SpecflowError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WithSuggestion adds a suggestion to the error
func (e *SpecflowError) WithSuggestion(suggestion string) *SpecflowError {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// WithSuggestions adds multiple suggestions to the error
func (e *SpecflowError) WithSuggestions(suggestions ...string) *SpecflowError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// WithDocs adds a documentation URL to the error
func (e *SpecflowError) WithDocs(url string) *SpecflowError {
	e.DocsURL = url
	return e
}

// HasCode reports whether err or any error it wraps carries the given code
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		if fe, ok := err.(*SpecflowError); ok && fe.Code == code {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Common error constructors for frequently used errors

// NewBackendUnknownError creates an unknown backend error
func NewBackendUnknownError(backendID string) *SpecflowError {
	return New(ErrCodeParamBackendUnknown, fmt.Sprintf("unknown backend: %s", backendID)).
		WithSuggestion("Run 'specflow backend list' to see registered backends").
		WithSuggestion("Check the backend id in your specflow.yaml")
}

// NewProviderRateLimitError creates a rate limit error
func NewProviderRateLimitError(backend string, retryAfter string) *SpecflowError {
	msg := fmt.Sprintf("rate limit exceeded for backend: %s", backend)
	if retryAfter != "" {
		msg += fmt.Sprintf(" (retry after: %s)", retryAfter)
	}

	return New(ErrCodeProviderRateLimit, msg).
		WithSuggestion("Wait before retrying the request").
		WithSuggestion("Consider upgrading your provider plan for higher limits")
}

// NewProviderTimeoutError creates a terminal timeout error
func NewProviderTimeoutError(backend string, cause error) *SpecflowError {
	return Wrap(ErrCodeProviderTimeout, fmt.Sprintf("generation timed out for backend: %s", backend), cause).
		WithSuggestion("Increase the timeout override for this phase").
		WithSuggestion("Reduce the requested output length")
}

// NewProviderAuthError creates a provider authentication error
func NewProviderAuthError(backend string) *SpecflowError {
	return New(ErrCodeProviderAuth, fmt.Sprintf("authentication failed for backend: %s", backend)).
		WithSuggestion(fmt.Sprintf("Set the %s_API_KEY environment variable", strings.ToUpper(backend))).
		WithSuggestion("Check if your API key is valid and not expired")
}

// NewTerminalPhaseError creates an error for advancing past the final phase
func NewTerminalPhaseError(projectID string) *SpecflowError {
	return New(ErrCodePhaseTerminal, fmt.Sprintf("project %s is already in the final phase", projectID)).
		WithSuggestion("The workflow is complete; no further phases can be executed").
		WithSuggestion("Use 'specflow rollback' if you need to revisit an earlier phase")
}

// NewGateWrongPhaseError creates an error for deciding a gate outside its phase
func NewGateWrongPhaseError(gateName, currentPhase string) *SpecflowError {
	return New(ErrCodeGateWrongPhase,
		fmt.Sprintf("gate %q is not open in phase %q", gateName, currentPhase)).
		WithSuggestion("Advance the project to the gate's phase before deciding it")
}

// NewFileNotFoundError creates a file not found error
func NewFileNotFoundError(path string) *SpecflowError {
	return New(ErrCodeFileNotFound, fmt.Sprintf("file not found: %s", path)).
		WithSuggestion("Check if the file path is correct").
		WithSuggestion("Verify the file exists and you have read permissions")
}

// NewFileUnmarshalError creates an unmarshal error
func NewFileUnmarshalError(path string, format string, cause error) *SpecflowError {
	return Wrap(ErrCodeFileUnmarshal, fmt.Sprintf("failed to parse %s file: %s", format, path), cause).
		WithSuggestion("Check the file syntax and format").
		WithSuggestion(fmt.Sprintf("Ensure the file is valid %s", format))
}
