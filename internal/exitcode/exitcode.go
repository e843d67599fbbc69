package exitcode

import (
	"os"
	"strings"
)

// Exit codes for consistent error handling across the CLI
const (
	// Success indicates successful execution
	Success = 0

	// GeneralError indicates a general error condition
	GeneralError = 1

	// UsageError indicates invalid command usage (bad flags, missing args, etc.)
	UsageError = 2

	// ApprovalPending indicates a phase is blocked on an approval gate
	ApprovalPending = 3

	// ValidationFailed indicates a validation run did not pass
	ValidationFailed = 4

	// AuthError indicates an authentication failure against a backend
	AuthError = 5

	// NetworkError indicates a network connectivity issue
	NetworkError = 6

	// Interrupted indicates the operation was cancelled by the user
	Interrupted = 130
)

// Exit terminates the program with the given exit code
func Exit(code int) {
	os.Exit(code)
}

// ExitWithError exits with an appropriate code based on error type
func ExitWithError(err error) {
	if err == nil {
		Exit(Success)
		return
	}

	Exit(DetermineExitCode(err))
}

// DetermineExitCode analyzes an error and returns the appropriate exit code
func DetermineExitCode(err error) int {
	if err == nil {
		return Success
	}

	errMsg := strings.ToLower(err.Error())

	if strings.Contains(errMsg, "awaiting approval") || strings.Contains(errMsg, "approval pending") ||
		strings.Contains(errMsg, "approval gate") {
		return ApprovalPending
	}

	if strings.Contains(errMsg, "validation failed") {
		return ValidationFailed
	}

	if strings.Contains(errMsg, "authentication") || strings.Contains(errMsg, "unauthorized") ||
		strings.Contains(errMsg, "api key") {
		return AuthError
	}

	if strings.Contains(errMsg, "connection refused") || strings.Contains(errMsg, "network") ||
		strings.Contains(errMsg, "no such host") {
		return NetworkError
	}

	if strings.Contains(errMsg, "usage") || strings.Contains(errMsg, "unknown flag") ||
		strings.Contains(errMsg, "requires at least") {
		return UsageError
	}

	return GeneralError
}
