package output

import "errors"

// StructuredError is an error with a machine-readable code and hints for
// the operator.
type StructuredError struct {
	Code            string         `json:"code" yaml:"code"`
	Message         string         `json:"message" yaml:"message"`
	Guidance        string         `json:"guidance,omitempty" yaml:"guidance,omitempty"`
	RecoveryCommand string         `json:"recovery_command,omitempty" yaml:"recovery_command,omitempty"`
	Context         map[string]any `json:"context,omitempty" yaml:"context,omitempty"`
	RequestID       string         `json:"request_id,omitempty" yaml:"request_id,omitempty"`
}

func (e StructuredError) Error() string {
	return e.Message
}

// Error codes for CLI operations.
const (
	ErrCodeConfigInvalid       = "CONFIG_INVALID"
	ErrCodeInvalidOutputFormat = "INVALID_OUTPUT_FORMAT"
	ErrCodeInstanceNotRunning  = "INSTANCE_NOT_RUNNING"
	ErrCodeProviderUnreachable = "PROVIDER_UNREACHABLE"
	ErrCodeBootstrapFailed     = "BOOTSTRAP_FAILED"
	ErrCodeRotationFailed      = "ROTATION_FAILED"
	ErrCodeKeyringFailed       = "KEYRING_FAILED"
	ErrCodeOperationFailed     = "OPERATION_FAILED"
)

// NewStructuredError creates a StructuredError with the given code and message.
func NewStructuredError(code, message string) StructuredError {
	return StructuredError{Code: code, Message: message}
}

// WithGuidance adds guidance to the error.
func (e StructuredError) WithGuidance(guidance string) StructuredError {
	e.Guidance = guidance
	return e
}

// WithRecoveryCommand adds a recovery command suggestion.
func (e StructuredError) WithRecoveryCommand(cmd string) StructuredError {
	e.RecoveryCommand = cmd
	return e
}

// WithContext adds a context value to the error.
func (e StructuredError) WithContext(key string, value any) StructuredError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// WithRequestID records the server request id for log correlation.
func (e StructuredError) WithRequestID(requestID string) StructuredError {
	e.RequestID = requestID
	return e
}

// FromError converts err to a StructuredError, keeping one already in the chain.
func FromError(err error, code string) StructuredError {
	var se StructuredError
	if errors.As(err, &se) {
		return se
	}
	return StructuredError{Code: code, Message: err.Error()}
}
