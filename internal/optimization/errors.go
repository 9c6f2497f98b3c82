package optimization

import "fmt"

// ConfigurationError reports a malformed domain, an invalid acquisition,
// model or evaluator name, or a missing required combination of objective
// and initial data. It is raised at construction or call time, never
// deferred to first use.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string {
	return "configuration: " + e.Message
}

// NewConfigurationError creates a ConfigurationError with a formatted message.
func NewConfigurationError(format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Message: fmt.Sprintf(format, args...)}
}

// DataError reports a shape mismatch between X, Y and the domain
// dimensionality.
type DataError struct {
	Message string
}

func (e *DataError) Error() string {
	return "data: " + e.Message
}

// NewDataError creates a DataError with a formatted message.
func NewDataError(format string, args ...interface{}) *DataError {
	return &DataError{Message: fmt.Sprintf(format, args...)}
}

// NumericalError reports a numerical failure, typically a surrogate model
// fit that did not converge after the bounded retry budget. It wraps the
// underlying error.
type NumericalError struct {
	Op      string
	Message string
	Err     error
}

func (e *NumericalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("numerical: %s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("numerical: %s: %s", e.Op, e.Message)
}

func (e *NumericalError) Unwrap() error {
	return e.Err
}

// NewNumericalError creates a NumericalError for the given operation.
func NewNumericalError(op, message string, err error) *NumericalError {
	return &NumericalError{Op: op, Message: message, Err: err}
}
