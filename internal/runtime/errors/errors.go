package errors

import sterrors "errors"

var (
	ErrServiceRequired        = sterrors.New("ethermesh: service is required")
	ErrServiceNameRequired    = sterrors.New("ethermesh: service name is required")
	ErrSubjectRequired        = sterrors.New("ethermesh: subject is required")
	ErrHandlerRequired        = sterrors.New("ethermesh: handler is required")
	ErrChainLengthRequired    = sterrors.New("ethermesh: max chain length must be positive")
	ErrTransportRequired      = sterrors.New("ethermesh: transport is required")
	ErrConfigRequired         = sterrors.New("ethermesh: configuration is required")
	ErrLoggerRequired         = sterrors.New("ethermesh: logger is required")
	ErrNotStarted             = sterrors.New("ethermesh: service is not started")
	ErrMaxTimeRequired        = sterrors.New("ethermesh: sink max time is required")
	ErrPayloadPointerRequired = sterrors.New("ethermesh: typed handler payload must be a pointer")
	ErrEmptyReply             = sterrors.New("ethermesh: reply carried no envelope")
)

// ConfigValidationError marks errors produced while validating configuration.
type ConfigValidationError struct {
	Err error
}

func (e ConfigValidationError) Error() string {
	if e.Err == nil {
		return "ethermesh: invalid configuration"
	}
	return "ethermesh: invalid configuration: " + e.Err.Error()
}

func (e ConfigValidationError) Unwrap() error {
	return e.Err
}
