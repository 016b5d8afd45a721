package embedding

import (
	"context"
	"errors"
	"fmt"
)

// Kind labels an error for responses and metrics.
type Kind string

const (
	KindEmptyInput            Kind = "empty_input"
	KindInvalidInputType      Kind = "invalid_input_type"
	KindInvalidEncodingFormat Kind = "invalid_encoding_format"
	KindTooManyInputs         Kind = "too_many_inputs"
	KindInvalidJSON           Kind = "invalid_json"
	KindRequestTooLarge       Kind = "request_too_large"

	KindUnknownModel Kind = "unknown_model"
	KindLoadFailed   Kind = "load_failed"

	KindBackendFailure Kind = "backend_failure"
	KindTimeout        Kind = "timeout"
	KindCanceled       Kind = "canceled"

	// KindInternal covers errors that did not come from this package.
	KindInternal Kind = "internal"
)

// Class groups kinds by who caused them.
type Class string

const (
	ClassValidation Class = "validation"
	ClassLoad       Class = "load"
	ClassInference  Class = "inference"
)

// Class returns the class k belongs to.
func (k Kind) Class() Class {
	switch k {
	case KindEmptyInput, KindInvalidInputType, KindInvalidEncodingFormat, KindTooManyInputs, KindInvalidJSON, KindRequestTooLarge:
		return ClassValidation
	case KindUnknownModel, KindLoadFailed:
		return ClassLoad
	default:
		return ClassInference
	}
}

// Error is the structured error returned across the engine.
type Error struct {
	Kind    Kind
	Model   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ValidationError reports a client-caused request problem.
func ValidationError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func UnknownModelError(model string) *Error {
	return &Error{
		Kind:    KindUnknownModel,
		Model:   model,
		Message: fmt.Sprintf("model %q is not available", model),
	}
}

func LoadFailedError(model string, err error) *Error {
	return &Error{
		Kind:    KindLoadFailed,
		Model:   model,
		Message: fmt.Sprintf("fail to load model %q", model),
		Err:     err,
	}
}

func BackendError(model string, err error) *Error {
	return &Error{
		Kind:    KindBackendFailure,
		Model:   model,
		Message: fmt.Sprintf("inference failed for model %q", model),
		Err:     err,
	}
}

// ContextError converts a context error into Timeout or Canceled.
func ContextError(model string, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Model: model, Message: "request timed out", Err: err}
	}
	return &Error{Kind: KindCanceled, Model: model, Message: "request canceled", Err: err}
}

// KindOf returns the kind of err, "" for nil and KindInternal for
// foreign errors.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}
	return KindInternal
}

func IsValidation(err error) bool {
	return err != nil && KindOf(err).Class() == ClassValidation
}

func IsUnknownModel(err error) bool {
	return KindOf(err) == KindUnknownModel
}

func IsLoadFailed(err error) bool {
	return KindOf(err) == KindLoadFailed
}
