package stitch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode is a server-declared error code as carried in the "error_code"
// field of an error response body.
type ErrorCode string

// Error codes returned by the Stitch server.
const (
	ErrorCodeMissingAuthReq             ErrorCode = "MissingAuthReq"
	ErrorCodeInvalidSession             ErrorCode = "InvalidSession"
	ErrorCodeUserAppDomainMismatch      ErrorCode = "UserAppDomainMismatch"
	ErrorCodeDomainNotAllowed           ErrorCode = "DomainNotAllowed"
	ErrorCodeReadSizeLimitExceeded      ErrorCode = "ReadSizeLimitExceeded"
	ErrorCodeInvalidParameter           ErrorCode = "InvalidParameter"
	ErrorCodeMissingParameter           ErrorCode = "MissingParameter"
	ErrorCodeArgumentsNotAllowed        ErrorCode = "ArgumentsNotAllowed"
	ErrorCodeFunctionExecutionError     ErrorCode = "FunctionExecutionError"
	ErrorCodeNoMatchingRuleFound        ErrorCode = "NoMatchingRuleFound"
	ErrorCodeInternalServerError        ErrorCode = "InternalServerError"
	ErrorCodeAuthProviderNotFound       ErrorCode = "AuthProviderNotFound"
	ErrorCodeAuthProviderAlreadyExists  ErrorCode = "AuthProviderAlreadyExists"
	ErrorCodeServiceNotFound            ErrorCode = "ServiceNotFound"
	ErrorCodeServiceTypeNotFound        ErrorCode = "ServiceTypeNotFound"
	ErrorCodeServiceCommandNotFound     ErrorCode = "ServiceCommandNotFound"
	ErrorCodeValueNotFound              ErrorCode = "ValueNotFound"
	ErrorCodeFunctionNotFound           ErrorCode = "FunctionNotFound"
	ErrorCodeFunctionSyntaxError        ErrorCode = "FunctionSyntaxError"
	ErrorCodeFunctionInvalid            ErrorCode = "FunctionInvalid"
	ErrorCodeExecutionTimeLimitExceeded ErrorCode = "ExecutionTimeLimitExceeded"
	ErrorCodeNotCallable                ErrorCode = "FunctionNotCallable"
	ErrorCodeUserAlreadyConfirmed       ErrorCode = "UserAlreadyConfirmed"
	ErrorCodeUserNotFound               ErrorCode = "UserNotFound"
	ErrorCodeUserDisabled               ErrorCode = "UserDisabled"
	ErrorCodeAuthError                  ErrorCode = "AuthError"
	ErrorCodeBadRequest                 ErrorCode = "BadRequest"
	ErrorCodeAccountNameInUse           ErrorCode = "AccountNameInUse"
	ErrorCodeInvalidPassword            ErrorCode = "InvalidPassword"
	ErrorCodeAPIKeyNotFound             ErrorCode = "APIKeyNotFound"
	ErrorCodeUnknown                    ErrorCode = "Unknown"
)

var knownErrorCodes = map[ErrorCode]bool{
	ErrorCodeMissingAuthReq:             true,
	ErrorCodeInvalidSession:             true,
	ErrorCodeUserAppDomainMismatch:      true,
	ErrorCodeDomainNotAllowed:           true,
	ErrorCodeReadSizeLimitExceeded:      true,
	ErrorCodeInvalidParameter:           true,
	ErrorCodeMissingParameter:           true,
	ErrorCodeArgumentsNotAllowed:        true,
	ErrorCodeFunctionExecutionError:     true,
	ErrorCodeNoMatchingRuleFound:        true,
	ErrorCodeInternalServerError:        true,
	ErrorCodeAuthProviderNotFound:       true,
	ErrorCodeAuthProviderAlreadyExists:  true,
	ErrorCodeServiceNotFound:            true,
	ErrorCodeServiceTypeNotFound:        true,
	ErrorCodeServiceCommandNotFound:     true,
	ErrorCodeValueNotFound:              true,
	ErrorCodeFunctionNotFound:           true,
	ErrorCodeFunctionSyntaxError:        true,
	ErrorCodeFunctionInvalid:            true,
	ErrorCodeExecutionTimeLimitExceeded: true,
	ErrorCodeNotCallable:                true,
	ErrorCodeUserAlreadyConfirmed:       true,
	ErrorCodeUserNotFound:               true,
	ErrorCodeUserDisabled:               true,
	ErrorCodeAuthError:                  true,
	ErrorCodeBadRequest:                 true,
	ErrorCodeAccountNameInUse:           true,
	ErrorCodeInvalidPassword:            true,
	ErrorCodeAPIKeyNotFound:             true,
}

// ParseErrorCode maps a raw error_code string to a known ErrorCode,
// falling back to ErrorCodeUnknown.
func ParseErrorCode(s string) ErrorCode {
	code := ErrorCode(s)
	if knownErrorCodes[code] {
		return code
	}
	return ErrorCodeUnknown
}

// ServiceError is returned when the server explicitly rejected a request.
type ServiceError struct {
	Code       ErrorCode
	Message    string
	StatusCode int
}

func (e *ServiceError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("stitch: service error %s", e.Code)
	}
	return fmt.Sprintf("stitch: service error %s: %s", e.Code, e.Message)
}

// IsServiceError reports whether err is (or wraps) a ServiceError with the given code.
func IsServiceError(err error, code ErrorCode) bool {
	var se *ServiceError
	return errors.As(err, &se) && se.Code == code
}

// RequestErrorKind classifies failures below the server-semantics layer.
type RequestErrorKind int

const (
	RequestErrorUnknown RequestErrorKind = iota
	RequestErrorTransport
	RequestErrorEncoding
	RequestErrorDecoding
)

func (k RequestErrorKind) String() string {
	switch k {
	case RequestErrorTransport:
		return "transport"
	case RequestErrorEncoding:
		return "encoding"
	case RequestErrorDecoding:
		return "decoding"
	default:
		return "unknown"
	}
}

// RequestError wraps a transport, encoding or decoding failure.
type RequestError struct {
	Kind RequestErrorKind
	Err  error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("stitch: %s error: %v", e.Kind, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// Timeout reports whether the request failed because its deadline expired.
func (e *RequestError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var t interface{ Timeout() bool }
	return errors.As(e.Err, &t) && t.Timeout()
}

// ClientErrorKind enumerates local precondition violations.
type ClientErrorKind int

const (
	ClientErrorMustAuthenticateFirst ClientErrorKind = iota
	ClientErrorLoggedOutDuringRequest
	ClientErrorUserNoLongerValid
)

// ClientError is returned when an operation is invoked in a state that does not allow it.
type ClientError struct {
	Kind ClientErrorKind
}

func (e *ClientError) Error() string {
	switch e.Kind {
	case ClientErrorLoggedOutDuringRequest:
		return "stitch: logged out while request was in progress"
	case ClientErrorUserNoLongerValid:
		return "stitch: user is no longer valid"
	default:
		return "stitch: must authenticate first"
	}
}

// Is matches any ClientError of the same kind, so the sentinels below work with errors.Is.
func (e *ClientError) Is(target error) bool {
	t, ok := target.(*ClientError)
	return ok && t.Kind == e.Kind
}

var (
	ErrMustAuthenticateFirst  = &ClientError{Kind: ClientErrorMustAuthenticateFirst}
	ErrLoggedOutDuringRequest = &ClientError{Kind: ClientErrorLoggedOutDuringRequest}
	ErrUserNoLongerValid      = &ClientError{Kind: ClientErrorUserNoLongerValid}
)

// Registry errors
var (
	ErrAppClientExists   = errors.New("stitch: app client already initialized")
	ErrAppClientNotFound = errors.New("stitch: app client not found")
)

// ErrNilCredential is returned when a login or link is attempted without a credential.
var ErrNilCredential = errors.New("stitch: credential is nil")

// errorBody is the error payload returned by the server on non-2xx responses.
type errorBody struct {
	Error     string `json:"error"`
	ErrorCode string `json:"error_code"`
}

func unknownServiceError(status int) *ServiceError {
	return &ServiceError{
		Code:       ErrorCodeUnknown,
		Message:    http.StatusText(status),
		StatusCode: status,
	}
}
