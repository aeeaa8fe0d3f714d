package errors

import (
	"errors"
	"fmt"
)

// Code identifies a request failure returned to query and asset clients.
type Code string

// Request error codes.
const (
	CodeOutOfRange     Code = "OUT_OF_RANGE"
	CodeInvalidRequest Code = "INVALID_REQUEST"
	CodeNoDevice       Code = "NO_DEVICE"
	CodeAssetNotFound  Code = "ASSET_NOT_FOUND"
	CodeDuplicateAsset Code = "DUPLICATE_ASSET"
	CodeUnsupported    Code = "UNSUPPORTED"
	CodeInternal       Code = "INTERNAL_ERROR"
)

// Sentinels usable with errors.Is against any RequestError of the same code.
var (
	ErrOutOfRange     = &RequestError{Code: CodeOutOfRange}
	ErrInvalidRequest = &RequestError{Code: CodeInvalidRequest}
	ErrNoDevice       = &RequestError{Code: CodeNoDevice}
	ErrAssetNotFound  = &RequestError{Code: CodeAssetNotFound}
	ErrDuplicateAsset = &RequestError{Code: CodeDuplicateAsset}
	ErrUnsupported    = &RequestError{Code: CodeUnsupported}
)

// RequestError is a structured validation or lookup failure. It is produced
// before any store mutation happens.
type RequestError struct {
	Code    Code
	Message string
}

// Error implements the error interface
func (e *RequestError) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches any RequestError carrying the same code.
func (e *RequestError) Is(target error) bool {
	var t *RequestError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// NewRequestError creates a RequestError with a formatted message.
func NewRequestError(code Code, format string, args ...any) *RequestError {
	return &RequestError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// OutOfRange reports a sequence, count or interval outside its valid bounds.
func OutOfRange(format string, args ...any) error {
	return NewRequestError(CodeOutOfRange, format, args...)
}

// InvalidRequest reports malformed or mutually exclusive parameters.
func InvalidRequest(format string, args ...any) error {
	return NewRequestError(CodeInvalidRequest, format, args...)
}

// NoDevice reports an unresolved device name or uuid.
func NoDevice(device string) error {
	return NewRequestError(CodeNoDevice, "could not find the device '%s'", device)
}

// AssetNotFound reports an unresolved asset id.
func AssetNotFound(id string) error {
	return NewRequestError(CodeAssetNotFound, "could not find asset: %s", id)
}

// DuplicateAsset reports an insert of a live asset without replace permission.
func DuplicateAsset(id string) error {
	return NewRequestError(CodeDuplicateAsset, "asset %s already exists, use PUT to replace it", id)
}

// CodeOf extracts the request code from err, or CodeInternal when err is not
// a RequestError.
func CodeOf(err error) Code {
	var re *RequestError
	if errors.As(err, &re) {
		return re.Code
	}
	return CodeInternal
}

// MessageOf returns the client-facing message of a RequestError, or the
// error text otherwise.
func MessageOf(err error) string {
	var re *RequestError
	if errors.As(err, &re) {
		if re.Message == "" {
			return string(re.Code)
		}
		return re.Message
	}
	return err.Error()
}
