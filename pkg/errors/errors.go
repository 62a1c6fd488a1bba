package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error code
type ErrorCode int

// AppError represents an application error
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Common error codes
const (
	ErrNotFound ErrorCode = iota + 1000
	ErrValidation
	ErrConflict
	ErrTransient
	ErrPermission
	ErrInternal
)

// Error constructors
func NewValidation(message string, err error) *AppError {
	return &AppError{
		Code:    ErrValidation,
		Message: message,
		Err:     err,
	}
}

func NewConflict(message string, err error) *AppError {
	if message == "" {
		message = "slot no longer available, please pick another"
	}
	return &AppError{
		Code:    ErrConflict,
		Message: message,
		Err:     err,
	}
}

func NewTransient(message string, err error) *AppError {
	return &AppError{
		Code:    ErrTransient,
		Message: message,
		Err:     err,
	}
}

func NewPermission(message string, err error) *AppError {
	return &AppError{
		Code:    ErrPermission,
		Message: message,
		Err:     err,
	}
}

func NewNotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Err:     err,
	}
}

func NewInternal(err error) *AppError {
	return &AppError{
		Code:    ErrInternal,
		Message: "internal error",
		Err:     err,
	}
}

// CodeOf returns the error code of err, or ErrInternal for foreign errors.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}

func IsValidation(err error) bool { return CodeOf(err) == ErrValidation }
func IsConflict(err error) bool   { return CodeOf(err) == ErrConflict }
func IsTransient(err error) bool  { return CodeOf(err) == ErrTransient }
func IsPermission(err error) bool { return CodeOf(err) == ErrPermission }
func IsNotFound(err error) bool   { return CodeOf(err) == ErrNotFound }
