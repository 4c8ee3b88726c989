package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	ErrCodeNotFound          ErrorCode = "NOT_FOUND"
	ErrCodeUnauthorized      ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden         ErrorCode = "FORBIDDEN"
	ErrCodeBadRequest        ErrorCode = "BAD_REQUEST"
	ErrCodeConflict          ErrorCode = "CONFLICT"
	ErrCodeInternal          ErrorCode = "INTERNAL_ERROR"
	ErrCodeValidation        ErrorCode = "VALIDATION_ERROR"
	ErrCodeDatabaseError     ErrorCode = "DATABASE_ERROR"
	ErrCodeInvalidTransition ErrorCode = "INVALID_TRANSITION"
	ErrCodeInsufficientFunds ErrorCode = "INSUFFICIENT_FUNDS"
	ErrCodeDeadlineExpired   ErrorCode = "DEADLINE_EXPIRED"
)

type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Cause      error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
		Cause:      err,
	}
}

func codeToHTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeBadRequest, ErrCodeValidation:
		return http.StatusBadRequest
	case ErrCodeConflict, ErrCodeInvalidTransition:
		return http.StatusConflict
	case ErrCodeInsufficientFunds, ErrCodeDeadlineExpired:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func IsNotFound(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == ErrCodeNotFound
}

func IsForbidden(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == ErrCodeForbidden
}

func IsValidation(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == ErrCodeValidation
}

func IsInvalidTransition(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == ErrCodeInvalidTransition
}

func IsDeadlineExpired(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == ErrCodeDeadlineExpired
}

var (
	ErrOrderNotFound      = New(ErrCodeNotFound, "заказ не найден")
	ErrUserNotFound       = New(ErrCodeNotFound, "пользователь не найден")
	ErrWalletNotFound     = New(ErrCodeNotFound, "кошелек не найден")
	ErrDisputeNotFound    = New(ErrCodeNotFound, "спор не найден")
	ErrUnauthorized       = New(ErrCodeUnauthorized, "требуется авторизация")
	ErrForbidden          = New(ErrCodeForbidden, "недостаточно прав")
	ErrInvalidCredentials = New(ErrCodeUnauthorized, "неверные учетные данные")
	ErrInsufficientFunds  = New(ErrCodeInsufficientFunds, "недостаточно средств на балансе")
	ErrInvalidTransition  = New(ErrCodeInvalidTransition, "недопустимый переход статуса заказа")
	ErrDeadlineExpired    = New(ErrCodeDeadlineExpired, "срок выполнения операции истек")
)
