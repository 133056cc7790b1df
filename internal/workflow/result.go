package workflow

import (
	"fmt"
	"log/slog"
)

type ErrorKind string

const (
	KindValidation       ErrorKind = "validation"
	KindAuthorization    ErrorKind = "authorization"
	KindDuplicateRequest ErrorKind = "duplicate_request"
	KindNotFound         ErrorKind = "not_found"
	KindAlreadyProcessed ErrorKind = "already_processed"
	KindInternal         ErrorKind = "internal"
)

// Error 是审批流程内部使用的错误类型，在 Manager 的边界处被转换为 Result
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Result 是 Manager 所有公开操作的返回值，任何错误都不会以 error 的形式越过 Manager
type Result[T any] struct {
	Success bool      `json:"success"`
	Message string    `json:"message"`
	Data    T         `json:"data"`
	Kind    ErrorKind `json:"kind,omitempty"`
}

func succeed[T any](msg string, data T) Result[T] {
	return Result[T]{Success: true, Message: msg, Data: data}
}

func fail[T any](op string, err error) Result[T] {
	if werr, ok := err.(*Error); ok {
		return Result[T]{Success: false, Message: werr.Message, Kind: werr.Kind}
	}

	slog.Error("审批流程内部错误", "operation", op, "error", err)
	return Result[T]{Success: false, Message: "internal error", Kind: KindInternal}
}
