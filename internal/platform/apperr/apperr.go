// Package apperr はフィーチャ共通のエラーモデル。
// 以前は assets/lends/attendance ごとに同型の定義を持っていたものを集約した。
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeNotFound              Code = "NOT_FOUND"
	CodeOperationNotPermitted Code = "OPERATION_NOT_PERMITTED"
	CodeConflict              Code = "CONFLICT"          // 同時更新の競合
	CodeStoreUnavailable      Code = "STORE_UNAVAILABLE" // DBに到達できない
	CodeInvalidArgument       Code = "INVALID_ARGUMENT"
	CodeUnauthorized          Code = "UNAUTHORIZED"
	CodeInternal              Code = "INTERNAL"
)

type APIError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

func NotFound(msg string) *APIError { return &APIError{Code: CodeNotFound, Message: msg} }
func NotPermitted(msg string) *APIError {
	return &APIError{Code: CodeOperationNotPermitted, Message: msg}
}
func Conflict(msg string) *APIError     { return &APIError{Code: CodeConflict, Message: msg} }
func Unavailable(msg string) *APIError  { return &APIError{Code: CodeStoreUnavailable, Message: msg} }
func Invalid(msg string) *APIError      { return &APIError{Code: CodeInvalidArgument, Message: msg} }
func Unauthorized(msg string) *APIError { return &APIError{Code: CodeUnauthorized, Message: msg} }
func Internal(msg string) *APIError     { return &APIError{Code: CodeInternal, Message: msg} }

// CodeOf は err が APIError ならそのコードを、それ以外は INTERNAL を返す。
func CodeOf(err error) Code {
	var api *APIError
	if errors.As(err, &api) {
		return api.Code
	}
	return CodeInternal
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

func ToHTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeInvalidArgument, CodeOperationNotPermitted:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ---------- response envelope ----------

type ErrorDTO struct {
	Error struct {
		Code    Code   `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func Body(code Code, msg string) ErrorDTO {
	var e ErrorDTO
	e.Error.Code = code
	e.Error.Message = msg
	return e
}

// BodyFrom はハンドラ用。内部エラーの詳細はクライアントに出さない。
func BodyFrom(err error) ErrorDTO {
	var api *APIError
	if errors.As(err, &api) {
		return Body(api.Code, api.Message)
	}
	return Body(CodeInternal, "internal error")
}
