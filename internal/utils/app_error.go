package utils

import (
	"net/http"
)

// AppError HTTP 응답 코드가 붙은 에러
type AppError struct {
	Code    int    // HTTP status code
	Message string // 사용자에게 보이는 메시지
	err     error  // 로그용 원인
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.err
}

func newAppError(code int, message string, cause error) *AppError {
	return &AppError{Code: code, Message: message, err: cause}
}

// NewBadRequestError 400
func NewBadRequestError(message string, originalError ...error) *AppError {
	var cause error
	if len(originalError) > 0 {
		cause = originalError[0]
	}
	return newAppError(http.StatusBadRequest, message, cause)
}

// NewConflictError 409 (예: SLEEP 중 루틴 요청)
func NewConflictError(message string, originalError error) *AppError {
	return newAppError(http.StatusConflict, message, originalError)
}

// NewInternalServerError 500
func NewInternalServerError(message string, originalError error) *AppError {
	return newAppError(http.StatusInternalServerError, message, originalError)
}

// NewServiceUnavailableError 503; 컨트롤러 정지, 큐 포화, 이력 비활성
func NewServiceUnavailableError(message string, originalError ...error) *AppError {
	var cause error
	if len(originalError) > 0 {
		cause = originalError[0]
	}
	return newAppError(http.StatusServiceUnavailable, message, cause)
}

// StandardResponse API 응답 봉투
type StandardResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func SuccessResponse(message string, data interface{}) StandardResponse {
	return StandardResponse{Status: "success", Message: message, Data: data}
}

func ErrorResponse(message string) StandardResponse {
	return StandardResponse{Status: "error", Message: message}
}
