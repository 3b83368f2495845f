// internal/api/error_codes.go
package api

// API错误代码常量
const (
	// 通用错误
	ErrorBadRequest    = "BAD_REQUEST"
	ErrorValidation    = "VALIDATION_ERROR"
	ErrorNotFound      = "NOT_FOUND"
	ErrorInternalError = "INTERNAL_ERROR"
	ErrorConflict      = "CONFLICT"
	ErrorRateLimited   = "RATE_LIMIT_EXCEEDED"

	// 会话相关错误
	ErrorSessionNotFound    = "SESSION_NOT_FOUND"
	ErrorStorageUnavailable = "STORAGE_UNAVAILABLE"

	// 语料相关错误
	ErrorMalformedCorpus = "MALFORMED_CORPUS"

	// WebSocket 消息错误
	ErrorUnknownMessage = "UNKNOWN_MESSAGE"
)
