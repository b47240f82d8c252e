// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"github.com/hitoshi/questmap/internal/middleware"
)

// apiErrorResponse はハンドラーが返すエラーボディ。ミドルウェアと同一形式。
type apiErrorResponse = middleware.ErrorResponseBody

var (
	writeJSON             = middleware.WriteJSON
	writeAPIErrorResponse = middleware.WriteErrorResponse
	handleServiceError    = middleware.WriteError
)
