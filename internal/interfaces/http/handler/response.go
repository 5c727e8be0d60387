package handler

import "github.com/erp/reconciliation/internal/interfaces/http/dto"

// APIResponse is the envelope every endpoint writes, typed by payload for
// the godoc annotations. It mirrors dto.Response.
type APIResponse[T any] struct {
	Success bool           `json:"success"`
	Data    T              `json:"data,omitempty"`
	Error   *dto.ErrorInfo `json:"error,omitempty"`
	Meta    *dto.Meta      `json:"meta,omitempty"`
}

// ErrorResponse is the envelope of a failed request.
type ErrorResponse struct {
	Success bool           `json:"success" example:"false"`
	Error   *dto.ErrorInfo `json:"error,omitempty"`
}
