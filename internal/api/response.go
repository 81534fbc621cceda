package api

import (
	apperrors "github.com/askwhyharsh/caddate/pkg/errors"
)

type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorData  `json:"error,omitempty"`
}

type ErrorData struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
}

func SuccessResponse(data interface{}) Response {
	return Response{
		Success: true,
		Data:    data,
	}
}

func ErrorResponse(message, code string) Response {
	return Response{
		Success: false,
		Error: &ErrorData{
			Message: message,
			Code:    code,
		},
	}
}

// AppErrorResponse renders an AppError, keeping the failing field for validation errors.
func AppErrorResponse(err *apperrors.AppError) Response {
	resp := ErrorResponse(err.Error(), err.Code())
	resp.Error.Field = err.Field
	return resp
}
