package model

// SuccessResponse is the standard envelope for successful responses.
type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
}

// ErrorResponse is the standard envelope for rejections and failures.
type ErrorResponse struct {
	Success bool        `json:"success"`
	Error   ErrorDetail `json:"error"`
}

// ErrorDetail carries the stable code plus bilingual human-readable text.
type ErrorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	MessageVi string `json:"message_vi,omitempty"`
}

// NewErrorResponse builds the error envelope for a rejection code.
func NewErrorResponse(code Code) ErrorResponse {
	return ErrorResponse{
		Error: ErrorDetail{
			Code:      string(code),
			Message:   code.Message(),
			MessageVi: code.MessageVi(),
		},
	}
}
