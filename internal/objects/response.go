package objects

import "net/http"

// ErrorResponse is the body of every failed dashboard API call.
type ErrorResponse struct {
	Error Error `json:"error"`
}

// Error names the HTTP status in Type and carries the cause in Message.
type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewErrorResponse(status int, err error) ErrorResponse {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}

	return ErrorResponse{
		Error: Error{
			Type:    http.StatusText(status),
			Message: msg,
		},
	}
}
