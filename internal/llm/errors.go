package llm

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/RichardoC/portfolio-chat/internal/models"
)

// Error is a chat proxy failure with a wire code.
type Error struct {
	Code    models.ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Status maps the code to the HTTP status of the error response.
func (e *Error) Status() int {
	switch e.Code {
	case models.CodeInvalidRequest, models.CodePromptTooLong:
		return http.StatusBadRequest
	case models.CodeRateLimited, models.CodeDailyLimitReached:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func newError(code models.ErrorCode, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf returns the wire code carried by err, or "" if it has none.
func CodeOf(err error) models.ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// User-facing texts.
const (
	MsgInvalidRequest = "Message is required"
	MsgMisconfigured  = "The chat service is not configured"
	MsgPromptTooLong  = "That message is a bit long for me. Could you shorten it?"
	MsgRateLimited    = "Sorry, I can't afford that many requests at once. Please come back soon... maybe in 30 min"
	MsgDailyLimit     = "I've answered all the questions I can afford today. Please come back tomorrow!"
	MsgUnavailable    = "Failed to process chat request"
	MsgInterrupted    = "Sorry, I'm having trouble connecting right now. Please try again later!"
)
