package models

// ErrorCode is the machine readable "error" field of a non-stream response.
type ErrorCode string

const (
	CodeInvalidRequest      ErrorCode = "invalid_request"
	CodePromptTooLong       ErrorCode = "prompt_too_long"
	CodeRateLimited         ErrorCode = "rate_limited"
	CodeDailyLimitReached   ErrorCode = "daily_limit_reached"
	CodeMisconfigured       ErrorCode = "misconfigured"
	CodeUpstreamUnavailable ErrorCode = "upstream_unavailable"
	CodeStreamInterrupted   ErrorCode = "stream_interrupted"
	CodeInternal            ErrorCode = "internal_error"
)

type ErrorResponse struct {
	Error   ErrorCode `json:"error"`
	Message string    `json:"message,omitempty"`
}
