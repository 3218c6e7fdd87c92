package chat

import (
	"errors"
	"net/http"

	"github.com/RichardoC/portfolio-chat/internal/models"
)

// Texts shown in place of an assistant reply.
const (
	MsgGeneric       = "Sorry, I'm having trouble connecting right now. Please try again later!"
	MsgRateLimited   = "Sorry, I can't afford that many requests at once. Please come back soon... maybe in 30 min"
	MsgDailyLimit    = "I've answered all the questions I can afford today. Please come back tomorrow!"
	MsgConfig        = "There's a server configuration issue. Please check the console for more details."
	MsgPromptTooLong = "That message is a bit long for me. Could you shorten it?"
)

// outcome classifies a failed turn.
type outcome struct {
	message string
	limit   bool
}

func classify(err error) outcome {
	var se *StatusError
	if !errors.As(err, &se) {
		return outcome{message: MsgGeneric}
	}
	switch {
	case se.Code == models.CodeDailyLimitReached:
		return outcome{message: orDefault(se.Message, MsgDailyLimit), limit: true}
	case se.Status == http.StatusTooManyRequests:
		return outcome{message: MsgRateLimited}
	case se.Code == models.CodeMisconfigured:
		return outcome{message: MsgConfig}
	case se.Code == models.CodePromptTooLong:
		return outcome{message: orDefault(se.Message, MsgPromptTooLong)}
	default:
		return outcome{message: MsgGeneric}
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
