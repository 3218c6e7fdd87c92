package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/RichardoC/portfolio-chat/internal/chat"
	"github.com/RichardoC/portfolio-chat/internal/models"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		input string
		want  command
		ok    bool
	}{
		{input: "hello", ok: false},
		{input: "/reset", want: command{name: "reset"}, ok: true},
		{input: "/PAGE  about ", want: command{name: "page", arg: "about"}, ok: true},
		{input: "/quote Built with Go and SSE", want: command{name: "quote", arg: "Built with Go and SSE"}, ok: true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := parseCommand(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPrinter_PrintsOnlyNewText(t *testing.T) {
	var out bytes.Buffer
	p := &printer{out: &out}

	user := models.Message{Role: models.RoleUser, Content: "What is Aigenie?"}
	p.observe(chat.Snapshot{Messages: []models.Message{user}})
	p.observe(chat.Snapshot{Messages: []models.Message{user, {Role: models.RoleAssistant}}})
	p.observe(chat.Snapshot{Messages: []models.Message{user, {Role: models.RoleAssistant, Content: "Aigenie "}}})
	p.observe(chat.Snapshot{Messages: []models.Message{user, {Role: models.RoleAssistant, Content: "Aigenie is..."}}})
	p.observe(chat.Snapshot{Messages: []models.Message{user, {Role: models.RoleAssistant, Content: "Aigenie is...", Feedback: models.FeedbackUp}}})

	assert.Equal(t, "ai> Aigenie is...", out.String())
}

func TestPrinter_NewTurnStartsOver(t *testing.T) {
	var out bytes.Buffer
	p := &printer{out: &out}

	first := []models.Message{
		{Role: models.RoleUser, Content: "hi"},
		{Role: models.RoleAssistant, Content: "Hello!"},
	}
	p.observe(chat.Snapshot{Messages: first})
	second := append(first, models.Message{Role: models.RoleUser, Content: "more"})
	p.observe(chat.Snapshot{Messages: second})
	p.observe(chat.Snapshot{Messages: append(second, models.Message{Role: models.RoleAssistant, Content: "Sure."})})

	assert.Equal(t, "ai> Hello!ai> Sure.", out.String())
}
