package models

import (
	"encoding/json"
	"fmt"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Feedback string

const (
	FeedbackNone Feedback = ""
	FeedbackUp   Feedback = "up"
	FeedbackDown Feedback = "down"
)

// Message is one entry of the client transcript.
type Message struct {
	Role       Role     `json:"role"`
	Content    string   `json:"content"`
	QuotedText string   `json:"quotedText,omitempty"`
	Feedback   Feedback `json:"feedback,omitempty"`
	Error      bool     `json:"error,omitempty"` // synthetic error text, not model output
}

// PageContext accepts both {"page": "about"} and "about" on the wire.
type PageContext struct {
	Page string `json:"page"`
}

func (p *PageContext) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		p.Page = s
		return nil
	}
	var obj struct {
		Page string `json:"page"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("pageContext must be a string or {\"page\": string}: %w", err)
	}
	p.Page = obj.Page
	return nil
}

type FeedbackRequest struct {
	Type    Feedback `json:"type"`
	Message string   `json:"message"`
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Message     string           `json:"message"`
	ResponseID  string           `json:"responseId,omitempty"`
	PageContext *PageContext     `json:"pageContext,omitempty"`
	Context     string           `json:"context,omitempty"`
	Feedback    *FeedbackRequest `json:"feedback,omitempty"`
}

func (r ChatRequest) Page() string {
	if r.PageContext == nil {
		return ""
	}
	return r.PageContext.Page
}
