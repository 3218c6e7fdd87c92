package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/RichardoC/portfolio-chat/internal/models"
)

// Transport carries one turn to the chat server.
type Transport interface {
	// Send posts req and returns the event stream body of an accepted turn.
	// A rejected turn is reported as *StatusError.
	Send(ctx context.Context, req models.ChatRequest) (io.ReadCloser, error)
	SendFeedback(ctx context.Context, fb models.FeedbackRequest) error
}

// StatusError is a non-200 answer from the chat endpoint.
type StatusError struct {
	Status  int
	Code    models.ErrorCode
	Message string
}

func (e *StatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("chat: status %d: %s", e.Status, e.Code)
	}
	return fmt.Sprintf("chat: status %d", e.Status)
}

type HTTPTransport struct {
	endpoint string
	client   *http.Client
}

// NewHTTPTransport talks to the server rooted at baseURL. A nil client uses
// http.DefaultClient; streams are long lived, so it should not set a Timeout.
func NewHTTPTransport(baseURL string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPTransport{
		endpoint: strings.TrimRight(baseURL, "/") + "/api/chat",
		client:   client,
	}
}

func (t *HTTPTransport) Send(ctx context.Context, req models.ChatRequest) (io.ReadCloser, error) {
	resp, err := t.post(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, statusError(resp)
	}
	return resp.Body, nil
}

func (t *HTTPTransport) SendFeedback(ctx context.Context, fb models.FeedbackRequest) error {
	resp, err := t.post(ctx, models.ChatRequest{Feedback: &fb})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return statusError(resp)
	}
	return nil
}

func (t *HTTPTransport) post(ctx context.Context, body any) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	return t.client.Do(req)
}

func statusError(resp *http.Response) *StatusError {
	se := &StatusError{Status: resp.StatusCode}
	var body models.ErrorResponse
	// Error bodies are small; anything unparseable leaves only the status.
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err == nil {
		se.Code = body.Error
		se.Message = body.Message
	}
	return se
}
