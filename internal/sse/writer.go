// Package sse implements the data-frame wire format shared by the chat
// server and its clients.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/RichardoC/portfolio-chat/internal/models"
)

// Writer emits data frames and flushes after each one so the client sees
// upstream deltas as they arrive.
type Writer struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

// NewWriter sets the event-stream headers on w. Headers are committed by the
// first frame written.
func NewWriter(w http.ResponseWriter) *Writer {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	return &Writer{w: w, rc: http.NewResponseController(w)}
}

func (s *Writer) Token(responseID string) error {
	return s.write(models.TokenFrame{ResponseID: responseID})
}

func (s *Writer) Delta(content string) error {
	return s.write(models.DeltaFrame{Content: content})
}

func (s *Writer) Done() error {
	return s.write(models.DoneFrame{Done: true, Images: []string{}})
}

// Fail closes the turn with a user-facing message. The frame still looks
// like a terminal content frame so older clients render the text.
func (s *Writer) Fail(message string) error {
	return s.write(models.DoneFrame{Content: message, Done: true, Images: []string{}, Error: true})
}

func (s *Writer) write(frame any) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	// Writers without flush support (some test recorders) still get the bytes.
	_ = s.rc.Flush()
	return nil
}
