package chat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/RichardoC/portfolio-chat/internal/api"
	"github.com/RichardoC/portfolio-chat/internal/limit"
	"github.com/RichardoC/portfolio-chat/internal/llm"
	"github.com/RichardoC/portfolio-chat/internal/models"
)

type upstream struct {
	mu       sync.Mutex
	requests []llm.Request
	turn     int
}

func (u *upstream) Stream(_ context.Context, req llm.Request) (llm.Stream, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.requests = append(u.requests, req)
	u.turn++
	id := "r" + string(rune('0'+u.turn))
	return &upstreamStream{events: []llm.Event{
		{Type: llm.EventCreated, ResponseID: id},
		{Type: llm.EventDelta, Delta: "Aigenie "},
		{Type: llm.EventDelta, Delta: "is..."},
		{Type: llm.EventCompleted},
	}}, nil
}

func (u *upstream) sent() []llm.Request {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]llm.Request(nil), u.requests...)
}

type upstreamStream struct{ events []llm.Event }

func (s *upstreamStream) Next() (llm.Event, error) {
	if len(s.events) == 0 {
		return llm.Event{}, io.EOF
	}
	ev := s.events[0]
	s.events = s.events[1:]
	return ev, nil
}

func (s *upstreamStream) Close() error { return nil }

type daily struct{ left int }

func (d *daily) ConsumeDaily(context.Context, string, int) (bool, error) {
	if d.left == 0 {
		return false, nil
	}
	d.left--
	return true, nil
}

func startServer(t *testing.T, u *upstream, lim limit.Limiter) *httptest.Server {
	t.Helper()
	svc := llm.NewService(llm.ServiceConfig{Provider: u, Limiter: lim, StoreID: "vs_test"})
	handler := api.NewHandler(svc, nil, nil, zap.NewNop())
	srv := httptest.NewServer(api.NewServer("", handler, zap.NewNop()).Router())
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPTransport_EndToEnd(t *testing.T) {
	u := &upstream{}
	lim := limit.NewMemory(limit.Options{DailyLimit: 2, Daily: &daily{left: 2}})
	srv := startServer(t, u, lim)

	c := newConversation(t, NewHTTPTransport(srv.URL+"/", srv.Client()))

	require.NoError(t, c.Submit(context.Background(), "What is Aigenie?"))
	snap := c.Snapshot()
	assert.Equal(t, "r1", snap.ResponseID)
	assert.Equal(t, "Aigenie is...", snap.Messages[1].Content)

	require.NoError(t, c.Submit(context.Background(), "And Lucky?"))
	sent := u.sent()
	require.Len(t, sent, 2)
	assert.Empty(t, sent[0].PreviousResponseID)
	assert.Equal(t, "r1", sent[1].PreviousResponseID)

	err := c.Submit(context.Background(), "One more")
	assert.ErrorIs(t, err, ErrLimitReached)
	assert.Equal(t, LimitReached, c.Snapshot().State)
	assert.Len(t, u.sent(), 2)
	// Slots are returned once each handler finishes.
	assert.Eventually(t, func() bool { return lim.InFlight() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHTTPTransport_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(models.ErrorResponse{Error: models.CodePromptTooLong, Message: "too long"})
	}))
	defer srv.Close()

	_, err := NewHTTPTransport(srv.URL, nil).Send(context.Background(), models.ChatRequest{Message: "hi"})
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, &StatusError{Status: http.StatusBadRequest, Code: models.CodePromptTooLong, Message: "too long"}, se)
}

func TestHTTPTransport_StatusWithoutBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewHTTPTransport(srv.URL, nil).Send(context.Background(), models.ChatRequest{Message: "hi"})
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadGateway, se.Status)
	assert.Empty(t, se.Code)
	assert.Equal(t, MsgGeneric, classify(err).message)
}

func TestHTTPTransport_Feedback(t *testing.T) {
	var got models.ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	err := NewHTTPTransport(srv.URL, nil).SendFeedback(context.Background(), models.FeedbackRequest{Type: models.FeedbackDown, Message: "meh"})
	require.NoError(t, err)
	assert.Empty(t, got.Message)
	require.NotNil(t, got.Feedback)
	assert.Equal(t, models.FeedbackDown, got.Feedback.Type)
}
