package llm

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RichardoC/portfolio-chat/internal/limit"
	"github.com/RichardoC/portfolio-chat/internal/models"
)

type fakeStream struct {
	events []Event
	err    error // returned once events are exhausted, io.EOF if nil
	closed bool
}

func (s *fakeStream) Next() (Event, error) {
	if len(s.events) == 0 {
		if s.err != nil {
			return Event{}, s.err
		}
		return Event{}, io.EOF
	}
	ev := s.events[0]
	s.events = s.events[1:]
	return ev, nil
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

type fakeProvider struct {
	mu       sync.Mutex
	requests []Request
	stream   *fakeStream
	err      error
}

func (p *fakeProvider) Stream(_ context.Context, req Request) (Stream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	if p.err != nil {
		return nil, p.err
	}
	return p.stream, nil
}

type recordingSink struct {
	frames []string
}

func (r *recordingSink) Token(id string) error     { r.frames = append(r.frames, "token:"+id); return nil }
func (r *recordingSink) Delta(c string) error      { r.frames = append(r.frames, "delta:"+c); return nil }
func (r *recordingSink) Done() error               { r.frames = append(r.frames, "done"); return nil }
func (r *recordingSink) Fail(message string) error { r.frames = append(r.frames, "fail:"+message); return nil }

func happyStream() *fakeStream {
	return &fakeStream{events: []Event{
		{Type: EventCreated, ResponseID: "r1"},
		{Type: EventDelta, Delta: "Aigenie "},
		{Type: EventDelta, Delta: "is..."},
		{Type: EventCompleted},
	}}
}

func newTestService(p Provider, mutate func(*ServiceConfig)) *Service {
	cfg := ServiceConfig{Provider: p, StoreID: "vs_test", Persona: "PERSONA"}
	if mutate != nil {
		mutate(&cfg)
	}
	return NewService(cfg)
}

func TestStart_RelaysEventsInOrder(t *testing.T) {
	p := &fakeProvider{stream: happyStream()}
	svc := newTestService(p, nil)

	turn, err := svc.Start(context.Background(), models.ChatRequest{Message: "  What is Aigenie?  "}, "client")
	require.NoError(t, err)
	defer turn.Close()

	sink := &recordingSink{}
	require.NoError(t, turn.Relay(context.Background(), sink))
	assert.Equal(t, []string{"token:r1", "delta:Aigenie ", "delta:is...", "done"}, sink.frames)
	assert.Equal(t, "r1", turn.ResponseID())

	require.Len(t, p.requests, 1)
	assert.Equal(t, Request{Instructions: "PERSONA", Input: "What is Aigenie?", StoreID: "vs_test"}, p.requests[0])
}

func TestStart_ForwardsContinuationAndContext(t *testing.T) {
	p := &fakeProvider{stream: happyStream()}
	svc := newTestService(p, nil)

	turn, err := svc.Start(context.Background(), models.ChatRequest{
		Message:     "And Lucky?",
		ResponseID:  "r1",
		PageContext: &models.PageContext{Page: "about"},
		Context:     "Founder & CEO of Aigenie",
	}, "client")
	require.NoError(t, err)
	turn.Close()

	req := p.requests[0]
	assert.Equal(t, "r1", req.PreviousResponseID)
	assert.Equal(t, "And Lucky?", req.Input)
	assert.True(t, strings.HasPrefix(req.Instructions, "PERSONA\n\n"))
	assert.Contains(t, req.Instructions, `viewing the "about" page`)
	assert.Contains(t, req.Instructions, `"Founder & CEO of Aigenie"`)
	assert.NotContains(t, req.Input, "Founder")
}

func TestStart_ValidationOrder(t *testing.T) {
	tests := []struct {
		name   string
		msg    string
		mutate func(*ServiceConfig)
		code   models.ErrorCode
		status int
	}{
		{"empty", "   ", nil, models.CodeInvalidRequest, 400},
		{"empty beats misconfigured", "", func(c *ServiceConfig) { c.ConfigErr = errors.New("no key") }, models.CodeInvalidRequest, 400},
		{"misconfigured", "hi", func(c *ServiceConfig) { c.ConfigErr = errors.New("no key") }, models.CodeMisconfigured, 500},
		{"no provider", "hi", func(c *ServiceConfig) { c.Provider = nil }, models.CodeMisconfigured, 500},
		{"too many chars", "héllo world", func(c *ServiceConfig) { c.MaxPromptChars = 5 }, models.CodePromptTooLong, 400},
		{"too many tokens", strings.Repeat("word ", 50), func(c *ServiceConfig) { c.MaxPromptTokens = 10 }, models.CodePromptTooLong, 400},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakeProvider{stream: happyStream()}
			svc := newTestService(p, tt.mutate)
			_, err := svc.Start(context.Background(), models.ChatRequest{Message: tt.msg}, "c")

			var e *Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, tt.code, e.Code)
			assert.Equal(t, tt.status, e.Status())
			assert.Empty(t, p.requests, "no upstream call on validation failure")
		})
	}
}

func TestStart_LimiterVerdicts(t *testing.T) {
	lim := limit.NewMemory(limit.Options{MaxConcurrent: 1, DailyLimit: 2})
	p := &fakeProvider{stream: happyStream()}
	svc := newTestService(p, func(c *ServiceConfig) { c.Limiter = lim })

	first, err := svc.Start(context.Background(), models.ChatRequest{Message: "one"}, "c")
	require.NoError(t, err)

	_, err = svc.Start(context.Background(), models.ChatRequest{Message: "two"}, "c")
	assert.Equal(t, models.CodeRateLimited, CodeOf(err))

	require.NoError(t, first.Close())
	require.NoError(t, first.Close())
	assert.Zero(t, lim.InFlight())

	p.stream = happyStream()
	second, err := svc.Start(context.Background(), models.ChatRequest{Message: "three"}, "c")
	require.NoError(t, err)
	second.Close()

	_, err = svc.Start(context.Background(), models.ChatRequest{Message: "four"}, "c")
	assert.Equal(t, models.CodeDailyLimitReached, CodeOf(err))
	assert.Len(t, p.requests, 2)
}

func TestStart_UpstreamUnavailable(t *testing.T) {
	lim := limit.NewMemory(limit.Options{MaxConcurrent: 1})

	t.Run("open fails", func(t *testing.T) {
		svc := newTestService(&fakeProvider{err: errors.New("dial tcp: refused")}, func(c *ServiceConfig) { c.Limiter = lim })
		_, err := svc.Start(context.Background(), models.ChatRequest{Message: "hi"}, "c")
		assert.Equal(t, models.CodeUpstreamUnavailable, CodeOf(err))
		assert.Zero(t, lim.InFlight())
	})

	t.Run("first read fails", func(t *testing.T) {
		stream := &fakeStream{err: errors.New("401 unauthorized")}
		svc := newTestService(&fakeProvider{stream: stream}, func(c *ServiceConfig) { c.Limiter = lim })
		_, err := svc.Start(context.Background(), models.ChatRequest{Message: "hi"}, "c")
		assert.Equal(t, models.CodeUpstreamUnavailable, CodeOf(err))
		assert.True(t, stream.closed)
		assert.Zero(t, lim.InFlight())
	})
}

func TestRelay_MidStreamFailureEmitsOneTerminalFrame(t *testing.T) {
	stream := &fakeStream{
		events: []Event{{Type: EventCreated, ResponseID: "r9"}, {Type: EventDelta, Delta: "partial"}},
		err:    errors.New("connection reset"),
	}
	svc := newTestService(&fakeProvider{stream: stream}, nil)
	turn, err := svc.Start(context.Background(), models.ChatRequest{Message: "hi"}, "c")
	require.NoError(t, err)
	defer turn.Close()

	sink := &recordingSink{}
	err = turn.Relay(context.Background(), sink)
	assert.Equal(t, models.CodeStreamInterrupted, CodeOf(err))
	assert.Equal(t, []string{"token:r9", "delta:partial", "fail:" + MsgInterrupted}, sink.frames)
}

func TestRelay_PrematureEOFIsInterruption(t *testing.T) {
	stream := &fakeStream{events: []Event{{Type: EventCreated, ResponseID: "r1"}}}
	svc := newTestService(&fakeProvider{stream: stream}, nil)
	turn, err := svc.Start(context.Background(), models.ChatRequest{Message: "hi"}, "c")
	require.NoError(t, err)

	sink := &recordingSink{}
	err = turn.Relay(context.Background(), sink)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Equal(t, "fail:"+MsgInterrupted, sink.frames[len(sink.frames)-1])
}

func TestRelay_SkipsDuplicateTokenAndEmptyDeltas(t *testing.T) {
	stream := &fakeStream{events: []Event{
		{Type: EventCreated, ResponseID: "r1"},
		{Type: EventDelta, Delta: ""},
		{Type: EventCreated, ResponseID: "r2"},
		{Type: EventDelta, Delta: "x"},
		{Type: EventCompleted},
	}}
	svc := newTestService(&fakeProvider{stream: stream}, nil)
	turn, err := svc.Start(context.Background(), models.ChatRequest{Message: "hi"}, "c")
	require.NoError(t, err)

	sink := &recordingSink{}
	require.NoError(t, turn.Relay(context.Background(), sink))
	assert.Equal(t, []string{"token:r1", "delta:x", "done"}, sink.frames)
}

func TestBuildInstructions(t *testing.T) {
	assert.Equal(t, "P", BuildInstructions("P", "", ""))
	assert.Equal(t, "P", BuildInstructions("P", "home", "  "))
	assert.Equal(t, "P\n\nThe user is currently viewing the \"fun\" page of the portfolio.",
		BuildInstructions("P", "fun", ""))
	assert.Equal(t, "P\n\nThe user has selected the following text from the page: \"DotClock\"",
		BuildInstructions("P", "home", "DotClock"))

	// Selections keep their line breaks and quotes.
	assert.Equal(t, "P\n\nThe user has selected the following text from the page: \"Built with \"Go\".\n\nShipped 2024.\"",
		BuildInstructions("P", "", "Built with \"Go\".\n\nShipped 2024."))
}

func TestDefaultPersona(t *testing.T) {
	assert.Contains(t, DefaultPersona(), "portfolio")
	svc := NewService(ServiceConfig{})
	assert.Equal(t, DefaultPersona(), svc.cfg.Persona)
	assert.Error(t, svc.Ready())
}

func TestTokenCounter_Fallback(t *testing.T) {
	var c *TokenCounter
	assert.Equal(t, 3, c.Count("abcdefghij"))
}
