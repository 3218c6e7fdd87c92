// Package local is a self-hosted upstream: any OpenAI compatible endpoint
// driven through langchaingo, with retrieval and conversation continuation
// kept in the sqlite database.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"github.com/RichardoC/portfolio-chat/internal/db"
	"github.com/RichardoC/portfolio-chat/internal/llm"
)

// Store is the persistence the provider needs.
type Store interface {
	SearchKnowledge(ctx context.Context, storeID, query string, limit int) ([]db.Document, error)
	ThreadHistory(ctx context.Context, id string, limit int) ([]db.Turn, error)
	SaveTurn(ctx context.Context, turn *db.Turn) error
}

type Config struct {
	HistoryTurns     int
	KnowledgeResults int
	Temperature      float64
	TopP             float64
}

type Provider struct {
	model  llms.Model
	store  Store
	cfg    Config
	logger *zap.Logger
}

// New connects to an OpenAI compatible endpoint such as a local Ollama.
func New(baseURL, token, model string, store Store, cfg Config, logger *zap.Logger) (*Provider, error) {
	m, err := openai.New(
		openai.WithToken(token),
		openai.WithBaseURL(baseURL),
		openai.WithModel(model),
	)
	if err != nil {
		return nil, err
	}
	return NewWithModel(m, store, cfg, logger), nil
}

func NewWithModel(model llms.Model, store Store, cfg Config, logger *zap.Logger) *Provider {
	if cfg.HistoryTurns <= 0 {
		cfg.HistoryTurns = 10
	}
	if cfg.KnowledgeResults <= 0 {
		cfg.KnowledgeResults = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{model: model, store: store, cfg: cfg, logger: logger}
}

// ErrUnknownResponse is returned for a continuation token this store never issued.
var ErrUnknownResponse = errors.New("local: unknown previous response id")

func (p *Provider) Stream(ctx context.Context, req llm.Request) (llm.Stream, error) {
	messages, err := p.buildMessages(ctx, req)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &stream{
		events: make(chan llm.Event, 64),
		cancel: cancel,
	}
	go p.generate(ctx, s, "resp_"+uuid.NewString(), req, messages)
	return s, nil
}

func (p *Provider) buildMessages(ctx context.Context, req llm.Request) ([]llms.MessageContent, error) {
	var history []db.Turn
	if req.PreviousResponseID != "" {
		var err error
		history, err = p.store.ThreadHistory(ctx, req.PreviousResponseID, p.cfg.HistoryTurns)
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownResponse, req.PreviousResponseID)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load conversation history: %w", err)
		}
	}

	system := req.Instructions
	if req.StoreID != "" {
		docs, err := p.store.SearchKnowledge(ctx, req.StoreID, req.Input, p.cfg.KnowledgeResults)
		if err != nil {
			// Answer without retrieval rather than failing the turn.
			p.logger.Warn("knowledge search failed", zap.Error(err), zap.String("store_id", req.StoreID))
		} else if len(docs) > 0 {
			var b strings.Builder
			b.WriteString(system)
			b.WriteString("\n\nRelevant knowledge:\n")
			for _, d := range docs {
				fmt.Fprintf(&b, "- %s\n", strings.TrimSpace(d.Content))
			}
			system = b.String()
		}
	}

	messages := make([]llms.MessageContent, 0, 2+2*len(history))
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, system))
	for _, turn := range history {
		messages = append(messages,
			llms.TextParts(llms.ChatMessageTypeHuman, turn.Input),
			llms.TextParts(llms.ChatMessageTypeAI, turn.Output),
		)
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, req.Input))
	return messages, nil
}

func (p *Provider) generate(ctx context.Context, s *stream, id string, req llm.Request, messages []llms.MessageContent) {
	defer close(s.events)

	// Created is held back until the model produces output, so an
	// unreachable endpoint fails the stream before anything is relayed.
	created := false
	send := func(ctx context.Context, ev llm.Event) error {
		if !created {
			created = true
			if err := s.send(ctx, llm.Event{Type: llm.EventCreated, ResponseID: id}); err != nil {
				return err
			}
		}
		return s.send(ctx, ev)
	}

	var output strings.Builder
	opts := []llms.CallOption{
		llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			if len(chunk) == 0 {
				return nil
			}
			output.Write(chunk)
			return send(ctx, llm.Event{Type: llm.EventDelta, Delta: string(chunk)})
		}),
	}
	if p.cfg.Temperature > 0 {
		opts = append(opts, llms.WithTemperature(p.cfg.Temperature))
	}
	if p.cfg.TopP > 0 {
		opts = append(opts, llms.WithTopP(p.cfg.TopP))
	}

	if _, err := p.model.GenerateContent(ctx, messages, opts...); err != nil {
		s.fail(fmt.Errorf("failed to generate completion: %w", err))
		return
	}

	turn := &db.Turn{ID: id, PreviousID: req.PreviousResponseID, Input: req.Input, Output: output.String()}
	if err := p.store.SaveTurn(ctx, turn); err != nil {
		// Without the stored turn the id cannot be continued.
		s.fail(fmt.Errorf("failed to save turn: %w", err))
		return
	}

	_ = send(ctx, llm.Event{Type: llm.EventCompleted})
}

type stream struct {
	events chan llm.Event
	cancel context.CancelFunc

	mu  sync.Mutex
	err error
}

func (s *stream) send(ctx context.Context, ev llm.Event) error {
	select {
	case s.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *stream) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *stream) Next() (llm.Event, error) {
	ev, ok := <-s.events
	if ok {
		return ev, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return llm.Event{}, s.err
	}
	return llm.Event{}, io.EOF
}

func (s *stream) Close() error {
	s.cancel()
	return nil
}
