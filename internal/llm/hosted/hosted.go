// Package hosted talks to the OpenAI Responses API: token streaming, the
// file_search tool over a vector store, and previous_response_id
// continuation.
package hosted

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"
	"go.uber.org/zap"

	"github.com/RichardoC/portfolio-chat/internal/llm"
)

const (
	typeCreated    = "response.created"
	typeTextDelta  = "response.output_text.delta"
	typeCompleted  = "response.completed"
	typeFailed     = "response.failed"
	typeIncomplete = "response.incomplete"
	typeError      = "error"
)

type Config struct {
	APIKey      string
	BaseURL     string // optional, for proxies and tests
	Model       string
	Temperature float64
	TopP        float64
	MaxRetries  int
}

type Provider struct {
	client openai.Client
	cfg    Config
	logger *zap.Logger
}

func New(cfg Config, logger *zap.Logger) *Provider {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		client: openai.NewClient(opts...),
		cfg:    cfg,
		logger: logger,
	}
}

func (p *Provider) params(req llm.Request) responses.ResponseNewParams {
	params := responses.ResponseNewParams{
		Model:        shared.ResponsesModel(p.cfg.Model),
		Instructions: openai.String(req.Instructions),
		Input: responses.ResponseNewParamsInputUnion{
			OfString: openai.String(req.Input),
		},
		Store: openai.Bool(true),
	}
	if req.StoreID != "" {
		params.Tools = []responses.ToolUnionParam{{
			OfFileSearch: &responses.FileSearchToolParam{
				VectorStoreIDs: []string{req.StoreID},
			},
		}}
	}
	if req.PreviousResponseID != "" {
		params.PreviousResponseID = openai.String(req.PreviousResponseID)
	}
	if p.cfg.Temperature > 0 {
		params.Temperature = openai.Float(p.cfg.Temperature)
	}
	if p.cfg.TopP > 0 {
		params.TopP = openai.Float(p.cfg.TopP)
	}
	return params
}

// Stream opens a streaming response. The HTTP request is issued lazily by
// the SDK, so connection failures surface on the first Next.
func (p *Provider) Stream(ctx context.Context, req llm.Request) (llm.Stream, error) {
	raw := p.client.Responses.NewStreaming(ctx, p.params(req))
	if raw == nil {
		return nil, errors.New("hosted: no stream returned")
	}
	return &stream{raw: raw, logger: p.logger}, nil
}

type stream struct {
	raw    *ssestream.Stream[responses.ResponseStreamEventUnion]
	logger *zap.Logger
	done   bool
}

func (s *stream) Next() (llm.Event, error) {
	if s.done {
		return llm.Event{}, io.EOF
	}
	for s.raw.Next() {
		ev := s.raw.Current()
		switch ev.Type {
		case typeCreated:
			return llm.Event{Type: llm.EventCreated, ResponseID: ev.AsResponseCreated().Response.ID}, nil
		case typeTextDelta:
			return llm.Event{Type: llm.EventDelta, Delta: ev.AsResponseOutputTextDelta().Delta}, nil
		case typeCompleted:
			s.done = true
			return llm.Event{Type: llm.EventCompleted}, nil
		case typeFailed, typeIncomplete:
			s.done = true
			return llm.Event{}, fmt.Errorf("hosted: response ended with %s", ev.Type)
		case typeError:
			s.done = true
			return llm.Event{}, fmt.Errorf("hosted: upstream error: %s", ev.AsError().Message)
		default:
			s.logger.Debug("skipping upstream event", zap.String("type", ev.Type))
		}
	}
	s.done = true
	if err := s.raw.Err(); err != nil {
		return llm.Event{}, err
	}
	return llm.Event{}, io.EOF
}

func (s *stream) Close() error {
	s.done = true
	return s.raw.Close()
}
