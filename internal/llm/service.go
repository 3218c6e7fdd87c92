package llm

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/RichardoC/portfolio-chat/internal/limit"
	"github.com/RichardoC/portfolio-chat/internal/models"
)

type ServiceConfig struct {
	Provider Provider
	Limiter  limit.Limiter
	Tokens   *TokenCounter
	Logger   *zap.Logger

	Persona         string
	StoreID         string
	MaxPromptChars  int // 0 disables
	MaxPromptTokens int // 0 disables
	Timeout         time.Duration

	// ConfigErr is the result of validating process configuration. When set
	// every turn fails as misconfigured before the upstream is contacted.
	ConfigErr error
}

// Service is the chat proxy. It holds no per-conversation state: the
// continuation token travels with each request and the upstream keeps the
// history.
type Service struct {
	cfg ServiceConfig
}

func NewService(cfg ServiceConfig) *Service {
	if cfg.Limiter == nil {
		cfg.Limiter = limit.Unlimited{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Persona == "" {
		cfg.Persona = DefaultPersona()
	}
	return &Service{cfg: cfg}
}

// Ready reports the configuration error, if any.
func (s *Service) Ready() error {
	if s.cfg.ConfigErr != nil {
		return s.cfg.ConfigErr
	}
	if s.cfg.Provider == nil {
		return errors.New("no upstream provider")
	}
	return nil
}

// Start validates req, takes budget and opens the upstream stream. The
// first upstream event is read before returning, so an upstream that cannot
// be reached fails here, while the caller can still answer with a status.
func (s *Service) Start(ctx context.Context, req models.ChatRequest, clientKey string) (*Turn, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, newError(models.CodeInvalidRequest, MsgInvalidRequest, nil)
	}
	if err := s.Ready(); err != nil {
		return nil, newError(models.CodeMisconfigured, MsgMisconfigured, err)
	}
	if s.tooLong(message) {
		return nil, newError(models.CodePromptTooLong, MsgPromptTooLong, nil)
	}

	verdict, err := s.cfg.Limiter.CheckAndConsume(ctx, clientKey)
	if err != nil {
		s.cfg.Logger.Error("budget check failed", zap.Error(err), zap.String("client", clientKey))
		return nil, newError(models.CodeUpstreamUnavailable, MsgUnavailable, err)
	}
	switch verdict {
	case limit.RateLimited:
		return nil, newError(models.CodeRateLimited, MsgRateLimited, nil)
	case limit.DailyLimitReached:
		return nil, newError(models.CodeDailyLimitReached, MsgDailyLimit, nil)
	}

	turn := &Turn{
		logger:  s.cfg.Logger,
		release: func() { s.cfg.Limiter.Release(clientKey) },
		started: time.Now(),
	}
	ctx, turn.cancel = s.withTimeout(ctx)

	stream, err := s.cfg.Provider.Stream(ctx, Request{
		Instructions:       BuildInstructions(s.cfg.Persona, req.Page(), req.Context),
		Input:              message,
		StoreID:            s.cfg.StoreID,
		PreviousResponseID: req.ResponseID,
	})
	if err != nil {
		turn.Close()
		return nil, newError(models.CodeUpstreamUnavailable, MsgUnavailable, err)
	}
	turn.stream = stream

	first, err := stream.Next()
	if err != nil {
		turn.Close()
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, newError(models.CodeUpstreamUnavailable, MsgUnavailable, err)
	}
	turn.pending = &first

	s.cfg.Logger.Debug("turn started",
		zap.String("client", clientKey),
		zap.Bool("continued", req.ResponseID != ""),
		zap.String("page", req.Page()),
	)
	return turn, nil
}

func (s *Service) tooLong(message string) bool {
	if s.cfg.MaxPromptChars > 0 && utf8.RuneCountInString(message) > s.cfg.MaxPromptChars {
		return true
	}
	return s.cfg.MaxPromptTokens > 0 && s.cfg.Tokens.Count(message) > s.cfg.MaxPromptTokens
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.Timeout > 0 {
		return context.WithTimeout(ctx, s.cfg.Timeout)
	}
	return context.WithCancel(ctx)
}

// EventSink receives the normalised events of a turn.
type EventSink interface {
	Token(responseID string) error
	Delta(content string) error
	Done() error
	Fail(message string) error
}

// Turn is one accepted request with an open upstream stream.
type Turn struct {
	stream  Stream
	pending *Event
	cancel  context.CancelFunc
	release func()
	logger  *zap.Logger
	started time.Time

	responseID string
	chars      int
	closeOnce  sync.Once
}

func (t *Turn) ResponseID() string { return t.responseID }

func (t *Turn) next() (Event, error) {
	if t.pending != nil {
		ev := *t.pending
		t.pending = nil
		return ev, nil
	}
	return t.stream.Next()
}

// Relay forwards upstream events to sink until the turn ends. An upstream
// failure after the stream has started is written as one terminal error
// frame. Errors from sink mean the client went away and are returned as is.
func (t *Turn) Relay(ctx context.Context, sink EventSink) error {
	for {
		ev, err := t.next()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			t.logger.Warn("upstream stream interrupted",
				zap.Error(err),
				zap.String("response_id", t.responseID),
				zap.Int("chars_sent", t.chars),
			)
			if ferr := sink.Fail(MsgInterrupted); ferr != nil {
				return ferr
			}
			return newError(models.CodeStreamInterrupted, MsgInterrupted, err)
		}

		switch ev.Type {
		case EventCreated:
			if ev.ResponseID == "" || t.responseID != "" {
				continue
			}
			t.responseID = ev.ResponseID
			err = sink.Token(ev.ResponseID)
		case EventDelta:
			if ev.Delta == "" {
				continue
			}
			t.chars += len(ev.Delta)
			err = sink.Delta(ev.Delta)
		case EventCompleted:
			t.logger.Info("turn completed",
				zap.String("response_id", t.responseID),
				zap.Int("chars_sent", t.chars),
				zap.Duration("elapsed", time.Since(t.started)),
			)
			return sink.Done()
		}
		if err != nil {
			return err
		}
	}
}

// Close ends the upstream stream and returns the budget slot. It is safe to
// call more than once.
func (t *Turn) Close() error {
	var err error
	t.closeOnce.Do(func() {
		if t.stream != nil {
			err = t.stream.Close()
		}
		if t.cancel != nil {
			t.cancel()
		}
		if t.release != nil {
			t.release()
		}
	})
	return err
}
