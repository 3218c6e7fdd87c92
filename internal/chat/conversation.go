// Package chat is the client side of the assistant: a conversation that
// sends turns, applies the streamed reply and tracks what the UI shows.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/RichardoC/portfolio-chat/internal/models"
	"github.com/RichardoC/portfolio-chat/internal/sse"
	"github.com/RichardoC/portfolio-chat/internal/suggest"
)

type State int

const (
	Idle State = iota
	AwaitingFirstByte
	Streaming
	Error
	LimitReached
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingFirstByte:
		return "awaiting_first_byte"
	case Streaming:
		return "streaming"
	case Error:
		return "error"
	case LimitReached:
		return "limit_reached"
	default:
		return "unknown"
	}
}

var (
	ErrEmptyInput    = errors.New("chat: empty message")
	ErrBusy          = errors.New("chat: a turn is already in flight")
	ErrPromptTooLong = errors.New("chat: message too long")
	ErrLimitReached  = errors.New("chat: daily limit reached")
	ErrAborted       = errors.New("chat: turn aborted")
	ErrInterrupted   = errors.New("chat: reply interrupted")
)

// Snapshot is a copy of the conversation for rendering.
type Snapshot struct {
	State       State
	Messages    []models.Message
	ResponseID  string
	Page        string
	Quote       string
	Welcome     string
	Suggestions []string
	FollowUps   []string
}

// Typing reports whether a reply is expected but no text has arrived yet.
func (s Snapshot) Typing() bool {
	if s.State != AwaitingFirstByte && s.State != Streaming {
		return false
	}
	if len(s.Messages) == 0 {
		return false
	}
	last := s.Messages[len(s.Messages)-1]
	return last.Role == models.RoleUser || (last.Role == models.RoleAssistant && last.Content == "")
}

type Option func(*Conversation)

func WithPage(page string) Option {
	return func(c *Conversation) { c.page = page }
}

// WithMaxPromptChars rejects longer messages before they are sent. 0 disables.
func WithMaxPromptChars(n int) Option {
	return func(c *Conversation) { c.maxChars = n }
}

// WithObserver registers fn to receive a snapshot after every change. fn is
// called without the conversation lock held, from the goroutine that made
// the change.
func WithObserver(fn func(Snapshot)) Option {
	return func(c *Conversation) { c.observer = fn }
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Conversation) { c.logger = logger }
}

// Conversation holds one visitor's transcript. At most one turn is in
// flight; every turn gets a generation number and events from an older
// generation are dropped.
type Conversation struct {
	transport Transport
	engine    *suggest.Engine
	maxChars  int
	observer  func(Snapshot)
	logger    *zap.Logger

	mu          sync.Mutex
	state       State
	messages    []models.Message
	responseID  string
	page        string
	quote       string
	welcome     string
	suggestions []string
	followUps   []string

	gen      uint64
	cancel   context.CancelFunc
	turnBase int    // transcript length before the in-flight turn
	turnPrev string // continuation token before the in-flight turn
}

func New(transport Transport, engine *suggest.Engine, opts ...Option) *Conversation {
	if engine == nil {
		engine = suggest.New(nil)
	}
	c := &Conversation{
		transport: transport,
		engine:    engine,
		page:      "home",
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.welcome = engine.Welcome()
	c.suggestions = engine.Suggestions(c.page)
	return c
}

func (c *Conversation) busy() bool {
	return c.state == AwaitingFirstByte || c.state == Streaming
}

// Submit sends text as the next turn and blocks until the reply has been
// applied. Guard failures leave the conversation untouched. A turn ended by
// Cancel, Reset or ctx returns ErrAborted and leaves no trace. Failures that
// produced an error message in the transcript are returned as well.
func (c *Conversation) Submit(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)

	c.mu.Lock()
	switch {
	case text == "":
		c.mu.Unlock()
		return ErrEmptyInput
	case c.state == LimitReached:
		c.mu.Unlock()
		return ErrLimitReached
	case c.busy():
		c.mu.Unlock()
		return ErrBusy
	case c.maxChars > 0 && utf8.RuneCountInString(text) > c.maxChars:
		c.mu.Unlock()
		return ErrPromptTooLong
	}

	req := models.ChatRequest{
		Message:     text,
		ResponseID:  c.responseID,
		PageContext: &models.PageContext{Page: c.page},
		Context:     c.quote,
	}
	c.turnBase = len(c.messages)
	c.turnPrev = c.responseID
	c.messages = append(c.messages, models.Message{Role: models.RoleUser, Content: text, QuotedText: c.quote})
	c.quote = ""
	c.followUps = nil
	c.state = AwaitingFirstByte
	c.gen++
	gen := c.gen
	turnCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.unlockAndNotify()

	defer cancel()

	body, err := c.transport.Send(turnCtx, req)
	if err != nil {
		return c.finish(turnCtx, gen, err)
	}
	defer body.Close()
	// Unblocks a pending read when the turn is cancelled.
	stop := context.AfterFunc(turnCtx, func() { body.Close() })
	defer stop()

	if !c.accept(gen) {
		return ErrAborted
	}

	r := sse.NewReader(body)
	for {
		ev, err := r.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return c.finish(turnCtx, gen, fmt.Errorf("stream ended before the reply completed: %w", err))
		}
		done, err := c.apply(turnCtx, gen, ev)
		if err != nil || done {
			return err
		}
	}
}

// accept appends the assistant placeholder once the server took the turn.
func (c *Conversation) accept(gen uint64) bool {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return false
	}
	c.messages = append(c.messages, models.Message{Role: models.RoleAssistant})
	c.unlockAndNotify()
	return true
}

// apply folds one stream event into the transcript. It reports whether the
// turn is over. Frames still buffered after turnCtx ends are dropped.
func (c *Conversation) apply(turnCtx context.Context, gen uint64, ev models.StreamEvent) (bool, error) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return true, ErrAborted
	}
	if turnCtx.Err() != nil {
		c.rollbackLocked()
		c.unlockAndNotify()
		return true, ErrAborted
	}
	last := &c.messages[len(c.messages)-1]

	switch ev.Kind {
	case models.EventToken:
		c.responseID = ev.ResponseID
	case models.EventDelta:
		last.Content += ev.Content
		c.state = Streaming
	case models.EventDone:
		c.cancel = nil
		if ev.Error {
			c.setErrorLocked(ev.Content)
			c.state = Error
			c.unlockAndNotify()
			return true, fmt.Errorf("%w: %s", ErrInterrupted, ev.Content)
		}
		last.Content += ev.Content
		c.state = Idle
		c.followUps = c.engine.FollowUps(last.Content, c.contentsLocked())
		c.unlockAndNotify()
		return true, nil
	}
	c.unlockAndNotify()
	return false, nil
}

// finish ends a turn that failed before a terminal frame.
func (c *Conversation) finish(turnCtx context.Context, gen uint64, err error) error {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return ErrAborted
	}
	if turnCtx.Err() != nil {
		c.rollbackLocked()
		c.unlockAndNotify()
		return ErrAborted
	}

	c.cancel = nil
	o := classify(err)
	c.setErrorLocked(o.message)
	if o.limit {
		c.state = LimitReached
	} else {
		c.state = Error
	}
	c.logger.Debug("turn failed", zap.Error(err), zap.Stringer("state", c.state))
	c.unlockAndNotify()
	if o.limit {
		return fmt.Errorf("%w: %w", ErrLimitReached, err)
	}
	return err
}

// setErrorLocked shows text as the assistant reply, reusing an empty
// placeholder when there is one.
func (c *Conversation) setErrorLocked(text string) {
	if text == "" {
		text = MsgGeneric
	}
	msg := models.Message{Role: models.RoleAssistant, Content: text, Error: true}
	if n := len(c.messages); n > 0 && c.messages[n-1].Role == models.RoleAssistant && c.messages[n-1].Content == "" {
		c.messages[n-1] = msg
		return
	}
	c.messages = append(c.messages, msg)
}

func (c *Conversation) rollbackLocked() {
	if c.turnBase <= len(c.messages) {
		c.messages = c.messages[:c.turnBase]
	}
	c.responseID = c.turnPrev
	c.cancel = nil
	c.state = Idle
	c.gen++
}

func (c *Conversation) contentsLocked() []string {
	out := make([]string, 0, len(c.messages))
	for _, m := range c.messages {
		out = append(out, m.Content)
	}
	return out
}

// Cancel aborts the in-flight turn, if any. The turn's messages are removed
// and none of its later events are applied.
func (c *Conversation) Cancel() {
	c.mu.Lock()
	if !c.busy() {
		c.mu.Unlock()
		return
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.rollbackLocked()
	c.unlockAndNotify()
}

// Reset cancels any turn and starts an empty conversation. A reached daily
// limit survives a reset; see ClearLimit.
func (c *Conversation) Reset() {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.gen++
	c.messages = nil
	c.responseID = ""
	c.quote = ""
	c.followUps = nil
	c.welcome = c.engine.Welcome()
	c.suggestions = c.engine.Suggestions(c.page)
	if c.state != LimitReached {
		c.state = Idle
	}
	c.unlockAndNotify()
}

// ClearLimit lifts LimitReached, for when the budget has been reset.
func (c *Conversation) ClearLimit() {
	c.mu.Lock()
	if c.state == LimitReached {
		c.state = Idle
	}
	c.unlockAndNotify()
}

// SetPage records the page the visitor is on. Suggestions follow the page
// while the transcript is empty.
func (c *Conversation) SetPage(page string) {
	c.mu.Lock()
	if page == "" {
		page = "home"
	}
	c.page = page
	if len(c.messages) == 0 {
		c.suggestions = c.engine.Suggestions(page)
	}
	c.unlockAndNotify()
}

// Quote attaches selected page text to the next submitted message.
func (c *Conversation) Quote(text string) {
	c.mu.Lock()
	c.quote = strings.TrimSpace(text)
	c.unlockAndNotify()
}

// SetFeedback rates the assistant message at index. Rating it again with
// the same value clears the rating. Only new ratings are sent.
func (c *Conversation) SetFeedback(ctx context.Context, index int, fb models.Feedback) error {
	if fb != models.FeedbackUp && fb != models.FeedbackDown {
		return fmt.Errorf("chat: invalid feedback %q", fb)
	}

	c.mu.Lock()
	if index < 0 || index >= len(c.messages) {
		c.mu.Unlock()
		return fmt.Errorf("chat: no message at %d", index)
	}
	m := &c.messages[index]
	if m.Role != models.RoleAssistant || m.Error || m.Content == "" {
		c.mu.Unlock()
		return fmt.Errorf("chat: message %d cannot be rated", index)
	}
	if c.busy() && index == len(c.messages)-1 {
		c.mu.Unlock()
		return ErrBusy
	}
	if m.Feedback == fb {
		m.Feedback = models.FeedbackNone
		c.unlockAndNotify()
		return nil
	}
	m.Feedback = fb
	content := m.Content
	c.unlockAndNotify()

	return c.transport.SendFeedback(ctx, models.FeedbackRequest{Type: fb, Message: content})
}

func (c *Conversation) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Conversation) Typing() bool {
	return c.Snapshot().Typing()
}

func (c *Conversation) snapshotLocked() Snapshot {
	return Snapshot{
		State:       c.state,
		Messages:    append([]models.Message(nil), c.messages...),
		ResponseID:  c.responseID,
		Page:        c.page,
		Quote:       c.quote,
		Welcome:     c.welcome,
		Suggestions: append([]string(nil), c.suggestions...),
		FollowUps:   append([]string(nil), c.followUps...),
	}
}

// unlockAndNotify must be called with c.mu held. It releases it and then
// calls the observer.
func (c *Conversation) unlockAndNotify() {
	if c.observer == nil {
		c.mu.Unlock()
		return
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.observer(snap)
}
