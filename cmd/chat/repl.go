package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"

	"github.com/peterh/liner"

	"github.com/RichardoC/portfolio-chat/internal/chat"
	"github.com/RichardoC/portfolio-chat/internal/models"
)

const helpText = `Commands:
  /page <name>    tell the assistant which page you are on
  /quote <text>   attach selected text to your next question
  /up, /down      rate the last answer
  /reset          start over
  /quit           leave
Ctrl+C cancels an answer in progress, Ctrl+D exits.`

type command struct {
	name string
	arg  string
}

// parseCommand splits "/name arg". ok is false for plain messages.
func parseCommand(input string) (command, bool) {
	if !strings.HasPrefix(input, "/") {
		return command{}, false
	}
	name, arg, _ := strings.Cut(strings.TrimPrefix(input, "/"), " ")
	return command{name: strings.ToLower(name), arg: strings.TrimSpace(arg)}, true
}

// printer writes the growing assistant reply as it streams in.
type printer struct {
	out io.Writer

	mu      sync.Mutex
	index   int
	printed int
}

func (p *printer) observe(s chat.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(s.Messages)
	if n == 0 || s.Messages[n-1].Role != models.RoleAssistant {
		p.index, p.printed = -1, 0
		return
	}
	if p.index != n-1 {
		p.index, p.printed = n-1, 0
		fmt.Fprint(p.out, "ai> ")
	}
	content := s.Messages[n-1].Content
	if len(content) > p.printed {
		fmt.Fprint(p.out, content[p.printed:])
		p.printed = len(content)
	}
}

type repl struct {
	conv *chat.Conversation
	out  io.Writer
}

func newREPL(conv *chat.Conversation, out io.Writer) *repl {
	return &repl{conv: conv, out: out}
}

func (r *repl) run(ctx context.Context) error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	history := historyPath()
	if f, err := os.Open(history); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if f, err := os.OpenFile(history, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600); err == nil {
			line.WriteHistory(f)
			f.Close()
		}
	}()

	// Outside the prompt, Ctrl+C cancels the answer being streamed.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	defer signal.Stop(sigs)
	go func() {
		for range sigs {
			r.conv.Cancel()
		}
	}()

	snap := r.conv.Snapshot()
	fmt.Fprintf(r.out, "%s\n", snap.Welcome)
	r.printSuggestions("Try asking", snap.Suggestions)

	for {
		input, err := line.Prompt("you> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Fprintln(r.out)
				return nil
			}
			return err
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		if cmd, ok := parseCommand(input); ok {
			if quit := r.handle(ctx, cmd); quit {
				return nil
			}
			continue
		}
		r.ask(ctx, input)
	}
}

func (r *repl) ask(ctx context.Context, text string) {
	err := r.conv.Submit(ctx, text)
	fmt.Fprintln(r.out)
	switch {
	case errors.Is(err, chat.ErrAborted):
		fmt.Fprintln(r.out, "[cancelled]")
	case err == chat.ErrLimitReached:
		// Refused locally, nothing reached the transcript.
		fmt.Fprintln(r.out, chat.MsgDailyLimit)
	case errors.Is(err, chat.ErrPromptTooLong):
		fmt.Fprintln(r.out, chat.MsgPromptTooLong)
	case errors.Is(err, chat.ErrEmptyInput), errors.Is(err, chat.ErrBusy):
	case err == nil:
		r.printSuggestions("Follow up", r.conv.Snapshot().FollowUps)
	}
}

func (r *repl) handle(ctx context.Context, cmd command) (quit bool) {
	switch cmd.name {
	case "quit", "exit":
		return true
	case "help":
		fmt.Fprintln(r.out, helpText)
	case "reset":
		r.conv.Reset()
		snap := r.conv.Snapshot()
		fmt.Fprintln(r.out, snap.Welcome)
		r.printSuggestions("Try asking", snap.Suggestions)
	case "page":
		r.conv.SetPage(cmd.arg)
		fmt.Fprintf(r.out, "[page: %s]\n", r.conv.Snapshot().Page)
	case "quote":
		r.conv.Quote(cmd.arg)
		fmt.Fprintln(r.out, "[quote attached to your next message]")
	case "up", "down":
		r.rateLast(ctx, models.Feedback(cmd.name))
	default:
		fmt.Fprintf(r.out, "unknown command /%s, try /help\n", cmd.name)
	}
	return false
}

func (r *repl) rateLast(ctx context.Context, fb models.Feedback) {
	msgs := r.conv.Snapshot().Messages
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == models.RoleAssistant && !msgs[i].Error {
			if err := r.conv.SetFeedback(ctx, i, fb); err != nil {
				fmt.Fprintf(r.out, "could not send feedback: %v\n", err)
				return
			}
			fmt.Fprintln(r.out, "[thanks]")
			return
		}
	}
	fmt.Fprintln(r.out, "nothing to rate yet")
}

func (r *repl) printSuggestions(title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(r.out, "%s:\n", title)
	for _, s := range items {
		fmt.Fprintf(r.out, "  - %s\n", s)
	}
}

func historyPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "portfolio-chat-history")
}
