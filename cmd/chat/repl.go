package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gookit/color"

	"local-chat/internal/domain"
)

var (
	userStyle      = color.New(color.FgCyan, color.OpBold)
	assistantStyle = color.New(color.FgGreen, color.OpBold)
	thinkingStyle  = color.New(color.FgYellow)
	errorStyle     = color.New(color.FgRed)
)

type chatSession interface {
	SendMessage(ctx context.Context, input string) error
	LoadHistory(ctx context.Context) error
	ClearAll(ctx context.Context) error
	Subscribe(fn func(domain.State)) (unsubscribe func())
}

// repl is the terminal front end. It renders from state notifications only,
// so whatever it prints has already been committed to the store.
type repl struct {
	chat chatSession
	in   io.Reader
	out  io.Writer

	shown    map[string]bool
	thinking bool
	lastErr  error
}

func newREPL(chat chatSession, in io.Reader, out io.Writer) *repl {
	return &repl{chat: chat, in: in, out: out, shown: make(map[string]bool)}
}

func (r *repl) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	unsubscribe := r.chat.Subscribe(r.render)
	defer unsubscribe()

	fmt.Fprintln(r.out, "Type a message and press Enter. /clear wipes the history, /quit exits.")
	// A failed load is rendered from LastError; the session still starts.
	_ = r.chat.LoadHistory(ctx)

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r.in)
		sc.Buffer(make([]byte, 64*1024), 1<<20)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-readErr:
					return err
				default:
					return nil
				}
			}
			switch strings.TrimSpace(line) {
			case "/quit", "/exit":
				return nil
			case "/clear":
				if err := r.chat.ClearAll(ctx); err == nil {
					fmt.Fprintln(r.out, "history cleared")
				}
			default:
				_ = r.chat.SendMessage(ctx, line)
			}
		}
	}
}

func (r *repl) render(st domain.State) {
	if len(st.Messages) == 0 {
		r.shown = make(map[string]bool)
	}
	for i, msg := range st.Messages {
		if r.shown[msg.ID] {
			continue
		}
		if isPendingPlaceholder(msg, st.Loading && i == len(st.Messages)-1) {
			continue
		}
		fmt.Fprintln(r.out, bubble(msg))
		r.shown[msg.ID] = true
	}

	if st.Loading && !r.thinking {
		fmt.Fprintln(r.out, thinkingStyle.Render("  assistant: "+domain.PlaceholderText))
	}
	r.thinking = st.Loading

	if st.LastError != nil && st.LastError != r.lastErr {
		fmt.Fprintln(r.out, errorStyle.Render("  error: "+st.LastError.Error()))
	}
	r.lastErr = st.LastError
}

// isPendingPlaceholder reports whether msg is the placeholder of the send in
// progress. inFlight is true only for the last message while loading.
func isPendingPlaceholder(msg domain.ChatMessage, inFlight bool) bool {
	return inFlight && !msg.IsFromUser && msg.Text == domain.PlaceholderText
}

func bubble(msg domain.ChatMessage) string {
	at := msg.Timestamp.In(time.Local).Format("15:04")
	text := strings.ReplaceAll(msg.Text, "\n", "\n    ")
	if msg.IsFromUser {
		return fmt.Sprintf("[%s] %s %s", at, userStyle.Render("you:"), text)
	}
	return fmt.Sprintf("[%s] %s %s", at, assistantStyle.Render("assistant:"), text)
}
