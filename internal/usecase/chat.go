package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"local-chat/internal/domain"
	"local-chat/internal/repository"
)

// Completer turns a prompt into generated text.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// MessageStore is the unit-of-work view of the history consumed by ChatService.
// *repository.Store satisfies it.
type MessageStore interface {
	Insert(msg domain.ChatMessage)
	Update(msg domain.ChatMessage)
	Delete(msg domain.ChatMessage)
	Save(ctx context.Context) error
	FetchAll(ctx context.Context) ([]domain.ChatMessage, error)
}

type subscriber struct {
	id int
	fn func(domain.State)
}

// ChatService drives the send lifecycle and owns the presentation state.
// At most one SendMessage or ClearAll runs at a time; an overlapping call
// fails fast with ErrorBusy.
type ChatService struct {
	store    MessageStore
	llm      Completer
	log      *slog.Logger
	inflight *semaphore.Weighted

	// notifyMu serializes a state change together with its delivery so
	// subscribers see snapshots in the order they were made.
	notifyMu sync.Mutex
	mu       sync.RWMutex
	state    domain.State

	// fetchSeq tickets each list fetch. A fetch older than the last applied
	// list is dropped.
	fetchSeq   atomic.Uint64
	appliedSeq uint64

	subMu   sync.Mutex
	subs    []subscriber
	nextSub int
}

func NewChatService(store MessageStore, llm Completer, logger *slog.Logger) (*ChatService, error) {
	if store == nil {
		return nil, errors.New("usecase: store must not be nil")
	}
	if llm == nil {
		return nil, errors.New("usecase: completer must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatService{
		store:    store,
		llm:      llm,
		log:      logger,
		inflight: semaphore.NewWeighted(1),
		state:    domain.State{Messages: []domain.ChatMessage{}},
	}, nil
}

// State returns a copy of the current presentation state.
func (s *ChatService) State() domain.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

func (s *ChatService) SetInput(text string) {
	s.mutate(func(st *domain.State) { st.Input = text })
}

func (s *ChatService) DismissError() {
	s.mutate(func(st *domain.State) { st.LastError = nil })
}

// Subscribe registers fn to receive a snapshot after every state change.
// fn runs on the goroutine that caused the change. It must not block or call
// back into the service.
func (s *ChatService) Subscribe(fn func(domain.State)) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs = append(s.subs, subscriber{id: id, fn: fn})
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

// SendMessage submits input as a user turn and waits for the assistant reply.
// Blank input is ignored. The returned error is also recorded as LastError.
func (s *ChatService) SendMessage(ctx context.Context, input string) error {
	text := strings.TrimSpace(input)
	if text == "" {
		return nil
	}
	if !s.inflight.TryAcquire(1) {
		return s.fail(newError(ErrorBusy, "send_in_flight", nil))
	}
	defer s.inflight.Release(1)

	s.mutate(func(st *domain.State) { st.Input = "" })

	user := repository.NewMessage(text, true, now())
	s.store.Insert(user)
	if err := s.persist(ctx); err != nil {
		return s.fail(classify("user_message_save_error", err))
	}

	placeholder := repository.NewMessage(domain.PlaceholderText, false, now())
	s.store.Insert(placeholder)
	if err := s.persist(ctx); err != nil {
		s.discard(ctx, placeholder)
		return s.fail(classify("placeholder_save_error", err))
	}

	s.setLoading(true)
	defer s.setLoading(false)

	s.log.Debug("awaiting completion", "placeholder_id", placeholder.ID, "prompt_chars", len(text))
	reply, err := s.llm.Complete(ctx, text)
	if err != nil {
		s.discard(ctx, placeholder)
		return s.fail(classify("completion_error", err))
	}

	placeholder.Text = reply
	s.store.Update(placeholder)
	if err := s.persist(ctx); err != nil {
		s.discard(ctx, placeholder)
		return s.fail(classify("reply_save_error", err))
	}
	s.log.Debug("completion stored", "placeholder_id", placeholder.ID, "reply_chars", len(reply))
	return nil
}

// LoadHistory replaces the in-memory list with the committed history.
// On failure the current list is kept.
func (s *ChatService) LoadHistory(ctx context.Context) error {
	if err := s.reload(ctx); err != nil {
		return s.fail(classify("history_load_error", err))
	}
	return nil
}

// ClearAll deletes the whole history. The in-memory list is only cleared once
// the deletion has been committed.
func (s *ChatService) ClearAll(ctx context.Context) error {
	if !s.inflight.TryAcquire(1) {
		return s.fail(newError(ErrorBusy, "send_in_flight", nil))
	}
	defer s.inflight.Release(1)

	msgs, err := s.store.FetchAll(ctx)
	if err != nil {
		return s.fail(classify("history_clear_error", err))
	}
	for _, msg := range msgs {
		s.store.Delete(msg)
	}
	if err := s.store.Save(ctx); err != nil {
		return s.fail(classify("history_clear_error", err))
	}
	s.applyList(s.fetchSeq.Add(1), []domain.ChatMessage{})
	s.log.Info("history cleared", "deleted", len(msgs))
	return nil
}

// persist commits staged changes and reloads the list from the store.
func (s *ChatService) persist(ctx context.Context) error {
	if err := s.store.Save(ctx); err != nil {
		return err
	}
	return s.reload(ctx)
}

func (s *ChatService) reload(ctx context.Context) error {
	seq := s.fetchSeq.Add(1)
	msgs, err := s.store.FetchAll(ctx)
	if err != nil {
		return err
	}
	s.applyList(seq, msgs)
	return nil
}

// applyList installs msgs unless a list from a later fetch is already shown.
func (s *ChatService) applyList(seq uint64, msgs []domain.ChatMessage) {
	s.update(func(st *domain.State) bool {
		if seq <= s.appliedSeq {
			return false
		}
		s.appliedSeq = seq
		st.Messages = msgs
		return true
	})
}

// discard removes the placeholder after a failed send. It still runs when
// ctx is cancelled. Failures here are logged and dropped so the original
// error is what the caller sees.
func (s *ChatService) discard(ctx context.Context, placeholder domain.ChatMessage) {
	ctx = context.WithoutCancel(ctx)
	s.store.Delete(placeholder)
	if err := s.persist(ctx); err != nil {
		s.log.Warn("placeholder cleanup failed", "placeholder_id", placeholder.ID, "err", err)
	}
}

func (s *ChatService) fail(e *Error) error {
	s.log.Warn("chat operation failed", "code", e.Code, "reason", e.Reason, "err", e.Err)
	s.mutate(func(st *domain.State) { st.LastError = e })
	return e
}

func (s *ChatService) setLoading(v bool) {
	s.mutate(func(st *domain.State) { st.Loading = v })
}

func (s *ChatService) mutate(fn func(*domain.State)) {
	s.update(func(st *domain.State) bool {
		fn(st)
		return true
	})
}

// update applies fn and, when it reports a change, delivers the new snapshot.
func (s *ChatService) update(fn func(*domain.State) bool) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if !fn(&s.state) {
		s.mu.Unlock()
		return
	}
	snapshot := s.state.Clone()
	s.mu.Unlock()

	s.subMu.Lock()
	subs := make([]subscriber, len(s.subs))
	copy(subs, s.subs)
	s.subMu.Unlock()

	for _, sub := range subs {
		sub.fn(snapshot.Clone())
	}
}

var now = func() time.Time {
	return time.Now()
}
