package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"local-chat/internal/domain"
)

// Backend is the durable half of a Store. Implementations apply a Batch
// atomically where the underlying engine allows it. A put for an ID that
// already exists only rewrites its text.
type Backend interface {
	Commit(ctx context.Context, b Batch) error
	List(ctx context.Context) ([]domain.ChatMessage, error)
	Close() error
}

// Batch is the set of changes committed by a single Store.Save.
// Each message ID appears at most once across Puts and Deletes.
type Batch struct {
	Puts    []domain.ChatMessage
	Deletes []domain.ChatMessage
}

func (b Batch) Empty() bool {
	return len(b.Puts) == 0 && len(b.Deletes) == 0
}

// StorageError wraps any failure reading or committing the message history.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("repository: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

type change struct {
	msg     domain.ChatMessage
	deleted bool
}

// Store tracks pending inserts, updates and deletes on top of a Backend and
// commits them together on Save. Reads always go to the backend, so FetchAll
// only ever returns committed state.
type Store struct {
	backend Backend
	log     *slog.Logger

	mu      sync.Mutex
	order   []string
	pending map[string]change
}

func NewStore(b Backend, logger *slog.Logger) (*Store, error) {
	if b == nil {
		return nil, errors.New("repository: backend must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		backend: b,
		log:     logger,
		pending: make(map[string]change),
	}, nil
}

// NewMessage builds a message with a fresh time-ordered ID.
func NewMessage(text string, fromUser bool, at time.Time) domain.ChatMessage {
	return domain.ChatMessage{
		ID:         newMessageID(),
		Text:       text,
		IsFromUser: fromUser,
		Timestamp:  at.UTC(),
	}
}

var newMessageID = func() string {
	return uuid.Must(uuid.NewV7()).String()
}

func (s *Store) Insert(msg domain.ChatMessage) {
	s.track(change{msg: msg})
}

// Update stages a text change for a message that was previously inserted.
func (s *Store) Update(msg domain.ChatMessage) {
	s.track(change{msg: msg})
}

func (s *Store) Delete(msg domain.ChatMessage) {
	s.track(change{msg: msg, deleted: true})
}

func (s *Store) track(c change) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[c.msg.ID]; !ok {
		s.order = append(s.order, c.msg.ID)
	}
	s.pending[c.msg.ID] = c
}

func (s *Store) reset() {
	s.order = nil
	s.pending = make(map[string]change)
}

// Save commits staged changes in one batch. Staged changes are cleared
// whether or not the commit succeeds.
func (s *Store) Save(ctx context.Context) error {
	s.mu.Lock()
	batch := Batch{}
	for _, id := range s.order {
		c := s.pending[id]
		if c.deleted {
			batch.Deletes = append(batch.Deletes, c.msg)
		} else {
			batch.Puts = append(batch.Puts, c.msg)
		}
	}
	s.reset()
	s.mu.Unlock()

	if batch.Empty() {
		return nil
	}
	if err := validateBatch(batch); err != nil {
		return &StorageError{Op: "save", Err: err}
	}
	if err := s.backend.Commit(ctx, batch); err != nil {
		return &StorageError{Op: "save", Err: err}
	}
	s.log.Debug("history saved", "puts", len(batch.Puts), "deletes", len(batch.Deletes))
	return nil
}

// FetchAll returns every committed message ordered by timestamp ascending.
func (s *Store) FetchAll(ctx context.Context) ([]domain.ChatMessage, error) {
	msgs, err := s.backend.List(ctx)
	if err != nil {
		return nil, &StorageError{Op: "fetch", Err: err}
	}
	slices.SortStableFunc(msgs, func(a, b domain.ChatMessage) int {
		switch {
		case a.Before(b):
			return -1
		case b.Before(a):
			return 1
		}
		return 0
	})
	return msgs, nil
}

func (s *Store) Close() error {
	return s.backend.Close()
}

func validateBatch(b Batch) error {
	for _, m := range b.Puts {
		if strings.TrimSpace(m.ID) == "" {
			return errors.New("message id is required")
		}
		if m.Timestamp.IsZero() {
			return fmt.Errorf("message %s has no timestamp", m.ID)
		}
	}
	for _, m := range b.Deletes {
		if strings.TrimSpace(m.ID) == "" {
			return errors.New("message id is required")
		}
	}
	return nil
}

func timeFromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
