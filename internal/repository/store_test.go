package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"local-chat/internal/domain"
)

type failingBackend struct {
	*MemoryBackend
	commitErr error
	listErr   error
	commits   []Batch
}

func newFailingBackend() *failingBackend {
	return &failingBackend{MemoryBackend: NewMemoryBackend()}
}

func (f *failingBackend) Commit(ctx context.Context, b Batch) error {
	f.commits = append(f.commits, b)
	if f.commitErr != nil {
		return f.commitErr
	}
	return f.MemoryBackend.Commit(ctx, b)
}

func (f *failingBackend) List(ctx context.Context) ([]domain.ChatMessage, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.MemoryBackend.List(ctx)
}

func mustNewStore(t *testing.T, b Backend) *Store {
	t.Helper()
	s, err := NewStore(b, nil)
	require.NoError(t, err)
	return s
}

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestNewStore_NilBackend(t *testing.T) {
	_, err := NewStore(nil, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "must not be nil")
}

func TestNewMessage_AssignsTimeOrderedIDs(t *testing.T) {
	a := NewMessage("a", true, base)
	b := NewMessage("b", false, base)
	require.NotEmpty(t, a.ID)
	require.NotEqual(t, a.ID, b.ID)
	require.True(t, a.Before(b), "same timestamp must fall back to insertion order")
	require.Equal(t, time.UTC, a.Timestamp.Location())
}

func TestStore_InsertNotVisibleUntilSave(t *testing.T) {
	s := mustNewStore(t, NewMemoryBackend())
	s.Insert(NewMessage("hello", true, base))

	msgs, err := s.FetchAll(context.Background())
	require.NoError(t, err)
	require.Empty(t, msgs)

	require.NoError(t, s.Save(context.Background()))

	msgs, err = s.FetchAll(context.Background())
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "hello", msgs[0].Text)
}

func TestStore_SaveWithoutChangesSkipsBackend(t *testing.T) {
	fb := newFailingBackend()
	s := mustNewStore(t, fb)
	require.NoError(t, s.Save(context.Background()))
	require.Empty(t, fb.commits)
}

func TestStore_CollapsesChangesPerMessage(t *testing.T) {
	fb := newFailingBackend()
	s := mustNewStore(t, fb)

	kept := NewMessage("placeholder", false, base)
	dropped := NewMessage("gone", true, base.Add(time.Second))
	s.Insert(kept)
	s.Insert(dropped)
	kept.Text = "filled"
	s.Update(kept)
	s.Delete(dropped)
	require.NoError(t, s.Save(context.Background()))

	require.Len(t, fb.commits, 1)
	require.Equal(t, []domain.ChatMessage{kept}, fb.commits[0].Puts)
	require.Equal(t, []domain.ChatMessage{dropped}, fb.commits[0].Deletes)
}

func TestStore_UpdateOnlyRewritesText(t *testing.T) {
	s := mustNewStore(t, NewMemoryBackend())
	msg := NewMessage("before", false, base)
	s.Insert(msg)
	require.NoError(t, s.Save(context.Background()))

	changed := msg
	changed.Text = "after"
	changed.IsFromUser = true
	changed.Timestamp = base.Add(time.Hour)
	s.Update(changed)
	require.NoError(t, s.Save(context.Background()))

	msgs, err := s.FetchAll(context.Background())
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "after", msgs[0].Text)
	require.False(t, msgs[0].IsFromUser)
	require.True(t, base.Equal(msgs[0].Timestamp))
}

func TestStore_SaveFailureDiscardsBatch(t *testing.T) {
	fb := newFailingBackend()
	fb.commitErr = errors.New("disk full")
	s := mustNewStore(t, fb)
	s.Insert(NewMessage("hello", true, base))

	err := s.Save(context.Background())
	require.Error(t, err)
	var se *StorageError
	require.ErrorAs(t, err, &se)
	require.Equal(t, "save", se.Op)
	require.ErrorContains(t, err, "disk full")

	fb.commitErr = nil
	require.NoError(t, s.Save(context.Background()))
	require.Len(t, fb.commits, 1, "discarded changes must not be retried")
}

func TestStore_SaveRejectsInvalidMessages(t *testing.T) {
	s := mustNewStore(t, NewMemoryBackend())
	s.Insert(domain.ChatMessage{Text: "no id", Timestamp: base})
	err := s.Save(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "id is required")

	s.Insert(domain.ChatMessage{ID: "x", Text: "no time"})
	err = s.Save(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "no timestamp")
}

func TestStore_FetchAllError(t *testing.T) {
	fb := newFailingBackend()
	fb.listErr = errors.New("locked")
	s := mustNewStore(t, fb)
	_, err := s.FetchAll(context.Background())
	var se *StorageError
	require.ErrorAs(t, err, &se)
	require.Equal(t, "fetch", se.Op)
}

func TestStore_FetchAllOrdersByTimestampThenInsertion(t *testing.T) {
	s := mustNewStore(t, NewMemoryBackend())
	var want []string
	for i := 0; i < 20; i++ {
		// Pairs share a timestamp so ties must resolve by insertion order.
		msg := NewMessage(fmt.Sprintf("m%d", i), i%2 == 0, base.Add(time.Duration(i/2)*time.Millisecond))
		want = append(want, msg.Text)
		s.Insert(msg)
	}
	require.NoError(t, s.Save(context.Background()))

	msgs, err := s.FetchAll(context.Background())
	require.NoError(t, err)
	got := make([]string, 0, len(msgs))
	for _, m := range msgs {
		got = append(got, m.Text)
	}
	require.Equal(t, want, got)
}
