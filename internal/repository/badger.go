package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"local-chat/internal/domain"
)

const badgerPrefix = "msg:"

// BadgerBackend stores one key per message. Keys are
// "msg:{unix_nano:019d}:{id}" so a forward prefix scan yields history order.
type BadgerBackend struct {
	db *badger.DB
}

// OpenBadger opens the database directory at path. An empty path opens an
// in-memory database.
func OpenBadger(path string) (*BadgerBackend, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("repository: open badger: %w", err)
	}
	return &BadgerBackend{db: db}, nil
}

func badgerKey(msg domain.ChatMessage) []byte {
	return []byte(fmt.Sprintf("%s%019d:%s", badgerPrefix, msg.Timestamp.UnixNano(), msg.ID))
}

// badgerRecord is the stored value. The key already carries the sort order.
type badgerRecord struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	IsFromUser bool   `json:"isFromUser"`
	CreatedAt  int64  `json:"createdAt"`
}

func (b *BadgerBackend) Commit(_ context.Context, batch Batch) error {
	return b.db.Update(func(txn *badger.Txn) error {
		for _, msg := range batch.Puts {
			raw, err := json.Marshal(badgerRecord{
				ID:         msg.ID,
				Text:       msg.Text,
				IsFromUser: msg.IsFromUser,
				CreatedAt:  msg.Timestamp.UnixNano(),
			})
			if err != nil {
				return fmt.Errorf("repository: badger encode %s: %w", msg.ID, err)
			}
			if err := txn.Set(badgerKey(msg), raw); err != nil {
				return fmt.Errorf("repository: badger put %s: %w", msg.ID, err)
			}
		}
		for _, msg := range batch.Deletes {
			if err := txn.Delete(badgerKey(msg)); err != nil {
				return fmt.Errorf("repository: badger delete %s: %w", msg.ID, err)
			}
		}
		return nil
	})
}

func (b *BadgerBackend) List(_ context.Context) ([]domain.ChatMessage, error) {
	var msgs []domain.ChatMessage
	err := b.db.View(func(txn *badger.Txn) error {
		prefix := []byte(badgerPrefix)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec badgerRecord
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return fmt.Errorf("repository: badger decode %q: %w", it.Item().Key(), err)
			}
			msgs = append(msgs, fromBadgerRecord(rec))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

func fromBadgerRecord(rec badgerRecord) domain.ChatMessage {
	return domain.ChatMessage{
		ID:         rec.ID,
		Text:       rec.Text,
		IsFromUser: rec.IsFromUser,
		Timestamp:  timeFromNanos(rec.CreatedAt),
	}
}

func (b *BadgerBackend) Close() error {
	return b.db.Close()
}
