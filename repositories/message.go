package repositories

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

type IMessageRepository interface {
	Insert(message domain.Message) (domain.Message, error)
	InsertBatch(messages []domain.Message) ([]domain.Message, error)
	FindByID(messageID uuid.UUID) (domain.Message, error)
	Delete(messageID uuid.UUID) (bool, error)
	ListBetween(identityA, identityB string) ([]domain.Message, error)
	ListForGroup(groupID uuid.UUID) ([]domain.Message, error)
	DeleteForGroup(groupID uuid.UUID) (int, error)
}

// MessageRepository persists messages in BadgerDB.
//
// Each message has one primary record "msg:{uuid}" plus one index key whose
// layout encodes the listing order:
//   - direct:  "conv:{a}:{b}:{timestamp_padded}:{uuid}"  (a, b sorted pair)
//   - group:   "gmsg:{group}:{timestamp_padded}:{uuid}"
//
// The 19-digit zero-padded UnixNano timestamp makes lexicographic iteration
// chronological; the trailing UUID disambiguates two messages landing on the
// same nanosecond. Index values hold the message id, the primary record
// holds the full row.
type MessageRepository struct {
	db            *badger.DB
	log           *slog.Logger
	limitMessages *int
}

func NewMessageRepository(db *badger.DB, log *slog.Logger, limitMessages *int) MessageRepository {
	return MessageRepository{db: db, log: log, limitMessages: limitMessages}
}

type diskMessage struct {
	ID            uuid.UUID  `json:"id"`
	SenderID      string     `json:"sender_id"`
	RecipientID   string     `json:"recipient_id"`
	GroupID       *uuid.UUID `json:"group_id,omitempty"`
	Content       string     `json:"content"`
	AttachmentURL string     `json:"attachment_url,omitempty"`
	Lang          string     `json:"lang,omitempty"`
	At            int64      `json:"at"`
	Read          bool       `json:"read"`
}

func primaryKey(messageID uuid.UUID) []byte {
	return []byte("msg:" + messageID.String())
}

// indexKey derives the listing key for a message from its own fields, so
// deletion can reconstruct and remove it without a separate lookup.
func indexKey(m domain.Message) []byte {
	ts := fmt.Sprintf("%019d", m.CreatedAt.UnixNano())
	if m.IsGroupMessage() {
		return []byte(fmt.Sprintf("gmsg:%s:%s:%s", m.GroupID, ts, m.ID))
	}
	a, b := m.SenderID, m.RecipientID
	if a > b {
		a, b = b, a
	}
	return []byte(fmt.Sprintf("conv:%s:%s:%s:%s", a, b, ts, m.ID))
}

func (r MessageRepository) Insert(message domain.Message) (domain.Message, error) {
	inserted, err := r.InsertBatch([]domain.Message{message})
	if err != nil {
		return domain.Message{}, err
	}
	return inserted[0], nil
}

// InsertBatch persists every row in a single transaction: all rows are
// committed or none are. Rows come back in insertion order.
func (r MessageRepository) InsertBatch(messages []domain.Message) ([]domain.Message, error) {
	err := r.db.Update(func(txn *badger.Txn) error {
		for _, message := range messages {
			data, err := json.Marshal(fromMessage(message))
			if err != nil {
				return err
			}
			if err = txn.Set(primaryKey(message.ID), data); err != nil {
				return err
			}
			if err = txn.Set(indexKey(message), []byte(message.ID.String())); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("insert batch of %d messages: %w", len(messages), err)
	}
	return messages, nil
}

func (r MessageRepository) FindByID(messageID uuid.UUID) (domain.Message, error) {
	var record diskMessage
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(primaryKey(messageID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &record)
		})
	})
	if err != nil {
		if stderrors.Is(err, badger.ErrKeyNotFound) {
			return domain.Message{}, fmt.Errorf("%w: message %s", errors.ErrNotFound, messageID)
		}
		return domain.Message{}, err
	}
	return toMessage(record), nil
}

// Delete removes one row and its index entry. For a group message only the
// addressed per-recipient copy goes away; sibling rows are untouched.
func (r MessageRepository) Delete(messageID uuid.UUID) (bool, error) {
	message, err := r.FindByID(messageID)
	if err != nil {
		if stderrors.Is(err, errors.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	err = r.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(primaryKey(messageID)); err != nil {
			return err
		}
		return txn.Delete(indexKey(message))
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListBetween returns the direct conversation between two identities,
// ordered by creation time.
func (r MessageRepository) ListBetween(identityA, identityB string) ([]domain.Message, error) {
	a, b := identityA, identityB
	if a > b {
		a, b = b, a
	}
	return r.listByPrefix(fmt.Sprintf("conv:%s:%s:", a, b))
}

// ListForGroup returns every persisted per-recipient row of the group,
// ordered by creation time.
func (r MessageRepository) ListForGroup(groupID uuid.UUID) ([]domain.Message, error) {
	return r.listByPrefix(fmt.Sprintf("gmsg:%s:", groupID))
}

func (r MessageRepository) listByPrefix(prefixStr string) ([]domain.Message, error) {
	var ids []uuid.UUID
	prefix := []byte(prefixStr)

	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if r.limitMessages != nil && len(ids) == *r.limitMessages {
				r.log.Debug(fmt.Sprintf("Maximum of %d messages reached", *r.limitMessages))
				break
			}
			err := it.Item().Value(func(val []byte) error {
				id, err := uuid.Parse(string(val))
				if err != nil {
					return err
				}
				ids = append(ids, id)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	messages := make([]domain.Message, 0, len(ids))
	for _, id := range ids {
		message, err := r.FindByID(id)
		if err != nil {
			return nil, err
		}
		messages = append(messages, message)
	}
	return messages, nil
}

// DeleteForGroup removes every per-recipient row of the group in one
// transaction. Returns how many rows went away.
func (r MessageRepository) DeleteForGroup(groupID uuid.UUID) (int, error) {
	removed := 0
	err := r.db.Update(func(txn *badger.Txn) error {
		var err error
		removed, err = deleteGroupMessages(txn, groupID)
		return err
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// deleteGroupMessages removes the group's per-recipient rows and listing
// keys inside the given transaction, so callers can combine the message
// cascade with other deletions in one commit.
func deleteGroupMessages(txn *badger.Txn, groupID uuid.UUID) (int, error) {
	prefix := []byte(fmt.Sprintf("gmsg:%s:", groupID))

	var listingKeys [][]byte
	var messageIDs []uuid.UUID
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		listingKeys = append(listingKeys, it.Item().KeyCopy(nil))
		err := it.Item().Value(func(val []byte) error {
			id, err := uuid.Parse(string(val))
			if err != nil {
				return err
			}
			messageIDs = append(messageIDs, id)
			return nil
		})
		if err != nil {
			it.Close()
			return 0, err
		}
	}
	it.Close()

	for i, key := range listingKeys {
		if err := txn.Delete(key); err != nil {
			return 0, err
		}
		if err := txn.Delete(primaryKey(messageIDs[i])); err != nil {
			return 0, err
		}
	}
	return len(listingKeys), nil
}

func fromMessage(m domain.Message) diskMessage {
	return diskMessage{
		ID:            m.ID,
		SenderID:      m.SenderID,
		RecipientID:   m.RecipientID,
		GroupID:       m.GroupID,
		Content:       m.Content,
		AttachmentURL: m.AttachmentURL,
		Lang:          m.Lang,
		At:            m.CreatedAt.UnixNano(),
		Read:          m.Read,
	}
}

func toMessage(d diskMessage) domain.Message {
	return domain.Message{
		ID:            d.ID,
		SenderID:      d.SenderID,
		RecipientID:   d.RecipientID,
		GroupID:       d.GroupID,
		Content:       d.Content,
		AttachmentURL: d.AttachmentURL,
		Lang:          d.Lang,
		CreatedAt:     time.Unix(0, d.At).UTC(),
		Read:          d.Read,
	}
}
