package repositories

import (
	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

type IGroupCascade interface {
	Erase(groupID uuid.UUID) (bool, int, error)
}

// GroupCascade removes a group and everything hanging off it in a single
// transaction: the group record, every membership row with its reverse index
// entry, and every per-recipient message row with its listing key. One
// commit, so a crash can never strand half the cascade.
type GroupCascade struct {
	db *badger.DB
}

func NewGroupCascade(db *badger.DB) GroupCascade {
	return GroupCascade{db: db}
}

// Erase reports whether the group existed and how many message rows went
// away with it.
func (c GroupCascade) Erase(groupID uuid.UUID) (bool, int, error) {
	var existed bool
	var removed int
	err := c.db.Update(func(txn *badger.Txn) error {
		var err error
		if removed, err = deleteGroupMessages(txn, groupID); err != nil {
			return err
		}
		existed, err = deleteGroupMemberships(txn, groupID)
		return err
	})
	if err != nil {
		return false, 0, err
	}
	return existed, removed, nil
}
