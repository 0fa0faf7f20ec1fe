package repositories

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

type IMembershipRepository interface {
	CreateGroup(name string) (domain.Group, error)
	GetGroup(groupID uuid.UUID) (domain.Group, error)
	GroupExists(groupID uuid.UUID) (bool, error)
	DeleteGroup(groupID uuid.UUID) (bool, error)
	IsMember(identity string, groupID uuid.UUID) (bool, error)
	ListMembers(groupID uuid.UUID) ([]string, error)
	AddMembership(identity string, groupID uuid.UUID) error
	RemoveMembership(identity string, groupID uuid.UUID) (bool, error)
	ListGroupsForIdentity(identity string) ([]domain.Group, error)
}

// MembershipRepository owns the durable group/member relation in BadgerDB.
//
// Keys:
//   - "group:{gid}"                group record (JSON)
//   - "member:{gid}:{identity}"    membership row, value unused
//   - "idxmember:{identity}:{gid}" reverse index for per-identity listings
//
// Membership rows are written and removed pairwise with their reverse index
// inside one transaction so the two views never diverge.
type MembershipRepository struct {
	db *badger.DB
}

func NewMembershipRepository(db *badger.DB) MembershipRepository {
	return MembershipRepository{db: db}
}

type diskGroup struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt int64     `json:"created_at"`
}

func groupKey(groupID uuid.UUID) []byte {
	return []byte("group:" + groupID.String())
}

func memberKey(groupID uuid.UUID, identity string) []byte {
	return []byte(fmt.Sprintf("member:%s:%s", groupID, identity))
}

func memberIndexKey(identity string, groupID uuid.UUID) []byte {
	return []byte(fmt.Sprintf("idxmember:%s:%s", identity, groupID))
}

func (r MembershipRepository) CreateGroup(name string) (domain.Group, error) {
	group := domain.Group{
		ID:        uuid.New(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(diskGroup{
		ID:        group.ID,
		Name:      group.Name,
		CreatedAt: group.CreatedAt.UnixNano(),
	})
	if err != nil {
		return domain.Group{}, err
	}

	err = r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(groupKey(group.ID), data)
	})
	if err != nil {
		return domain.Group{}, err
	}
	return group, nil
}

func (r MembershipRepository) GetGroup(groupID uuid.UUID) (domain.Group, error) {
	var record diskGroup
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(groupKey(groupID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &record)
		})
	})
	if err != nil {
		if stderrors.Is(err, badger.ErrKeyNotFound) {
			return domain.Group{}, fmt.Errorf("%w: group %s", errors.ErrNotFound, groupID)
		}
		return domain.Group{}, err
	}
	return domain.Group{
		ID:        record.ID,
		Name:      record.Name,
		CreatedAt: time.Unix(0, record.CreatedAt).UTC(),
	}, nil
}

func (r MembershipRepository) GroupExists(groupID uuid.UUID) (bool, error) {
	_, err := r.GetGroup(groupID)
	if err != nil {
		if stderrors.Is(err, errors.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// DeleteGroup removes the group record and cascades every membership row and
// reverse index entry in a single transaction. The message cascade belongs
// to GroupCascade, not here. Returns false when the group never existed.
func (r MembershipRepository) DeleteGroup(groupID uuid.UUID) (bool, error) {
	existed := false
	err := r.db.Update(func(txn *badger.Txn) error {
		var err error
		existed, err = deleteGroupMemberships(txn, groupID)
		return err
	})
	if err != nil {
		return false, err
	}
	return existed, nil
}

// deleteGroupMemberships removes the group record plus every membership row
// and reverse index entry inside the given transaction. Reports whether the
// group existed.
func deleteGroupMemberships(txn *badger.Txn, groupID uuid.UUID) (bool, error) {
	if _, err := txn.Get(groupKey(groupID)); err != nil {
		if stderrors.Is(err, badger.ErrKeyNotFound) {
			return false, nil
		}
		return false, err
	}

	prefixStr := fmt.Sprintf("member:%s:", groupID)
	prefix := []byte(prefixStr)
	var identities []string
	options := badger.DefaultIteratorOptions
	options.PrefetchValues = false
	it := txn.NewIterator(options)
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		identities = append(identities, string(it.Item().Key()[len(prefixStr):]))
	}
	it.Close()

	if err := txn.Delete(groupKey(groupID)); err != nil {
		return false, err
	}
	for _, identity := range identities {
		if err := txn.Delete(memberKey(groupID, identity)); err != nil {
			return false, err
		}
		if err := txn.Delete(memberIndexKey(identity, groupID)); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (r MembershipRepository) IsMember(identity string, groupID uuid.UUID) (bool, error) {
	found := false
	err := r.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(memberKey(groupID, identity))
		if err != nil {
			if stderrors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		found = true
		return nil
	})
	return found, err
}

// ListMembers returns the group's member identities in deterministic
// (lexicographic) order.
func (r MembershipRepository) ListMembers(groupID uuid.UUID) ([]string, error) {
	var members []string
	prefixStr := fmt.Sprintf("member:%s:", groupID)
	prefix := []byte(prefixStr)

	err := r.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			members = append(members, string(it.Item().Key()[len(prefixStr):]))
		}
		return nil
	})
	return members, err
}

func (r MembershipRepository) AddMembership(identity string, groupID uuid.UUID) error {
	return r.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(memberKey(groupID, identity), nil); err != nil {
			return err
		}
		return txn.Set(memberIndexKey(identity, groupID), nil)
	})
}

// RemoveMembership deletes the membership row. Returns false when the
// identity was not a member.
func (r MembershipRepository) RemoveMembership(identity string, groupID uuid.UUID) (bool, error) {
	existed := false
	err := r.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(memberKey(groupID, identity)); err != nil {
			if stderrors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		existed = true
		if err := txn.Delete(memberKey(groupID, identity)); err != nil {
			return err
		}
		return txn.Delete(memberIndexKey(identity, groupID))
	})
	if err != nil {
		return false, err
	}
	return existed, nil
}

// ListGroupsForIdentity resolves every group the identity is a durable
// member of, via the reverse index.
func (r MembershipRepository) ListGroupsForIdentity(identity string) ([]domain.Group, error) {
	var groupIDs []uuid.UUID
	prefixStr := fmt.Sprintf("idxmember:%s:", identity)
	prefix := []byte(prefixStr)

	err := r.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			id, err := uuid.Parse(string(it.Item().Key()[len(prefixStr):]))
			if err != nil {
				return err
			}
			groupIDs = append(groupIDs, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	groups := make([]domain.Group, 0, len(groupIDs))
	for _, id := range groupIDs {
		group, err := r.GetGroup(id)
		if err != nil {
			return nil, err
		}
		groups = append(groups, group)
	}
	return groups, nil
}
