package services

import (
	"sync"

	"github.com/google/uuid"
)

// GroupLocks hands out one mutex per group. Sends and membership changes for
// the same group serialize on it, which keeps persistence order equal to
// fan-out order and keeps authorization reads from racing the writes they
// gate; unrelated groups proceed concurrently.
type GroupLocks struct {
	locks sync.Map // uuid.UUID -> *sync.Mutex
}

func NewGroupLocks() *GroupLocks {
	return &GroupLocks{}
}

// Lock acquires the group's mutex and returns its release function.
func (l *GroupLocks) Lock(groupID uuid.UUID) func() {
	v, _ := l.locks.LoadOrStore(groupID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Release drops the group's mutex once the group is durably gone, so deleted
// groups do not pin a mutex for the process lifetime. Group ids are never
// reused, and every operation behind the old mutex fails its membership check
// after deletion anyway.
func (l *GroupLocks) Release(groupID uuid.UUID) {
	l.locks.Delete(groupID)
}
