package domain

import (
	"time"

	"github.com/google/uuid"
)

// Group is a durable entity. Membership is a relation between identities and
// groups owned by the membership repository; the group record itself carries
// only its identifier and name.
type Group struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
