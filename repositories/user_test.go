package repositories

import (
	"chat-relay/errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_Create_And_Get_User(t *testing.T) {
	req := require.New(t)
	repository := NewUserRepository(openTestDB(t))

	// When an account is created
	user, err := repository.CreateUser("alice@example.com", "hashed")
	req.NoError(err)
	req.NotEmpty(user.ID)
	req.Equal([]string{"user"}, user.Roles)

	// Then both lookup paths find it
	byID, err := repository.GetUserByID(user.ID)
	req.NoError(err)
	req.Equal(user.Email, byID.Email)
	byEmail, err := repository.GetUserByEmail("alice@example.com")
	req.NoError(err)
	req.Equal(user.ID, byEmail.ID)
}

func Test_Create_User_Duplicate_Email(t *testing.T) {
	req := require.New(t)
	repository := NewUserRepository(openTestDB(t))
	_, err := repository.CreateUser("alice@example.com", "hashed")
	req.NoError(err)

	// When the same email registers again
	_, err = repository.CreateUser("alice@example.com", "other-hash")

	// Then the write is refused
	req.ErrorIs(err, errors.ErrUserAlreadyExists)
}

func Test_Get_Unknown_User(t *testing.T) {
	req := require.New(t)
	repository := NewUserRepository(openTestDB(t))

	_, err := repository.GetUserByID("ghost")
	req.ErrorIs(err, errors.ErrNotFound)
	_, err = repository.GetUserByEmail("ghost@example.com")
	req.ErrorIs(err, errors.ErrNotFound)
}

func Test_HasRole(t *testing.T) {
	req := require.New(t)
	user := User{Roles: []string{"user", "admin"}}

	req.True(user.HasRole("admin"))
	req.False(User{Roles: []string{"user"}}.HasRole("admin"))
}
