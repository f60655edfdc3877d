package identity

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"staffdesk.org/internal/auth"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("correct horse battery")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=65536,t=2,p=1$"))

	other, err := HashPassword("correct horse battery")
	require.NoError(t, err)
	require.NotEqual(t, hash, other, "salt must differ")

	require.NoError(t, VerifyPassword(hash, "correct horse battery"))
	err = VerifyPassword(hash, "correct horse battery!")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	require.ErrorIs(t, err, auth.ErrUnauthenticated)
}

func TestVerifyPasswordMalformedHash(t *testing.T) {
	for _, encoded := range []string{
		"",
		"$2a$10$bcrypt",
		"$argon2id$v=18$m=65536,t=2,p=1$c2FsdA$a2V5",
		"$argon2id$v=19$m=x,t=2,p=1$c2FsdA$a2V5",
		"$argon2id$v=19$m=65536,t=2,p=1$!!$a2V5",
	} {
		err := VerifyPassword(encoded, "pw")
		require.Error(t, err, encoded)
		require.NotErrorIs(t, err, ErrInvalidCredentials, encoded)
	}
}

func TestValidatePassword(t *testing.T) {
	require.ErrorIs(t, ValidatePassword("short"), auth.ErrInvalidInput)
	require.NoError(t, ValidatePassword(strings.Repeat("x", MinPasswordLength)))
}
