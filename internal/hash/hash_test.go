package hash

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashAndCheck(t *testing.T) {
	t.Parallel()

	h, err := HashPassword("secret1", bcrypt.MinCost)
	require.NoError(t, err)
	assert.NotEqual(t, "secret1", h)

	assert.True(t, CheckPassword(h, "secret1"))
	assert.False(t, CheckPassword(h, "secret2"))
	assert.False(t, CheckPassword("not-a-hash", "secret1"))
}

func TestValidateLength(t *testing.T) {
	t.Parallel()
	require.NoError(t, ValidateLength(strings.Repeat("a", 72)))
	assert.ErrorIs(t, ValidateLength(strings.Repeat("a", 73)), ErrPasswordTooLong)
}
