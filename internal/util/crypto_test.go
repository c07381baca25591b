package util

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func TestRandomCode(t *testing.T) {
	t.Run("uses only the alphabet", func(t *testing.T) {
		for i := 0; i < 100; i++ {
			code, err := RandomCode(alphabet, 5)
			require.NoError(t, err)
			assert.Len(t, code, 5)
			assert.True(t, IsValidSessionCode(code, alphabet, 5))
		}
	})

	t.Run("codes vary", func(t *testing.T) {
		seen := map[string]bool{}
		for i := 0; i < 50; i++ {
			code, _ := RandomCode(alphabet, 5)
			seen[code] = true
		}
		assert.Greater(t, len(seen), 40)
	})
}

func TestCheckPasswordHash(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	require.NoError(t, err)

	assert.True(t, CheckPasswordHash("secret", string(hash)))
	assert.False(t, CheckPasswordHash("wrong", string(hash)))
}

func TestMaskID(t *testing.T) {
	assert.Equal(t, "****", MaskID("abc"))
	assert.Equal(t, "12345678-****", MaskID("12345678-aaaa-bbbb"))
}

func TestValidation(t *testing.T) {
	t.Run("uuid", func(t *testing.T) {
		assert.True(t, IsValidUUID(uuid.NewString()))
		assert.False(t, IsValidUUID(""))
		assert.False(t, IsValidUUID("not-a-uuid"))
	})

	t.Run("session code", func(t *testing.T) {
		assert.Equal(t, "AB2CD", NormalizeSessionCode(" ab2cd "))
		assert.False(t, IsValidSessionCode("AB0CD", alphabet, 5))
		assert.False(t, IsValidSessionCode("ABCD", alphabet, 5))
	})

	t.Run("display name", func(t *testing.T) {
		name, ok := CleanDisplayName("  Priya_K-2 ", 30)
		assert.True(t, ok)
		assert.Equal(t, "Priya_K-2", name)

		_, ok = CleanDisplayName("   ", 30)
		assert.False(t, ok)
		_, ok = CleanDisplayName("<script>", 30)
		assert.False(t, ok)
		_, ok = CleanDisplayName(strings.Repeat("a", 31), 30)
		assert.False(t, ok)
		_, ok = CleanDisplayName("Zoë", 30)
		assert.True(t, ok)
	})

	t.Run("category", func(t *testing.T) {
		c, ok := CleanCategory(" animals ", 50)
		assert.True(t, ok)
		assert.Equal(t, "animals", c)
		_, ok = CleanCategory("", 50)
		assert.False(t, ok)
	})
}
