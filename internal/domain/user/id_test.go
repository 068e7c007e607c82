package user

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "user-crud-service/pkg/errors"
)

func TestParseID(t *testing.T) {
	t.Run("canonical", func(t *testing.T) {
		id := NewID()
		got, err := ParseID(id)
		require.NoError(t, err)
		assert.Equal(t, id, got)
	})

	t.Run("uppercase is canonicalised", func(t *testing.T) {
		got, err := ParseID("6BA7B810-9DAD-11D1-80B4-00C04FD430C8")
		require.NoError(t, err)
		assert.Equal(t, "6ba7b810-9dad-11d1-80b4-00c04fd430c8", got)
	})

	for _, raw := range []string{"", "abc", "123", "6ba7b810-9dad-11d1-80b4", "not-a-uuid-at-all-000000000000000000"} {
		t.Run("malformed "+raw, func(t *testing.T) {
			_, err := ParseID(raw)
			require.Error(t, err)
			assert.Equal(t, apperrors.KindMalformedID, apperrors.KindOf(err))
		})
	}
}
