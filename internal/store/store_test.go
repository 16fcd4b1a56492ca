package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequireUUID(t *testing.T) {
	t.Parallel()

	id, err := requireUUID("  550e8400-e29b-41d4-a716-446655440000  ", "org_id")
	require.NoError(t, err)
	assert.Equal(t, "550e8400-e29b-41d4-a716-446655440000", id)

	for _, bad := range []string{"", "not-a-uuid", "550e8400'; DROP TABLE organizations; --"} {
		_, err := requireUUID(bad, "org_id")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "org_id")
	}
}

func TestErrorTypes(t *testing.T) {
	t.Parallel()

	assert.NotEqual(t, ErrNotFound, ErrInvalidStatus)
	assert.Contains(t, ErrNotFound.Error(), "not found")
	assert.Contains(t, ErrInvalidStatus.Error(), "status")
}
