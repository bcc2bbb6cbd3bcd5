package xid

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCarriesPrefixAndUUID(t *testing.T) {
	id := New("ntf")
	require.True(t, strings.HasPrefix(id, "ntf-"))

	_, err := uuid.Parse(strings.TrimPrefix(id, "ntf-"))
	assert.NoError(t, err)
	assert.NotEqual(t, id, New("ntf"))
}
