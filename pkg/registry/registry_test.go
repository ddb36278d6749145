package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndGet(t *testing.T) {
	r := NewBaseRegistry[int]()

	require.NoError(t, r.Register("b", 2))
	require.NoError(t, r.Register("a", 1))

	got, ok := r.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, got)

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestRegisterRejectsDuplicatesAndEmptyNames(t *testing.T) {
	r := NewBaseRegistry[int]()

	require.NoError(t, r.Register("a", 1))
	assert.Error(t, r.Register("a", 2))
	assert.Error(t, r.Register("", 3))

	got, ok := r.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, got, "duplicate registration must not replace the entry")
}

func TestListAndNamesAreSorted(t *testing.T) {
	r := NewBaseRegistry[string]()

	require.NoError(t, r.Register("zeta", "z"))
	require.NoError(t, r.Register("alpha", "a"))
	require.NoError(t, r.Register("mid", "m"))

	assert.Equal(t, []string{"alpha", "mid", "zeta"}, r.Names())
	assert.Equal(t, []string{"a", "m", "z"}, r.List())
}
