package id

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)

	got, err := New("")
	require.NoError(err)
	assert.Len(got, 10)

	got, err = New("rp")
	require.NoError(err)
	assert.True(strings.HasPrefix(got, "rp_"))
	assert.Len(got, len("rp_")+10)

	first, err := New("rp")
	require.NoError(err)
	second, err := New("rp")
	require.NoError(err)
	assert.NotEqual(first, second)
}
