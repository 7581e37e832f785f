package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExists(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "present")
	require.NoError(t, os.WriteFile(f, []byte("x"), 0644))

	require.True(t, Exists(f))
	require.False(t, Exists(filepath.Join(dir, "absent")))
}

func TestBothExistsAndBothNotExists(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a")
	b := filepath.Join(dir, "b")

	require.True(t, BothNotExists(a, b))
	require.False(t, BothExists(a, b))

	require.NoError(t, os.WriteFile(a, []byte("x"), 0644))
	require.False(t, BothExists(a, b))
	require.False(t, BothNotExists(a, b))

	require.NoError(t, os.WriteFile(b, []byte("x"), 0644))
	require.True(t, BothExists(a, b))
	require.False(t, BothNotExists(a, b))
}
