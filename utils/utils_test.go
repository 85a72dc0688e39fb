package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDataFileCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	path, err := DataFile(dir, "offsets.db")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "offsets.db"), path)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	require.True(t, info.IsDir())

	_, err = DataFile("", "offsets.db")
	require.Error(t, err)
}
