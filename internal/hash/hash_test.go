package hash_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tagbox/core/internal/hash"
)

func writeTemp(t *testing.T, content []byte) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.bin")
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}

func TestFile_Deterministic(t *testing.T) {
	path := writeTemp(t, []byte("the quick brown fox"))
	for _, algo := range []string{hash.MD5, hash.SHA256, hash.SHA512, hash.Blake2b, hash.Blake3, hash.XXH3_64, hash.XXH3_128} {
		a, err := hash.File(path, algo)
		require.NoError(t, err)
		b, err := hash.File(path, algo)
		require.NoError(t, err)
		assert.Equal(t, a, b, "algorithm %s should be deterministic", algo)
		assert.NotEmpty(t, a)
	}
}

func TestFile_ZeroByte(t *testing.T) {
	path := writeTemp(t, []byte{})
	sum, err := hash.File(path, hash.SHA256)
	require.NoError(t, err)
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", sum)
}

func TestFile_UnsupportedAlgorithm(t *testing.T) {
	path := writeTemp(t, []byte("x"))
	_, err := hash.File(path, "rot13")
	require.Error(t, err)
}

func TestFile_MissingFile(t *testing.T) {
	_, err := hash.File(filepath.Join(t.TempDir(), "missing"), hash.SHA256)
	require.Error(t, err)
}

func TestValid(t *testing.T) {
	assert.True(t, hash.Valid(hash.Blake3))
	assert.False(t, hash.Valid("not-a-real-algorithm"))
}
