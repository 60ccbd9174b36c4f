package auth

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticToken(t *testing.T) {
	tok := NewStaticToken("  abc \n")
	assert.Equal(t, "abc", tok.Token())

	tok.Clear()
	assert.Empty(t, tok.Token())

	tok.Set("def")
	assert.Equal(t, "def", tok.Token())
}

func TestFileToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	tok := NewFileToken(path)

	assert.Empty(t, tok.Token(), "missing file reads as no token")

	require.NoError(t, tok.Store("secret"))
	assert.Equal(t, "secret", tok.Token())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	tok.Clear()
	assert.Empty(t, tok.Token())
	assert.NoFileExists(t, path)
}

func TestResolve(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(path, []byte("from-file"), 0o600))

	src, err := Resolve("inline", path)
	require.NoError(t, err)
	assert.Equal(t, "inline", src.Token())

	src, err = Resolve("", path)
	require.NoError(t, err)
	assert.Equal(t, "from-file", src.Token())

	src, err = Resolve("", "")
	require.NoError(t, err)
	assert.Empty(t, src.Token())
}
