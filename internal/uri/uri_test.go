package uri

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathToFileURIAndBack(t *testing.T) {
	tmp := t.TempDir()
	absFile := filepath.Join(tmp, "Proof.lean")

	u, err := PathToFileURI(absFile)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u, "file://"))

	back, err := FileURIToPath(u)
	require.NoError(t, err)
	assert.Equal(t, filepath.Clean(absFile), filepath.Clean(back))
}

func TestNormalizePassesOtherSchemesThrough(t *testing.T) {
	assert.Equal(t, "https://example.com/x", Normalize("https://example.com/x"))
	assert.Equal(t, "file:///already/there", Normalize("file:///already/there"))
}

func TestNormalizeConvertsLocalPath(t *testing.T) {
	got := Normalize("Proof.lean")
	assert.True(t, strings.HasPrefix(got, "file://"))
}

func TestFileURIToPathRejectsNonFileScheme(t *testing.T) {
	_, err := FileURIToPath("https://example.com/x")
	assert.Error(t, err)
}

func TestFileURIToPathWithSpaces(t *testing.T) {
	tmp := t.TempDir()
	p := filepath.Join(tmp, "dir with space", "Proof.lean")

	u, err := PathToFileURI(p)
	require.NoError(t, err)

	got, err := FileURIToPath(u)
	require.NoError(t, err)
	assert.Equal(t, filepath.Clean(p), filepath.Clean(got))
}

func TestIsWindowsAbsPath(t *testing.T) {
	assert.True(t, IsWindowsAbsPath(`C:\proof\Foo.lean`))
	assert.True(t, IsWindowsAbsPath("D:/proof/Foo.lean"))
	assert.False(t, IsWindowsAbsPath("/home/user/Foo.lean"))
	assert.False(t, IsWindowsAbsPath("x"))
}
