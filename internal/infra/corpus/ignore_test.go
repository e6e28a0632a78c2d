package corpus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIgnoreFilter_Defaults(t *testing.T) {
	f, err := NewIgnoreFilter(t.TempDir())
	require.NoError(t, err)

	assert.True(t, f.ShouldIgnore(".DS_Store"))
	assert.True(t, f.ShouldIgnore(IgnoreFileName))
	assert.True(t, f.ShouldIgnore("upload.part"))
	assert.False(t, f.ShouldIgnore("acme-Q1-2024.pdf"))
}

func TestIgnoreFilter_CustomPatterns(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, IgnoreFileName, "\n# comment\r\nscratch/\n*.bak.txt\n")

	f, err := NewIgnoreFilter(dir)
	require.NoError(t, err)

	assert.True(t, f.ShouldIgnore("scratch/notes.txt"))
	assert.True(t, f.ShouldIgnore("acme.bak.txt"))
	assert.False(t, f.ShouldIgnore("acme.txt"))
}

func TestIgnoreFilter_NilIgnoresNothing(t *testing.T) {
	var f *IgnoreFilter

	assert.False(t, f.ShouldIgnore("anything"))
}
