package chunking

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/earnings-rag/internal/shared/apperr"
)

func words(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("w%d", i)
	}
	return strings.Join(parts, " ")
}

func TestNew_RejectsInvalidWindow(t *testing.T) {
	tests := []struct {
		name    string
		maxSize int
		overlap int
	}{
		{name: "overlap equals max size", maxSize: 100, overlap: 100},
		{name: "overlap exceeds max size", maxSize: 100, overlap: 150},
		{name: "zero max size", maxSize: 0, overlap: 0},
		{name: "negative overlap", maxSize: 10, overlap: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.maxSize, tt.overlap)
			require.Error(t, err)
			assert.Nil(t, c)
			assert.True(t, apperr.IsConfiguration(err))
		})
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "revenue grew 12% year over year", Normalize("  revenue\tgrew\n\n12%   year over\r\nyear  "))
	assert.Equal(t, "", Normalize(" \n\t "))
}

func TestWindows_ScenarioFromEarningsCall(t *testing.T) {
	c, err := New(1000, 200)
	require.NoError(t, err)

	windows := c.Windows(2500)

	assert.Equal(t, []Window{
		{Start: 0, End: 1000},
		{Start: 800, End: 1800},
		{Start: 1600, End: 2500},
	}, windows)
}

func TestWindows_CoverageAndOverlap(t *testing.T) {
	for _, cfg := range []struct{ m, o int }{{5, 0}, {5, 2}, {7, 6}, {10, 3}, {1, 0}} {
		c, err := New(cfg.m, cfg.o)
		require.NoError(t, err)

		for n := 0; n <= 40; n++ {
			windows := c.Windows(n)
			if n == 0 {
				assert.Empty(t, windows)
				continue
			}

			covered := make([]bool, n)
			for _, w := range windows {
				assert.LessOrEqual(t, w.End-w.Start, cfg.m)
				for i := w.Start; i < w.End; i++ {
					covered[i] = true
				}
			}
			for i, ok := range covered {
				assert.True(t, ok, "token %d not covered (n=%d m=%d o=%d)", i, n, cfg.m, cfg.o)
			}

			assert.Equal(t, 0, windows[0].Start)
			assert.Equal(t, n, windows[len(windows)-1].End)
			for i := 1; i < len(windows); i++ {
				assert.Equal(t, cfg.o, windows[i-1].End-windows[i].Start,
					"window %d overlap (n=%d m=%d o=%d)", i, n, cfg.m, cfg.o)
			}
		}
	}
}

func TestSplit(t *testing.T) {
	c, err := New(4, 1)
	require.NoError(t, err)

	chunks := c.Split("  a b\n c   d e f g  ")

	assert.Equal(t, []string{"a b c d", "d e f g"}, chunks)
}

func TestSplit_EmptyText(t *testing.T) {
	c, err := New(DefaultMaxSize, DefaultOverlap)
	require.NoError(t, err)

	assert.Empty(t, c.Split(""))
	assert.Empty(t, c.Split("   \n\t"))
}

func TestChunkDocument_IDsAndPages(t *testing.T) {
	c, err := New(3, 1)
	require.NoError(t, err)

	doc := Document{
		Source: "acme-Q1-2024",
		Pages: []Page{
			{Number: 1, Text: "one two"},
			{Number: 2, Text: "three four five"},
		},
	}

	chunks := c.ChunkDocument(doc)

	require.Len(t, chunks, 2)
	assert.Equal(t, "acme-Q1-2024_chunk000", chunks[0].ID)
	assert.Equal(t, "one two three", chunks[0].Text)
	assert.Equal(t, 1, chunks[0].Page.MustGet())
	assert.Equal(t, "acme-Q1-2024_chunk001", chunks[1].ID)
	assert.Equal(t, "three four five", chunks[1].Text)
	assert.Equal(t, 2, chunks[1].Page.MustGet())
	assert.Equal(t, 1, chunks[1].Ordinal)
}

func TestChunkDocument_UnknownPageAndDeterminism(t *testing.T) {
	c, err := New(10, 2)
	require.NoError(t, err)

	doc := Document{Source: "call", Pages: []Page{{Text: words(25)}}}

	first := c.ChunkDocument(doc)
	second := c.ChunkDocument(doc)

	require.Len(t, first, 3)
	assert.Equal(t, first, second)
	for _, ch := range first {
		assert.True(t, ch.Page.IsAbsent())
	}
}

func TestChunkID(t *testing.T) {
	assert.Equal(t, "call_chunk007", ChunkID("call", 7))
	assert.Equal(t, "call_chunk1234", ChunkID("call", 1234))
}
