package answer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jinford/earnings-rag/internal/core/retrieval"
)

func TestExtractCitationIndices(t *testing.T) {
	tests := []struct {
		name string
		text string
		n    int
		want []int
	}{
		{name: "dedupe sort and drop out of range", text: "Revenue rose [2]. Margins held [0]. Again [2]. Guidance raised [5].", n: 4, want: []int{0, 2}},
		{name: "no markers", text: "No citations here.", n: 3, want: nil},
		{name: "non numeric brackets ignored", text: "See [a] and [ 1 ] and [1].", n: 2, want: []int{1}},
		{name: "overflowing integer dropped", text: "[99999999999999999999999] [0]", n: 1, want: []int{0}},
		{name: "adjacent markers", text: "Both [1][0].", n: 2, want: []int{0, 1}},
		{name: "empty match list", text: "[0]", n: 0, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractCitationIndices(tt.text, tt.n)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMapCitations(t *testing.T) {
	matches := []retrieval.Match{
		{ChunkID: "a_chunk000", Snippet: "alpha"},
		{ChunkID: "a_chunk001", Snippet: "beta"},
		{ChunkID: "b_chunk000", Snippet: "gamma"},
	}

	citations := MapCitations([]int{0, 2, 7}, matches)

	assert.Equal(t, []Citation{
		{Index: 0, ChunkID: "a_chunk000", Snippet: "alpha"},
		{Index: 2, ChunkID: "b_chunk000", Snippet: "gamma"},
	}, citations)
}
