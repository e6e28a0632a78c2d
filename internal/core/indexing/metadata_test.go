package indexing

import (
	"strings"
	"testing"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"

	"github.com/jinford/earnings-rag/internal/core/chunking"
)

func TestResolveQuarter(t *testing.T) {
	tests := []struct {
		stem string
		want string
	}{
		{stem: "acme-earnings-Q1-2024", want: "Q1-2024"},
		{stem: "acme_q3fy24_CEO", want: "Q3-2024"},
		{stem: "ACME Q4 2023 transcript", want: "Q4-2023"},
		{stem: "acme-2024-Q2", want: "Q2-2024"},
		{stem: "FY2025Q1-call", want: "Q1-2025"},
		{stem: "annual-report", want: Unknown},
		{stem: "acme-Q5-2024", want: Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.stem, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveQuarter(tt.stem))
		})
	}
}

func TestResolveSpeaker(t *testing.T) {
	assert.Equal(t, "CEO", ResolveSpeaker("acme-Q1-2024-ceo"))
	assert.Equal(t, "CFO", ResolveSpeaker("acme_Q1_2024_CFO_remarks"))
	assert.Equal(t, Unknown, ResolveSpeaker("acme-Q1-2024"))
	assert.Equal(t, Unknown, ResolveSpeaker("director-notes"))
}

func TestSnippet_TruncatesByRune(t *testing.T) {
	short := "Revenue was up."
	assert.Equal(t, short, Snippet(short))

	long := strings.Repeat("é", 250)
	got := Snippet(long)
	assert.Equal(t, SnippetLength, len([]rune(got)))
	assert.Equal(t, strings.Repeat("é", SnippetLength), got)
}

func TestBuildMetadata(t *testing.T) {
	chunk := chunking.Chunk{
		ID:      "acme-Q2-2024-CFO_chunk004",
		Text:    "Operating margin expanded to 31 percent.",
		Source:  "acme-Q2-2024-CFO",
		Ordinal: 4,
		Page:    mo.Some(3),
	}

	meta := BuildMetadata(chunk)

	assert.Equal(t, map[string]string{
		MetaSource:  "acme-Q2-2024-CFO",
		MetaSnippet: "Operating margin expanded to 31 percent.",
		MetaQuarter: "Q2-2024",
		MetaSpeaker: "CFO",
		MetaPage:    "3",
		MetaOrdinal: "4",
	}, meta)
}

func TestBuildMetadata_WithoutPage(t *testing.T) {
	meta := BuildMetadata(chunking.Chunk{ID: "x_chunk000", Text: "t", Source: "x"})

	_, ok := meta[MetaPage]
	assert.False(t, ok)
	assert.Equal(t, Unknown, meta[MetaQuarter])
	assert.Equal(t, Unknown, meta[MetaSpeaker])
}
