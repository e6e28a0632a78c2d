package answer

import (
	"regexp"
	"slices"
	"strconv"

	"github.com/jinford/earnings-rag/internal/core/retrieval"
)

var citationPattern = regexp.MustCompile(`\[(\d+)\]`)

// ExtractCitationIndices は回答テキストから角括弧付きの整数を抽出する
// 重複を除いて昇順に並べ、[0, n) の範囲外や解釈できない値は黙って捨てる
func ExtractCitationIndices(text string, n int) []int {
	var indices []int
	for _, m := range citationPattern.FindAllStringSubmatch(text, -1) {
		idx, err := strconv.Atoi(m[1])
		if err != nil || idx < 0 || idx >= n {
			continue
		}
		indices = append(indices, idx)
	}

	slices.Sort(indices)
	return slices.Compact(indices)
}

// MapCitations は引用位置を元チャンクのIDとスニペットに対応付ける
func MapCitations(indices []int, matches []retrieval.Match) []Citation {
	citations := make([]Citation, 0, len(indices))
	for _, idx := range indices {
		if idx < 0 || idx >= len(matches) {
			continue
		}
		citations = append(citations, Citation{
			Index:   idx,
			ChunkID: matches[idx].ChunkID,
			Snippet: matches[idx].Snippet,
		})
	}
	return citations
}
