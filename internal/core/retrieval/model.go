package retrieval

// Match は類似検索の1件分の結果を表す
// Snippet はストアに保存された先頭部分のみで、チャンク全文は保証されない
type Match struct {
	ChunkID  string            `json:"chunkID"`
	Score    float64           `json:"score"`
	Snippet  string            `json:"snippet"`
	Metadata map[string]string `json:"metadata,omitempty"`
}
