package answer

// CompletionRequest は補完サービスへの入力
type CompletionRequest struct {
	System string // 回答方針の指示
	Prompt string // スニペットと質問
}

// Citation は回答中の引用マーカーと元チャンクの対応
// Index はプロンプト構築に使った検索結果内の0始まりの位置
type Citation struct {
	Index   int    `json:"index"`
	ChunkID string `json:"chunkID"`
	Snippet string `json:"snippet"`
}

// Result は回答生成の結果
type Result struct {
	Answer    string     `json:"answer"`
	Citations []Citation `json:"citations"`
}
