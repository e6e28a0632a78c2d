package conversation

import (
	"github.com/jinford/earnings-rag/internal/core/answer"
	"github.com/jinford/earnings-rag/internal/core/retrieval"
)

// Turn は1往復分の質問と回答
type Turn struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Route は質問がどの分岐で処理されたかを表す
type Route string

const (
	RouteCasual Route = "casual"
	RouteMeta   Route = "meta"
	RouteRAG    Route = "rag"
)

// Request は Respond への入力
// History は呼び出し側が所有し、Respond は変更しない
type Request struct {
	Question string
	History  []Turn
	TopK     int
	Filter   retrieval.Filter
}

// Reply は Respond の結果
type Reply struct {
	Answer             string
	Citations          []answer.Citation
	Sources            []retrieval.Match // RAG分岐で検索した結果（他の分岐では空）
	StandaloneQuestion string            // RAG分岐で検索に使った質問（履歴による書き換え後）
	History            []Turn
	Route              Route
}
