package chunking

import (
	"fmt"
	"strings"

	"github.com/samber/mo"

	"github.com/jinford/earnings-rag/internal/shared/apperr"
)

const (
	// DefaultMaxSize は1チャンクあたりの既定語数
	DefaultMaxSize = 1000
	// DefaultOverlap は隣接チャンク間で重複させる既定語数
	DefaultOverlap = 200
)

// Page はローダーが返す1ページ分のテキスト
// Number が 0 の場合はページ番号不明を表す
type Page struct {
	Number int
	Text   string
}

// Document はチャンク分割対象のドキュメント
type Document struct {
	Source string // ファイル名の stem（拡張子なし）
	Pages  []Page
}

// Chunk は分割済みの連続テキスト
type Chunk struct {
	ID      string
	Text    string
	Source  string
	Ordinal int
	Page    mo.Option[int]
}

// Window はトークン列上の半開区間 [Start, End)
type Window struct {
	Start int
	End   int
}

// Chunker は空白区切りの語をトークンとして固定長ウィンドウに分割する
type Chunker struct {
	maxSize int
	overlap int
}

// New は新しいChunkerを作成します
// overlap >= maxSize の場合は窓が前進しないため設定エラーを返します
func New(maxSize, overlap int) (*Chunker, error) {
	if maxSize <= 0 {
		return nil, apperr.NewConfigError("CHUNK_MAX_SIZE", "must be positive (got %d)", maxSize)
	}
	if overlap < 0 {
		return nil, apperr.NewConfigError("CHUNK_OVERLAP", "must not be negative (got %d)", overlap)
	}
	if overlap >= maxSize {
		return nil, apperr.NewConfigError("CHUNK_OVERLAP", "must be smaller than max size (got %d >= %d)", overlap, maxSize)
	}
	return &Chunker{maxSize: maxSize, overlap: overlap}, nil
}

// MaxSize はウィンドウ長を返します
func (c *Chunker) MaxSize() int { return c.maxSize }

// Overlap は重複語数を返します
func (c *Chunker) Overlap() int { return c.overlap }

// Normalize は空白の連続を1つのスペースに畳み込み、前後を除去します
func Normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Windows は n 個のトークンに対するウィンドウ列を返します
// 最後のウィンドウは末尾で切り詰められます
func (c *Chunker) Windows(n int) []Window {
	if n <= 0 {
		return nil
	}

	step := c.maxSize - c.overlap
	windows := make([]Window, 0, n/step+1)
	for start := 0; start < n; start += step {
		end := min(start+c.maxSize, n)
		windows = append(windows, Window{Start: start, End: end})
		if end == n {
			break
		}
	}
	return windows
}

// Split はテキストを正規化してチャンク本文の列に分割します
func (c *Chunker) Split(text string) []string {
	tokens := strings.Fields(text)
	windows := c.Windows(len(tokens))

	chunks := make([]string, 0, len(windows))
	for _, w := range windows {
		chunks = append(chunks, strings.Join(tokens[w.Start:w.End], " "))
	}
	return chunks
}

// ChunkDocument はドキュメント全体を分割し、決定的なIDを付与します
// 各チャンクのページは先頭トークンが属するページです
func (c *Chunker) ChunkDocument(doc Document) []Chunk {
	var (
		tokens []string
		pages  []int
	)
	for _, page := range doc.Pages {
		for _, tok := range strings.Fields(page.Text) {
			tokens = append(tokens, tok)
			pages = append(pages, page.Number)
		}
	}

	windows := c.Windows(len(tokens))
	chunks := make([]Chunk, 0, len(windows))
	for i, w := range windows {
		page := mo.None[int]()
		if p := pages[w.Start]; p > 0 {
			page = mo.Some(p)
		}
		chunks = append(chunks, Chunk{
			ID:      ChunkID(doc.Source, i),
			Text:    strings.Join(tokens[w.Start:w.End], " "),
			Source:  doc.Source,
			Ordinal: i,
			Page:    page,
		})
	}
	return chunks
}

// ChunkID はチャンクIDを生成します
// 形式 {stem}_chunk{3桁ゼロ埋め序数} は引用UIがパースするため変更不可
func ChunkID(source string, ordinal int) string {
	return fmt.Sprintf("%s_chunk%03d", source, ordinal)
}
