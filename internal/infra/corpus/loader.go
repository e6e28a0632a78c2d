package corpus

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/go-enry/go-enry/v2"
	"github.com/ledongthuc/pdf"

	"github.com/jinford/earnings-rag/internal/core/chunking"
)

// DefaultExtensions は読み込む拡張子の優先順
// 同じ stem が複数形式で存在する場合は先頭の拡張子を採用する（変換済みテキストがPDFより優先）
var DefaultExtensions = []string{".txt", ".md", ".pdf"}

// pageBreak は pdftotext がページ境界に出力するフォームフィード
const pageBreak = "\f"

var (
	// ErrBinaryContent はテキスト拡張子のファイルがバイナリだった場合のエラー
	ErrBinaryContent = errors.New("binary content in text file")

	// ErrDuplicateStem は同じ stem・同じ優先度のファイルが別の場所に既にある場合のエラー
	// チャンクIDは stem から作るため、1つの stem につき1ドキュメントしか登録できない
	ErrDuplicateStem = errors.New("duplicate document stem")
)

// File はコーパス内で採用された1ファイル
type File struct {
	Stem    string
	Path    string
	RelPath string
	Ext     string
}

// Skipped は読み込めずにスキップしたファイル
type Skipped struct {
	Path   string
	Reason error
}

// LoadResult は Load の結果
type LoadResult struct {
	Documents []chunking.Document
	Skipped   []Skipped
}

// Loader はコーパスディレクトリからドキュメントを読み込む
type Loader struct {
	dir        string
	extensions []string
	logger     *slog.Logger
}

// LoaderOption は Loader のオプション設定
type LoaderOption func(*Loader)

// WithLoaderLogger は Loader にロガーを設定する
func WithLoaderLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) {
		l.logger = logger
	}
}

// WithExtensions は読み込む拡張子と優先順を設定する
func WithExtensions(exts ...string) LoaderOption {
	return func(l *Loader) {
		if len(exts) == 0 {
			return
		}
		l.extensions = make([]string, 0, len(exts))
		for _, ext := range exts {
			ext = strings.ToLower(ext)
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			l.extensions = append(l.extensions, ext)
		}
	}
}

// NewLoader は新しいLoaderを作成する
func NewLoader(dir string, opts ...LoaderOption) *Loader {
	l := &Loader{
		dir:        dir,
		extensions: slices.Clone(DefaultExtensions),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	return l
}

// Dir はコーパスディレクトリを返す
func (l *Loader) Dir() string {
	return l.dir
}

// Files はコーパス内で採用されるファイルを stem の辞書順で返す
// stem が重複して採用されなかったファイルは警告ログのみ出す
func (l *Loader) Files(ctx context.Context) ([]File, error) {
	files, _, err := l.scan(ctx)
	return files, err
}

// scan はコーパスを走査し、採用ファイルと重複でスキップしたファイルを返す
// 走査はパスの辞書順なので、重複時にどちらを採用するかは決定的
func (l *Loader) scan(ctx context.Context) ([]File, []Skipped, error) {
	ignore, err := NewIgnoreFilter(l.dir)
	if err != nil {
		return nil, nil, err
	}

	byStem := make(map[string]File)
	var duplicates []Skipped
	err = filepath.WalkDir(l.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(l.dir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if ignore.ShouldIgnore(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		ext := strings.ToLower(filepath.Ext(path))
		rank := slices.Index(l.extensions, ext)
		if rank < 0 {
			return nil
		}

		stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		candidate := File{Stem: stem, Path: path, RelPath: rel, Ext: ext}
		if current, ok := byStem[stem]; ok {
			currentRank := slices.Index(l.extensions, current.Ext)
			switch {
			case currentRank == rank:
				l.logger.Warn("duplicate document stem, skipping",
					"path", rel,
					"stem", stem,
					"kept", current.RelPath,
				)
				duplicates = append(duplicates, Skipped{
					Path:   rel,
					Reason: fmt.Errorf("%w: %s already provided by %s", ErrDuplicateStem, stem, current.RelPath),
				})
				return nil
			case currentRank < rank:
				l.logger.Debug("superseded by preferred format", "path", rel, "kept", current.RelPath)
				return nil
			default:
				l.logger.Debug("superseded by preferred format", "path", current.RelPath, "kept", rel)
			}
		}
		byStem[stem] = candidate
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to scan corpus %s: %w", l.dir, err)
	}

	files := make([]File, 0, len(byStem))
	for _, f := range byStem {
		files = append(files, f)
	}
	slices.SortFunc(files, func(a, b File) int {
		return strings.Compare(a.Stem, b.Stem)
	})
	return files, duplicates, nil
}

// Load はコーパス内の全ドキュメントを読み込む
// 読み込めないファイルは警告を出してスキップする
func (l *Loader) Load(ctx context.Context) (*LoadResult, error) {
	files, duplicates, err := l.scan(ctx)
	if err != nil {
		return nil, err
	}

	result := &LoadResult{Skipped: duplicates}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		doc, err := l.LoadFile(f)
		if err != nil {
			l.logger.Warn("skipping unreadable document", "path", f.RelPath, "error", err)
			result.Skipped = append(result.Skipped, Skipped{Path: f.RelPath, Reason: err})
			continue
		}
		result.Documents = append(result.Documents, doc)
	}

	l.logger.Info("corpus loaded",
		"dir", l.dir,
		"documents", len(result.Documents),
		"skipped", len(result.Skipped),
	)
	return result, nil
}

// LoadFile は1ファイルをページ列として読み込む
func (l *Loader) LoadFile(f File) (chunking.Document, error) {
	var (
		pages []chunking.Page
		err   error
	)
	switch f.Ext {
	case ".pdf":
		pages, err = readPDF(f.Path)
	default:
		pages, err = readText(f.Path)
	}
	if err != nil {
		return chunking.Document{}, err
	}
	return chunking.Document{Source: f.Stem, Pages: pages}, nil
}

// readText はテキストファイルをフォームフィードでページに分割する
// フォームフィードがなければページ番号は不明（0）とする
func readText(path string) ([]chunking.Page, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if enry.IsBinary(data) {
		return nil, ErrBinaryContent
	}

	text := string(data)
	if !strings.Contains(text, pageBreak) {
		return []chunking.Page{{Text: text}}, nil
	}

	parts := strings.Split(text, pageBreak)
	for len(parts) > 1 && strings.TrimSpace(parts[len(parts)-1]) == "" {
		parts = parts[:len(parts)-1]
	}

	pages := make([]chunking.Page, 0, len(parts))
	for i, part := range parts {
		pages = append(pages, chunking.Page{Number: i + 1, Text: part})
	}
	return pages, nil
}

// readPDF はPDFをページごとのプレーンテキストとして読み込む
func readPDF(path string) (pages []chunking.Page, err error) {
	// 壊れたPDFでパーサが panic することがある
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("failed to parse pdf: %v", r)
		}
	}()

	file, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}
	defer file.Close()

	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to extract page %d: %w", i, err)
		}
		pages = append(pages, chunking.Page{Number: i, Text: text})
	}
	return pages, nil
}

// countPDFPages はPDFのページ数を返す
func countPDFPages(path string) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("failed to parse pdf: %v", r)
		}
	}()

	file, reader, err := pdf.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open pdf: %w", err)
	}
	defer file.Close()
	return reader.NumPage(), nil
}
