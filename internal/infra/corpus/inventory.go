package corpus

import (
	"context"
	"path/filepath"
	"slices"
	"strings"
)

// Inventory はコーパスのファイル構成からメタ質問に答える
type Inventory struct {
	loader *Loader
}

// NewInventory は新しいInventoryを作成する
func NewInventory(loader *Loader) *Inventory {
	return &Inventory{loader: loader}
}

// CountDocuments はコーパス内のドキュメント数（stem 単位）を返す
func (i *Inventory) CountDocuments(ctx context.Context) (int, error) {
	files, err := i.loader.Files(ctx)
	if err != nil {
		return 0, err
	}
	return len(files), nil
}

// Latest はファイル名の辞書順で最後のドキュメントを返す
func (i *Inventory) Latest(ctx context.Context) (File, bool, error) {
	files, err := i.loader.Files(ctx)
	if err != nil {
		return File{}, false, err
	}
	if len(files) == 0 {
		return File{}, false, nil
	}

	latest := slices.MaxFunc(files, func(a, b File) int {
		return strings.Compare(filepath.Base(a.Path), filepath.Base(b.Path))
	})
	return latest, true, nil
}

// PagesInLatest は最新ドキュメントのページ数を返す（コーパスが空なら0）
func (i *Inventory) PagesInLatest(ctx context.Context) (int, error) {
	latest, ok, err := i.Latest(ctx)
	if err != nil || !ok {
		return 0, err
	}
	return i.PageCount(latest)
}

// PageCount はファイルのページ数を返す
// ページ境界のないテキストは1ページとみなす
func (i *Inventory) PageCount(f File) (int, error) {
	if f.Ext == ".pdf" {
		return countPDFPages(f.Path)
	}

	pages, err := readText(f.Path)
	if err != nil {
		return 0, err
	}
	return len(pages), nil
}
