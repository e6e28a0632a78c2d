package corpus

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

// IgnoreFileName はコーパス直下に置く除外設定ファイル名
const IgnoreFileName = ".ragignore"

// IgnoreFilter は .ragignore（gitignore 形式）のパターンマッチングを提供します
type IgnoreFilter struct {
	patterns *gitignore.GitIgnore
}

// NewIgnoreFilter は dir 直下の .ragignore と既定パターンから IgnoreFilter を作成します
func NewIgnoreFilter(dir string) (*IgnoreFilter, error) {
	patterns := defaultIgnorePatterns()

	path := filepath.Join(dir, IgnoreFileName)
	if _, err := os.Stat(path); err == nil {
		custom, err := readIgnoreFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", IgnoreFileName, err)
		}
		patterns = append(patterns, custom...)
	}

	return &IgnoreFilter{
		patterns: gitignore.CompileIgnoreLines(patterns...),
	}, nil
}

// ShouldIgnore はコーパスからの相対パスが除外対象かどうかを判定します
func (f *IgnoreFilter) ShouldIgnore(relPath string) bool {
	if f == nil || f.patterns == nil {
		return false
	}
	return f.patterns.MatchesPath(filepath.ToSlash(relPath))
}

func readIgnoreFile(path string) ([]string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var patterns []string
	for _, line := range strings.FieldsFunc(string(content), func(r rune) bool { return r == '\n' || r == '\r' }) {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	return patterns, nil
}

func defaultIgnorePatterns() []string {
	return []string{
		IgnoreFileName,
		".git",
		".DS_Store",
		"*.swp",
		"*~",
		"*.tmp",
		"*.part",
	}
}
