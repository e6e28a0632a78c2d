package indexing

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/jinford/earnings-rag/internal/core/chunking"
)

// ベクトルストアに保存するメタデータのキー
const (
	MetaSource  = "source"
	MetaSnippet = "snippet"
	MetaQuarter = "quarter"
	MetaSpeaker = "speaker"
	MetaPage    = "page"
	MetaOrdinal = "ordinal"

	// Unknown はファイル名から解決できなかった属性の値
	Unknown = "unknown"

	// SnippetLength はスニペットとして保存する先頭文字数（rune単位）
	SnippetLength = 200
)

var (
	quarterFirstPattern = regexp.MustCompile(`(?i)(?:^|[^a-z0-9])q([1-4])[-_ ]?(?:fy)?(\d{4}|\d{2})(?:$|[^0-9])`)
	yearFirstPattern    = regexp.MustCompile(`(?i)(?:^|[^0-9])(?:fy)?(\d{4})[-_ ]?q([1-4])(?:$|[^0-9])`)
	stemSeparator       = regexp.MustCompile(`[^A-Za-z0-9]+`)
)

// speakerRoles はファイル名から話者として認識する役職
var speakerRoles = map[string]struct{}{
	"CEO":       {},
	"CFO":       {},
	"COO":       {},
	"CTO":       {},
	"PRESIDENT": {},
	"ANALYST":   {},
	"OPERATOR":  {},
	"IR":        {},
}

// BuildMetadata はチャンクから保存用メタデータを構築します
func BuildMetadata(chunk chunking.Chunk) map[string]string {
	meta := map[string]string{
		MetaSource:  chunk.Source,
		MetaSnippet: Snippet(chunk.Text),
		MetaQuarter: ResolveQuarter(chunk.Source),
		MetaSpeaker: ResolveSpeaker(chunk.Source),
		MetaOrdinal: strconv.Itoa(chunk.Ordinal),
	}
	if page, ok := chunk.Page.Get(); ok {
		meta[MetaPage] = strconv.Itoa(page)
	}
	return meta
}

// Snippet はテキストの先頭 SnippetLength 文字を返します
func Snippet(text string) string {
	runes := []rune(text)
	if len(runes) <= SnippetLength {
		return text
	}
	return string(runes[:SnippetLength])
}

// ResolveQuarter はファイル名の stem から四半期ラベル（例: Q1-2024）を解決します
func ResolveQuarter(stem string) string {
	if m := quarterFirstPattern.FindStringSubmatch(stem); m != nil {
		return "Q" + m[1] + "-" + normalizeYear(m[2])
	}
	if m := yearFirstPattern.FindStringSubmatch(stem); m != nil {
		return "Q" + m[2] + "-" + m[1]
	}
	return Unknown
}

// ResolveSpeaker はファイル名の stem に含まれる役職から話者を解決します
func ResolveSpeaker(stem string) string {
	for _, part := range stemSeparator.Split(stem, -1) {
		role := strings.ToUpper(part)
		if _, ok := speakerRoles[role]; ok {
			return role
		}
	}
	return Unknown
}

func normalizeYear(year string) string {
	if len(year) == 2 {
		return "20" + year
	}
	return year
}
