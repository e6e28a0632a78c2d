package conversation

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// CasualReply は挨拶・相槌に対する固定の返答
const CasualReply = "You're welcome! Anything else I can help you with?"

var casualPattern = regexp.MustCompile(`(?i)^(thanks|thank you|thank|thx|cool|great|awesome|wow|ok|okay|hi|hello|hey)\W*$`)

// IsCasual はメッセージ全体が挨拶・相槌かどうかを返す
func IsCasual(question string) bool {
	return casualPattern.MatchString(strings.TrimSpace(question))
}

// Inventory はコーパスのファイル構成を問い合わせるインターフェース
type Inventory interface {
	// CountDocuments は登録済みドキュメント数を返す
	CountDocuments(ctx context.Context) (int, error)
	// PagesInLatest は最新ドキュメントのページ数を返す
	PagesInLatest(ctx context.Context) (int, error)
}

// MetaRule はコーパス自体についての質問を検索なしで答えるルール
type MetaRule struct {
	Name    string
	Pattern *regexp.Regexp
	Handle  func(ctx context.Context, question string) (string, error)
}

// DefaultMetaRules は既定のメタ質問ルールを優先順に返す
func DefaultMetaRules(inv Inventory) []MetaRule {
	return []MetaRule{
		{
			Name:    "document-count",
			Pattern: regexp.MustCompile(`(?i)how many (earnings[ -])?call documents`),
			Handle: func(ctx context.Context, _ string) (string, error) {
				n, err := inv.CountDocuments(ctx)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("I have **%d** earnings-call documents indexed.", n), nil
			},
		},
		{
			Name:    "latest-page-count",
			Pattern: regexp.MustCompile(`(?i)how many pages.*most recent`),
			Handle: func(ctx context.Context, _ string) (string, error) {
				n, err := inv.PagesInLatest(ctx)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("The most recent call document has **%d** pages.", n), nil
			},
		},
	}
}

// matchMeta は最初に一致したルールを返す
func matchMeta(rules []MetaRule, question string) (MetaRule, bool) {
	for _, rule := range rules {
		if rule.Pattern.MatchString(question) {
			return rule, true
		}
	}
	return MetaRule{}, false
}
