package answer

import (
	"fmt"
	"strings"

	"github.com/jinford/earnings-rag/internal/core/retrieval"
)

// SystemPrompt は補完サービスに与える回答方針
const SystemPrompt = `You are a financial analyst assistant answering questions about company earnings calls.
Answer using ONLY the numbered snippets provided by the user.
After every factual claim, cite the snippet it came from with its number in square brackets, e.g. [0] or [2].
Cite only snippet numbers that appear in the list.
If the snippets do not contain the answer, say that you could not find it in the earnings calls.`

// BuildPrompt は検索結果の位置をタグ付けしたスニペット一覧と質問からプロンプトを構築する
func BuildPrompt(question string, matches []retrieval.Match) CompletionRequest {
	var sb strings.Builder

	sb.WriteString("Snippets:\n")
	for i, m := range matches {
		fmt.Fprintf(&sb, "[%d]", i)
		if label := sourceLabel(m.Metadata); label != "" {
			fmt.Fprintf(&sb, " (%s)", label)
		}
		sb.WriteString(" ")
		sb.WriteString(m.Snippet)
		sb.WriteString("\n")
	}

	sb.WriteString("\nQuestion: ")
	sb.WriteString(question)
	sb.WriteString("\nAnswer:")

	return CompletionRequest{
		System: SystemPrompt,
		Prompt: sb.String(),
	}
}

// sourceLabel はスニペットの出典表示を組み立てる
func sourceLabel(meta map[string]string) string {
	var parts []string
	if source := meta["source"]; source != "" {
		parts = append(parts, source)
	}
	if page := meta["page"]; page != "" {
		parts = append(parts, "p."+page)
	}
	return strings.Join(parts, ", ")
}
