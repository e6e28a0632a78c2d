package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/manifoldco/promptui"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/earnings-rag/internal/core/answer"
	"github.com/jinford/earnings-rag/internal/core/conversation"
	"github.com/jinford/earnings-rag/internal/core/indexing"
	"github.com/jinford/earnings-rag/internal/core/retrieval"
	"github.com/jinford/earnings-rag/internal/infra/corpus"
	"github.com/jinford/earnings-rag/internal/platform/config"
	"github.com/jinford/earnings-rag/internal/platform/container"
	"github.com/jinford/earnings-rag/internal/shared/apperr"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type constantEmbedder struct{}

func (constantEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, float32(len(text) % 7), 0.5}, nil
}

type fixedLLM struct{}

func (fixedLLM) GenerateCompletion(ctx context.Context, req answer.CompletionRequest) (string, error) {
	return "Margins improved [0].", nil
}

type wordCounter struct{}

func (wordCounter) CountTokens(text string) int { return len(strings.Fields(text)) }

func writeCorpus(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func newMemoryContainer(t *testing.T, corpusDir string) *container.Container {
	t.Helper()
	cfg := &config.Config{
		OpenAI:      config.OpenAIConfig{APIKey: "sk-test", EmbeddingDimension: 3},
		VectorStore: config.VectorStoreConfig{Backend: config.BackendMemory, Index: "earnings_chunks"},
		Retrieval:   config.RetrievalConfig{TopK: 4},
		Chunking:    config.ChunkingConfig{MaxSize: 4, Overlap: 1},
		Indexing:    config.IndexingConfig{Workers: 2},
		CorpusDir:   corpusDir,
	}
	cont, err := container.NewContainer(context.Background(), cfg,
		container.WithContainerLogger(quietLogger()),
		container.WithContainerEmbedder(constantEmbedder{}),
		container.WithContainerLLMClient(fixedLLM{}),
		container.WithContainerTokenCounter(wordCounter{}),
	)
	require.NoError(t, err)
	t.Cleanup(cont.Close)
	return cont
}

func TestRunIndex_IndexesCorpusAndReplaces(t *testing.T) {
	dir := writeCorpus(t, map[string]string{
		"acme-Q1-2024.txt": "operating margin improved by two points this quarter",
		"acme-Q2-2024.md":  "revenue guidance raised",
	})
	cont := newMemoryContainer(t, dir)
	ctx := context.Background()

	run, err := runIndex(ctx, cont, "", false)
	require.NoError(t, err)
	assert.Equal(t, 2, run.Result.Documents)
	assert.Equal(t, 0, run.Result.Failed)

	first, err := cont.Store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, run.Result.Upserted, first)

	// 内容を短くして置き換えると古いチャンクが残らない
	require.NoError(t, os.WriteFile(filepath.Join(dir, "acme-Q1-2024.txt"), []byte("margin improved"), 0o644))
	_, err = runIndex(ctx, cont, "", true)
	require.NoError(t, err)

	second, err := cont.Store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, second)
}

func TestRunIndex_DirOverride(t *testing.T) {
	cont := newMemoryContainer(t, t.TempDir())
	other := writeCorpus(t, map[string]string{"beta-Q3-2023.txt": "cash flow was strong"})

	run, err := runIndex(context.Background(), cont, other, false)

	require.NoError(t, err)
	assert.Equal(t, 1, run.Result.Documents)
	assert.Equal(t, 1, run.Result.Upserted)
}

func TestRenderIndexRun(t *testing.T) {
	var buf bytes.Buffer
	renderIndexRun(&buf, &indexRun{
		Result: &indexing.Result{
			Documents: 2,
			Chunks:    5,
			Upserted:  4,
			Failed:    1,
			Failures:  []indexing.Failure{{ChunkID: "acme-Q1-2024_chunk003", Err: errors.New("timeout")}},
		},
		Skipped: []corpus.Skipped{{Path: "broken.pdf", Reason: errors.New("malformed PDF")}},
	})

	out := buf.String()
	assert.Contains(t, out, "acme-Q1-2024_chunk003")
	assert.Contains(t, out, "timeout")
	assert.Contains(t, out, "broken.pdf")
}

func TestRenderMatches(t *testing.T) {
	var buf bytes.Buffer
	renderMatches(&buf, []retrieval.Match{
		{
			ChunkID:  "acme-Q2-2024-CFO_chunk001",
			Score:    0.91234,
			Snippet:  "Operating margin expanded",
			Metadata: map[string]string{indexing.MetaQuarter: "Q2-2024", indexing.MetaSpeaker: "CFO", indexing.MetaPage: "4"},
		},
	})

	out := buf.String()
	assert.Contains(t, out, "acme-Q2-2024-CFO_chunk001")
	assert.Contains(t, out, "0.9123")
	assert.Contains(t, out, "Q2-2024")
	assert.Contains(t, out, "Operating margin expanded")
}

func TestPrintReply(t *testing.T) {
	reply := &conversation.Reply{
		Answer:    "Margins improved [1].",
		Citations: []answer.Citation{{Index: 1, ChunkID: "acme_chunk001"}},
		Sources: []retrieval.Match{
			{ChunkID: "acme_chunk000", Score: 0.5, Metadata: map[string]string{}},
			{ChunkID: "acme_chunk001", Score: 0.4, Metadata: map[string]string{}},
		},
	}

	var withoutSources bytes.Buffer
	printReply(&withoutSources, reply, false)
	assert.Contains(t, withoutSources.String(), "[1] acme_chunk001")
	assert.NotContains(t, withoutSources.String(), "参照ソース")

	var withSources bytes.Buffer
	printReply(&withSources, reply, true)
	assert.Contains(t, withSources.String(), "参照ソース")
	assert.Contains(t, withSources.String(), "[0] acme_chunk000")
}

func TestCollectCorpusStats(t *testing.T) {
	dir := writeCorpus(t, map[string]string{
		"acme-Q1-2024.txt": "page one\fpage two",
		"acme-Q2-2024.txt": "page one\fpage two\fpage three",
	})
	loader := corpus.NewLoader(dir, corpus.WithLoaderLogger(quietLogger()))

	stats, err := collectCorpusStats(context.Background(), corpus.NewInventory(loader), loader)

	require.NoError(t, err)
	assert.Equal(t, 2, stats.Documents)
	assert.Equal(t, "acme-Q2-2024.txt", stats.Latest)
	require.Len(t, stats.Files, 2)
	assert.Equal(t, 2, stats.Files[0].Pages)
	assert.Equal(t, 3, stats.Files[1].Pages)

	var buf bytes.Buffer
	renderCorpusStats(&buf, stats)
	assert.Contains(t, buf.String(), "acme-Q2-2024")
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", truncateString("short", 10))
	assert.Equal(t, "a b c", truncateString("a\n b\t c", 10))
	assert.Equal(t, "ééééé...", truncateString(strings.Repeat("é", 20), 8))
}

// --- chat ---

type scriptedInput struct {
	lines []string
}

func (s *scriptedInput) next() (string, error) {
	if len(s.lines) == 0 {
		return "", promptui.ErrEOF
	}
	line := s.lines[0]
	s.lines = s.lines[1:]
	return line, nil
}

type stubResponder struct {
	requests []conversation.Request
	failOn   string
}

func (r *stubResponder) Respond(ctx context.Context, req conversation.Request) (*conversation.Reply, error) {
	r.requests = append(r.requests, req)
	if req.Question == r.failOn {
		return nil, errors.New("retrieval failed")
	}
	answerText := "answer to " + req.Question
	history := append(append([]conversation.Turn{}, req.History...), conversation.Turn{Question: req.Question, Answer: answerText})
	return &conversation.Reply{Answer: answerText, History: history}, nil
}

type memoryHistory struct {
	sessions map[string][]conversation.Turn
	cleared  int
}

func (h *memoryHistory) Load(ctx context.Context, id string) ([]conversation.Turn, error) {
	return h.sessions[id], nil
}

func (h *memoryHistory) Save(ctx context.Context, id string, turns []conversation.Turn) error {
	h.sessions[id] = turns
	return nil
}

func (h *memoryHistory) Clear(ctx context.Context, id string) error {
	h.cleared++
	delete(h.sessions, id)
	return nil
}

func newChatSession(input *scriptedInput, r responder, h historyStore, out io.Writer) *chatSession {
	return &chatSession{
		id:        "session-1",
		responder: r,
		history:   h,
		readLine:  input.next,
		out:       out,
		logger:    quietLogger(),
	}
}

func TestChatSession_CarriesHistoryAcrossTurns(t *testing.T) {
	history := &memoryHistory{sessions: map[string][]conversation.Turn{
		"session-1": {{Question: "earlier", Answer: "before"}},
	}}
	r := &stubResponder{}
	var out bytes.Buffer

	err := newChatSession(&scriptedInput{lines: []string{"first", "  ", "second", "/exit", "never"}}, r, history, &out).run(context.Background())

	require.NoError(t, err)
	require.Len(t, r.requests, 2)
	assert.Len(t, r.requests[0].History, 1)
	assert.Len(t, r.requests[1].History, 2)
	assert.Len(t, history.sessions["session-1"], 3)
	assert.Contains(t, out.String(), "answer to second")
}

func TestChatSession_FailedTurnIsNotRecorded(t *testing.T) {
	history := &memoryHistory{sessions: map[string][]conversation.Turn{}}
	r := &stubResponder{failOn: "boom"}
	var out bytes.Buffer

	err := newChatSession(&scriptedInput{lines: []string{"boom", "ok then"}}, r, history, &out).run(context.Background())

	require.NoError(t, err)
	assert.Contains(t, out.String(), "エラー")
	require.Len(t, history.sessions["session-1"], 1)
	assert.Equal(t, "ok then", history.sessions["session-1"][0].Question)
}

func TestChatSession_Reset(t *testing.T) {
	history := &memoryHistory{sessions: map[string][]conversation.Turn{
		"session-1": {{Question: "old", Answer: "old"}},
	}}
	r := &stubResponder{}

	err := newChatSession(&scriptedInput{lines: []string{"/reset", "fresh"}}, r, history, io.Discard).run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, history.cleared)
	require.Len(t, r.requests, 1)
	assert.Empty(t, r.requests[0].History)
}

func TestNewAppContext_RejectsMemoryBackend(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("VECTOR_STORE", config.BackendMemory)
	t.Setenv("LOG_LEVEL", "error")

	app, err := NewAppContext(context.Background(), "")

	require.Error(t, err)
	assert.Nil(t, app)
	assert.True(t, apperr.IsConfiguration(err))
	assert.Contains(t, err.Error(), "VECTOR_STORE")
}
