package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/fyrsmithlabs/raglab/internal/telemetry"
	"github.com/fyrsmithlabs/raglab/internal/upstream"
	"github.com/fyrsmithlabs/raglab/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// fakeEmbedder returns a 2-dim vector per text: {len(text), 1}.
type fakeEmbedder struct {
	mu       sync.Mutex
	docCalls [][]string
	queries  []string
	err      error
	dropLast bool
}

func (f *fakeEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docCalls = append(f.docCalls, append([]string(nil), texts...))
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	if f.dropLast {
		out = out[:len(out)-1]
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, text)
	if f.err != nil {
		return nil, f.err
	}
	return []float32{float32(len(text)), 1}, nil
}

// fakeStore records writes and serves canned matches.
type fakeStore struct {
	mu       sync.Mutex
	adds     [][]vectorstore.Record
	matches  []vectorstore.Match
	queryK   []int
	addErr   error
	queryErr error
}

func (f *fakeStore) Add(_ context.Context, records []vectorstore.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return f.addErr
	}
	f.adds = append(f.adds, records)
	return nil
}

func (f *fakeStore) Query(_ context.Context, _ []float32, k int) ([]vectorstore.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queryK = append(f.queryK, k)
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.matches[:min(k, len(f.matches))], nil
}

// fakeGenerator echoes a fixed answer and records prompts.
type fakeGenerator struct {
	mu      sync.Mutex
	prompts []string
	answer  string
	err     error
	pingErr error
	pings   int
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

func (f *fakeGenerator) Ping(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pings++
	return f.pingErr
}

func (f *fakeGenerator) Model() string { return "gemma3:4b" }

func match(id, text, source string) vectorstore.Match {
	md := map[string]string{}
	if source != "" {
		md[vectorstore.MetadataSource] = source
	}
	return vectorstore.Match{ID: id, Text: text, Metadata: md}
}

func newTestService(t *testing.T, cfg Config, e *fakeEmbedder, s *fakeStore, g *fakeGenerator) *Service {
	t.Helper()
	svc, err := NewService(cfg, e, s, g, zap.NewNop())
	require.NoError(t, err)
	return svc
}

func words(n int) string {
	w := make([]string, n)
	for i := range w {
		w[i] = fmt.Sprintf("w%d", i)
	}
	return strings.Join(w, " ")
}

func TestNewService(t *testing.T) {
	e, s, g := &fakeEmbedder{}, &fakeStore{}, &fakeGenerator{}

	t.Run("defaults", func(t *testing.T) {
		svc := newTestService(t, Config{}, e, s, g)
		assert.Equal(t, 750, svc.config.ChunkSize)
		assert.Equal(t, 120, svc.config.ChunkOverlap)
		assert.Equal(t, TopK, svc.config.TopK)
	})

	t.Run("invalid window", func(t *testing.T) {
		_, err := NewService(Config{ChunkSize: 10, ChunkOverlap: -1}, e, s, g, nil)
		assert.Error(t, err)
	})

	t.Run("missing collaborator", func(t *testing.T) {
		_, err := NewService(Config{}, e, nil, g, nil)
		assert.Error(t, err)
	})
}

func TestService_Ingest(t *testing.T) {
	ctx := context.Background()

	t.Run("writes one record per chunk in a single add", func(t *testing.T) {
		e, s, g := &fakeEmbedder{}, &fakeStore{}, &fakeGenerator{}
		svc := newTestService(t, Config{ChunkSize: 4, ChunkOverlap: 1}, e, s, g)

		n, err := svc.Ingest(ctx, "notes.txt", words(10))
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		require.Len(t, e.docCalls, 1, "chunks embedded in one call")
		require.Len(t, s.adds, 1, "records written in one add")

		records := s.adds[0]
		require.Len(t, records, 3)
		for i, r := range records {
			assert.Equal(t, fmt.Sprintf("notes.txt-%d", i), r.ID)
			assert.Equal(t, e.docCalls[0][i], r.Text)
			assert.Equal(t, float32(len(r.Text)), r.Embedding[0])
			assert.Equal(t, map[string]string{"source": "notes.txt"}, r.Metadata)
		}
		assert.Equal(t, "w0 w1 w2 w3", records[0].Text)
		assert.Equal(t, "w3 w4 w5 w6", records[1].Text)
		assert.Equal(t, "w6 w7 w8 w9", records[2].Text)
	})

	t.Run("empty text issues no calls", func(t *testing.T) {
		e, s, g := &fakeEmbedder{}, &fakeStore{}, &fakeGenerator{}
		svc := newTestService(t, Config{}, e, s, g)

		for _, text := range []string{"", "   \n\t "} {
			n, err := svc.Ingest(ctx, "empty.txt", text)
			require.NoError(t, err)
			assert.Zero(t, n)
		}
		assert.Empty(t, e.docCalls)
		assert.Empty(t, s.adds)
	})

	t.Run("missing source", func(t *testing.T) {
		svc := newTestService(t, Config{}, &fakeEmbedder{}, &fakeStore{}, &fakeGenerator{})
		_, err := svc.Ingest(ctx, "", "text")
		assert.ErrorIs(t, err, ErrEmptySource)
	})

	t.Run("embedding failure writes nothing", func(t *testing.T) {
		embedErr := upstream.Unavailable("TEI", errors.New("connection refused"))
		e, s := &fakeEmbedder{err: embedErr}, &fakeStore{}
		svc := newTestService(t, Config{}, e, s, &fakeGenerator{})

		n, err := svc.Ingest(ctx, "a.txt", "some words")
		assert.Zero(t, n)
		assert.True(t, upstream.IsUnavailable(err))
		assert.Empty(t, s.adds)
	})

	t.Run("vector count mismatch writes nothing", func(t *testing.T) {
		e, s := &fakeEmbedder{dropLast: true}, &fakeStore{}
		svc := newTestService(t, Config{}, e, s, &fakeGenerator{})

		_, err := svc.Ingest(ctx, "a.txt", "some words")
		assert.ErrorIs(t, err, ErrEmbeddingMismatch)
		assert.Empty(t, s.adds)
	})

	t.Run("store failure is returned", func(t *testing.T) {
		storeErr := errors.New("disk full")
		svc := newTestService(t, Config{}, &fakeEmbedder{}, &fakeStore{addErr: storeErr}, &fakeGenerator{})

		n, err := svc.Ingest(ctx, "a.txt", "some words")
		assert.Zero(t, n)
		assert.ErrorIs(t, err, storeErr)
	})

	t.Run("logs ingested document", func(t *testing.T) {
		core, logs := observer.New(zap.InfoLevel)
		svc, err := NewService(Config{}, &fakeEmbedder{}, &fakeStore{}, &fakeGenerator{}, zap.New(core))
		require.NoError(t, err)

		_, err = svc.Ingest(ctx, "a.txt", "some words")
		require.NoError(t, err)

		entries := logs.FilterMessage("document ingested").All()
		require.Len(t, entries, 1)
		assert.Equal(t, "a.txt", entries[0].ContextMap()["source"])
		assert.EqualValues(t, 1, entries[0].ContextMap()["chunks"])
	})
}

func TestService_Ask(t *testing.T) {
	ctx := context.Background()

	t.Run("empty store answers from empty context", func(t *testing.T) {
		g := &fakeGenerator{answer: "I don't know."}
		s := &fakeStore{}
		svc := newTestService(t, Config{}, &fakeEmbedder{}, s, g)

		ans, err := svc.Ask(ctx, "What is PageRank?")
		require.NoError(t, err)
		assert.Equal(t, "I don't know.", ans.Answer)
		assert.NotNil(t, ans.Sources)
		assert.Empty(t, ans.Sources)

		require.Len(t, g.prompts, 1)
		assert.Equal(t, BuildPrompt("What is PageRank?", nil), g.prompts[0])
		assert.True(t, strings.HasSuffix(g.prompts[0], "CONTEXT:\n"))
		assert.Equal(t, []int{TopK}, s.queryK)
	})

	t.Run("sources deduplicated in rank order", func(t *testing.T) {
		s := &fakeStore{matches: []vectorstore.Match{
			match("a.txt-0", "alpha", "a.txt"),
			match("a.txt-1", "beta", "a.txt"),
			match("b.txt-0", "gamma", "b.txt"),
		}}
		g := &fakeGenerator{answer: "PageRank ranks pages."}
		svc := newTestService(t, Config{}, &fakeEmbedder{}, s, g)

		ans, err := svc.Ask(ctx, "What is PageRank?")
		require.NoError(t, err)
		assert.Equal(t, []string{"a.txt", "b.txt"}, ans.Sources)
		assert.Contains(t, g.prompts[0], "CONTEXT:\nalpha\n\nbeta\n\ngamma")
	})

	t.Run("retrieves at most top k", func(t *testing.T) {
		var matches []vectorstore.Match
		for i := range 6 {
			matches = append(matches, match(fmt.Sprintf("c-%d", i), fmt.Sprintf("chunk%d", i), "c.txt"))
		}
		g := &fakeGenerator{}
		svc := newTestService(t, Config{}, &fakeEmbedder{}, &fakeStore{matches: matches}, g)

		_, err := svc.Ask(ctx, "q")
		require.NoError(t, err)
		assert.Contains(t, g.prompts[0], "chunk3")
		assert.NotContains(t, g.prompts[0], "chunk4")
	})

	t.Run("blank question", func(t *testing.T) {
		e, g := &fakeEmbedder{}, &fakeGenerator{}
		svc := newTestService(t, Config{}, e, &fakeStore{}, g)

		_, err := svc.Ask(ctx, "  ")
		assert.ErrorIs(t, err, ErrEmptyQuestion)
		assert.Empty(t, e.queries)
		assert.Empty(t, g.prompts)
	})

	t.Run("generation unreachable", func(t *testing.T) {
		g := &fakeGenerator{err: upstream.Unavailable("Ollama", errors.New("dial tcp: connection refused"))}
		svc := newTestService(t, Config{}, &fakeEmbedder{}, &fakeStore{}, g)

		ans, err := svc.Ask(ctx, "q")
		assert.Nil(t, ans)
		assert.True(t, upstream.IsUnavailable(err))
	})

	t.Run("generation status error keeps body", func(t *testing.T) {
		g := &fakeGenerator{err: upstream.Status("Ollama", 404, `{"error":"model not found"}`)}
		svc := newTestService(t, Config{}, &fakeEmbedder{}, &fakeStore{}, g)

		ans, err := svc.Ask(ctx, "q")
		assert.Nil(t, ans)

		var statusErr *upstream.StatusError
		require.ErrorAs(t, err, &statusErr)
		assert.Equal(t, 404, statusErr.StatusCode)
		assert.Equal(t, `{"error":"model not found"}`, statusErr.Body)
	})

	t.Run("store failure skips generation", func(t *testing.T) {
		g := &fakeGenerator{}
		svc := newTestService(t, Config{}, &fakeEmbedder{}, &fakeStore{queryErr: errors.New("boom")}, g)

		_, err := svc.Ask(ctx, "q")
		assert.Error(t, err)
		assert.Empty(t, g.prompts)
	})
}

func TestService_ProbeAndHealth(t *testing.T) {
	ctx := context.Background()

	t.Run("probe ok", func(t *testing.T) {
		g := &fakeGenerator{}
		svc := newTestService(t, Config{}, &fakeEmbedder{}, &fakeStore{}, g)

		res, err := svc.Probe(ctx)
		require.NoError(t, err)
		assert.Equal(t, &ProbeResult{OK: true, Model: "gemma3:4b"}, res)
		assert.Equal(t, 1, g.pings)
	})

	t.Run("probe failure", func(t *testing.T) {
		g := &fakeGenerator{pingErr: upstream.Unavailable("Ollama", errors.New("refused"))}
		svc := newTestService(t, Config{}, &fakeEmbedder{}, &fakeStore{}, g)

		res, err := svc.Probe(ctx)
		assert.Nil(t, res)
		assert.True(t, upstream.IsUnavailable(err))
	})

	t.Run("health makes no upstream call", func(t *testing.T) {
		g := &fakeGenerator{}
		svc := newTestService(t, Config{}, &fakeEmbedder{}, &fakeStore{}, g)

		assert.Equal(t, &HealthReport{OK: true, Model: "gemma3:4b"}, svc.Health())
		assert.Zero(t, g.pings)
	})
}

func TestService_Concurrent(t *testing.T) {
	e, s, g := &fakeEmbedder{}, &fakeStore{}, &fakeGenerator{answer: "ok"}
	svc := newTestService(t, Config{ChunkSize: 2}, e, s, g)

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := svc.Ingest(context.Background(), fmt.Sprintf("doc%d.txt", i), words(5))
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := svc.Ask(context.Background(), "q")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, s.adds, 8)
	assert.Len(t, g.prompts, 8)
}

func TestService_Spans(t *testing.T) {
	tel := telemetry.NewTestTelemetry()
	tel.Install(t)

	g := &fakeGenerator{err: upstream.Unavailable("Ollama", errors.New("refused"))}
	svc := newTestService(t, Config{}, &fakeEmbedder{}, &fakeStore{}, g)

	_, err := svc.Ingest(context.Background(), "notes.txt", "alpha beta gamma")
	require.NoError(t, err)
	_, err = svc.Ask(context.Background(), "q")
	require.Error(t, err)

	tel.AssertSpanAttribute(t, "rag.Ingest", "source", "notes.txt")
	tel.AssertSpanAttribute(t, "rag.Ingest", "chunks", int64(1))

	span := tel.SpanByName("rag.Ask")
	require.NotNil(t, span)
	assert.Equal(t, "Error", span.Status().Code.String())
}
