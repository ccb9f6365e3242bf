package vectorstore

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDim = 4

// unit returns a testDim vector with weight on axis i.
func unit(i int) []float32 {
	v := make([]float32, testDim)
	v[i%testDim] = 1
	return v
}

func record(id, source string, embedding []float32) Record {
	return Record{
		ID:        id,
		Text:      "text of " + id,
		Embedding: embedding,
		Metadata:  map[string]string{MetadataSource: source},
	}
}

func newTestChromemStore(t *testing.T, path string) *ChromemStore {
	t.Helper()
	store, err := NewChromemStore(ChromemConfig{Path: path, VectorSize: testDim}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestNewChromemStore_Config(t *testing.T) {
	tests := []struct {
		name    string
		config  ChromemConfig
		wantErr error
	}{
		{name: "in memory", config: ChromemConfig{VectorSize: 384}},
		{name: "zero vector size", config: ChromemConfig{}, wantErr: ErrInvalidConfig},
		{name: "bad collection name", config: ChromemConfig{VectorSize: 384, Collection: "../etc"}, wantErr: ErrInvalidCollectionName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := NewChromemStore(tt.config, nil)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "docs", store.config.Collection)
		})
	}
}

func TestChromemStore_AddQuery(t *testing.T) {
	ctx := context.Background()
	store := newTestChromemStore(t, t.TempDir())

	require.NoError(t, store.Add(ctx, []Record{
		record("a.txt-0", "a.txt", unit(0)),
		record("a.txt-1", "a.txt", unit(1)),
		record("b.txt-0", "b.txt", unit(2)),
	}))

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	matches, err := store.Query(ctx, []float32{0.1, 0.9, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)

	assert.Equal(t, "a.txt-1", matches[0].ID)
	assert.Equal(t, "text of a.txt-1", matches[0].Text)
	assert.Equal(t, "a.txt", matches[0].Source())
	assert.Equal(t, "a.txt-0", matches[1].ID)
	assert.GreaterOrEqual(t, matches[0].Score, matches[1].Score)
}

func TestChromemStore_QueryCapsK(t *testing.T) {
	ctx := context.Background()
	store := newTestChromemStore(t, "")

	t.Run("empty collection", func(t *testing.T) {
		matches, err := store.Query(ctx, unit(0), 4)
		require.NoError(t, err)
		assert.Empty(t, matches)
	})

	require.NoError(t, store.Add(ctx, []Record{
		record("x-0", "x", unit(0)),
		record("x-1", "x", unit(1)),
	}))

	t.Run("fewer records than k", func(t *testing.T) {
		matches, err := store.Query(ctx, unit(0), 4)
		require.NoError(t, err)
		assert.Len(t, matches, 2)
	})
}

func TestChromemStore_AddEmptyIsNoop(t *testing.T) {
	ctx := context.Background()
	store := newTestChromemStore(t, "")

	require.NoError(t, store.Add(ctx, nil))
	require.NoError(t, store.Add(ctx, []Record{}))

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestChromemStore_SameIDReplaces(t *testing.T) {
	ctx := context.Background()
	store := newTestChromemStore(t, "")

	require.NoError(t, store.Add(ctx, []Record{record("doc-0", "doc", unit(0))}))

	updated := record("doc-0", "doc", unit(1))
	updated.Text = "rewritten"
	require.NoError(t, store.Add(ctx, []Record{updated}))

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	matches, err := store.Query(ctx, unit(1), 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "rewritten", matches[0].Text)
}

func TestChromemStore_Validation(t *testing.T) {
	ctx := context.Background()
	store := newTestChromemStore(t, "")

	tests := []struct {
		name    string
		records []Record
		wantErr error
	}{
		{
			name:    "dimension mismatch",
			records: []Record{record("a-0", "a", []float32{1, 0})},
			wantErr: ErrDimensionMismatch,
		},
		{
			name:    "empty embedding",
			records: []Record{record("a-0", "a", nil)},
			wantErr: ErrDimensionMismatch,
		},
		{
			name:    "empty id",
			records: []Record{record("", "a", unit(0))},
			wantErr: ErrInvalidRecord,
		},
		{
			name:    "duplicate id in batch",
			records: []Record{record("a-0", "a", unit(0)), record("a-0", "a", unit(1))},
			wantErr: ErrInvalidRecord,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.Add(ctx, tt.records)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "rejected batches must not be partially written")

	_, err = store.Query(ctx, []float32{1, 2, 3}, 1)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = store.Query(ctx, unit(0), 0)
	assert.Error(t, err)
}

func TestChromemStore_Persistence(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	first := newTestChromemStore(t, dir)
	records := make([]Record, 5)
	for i := range records {
		records[i] = record(fmt.Sprintf("p.txt-%d", i), "p.txt", unit(i))
	}
	require.NoError(t, first.Add(ctx, records))

	second := newTestChromemStore(t, dir)
	n, err := second.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	matches, err := second.Query(ctx, unit(3), 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "p.txt", matches[0].Source())
}
