package index

import (
	"context"
	"errors"
	"testing"

	"gongtu-rag-go/internal/model"
	"gongtu-rag-go/internal/repository"
	"gongtu-rag-go/pkg/embedding"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmbeddingClient 按脚本返回向量或错误，记录收到的批次。
type fakeEmbeddingClient struct {
	batches    [][]string
	singles    []string
	batchErrs  []error
	singleErrs map[string]error
	vectorFor  func(text string) []float32
}

func newFakeEmbeddingClient() *fakeEmbeddingClient {
	return &fakeEmbeddingClient{
		singleErrs: map[string]error{},
		vectorFor: func(text string) []float32 {
			return []float32{float32(len(text)), 1, 0}
		},
	}
}

func (f *fakeEmbeddingClient) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	f.batches = append(f.batches, texts)
	if len(f.batchErrs) > 0 {
		err := f.batchErrs[0]
		f.batchErrs = f.batchErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = f.vectorFor(text)
	}
	return vectors, nil
}

func (f *fakeEmbeddingClient) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	f.singles = append(f.singles, text)
	if err, ok := f.singleErrs[text]; ok {
		return nil, err
	}
	return f.vectorFor(text), nil
}

// fakeChunkRepo 只实现索引用到的方法，其余方法沿用内嵌接口（调用即 panic）。
type fakeChunkRepo struct {
	repository.ChunkRepository
	unembedded []*model.Chunk
	embedded   []*model.Chunk
	marked     map[uint][]float32
}

func (f *fakeChunkRepo) FindUnembedded(projectID uint) ([]*model.Chunk, error) {
	return f.unembedded, nil
}

func (f *fakeChunkRepo) FindEmbedded(projectID uint) ([]*model.Chunk, error) {
	return f.embedded, nil
}

func (f *fakeChunkRepo) MarkEmbedded(chunkID uint, vector []float32) error {
	if f.marked == nil {
		f.marked = map[uint][]float32{}
	}
	f.marked[chunkID] = vector
	return nil
}

type fakeFindingRepo struct {
	repository.VisualFindingRepository
	unembedded []*model.VisualFinding
	embedded   []*model.VisualFinding
	marked     map[uint][]float32
}

func (f *fakeFindingRepo) FindUnembedded(projectID uint) ([]*model.VisualFinding, error) {
	return f.unembedded, nil
}

func (f *fakeFindingRepo) FindEmbedded(projectID uint) ([]*model.VisualFinding, error) {
	return f.embedded, nil
}

func (f *fakeFindingRepo) MarkEmbedded(findingID uint, vector []float32) error {
	if f.marked == nil {
		f.marked = map[uint][]float32{}
	}
	f.marked[findingID] = vector
	return nil
}

func TestCosine(t *testing.T) {
	t.Run("identical vectors score 1", func(t *testing.T) {
		score, ok := Cosine([]float32{1, 2, 3}, []float32{1, 2, 3})
		require.True(t, ok)
		assert.InDelta(t, 1.0, score, 1e-9)
	})

	t.Run("orthogonal vectors score 0", func(t *testing.T) {
		score, ok := Cosine([]float32{1, 0}, []float32{0, 1})
		require.True(t, ok)
		assert.InDelta(t, 0.0, score, 1e-9)
	})

	t.Run("opposite vectors score -1", func(t *testing.T) {
		score, ok := Cosine([]float32{1, 0}, []float32{-1, 0})
		require.True(t, ok)
		assert.InDelta(t, -1.0, score, 1e-9)
	})

	t.Run("mismatched length rejected", func(t *testing.T) {
		_, ok := Cosine([]float32{1, 2}, []float32{1, 2, 3})
		assert.False(t, ok)
	})

	t.Run("zero vector rejected", func(t *testing.T) {
		_, ok := Cosine([]float32{0, 0}, []float32{1, 2})
		assert.False(t, ok)
	})
}

func TestEmbedUnembedded(t *testing.T) {
	t.Run("embeds chunks and findings in batches", func(t *testing.T) {
		client := newFakeEmbeddingClient()
		chunkRepo := &fakeChunkRepo{unembedded: []*model.Chunk{
			{ID: 1, Content: "page one"},
			{ID: 2, Content: "page two"},
			{ID: 3, Content: "page three"},
		}}
		findingRepo := &fakeFindingRepo{unembedded: []*model.VisualFinding{
			{ID: 10, FindingsRaw: `{"summary":"电气平面图"}`},
		}}

		idx := NewEmbeddingIndex(client, chunkRepo, findingRepo, 2, 0)
		var progressCalls []int
		report, err := idx.EmbedUnembedded(context.Background(), 1, func(current, total int) {
			progressCalls = append(progressCalls, current)
			assert.Equal(t, 4, total)
		})

		require.NoError(t, err)
		assert.Equal(t, 4, report.Processed)
		assert.Equal(t, 0, report.Remaining)
		assert.False(t, report.Paused)
		assert.Len(t, chunkRepo.marked, 3)
		assert.Len(t, findingRepo.marked, 1)
		assert.Equal(t, []int{2, 4}, progressCalls)
		// 批大小为 2 应产生两个批次
		require.Len(t, client.batches, 2)
		assert.Equal(t, []string{"page one", "page two"}, client.batches[0])
	})

	t.Run("nothing to do returns empty report", func(t *testing.T) {
		idx := NewEmbeddingIndex(newFakeEmbeddingClient(), &fakeChunkRepo{}, &fakeFindingRepo{}, 2, 0)
		report, err := idx.EmbedUnembedded(context.Background(), 1, nil)
		require.NoError(t, err)
		assert.Equal(t, 0, report.Processed)
		assert.False(t, report.Paused)
	})

	t.Run("quota exhaustion pauses without error", func(t *testing.T) {
		client := newFakeEmbeddingClient()
		client.batchErrs = []error{nil, embedding.ErrQuotaExhausted}
		chunkRepo := &fakeChunkRepo{unembedded: []*model.Chunk{
			{ID: 1, Content: "a"}, {ID: 2, Content: "b"},
			{ID: 3, Content: "c"}, {ID: 4, Content: "d"},
		}}

		idx := NewEmbeddingIndex(client, chunkRepo, &fakeFindingRepo{}, 2, 0)
		report, err := idx.EmbedUnembedded(context.Background(), 1, nil)

		require.NoError(t, err)
		assert.True(t, report.Paused)
		assert.Equal(t, 2, report.Processed)
		assert.Equal(t, 2, report.Remaining)
		// 已写入的向量保留，重跑只处理剩余两条
		assert.Len(t, chunkRepo.marked, 2)
	})

	t.Run("oversized batch falls back to one by one", func(t *testing.T) {
		client := newFakeEmbeddingClient()
		client.batchErrs = []error{embedding.ErrPayloadTooLarge}
		client.singleErrs["huge blueprint text"] = embedding.ErrPayloadTooLarge
		chunkRepo := &fakeChunkRepo{unembedded: []*model.Chunk{
			{ID: 1, Content: "normal page"},
			{ID: 2, Content: "huge blueprint text"},
		}}

		idx := NewEmbeddingIndex(client, chunkRepo, &fakeFindingRepo{}, 5, 0)
		report, err := idx.EmbedUnembedded(context.Background(), 1, nil)

		require.NoError(t, err)
		// 超限单条被跳过，正常单条成功
		assert.Equal(t, 1, report.Processed)
		assert.Contains(t, chunkRepo.marked, uint(1))
		assert.NotContains(t, chunkRepo.marked, uint(2))
	})

	t.Run("unexpected error aborts", func(t *testing.T) {
		client := newFakeEmbeddingClient()
		client.batchErrs = []error{errors.New("connection refused")}
		chunkRepo := &fakeChunkRepo{unembedded: []*model.Chunk{{ID: 1, Content: "a"}}}

		idx := NewEmbeddingIndex(client, chunkRepo, &fakeFindingRepo{}, 2, 0)
		_, err := idx.EmbedUnembedded(context.Background(), 1, nil)
		assert.Error(t, err)
	})
}

func TestSearch(t *testing.T) {
	queryVector := []float32{1, 0, 0}
	client := newFakeEmbeddingClient()
	client.vectorFor = func(text string) []float32 { return queryVector }

	chunkRepo := &fakeChunkRepo{embedded: []*model.Chunk{
		{ID: 1, Content: "close", Embedding: []float32{1, 0.1, 0}},
		{ID: 2, Content: "far", Embedding: []float32{0, 1, 0}},
		{ID: 3, Content: "bad dims", Embedding: []float32{1, 0}},
	}}
	findingRepo := &fakeFindingRepo{embedded: []*model.VisualFinding{
		{ID: 10, FindingsRaw: `{"summary":"屋面排水详图"}`, Embedding: []float32{0.9, 0.2, 0}},
	}}

	idx := NewEmbeddingIndex(client, chunkRepo, findingRepo, 2, 0)

	t.Run("ranks by similarity descending and tags kinds", func(t *testing.T) {
		results, err := idx.Search(context.Background(), 1, "drainage", 10)
		require.NoError(t, err)
		// 维度不一致的条目被剔除
		require.Len(t, results, 3)

		assert.Equal(t, model.SearchKindChunk, results[0].Kind)
		assert.Equal(t, uint(1), results[0].Chunk.ID)
		assert.Equal(t, model.SearchKindVisualFinding, results[1].Kind)
		assert.Equal(t, uint(10), results[1].Finding.ID)
		assert.Equal(t, uint(2), results[2].Chunk.ID)
		assert.True(t, results[0].Score >= results[1].Score)
		assert.True(t, results[1].Score >= results[2].Score)
	})

	t.Run("topK caps result count", func(t *testing.T) {
		results, err := idx.Search(context.Background(), 1, "drainage", 1)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, uint(1), results[0].Chunk.ID)
	})

	t.Run("topK larger than corpus returns all", func(t *testing.T) {
		results, err := idx.Search(context.Background(), 1, "drainage", 100)
		require.NoError(t, err)
		assert.Len(t, results, 3)
	})
}
