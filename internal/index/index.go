// Package index 维护并查询项目内两类内容（文本分块与视觉识别结果）的向量索引。
// 向量就地存放在各自的数据行上，本包不持有副本。
package index

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"gongtu-rag-go/internal/model"
	"gongtu-rag-go/internal/repository"
	"gongtu-rag-go/pkg/embedding"
	"gongtu-rag-go/pkg/log"
	"gongtu-rag-go/pkg/retry"
)

// ProgressFunc 在每批向量化完成后被调用，报告 current/total。
// 调用方可借此展示进度或在批次之间中止。
type ProgressFunc func(current, total int)

// EmbedReport 是一次向量化过程的结果汇总。
// Paused 为 true 表示因配额耗尽而提前停止，可稍后重跑续做。
type EmbedReport struct {
	Processed int  `json:"processed"`
	Remaining int  `json:"remaining"`
	Paused    bool `json:"paused"`
}

// EmbeddingIndex 定义了向量化与相似度检索的接口。
type EmbeddingIndex interface {
	// EmbedUnembedded 为项目内所有缺失向量的分块与识别结果补齐向量。
	// 幂等可续跑：只处理 embedding 仍为 NULL 的行。
	EmbedUnembedded(ctx context.Context, projectID uint, progress ProgressFunc) (*EmbedReport, error)
	// Search 对项目内全部已向量化内容做余弦相似度检索，降序返回前 topK 条。
	Search(ctx context.Context, projectID uint, queryText string, topK int) ([]model.SearchResult, error)
}

type embeddingIndex struct {
	embeddingClient embedding.Client
	chunkRepo       repository.ChunkRepository
	findingRepo     repository.VisualFindingRepository
	batchSize       int
	batchDelay      time.Duration
}

// NewEmbeddingIndex 创建一个新的 EmbeddingIndex 实例。
// batchSize 取小值（2–10）以遵守 token 速率预算，batchDelay 为批间协作式延迟。
func NewEmbeddingIndex(
	embeddingClient embedding.Client,
	chunkRepo repository.ChunkRepository,
	findingRepo repository.VisualFindingRepository,
	batchSize int,
	batchDelay time.Duration,
) EmbeddingIndex {
	if batchSize <= 0 {
		batchSize = 5
	}
	return &embeddingIndex{
		embeddingClient: embeddingClient,
		chunkRepo:       chunkRepo,
		findingRepo:     findingRepo,
		batchSize:       batchSize,
		batchDelay:      batchDelay,
	}
}

// embedItem 是一条待向量化的内容与它的回写动作。
type embedItem struct {
	text  string
	write func(vector []float32) error
}

// EmbedUnembedded 分批向量化项目内缺失向量的内容。
// 恢复策略：限流做一次 60 秒定时重试；批内容量超限降级为逐条处理；
// 配额耗尽提前返回进度报告（非错误）；其他错误中止，已写入的向量保留。
func (idx *embeddingIndex) EmbedUnembedded(ctx context.Context, projectID uint, progress ProgressFunc) (*EmbedReport, error) {
	items, err := idx.collectUnembedded(projectID)
	if err != nil {
		return nil, err
	}
	total := len(items)
	log.Infof("[EmbeddingIndex] 项目 %d 待向量化条目: %d", projectID, total)
	if total == 0 {
		return &EmbedReport{}, nil
	}

	processed := 0
	for start := 0; start < total; start += idx.batchSize {
		end := start + idx.batchSize
		if end > total {
			end = total
		}
		batch := items[start:end]

		done, err := idx.embedBatch(ctx, batch)
		processed += done
		if err != nil {
			if errors.Is(err, embedding.ErrQuotaExhausted) {
				log.Warnf("[EmbeddingIndex] 配额耗尽，暂停向量化: 已处理 %d/%d", processed, total)
				return &EmbedReport{Processed: processed, Remaining: total - processed, Paused: true}, nil
			}
			return nil, fmt.Errorf("向量化批次失败 (offset=%d): %w", start, err)
		}

		if progress != nil {
			progress(processed, total)
		}

		// 批间延迟，遵守 token 速率预算；最后一批之后不再等待
		if end < total && idx.batchDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(idx.batchDelay):
			}
		}
	}

	log.Infof("[EmbeddingIndex] 项目 %d 向量化完成: %d 条", projectID, processed)
	return &EmbedReport{Processed: processed, Remaining: total - processed}, nil
}

// embedBatch 向量化一批条目并回写，返回成功写入的条数。
func (idx *embeddingIndex) embedBatch(ctx context.Context, batch []embedItem) (int, error) {
	texts := make([]string, len(batch))
	for i, item := range batch {
		texts[i] = item.text
	}

	var vectors [][]float32
	err := retry.Do(ctx, retry.RateLimited(), func(err error) bool {
		return errors.Is(err, embedding.ErrRateLimited)
	}, func() error {
		var embedErr error
		vectors, embedErr = idx.embeddingClient.CreateEmbeddings(ctx, texts)
		return embedErr
	})

	if errors.Is(err, embedding.ErrPayloadTooLarge) {
		// 批内有超长条目：降级为逐条处理，避免单条坏数据阻塞整批
		log.Warnf("[EmbeddingIndex] 批次容量超限，降级为逐条向量化 (batch=%d)", len(batch))
		return idx.embedOneByOne(ctx, batch)
	}
	if err != nil {
		return 0, err
	}

	written := 0
	for i, item := range batch {
		if err := item.write(vectors[i]); err != nil {
			return written, fmt.Errorf("回写向量失败: %w", err)
		}
		written++
	}
	return written, nil
}

// embedOneByOne 逐条向量化。单条仍然超限的条目记日志后跳过，
// 留待人工处理，不阻塞其余条目。
func (idx *embeddingIndex) embedOneByOne(ctx context.Context, batch []embedItem) (int, error) {
	written := 0
	for _, item := range batch {
		var vector []float32
		err := retry.Do(ctx, retry.RateLimited(), func(err error) bool {
			return errors.Is(err, embedding.ErrRateLimited)
		}, func() error {
			var embedErr error
			vector, embedErr = idx.embeddingClient.CreateEmbedding(ctx, item.text)
			return embedErr
		})
		if errors.Is(err, embedding.ErrPayloadTooLarge) {
			log.Warnf("[EmbeddingIndex] 单条内容仍超限，跳过 (len=%d)", len(item.text))
			continue
		}
		if err != nil {
			return written, err
		}
		if err := item.write(vector); err != nil {
			return written, fmt.Errorf("回写向量失败: %w", err)
		}
		written++
	}
	return written, nil
}

// collectUnembedded 汇集项目内待向量化的分块与识别结果。
func (idx *embeddingIndex) collectUnembedded(projectID uint) ([]embedItem, error) {
	chunks, err := idx.chunkRepo.FindUnembedded(projectID)
	if err != nil {
		return nil, fmt.Errorf("查询待向量化分块失败: %w", err)
	}
	findings, err := idx.findingRepo.FindUnembedded(projectID)
	if err != nil {
		return nil, fmt.Errorf("查询待向量化识别结果失败: %w", err)
	}

	items := make([]embedItem, 0, len(chunks)+len(findings))
	for _, chunk := range chunks {
		c := chunk
		items = append(items, embedItem{
			text: c.Content,
			write: func(vector []float32) error {
				return idx.chunkRepo.MarkEmbedded(c.ID, vector)
			},
		})
	}
	for _, finding := range findings {
		f := finding
		items = append(items, embedItem{
			text: f.EmbeddingText(),
			write: func(vector []float32) error {
				return idx.findingRepo.MarkEmbedded(f.ID, vector)
			},
		})
	}
	return items, nil
}

// Search 向量化查询文本后，对项目内全部已向量化内容计算余弦相似度，
// 稳定排序取前 topK 条（相似度相同保持原始检索顺序）。
func (idx *embeddingIndex) Search(ctx context.Context, projectID uint, queryText string, topK int) ([]model.SearchResult, error) {
	queryVector, err := idx.embeddingClient.CreateEmbedding(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("failed to create query embedding: %w", err)
	}

	chunks, err := idx.chunkRepo.FindEmbedded(projectID)
	if err != nil {
		return nil, fmt.Errorf("查询已向量化分块失败: %w", err)
	}
	findings, err := idx.findingRepo.FindEmbedded(projectID)
	if err != nil {
		return nil, fmt.Errorf("查询已向量化识别结果失败: %w", err)
	}

	results := make([]model.SearchResult, 0, len(chunks)+len(findings))
	for _, chunk := range chunks {
		score, ok := Cosine(queryVector, chunk.Embedding)
		if !ok {
			continue
		}
		results = append(results, model.SearchResult{Kind: model.SearchKindChunk, Score: score, Chunk: chunk})
	}
	for _, finding := range findings {
		score, ok := Cosine(queryVector, finding.Embedding)
		if !ok {
			continue
		}
		results = append(results, model.SearchResult{Kind: model.SearchKindVisualFinding, Score: score, Finding: finding})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	log.Infof("[EmbeddingIndex] 检索完成, project: %d, 返回 %d 条", projectID, len(results))
	return results, nil
}

// Cosine 计算两个向量的余弦相似度。
// 向量维度由 Embedding 提供方决定，这里只要求两者等长且范数非零。
func Cosine(a, b []float32) (float64, bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), true
}
