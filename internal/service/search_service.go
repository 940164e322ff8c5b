package service

import (
	"context"

	"gongtu-rag-go/internal/config"
	"gongtu-rag-go/internal/index"
	"gongtu-rag-go/internal/model"
)

// SearchService 对外暴露向量检索与向量化补跑。
type SearchService interface {
	Search(ctx context.Context, projectID uint, query string, topK int) ([]model.SearchResult, error)
	// RunEmbedding 触发一次项目向量化，幂等可续跑，
	// 用于配额暂停后的补跑或视觉识别结果入库后的增量向量化。
	RunEmbedding(ctx context.Context, projectID uint) (*index.EmbedReport, error)
}

type searchService struct {
	embeddingIndex index.EmbeddingIndex
}

// NewSearchService 创建一个新的 SearchService 实例。
func NewSearchService(embeddingIndex index.EmbeddingIndex) SearchService {
	return &searchService{embeddingIndex: embeddingIndex}
}

func (s *searchService) Search(ctx context.Context, projectID uint, query string, topK int) ([]model.SearchResult, error) {
	if topK <= 0 {
		topK = config.Conf.RAG.TopK
	}
	return s.embeddingIndex.Search(ctx, projectID, query, topK)
}

func (s *searchService) RunEmbedding(ctx context.Context, projectID uint) (*index.EmbedReport, error) {
	return s.embeddingIndex.EmbedUnembedded(ctx, projectID, nil)
}
