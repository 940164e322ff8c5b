// Package repository 提供了数据访问层的实现。
package repository

import (
	"gongtu-rag-go/internal/model"

	"gorm.io/gorm"
)

// ChunkFilter 是项目内分块查询的可选过滤条件。
type ChunkFilter struct {
	DocumentID  uint
	SheetNumber string
}

// ChunkRepository 定义了分块与详图索引（Callout）的数据操作接口。
// 所有读取都以项目为边界，严禁跨项目读取。
type ChunkRepository interface {
	BatchCreate(chunks []*model.Chunk) error
	BatchCreateCallouts(callouts []*model.Callout) error
	// DeleteByDocumentID 删除文档的全部分块与索引边，用于幂等重处理。
	DeleteByDocumentID(documentID uint) error

	GetChunksByProject(projectID uint, filter ChunkFilter) ([]*model.Chunk, error)
	GetChunkBySheetAndFilename(projectID uint, sheetNumber, fileName string) (*model.Chunk, error)
	GetChunksByFilename(projectID uint, fileName string) ([]*model.Chunk, error)

	// FindUnembedded 返回项目内所有 embedding 为 NULL 的分块。
	FindUnembedded(projectID uint) ([]*model.Chunk, error)
	// FindEmbedded 返回项目内所有已向量化的分块。
	FindEmbedded(projectID uint) ([]*model.Chunk, error)
	CountEmbedded(projectID uint) (int64, error)
	// MarkEmbedded 原子回填单个分块的向量。
	MarkEmbedded(chunkID uint, vector []float32) error

	// FindBySheets 按图号集合取分块，跳过已有的分块，按页码升序截取 limit 条。
	FindBySheets(projectID uint, sheets []string, excludeIDs []uint, limit int) ([]*model.Chunk, error)
	// FindRelatedSheets 沿详图索引图双向遍历一步：
	// 返回引用了给定图号、或被给定图号引用的其他图号。
	FindRelatedSheets(projectID uint, sheets []string) ([]string, error)
}

type chunkRepository struct {
	db *gorm.DB
}

// NewChunkRepository 创建一个新的 ChunkRepository 实例。
func NewChunkRepository(db *gorm.DB) ChunkRepository {
	return &chunkRepository{db: db}
}

// projectScope 将分块查询限定在指定项目的文档集合内。
func (r *chunkRepository) projectScope(projectID uint) *gorm.DB {
	return r.db.Model(&model.Chunk{}).
		Joins("JOIN documents ON documents.id = chunks.document_id").
		Where("documents.project_id = ?", projectID)
}

// BatchCreate 批量创建分块记录。
func (r *chunkRepository) BatchCreate(chunks []*model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	return r.db.CreateInBatches(chunks, 100).Error
}

// BatchCreateCallouts 批量创建详图索引边。
func (r *chunkRepository) BatchCreateCallouts(callouts []*model.Callout) error {
	if len(callouts) == 0 {
		return nil
	}
	return r.db.CreateInBatches(callouts, 100).Error
}

// DeleteByDocumentID 删除文档的分块与索引边记录。
func (r *chunkRepository) DeleteByDocumentID(documentID uint) error {
	if err := r.db.Where("document_id = ?", documentID).Delete(&model.Callout{}).Error; err != nil {
		return err
	}
	return r.db.Where("document_id = ?", documentID).Delete(&model.Chunk{}).Error
}

// GetChunksByProject 按过滤条件查询项目内分块。
func (r *chunkRepository) GetChunksByProject(projectID uint, filter ChunkFilter) ([]*model.Chunk, error) {
	q := r.projectScope(projectID)
	if filter.DocumentID != 0 {
		q = q.Where("chunks.document_id = ?", filter.DocumentID)
	}
	if filter.SheetNumber != "" {
		q = q.Where("chunks.sheet_number = ?", filter.SheetNumber)
	}
	var chunks []*model.Chunk
	err := q.Order("chunks.document_id asc, chunks.page_number asc").Find(&chunks).Error
	return chunks, err
}

// GetChunkBySheetAndFilename 按图号与文件名精确定位一条分块。
func (r *chunkRepository) GetChunkBySheetAndFilename(projectID uint, sheetNumber, fileName string) (*model.Chunk, error) {
	var chunk model.Chunk
	err := r.projectScope(projectID).
		Where("chunks.sheet_number = ? AND documents.file_name = ?", sheetNumber, fileName).
		Order("chunks.page_number asc").
		First(&chunk).Error
	if err != nil {
		return nil, err
	}
	return &chunk, nil
}

// GetChunksByFilename 返回指定文件名文档的全部分块，按页码升序。
func (r *chunkRepository) GetChunksByFilename(projectID uint, fileName string) ([]*model.Chunk, error) {
	var chunks []*model.Chunk
	err := r.projectScope(projectID).
		Where("documents.file_name = ?", fileName).
		Order("chunks.page_number asc").
		Find(&chunks).Error
	return chunks, err
}

// FindUnembedded 返回项目内尚未向量化的分块。
func (r *chunkRepository) FindUnembedded(projectID uint) ([]*model.Chunk, error) {
	var chunks []*model.Chunk
	err := r.projectScope(projectID).
		Where("chunks.embedding IS NULL").
		Order("chunks.document_id asc, chunks.page_number asc").
		Find(&chunks).Error
	return chunks, err
}

// FindEmbedded 返回项目内已向量化的分块。
func (r *chunkRepository) FindEmbedded(projectID uint) ([]*model.Chunk, error) {
	var chunks []*model.Chunk
	err := r.projectScope(projectID).
		Where("chunks.embedding IS NOT NULL").
		Order("chunks.document_id asc, chunks.page_number asc").
		Find(&chunks).Error
	return chunks, err
}

// CountEmbedded 统计项目内已向量化的分块数。
func (r *chunkRepository) CountEmbedded(projectID uint) (int64, error) {
	var count int64
	err := r.projectScope(projectID).
		Where("chunks.embedding IS NOT NULL").
		Count(&count).Error
	return count, err
}

// MarkEmbedded 回填单个分块的向量。按分块 ID 的单行更新，天然幂等。
func (r *chunkRepository) MarkEmbedded(chunkID uint, vector []float32) error {
	return r.db.Model(&model.Chunk{}).Where("id = ?", chunkID).Update("embedding", vector).Error
}

// FindBySheets 取给定图号集合上的分块，排除已持有的分块，按页码升序。
func (r *chunkRepository) FindBySheets(projectID uint, sheets []string, excludeIDs []uint, limit int) ([]*model.Chunk, error) {
	if len(sheets) == 0 || limit <= 0 {
		return nil, nil
	}
	q := r.projectScope(projectID).Where("chunks.sheet_number IN ?", sheets)
	if len(excludeIDs) > 0 {
		q = q.Where("chunks.id NOT IN ?", excludeIDs)
	}
	var chunks []*model.Chunk
	err := q.Order("chunks.page_number asc").Limit(limit).Find(&chunks).Error
	return chunks, err
}

// FindRelatedSheets 沿详图索引图双向查找相邻图号。
func (r *chunkRepository) FindRelatedSheets(projectID uint, sheets []string) ([]string, error) {
	if len(sheets) == 0 {
		return nil, nil
	}

	calloutScope := func() *gorm.DB {
		return r.db.Model(&model.Callout{}).
			Joins("JOIN documents ON documents.id = callouts.document_id").
			Where("documents.project_id = ?", projectID)
	}

	// 正向：这些图引用了谁
	var targets []string
	if err := calloutScope().
		Where("callouts.sheet_number IN ?", sheets).
		Distinct().Pluck("callouts.target_sheet", &targets).Error; err != nil {
		return nil, err
	}

	// 反向：谁引用了这些图
	var sources []string
	if err := calloutScope().
		Where("callouts.target_sheet IN ?", sheets).
		Distinct().Pluck("callouts.sheet_number", &sources).Error; err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(sheets))
	for _, s := range sheets {
		seen[s] = struct{}{}
	}
	var related []string
	for _, s := range append(targets, sources...) {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		related = append(related, s)
	}
	return related, nil
}
