package repository

import (
	"gongtu-rag-go/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// VisualFindingRepository 定义了视觉识别结果的数据操作接口。
// 记录由外部视觉协作方写入，本服务只读 findings 内容，
// 仅在向量化阶段回填 embedding 字段。
type VisualFindingRepository interface {
	// Upsert 按 (document_id, page_number) 幂等写入一条识别结果。
	Upsert(finding *model.VisualFinding) error
	FindUnembedded(projectID uint) ([]*model.VisualFinding, error)
	FindEmbedded(projectID uint) ([]*model.VisualFinding, error)
	CountEmbedded(projectID uint) (int64, error)
	MarkEmbedded(findingID uint, vector []float32) error
}

type visualFindingRepository struct {
	db *gorm.DB
}

// NewVisualFindingRepository 创建一个新的 VisualFindingRepository 实例。
func NewVisualFindingRepository(db *gorm.DB) VisualFindingRepository {
	return &visualFindingRepository{db: db}
}

func (r *visualFindingRepository) projectScope(projectID uint) *gorm.DB {
	return r.db.Model(&model.VisualFinding{}).
		Joins("JOIN documents ON documents.id = visual_findings.document_id").
		Where("documents.project_id = ?", projectID)
}

// Upsert 写入识别结果；同一页重复写入时覆盖内容并清空旧向量。
func (r *visualFindingRepository) Upsert(finding *model.VisualFinding) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "document_id"}, {Name: "page_number"}},
		DoUpdates: clause.AssignmentColumns([]string{"sheet_number", "sheet_type", "findings", "embedding"}),
	}).Create(finding).Error
}

// FindUnembedded 返回项目内尚未向量化的识别结果。
func (r *visualFindingRepository) FindUnembedded(projectID uint) ([]*model.VisualFinding, error) {
	var findings []*model.VisualFinding
	err := r.projectScope(projectID).
		Where("visual_findings.embedding IS NULL").
		Order("visual_findings.document_id asc, visual_findings.page_number asc").
		Find(&findings).Error
	return findings, err
}

// FindEmbedded 返回项目内已向量化的识别结果。
func (r *visualFindingRepository) FindEmbedded(projectID uint) ([]*model.VisualFinding, error) {
	var findings []*model.VisualFinding
	err := r.projectScope(projectID).
		Where("visual_findings.embedding IS NOT NULL").
		Order("visual_findings.document_id asc, visual_findings.page_number asc").
		Find(&findings).Error
	return findings, err
}

// CountEmbedded 统计项目内已向量化的识别结果数。
func (r *visualFindingRepository) CountEmbedded(projectID uint) (int64, error) {
	var count int64
	err := r.projectScope(projectID).
		Where("visual_findings.embedding IS NOT NULL").
		Count(&count).Error
	return count, err
}

// MarkEmbedded 回填单条识别结果的向量。
func (r *visualFindingRepository) MarkEmbedded(findingID uint, vector []float32) error {
	return r.db.Model(&model.VisualFinding{}).Where("id = ?", findingID).Update("embedding", vector).Error
}
