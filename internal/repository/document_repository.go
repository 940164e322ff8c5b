package repository

import (
	"gongtu-rag-go/internal/model"

	"gorm.io/gorm"
)

// DocumentRepository 定义了项目与文档元数据的数据操作接口。
type DocumentRepository interface {
	CreateProject(project *model.Project) error
	GetProject(projectID uint) (*model.Project, error)
	ListProjects() ([]model.Project, error)

	CreateDocument(doc *model.Document) error
	GetDocument(documentID uint) (*model.Document, error)
	ListByProject(projectID uint) ([]model.Document, error)
	UpdateStatus(documentID uint, status int) error
	UpdatePageCount(documentID uint, pageCount int) error
	// FindBatchByIDs 批量取文档，用于把分块映射回文件名。
	FindBatchByIDs(ids []uint) ([]*model.Document, error)
}

type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository 创建一个新的 DocumentRepository 实例。
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

func (r *documentRepository) CreateProject(project *model.Project) error {
	return r.db.Create(project).Error
}

func (r *documentRepository) GetProject(projectID uint) (*model.Project, error) {
	var project model.Project
	if err := r.db.First(&project, projectID).Error; err != nil {
		return nil, err
	}
	return &project, nil
}

func (r *documentRepository) ListProjects() ([]model.Project, error) {
	var projects []model.Project
	err := r.db.Order("id asc").Find(&projects).Error
	return projects, err
}

func (r *documentRepository) CreateDocument(doc *model.Document) error {
	return r.db.Create(doc).Error
}

func (r *documentRepository) GetDocument(documentID uint) (*model.Document, error) {
	var doc model.Document
	if err := r.db.First(&doc, documentID).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *documentRepository) ListByProject(projectID uint) ([]model.Document, error) {
	var docs []model.Document
	err := r.db.Where("project_id = ?", projectID).Order("id asc").Find(&docs).Error
	return docs, err
}

func (r *documentRepository) UpdateStatus(documentID uint, status int) error {
	return r.db.Model(&model.Document{}).Where("id = ?", documentID).Update("status", status).Error
}

func (r *documentRepository) UpdatePageCount(documentID uint, pageCount int) error {
	return r.db.Model(&model.Document{}).Where("id = ?", documentID).Update("page_count", pageCount).Error
}

// FindBatchByIDs 按 ID 批量取文档。
func (r *documentRepository) FindBatchByIDs(ids []uint) ([]*model.Document, error) {
	var docs []*model.Document
	if len(ids) == 0 {
		return docs, nil
	}
	err := r.db.Where("id IN ?", ids).Find(&docs).Error
	return docs, err
}
