// Package service 实现了核心业务逻辑。
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"gongtu-rag-go/internal/model"
	"gongtu-rag-go/internal/repository"
	"gongtu-rag-go/pkg/kafka"
	"gongtu-rag-go/pkg/log"
	"gongtu-rag-go/pkg/storage"
	"gongtu-rag-go/pkg/tasks"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrProjectNotFound 表示项目不存在。
var ErrProjectNotFound = errors.New("project not found")

// ErrDocumentNotFound 表示文档不存在。
var ErrDocumentNotFound = errors.New("document not found")

// DocumentService 定义了项目与文档管理的业务接口。
// 上传走异步流水线：对象先落 MinIO，再投递 Kafka 任务，由消费者解析入库。
type DocumentService interface {
	CreateProject(name string) (*model.Project, error)
	GetProject(projectID uint) (*model.Project, error)
	ListProjects() ([]model.Project, error)

	UploadDocument(ctx context.Context, projectID uint, fileName, docType string, reader io.Reader, size int64) (*model.Document, error)
	ListDocuments(projectID uint) ([]model.Document, error)
	GetDocument(documentID uint) (*model.Document, error)
	// ReprocessDocument 重新投递文档处理任务，用于失败后人工重试。
	ReprocessDocument(documentID uint) error
}

type documentService struct {
	documentRepo repository.DocumentRepository
	bucketName   string
}

// NewDocumentService 创建一个新的 DocumentService 实例。
func NewDocumentService(documentRepo repository.DocumentRepository, bucketName string) DocumentService {
	return &documentService{documentRepo: documentRepo, bucketName: bucketName}
}

func (s *documentService) CreateProject(name string) (*model.Project, error) {
	project := &model.Project{Name: name}
	if err := s.documentRepo.CreateProject(project); err != nil {
		return nil, fmt.Errorf("创建项目失败: %w", err)
	}
	return project, nil
}

func (s *documentService) GetProject(projectID uint) (*model.Project, error) {
	project, err := s.documentRepo.GetProject(projectID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProjectNotFound
	}
	return project, err
}

func (s *documentService) ListProjects() ([]model.Project, error) {
	return s.documentRepo.ListProjects()
}

// UploadDocument 接收上传的 PDF。
// 对象名带 UUID 前缀避免同名覆盖；入库后投递处理任务。
func (s *documentService) UploadDocument(ctx context.Context, projectID uint, fileName, docType string, reader io.Reader, size int64) (*model.Document, error) {
	if _, err := s.GetProject(projectID); err != nil {
		return nil, err
	}
	if docType != "specification" {
		docType = "drawing"
	}

	// 步骤1: 上传原始文件到 MinIO
	objectName := fmt.Sprintf("projects/%d/%s%s", projectID, uuid.NewString(), filepath.Ext(fileName))
	if err := storage.PutObject(ctx, s.bucketName, objectName, reader, size, "application/pdf"); err != nil {
		return nil, fmt.Errorf("上传文件到对象存储失败: %w", err)
	}

	// 步骤2: 写入文档元数据
	doc := &model.Document{
		ProjectID:  projectID,
		FileName:   fileName,
		ObjectName: objectName,
		DocType:    docType,
		Status:     model.DocumentStatusPending,
	}
	if err := s.documentRepo.CreateDocument(doc); err != nil {
		return nil, fmt.Errorf("写入文档记录失败: %w", err)
	}

	// 步骤3: 投递异步处理任务
	if err := s.produceTask(doc); err != nil {
		// 任务投递失败时文档停在 pending，可通过重试接口再投递
		log.Errorf("投递文档处理任务失败: DocumentID=%d, Error: %v", doc.ID, err)
		return nil, fmt.Errorf("投递处理任务失败: %w", err)
	}

	log.Infof("文档已接收并投递处理: DocumentID=%d, FileName=%s", doc.ID, fileName)
	return doc, nil
}

func (s *documentService) ListDocuments(projectID uint) ([]model.Document, error) {
	return s.documentRepo.ListByProject(projectID)
}

func (s *documentService) GetDocument(documentID uint) (*model.Document, error) {
	doc, err := s.documentRepo.GetDocument(documentID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrDocumentNotFound
	}
	return doc, err
}

// ReprocessDocument 把文档重新排队。流水线按文档幂等，重复处理安全。
func (s *documentService) ReprocessDocument(documentID uint) error {
	doc, err := s.GetDocument(documentID)
	if err != nil {
		return err
	}
	if err := s.documentRepo.UpdateStatus(doc.ID, model.DocumentStatusPending); err != nil {
		return err
	}
	return s.produceTask(doc)
}

func (s *documentService) produceTask(doc *model.Document) error {
	return kafka.ProduceDocumentTask(tasks.DocumentProcessingTask{
		DocumentID: doc.ID,
		ProjectID:  doc.ProjectID,
		ObjectName: doc.ObjectName,
		FileName:   doc.FileName,
	})
}
