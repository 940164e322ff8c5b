package service

import (
	"encoding/json"
	"fmt"

	"gongtu-rag-go/internal/model"
	"gongtu-rag-go/internal/repository"
	"gongtu-rag-go/pkg/log"
)

// FindingService 接收外部视觉协作方推送的图纸识别结果。
// 本服务只存储与读取，从不自行计算视觉内容。
type FindingService interface {
	// IngestFinding 幂等写入一页的识别结果，重复推送覆盖旧内容并重置向量。
	// 识别结果只在检索上下文中出现，不提供独立的读接口。
	IngestFinding(documentID uint, pageNumber int, sheetNumber *string, sheetType string, findings model.VisualFindingsPayload) error
}

type findingService struct {
	findingRepo  repository.VisualFindingRepository
	documentRepo repository.DocumentRepository
}

// NewFindingService 创建一个新的 FindingService 实例。
func NewFindingService(findingRepo repository.VisualFindingRepository, documentRepo repository.DocumentRepository) FindingService {
	return &findingService{findingRepo: findingRepo, documentRepo: documentRepo}
}

func (s *findingService) IngestFinding(documentID uint, pageNumber int, sheetNumber *string, sheetType string, findings model.VisualFindingsPayload) error {
	if _, err := s.documentRepo.GetDocument(documentID); err != nil {
		return ErrDocumentNotFound
	}

	raw, err := json.Marshal(findings)
	if err != nil {
		return fmt.Errorf("序列化识别结果失败: %w", err)
	}

	finding := &model.VisualFinding{
		DocumentID:  documentID,
		PageNumber:  pageNumber,
		SheetNumber: sheetNumber,
		SheetType:   sheetType,
		FindingsRaw: string(raw),
	}
	if err := s.findingRepo.Upsert(finding); err != nil {
		return fmt.Errorf("写入识别结果失败: %w", err)
	}
	log.Infof("视觉识别结果已入库: DocumentID=%d, Page=%d", documentID, pageNumber)
	return nil
}
