package handler

import (
	"errors"
	"net/http"

	"gongtu-rag-go/internal/model"
	"gongtu-rag-go/internal/service"
	"gongtu-rag-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// FindingHandler 接收外部视觉协作方推送的识别结果。
type FindingHandler struct {
	findingService service.FindingService
}

// NewFindingHandler 创建一个新的 FindingHandler 实例。
func NewFindingHandler(findingService service.FindingService) *FindingHandler {
	return &FindingHandler{findingService: findingService}
}

type ingestFindingRequest struct {
	PageNumber  int                         `json:"pageNumber" binding:"required,min=1"`
	SheetNumber *string                     `json:"sheetNumber"`
	SheetType   string                      `json:"sheetType"`
	Findings    model.VisualFindingsPayload `json:"findings" binding:"required"`
}

// Ingest 写入一页图纸的视觉识别结果，按 (document, page) 幂等。
func (h *FindingHandler) Ingest(c *gin.Context) {
	documentID, ok := parseUintParam(c, "documentId")
	if !ok {
		return
	}

	var req ingestFindingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求参数"})
		return
	}

	err := h.findingService.IngestFinding(documentID, req.PageNumber, req.SheetNumber, req.SheetType, req.Findings)
	if errors.Is(err, service.ErrDocumentNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "文档不存在"})
		return
	}
	if err != nil {
		log.Errorf("[FindingHandler] 识别结果入库失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "识别结果入库失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": nil, "message": "success"})
}
