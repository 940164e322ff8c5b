package handler

import (
	"errors"
	"net/http"

	"gongtu-rag-go/internal/service"
	"gongtu-rag-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// DocumentHandler 处理文档上传与查询请求。
type DocumentHandler struct {
	documentService service.DocumentService
}

// NewDocumentHandler 创建一个新的 DocumentHandler 实例。
func NewDocumentHandler(documentService service.DocumentService) *DocumentHandler {
	return &DocumentHandler{documentService: documentService}
}

// Upload 接收 multipart 上传的 PDF，入库后异步处理。
func (h *DocumentHandler) Upload(c *gin.Context) {
	projectID, ok := parseUintParam(c, "projectId")
	if !ok {
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少上传文件"})
		return
	}
	docType := c.DefaultPostForm("doc_type", "drawing")

	file, err := fileHeader.Open()
	if err != nil {
		log.Errorf("[DocumentHandler] 打开上传文件失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "读取上传文件失败"})
		return
	}
	defer file.Close()

	doc, err := h.documentService.UploadDocument(c.Request.Context(), projectID, fileHeader.Filename, docType, file, fileHeader.Size)
	if errors.Is(err, service.ErrProjectNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "项目不存在"})
		return
	}
	if err != nil {
		log.Errorf("[DocumentHandler] 上传文档失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "上传文档失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": doc, "message": "success"})
}

// List 列出项目内的文档。
func (h *DocumentHandler) List(c *gin.Context) {
	projectID, ok := parseUintParam(c, "projectId")
	if !ok {
		return
	}

	docs, err := h.documentService.ListDocuments(projectID)
	if err != nil {
		log.Errorf("[DocumentHandler] 查询文档列表失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询文档列表失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": docs, "message": "success"})
}

// Reprocess 重新投递文档处理任务。
func (h *DocumentHandler) Reprocess(c *gin.Context) {
	documentID, ok := parseUintParam(c, "documentId")
	if !ok {
		return
	}

	err := h.documentService.ReprocessDocument(documentID)
	if errors.Is(err, service.ErrDocumentNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "文档不存在"})
		return
	}
	if err != nil {
		log.Errorf("[DocumentHandler] 重新处理文档失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "重新处理文档失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": nil, "message": "success"})
}
