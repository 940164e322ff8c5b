// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"gongtu-rag-go/internal/service"
	"gongtu-rag-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// ProjectHandler 处理项目管理相关请求。
type ProjectHandler struct {
	documentService service.DocumentService
}

// NewProjectHandler 创建一个新的 ProjectHandler 实例。
func NewProjectHandler(documentService service.DocumentService) *ProjectHandler {
	return &ProjectHandler{documentService: documentService}
}

type createProjectRequest struct {
	Name string `json:"name" binding:"required"`
}

// CreateProject 创建项目。
func (h *ProjectHandler) CreateProject(c *gin.Context) {
	var req createProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求参数"})
		return
	}

	project, err := h.documentService.CreateProject(req.Name)
	if err != nil {
		log.Errorf("[ProjectHandler] 创建项目失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "创建项目失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": project, "message": "success"})
}

// ListProjects 列出全部项目。
func (h *ProjectHandler) ListProjects(c *gin.Context) {
	projects, err := h.documentService.ListProjects()
	if err != nil {
		log.Errorf("[ProjectHandler] 查询项目列表失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询项目列表失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": projects, "message": "success"})
}

// GetProject 查询单个项目。
func (h *ProjectHandler) GetProject(c *gin.Context) {
	projectID, ok := parseUintParam(c, "projectId")
	if !ok {
		return
	}

	project, err := h.documentService.GetProject(projectID)
	if errors.Is(err, service.ErrProjectNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "项目不存在"})
		return
	}
	if err != nil {
		log.Errorf("[ProjectHandler] 查询项目失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询项目失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": project, "message": "success"})
}

// parseUintParam 解析路径中的数字参数，失败时直接写入 400 响应。
func parseUintParam(c *gin.Context, name string) (uint, bool) {
	value, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || value == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的 " + name})
		return 0, false
	}
	return uint(value), true
}
