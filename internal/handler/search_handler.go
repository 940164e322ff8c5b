package handler

import (
	"net/http"
	"strconv"

	"gongtu-rag-go/internal/service"
	"gongtu-rag-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// SearchHandler 处理向量检索与向量化补跑请求。
type SearchHandler struct {
	searchService service.SearchService
}

// NewSearchHandler 创建一个新的 SearchHandler 实例。
func NewSearchHandler(searchService service.SearchService) *SearchHandler {
	return &SearchHandler{searchService: searchService}
}

// Search 是处理语义检索请求的 Gin 处理函数。
func (h *SearchHandler) Search(c *gin.Context) {
	projectID, ok := parseUintParam(c, "projectId")
	if !ok {
		return
	}

	query := c.Query("query")
	log.Infof("[SearchHandler] 收到检索请求, project: %d, query: %s", projectID, query)
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的查询参数"})
		return
	}
	topK, err := strconv.Atoi(c.DefaultQuery("topK", "0"))
	if err != nil || topK < 0 {
		topK = 0
	}

	results, err := h.searchService.Search(c.Request.Context(), projectID, query, topK)
	if err != nil {
		log.Errorf("[SearchHandler] 检索服务返回错误: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "检索失败"})
		return
	}

	log.Infof("[SearchHandler] 检索成功, query: '%s', 返回 %d 条结果", query, len(results))
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": results, "message": "success"})
}

// RunEmbedding 触发项目向量化补跑，返回处理进度报告。
// 配额暂停后再调用即可从断点续做。
func (h *SearchHandler) RunEmbedding(c *gin.Context) {
	projectID, ok := parseUintParam(c, "projectId")
	if !ok {
		return
	}

	report, err := h.searchService.RunEmbedding(c.Request.Context(), projectID)
	if err != nil {
		log.Errorf("[SearchHandler] 向量化补跑失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "向量化失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": report, "message": "success"})
}
