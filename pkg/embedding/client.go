// Package embedding provides a client for interacting with embedding models.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"gongtu-rag-go/internal/config"
	"gongtu-rag-go/pkg/log"
)

// 可识别的提供方错误。调用方依赖这些哨兵错误来选择恢复策略：
// 限流做一次定时重试，超长降级为逐条处理，配额耗尽则暂停并上报进度。
var (
	ErrRateLimited     = errors.New("embedding provider rate limited")
	ErrPayloadTooLarge = errors.New("embedding payload exceeds context length")
	ErrQuotaExhausted  = errors.New("embedding quota exhausted")
)

// Client defines the interface for an embedding client.
type Client interface {
	// CreateEmbeddings 批量向量化，返回与输入等长、顺序一致的向量切片。
	CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
	// CreateEmbedding 单条向量化。
	CreateEmbedding(ctx context.Context, text string) ([]float32, error)
}

type openAICompatibleClient struct {
	cfg    config.EmbeddingConfig
	client *http.Client
}

// NewClient creates a new embedding client based on the provider in the config.
func NewClient(cfg config.EmbeddingConfig) Client {
	return &openAICompatibleClient{
		cfg:    cfg,
		client: &http.Client{},
	}
}

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

// CreateEmbedding calls the OpenAI-compatible API to get the vector for a given text.
func (c *openAICompatibleClient) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.CreateEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// CreateEmbeddings 批量调用 Embedding API。
func (c *openAICompatibleClient) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	log.Infof("[EmbeddingClient] 开始调用 Embedding API, model: %s, batch: %d", c.cfg.Model, len(texts))
	reqBody := embeddingRequest{
		Model:      c.cfg.Model,
		Input:      texts,
		Dimensions: c.cfg.Dimensions,
	}

	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.BaseURL+"/embeddings", bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		log.Errorf("[EmbeddingClient] 调用 Embedding API 失败, error: %v", err)
		return nil, fmt.Errorf("failed to call embedding api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, classifyAPIError(resp.StatusCode, string(bodyBytes))
	}

	var embeddingResp embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&embeddingResp); err != nil {
		log.Errorf("[EmbeddingClient] 解析 Embedding API 响应失败, error: %v", err)
		return nil, fmt.Errorf("failed to decode embedding response: %w", err)
	}

	if len(embeddingResp.Data) != len(texts) {
		log.Warnf("[EmbeddingClient] Embedding API 返回的向量数 (%d) 与请求数 (%d) 不一致", len(embeddingResp.Data), len(texts))
		return nil, fmt.Errorf("embedding api returned %d vectors for %d inputs", len(embeddingResp.Data), len(texts))
	}

	// 按 index 还原顺序，提供方不保证 data 有序
	vectors := make([][]float32, len(texts))
	for _, d := range embeddingResp.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, fmt.Errorf("embedding api returned out-of-range index %d", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	for i, v := range vectors {
		if len(v) == 0 {
			return nil, fmt.Errorf("received empty embedding for input %d", i)
		}
	}

	log.Infof("[EmbeddingClient] 成功获取 %d 个向量, 维度: %d", len(vectors), len(vectors[0]))
	return vectors, nil
}

// classifyAPIError 将提供方的 HTTP 错误映射为可识别的哨兵错误。
func classifyAPIError(statusCode int, body string) error {
	lower := strings.ToLower(body)
	switch {
	case statusCode == http.StatusTooManyRequests:
		if strings.Contains(lower, "insufficient_quota") || strings.Contains(lower, "quota") {
			return fmt.Errorf("%w: %s", ErrQuotaExhausted, body)
		}
		return fmt.Errorf("%w: %s", ErrRateLimited, body)
	case statusCode == http.StatusRequestEntityTooLarge:
		return fmt.Errorf("%w: %s", ErrPayloadTooLarge, body)
	case statusCode == http.StatusPaymentRequired:
		return fmt.Errorf("%w: %s", ErrQuotaExhausted, body)
	case statusCode == http.StatusBadRequest &&
		(strings.Contains(lower, "context length") || strings.Contains(lower, "context_length") || strings.Contains(lower, "too long")):
		return fmt.Errorf("%w: %s", ErrPayloadTooLarge, body)
	default:
		return fmt.Errorf("embedding api returned status %d: %s", statusCode, body)
	}
}
