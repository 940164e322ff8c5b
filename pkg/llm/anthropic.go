package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"gongtu-rag-go/internal/config"
)

// anthropicClient 适配 Anthropic messages API。
// 与 OpenAI 形态不同，system 内容必须在消息列表之外单独传递。
type anthropicClient struct {
	cfg    config.LLMProviderConfig
	client *http.Client
}

// NewAnthropicClient 创建一个 Anthropic 形态的 LLM 客户端。
func NewAnthropicClient(cfg config.LLMProviderConfig) Client {
	return &anthropicClient{
		cfg:    cfg,
		client: &http.Client{},
	}
}

type anthropicRequest struct {
	Model       string    `json:"model"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature *float64  `json:"temperature,omitempty"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// Complete 调用 messages 接口并返回完整回答文本。
func (c *anthropicClient) Complete(ctx context.Context, model string, messages []Message, gen *GenerationParams) (string, error) {
	system, rest := SplitSystem(messages)

	reqBody := anthropicRequest{
		Model:    model,
		System:   system,
		Messages: rest,
		// Anthropic 要求 max_tokens 必填
		MaxTokens: 4096,
	}
	if gen != nil {
		reqBody.Temperature = gen.Temperature
		if gen.MaxTokens != nil {
			reqBody.MaxTokens = *gen.MaxTokens
		}
	}

	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal messages request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.BaseURL+"/v1/messages", bytes.NewReader(reqBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create messages request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.cfg.APIKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call messages api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("messages api returned non-200 status: %s, body: %s", resp.Status, string(bodyBytes))
	}

	var msgResp anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&msgResp); err != nil {
		return "", fmt.Errorf("failed to decode messages response: %w", err)
	}

	var text string
	for _, block := range msgResp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if text == "" {
		return "", fmt.Errorf("messages api returned empty content")
	}
	return text, nil
}
