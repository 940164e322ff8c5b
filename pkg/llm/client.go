// Package llm provides clients for interacting with Large Language Models.
package llm

import "context"

// Message 表示一条角色消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerationParams 控制生成行为
type GenerationParams struct {
	Temperature *float64
	MaxTokens   *int
}

// Client defines the interface for an LLM client.
// messages 采用统一的 role-based 形态（system 消息内联在列表中），
// 各实现负责转换为自家 API 所需的形态。
type Client interface {
	Complete(ctx context.Context, model string, messages []Message, gen *GenerationParams) (string, error)
}

// SplitSystem 将消息列表拆分为 system 内容与其余消息。
// Anthropic 形态的 API 要求 system 内容在消息列表之外单独传递。
func SplitSystem(messages []Message) (string, []Message) {
	var system string
	rest := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == "system" && system == "" {
			system = m.Content
			continue
		}
		rest = append(rest, m)
	}
	return system, rest
}
