package answer

// ProviderOpenAI 与 ProviderAnthropic 是注册表中合法的后端取值。
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// ModelSpec 描述注册表中的一个可选模型后端。
// Advanced 标记的模型在复杂问题的直答路径上启用分步推理脚手架。
type ModelSpec struct {
	ID          string  `json:"id"`
	Provider    string  `json:"-"`
	DisplayName string  `json:"display_name"`
	Description string  `json:"description"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	Advanced    bool    `json:"advanced"`
}

// 固定注册表。模型 ID 对外暴露，新增条目不影响已有调用方。
var modelRegistry = []ModelSpec{
	{
		ID:          "gpt-4o",
		Provider:    ProviderOpenAI,
		DisplayName: "GPT-4o",
		Description: "通用问答，速度与质量均衡",
		MaxTokens:   4096,
		Temperature: 0.2,
	},
	{
		ID:          "gpt-4o-mini",
		Provider:    ProviderOpenAI,
		DisplayName: "GPT-4o mini",
		Description: "轻量快速，适合简单查找类问题",
		MaxTokens:   2048,
		Temperature: 0.2,
	},
	{
		ID:          "claude-sonnet-4-5",
		Provider:    ProviderAnthropic,
		DisplayName: "Claude Sonnet 4.5",
		Description: "复杂图纸问题的深入分析",
		MaxTokens:   8192,
		Temperature: 0.1,
		Advanced:    true,
	},
	{
		ID:          "claude-haiku-4-5",
		Provider:    ProviderAnthropic,
		DisplayName: "Claude Haiku 4.5",
		Description: "低延迟问答",
		MaxTokens:   4096,
		Temperature: 0.2,
	},
}

// Models 返回注册表的副本，供 API 层列出可选模型。
func Models() []ModelSpec {
	out := make([]ModelSpec, len(modelRegistry))
	copy(out, modelRegistry)
	return out
}

// Lookup 按模型 ID 查注册表。
func Lookup(modelID string) (ModelSpec, bool) {
	for _, spec := range modelRegistry {
		if spec.ID == modelID {
			return spec, true
		}
	}
	return ModelSpec{}, false
}

// DefaultModelID 返回注册表首个模型，作为未指定模型时的默认值。
func DefaultModelID() string {
	return modelRegistry[0].ID
}
