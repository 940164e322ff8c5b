// Package answer 负责最终回答的生成：直答、分步推理与拆解合成三条路径，
// 以及会话标题派生。提示词中的引用括号协议与 citation 包的解析正则
// 是同一份契约的两端。
package answer

import (
	"context"
	"fmt"
	"strings"

	"gongtu-rag-go/internal/citation"
	"gongtu-rag-go/pkg/llm"
	"gongtu-rag-go/pkg/log"
)

const systemPrompt = `You are a construction document assistant. You answer questions about construction drawings and specifications using ONLY the provided context.

` + citation.PromptProtocol + `
If the context does not contain the answer, say so plainly.`

// chainOfThoughtScaffold 是复杂问题直答路径上的分步推理脚手架。
const chainOfThoughtScaffold = `Work through this question step by step before answering:
1. Understand: restate what is being asked and which trades or systems are involved.
2. Gather: list the context sources that bear on the question.
3. Analyze: examine each relevant source, noting sheet numbers and details.
4. Synthesize: combine the findings into a coherent conclusion.
5. Consider: note conflicts, missing information, or caveats.

Then give your final answer with citations.

Question: %s`

// RetrieveFunc 为一个子问题取回格式化后的上下文。
// 由调用方注入，生成器自身不接触检索栈。
type RetrieveFunc func(ctx context.Context, question string) (string, error)

// Generator 定义了回答生成的接口。
type Generator interface {
	// Direct 用给定上下文直接回答。useScaffold 为 true 时
	// 用户回合替换为分步推理脚手架。
	Direct(ctx context.Context, modelID string, history []llm.Message, question, contextText string, useScaffold bool) (string, error)
	// Decomposed 顺序回答各子问题（每个子问题独立检索，前序子答案
	// 作为补充上下文带入），再合成最终回答，要求原样保留全部引用。
	Decomposed(ctx context.Context, modelID string, history []llm.Message, question string, subquestions []string, retrieve RetrieveFunc) (string, error)
	// DeriveTitle 从开场问题派生会话短标题。失败返回错误由调用方记日志，
	// 标题派生绝不影响已返回的回答。
	DeriveTitle(ctx context.Context, question string) (string, error)
}

type generator struct {
	providers    map[string]llm.Client
	defaultModel string
}

// NewGenerator 创建一个新的 Generator 实例。
// providers 以注册表的 Provider 取值为键。
func NewGenerator(providers map[string]llm.Client, defaultModel string) Generator {
	return &generator{providers: providers, defaultModel: defaultModel}
}

// complete 按注册表决定后端与生成参数，归一化消息形态后调用。
// 两种后端形态（system 在消息列表内 / system 单独传递）由 llm 包各自消化。
func (g *generator) complete(ctx context.Context, modelID string, messages []llm.Message) (string, error) {
	spec, ok := Lookup(modelID)
	if !ok {
		return "", fmt.Errorf("unknown model: %s", modelID)
	}
	client, ok := g.providers[spec.Provider]
	if !ok {
		return "", fmt.Errorf("no client configured for provider: %s", spec.Provider)
	}

	temperature := spec.Temperature
	maxTokens := spec.MaxTokens
	return client.Complete(ctx, spec.ID, messages, &llm.GenerationParams{
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	})
}

// Direct 构建 [system, ...history, user] 消息序列并调用模型。
// 模型调用失败对本次提问是致命的，直接上抛，不做静默降级换模型。
func (g *generator) Direct(ctx context.Context, modelID string, history []llm.Message, question, contextText string, useScaffold bool) (string, error) {
	userTurn := question
	if useScaffold {
		userTurn = fmt.Sprintf(chainOfThoughtScaffold, question)
	}

	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: "system", Content: systemPrompt + "\n\nContext:\n" + contextText})
	messages = append(messages, history...)
	messages = append(messages, llm.Message{Role: "user", Content: userTurn})

	answerText, err := g.complete(ctx, modelID, messages)
	if err != nil {
		return "", fmt.Errorf("failed to generate answer: %w", err)
	}
	return answerText, nil
}

const synthesisPrompt = `The original question was broken into sub-questions, each answered from its own retrieval below. Synthesize one coherent final answer to the original question. Preserve every citation bracket from the sub-answers verbatim. Do not add citations that are not in the sub-answers.

Original question: %s

%s`

// Decomposed 严格顺序处理子问题：后面的子问题可能依赖前面的结论，
// 不做并行。
func (g *generator) Decomposed(ctx context.Context, modelID string, history []llm.Message, question string, subquestions []string, retrieve RetrieveFunc) (string, error) {
	var pairs []string
	var carried []llm.Message

	for i, sub := range subquestions {
		log.Infof("[Answer] 步骤%d: 回答子问题 %d/%d", i+1, i+1, len(subquestions))
		contextText, err := retrieve(ctx, sub)
		if err != nil {
			return "", fmt.Errorf("failed to retrieve context for subquestion %d: %w", i+1, err)
		}

		subHistory := make([]llm.Message, 0, len(history)+len(carried))
		subHistory = append(subHistory, history...)
		subHistory = append(subHistory, carried...)

		subAnswer, err := g.Direct(ctx, modelID, subHistory, sub, contextText, false)
		if err != nil {
			return "", fmt.Errorf("failed to answer subquestion %d: %w", i+1, err)
		}

		// 前序子答案作为对话回合带入后续子问题
		carried = append(carried,
			llm.Message{Role: "user", Content: sub},
			llm.Message{Role: "assistant", Content: subAnswer},
		)
		pairs = append(pairs, fmt.Sprintf("Sub-question %d: %s\nAnswer: %s", i+1, sub, subAnswer))
	}

	messages := []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: fmt.Sprintf(synthesisPrompt, question, strings.Join(pairs, "\n\n"))},
	}
	finalAnswer, err := g.complete(ctx, modelID, messages)
	if err != nil {
		return "", fmt.Errorf("failed to synthesize final answer: %w", err)
	}
	return finalAnswer, nil
}

const titlePrompt = `Propose a short title (at most 6 words) for a conversation that opens with the question below. Respond with the title only, no quotes.

%s`

// DeriveTitle 低温一次性调用，剥掉模型偶尔加上的引号。
func (g *generator) DeriveTitle(ctx context.Context, question string) (string, error) {
	raw, err := g.complete(ctx, g.defaultModel, []llm.Message{
		{Role: "user", Content: fmt.Sprintf(titlePrompt, question)},
	})
	if err != nil {
		return "", err
	}
	title := strings.TrimSpace(raw)
	title = strings.Trim(title, `"'“”‘’`)
	return title, nil
}
