// Package query 负责检索前的问题处理：同义改写扩展、复杂度判定与子问题拆解。
package query

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"gongtu-rag-go/pkg/llm"
	"gongtu-rag-go/pkg/log"
)

// 复杂问题的词面特征。命中任意一条即判定为复杂。
var complexityPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bcompare\b`),
	regexp.MustCompile(`(?i)\bdifference(s)? between\b`),
	regexp.MustCompile(`(?i)\bboth\b`),
	regexp.MustCompile(`(?i)\ball (of the|the)?\s*(sheets|drawings|details|pages)\b`),
	regexp.MustCompile(`(?i)\bas well as\b`),
	regexp.MustCompile(`(?i)\bversus\b|\bvs\.?\b`),
	regexp.MustCompile(`(?i)\bconflict(s)?\b`),
	regexp.MustCompile(`(?i)\bdiscrepanc`),
}

var andClausePattern = regexp.MustCompile(`(?i)\band\b`)

const (
	complexWordThreshold      = 15
	complexRetrievedThreshold = 10
	expansionCount            = 3
	maxSubquestions           = 4
)

// Expander 定义了问题改写与拆解的接口。
type Expander interface {
	// Expand 生成若干个与原问题语义一致的改写，首个元素恒为原问题。
	Expand(ctx context.Context, question string) []string
	// IsComplex 基于词面启发式与检索规模判定问题是否需要拆解。
	IsComplex(question string, retrievedCount int) bool
	// Decompose 将复杂问题拆为可独立回答的子问题。
	// 模型判定问题其实简单、或拆解失败时返回 nil。
	Decompose(ctx context.Context, question string) []string
}

type expander struct {
	llmClient llm.Client
	model     string
}

// NewExpander 创建一个新的 Expander 实例。
func NewExpander(llmClient llm.Client, model string) Expander {
	return &expander{llmClient: llmClient, model: model}
}

const expandSystemPrompt = `You rewrite construction document search queries. ` +
	`Given a question about construction drawings or specifications, produce exactly 3 alternative phrasings ` +
	`that preserve the meaning but vary terminology (e.g. "detail" vs "section", trade jargon vs plain language, ` +
	`sheet-number forms). Respond with ONLY a JSON array of 3 strings, no other text.`

// Expand 让模型生成改写后的检索词。任何失败都静默退回原问题，
// 扩展只是检索召回的增益，绝不阻塞问答。
func (e *expander) Expand(ctx context.Context, question string) []string {
	queries := []string{question}

	lowTemp := 0.3
	raw, err := e.llmClient.Complete(ctx, e.model, []llm.Message{
		{Role: "system", Content: expandSystemPrompt},
		{Role: "user", Content: question},
	}, &llm.GenerationParams{Temperature: &lowTemp})
	if err != nil {
		log.Warnf("[Query] 问题扩展失败，退回原问题: %v", err)
		return queries
	}

	var phrasings []string
	if err := json.Unmarshal([]byte(extractJSON(raw)), &phrasings); err != nil {
		log.Warnf("[Query] 扩展结果解析失败，退回原问题: %v", err)
		return queries
	}

	for _, p := range phrasings {
		p = strings.TrimSpace(p)
		if p == "" || strings.EqualFold(p, question) {
			continue
		}
		queries = append(queries, p)
		if len(queries) >= expansionCount+1 {
			break
		}
	}
	return queries
}

// IsComplex 判定问题是否复杂。三个独立信号任一命中即复杂：
// 词数超阈值、命中复杂句式、首轮检索结果规模过大。
func (e *expander) IsComplex(question string, retrievedCount int) bool {
	if len(strings.Fields(question)) > complexWordThreshold {
		return true
	}
	if strings.Count(question, "?") >= 2 {
		return true
	}
	if len(andClausePattern.FindAllString(question, -1)) >= 2 {
		return true
	}
	for _, pattern := range complexityPatterns {
		if pattern.MatchString(question) {
			return true
		}
	}
	return retrievedCount > complexRetrievedThreshold
}

const decomposeSystemPrompt = `You break down complex questions about construction documents into simpler sub-questions. ` +
	`Each sub-question must be independently answerable from drawings and specifications. ` +
	`If the question is actually simple, say so. Respond with ONLY a JSON object: ` +
	`{"simple": true} or {"simple": false, "subquestions": ["...", "..."]} with 2 to 4 sub-questions.`

type decomposeResponse struct {
	Simple       bool     `json:"simple"`
	Subquestions []string `json:"subquestions"`
}

// Decompose 拆解复杂问题。返回 nil 表示按简单问题处理。
func (e *expander) Decompose(ctx context.Context, question string) []string {
	lowTemp := 0.2
	raw, err := e.llmClient.Complete(ctx, e.model, []llm.Message{
		{Role: "system", Content: decomposeSystemPrompt},
		{Role: "user", Content: question},
	}, &llm.GenerationParams{Temperature: &lowTemp})
	if err != nil {
		log.Warnf("[Query] 问题拆解失败，按简单问题处理: %v", err)
		return nil
	}

	var resp decomposeResponse
	if err := json.Unmarshal([]byte(extractJSON(raw)), &resp); err != nil {
		log.Warnf("[Query] 拆解结果解析失败，按简单问题处理: %v", err)
		return nil
	}
	if resp.Simple || len(resp.Subquestions) == 0 {
		return nil
	}

	subs := make([]string, 0, maxSubquestions)
	for _, s := range resp.Subquestions {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		subs = append(subs, s)
		if len(subs) >= maxSubquestions {
			break
		}
	}
	if len(subs) == 0 {
		return nil
	}
	return subs
}

// extractJSON 剥掉模型偶尔包裹的 markdown 代码块围栏。
func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSuffix(strings.TrimSpace(raw), "```")
	}
	return strings.TrimSpace(raw)
}
