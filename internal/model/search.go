package model

import "strconv"

// 检索结果的来源类别。
const (
	SearchKindChunk         = "chunk"
	SearchKindVisualFinding = "visual_finding"
)

// SearchResult 是向量检索返回的单条结果，Chunk 与 Finding 二选一。
type SearchResult struct {
	Kind    string         `json:"kind"`
	Score   float64        `json:"score"`
	Chunk   *Chunk         `json:"chunk,omitempty"`
	Finding *VisualFinding `json:"finding,omitempty"`
}

// Key 返回用于跨查询去重的唯一键。
func (r SearchResult) Key() string {
	if r.Kind == SearchKindChunk && r.Chunk != nil {
		return "c:" + strconv.FormatUint(uint64(r.Chunk.ID), 10)
	}
	if r.Finding != nil {
		return "v:" + strconv.FormatUint(uint64(r.Finding.ID), 10)
	}
	return ""
}
