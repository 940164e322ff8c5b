package model

import "encoding/json"

// VisualFinding 对应 visual_findings 表，是视觉模型对图纸单页的结构化识别结果。
// 每个 (document_id, page_number) 至多一条；由外部视觉协作方写入，
// Embedding 与 Chunk 一样在独立阶段回填。
type VisualFinding struct {
	ID          uint    `gorm:"primaryKey;autoIncrement" json:"id"`
	DocumentID  uint    `gorm:"not null;uniqueIndex:uk_vf_doc_page,priority:1" json:"documentId"`
	PageNumber  int     `gorm:"not null;uniqueIndex:uk_vf_doc_page,priority:2" json:"pageNumber"`
	SheetNumber *string `gorm:"type:varchar(20);index" json:"sheetNumber"`
	// SheetType 为分类后的专业类别，如 architectural/structural/mechanical。
	SheetType string `gorm:"type:varchar(30)" json:"sheetType"`
	// FindingsRaw 为识别结果的 JSON 原文，统一通过 ParseFindingsPayload 解析。
	FindingsRaw string    `gorm:"type:mediumtext;column:findings" json:"-"`
	Embedding   []float32 `gorm:"type:mediumtext;serializer:json" json:"-"`
}

func (VisualFinding) TableName() string {
	return "visual_findings"
}

// VisualFindingsPayload 是视觉识别结果的结构化形态。
type VisualFindingsPayload struct {
	Summary       string   `json:"summary"`
	Elements      []string `json:"elements"`
	Annotations   []string `json:"annotations"`
	Symbols       []string `json:"symbols"`
	DetailMarkers []string `json:"detailMarkers"`
}

// ParseFindingsPayload 解析识别结果 JSON。解析失败时降级为
// 把原文整体当作 summary，不报错，保证上下文组装不中断。
func ParseFindingsPayload(raw string) VisualFindingsPayload {
	var payload VisualFindingsPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return VisualFindingsPayload{Summary: raw}
	}
	return payload
}

// Payload 返回解析后的识别结果。
func (v *VisualFinding) Payload() VisualFindingsPayload {
	return ParseFindingsPayload(v.FindingsRaw)
}

// EmbeddingText 返回用于向量化的文本表示：摘要加元素列表。
func (v *VisualFinding) EmbeddingText() string {
	payload := v.Payload()
	text := payload.Summary
	for _, e := range payload.Elements {
		text += "\n" + e
	}
	return text
}
