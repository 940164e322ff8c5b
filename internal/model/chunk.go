package model

// Chunk 对应 chunks 表，每条记录是一份文档的一页文本。
// 每个 (document_id, page_number) 至多一条记录，空白页不入库。
// Embedding 在独立的向量化阶段回填，其余字段入库后不再变更。
type Chunk struct {
	ID         uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	DocumentID uint   `gorm:"not null;uniqueIndex:uk_doc_page,priority:1" json:"documentId"`
	PageNumber int    `gorm:"not null;uniqueIndex:uk_doc_page,priority:2" json:"pageNumber"`
	Content    string `gorm:"type:mediumtext;not null" json:"content"`
	// SheetNumber 为归一化后的图号，形如 A-101、S-2.1；规范页通常为空。
	SheetNumber *string `gorm:"type:varchar(20);index" json:"sheetNumber"`
	// DetailReferences 为页面上出现的详图引用原文，形如 "3/A-501"。
	DetailReferences []string `gorm:"type:text;serializer:json" json:"detailReferences"`
	OCRText          *string  `gorm:"type:mediumtext" json:"ocrText"`
	ImagePath        *string  `gorm:"type:varchar(255)" json:"imagePath"`
	// Embedding 为 NULL 表示尚未向量化，向量化阶段以此为唯一认领条件。
	Embedding []float32 `gorm:"type:mediumtext;serializer:json" json:"-"`
}

func (Chunk) TableName() string {
	return "chunks"
}

// Callout 是详图索引图中的一条有向边：
// 某页（图号 SheetNumber）引用了 TargetSheet 上的第 DetailNumber 号详图。
// 与 Chunk 同时创建，创建后不再更新。
type Callout struct {
	ID                 uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	DocumentID         uint   `gorm:"index;not null" json:"documentId"`
	PageNumber         int    `gorm:"not null" json:"pageNumber"`
	SheetNumber        string `gorm:"type:varchar(20);index" json:"sheetNumber"`
	DetailReferenceRaw string `gorm:"type:varchar(50);not null" json:"detailReferenceRaw"`
	DetailNumber       int    `gorm:"not null" json:"detailNumber"`
	TargetSheet        string `gorm:"type:varchar(20);index;not null" json:"targetSheet"`
}

func (Callout) TableName() string {
	return "callouts"
}
