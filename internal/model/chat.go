package model

import "time"

// Chat 代表一个项目下的问答会话。
type Chat struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	ProjectID uint      `gorm:"index;not null" json:"projectId"`
	Title     string    `gorm:"type:varchar(255)" json:"title"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

func (Chat) TableName() string {
	return "chats"
}

// Message 代表会话中的一轮发言，只追加不修改。
// 助手消息携带从回答文本中解析出的引用列表。
type Message struct {
	ID        uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	ChatID    string     `gorm:"type:varchar(36);index;not null" json:"chatId"`
	Role      string     `gorm:"type:varchar(20);not null" json:"role"` // "user" 或 "assistant"
	Content   string     `gorm:"type:mediumtext;not null" json:"content"`
	Citations []Citation `gorm:"type:text;serializer:json" json:"citations"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"createdAt"`
}

func (Message) TableName() string {
	return "messages"
}

// ChatMessage 代表存储在 Redis 中的单条对话消息（提示词历史窗口）。
type ChatMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Citation 是从生成回答中解析出的一条引用。
// 解析后至少携带 Sheet 或 Page 之一；Resolve 只回填空缺字段，
// 无法定位时保持原样返回，绝不凭空编造页码。
type Citation struct {
	// Source 为模型回答中书写的文档名原文。
	Source string `json:"source"`
	Sheet  string `json:"sheet,omitempty"`
	Detail string `json:"detail,omitempty"`
	Page   *int   `json:"page,omitempty"`
	// FullText 为正则命中的完整方括号原文，用于前端做精确替换渲染链接。
	FullText string `json:"fullText"`
	// Filename 为解析定位到的库内文件名，未定位时为空。
	Filename string `json:"filename,omitempty"`
}
