// Package model 包含了应用的数据模型定义。
package model

import "time"

// 文档处理状态。
const (
	DocumentStatusPending    = 0 // 已上传，等待处理
	DocumentStatusProcessing = 1 // 正在提取与分块
	DocumentStatusReady      = 2 // 处理完成
	DocumentStatusFailed     = 3 // 处理失败
)

// Project 代表一个工程项目，文档与会话都挂在项目之下。
type Project struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"type:varchar(255);not null" json:"name"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

func (Project) TableName() string {
	return "projects"
}

// Document 对应一份上传的施工图纸或规范 PDF。
type Document struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	ProjectID  uint      `gorm:"index;not null" json:"projectId"`
	FileName   string    `gorm:"type:varchar(255);not null" json:"fileName"`
	ObjectName string    `gorm:"type:varchar(255);not null" json:"objectName"`
	// DocType 标记图纸 (drawing) 或规范 (specification)，用于上下文标注。
	DocType   string    `gorm:"type:varchar(20);not null;default:'drawing'" json:"docType"`
	Status    int       `gorm:"type:tinyint;not null;default:0" json:"status"`
	PageCount int       `gorm:"not null;default:0" json:"pageCount"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

func (Document) TableName() string {
	return "documents"
}
