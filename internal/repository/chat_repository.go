package repository

import (
	"gongtu-rag-go/internal/model"

	"gorm.io/gorm"
)

// ChatRepository 定义了会话与消息的数据操作接口。
// 消息只追加不修改。
type ChatRepository interface {
	CreateChat(chat *model.Chat) error
	GetChat(chatID string) (*model.Chat, error)
	ListChatsByProject(projectID uint) ([]model.Chat, error)
	UpdateTitle(chatID string, title string) error

	CreateMessage(message *model.Message) error
	ListMessages(chatID string) ([]model.Message, error)
	CountMessages(chatID string) (int64, error)
}

type chatRepository struct {
	db *gorm.DB
}

// NewChatRepository 创建一个新的 ChatRepository 实例。
func NewChatRepository(db *gorm.DB) ChatRepository {
	return &chatRepository{db: db}
}

func (r *chatRepository) CreateChat(chat *model.Chat) error {
	return r.db.Create(chat).Error
}

func (r *chatRepository) GetChat(chatID string) (*model.Chat, error) {
	var chat model.Chat
	if err := r.db.Where("id = ?", chatID).First(&chat).Error; err != nil {
		return nil, err
	}
	return &chat, nil
}

func (r *chatRepository) ListChatsByProject(projectID uint) ([]model.Chat, error) {
	var chats []model.Chat
	err := r.db.Where("project_id = ?", projectID).Order("created_at desc").Find(&chats).Error
	return chats, err
}

func (r *chatRepository) UpdateTitle(chatID string, title string) error {
	return r.db.Model(&model.Chat{}).Where("id = ?", chatID).Update("title", title).Error
}

func (r *chatRepository) CreateMessage(message *model.Message) error {
	return r.db.Create(message).Error
}

func (r *chatRepository) ListMessages(chatID string) ([]model.Message, error) {
	var messages []model.Message
	err := r.db.Where("chat_id = ?", chatID).Order("id asc").Find(&messages).Error
	return messages, err
}

func (r *chatRepository) CountMessages(chatID string) (int64, error) {
	var count int64
	err := r.db.Model(&model.Message{}).Where("chat_id = ?", chatID).Count(&count).Error
	return count, err
}
