package service

import (
	"context"
	"errors"
	"fmt"

	"gongtu-rag-go/internal/answer"
	"gongtu-rag-go/internal/assemble"
	"gongtu-rag-go/internal/citation"
	"gongtu-rag-go/internal/config"
	"gongtu-rag-go/internal/index"
	"gongtu-rag-go/internal/model"
	"gongtu-rag-go/internal/query"
	"gongtu-rag-go/internal/repository"
	"gongtu-rag-go/pkg/llm"
	"gongtu-rag-go/pkg/log"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// ErrChatNotFound 表示会话不存在。
var ErrChatNotFound = errors.New("chat not found")

// noDocumentsAnswer 是项目内没有任何可检索内容时的固定回答。
const noDocumentsAnswer = "当前项目还没有处理完成的文档内容。请先上传图纸或规范文件，等待处理完成后再提问。"

// ChatService 定义了会话管理与问答的业务接口。
// AnswerQuestion 是把检索、生成、引用解析串起来的唯一入口。
type ChatService interface {
	CreateChat(projectID uint, title string) (*model.Chat, error)
	GetChat(chatID string) (*model.Chat, error)
	ListChats(projectID uint) ([]model.Chat, error)
	ListMessages(chatID string) ([]model.Message, error)

	AnswerQuestion(ctx context.Context, chatID, userText, modelID string) (*model.Message, error)
}

type chatService struct {
	chatRepo       repository.ChatRepository
	chunkRepo      repository.ChunkRepository
	findingRepo    repository.VisualFindingRepository
	history        repository.ConversationCache
	embeddingIndex index.EmbeddingIndex
	expander       query.Expander
	assembler      assemble.Assembler
	generator      answer.Generator
	resolver       citation.Resolver
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(
	chatRepo repository.ChatRepository,
	chunkRepo repository.ChunkRepository,
	findingRepo repository.VisualFindingRepository,
	history repository.ConversationCache,
	embeddingIndex index.EmbeddingIndex,
	expander query.Expander,
	assembler assemble.Assembler,
	generator answer.Generator,
	resolver citation.Resolver,
) ChatService {
	return &chatService{
		chatRepo:       chatRepo,
		chunkRepo:      chunkRepo,
		findingRepo:    findingRepo,
		history:        history,
		embeddingIndex: embeddingIndex,
		expander:       expander,
		assembler:      assembler,
		generator:      generator,
		resolver:       resolver,
	}
}

func (s *chatService) CreateChat(projectID uint, title string) (*model.Chat, error) {
	chat := &model.Chat{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Title:     title,
	}
	if err := s.chatRepo.CreateChat(chat); err != nil {
		return nil, fmt.Errorf("创建会话失败: %w", err)
	}
	return chat, nil
}

func (s *chatService) GetChat(chatID string) (*model.Chat, error) {
	chat, err := s.chatRepo.GetChat(chatID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrChatNotFound
	}
	return chat, err
}

func (s *chatService) ListChats(projectID uint) ([]model.Chat, error) {
	return s.chatRepo.ListChatsByProject(projectID)
}

func (s *chatService) ListMessages(chatID string) ([]model.Message, error) {
	if _, err := s.GetChat(chatID); err != nil {
		return nil, err
	}
	return s.chatRepo.ListMessages(chatID)
}

// AnswerQuestion 回答一个问题并持久化问答双方的消息。
// 模型调用失败对本次提问是致命的，用户消息保留，助手消息不写入。
func (s *chatService) AnswerQuestion(ctx context.Context, chatID, userText, modelID string) (*model.Message, error) {
	chat, err := s.GetChat(chatID)
	if err != nil {
		return nil, err
	}
	if modelID == "" {
		modelID = config.Conf.LLM.DefaultModel
	}
	if modelID == "" {
		modelID = answer.DefaultModelID()
	}
	modelSpec, ok := answer.Lookup(modelID)
	if !ok {
		return nil, fmt.Errorf("unknown model: %s", modelID)
	}

	// 步骤1: 持久化用户消息
	if err := s.chatRepo.CreateMessage(&model.Message{
		ChatID: chatID, Role: "user", Content: userText,
	}); err != nil {
		return nil, fmt.Errorf("持久化用户消息失败: %w", err)
	}

	// 步骤2: 项目内没有可检索内容时返回固定回答
	empty, err := s.projectIsEmpty(chat.ProjectID)
	if err != nil {
		return nil, err
	}
	if empty {
		log.Infof("[Chat] 项目 %d 无可检索内容，返回固定回答", chat.ProjectID)
		return s.persistAssistantMessage(ctx, chat, userText, noDocumentsAnswer, []model.Citation{})
	}

	// 步骤3: 查询扩展 + 并发多路检索
	chunks, findings, retrievedCount, err := s.retrieve(ctx, chat.ProjectID, userText)
	if err != nil {
		return nil, err
	}

	// 步骤4: 历史窗口
	history, err := s.promptHistory(ctx, chatID)
	if err != nil {
		return nil, err
	}

	// 步骤5: 按复杂度选择生成路径
	var answerText string
	isComplex := s.expander.IsComplex(userText, retrievedCount)
	subquestions := []string(nil)
	if isComplex {
		subquestions = s.expander.Decompose(ctx, userText)
	}

	if len(subquestions) > 0 {
		log.Infof("[Chat] 复杂问题拆解为 %d 个子问题", len(subquestions))
		answerText, err = s.generator.Decomposed(ctx, modelID, history, userText, subquestions,
			func(ctx context.Context, sub string) (string, error) {
				subChunks, subFindings, _, retrieveErr := s.retrieve(ctx, chat.ProjectID, sub)
				if retrieveErr != nil {
					return "", retrieveErr
				}
				return s.assembler.Format(subChunks, subFindings), nil
			})
	} else {
		useScaffold := isComplex && modelSpec.Advanced
		contextText := s.assembler.Format(chunks, findings)
		answerText, err = s.generator.Direct(ctx, modelID, history, userText, contextText, useScaffold)
	}
	if err != nil {
		return nil, err
	}

	// 步骤6: 解析并定位引用
	citations := s.resolver.Resolve(citation.Extract(answerText), chat.ProjectID)
	if citations == nil {
		citations = []model.Citation{}
	}

	// 步骤7: 持久化助手消息并维护历史与标题
	return s.persistAssistantMessage(ctx, chat, userText, answerText, citations)
}

// retrieve 执行「扩展 → 并发检索 → 合并 → 详图索引补充」的完整检索流程。
func (s *chatService) retrieve(ctx context.Context, projectID uint, question string) ([]*model.Chunk, []*model.VisualFinding, int, error) {
	queries := s.expander.Expand(ctx, question)
	topK := config.Conf.RAG.TopK

	// 多路扩展检索相互独立，并发执行后按固定顺序合并
	perQueryResults := make([][]model.SearchResult, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	for i, q := range queries {
		i, q := i, q
		g.Go(func() error {
			results, err := s.embeddingIndex.Search(gctx, projectID, q, topK)
			if err != nil {
				return err
			}
			perQueryResults[i] = results
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, 0, fmt.Errorf("检索失败: %w", err)
	}

	chunks, findings := assemble.MergeResults(perQueryResults, topK, config.Conf.RAG.MaxVisualFindings)
	retrievedCount := len(chunks)
	chunks = s.assembler.ExpandWithCallouts(chunks, projectID, config.Conf.RAG.MaxCalloutChunks)
	return chunks, findings, retrievedCount, nil
}

// projectIsEmpty 判断项目内是否还没有任何已向量化内容。
func (s *chatService) projectIsEmpty(projectID uint) (bool, error) {
	chunkCount, err := s.chunkRepo.CountEmbedded(projectID)
	if err != nil {
		return false, fmt.Errorf("统计已向量化分块失败: %w", err)
	}
	if chunkCount > 0 {
		return false, nil
	}
	findingCount, err := s.findingRepo.CountEmbedded(projectID)
	if err != nil {
		return false, fmt.Errorf("统计已向量化识别结果失败: %w", err)
	}
	return findingCount == 0, nil
}

func (s *chatService) promptHistory(ctx context.Context, chatID string) ([]llm.Message, error) {
	cached, err := s.history.GetHistory(ctx, chatID)
	if err != nil {
		// 历史缓存不可用时降级为无历史，不阻塞问答
		log.Warnf("[Chat] 读取会话历史失败，按无历史处理: %v", err)
		return nil, nil
	}
	messages := make([]llm.Message, 0, len(cached))
	for _, m := range cached {
		messages = append(messages, llm.Message{Role: m.Role, Content: m.Content})
	}
	return messages, nil
}

// persistAssistantMessage 写入助手消息、更新历史窗口，
// 并在首轮交换后异步派生会话标题。
func (s *chatService) persistAssistantMessage(ctx context.Context, chat *model.Chat, userText, answerText string, citations []model.Citation) (*model.Message, error) {
	message := &model.Message{
		ChatID:    chat.ID,
		Role:      "assistant",
		Content:   answerText,
		Citations: citations,
	}
	if err := s.chatRepo.CreateMessage(message); err != nil {
		return nil, fmt.Errorf("持久化助手消息失败: %w", err)
	}

	if err := s.history.AppendExchange(ctx, chat.ID, userText, answerText); err != nil {
		log.Warnf("[Chat] 更新会话历史失败: %v", err)
	}

	s.maybeDeriveTitle(chat, userText)
	return message, nil
}

// maybeDeriveTitle 在首轮交换后发起一次性的标题派生。
// 相对问答本身 fire-and-forget：失败只记日志，绝不影响已返回的回答。
func (s *chatService) maybeDeriveTitle(chat *model.Chat, userText string) {
	if chat.Title != "" {
		return
	}
	count, err := s.chatRepo.CountMessages(chat.ID)
	if err != nil || count != 2 {
		return
	}
	go func() {
		title, err := s.generator.DeriveTitle(context.Background(), userText)
		if err != nil {
			log.Warnf("[Chat] 标题派生失败: %v", err)
			return
		}
		if title == "" {
			return
		}
		if err := s.chatRepo.UpdateTitle(chat.ID, title); err != nil {
			log.Warnf("[Chat] 更新会话标题失败: %v", err)
		}
	}()
}
