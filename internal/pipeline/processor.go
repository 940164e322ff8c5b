// Package pipeline 实现文档处理流水线：从对象存储取回 PDF，
// 逐页抽取文本并切分为分块，提取图号与详图引用建立索引边，
// 最后触发向量化。整条流水线按文档幂等，失败重跑不产生重复数据。
package pipeline

import (
	"context"
	"fmt"
	"strings"

	"gongtu-rag-go/internal/config"
	"gongtu-rag-go/internal/extract"
	"gongtu-rag-go/internal/index"
	"gongtu-rag-go/internal/model"
	"gongtu-rag-go/internal/repository"
	"gongtu-rag-go/pkg/log"
	"gongtu-rag-go/pkg/storage"
	"gongtu-rag-go/pkg/tasks"
	"gongtu-rag-go/pkg/tika"
)

const truncationMarker = "\n...[内容过长已截断]"

// Processor 消费文档处理任务，实现 kafka.TaskProcessor。
type Processor struct {
	tikaClient     *tika.Client
	chunkRepo      repository.ChunkRepository
	documentRepo   repository.DocumentRepository
	embeddingIndex index.EmbeddingIndex
	bucketName     string
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(
	tikaClient *tika.Client,
	chunkRepo repository.ChunkRepository,
	documentRepo repository.DocumentRepository,
	embeddingIndex index.EmbeddingIndex,
	bucketName string,
) *Processor {
	return &Processor{
		tikaClient:     tikaClient,
		chunkRepo:      chunkRepo,
		documentRepo:   documentRepo,
		embeddingIndex: embeddingIndex,
		bucketName:     bucketName,
	}
}

// Process 处理一个文档任务。任何一步失败都会把文档标记为失败并上抛，
// 交由消费者的重试计数决定是否再投递。
func (p *Processor) Process(ctx context.Context, task tasks.DocumentProcessingTask) error {
	log.Infof("[Processor] 开始处理文档: DocumentID=%d, FileName=%s", task.DocumentID, task.FileName)

	if err := p.documentRepo.UpdateStatus(task.DocumentID, model.DocumentStatusProcessing); err != nil {
		return fmt.Errorf("更新文档状态失败: %w", err)
	}

	if err := p.process(ctx, task); err != nil {
		if updateErr := p.documentRepo.UpdateStatus(task.DocumentID, model.DocumentStatusFailed); updateErr != nil {
			log.Errorf("标记文档失败状态时出错: %v", updateErr)
		}
		return err
	}

	if err := p.documentRepo.UpdateStatus(task.DocumentID, model.DocumentStatusReady); err != nil {
		return fmt.Errorf("更新文档状态失败: %w", err)
	}
	log.Infof("[Processor] 文档处理完成: DocumentID=%d", task.DocumentID)
	return nil
}

func (p *Processor) process(ctx context.Context, task tasks.DocumentProcessingTask) error {
	// 步骤1: 从 MinIO 下载文件
	log.Infof("[Processor] 步骤1: 下载文件 %s", task.ObjectName)
	object, err := storage.GetObject(ctx, p.bucketName, task.ObjectName)
	if err != nil {
		return fmt.Errorf("下载文件失败: %w", err)
	}
	defer object.Close()

	// 步骤2: Tika 逐页抽取文本
	log.Infof("[Processor] 步骤2: 逐页抽取文本")
	pages, err := p.tikaClient.ExtractPages(object, task.FileName)
	if err != nil {
		return fmt.Errorf("抽取文本失败: %w", err)
	}
	log.Infof("[Processor] 抽取到 %d 页", len(pages))

	// 步骤3: 清理旧数据，保证重处理幂等
	log.Infof("[Processor] 步骤3: 清理文档旧分块")
	if err := p.chunkRepo.DeleteByDocumentID(task.DocumentID); err != nil {
		return fmt.Errorf("清理旧分块失败: %w", err)
	}

	// 步骤4: 切分分块并提取图号与详图引用
	log.Infof("[Processor] 步骤4: 构建分块")
	chunks, callouts := p.buildChunks(task.DocumentID, pages)
	if err := p.chunkRepo.BatchCreate(chunks); err != nil {
		return fmt.Errorf("写入分块失败: %w", err)
	}
	if err := p.chunkRepo.BatchCreateCallouts(callouts); err != nil {
		return fmt.Errorf("写入详图索引失败: %w", err)
	}
	if err := p.documentRepo.UpdatePageCount(task.DocumentID, len(pages)); err != nil {
		return fmt.Errorf("更新页数失败: %w", err)
	}
	log.Infof("[Processor] 写入 %d 个分块, %d 条详图索引", len(chunks), len(callouts))

	// 步骤5: 向量化本项目待处理内容
	log.Infof("[Processor] 步骤5: 向量化")
	report, err := p.embeddingIndex.EmbedUnembedded(ctx, task.ProjectID, func(current, total int) {
		log.Infof("[Processor] 向量化进度: %d/%d", current, total)
	})
	if err != nil {
		return fmt.Errorf("向量化失败: %w", err)
	}
	if report.Paused {
		// 配额耗尽不算处理失败，文档仍可检索已向量化的部分，剩余部分由补跑接口续做
		log.Warnf("[Processor] 向量化因配额暂停: 已处理 %d, 剩余 %d", report.Processed, report.Remaining)
	}
	return nil
}

// buildChunks 把每一页变成一个分块。空白页跳过；超长页截断并留标记；
// 无法解析为规范形态的详图引用保留在分块上展示，但不建索引边。
func (p *Processor) buildChunks(documentID uint, pages []string) ([]*model.Chunk, []*model.Callout) {
	contentLimit := config.Conf.RAG.ChunkContentLimit

	var chunks []*model.Chunk
	var callouts []*model.Callout
	for i, pageText := range pages {
		pageNumber := i + 1
		content := strings.TrimSpace(pageText)
		if content == "" {
			continue
		}
		if contentLimit > 0 && len(content) > contentLimit {
			content = content[:contentLimit] + truncationMarker
		}

		chunk := &model.Chunk{
			DocumentID: documentID,
			PageNumber: pageNumber,
			Content:    content,
		}
		if sheet := extract.ExtractSheetNumber(pageText); sheet != "" {
			chunk.SheetNumber = &sheet
		}
		chunk.DetailReferences = extract.ExtractDetailReferences(pageText)
		chunks = append(chunks, chunk)

		sheetNumber := ""
		if chunk.SheetNumber != nil {
			sheetNumber = *chunk.SheetNumber
		}
		for _, ref := range chunk.DetailReferences {
			detailNumber, targetSheet, ok := extract.ParseDetailReference(ref)
			if !ok {
				continue
			}
			callouts = append(callouts, &model.Callout{
				DocumentID:         documentID,
				PageNumber:         pageNumber,
				SheetNumber:        sheetNumber,
				DetailReferenceRaw: ref,
				DetailNumber:       detailNumber,
				TargetSheet:        targetSheet,
			})
		}
	}
	return chunks, callouts
}
