// Package assemble 把多路检索结果合并、沿详图索引图补充关联图纸，
// 并渲染成提交给模型的上下文文本。
// 渲染输出是回答生成器依赖的字面边界：标签词汇（Sheet、Page、Detail）
// 与系统提示词、引用解析正则共同构成协议，必须保持确定性与稳定性。
package assemble

import (
	"fmt"
	"strings"

	"gongtu-rag-go/internal/extract"
	"gongtu-rag-go/internal/model"
	"gongtu-rag-go/internal/repository"
	"gongtu-rag-go/pkg/log"
)

const blockSeparator = "\n\n---\n\n"

// MergeResults 合并多路扩展检索的结果，按条目去重（首次出现者胜，
// 保留相似度更高的来源查询给出的顺序），分别截断到各自上限。
func MergeResults(perQueryResults [][]model.SearchResult, chunkLimit, findingLimit int) ([]*model.Chunk, []*model.VisualFinding) {
	seen := make(map[string]bool)
	var chunks []*model.Chunk
	var findings []*model.VisualFinding

	for _, results := range perQueryResults {
		for _, result := range results {
			key := result.Key()
			if seen[key] {
				continue
			}
			seen[key] = true
			switch result.Kind {
			case model.SearchKindChunk:
				if len(chunks) < chunkLimit {
					chunks = append(chunks, result.Chunk)
				}
			case model.SearchKindVisualFinding:
				if len(findings) < findingLimit {
					findings = append(findings, result.Finding)
				}
			}
		}
	}
	return chunks, findings
}

// Assembler 定义了上下文补充与渲染的接口。
type Assembler interface {
	// ExpandWithCallouts 沿检索到的分块的详图引用与详图索引图（双向）
	// 收集关联图号，补充这些图号上尚未持有的分块，按页码升序最多 maxAdditional 条。
	// 施工图纸里墙身详图的索引常落在另一张图上，这一步就是为了把它带进上下文。
	ExpandWithCallouts(chunks []*model.Chunk, projectID uint, maxAdditional int) []*model.Chunk
	// Format 将分块与视觉识别结果渲染为带标签的上下文文本。
	Format(chunks []*model.Chunk, findings []*model.VisualFinding) string
}

type assembler struct {
	chunkRepo    repository.ChunkRepository
	documentRepo repository.DocumentRepository
}

// NewAssembler 创建一个新的 Assembler 实例。
func NewAssembler(chunkRepo repository.ChunkRepository, documentRepo repository.DocumentRepository) Assembler {
	return &assembler{chunkRepo: chunkRepo, documentRepo: documentRepo}
}

// ExpandWithCallouts 补充关联图纸上的分块。查询失败只降级不阻塞，
// 上下文补充是增益而非必需。
func (a *assembler) ExpandWithCallouts(chunks []*model.Chunk, projectID uint, maxAdditional int) []*model.Chunk {
	if len(chunks) == 0 || maxAdditional <= 0 {
		return chunks
	}

	heldSheets := make(map[string]bool)
	var excludeIDs []uint
	referenced := make(map[string]bool)
	var sheets []string

	addSheet := func(sheet string) {
		if sheet == "" || heldSheets[sheet] || referenced[sheet] {
			return
		}
		referenced[sheet] = true
		sheets = append(sheets, sheet)
	}

	for _, chunk := range chunks {
		excludeIDs = append(excludeIDs, chunk.ID)
		if chunk.SheetNumber != nil {
			heldSheets[*chunk.SheetNumber] = true
		}
	}
	for _, chunk := range chunks {
		for _, ref := range chunk.DetailReferences {
			if _, targetSheet, ok := extract.ParseDetailReference(ref); ok {
				addSheet(targetSheet)
			}
		}
	}

	// 详图索引图双向一步：谁引用了这些图，这些图又引用了谁
	var heldList []string
	for sheet := range heldSheets {
		heldList = append(heldList, sheet)
	}
	if related, err := a.chunkRepo.FindRelatedSheets(projectID, heldList); err != nil {
		log.Warnf("[Assembler] 详图索引图查询失败，跳过关联补充: %v", err)
	} else {
		for _, sheet := range related {
			addSheet(sheet)
		}
	}

	if len(sheets) == 0 {
		return chunks
	}
	additional, err := a.chunkRepo.FindBySheets(projectID, sheets, excludeIDs, maxAdditional)
	if err != nil {
		log.Warnf("[Assembler] 关联图纸分块查询失败，跳过关联补充: %v", err)
		return chunks
	}
	if len(additional) > 0 {
		log.Infof("[Assembler] 沿详图索引补充 %d 个分块", len(additional))
	}
	return append(chunks, additional...)
}

// Format 渲染上下文。每个分块一个带编号的标签块，随后是视觉识别结果小节。
func (a *assembler) Format(chunks []*model.Chunk, findings []*model.VisualFinding) string {
	docs := a.documentsFor(chunks, findings)

	var blocks []string
	for i, chunk := range chunks {
		doc := docs[chunk.DocumentID]
		var b strings.Builder
		b.WriteString(fmt.Sprintf("[Source %d: %s - %s, %s%s]\n",
			i+1, docTypeLabel(doc), docFileName(doc), locationLabel(chunk.SheetNumber, chunk.PageNumber), detailSuffix(chunk.DetailReferences)))
		b.WriteString(chunk.Content)
		if chunk.OCRText != nil && *chunk.OCRText != "" {
			b.WriteString("\n[OCR Text]\n")
			b.WriteString(*chunk.OCRText)
		}
		blocks = append(blocks, b.String())
	}

	for i, finding := range findings {
		doc := docs[finding.DocumentID]
		payload := finding.Payload()
		var b strings.Builder
		b.WriteString(fmt.Sprintf("[Visual Finding %d: %s, %s (%s)]\n",
			i+1, docFileName(doc), locationLabel(finding.SheetNumber, finding.PageNumber), finding.SheetType))
		b.WriteString(payload.Summary)
		if len(payload.Elements) > 0 {
			b.WriteString(". Elements: ")
			b.WriteString(strings.Join(truncate(payload.Elements, 5), "; "))
		}
		if len(payload.Annotations) > 0 {
			b.WriteString(". Annotations: ")
			b.WriteString(strings.Join(truncate(payload.Annotations, 3), "; "))
		}
		blocks = append(blocks, b.String())
	}

	return strings.Join(blocks, blockSeparator)
}

func (a *assembler) documentsFor(chunks []*model.Chunk, findings []*model.VisualFinding) map[uint]*model.Document {
	idSet := make(map[uint]bool)
	var ids []uint
	add := func(id uint) {
		if !idSet[id] {
			idSet[id] = true
			ids = append(ids, id)
		}
	}
	for _, chunk := range chunks {
		add(chunk.DocumentID)
	}
	for _, finding := range findings {
		add(finding.DocumentID)
	}

	docs := make(map[uint]*model.Document, len(ids))
	found, err := a.documentRepo.FindBatchByIDs(ids)
	if err != nil {
		log.Warnf("[Assembler] 批量取文档元数据失败: %v", err)
		return docs
	}
	for _, doc := range found {
		docs[doc.ID] = doc
	}
	return docs
}

func docTypeLabel(doc *model.Document) string {
	if doc != nil && doc.DocType == "specification" {
		return "Specification"
	}
	return "Drawing"
}

func docFileName(doc *model.Document) string {
	if doc == nil {
		return "unknown"
	}
	return doc.FileName
}

// locationLabel 输出 "Sheet X" 或退化的 "Page N"，
// 与引用协议的标签词汇保持一致。
func locationLabel(sheetNumber *string, pageNumber int) string {
	if sheetNumber != nil && *sheetNumber != "" {
		return "Sheet " + *sheetNumber
	}
	return fmt.Sprintf("Page %d", pageNumber)
}

func detailSuffix(refs []string) string {
	if len(refs) == 0 {
		return ""
	}
	return fmt.Sprintf(" (Details: %s)", strings.Join(refs, ", "))
}

func truncate(items []string, limit int) []string {
	if len(items) > limit {
		return items[:limit]
	}
	return items
}
