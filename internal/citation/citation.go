// Package citation 从生成的回答文本中解析结构化引用标记，
// 并借助分块数据把「图号引用」落到具体页码上。
// 括号语法 [<来源>, Sheet|Detail|Page <值>] 与提示词中的引用协议一一对应，
// 两边必须同步修改。
package citation

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"gongtu-rag-go/internal/model"
	"gongtu-rag-go/internal/repository"
	"gongtu-rag-go/pkg/log"

	"gorm.io/gorm"
)

// PromptProtocol 是引用协议在提示词侧的描述。
// 与下方的解析正则同处一个文件维护，修改任何一边都必须同步另一边。
const PromptProtocol = `Citation protocol, mandatory for every factual claim:
- Cite a drawing sheet as [<filename>, Sheet <number>], e.g. [Arch Set.pdf, Sheet A-101]
- Cite a specific detail as [<filename>, Detail <n>/<sheet>], e.g. [Arch Set.pdf, Detail 3/A-501]
- Cite a specification page as [<filename>, Page <number>], e.g. [Spec Book.pdf, Page 42]
Prefer sheet citations over page citations for drawings. Never invent sheet or page numbers not present in the context.`

var (
	sheetCitePattern  = regexp.MustCompile(`\[([^\[\],]+),\s*(?i:Sheet)\s+([A-Za-z]{1,3}-\d+(?:\.\d+)?)\]`)
	detailCitePattern = regexp.MustCompile(`\[([^\[\],]+),\s*(?i:Detail)\s+(\d{1,3})\s*/\s*([A-Za-z]{1,3}-\d+(?:\.\d+)?)\]`)
	pageCitePattern   = regexp.MustCompile(`\[([^\[\],]+),\s*(?i:Page)\s+(\d+)\]`)
)

// Extract 按三族正则解析回答文本中的引用标记。
// 输出顺序按正则族优先级（Sheet、Detail、Page），不按文中出现位置；
// Page 族只做兜底，同一括号片段已被前两族捕获时丢弃，避免重复引用。
func Extract(answerText string) []model.Citation {
	var citations []model.Citation
	captured := make(map[string]bool)

	for _, m := range sheetCitePattern.FindAllStringSubmatch(answerText, -1) {
		captured[m[0]] = true
		citations = append(citations, model.Citation{
			Source:   strings.TrimSpace(m[1]),
			Sheet:    strings.ToUpper(m[2]),
			FullText: m[0],
		})
	}

	for _, m := range detailCitePattern.FindAllStringSubmatch(answerText, -1) {
		captured[m[0]] = true
		sheet := strings.ToUpper(m[3])
		citations = append(citations, model.Citation{
			Source:   strings.TrimSpace(m[1]),
			Sheet:    sheet,
			Detail:   fmt.Sprintf("%s/%s", m[2], sheet),
			FullText: m[0],
		})
	}

	for _, m := range pageCitePattern.FindAllStringSubmatch(answerText, -1) {
		if captured[m[0]] {
			continue
		}
		page, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		citations = append(citations, model.Citation{
			Source:   strings.TrimSpace(m[1]),
			Page:     &page,
			FullText: m[0],
		})
	}

	return citations
}

// Resolver 把缺页码的图号引用解析到具体页码与文件名。
type Resolver interface {
	Resolve(citations []model.Citation, projectID uint) []model.Citation
}

type resolver struct {
	chunkRepo    repository.ChunkRepository
	documentRepo repository.DocumentRepository
}

// NewResolver 创建一个新的 Resolver 实例。
func NewResolver(chunkRepo repository.ChunkRepository, documentRepo repository.DocumentRepository) Resolver {
	return &resolver{chunkRepo: chunkRepo, documentRepo: documentRepo}
}

// Resolve 为「有图号、无页码」的引用回填页码与文件名。
// 解析只填补空位：已有页码的引用原样通过，解析失败的引用原样返回，
// 绝不凭空捏造页码，也绝不丢弃任何引用。
// 解析分两级：图号+文件名精确匹配；失败后退化为仅按文件名取该文档首个分块。
// 模型引用的文件名常与库内元数据有出入（缩写标题），两级退化就是为此兜底。
func (r *resolver) Resolve(citations []model.Citation, projectID uint) []model.Citation {
	resolved := make([]model.Citation, 0, len(citations))
	for _, c := range citations {
		if c.Page != nil || c.Sheet == "" {
			resolved = append(resolved, c)
			continue
		}

		chunk := r.lookup(projectID, c.Sheet, c.Source)
		if chunk == nil {
			// 找不到就原样返回，由前端提示「无法定位」
			resolved = append(resolved, c)
			continue
		}

		page := chunk.PageNumber
		c.Page = &page
		c.Filename = r.fileNameOf(chunk.DocumentID)
		resolved = append(resolved, c)
	}
	return resolved
}

func (r *resolver) lookup(projectID uint, sheet, source string) *model.Chunk {
	chunk, err := r.chunkRepo.GetChunkBySheetAndFilename(projectID, sheet, source)
	if err == nil {
		return chunk
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Warnf("[Citation] 图号+文件名精确匹配查询失败: %v", err)
		return nil
	}

	chunks, err := r.chunkRepo.GetChunksByFilename(projectID, source)
	if err != nil {
		log.Warnf("[Citation] 按文件名兜底查询失败: %v", err)
		return nil
	}
	if len(chunks) == 0 {
		return nil
	}
	return chunks[0]
}

func (r *resolver) fileNameOf(documentID uint) string {
	docs, err := r.documentRepo.FindBatchByIDs([]uint{documentID})
	if err != nil || len(docs) == 0 {
		return ""
	}
	return docs[0].FileName
}
