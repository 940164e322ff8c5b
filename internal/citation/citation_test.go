package citation

import (
	"testing"

	"gongtu-rag-go/internal/model"
	"gongtu-rag-go/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestExtract(t *testing.T) {
	t.Run("sheet citation", func(t *testing.T) {
		citations := Extract("The drain sits at the low point [Roof Plan.pdf, Sheet A-101].")
		require.Len(t, citations, 1)
		assert.Equal(t, "Roof Plan.pdf", citations[0].Source)
		assert.Equal(t, "A-101", citations[0].Sheet)
		assert.Empty(t, citations[0].Detail)
		assert.Nil(t, citations[0].Page)
		assert.Equal(t, "[Roof Plan.pdf, Sheet A-101]", citations[0].FullText)
	})

	t.Run("detail citation derives sheet", func(t *testing.T) {
		citations := Extract("See the flashing callout [Arch Set.pdf, Detail 3/A-501].")
		require.Len(t, citations, 1)
		assert.Equal(t, "A-501", citations[0].Sheet)
		assert.Equal(t, "3/A-501", citations[0].Detail)
	})

	t.Run("page citation as fallback", func(t *testing.T) {
		citations := Extract("Noted in the general requirements [Spec Book.pdf, Page 42].")
		require.Len(t, citations, 1)
		require.NotNil(t, citations[0].Page)
		assert.Equal(t, 42, *citations[0].Page)
		assert.Empty(t, citations[0].Sheet)
	})

	t.Run("keywords are case insensitive", func(t *testing.T) {
		citations := Extract("[a.pdf, sheet A-1] [b.pdf, DETAIL 2/S-201] [c.pdf, page 7]")
		require.Len(t, citations, 3)
		assert.Equal(t, "A-1", citations[0].Sheet)
		assert.Equal(t, "2/S-201", citations[1].Detail)
		require.NotNil(t, citations[2].Page)
	})

	t.Run("sheet letters uppercased", func(t *testing.T) {
		citations := Extract("[a.pdf, Sheet a-101]")
		require.Len(t, citations, 1)
		assert.Equal(t, "A-101", citations[0].Sheet)
	})

	t.Run("output ordered by family not text position", func(t *testing.T) {
		text := "[spec.pdf, Page 9] then [arch.pdf, Detail 1/A-500] then [arch.pdf, Sheet A-101]"
		citations := Extract(text)
		require.Len(t, citations, 3)
		assert.Equal(t, "A-101", citations[0].Sheet)
		assert.Equal(t, "1/A-500", citations[1].Detail)
		require.NotNil(t, citations[2].Page)
	})

	t.Run("no double citing of the same bracketed span", func(t *testing.T) {
		// Page 族与 Sheet 族不会匹配同一片段，但同一片段重复出现时
		// Page 族不应把已由 Sheet 族捕获的片段再记一次
		text := "[a.pdf, Sheet A-101] and again [a.pdf, Sheet A-101]"
		citations := Extract(text)
		assert.Len(t, citations, 2) // 两个片段各记一次，同族内不去重
		for _, c := range citations {
			assert.Equal(t, "A-101", c.Sheet)
		}
	})

	t.Run("plain brackets are ignored", func(t *testing.T) {
		citations := Extract("Dimensions [typ.] are nominal [see notes].")
		assert.Empty(t, citations)
	})

	t.Run("decimal sheet numbers", func(t *testing.T) {
		citations := Extract("[civil.pdf, Sheet C-1.2]")
		require.Len(t, citations, 1)
		assert.Equal(t, "C-1.2", citations[0].Sheet)
	})
}

// fakeChunkRepo 只实现解析用到的两个查询。
type fakeChunkRepo struct {
	repository.ChunkRepository
	bySheetAndFile map[string]*model.Chunk // key: sheet|file
	byFile         map[string][]*model.Chunk
}

func (f *fakeChunkRepo) GetChunkBySheetAndFilename(projectID uint, sheetNumber, fileName string) (*model.Chunk, error) {
	if chunk, ok := f.bySheetAndFile[sheetNumber+"|"+fileName]; ok {
		return chunk, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeChunkRepo) GetChunksByFilename(projectID uint, fileName string) ([]*model.Chunk, error) {
	return f.byFile[fileName], nil
}

type fakeDocumentRepo struct {
	repository.DocumentRepository
	docs map[uint]*model.Document
}

func (f *fakeDocumentRepo) FindBatchByIDs(ids []uint) ([]*model.Document, error) {
	var out []*model.Document
	for _, id := range ids {
		if doc, ok := f.docs[id]; ok {
			out = append(out, doc)
		}
	}
	return out, nil
}

func intPtr(v int) *int { return &v }

func TestResolve(t *testing.T) {
	chunkRepo := &fakeChunkRepo{
		bySheetAndFile: map[string]*model.Chunk{
			"A-101|Arch Set.pdf": {ID: 1, DocumentID: 7, PageNumber: 12},
		},
		byFile: map[string][]*model.Chunk{
			"Arch Set.pdf": {{ID: 1, DocumentID: 7, PageNumber: 12}, {ID: 2, DocumentID: 7, PageNumber: 13}},
			"Spec.pdf":     {{ID: 9, DocumentID: 8, PageNumber: 1}},
		},
	}
	documentRepo := &fakeDocumentRepo{docs: map[uint]*model.Document{
		7: {ID: 7, FileName: "Arch Set.pdf"},
		8: {ID: 8, FileName: "Spec.pdf"},
	}}
	r := NewResolver(chunkRepo, documentRepo)

	t.Run("exact sheet and filename match fills page", func(t *testing.T) {
		resolved := r.Resolve([]model.Citation{
			{Source: "Arch Set.pdf", Sheet: "A-101"},
		}, 1)
		require.Len(t, resolved, 1)
		require.NotNil(t, resolved[0].Page)
		assert.Equal(t, 12, *resolved[0].Page)
		assert.Equal(t, "Arch Set.pdf", resolved[0].Filename)
	})

	t.Run("filename-only fallback uses first chunk", func(t *testing.T) {
		resolved := r.Resolve([]model.Citation{
			{Source: "Spec.pdf", Sheet: "A-999"}, // 图号不存在但文件存在
		}, 1)
		require.Len(t, resolved, 1)
		require.NotNil(t, resolved[0].Page)
		assert.Equal(t, 1, *resolved[0].Page)
		assert.Equal(t, "Spec.pdf", resolved[0].Filename)
	})

	t.Run("no match passes through unchanged", func(t *testing.T) {
		original := model.Citation{Source: "Missing.pdf", Sheet: "Z-1", FullText: "[Missing.pdf, Sheet Z-1]"}
		resolved := r.Resolve([]model.Citation{original}, 1)
		require.Len(t, resolved, 1)
		assert.Equal(t, original, resolved[0])
	})

	t.Run("existing page is never overwritten", func(t *testing.T) {
		resolved := r.Resolve([]model.Citation{
			{Source: "Arch Set.pdf", Sheet: "A-101", Page: intPtr(99)},
		}, 1)
		require.Len(t, resolved, 1)
		assert.Equal(t, 99, *resolved[0].Page)
		assert.Empty(t, resolved[0].Filename)
	})

	t.Run("sheetless citation passes through", func(t *testing.T) {
		resolved := r.Resolve([]model.Citation{
			{Source: "Spec.pdf", Page: intPtr(3)},
		}, 1)
		require.Len(t, resolved, 1)
		assert.Equal(t, 3, *resolved[0].Page)
	})

	t.Run("never drops a citation", func(t *testing.T) {
		input := []model.Citation{
			{Source: "Arch Set.pdf", Sheet: "A-101"},
			{Source: "Missing.pdf", Sheet: "Z-1"},
			{Source: "Spec.pdf", Page: intPtr(3)},
		}
		resolved := r.Resolve(input, 1)
		assert.Len(t, resolved, len(input))
	})
}
