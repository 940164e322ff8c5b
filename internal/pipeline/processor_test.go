package pipeline

import (
	"strings"
	"testing"

	"gongtu-rag-go/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildChunks(t *testing.T) {
	config.Conf.RAG.ChunkContentLimit = 8000
	p := &Processor{}

	t.Run("blank pages are skipped and page numbers preserved", func(t *testing.T) {
		pages := []string{
			"SHEET NO: A-101\nFLOOR PLAN",
			"   \n\t",
			"GENERAL NOTES",
		}
		chunks, _ := p.buildChunks(7, pages)

		require.Len(t, chunks, 2)
		assert.Equal(t, 1, chunks[0].PageNumber)
		assert.Equal(t, 3, chunks[1].PageNumber)
		require.NotNil(t, chunks[0].SheetNumber)
		assert.Equal(t, "A-101", *chunks[0].SheetNumber)
		assert.Nil(t, chunks[1].SheetNumber)
	})

	t.Run("oversized page is truncated with marker", func(t *testing.T) {
		config.Conf.RAG.ChunkContentLimit = 100
		defer func() { config.Conf.RAG.ChunkContentLimit = 8000 }()

		chunks, _ := p.buildChunks(7, []string{strings.Repeat("x", 500)})
		require.Len(t, chunks, 1)
		assert.True(t, strings.HasSuffix(chunks[0].Content, "[内容过长已截断]"))
		assert.Less(t, len(chunks[0].Content), 200)
	})

	t.Run("callouts built only from parsable references", func(t *testing.T) {
		page := "SHEET NO: A-101\nWALL SECTION\nSEE 3/A-501\nDETAIL 5/S201"
		chunks, callouts := p.buildChunks(7, []string{page})

		require.Len(t, chunks, 1)
		assert.Equal(t, []string{"3/A-501", "5/S-201"}, chunks[0].DetailReferences)

		require.Len(t, callouts, 2)
		assert.Equal(t, uint(7), callouts[0].DocumentID)
		assert.Equal(t, "A-101", callouts[0].SheetNumber)
		assert.Equal(t, 3, callouts[0].DetailNumber)
		assert.Equal(t, "A-501", callouts[0].TargetSheet)
		assert.Equal(t, "S-201", callouts[1].TargetSheet)
	})

	t.Run("sheetless page still records callouts", func(t *testing.T) {
		_, callouts := p.buildChunks(7, []string{"SEE 2/A-300 for flashing"})
		require.Len(t, callouts, 1)
		assert.Empty(t, callouts[0].SheetNumber)
		assert.Equal(t, "A-300", callouts[0].TargetSheet)
	})
}
