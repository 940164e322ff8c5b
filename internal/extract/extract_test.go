package extract

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractSheetNumber_LabelPattern(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"sheet no with colon", "GENERAL NOTES\nSHEET NO: A-101\nSCALE 1/4\"", "A-101"},
		{"drawing number", "DRAWING NUMBER S-2.1\nFOUNDATION PLAN", "S-2.1"},
		{"dwg abbreviation", "DWG NO. M-301", "M-301"},
		{"missing hyphen normalized", "SHEET NO: A 101", "A-101"},
		{"lowercase keyword", "sheet no: e-401", "E-401"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractSheetNumber(tt.text))
		})
	}
}

func TestExtractSheetNumber_StandaloneLine(t *testing.T) {
	text := "FLOOR PLAN\n  A-201  \nSCALE: 1/8\" = 1'-0\""
	assert.Equal(t, "A-201", ExtractSheetNumber(text))
}

func TestExtractSheetNumber_BareOccurrence(t *testing.T) {
	text := "refer to structural plan S-101 for framing"
	assert.Equal(t, "S-101", ExtractSheetNumber(text))
}

func TestExtractSheetNumber_NoMatch(t *testing.T) {
	// 规范页通常没有图号，这是常态而非错误
	text := "SECTION 09 29 00\nGYPSUM BOARD\nPART 1 GENERAL"
	assert.Equal(t, "", ExtractSheetNumber(text))
}

func TestExtractSheetNumber_Idempotent(t *testing.T) {
	normalized := regexp.MustCompile(`^[A-Z]{1,3}-\d+(\.\d+)?$`)
	texts := []string{
		"SHEET NO: A-101",
		"DWG NO. M 301",
		"\nS-2.1\n",
		"see detail on AE-505 for more",
	}
	for _, text := range texts {
		got := ExtractSheetNumber(text)
		require.NotEmpty(t, got, "input: %q", text)
		assert.Regexp(t, normalized, got)
		// 对归一化结果再次提取应得到同一个值
		assert.Equal(t, got, ExtractSheetNumber(got))
	}
}

func TestExtractDetailReferences_Explicit(t *testing.T) {
	text := "WALL ASSEMBLY\nSEE 3/A-501 FOR HEAD DETAIL\nDETAIL 12/S-401\nDTL 1/A-502"
	refs := ExtractDetailReferences(text)
	assert.Equal(t, []string{"3/A-501", "12/S-401", "1/A-502"}, refs)
}

func TestExtractDetailReferences_BareShortLine(t *testing.T) {
	text := "TYP. 5/A-501\nANOTHER LINE"
	assert.Equal(t, []string{"5/A-501"}, ExtractDetailReferences(text))
}

func TestExtractDetailReferences_BareSuppressedOnLongLine(t *testing.T) {
	long := "dimension string 5/A-501 " + strings.Repeat("x", 120)
	assert.Empty(t, ExtractDetailReferences(long))
}

func TestExtractDetailReferences_BareNumberCap(t *testing.T) {
	// 裸引用编号超过 50 视为尺寸串误报
	assert.Empty(t, ExtractDetailReferences("99/A-501"))
	assert.Equal(t, []string{"50/A-501"}, ExtractDetailReferences("50/A-501"))
}

func TestExtractDetailReferences_Dedup(t *testing.T) {
	text := "SEE 3/A-501\n3/A-501\nSEE 3/A-501 AGAIN"
	assert.Equal(t, []string{"3/A-501"}, ExtractDetailReferences(text))
}

func TestParseDetailReference_RoundTrip(t *testing.T) {
	// 提取产出的每一条引用都必须能解析，且目标图号与引用尾段一致
	text := "SEE 3/A-501\nDETAIL 12/S-401\n7/M-2.1"
	for _, ref := range ExtractDetailReferences(text) {
		num, target, ok := ParseDetailReference(ref)
		require.True(t, ok, "ref: %q", ref)
		assert.Positive(t, num)
		assert.True(t, strings.HasSuffix(ref, "/"+target), "ref %q target %q", ref, target)
	}
}

func TestParseDetailReference_Invalid(t *testing.T) {
	for _, ref := range []string{"", "A-501", "3/", "3/501", "x/A-501", "3/A501B"} {
		_, _, ok := ParseDetailReference(ref)
		assert.False(t, ok, "ref: %q", ref)
	}
}
