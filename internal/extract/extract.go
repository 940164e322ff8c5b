// Package extract 从图纸页面文本中提取结构化元数据：图号与详图引用。
// 全部为纯文本启发式，不依赖任何外部服务。
package extract

import (
	"regexp"
	"strconv"
	"strings"
)

// 图号提取采用从严到宽的三级正则：
// 1) 显式 "SHEET/DRAWING/DWG NO: X-###" 标注；
// 2) 整行只有图号的独立行；
// 3) 页面任意位置出现的 LETTERS-DIGITS 形态。
// 第三级召回高但精度低（可能误中型号等记号），这是已接受的启发式局限，
// 收紧它会在真实图纸上损失召回。
var (
	sheetLabelPattern = regexp.MustCompile(`(?i)(?:SHEET|DRAWING|DWG)\s*(?:NO|NUMBER|#)?\s*[.:：]?\s*([A-Za-z]{1,3})\s*-?\s*(\d+(?:\.\d+)?)`)
	sheetLinePattern  = regexp.MustCompile(`(?m)^\s*([A-Za-z]{1,3})\s*-\s*(\d+(?:\.\d+)?)\s*$`)
	sheetBarePattern  = regexp.MustCompile(`\b([A-Za-z]{1,3})-(\d+(?:\.\d+)?)\b`)

	// 归一化后的图号形态。
	sheetNumberPattern = regexp.MustCompile(`^[A-Z]{1,3}-\d+(\.\d+)?$`)

	// 详图引用：显式 "DETAIL/DTL/SEE N/SHEET" 措辞，以及保守的裸 "N/SHEET"。
	detailExplicitPattern = regexp.MustCompile(`(?i)(?:DETAIL|DTL|SEE)\s+(\d{1,3})\s*/\s*([A-Za-z]{1,3}\s*-?\s*\d+(?:\.\d+)?)`)
	detailBarePattern     = regexp.MustCompile(`\b(\d{1,3})\s*/\s*([A-Za-z]{1,3}-\d+(?:\.\d+)?)\b`)

	// 规范形态的详图引用，ParseDetailReference 的唯一合法输入。
	detailReferencePattern = regexp.MustCompile(`^(\d+)/([A-Z]{1,3}-\d+(?:\.\d+)?)$`)
)

// 裸 "N/SHEET" 只在短行上生效，且详图编号不超过 50，
// 以抑制尺寸串和分数写法造成的误报。
const (
	bareDetailMaxLineLen = 100
	bareDetailMaxNumber  = 50
)

// ExtractSheetNumber 从页面文本中提取归一化图号。
// 三级模式按序尝试，第一个命中者生效；无命中返回空字符串，
// 这在规范页上是常态而非错误。
func ExtractSheetNumber(text string) string {
	if m := sheetLabelPattern.FindStringSubmatch(text); m != nil {
		if sheet := normalizeSheet(m[1], m[2]); sheet != "" {
			return sheet
		}
	}
	if m := sheetLinePattern.FindStringSubmatch(text); m != nil {
		if sheet := normalizeSheet(m[1], m[2]); sheet != "" {
			return sheet
		}
	}
	if m := sheetBarePattern.FindStringSubmatch(text); m != nil {
		if sheet := normalizeSheet(m[1], m[2]); sheet != "" {
			return sheet
		}
	}
	return ""
}

// normalizeSheet 去除空白、统一大写并补上连字符，产出 LETTERS-DIGITS[.DIGITS]。
func normalizeSheet(letters, digits string) string {
	sheet := strings.ToUpper(strings.TrimSpace(letters)) + "-" + strings.TrimSpace(digits)
	sheet = strings.ReplaceAll(sheet, " ", "")
	if !sheetNumberPattern.MatchString(sheet) {
		return ""
	}
	return sheet
}

// ExtractDetailReferences 提取页面上的详图引用，去重后按首次出现顺序返回，
// 形如 "3/A-501"。
func ExtractDetailReferences(text string) []string {
	seen := make(map[string]struct{})
	var refs []string

	add := func(num, sheetFrag string) {
		sheet := normalizeSheetFragment(sheetFrag)
		if sheet == "" {
			return
		}
		ref := num + "/" + sheet
		if _, ok := seen[ref]; ok {
			return
		}
		seen[ref] = struct{}{}
		refs = append(refs, ref)
	}

	for _, m := range detailExplicitPattern.FindAllStringSubmatch(text, -1) {
		add(m[1], m[2])
	}

	for _, line := range strings.Split(text, "\n") {
		if len(line) >= bareDetailMaxLineLen {
			continue
		}
		for _, m := range detailBarePattern.FindAllStringSubmatch(line, -1) {
			num, err := strconv.Atoi(m[1])
			if err != nil || num > bareDetailMaxNumber {
				continue
			}
			add(m[1], m[2])
		}
	}

	return refs
}

// normalizeSheetFragment 归一化详图引用中的图号片段。
func normalizeSheetFragment(frag string) string {
	frag = strings.ToUpper(strings.ReplaceAll(frag, " ", ""))
	if !strings.Contains(frag, "-") {
		// 补上缺失的连字符：字母与数字的分界处
		for i, r := range frag {
			if r >= '0' && r <= '9' {
				frag = frag[:i] + "-" + frag[i:]
				break
			}
		}
	}
	if !sheetNumberPattern.MatchString(frag) {
		return ""
	}
	return frag
}

// ParseDetailReference 将一条详图引用解析为编号与目标图号。
// 不符合规范形态的引用返回 ok=false，构建 Callout 时静默丢弃
//（原文仍保留在 Chunk 上用于展示）。
func ParseDetailReference(ref string) (detailNumber int, targetSheet string, ok bool) {
	m := detailReferencePattern.FindStringSubmatch(strings.TrimSpace(ref))
	if m == nil {
		return 0, "", false
	}
	num, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, "", false
	}
	return num, m[2], true
}
