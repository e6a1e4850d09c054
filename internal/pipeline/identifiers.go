package pipeline

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Identifiers 是在一批对话中累积的、能指向用户真实身份的字符串集合。
// 保持首次出现的顺序，替换正文时按该顺序逐个应用。
type Identifiers struct {
	order []string
	seen  map[string]struct{}
}

// NewIdentifiers 创建一个空集合。
func NewIdentifiers() *Identifiers {
	return &Identifiers{seen: make(map[string]struct{})}
}

// Add 收录新的标识符。空串和占位符本身不会被收录。
func (ids *Identifiers) Add(values ...string) {
	for _, v := range values {
		if v == "" || isPlaceholder(v) {
			continue
		}
		if _, ok := ids.seen[v]; ok {
			continue
		}
		ids.seen[v] = struct{}{}
		ids.order = append(ids.order, v)
	}
}

// Len 返回已收录的标识符数量。
func (ids *Identifiers) Len() int {
	return len(ids.order)
}

// Values 按收录顺序返回所有标识符的副本。
func (ids *Identifiers) Values() []string {
	out := make([]string, len(ids.order))
	copy(out, ids.order)
	return out
}

// Scrub 把 text 中所有完整出现的标识符替换为 PlaceholderNameInMessage，
// 返回替换后的文本与替换次数。
func (ids *Identifiers) Scrub(text string) (string, int) {
	if text == "" {
		return text, 0
	}
	replaced := 0
	for _, v := range ids.order {
		var n int
		text, n = replaceWord(text, v, PlaceholderNameInMessage)
		replaced += n
	}
	return text, replaced
}

// replaceWord 按字面量查找 word，只替换两端都落在单词边界上的出现。
// 单词字符包括任意语言的字母、数字、组合符号和下划线。
func replaceWord(text, word, repl string) (string, int) {
	var b strings.Builder
	last, pos, n := 0, 0, 0
	for pos < len(text) {
		i := strings.Index(text[pos:], word)
		if i < 0 {
			break
		}
		start, end := pos+i, pos+i+len(word)
		if atBoundary(text, start) && atBoundary(text, end) {
			b.WriteString(text[last:start])
			b.WriteString(repl)
			last, pos = end, end
			n++
			continue
		}
		// 边界不成立时从下一个字符继续，允许重叠的出现
		_, size := utf8.DecodeRuneInString(text[start:])
		pos = start + size
	}
	if n == 0 {
		return text, 0
	}
	b.WriteString(text[last:])
	return b.String(), n
}

// atBoundary 报告 text 的第 i 个字节处两侧的字符是否一侧为单词字符、另一侧不是。
func atBoundary(text string, i int) bool {
	before, after := false, false
	if i > 0 {
		r, _ := utf8.DecodeLastRuneInString(text[:i])
		before = isWordRune(r)
	}
	if i < len(text) {
		r, _ := utf8.DecodeRuneInString(text[i:])
		after = isWordRune(r)
	}
	return before != after
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r)
}
