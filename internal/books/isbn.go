package books

import (
	"strings"

	"golang.org/x/text/width"
)

// NormalizeISBN は入力ゆれを吸収する。
// 全角英数字を半角に寄せ、ハイフンと空白を取り除き、ISBN-10 のチェック文字 x を X にする。
func NormalizeISBN(s string) string {
	s = width.Fold.String(strings.TrimSpace(s))
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '-' || r == ' ' || r == '‐' || r == '−':
			continue
		case r == 'x':
			b.WriteRune('X')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
