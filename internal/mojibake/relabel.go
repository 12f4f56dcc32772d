package mojibake

import (
	"strings"

	"golang.org/x/net/html"
)

var textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

type edit struct {
	start, end int
	text       string
}

// Relabel 按属性值查表，重写 <tag attr=value> 元素的内部内容。
// 内部内容（去首尾空白后）已等于标签时不改动；首尾空白保留。
// 返回改写的元素个数。
func Relabel(text, tag, attr string, labels map[string]string) (string, int) {
	if len(labels) == 0 {
		return text, 0
	}
	tag = strings.ToLower(tag)
	attr = strings.ToLower(attr)
	z := html.NewTokenizer(strings.NewReader(text))
	var (
		edits []edit
		off   int
		// 当前匹配元素
		open  bool
		depth int
		inner int
		label string
	)
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		n := len(z.Raw())
		switch tt {
		case html.StartTagToken:
			name, hasAttr := z.TagName()
			if string(name) != tag {
				break
			}
			if open {
				depth++
				break
			}
			for hasAttr {
				var k, v []byte
				k, v, hasAttr = z.TagAttr()
				if string(k) != attr {
					continue
				}
				if l, ok := labels[string(v)]; ok {
					open, depth, inner, label = true, 1, off+n, l
				}
				break
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if !open || string(name) != tag {
				break
			}
			depth--
			if depth > 0 {
				break
			}
			open = false
			cur := text[inner:off]
			esc := textEscaper.Replace(label)
			if core := strings.TrimSpace(cur); core == label || core == esc {
				break
			}
			lead := cur[:len(cur)-len(strings.TrimLeft(cur, " \t\r\n"))]
			trail := cur[len(strings.TrimRight(cur, " \t\r\n")):]
			edits = append(edits, edit{start: inner, end: off, text: lead + esc + trail})
		}
		off += n
	}
	if len(edits) == 0 {
		return text, 0
	}
	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, e := range edits {
		b.WriteString(text[last:e.start])
		b.WriteString(e.text)
		last = e.end
	}
	b.WriteString(text[last:])
	return b.String(), len(edits)
}
