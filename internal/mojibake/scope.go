package mojibake

import (
	"sort"
	"strings"

	"golang.org/x/net/html"

	"mojifix/internal/patterns"
)

// voidElements 没有结束标签，不入栈。
var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true, "hr": true, "img": true,
	"input": true, "link": true, "meta": true, "source": true, "track": true, "wbr": true,
}

type element struct {
	tag   string
	attrs map[string]string
}

// segment: 一个文本节点在原文中的字节区间 [start,end) 及其祖先元素栈。
type segment struct {
	start, end int
	stack      []element
}

// Scopes: 基于 HTML 词法切分的文本节点索引。
// 只读取原始字节区间，不重新序列化任何内容。
type Scopes struct {
	segs []segment
}

// ComputeScopes 对 text 做一次词法扫描。非 HTML 文本整体视为一个无祖先的文本节点。
func ComputeScopes(text string) *Scopes {
	z := html.NewTokenizer(strings.NewReader(text))
	var (
		s     Scopes
		stack []element
		off   int
	)
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		n := len(z.Raw())
		switch tt {
		case html.TextToken:
			s.segs = append(s.segs, segment{start: off, end: off + n, stack: append([]element(nil), stack...)})
		case html.StartTagToken:
			name, hasAttr := z.TagName()
			el := element{tag: string(name)}
			if hasAttr {
				el.attrs = make(map[string]string)
				for {
					k, v, more := z.TagAttr()
					el.attrs[string(k)] = string(v)
					if !more {
						break
					}
				}
			}
			if !voidElements[el.tag] {
				stack = append(stack, el)
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			for i := len(stack) - 1; i >= 0; i-- {
				if stack[i].tag == string(name) {
					stack = stack[:i]
					break
				}
			}
		}
		off += n
	}
	return &s
}

// Inside 报告 [start,end) 是否完整落在同一文本节点内，且该节点有满足 sel 的祖先。
func (s *Scopes) Inside(start, end int, sel patterns.Selector) bool {
	i := sort.Search(len(s.segs), func(i int) bool { return s.segs[i].end > start })
	if i == len(s.segs) {
		return false
	}
	seg := s.segs[i]
	if start < seg.start || end > seg.end {
		return false
	}
	for _, el := range seg.stack {
		if sel.Match(el.tag, el.attrs) {
			return true
		}
	}
	return false
}
