package patterns

import (
	"fmt"
	"strings"

	"mojifix/pkg/contract"
)

// Selector: 最小元素选择器 tag / tag[attr] / tag[attr=value]。
// 仅用于上下文守卫，不支持组合器与伪类。
type Selector struct {
	Tag   string
	Attr  string
	Value string
	// HasValue 区分 [attr] 与 [attr=""]。
	HasValue bool
}

// ParseSelector 解析选择器；tag 可为 "*"。
func ParseSelector(s string) (Selector, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Selector{}, fmt.Errorf("%w: empty selector", contract.ErrInvalidInput)
	}
	var sel Selector
	tag, rest, hasAttr := strings.Cut(s, "[")
	sel.Tag = strings.ToLower(strings.TrimSpace(tag))
	if sel.Tag == "" || strings.ContainsAny(sel.Tag, " >+~.#:]") {
		return Selector{}, fmt.Errorf("%w: selector %q", contract.ErrInvalidInput, s)
	}
	if !hasAttr {
		return sel, nil
	}
	body, ok := strings.CutSuffix(rest, "]")
	if !ok || strings.Contains(body, "[") {
		return Selector{}, fmt.Errorf("%w: selector %q", contract.ErrInvalidInput, s)
	}
	name, val, hasVal := strings.Cut(body, "=")
	sel.Attr = strings.ToLower(strings.TrimSpace(name))
	if sel.Attr == "" {
		return Selector{}, fmt.Errorf("%w: selector %q", contract.ErrInvalidInput, s)
	}
	if hasVal {
		sel.HasValue = true
		sel.Value = strings.Trim(strings.TrimSpace(val), `"'`)
	}
	return sel, nil
}

// Match 判定元素是否满足选择器；attrs 的键需为小写。
func (s Selector) Match(tag string, attrs map[string]string) bool {
	if s.Tag != "*" && s.Tag != tag {
		return false
	}
	if s.Attr == "" {
		return true
	}
	v, ok := attrs[s.Attr]
	if !ok {
		return false
	}
	return !s.HasValue || v == s.Value
}

func (s Selector) String() string {
	switch {
	case s.Attr == "":
		return s.Tag
	case s.HasValue:
		return fmt.Sprintf("%s[%s=%s]", s.Tag, s.Attr, s.Value)
	default:
		return fmt.Sprintf("%s[%s]", s.Tag, s.Attr)
	}
}
