package mojibake

import (
	"fmt"
	"strings"

	"mojifix/internal/patterns"
	"mojifix/pkg/contract"
)

// DefaultMaxRounds: 替换表反复应用的轮数上限。
const DefaultMaxRounds = 8

// ApplyTable 以最长优先、自左向右、不重叠的方式应用替换表，
// 重复若干轮直到某轮零替换；返回总替换次数。
func ApplyTable(text string, t *patterns.Table) (string, int, error) {
	return ApplyTableRounds(text, t, DefaultMaxRounds)
}

// ApplyTableRounds 同 ApplyTable，可指定轮数上限。
// 超过上限仍有替换时视为表不收敛：返回原文与 ErrPatternConflict。
func ApplyTableRounds(text string, t *patterns.Table, maxRounds int) (string, int, error) {
	if t == nil || t.Len() == 0 {
		return text, 0, nil
	}
	if maxRounds < 1 {
		maxRounds = DefaultMaxRounds
	}
	sels, err := selectors(t)
	if err != nil {
		return text, 0, err
	}
	cur := text
	total := 0
	for round := 0; round < maxRounds; round++ {
		next, n := applyRound(cur, t, sels)
		if n == 0 {
			return cur, total, nil
		}
		cur = next
		total += n
	}
	return text, 0, fmt.Errorf("%w: table %s did not converge after %d rounds", contract.ErrPatternConflict, t.Name, maxRounds)
}

func selectors(t *patterns.Table) (map[string]patterns.Selector, error) {
	if !t.Scoped() {
		return nil, nil
	}
	out := make(map[string]patterns.Selector)
	for _, e := range t.Entries {
		if e.Inside == "" {
			continue
		}
		if _, ok := out[e.Inside]; ok {
			continue
		}
		sel, err := patterns.ParseSelector(e.Inside)
		if err != nil {
			return nil, err
		}
		out[e.Inside] = sel
	}
	return out, nil
}

// Matcher 在一段固定文本上按表查找命中（守卫已求值）。
type Matcher struct {
	t      *patterns.Table
	sels   map[string]patterns.Selector
	text   string
	scopes *Scopes
}

// NewMatcher 为 text 准备匹配器；选择器非法返回 ErrInvalidInput。
func NewMatcher(text string, t *patterns.Table) (*Matcher, error) {
	if t == nil {
		return &Matcher{text: text}, nil
	}
	sels, err := selectors(t)
	if err != nil {
		return nil, err
	}
	return &Matcher{t: t, sels: sels, text: text}, nil
}

// At 返回在字节偏移 i 处命中的条目下标（最长优先）；未命中为 -1。
func (m *Matcher) At(i int) int {
	if m.t == nil {
		return -1
	}
	text := m.text
	for _, k := range m.t.Candidates(text[i]) {
		e := &m.t.Entries[k]
		if !strings.HasPrefix(text[i:], e.From) {
			continue
		}
		if e.FollowedBy != "" && !strings.HasPrefix(text[i+len(e.From):], e.FollowedBy) {
			continue
		}
		if e.PrecededBy != "" && !strings.HasSuffix(text[:i], e.PrecededBy) {
			continue
		}
		if e.Inside != "" {
			if m.scopes == nil {
				m.scopes = ComputeScopes(text)
			}
			if !m.scopes.Inside(i, i+len(e.From), m.sels[e.Inside]) {
				continue
			}
		}
		return k
	}
	return -1
}

func applyRound(text string, t *patterns.Table, sels map[string]patterns.Selector) (string, int) {
	var (
		b    strings.Builder
		last int
		n    int
	)
	m := &Matcher{t: t, sels: sels, text: text}
	for i := 0; i < len(text); {
		hit := m.At(i)
		if hit < 0 {
			i++
			continue
		}
		if n == 0 {
			b.Grow(len(text))
		}
		e := &t.Entries[hit]
		b.WriteString(text[last:i])
		b.WriteString(e.To)
		i += len(e.From)
		last = i
		n++
	}
	if n == 0 {
		return text, 0
	}
	b.WriteString(text[last:])
	return b.String(), n
}
