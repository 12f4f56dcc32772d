// Package patterns 维护“损坏片段 → 规范片段”的有序替换表。
//
// 表以 YAML 描述（内置表随二进制嵌入），加载时统一编译：
// 展开 derive、校验冲突、按 From 长度降序稳定排序。
// 运行期只读，可被多个 goroutine 共享。
package patterns

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"mojifix/pkg/contract"
)

// Entry: 单条替换规则。
// FollowedBy/PrecededBy/Inside 为可选上下文守卫；均为空表示无条件替换。
type Entry struct {
	From       string `yaml:"from" json:"from"`
	To         string `yaml:"to" json:"to"`
	FollowedBy string `yaml:"followed_by,omitempty" json:"followed_by,omitempty"`
	PrecededBy string `yaml:"preceded_by,omitempty" json:"preceded_by,omitempty"`
	// Inside: 最小选择器 tag / tag[attr] / tag[attr=value]。
	Inside string `yaml:"inside,omitempty" json:"inside,omitempty"`
	Note   string `yaml:"note,omitempty" json:"note,omitempty"`
	// Derived 标记由 derive 展开得到的条目。
	Derived bool `yaml:"-" json:"derived,omitempty"`
}

// Guarded 报告条目是否带上下文守卫。
func (e Entry) Guarded() bool {
	return e.FollowedBy != "" || e.PrecededBy != "" || e.Inside != ""
}

// key: 冲突判定键（From + 守卫）。
func (e Entry) key() string {
	return e.From + "\x00" + e.FollowedBy + "\x00" + e.PrecededBy + "\x00" + e.Inside
}

// Table: 编译后的有序替换表。
type Table struct {
	Name     string
	Entries  []Entry
	Warnings []string

	// 首字节 → 条目下标（保持 Entries 的长度降序）。
	byFirst [256][]int
	scoped  bool
}

// Candidates 返回以字节 b 开头的条目下标（最长优先）。
func (t *Table) Candidates(b byte) []int { return t.byFirst[b] }

// Scoped 报告表内是否存在 Inside 守卫（需要 HTML 作用域）。
func (t *Table) Scoped() bool { return t.scoped }

// Len 返回条目数。
func (t *Table) Len() int { return len(t.Entries) }

// Derive 计算字符 r 的 UTF-8 字节被当作 Windows-1252 解码后的形态。
// 1252 未定义的字节（0x81 0x8D 0x8F 0x90 0x9D）保留为同值 C1 控制字符。
func Derive(r rune) string {
	var buf [utf8.UTFMax]byte
	n := utf8.EncodeRune(buf[:], r)
	var b strings.Builder
	for _, c := range buf[:n] {
		d := charmap.Windows1252.DecodeByte(c)
		if d == utf8.RuneError {
			// 未定义位置：DecodeByte 给出 U+FFFD，这里改回同值 C1
			d = rune(c)
		}
		b.WriteRune(d)
	}
	return b.String()
}

// Compile 展开 derive 并校验、排序。
// 规则：
//  1. From 不得为空，且不得等于 To；
//  2. 相同 From+守卫 对应不同 To → ErrPatternConflict；完全相同则去重；
//  3. To 中包含任一 From（无守卫）→ ErrPatternConflict（无法收敛）；
//  4. 按 len(From) 降序稳定排序；
//  5. 片段首尾重叠仅记入 Warnings。
func Compile(name, derive string, entries []Entry) (*Table, error) {
	all := make([]Entry, 0, len(entries)+utf8.RuneCountInString(derive))
	for _, r := range derive {
		if r < utf8.RuneSelf || r == ' ' || r == '\n' || r == '\t' {
			continue
		}
		all = append(all, Entry{From: Derive(r), To: string(r), Derived: true})
	}
	all = append(all, entries...)

	t := &Table{Name: name}
	seen := make(map[string]int, len(all))
	for i, e := range all {
		if e.From == "" {
			return nil, fmt.Errorf("%w: table %s entry %d: empty pattern", contract.ErrPatternConflict, name, i)
		}
		if e.From == e.To {
			return nil, fmt.Errorf("%w: table %s entry %q maps to itself", contract.ErrPatternConflict, name, e.From)
		}
		if !utf8.ValidString(e.From) || !utf8.ValidString(e.To) {
			return nil, fmt.Errorf("%w: table %s entry %d: invalid UTF-8", contract.ErrInvalidInput, name, i)
		}
		if e.Inside != "" {
			if _, err := ParseSelector(e.Inside); err != nil {
				return nil, fmt.Errorf("table %s entry %q: %w", name, e.From, err)
			}
		}
		k := e.key()
		if j, dup := seen[k]; dup {
			if t.Entries[j].To != e.To {
				return nil, fmt.Errorf("%w: table %s pattern %q maps to both %q and %q",
					contract.ErrPatternConflict, name, e.From, t.Entries[j].To, e.To)
			}
			continue
		}
		seen[k] = len(t.Entries)
		t.Entries = append(t.Entries, e)
	}
	for _, e := range t.Entries {
		for _, f := range t.Entries {
			if f.Guarded() || !strings.Contains(e.To, f.From) {
				continue
			}
			return nil, fmt.Errorf("%w: table %s replacement %q of %q contains pattern %q",
				contract.ErrPatternConflict, name, e.To, e.From, f.From)
		}
	}
	sort.SliceStable(t.Entries, func(i, j int) bool {
		return len(t.Entries[i].From) > len(t.Entries[j].From)
	})
	for i, e := range t.Entries {
		t.byFirst[e.From[0]] = append(t.byFirst[e.From[0]], i)
		if e.Inside != "" {
			t.scoped = true
		}
	}
	t.Warnings = overlaps(t.Entries)
	return t, nil
}

// overlaps: A 的真后缀恰为 B 的前缀时，"A…B" 两种切分都可能成立。
// 最长优先 + 自左向右扫描给出确定结果，这里只做提示。
func overlaps(es []Entry) []string {
	var out []string
	for i := range es {
		a := es[i].From
		for j := range es {
			if i == j {
				continue
			}
			b := es[j].From
			for k := 1; k < len(a) && k < len(b); k++ {
				if !utf8.RuneStart(a[len(a)-k]) {
					continue
				}
				if a[len(a)-k:] == b[:k] {
					out = append(out, fmt.Sprintf("%q overlaps %q on %q", a, b, b[:k]))
					break
				}
			}
		}
	}
	return out
}

// Merge 将多张表按给定顺序合并为一张并重新编译。
func Merge(tables ...*Table) (*Table, error) {
	names := make([]string, 0, len(tables))
	var entries []Entry
	for _, t := range tables {
		if t == nil {
			continue
		}
		names = append(names, t.Name)
		entries = append(entries, t.Entries...)
	}
	return Compile(strings.Join(names, "+"), "", entries)
}
