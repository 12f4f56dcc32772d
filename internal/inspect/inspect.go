// Package inspect 报告文本中疑似乱码的位置，不做修改。
//
// 检出四类：C1 控制字符、U+FFFD、典型前导字符（Ã Â â ð ï Å）后紧跟
// Windows-1252 高位字符的片段，以及替换表命中（守卫已求值）。
package inspect

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"mojifix/internal/diag"
	"mojifix/internal/mojibake"
	"mojifix/internal/patterns"
	"mojifix/pkg/contract"
)

// Kind: 发现的类别。
type Kind string

const (
	KindC1          Kind = "c1"
	KindReplacement Kind = "replacement"
	KindLead        Kind = "lead"
	KindTable       Kind = "table"
	KindInvalid     Kind = "invalid-utf8"
)

// Finding: 单处疑似乱码。Line/Col 从 1 开始，Col 以字符计。
type Finding struct {
	FileID  contract.FileID `json:"file_id"`
	Line    int             `json:"line"`
	Col     int             `json:"col"`
	Offset  int             `json:"offset"`
	Kind    Kind            `json:"kind"`
	Match   string          `json:"match"`
	Hex     string          `json:"hex"`
	Snippet string          `json:"snippet"`
	// Suggest: 替换表给出的规范片段（仅 table）。
	Suggest string `json:"suggest,omitempty"`
}

// snippetRadius: 片段前后保留的字符数。
const snippetRadius = 16

var leads = map[rune]bool{'Ã': true, 'Â': true, 'â': true, 'ð': true, 'ï': true, 'Å': true}

// High 报告 r 是否为某个 0x80–0xFF 字节的 Windows-1252 解码结果
// （含 1252 未定义位置保留的 C1）。
func High(r rune) bool {
	if r >= 0x80 && r <= 0x9F {
		return true
	}
	b, ok := charmap.Windows1252.EncodeRune(r)
	return ok && b >= 0x80
}

// Scan 扫描 text；table 可为 nil。结果按偏移升序，互不重叠。
func Scan(id contract.FileID, text string, table *patterns.Table) ([]Finding, error) {
	m, err := mojibake.NewMatcher(text, table)
	if err != nil {
		return nil, err
	}
	var (
		out  []Finding
		line = 1
		col  = 1
	)
	add := func(i, end int, k Kind, suggest string) {
		out = append(out, Finding{
			FileID:  id,
			Line:    line,
			Col:     col,
			Offset:  i,
			Kind:    k,
			Match:   text[i:end],
			Hex:     Codepoints(text[i:end]),
			Snippet: snippet(text, i, end),
			Suggest: suggest,
		})
	}
	// advance 将行列推进到 end。
	advance := func(i, end int) int {
		for i < end {
			r, n := utf8.DecodeRuneInString(text[i:])
			if r == '\n' {
				line++
				col = 1
			} else {
				col++
			}
			i += n
		}
		return end
	}

	for i := 0; i < len(text); {
		if k := m.At(i); k >= 0 {
			e := table.Entries[k]
			add(i, i+len(e.From), KindTable, e.To)
			i = advance(i, i+len(e.From))
			continue
		}
		r, n := utf8.DecodeRuneInString(text[i:])
		switch {
		case r == utf8.RuneError && n <= 1:
			add(i, i+1, KindInvalid, "")
		case r == utf8.RuneError:
			add(i, i+n, KindReplacement, "")
		case r >= 0x80 && r <= 0x9F:
			add(i, i+n, KindC1, "")
		case leads[r]:
			end := i + n
			for end < len(text) {
				r2, n2 := utf8.DecodeRuneInString(text[end:])
				if !High(r2) || r2 == utf8.RuneError {
					break
				}
				end += n2
			}
			if end > i+n {
				add(i, end, KindLead, "")
				i = advance(i, end)
				continue
			}
		}
		i = advance(i, i+n)
	}
	return out, nil
}

// Codepoints 以 "U+00C3 U+00A9" 形式列出码点。
func Codepoints(s string) string {
	var b strings.Builder
	for i, r := range []rune(s) {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "U+%04X", r)
	}
	return b.String()
}

// snippet 截取命中所在行的上下文；控制字符以 \x.. 显示。
func snippet(text string, start, end int) string {
	ls := strings.LastIndexByte(text[:start], '\n') + 1
	le := strings.IndexByte(text[end:], '\n')
	if le < 0 {
		le = len(text)
	} else {
		le += end
	}
	before := []rune(text[ls:start])
	if len(before) > snippetRadius {
		before = before[len(before)-snippetRadius:]
	}
	after := []rune(text[end:le])
	if len(after) > snippetRadius {
		after = after[:snippetRadius]
	}
	return visible(string(before) + text[start:end] + string(after))
}

func visible(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r == '\t' || r == '\r':
			b.WriteByte(' ')
		case r < 0x20 || (r >= 0x7F && r <= 0x9F):
			fmt.Fprintf(&b, `\x%02x`, r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// FileReport: 单文件扫描结果。
type FileReport struct {
	FileID   contract.FileID `json:"file_id"`
	Findings []Finding       `json:"findings"`
	Err      string          `json:"error,omitempty"`
}

// Run 经 Reader 遍历 roots 并逐文件扫描。单文件错误记入报告，不中断。
func Run(ctx context.Context, r contract.Reader, roots []string, table *patterns.Table, logger *diag.Logger) ([]FileReport, error) {
	if logger == nil {
		logger = diag.Nop()
	}
	t := logger.Start("inspect", "scan")
	var out []FileReport
	var total int64
	err := r.Iterate(ctx, roots, func(e contract.Entry) error {
		rep := FileReport{FileID: e.FileID}
		if e.Err != nil {
			rep.Err = e.Err.Error()
			logger.ErrorWith("inspect", string(diag.Classify(e.Err)), e.Err.Error(), t.Since(), string(e.FileID))
			out = append(out, rep)
			return nil
		}
		b, err := io.ReadAll(e.Body)
		_ = e.Body.Close()
		if err != nil {
			rep.Err = err.Error()
			out = append(out, rep)
			return nil
		}
		fs, err := Scan(e.FileID, string(b), table)
		if err != nil {
			return err
		}
		rep.Findings = fs
		total += int64(len(fs))
		out = append(out, rep)
		return nil
	})
	if err != nil {
		logger.Error("inspect", string(diag.Classify(err)), "scan failed: "+err.Error(), t.Since())
		return out, err
	}
	t.Finish("scan", total)
	return out, nil
}

// WriteText 以 "path:line:col: kind ..." 形式逐行输出。
func WriteText(w io.Writer, reps []FileReport) error {
	for _, rep := range reps {
		if rep.Err != "" {
			if _, err := fmt.Fprintf(w, "%s: error: %s\n", rep.FileID, rep.Err); err != nil {
				return err
			}
			continue
		}
		for _, f := range rep.Findings {
			line := fmt.Sprintf("%s:%d:%d: %s %q [%s] | %s", f.FileID, f.Line, f.Col, f.Kind, f.Match, f.Hex, f.Snippet)
			if f.Suggest != "" {
				line += " → " + f.Suggest
			}
			if _, err := io.WriteString(w, line+"\n"); err != nil {
				return err
			}
		}
	}
	return nil
}

// WriteJSON 输出缩进 JSON 数组。
func WriteJSON(w io.Writer, reps []FileReport) error {
	if reps == nil {
		reps = []FileReport{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(reps)
}

// Count 返回发现总数。
func Count(reps []FileReport) int {
	n := 0
	for _, r := range reps {
		n += len(r.Findings)
	}
	return n
}
