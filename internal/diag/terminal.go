package diag

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"

	"mojifix/pkg/contract"
)

// Terminal: 终端信息提示（非日志）。
// - 输出到提供的 io.Writer（默认 stderr）。
// - TTY: 处理中单行 \r 覆盖进度；非 TTY: 只打印关键行。
// - 并发安全；写失败后进入禁用态为 no-op。
type Terminal struct {
	w       io.Writer
	enabled bool
	isTTY   bool

	// 运行期最小状态
	concurrency int
	dryRun      bool
	filesDone   int
	fixed       int
	errCount    int
	runStart    time.Time
	lastFile    string

	// 只报告这些状态的逐文件行；nil 表示全部
	show map[contract.Status]bool

	// 输出控制
	lastLen   int
	lastFlush time.Time

	mu sync.Mutex
}

// 进程级终端（可选，全局设置后供 pipeline 旁路调用）。
var (
	termMu sync.RWMutex
	term   *Terminal
)

// SetTerminal 设置全局终端指针（nil 可清除）。
func SetTerminal(t *Terminal) { termMu.Lock(); term = t; termMu.Unlock() }

// GetTerminal 返回全局终端（可能为 nil）。
func GetTerminal() *Terminal { termMu.RLock(); defer termMu.RUnlock(); return term }

// NewTerminal 构造终端提示器。
// enabled=false 时总是 no-op。
func NewTerminal(w io.Writer, enabled bool) *Terminal {
	if w == nil {
		w = os.Stderr
	}
	t := &Terminal{w: w, enabled: enabled}
	// CI 环境视为非 TTY
	if os.Getenv("CI") == "" {
		if f, ok := w.(*os.File); ok {
			t.isTTY = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
		}
	}
	return t
}

// ParseStatuses 解析 --status 列表（fixed,unchanged,skipped,error）。
func ParseStatuses(list []string) ([]contract.Status, error) {
	var out []contract.Status
	for _, s := range list {
		for _, part := range strings.Split(s, ",") {
			part = strings.ToLower(strings.TrimSpace(part))
			switch contract.Status(part) {
			case "":
				continue
			case contract.StatusFixed, contract.StatusUnchanged, contract.StatusSkipped, contract.StatusError:
				out = append(out, contract.Status(part))
			default:
				return nil, fmt.Errorf("%w: unknown status %q", contract.ErrInvalidInput, part)
			}
		}
	}
	return out, nil
}

// Show 限定逐文件报告的状态；空列表表示全部。
func (t *Terminal) Show(statuses []contract.Status) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(statuses) == 0 {
		t.show = nil
		return
	}
	t.show = make(map[contract.Status]bool, len(statuses))
	for _, s := range statuses {
		t.show[s] = true
	}
}

// RunStart: 记录运行上下文（并发、Pass 链、dry-run）。
func (t *Terminal) RunStart(concurrency int, passes []string, dryRun bool) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	t.concurrency = concurrency
	t.dryRun = dryRun
	t.filesDone, t.fixed, t.errCount = 0, 0, 0
	t.runStart = time.Now()
	mode := ""
	if dryRun {
		mode = " | dry-run"
	}
	t.println(fmt.Sprintf("[run] 并发=%d | passes=%s%s", concurrency, safe(strings.Join(passes, ",")), mode))
}

// FileDone: 单个文件完成（TTY 下节流刷新进度行）。
func (t *Terminal) FileDone(r contract.FileResult) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	t.filesDone++
	switch r.Status {
	case contract.StatusFixed:
		t.fixed++
	case contract.StatusError:
		t.errCount++
	}
	t.lastFile = shortenBase(string(r.FileID), 48)
	if !t.isTTY {
		return
	}
	// 节流：100ms
	now := time.Now()
	if now.Sub(t.lastFlush) < 100*time.Millisecond {
		return
	}
	t.lastFlush = now
	t.printInline(fmt.Sprintf("[run] %s | 文件 %d | 修复 %d | 错误 %d | 用时 %s",
		t.lastFile, t.filesDone, t.fixed, t.errCount, formatSince(t.runStart)))
}

// Report: 逐文件结果（调用方保证按 FileID 排序）。
func (t *Terminal) Report(results []contract.FileResult) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	t.clearInline()
	for _, r := range results {
		if t.show != nil && !t.show[r.Status] {
			continue
		}
		t.println(resultLine(r))
	}
}

// RunFinish: 结束总览。
func (t *Terminal) RunFinish(s contract.Summary, dur time.Duration) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	t.clearInline()
	tag := "ok"
	if s.Errored > 0 {
		tag = "fail"
	}
	verb := "修复"
	if t.dryRun {
		verb = "待修复"
	}
	t.println(fmt.Sprintf("[%s] 全部完成 | 文件 %d | %s %d | 未变 %d | 跳过 %d | 错误 %d | 总用时 %s",
		tag, s.Total(), verb, s.Fixed, s.Unchanged, s.Skipped, s.Errored, formatDur(dur)))
}

// Println 输出一行提示（watch 等外层命令使用）。
func (t *Terminal) Println(s string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clearInline()
	t.println(safe(s))
}

func statusTag(s contract.Status) string {
	switch s {
	case contract.StatusFixed:
		return "fixed"
	case contract.StatusSkipped:
		return "skip"
	case contract.StatusError:
		return "error"
	default:
		return "ok"
	}
}

// resultLine: "[fixed] site/admin.html | roundtrip×1 table×3"
func resultLine(r contract.FileResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", statusTag(r.Status), safe(string(r.FileID)))
	var parts []string
	for _, p := range r.Passes {
		if p.Changed {
			parts = append(parts, fmt.Sprintf("%s×%d", p.Pass, p.Substitutions))
		}
	}
	if len(parts) > 0 {
		b.WriteString(" | ")
		b.WriteString(strings.Join(parts, " "))
	}
	if r.Err != nil {
		fmt.Fprintf(&b, " | %s: %s", Classify(r.Err), safe(rootCause(r.Err)))
	}
	return b.String()
}

// rootCause 取最内层错误文本，避免长链重复。
func rootCause(err error) string {
	for {
		u := errors.Unwrap(err)
		if u == nil {
			return err.Error()
		}
		if _, multi := u.(interface{ Unwrap() []error }); multi {
			return err.Error()
		}
		err = u
	}
}

// 内部输出工具
func (t *Terminal) println(s string) {
	if t == nil || !t.enabled {
		return
	}
	if _, err := io.WriteString(t.w, s+"\n"); err != nil {
		// 写失败即禁用
		t.enabled = false
	}
	t.lastLen = 0
}

func (t *Terminal) clearInline() {
	if t.isTTY && t.lastLen > 0 {
		t.printInline("")
		if t.enabled {
			_, _ = io.WriteString(t.w, "\r")
		}
		t.lastLen = 0
	}
}

func (t *Terminal) printInline(s string) {
	if t == nil || !t.enabled {
		return
	}
	// \r + 内容 + 清尾空格（新行比旧短时覆盖残留）
	pad := 0
	if l := visLen(s); t.lastLen > l {
		pad = t.lastLen - l
	}
	var b strings.Builder
	b.WriteByte('\r')
	b.WriteString(s)
	if pad > 0 {
		b.WriteString(strings.Repeat(" ", pad))
	}
	if _, err := io.WriteString(t.w, b.String()); err != nil {
		t.enabled = false
		return
	}
	t.lastLen = visLen(s)
}

// shortenBase: 取基名并按可见宽度截断（尾部省略号）。
func shortenBase(s string, max int) string {
	if max <= 0 {
		return ""
	}
	base := filepath.Base(strings.TrimSpace(s))
	if visLen(base) <= max {
		return base
	}
	rs := []rune(base)
	return string(rs[:max-1]) + "…"
}

func visLen(s string) int { return len([]rune(s)) }

func safe(s string) string {
	// 避免换行等控制字符污染终端
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	return s
}

func formatSince(t0 time.Time) string { return formatDur(time.Since(t0)) }

func formatDur(d time.Duration) string {
	if d < time.Second {
		ms := d.Milliseconds()
		if ms < 0 {
			ms = 0
		}
		return fmt.Sprintf("%dms", ms)
	}
	// 秒，保留 1 位小数
	return fmt.Sprintf("%.1fs", float64(d.Milliseconds())/1000.0)
}
