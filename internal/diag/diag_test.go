package diag

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap/zapcore"

	"mojifix/pkg/contract"
)

// 日志轮转写入
func TestRotatingFile(t *testing.T) {
	dir := t.TempDir()
	w := NewRotatingFile(dir, 30)
	defer w.Close()
	if _, err := w.Write([]byte("first line that is very long\n")); err != nil {
		t.Fatalf("写入失败: %v", err)
	}
	if _, err := w.Write([]byte("second\n")); err != nil {
		t.Fatalf("第二次写入失败: %v", err)
	}
	files, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("读取目录失败: %v", err)
	}
	if len(files) < 2 {
		t.Fatalf("应存在轮转文件, got %d", len(files))
	}
	hasCurrent, hasRotated := false, false
	for _, e := range files {
		switch {
		case e.Name() == currentName:
			hasCurrent = true
		case strings.HasPrefix(e.Name(), "mojifix-") && strings.HasSuffix(e.Name(), ".txt"):
			hasRotated = true
		}
	}
	if !hasCurrent || !hasRotated {
		t.Fatalf("expect both current and rotated files, got current=%v rotated=%v", hasCurrent, hasRotated)
	}
	if err := w.Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}
}

// 直接覆盖 ensureOpen 与 rotate 内部分支
func TestRotatingFileEnsureAndRotate(t *testing.T) {
	dir := t.TempDir()
	w := NewRotatingFile(dir, 0)
	defer w.Close()
	if err := w.Sync(); err != nil {
		t.Fatalf("sync before open: %v", err)
	}
	if err := w.ensureOpen(); err != nil {
		t.Fatalf("ensureOpen: %v", err)
	}
	if err := w.rotate(); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	w.f.Close()
	w.f = nil
	// f==nil 时 rotate 等价于打开
	if err := w.rotate(); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	ents, _ := os.ReadDir(dir)
	if len(ents) < 2 {
		t.Fatalf("expect >=2 files, got %d", len(ents))
	}
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		m := map[string]any{}
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("bad json %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

// Logger 事件字段
func TestLoggerEvents(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerTo("corr-1", "debug", zapcore.AddSync(&buf))
	timer := l.StartWith("pipeline", "repair", "site/a.html")
	timer.Finish("done", 3)
	l.ErrorWithKV("pipeline", string(CodeDecode), "invalid utf-8", timer.Since(), "site/b.html", map[string]string{"offset": "12"})
	l.DebugStart("pass", "table", "site/a.html", nil)
	l.Warn("patterns", "overlap", map[string]string{"table": "emoji"})
	if err := l.Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}

	evs := decodeLines(t, &buf)
	if len(evs) != 5 {
		t.Fatalf("expect 5 events, got %d: %s", len(evs), buf.String())
	}
	if evs[0]["corr_id"] != "corr-1" || evs[0]["stage"] != "start" || evs[0]["file_id"] != "site/a.html" {
		t.Fatalf("start event: %v", evs[0])
	}
	if evs[1]["stage"] != "finish" || evs[1]["count"] != float64(3) {
		t.Fatalf("finish event: %v", evs[1])
	}
	if evs[2]["level"] != "error" || evs[2]["code"] != "decode" {
		t.Fatalf("error event: %v", evs[2])
	}
	if kv, _ := evs[2]["kv"].(map[string]any); kv["offset"] != "12" {
		t.Fatalf("kv missing: %v", evs[2])
	}
	if evs[3]["level"] != "debug" || evs[4]["level"] != "warn" {
		t.Fatalf("levels: %v %v", evs[3], evs[4])
	}
}

// 级别过滤与运行期调整
func TestLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerTo("c", "bogus", zapcore.AddSync(&buf)) // 非法级别回退 info
	l.DebugStart("comp", "hidden", "f", nil)
	if buf.Len() != 0 {
		t.Fatalf("debug should be filtered at info: %s", buf.String())
	}
	l.Start("comp", "info").Finish("info", 0)
	if n := len(decodeLines(t, &buf)); n != 2 {
		t.Fatalf("info events at info level: %d", n)
	}
	buf.Reset()
	l = NewLoggerTo("c", "error", zapcore.AddSync(&buf))
	l.Start("comp", "hidden").Finish("hidden", 0)
	start := time.Now().Add(-10 * time.Millisecond)
	l.Error("comp", "io", "shown", &start)
	evs := decodeLines(t, &buf)
	if len(evs) != 1 || evs[0]["msg"] != "shown" {
		t.Fatalf("unexpected events %v", evs)
	}
	if _, ok := evs[0]["dur_ms"]; !ok {
		t.Fatalf("dur_ms missing: %v", evs[0])
	}
	// Timer nil/l=nil 早返回
	var tnil *Timer
	tnil.Finish("x", 0)
	(&Timer{}).Finish("x", 0)
}

// NewLogger 写入 logs/mojifix-current.txt
func TestLoggerWithSink(t *testing.T) {
	dir := t.TempDir()
	old, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(old) })

	l := NewLogger("corr", "info")
	l.Start("comp", "msg").Finish("ok", 1)
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	b, err := os.ReadFile(filepath.Join("logs", currentName))
	if err != nil {
		t.Fatalf("log file not found: %v", err)
	}
	if !strings.Contains(string(b), `"corr_id":"corr"`) {
		t.Fatalf("log content: %s", b)
	}
}

// 错误分类
func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want Code
	}{
		{context.Canceled, CodeCancel},
		{fmt.Errorf("x: %w", context.DeadlineExceeded), CodeCancel},
		{fmt.Errorf("a.html: %w", contract.ErrFileNotFound), CodeNotFound},
		{&fs.PathError{Op: "open", Path: "/x", Err: fs.ErrNotExist}, CodeNotFound},
		{fmt.Errorf("a.html: %w", contract.ErrDecode), CodeDecode},
		{contract.ErrRoundTripUnreversible, CodeUnreversible},
		{contract.ErrPatternConflict, CodeInvariant},
		{contract.ErrPathInvalid, CodeInvariant},
		{contract.ErrInvalidInput, CodeInvariant},
		{fmt.Errorf("%w: %w", contract.ErrWrite, errors.New("disk full")), CodeIO},
		{&fs.PathError{Op: "open", Path: "/", Err: errors.New("x")}, CodeIO},
		{errors.New("other"), CodeUnknown},
		{nil, CodeUnknown},
	}
	for _, c := range cases {
		if got := Classify(c.err); got != c.want {
			t.Errorf("Classify(%v)=%s want %s", c.err, got, c.want)
		}
	}
}

// 指标经 OpenTelemetry 导出
func TestMetricsRecorded(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	if err := UseMeter(mp.Meter("test")); err != nil {
		t.Fatalf("use meter: %v", err)
	}
	IncOp("pipeline", "file", "fixed")
	IncOp("pipeline", "file", "fixed")
	IncError("pipeline", "decode")
	ObserveDuration("pipeline", "file", 7)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	got := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch d := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range d.DataPoints {
					got[m.Name] += dp.Value
				}
			case metricdata.Histogram[int64]:
				for _, dp := range d.DataPoints {
					got[m.Name] += int64(dp.Count)
				}
			}
		}
	}
	if got["mojifix.op_total"] != 2 || got["mojifix.error_total"] != 1 || got["mojifix.op_duration_ms"] != 1 {
		t.Fatalf("metrics: %v", got)
	}
}

func TestCollector(t *testing.T) {
	c, err := InstallCollector()
	if err != nil {
		t.Fatalf("install: %v", err)
	}
	t.Cleanup(func() { _ = c.Shutdown(context.Background()) })
	IncOp("pipeline", "file", "fixed")
	IncError("writer", "io")
	ObserveDuration("pipeline", "file", 5)
	ObserveDuration("pipeline", "file", 7)

	var buf bytes.Buffer
	if err := c.WriteTo(context.Background(), &buf); err != nil {
		t.Fatalf("write: %v", err)
	}
	want := []string{
		"mojifix.error_total{code=io,comp=writer} 1",
		"mojifix.op_duration_ms{comp=pipeline,stage=file} count=2 sum=12",
		"mojifix.op_total{comp=pipeline,result=fixed,stage=file} 1",
	}
	got := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("collector output:\n%s", buf.String())
	}
}

// 终端（非 TTY）关键行输出
func TestTerminalNonTTYFlow(t *testing.T) {
	var sb strings.Builder
	term := NewTerminal(&sb, true)
	if term.isTTY {
		t.Fatalf("expect non-tty")
	}
	term.RunStart(4, []string{"roundtrip", "table"}, false)
	results := []contract.FileResult{
		{FileID: "site/admin.html", Status: contract.StatusFixed, Passes: []contract.PassResult{
			{Pass: "roundtrip", Err: contract.ErrRoundTripUnreversible},
			{Pass: "table", Changed: true, Substitutions: 3},
		}},
		{FileID: "site/bad.html", Status: contract.StatusError, Err: fmt.Errorf("site/bad.html: %w", contract.ErrDecode)},
		{FileID: "site/index.html", Status: contract.StatusUnchanged},
	}
	var s contract.Summary
	for _, r := range results {
		term.FileDone(r) // 非 TTY：不输出进度
		s.Add(r)
	}
	term.Report(s.Results)
	term.RunFinish(s, 1500*time.Millisecond)

	out := sb.String()
	if strings.Contains(out, "\r") {
		t.Fatalf("non-tty should not contain carriage returns: %q", out)
	}
	for _, want := range []string{
		"[run] 并发=4 | passes=roundtrip,table\n",
		"[fixed] site/admin.html | table×3\n",
		"[error] site/bad.html | decode: decode error\n",
		"[ok] site/index.html\n",
		"[fail] 全部完成 | 文件 3 | 修复 1 | 未变 1 | 跳过 0 | 错误 1 | 总用时 1.5s\n",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in %q", want, out)
		}
	}
}

// 状态过滤
func TestTerminalShowFilter(t *testing.T) {
	var sb strings.Builder
	term := NewTerminal(&sb, true)
	st, err := ParseStatuses([]string{"fixed, error"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	term.Show(st)
	term.Report([]contract.FileResult{
		{FileID: "a.html", Status: contract.StatusFixed},
		{FileID: "b.html", Status: contract.StatusUnchanged},
		{FileID: "c.html", Status: contract.StatusSkipped},
	})
	if sb.String() != "[fixed] a.html\n" {
		t.Fatalf("filter: %q", sb.String())
	}
	if _, err := ParseStatuses([]string{"broken"}); !errors.Is(err, contract.ErrInvalidInput) {
		t.Fatalf("expect invalid status error, got %v", err)
	}
}

// 终端（TTY）进度节流与清尾
func TestTerminalTTYProgressThrottleAndClear(t *testing.T) {
	var sb strings.Builder
	term := NewTerminal(&sb, true)
	term.isTTY = true // 强制 TTY
	term.RunStart(2, []string{"table"}, true)

	term.FileDone(contract.FileResult{FileID: "/a/b/c/longfilename.html", Status: contract.StatusFixed})
	first := sb.String()
	if !strings.Contains(first, "\r[run] longfilename.html") {
		t.Fatalf("first progress should be inline with CR: %q", first)
	}
	// 立即第二次：应被节流（<100ms）
	term.FileDone(contract.FileResult{FileID: "b.html"})
	if sb.String() != first {
		t.Fatalf("second progress should be throttled")
	}
	time.Sleep(120 * time.Millisecond)
	term.FileDone(contract.FileResult{FileID: "c.html"})
	if len(sb.String()) <= len(first) {
		t.Fatalf("third progress should append output")
	}
	term.RunFinish(contract.Summary{Fixed: 1, Unchanged: 2}, 10*time.Millisecond)
	final := sb.String()
	idx := strings.LastIndex(final, "[ok]")
	if idx < 0 || !strings.Contains(final[idx:], "待修复 1") {
		t.Fatalf("finish line: %q", final)
	}
	// 清尾：完成行之前应有回车后的空格串
	seg := final[:idx]
	cr := strings.LastIndex(seg[:len(seg)-1], "\r")
	if cr < 0 || !strings.Contains(seg[cr:], " ") {
		t.Fatalf("clear tail should write spaces after CR: %q", seg)
	}
}

// 写失败降级为禁用态
type flakyWriter struct{ fail bool }

func (w *flakyWriter) Write(p []byte) (int, error) {
	if w.fail {
		w.fail = false
		return 0, fmt.Errorf("boom")
	}
	return len(p), nil
}

func TestTerminalDisableOnWriteError(t *testing.T) {
	term := NewTerminal(&flakyWriter{fail: true}, true)
	term.RunStart(1, nil, false) // 第一次 println 触发失败
	if term.enabled {
		t.Fatalf("terminal should be disabled after write error")
	}
	// 后续调用应该是 no-op，不应 panic
	term.FileDone(contract.FileResult{FileID: "a"})
	term.Report([]contract.FileResult{{FileID: "a"}})
	term.RunFinish(contract.Summary{}, 0)

	tty := NewTerminal(&flakyWriter{fail: true}, true)
	tty.isTTY = true
	tty.FileDone(contract.FileResult{FileID: "f.html"}) // inline 写失败 → 禁用
	if tty.enabled {
		t.Fatalf("terminal should be disabled after inline error")
	}
}

// 工具函数与全局终端
func TestHelpers(t *testing.T) {
	if got := shortenBase("/x/y/这是一个很长的文件名用于截断测试abcdefghijk.html", 10); visLen(got) != 10 || !strings.HasSuffix(got, "…") {
		t.Fatalf("shortenBase: %q", got)
	}
	if shortenBase("x", 0) != "" {
		t.Fatalf("shortenBase max<=0 should be empty")
	}
	if safe("a\nb\rc") != "a b c" {
		t.Fatalf("safe replace failed")
	}
	if formatDur(0) != "0ms" || formatDur(1500*time.Millisecond) != "1.5s" {
		t.Fatalf("formatDur: %s %s", formatDur(0), formatDur(1500*time.Millisecond))
	}
	if rootCause(fmt.Errorf("a: %w", fmt.Errorf("b: %w", contract.ErrDecode))) != "decode error" {
		t.Fatalf("rootCause")
	}
	SetTerminal(nil)
	if GetTerminal() != nil {
		t.Fatalf("expected nil terminal")
	}
	SetTerminal(NewTerminal(os.Stderr, false))
	if GetTerminal() == nil {
		t.Fatalf("expected non-nil terminal")
	}
	SetTerminal(nil)
}

// CI 环境强制非 TTY；nil 接收者早返回
func TestTerminalCIAndNil(t *testing.T) {
	t.Setenv("CI", "true")
	if NewTerminal(os.Stderr, true).isTTY {
		t.Fatalf("CI env should force non-tty")
	}
	var tn *Terminal
	tn.RunStart(1, nil, false)
	tn.FileDone(contract.FileResult{})
	tn.Report(nil)
	tn.RunFinish(contract.Summary{}, 0)
	tn.Println("x")
	tn.Show(nil)
}
