package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/pmezard/go-difflib/difflib"
	"golang.org/x/sync/errgroup"

	"mojifix/internal/diag"
	"mojifix/pkg/contract"
)

// - 单点并发：仅此层管理并发；Reader/Pass/Writer 均为同步实现。
// - Reader 顺序遍历并整文件读入，文件级工作交给 errgroup（SetLimit 形成背压）。
// - 单文件错误只记入结果，不中断批次；仅 ctx 取消中止整体。
// - 仅当最终文本与原文不同才写出（幂等：二次运行不触碰文件）。

// When: Pass 的执行条件。
type When string

const (
	// WhenAlways: 总是执行（默认）。
	WhenAlways When = "always"
	// WhenUnchanged: 仅当此前所有 Pass 都未改动文本时执行（兜底表）。
	WhenUnchanged When = "unchanged"
)

// ParseWhen 解析 when 字段；空值为 always。
func ParseWhen(s string) (When, error) {
	switch When(strings.ToLower(strings.TrimSpace(s))) {
	case "", WhenAlways:
		return WhenAlways, nil
	case WhenUnchanged:
		return WhenUnchanged, nil
	default:
		return "", fmt.Errorf("%w: unknown when %q", contract.ErrInvalidInput, s)
	}
}

// Stage: 流水线中的一个 Pass 及其执行条件。
type Stage struct {
	Name string
	Pass contract.Pass
	When When
}

// Components 聚合运行所需的原子组件。
type Components struct {
	Reader contract.Reader
	Stages []Stage
	Writer contract.Writer
}

// Settings 运行期配置（最小必要）。
type Settings struct {
	Inputs      []string
	Concurrency int
	// DryRun: 只报告不写出。
	DryRun bool
	// Diff: DryRun 下为每个待修复文件输出 unified diff 到 DiffOut（默认 stdout）。
	Diff    bool
	DiffOut io.Writer
}

// Run 执行流水线：Reader → 解码检查 → Passes → 变更判定 → Writer。
// 返回按 FileID 排序的汇总；err 仅在遍历失败或 ctx 取消时非空。
func Run(ctx context.Context, comp Components, set Settings, logger *diag.Logger) (contract.Summary, error) {
	if logger == nil {
		logger = diag.Nop()
	}
	if err := sanity(comp, &set); err != nil {
		return contract.Summary{}, fmt.Errorf("sanity: %w", err)
	}
	r := &runner{comp: comp, set: set, logger: logger}
	if ew, ok := comp.Writer.(contract.EchoWriter); ok {
		r.echo = ew.EchoUnchanged()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(set.Concurrency)

	rtimer := logger.Start("reader", "iterate")
	var files int64
	iterErr := comp.Reader.Iterate(gctx, set.Inputs, func(e contract.Entry) error {
		files++
		if e.Err != nil {
			r.record(r.fail(e.FileID, time.Now(), "reader", e.Err))
			return nil
		}
		data, err := io.ReadAll(e.Body)
		_ = e.Body.Close()
		if err != nil {
			r.record(r.fail(e.FileID, time.Now(), "reader", fmt.Errorf("read %s: %w", e.FileID, err)))
			return nil
		}
		id := e.FileID
		g.Go(func() error {
			res := r.process(gctx, id, data)
			r.record(res)
			if errors.Is(res.Err, context.Canceled) || errors.Is(res.Err, context.DeadlineExceeded) {
				return res.Err
			}
			return nil
		})
		return nil
	})
	waitErr := g.Wait()

	sum := r.summary()
	if iterErr == nil {
		iterErr = waitErr
	}
	if iterErr == nil {
		iterErr = ctx.Err()
	}
	if iterErr != nil {
		code := diag.Classify(iterErr)
		logger.Error("reader", string(code), "iterate failed: "+iterErr.Error(), rtimer.Since())
		diag.IncOp("reader", "error", "error")
		diag.IncError("reader", string(code))
		return sum, fmt.Errorf("reader iterate: %w", iterErr)
	}
	rtimer.Finish("iterate", files)
	diag.IncOp("reader", "finish", "success")
	return sum, nil
}

type runner struct {
	comp   Components
	set    Settings
	logger *diag.Logger
	echo   bool

	mu      sync.Mutex
	results []contract.FileResult
	diffMu  sync.Mutex
}

func (r *runner) record(res contract.FileResult) {
	r.mu.Lock()
	r.results = append(r.results, res)
	r.mu.Unlock()
	diag.IncOp("pipeline", "file", string(res.Status))
	if t := diag.GetTerminal(); t != nil {
		t.FileDone(res)
	}
}

func (r *runner) summary() contract.Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	sort.SliceStable(r.results, func(i, j int) bool { return r.results[i].FileID < r.results[j].FileID })
	var s contract.Summary
	for _, res := range r.results {
		s.Add(res)
	}
	return s
}

// fail 记录错误日志与指标并构造 error 结果。
func (r *runner) fail(id contract.FileID, t0 time.Time, comp string, err error, passes ...contract.PassResult) contract.FileResult {
	code := diag.Classify(err)
	r.logger.ErrorWith(comp, string(code), err.Error(), &t0, string(id))
	diag.IncError(comp, string(code))
	return contract.FileResult{FileID: id, Status: contract.StatusError, Passes: passes, Err: err}
}

// process 处理单个文件；永不 panic，错误体现在结果中。
func (r *runner) process(ctx context.Context, id contract.FileID, data []byte) contract.FileResult {
	t0 := time.Now()
	timer := r.logger.StartWith("pipeline", "repair", string(id))
	defer func() { diag.ObserveDuration("pipeline", "file", time.Since(t0).Milliseconds()) }()

	if off := invalidUTF8(data); off >= 0 {
		err := fmt.Errorf("%s: %w at byte %d", id, contract.ErrDecode, off)
		r.logger.ErrorWithKV("pipeline", string(diag.CodeDecode), "invalid utf-8", &t0, string(id), map[string]string{"offset": strconv.Itoa(off)})
		diag.IncError("pipeline", string(diag.CodeDecode))
		return contract.FileResult{FileID: id, Status: contract.StatusError, Err: err}
	}

	orig := string(data)
	text := orig
	var (
		passes  []contract.PassResult
		changed bool
		soft    int
	)
	for _, st := range r.comp.Stages {
		if st.When == WhenUnchanged && changed {
			continue
		}
		name := st.Name
		if name == "" {
			name = st.Pass.Name()
		}
		r.logger.DebugStart("pass", name, string(id), nil)
		out, err := st.Pass.Repair(ctx, id, text)
		switch {
		case err == nil:
		case errors.Is(err, contract.ErrRoundTripUnreversible):
			// 非致命：该 Pass 不适用于此文件
			soft++
			passes = append(passes, contract.PassResult{Pass: name, Err: err})
			r.logger.DebugStart("pass", "not applicable", string(id), map[string]string{"pass": name, "reason": err.Error()})
			continue
		default:
			passes = append(passes, contract.PassResult{Pass: name, Err: err})
			return r.fail(id, t0, "pass", fmt.Errorf("pass %s: %w", name, err), passes...)
		}
		passes = append(passes, contract.PassResult{Pass: name, Changed: out.Changed, Substitutions: out.Substitutions})
		if out.Changed {
			text = out.Text
			changed = true
		}
	}

	res := contract.FileResult{FileID: id, Passes: passes}
	switch {
	case text != orig:
		res.Status = contract.StatusFixed
	case len(passes) > 0 && soft == len(passes):
		res.Status = contract.StatusSkipped
	default:
		res.Status = contract.StatusUnchanged
	}

	if r.set.DryRun {
		if res.Status == contract.StatusFixed && r.set.Diff {
			r.writeDiff(id, orig, text)
		}
		timer.Finish(string(res.Status), int64(total(passes)))
		return res
	}
	if res.Modified() || r.echo {
		if err := r.comp.Writer.Write(ctx, contract.ArtifactID(id), strings.NewReader(text)); err != nil {
			return r.fail(id, t0, "writer", err, passes...)
		}
	}
	timer.Finish(string(res.Status), int64(total(passes)))
	return res
}

func (r *runner) writeDiff(id contract.FileID, a, b string) {
	out, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(a),
		B:        difflib.SplitLines(b),
		FromFile: "a/" + string(id),
		ToFile:   "b/" + string(id),
		Context:  2,
	})
	if err != nil {
		r.logger.ErrorWith("pipeline", string(diag.Classify(err)), "diff failed: "+err.Error(), nil, string(id))
		return
	}
	r.diffMu.Lock()
	defer r.diffMu.Unlock()
	_, _ = io.WriteString(r.set.DiffOut, out)
}

func total(ps []contract.PassResult) int {
	n := 0
	for _, p := range ps {
		n += p.Substitutions
	}
	return n
}

// invalidUTF8 返回首个非法字节偏移；合法返回 -1。
func invalidUTF8(b []byte) int {
	if utf8.Valid(b) {
		return -1
	}
	for i := 0; i < len(b); {
		r, n := utf8.DecodeRune(b[i:])
		if r == utf8.RuneError && n <= 1 {
			return i
		}
		i += n
	}
	return -1
}

func sanity(c Components, s *Settings) error {
	if c.Reader == nil || len(c.Stages) == 0 {
		return errors.New("pipeline: missing components")
	}
	if c.Writer == nil && !s.DryRun {
		return errors.New("pipeline: missing writer")
	}
	for i, st := range c.Stages {
		if st.Pass == nil {
			return fmt.Errorf("pipeline: stage %d has no pass", i)
		}
	}
	if s.Concurrency < 1 {
		s.Concurrency = 1
	}
	if s.DiffOut == nil {
		s.DiffOut = os.Stdout
	}
	return nil
}
