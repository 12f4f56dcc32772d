// Package watch 监听目录变化，防抖后对变更文件重新执行修复。
// 依赖流水线幂等：修复写回触发的事件在下一轮判定为未变，不会循环。
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"mojifix/internal/diag"
	"mojifix/pkg/contract"
)

// DefaultDebounce: 同一文件最后一次事件后静默多久才处理。
const DefaultDebounce = 300 * time.Millisecond

// Filter 决定哪些路径参与修复（与 Reader 的目录遍历规则一致）。
type Filter interface {
	Match(p string) bool
	ExcludedDir(name string) bool
}

// RunFunc 处理一批已静默的路径（升序、去重）。
type RunFunc func(ctx context.Context, paths []string) error

// Watcher 封装 fsnotify；目录递归添加，新建目录自动加入。
type Watcher struct {
	w       *fsnotify.Watcher
	filter  Filter
	logger  *diag.Logger
	files   map[string]bool // 显式给出的文件 root
	trees   map[string]bool // 递归监听的目录
	pending map[string]time.Time
}

// New 创建并同步添加全部监听；返回时已可接收事件。
func New(roots []string, filter Filter, logger *diag.Logger) (*Watcher, error) {
	if logger == nil {
		logger = diag.Nop()
	}
	if len(roots) == 0 || filter == nil {
		return nil, fmt.Errorf("%w: watch requires roots and a filter", contract.ErrInvalidInput)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{w: fw, filter: filter, logger: logger, files: map[string]bool{}, trees: map[string]bool{}, pending: map[string]time.Time{}}
	for _, root := range roots {
		if root == "-" {
			_ = fw.Close()
			return nil, fmt.Errorf("%w: cannot watch stdin", contract.ErrInvalidInput)
		}
		info, err := os.Stat(root)
		if err != nil {
			_ = fw.Close()
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("%s: %w", root, contract.ErrFileNotFound)
			}
			return nil, err
		}
		if info.IsDir() {
			if err := w.addTree(root, false); err != nil {
				_ = fw.Close()
				return nil, err
			}
			continue
		}
		// 单文件：监听其所在目录，仅接受该路径
		w.files[filepath.Clean(root)] = true
		if err := fw.Add(filepath.Dir(root)); err != nil {
			_ = fw.Close()
			return nil, err
		}
	}
	return w, nil
}

// addTree 递归添加目录；queue 为真时把已存在的匹配文件加入待处理
// （新建目录在添加监听前可能已写入文件）。
func (w *Watcher) addTree(root string, queue bool) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == root {
				return err
			}
			return nil
		}
		if d.IsDir() {
			if p != root && w.filter.ExcludedDir(d.Name()) {
				return filepath.SkipDir
			}
			if err := w.w.Add(p); err != nil {
				return err
			}
			w.trees[filepath.Clean(p)] = true
			w.logger.DebugStart("watch", "add", p, nil)
			return nil
		}
		if queue && d.Type().IsRegular() && w.filter.Match(p) {
			w.pending[p] = time.Now()
		}
		return nil
	})
}

// Close 释放 fsnotify 资源。
func (w *Watcher) Close() error { return w.w.Close() }

// Run 阻塞处理事件直到 ctx 取消；返回前关闭 Watcher。
// run 的错误仅记录，不中断监听（ctx 取消除外）。
func (w *Watcher) Run(ctx context.Context, debounce time.Duration, run RunFunc) error {
	defer w.Close()
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	tick := debounce / 3
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.w.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.w.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watch", string(diag.Classify(err)), "watch error: "+err.Error(), nil)
			diag.IncError("watch", string(diag.Classify(err)))
		case now := <-ticker.C:
			paths := w.settled(now, debounce)
			if len(paths) == 0 {
				continue
			}
			t := w.logger.StartWithKV("watch", "batch", "", map[string]string{"paths": strconv.Itoa(len(paths))})
			if err := run(ctx, paths); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				w.logger.Error("watch", string(diag.Classify(err)), "run failed: "+err.Error(), t.Since())
				diag.IncOp("watch", "batch", "error")
				continue
			}
			t.Finish("batch", int64(len(paths)))
			diag.IncOp("watch", "batch", "success")
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return
	}
	p := filepath.Clean(ev.Name)
	if ev.Has(fsnotify.Create) {
		if info, err := os.Lstat(p); err == nil && info.IsDir() {
			if w.filter.ExcludedDir(info.Name()) {
				return
			}
			if err := w.addTree(p, true); err != nil {
				w.logger.Warn("watch", "add directory failed", map[string]string{"path": p, "error": err.Error()})
			}
			return
		}
	}
	if !w.wanted(p) {
		return
	}
	w.pending[p] = time.Now()
}

// wanted: 显式文件 root 精确匹配；递归目录内按过滤规则。
// Writer 的临时文件在防抖到期前已被重命名，一律忽略。
func (w *Watcher) wanted(p string) bool {
	if strings.HasPrefix(filepath.Base(p), contract.TempPrefix) {
		return false
	}
	if w.files[p] {
		return true
	}
	return w.trees[filepath.Dir(p)] && w.filter.Match(p)
}

// settled 取出静默时间已超过 debounce 的路径。
func (w *Watcher) settled(now time.Time, debounce time.Duration) []string {
	var out []string
	for p, t := range w.pending {
		if now.Sub(t) >= debounce {
			out = append(out, p)
			delete(w.pending, p)
		}
	}
	sort.Strings(out)
	return out
}

// Watch = New + Run。
func Watch(ctx context.Context, roots []string, filter Filter, debounce time.Duration, run RunFunc, logger *diag.Logger) error {
	w, err := New(roots, filter, logger)
	if err != nil {
		return err
	}
	return w.Run(ctx, debounce, run)
}
