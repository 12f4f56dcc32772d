package filesystem

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"mojifix/pkg/contract"
)

// StdinID: roots 为空或为 "-" 时的 FileID。
const StdinID contract.FileID = "-"

// DefaultExtensions: 目录遍历时默认处理的扩展名。
var DefaultExtensions = []string{".html", ".htm"}

// Options 为 FileSystem Reader 的可选配置（最小必要）。
type Options struct {
	// BufSize 为读缓冲区大小（字节）。默认 64KiB。
	BufSize int `json:"buf_size"`
	// Extensions: 目录递归时只产出这些扩展名（大小写不敏感，含点）。
	// 为空使用 DefaultExtensions；["*"] 表示不过滤。
	// 显式给出的文件 root 不受影响。
	Extensions []string `json:"extensions"`
	// ExcludeDirNames: 在扫描目录时跳过这些目录名（基名完全匹配）。
	// 例如 [".git","node_modules","vendor"]。
	// 仅影响目录递归，不影响单文件 root。
	ExcludeDirNames []string `json:"exclude_dir_names"`
	// ExcludeNames: 目录递归时跳过的文件基名（如 "preview.html"）。
	ExcludeNames []string `json:"exclude_names"`
}

// FileSystem 实现基于文件系统与 STDIN 的 Reader。
type FileSystem struct {
	bufSize int
	// 以小写形式保存，比较时按小写基名匹配。
	excludeDir  map[string]struct{}
	excludeName map[string]struct{}
	exts        map[string]struct{}
	anyExt      bool
}

// New 创建 FileSystem Reader。
func New(opts *Options) *FileSystem {
	const defaultBuf = 64 * 1024
	if opts == nil {
		opts = &Options{}
	}
	b := defaultBuf
	if opts.BufSize > 0 {
		b = opts.BufSize
	}
	r := &FileSystem{
		bufSize:     b,
		excludeDir:  lowerSet(opts.ExcludeDirNames),
		excludeName: lowerSet(opts.ExcludeNames),
	}
	exts := opts.Extensions
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	r.exts = make(map[string]struct{}, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		switch {
		case e == "":
			continue
		case e == "*":
			r.anyExt = true
			continue
		case !strings.HasPrefix(e, "."):
			e = "." + e
		}
		r.exts[e] = struct{}{}
	}
	return r
}

func lowerSet(names []string) map[string]struct{} {
	m := make(map[string]struct{}, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			// 小写基名匹配，调用方无需关心大小写与前后斜杠。
			m[strings.ToLower(strings.Trim(n, `/\`))] = struct{}{}
		}
	}
	return m
}

// Match 报告 p 是否会在目录遍历中被产出（扩展名与排除名过滤）。
// watch 模式复用同一过滤规则。
func (r *FileSystem) Match(p string) bool {
	base := strings.ToLower(filepath.Base(p))
	if _, skip := r.excludeName[base]; skip {
		return false
	}
	if r.anyExt {
		return true
	}
	_, ok := r.exts[strings.ToLower(filepath.Ext(base))]
	return ok
}

// ExcludedDir 报告目录基名是否被排除。
func (r *FileSystem) ExcludedDir(name string) bool {
	_, skip := r.excludeDir[strings.ToLower(name)]
	return skip
}

// Iterate 遍历 roots，按稳定顺序对每个常规文件调用 yield。
// 支持 roots 为空或仅包含 "-" 作为 STDIN。
// 单个 root 或条目的错误经 Entry.Err 上报；yield 返回错误或 ctx 取消时中止。
func (r *FileSystem) Iterate(ctx context.Context, roots []string, yield func(e contract.Entry) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if len(roots) == 0 || (len(roots) == 1 && roots[0] == "-") {
		// 统一缓冲策略：STDIN 也使用 bufio.Reader 封装
		return yield(contract.Entry{FileID: StdinID, Body: newBufferedCloser(io.NopCloser(os.Stdin), r.bufSize)})
	}
	// 禁止与其他根混用 "-"
	for _, s := range roots {
		if s == "-" {
			return fmt.Errorf("%w: stdin '-' cannot be mixed with other roots", contract.ErrInvalidInput)
		}
	}

	for _, root := range roots {
		if err := r.iterateOne(ctx, root, yield); err != nil {
			return err
		}
	}
	return nil
}

func (r *FileSystem) iterateOne(ctx context.Context, root string, yield func(contract.Entry) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	id := contract.NormalizeFileID(root)

	info, err := os.Lstat(root)
	if err != nil {
		return yield(contract.Entry{FileID: id, Err: statErr(root, err)})
	}
	// 仅跟随到常规文件；目录符号链接不跟随（忽略）
	if info.Mode()&os.ModeSymlink != 0 {
		t, err := os.Stat(root)
		if err != nil {
			return yield(contract.Entry{FileID: id, Err: statErr(root, err)})
		}
		if !t.Mode().IsRegular() {
			return nil
		}
		return r.open(root, yield)
	}

	if info.IsDir() {
		return r.walkDir(ctx, root, yield)
	}
	if !info.Mode().IsRegular() { // 跳过非常规文件
		return nil
	}
	return r.open(root, yield)
}

func (r *FileSystem) walkDir(ctx context.Context, dir string, yield func(contract.Entry) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return yield(contract.Entry{FileID: contract.NormalizeFileID(dir), Err: statErr(dir, err)})
	}
	// 稳定顺序：字典序
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	// 先目录（不跟随目录符号链接）
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !e.IsDir() || r.ExcludedDir(e.Name()) {
			continue
		}
		if err := r.walkDir(ctx, filepath.Join(dir, e.Name()), yield); err != nil {
			return err
		}
	}
	// 再文件（允许指向常规文件的符号链接；目录符号链接忽略）
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.IsDir() {
			continue
		}
		p := filepath.Join(dir, e.Name())
		if !r.Match(p) {
			continue
		}
		if e.Type()&os.ModeSymlink != 0 {
			t, err := os.Stat(p)
			if err != nil {
				if err := yield(contract.Entry{FileID: contract.NormalizeFileID(p), Err: statErr(p, err)}); err != nil {
					return err
				}
				continue
			}
			if !t.Mode().IsRegular() {
				continue
			}
		} else if !e.Type().IsRegular() {
			// 非常规且不是符号链接（如 FIFO/设备）跳过
			continue
		}
		if err := r.open(p, yield); err != nil {
			return err
		}
	}
	return nil
}

// open 打开文件并交给 yield；打开失败作为条目错误上报。
// yield 失败时由这里关闭句柄。
func (r *FileSystem) open(p string, yield func(contract.Entry) error) error {
	id := contract.NormalizeFileID(p)
	f, err := os.Open(p)
	if err != nil {
		return yield(contract.Entry{FileID: id, Err: statErr(p, err)})
	}
	brc := newBufferedCloser(f, r.bufSize)
	if err := yield(contract.Entry{FileID: id, Body: brc}); err != nil {
		_ = brc.Close()
		return err
	}
	return nil
}

// statErr 将不存在映射为 ErrFileNotFound，其余原样保留（*fs.PathError）。
func statErr(p string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s: %w", p, contract.ErrFileNotFound)
	}
	return err
}

// bufferedCloser 将 bufio.Reader 与底层 Closer 组合为 ReadCloser。
type bufferedCloser struct {
	*bufio.Reader
	c io.Closer
}

func newBufferedCloser(c io.ReadCloser, bufSize int) *bufferedCloser {
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	return &bufferedCloser{Reader: bufio.NewReaderSize(c, bufSize), c: c}
}

func (b *bufferedCloser) Close() error { return b.c.Close() }
