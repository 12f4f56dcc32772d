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
	"strings"

	"mojifix/pkg/contract"
)

// Options: 最小必要选项。
type Options struct {
	// OutputDir: 镜像输出根目录。为空表示原地覆盖（修复的默认形态）。
	OutputDir string `json:"output_dir"`
	// Atomic: 是否使用原子替换（同目录临时文件 + fsync + rename）。
	// 默认值：true。未提供该字段时采用原子写；显式 false 可关闭。
	Atomic *bool `json:"atomic,omitempty"`
	// PermFile/PermDir: 新建文件/目录权限；为 0 表示使用默认。
	// 原地覆盖已有文件时沿用其原权限。
	PermFile os.FileMode `json:"perm_file,omitempty"`
	PermDir  os.FileMode `json:"perm_dir,omitempty"`
	// BufSize: 写缓冲区大小；<=0 使用实现默认。
	BufSize int `json:"buf_size,omitempty"`
}

type FS struct {
	root    string
	atomic  bool
	permF   os.FileMode
	permD   os.FileMode
	bufSize int
}

// New 创建文件系统 Writer 实现。
func New(opts *Options) (*FS, error) {
	if opts == nil {
		opts = &Options{}
	}
	bsz := opts.BufSize
	if bsz <= 0 {
		bsz = 64 * 1024
	}
	pf := opts.PermFile
	if pf == 0 {
		pf = 0o644
	}
	pd := opts.PermDir
	if pd == 0 {
		pd = 0o755
	}
	atomic := true
	if opts.Atomic != nil {
		atomic = *opts.Atomic
	}
	return &FS{root: strings.TrimSpace(opts.OutputDir), atomic: atomic, permF: pf, permD: pd, bufSize: bsz}, nil
}

var _ contract.Writer = (*FS)(nil)

// InPlace 报告是否原地覆盖。
func (w *FS) InPlace() bool { return w.root == "" }

// Write 将 r 的全部字节写入到基于 id 映射的目标路径。
// 失败时目标保持原内容；错误包装 ErrWrite。
func (w *FS) Write(ctx context.Context, id contract.ArtifactID, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dest, err := w.mapPath(id)
	if err != nil {
		return err
	}
	perm := w.permF
	if fi, err := os.Stat(dest); err == nil {
		if !fi.Mode().IsRegular() {
			return fmt.Errorf("%w: %s is not a regular file", contract.ErrWrite, dest)
		}
		perm = fi.Mode().Perm()
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %w", contract.ErrWrite, err)
	}
	if err := os.MkdirAll(filepath.Dir(dest), w.permD); err != nil {
		return fmt.Errorf("%w: %w", contract.ErrWrite, err)
	}

	if w.atomic {
		err = w.writeAtomic(ctx, dest, perm, r)
	} else {
		err = w.writeOverwrite(ctx, dest, perm, r)
	}
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %w", contract.ErrWrite, dest, err)
	}
	return err
}

// mapPath: 原地模式直接使用 id；镜像模式 Clean + Join + 越界校验。
func (w *FS) mapPath(id contract.ArtifactID) (string, error) {
	rel := filepath.Clean(filepath.FromSlash(string(id)))
	if rel == "." || rel == "" || rel == "-" {
		return "", fmt.Errorf("%w: %q", contract.ErrPathInvalid, id)
	}
	if w.InPlace() {
		return rel, nil
	}
	// 绝对路径仅在位于工作目录之下时可镜像
	if filepath.IsAbs(rel) {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("%w: %q", contract.ErrPathInvalid, id)
		}
		r, err := filepath.Rel(wd, rel)
		if err != nil {
			return "", fmt.Errorf("%w: %q", contract.ErrPathInvalid, id)
		}
		rel = r
	}
	// 禁止父级逃逸、Windows 卷名
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", fmt.Errorf("%w: %q escapes output dir", contract.ErrPathInvalid, id)
	}
	if vol := filepath.VolumeName(rel); vol != "" {
		return "", fmt.Errorf("%w: %q", contract.ErrPathInvalid, id)
	}
	return filepath.Join(w.root, rel), nil
}

func (w *FS) writeOverwrite(ctx context.Context, dest string, perm os.FileMode, r io.Reader) error {
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	// 确保及时关闭
	defer f.Close()

	bw := bufio.NewWriterSize(f, w.bufSize)
	if _, err := io.Copy(bw, readerWithCtx(ctx, r)); err != nil {
		return err
	}
	return bw.Flush()
}

func (w *FS) writeAtomic(ctx context.Context, dest string, perm os.FileMode, r io.Reader) error {
	dir := filepath.Dir(dest)
	tmp, err := os.CreateTemp(dir, contract.TempPrefix+"*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	fail := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	// CreateTemp 固定 0600，替换前改回目标权限
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fail(err)
	}

	bw := bufio.NewWriterSize(tmp, w.bufSize)
	if _, err := io.Copy(bw, readerWithCtx(ctx, r)); err != nil {
		return fail(err)
	}
	if err := bw.Flush(); err != nil {
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	// 平台特定的原子替换（或最佳努力）：
	if err := osReplace(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	// 最佳努力：在部分平台同步父目录，提升崩溃安全性
	_ = syncDir(dir)
	return nil
}

// readerWithCtx: 在每次 Read 前检查 ctx 是否已取消。
func readerWithCtx(ctx context.Context, r io.Reader) io.Reader {
	return &ctxReader{ctx: ctx, r: r}
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *ctxReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}
