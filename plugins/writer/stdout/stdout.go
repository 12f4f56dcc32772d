// Package stdout 提供过滤器模式 Writer：修复结果直接写到标准输出。
// 与 reader 的 "-" 配合使用，形如 `mojifix run - < in.html > out.html`。
package stdout

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"mojifix/pkg/contract"
)

// Options: 暂无可选项；保留结构以便严格解码拒绝未知字段。
type Options struct{}

// Stdout 将内容顺序写到 out（默认 os.Stdout）。
type Stdout struct {
	mu  sync.Mutex
	out io.Writer
}

// New 创建写到 os.Stdout 的 Writer。
func New(*Options) *Stdout { return &Stdout{out: os.Stdout} }

// NewTo 创建写到任意 io.Writer 的实例（测试与嵌入使用）。
func NewTo(w io.Writer) *Stdout { return &Stdout{out: w} }

var (
	_ contract.Writer     = (*Stdout)(nil)
	_ contract.EchoWriter = (*Stdout)(nil)
)

// EchoUnchanged: 过滤器模式下未改动的文本也原样输出。
func (s *Stdout) EchoUnchanged() bool { return true }

// Write 整体写出一个文件的内容；多文件时互不交错。
func (s *Stdout) Write(ctx context.Context, id contract.ArtifactID, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	bw := bufio.NewWriter(s.out)
	if _, err := io.Copy(bw, r); err != nil {
		return fmt.Errorf("%w: %s: %w", contract.ErrWrite, id, err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("%w: %s: %w", contract.ErrWrite, id, err)
	}
	return nil
}
