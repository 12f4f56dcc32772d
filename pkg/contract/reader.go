package contract

import (
	"context"
	"io"
)

// Entry: Reader 产出的单个文件。
// Err 非空时 Body 为 nil（例如根路径不存在）；否则调用方负责 Close。
type Entry struct {
	FileID FileID
	Body   io.ReadCloser
	Err    error
}

// Reader: 输入源抽象（文件/目录/STDIN）。
// 约束：
// 1) 流式读取，按文件维度回调；
// 2) FileID 稳定且去平台差异化；
// 3) 不做解码，仅提供字节流；
// 4) 单个条目的错误经 Entry.Err 上报，不中断遍历；
// 5) 不在内部起并发。
type Reader interface {
	Iterate(ctx context.Context, roots []string, yield func(e Entry) error) error
}
