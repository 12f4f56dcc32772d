package contract

import (
	"context"
	"io"
)

// ArtifactID: 与 FileID 等价的持久化标识（语义别名）。
type ArtifactID = FileID

// Writer: 将修复结果持久化到目标介质（原地/镜像目录/STDOUT）。
// 约束：
//  1. 同一 ArtifactID 单写者；
//  2. 全有或全无：失败时目标保持原内容；
//  3. ctx 取消需尽快返回；
//  4. 错误直接上抛（不做重试/回退）。
type Writer interface {
	Write(ctx context.Context, id ArtifactID, r io.Reader) error
}

// TempPrefix: 原子写入时同目录临时文件的基名前缀；监听方据此忽略。
const TempPrefix = ".mojifix-"

// EchoWriter: 可选能力。为 true 时流水线对未改动文件也写出原文（过滤器模式）。
type EchoWriter interface {
	EchoUnchanged() bool
}
