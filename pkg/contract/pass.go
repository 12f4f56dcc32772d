package contract

import "context"

// Pass: 命名修复策略（往返重解码 / 替换表 / 锚文本重标）。
// 约束：
//  1. 纯计算，不做 I/O；
//  2. 不修改与已知损坏模式无关的字节；
//  3. 幂等：对自身输出再次调用必须 Changed=false；
//  4. 无法处理时返回原文与错误，由调用方决定是否致命。
type Pass interface {
	Name() string
	Repair(ctx context.Context, fileID FileID, text string) (Outcome, error)
}
