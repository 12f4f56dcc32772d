package roundtrip

import (
	"context"

	"mojifix/internal/mojibake"
	"mojifix/pkg/contract"
)

// Options 为往返重解码 Pass 的可选配置。
type Options struct {
	// Codec: 误解码时使用的单字节编码，latin1（默认）或 windows-1252。
	Codec string `json:"codec"`
	// Depth: 最多反转几层损坏。默认 1；2 可处理双重损坏。
	Depth int `json:"depth"`
}

// Pass 将整段文本按单字节编码还原为字节后重新以 UTF-8 解码。
type Pass struct {
	codec mojibake.Codec
	depth int
}

// New 创建往返 Pass；未知编码返回 ErrInvalidInput。
func New(opts *Options) (*Pass, error) {
	if opts == nil {
		opts = &Options{}
	}
	c, err := mojibake.ParseCodec(opts.Codec)
	if err != nil {
		return nil, err
	}
	d := opts.Depth
	if d <= 0 {
		d = 1
	}
	return &Pass{codec: c, depth: d}, nil
}

var _ contract.Pass = (*Pass)(nil)

func (p *Pass) Name() string { return "roundtrip" }

// Repair 无法整体反转时返回原文与 ErrRoundTripUnreversible（非致命）。
// Substitutions 记为反转的层数。
func (p *Pass) Repair(ctx context.Context, _ contract.FileID, text string) (contract.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return contract.Outcome{Text: text}, err
	}
	fixed, n, err := mojibake.RoundTripDepth(text, p.codec, p.depth)
	if err != nil {
		return contract.Outcome{Text: text}, err
	}
	return contract.Outcome{Text: fixed, Changed: fixed != text, Substitutions: n}, nil
}
