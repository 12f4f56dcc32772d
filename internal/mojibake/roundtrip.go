// Package mojibake 实现乱码修复引擎：往返重解码与有序替换表。
//
// 两类修复均为纯内存文本变换，不做 I/O；调用方负责按 Changed 决定是否写回。
package mojibake

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"mojifix/pkg/contract"
)

// Codec: 被误用的单字节编码。
type Codec string

const (
	// Latin1 覆盖 0..255 全部字节，往返无损。
	Latin1 Codec = "latin1"
	// Windows1252 采用 WHATWG 映射；charmap 拒绝的 C1 控制字符按同值字节还原。
	Windows1252 Codec = "windows-1252"
)

const bom = "\ufeff"

// ParseCodec 解析编码名（大小写不敏感，接受常见别名）。
func ParseCodec(s string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "latin1", "latin-1", "iso-8859-1", "iso8859-1":
		return Latin1, nil
	case "windows-1252", "windows1252", "cp1252":
		return Windows1252, nil
	default:
		return "", fmt.Errorf("%w: unknown codec %q", contract.ErrInvalidInput, s)
	}
}

func (c Codec) charmap() *charmap.Charmap {
	if c == Windows1252 {
		return charmap.Windows1252
	}
	return charmap.ISO8859_1
}

// RoundTrip 将文本逐字符还原为 codec 下的单字节，再按 UTF-8 解码。
// 任一字符不可编码或字节序列非法 UTF-8 时返回原文与 ErrRoundTripUnreversible。
// 前导 BOM 不参与变换，原样保留。
func RoundTrip(text string, codec Codec) (string, bool, error) {
	cm := codec.charmap()
	body, hasBOM := strings.CutPrefix(text, bom)
	buf := make([]byte, 0, len(body))
	for i, r := range body {
		b, ok := cm.EncodeRune(r)
		if !ok && codec == Windows1252 && r >= 0x80 && r <= 0x9F {
			// 1252 未定义字节被保留为同值 C1
			b, ok = byte(r), true
		}
		if !ok {
			return text, false, fmt.Errorf("%w: %U at byte %d is outside %s",
				contract.ErrRoundTripUnreversible, r, i, codec)
		}
		buf = append(buf, b)
	}
	if !utf8.Valid(buf) {
		return text, false, fmt.Errorf("%w: re-encoded bytes are not valid UTF-8", contract.ErrRoundTripUnreversible)
	}
	out := string(buf)
	if hasBOM {
		out = bom + out
	}
	return out, out != text, nil
}

// RoundTripDepth 连续应用 RoundTrip 至多 depth 次（用于二次损坏）。
// 首次失败即返回错误；此后的失败视为已到达正确文本，保留上一次结果。
func RoundTripDepth(text string, codec Codec, depth int) (string, int, error) {
	if depth < 1 {
		depth = 1
	}
	cur := text
	n := 0
	for n < depth {
		next, changed, err := RoundTrip(cur, codec)
		if err != nil {
			if n == 0 {
				return text, 0, err
			}
			break
		}
		if !changed {
			break
		}
		cur = next
		n++
	}
	return cur, n, nil
}

// AttemptRoundTripRepair: Latin-1 往返的便捷形式；失败即原样返回、changed=false。
func AttemptRoundTripRepair(text string) (string, bool) {
	fixed, changed, err := RoundTrip(text, Latin1)
	if err != nil {
		return text, false
	}
	return fixed, changed
}
