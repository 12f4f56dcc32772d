package relabel

import (
	"context"
	"fmt"
	"strings"

	"mojifix/internal/mojibake"
	"mojifix/pkg/contract"
)

// Options 为锚文本重标 Pass 的配置。
type Options struct {
	// Element: 目标元素名，默认 "a"。
	Element string `json:"element"`
	// Attr: 键属性名，默认 "data-section"。
	Attr string `json:"attr"`
	// Labels: 属性值 → 规范文本（如 "products" → "🛍️ Produtos"）。必填。
	Labels map[string]string `json:"labels"`
}

// Pass 按属性值整体重写元素内容，用于损坏到无法按片段还原的菜单项。
type Pass struct {
	element string
	attr    string
	labels  map[string]string
}

// New 创建重标 Pass；labels 为空返回 ErrInvalidInput。
func New(opts *Options) (*Pass, error) {
	if opts == nil || len(opts.Labels) == 0 {
		return nil, fmt.Errorf("%w: relabel requires labels", contract.ErrInvalidInput)
	}
	el := strings.ToLower(strings.TrimSpace(opts.Element))
	if el == "" {
		el = "a"
	}
	at := strings.ToLower(strings.TrimSpace(opts.Attr))
	if at == "" {
		at = "data-section"
	}
	labels := make(map[string]string, len(opts.Labels))
	for k, v := range opts.Labels {
		if strings.TrimSpace(v) == "" {
			return nil, fmt.Errorf("%w: relabel label for %q is empty", contract.ErrInvalidInput, k)
		}
		labels[k] = v
	}
	return &Pass{element: el, attr: at, labels: labels}, nil
}

var _ contract.Pass = (*Pass)(nil)

func (p *Pass) Name() string { return "relabel" }

func (p *Pass) Repair(ctx context.Context, _ contract.FileID, text string) (contract.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return contract.Outcome{Text: text}, err
	}
	fixed, n := mojibake.Relabel(text, p.element, p.attr, p.labels)
	return contract.Outcome{Text: fixed, Changed: fixed != text, Substitutions: n}, nil
}
