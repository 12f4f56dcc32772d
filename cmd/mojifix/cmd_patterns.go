package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"mojifix/internal/patterns"
	ptb "mojifix/plugins/pass/table"
)

func newPatternsCmd(g *globalFlags) *cobra.Command {
	var (
		tables []string
		list   bool
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "patterns",
		Short: "List and validate substitution tables",
		Long: `Loads each table reference, compiles it, and merges them in order.
Exits with 3 when a table is invalid or the merged tables conflict.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			refs := tables
			if len(refs) == 0 {
				cfg, err := loadConfig(g, overlay{})
				if err != nil {
					return &exitError{code: exitConfig, err: err}
				}
				if refs, err = tableRefs(cfg); err != nil {
					return &exitError{code: exitConfig, err: err}
				}
				if len(refs) == 0 {
					refs = ptb.DefaultTables
				}
			}
			out := cmd.OutOrStdout()
			ts := make([]*patterns.Table, 0, len(refs))
			for _, ref := range refs {
				t, err := patterns.Resolve(ref)
				if err != nil {
					return fail(exitConfig, "%s: %w", ref, err)
				}
				ts = append(ts, t)
				if !asJSON {
					describe(out, ref, t)
				}
			}
			merged, err := patterns.Merge(ts...)
			if err != nil {
				return fail(exitConfig, "合并失败: %w", err)
			}
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				enc.SetEscapeHTML(false)
				return enc.Encode(struct {
					Name     string           `json:"name"`
					Entries  []patterns.Entry `json:"entries"`
					Warnings []string         `json:"warnings,omitempty"`
				}{merged.Name, merged.Entries, merged.Warnings})
			}
			fmt.Fprintf(out, "[ok] %s | 条目 %d | 告警 %d\n", merged.Name, merged.Len(), len(merged.Warnings))
			if list {
				for _, e := range merged.Entries {
					fmt.Fprintln(out, entryLine(e))
				}
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&tables, "table", nil, "替换表引用 builtin:<name> 或 YAML 路径（可重复）；缺省取配置或内置表")
	cmd.Flags().BoolVar(&list, "list", false, "逐条列出合并后的条目（按匹配顺序）")
	cmd.Flags().BoolVar(&asJSON, "json", false, "以 JSON 输出合并后的表")
	return cmd
}

func describe(w io.Writer, ref string, t *patterns.Table) {
	derived := 0
	for _, e := range t.Entries {
		if e.Derived {
			derived++
		}
	}
	fmt.Fprintf(w, "%s | %s | 条目 %d | 展开 %d | 作用域 %v\n", ref, t.Name, t.Len(), derived, t.Scoped())
	for _, warn := range t.Warnings {
		fmt.Fprintf(w, "  [warn] %s\n", warn)
	}
}

func entryLine(e patterns.Entry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%q → %q", e.From, e.To)
	if e.FollowedBy != "" {
		fmt.Fprintf(&b, " followed_by=%q", e.FollowedBy)
	}
	if e.PrecededBy != "" {
		fmt.Fprintf(&b, " preceded_by=%q", e.PrecededBy)
	}
	if e.Inside != "" {
		fmt.Fprintf(&b, " inside=%s", e.Inside)
	}
	if e.Note != "" {
		fmt.Fprintf(&b, " # %s", e.Note)
	}
	return b.String()
}
