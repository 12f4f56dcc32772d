package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	cfgpkg "mojifix/internal/config"
	"mojifix/internal/diag"
	"mojifix/internal/watch"
)

func newWatchCmd(g *globalFlags) *cobra.Command {
	f := &runFlags{}
	var debounce time.Duration
	cmd := &cobra.Command{
		Use:   "watch [roots...]",
		Short: "Repair once, then repair again whenever matching files change",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := prepare(cmd, g, f, args)
			if err != nil {
				return err
			}
			defer s.close()
			if cfgpkg.StdinMode(s.cfg) {
				return fail(exitConfig, "watch 不支持 STDIN")
			}
			filter, ok := s.comp.Reader.(watch.Filter)
			if !ok {
				return fail(exitConfig, "reader %q 不支持 watch", s.cfg.Components.Reader)
			}

			diag.SetTerminal(s.term)
			defer diag.SetTerminal(nil)
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			// 先全量一轮
			if _, err := s.batch(ctx, nil); err != nil && ctx.Err() == nil {
				return fail(exitFailed, "运行失败: %w", err)
			}
			w, err := watch.New(s.cfg.Inputs, filter, s.logger)
			if err != nil {
				return fail(exitConfig, "watch: %w", err)
			}
			s.term.Println(fmt.Sprintf("[watch] %s | 防抖 %s | Ctrl-C 退出", strings.Join(s.cfg.Inputs, ","), debounce))
			return w.Run(ctx, debounce, func(ctx context.Context, paths []string) error {
				_, err := s.batch(ctx, paths)
				return err
			})
		},
	}
	f.bind(cmd)
	cmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultDebounce, "同一文件最后一次变更后的静默时间")
	return cmd
}
