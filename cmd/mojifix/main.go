package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"mojifix/internal/pipeline"
)

// 退出码：0 全部成功；1 存在失败文件或运行期错误；3 配置/装配/校验失败。
const (
	exitOK     = 0
	exitFailed = 1
	exitConfig = 3
)

var pipelineRun = pipeline.Run

// exitError 携带退出码；err 为 nil 时不打印。
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func fail(code int, format string, a ...any) error {
	return &exitError{code: code, err: fmt.Errorf(format, a...)}
}

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

// execute 运行 CLI 并返回退出码。
func execute(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.Execute()
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil && !errors.Is(ee.err, context.Canceled) {
			fmt.Fprintf(stderr, "mojifix: %v\n", ee.err)
		}
		return ee.code
	}
	// 旗标/参数解析错误
	fmt.Fprintf(stderr, "mojifix: %v\n", err)
	return exitConfig
}

// globalFlags: 所有子命令共享的旗标。
type globalFlags struct {
	config   string
	logLevel string
	exts     []string
	quiet    bool
	corrID   string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "mojifix",
		Short:         "Detect and repair mojibake in HTML files",
		Long:          "mojifix repairs UTF-8 text that was decoded as Latin-1/Windows-1252 and saved again.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// 在任何 ENV 读取前加载工作目录下的 .env（不覆盖已有 ENV）
			_ = loadDotEnv(".env")
			g.corrID = uuid.NewString()
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&g.config, "config", "", "配置文件路径（JSON）；缺省读取 ./config.json（若存在）")
	pf.StringVar(&g.logLevel, "log-level", "", "日志级别 debug|info|warn|error（覆盖配置）")
	pf.StringSliceVar(&g.exts, "ext", nil, "目录遍历时处理的扩展名（覆盖配置，如 .html,.php；* 表示全部）")
	pf.BoolVarP(&g.quiet, "quiet", "q", false, "关闭终端状态提示")

	root.AddCommand(
		newRunCmd(g),
		newInspectCmd(g),
		newPatternsCmd(g),
		newWatchCmd(g),
		newInitConfigCmd(),
	)
	return root
}

// loadDotEnv 读取简单的 .env 文件格式并注入进程环境。
// 规则：
// - 忽略不存在的文件；无法读取时返回错误（但调用处可忽略）。
// - 跳过空行与以 # 开头的行；支持可选的前缀 "export "。
// - 仅按首个 '=' 分割；若 value 被成对的单/双引号包裹则去除外层引号。
// - 不覆盖已存在的环境变量（保持系统/调用者优先）。
func loadDotEnv(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		eq := strings.IndexByte(line, '=')
		if eq <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:eq])
		val := strings.TrimSpace(line[eq+1:])
		if len(val) >= 2 {
			if (val[0] == '\'' && val[len(val)-1] == '\'') || (val[0] == '"' && val[len(val)-1] == '"') {
				quoted := val[0]
				val = val[1 : len(val)-1]
				if quoted == '"' {
					val = strings.NewReplacer(`\n`, "\n", `\t`, "\t", `\"`, `"`, `\\`, `\`).Replace(val)
				}
			}
		}
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		_ = os.Setenv(key, val)
	}
	return s.Err()
}
