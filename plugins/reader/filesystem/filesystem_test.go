package filesystem

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mojifix/pkg/contract"
)

// collect 读取全部条目，返回 FileID 列表与内容。
func collect(t *testing.T, r *FileSystem, roots []string) ([]string, map[string]string, []contract.Entry) {
	t.Helper()
	var ids []string
	bodies := map[string]string{}
	var failed []contract.Entry
	err := r.Iterate(context.Background(), roots, func(e contract.Entry) error {
		if e.Err != nil {
			failed = append(failed, e)
			return nil
		}
		defer e.Body.Close()
		b, err := io.ReadAll(e.Body)
		if err != nil {
			return err
		}
		ids = append(ids, string(e.FileID))
		bodies[string(e.FileID)] = string(b)
		return nil
	})
	if err != nil {
		t.Fatalf("iterate: %v", err)
	}
	return ids, bodies, failed
}

func write(t *testing.T, p, s string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(s), 0o644); err != nil {
		t.Fatal(err)
	}
}

// TestIterateSingleFile 显式文件 root 不受扩展名过滤
func TestIterateSingleFile(t *testing.T) {
	dir := t.TempDir()
	fp := filepath.Join(dir, "notes.txt")
	write(t, fp, "OlÃ¡")
	ids, bodies, failed := collect(t, New(nil), []string{fp})
	if len(failed) != 0 || len(ids) != 1 {
		t.Fatalf("ids=%v failed=%v", ids, failed)
	}
	if ids[0] != string(contract.NormalizeFileID(fp)) || bodies[ids[0]] != "OlÃ¡" {
		t.Fatalf("unexpected %v %q", ids, bodies)
	}
}

// TestWalkDirOrderAndFilter 先子目录后文件、字典序、默认只取 .html/.htm
func TestWalkDirOrderAndFilter(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "index.html"), "i")
	write(t, filepath.Join(dir, "about.HTM"), "a")
	write(t, filepath.Join(dir, "style.css"), "c")
	write(t, filepath.Join(dir, "admin", "dashboard.html"), "d")
	write(t, filepath.Join(dir, "admin", "preview.html"), "p")
	write(t, filepath.Join(dir, "node_modules", "x.html"), "x")

	r := New(&Options{ExcludeDirNames: []string{"Node_Modules/"}, ExcludeNames: []string{"preview.html"}})
	ids, _, _ := collect(t, r, []string{dir})
	var got []string
	for _, id := range ids {
		rel, _ := filepath.Rel(dir, filepath.FromSlash(id))
		got = append(got, filepath.ToSlash(rel))
	}
	want := []string{"admin/dashboard.html", "about.HTM", "index.html"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("got %v want %v", got, want)
	}
}

// TestExtensionsOption 自定义扩展名与通配
func TestExtensionsOption(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "a.html"), "a")
	write(t, filepath.Join(dir, "b.txt"), "b")
	write(t, filepath.Join(dir, "c.md"), "c")

	ids, _, _ := collect(t, New(&Options{Extensions: []string{"txt", ".MD"}}), []string{dir})
	if len(ids) != 2 || !strings.HasSuffix(ids[0], "b.txt") || !strings.HasSuffix(ids[1], "c.md") {
		t.Fatalf("ext filter: %v", ids)
	}
	ids, _, _ = collect(t, New(&Options{Extensions: []string{"*"}}), []string{dir})
	if len(ids) != 3 {
		t.Fatalf("wildcard: %v", ids)
	}
}

// TestMatch watch 复用的过滤规则
func TestMatch(t *testing.T) {
	r := New(&Options{ExcludeNames: []string{"Draft.html"}})
	cases := map[string]bool{
		"site/index.html": true,
		"site/INDEX.HTM":  true,
		"site/draft.html": false,
		"site/app.js":     false,
		"site/noext":      false,
	}
	for p, want := range cases {
		if got := r.Match(p); got != want {
			t.Errorf("Match(%q)=%v want %v", p, got, want)
		}
	}
	if !New(&Options{ExcludeDirNames: []string{".git"}}).ExcludedDir(".GIT") {
		t.Errorf("ExcludedDir 应大小写不敏感")
	}
}

// TestMissingRootReported 不存在的 root 作为条目错误上报，不中断后续 root
func TestMissingRootReported(t *testing.T) {
	dir := t.TempDir()
	ok := filepath.Join(dir, "ok.html")
	write(t, ok, "ok")
	ids, _, failed := collect(t, New(nil), []string{filepath.Join(dir, "missing.html"), ok})
	if len(failed) != 1 || !errors.Is(failed[0].Err, contract.ErrFileNotFound) {
		t.Fatalf("failed=%v", failed)
	}
	if failed[0].Body != nil {
		t.Fatalf("错误条目不应携带 Body")
	}
	if len(ids) != 1 {
		t.Fatalf("ids=%v", ids)
	}
}

// TestIterateDashMix 混用 '-' 返回错误
func TestIterateDashMix(t *testing.T) {
	r := New(nil)
	err := r.Iterate(context.Background(), []string{"-", "a"}, func(contract.Entry) error { return nil })
	if !errors.Is(err, contract.ErrInvalidInput) {
		t.Fatalf("expect invalid input for dash mix, got %v", err)
	}
}

func withStdin(t *testing.T, data string) {
	t.Helper()
	old := os.Stdin
	pr, pw, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	os.Stdin = pr
	t.Cleanup(func() { os.Stdin = old; pr.Close() })
	go func() {
		pw.Write([]byte(data))
		pw.Close()
	}()
}

// TestIterateStdin roots 为空或为 '-' 时读取 STDIN
func TestIterateStdin(t *testing.T) {
	for _, roots := range [][]string{nil, {"-"}} {
		withStdin(t, "TendÃªncias")
		ids, bodies, _ := collect(t, New(nil), roots)
		if len(ids) != 1 || ids[0] != string(StdinID) || bodies["-"] != "TendÃªncias" {
			t.Fatalf("roots=%v ids=%v bodies=%v", roots, ids, bodies)
		}
	}
}

// TestYieldErrorStops yield 返回错误时中止遍历
func TestYieldErrorStops(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "a.html"), "a")
	write(t, filepath.Join(dir, "b.html"), "b")
	stop := errors.New("stop")
	n := 0
	err := New(nil).Iterate(context.Background(), []string{dir}, func(e contract.Entry) error {
		n++
		return stop
	})
	if !errors.Is(err, stop) || n != 1 {
		t.Fatalf("err=%v n=%d", err, n)
	}
}

// TestIterateCtxCancel 上下文取消
func TestIterateCtxCancel(t *testing.T) {
	dir := t.TempDir()
	fp := filepath.Join(dir, "a.html")
	write(t, fp, "x")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := New(nil).Iterate(ctx, []string{fp}, func(contract.Entry) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expect ctx cancel, got %v", err)
	}
}

// TestNewBufferedCloserDefault bufSize<=0 时使用默认
func TestNewBufferedCloserDefault(t *testing.T) {
	bc := newBufferedCloser(io.NopCloser(strings.NewReader("")), 0)
	if bc.Reader == nil {
		t.Fatalf("nil reader")
	}
	bc.Close()
}
