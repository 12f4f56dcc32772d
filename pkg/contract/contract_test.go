package contract

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"
)

// TestNormalizeFileID 验证路径规范化逻辑。
func TestNormalizeFileID(t *testing.T) {
	wpath := filepath.Join("site", "admin.html")
	basicCases := map[string]string{
		wpath:              "site/admin.html",
		"./x/../index.html": "index.html",
		"":                 ".",
	}
	for in, want := range basicCases {
		got := NormalizeFileID(in)
		if string(got) != want {
			t.Fatalf("基础测试 %s -> %s, 预期 %s", in, got, want)
		}
	}

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"Windows路径", "C:\\Users\\luis\\site\\servicos.html", "C:/Users/luis/site/servicos.html"},
		{"清理多余斜杠", "site//blog///post.html", "site/blog/post.html"},
		{"清理当前目录", "site/./blog/./post.html", "site/blog/post.html"},
		{"处理父目录", "site/admin/../blog.html", "site/blog.html"},
		{"单个点", ".", "."},
		{"根路径", "/", "/"},
		{"混合分隔符", "site\\pages/eventos.html", "site/pages/eventos.html"},
		{"非ASCII路径", "páginas\\início.html", "páginas/início.html"},
		{"复杂父目录", "a\\b\\..\\..\\..\\c.html", "../c.html"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeFileID(tt.input); string(got) != tt.expected {
				t.Errorf("NormalizeFileID(%q) = %q, expected %q", tt.input, got, tt.expected)
			}
		})
	}
}

// TestSummaryAdd 验证各状态计数与 Total。
func TestSummaryAdd(t *testing.T) {
	var s Summary
	s.Add(FileResult{FileID: "a.html", Status: StatusFixed})
	s.Add(FileResult{FileID: "b.html", Status: StatusUnchanged})
	s.Add(FileResult{FileID: "c.html", Status: StatusSkipped})
	s.Add(FileResult{FileID: "d.html", Status: StatusError, Err: ErrDecode})
	s.Add(FileResult{FileID: "e.html"})
	if s.Fixed != 1 || s.Unchanged != 2 || s.Skipped != 1 || s.Errored != 1 {
		t.Fatalf("计数错误: %+v", s)
	}
	if s.Total() != 5 || len(s.Results) != 5 {
		t.Fatalf("total=%d results=%d", s.Total(), len(s.Results))
	}
	if !s.Results[0].Modified() || s.Results[1].Modified() {
		t.Fatalf("Modified 判定错误")
	}
}

// TestErrorsWrap 哨兵错误需可经 %w 包装后识别。
func TestErrorsWrap(t *testing.T) {
	err := fmt.Errorf("read admin.html: %w", ErrFileNotFound)
	if !errors.Is(err, ErrFileNotFound) {
		t.Fatalf("包装后无法识别")
	}
	if errors.Is(err, ErrDecode) {
		t.Fatalf("不应匹配其他哨兵")
	}
}
