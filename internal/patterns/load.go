package patterns

import (
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"mojifix/pkg/contract"
)

//go:embed tables/*.yaml
var builtinFS embed.FS

// BuiltinPrefix: 配置中引用内置表的前缀，例如 "builtin:accents"。
const BuiltinPrefix = "builtin:"

// file: 表文件的 YAML 形状。
type file struct {
	Name    string  `yaml:"name"`
	Derive  string  `yaml:"derive"`
	Entries []Entry `yaml:"entries"`
}

// Load 解析 YAML 表（严格拒绝未知字段）并编译。
func Load(r io.Reader) (*Table, error) {
	var f file
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty pattern table", contract.ErrInvalidInput)
		}
		return nil, fmt.Errorf("%w: %v", contract.ErrInvalidInput, err)
	}
	if strings.TrimSpace(f.Name) == "" {
		return nil, fmt.Errorf("%w: pattern table without name", contract.ErrInvalidInput)
	}
	return Compile(f.Name, f.Derive, f.Entries)
}

// LoadFile 从路径加载表。
func LoadFile(p string) (*Table, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	t, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p, err)
	}
	return t, nil
}

// Builtin 返回内置表（每次调用重新编译，调用方可自由持有）。
func Builtin(name string) (*Table, error) {
	f, err := builtinFS.Open(path.Join("tables", name+".yaml"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: unknown builtin table %q (known: %s)", contract.ErrInvalidInput, name, strings.Join(BuiltinNames(), ", "))
		}
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

// BuiltinNames 返回内置表名（字典序）。
func BuiltinNames() []string {
	ents, _ := fs.ReadDir(builtinFS, "tables")
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(names)
	return names
}

// Resolve 按引用加载表：builtin:<name> 或文件路径。
func Resolve(ref string) (*Table, error) {
	ref = strings.TrimSpace(ref)
	if name, ok := strings.CutPrefix(ref, BuiltinPrefix); ok {
		return Builtin(name)
	}
	if ref == "" {
		return nil, fmt.Errorf("%w: empty table reference", contract.ErrInvalidInput)
	}
	return LoadFile(ref)
}

// ResolveAll 依次加载并合并多个引用。
func ResolveAll(refs []string) (*Table, error) {
	ts := make([]*Table, 0, len(refs))
	for _, r := range refs {
		t, err := Resolve(r)
		if err != nil {
			return nil, err
		}
		ts = append(ts, t)
	}
	if len(ts) == 1 {
		return ts[0], nil
	}
	return Merge(ts...)
}
