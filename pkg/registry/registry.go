package registry

import (
	"bytes"
	"encoding/json"
	"sort"

	"mojifix/pkg/contract"
	prl "mojifix/plugins/pass/relabel"
	prt "mojifix/plugins/pass/roundtrip"
	ptb "mojifix/plugins/pass/table"
	rfs "mojifix/plugins/reader/filesystem"
	wfs "mojifix/plugins/writer/filesystem"
	wso "mojifix/plugins/writer/stdout"
)

// strictUnmarshal: 使用 DisallowUnknownFields 严格解码，拒绝未知字段。
func strictUnmarshal(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(bytes.TrimSpace(raw)) == "null" {
		// 保持零值（默认选项）
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// NewReader 工厂签名：接收原样 JSON Options。
type NewReader func(raw json.RawMessage) (contract.Reader, error)

// NewWriter 工厂签名：接收原样 JSON Options。
type NewWriter func(raw json.RawMessage) (contract.Writer, error)

// NewPass 工厂签名：接收原样 JSON Options。
type NewPass func(raw json.RawMessage) (contract.Pass, error)

// Reader 工厂注册表（显式、零反射）。
var Reader = map[string]NewReader{
	// fs: 文件系统/STDIN Reader
	"fs": func(raw json.RawMessage) (contract.Reader, error) {
		var opts rfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return rfs.New(&opts), nil
	},
}

// Writer 工厂注册表。
var Writer = map[string]NewWriter{
	// fs: 原地或镜像目录的原子写
	"fs": func(raw json.RawMessage) (contract.Writer, error) {
		var opts wfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return wfs.New(&opts)
	},
	// stdout: 过滤器模式（配合 "-" 输入）
	"stdout": func(raw json.RawMessage) (contract.Writer, error) {
		var opts wso.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return wso.New(&opts), nil
	},
}

// Pass 工厂注册表。
var Pass = map[string]NewPass{
	// roundtrip: 整段 Latin-1/Windows-1252 往返重解码
	"roundtrip": func(raw json.RawMessage) (contract.Pass, error) {
		var opts prt.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return prt.New(&opts)
	},
	// table: 有序替换表（最长优先，多轮至收敛）
	"table": func(raw json.RawMessage) (contract.Pass, error) {
		var opts ptb.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return ptb.New(&opts)
	},
	// relabel: 按属性值重写元素内容
	"relabel": func(raw json.RawMessage) (contract.Pass, error) {
		var opts prl.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return prl.New(&opts)
	},
}

// Names 返回注册表键（字典序），用于错误提示。
func Names[F any](m map[string]F) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
