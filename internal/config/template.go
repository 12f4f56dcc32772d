package config

import (
	"encoding/json"
	"strings"
)

// AdminMenuLabels: 后台侧栏菜单 data-section → 规范文本。
var AdminMenuLabels = map[string]string{
	"dashboard": "📊 Dashboard",
	"bookings":  "📅 Marcações",
	"orders":    "📦 Encomendas",
	"services":  "💄 Serviços",
	"workshops": "🎓 Workshops",
	"products":  "🛍️ Produtos",
	"posts":     "📝 Blog",
	"events":    "🎉 Eventos",
	"users":     "👥 Utilizadores",
	"messages":  "✉️ Mensagens",
	"images":    "🖼️ Gestão de Imagens",
	"reports":   "📈 Relatórios",
	"settings":  "⚙️ Definições",
}

// DefaultTemplateConfig 返回一个“可运行”的默认配置模板：
// - 默认输入为当前目录，原地修复；
// - 流水线：roundtrip → table → relabel（后台菜单）；
// - 选项给出全部键与中性默认值。
func DefaultTemplateConfig() Config {
	d := Defaults()
	cfg := Config{
		Inputs:      []string{"."},
		Concurrency: 4,
		Logging:     Logging{Level: "info"},
		Components:  d.Components,
	}
	cfg.Options.Reader = json.RawMessage(`{
  "buf_size": 65536,
  "extensions": [".html", ".htm"],
  "exclude_dir_names": [".git", "node_modules", "vendor"],
  "exclude_names": []
}`)
	cfg.Options.Writer = json.RawMessage(`{
  "output_dir": "",
  "atomic": true,
  "perm_file": 0,
  "perm_dir": 0,
  "buf_size": 65536
}`)
	labels, _ := json.MarshalIndent(AdminMenuLabels, "", "  ")
	cfg.Passes = []PassSpec{
		{Kind: "roundtrip", When: "always", Options: json.RawMessage(`{"codec": "latin1", "depth": 1}`)},
		{Kind: "table", When: "always", Options: json.RawMessage(`{
  "tables": ["builtin:accents", "builtin:emoji", "builtin:replacement-words"],
  "max_rounds": 8
}`)},
		{Kind: "relabel", When: "always", Options: json.RawMessage(`{"element": "a", "attr": "data-section", "labels": ` + string(labels) + `}`)},
	}
	return cfg
}

// DotEnvTemplate 返回 .env 模板内容（init-config 生成）。
func DotEnvTemplate() string {
	var b strings.Builder
	b.WriteString("# mojifix .env 模板（由 init-config 生成）\n")
	b.WriteString("# 优先级：CLI > ENV(.env) > JSON\n")
	b.WriteString("# 空值表示未设置。\n\n")

	b.WriteString("# 配置来源（可二选一）\n")
	b.WriteString(EnvPrefix + "CONFIG_FILE=\n")
	b.WriteString(EnvPrefix + "CONFIG_JSON=\n\n")

	b.WriteString("# 运行参数覆盖\n")
	for _, k := range []string{"INPUTS", "CONCURRENCY", "DRY_RUN", "DIFF", "LOG_LEVEL"} {
		b.WriteString(EnvPrefix + k + "=\n")
	}
	b.WriteString("\n# 组件选择与选项（原样 JSON）\n")
	for _, k := range []string{"COMPONENTS_READER", "COMPONENTS_WRITER", "OPTIONS_READER_JSON", "OPTIONS_WRITER_JSON", "PASSES_JSON"} {
		b.WriteString(EnvPrefix + k + "=\n")
	}
	return b.String()
}
