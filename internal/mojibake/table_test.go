package mojibake

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mojifix/internal/patterns"
	"mojifix/pkg/contract"
)

func builtins(t *testing.T, names ...string) *patterns.Table {
	t.Helper()
	ts := make([]*patterns.Table, 0, len(names))
	for _, n := range names {
		tb, err := patterns.Builtin(n)
		require.NoError(t, err, n)
		ts = append(ts, tb)
	}
	m, err := patterns.Merge(ts...)
	require.NoError(t, err)
	return m
}

func TestApplyTableShoppingBagsFragment(t *testing.T) {
	tb := builtins(t, "emoji")
	got, n, err := ApplyTable("› ï¸ Produtos", tb)
	require.NoError(t, err)
	assert.Equal(t, "🛍️ Produtos", got)
	assert.Equal(t, 1, n)
}

func TestApplyTableIdempotent(t *testing.T) {
	tb := builtins(t, "accents", "emoji", "replacement-words")
	inputs := []string{
		"OlÃ¡ â€œmundoâ€\u009d ðŸ”\u008d INÃ CIO",
		"<button id=\"searchToggle\">”\u008d</button> <span>›’</span> <i>–¼</i>",
		"Servi�os e Marca��es dispon�veis",
		"âœ‰ï¸ Mensagens · âš™ï¸ Definições",
	}
	for _, in := range inputs {
		once, n1, err := ApplyTable(in, tb)
		require.NoError(t, err)
		assert.Positive(t, n1, in)
		twice, n2, err := ApplyTable(once, tb)
		require.NoError(t, err)
		assert.Zero(t, n2, "second pass on %q", once)
		assert.Equal(t, once, twice)
	}
}

func TestApplyTableAccents(t *testing.T) {
	tb := builtins(t, "accents")
	got, n, err := ApplyTable("MarcaÃ§Ãµes â€” OrÃ§amento Â©2024", tb)
	require.NoError(t, err)
	assert.Equal(t, "Marcações — Orçamento ©2024", got)
	assert.Equal(t, 5, n)
}

func TestApplyTableLeavesCorrectTextAlone(t *testing.T) {
	tb := builtins(t, "accents", "emoji", "replacement-words")
	in := `<p>“Citação” – Início ▼ 🛍️ Produtos © ½</p>`
	got, n, err := ApplyTable(in, tb)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, in, got)
}

func TestApplyTableLongestFirst(t *testing.T) {
	tb, err := patterns.Compile("t", "", []patterns.Entry{
		{From: "ab", To: "X"},
		{From: "abc", To: "Y"},
	})
	require.NoError(t, err)
	got, n, err := ApplyTable("abcab", tb)
	require.NoError(t, err)
	assert.Equal(t, "YX", got)
	assert.Equal(t, 2, n)
}

func TestApplyTableRepeatsRounds(t *testing.T) {
	tb, err := patterns.Compile("t", "", []patterns.Entry{
		{From: "aa", To: "b"},
		{From: "bb", To: "c"},
	})
	require.NoError(t, err)
	got, n, err := ApplyTable("aaaa", tb)
	require.NoError(t, err)
	assert.Equal(t, "c", got)
	assert.Equal(t, 3, n)
}

func TestApplyTableNonConvergent(t *testing.T) {
	tb, err := patterns.Compile("drift", "", []patterns.Entry{{From: "xa", To: "ax"}})
	require.NoError(t, err)
	in := strings.Repeat("x", 10) + "a"
	got, n, err := ApplyTableRounds(in, tb, 3)
	require.ErrorIs(t, err, contract.ErrPatternConflict)
	assert.Equal(t, in, got)
	assert.Zero(t, n)

	got, n, err = ApplyTableRounds(in, tb, 20)
	require.NoError(t, err)
	assert.Equal(t, "a"+strings.Repeat("x", 10), got)
	assert.Equal(t, 10, n)
}

func TestApplyTableLiteralGuards(t *testing.T) {
	tb, err := patterns.Compile("g", "", []patterns.Entry{
		{From: "“ ", To: "📝", FollowedBy: " Blog"},
		{From: "#", To: "№", PrecededBy: "Nr"},
	})
	require.NoError(t, err)
	got, n, err := ApplyTable("“  Blog | “ citação | Nr# | #1", tb)
	require.NoError(t, err)
	assert.Equal(t, "📝 Blog | “ citação | Nr№ | #1", got)
	assert.Equal(t, 2, n)
}

func TestApplyTablePunctuationFragmentsNeedMarkup(t *testing.T) {
	tb := builtins(t, "accents", "emoji", "replacement-words")
	prose := []string{
		"Preço: 1–¼ kg",
		"Diz ›’olá’ e segue",
		"<p>fim”\u008d</p>",
	}
	for _, in := range prose {
		got, n, err := ApplyTable(in, tb)
		require.NoError(t, err)
		assert.Zero(t, n, in)
		assert.Equal(t, in, got)
	}

	page := `<button id="searchToggle">”\u008d</button><a href="/carrinho">›’</a><span class="seta">–¼</span>`
	got, n, err := ApplyTable(page, tb)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, `<button id="searchToggle">🔍</button><a href="/carrinho">🛒</a><span class="seta">▼</span>`, got)
}

func TestApplyTableInsideGuard(t *testing.T) {
	tb := builtins(t, "emoji")
	page := `<nav><a href="#" data-section="dashboard">“Š Dashboard</a>` +
		`<a href="#" data-section="posts">“  Blog</a></nav>` +
		`<p>Ele disse “Š e “ depois</p>`
	got, n, err := ApplyTable(page, tb)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Contains(t, got, `<p>Ele disse “Š e “ depois</p>`)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(got))
	require.NoError(t, err)
	assert.Equal(t, "📊 Dashboard", doc.Find(`a[data-section="dashboard"]`).Text())
	assert.Equal(t, "📝 Blog", doc.Find(`a[data-section="posts"]`).Text())
}

func TestApplyTableEmpty(t *testing.T) {
	got, n, err := ApplyTable("x", nil)
	require.NoError(t, err)
	assert.Equal(t, "x", got)
	assert.Zero(t, n)
}
