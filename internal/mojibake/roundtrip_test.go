package mojibake

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mojifix/pkg/contract"
)

// latin1Of 将 UTF-8 字节逐个映射为同值码点，模拟一次 Latin-1 误解码。
func latin1Of(s string) string {
	rs := make([]rune, 0, len(s))
	for i := 0; i < len(s); i++ {
		rs = append(rs, rune(s[i]))
	}
	return string(rs)
}

func TestAttemptRoundTripRepairFixesLatin1Corruption(t *testing.T) {
	got, changed := AttemptRoundTripRepair("TendÃªncias")
	assert.True(t, changed)
	assert.Equal(t, "Tendências", got)
}

func TestAttemptRoundTripRepairLeavesCorrectTextAlone(t *testing.T) {
	cases := []string{
		"",
		"plain ascii <a href=\"/\">home</a>",
		"Tendências é ótima",
		"Olá",
		"café",
		"Ã",
	}
	for _, in := range cases {
		got, changed := AttemptRoundTripRepair(in)
		assert.False(t, changed, "input %q", in)
		assert.Equal(t, in, got)
	}
}

func TestAttemptRoundTripRepairInvertsLatin1(t *testing.T) {
	originals := []string{
		"Marcações e Orçamento",
		"INÍCIO — “Serviços”",
		"🛍️ Produtos",
		"📊 Dashboard · 📅 Marcações",
		"中文 ✉️ ⚙️",
		"ÀÉÎÕÜ àéîõü ç ñ",
	}
	for _, want := range originals {
		got, changed := AttemptRoundTripRepair(latin1Of(want))
		assert.True(t, changed, "input for %q", want)
		assert.Equal(t, want, got)
	}
}

func TestAttemptRoundTripRepairIsolatedHighByte(t *testing.T) {
	// 0xE9 之后没有续字节。
	in := "café au lait"
	got, changed := AttemptRoundTripRepair(in)
	assert.False(t, changed)
	assert.Equal(t, in, got)

	_, _, err := RoundTrip(in, Latin1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, contract.ErrRoundTripUnreversible))
}

func TestRoundTripRejectsRunesAbove255(t *testing.T) {
	in := "TendÃªncias 🛍️"
	got, changed, err := RoundTrip(in, Latin1)
	require.ErrorIs(t, err, contract.ErrRoundTripUnreversible)
	assert.False(t, changed)
	assert.Equal(t, in, got)
}

func TestRoundTripWindows1252(t *testing.T) {
	got, changed, err := RoundTrip("â€œOlÃ¡â€\u009d", Windows1252)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "“Olá”", got)

	// Latin-1 无法编码 € œ。
	_, _, err = RoundTrip("â€œOlÃ¡â€\u009d", Latin1)
	assert.ErrorIs(t, err, contract.ErrRoundTripUnreversible)
}

func TestRoundTripWindows1252UndefinedBytes(t *testing.T) {
	for in, want := range map[string]string{
		"INÃ\u008dCIO":       "INÍCIO",
		"â€\u009d":           "”",
		"ðŸ“\u009d Blog":      "📝 Blog",
		"ðŸ“\u0081 Arquivos":  "📁 Arquivos",
	} {
		got, changed, err := RoundTrip(in, Windows1252)
		require.NoError(t, err, in)
		assert.True(t, changed, in)
		assert.Equal(t, want, got)
	}

	got, n, err := RoundTripDepth(latin1Of("INÃ\u008dCIO"), Windows1252, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "INÍCIO", got)
}

func TestRoundTripKeepsBOM(t *testing.T) {
	got, changed, err := RoundTrip("\ufeffTendÃªncias", Latin1)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "\ufeffTendências", got)
}

func TestRoundTripDepth(t *testing.T) {
	twice := latin1Of(latin1Of("ç"))
	require.Equal(t, "Ã\u0083Â§", twice)

	got, n, err := RoundTripDepth(twice, Latin1, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "ç", got)

	got, n, err = RoundTripDepth(twice, Latin1, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "Ã§", got)

	// 第二轮失败不影响第一轮结果。
	got, n, err = RoundTripDepth("TendÃªncias", Latin1, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "Tendências", got)

	_, n, err = RoundTripDepth("🛍️", Latin1, 2)
	assert.ErrorIs(t, err, contract.ErrRoundTripUnreversible)
	assert.Zero(t, n)
}

func TestParseCodec(t *testing.T) {
	for in, want := range map[string]Codec{
		"":             Latin1,
		"ISO-8859-1":   Latin1,
		"latin1":       Latin1,
		"cp1252":       Windows1252,
		"Windows-1252": Windows1252,
	} {
		got, err := ParseCodec(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseCodec("utf-16")
	assert.ErrorIs(t, err, contract.ErrInvalidInput)
}
