package normalize

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeJSONRows(t *testing.T) {
	rows, err := DecodeJSONRows([]byte(`[{"qty":2,"pnl":"1.5"}, "oops", null, {"symbol":"ES"}]`))
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, json.Number("2"), rows[0]["qty"])
	assert.Nil(t, rows[1])
	assert.Nil(t, rows[2])
	assert.Equal(t, "ES", rows[3]["symbol"])

	for _, raw := range []string{"", "null", `{"symbol":"ES"}`, "[1,"} {
		_, err := DecodeJSONRows([]byte(raw))
		assert.Error(t, err, raw)
	}
}

func TestParseCSVRows(t *testing.T) {
	rows, err := ParseCSVRows(strings.NewReader("\ufeffsymbol, qty\nES,1\n,\n\nNQ\nCL,2,extra\n"))
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, RawRow{"symbol": "ES", "qty": "1"}, rows[0])
	assert.Equal(t, RawRow{"symbol": "NQ"}, rows[1])
	assert.Equal(t, RawRow{"symbol": "CL", "qty": "2"}, rows[2])

	_, err = ParseCSVRows(strings.NewReader(""))
	assert.Error(t, err)

	_, err = ParseCSVRows(strings.NewReader("a,b\n\"unterminated\n"))
	assert.Error(t, err)
}

func TestDecodeJSONRowsExponentAmounts(t *testing.T) {
	rows, err := DecodeJSONRows([]byte(`[{"symbol":"ES","qty":1,"fees":5e-07,"pnl":-1e-3,"entryPrice":1.5E+2}]`))
	require.NoError(t, err)
	require.Len(t, rows, 1)

	trade := NewNormalizer(nil, fixedClock(testNow)).Normalize(rows[0], "")

	assert.True(t, trade.Fees.Equal(dec("0.0000005")), trade.Fees.String())
	assert.True(t, trade.PnL.Equal(dec("-0.001")), trade.PnL.String())
	assert.True(t, trade.EntryPrice.Equal(dec("150")), trade.EntryPrice.String())
	assert.True(t, trade.PnLSupplied)
	assert.Empty(t, trade.Warnings())
}
