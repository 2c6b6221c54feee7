package normalize

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trade-analytics/internal/types"
)

var testNow = time.Date(2030, 6, 1, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestNormalizeGenericRow(t *testing.T) {
	n := NewNormalizer(nil, fixedClock(testNow))

	trade := n.Normalize(RawRow{
		"Symbol":      " es ",
		"Side":        "Sell",
		"Qty":         "2",
		"Entry Price": "$5,010.25",
		"Exit Price":  "5000.25",
		"Fees":        "-4.20",
		"P&L":         "(20.00)",
		"Entry Time":  "2024-03-15T14:30:00Z",
		"Exit Time":   "2024-03-15T15:00:00Z",
	}, "")

	assert.Equal(t, "ES", trade.Symbol)
	assert.Equal(t, "Sell", trade.DirectionHint)
	assert.True(t, trade.Quantity.Equal(dec("2")))
	assert.True(t, trade.EntryPrice.Equal(dec("5010.25")))
	assert.True(t, trade.ExitPrice.Equal(dec("5000.25")))
	assert.True(t, trade.Fees.Equal(dec("4.2")))
	assert.True(t, trade.PnL.Equal(dec("-20")))
	assert.True(t, trade.PnLSupplied)
	assert.Equal(t, types.BrokerGeneric, trade.Broker)
	assert.Equal(t, time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC), trade.TradeDate)
	assert.False(t, trade.DateFromClock)
	assert.Empty(t, trade.Warnings())
	assert.Equal(t, "5000.25", trade.Metadata.RawRow["Exit Price"])
}

func TestNormalizeTradovateRow(t *testing.T) {
	n := NewNormalizer(nil, fixedClock(testNow))

	trade := n.Normalize(RawRow{
		"symbol":          "MNQM4",
		"qty":             "1",
		"buyPrice":        "18450.50",
		"sellPrice":       "18440.25",
		"pnl":             "$(20.50)",
		"boughtTimestamp": "05/20/2024 14:05:11",
		"soldTimestamp":   "05/20/2024 13:58:40",
		"buyFillId":       "1001",
		"sellFillId":      "1000",
	}, "Tradovate")

	assert.Equal(t, types.BrokerTradovate, trade.Broker)
	assert.Equal(t, string(types.DirectionShort), trade.DirectionHint)
	assert.True(t, trade.EntryPrice.Equal(dec("18440.25")), "short enters at the sell price")
	assert.True(t, trade.ExitPrice.Equal(dec("18450.5")))
	assert.True(t, trade.PnL.Equal(dec("-20.5")))
	require.NotNil(t, trade.EntryTime)
	assert.Equal(t, time.Date(2024, 5, 20, 13, 58, 40, 0, time.UTC), *trade.EntryTime)
	assert.Equal(t, time.Date(2024, 5, 20, 13, 58, 40, 0, time.UTC), trade.TradeDate)
	require.True(t, trade.HasFillIDs())
	assert.Equal(t, "1001", *trade.BuyFillID)
	assert.Equal(t, "1000", *trade.SellFillID)
}

func TestNormalizeTopstepXRow(t *testing.T) {
	n := NewNormalizer(nil, fixedClock(testNow))

	trade := n.Normalize(RawRow{
		"ContractName": "CON.F.US.EP.M24",
		"EnteredAt":    "2024-05-21 09:31:00",
		"ExitedAt":     "2024-05-21 09:45:00",
		"EntryPrice":   "5310.00",
		"ExitPrice":    "5312.50",
		"Fees":         "2.80",
		"PnL":          "125.00",
		"Size":         "1",
		"Type":         "Long",
		"TradeDay":     "2024-05-21",
	}, types.BrokerTopstepX)

	assert.Equal(t, "CON.F.US.EP.M24", trade.Symbol)
	assert.Equal(t, "Long", trade.DirectionHint)
	assert.True(t, trade.PnL.Equal(dec("125")))
	assert.Equal(t, time.Date(2024, 5, 21, 0, 0, 0, 0, time.UTC), trade.TradeDate)
}

func TestNormalizeRecordsWarnings(t *testing.T) {
	n := NewNormalizer(nil, fixedClock(testNow))

	trade := n.Normalize(RawRow{
		"symbol":    "NQ",
		"qty":       "1",
		"fees":      "1.2.3",
		"pnl":       "abc.def.ghi",
		"entryTime": "yesterday-ish",
	}, "")

	assert.True(t, trade.Fees.IsZero())
	assert.False(t, trade.PnLSupplied)
	assert.Len(t, trade.Warnings(), 3)
	assert.Equal(t, testNow, trade.TradeDate, "falls back to the injected clock")
	assert.True(t, trade.DateFromClock)
}

func TestNormalizeMissingFieldsDoesNotFail(t *testing.T) {
	n := NewNormalizer(nil, fixedClock(testNow))

	trade := n.Normalize(RawRow{}, "generic")

	assert.Empty(t, trade.Symbol)
	assert.True(t, trade.Quantity.IsZero())
	assert.False(t, trade.PnLSupplied)
	assert.Equal(t, testNow, trade.TradeDate)
}

func TestFieldMapWith(t *testing.T) {
	base := DefaultFieldMap()
	extended := base.With(FieldSymbol, "Ticker Symbol")

	n := NewNormalizer(extended, fixedClock(testNow))
	trade := n.Normalize(RawRow{"ticker_symbol": "cl"}, "")

	assert.Equal(t, "CL", trade.Symbol)
	assert.NotContains(t, base[FieldSymbol], "Ticker Symbol")
}
