package normalize

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trade-analytics/internal/models"
	"github.com/trade-analytics/internal/types"
)

// Normalizer turns raw broker rows into canonical trades
type Normalizer struct {
	fields FieldMap
	clock  Clock
}

// NewNormalizer creates a normalizer. A nil field map uses DefaultFieldMap and
// a nil clock uses SystemClock.
func NewNormalizer(fields FieldMap, clock Clock) *Normalizer {
	if fields == nil {
		fields = DefaultFieldMap()
	}
	if clock == nil {
		clock = SystemClock
	}
	return &Normalizer{fields: fields, clock: clock}
}

// Normalize builds a canonical trade from row. Unparseable numeric and date
// values are defaulted and reported as warnings on the trade; Normalize itself
// never fails. Mandatory-field validation belongs to the trade writer.
func (n *Normalizer) Normalize(row RawRow, broker string) *models.Trade {
	trade := &models.Trade{
		Broker:   strings.ToLower(strings.TrimSpace(broker)),
		Metadata: &models.TradeMetadata{RawRow: copyRow(row)},
	}
	if trade.Broker == "" {
		trade.Broker = types.BrokerGeneric
	}

	if symbol, ok := row.LookupString(n.fields[FieldSymbol]); ok {
		trade.Symbol = strings.ToUpper(symbol)
	}
	if hint, ok := row.LookupString(n.fields[FieldDirection]); ok {
		trade.DirectionHint = hint
	}

	trade.Quantity = n.amount(row, trade, FieldQuantity)
	trade.Fees = n.amount(row, trade, FieldFees).Abs()

	if _, _, found := row.Lookup(n.fields[FieldPnL]); found {
		pnl, ok := n.amountOK(row, trade, FieldPnL)
		trade.PnL = pnl
		trade.PnLSupplied = ok
	}

	entryTime := n.timestamp(row, trade, FieldEntryTime)
	exitTime := n.timestamp(row, trade, FieldExitTime)
	buyTime := n.timestamp(row, trade, FieldBuyTime)
	sellTime := n.timestamp(row, trade, FieldSellTime)

	// Exports that report buy/sell legs instead of entry/exit: the earlier
	// leg opened the position.
	if trade.DirectionHint == "" && buyTime != nil && sellTime != nil {
		if buyTime.After(*sellTime) {
			trade.DirectionHint = string(types.DirectionShort)
		} else {
			trade.DirectionHint = string(types.DirectionLong)
		}
	}
	short := isShortHint(trade.DirectionHint, trade.Quantity)

	if _, _, found := row.Lookup(n.fields[FieldEntryPrice]); found {
		trade.EntryPrice = n.amount(row, trade, FieldEntryPrice)
	} else if short {
		trade.EntryPrice = n.amount(row, trade, FieldSellPrice)
	} else {
		trade.EntryPrice = n.amount(row, trade, FieldBuyPrice)
	}

	if _, _, found := row.Lookup(n.fields[FieldExitPrice]); found {
		trade.ExitPrice = n.amount(row, trade, FieldExitPrice)
	} else if short {
		trade.ExitPrice = n.amount(row, trade, FieldBuyPrice)
	} else {
		trade.ExitPrice = n.amount(row, trade, FieldSellPrice)
	}

	if entryTime == nil {
		entryTime = pick(short, sellTime, buyTime)
	}
	if exitTime == nil {
		exitTime = pick(short, buyTime, sellTime)
	}
	trade.EntryTime = entryTime
	trade.ExitTime = exitTime

	date := n.timestamp(row, trade, FieldDate)
	var source Field
	trade.TradeDate, source = ChooseTradeDate(date, entryTime, exitTime, n.clock)
	trade.DateFromClock = source == ""

	if id, ok := row.LookupString(n.fields[FieldBuyFillID]); ok {
		trade.BuyFillID = &id
	}
	if id, ok := row.LookupString(n.fields[FieldSellFillID]); ok {
		trade.SellFillID = &id
	}

	return trade
}

func (n *Normalizer) amount(row RawRow, trade *models.Trade, field Field) decimal.Decimal {
	value, _ := n.amountOK(row, trade, field)
	return value
}

func (n *Normalizer) amountOK(row RawRow, trade *models.Trade, field Field) (decimal.Decimal, bool) {
	raw, key, found := row.Lookup(n.fields[field])
	if !found {
		return decimal.Zero, false
	}
	value, ok := NormalizeAmount(raw)
	if !ok {
		trade.AddWarning(fmt.Sprintf("%s: unparseable amount %q in column %q, defaulted to 0", field, stringify(raw), key))
	}
	return value, ok
}

func (n *Normalizer) timestamp(row RawRow, trade *models.Trade, field Field) *time.Time {
	raw, key, found := row.Lookup(n.fields[field])
	if !found {
		return nil
	}
	t, ok := ParseTimestamp(raw)
	if !ok {
		trade.AddWarning(fmt.Sprintf("%s: unparseable timestamp %q in column %q, ignored", field, stringify(raw), key))
		return nil
	}
	return &t
}

func isShortHint(hint string, quantity decimal.Decimal) bool {
	if dir, ok := types.ParseDirection(hint); ok {
		return dir == types.DirectionShort
	}
	return quantity.IsNegative()
}

func pick(cond bool, a, b *time.Time) *time.Time {
	if cond {
		return a
	}
	return b
}

func copyRow(row RawRow) map[string]interface{} {
	out := make(map[string]interface{}, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}
